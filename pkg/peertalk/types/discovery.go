package types

import (
	"encoding/binary"
	"fmt"
)

// DatagramType is the discovery protocol's message kind (spec §4.4/§6).
type DatagramType uint8

const (
	Announce DatagramType = iota
	Query
	Goodbye
)

func (t DatagramType) String() string {
	switch t {
	case Announce:
		return "Announce"
	case Query:
		return "Query"
	case Goodbye:
		return "Goodbye"
	default:
		return "Unknown"
	}
}

// MaxDiscoveryDatagram bounds the wire encoding (spec §6: "bounded to 128
// bytes").
const MaxDiscoveryDatagram = 128

// DiscoveryDatagramHeaderSize is the fixed-size prefix before the name:
// type(1) + flags(2 BE) + sender_port(2 BE) + name_len(1).
const DiscoveryDatagramHeaderSize = 6

// DiscoveryDatagram is the decoded UDP discovery payload:
// {type:u8, flags:u16 BE, sender_port:u16 BE, name_len:u8, name[name_len]}.
type DiscoveryDatagram struct {
	Type       DatagramType
	Flags      uint16
	SenderPort uint16
	Name       string
}

// Encode renders the datagram to its wire form. Returns an error if Name
// doesn't fit in a single byte length prefix or the total exceeds
// MaxDiscoveryDatagram.
func (d DiscoveryDatagram) Encode() ([]byte, error) {
	if len(d.Name) > 255 {
		return nil, fmt.Errorf("discovery name too long: %d bytes", len(d.Name))
	}
	total := DiscoveryDatagramHeaderSize + len(d.Name)
	if total > MaxDiscoveryDatagram {
		return nil, fmt.Errorf("discovery datagram too large: %d bytes", total)
	}
	buf := make([]byte, total)
	buf[0] = byte(d.Type)
	binary.BigEndian.PutUint16(buf[1:3], d.Flags)
	binary.BigEndian.PutUint16(buf[3:5], d.SenderPort)
	buf[5] = byte(len(d.Name))
	copy(buf[6:], d.Name)
	return buf, nil
}

// DecodeDiscoveryDatagram parses a wire-format discovery datagram.
func DecodeDiscoveryDatagram(buf []byte) (DiscoveryDatagram, error) {
	if len(buf) < DiscoveryDatagramHeaderSize {
		return DiscoveryDatagram{}, fmt.Errorf("discovery datagram too short: %d bytes", len(buf))
	}
	nameLen := int(buf[5])
	if len(buf) < DiscoveryDatagramHeaderSize+nameLen {
		return DiscoveryDatagram{}, fmt.Errorf("discovery datagram truncated name: want %d have %d", nameLen, len(buf)-DiscoveryDatagramHeaderSize)
	}
	return DiscoveryDatagram{
		Type:       DatagramType(buf[0]),
		Flags:      binary.BigEndian.Uint16(buf[1:3]),
		SenderPort: binary.BigEndian.Uint16(buf[3:5]),
		Name:       string(buf[6 : 6+nameLen]),
	}, nil
}

// UnreliableDatagramMagic is the 4-byte prefix of the unreliable UDP
// messaging channel's wire header (spec §6): "PTUD".
const UnreliableDatagramMagic uint32 = 0x50545544

// UnreliableDatagramHeaderSize is magic(4) + sender_port(2 BE) + payload_len(2 BE).
const UnreliableDatagramHeaderSize = 8

// UnreliableDatagram is one frame of the UDP messaging channel used by
// SendEx's FlagUnreliable path (bypasses the send queue entirely).
type UnreliableDatagram struct {
	SenderPort uint16
	Payload    []byte
}

func (d UnreliableDatagram) Encode() ([]byte, error) {
	if len(d.Payload) > MessageMax {
		return nil, fmt.Errorf("unreliable payload too large: %d bytes", len(d.Payload))
	}
	buf := make([]byte, UnreliableDatagramHeaderSize+len(d.Payload))
	binary.BigEndian.PutUint32(buf[0:4], UnreliableDatagramMagic)
	binary.BigEndian.PutUint16(buf[4:6], d.SenderPort)
	binary.BigEndian.PutUint16(buf[6:8], uint16(len(d.Payload)))
	copy(buf[8:], d.Payload)
	return buf, nil
}

func DecodeUnreliableDatagram(buf []byte) (UnreliableDatagram, error) {
	if len(buf) < UnreliableDatagramHeaderSize {
		return UnreliableDatagram{}, fmt.Errorf("unreliable datagram too short: %d bytes", len(buf))
	}
	if binary.BigEndian.Uint32(buf[0:4]) != UnreliableDatagramMagic {
		return UnreliableDatagram{}, fmt.Errorf("bad unreliable datagram magic")
	}
	payloadLen := int(binary.BigEndian.Uint16(buf[6:8]))
	if len(buf) < UnreliableDatagramHeaderSize+payloadLen {
		return UnreliableDatagram{}, fmt.Errorf("unreliable datagram truncated payload")
	}
	senderPort := binary.BigEndian.Uint16(buf[4:6])
	payload := make([]byte, payloadLen)
	copy(payload, buf[8:8+payloadLen])
	return UnreliableDatagram{SenderPort: senderPort, Payload: payload}, nil
}
