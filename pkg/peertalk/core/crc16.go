package core

// CRC-16/CCITT-FALSE: poly 0x1021, init 0xFFFF, no input/output reflection,
// xorout 0x0000. Pinned per spec.md §9 Open Questions ("likely CCITT-FALSE,
// but verify against a test vector before locking"); verified against the
// standard test vector crc16("123456789") == 0x29B1 in crc16_test.go.
//
// Table-built the same way the stdlib's hash/crc32 does it, since no
// example in the retrieval pack ships a CRC-16 implementation to borrow —
// there is no ecosystem dependency to wire for this one, self-contained,
// spec-mandated primitive (see DESIGN.md).
const crc16Poly = 0x1021
const crc16Init = 0xFFFF

var crc16Table [256]uint16

func init() {
	for i := 0; i < 256; i++ {
		crc := uint16(i) << 8
		for b := 0; b < 8; b++ {
			if crc&0x8000 != 0 {
				crc = (crc << 1) ^ crc16Poly
			} else {
				crc <<= 1
			}
		}
		crc16Table[i] = crc
	}
}

// CRC16Update folds data into an in-progress CRC, so header and payload can
// be checksummed incrementally without concatenating them first:
// CRC16Update(CRC16Update(crc, a), b) == CRC16Update(crc, a‖b).
func CRC16Update(crc uint16, data []byte) uint16 {
	for _, b := range data {
		crc = (crc << 8) ^ crc16Table[byte(crc>>8)^b]
	}
	return crc
}

// CRC16 computes the checksum of data from the initial seed.
func CRC16(data []byte) uint16 {
	return CRC16Update(crc16Init, data)
}

// CRC16Seed is the initial register value callers should fold the first
// chunk into via CRC16Update.
const CRC16Seed uint16 = crc16Init
