package types

import (
	"errors"
	"fmt"
)

// Kind enumerates the PeerTalk error taxonomy. Every API call that can fail
// returns a *Error carrying one of these, never a bare sentinel or a naked
// string, so callers can switch on Kind deterministically.
type Kind uint8

const (
	// KindInvalidArg: null/zero where not allowed, oversize payload, malformed endpoint.
	KindInvalidArg Kind = iota + 1
	// KindInvalidState: operation not legal in the peer's current lifecycle state.
	KindInvalidState
	// KindNotFound: unknown peer id or endpoint.
	KindNotFound
	// KindNotSupported: transport capability absent on this platform.
	KindNotSupported
	// KindPoolExhausted: no free peer slot or no free endpoint slot.
	KindPoolExhausted
	// KindWouldBlock: send queue at blocking pressure, caller should back off.
	KindWouldBlock
	// KindResource: send queue at warning pressure, push rejected by policy.
	KindResource
	// KindMessageTooLarge: payload exceeds slot or message max.
	KindMessageTooLarge
	// KindNetwork: underlying transport reported a non-recoverable error.
	KindNetwork
	// KindConnectionClosed: peer closed, or framer detected an unrecoverable protocol violation.
	KindConnectionClosed
	// KindTimeout: connect or close did not complete within policy.
	KindTimeout
)

func (k Kind) String() string {
	switch k {
	case KindInvalidArg:
		return "InvalidArg"
	case KindInvalidState:
		return "InvalidState"
	case KindNotFound:
		return "NotFound"
	case KindNotSupported:
		return "NotSupported"
	case KindPoolExhausted:
		return "PoolExhausted"
	case KindWouldBlock:
		return "WouldBlock"
	case KindResource:
		return "Resource"
	case KindMessageTooLarge:
		return "MessageTooLarge"
	case KindNetwork:
		return "Network"
	case KindConnectionClosed:
		return "ConnectionClosed"
	case KindTimeout:
		return "Timeout"
	default:
		return "Unknown"
	}
}

// Error is the concrete error type returned by every PeerTalk API call.
// Stringification of the Kind is the sink's concern (spec §7); this type
// only carries the kind and an optional wrapped cause for errors.Is/As.
type Error struct {
	Kind    Kind
	Op      string
	Cause   error
	Message string
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("peertalk: %s: %s: %s", e.Op, e.Kind, e.Message)
	}
	if e.Cause != nil {
		return fmt.Sprintf("peertalk: %s: %s: %v", e.Op, e.Kind, e.Cause)
	}
	return fmt.Sprintf("peertalk: %s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error { return e.Cause }

// NewError builds a *Error for op/kind with an optional free-text message.
func NewError(op string, kind Kind, msg string) *Error {
	return &Error{Op: op, Kind: kind, Message: msg}
}

// WrapError builds a *Error for op/kind wrapping cause.
func WrapError(op string, kind Kind, cause error) *Error {
	return &Error{Op: op, Kind: kind, Cause: cause}
}

// KindOf extracts the Kind from err if it (or something it wraps) is a *Error.
// Returns 0 (no Kind) if err is nil or not a PeerTalk error.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return 0
}

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
