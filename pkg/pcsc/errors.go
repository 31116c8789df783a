package pcsc

import (
	"errors"
	"fmt"
)

// ErrorCode is the closed set of outcomes a driver reports for a card
// operation. Failures such as a missing card are ordinary results that
// callers branch on, so ErrorCode is an error value and never a panic.
type ErrorCode int

const (
	Success ErrorCode = iota
	Cancelled
	InvalidHandle
	InvalidParameter
	InsufficientBuffer
	UnknownReader
	Timeout
	SharingViolation
	NoSmartcard
	ProtocolMismatch
	NotReady
	ReaderUnavailable
	NoService
	NoReadersAvailable
	RemovedCard
	CardReset
	UnpoweredCard
	UnresponsiveCard
	UnsupportedCard
	NotSupported
	UnknownError
)

var errorCodeText = map[ErrorCode]string{
	Success:            "success",
	Cancelled:          "action cancelled",
	InvalidHandle:      "invalid handle",
	InvalidParameter:   "invalid parameter",
	InsufficientBuffer: "buffer too small for the returned data",
	UnknownReader:      "unknown reader",
	Timeout:            "timeout expired",
	SharingViolation:   "sharing violation: card in use by another session",
	NoSmartcard:        "no smart card in reader",
	ProtocolMismatch:   "requested protocols are incompatible with the card",
	NotReady:           "reader or card not ready",
	ReaderUnavailable:  "reader unavailable",
	NoService:          "resource manager not running",
	NoReadersAvailable: "no readers available",
	RemovedCard:        "card was removed",
	CardReset:          "card was reset",
	UnpoweredCard:      "card is not powered",
	UnresponsiveCard:   "card is not responding to reset",
	UnsupportedCard:    "card answer to reset is not supported",
	NotSupported:       "operation not supported by driver",
	UnknownError:       "unknown error",
}

func (c ErrorCode) Error() string {
	if text, ok := errorCodeText[c]; ok {
		return text
	}
	return fmt.Sprintf("error code %d", int(c))
}

func (c ErrorCode) String() string {
	return c.Error()
}

// IsCardGone reports whether the code means the card left the reader or was
// never there. Callers usually wait for an insertion on these.
func (c ErrorCode) IsCardGone() bool {
	return c == NoSmartcard || c == RemovedCard
}

// Error is the error returned by drivers: the operation, the reader it
// targeted, the classified code and the library error behind it.
type Error struct {
	Op     string
	Reader string
	Code   ErrorCode
	Err    error
}

// NewError builds an *Error. A nil cause is replaced by the code itself.
func NewError(op, reader string, code ErrorCode, cause error) *Error {
	if cause == nil {
		cause = code
	}
	return &Error{Op: op, Reader: reader, Code: code, Err: cause}
}

func (e *Error) Error() string {
	if e.Reader != "" {
		return fmt.Sprintf("%s %q: %v", e.Op, e.Reader, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the classified code, so errors.Is(err, pcsc.NoSmartcard) works
// whatever library error sits underneath.
func (e *Error) Is(target error) bool {
	code, ok := target.(ErrorCode)
	return ok && code == e.Code
}

// CodeOf classifies any error: nil is Success, errors carrying an ErrorCode
// report it, everything else is UnknownError.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return Success
	}

	var pe *Error
	if errors.As(err, &pe) {
		return pe.Code
	}

	var code ErrorCode
	if errors.As(err, &code) {
		return code
	}

	return UnknownError
}
