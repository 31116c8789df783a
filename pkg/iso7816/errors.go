package iso7816

import "errors"

// Structural errors: the payload does not have the minimum envelope shape.
// They are always wrapped with the offending length or position; compare with
// errors.Is.
var (
	// ErrMalformedCommand means a command APDU is shorter than its 4-byte header.
	ErrMalformedCommand = errors.New("malformed command APDU")

	// ErrMalformedResponse means a response APDU lacks its 2-byte status word.
	ErrMalformedResponse = errors.New("malformed response APDU")

	// ErrInvalidHexEncoding means a hex string has an odd length or a non-hex digit.
	ErrInvalidHexEncoding = errors.New("invalid hex encoding")
)
