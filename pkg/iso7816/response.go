package iso7816

import "fmt"

// RESPONSE APDU (R-APDU):
// An optional body of Nr data bytes followed by the mandatory trailer SW1 SW2.
// Anything of two bytes or more is a structurally valid response.

// ResponseAPDU is an immutable response: its data field and status word.
type ResponseAPDU struct {
	data   []byte
	status StatusWord
}

// NewResponseAPDU builds a response from its parts, copying data.
func NewResponseAPDU(data []byte, sw StatusWord) ResponseAPDU {
	var buf []byte
	if len(data) > 0 {
		buf = make([]byte, len(data))
		copy(buf, data)
	}
	return ResponseAPDU{data: buf, status: sw}
}

// ParseResponseAPDU splits raw into data and status word. The last two bytes
// are SW1 SW2; a shorter input fails with ErrMalformedResponse.
func ParseResponseAPDU(raw []byte) (ResponseAPDU, error) {
	if len(raw) < StatusWordLength {
		return ResponseAPDU{}, fmt.Errorf("%w: length %d, trailer needs %d bytes", ErrMalformedResponse, len(raw), StatusWordLength)
	}

	n := len(raw) - StatusWordLength
	return NewResponseAPDU(raw[:n], NewStatusWord(raw[n], raw[n+1])), nil
}

// ParseResponseAPDUHex decodes s and parses it like ParseResponseAPDU.
func ParseResponseAPDUHex(s string) (ResponseAPDU, error) {
	raw, err := DecodeHex(s)
	if err != nil {
		return ResponseAPDU{}, err
	}
	return ParseResponseAPDU(raw)
}

// Data returns a copy of the data field, nil when empty.
func (r ResponseAPDU) Data() []byte {
	if len(r.data) == 0 {
		return nil
	}
	out := make([]byte, len(r.data))
	copy(out, r.data)
	return out
}

// Nr returns the length of the data field.
func (r ResponseAPDU) Nr() int {
	return len(r.data)
}

// StatusWord returns SW1 SW2.
func (r ResponseAPDU) StatusWord() StatusWord {
	return r.status
}

// SW1 returns the first status byte.
func (r ResponseAPDU) SW1() byte {
	return r.status.SW1()
}

// SW2 returns the second status byte.
func (r ResponseAPDU) SW2() byte {
	return r.status.SW2()
}

// IsSuccess reports a 9000 status word.
func (r ResponseAPDU) IsSuccess() bool {
	return r.status.IsSuccess()
}

// Bytes returns data followed by SW1 SW2.
func (r ResponseAPDU) Bytes() []byte {
	buf := make([]byte, 0, len(r.data)+StatusWordLength)
	buf = append(buf, r.data...)
	return append(buf, r.status.SW1(), r.status.SW2())
}

// Hex returns the uppercase hex form of Bytes.
func (r ResponseAPDU) Hex() string {
	return EncodeHex(r.Bytes())
}

func (r ResponseAPDU) String() string {
	return fmt.Sprintf("Nr: %d | SW: %04X (%s)", len(r.data), uint16(r.status), r.status.Verbose())
}
