package iso7816

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// APDU (Application Protocol Data Unit) structures and encodings according to ISO/IEC 7816-3 and 7816-4.
//
// COMMAND APDU (C-APDU):
// A command consists of a mandatory Header (4 bytes) and an optional Body.
//
// 1. Header:
//   - CLA (Class): Security, Chaining, Logical Channel.
//   - INS (Instruction): The specific command to execute.
//   - P1, P2 (Parameters): Command modifiers.
//
// 2. Body:
//   - Lc (Length Command): Number of bytes in the data field.
//   - Data: The command payload.
//   - Le (Length Expected): Maximum number of bytes expected in the response.
//
// ENCODING CASES (ISO 7816-3):
// - Case 1: No Data, No Response (Header only).
// - Case 2: No Data, Response Expected (Header + Le).
// - Case 3: Data Present, No Response (Header + Lc + Data).
// - Case 4: Data Present, Response Expected (Header + Lc + Data + Le).
//
// LENGTH MODES:
//   - Short Length: Lc/Le encoded on 1 byte (Max 255/256).
//   - Extended Length: Lc/Le encoded on multiple bytes (Max 65535/65536).
//     Extended mode is triggered if Lc > 255 or Le > 256.
//
// The raw bytes are the canonical form of a CommandAPDU. Which of Lc and Le are
// present is decided by the total length alone; parsing only checks the
// header, and Case() reports CaseInvalid for bodies that fit no case.

// APDU Limits and Constants according to ISO 7816-3.
const (
	// HeaderLength is the size of the mandatory CLA INS P1 P2 header.
	HeaderLength = 4

	// StatusWordLength is the size of the SW1 SW2 trailer of a response.
	StatusWordLength = 2

	// MaxShortLc is the maximum data length (Nc) encodable in Short Length mode (1 byte).
	MaxShortLc = 255

	// MaxShortLe is the maximum expected response length (Ne) encodable in Short Length mode.
	// In Short mode, 0x00 encodes 256.
	MaxShortLe = 256

	// MaxExtendedLc is the theoretical limit for Lc in Extended mode (16-bit unsigned).
	MaxExtendedLc = 65535

	// MaxExtendedLe is the maximum Ne encodable in Extended Length mode.
	// In Extended mode, 0x0000 encodes 65536.
	MaxExtendedLe = 65536

	// MaxAPDUBufferSize defines a safe buffer limit for Extended APDUs.
	// Calculation: Header(4) + ExtLc(3) + MaxData(65535) + ExtLe(2) + Safety Margin(1).
	MaxAPDUBufferSize = 4 + 3 + MaxExtendedLc + 2 + 1
)

// Case is the ISO 7816-3 encoding case of a command body.
type Case int

const (
	CaseInvalid Case = iota
	Case1
	Case2Short
	Case3Short
	Case4Short
	Case2Extended
	Case3Extended
	Case4Extended
)

func (c Case) String() string {
	switch c {
	case Case1:
		return "Case 1"
	case Case2Short:
		return "Case 2 Short"
	case Case3Short:
		return "Case 3 Short"
	case Case4Short:
		return "Case 4 Short"
	case Case2Extended:
		return "Case 2 Extended"
	case Case3Extended:
		return "Case 3 Extended"
	case Case4Extended:
		return "Case 4 Extended"
	default:
		return "Invalid"
	}
}

// IsExtended reports whether the case uses extended length fields.
func (c Case) IsExtended() bool {
	return c >= Case2Extended
}

// CommandAPDU is an immutable command APDU held in its raw byte form.
// The zero value is not a valid command; obtain one from ParseCommandAPDU,
// ParseCommandAPDUHex or NewCommandAPDU.
type CommandAPDU struct {
	raw []byte
}

// ParseCommandAPDU validates raw and returns a command over a copy of it.
// Anything shorter than the 4-byte header fails with ErrMalformedCommand.
func ParseCommandAPDU(raw []byte) (CommandAPDU, error) {
	if len(raw) < HeaderLength {
		return CommandAPDU{}, fmt.Errorf("%w: length %d, header needs %d bytes", ErrMalformedCommand, len(raw), HeaderLength)
	}

	buf := make([]byte, len(raw))
	copy(buf, raw)
	return CommandAPDU{raw: buf}, nil
}

// ParseCommandAPDUHex decodes a hex string (two digits per byte, no
// separators, either case) and validates it like ParseCommandAPDU.
func ParseCommandAPDUHex(s string) (CommandAPDU, error) {
	raw, err := DecodeHex(s)
	if err != nil {
		return CommandAPDU{}, err
	}
	return ParseCommandAPDU(raw)
}

// MustParseCommandAPDUHex is ParseCommandAPDUHex for constant inputs; it panics on error.
func MustParseCommandAPDUHex(s string) CommandAPDU {
	c, err := ParseCommandAPDUHex(s)
	if err != nil {
		panic(fmt.Sprintf("invalid command APDU %q: %v", s, err))
	}
	return c
}

// NewCommandAPDU encodes a command from its fields. It automatically handles
// the selection between Short and Extended encoding based on the length of
// data (Nc) and the expected response length ne (0 means none).
func NewCommandAPDU(cla Class, ins Instruction, p1, p2 byte, data []byte, ne int) (CommandAPDU, error) {
	class, err := cla.Encode()
	if err != nil {
		return CommandAPDU{}, fmt.Errorf("failed to encode Class: %w", err)
	}

	raw, err := encodeAPDU([HeaderLength]byte{class, byte(ins.Raw), p1, p2}, data, ne)
	if err != nil {
		return CommandAPDU{}, err
	}
	return CommandAPDU{raw: raw}, nil
}

func encodeAPDU(header [HeaderLength]byte, data []byte, ne int) ([]byte, error) {
	nc := len(data)
	if nc > MaxExtendedLc {
		return nil, fmt.Errorf("data too long: %d bytes (max %d)", nc, MaxExtendedLc)
	}
	if ne < 0 || ne > MaxExtendedLe {
		return nil, fmt.Errorf("expected length %d out of range [0, %d]", ne, MaxExtendedLe)
	}

	// Determine encoding mode
	isExtended := nc > MaxShortLc || ne > MaxShortLe

	buf := make([]byte, 0, HeaderLength+3+nc+2)
	buf = append(buf, header[:]...)

	// Lc Field & Data Field
	if nc > 0 {
		if !isExtended {
			buf = append(buf, byte(nc))
		} else {
			buf = append(buf, 0x00, byte(nc>>8), byte(nc))
		}
		buf = append(buf, data...)
	}

	// Le Field
	if ne > 0 {
		if !isExtended {
			// 0x00 represents 256
			buf = append(buf, byte(ne))
		} else {
			// Without Lc, a leading 00 distinguishes an extended Le from a short Lc.
			if nc == 0 {
				buf = append(buf, 0x00)
			}
			// 0x0000 represents 65536
			buf = append(buf, byte(ne>>8), byte(ne))
		}
	}

	return buf, nil
}

// Bytes returns a copy of the canonical byte form.
func (c CommandAPDU) Bytes() []byte {
	buf := make([]byte, len(c.raw))
	copy(buf, c.raw)
	return buf
}

// Hex returns the uppercase hex form, two digits per byte, no separators.
func (c CommandAPDU) Hex() string {
	return EncodeHex(c.raw)
}

// Len returns the encoded length in bytes.
func (c CommandAPDU) Len() int {
	return len(c.raw)
}

// IsZero reports whether c is the zero value rather than a parsed command.
func (c CommandAPDU) IsZero() bool {
	return len(c.raw) == 0
}

// CLA returns the raw class byte.
func (c CommandAPDU) CLA() byte { return c.header(0) }

// INS returns the instruction byte.
func (c CommandAPDU) INS() InsCode { return InsCode(c.header(1)) }

// P1 returns the first parameter byte.
func (c CommandAPDU) P1() byte { return c.header(2) }

// P2 returns the second parameter byte.
func (c CommandAPDU) P2() byte { return c.header(3) }

func (c CommandAPDU) header(i int) byte {
	if len(c.raw) < HeaderLength {
		return 0
	}
	return c.raw[i]
}

// Class decodes the CLA byte.
func (c CommandAPDU) Class() (Class, error) {
	return NewClass(c.CLA())
}

// Case classifies the body according to ISO 7816-3 §12.1.3.
func (c CommandAPDU) Case() Case {
	kind, _, _ := c.decodeBody()
	return kind
}

// Data returns a copy of the command data field (Nc bytes), nil if absent or
// if the body fits no case.
func (c CommandAPDU) Data() []byte {
	_, data, _ := c.decodeBody()
	if data == nil {
		return nil
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out
}

// Ne returns the maximum number of response bytes expected, 0 if absent.
func (c CommandAPDU) Ne() int {
	_, _, ne := c.decodeBody()
	return ne
}

// WithNe returns the same command re-encoded with another expected length.
// The command body must be well formed.
func (c CommandAPDU) WithNe(ne int) (CommandAPDU, error) {
	kind, data, _ := c.decodeBody()
	if kind == CaseInvalid {
		return CommandAPDU{}, fmt.Errorf("%w: body of %d bytes fits no ISO 7816-3 case", ErrMalformedCommand, len(c.raw)-HeaderLength)
	}

	raw, err := encodeAPDU([HeaderLength]byte{c.raw[0], c.raw[1], c.raw[2], c.raw[3]}, data, ne)
	if err != nil {
		return CommandAPDU{}, err
	}
	return CommandAPDU{raw: raw}, nil
}

func (c CommandAPDU) decodeBody() (Case, []byte, int) {
	if len(c.raw) < HeaderLength {
		return CaseInvalid, nil, 0
	}

	body := c.raw[HeaderLength:]
	n := len(body)

	switch {
	case n == 0:
		return Case1, nil, 0

	case n == 1:
		return Case2Short, nil, shortLe(body[0])

	case body[0] != 0x00:
		lc := int(body[0])
		switch n {
		case 1 + lc:
			return Case3Short, body[1:], 0
		case 2 + lc:
			return Case4Short, body[1 : 1+lc], shortLe(body[n-1])
		}

	case n == 3:
		return Case2Extended, nil, extendedLe(body[1], body[2])

	case n > 3:
		lc := int(body[1])<<8 | int(body[2])
		if lc == 0 {
			break
		}
		switch n {
		case 3 + lc:
			return Case3Extended, body[3:], 0
		case 5 + lc:
			return Case4Extended, body[3 : 3+lc], extendedLe(body[n-2], body[n-1])
		}
	}

	return CaseInvalid, nil, 0
}

func shortLe(b byte) int {
	if b == 0 {
		return MaxShortLe
	}
	return int(b)
}

func extendedLe(hi, lo byte) int {
	le := int(hi)<<8 | int(lo)
	if le == 0 {
		return MaxExtendedLe
	}
	return le
}

// String returns a readable representation of the command meta-data.
func (c CommandAPDU) String() string {
	if c.IsZero() {
		return "<empty command>"
	}
	kind, data, ne := c.decodeBody()
	return fmt.Sprintf("%s | P1: %02X, P2: %02X | %s | Lc: %d | Le: %d",
		InstructionName(c.INS()), c.P1(), c.P2(), kind, len(data), ne)
}

// DecodeHex converts a hex string to bytes. The string must have an even
// length and contain only hex digits; anything else fails with
// ErrInvalidHexEncoding.
func DecodeHex(s string) ([]byte, error) {
	if len(s)%2 != 0 {
		return nil, fmt.Errorf("%w: odd length %d", ErrInvalidHexEncoding, len(s))
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidHexEncoding, err)
	}
	return raw, nil
}

// EncodeHex renders bytes as uppercase hex, two digits per byte.
func EncodeHex(b []byte) string {
	return strings.ToUpper(hex.EncodeToString(b))
}
