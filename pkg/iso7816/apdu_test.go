package iso7816

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestNewCommandAPDU_Encoding(t *testing.T) {
	insSelect := MustInstruction(INS_SELECT)
	insRead := MustInstruction(INS_READ_BINARY)

	tests := []struct {
		name     string
		ins      Instruction
		p1, p2   byte
		data     []byte
		ne       int
		expected string
		wantCase Case
	}{
		{
			name:     "Case 1: Header Only",
			ins:      insSelect,
			p1:       0x01,
			p2:       0x02,
			expected: "00A40102",
			wantCase: Case1,
		},
		{
			name:     "Case 3 Short: Lc and data",
			ins:      insSelect,
			p1:       0x04,
			data:     []byte{0xA0, 0x00},
			expected: "00A4040002A000",
			wantCase: Case3Short,
		},
		{
			name: "Case 2 Short: Le=MaxShortLe (256)",
			ins:  insRead,
			ne:   MaxShortLe,
			// Le=00 means 256 in Short mode
			expected: "00B0000000",
			wantCase: Case2Short,
		},
		{
			name:     "Case 4 Short: Data and Le",
			ins:      insSelect,
			data:     []byte{0x01},
			ne:       10,
			expected: "00A4000001010A",
			wantCase: Case4Short,
		},
		{
			name: "Case 3 Extended: Data > MaxShortLc",
			ins:  insSelect,
			data: make([]byte, 260),
			// 00 flag + 0104 (260)
			expected: "00A40000000104" + strings.Repeat("00", 260),
			wantCase: Case3Extended,
		},
		{
			name: "Case 2 Extended: Le=MaxExtendedLe (65536)",
			ins:  insRead,
			ne:   MaxExtendedLe,
			// 00 flag + 0000 for 65536
			expected: "00B00000000000",
			wantCase: Case2Extended,
		},
		{
			name:     "Case 4 Extended: short data, long Le",
			ins:      insRead,
			data:     []byte{0xAA},
			ne:       300,
			expected: "00B00000000001AA012C",
			wantCase: Case4Extended,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, err := NewCommandAPDU(BasicClass, tt.ins, tt.p1, tt.p2, tt.data, tt.ne)
			if err != nil {
				t.Fatalf("Encoding failed: %v", err)
			}
			if got := cmd.Hex(); got != tt.expected {
				t.Errorf("Mismatch (-want +got):\n%s", cmp.Diff(tt.expected, got))
			}
			if got := cmd.Case(); got != tt.wantCase {
				t.Errorf("Case() = %s, want %s", got, tt.wantCase)
			}
			if got := cmd.Ne(); got != tt.ne {
				t.Errorf("Ne() = %d, want %d", got, tt.ne)
			}
			if !bytes.Equal(cmd.Data(), tt.data) && len(tt.data) > 0 {
				t.Errorf("Data() = %X, want %X", cmd.Data(), tt.data)
			}
		})
	}
}

func TestNewCommandAPDU_Limits(t *testing.T) {
	ins := MustInstruction(INS_UPDATE_BINARY)

	if _, err := NewCommandAPDU(BasicClass, ins, 0, 0, make([]byte, MaxExtendedLc+1), 0); err == nil {
		t.Error("expected error for data above MaxExtendedLc")
	}
	if _, err := NewCommandAPDU(BasicClass, ins, 0, 0, nil, MaxExtendedLe+1); err == nil {
		t.Error("expected error for Ne above MaxExtendedLe")
	}
	if _, err := NewCommandAPDU(BasicClass, ins, 0, 0, nil, -1); err == nil {
		t.Error("expected error for negative Ne")
	}
	if _, err := NewCommandAPDU(Class{Channel: 25}, ins, 0, 0, nil, 0); err == nil {
		t.Error("expected error for unencodable class")
	}
}

func TestParseCommandAPDU(t *testing.T) {
	tests := []struct {
		name    string
		raw     []byte
		wantErr bool
	}{
		{name: "empty", raw: nil, wantErr: true},
		{name: "1 byte", raw: []byte{0x00}, wantErr: true},
		{name: "2 bytes", raw: []byte{0x00, 0xA4}, wantErr: true},
		{name: "3 bytes", raw: []byte{0x00, 0xA4, 0x04}, wantErr: true},
		{name: "header only", raw: []byte{0x00, 0xA4, 0x04, 0x00}},
		{name: "inconsistent body still parses", raw: []byte{0x00, 0xA4, 0x04, 0x00, 0x05, 0x01}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, err := ParseCommandAPDU(tt.raw)
			if tt.wantErr {
				if !errors.Is(err, ErrMalformedCommand) {
					t.Fatalf("error = %v, want ErrMalformedCommand", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !bytes.Equal(cmd.Bytes(), tt.raw) {
				t.Errorf("Bytes() = %X, want %X", cmd.Bytes(), tt.raw)
			}
		})
	}
}

func TestParseCommandAPDU_CopiesInput(t *testing.T) {
	raw := []byte{0x00, 0xA4, 0x04, 0x00}
	cmd, err := ParseCommandAPDU(raw)
	if err != nil {
		t.Fatal(err)
	}

	raw[1] = 0xB0
	if cmd.INS() != INS_SELECT {
		t.Errorf("command aliased caller buffer: INS = %02X", byte(cmd.INS()))
	}

	out := cmd.Bytes()
	out[0] = 0x80
	if cmd.CLA() != 0x00 {
		t.Error("Bytes() exposed internal buffer")
	}
}

func TestParseCommandAPDUHex(t *testing.T) {
	tests := []struct {
		in      string
		wantHex string
		wantErr error
	}{
		{in: "00A4040000", wantHex: "00A4040000"},
		{in: "00a4040000", wantHex: "00A4040000"},
		{in: "00A404000", wantErr: ErrInvalidHexEncoding},
		{in: "00A40400ZZ", wantErr: ErrInvalidHexEncoding},
		{in: "00 A4 04 00", wantErr: ErrInvalidHexEncoding},
		{in: "00A404", wantErr: ErrMalformedCommand},
		{in: "", wantErr: ErrMalformedCommand},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			cmd, err := ParseCommandAPDUHex(tt.in)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := cmd.Hex(); got != tt.wantHex {
				t.Errorf("Hex() = %s, want %s", got, tt.wantHex)
			}
		})
	}
}

func TestCommandAPDU_Case(t *testing.T) {
	tests := []struct {
		hex  string
		want Case
		ne   int
		nc   int
	}{
		{hex: "00A40400", want: Case1},
		{hex: "00B0000010", want: Case2Short, ne: 16},
		{hex: "00A4040002A000", want: Case3Short, nc: 2},
		{hex: "00A4040002A00000", want: Case4Short, nc: 2, ne: 256},
		{hex: "00B0000000FFFF", want: Case2Extended, ne: 65535},
		{hex: "00D600000000020102030405", want: CaseInvalid},
		{hex: "00D60000000002AABB", want: Case3Extended, nc: 2},
		{hex: "00D60000000002AABB0000", want: Case4Extended, nc: 2, ne: 65536},
		{hex: "00A4040005A000", want: CaseInvalid},
		{hex: "00A404000000", want: CaseInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.hex, func(t *testing.T) {
			cmd := MustParseCommandAPDUHex(tt.hex)
			if got := cmd.Case(); got != tt.want {
				t.Errorf("Case() = %s, want %s", got, tt.want)
			}
			if got := cmd.Ne(); got != tt.ne {
				t.Errorf("Ne() = %d, want %d", got, tt.ne)
			}
			if got := len(cmd.Data()); got != tt.nc {
				t.Errorf("len(Data()) = %d, want %d", got, tt.nc)
			}
		})
	}
}

func TestCommandAPDU_WithNe(t *testing.T) {
	cmd := MustParseCommandAPDUHex("00B0000000")

	resized, err := cmd.WithNe(0x1C)
	if err != nil {
		t.Fatal(err)
	}
	if got := resized.Hex(); got != "00B000001C" {
		t.Errorf("WithNe(0x1C) = %s", got)
	}
	if cmd.Hex() != "00B0000000" {
		t.Error("WithNe mutated the receiver")
	}

	withData := MustParseCommandAPDUHex("00A4040002A000")
	resized, err = withData.WithNe(256)
	if err != nil {
		t.Fatal(err)
	}
	if got := resized.Hex(); got != "00A4040002A00000" {
		t.Errorf("WithNe(256) = %s", got)
	}

	if _, err := MustParseCommandAPDUHex("00A4040005A000").WithNe(1); !errors.Is(err, ErrMalformedCommand) {
		t.Errorf("WithNe on invalid body: error = %v", err)
	}
}

func TestCommandAPDU_HexRoundTrip(t *testing.T) {
	for _, s := range []string{"00A40400", "80CA9F7F00", "00A4040007A000000004101000"} {
		cmd := MustParseCommandAPDUHex(s)
		again, err := ParseCommandAPDU(cmd.Bytes())
		if err != nil {
			t.Fatal(err)
		}
		if again.Hex() != s {
			t.Errorf("round trip %s gave %s", s, again.Hex())
		}
	}
}

// Any byte string of at least a header survives bytes -> hex -> bytes.
func FuzzParseCommandAPDU(f *testing.F) {
	for _, seed := range [][]byte{
		nil,
		{0x00},
		{0x00, 0xA4},
		{0x00, 0xA4, 0x04, 0x00},
		{0x80, 0xCA, 0x9F, 0x7F, 0x00},
		{0x00, 0xA4, 0x04, 0x00, 0x05, 0x01},
		{0x00, 0xB0, 0x00, 0x00, 0x00, 0x01, 0x00},
	} {
		f.Add(seed)
	}

	f.Fuzz(func(t *testing.T, raw []byte) {
		cmd, err := ParseCommandAPDU(raw)
		if len(raw) < HeaderLength {
			if !errors.Is(err, ErrMalformedCommand) {
				t.Fatalf("ParseCommandAPDU(%X) error = %v, want ErrMalformedCommand", raw, err)
			}
			return
		}
		if err != nil {
			t.Fatalf("ParseCommandAPDU(%X): %v", raw, err)
		}
		if !bytes.Equal(cmd.Bytes(), raw) {
			t.Fatalf("Bytes() = %X, want %X", cmd.Bytes(), raw)
		}

		again, err := ParseCommandAPDUHex(cmd.Hex())
		if err != nil {
			t.Fatalf("ParseCommandAPDUHex(%s): %v", cmd.Hex(), err)
		}
		if !bytes.Equal(again.Bytes(), raw) {
			t.Errorf("hex round trip gave %X, want %X", again.Bytes(), raw)
		}
	})
}

// A valid hex string comes back from Hex() upper-cased and otherwise unchanged.
func FuzzCommandAPDUHex(f *testing.F) {
	for _, seed := range []string{"", "0", "00", "00a4", "00A40400", "80ca9f7f00", "00A40400ZZ", "00 A4 04 00"} {
		f.Add(seed)
	}

	f.Fuzz(func(t *testing.T, s string) {
		cmd, err := ParseCommandAPDUHex(s)
		if err != nil {
			if !errors.Is(err, ErrInvalidHexEncoding) && !errors.Is(err, ErrMalformedCommand) {
				t.Fatalf("ParseCommandAPDUHex(%q) error = %v", s, err)
			}
			return
		}
		if got := cmd.Hex(); got != strings.ToUpper(s) {
			t.Errorf("Hex() = %s, want %s", got, strings.ToUpper(s))
		}
	})
}

func TestCommandAPDU_String(t *testing.T) {
	got := MustParseCommandAPDUHex("00A4040002A00000").String()
	for _, part := range []string{"SELECT", "P1: 04", "Case 4 Short", "Lc: 2", "Le: 256"} {
		if !strings.Contains(got, part) {
			t.Errorf("String() = %q; want containing %q", got, part)
		}
	}

	if got := (CommandAPDU{}).String(); got != "<empty command>" {
		t.Errorf("zero String() = %q", got)
	}
}
