package tlv

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestDescribe(t *testing.T) {
	tests := []struct {
		name          string
		input         []byte
		expectedLines []string
	}{
		{
			name: "Nested FCI",
			input: Hex(
				"6F 12",
				"84 07 A0000000031010",
				"A5 07 50 05 5649534100",
			),
			expectedLines: []string{
				"6F (18) File control information",
				"  84 (7) DF name: A0000000031010",
				"  A5 (7) Proprietary template",
				`    50 (5) Application label: 5649534100 ("VISA.")`,
			},
		},
		{
			name:  "Flat With Unknown Tag",
			input: Hex("83 02 3F00", "DF01 01 BB"),
			expectedLines: []string{
				"83 (2) File identifier: 3F00",
				"DF01 (1): BB",
			},
		},
		{
			name:          "Empty Value",
			input:         Hex("88 00"),
			expectedLines: []string{"88 (0) Short EF identifier: -"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Describe(tt.input)
			if err != nil {
				t.Fatalf("Describe() error = %v", err)
			}
			if diff := cmp.Diff(tt.expectedLines, strings.Split(got, "\n")); diff != "" {
				t.Errorf("Mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDescribe_Truncated(t *testing.T) {
	if _, err := Describe(Hex("84 05 A000")); err == nil {
		t.Error("Describe() expected error on truncated value")
	}
}

func TestTagName(t *testing.T) {
	if got := TagName("bf0c"); got != "Discretionary data template" {
		t.Errorf("TagName(bf0c) = %q", got)
	}
	if got := TagName("DF01"); got != "" {
		t.Errorf("TagName(DF01) = %q, want empty", got)
	}
}

func TestMakeSafeASCII(t *testing.T) {
	input := []byte{0x41, 0x42, 0x00, 0x1F, 0x7F, 0x43} // AB, null, US, DEL, C
	want := "AB...C"                                    // 0x7F (127) is > 126, so it becomes dot

	got := MakeSafeASCII(input)
	if got != want {
		t.Errorf("MakeSafeASCII() = %q, want %q", got, want)
	}
}
