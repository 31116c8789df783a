package tlv

import (
	"fmt"
	"strings"

	"github.com/moov-io/bertlv"
)

// Interindustry tags from ISO/IEC 7816-4 that show up in SELECT answers.
var tagNames = map[string]string{
	"4F":   "Application identifier",
	"50":   "Application label",
	"53":   "Discretionary data",
	"5F2D": "Language preference",
	"61":   "Application template",
	"62":   "File control parameters",
	"64":   "File management data",
	"6F":   "File control information",
	"73":   "Discretionary template",
	"80":   "Data size",
	"81":   "Total file size",
	"82":   "File descriptor",
	"83":   "File identifier",
	"84":   "DF name",
	"85":   "Proprietary information",
	"86":   "Security attributes",
	"87":   "Extended FCI file identifier",
	"88":   "Short EF identifier",
	"8A":   "Life cycle status",
	"8C":   "Security attributes (compact)",
	"A5":   "Proprietary template",
	"AB":   "Security attributes (expanded)",
	"AC":   "Cryptographic mechanism",
	"BF0C": "Discretionary data template",
}

// TagName returns the ISO/IEC 7816-4 name of tag, or "" when unknown.
func TagName(tag string) string {
	return tagNames[strings.ToUpper(tag)]
}

// Describe renders data as an indented tree, one object per line:
//
//	6F (18) File control information
//	  84 (7) DF name: A0000000031010
//	  A5 (7) Proprietary template
//	    50 (5) Application label: 5649534100 ("VISA.")
//
// Lines are joined with newlines, without a trailing one.
func Describe(data []byte) (string, error) {
	packets, err := Decode(data)
	if err != nil {
		return "", err
	}
	var lines []string
	describe(&lines, packets, 0)
	return strings.Join(lines, "\n"), nil
}

func describe(lines *[]string, packets []bertlv.TLV, depth int) {
	indent := strings.Repeat("  ", depth)
	for _, p := range packets {
		tag := strings.ToUpper(p.Tag)
		head := fmt.Sprintf("%s%s (%d)", indent, tag, len(rawValue(p)))
		if name := TagName(tag); name != "" {
			head += " " + name
		}

		if len(p.TLVs) > 0 {
			*lines = append(*lines, head)
			describe(lines, p.TLVs, depth+1)
			continue
		}
		*lines = append(*lines, head+": "+formatValue(p.Value))
	}
}

// formatValue prints bytes as hex, followed by their ASCII form when most
// of them are printable.
func formatValue(data []byte) string {
	if len(data) == 0 {
		return "-"
	}
	printable := 0
	for _, b := range data {
		if b >= 32 && b <= 126 {
			printable++
		}
	}
	if len(data) >= 3 && printable*4 >= len(data)*3 {
		return fmt.Sprintf("%X (%q)", data, MakeSafeASCII(data))
	}
	return fmt.Sprintf("%X", data)
}

// MakeSafeASCII replaces every non-printable byte with a dot.
func MakeSafeASCII(data []byte) string {
	return strings.Map(func(r rune) rune {
		if r >= 32 && r <= 126 {
			return r
		}
		return '.'
	}, string(data))
}
