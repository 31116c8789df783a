package tlv

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// Hex joins hex fragments such as "6F 12" and "84 07 A0..." into bytes.
// Whitespace is ignored. It panics on bad input and is meant for fixtures.
func Hex(parts ...string) []byte {
	clean := strings.Join(strings.Fields(strings.Join(parts, " ")), "")

	data, err := hex.DecodeString(clean)
	if err != nil {
		panic(fmt.Sprintf("invalid input '%s': %v", clean, err))
	}
	return data
}
