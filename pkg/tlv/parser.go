// Package tlv inspects BER-TLV (Basic Encoding Rules - Tag-Length-Value) data
// found in response APDUs. Decoding is done by github.com/moov-io/bertlv; this
// package looks values up and renders them for humans.
package tlv

import (
	"errors"
	"fmt"
	"strings"

	"github.com/moov-io/bertlv"
)

// ErrTagNotFound is returned by Find when no object carries the tag.
var ErrTagNotFound = errors.New("tag not found")

// Decode parses data into its top-level objects. Constructed objects carry
// their children in TLVs.
func Decode(data []byte) ([]bertlv.TLV, error) {
	packets, err := bertlv.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("bertlv decode failed: %w", err)
	}
	return packets, nil
}

// Find searches data depth first for tag (hex, e.g. "84" or "9F38") and
// returns the raw value of the first match. The value of a constructed object
// is its re-encoded children.
func Find(data []byte, tag string) ([]byte, error) {
	packets, err := Decode(data)
	if err != nil {
		return nil, err
	}
	want := strings.ToUpper(tag)
	if p, ok := find(packets, want); ok {
		return rawValue(p), nil
	}
	return nil, fmt.Errorf("%w: %s", ErrTagNotFound, want)
}

func find(packets []bertlv.TLV, tag string) (bertlv.TLV, bool) {
	for _, p := range packets {
		if strings.ToUpper(p.Tag) == tag {
			return p, true
		}
		if found, ok := find(p.TLVs, tag); ok {
			return found, true
		}
	}
	return bertlv.TLV{}, false
}

func rawValue(p bertlv.TLV) []byte {
	if len(p.TLVs) > 0 {
		if enc, err := bertlv.Encode(p.TLVs); err == nil {
			return enc
		}
	}
	return p.Value
}
