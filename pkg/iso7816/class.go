package iso7816

import (
	"fmt"

	"github.com/gregLibert/cardchannel/pkg/bits"
)

// The CLA byte (ISO/IEC 7816-4 §5.4.1) carries chaining, secure messaging and
// the logical channel.
//
//	b8      1 = proprietary class, other bits opaque
//	b7      0 = first interindustry (channels 0-3), 1 = further (channels 4-19)
//	b5      command chaining
//	first:  b4-b3 secure messaging, b2-b1 channel
//	further: b6 secure messaging, b4-b1 channel minus 4

// SecureMessaging defines the security level applied to the APDU.
type SecureMessaging int

const (
	SMNone         SecureMessaging = iota // no SM or no indication
	SMProprietary                         // first interindustry only
	SMHeaderNoProc                        // ISO SM, header not processed
	SMHeaderAuth                          // ISO SM, header authenticated; first interindustry only
)

func (sm SecureMessaging) String() string {
	switch sm {
	case SMNone:
		return "None"
	case SMProprietary:
		return "Proprietary"
	case SMHeaderNoProc:
		return "ISO (Header not processed)"
	case SMHeaderAuth:
		return "ISO (Header authenticated)"
	default:
		return fmt.Sprintf("SecureMessaging(%d)", int(sm))
	}
}

// MaxLogicalChannel is the highest channel addressable through the CLA byte.
const MaxLogicalChannel = 19

// Class is a decoded CLA byte.
type Class struct {
	Raw             byte
	IsProprietary   bool
	IsChained       bool
	SecureMessaging SecureMessaging
	Channel         uint8
}

// BasicClass is CLA 00: interindustry, basic channel, no SM, no chaining.
var BasicClass = Class{}

// NewClass decodes a raw CLA byte. 0xFF is reserved for PPS and rejected.
func NewClass(cla byte) (Class, error) {
	if cla == 0xFF {
		return Class{}, fmt.Errorf("invalid CLA value: 0xFF is reserved")
	}

	c := Class{Raw: cla}
	if bits.IsSet(cla, 8) {
		c.IsProprietary = true
		return c, nil
	}

	c.IsChained = bits.IsSet(cla, 5)
	if bits.IsSet(cla, 7) {
		if bits.IsSet(cla, 6) {
			c.SecureMessaging = SMHeaderNoProc
		}
		c.Channel = bits.GetRange(cla, 4, 1) + 4
	} else {
		c.SecureMessaging = SecureMessaging(bits.GetRange(cla, 4, 3))
		c.Channel = bits.GetRange(cla, 2, 1)
	}
	return c, nil
}

// NewInterindustryClass builds an interindustry class, picking the first or
// further encoding from the channel number.
func NewInterindustryClass(chained bool, sm SecureMessaging, channel uint8) (Class, error) {
	c := Class{IsChained: chained, SecureMessaging: sm, Channel: channel}
	raw, err := c.Encode()
	if err != nil {
		return Class{}, err
	}
	c.Raw = raw
	return c, nil
}

// Encode returns the CLA byte for c.
func (c Class) Encode() (byte, error) {
	if c.IsProprietary {
		return c.Raw, nil
	}
	if c.Channel > MaxLogicalChannel {
		return 0, fmt.Errorf("channel %d out of range (max %d)", c.Channel, MaxLogicalChannel)
	}
	if c.SecureMessaging < SMNone || c.SecureMessaging > SMHeaderAuth {
		return 0, fmt.Errorf("unknown secure messaging indicator %d", c.SecureMessaging)
	}

	var res byte
	if c.IsChained {
		res = bits.Set(res, 5)
	}

	if c.Channel <= 3 {
		res = bits.SetRange(res, 4, 3, byte(c.SecureMessaging))
		return bits.SetRange(res, 2, 1, c.Channel), nil
	}

	// Further interindustry only has one SM bit.
	switch c.SecureMessaging {
	case SMProprietary, SMHeaderAuth:
		return 0, fmt.Errorf("SM indicator %s not supported for channels 4-%d", c.SecureMessaging, MaxLogicalChannel)
	case SMHeaderNoProc:
		res = bits.Set(res, 6)
	}
	res = bits.Set(res, 7)
	return bits.SetRange(res, 4, 1, c.Channel-4), nil
}

// WithChaining returns a copy of c with the chaining bit set to chained.
func (c Class) WithChaining(chained bool) Class {
	c.IsChained = chained
	if c.IsProprietary {
		return c
	}
	if raw, err := c.Encode(); err == nil {
		c.Raw = raw
	}
	return c
}

// Verbose returns a human-readable description of the CLA byte configuration.
func (c Class) Verbose() string {
	if c.IsProprietary {
		return fmt.Sprintf("Class: Proprietary (0x%02X)", c.Raw)
	}

	rangeName := "First Interindustry (Ch 0-3)"
	if c.Channel >= 4 {
		rangeName = "Further Interindustry (Ch 4-19)"
	}

	chaining := "Last or only command"
	if c.IsChained {
		chaining = "More commands follow (Chaining)"
	}

	return fmt.Sprintf("Range: %s\nChaining: %s\nSecure Messaging: %s\nLogical Channel: %d",
		rangeName, chaining, c.SecureMessaging, c.Channel)
}
