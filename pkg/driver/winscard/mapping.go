//go:build cgo || windows

package winscard

import (
	"errors"
	"runtime"

	"github.com/ebfe/scard"

	"github.com/gregLibert/cardchannel/pkg/bits"
	"github.com/gregLibert/cardchannel/pkg/pcsc"
)

// codeOf classifies an error returned by scard.
func codeOf(err error) pcsc.ErrorCode {
	if err == nil {
		return pcsc.Success
	}
	var se scard.Error
	if errors.As(err, &se) {
		return pcsc.FromReturnValue(uint32(se))
	}
	return pcsc.UnknownError
}

func wrap(op, reader string, err error) error {
	if err == nil {
		return nil
	}
	return pcsc.NewError(op, reader, codeOf(err), err)
}

// WinSCard numbers RAW as 0x10000 where pcsc-lite uses 4.
var rawProtocol = func() scard.Protocol {
	if runtime.GOOS == "windows" {
		return scard.Protocol(0x00010000)
	}
	return scard.Protocol(0x00000004)
}()

func toProtocol(p pcsc.Protocol) scard.Protocol {
	var out scard.Protocol
	if p&pcsc.ProtocolT0 != 0 {
		out |= scard.ProtocolT0
	}
	if p&pcsc.ProtocolT1 != 0 {
		out |= scard.ProtocolT1
	}
	if p&pcsc.ProtocolRaw != 0 {
		out |= rawProtocol
	}
	return out
}

func fromProtocol(p scard.Protocol) pcsc.Protocol {
	switch p {
	case scard.ProtocolT0:
		return pcsc.ProtocolT0
	case scard.ProtocolT1:
		return pcsc.ProtocolT1
	case rawProtocol:
		return pcsc.ProtocolRaw
	default:
		return pcsc.ProtocolUndefined
	}
}

func toShareMode(m pcsc.ShareMode) scard.ShareMode {
	switch m {
	case pcsc.ShareExclusive:
		return scard.ShareExclusive
	case pcsc.ShareDirect:
		return scard.ShareDirect
	default:
		return scard.ShareShared
	}
}

func toDisposition(d pcsc.Disposition) scard.Disposition {
	switch d {
	case pcsc.ResetCard:
		return scard.ResetCard
	case pcsc.UnpowerCard:
		return scard.UnpowerCard
	case pcsc.EjectCard:
		return scard.EjectCard
	default:
		return scard.LeaveCard
	}
}

// SCardStatus reports a plain enum on Windows and a bitmask in pcsc-lite.
// The checks run from the most to the least advanced state so both
// encodings resolve the same way.
var (
	windowsStates = []struct {
		value uint32
		state pcsc.CardState
	}{
		{6, pcsc.StateSpecific},
		{5, pcsc.StateNegotiable},
		{4, pcsc.StatePowered},
		{3, pcsc.StateSwallowed},
		{2, pcsc.StatePresent},
		{1, pcsc.StateAbsent},
	}
	pcscliteStates = []struct {
		value uint32
		state pcsc.CardState
	}{
		{0x0040, pcsc.StateSpecific},
		{0x0020, pcsc.StateNegotiable},
		{0x0010, pcsc.StatePowered},
		{0x0008, pcsc.StateSwallowed},
		{0x0004, pcsc.StatePresent},
		{0x0002, pcsc.StateAbsent},
	}
)

func fromState(raw uint32, windows bool) pcsc.CardState {
	if windows {
		for _, s := range windowsStates {
			if raw == s.value {
				return s.state
			}
		}
		return pcsc.StateUnknown
	}
	for _, s := range pcscliteStates {
		if bits.HasFlags(raw, s.value) {
			return s.state
		}
	}
	return pcsc.StateUnknown
}
