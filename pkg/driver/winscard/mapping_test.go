//go:build cgo || windows

package winscard

import (
	"errors"
	"fmt"
	"testing"

	"github.com/ebfe/scard"
	"github.com/stretchr/testify/assert"

	"github.com/gregLibert/cardchannel/pkg/pcsc"
)

func TestCodeOf(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		want pcsc.ErrorCode
	}{
		{nil, pcsc.Success},
		{scard.Error(0x8010000C), pcsc.NoSmartcard},
		{scard.Error(0x80100069), pcsc.RemovedCard},
		{scard.Error(0x80100068), pcsc.CardReset},
		{scard.Error(0x8010000B), pcsc.SharingViolation},
		{fmt.Errorf("wrapped: %w", scard.Error(0x8010001D)), pcsc.NoService},
		{scard.Error(0x80100001), pcsc.UnknownError},
		{errors.New("plain"), pcsc.UnknownError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, codeOf(tt.err), "%v", tt.err)
	}
}

func TestWrap(t *testing.T) {
	t.Parallel()

	assert.NoError(t, wrap("connect", "R", nil))

	err := wrap("connect", "R", scard.Error(0x8010000C))
	assert.ErrorIs(t, err, pcsc.NoSmartcard)
	assert.ErrorIs(t, err, scard.Error(0x8010000C))
	assert.Contains(t, err.Error(), `connect "R"`)
}

func TestProtocolMapping(t *testing.T) {
	t.Parallel()

	assert.Equal(t, scard.ProtocolT0|scard.ProtocolT1, toProtocol(pcsc.ProtocolAny))
	assert.Equal(t, scard.Protocol(0), toProtocol(pcsc.ProtocolUndefined))
	assert.Equal(t, rawProtocol, toProtocol(pcsc.ProtocolRaw))

	for _, p := range []pcsc.Protocol{pcsc.ProtocolT0, pcsc.ProtocolT1, pcsc.ProtocolRaw} {
		assert.Equal(t, p, fromProtocol(toProtocol(p)), p.String())
	}
	assert.Equal(t, pcsc.ProtocolUndefined, fromProtocol(scard.ProtocolT0|scard.ProtocolT1))
}

func TestModeMapping(t *testing.T) {
	t.Parallel()

	assert.Equal(t, scard.ShareExclusive, toShareMode(pcsc.ShareExclusive))
	assert.Equal(t, scard.ShareShared, toShareMode(pcsc.ShareShared))
	assert.Equal(t, scard.ShareDirect, toShareMode(pcsc.ShareDirect))

	assert.Equal(t, scard.LeaveCard, toDisposition(pcsc.LeaveCard))
	assert.Equal(t, scard.ResetCard, toDisposition(pcsc.ResetCard))
	assert.Equal(t, scard.UnpowerCard, toDisposition(pcsc.UnpowerCard))
	assert.Equal(t, scard.EjectCard, toDisposition(pcsc.EjectCard))
}

func TestFromState(t *testing.T) {
	t.Parallel()

	tests := []struct {
		raw     uint32
		windows bool
		want    pcsc.CardState
	}{
		{6, true, pcsc.StateSpecific},
		{4, true, pcsc.StatePowered},
		{1, true, pcsc.StateAbsent},
		{0, true, pcsc.StateUnknown},
		// pcsc-lite reports cumulative flags
		{0x0040 | 0x0010 | 0x0004, false, pcsc.StateSpecific},
		{0x0020 | 0x0010 | 0x0004, false, pcsc.StateNegotiable},
		{0x0004, false, pcsc.StatePresent},
		{0x0002, false, pcsc.StateAbsent},
		{0x0001, false, pcsc.StateUnknown},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, fromState(tt.raw, tt.windows), "raw=%#x windows=%v", tt.raw, tt.windows)
	}
}
