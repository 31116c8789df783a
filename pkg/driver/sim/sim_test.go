package sim

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gregLibert/cardchannel/pkg/pcsc"
)

func establish(t *testing.T, d *Driver) pcsc.Session {
	t.Helper()
	s, err := d.Establish()
	require.NoError(t, err)
	return s
}

func TestSession_ConnectNegotiation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		supported pcsc.Protocol
		preferred pcsc.Protocol
		want      pcsc.Protocol
		wantCode  pcsc.ErrorCode
	}{
		{name: "any prefers T=1", supported: pcsc.ProtocolAny, preferred: pcsc.ProtocolAny, want: pcsc.ProtocolT1},
		{name: "any falls back to T=0", supported: pcsc.ProtocolT0, preferred: pcsc.ProtocolAny, want: pcsc.ProtocolT0},
		{name: "explicit T=0", supported: pcsc.ProtocolAny, preferred: pcsc.ProtocolT0, want: pcsc.ProtocolT0},
		{name: "mismatch", supported: pcsc.ProtocolT0, preferred: pcsc.ProtocolT1, wantCode: pcsc.ProtocolMismatch},
		{name: "undefined preference", supported: pcsc.ProtocolAny, preferred: pcsc.ProtocolUndefined, wantCode: pcsc.InvalidParameter},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			d := New("R")
			d.SetProtocols("R", tt.supported)
			s := establish(t, d)

			got, err := s.Connect("R", pcsc.ShareShared, tt.preferred)
			if tt.wantCode != pcsc.Success {
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.wantCode)
				assert.Equal(t, 0, d.Holders("R"))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, pcsc.StateSpecific, s.Status("R"))
		})
	}
}

func TestSession_ConnectFailures(t *testing.T) {
	t.Parallel()

	d := New("R")
	s := establish(t, d)

	_, err := s.Connect("nope", pcsc.ShareShared, pcsc.ProtocolAny)
	assert.ErrorIs(t, err, pcsc.UnknownReader)

	d.RemoveCard("R")
	_, err = s.Connect("R", pcsc.ShareShared, pcsc.ProtocolAny)
	assert.ErrorIs(t, err, pcsc.NoSmartcard)
	assert.Equal(t, pcsc.StateAbsent, s.Status("R"))

	// direct mode does not need a card
	p, err := s.Connect("R", pcsc.ShareDirect, pcsc.ProtocolUndefined)
	require.NoError(t, err)
	assert.Equal(t, pcsc.ProtocolUndefined, p)
	require.NoError(t, s.Disconnect("R", pcsc.LeaveCard))

	d.InsertCard("R", nil)
	d.SetMute("R", true)
	_, err = s.Connect("R", pcsc.ShareShared, pcsc.ProtocolAny)
	assert.ErrorIs(t, err, pcsc.UnresponsiveCard)
	assert.Equal(t, pcsc.StateMute, s.Status("R"))
}

func TestSession_Sharing(t *testing.T) {
	t.Parallel()

	d := New("R")
	a, b := establish(t, d), establish(t, d)

	_, err := a.Connect("R", pcsc.ShareExclusive, pcsc.ProtocolT1)
	require.NoError(t, err)

	_, err = b.Connect("R", pcsc.ShareShared, pcsc.ProtocolT1)
	assert.ErrorIs(t, err, pcsc.SharingViolation)

	_, err = a.Connect("R", pcsc.ShareShared, pcsc.ProtocolT1)
	assert.ErrorIs(t, err, pcsc.SharingViolation, "one connection per reader per session")

	require.NoError(t, a.Disconnect("R", pcsc.LeaveCard))
	_, err = b.Connect("R", pcsc.ShareShared, pcsc.ProtocolT1)
	require.NoError(t, err)
	assert.Equal(t, 1, d.Holders("R"))
}

func TestSession_Transmit(t *testing.T) {
	t.Parallel()

	d := New("R")
	s := establish(t, d)

	_, err := s.Transmit("R", pcsc.NewIoControlDescriptor(pcsc.ProtocolT1), []byte{0x00, 0xA4, 0x04, 0x00})
	assert.ErrorIs(t, err, pcsc.InvalidHandle)

	p, err := s.Connect("R", pcsc.ShareShared, pcsc.ProtocolAny)
	require.NoError(t, err)

	resp, err := s.Transmit("R", pcsc.NewIoControlDescriptor(p), []byte{0x00, 0xA4, 0x04, 0x00})
	require.NoError(t, err)
	assert.Equal(t, []byte{0x90, 0x00}, resp)

	_, err = s.Transmit("R", pcsc.NewIoControlDescriptor(pcsc.ProtocolT0), []byte{0x00, 0xA4, 0x04, 0x00})
	assert.ErrorIs(t, err, pcsc.ProtocolMismatch)

	boom := errors.New("card fried")
	d.SetResponder(func(string, []byte) ([]byte, error) { return nil, boom })
	_, err = s.Transmit("R", pcsc.NewIoControlDescriptor(p), []byte{0x00, 0xB0, 0x00, 0x00})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, pcsc.UnknownError, pcsc.CodeOf(err))

	assert.Len(t, d.Sent("R"), 2, "rejected commands never reach the card")
	assert.Equal(t, 4, d.Calls(OpTransmit))

	d.RemoveCard("R")
	_, err = s.Transmit("R", pcsc.NewIoControlDescriptor(p), []byte{0x00, 0xB0, 0x00, 0x00})
	assert.ErrorIs(t, err, pcsc.RemovedCard)
}

func TestSession_ReconnectAndDisposition(t *testing.T) {
	t.Parallel()

	d := New("R")
	s := establish(t, d)

	_, err := s.Reconnect("R", pcsc.ShareShared, pcsc.ProtocolT0, pcsc.ResetCard)
	assert.ErrorIs(t, err, pcsc.InvalidHandle)

	_, err = s.Connect("R", pcsc.ShareShared, pcsc.ProtocolT1)
	require.NoError(t, err)

	p, err := s.Reconnect("R", pcsc.ShareShared, pcsc.ProtocolT0, pcsc.ResetCard)
	require.NoError(t, err)
	assert.Equal(t, pcsc.ProtocolT0, p)
	assert.Equal(t, 1, d.Resets("R"))

	require.NoError(t, s.Disconnect("R", pcsc.EjectCard))
	assert.Equal(t, pcsc.StateAbsent, s.Status("R"))

	assert.ErrorIs(t, s.Disconnect("R", pcsc.LeaveCard), pcsc.InvalidHandle)
}

func TestSession_InjectedDisconnectFailureStillDrops(t *testing.T) {
	t.Parallel()

	d := New("R")
	s := establish(t, d)
	_, err := s.Connect("R", pcsc.ShareShared, pcsc.ProtocolT1)
	require.NoError(t, err)

	d.Fail(OpDisconnect, pcsc.ReaderUnavailable)
	err = s.Disconnect("R", pcsc.LeaveCard)
	assert.ErrorIs(t, err, pcsc.ReaderUnavailable)
	assert.Equal(t, 0, d.Holders("R"))

	d.Clear(OpDisconnect)
	_, err = s.Connect("R", pcsc.ShareShared, pcsc.ProtocolT1)
	assert.NoError(t, err)
}

func TestSession_GetAttrib(t *testing.T) {
	t.Parallel()

	d := New("R")
	s := establish(t, d)
	_, err := s.Connect("R", pcsc.ShareShared, pcsc.ProtocolT1)
	require.NoError(t, err)

	buf := make([]byte, 64)
	n, err := s.GetAttrib("R", pcsc.AttrATRString, buf)
	require.NoError(t, err)
	assert.Equal(t, DefaultATR, buf[:n])

	n, err = s.GetAttrib("R", pcsc.AttrATRString, make([]byte, 4))
	assert.ErrorIs(t, err, pcsc.InsufficientBuffer)
	assert.Equal(t, len(DefaultATR), n)

	n, err = s.GetAttrib("R", pcsc.AttrCurrentProtocolType, buf)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x02, 0x00, 0x00, 0x00}, buf[:n])

	d.SetAttrib("R", pcsc.AttrVendorName, []byte("ACME"))
	n, err = s.GetAttrib("R", pcsc.AttrVendorName, buf)
	require.NoError(t, err)
	assert.Equal(t, "ACME", string(buf[:n]))

	_, err = s.GetAttrib("R", pcsc.AttrChannelID, buf)
	assert.ErrorIs(t, err, pcsc.NotSupported)
}

func TestSession_ListReadersAndRelease(t *testing.T) {
	t.Parallel()

	d := New("B", "A")
	s := establish(t, d)

	names, err := s.ListReaders()
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, names)

	_, err = s.Connect("A", pcsc.ShareShared, pcsc.ProtocolT1)
	require.NoError(t, err)

	require.NoError(t, s.Release())
	assert.Equal(t, 0, d.Holders("A"), "release drops open connections")
	assert.ErrorIs(t, s.Release(), pcsc.InvalidHandle)

	_, err = s.ListReaders()
	assert.ErrorIs(t, err, pcsc.InvalidHandle)

	empty := establish(t, New())
	_, err = empty.ListReaders()
	assert.ErrorIs(t, err, pcsc.NoReadersAvailable)
}

func TestRegisteredDriver(t *testing.T) {
	t.Parallel()

	drv, err := pcsc.Lookup("sim")
	require.NoError(t, err)
	s, err := drv.Establish()
	require.NoError(t, err)

	names, err := s.ListReaders()
	require.NoError(t, err)
	assert.Equal(t, []string{DefaultReader}, names)
}
