//go:build !windows

package pcsclite

import (
	"encoding/binary"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	libpcsc "github.com/gballet/go-libpcsclite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gregLibert/cardchannel/pkg/pcsc"
)

const (
	rvUnknownReader = 0x80100009
	rvNoSmartcard   = 0x8010000C
	rvProtoMismatch = 0x8010000F
	rvInvalidHandle = 0x80100003
	rvRemovedCard   = 0x80100069
)

// daemon answers the subset of the pcscd socket protocol the wire client
// speaks. cards maps a reader to the protocols its card accepts; a reader
// missing from cards is empty.
type daemon struct {
	readers []string

	mu       sync.Mutex
	cards    map[string]pcsc.Protocol
	handles  map[uint32]string
	next     uint32
	connects []uint32
	sendPCI  []uint32
}

func newDaemon(readers []string, cards map[string]pcsc.Protocol) *daemon {
	return &daemon{readers: readers, cards: cards, handles: make(map[uint32]string)}
}

// start listens on a fresh socket and returns a driver for it.
func (d *daemon) start(t *testing.T) *Driver {
	t.Helper()

	// keep the path short, sockets are limited to ~100 bytes
	dir, err := os.MkdirTemp("", "pcscd")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })

	path := filepath.Join(dir, "pcscd.comm")
	l, err := net.Listen("unix", path)
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })

	go func() {
		for {
			conn, err := l.Accept()
			if err != nil {
				return
			}
			go d.serve(conn)
		}
	}()
	return New(path)
}

func (d *daemon) removeCard(reader string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.cards, reader)
}

func (d *daemon) serve(conn net.Conn) {
	defer conn.Close()

	hdr := make([]byte, 8)
	for {
		if _, err := io.ReadFull(conn, hdr); err != nil {
			return
		}
		req := make([]byte, binary.LittleEndian.Uint32(hdr))
		if _, err := io.ReadFull(conn, req); err != nil {
			return
		}

		var resp []byte
		switch binary.LittleEndian.Uint32(hdr[4:]) {
		case libpcsc.CommandVersion:
			resp = req
		case libpcsc.SCardEstablishContext:
			binary.LittleEndian.PutUint32(req[4:], 1)
			resp = req
		case libpcsc.SCardReleaseContext:
			resp = req
		case libpcsc.CommandGetReaderState:
			resp = d.readerStates()
		case libpcsc.SCardConnect:
			resp = d.connect(req)
		case libpcsc.SCardDisConnect:
			resp = d.disconnect(req)
		case libpcsc.SCardTransmit:
			apdu := make([]byte, binary.LittleEndian.Uint32(req[12:]))
			if _, err := io.ReadFull(conn, apdu); err != nil {
				return
			}
			resp = d.transmit(req)
		default:
			return
		}
		if _, err := conn.Write(resp); err != nil {
			return
		}
	}
}

func (d *daemon) readerStates() []byte {
	out := make([]byte, libpcsc.ReaderStateDescriptorLength*libpcsc.MaxReaderStateDescriptors)
	for i, name := range d.readers {
		copy(out[i*libpcsc.ReaderStateDescriptorLength:], name)
	}
	return out
}

func (d *daemon) connect(req []byte) []byte {
	d.mu.Lock()
	defer d.mu.Unlock()

	reader := strings.TrimRight(string(req[libpcsc.SCardConnectReaderNameOffset:libpcsc.SCardConnectShareModeOffset]), "\x00")
	mode := binary.LittleEndian.Uint32(req[libpcsc.SCardConnectShareModeOffset:])
	preferred := binary.LittleEndian.Uint32(req[libpcsc.SCardConnectPreferredProtocolOffset:])
	d.connects = append(d.connects, preferred)

	known := false
	for _, r := range d.readers {
		known = known || r == reader
	}
	accepts, present := d.cards[reader]

	var rv uint32
	switch {
	case !known:
		rv = rvUnknownReader
	case mode == uint32(pcsc.ShareDirect):
	case !present:
		rv = rvNoSmartcard
	case uint32(accepts)&preferred == 0:
		rv = rvProtoMismatch
	}
	if rv == 0 {
		d.next++
		d.handles[d.next] = reader
		binary.LittleEndian.PutUint32(req[140:], d.next)
	}
	binary.LittleEndian.PutUint32(req[libpcsc.SCardConnectReturnValueOffset:], rv)
	return req
}

func (d *daemon) disconnect(req []byte) []byte {
	d.mu.Lock()
	defer d.mu.Unlock()

	handle := binary.LittleEndian.Uint32(req)
	if _, ok := d.handles[handle]; !ok {
		binary.LittleEndian.PutUint32(req[8:], rvInvalidHandle)
		return req
	}
	delete(d.handles, handle)
	return req
}

func (d *daemon) transmit(req []byte) []byte {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.sendPCI = append(d.sendPCI, binary.LittleEndian.Uint32(req[4:]))

	resp := make([]byte, libpcsc.TransmitRequestLength)
	copy(resp, req)
	reader, ok := d.handles[binary.LittleEndian.Uint32(req)]
	_, present := d.cards[reader]
	switch {
	case !ok:
		binary.LittleEndian.PutUint32(resp[28:], rvInvalidHandle)
	case !present:
		binary.LittleEndian.PutUint32(resp[28:], rvRemovedCard)
	default:
		binary.LittleEndian.PutUint32(resp[16:], uint32(pcsc.ProtocolT1))
		binary.LittleEndian.PutUint32(resp[20:], 8)
		binary.LittleEndian.PutUint32(resp[24:], 2)
		resp = append(resp, 0x90, 0x00)
	}
	return resp
}

func TestSession_Daemon(t *testing.T) {
	t.Parallel()

	d := newDaemon(
		[]string{"Reader T1", "Reader T0", "Empty"},
		map[string]pcsc.Protocol{"Reader T1": pcsc.ProtocolAny, "Reader T0": pcsc.ProtocolT0},
	)
	s, err := d.start(t).Establish()
	require.NoError(t, err)

	names, err := s.ListReaders()
	require.NoError(t, err)
	assert.Equal(t, []string{"Reader T1", "Reader T0", "Empty"}, names)

	t.Run("error codes", func(t *testing.T) {
		_, err := s.Connect("Empty", pcsc.ShareShared, pcsc.ProtocolAny)
		assert.ErrorIs(t, err, pcsc.NoSmartcard)
		assert.True(t, pcsc.CodeOf(err).IsCardGone())

		_, err = s.Connect("Nope", pcsc.ShareShared, pcsc.ProtocolAny)
		assert.ErrorIs(t, err, pcsc.UnknownReader)
	})

	t.Run("T=1 only", func(t *testing.T) {
		_, err := s.Connect("Reader T0", pcsc.ShareShared, pcsc.ProtocolAny)
		assert.ErrorIs(t, err, pcsc.ProtocolMismatch)

		d.mu.Lock()
		sent := len(d.connects)
		d.mu.Unlock()
		_, err = s.Connect("Reader T0", pcsc.ShareShared, pcsc.ProtocolT0)
		assert.ErrorIs(t, err, pcsc.ProtocolMismatch)
		d.mu.Lock()
		assert.Len(t, d.connects, sent, "a T=0 preference never reaches pcscd")
		d.mu.Unlock()
	})

	t.Run("exchange", func(t *testing.T) {
		got, err := s.Connect("Reader T1", pcsc.ShareShared, pcsc.ProtocolAny)
		require.NoError(t, err)
		assert.Equal(t, pcsc.ProtocolT1, got)
		assert.Equal(t, pcsc.StateSpecific, s.Status("Reader T1"))

		_, err = s.Connect("Reader T1", pcsc.ShareShared, pcsc.ProtocolAny)
		assert.ErrorIs(t, err, pcsc.SharingViolation)

		resp, err := s.Transmit("Reader T1", pcsc.NewIoControlDescriptor(pcsc.ProtocolT1), []byte{0x00, 0xA4, 0x04, 0x00, 0x00})
		require.NoError(t, err)
		assert.Equal(t, []byte{0x90, 0x00}, resp)

		_, err = s.Transmit("Reader T1", pcsc.NewIoControlDescriptor(pcsc.ProtocolT0), []byte{0x00, 0xA4, 0x04, 0x00, 0x00})
		assert.ErrorIs(t, err, pcsc.ProtocolMismatch)

		d.mu.Lock()
		assert.Equal(t, []uint32{uint32(pcsc.ProtocolT1)}, d.sendPCI)
		d.mu.Unlock()

		d.removeCard("Reader T1")
		_, err = s.Transmit("Reader T1", pcsc.NewIoControlDescriptor(pcsc.ProtocolT1), []byte{0x00, 0xB0, 0x00, 0x00, 0x00})
		assert.ErrorIs(t, err, pcsc.RemovedCard)

		require.NoError(t, s.Disconnect("Reader T1", pcsc.LeaveCard))
		assert.ErrorIs(t, s.Disconnect("Reader T1", pcsc.LeaveCard), pcsc.InvalidHandle)
	})

	t.Run("direct", func(t *testing.T) {
		got, err := s.Connect("Empty", pcsc.ShareDirect, pcsc.ProtocolUndefined)
		require.NoError(t, err)
		assert.Equal(t, pcsc.ProtocolUndefined, got)
		assert.Equal(t, pcsc.StatePowered, s.Status("Empty"))

		_, err = s.Transmit("Empty", pcsc.NewIoControlDescriptor(pcsc.ProtocolUndefined), []byte{0x00, 0xA4, 0x04, 0x00})
		assert.ErrorIs(t, err, pcsc.ProtocolMismatch)
	})

	require.NoError(t, s.Release())
}
