// Package pcsclite talks to pcscd directly over its UNIX socket with
// github.com/gballet/go-libpcsclite, so it needs neither cgo nor libpcsclite.
//
// The wire client exposes a reduced API: it never reports the protocol it
// negotiated, has no SCardReconnect and no SCardGetAttrib, and always sends
// the T=1 control block on transmit. The session therefore only connects with
// T=1, emulates Reconnect, and reports NotSupported for attributes.
//
// The client reports pcscd failures as formatted errors carrying the raw
// return value; codeOf recovers it.
//
// Share modes, protocols and dispositions use the pcsc-lite numbering on both
// sides and are passed through as is.
package pcsclite

import (
	"regexp"
	"strconv"
	"strings"

	libpcsc "github.com/gballet/go-libpcsclite"

	"github.com/gregLibert/cardchannel/internal/syncutil"
	"github.com/gregLibert/cardchannel/pkg/pcsc"
)

func init() {
	pcsc.Register("pcsclite", New(""))
}

// Driver establishes contexts with the pcscd listening on Socket.
type Driver struct {
	Socket string
}

// New returns a driver for socket, or the default pcscd socket when empty.
func New(socket string) *Driver {
	if socket == "" {
		socket = libpcsc.PCSCDSockName
	}
	return &Driver{Socket: socket}
}

// Establish opens a system-scope context.
func (d *Driver) Establish() (pcsc.Session, error) {
	client, err := libpcsc.EstablishContext(d.Socket, libpcsc.ScopeSystem)
	if err != nil {
		code := codeOf(err)
		if code == pcsc.UnknownError {
			code = pcsc.NoService
		}
		return nil, pcsc.NewError("establish context", "", code, err)
	}
	return &Session{client: client, cards: make(map[string]*held)}, nil
}

type held struct {
	card     *libpcsc.Card
	protocol pcsc.Protocol
}

// Session is one pcscd client connection.
type Session struct {
	client *libpcsc.Client

	mu    syncutil.Mutex
	cards map[string]*held
}

var _ pcsc.Session = (*Session)(nil)

func (s *Session) ListReaders() ([]string, error) {
	names, err := s.client.ListReaders()
	if err != nil {
		return nil, wrap("list readers", "", err)
	}
	// names come back with the NUL padding of the fixed-size field
	out := make([]string, 0, len(names))
	for _, name := range names {
		if name = strings.TrimRight(name, "\x00"); name != "" {
			out = append(out, name)
		}
	}
	if len(out) == 0 {
		return nil, pcsc.NewError("list readers", "", pcsc.NoReadersAvailable, nil)
	}
	return out, nil
}

// Connect asks pcscd for T=1. A preferred mask without T=1, or a card that
// cannot run it, fails with ProtocolMismatch.
func (s *Session) Connect(reader string, mode pcsc.ShareMode, preferred pcsc.Protocol) (pcsc.Protocol, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.cards[reader]; ok {
		return pcsc.ProtocolUndefined, pcsc.NewError("connect", reader, pcsc.SharingViolation, nil)
	}
	h, err := s.connect("connect", reader, mode, preferred)
	if err != nil {
		return pcsc.ProtocolUndefined, err
	}
	s.cards[reader] = h
	return h.protocol, nil
}

// Reconnect disconnects with init and connects again.
func (s *Session) Reconnect(reader string, mode pcsc.ShareMode, preferred pcsc.Protocol, init pcsc.Disposition) (pcsc.Protocol, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	old, ok := s.cards[reader]
	if !ok {
		return pcsc.ProtocolUndefined, pcsc.NewError("reconnect", reader, pcsc.InvalidHandle, nil)
	}
	if err := old.card.Disconnect(uint32(init)); err != nil {
		delete(s.cards, reader)
		return pcsc.ProtocolUndefined, wrap("reconnect", reader, err)
	}

	h, err := s.connect("reconnect", reader, mode, preferred)
	if err != nil {
		delete(s.cards, reader)
		return pcsc.ProtocolUndefined, err
	}
	s.cards[reader] = h
	return h.protocol, nil
}

func (s *Session) connect(op, reader string, mode pcsc.ShareMode, preferred pcsc.Protocol) (*held, error) {
	if mode == pcsc.ShareDirect {
		card, err := s.client.Connect(reader, uint32(mode), uint32(pcsc.ProtocolUndefined))
		if err != nil {
			return nil, wrap(op, reader, err)
		}
		return &held{card: card}, nil
	}

	if preferred&pcsc.ProtocolT1 == 0 {
		return nil, pcsc.NewError(op, reader, pcsc.ProtocolMismatch, nil)
	}
	card, err := s.client.Connect(reader, uint32(mode), uint32(pcsc.ProtocolT1))
	if err != nil {
		return nil, wrap(op, reader, err)
	}
	return &held{card: card, protocol: pcsc.ProtocolT1}, nil
}

func (s *Session) Disconnect(reader string, d pcsc.Disposition) error {
	s.mu.Lock()
	h, ok := s.cards[reader]
	delete(s.cards, reader)
	s.mu.Unlock()

	if !ok {
		return pcsc.NewError("disconnect", reader, pcsc.InvalidHandle, nil)
	}
	if err := h.card.Disconnect(uint32(d)); err != nil {
		return wrap("disconnect", reader, err)
	}
	return nil
}

func (s *Session) Transmit(reader string, pci pcsc.IoControlDescriptor, command []byte) ([]byte, error) {
	h, err := s.lookup("transmit", reader)
	if err != nil {
		return nil, err
	}
	// the wire client always sends the T=1 control block
	if !pci.IsDefined() || pci.Protocol() != h.protocol {
		return nil, pcsc.NewError("transmit", reader, pcsc.ProtocolMismatch, nil)
	}
	resp, _, err := h.card.Transmit(command)
	if err != nil {
		return nil, wrap("transmit", reader, err)
	}
	return resp, nil
}

func (s *Session) GetAttrib(reader string, _ pcsc.Attrib, _ []byte) (int, error) {
	if _, err := s.lookup("get attrib", reader); err != nil {
		return 0, err
	}
	return 0, pcsc.NewError("get attrib", reader, pcsc.NotSupported, nil)
}

// Status only knows what this session negotiated.
func (s *Session) Status(reader string) pcsc.CardState {
	h, err := s.lookup("status", reader)
	switch {
	case err != nil:
		return pcsc.StateUnknown
	case h.protocol == pcsc.ProtocolUndefined:
		return pcsc.StatePowered
	default:
		return pcsc.StateSpecific
	}
}

func (s *Session) Release() error {
	s.mu.Lock()
	cards := s.cards
	s.cards = make(map[string]*held)
	s.mu.Unlock()

	for _, h := range cards {
		_ = h.card.Disconnect(uint32(pcsc.LeaveCard))
	}
	if err := s.client.ReleaseContext(); err != nil {
		return wrap("release context", "", err)
	}
	return nil
}

func (s *Session) lookup(op, reader string) (*held, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.cards[reader]
	if !ok {
		return nil, pcsc.NewError(op, reader, pcsc.InvalidHandle, nil)
	}
	return h, nil
}

var (
	returnCodeHex = regexp.MustCompile(`return code: ([0-9a-fA-F]+)`)
	returnCodeDec = regexp.MustCompile(`response code: expected \d+, got (\d+)`)
)

// codeOf classifies an error from the wire client.
func codeOf(err error) pcsc.ErrorCode {
	if err == nil {
		return pcsc.Success
	}
	msg := err.Error()
	if m := returnCodeHex.FindStringSubmatch(msg); m != nil {
		if rv, perr := strconv.ParseUint(m[1], 16, 32); perr == nil {
			return pcsc.FromReturnValue(uint32(rv))
		}
	}
	if m := returnCodeDec.FindStringSubmatch(msg); m != nil {
		if rv, perr := strconv.ParseUint(m[1], 10, 32); perr == nil {
			return pcsc.FromReturnValue(uint32(rv))
		}
	}
	return pcsc.UnknownError
}

func wrap(op, reader string, err error) error {
	if err == nil {
		return nil
	}
	return pcsc.NewError(op, reader, codeOf(err), err)
}
