//go:build cgo || windows

// Package winscard binds channels to the platform PC/SC stack through
// github.com/ebfe/scard: WinSCard on Windows, the pcsc-lite client library
// (libpcsclite) on Linux and macOS.
package winscard

import (
	"runtime"

	"github.com/ebfe/scard"

	"github.com/gregLibert/cardchannel/internal/syncutil"
	"github.com/gregLibert/cardchannel/pkg/pcsc"
)

func init() {
	pcsc.Register("winscard", Driver{})
}

// Driver establishes contexts with the system resource manager.
type Driver struct{}

// Establish opens a user-scope context.
func (Driver) Establish() (pcsc.Session, error) {
	ctx, err := scard.EstablishContext()
	if err != nil {
		return nil, wrap("establish context", "", err)
	}
	return &Session{ctx: ctx, cards: make(map[string]*scard.Card)}, nil
}

// Session is one SCARDCONTEXT and the card handles opened through it.
type Session struct {
	ctx *scard.Context

	mu    syncutil.Mutex
	cards map[string]*scard.Card
}

var _ pcsc.Session = (*Session)(nil)

func (s *Session) ListReaders() ([]string, error) {
	names, err := s.ctx.ListReaders()
	if err != nil {
		return nil, wrap("list readers", "", err)
	}
	if len(names) == 0 {
		return nil, pcsc.NewError("list readers", "", pcsc.NoReadersAvailable, nil)
	}
	return names, nil
}

func (s *Session) Connect(reader string, mode pcsc.ShareMode, preferred pcsc.Protocol) (pcsc.Protocol, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.cards[reader]; ok {
		return pcsc.ProtocolUndefined, pcsc.NewError("connect", reader, pcsc.SharingViolation, nil)
	}
	card, err := s.ctx.Connect(reader, toShareMode(mode), toProtocol(preferred))
	if err != nil {
		return pcsc.ProtocolUndefined, wrap("connect", reader, err)
	}
	s.cards[reader] = card
	return fromProtocol(card.ActiveProtocol()), nil
}

func (s *Session) Reconnect(reader string, mode pcsc.ShareMode, preferred pcsc.Protocol, init pcsc.Disposition) (pcsc.Protocol, error) {
	card, err := s.card("reconnect", reader)
	if err != nil {
		return pcsc.ProtocolUndefined, err
	}
	if err := card.Reconnect(toShareMode(mode), toProtocol(preferred), toDisposition(init)); err != nil {
		return pcsc.ProtocolUndefined, wrap("reconnect", reader, err)
	}
	return fromProtocol(card.ActiveProtocol()), nil
}

func (s *Session) Disconnect(reader string, d pcsc.Disposition) error {
	s.mu.Lock()
	card, ok := s.cards[reader]
	delete(s.cards, reader)
	s.mu.Unlock()

	if !ok {
		return pcsc.NewError("disconnect", reader, pcsc.InvalidHandle, nil)
	}
	return wrap("disconnect", reader, card.Disconnect(toDisposition(d)))
}

// Transmit lets scard pick the protocol control block from the active
// protocol, so a descriptor for another protocol is rejected up front.
func (s *Session) Transmit(reader string, pci pcsc.IoControlDescriptor, command []byte) ([]byte, error) {
	card, err := s.card("transmit", reader)
	if err != nil {
		return nil, err
	}
	if active := fromProtocol(card.ActiveProtocol()); pci.Protocol() != active {
		return nil, pcsc.NewError("transmit", reader, pcsc.ProtocolMismatch, nil)
	}
	resp, err := card.Transmit(command)
	if err != nil {
		return nil, wrap("transmit", reader, err)
	}
	return resp, nil
}

func (s *Session) GetAttrib(reader string, attr pcsc.Attrib, buf []byte) (int, error) {
	card, err := s.card("get attrib", reader)
	if err != nil {
		return 0, err
	}
	value, err := card.GetAttrib(scard.Attrib(attr))
	if err != nil {
		return 0, wrap("get attrib", reader, err)
	}
	if len(buf) < len(value) {
		return len(value), pcsc.NewError("get attrib", reader, pcsc.InsufficientBuffer, nil)
	}
	return copy(buf, value), nil
}

func (s *Session) Status(reader string) pcsc.CardState {
	card, err := s.card("status", reader)
	if err != nil {
		return pcsc.StateUnknown
	}
	st, err := card.Status()
	if err != nil {
		return pcsc.StateFromCode(codeOf(err))
	}
	return fromState(uint32(st.State), runtime.GOOS == "windows")
}

func (s *Session) Release() error {
	s.mu.Lock()
	cards := s.cards
	s.cards = make(map[string]*scard.Card)
	s.mu.Unlock()

	for _, card := range cards {
		_ = card.Disconnect(scard.LeaveCard)
	}
	return wrap("release context", "", s.ctx.Release())
}

func (s *Session) card(op, reader string) (*scard.Card, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	card, ok := s.cards[reader]
	if !ok {
		return nil, pcsc.NewError(op, reader, pcsc.InvalidHandle, nil)
	}
	return card, nil
}
