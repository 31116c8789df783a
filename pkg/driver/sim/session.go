package sim

import (
	"encoding/binary"

	"github.com/gregLibert/cardchannel/pkg/pcsc"
)

type conn struct {
	mode     pcsc.ShareMode
	protocol pcsc.Protocol
}

// Session is one context on a Driver. It holds at most one connection per
// reader.
type Session struct {
	d        *Driver
	conns    map[string]*conn
	released bool
}

var _ pcsc.Session = (*Session)(nil)

func (s *Session) ListReaders() ([]string, error) {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()

	if err := s.enter(OpListReaders, ""); err != nil {
		return nil, err
	}
	names := s.d.readerNames()
	if len(names) == 0 {
		return nil, pcsc.NewError(string(OpListReaders), "", pcsc.NoReadersAvailable, nil)
	}
	return names, nil
}

func (s *Session) Connect(name string, mode pcsc.ShareMode, preferred pcsc.Protocol) (pcsc.Protocol, error) {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()

	if err := s.enter(OpConnect, name); err != nil {
		return pcsc.ProtocolUndefined, err
	}
	r, ok := s.d.readers[name]
	if !ok {
		return pcsc.ProtocolUndefined, fail(OpConnect, name, pcsc.UnknownReader)
	}
	if _, ok := s.conns[name]; ok {
		return pcsc.ProtocolUndefined, fail(OpConnect, name, pcsc.SharingViolation)
	}
	if r.exclusive || (mode == pcsc.ShareExclusive && r.holders > 0) {
		return pcsc.ProtocolUndefined, fail(OpConnect, name, pcsc.SharingViolation)
	}

	p := pcsc.ProtocolUndefined
	if mode != pcsc.ShareDirect {
		var code pcsc.ErrorCode
		if p, code = negotiate(r, preferred); code != pcsc.Success {
			return pcsc.ProtocolUndefined, fail(OpConnect, name, code)
		}
	}

	s.conns[name] = &conn{mode: mode, protocol: p}
	r.holders++
	r.exclusive = mode == pcsc.ShareExclusive
	return p, nil
}

func (s *Session) Reconnect(name string, mode pcsc.ShareMode, preferred pcsc.Protocol, init pcsc.Disposition) (pcsc.Protocol, error) {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()

	if err := s.enter(OpReconnect, name); err != nil {
		return pcsc.ProtocolUndefined, err
	}
	c, ok := s.conns[name]
	if !ok {
		return pcsc.ProtocolUndefined, fail(OpReconnect, name, pcsc.InvalidHandle)
	}
	r, ok := s.d.readers[name]
	if !ok {
		return pcsc.ProtocolUndefined, fail(OpReconnect, name, pcsc.ReaderUnavailable)
	}
	if mode == pcsc.ShareExclusive && r.holders > 1 {
		return pcsc.ProtocolUndefined, fail(OpReconnect, name, pcsc.SharingViolation)
	}

	if r.card != nil && (init == pcsc.ResetCard || init == pcsc.UnpowerCard) {
		r.card.resets++
	}

	p := pcsc.ProtocolUndefined
	if mode != pcsc.ShareDirect {
		var code pcsc.ErrorCode
		if p, code = negotiate(r, preferred); code != pcsc.Success {
			return pcsc.ProtocolUndefined, fail(OpReconnect, name, code)
		}
	}

	c.mode = mode
	c.protocol = p
	r.exclusive = mode == pcsc.ShareExclusive
	return p, nil
}

// Disconnect always drops the connection, including when a failure is
// injected.
func (s *Session) Disconnect(name string, d pcsc.Disposition) error {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()

	injected := s.enter(OpDisconnect, name)
	if _, ok := s.conns[name]; !ok {
		if injected != nil {
			return injected
		}
		return fail(OpDisconnect, name, pcsc.InvalidHandle)
	}
	s.drop(name, d)
	return injected
}

func (s *Session) drop(name string, d pcsc.Disposition) {
	delete(s.conns, name)

	r, ok := s.d.readers[name]
	if !ok {
		return
	}
	if r.holders > 0 {
		r.holders--
	}
	r.exclusive = false

	switch d {
	case pcsc.ResetCard, pcsc.UnpowerCard:
		if r.card != nil {
			r.card.resets++
		}
	case pcsc.EjectCard:
		r.card = nil
	}
}

func (s *Session) Transmit(name string, pci pcsc.IoControlDescriptor, command []byte) ([]byte, error) {
	s.d.mu.Lock()

	if err := s.enter(OpTransmit, name); err != nil {
		s.d.mu.Unlock()
		return nil, err
	}
	c, r, code := s.active(name)
	if code == pcsc.Success && pci.Protocol() != c.protocol {
		code = pcsc.ProtocolMismatch
	}
	if code != pcsc.Success {
		s.d.mu.Unlock()
		return nil, fail(OpTransmit, name, code)
	}

	r.sent = append(r.sent, append([]byte(nil), command...))
	respond := s.d.responder
	s.d.mu.Unlock()

	// The responder runs unlocked so it may drive the Driver itself, e.g.
	// pull the card out mid-exchange.
	resp, err := respond(name, append([]byte(nil), command...))
	if err != nil {
		return nil, pcsc.NewError(string(OpTransmit), name, pcsc.CodeOf(err), err)
	}
	return resp, nil
}

func (s *Session) GetAttrib(name string, attr pcsc.Attrib, buf []byte) (int, error) {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()

	if err := s.enter(OpGetAttrib, name); err != nil {
		return 0, err
	}
	c, r, code := s.active(name)
	if code != pcsc.Success {
		return 0, fail(OpGetAttrib, name, code)
	}

	value, ok := r.attribs[attr]
	if !ok {
		value, ok = builtinAttrib(r, c, attr)
	}
	if !ok {
		return 0, fail(OpGetAttrib, name, pcsc.NotSupported)
	}
	if len(buf) < len(value) {
		return len(value), fail(OpGetAttrib, name, pcsc.InsufficientBuffer)
	}
	return copy(buf, value), nil
}

func (s *Session) Status(name string) pcsc.CardState {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()

	if err := s.enter(OpStatus, name); err != nil {
		return pcsc.StateFromCode(pcsc.CodeOf(err))
	}
	r, ok := s.d.readers[name]
	switch {
	case !ok:
		return pcsc.StateUnknown
	case r.card == nil:
		return pcsc.StateAbsent
	case r.card.mute:
		return pcsc.StateMute
	}
	if c, ok := s.conns[name]; ok && c.protocol != pcsc.ProtocolUndefined {
		return pcsc.StateSpecific
	}
	return pcsc.StatePowered
}

func (s *Session) Release() error {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()

	if s.released {
		return fail(OpRelease, "", pcsc.InvalidHandle)
	}
	err := s.enter(OpRelease, "")
	for name := range s.conns {
		s.drop(name, pcsc.LeaveCard)
	}
	s.released = true
	return err
}

// enter rejects calls on a released session before consulting the driver.
func (s *Session) enter(op Op, name string) error {
	if s.released {
		s.d.calls[op]++
		return fail(op, name, pcsc.InvalidHandle)
	}
	return s.d.enter(op, name)
}

// active returns the connection to a reader that still holds a live card.
func (s *Session) active(name string) (*conn, *reader, pcsc.ErrorCode) {
	c, ok := s.conns[name]
	if !ok {
		return nil, nil, pcsc.InvalidHandle
	}
	r, ok := s.d.readers[name]
	if !ok {
		return nil, nil, pcsc.ReaderUnavailable
	}
	if c.mode == pcsc.ShareDirect {
		return c, r, pcsc.Success
	}
	if r.card == nil {
		return nil, nil, pcsc.RemovedCard
	}
	if r.card.mute {
		return nil, nil, pcsc.UnresponsiveCard
	}
	return c, r, pcsc.Success
}

func negotiate(r *reader, preferred pcsc.Protocol) (pcsc.Protocol, pcsc.ErrorCode) {
	switch {
	case r.card == nil:
		return pcsc.ProtocolUndefined, pcsc.NoSmartcard
	case r.card.mute:
		return pcsc.ProtocolUndefined, pcsc.UnresponsiveCard
	case preferred == pcsc.ProtocolUndefined:
		return pcsc.ProtocolUndefined, pcsc.InvalidParameter
	}

	offered := preferred & r.protocols
	for _, p := range []pcsc.Protocol{pcsc.ProtocolT1, pcsc.ProtocolT0, pcsc.ProtocolRaw, pcsc.ProtocolT15} {
		if offered&p != 0 {
			return p, pcsc.Success
		}
	}
	return pcsc.ProtocolUndefined, pcsc.ProtocolMismatch
}

func builtinAttrib(r *reader, c *conn, attr pcsc.Attrib) ([]byte, bool) {
	switch attr {
	case pcsc.AttrVendorName:
		return []byte("cardchannel"), true
	case pcsc.AttrDeviceFriendlyName, pcsc.AttrDeviceSystemName:
		return append([]byte(r.name), 0), true
	case pcsc.AttrATRString:
		if r.card == nil {
			return nil, false
		}
		return append([]byte(nil), r.card.atr...), true
	case pcsc.AttrCurrentProtocolType:
		return binary.LittleEndian.AppendUint32(nil, uint32(c.protocol)), true
	}
	return nil, false
}

func fail(op Op, name string, code pcsc.ErrorCode) error {
	return pcsc.NewError(string(op), name, code, nil)
}
