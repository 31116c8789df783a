// Package channel implements the card-channel session: attach a reader of a
// Context, connect to the card, exchange APDUs, then disconnect.
//
// A CardChannel is not safe for concurrent use; one goroutine drives it.
// Separate channels on different readers of one Context may run in parallel.
package channel

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/gregLibert/cardchannel/pkg/iso7816"
	"github.com/gregLibert/cardchannel/pkg/pcsc"
)

// CardChannel tracks one connection to a card through a reader. The zero
// value is an Unattached channel logging to the standard logger.
type CardChannel struct {
	state    State
	ctx      *Context
	reader   string
	protocol pcsc.Protocol

	log logrus.FieldLogger
}

// Option configures a CardChannel.
type Option func(*CardChannel)

// WithLogger sets the logger used for transitions and driver failures.
func WithLogger(l logrus.FieldLogger) Option {
	return func(c *CardChannel) {
		if l != nil {
			c.log = l
		}
	}
}

// New returns an Unattached channel.
func New(opts ...Option) *CardChannel {
	c := &CardChannel{log: logrus.StandardLogger()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the current lifecycle state.
func (c *CardChannel) State() State { return c.state }

// ReaderName returns the attached reader, empty when Unattached.
func (c *CardChannel) ReaderName() string { return c.reader }

// Protocol returns the negotiated protocol while Connected, ProtocolUndefined otherwise.
func (c *CardChannel) Protocol() pcsc.Protocol { return c.protocol }

// Context returns the context the channel borrows, nil when Unattached.
func (c *CardChannel) Context() *Context { return c.ctx }

func (c *CardChannel) check(op string) error {
	if !allowed(op, c.state) {
		return &StateError{Op: op, State: c.state}
	}
	return nil
}

// base is the configured logger, or the standard one for a zero CardChannel.
func (c *CardChannel) base() logrus.FieldLogger {
	if c.log == nil {
		return logrus.StandardLogger()
	}
	return c.log
}

func (c *CardChannel) logger() logrus.FieldLogger {
	return c.base().WithFields(logrus.Fields{
		"reader": c.reader,
		"state":  c.state.String(),
	})
}

func (c *CardChannel) moveTo(s State) {
	c.logger().WithField("to", s.String()).Debug("channel transition")
	c.state = s
}

// Attach binds the channel to reader on ctx. No I/O happens. It is legal
// from Unattached or Disconnected; re-attaching a disconnected channel moves
// its claim to the new reader.
func (c *CardChannel) Attach(ctx *Context, reader string) error {
	if err := c.check(opAttach); err != nil {
		return err
	}
	if ctx == nil {
		return fmt.Errorf("%s: nil context", opAttach)
	}
	if reader == "" {
		return fmt.Errorf("%s: %w", opAttach, ErrEmptyReaderName)
	}

	if err := ctx.claim(c, reader); err != nil {
		return fmt.Errorf("%s %q: %w", opAttach, reader, err)
	}
	if c.ctx != nil && (c.ctx != ctx || c.reader != reader) {
		c.ctx.unclaim(c, c.reader)
	}

	c.ctx = ctx
	c.reader = reader
	c.protocol = pcsc.ProtocolUndefined
	c.moveTo(Attached)
	return nil
}

// Detach returns the reader to the context. It is legal from Attached or
// Disconnected and leaves the channel Unattached.
func (c *CardChannel) Detach() error {
	if err := c.check(opDetach); err != nil {
		return err
	}

	c.ctx.unclaim(c, c.reader)
	c.moveTo(Unattached)
	c.ctx = nil
	c.reader = ""
	return nil
}

// Connect opens a session with the card. On failure the channel stays
// Attached and the driver error is returned.
func (c *CardChannel) Connect(mode pcsc.ShareMode, preferred pcsc.Protocol) error {
	if err := c.check(opConnect); err != nil {
		return err
	}

	p, err := c.ctx.session.Connect(c.reader, mode, preferred)
	if err != nil {
		c.logger().WithError(err).WithFields(logrus.Fields{
			"share":    mode.String(),
			"protocol": preferred.String(),
		}).Warn("connect failed")
		return err
	}

	c.protocol = p
	c.moveTo(Connected)
	return nil
}

// Reconnect re-establishes the card session, applying init first. The
// protocol is updated on success and left as is on failure; the channel
// stays Connected either way.
func (c *CardChannel) Reconnect(mode pcsc.ShareMode, preferred pcsc.Protocol, init pcsc.Disposition) error {
	if err := c.check(opReconnect); err != nil {
		return err
	}

	p, err := c.ctx.session.Reconnect(c.reader, mode, preferred, init)
	if err != nil {
		c.logger().WithError(err).WithField("init", init.String()).Warn("reconnect failed")
		return err
	}

	c.logger().WithFields(logrus.Fields{
		"from": c.protocol.String(),
		"to":   p.String(),
	}).Debug("protocol renegotiated")
	c.protocol = p
	return nil
}

// Disconnect releases the card session with disposition d. The channel is
// Disconnected afterwards even when the driver reports an error, which is
// still returned.
func (c *CardChannel) Disconnect(d pcsc.Disposition) error {
	if err := c.check(opDisconnect); err != nil {
		return err
	}

	err := c.ctx.session.Disconnect(c.reader, d)
	if err != nil {
		c.logger().WithError(err).WithField("disposition", d.String()).Warn("disconnect reported an error")
	}

	c.protocol = pcsc.ProtocolUndefined
	c.moveTo(Disconnected)
	return err
}

// Transmit sends cmd using the control block of the negotiated protocol and
// decodes the reply. A reply without a status word fails with
// iso7816.ErrMalformedResponse.
func (c *CardChannel) Transmit(cmd iso7816.CommandAPDU) (iso7816.ResponseAPDU, error) {
	if err := c.check(opTransmit); err != nil {
		return iso7816.ResponseAPDU{}, err
	}
	if cmd.IsZero() {
		return iso7816.ResponseAPDU{}, fmt.Errorf("%s: %w: empty command", opTransmit, iso7816.ErrMalformedCommand)
	}

	pci := pcsc.NewIoControlDescriptor(c.protocol)
	raw, err := c.ctx.session.Transmit(c.reader, pci, cmd.Bytes())
	if err != nil {
		c.logger().WithError(err).WithField("command", cmd.Hex()).Warn("transmit failed")
		return iso7816.ResponseAPDU{}, err
	}

	resp, err := iso7816.ParseResponseAPDU(raw)
	if err != nil {
		return iso7816.ResponseAPDU{}, fmt.Errorf("%s %q: %w", opTransmit, c.reader, err)
	}

	c.base().WithField("reader", c.reader).Tracef(">> %s << %s", cmd.Hex(), resp.Hex())
	return resp, nil
}

// GetAttrib reads a reader attribute into buf and returns the number of
// bytes written. A buffer too small for the value fails with
// pcsc.InsufficientBuffer.
func (c *CardChannel) GetAttrib(attr pcsc.Attrib, buf []byte) (int, error) {
	if err := c.check(opGetAttrib); err != nil {
		return 0, err
	}
	return c.ctx.session.GetAttrib(c.reader, attr, buf)
}

// GetStatus returns a snapshot of the card state. It has no side effects.
func (c *CardChannel) GetStatus() (pcsc.CardState, error) {
	if err := c.check(opGetStatus); err != nil {
		return pcsc.StateUnknown, err
	}
	return c.ctx.session.Status(c.reader), nil
}

func (c *CardChannel) String() string {
	if c.state == Unattached {
		return "channel(unattached)"
	}
	return fmt.Sprintf("channel(%q, %s, %s)", c.reader, c.state, c.protocol)
}
