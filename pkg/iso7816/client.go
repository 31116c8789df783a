package iso7816

import (
	"errors"
	"fmt"
)

// CLIENT & PROTOCOL LOGIC:
// The Client sits on top of a card connection and resolves the two T=0
// transport behaviors that surface as status words:
//
// 1. "61 XX" (Response Available):
//    XX bytes are waiting. The client sends GET RESPONSE on the same logical
//    channel to retrieve them.
//
// 2. "6C XX" (Wrong Length):
//    Le was wrong and the card suggests XX. The client re-sends the original
//    command with Le = XX.
//
// Send() returns a Trace holding every exchange made for the logical request.

// DefaultMaxAutoResponses bounds the automatic follow-up exchanges of one Send.
const DefaultMaxAutoResponses = 32

// ErrTooManyResponses means the card kept answering 61XX or 6CXX past the
// client's MaxAutoResponses.
var ErrTooManyResponses = errors.New("too many chained responses")

// Transmitter is one command/response exchange with a card.
type Transmitter interface {
	Transmit(cmd CommandAPDU) (ResponseAPDU, error)
}

// TransmitterFunc adapts a function to Transmitter.
type TransmitterFunc func(cmd CommandAPDU) (ResponseAPDU, error)

// Transmit calls f.
func (f TransmitterFunc) Transmit(cmd CommandAPDU) (ResponseAPDU, error) {
	return f(cmd)
}

// Client manages the high-level communication with the card.
type Client struct {
	Card Transmitter

	// MaxAutoResponses caps the GET RESPONSE and re-send exchanges issued
	// for a single Send. Zero means DefaultMaxAutoResponses.
	MaxAutoResponses int
}

// NewClient creates a new Client instance.
func NewClient(card Transmitter) *Client {
	return &Client{Card: card, MaxAutoResponses: DefaultMaxAutoResponses}
}

// Send transmits cmd and follows 61XX and 6CXX answers. The trace is
// returned even on error and holds the exchanges completed so far.
func (c *Client) Send(cmd CommandAPDU) (Trace, error) {
	limit := c.MaxAutoResponses
	if limit <= 0 {
		limit = DefaultMaxAutoResponses
	}

	var trace Trace
	next := cmd
	for {
		resp, err := c.Card.Transmit(next)
		if err != nil {
			return trace, fmt.Errorf("transmission error: %w", err)
		}
		trace = append(trace, Transaction{Command: next, Response: &resp})

		sw := resp.StatusWord()
		if !sw.HasMoreData() && !sw.IsWrongLength() {
			return trace, nil
		}
		if len(trace) > limit {
			return trace, fmt.Errorf("%w: gave up after %d exchanges, last SW %04X", ErrTooManyResponses, len(trace), uint16(sw))
		}

		switch {
		case sw.HasMoreData():
			// GET RESPONSE must use the logical channel of the original command.
			cls, err := cmd.Class()
			if err != nil {
				return trace, fmt.Errorf("cannot derive GET RESPONSE class: %w", err)
			}
			next, err = GetResponse(cls, int(sw.SW2()))
			if err != nil {
				return trace, err
			}
		default:
			next, err = next.WithNe(shortLe(sw.SW2()))
			if err != nil {
				return trace, fmt.Errorf("cannot re-send with Le=%d: %w", sw.SW2(), err)
			}
		}
	}
}

// Data concatenates the data fields of every response in the trace, which is
// the full answer for a chain of GET RESPONSE exchanges.
func (t Trace) Data() []byte {
	var out []byte
	for _, tx := range t {
		if tx.Response != nil {
			out = append(out, tx.Response.data...)
		}
	}
	return out
}
