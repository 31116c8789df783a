// Package sim is an in-memory resource manager. Readers, cards and card
// answers are programmed by the caller; failures can be injected per
// operation. It backs the "sim" driver and the channel tests.
package sim

import (
	"sort"

	"github.com/gregLibert/cardchannel/internal/syncutil"
	"github.com/gregLibert/cardchannel/pkg/pcsc"
)

// DefaultReader is the reader created by the registered "sim" driver.
const DefaultReader = "Simulated Reader 0"

// DefaultATR is the answer-to-reset of inserted cards when none is given.
var DefaultATR = []byte{0x3B, 0x8F, 0x80, 0x01, 0x80, 0x4F, 0x0C, 0xA0, 0x00, 0x00, 0x03, 0x06, 0x03, 0x00, 0x01, 0x00, 0x00, 0x00, 0x00, 0x6A}

func init() {
	pcsc.Register("sim", pcsc.DriverFunc(func() (pcsc.Session, error) {
		return New(DefaultReader).Establish()
	}))
}

// Op names a session operation for failure injection and call counting.
type Op string

const (
	OpListReaders Op = "list readers"
	OpConnect     Op = "connect"
	OpReconnect   Op = "reconnect"
	OpDisconnect  Op = "disconnect"
	OpTransmit    Op = "transmit"
	OpGetAttrib   Op = "get attrib"
	OpStatus      Op = "status"
	OpRelease     Op = "release"
)

// Responder produces the raw response to a raw command.
type Responder func(reader string, command []byte) ([]byte, error)

// Success answers every command with 90 00.
func Success(string, []byte) ([]byte, error) {
	return []byte{0x90, 0x00}, nil
}

type card struct {
	atr    []byte
	mute   bool
	resets int
}

type reader struct {
	name      string
	card      *card
	protocols pcsc.Protocol
	attribs   map[pcsc.Attrib][]byte

	// open connections from all sessions
	holders   int
	exclusive bool

	sent [][]byte
}

// Driver is a programmable resource manager. It implements pcsc.Driver;
// every established session shares its readers.
type Driver struct {
	mu        syncutil.Mutex
	readers   map[string]*reader
	responder Responder
	failures  map[Op]pcsc.ErrorCode
	calls     map[Op]int
}

// New returns a driver with one reader per name, each holding a card.
func New(readers ...string) *Driver {
	d := &Driver{
		readers:   make(map[string]*reader),
		responder: Success,
		failures:  make(map[Op]pcsc.ErrorCode),
		calls:     make(map[Op]int),
	}
	for _, name := range readers {
		d.AddReader(name)
		d.InsertCard(name, nil)
	}
	return d
}

// Establish opens a new session.
func (d *Driver) Establish() (pcsc.Session, error) {
	return &Session{d: d, conns: make(map[string]*conn)}, nil
}

// AddReader plugs an empty reader supporting T=0 and T=1.
func (d *Driver) AddReader(name string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.readers[name]; ok {
		return
	}
	d.readers[name] = &reader{
		name:      name,
		protocols: pcsc.ProtocolAny,
		attribs:   make(map[pcsc.Attrib][]byte),
	}
}

// RemoveReader unplugs a reader. Open connections on it start failing.
func (d *Driver) RemoveReader(name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.readers, name)
}

// InsertCard puts a card with the given ATR (DefaultATR when nil) in reader.
func (d *Driver) InsertCard(name string, atr []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()

	r, ok := d.readers[name]
	if !ok {
		return
	}
	if atr == nil {
		atr = DefaultATR
	}
	r.card = &card{atr: append([]byte(nil), atr...)}
}

// RemoveCard takes the card out of reader.
func (d *Driver) RemoveCard(name string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if r, ok := d.readers[name]; ok {
		r.card = nil
	}
}

// SetMute makes the card in reader stop answering to reset.
func (d *Driver) SetMute(name string, mute bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if r, ok := d.readers[name]; ok && r.card != nil {
		r.card.mute = mute
	}
}

// SetProtocols restricts the protocols the card in reader accepts.
func (d *Driver) SetProtocols(name string, p pcsc.Protocol) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if r, ok := d.readers[name]; ok {
		r.protocols = p
	}
}

// SetAttrib overrides a reader attribute value.
func (d *Driver) SetAttrib(name string, attr pcsc.Attrib, value []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if r, ok := d.readers[name]; ok {
		r.attribs[attr] = append([]byte(nil), value...)
	}
}

// SetResponder replaces the card behavior for all readers.
func (d *Driver) SetResponder(fn Responder) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if fn == nil {
		fn = Success
	}
	d.responder = fn
}

// Fail makes every later call of op fail with code until Clear.
func (d *Driver) Fail(op Op, code pcsc.ErrorCode) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failures[op] = code
}

// Clear removes an injected failure.
func (d *Driver) Clear(op Op) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.failures, op)
}

// Calls returns how many times op was invoked across sessions.
func (d *Driver) Calls(op Op) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls[op]
}

// Sent returns the raw commands transmitted to reader, oldest first.
func (d *Driver) Sent(name string) [][]byte {
	d.mu.Lock()
	defer d.mu.Unlock()

	r, ok := d.readers[name]
	if !ok {
		return nil
	}
	out := make([][]byte, len(r.sent))
	for i, cmd := range r.sent {
		out[i] = append([]byte(nil), cmd...)
	}
	return out
}

// Resets returns how many times the card in reader was reset or unpowered.
func (d *Driver) Resets(name string) int {
	d.mu.Lock()
	defer d.mu.Unlock()

	if r, ok := d.readers[name]; ok && r.card != nil {
		return r.card.resets
	}
	return 0
}

// Holders returns the number of open connections on reader.
func (d *Driver) Holders(name string) int {
	d.mu.Lock()
	defer d.mu.Unlock()

	if r, ok := d.readers[name]; ok {
		return r.holders
	}
	return 0
}

// enter counts op and reports an injected failure. d.mu must be held.
func (d *Driver) enter(op Op, name string) error {
	d.calls[op]++
	if code, ok := d.failures[op]; ok {
		return pcsc.NewError(string(op), name, code, nil)
	}
	return nil
}

func (d *Driver) readerNames() []string {
	names := make([]string, 0, len(d.readers))
	for name := range d.readers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
