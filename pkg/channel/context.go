package channel

import (
	"fmt"
	"sort"

	"github.com/gregLibert/cardchannel/internal/syncutil"
	"github.com/gregLibert/cardchannel/pkg/pcsc"
)

// Context owns a resource-manager session and lends it to channels.
//
// Channels hold a non-owning reference: every channel attached to a Context
// must be detached before Release succeeds. A Context is safe for use by
// concurrent channels on different readers.
type Context struct {
	session pcsc.Session

	mu       syncutil.Mutex
	released bool
	readers  map[string]*CardChannel
}

// EstablishContext opens a session with d and wraps it.
func EstablishContext(d pcsc.Driver) (*Context, error) {
	s, err := d.Establish()
	if err != nil {
		return nil, fmt.Errorf("establish context: %w", err)
	}
	return NewContext(s), nil
}

// NewContext wraps an already established session.
func NewContext(s pcsc.Session) *Context {
	return &Context{
		session: s,
		readers: make(map[string]*CardChannel),
	}
}

// Session returns the underlying driver session.
func (x *Context) Session() pcsc.Session {
	return x.session
}

// ListReaders returns the readers known to the resource manager.
func (x *Context) ListReaders() ([]string, error) {
	x.mu.Lock()
	released := x.released
	x.mu.Unlock()
	if released {
		return nil, ErrContextReleased
	}
	return x.session.ListReaders()
}

// Channels returns the names of the readers with an attached channel, sorted.
func (x *Context) Channels() []string {
	x.mu.Lock()
	defer x.mu.Unlock()

	names := make([]string, 0, len(x.readers))
	for name := range x.readers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Release tears the session down. It fails with ErrContextInUse while any
// channel is still attached; releasing twice is a no-op.
func (x *Context) Release() error {
	x.mu.Lock()
	defer x.mu.Unlock()

	if x.released {
		return nil
	}
	if n := len(x.readers); n > 0 {
		return fmt.Errorf("%w: %d channel(s) still attached", ErrContextInUse, n)
	}
	x.released = true
	return x.session.Release()
}

// claim records ch as the holder of reader. A channel may claim a reader it
// already holds.
func (x *Context) claim(ch *CardChannel, reader string) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	if x.released {
		return ErrContextReleased
	}
	if holder, ok := x.readers[reader]; ok && holder != ch {
		return fmt.Errorf("%w: %q", ErrReaderInUse, reader)
	}
	x.readers[reader] = ch
	return nil
}

func (x *Context) unclaim(ch *CardChannel, reader string) {
	x.mu.Lock()
	defer x.mu.Unlock()

	if x.readers[reader] == ch {
		delete(x.readers, reader)
	}
}
