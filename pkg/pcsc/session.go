package pcsc

// Session is a resource-manager context established by a Driver. All card
// operations are keyed by reader name; a session holds at most one card
// connection per reader.
//
// Implementations must be safe for concurrent use on different readers. Calls
// targeting the same reader are serialized by the caller.
type Session interface {
	// ListReaders returns the readers currently known to the resource manager.
	ListReaders() ([]string, error)

	// Connect opens a card connection and returns the negotiated protocol.
	Connect(reader string, mode ShareMode, preferred Protocol) (Protocol, error)

	// Reconnect re-establishes an open connection, applying init to the card
	// first, and returns the newly negotiated protocol.
	Reconnect(reader string, mode ShareMode, preferred Protocol, init Disposition) (Protocol, error)

	// Disconnect closes the connection, applying d to the card. The session
	// forgets the connection even when the resource manager reports an error.
	Disconnect(reader string, d Disposition) error

	// Transmit sends a raw command APDU using the protocol control block
	// described by pci and returns the raw response APDU.
	Transmit(reader string, pci IoControlDescriptor, command []byte) ([]byte, error)

	// GetAttrib copies the attribute value into buf and returns the number of
	// bytes written. A value larger than buf fails with InsufficientBuffer.
	GetAttrib(reader string, attr Attrib, buf []byte) (int, error)

	// Status classifies the card in the reader. It never fails; problems
	// reaching the card are folded into the returned state.
	Status(reader string) CardState

	// Release tears the context down and drops any connection left open.
	Release() error
}

// Driver is one platform binding to a resource manager.
type Driver interface {
	// Establish opens a new resource-manager context.
	Establish() (Session, error)
}

// DriverFunc adapts a plain function to the Driver interface.
type DriverFunc func() (Session, error)

// Establish calls f.
func (f DriverFunc) Establish() (Session, error) {
	return f()
}
