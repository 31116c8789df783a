package channel

import (
	"errors"
	"fmt"
)

var (
	// ErrIllegalState means an operation was called from a state that does
	// not allow it. It reports a misuse of the channel, not a card condition.
	ErrIllegalState = errors.New("illegal channel state")

	// ErrEmptyReaderName is returned by Attach for an empty reader name.
	ErrEmptyReaderName = errors.New("empty reader name")

	// ErrContextReleased is returned when attaching to a released Context.
	ErrContextReleased = errors.New("context released")

	// ErrContextInUse is returned by Release while channels are attached.
	ErrContextInUse = errors.New("context has attached channels")

	// ErrReaderInUse is returned when a second channel attaches a reader
	// already held on the same Context.
	ErrReaderInUse = errors.New("reader already attached on this context")
)

// StateError reports the operation that was rejected and the state the
// channel was in. It matches ErrIllegalState with errors.Is.
type StateError struct {
	Op    string
	State State
}

func (e *StateError) Error() string {
	return fmt.Sprintf("%s: %v (channel is %s)", e.Op, ErrIllegalState, e.State)
}

func (e *StateError) Unwrap() error {
	return ErrIllegalState
}
