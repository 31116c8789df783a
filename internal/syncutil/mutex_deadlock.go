//go:build deadlock

// Package syncutil provides the mutex types shared by contexts and drivers.
// Building with -tags=deadlock swaps in go-deadlock so lock-order problems
// between concurrent channels show up in tests.
package syncutil

import deadlock "github.com/sasha-s/go-deadlock"

// Mutex wraps deadlock.Mutex for deadlock detection.
type Mutex struct {
	deadlock.Mutex
}

// RWMutex wraps deadlock.RWMutex for deadlock detection.
type RWMutex struct {
	deadlock.RWMutex
}
