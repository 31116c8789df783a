//go:build !deadlock

// Package syncutil provides the mutex types shared by contexts and drivers.
// Building with -tags=deadlock swaps in go-deadlock so lock-order problems
// between concurrent channels show up in tests.
package syncutil

import "sync"

// Mutex is a plain sync.Mutex in regular builds.
type Mutex struct {
	sync.Mutex
}

// RWMutex is a plain sync.RWMutex in regular builds.
type RWMutex struct {
	sync.RWMutex
}
