package pcsc

import (
	"fmt"
	"log"
	"sort"

	"github.com/gregLibert/cardchannel/internal/syncutil"
)

var (
	registryMu syncutil.RWMutex
	drivers    = make(map[string]Driver)
)

// Register makes a driver available under name. Driver packages call it from
// init; registering the same name twice is a programming error.
func Register(name string, d Driver) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if d == nil {
		log.Fatalf("Register(%q, nil) driver is nil", name)
	}
	if _, ok := drivers[name]; ok {
		log.Fatalf("Register(%q, _) duplicate driver registration", name)
	}
	drivers[name] = d
}

// Lookup returns the driver registered under name.
func Lookup(name string) (Driver, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	d, ok := drivers[name]
	if !ok {
		return nil, fmt.Errorf("driver %q not registered (available: %v)", name, driversLocked())
	}
	return d, nil
}

// Drivers returns the registered driver names, sorted.
func Drivers() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return driversLocked()
}

func driversLocked() []string {
	names := make([]string, 0, len(drivers))
	for name := range drivers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
