package sessions

import (
	"sync"
	"time"
)

// tells the registry which ids already have persisted history
type Lookup interface {
	Exists(sessionID string) bool
}

// maps session ids to independently lockable entries
type Registry struct {
	mu      sync.Mutex
	entries map[string]*entry
	lookup  Lookup
	now     func() time.Time
}

// per-session lock. sem has capacity 1; holding a token means holding the
// session. refs counts the holder plus every queued waiter.
type entry struct {
	sem      chan struct{}
	refs     int
	lastUsed time.Time
}

// exclusive hold on one session, returned by Acquire
type Lease struct {
	registry   *Registry
	sessionID  string
	entry      *entry
	acquiredAt time.Time
	once       sync.Once
}

// handles eviction of idle registry entries
type CleanupService struct {
	registry            *Registry
	checkInterval       time.Duration
	inactivityThreshold time.Duration
}
