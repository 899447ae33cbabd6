package sessions

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// returns a new registry. lookup may be nil, in which case only ids
// issued by this process are recognized.
func NewRegistry(lookup Lookup) *Registry {
	return &Registry{
		entries: make(map[string]*entry),
		lookup:  lookup,
		now:     time.Now,
	}
}

// returns a fresh random session id in canonical form
func NewSessionID() string {
	return uuid.New().String()
}

// validates a client-supplied token. only canonical lowercase UUIDs pass.
func ParseID(token string) (string, error) {
	parsed, err := uuid.Parse(token)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidSessionID, err)
	}

	if parsed.String() != token {
		return "", fmt.Errorf("%w: not canonical", ErrInvalidSessionID)
	}

	return token, nil
}

// maps a client token to a session id. a known token comes back as is;
// an absent, malformed or unknown one yields a newly registered id and
// created=true.
func (r *Registry) Resolve(token string) (sessionID string, created bool) {
	if id, err := ParseID(token); err == nil {
		if r.touch(id) {
			return id, false
		}

		// disk lookup happens outside the map lock
		if r.lookup != nil && r.lookup.Exists(id) {
			r.register(id)
			return id, false
		}
	}

	for {
		id := NewSessionID()

		if r.lookup != nil && r.lookup.Exists(id) {
			continue
		}

		if r.registerNew(id) {
			return id, true
		}
	}
}

// waits until no other run holds the session, then returns a lease.
// the only error is ctx ending while queued, in which case nothing is held.
func (r *Registry) Acquire(ctx context.Context, sessionID string) (*Lease, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	e, ok := r.entries[sessionID]
	if !ok {
		e = newEntry(r.now())
		r.entries[sessionID] = e
	}
	e.refs++
	r.mu.Unlock()

	select {
	case e.sem <- struct{}{}:
		return &Lease{
			registry:   r,
			sessionID:  sessionID,
			entry:      e,
			acquiredAt: r.now(),
		}, nil

	case <-ctx.Done():
		r.unref(e)
		return nil, ctx.Err()
	}
}

// reports whether the session is currently held by a run
func (r *Registry) Busy(sessionID string) bool {
	r.mu.Lock()
	e, ok := r.entries[sessionID]
	r.mu.Unlock()

	return ok && len(e.sem) > 0
}

// returns the number of tracked sessions
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.entries)
}

// drops entries nobody holds or waits for and that were last used before
// the cutoff. returns how many were removed.
func (r *Registry) EvictIdle(cutoff time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for id, e := range r.entries {
		if e.refs == 0 && e.lastUsed.Before(cutoff) {
			delete(r.entries, id)
			removed++
		}
	}

	return removed
}

// returns the id of the held session
func (l *Lease) SessionID() string {
	return l.sessionID
}

// returns how long the lease has been held
func (l *Lease) Held() time.Duration {
	return l.registry.now().Sub(l.acquiredAt)
}

// gives the session back. safe to call more than once.
func (l *Lease) Release() {
	l.once.Do(func() {
		<-l.entry.sem
		l.registry.unref(l.entry)
	})
}

func newEntry(now time.Time) *entry {
	return &entry{
		sem:      make(chan struct{}, 1),
		lastUsed: now,
	}
}

func (r *Registry) touch(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if ok {
		e.lastUsed = r.now()
	}

	return ok
}

func (r *Registry) register(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.entries[id]; ok {
		e.lastUsed = r.now()
		return
	}

	r.entries[id] = newEntry(r.now())
}

func (r *Registry) registerNew(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[id]; ok {
		return false
	}

	r.entries[id] = newEntry(r.now())

	return true
}

func (r *Registry) unref(e *entry) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e.refs--
	e.lastUsed = r.now()
}
