package sessions

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLookup struct {
	mu    sync.Mutex
	known map[string]bool
	calls int
}

func (f *fakeLookup) Exists(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls++

	return f.known[id]
}

func TestResolveIssuesDistinctIDs(t *testing.T) {
	r := NewRegistry(nil)
	seen := make(map[string]bool)

	for _, token := range []string{"", "garbage", uuid.NewString(), "", "../../x"} {
		id, created := r.Resolve(token)
		assert.True(t, created, token)
		assert.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true

		_, err := ParseID(id)
		assert.NoError(t, err)
	}
}

func TestResolveConcurrentUnknownTokensNeverCollide(t *testing.T) {
	r := NewRegistry(nil)

	const n = 200
	ids := make(chan string, n)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, created := r.Resolve("")
			assert.True(t, created)
			ids <- id
		}()
	}

	wg.Wait()
	close(ids)

	seen := make(map[string]bool, n)
	for id := range ids {
		assert.False(t, seen[id])
		seen[id] = true
	}

	assert.Equal(t, n, r.Len())
}

func TestResolveKnownTokenReturnsSameID(t *testing.T) {
	r := NewRegistry(nil)
	id, created := r.Resolve("")
	require.True(t, created)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, created := r.Resolve(id)
			assert.Equal(t, id, got)
			assert.False(t, created)
		}()
	}

	wg.Wait()
	assert.Equal(t, 1, r.Len())
}

func TestResolveRecognizesPersistedSessions(t *testing.T) {
	persisted := uuid.NewString()
	lookup := &fakeLookup{known: map[string]bool{persisted: true}}
	r := NewRegistry(lookup)

	id, created := r.Resolve(persisted)
	assert.Equal(t, persisted, id)
	assert.False(t, created)

	// registered now, so no second disk lookup
	calls := lookup.calls
	_, _ = r.Resolve(persisted)
	assert.Equal(t, calls, lookup.calls)
}

func TestResolveRejectsNonCanonicalTokens(t *testing.T) {
	persisted := uuid.NewString()
	r := NewRegistry(&fakeLookup{known: map[string]bool{persisted: true}})

	for _, token := range []string{strings.ToUpper(persisted), "{" + persisted + "}", "urn:uuid:" + persisted} {
		id, created := r.Resolve(token)
		assert.True(t, created, token)
		assert.NotEqual(t, persisted, id, token)
	}
}

func TestAcquireSerializesSameSession(t *testing.T) {
	r := NewRegistry(nil)
	id, _ := r.Resolve("")

	var active, maxActive int32
	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			lease, err := r.Acquire(context.Background(), id)
			if !assert.NoError(t, err) {
				return
			}
			defer lease.Release()

			now := atomic.AddInt32(&active, 1)
			for {
				prev := atomic.LoadInt32(&maxActive)
				if now <= prev || atomic.CompareAndSwapInt32(&maxActive, prev, now) {
					break
				}
			}

			time.Sleep(5 * time.Millisecond)
			atomic.AddInt32(&active, -1)
		}()
	}

	wg.Wait()
	assert.Equal(t, int32(1), maxActive)
	assert.False(t, r.Busy(id))
}

func TestAcquireDifferentSessionsAreIndependent(t *testing.T) {
	r := NewRegistry(nil)
	a, _ := r.Resolve("")
	b, _ := r.Resolve("")

	leaseA, err := r.Acquire(context.Background(), a)
	require.NoError(t, err)
	defer leaseA.Release()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	leaseB, err := r.Acquire(ctx, b)
	require.NoError(t, err)
	leaseB.Release()

	assert.True(t, r.Busy(a))
	assert.False(t, r.Busy(b))
}

func TestAcquireWaitsForRelease(t *testing.T) {
	r := NewRegistry(nil)
	id, _ := r.Resolve("")

	first, err := r.Acquire(context.Background(), id)
	require.NoError(t, err)

	acquired := make(chan *Lease)
	go func() {
		lease, err := r.Acquire(context.Background(), id)
		assert.NoError(t, err)
		acquired <- lease
	}()

	select {
	case <-acquired:
		t.Fatal("second acquire should wait")
	case <-time.After(30 * time.Millisecond):
	}

	first.Release()

	select {
	case lease := <-acquired:
		assert.Equal(t, id, lease.SessionID())
		lease.Release()
	case <-time.After(time.Second):
		t.Fatal("second acquire never completed")
	}
}

func TestAcquireCanceledWhileWaiting(t *testing.T) {
	r := NewRegistry(nil)
	id, _ := r.Resolve("")

	held, err := r.Acquire(context.Background(), id)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	lease, err := r.Acquire(ctx, id)
	assert.Nil(t, lease)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	held.Release()

	// the abandoned waiter holds nothing
	lease, err = r.Acquire(context.Background(), id)
	require.NoError(t, err)
	lease.Release()
}

func TestReleaseIsIdempotent(t *testing.T) {
	r := NewRegistry(nil)
	id, _ := r.Resolve("")

	lease, err := r.Acquire(context.Background(), id)
	require.NoError(t, err)

	lease.Release()
	lease.Release()

	other, err := r.Acquire(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, r.Busy(id))

	// a stale second release must not free someone else's hold
	lease.Release()
	assert.True(t, r.Busy(id))

	other.Release()
	assert.False(t, r.Busy(id))
}

func TestEvictIdleKeepsActiveEntries(t *testing.T) {
	r := NewRegistry(nil)
	idle, _ := r.Resolve("")
	busy, _ := r.Resolve("")

	lease, err := r.Acquire(context.Background(), busy)
	require.NoError(t, err)
	defer lease.Release()

	removed := r.EvictIdle(time.Now().Add(time.Minute))
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, r.Len())

	// evicted ids are unknown without persisted history
	id, created := r.Resolve(idle)
	assert.True(t, created)
	assert.NotEqual(t, idle, id)
}

func TestCleanupServiceStopsOnCancel(t *testing.T) {
	r := NewRegistry(nil)
	r.Resolve("")

	svc := NewCleanupService(r, 5*time.Millisecond, 0)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		svc.Start(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return r.Len() == 0 }, time.Second, 5*time.Millisecond)

	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("cleanup service did not stop")
	}
}
