package store

import (
	"context"
	"sync"
	"time"

	"github.com/AmirTlinov/context-pack/internal/pack"
)

// lockTable hands out one exclusive lock per key. Entries are created on demand
// and dropped when no goroutine holds or waits for them.
type lockTable struct {
	mu    sync.Mutex
	locks map[string]*lockEntry
}

type lockEntry struct {
	sem  chan struct{}
	refs int
}

func newLockTable() *lockTable {
	return &lockTable{locks: make(map[string]*lockEntry)}
}

// acquire waits at most timeout for the lock on key. The returned func releases it.
func (t *lockTable) acquire(ctx context.Context, key string, timeout time.Duration) (func(), error) {
	t.mu.Lock()
	e, ok := t.locks[key]
	if !ok {
		e = &lockEntry{sem: make(chan struct{}, 1)}
		t.locks[key] = e
	}
	e.refs++
	t.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case e.sem <- struct{}{}:
		return func() {
			<-e.sem
			t.release(key, e)
		}, nil
	case <-timer.C:
		t.release(key, e)
		return nil, pack.LockTimeout(key, timeout.Milliseconds())
	case <-ctx.Done():
		t.release(key, e)
		return nil, ctx.Err()
	}
}

func (t *lockTable) release(key string, e *lockEntry) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(t.locks, key)
	}
}

// size reports how many keys currently have holders or waiters.
func (t *lockTable) size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.locks)
}
