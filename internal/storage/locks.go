package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/franz/music-indexer/internal/util"
)

// LockRegistry hands out exclusive advisory locks keyed by absolute
// path. Writers hold a band's lock for the whole read-modify-write
// cycle; the collection index has a key of its own. Lock entries are
// created on demand and dropped once nobody waits on them.
type LockRegistry struct {
	mu    sync.Mutex
	locks map[string]*pathLock
}

type pathLock struct {
	ch   chan struct{} // buffered(1), full while held
	refs int
}

// NewLockRegistry creates an empty registry.
func NewLockRegistry() *LockRegistry {
	return &LockRegistry{locks: map[string]*pathLock{}}
}

// Acquire blocks until the lock for key is free, the timeout elapses
// or ctx is cancelled. On success the returned function releases the
// lock and must be called exactly once.
func (r *LockRegistry) Acquire(ctx context.Context, key string, timeout time.Duration) (func(), error) {
	r.mu.Lock()
	l, ok := r.locks[key]
	if !ok {
		l = &pathLock{ch: make(chan struct{}, 1)}
		r.locks[key] = l
	}
	l.refs++
	r.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case l.ch <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-l.ch
				r.unref(key, l)
			})
		}, nil
	case <-ctx.Done():
		r.unref(key, l)
		return nil, fmt.Errorf("waiting for lock on %s: %w", key, ctx.Err())
	case <-timer.C:
		r.unref(key, l)
		return nil, fmt.Errorf("%w: %s not acquired within %s", util.ErrLock, key, timeout)
	}
}

func (r *LockRegistry) unref(key string, l *pathLock) {
	r.mu.Lock()
	l.refs--
	if l.refs == 0 {
		delete(r.locks, key)
	}
	r.mu.Unlock()
}

// Held reports how many locks are currently registered, for tests and
// shutdown diagnostics.
func (r *LockRegistry) Held() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.locks)
}
