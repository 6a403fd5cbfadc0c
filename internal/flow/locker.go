package flow

import (
	"context"
	"sync"
	"time"

	"github.com/venuefarm/bookingbot/internal/store"
)

// ErrLockTimeout is returned when an identifier stays busy longer than the lock wait.
var ErrLockTimeout = store.ErrLockTimeout

// Locker serializes work per key. The returned function releases the lock.
type Locker interface {
	Lock(ctx context.Context, key string) (func(), error)
}

var (
	_ Locker = (*KeyedLocker)(nil)
	_ Locker = (*store.RedisLocker)(nil)
)

type keyedEntry struct {
	sem  chan struct{}
	refs int
}

// KeyedLocker is an in-process Locker. Entries are dropped once no caller
// holds or waits for them, so idle identifiers cost nothing.
type KeyedLocker struct {
	mu      sync.Mutex
	entries map[string]*keyedEntry
	wait    time.Duration
}

// NewKeyedLocker creates a locker. A positive wait bounds how long Lock blocks.
func NewKeyedLocker(wait time.Duration) *KeyedLocker {
	return &KeyedLocker{entries: make(map[string]*keyedEntry), wait: wait}
}

// Lock blocks until key is free, ctx is done, or the wait elapses.
func (l *KeyedLocker) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	e, ok := l.entries[key]
	if !ok {
		e = &keyedEntry{sem: make(chan struct{}, 1)}
		l.entries[key] = e
	}
	e.refs++
	l.mu.Unlock()

	var timeout <-chan time.Time
	if l.wait > 0 {
		timer := time.NewTimer(l.wait)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case e.sem <- struct{}{}:
	case <-ctx.Done():
		l.release(key, e, false)
		return nil, ctx.Err()
	case <-timeout:
		l.release(key, e, false)
		return nil, ErrLockTimeout
	}

	var once sync.Once
	return func() {
		once.Do(func() { l.release(key, e, true) })
	}, nil
}

func (l *KeyedLocker) release(key string, e *keyedEntry, held bool) {
	if held {
		<-e.sem
	}
	l.mu.Lock()
	e.refs--
	if e.refs == 0 {
		delete(l.entries, key)
	}
	l.mu.Unlock()
}

// Len reports how many keys are currently held or awaited.
func (l *KeyedLocker) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
