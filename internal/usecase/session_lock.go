package usecase

import (
	"context"
	"fmt"
	"sync"
)

// SessionLocker serializes runs per session: two concurrent Run calls
// on the same session ID block each other, different sessions do not.
type SessionLocker struct {
	mu    sync.Mutex
	locks map[string]*sessionMutex
}

type sessionMutex struct {
	mu       sync.Mutex
	refCount int
}

// NewSessionLocker creates an empty locker.
func NewSessionLocker() *SessionLocker {
	return &SessionLocker{locks: make(map[string]*sessionMutex)}
}

// Lock acquires the per-session lock, blocking until acquired or the
// context is cancelled. The returned unlock function must be called
// when the run completes.
func (sl *SessionLocker) Lock(ctx context.Context, sessionID string) (unlock func(), err error) {
	sl.mu.Lock()
	sm, ok := sl.locks[sessionID]
	if !ok {
		sm = &sessionMutex{}
		sl.locks[sessionID] = sm
	}
	sm.refCount++
	sl.mu.Unlock()

	release := func() {
		sm.mu.Unlock()
		sl.mu.Lock()
		sm.refCount--
		if sm.refCount == 0 {
			delete(sl.locks, sessionID)
		}
		sl.mu.Unlock()
	}

	acquired := make(chan struct{})
	go func() {
		sm.mu.Lock()
		close(acquired)
	}()

	select {
	case <-acquired:
		return release, nil
	case <-ctx.Done():
		// The acquiring goroutine may still win the mutex later; it
		// must then release immediately or the lock leaks forever.
		go func() {
			<-acquired
			release()
		}()
		return nil, fmt.Errorf("session lock: %w", ctx.Err())
	}
}

// ActiveCount returns the number of sessions with active or pending
// locks. Intended for tests.
func (sl *SessionLocker) ActiveCount() int {
	sl.mu.Lock()
	defer sl.mu.Unlock()
	return len(sl.locks)
}
