// Package caching provides the console's short-lived response caching and
// poll de-duplication.
package caching

import (
	"sync"
)

// PollLock ensures only one scheduled re-fetch exists for a given cache key at a time.
type PollLock struct {
	mu    sync.Mutex
	locks map[string]struct{}
}

// NewPollLock creates a new instance of a PollLock.
func NewPollLock() *PollLock {
	return &PollLock{
		locks: make(map[string]struct{}),
	}
}

// TryLock attempts to acquire the poll slot for a key.
// It returns false if a poll for that key is already pending. Non-blocking.
func (l *PollLock) TryLock(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.locks[key]; exists {
		return false
	}

	l.locks[key] = struct{}{}
	return true
}

// Unlock releases the poll slot for a key.
func (l *PollLock) Unlock(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	delete(l.locks, key)
}

// Reset releases every slot.
func (l *PollLock) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.locks = make(map[string]struct{})
}
