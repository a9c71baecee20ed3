package service

import "sync"

// userLocks serializes all row-level work for one user's cart, so a
// background reconciliation's clear-and-replace never interleaves with an
// optimistic mutation.
type userLocks struct {
	mu    sync.Mutex
	users map[string]*sync.Mutex
}

// lock blocks until the user's lock is held and returns the unlock func.
func (l *userLocks) lock(userID string) func() {
	l.mu.Lock()
	if l.users == nil {
		l.users = make(map[string]*sync.Mutex)
	}
	m, ok := l.users[userID]
	if !ok {
		m = &sync.Mutex{}
		l.users[userID] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}
