package services

import "sync"

// UserLocks serializes partition mutations per user. Two concurrent
// claims over the same user's calendar could both snapshot the same
// ranges and recreate conflicting parts; one writer per user removes
// that interleaving. Different users never block each other.
type UserLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewUserLocks() *UserLocks {
	return &UserLocks{locks: make(map[string]*sync.Mutex)}
}

// Lock acquires the mutex for one user, creating it on first use, and
// returns the matching unlock. Locks are never evicted; the user
// population is small and long lived.
func (ul *UserLocks) Lock(userID string) func() {
	ul.mu.Lock()
	m, ok := ul.locks[userID]
	if !ok {
		m = &sync.Mutex{}
		ul.locks[userID] = m
	}
	ul.mu.Unlock()

	m.Lock()
	return m.Unlock
}
