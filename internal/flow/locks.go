package flow

import "sync"

// userLocks serializes turns per user. The lock map grows with the number of
// distinct users seen by this process; entries are never evicted, which is
// acceptable for the single-instance deployment this serves.
type userLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// lock acquires the per-user mutex and returns its release function.
func (l *userLocks) lock(userID string) func() {
	l.mu.Lock()
	if l.locks == nil {
		l.locks = make(map[string]*sync.Mutex)
	}
	m, ok := l.locks[userID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[userID] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}
