package generate

import "sync"

// Locker serializes generation runs per repository. Runs for different
// repositories proceed in parallel.
type Locker struct {
	mu    sync.Mutex
	repos map[string]*sync.Mutex
}

// NewLocker returns an empty locker.
func NewLocker() *Locker {
	return &Locker{repos: make(map[string]*sync.Mutex)}
}

// Lock blocks until repository is free and returns its unlock function.
func (l *Locker) Lock(repository string) (unlock func()) {
	l.mu.Lock()
	m, ok := l.repos[repository]
	if !ok {
		m = &sync.Mutex{}
		l.repos[repository] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}
