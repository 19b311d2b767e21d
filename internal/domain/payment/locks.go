package payment

import "sync"

// Locker serializes payment-state transitions per order. Concurrent captures
// or refunds against the same authorization must never interleave; orders
// remain independent of each other.
type Locker struct {
	mu    sync.Mutex
	locks map[string]*entry
}

type entry struct {
	mu   sync.Mutex
	refs int
}

// NewLocker creates an empty Locker.
func NewLocker() *Locker {
	return &Locker{locks: make(map[string]*entry)}
}

// Lock acquires the mutex for the given order ID and returns its unlock
// function. Entries are reference counted and removed once unused, so the
// map does not grow with order volume.
func (l *Locker) Lock(orderID string) func() {
	l.mu.Lock()
	e, ok := l.locks[orderID]
	if !ok {
		e = &entry{}
		l.locks[orderID] = e
	}
	e.refs++
	l.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		l.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(l.locks, orderID)
		}
		l.mu.Unlock()
	}
}
