package instrument

import "sync"

// LockSet hands out one mutex per instrument serial number. The lock is
// held for a whole connect, configure, stream and disconnect sequence since
// concurrent acquisitions on one device are unsafe.
type LockSet struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewLockSet creates an empty lock set.
func NewLockSet() *LockSet {
	return &LockSet{locks: make(map[string]*sync.Mutex)}
}

// Lock blocks until the lock for serial is held and returns its release
// function.
func (s *LockSet) Lock(serial string) func() {
	s.mu.Lock()
	l, ok := s.locks[serial]
	if !ok {
		l = &sync.Mutex{}
		s.locks[serial] = l
	}
	s.mu.Unlock()

	l.Lock()
	return l.Unlock
}
