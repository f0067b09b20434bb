package detection

import "sync"

// Snapshot holds the most recent object list. Publish swaps the list
// reference under a mutex and Load returns that reference, so readers
// always see one complete published list. The mutex is never held while
// detecting or computing.
type Snapshot struct {
	mu    sync.Mutex
	objs  []Object
	found bool
	seq   uint64
}

// Publish replaces the current list. The slice is copied so later changes
// by the caller cannot leak into readers.
func (s *Snapshot) Publish(objs []Object) {
	next := make([]Object, len(objs))
	copy(next, objs)

	s.mu.Lock()
	s.objs = next
	s.found = len(next) > 0
	s.seq++
	s.mu.Unlock()
}

// Load returns the current list and its sequence number. The returned
// slice must be treated as read-only.
func (s *Snapshot) Load() ([]Object, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.objs, s.seq
}

// Seq returns the number of publications so far.
func (s *Snapshot) Seq() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seq
}

// Found reports whether the latest publication contained any object.
func (s *Snapshot) Found() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.found
}
