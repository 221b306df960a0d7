package cache

import "sync/atomic"

// Snapshot is a lock-free, read-optimized cell holding an immutable value.
// Writers replace the whole value; readers never observe a partial one.
type Snapshot[T any] struct{ p atomic.Pointer[T] }

// Load returns the current value and whether one has been stored.
func (s *Snapshot[T]) Load() (*T, bool) {
	v := s.p.Load()
	return v, v != nil
}

// Store atomically swaps in the new value.
func (s *Snapshot[T]) Store(v *T) {
	s.p.Store(v)
}

// Swap stores v and returns the previous value.
func (s *Snapshot[T]) Swap(v *T) *T {
	return s.p.Swap(v)
}
