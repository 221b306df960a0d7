package store

import (
	"toggle-client/internal/cache"
	"toggle-client/pkg/toggle"
)

// Store holds the current toggle snapshot. The poller is its only writer.
type Store struct {
	snap cache.Snapshot[toggle.Snapshot]
}

func New() *Store { return &Store{} }

// Current returns the latest installed snapshot, or the empty snapshot
// before the first install. It never blocks.
func (s *Store) Current() *toggle.Snapshot {
	if v, ok := s.snap.Load(); ok {
		return v
	}
	return toggle.EmptySnapshot()
}

// Install atomically replaces the current snapshot and returns the one it
// replaced. A nil snapshot is ignored.
func (s *Store) Install(snap *toggle.Snapshot) *toggle.Snapshot {
	if snap == nil {
		return s.Current()
	}
	if prev := s.snap.Swap(snap); prev != nil {
		return prev
	}
	return toggle.EmptySnapshot()
}

// Installed reports whether any fetched snapshot has been installed.
func (s *Store) Installed() bool {
	_, ok := s.snap.Load()
	return ok
}
