package ratelimit

import (
	"context"
	"sync"
	"time"
)

type window struct {
	count int64
	ends  time.Time
}

// MemoryStore is an in-process Store for tests and single-instance runs.
// The mutex makes Incr atomic across goroutines.
type MemoryStore struct {
	mu      sync.Mutex
	windows map[string]*window
	now     func() time.Time
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		windows: make(map[string]*window),
		now:     time.Now,
	}
}

// WithClock overrides the store clock. Used by tests to move windows.
func (s *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	s.now = now
	return s
}

// Incr increments the counter for key, starting a fresh window when none
// exists or the previous one has elapsed.
func (s *MemoryStore) Incr(_ context.Context, key string, windowLen time.Duration) (int64, time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	w, ok := s.windows[key]
	if !ok || !now.Before(w.ends) {
		w = &window{ends: now.Add(windowLen)}
		s.windows[key] = w
	}
	w.count++
	return w.count, w.ends.Sub(now), nil
}

// Reset removes the counter for key.
func (s *MemoryStore) Reset(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.windows, key)
	return nil
}
