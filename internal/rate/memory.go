package rate

import (
	"context"
	"sync"
	"time"
)

// Sweeper is implemented by counter stores that do not expire keys on
// their own and need periodic cleanup.
type Sweeper interface {
	Sweep() int
}

type memoryCounter struct {
	count     int64
	expiresAt time.Time
}

// MemoryStore is a process-local CounterStore for single-instance
// deployments and tests.
type MemoryStore struct {
	mu       sync.Mutex
	counters map[string]*memoryCounter
	now      func() time.Time
}

// NewMemoryStore returns an empty store. now defaults to time.Now.
func NewMemoryStore(now func() time.Time) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{
		counters: make(map[string]*memoryCounter),
		now:      now,
	}
}

func (s *MemoryStore) IncrementAndGet(_ context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	c, ok := s.counters[key]
	if !ok || !now.Before(c.expiresAt) {
		c = &memoryCounter{expiresAt: now.Add(window)}
		s.counters[key] = c
	}
	c.count++

	return c.count, c.expiresAt.Sub(now), nil
}

func (s *MemoryStore) Expire(_ context.Context, key string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.counters[key]; ok {
		c.expiresAt = s.now().Add(ttl)
	}
	return nil
}

func (s *MemoryStore) Reset(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.counters, key)
	return nil
}

// Sweep drops expired counters and returns how many were removed.
func (s *MemoryStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for key, c := range s.counters {
		if !now.Before(c.expiresAt) {
			delete(s.counters, key)
			removed++
		}
	}
	return removed
}
