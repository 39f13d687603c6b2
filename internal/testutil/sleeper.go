package testutil

import (
	"context"
	"sync"
	"time"
)

// FakeSleeper records requested waits instead of sleeping.
//
// Safe for concurrent use.
type FakeSleeper struct {
	mu    sync.Mutex
	waits []time.Duration

	// Err, when set, is returned from every Sleep after recording the wait.
	Err error
}

// Sleep records d and returns immediately. It honours a cancelled context.
func (s *FakeSleeper) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	s.waits = append(s.waits, d)
	return s.Err
}

// Waits returns a copy of the recorded waits in order.
func (s *FakeSleeper) Waits() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]time.Duration, len(s.waits))
	copy(out, s.waits)
	return out
}

// Total returns the sum of the recorded waits.
func (s *FakeSleeper) Total() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	var total time.Duration
	for _, w := range s.waits {
		total += w
	}
	return total
}

// Reset forgets the recorded waits.
func (s *FakeSleeper) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.waits = nil
}

// FixedJitter returns a jitter source that always yields d.
func FixedJitter(d time.Duration) func() time.Duration {
	return func() time.Duration { return d }
}
