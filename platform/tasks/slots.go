package tasks

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// workSlots are the concurrency slots one running task holds: one on the
// runner-wide limiter and one on its organisation's limiter. The signal
// bus hands them back while the task is parked in a fan-in wait, so a
// parent waiting on its recursive children never starves them of slots.
type workSlots struct {
	global *semaphore.Weighted
	org    *semaphore.Weighted

	mu   sync.Mutex
	held bool
}

// acquire takes both slots, global first. No-op if already held.
func (s *workSlots) acquire(ctx context.Context) error {
	s.mu.Lock()
	if s.held {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	if err := s.global.Acquire(ctx, 1); err != nil {
		return err
	}
	if err := s.org.Acquire(ctx, 1); err != nil {
		s.global.Release(1)
		return err
	}

	s.mu.Lock()
	s.held = true
	s.mu.Unlock()
	return nil
}

// release hands both slots back. No-op if not held.
func (s *workSlots) release() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.held {
		return
	}
	s.held = false
	s.org.Release(1)
	s.global.Release(1)
}

type slotsKey struct{}

func withSlots(ctx context.Context, slots *workSlots) context.Context {
	return context.WithValue(ctx, slotsKey{}, slots)
}

// slotsFromContext returns the calling task's slots, or nil when the
// caller is not running on the task substrate.
func slotsFromContext(ctx context.Context) *workSlots {
	slots, _ := ctx.Value(slotsKey{}).(*workSlots)
	return slots
}
