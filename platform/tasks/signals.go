package tasks

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// SignalBus is the fan-in mechanism between parent and child tasks: a
// child signals a named completion, a parent waits for it with a bounded
// timeout. Signals raised before anyone waits are buffered, so the order
// of signal and wait does not matter.
type SignalBus struct {
	mu      sync.Mutex
	pending map[string]int
	waiters map[string][]chan struct{}
}

// NewSignalBus creates an empty signal bus.
func NewSignalBus() *SignalBus {
	return &SignalBus{
		pending: make(map[string]int),
		waiters: make(map[string][]chan struct{}),
	}
}

// Signal raises one occurrence of the named signal, waking exactly one
// waiter if any is parked.
func (b *SignalBus) Signal(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if queue := b.waiters[name]; len(queue) > 0 {
		ch := queue[0]
		b.waiters[name] = queue[1:]
		close(ch)
		return
	}
	b.pending[name]++
}

// Wait blocks until one occurrence of the named signal is consumed, the
// timeout elapses, or the context is cancelled. A timeout is a
// recoverable failure path so a stuck child cannot block its parent
// forever.
//
// A waiting task is parked, not working: its concurrency slots are
// handed back to the runner for the duration of the wait and reacquired
// before Wait returns. The children it waits on would otherwise be
// starved of slots once the wait chain is deeper than the limits.
func (b *SignalBus) Wait(ctx context.Context, name string, timeout time.Duration) error {
	b.mu.Lock()
	if b.pending[name] > 0 {
		b.pending[name]--
		if b.pending[name] == 0 {
			delete(b.pending, name)
		}
		b.mu.Unlock()
		return nil
	}

	ch := make(chan struct{})
	b.waiters[name] = append(b.waiters[name], ch)
	b.mu.Unlock()

	slots := slotsFromContext(ctx)
	if slots != nil {
		slots.release()
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var waitErr error
	select {
	case <-ch:
	case <-timer.C:
		b.removeWaiter(name, ch)
		waitErr = fmt.Errorf("timed out after %s waiting for signal %q", timeout, name)
	case <-ctx.Done():
		b.removeWaiter(name, ch)
		waitErr = ctx.Err()
	}

	if slots != nil {
		if err := slots.acquire(ctx); err != nil && waitErr == nil {
			waitErr = err
		}
	}
	return waitErr
}

// WaitAll performs an unordered union wait over several signals.
func (b *SignalBus) WaitAll(ctx context.Context, names []string, timeout time.Duration) error {
	for _, name := range names {
		if err := b.Wait(ctx, name, timeout); err != nil {
			return err
		}
	}
	return nil
}

func (b *SignalBus) removeWaiter(name string, ch chan struct{}) {
	b.mu.Lock()
	defer b.mu.Unlock()

	queue := b.waiters[name]
	for i, c := range queue {
		if c == ch {
			b.waiters[name] = append(queue[:i], queue[i+1:]...)
			return
		}
	}
	// The signaller closed the channel between timeout and removal; put
	// the occurrence back so it is not lost.
	select {
	case <-ch:
		b.pending[name]++
	default:
	}
}
