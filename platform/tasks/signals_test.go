package tasks

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignalBus_SignalBeforeWait(t *testing.T) {
	bus := NewSignalBus()
	bus.Signal("done:a")

	err := bus.Wait(context.Background(), "done:a", 100*time.Millisecond)
	assert.NoError(t, err)
}

func TestSignalBus_WaitBeforeSignal(t *testing.T) {
	bus := NewSignalBus()

	errCh := make(chan error, 1)
	go func() {
		errCh <- bus.Wait(context.Background(), "done:b", 5*time.Second)
	}()

	time.Sleep(20 * time.Millisecond)
	bus.Signal("done:b")

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("waiter never woke up")
	}
}

func TestSignalBus_TimeoutIsRecoverable(t *testing.T) {
	bus := NewSignalBus()

	err := bus.Wait(context.Background(), "never", 30*time.Millisecond)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "never")

	// A late signal after a timed-out wait must still be consumable.
	bus.Signal("never")
	assert.NoError(t, bus.Wait(context.Background(), "never", 30*time.Millisecond))
}

func TestSignalBus_ContextCancellation(t *testing.T) {
	bus := NewSignalBus()
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() {
		errCh <- bus.Wait(ctx, "blocked", time.Minute)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("waiter not released by cancellation")
	}
}

func TestSignalBus_WaitAllIsUnordered(t *testing.T) {
	bus := NewSignalBus()

	// Raised out of order relative to the wait list.
	bus.Signal("child:3")
	bus.Signal("child:1")
	bus.Signal("child:2")

	err := bus.WaitAll(context.Background(), []string{"child:1", "child:2", "child:3"}, 100*time.Millisecond)
	assert.NoError(t, err)
}

func TestSignalBus_EachSignalWakesOneWaiter(t *testing.T) {
	bus := NewSignalBus()
	bus.Signal("once")

	require.NoError(t, bus.Wait(context.Background(), "once", 50*time.Millisecond))
	assert.Error(t, bus.Wait(context.Background(), "once", 30*time.Millisecond))
}
