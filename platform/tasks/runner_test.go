package tasks

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spsync/logging"
)

func TestRunner_ExecutesTask(t *testing.T) {
	runner := NewRunner(Config{Workers: 2}, logging.NewLogger(logging.DefaultConfig()))

	done := make(chan Task, 1)
	runner.Register("echo", func(ctx context.Context, task Task) error {
		done <- task
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer func() { cancel(); runner.Stop() }()
	runner.Start(ctx)

	require.NoError(t, runner.Enqueue(ctx, Task{Kind: "echo", OrgID: "org-1", Params: "hello"}))

	select {
	case task := <-done:
		assert.Equal(t, "hello", task.Params)
		assert.NotEmpty(t, task.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("task never ran")
	}
}

func TestRunner_RejectsUnknownKind(t *testing.T) {
	runner := NewRunner(Config{}, logging.NewLogger(logging.DefaultConfig()))

	err := runner.Enqueue(context.Background(), Task{Kind: "mystery", OrgID: "org-1"})
	assert.Error(t, err)
}

func TestRunner_RetriesTransientFailures(t *testing.T) {
	runner := NewRunner(Config{Workers: 1, MaxAttempts: 3}, logging.NewLogger(logging.DefaultConfig()))

	var attempts atomic.Int32
	done := make(chan struct{})
	runner.Register("flaky", func(ctx context.Context, task Task) error {
		if attempts.Add(1) < 3 {
			return errors.New("transient")
		}
		close(done)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer func() { cancel(); runner.Stop() }()
	runner.Start(ctx)

	require.NoError(t, runner.Enqueue(ctx, Task{Kind: "flaky", OrgID: "org-1"}))

	select {
	case <-done:
		assert.Equal(t, int32(3), attempts.Load())
	case <-time.After(10 * time.Second):
		t.Fatal("task was not retried to completion")
	}
}

func TestRunner_NonRetriableFailsImmediately(t *testing.T) {
	runner := NewRunner(Config{Workers: 1, MaxAttempts: 5}, logging.NewLogger(logging.DefaultConfig()))

	var attempts atomic.Int32
	ran := make(chan struct{}, 5)
	runner.Register("doomed", func(ctx context.Context, task Task) error {
		attempts.Add(1)
		ran <- struct{}{}
		return NonRetriable(errors.New("organisation row missing"))
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer func() { cancel(); runner.Stop() }()
	runner.Start(ctx)

	require.NoError(t, runner.Enqueue(ctx, Task{Kind: "doomed", OrgID: "org-1"}))

	<-ran
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(1), attempts.Load())
}

func TestRunner_PerOrgConcurrencyLimit(t *testing.T) {
	runner := NewRunner(Config{Workers: 8, OrgConcurrency: 2}, logging.NewLogger(logging.DefaultConfig()))

	var mu sync.Mutex
	var running, peak int
	block := make(chan struct{})

	runner.Register("slow", func(ctx context.Context, task Task) error {
		mu.Lock()
		running++
		if running > peak {
			peak = running
		}
		mu.Unlock()

		<-block

		mu.Lock()
		running--
		mu.Unlock()
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer func() { cancel(); runner.Stop() }()
	runner.Start(ctx)

	for i := 0; i < 6; i++ {
		require.NoError(t, runner.Enqueue(ctx, Task{Kind: "slow", OrgID: "org-1"}))
	}

	time.Sleep(200 * time.Millisecond)
	close(block)
	time.Sleep(200 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.LessOrEqual(t, peak, 2)
}

// A crawl that fans out recursively parks each parent in a signal wait
// until its child finishes. Parked parents must not hold concurrency
// slots, otherwise a chain deeper than the limits deadlocks with every
// level waiting for a child that can never start.
func TestRunner_ParkedParentsReleaseSlotsForDeepChains(t *testing.T) {
	const depth = 5
	runner := NewRunner(Config{Workers: 4, OrgConcurrency: 4, MaxAttempts: 1},
		logging.NewLogger(logging.DefaultConfig()))

	levelSignal := func(level int) string {
		return "level-done:" + strconv.Itoa(level)
	}

	runner.Register("descend", func(ctx context.Context, task Task) error {
		level := task.Params.(int)
		if level < depth {
			if err := runner.Enqueue(ctx, Task{Kind: "descend", OrgID: "org-1", Params: level + 1}); err != nil {
				return err
			}
			if err := runner.Signals().Wait(ctx, levelSignal(level+1), 5*time.Second); err != nil {
				return err
			}
		}
		runner.Signals().Signal(levelSignal(level))
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer func() { cancel(); runner.Stop() }()
	runner.Start(ctx)

	require.NoError(t, runner.Enqueue(ctx, Task{Kind: "descend", OrgID: "org-1", Params: 1}))

	assert.NoError(t, runner.Signals().Wait(ctx, levelSignal(1), 5*time.Second))
}

func TestRunner_CancelOrgStopsInFlightTasks(t *testing.T) {
	runner := NewRunner(Config{Workers: 2, MaxAttempts: 1}, logging.NewLogger(logging.DefaultConfig()))

	started := make(chan struct{}, 2)
	stopped := make(chan error, 2)
	runner.Register("longrunning", func(ctx context.Context, task Task) error {
		started <- struct{}{}
		<-ctx.Done()
		stopped <- ctx.Err()
		return ctx.Err()
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer func() { cancel(); runner.Stop() }()
	runner.Start(ctx)

	require.NoError(t, runner.Enqueue(ctx, Task{Kind: "longrunning", OrgID: "org-1"}))
	<-started

	runner.CancelOrg("org-1")

	select {
	case err := <-stopped:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("task context was not cancelled")
	}
}

func TestNonRetriable(t *testing.T) {
	base := errors.New("boom")

	assert.True(t, IsNonRetriable(NonRetriable(base)))
	assert.False(t, IsNonRetriable(base))
	assert.Nil(t, NonRetriable(nil))
	assert.ErrorIs(t, NonRetriable(base), base)
}
