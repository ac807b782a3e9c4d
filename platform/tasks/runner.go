// Package tasks is the in-process substrate the sync workflows run on:
// a FIFO queue feeding per-task goroutines, per-organisation and
// runner-wide concurrency limits on active work, bounded retry with
// exponential backoff, cooperative cancellation keyed by organisation,
// and a completion-signal bus. A task parked in a signal wait does not
// count as active: it hands its concurrency slots back so the children
// it is waiting on can run, which is what lets a crawl recurse deeper
// than the concurrency limit.
package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"spsync/logging"
)

// Kind identifies a task handler.
type Kind string

// Task is one unit of queued work. Params is the handler-specific
// payload; handlers type-assert it.
type Task struct {
	ID     string
	Kind   Kind
	OrgID  string
	Params any
}

// Handler executes one task. Returned errors are retried unless wrapped
// with NonRetriable.
type Handler func(ctx context.Context, task Task) error

// Enqueuer is the submission surface handed to workflows so they can
// schedule continuations and fan-outs without seeing the whole runner.
type Enqueuer interface {
	Enqueue(ctx context.Context, task Task) error
}

// Config tunes the runner. Workers bounds actively-running tasks across
// all organisations; OrgConcurrency bounds them per organisation. Tasks
// parked in signal waits count against neither.
type Config struct {
	Workers        int
	OrgConcurrency int64
	MaxAttempts    int
	QueueSize      int
}

// Runner owns the queue, the task goroutines and the cancellation
// registry.
type Runner struct {
	cfg      Config
	queue    chan Task
	signals  *SignalBus
	logger   *logging.Logger
	handlers map[Kind]Handler
	workSem  *semaphore.Weighted

	mu      sync.Mutex
	orgSems map[string]*semaphore.Weighted
	cancels map[string]map[string]context.CancelFunc

	wg      sync.WaitGroup
	started bool
}

// NewRunner creates a runner; Register handlers before Start.
func NewRunner(cfg Config, logger *logging.Logger) *Runner {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.OrgConcurrency <= 0 {
		cfg.OrgConcurrency = 4
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1024
	}

	return &Runner{
		cfg:      cfg,
		queue:    make(chan Task, cfg.QueueSize),
		signals:  NewSignalBus(),
		logger:   logger.WithComponent("tasks"),
		handlers: make(map[Kind]Handler),
		workSem:  semaphore.NewWeighted(int64(cfg.Workers)),
		orgSems:  make(map[string]*semaphore.Weighted),
		cancels:  make(map[string]map[string]context.CancelFunc),
	}
}

// Signals exposes the completion-signal bus.
func (r *Runner) Signals() *SignalBus {
	return r.signals
}

// Register binds a handler to a task kind. Not safe after Start.
func (r *Runner) Register(kind Kind, handler Handler) {
	r.handlers[kind] = handler
}

// Start launches the dispatcher. Each dequeued task runs on its own
// goroutine gated by the concurrency slots; dispatching stops when ctx
// is cancelled and Stop waits for in-flight tasks to finish.
func (r *Runner) Start(ctx context.Context) {
	if r.started {
		return
	}
	r.started = true

	r.wg.Add(1)
	go r.dispatch(ctx)
	r.logger.Info("task runner started", "workers", r.cfg.Workers)
}

// Stop blocks until the dispatcher and all in-flight tasks have drained.
func (r *Runner) Stop() {
	r.wg.Wait()
}

// Enqueue submits a task. A missing ID is filled with a fresh uuid.
func (r *Runner) Enqueue(ctx context.Context, task Task) error {
	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	if _, ok := r.handlers[task.Kind]; !ok {
		return fmt.Errorf("no handler registered for task kind %q", task.Kind)
	}

	select {
	case r.queue <- task:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// CancelOrg cancels every in-flight task of the organisation. Queued
// tasks that have not started yet will still run; their handlers must
// tolerate the state left behind.
func (r *Runner) CancelOrg(orgID string) {
	r.mu.Lock()
	cancels := r.cancels[orgID]
	delete(r.cancels, orgID)
	r.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
	if len(cancels) > 0 {
		r.logger.Sync("cancelled in-flight tasks", orgID, slog.Int("count", len(cancels)))
	}
}

func (r *Runner) dispatch(ctx context.Context) {
	defer r.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case task := <-r.queue:
			r.wg.Add(1)
			go func() {
				defer r.wg.Done()
				r.execute(ctx, task)
			}()
		}
	}
}

func (r *Runner) execute(ctx context.Context, task Task) {
	handler := r.handlers[task.Kind]

	slots := &workSlots{global: r.workSem, org: r.semFor(task.OrgID)}
	if err := slots.acquire(ctx); err != nil {
		return
	}
	defer slots.release()

	taskCtx, cancel := context.WithCancel(withSlots(ctx, slots))
	defer cancel()
	r.registerCancel(task, cancel)
	defer r.unregisterCancel(task)

	started := time.Now()
	err := r.runWithRetry(taskCtx, handler, task)

	switch {
	case err == nil:
		r.logger.Debug("task completed",
			"task_id", task.ID, "kind", string(task.Kind),
			"organisation_id", task.OrgID,
			"duration_ms", time.Since(started).Milliseconds())
	case taskCtx.Err() != nil:
		r.logger.Sync("task cancelled", task.OrgID,
			slog.String("task_id", task.ID),
			slog.String("kind", string(task.Kind)))
	default:
		r.logger.SyncError("task failed", err, task.OrgID,
			slog.String("task_id", task.ID),
			slog.String("kind", string(task.Kind)))
	}
}

func (r *Runner) runWithRetry(ctx context.Context, handler Handler, task Task) error {
	operation := func() error {
		err := handler(ctx, task)
		if err == nil {
			return nil
		}
		if IsNonRetriable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(r.cfg.MaxAttempts-1)),
		ctx)
	return backoff.Retry(operation, policy)
}

func (r *Runner) semFor(orgID string) *semaphore.Weighted {
	r.mu.Lock()
	defer r.mu.Unlock()

	sem, ok := r.orgSems[orgID]
	if !ok {
		sem = semaphore.NewWeighted(r.cfg.OrgConcurrency)
		r.orgSems[orgID] = sem
	}
	return sem
}

func (r *Runner) registerCancel(task Task, cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cancels[task.OrgID] == nil {
		r.cancels[task.OrgID] = make(map[string]context.CancelFunc)
	}
	r.cancels[task.OrgID][task.ID] = cancel
}

func (r *Runner) unregisterCancel(task Task) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cancels, ok := r.cancels[task.OrgID]; ok {
		delete(cancels, task.ID)
		if len(cancels) == 0 {
			delete(r.cancels, task.OrgID)
		}
	}
}
