// Package worker runs a long-lived background task with start and stop hooks.
package worker

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/jnst/order-notification-outbox/internal/logger"
)

// Task is a blocking unit of work that returns once ctx is done.
type Task func(ctx context.Context) error

// Runner runs a Task in its own goroutine.
type Runner struct {
	name string
	task Task

	started atomic.Bool
	stopped atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	done    chan struct{}

	mu  sync.Mutex
	err error
}

// New creates a Runner for task.
func New(name string, task Task) *Runner {
	return &Runner{
		name:   name,
		task:   task,
		cancel: func() {},
		done:   make(chan struct{}),
	}
}

// Start runs the task with a context derived from ctx. Only the first call
// has an effect.
func (r *Runner) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.stopped.Load() || !r.started.CompareAndSwap(false, true) {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	ctx = logger.With(ctx, slog.String("worker", r.name))

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer close(r.done)
		defer cancel()

		log := logger.FromContext(ctx)
		log.Info("worker started")

		err := r.task(ctx)

		r.mu.Lock()
		r.err = err
		r.mu.Unlock()

		if err != nil {
			log.Error("worker exited with error", slog.String("error", err.Error()))
			return
		}

		log.Info("worker exited")
	}()
}

// Stop cancels the task and waits for it to return or for ctx to expire,
// in which case it returns ctx.Err(). Calling Stop more than once is safe.
func (r *Runner) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.stopped.CompareAndSwap(false, true) || !r.started.Load() {
		r.mu.Unlock()
		return nil
	}
	cancel := r.cancel
	r.mu.Unlock()

	cancel()

	finished := make(chan struct{})
	go func() {
		defer close(finished)
		r.wg.Wait()
	}()

	select {
	case <-finished:
		return r.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done is closed when the task has returned.
func (r *Runner) Done() <-chan struct{} {
	return r.done
}

// Err returns the task's error once it has returned.
func (r *Runner) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.err
}
