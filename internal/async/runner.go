// Package async runs fire-and-forget background work bound to an owner's lifetime.
package async

import (
	"context"
	"log/slog"
	"sync"
)

// Runner runs background tasks and lets the owner drain or cancel them.
// The zero value is not usable; call NewRunner.
type Runner struct {
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	logger *slog.Logger
}

// NewRunner creates a Runner whose tasks receive a context derived from parent.
func NewRunner(parent context.Context, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(parent)
	return &Runner{ctx: ctx, cancel: cancel, logger: logger}
}

// Go starts task in a new goroutine. A panicking task is logged, not propagated.
func (r *Runner) Go(name string, task func(ctx context.Context)) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer func() {
			if p := recover(); p != nil {
				r.logger.Error("Background task panicked", "task", name, "panic", p)
			}
		}()
		task(r.ctx)
	}()
}

// Context returns the runner's lifetime context.
func (r *Runner) Context() context.Context {
	return r.ctx
}

// Wait blocks until every started task has returned.
func (r *Runner) Wait() {
	r.wg.Wait()
}

// Close cancels the lifetime context and waits for running tasks.
func (r *Runner) Close() {
	r.cancel()
	r.wg.Wait()
}
