// Package detach runs fire-and-forget side effects off the request path.
//
// A detached task gets its own background context (so a disconnected
// client does not cancel it), a timeout, panic recovery and error logging.
// The spawning request never joins it; Wait and Shutdown exist only for
// process shutdown and tests.
package detach

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultTimeout bounds a single detached task.
const DefaultTimeout = 2 * time.Minute

// Runner spawns and tracks detached tasks.
type Runner struct {
	logger  *zap.Logger
	timeout time.Duration
	wg      sync.WaitGroup
}

// New creates a Runner. A nil logger discards task errors.
func New(logger *zap.Logger, timeout time.Duration) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Runner{logger: logger, timeout: timeout}
}

// Go runs fn on its own goroutine. Errors and panics are logged under name
// and never reach the caller.
func (r *Runner) Go(name string, fn func(ctx context.Context) error) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()

		if err := r.run(ctx, fn); err != nil {
			r.logger.Warn("detached task failed", zap.String("task", name), zap.Error(err))
		}
	}()
}

func (r *Runner) run(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return fn(ctx)
}

// Wait blocks until every spawned task has returned.
func (r *Runner) Wait() {
	r.wg.Wait()
}

// Shutdown waits for in-flight tasks until ctx is done.
func (r *Runner) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("detach: shutdown: %w", ctx.Err())
	}
}
