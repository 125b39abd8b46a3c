package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tanviriss/MockMate/internal/metrics"
	"github.com/tanviriss/MockMate/pkg/logger"
)

var ErrShuttingDown = errors.New("job runner is shutting down")

// Job is a unit of background work. ctx is cancelled when the runner's
// shutdown grace period expires.
type Job func(ctx context.Context) error

// Runner executes jobs on their own goroutines, detached from the
// connection that scheduled them.
type Runner struct {
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	closed  bool
	running int
}

func NewRunner() *Runner {
	ctx, cancel := context.WithCancel(context.Background())
	return &Runner{ctx: ctx, cancel: cancel}
}

// Submit schedules fn and returns immediately.
func (r *Runner) Submit(name string, fn Job) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrShuttingDown
	}
	r.running++
	r.wg.Add(1)
	r.mu.Unlock()

	go r.run(name, fn)
	return nil
}

func (r *Runner) run(name string, fn Job) {
	start := time.Now()
	defer func() {
		r.mu.Lock()
		r.running--
		r.mu.Unlock()
		r.wg.Done()
	}()

	err := safeCall(r.ctx, fn)
	elapsed := time.Since(start)

	if err != nil {
		metrics.BackgroundJobs.WithLabelValues(name, "error").Inc()
		logger.Error("Background job failed",
			zap.String("job", name),
			zap.Duration("elapsed", elapsed),
			zap.Error(err),
		)
		return
	}

	metrics.BackgroundJobs.WithLabelValues(name, "ok").Inc()
	logger.Info("Background job finished", zap.String("job", name), zap.Duration("elapsed", elapsed))
}

func safeCall(ctx context.Context, fn Job) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	return fn(ctx)
}

// Running returns the number of jobs in flight.
func (r *Runner) Running() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// Shutdown stops accepting work and waits for in-flight jobs. When ctx
// expires first the jobs' context is cancelled and ctx.Err() is returned
// once they have exited.
func (r *Runner) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.cancel()
		return nil
	case <-ctx.Done():
		r.cancel()
		<-done
		return ctx.Err()
	}
}
