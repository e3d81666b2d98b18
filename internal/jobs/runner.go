// Package jobs runs batch jobs under a named lease, once or on an interval.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/saproto/identity/internal/lock"
)

// Func is one batch run.
type Func func(ctx context.Context) error

type Runner struct {
	locker   lock.Locker
	leaseTTL time.Duration
}

func NewRunner(locker lock.Locker, leaseTTL time.Duration) *Runner {
	if leaseTTL <= 0 {
		leaseTTL = 30 * time.Minute
	}
	return &Runner{locker: locker, leaseTTL: leaseTTL}
}

// RunOnce runs fn while holding the lease called name. When another process
// holds the lease the run is skipped and lock.ErrLocked is returned. The lease
// is extended every third of its TTL while fn runs; if it is lost, fn's
// context is cancelled and the error wraps lock.ErrLeaseLost.
func (r *Runner) RunOnce(ctx context.Context, name string, fn Func) error {
	lease, err := r.locker.Acquire(ctx, name, r.leaseTTL)
	if err != nil {
		if errors.Is(err, lock.ErrLocked) {
			slog.Info("job skipped, lease held elsewhere", "job", name)
		}
		return err
	}
	defer func() {
		// release must outlive a cancelled run context
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		releaseErr := lease.Release(releaseCtx)
		if releaseErr != nil {
			slog.Error("job lease release failed", "job", name, "error", releaseErr)
		}
	}()

	runCtx, cancelRun := context.WithCancelCause(ctx)
	defer cancelRun(nil)

	renewed := make(chan struct{})
	go func() {
		defer close(renewed)
		r.keepAlive(runCtx, lease, cancelRun)
	}()

	start := time.Now()
	slog.Info("job started", "job", name)

	err = fn(runCtx)
	cancelRun(nil)
	<-renewed

	if cause := context.Cause(runCtx); errors.Is(cause, lock.ErrLeaseLost) {
		err = errors.Join(cause, err)
	}
	if err != nil {
		slog.Error("job failed", "job", name, "error", err, "duration_ms", time.Since(start).Milliseconds())
		return fmt.Errorf("job %s: %w", name, err)
	}

	slog.Info("job finished", "job", name, "duration_ms", time.Since(start).Milliseconds())
	return nil
}

// keepAlive extends the lease until ctx is done. A failed extension is
// retried on the next tick; a lost lease cancels the run.
func (r *Runner) keepAlive(ctx context.Context, lease lock.Lease, cancel context.CancelCauseFunc) {
	ticker := time.NewTicker(max(r.leaseTTL/3, time.Millisecond))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := lease.Extend(ctx, r.leaseTTL)
			if errors.Is(err, lock.ErrLeaseLost) {
				slog.Error("job lease lost, cancelling run", "job", lease.Name())
				cancel(err)
				return
			}
			if err != nil && ctx.Err() == nil {
				slog.Warn("job lease extension failed", "job", lease.Name(), "error", err)
			}
		}
	}
}

// Schedule runs the job right away and then every interval until ctx is
// done. Errors are logged and the loop keeps going.
func (r *Runner) Schedule(ctx context.Context, name string, interval time.Duration, fn Func) {
	if interval <= 0 {
		interval = time.Minute
	}

	_ = r.RunOnce(ctx, name, fn)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = r.RunOnce(ctx, name, fn)
		}
	}
}
