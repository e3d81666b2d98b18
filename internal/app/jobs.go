package app

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

const (
	JobADSync    = "adsync"
	JobEmailCron = "emailcron"
)

var ErrDirectoryDisabled = errors.New("directory sync is not configured")

// SyncDirectory runs one directory synchronisation under the adsync lease.
func (a *App) SyncDirectory(ctx context.Context) error {
	if a.Synchronizer == nil {
		return ErrDirectoryDisabled
	}
	return a.Runner.RunOnce(ctx, JobADSync, a.syncDirectory)
}

// DispatchMail sends the queued e-mails that are due, under the emailcron
// lease.
func (a *App) DispatchMail(ctx context.Context) error {
	return a.Runner.RunOnce(ctx, JobEmailCron, a.dispatchMail)
}

// Schedule runs every configured job on its interval until ctx is done.
func (a *App) Schedule(ctx context.Context, adsyncInterval, emailInterval time.Duration) {
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		a.Runner.Schedule(ctx, JobEmailCron, emailInterval, a.dispatchMail)
	}()

	if a.Synchronizer != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.Runner.Schedule(ctx, JobADSync, adsyncInterval, a.syncDirectory)
		}()
	}

	wg.Wait()
}

func (a *App) syncDirectory(ctx context.Context) error {
	report, err := a.Synchronizer.Run(ctx)
	if err != nil {
		return err
	}
	if report.Failed > 0 {
		slog.Warn("directory sync finished with failures", "failed", report.Failed, "errors", errors.Join(report.Errors...))
	}
	return nil
}

func (a *App) dispatchMail(ctx context.Context) error {
	_, err := a.MailDispatcher.Run(ctx)
	return err
}
