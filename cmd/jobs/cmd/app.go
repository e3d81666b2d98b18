package cmd

import (
	"context"
	"errors"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/saproto/identity/internal/app"
	"github.com/saproto/identity/internal/config"
	"github.com/saproto/identity/internal/lock"
	"github.com/saproto/identity/internal/logger"
)

// withApp loads config, wires the app and runs fn until it returns or the
// process is signalled.
func withApp(fn func(ctx context.Context, a *app.App) error) error {
	cfg := config.Load()
	flush := logger.Init(cfg.IsDevelopment(), cfg.SentryDSN, "jobs")
	defer flush()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		slog.Error("failed to initialize app", "error", err)
		return err
	}
	defer func() {
		closeErr := a.Close()
		if closeErr != nil {
			slog.Error("failed to close app", "error", closeErr)
		}
	}()

	return fn(ctx, a)
}

// skipLocked treats a lease held by another process as a successful no-op.
func skipLocked(err error) error {
	if errors.Is(err, lock.ErrLocked) {
		return nil
	}
	return err
}
