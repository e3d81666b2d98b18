package logger

import (
	"log/slog"
	"os"
	"time"

	"github.com/getsentry/sentry-go"
	slogmulti "github.com/samber/slog-multi"
	slogsentry "github.com/samber/slog-sentry/v2"
)

var sentryEnabled bool

// Init installs the default logger for one process (the web server or the
// job runner). Development logs text at debug level, everything else JSON at
// info level. With a Sentry DSN, error records are also reported to Sentry.
// The returned func flushes pending Sentry events and should run on exit.
func Init(isDev bool, sentryDSN, process string) func() {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	var base slog.Handler
	if isDev {
		opts.Level = slog.LevelDebug
		base = slog.NewTextHandler(os.Stdout, opts)
	} else {
		base = slog.NewJSONHandler(os.Stdout, opts)
	}

	handler := base
	flush := func() {}

	if sentryDSN != "" {
		environment := "production"
		if isDev {
			environment = "development"
		}
		err := sentry.Init(sentry.ClientOptions{
			Dsn:         sentryDSN,
			Environment: environment,
			ServerName:  process,
		})
		if err != nil {
			slog.New(base).Error("failed to initialise sentry", "error", err)
		} else {
			sentryEnabled = true
			handler = slogmulti.Fanout(base, slogsentry.Option{Level: slog.LevelError}.NewSentryHandler())
			flush = func() { sentry.Flush(2 * time.Second) }
		}
	}

	slog.SetDefault(slog.New(handler).With("process", process))
	return flush
}
