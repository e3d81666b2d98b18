package logger

import (
	"log/slog"
	"time"

	"github.com/getsentry/sentry-go"
)

// Alerter raises operational alerts that need a human, such as the directory
// being unreachable.
type Alerter interface {
	Alert(msg string, args ...any)
}

// SentryAlerter logs the alert at error level and sends it to Sentry as a
// standalone message when Sentry is configured.
type SentryAlerter struct{}

func NewAlerter() *SentryAlerter {
	return &SentryAlerter{}
}

func (SentryAlerter) Alert(msg string, args ...any) {
	slog.Error(msg, append([]any{"alert", true}, args...)...)

	if sentryEnabled {
		sentry.CaptureMessage(msg)
		sentry.Flush(2 * time.Second)
	}
}
