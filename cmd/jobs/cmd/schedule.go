package cmd

import (
	"context"
	"log/slog"
	"time"

	"github.com/saproto/identity/internal/app"
	"github.com/spf13/cobra"
)

func ScheduleCmd() *cobra.Command {
	var adsyncInterval, emailInterval time.Duration

	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run all jobs periodically until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app.App) error {
				if adsyncInterval == 0 {
					adsyncInterval = a.Cfg.ADSyncInterval
				}
				if emailInterval == 0 {
					emailInterval = a.Cfg.EmailCronInterval
				}

				slog.Info("scheduler started",
					"adsync_interval", adsyncInterval.String(),
					"emailcron_interval", emailInterval.String(),
					"directory_enabled", a.Synchronizer != nil,
				)
				a.Schedule(ctx, adsyncInterval, emailInterval)
				slog.Info("scheduler stopped")
				return nil
			})
		},
	}

	cmd.Flags().DurationVar(&adsyncInterval, "adsync-interval", 0, "directory sync interval (default ADSYNC_INTERVAL)")
	cmd.Flags().DurationVar(&emailInterval, "emailcron-interval", 0, "mail dispatch interval (default EMAILCRON_INTERVAL)")

	return cmd
}
