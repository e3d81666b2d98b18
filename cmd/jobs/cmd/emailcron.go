package cmd

import (
	"context"

	"github.com/saproto/identity/internal/app"
	"github.com/spf13/cobra"
)

func EmailCronCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "emailcron",
		Short: "Send queued e-mails that are due",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app.App) error {
				return skipLocked(a.DispatchMail(ctx))
			})
		},
	}
}
