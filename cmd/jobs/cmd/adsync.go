package cmd

import (
	"context"

	"github.com/saproto/identity/internal/app"
	"github.com/spf13/cobra"
)

func ADSyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "adsync",
		Short: "Synchronize members and committees to Active Directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app.App) error {
				return skipLocked(a.SyncDirectory(ctx))
			})
		},
	}
}
