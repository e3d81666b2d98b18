package main

import (
	"os"

	"github.com/saproto/identity/cmd/jobs/cmd"

	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "jobs",
		Short:        "Batch jobs for the Proto identity service",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(cmd.ADSyncCmd())
	rootCmd.AddCommand(cmd.EmailCronCmd())
	rootCmd.AddCommand(cmd.ScheduleCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
