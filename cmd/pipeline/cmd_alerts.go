package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/yungbote/neurobridge-hydration/internal/app"
)

var alertsOnce bool

var alertsCmd = &cobra.Command{
	Use:   "alerts",
	Short: "Sample pipeline telemetry and evaluate alert rules on ALERTS_SCHEDULE",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRole("alerts", func(ctx context.Context, a *app.App) error {
			s, err := a.AlertScheduler()
			if err != nil {
				return err
			}
			if !alertsOnce {
				return runUntilDone(ctx, s)
			}
			decisions, ran, err := s.Tick(ctx)
			if err != nil {
				return err
			}
			return printResult(cmd, map[string]any{"ran": ran, "decisions": decisions})
		})
	},
}

func init() {
	alertsCmd.Flags().BoolVar(&alertsOnce, "once", false, "run a single sample and evaluation and exit")
	rootCmd.AddCommand(alertsCmd)
}
