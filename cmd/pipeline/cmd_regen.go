package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/yungbote/neurobridge-hydration/internal/app"
)

var regenWorkerCmd = &cobra.Command{
	Use:   "regen-worker",
	Short: "Poll and execute pending regeneration jobs",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRole("regen-worker", func(ctx context.Context, a *app.App) error {
			return runUntilDone(ctx, a.RegenWorker())
		})
	},
}

var regenRunCmd = &cobra.Command{
	Use:   "regen-run",
	Short: "Execute one batch of pending regeneration jobs under the global runner lock",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRole("regen-run", func(ctx context.Context, a *app.App) error {
			res, ran, err := a.RegenRunner().RunBatch(ctx)
			if err != nil {
				return err
			}
			return printResult(cmd, map[string]any{"ran": ran, "result": res})
		})
	},
}

func init() {
	rootCmd.AddCommand(regenWorkerCmd, regenRunCmd)
}
