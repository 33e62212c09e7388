package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/yungbote/neurobridge-hydration/internal/app"
)

var (
	dispatcherOnce bool
	reconcilerOnce bool
)

var dispatcherCmd = &cobra.Command{
	Use:   "dispatcher",
	Short: "Relay outbox messages to the queue",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRole("dispatcher", func(ctx context.Context, a *app.App) error {
			d := a.Dispatcher()
			if !dispatcherOnce {
				return runUntilDone(ctx, d)
			}
			res, ran, err := d.RunCycle(ctx)
			if err != nil {
				return err
			}
			return printResult(cmd, map[string]any{"ran": ran, "result": res})
		})
	},
}

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Consume hydration jobs from the queue",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRole("worker", func(ctx context.Context, a *app.App) error {
			return a.Worker().Run(ctx)
		})
	},
}

var reconcilerCmd = &cobra.Command{
	Use:   "reconciler",
	Short: "Requeue or fail stuck jobs and redeliver lost messages",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRole("reconciler", func(ctx context.Context, a *app.App) error {
			r := a.Reconciler()
			if !reconcilerOnce {
				return runUntilDone(ctx, r)
			}
			res, ran, err := r.RunCycle(ctx)
			if err != nil {
				return err
			}
			return printResult(cmd, map[string]any{"ran": ran, "result": res})
		})
	},
}

func printResult(cmd *cobra.Command, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(b))
	return err
}

func init() {
	dispatcherCmd.Flags().BoolVar(&dispatcherOnce, "once", false, "run a single dispatch cycle and exit")
	reconcilerCmd.Flags().BoolVar(&reconcilerOnce, "once", false, "run a single reconcile pass and exit")
	rootCmd.AddCommand(dispatcherCmd, workerCmd, reconcilerCmd)
}
