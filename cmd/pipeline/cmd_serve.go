package main

import (
	"context"
	"net"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/yungbote/neurobridge-hydration/internal/app"
)

var serveWithWorkers bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the admin HTTP API",
	Long: `Run the admin HTTP API on PORT.

With --with-workers the dispatcher, content worker and reconciler run in the
same process. That is required with QUEUE_BACKEND=local.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRole("serve", func(ctx context.Context, a *app.App) error {
			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				return a.Server().Run(gctx, net.JoinHostPort("", a.Cfg.Port))
			})
			if serveWithWorkers {
				g.Go(func() error {
					return runUntilDone(gctx, a.Dispatcher(), a.Reconciler())
				})
				g.Go(func() error {
					return a.Worker().Run(gctx)
				})
			}
			return g.Wait()
		})
	},
}

func init() {
	serveCmd.Flags().BoolVar(&serveWithWorkers, "with-workers", false, "also run dispatcher, worker and reconciler in-process")
	rootCmd.AddCommand(serveCmd)
}
