// Command pipeline runs the content hydration pipeline. Each subcommand is one
// process role; run as many of each as the deployment needs.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/yungbote/neurobridge-hydration/internal/app"
)

var rootCmd = &cobra.Command{
	Use:           "pipeline",
	Short:         "Content hydration pipeline",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// runRole wires the app for role and runs fn until SIGINT or SIGTERM.
func runRole(role string, fn func(ctx context.Context, a *app.App) error) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, role)
	if err != nil {
		return err
	}
	defer a.Close()

	a.ServeMetrics(ctx)
	a.Log.Info("Starting", "role", role)
	if err := fn(ctx, a); err != nil {
		a.Log.Error("Stopped with error", "role", role, "error", err)
		return err
	}
	a.Log.Info("Stopped", "role", role)
	return nil
}

type service interface {
	Start(ctx context.Context) error
	Stop()
}

// runUntilDone starts every service and stops them in reverse order once ctx ends.
func runUntilDone(ctx context.Context, services ...service) error {
	started := make([]service, 0, len(services))
	defer func() {
		for i := len(started) - 1; i >= 0; i-- {
			started[i].Stop()
		}
	}()
	for _, s := range services {
		if err := s.Start(ctx); err != nil {
			return err
		}
		started = append(started, s)
	}
	<-ctx.Done()
	return nil
}
