package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/getpup/streamcoord/metrics"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newServeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the coordinator: periodic reconciliation plus /metrics and /healthz",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg, opts.signalsOut, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer a.Close()

			return serve(ctx, a)
		},
	}
}

// serve runs until ctx is cancelled or one of the loops fails.
func serve(ctx context.Context, a *app) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.coord.Run(ctx)
	})

	if a.cfg.MetricsAddr != "" {
		server := metrics.NewServer(a.cfg.MetricsAddr, a.coord.Healthy)
		g.Go(func() error {
			return server.Run(ctx)
		})
		a.logger.Info(ctx, "serving metrics", "addr", a.cfg.MetricsAddr)
	}

	return g.Wait()
}
