package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func serveCommand(a *app) *cobra.Command {
	var (
		host string
		port int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP tool server over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("host") {
				a.cfg.Server.Host = host
			}
			if cmd.Flags().Changed("port") {
				a.cfg.Server.Port = port
			}

			srv, err := a.newServer()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			g, ctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				return srv.Start(ctx)
			})
			g.Go(func() error {
				<-ctx.Done()
				a.logger.Info("shutting down")
				return srv.Stop()
			})

			if err := g.Wait(); err != nil {
				a.logger.Error("server error", zap.Error(err))
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&host, "host", "0.0.0.0", "Host address")
	cmd.Flags().IntVar(&port, "port", 8011, "Port for HTTP transport")
	return cmd
}
