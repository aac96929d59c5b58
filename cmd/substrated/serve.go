package main

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/haasonsaas/substrate/internal/config"
)

// buildServeCmd wires the `serve` subcommand: load config, construct the
// core packages, start the HTTP transport, and block until SIGINT/SIGTERM.
// Grounded on cmd/nexus/commands_serve.go's serve-subcommand shape,
// generalized from the channel-gateway bootstrap to the
// substrate's orchestrator/worker/registry bootstrap.
func buildServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "start the orchestration substrate's HTTP transport",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "substrate.yaml", "path to the substrate config file")
	return cmd
}

func runServe(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	srv, err := newServer(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := srv.start(ctx); err != nil {
		return err
	}

	<-ctx.Done()
	slog.Info("shutdown signal received, draining")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	srv.shutdown(shutdownCtx)
	return nil
}
