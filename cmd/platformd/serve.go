package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(ctx context.Context) error {
	cfg, err := loadConfig(configDir)
	if err != nil {
		return err
	}

	db, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}

	p := buildPlatform(ctx, cfg, db)

	resumed, err := p.workflows.Resume(ctx)
	if err != nil {
		slog.Error("workflow recovery scan failed", "error", err)
	} else if len(resumed) > 0 {
		slog.Info("resumed workflows pending continuation", "count", len(resumed))
	}

	p.cleanupSvc.Start(ctx)
	defer p.cleanupSvc.Stop()

	sigCtx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		addr := fmt.Sprintf(":%d", cfg.HTTPPort)
		errCh <- p.api.Start(addr)
	}()

	select {
	case <-sigCtx.Done():
		slog.Info("shutting down")
		return p.api.Shutdown(context.Background())
	case err := <-errCh:
		return err
	}
}
