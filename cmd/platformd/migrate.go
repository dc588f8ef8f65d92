package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := loadConfig(configDir)
			if err != nil {
				return err
			}

			// NewPostgresStore runs the embedded migration set as part of
			// opening the connection; there is no separate apply step.
			db, err := openStore(ctx, cfg)
			if err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			defer db.(interface{ Close() error }).Close()

			slog.Info("migrations applied")
			return nil
		},
	}
}
