package admin

import (
	"context"
	"fmt"

	"github.com/cloo-solutions/coursetutor/internal/config"
	"github.com/cloo-solutions/coursetutor/internal/database"
	"github.com/cloo-solutions/coursetutor/internal/logger"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
)

// openAdminPool connects with a small pool for one-shot admin commands.
func openAdminPool(ctx context.Context) (*pgxpool.Pool, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return database.NewPool(ctx, database.Config{URL: cfg.DatabaseURL, MaxConns: 2})
}

// MigrateCmd applies pending schema migrations without starting the server.
func MigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			log, err := logger.New(cfg.Debug)
			if err != nil {
				return fmt.Errorf("failed to build logger: %w", err)
			}
			defer func() { _ = log.Sync() }()
			return database.Migrate(cfg.DatabaseURL, cfg.MigrationsDir, log)
		},
	}
}
