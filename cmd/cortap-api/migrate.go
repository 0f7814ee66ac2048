package main

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	apiserver "github.com/cortap/cortap-rpt/internal/api_server"
	"github.com/cortap/cortap-rpt/internal/config"
	"github.com/cortap/cortap-rpt/internal/store"
	"github.com/cortap/cortap-rpt/pkg/migrations"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Migrate the db",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, cleanup := setup()
		defer cleanup()

		zap.S().Info("Starting migration...")
		defer zap.S().Info("Db migrated")

		zap.S().Info("Initializing data store")
		db, err := store.InitDB(cfg)
		if err != nil {
			zap.S().Fatalw("initializing data store", "error", err)
		}

		store := store.NewStore(db)
		defer store.Close()

		ctx := context.Background()
		if cfg.Database.Type != "pgsql" {
			return store.InitialMigration(ctx)
		}

		var pool *pgxpool.Pool
		if cfg.Service.Dispatcher == config.DispatcherRiver {
			pool, err = apiserver.NewPgxPool(ctx, cfg)
			if err != nil {
				zap.S().Fatalw("initializing pgx pool", "error", err)
			}
			defer pool.Close()
		}

		if err := migrations.MigrateStore(db, cfg.Service.MigrationFolder, pool); err != nil {
			zap.S().Fatalw("running migrations", "error", err)
		}

		return nil
	},
}
