package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"collab-playlist/internal/config"
	"collab-playlist/internal/playlist"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the postgres schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		log, err := newLogger(cfg)
		if err != nil {
			return err
		}
		defer log.Sync()

		pool, err := connectPostgres(cmd.Context(), cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer pool.Close()

		if err := playlist.AutoMigrate(cmd.Context(), pool); err != nil {
			return err
		}
		log.Info("schema ready")
		return nil
	},
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Replace the postgres catalog and playlist with the demo data",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		log, err := newLogger(cfg)
		if err != nil {
			return err
		}
		defer log.Sync()

		ctx := cmd.Context()
		pool, err := connectPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer pool.Close()

		if err := playlist.AutoMigrate(ctx, pool); err != nil {
			return err
		}
		if err := playlist.SeedDemo(ctx, playlist.NewPostgresStore(pool), time.Now().UTC()); err != nil {
			return err
		}
		log.Info("seeded demo data", zap.Int("tracks", playlist.CatalogSize))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd, seedCmd)
}

func connectPostgres(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	if dsn == "" {
		return nil, errors.New("DATABASE_URL is not set")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pg: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pg: %w", err)
	}
	return pool, nil
}

// openStore builds the configured store. Postgres is migrated on open.
func openStore(ctx context.Context, cfg config.Server, log *zap.Logger) (playlist.Store, func(), error) {
	if cfg.Storage != config.StoragePostgres {
		return playlist.NewMemoryStore(), func() {}, nil
	}

	pool, err := connectPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	if err := playlist.AutoMigrate(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, err
	}
	log.Info("postgres ready")
	return playlist.NewPostgresStore(pool), pool.Close, nil
}
