package main

import (
	"context"
	"log/slog"

	"github.com/md-rashed-zaman/apptslots/libs/db"
	"github.com/md-rashed-zaman/apptslots/libs/runtime"
	"github.com/md-rashed-zaman/apptslots/services/availability-service/internal/storage"
)

// openStore prefers Postgres when DATABASE_URL is set and falls back to a
// local SQLite file.
func openStore(ctx context.Context, cfg settings, logger *slog.Logger) (storage.Store, runtime.ReadyCheck, error) {
	if cfg.DatabaseURL != "" {
		pool, err := db.Open(ctx, cfg.DatabaseURL, db.Options{})
		if err != nil {
			return nil, runtime.ReadyCheck{}, err
		}
		pg := storage.NewPostgres(pool)
		if err := pg.Migrate(ctx); err != nil {
			pool.Close()
			return nil, runtime.ReadyCheck{}, err
		}
		logger.Info("store ready", "backend", "postgres")
		return pg, runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)}, nil
	}

	lite, err := storage.OpenSQLite(ctx, cfg.SQLitePath)
	if err != nil {
		return nil, runtime.ReadyCheck{}, err
	}
	logger.Info("store ready", "backend", "sqlite", "path", cfg.SQLitePath)
	return lite, runtime.ReadyCheck{Name: "db", Check: lite.Ping}, nil
}
