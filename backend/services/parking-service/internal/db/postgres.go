package db

import (
	"context"
	"database/sql"

	libdb "smartparking/backend/libs/db"
	"smartparking/backend/services/parking-service/internal/config"
)

// NewPostgres opens the pool described by cfg through the shared initializer.
func NewPostgres(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	return libdb.NewPostgresDB(ctx, cfg.Database.DSN, libdb.PoolOptions{
		MaxOpenConns: cfg.Database.MaxOpenConns,
		MaxIdleConns: cfg.Database.MaxIdleConns,
		ConnLifetime: cfg.Database.ConnLifetime,
	})
}
