// Package postgres implements store.Store on database/sql with the pgx driver.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"sort"

	"github.com/jackc/pgx/v5/pgconn"

	"smartparking/backend/services/parking-service/internal/store"
)

//go:embed migrations/*.sql
var migrations embed.FS

const (
	pgUniqueViolation = "23505"
	pgCheckViolation  = "23514"
)

// Store runs transactions against a Postgres pool.
type Store struct {
	db *sql.DB
}

var _ store.Store = (*Store)(nil)

// NewStore returns store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Migrate applies the embedded schema files in name order. Every statement is idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	entries, err := migrations.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("postgres: read migrations: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)

	for _, name := range names {
		body, err := migrations.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("postgres: read %s: %w", name, err)
		}
		if _, err := s.db.ExecContext(ctx, string(body)); err != nil {
			return fmt.Errorf("postgres: apply %s: %w", name, err)
		}
	}
	return nil
}

// WithTx wraps fn in BEGIN/COMMIT. Any error or panic from fn rolls back.
func (s *Store) WithTx(ctx context.Context, fn func(tx store.Tx) error) (err error) {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("postgres: begin: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = sqlTx.Rollback()
			panic(p)
		}
	}()

	if err := fn(&pgTx{tx: sqlTx}); err != nil {
		_ = sqlTx.Rollback()
		return mapError(err)
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("postgres: commit: %w", mapError(err))
	}
	return nil
}

type pgTx struct {
	tx *sql.Tx
}

var _ store.Tx = (*pgTx)(nil)

// mapError translates driver errors into store sentinels and leaves others untouched.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return fmt.Errorf("%w: %s", store.ErrDuplicate, pgErr.ConstraintName)
		case pgCheckViolation:
			if pgErr.ConstraintName == "accounts_balance_check" {
				return store.ErrInsufficientBalance
			}
		}
	}
	return err
}

func expectOne(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func limitOrDefault(limit, def int) int {
	if limit <= 0 {
		return def
	}
	return limit
}
