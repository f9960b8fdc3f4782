// Package postgres implements session.Store on PostgreSQL via pgx.
//
// The conditional revoke is a single UPDATE guarded by revoked = FALSE, so the
// row lock serializes concurrent refreshes of one token. Family revokes insert
// a row into revoked_token_families that reads and conditional writes consult.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/MrEthical07/goRotate/session"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Store is a PostgreSQL-backed session.Store.
type Store struct {
	db *pgxpool.Pool
}

// New opens a pool for dsn and verifies connectivity.
func New(ctx context.Context, dsn string) (*Store, error) {
	const op = "session.postgres.New"

	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	db, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := db.Ping(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%s: %w: %v", op, session.ErrUnavailable, err)
	}

	return &Store{db: db}, nil
}

// NewFromPool wraps an existing pool. The caller keeps ownership of it.
func NewFromPool(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

// Ping checks pool connectivity and reports the round trip.
func (s *Store) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.db.Ping(ctx); err != nil {
		return time.Since(start), fmt.Errorf("%w: %v", session.ErrUnavailable, err)
	}
	return time.Since(start), nil
}

// Close closes the connection pool.
func (s *Store) Close() {
	s.db.Close()
}

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// Migrate applies the embedded schema migrations to dsn.
func Migrate(ctx context.Context, dsn string) error {
	const op = "session.postgres.Migrate"

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer db.Close()

	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("pgx"); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := gooseUpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

var _ session.Store = (*Store)(nil)
