// Package postgres stores the patient slot in PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/healthloop/companion/pkg/retry"
)

var ErrClosed = errors.New("postgres: pool is closed")

// Config is applied on top of the settings in the database URL.
type Config struct {
	URL             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
	QueryTimeout    time.Duration // per statement, zero means none
}

// DefaultConfig sizes the pool for a single local patient.
func DefaultConfig(url string) Config {
	return Config{
		URL:             url,
		MaxConns:        4,
		MinConns:        1,
		MaxConnLifetime: 30 * time.Minute,
		MaxConnIdleTime: 5 * time.Minute,
		QueryTimeout:    10 * time.Second,
	}
}

func (c Config) poolConfig() (*pgxpool.Config, error) {
	pc, err := pgxpool.ParseConfig(c.URL)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse database URL: %w", err)
	}
	if c.MaxConns > 0 {
		pc.MaxConns = c.MaxConns
	}
	if c.MinConns > 0 {
		pc.MinConns = c.MinConns
	}
	if c.MaxConnLifetime > 0 {
		pc.MaxConnLifetime = c.MaxConnLifetime
	}
	if c.MaxConnIdleTime > 0 {
		pc.MaxConnIdleTime = c.MaxConnIdleTime
	}
	pc.HealthCheckPeriod = time.Minute
	return pc, nil
}

// DB is a pgx pool whose statements share one timeout.
type DB struct {
	pool    *pgxpool.Pool
	timeout time.Duration
	closed  atomic.Bool
}

// Open creates the pool and waits for the server with the storage backoff. A
// malformed URL fails at once.
func Open(ctx context.Context, cfg Config) (*DB, error) {
	pc, err := cfg.poolConfig()
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("postgres: create pool: %w", err)
	}
	if err := retry.StorageRetrier().Do(ctx, pool.Ping); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return &DB{pool: pool, timeout: cfg.QueryTimeout}, nil
}

// Close is idempotent.
func (db *DB) Close() {
	if db.closed.CompareAndSwap(false, true) {
		db.pool.Close()
	}
}

func (db *DB) Ping(ctx context.Context) error {
	if db.closed.Load() {
		return ErrClosed
	}
	return db.pool.Ping(ctx)
}

// bounded applies the statement timeout.
func (db *DB) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	if db.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, db.timeout)
}

func (db *DB) exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if db.closed.Load() {
		return pgconn.CommandTag{}, ErrClosed
	}
	ctx, cancel := db.bounded(ctx)
	defer cancel()
	return db.pool.Exec(ctx, sql, args...)
}

// scanOne runs a single-row query; pgx.ErrNoRows passes through.
func (db *DB) scanOne(ctx context.Context, sql string, args []any, dest ...any) error {
	if db.closed.Load() {
		return ErrClosed
	}
	ctx, cancel := db.bounded(ctx)
	defer cancel()
	return db.pool.QueryRow(ctx, sql, args...).Scan(dest...)
}

// ══════════════════════════════════════════════════════════════════════════════
// SCHEMA
// ══════════════════════════════════════════════════════════════════════════════

type schemaStep struct {
	version int
	name    string
	up      string
}

// schema is append-only; a step never changes once released.
var schema = []schemaStep{
	{1, "create_patient_slots", `
CREATE TABLE IF NOT EXISTS patient_slots (
    key        TEXT PRIMARY KEY,
    value      JSONB NOT NULL,
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
)`},
}

// Migrate applies pending schema steps, each in its own transaction, and
// returns how many it applied.
func (db *DB) Migrate(ctx context.Context) (int, error) {
	if _, err := db.exec(ctx, `
CREATE TABLE IF NOT EXISTS schema_migrations (
    version    INTEGER PRIMARY KEY,
    name       TEXT NOT NULL,
    applied_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
)`); err != nil {
		return 0, fmt.Errorf("postgres: create schema_migrations: %w", err)
	}

	var current int
	if err := db.scanOne(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`, nil, &current); err != nil {
		return 0, fmt.Errorf("postgres: read schema version: %w", err)
	}

	applied := 0
	for _, step := range pending(current) {
		err := pgx.BeginFunc(ctx, db.pool, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, step.up); err != nil {
				return err
			}
			_, err := tx.Exec(ctx, `INSERT INTO schema_migrations (version, name) VALUES ($1, $2)`, step.version, step.name)
			return err
		})
		if err != nil {
			return applied, fmt.Errorf("postgres: migration %d %s: %w", step.version, step.name, err)
		}
		applied++
	}
	return applied, nil
}

func pending(current int) []schemaStep {
	for i, step := range schema {
		if step.version > current {
			return schema[i:]
		}
	}
	return nil
}
