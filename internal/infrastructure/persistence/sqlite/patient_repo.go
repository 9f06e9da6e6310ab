// Package sqlite stores the patient slot in a local SQLite file. It is the
// default backend of the companion.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/healthloop/companion/internal/domain/patient"
	"github.com/healthloop/companion/internal/domain/shared"

	_ "modernc.org/sqlite"
)

// PatientRepository keeps the encoded record in the kv_slots table.
type PatientRepository struct {
	db  *sql.DB
	key string
	now func() time.Time
}

// Open opens (or creates) the database file and ensures the schema.
func Open(ctx context.Context, dbPath, key string) (*PatientRepository, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One writer; SQLite serialises anyway.
	db.SetMaxOpenConns(1)

	r := &PatientRepository{db: db, key: key, now: time.Now}
	if err := r.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return r, nil
}

func (r *PatientRepository) ensureSchema(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS kv_slots (
  key TEXT PRIMARY KEY,
  value TEXT NOT NULL,
  updated_at TEXT NOT NULL
);
`
	if _, err := r.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create kv_slots table: %w", err)
	}
	return nil
}

// Load implements patient.Repository.
func (r *PatientRepository) Load(ctx context.Context) (patient.State, error) {
	var value string
	err := r.db.QueryRowContext(ctx, `SELECT value FROM kv_slots WHERE key = ?`, r.key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return patient.State{}, shared.ErrNoPatient
	}
	if err != nil {
		return patient.State{}, fmt.Errorf("load slot %s: %w", r.key, err)
	}
	return patient.Decode([]byte(value))
}

// Save implements patient.Repository.
func (r *PatientRepository) Save(ctx context.Context, s patient.State) error {
	data, err := patient.Encode(s)
	if err != nil {
		return err
	}

	const stmt = `
INSERT INTO kv_slots (key, value, updated_at)
VALUES (?, ?, ?)
ON CONFLICT(key) DO UPDATE SET
  value=excluded.value,
  updated_at=excluded.updated_at;
`
	_, err = r.db.ExecContext(ctx, stmt, r.key, string(data), r.now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("save slot %s: %w", r.key, err)
	}
	return nil
}

// Delete implements patient.Repository.
func (r *PatientRepository) Delete(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM kv_slots WHERE key = ?`, r.key); err != nil {
		return fmt.Errorf("delete slot %s: %w", r.key, err)
	}
	return nil
}

// Ping implements patient.HealthChecker.
func (r *PatientRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database.
func (r *PatientRepository) Close() error {
	return r.db.Close()
}

// writeRaw stores arbitrary text in the slot. Tests only.
func (r *PatientRepository) writeRaw(ctx context.Context, value string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO kv_slots (key, value, updated_at) VALUES (?, ?, ?) ON CONFLICT(key) DO UPDATE SET value=excluded.value`,
		r.key, value, r.now().UTC().Format(time.RFC3339))
	return err
}
