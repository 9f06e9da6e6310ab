package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/healthloop/companion/internal/domain/patient"
	"github.com/healthloop/companion/internal/domain/shared"
)

// PatientRepository keeps the patient record as one JSONB row of
// patient_slots, keyed by the slot name.
type PatientRepository struct {
	db  *DB
	key string
}

// NewPatientRepository creates a repository for the given slot key.
func NewPatientRepository(db *DB, key string) *PatientRepository {
	return &PatientRepository{db: db, key: key}
}

// Load implements patient.Repository.
func (r *PatientRepository) Load(ctx context.Context) (patient.State, error) {
	var raw []byte
	err := r.db.scanOne(ctx, `SELECT value::text FROM patient_slots WHERE key = $1`, []any{r.key}, &raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return patient.State{}, shared.ErrNoPatient
	}
	if err != nil {
		return patient.State{}, fmt.Errorf("postgres: load %s: %w", r.key, err)
	}
	return patient.Decode(raw)
}

// Save implements patient.Repository.
func (r *PatientRepository) Save(ctx context.Context, s patient.State) error {
	data, err := patient.Encode(s)
	if err != nil {
		return err
	}

	_, err = r.db.exec(ctx, `
		INSERT INTO patient_slots (key, value, updated_at)
		VALUES ($1, $2::jsonb, NOW())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()
	`, r.key, string(data))
	if err != nil {
		return fmt.Errorf("postgres: save %s: %w", r.key, err)
	}
	return nil
}

// Delete implements patient.Repository.
func (r *PatientRepository) Delete(ctx context.Context) error {
	if _, err := r.db.exec(ctx, `DELETE FROM patient_slots WHERE key = $1`, r.key); err != nil {
		return fmt.Errorf("postgres: delete %s: %w", r.key, err)
	}
	return nil
}

// Ping implements patient.HealthChecker.
func (r *PatientRepository) Ping(ctx context.Context) error {
	return r.db.Ping(ctx)
}
