package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/healthloop/companion/internal/domain/patient"
	"github.com/healthloop/companion/internal/domain/shared"
)

// PatientRepository keeps the encoded record under one key with no expiry.
type PatientRepository struct {
	client redis.UniversalClient
	key    string
}

// NewPatientRepository creates a repository for the given slot key.
func NewPatientRepository(client redis.UniversalClient, key string) *PatientRepository {
	return &PatientRepository{client: client, key: key}
}

// Load implements patient.Repository.
func (r *PatientRepository) Load(ctx context.Context) (patient.State, error) {
	data, err := r.client.Get(ctx, r.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return patient.State{}, shared.ErrNoPatient
	}
	if err != nil {
		return patient.State{}, fmt.Errorf("redis: get %s: %w", r.key, err)
	}
	return patient.Decode(data)
}

// Save implements patient.Repository.
func (r *PatientRepository) Save(ctx context.Context, s patient.State) error {
	data, err := patient.Encode(s)
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, r.key, data, 0).Err(); err != nil {
		return fmt.Errorf("redis: set %s: %w", r.key, err)
	}
	return nil
}

// Delete implements patient.Repository.
func (r *PatientRepository) Delete(ctx context.Context) error {
	if err := r.client.Del(ctx, r.key).Err(); err != nil {
		return fmt.Errorf("redis: del %s: %w", r.key, err)
	}
	return nil
}

// Ping implements patient.HealthChecker.
func (r *PatientRepository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
