package patient

import (
	"context"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACES
// The patient lives in a single named key-value slot. Implementations are in
// infrastructure/persistence.
// ══════════════════════════════════════════════════════════════════════════════

// Repository stores the single patient record.
type Repository interface {
	// Load returns the persisted state.
	// Returns ErrNoPatient when the slot is empty and ErrMalformedState when
	// the record cannot be decoded.
	Load(ctx context.Context) (State, error)

	// Save replaces the persisted record.
	Save(ctx context.Context, s State) error

	// Delete empties the slot. Deleting an empty slot is not an error.
	Delete(ctx context.Context) error
}

// HealthChecker is implemented by repositories backed by a server.
type HealthChecker interface {
	Ping(ctx context.Context) error
}
