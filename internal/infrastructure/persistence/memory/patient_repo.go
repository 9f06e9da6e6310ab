// Package memory provides an in-process patient slot for tests and dry runs.
package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/healthloop/companion/internal/domain/patient"
	"github.com/healthloop/companion/internal/domain/shared"
)

// PatientRepository keeps the encoded record in memory. Records go through
// the same codec as the durable backends.
type PatientRepository struct {
	mu   sync.RWMutex
	data []byte

	// FailLoad and FailSave make Load and Save return these errors.
	FailLoad error
	FailSave error
}

// NewPatientRepository creates an empty slot.
func NewPatientRepository() *PatientRepository {
	return &PatientRepository{}
}

// Load implements patient.Repository.
func (r *PatientRepository) Load(ctx context.Context) (patient.State, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.FailLoad != nil {
		return patient.State{}, r.FailLoad
	}
	if r.data == nil {
		return patient.State{}, shared.ErrNoPatient
	}
	return patient.Decode(r.data)
}

// Save implements patient.Repository.
func (r *PatientRepository) Save(ctx context.Context, s patient.State) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.FailSave != nil {
		return r.FailSave
	}
	data, err := patient.Encode(s)
	if err != nil {
		return err
	}
	r.data = data
	return nil
}

// Delete implements patient.Repository.
func (r *PatientRepository) Delete(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data = nil
	return nil
}

// Raw returns the stored bytes.
func (r *PatientRepository) Raw() []byte {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]byte(nil), r.data...)
}

// SetRaw replaces the stored bytes, e.g. to simulate a corrupted record.
func (r *PatientRepository) SetRaw(data []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data = append([]byte(nil), data...)
}

// SetFailLoad toggles the injected load error.
func (r *PatientRepository) SetFailLoad(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.FailLoad = err
}

// SetFailSave toggles the injected save error.
func (r *PatientRepository) SetFailSave(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.FailSave = err
}

// ErrInjected is a convenience error for failure tests.
var ErrInjected = errors.New("memory: injected failure")
