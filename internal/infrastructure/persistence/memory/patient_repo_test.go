package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/healthloop/companion/internal/domain/patient"
	"github.com/healthloop/companion/internal/domain/shared"
)

func TestPatientRepository_RoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := NewPatientRepository()

	_, err := repo.Load(ctx)
	assert.ErrorIs(t, err, shared.ErrNoPatient)

	s := patient.NewState(patient.Profile{
		Name: "Dana", Medication: "Semaglutide", Dose: "0.5mg",
		InjectionDay: int(time.Monday), StartingWeight: 200, TargetWeight: 170, Motivation: "m",
	}, "2024-01-01")
	require.NoError(t, repo.Save(ctx, s))

	loaded, err := repo.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, s.Name, loaded.Name)
	assert.Equal(t, s.RefillDueDate, loaded.RefillDueDate)

	require.NoError(t, repo.Delete(ctx))
	_, err = repo.Load(ctx)
	assert.ErrorIs(t, err, shared.ErrNoPatient)
}

func TestPatientRepository_Malformed(t *testing.T) {
	repo := NewPatientRepository()
	repo.SetRaw([]byte("{not json"))

	_, err := repo.Load(context.Background())
	assert.ErrorIs(t, err, shared.ErrMalformedState)
}

func TestPatientRepository_FailSave(t *testing.T) {
	repo := NewPatientRepository()
	repo.SetFailSave(ErrInjected)

	err := repo.Save(context.Background(), patient.State{Name: "x"})
	assert.ErrorIs(t, err, ErrInjected)
	assert.Nil(t, repo.Raw())
}
