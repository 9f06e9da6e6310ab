// Package query contains read operations over the patient state.
package query

import (
	"github.com/healthloop/companion/internal/domain/patient"
	"github.com/healthloop/companion/internal/domain/shared"
)

// StateReader gives queries a consistent copy of the patient state.
type StateReader interface {
	Current() (patient.State, error)
	Today() shared.Day
}
