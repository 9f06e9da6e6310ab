// Package shared holds what every domain package agrees on: day and ID value
// objects, domain events, and the error kinds the HTTP layer maps to statuses.
package shared

import (
	"errors"
)

// ══════════════════════════════════════════════════════════════════════════════
// ERROR KINDS
// ══════════════════════════════════════════════════════════════════════════════

// Kinds classify a failure. Concrete errors below carry one; match with
// errors.Is or the Is* helpers.
var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrInvalidState  = errors.New("invalid state")

	ErrInvalidInput    = errors.New("invalid input")
	ErrEmptyValue      = errors.New("value cannot be empty")
	ErrValueOutOfRange = errors.New("value out of range")
	ErrInvalidFormat   = errors.New("invalid format")

	ErrExternalService    = errors.New("external service error")
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrTimeout            = errors.New("operation timeout")
	ErrRateLimited        = errors.New("rate limited")
)

// DomainError names where a failure happened (Area and Op), what kind it is,
// and the message shown to the patient. Err is the optional cause.
type DomainError struct {
	Area    string
	Op      string
	Kind    error
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	msg := e.Area + "." + e.Op + ": " + e.Message
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As.
func (e *DomainError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// WrapError attaches area, op, kind and message to a cause.
func WrapError(area, op string, kind error, message string, err error) *DomainError {
	return &DomainError{Area: area, Op: op, Kind: kind, Message: message, Err: err}
}

func newError(area, op string, kind error, message string) *DomainError {
	return WrapError(area, op, kind, message, nil)
}

// ══════════════════════════════════════════════════════════════════════════════
// PATIENT
// ══════════════════════════════════════════════════════════════════════════════

var (
	ErrNoPatient           = newError("patient", "Find", ErrNotFound, "no patient onboarded yet")
	ErrAlreadyOnboarded    = newError("patient", "Onboard", ErrAlreadyExists, "patient already onboarded")
	ErrMalformedState      = newError("patient", "Decode", ErrInvalidFormat, "persisted patient state is malformed")
	ErrInvalidProfile      = newError("patient", "Validate", ErrInvalidInput, "invalid onboarding profile")
	ErrInvalidInjectionDay = newError("patient", "Validate", ErrValueOutOfRange, "injection day must be between 0 and 6")
	ErrStoreNotOpen        = newError("patient", "Onboard", ErrInvalidState, "patient record has not been read")
)

// ══════════════════════════════════════════════════════════════════════════════
// TRACKER
// ══════════════════════════════════════════════════════════════════════════════

var (
	ErrUnknownTask        = newError("tracker", "CompleteTask", ErrInvalidInput, "unknown task")
	ErrTaskNotDueToday    = newError("tracker", "CompleteTask", ErrInvalidInput, "task is not part of today's task set")
	ErrInvalidWeight      = newError("tracker", "LogWeight", ErrValueOutOfRange, "weight must be positive")
	ErrEmptyEffect        = newError("tracker", "LogSideEffect", ErrEmptyValue, "side effect cannot be empty")
	ErrInvalidSeverity    = newError("tracker", "LogSideEffect", ErrValueOutOfRange, "severity must be between 1 and 10")
	ErrSideEffectNotFound = newError("tracker", "FindSideEffect", ErrNotFound, "side effect log not found")
)

// ══════════════════════════════════════════════════════════════════════════════
// GUIDANCE
// ══════════════════════════════════════════════════════════════════════════════

var (
	ErrGuidanceUnavailable = newError("guidance", "Request", ErrServiceUnavailable, "guidance service is unavailable")
	ErrGuidanceRateLimited = newError("guidance", "Request", ErrRateLimited, "guidance service rate limit exceeded")
	ErrGuidanceEmpty       = newError("guidance", "Parse", ErrInvalidFormat, "guidance service returned no content")
)

func IsNotFound(err error) bool      { return errors.Is(err, ErrNotFound) }
func IsAlreadyExists(err error) bool { return errors.Is(err, ErrAlreadyExists) }

// IsValidation covers every kind that means the caller sent bad input.
func IsValidation(err error) bool {
	for _, kind := range []error{ErrInvalidInput, ErrEmptyValue, ErrValueOutOfRange} {
		if errors.Is(err, kind) {
			return true
		}
	}
	return false
}
