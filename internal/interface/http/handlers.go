package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/healthloop/companion/internal/application/query"
	"github.com/healthloop/companion/internal/application/saga"
	"github.com/healthloop/companion/internal/domain/patient"
	"github.com/healthloop/companion/internal/domain/shared"
	"github.com/healthloop/companion/pkg/logger"
)

// maxSideEffectLimit caps ?limit= on the side-effect listing.
const maxSideEffectLimit = 100

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH
// ══════════════════════════════════════════════════════════════════════════════

// handleHealth handles the health check endpoint.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := s.deps.HealthChecker.Check(r.Context())
	if !status.Healthy {
		writeJSON(w, r, http.StatusServiceUnavailable, status)
		return
	}
	writeJSON(w, r, http.StatusOK, status)
}

// ══════════════════════════════════════════════════════════════════════════════
// PATIENT
// ══════════════════════════════════════════════════════════════════════════════

// OnboardRequest is the onboarding form.
type OnboardRequest struct {
	Name           string  `json:"name"`
	Medication     string  `json:"medication"`
	Dose           string  `json:"dose"`
	InjectionDay   *int    `json:"injection_day"`
	StartingWeight float64 `json:"starting_weight"`
	TargetWeight   float64 `json:"target_weight"`
	Motivation     string  `json:"motivation"`
}

func (req OnboardRequest) profile() patient.Profile {
	day := -1
	if req.InjectionDay != nil {
		day = *req.InjectionDay
	}
	return patient.Profile{
		Name:           req.Name,
		Medication:     req.Medication,
		Dose:           req.Dose,
		InjectionDay:   day,
		StartingWeight: req.StartingWeight,
		TargetWeight:   req.TargetWeight,
		Motivation:     req.Motivation,
	}
}

// handleGetPatient returns the raw patient state.
func (s *Server) handleGetPatient(w http.ResponseWriter, r *http.Request) {
	state, err := s.deps.Patients.Current()
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, state)
}

// handleOnboard creates the patient.
func (s *Server) handleOnboard(w http.ResponseWriter, r *http.Request) {
	var req OnboardRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	state, err := s.deps.Patients.Onboard(r.Context(), req.profile())
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, state)
}

// handleReset deletes all patient data.
func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Patients.Reset(r.Context()); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ══════════════════════════════════════════════════════════════════════════════
// DASHBOARD & ACHIEVEMENTS
// ══════════════════════════════════════════════════════════════════════════════

// handleGetDashboard returns the dashboard view model for today, or for
// ?date=YYYY-MM-DD.
func (s *Server) handleGetDashboard(w http.ResponseWriter, r *http.Request) {
	q := query.GetDashboardQuery{}
	if raw := r.URL.Query().Get("date"); raw != "" {
		day, err := shared.ParseDay(raw)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
			return
		}
		q.Day = day
	}

	dto, err := s.deps.Dashboard.Handle(r.Context(), q)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, dto)
}

// handleGetAchievements lists every achievement with its unlock status.
func (s *Server) handleGetAchievements(w http.ResponseWriter, r *http.Request) {
	list, err := s.deps.Achievements.Handle(r.Context())
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeList(w, r, list, len(list))
}

// ══════════════════════════════════════════════════════════════════════════════
// TRACKING
// ══════════════════════════════════════════════════════════════════════════════

// handleCompleteTask completes one of today's tasks.
func (s *Server) handleCompleteTask(w http.ResponseWriter, r *http.Request) {
	taskID := shared.TaskID(r.PathValue("id"))

	state, err := s.deps.Patients.CompleteTask(r.Context(), taskID)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, state)
}

// WeightRequest is a weigh-in.
type WeightRequest struct {
	Weight float64 `json:"weight"`
}

// handleLogWeight records a weigh-in.
func (s *Server) handleLogWeight(w http.ResponseWriter, r *http.Request) {
	var req WeightRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	state, err := s.deps.Patients.LogWeight(r.Context(), req.Weight)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, state)
}

// SideEffectRequest is a side-effect report.
type SideEffectRequest struct {
	Effect   string `json:"effect"`
	Severity int    `json:"severity"`
}

// SideEffectAccepted is returned while guidance is still being fetched.
type SideEffectAccepted struct {
	ID                string `json:"id"`
	IsLoadingGuidance bool   `json:"is_loading_guidance"`
}

// handleLogSideEffect records a side effect. Guidance is attached in the
// background, so the response is 202 with the new log id.
func (s *Server) handleLogSideEffect(w http.ResponseWriter, r *http.Request) {
	var req SideEffectRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	res, err := s.deps.SideEffect.Execute(r.Context(), saga.GuidanceReport{
		Effect:   req.Effect,
		Severity: req.Severity,
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	w.Header().Set("Location", "/api/v1/side-effects?id="+res.LogID)
	writeJSON(w, r, http.StatusAccepted, SideEffectAccepted{ID: res.LogID, IsLoadingGuidance: true})
}

// handleListSideEffects lists side-effect logs, newest first.
func (s *Server) handleListSideEffects(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeJSONError(w, http.StatusBadRequest, "invalid_limit", "limit must be a non-negative integer")
			return
		}
		limit = min(n, maxSideEffectLimit)
	}

	list, err := s.deps.SideEffects.Handle(r.Context(), query.ListSideEffectsQuery{
		ID:    r.URL.Query().Get("id"),
		Limit: limit,
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	writeList(w, r, list, len(list))
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSONError(w, http.StatusRequestEntityTooLarge, "request_too_large", "Request body too large")
			return false
		}
		writeJSONError(w, http.StatusBadRequest, "invalid_json", fmt.Sprintf("Invalid request body: %v", err))
		return false
	}
	return true
}

// writeDomainError maps domain errors onto HTTP statuses.
func (s *Server) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var de *shared.DomainError
	message := err.Error()
	if errors.As(err, &de) {
		message = de.Message
	}

	switch {
	case errors.Is(err, shared.ErrNoPatient):
		writeJSONError(w, http.StatusNotFound, "onboarding_required", message)
	case shared.IsNotFound(err):
		writeJSONError(w, http.StatusNotFound, "not_found", message)
	case shared.IsValidation(err):
		writeJSONError(w, http.StatusBadRequest, "validation_error", message)
	case shared.IsAlreadyExists(err), errors.Is(err, shared.ErrInvalidState):
		writeJSONError(w, http.StatusConflict, "conflict", message)
	default:
		logger.FromContext(r.Context()).Error("request failed",
			logger.String("path", r.URL.Path),
			logger.Err(err),
		)
		writeJSONError(w, http.StatusInternalServerError, "internal_error", "An unexpected error occurred")
	}
}
