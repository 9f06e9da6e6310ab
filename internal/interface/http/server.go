// Package http serves the companion's local REST API: onboarding, the
// dashboard, task completion, weigh-ins and side-effect reports.
package http

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/google/uuid"

	"github.com/healthloop/companion/internal/application/query"
	"github.com/healthloop/companion/internal/application/saga"
	"github.com/healthloop/companion/internal/domain/patient"
	"github.com/healthloop/companion/internal/domain/shared"
	"github.com/healthloop/companion/internal/interface/http/handlers"
	"github.com/healthloop/companion/pkg/logger"
)

// Config holds listener and request limits. The API binds to loopback by
// default since it serves a single patient.
type Config struct {
	Host           string
	Port           int
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	MaxHeaderBytes int
	MaxBodyBytes   int64  // mutating routes only
	APITokenHash   string // bcrypt; empty disables auth
	Version        string
}

func DefaultConfig() Config {
	return Config{
		Host:           "127.0.0.1",
		Port:           8080,
		ReadTimeout:    15 * time.Second,
		WriteTimeout:   15 * time.Second,
		IdleTimeout:    time.Minute,
		MaxHeaderBytes: 1 << 20,
		MaxBodyBytes:   64 << 10,
		Version:        "v1",
	}
}

func (c Config) Address() string {
	return net.JoinHostPort(c.Host, fmt.Sprint(c.Port))
}

// PatientService is the part of the patient store the API drives.
type PatientService interface {
	Current() (patient.State, error)
	Today() shared.Day
	Onboard(ctx context.Context, p patient.Profile) (patient.State, error)
	Reset(ctx context.Context) error
	CompleteTask(ctx context.Context, id shared.TaskID) (patient.State, error)
	LogWeight(ctx context.Context, weight float64) (patient.State, error)
}

// SideEffectReporter records a side effect and fetches guidance for it.
type SideEffectReporter interface {
	Execute(ctx context.Context, report saga.GuidanceReport) (*saga.GuidanceFlowResult, error)
}

// Dependencies are built by the caller. Query handlers and the health
// checker default to ones derived from Patients.
type Dependencies struct {
	Patients   PatientService
	SideEffect SideEffectReporter

	Dashboard    *query.GetDashboardHandler
	Achievements *query.GetAchievementsHandler
	SideEffects  *query.ListSideEffectsHandler

	HealthChecker handlers.HealthChecker
	Logger        *logger.Logger
}

// Server is the API. Handler can be mounted directly; ListenAndServe owns a
// listener for the lifetime of a context.
type Server struct {
	config  Config
	deps    Dependencies
	auth    *handlers.BearerAuth
	logger  *logger.Logger
	handler http.Handler
}

func NewServer(config Config, deps Dependencies) *Server {
	if deps.Logger == nil {
		deps.Logger = logger.Default()
	}
	if deps.Dashboard == nil {
		deps.Dashboard = query.NewGetDashboardHandler(deps.Patients)
	}
	if deps.Achievements == nil {
		deps.Achievements = query.NewGetAchievementsHandler(deps.Patients)
	}
	if deps.SideEffects == nil {
		deps.SideEffects = query.NewListSideEffectsHandler(deps.Patients)
	}
	if deps.HealthChecker == nil {
		deps.HealthChecker = handlers.NewCompositeHealthChecker(config.Version)
	}
	if config.MaxBodyBytes <= 0 {
		config.MaxBodyBytes = DefaultConfig().MaxBodyBytes
	}

	s := &Server{
		config: config,
		deps:   deps,
		auth:   handlers.NewBearerAuth(config.APITokenHash),
		logger: deps.Logger.With(logger.Component("http")),
	}
	s.handler = handlers.Chain(
		s.recoverPanics,
		s.tagRequest,
		s.logAccess,
		handlers.SecurityHeadersMiddleware,
	)(s.routes())
	return s
}

func (s *Server) Handler() http.Handler { return s.handler }

// ══════════════════════════════════════════════════════════════════════════════
// ROUTES
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)

	mux.HandleFunc("GET /api/v1/patient", s.handleGetPatient)
	mux.HandleFunc("GET /api/v1/dashboard", s.handleGetDashboard)
	mux.HandleFunc("GET /api/v1/achievements", s.handleGetAchievements)
	mux.HandleFunc("GET /api/v1/side-effects", s.handleListSideEffects)

	// Writes need the bearer token when one is configured.
	write := handlers.Chain(s.auth.Middleware, handlers.RequestSizeLimitMiddleware(s.config.MaxBodyBytes))
	mux.Handle("POST /api/v1/patient", write(http.HandlerFunc(s.handleOnboard)))
	mux.Handle("DELETE /api/v1/patient", write(http.HandlerFunc(s.handleReset)))
	mux.Handle("POST /api/v1/tasks/{id}/complete", write(http.HandlerFunc(s.handleCompleteTask)))
	mux.Handle("POST /api/v1/weights", write(http.HandlerFunc(s.handleLogWeight)))
	mux.Handle("POST /api/v1/side-effects", write(http.HandlerFunc(s.handleLogSideEffect)))
	return mux
}

// ══════════════════════════════════════════════════════════════════════════════
// MIDDLEWARE
// ══════════════════════════════════════════════════════════════════════════════

type requestIDKey struct{}

// tagRequest reuses a caller's X-Request-ID or mints one, and attaches a
// logger carrying it.
func (s *Server) tagRequest(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)

		ctx := context.WithValue(r.Context(), requestIDKey{}, id)
		ctx = logger.WithContext(ctx, s.logger.WithRequestID(id))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func requestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rec *statusRecorder) WriteHeader(code int) {
	rec.status = code
	rec.ResponseWriter.WriteHeader(code)
}

// logAccess writes one line per request; server errors are logged as warnings.
func (s *Server) logAccess(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		log := logger.FromContext(r.Context()).Info
		if rec.status >= http.StatusInternalServerError {
			log = logger.FromContext(r.Context()).Warn
		}
		log("http request",
			logger.String("method", r.Method),
			logger.String("path", r.URL.Path),
			logger.Int("status", rec.status),
			logger.Latency(time.Since(start)),
		)
	})
}

func (s *Server) recoverPanics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				s.logger.Error("panic recovered",
					logger.Any("panic", v),
					logger.String("path", r.URL.Path),
					logger.String("stack", string(debug.Stack())),
				)
				writeJSONError(w, http.StatusInternalServerError, "internal_server_error", "An unexpected error occurred")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// LIFECYCLE
// ══════════════════════════════════════════════════════════════════════════════

// ListenAndServe binds the configured address and serves until ctx ends,
// then gives in-flight requests up to grace to finish. A bind failure is
// returned immediately.
func (s *Server) ListenAndServe(ctx context.Context, grace time.Duration) error {
	ln, err := net.Listen("tcp", s.config.Address())
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.config.Address(), err)
	}

	srv := &http.Server{
		Handler:        s.handler,
		ReadTimeout:    s.config.ReadTimeout,
		WriteTimeout:   s.config.WriteTimeout,
		IdleTimeout:    s.config.IdleTimeout,
		MaxHeaderBytes: s.config.MaxHeaderBytes,
	}

	s.logger.Info("starting HTTP server",
		logger.String("address", ln.Addr().String()),
		logger.Bool("auth", s.auth.Enabled()),
	)

	served := make(chan error, 1)
	go func() { served <- srv.Serve(ln) }()

	select {
	case err := <-served:
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info("shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-served; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
