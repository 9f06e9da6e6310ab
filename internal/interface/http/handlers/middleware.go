package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// MiddlewareFunc wraps an http.Handler.
type MiddlewareFunc func(http.Handler) http.Handler

// Chain composes middlewares; the first one sees the request first.
func Chain(mws ...MiddlewareFunc) MiddlewareFunc {
	return func(h http.Handler) http.Handler {
		for i := range mws {
			h = mws[len(mws)-1-i](h)
		}
		return h
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// BEARER TOKEN
// ══════════════════════════════════════════════════════════════════════════════

// BearerAuth guards mutating routes with a token stored only as a bcrypt hash.
type BearerAuth struct {
	hash []byte
}

// NewBearerAuth with an empty hash lets every request through.
func NewBearerAuth(tokenHash string) *BearerAuth {
	return &BearerAuth{hash: []byte(strings.TrimSpace(tokenHash))}
}

func (a *BearerAuth) Enabled() bool { return len(a.hash) > 0 }

// IsValid compares in constant time via bcrypt.
func (a *BearerAuth) IsValid(token string) bool {
	switch {
	case !a.Enabled():
		return true
	case token == "":
		return false
	}
	return bcrypt.CompareHashAndPassword(a.hash, []byte(token)) == nil
}

func (a *BearerAuth) Middleware(next http.Handler) http.Handler {
	if !a.Enabled() {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		switch {
		case !ok || token == "":
			writeError(w, http.StatusUnauthorized, "missing_token", "Bearer token is required")
		case !a.IsValid(token):
			writeError(w, http.StatusUnauthorized, "invalid_token", "Invalid bearer token")
		default:
			next.ServeHTTP(w, r)
		}
	})
}

// HashToken produces the value for HTTP_API_TOKEN_HASH.
func HashToken(token string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	return string(hash), err
}

// ══════════════════════════════════════════════════════════════════════════════
// LIMITS AND HEADERS
// ══════════════════════════════════════════════════════════════════════════════

// RequestSizeLimitMiddleware rejects a declared oversized body up front and
// caps the reader for chunked ones.
func RequestSizeLimitMiddleware(maxBytes int64) MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > maxBytes {
				writeError(w, http.StatusRequestEntityTooLarge, "payload_too_large", "Request body too large")
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}

// SecurityHeadersMiddleware: responses carry patient data, so nothing is
// cached or framed.
func SecurityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "no-referrer")
		h.Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}

type errorBody struct {
	Success bool `json:"success"`
	Error   struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// writeError mirrors the API error envelope without importing the server.
func writeError(w http.ResponseWriter, status int, code, message string) {
	var body errorBody
	body.Error.Code, body.Error.Message = code, message
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
