// Package httpapi is the thin HTTP control surface spec §6 names (not
// core): /edit, /sql, /force-sync, /status, /cached-snapshot. Grounded on
// relayfile's internal/httpapi/server.go (manual path/method dispatch in
// ServeHTTP, writeJSON/writeError helpers, MaxBodyBytes-limited body
// reads), trimmed to only the handful of routes spec §6 actually names —
// the teacher's JWT/HMAC auth and dashboard routes are explicitly out of
// scope here (spec §1: "thin collaborator, not core").
package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
)

// SQLGuard validates and executes a SQL statement submitted via POST /sql.
// Kept as an injected collaborator interface rather than a concrete
// implementation: spec §6 requires "a validated query" but does not define
// the validation/execution policy, and nothing else in the spec depends on
// SQL access beyond the relational store's own upsert/delete operations.
type SQLGuard interface {
	Execute(ctx context.Context, query string) (any, error)
}

// Reconciler is the subset of *reconciler.Reconciler the HTTP surface
// needs.
type Reconciler interface {
	StatusJSON(ctx context.Context) any
	RequestSync(ctx context.Context)
}

// Ingress is the subset of the job queue the /edit route needs: accepting
// one raw, not-yet-validated edit envelope for asynchronous processing.
type Ingress interface {
	SubmitRaw(ctx context.Context, raw []byte) error
}

// Config configures a Server. Zero MaxBodyBytes falls back to 1MiB,
// matching relayfile's own default.
type Config struct {
	MaxBodyBytes int64
	SQLGuard     SQLGuard
}

// Server is the thin HTTP control surface.
type Server struct {
	reconciler   Reconciler
	ingress      Ingress
	sqlGuard     SQLGuard
	maxBodyBytes int64
}

// NewServer wires a Server from its collaborators. ingress may be nil, in
// which case /edit reports 501 Not Implemented (spec §4.8 names the job
// queue worker as "optional ingress").
func NewServer(reconciler Reconciler, ingress Ingress, cfg Config) *Server {
	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = 1 << 20
	}
	return &Server{reconciler: reconciler, ingress: ingress, sqlGuard: cfg.SQLGuard, maxBodyBytes: maxBody}
}

// ServeHTTP dispatches on path and method, mirroring relayfile's manual
// routing (no router library is in scope: this surface is five control
// routes plus /health).
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/health" && r.Method == http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	case r.URL.Path == "/status" && r.Method == http.MethodGet:
		s.handleStatus(w, r)
	case r.URL.Path == "/edit" && r.Method == http.MethodPost:
		s.handleEdit(w, r)
	case r.URL.Path == "/sql" && r.Method == http.MethodPost:
		s.handleSQL(w, r)
	case r.URL.Path == "/force-sync" && r.Method == http.MethodPost:
		s.handleForceSync(w, r)
	case r.URL.Path == "/cached-snapshot" && r.Method == http.MethodGet:
		s.handleCachedSnapshot(w, r)
	default:
		writeError(w, http.StatusNotFound, "not_found", "no such route", "")
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.reconciler.StatusJSON(r.Context()))
}

func (s *Server) handleEdit(w http.ResponseWriter, r *http.Request) {
	if s.ingress == nil {
		writeError(w, http.StatusNotImplemented, "unsupported", "no ingress worker configured", "")
		return
	}
	body, err := s.readBody(w, r)
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "payload_too_large", err.Error(), "")
		return
	}
	if err := s.ingress.SubmitRaw(r.Context(), body); err != nil {
		writeError(w, http.StatusBadRequest, "validation", err.Error(), "")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func (s *Server) handleSQL(w http.ResponseWriter, r *http.Request) {
	if s.sqlGuard == nil {
		writeError(w, http.StatusNotImplemented, "unsupported", "no SQL guard configured", "")
		return
	}
	body, err := s.readBody(w, r)
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "payload_too_large", err.Error(), "")
		return
	}
	var req struct {
		Query string `json:"query"`
	}
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "validation", "malformed request body", "")
		return
	}
	result, err := s.sqlGuard.Execute(r.Context(), req.Query)
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation", err.Error(), "")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleForceSync(w http.ResponseWriter, r *http.Request) {
	s.reconciler.RequestSync(r.Context())
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "sync-requested"})
}

func (s *Server) handleCachedSnapshot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.reconciler.StatusJSON(r.Context()))
}

func (s *Server) readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxBodyBytes)
	return io.ReadAll(r.Body)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message, correlationID string) {
	writeJSON(w, status, map[string]any{
		"code":          code,
		"message":       message,
		"correlationId": correlationID,
	})
}
