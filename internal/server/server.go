package server

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/veilguard-ai/veilguard/internal/audit"
	"github.com/veilguard-ai/veilguard/internal/config"
	"github.com/veilguard-ai/veilguard/internal/content"
	"github.com/veilguard-ai/veilguard/internal/guard"
	"github.com/veilguard-ai/veilguard/internal/pii"
	"github.com/veilguard-ai/veilguard/internal/redact"
	"github.com/veilguard-ai/veilguard/internal/telemetry"
	"github.com/veilguard-ai/veilguard/internal/validator"
)

// Components are the wired engine pieces the server exposes over HTTP.
type Components struct {
	Detector   pii.Detector
	Anonymizer *pii.Anonymizer
	Filter     *content.Filter
	Validator  *validator.Validator
	Ledger     *audit.Ledger
	Guard      *guard.Capabilities
	Telemetry  *telemetry.Provider
}

// Server exposes the privacy engine as a JSON API.
type Server struct {
	mux *http.ServeMux
	cfg *config.Config
	c   Components
}

// New registers routes and returns the server.
func New(cfg *config.Config, c Components) *Server {
	s := &Server{
		mux: http.NewServeMux(),
		cfg: cfg,
		c:   c,
	}
	s.mux.HandleFunc("/v1/detect", s.handleDetect)
	s.mux.HandleFunc("/v1/anonymize", s.handleAnonymize)
	s.mux.HandleFunc("/v1/filter", s.handleFilter)
	s.mux.HandleFunc("/v1/validate", s.handleValidate)
	s.mux.HandleFunc("/v1/audit/summary", s.handleAuditSummary)
	s.mux.HandleFunc("/healthz", s.handleHealth)
	return s
}

// Handler returns the routing handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// ListenAndServe blocks until the context is canceled or the listener
// fails.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Server.Addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		redact.Logf("veilguard listening on %s (backend=%s)", s.cfg.Server.Addr, s.c.Guard.Status())
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// requestID honors a caller-supplied X-Request-ID and otherwise mints one.
func requestID(r *http.Request) string {
	if id := strings.TrimSpace(r.Header.Get("X-Request-ID")); id != "" {
		return id
	}
	return uuid.NewString()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("failed to write response: %v", err)
	}
}

type apiError struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, apiError{Error: msg})
}
