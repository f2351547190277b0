package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/veilguard-ai/veilguard/internal/audit"
	"github.com/veilguard-ai/veilguard/internal/content"
	"github.com/veilguard-ai/veilguard/internal/pii"
	"github.com/veilguard-ai/veilguard/internal/redact"
)

type textRequest struct {
	Text      string   `json:"text"`
	Texts     []string `json:"texts,omitempty"`
	ContextID string   `json:"contextId,omitempty"`
}

// decodeTextRequest rejects anything but a single text or a batch.
func decodeTextRequest(w http.ResponseWriter, r *http.Request) (textRequest, bool) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return textRequest{}, false
	}
	var req textRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return textRequest{}, false
	}
	if req.Text == "" && len(req.Texts) == 0 {
		writeError(w, http.StatusBadRequest, "missing text")
		return textRequest{}, false
	}
	if req.Text != "" && len(req.Texts) > 0 {
		writeError(w, http.StatusBadRequest, "provide either text or texts, not both")
		return textRequest{}, false
	}
	return req, true
}

type detectResponse struct {
	Entities  []pii.Entity `json:"entities"`
	Count     int          `json:"count"`
	RequestID string       `json:"requestId"`
}

func (s *Server) handleDetect(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeTextRequest(w, r)
	if !ok {
		return
	}
	if len(req.Texts) > 0 {
		writeError(w, http.StatusBadRequest, "detect takes a single text")
		return
	}
	reqID := requestID(r)
	start := time.Now()

	entities, err := s.c.Detector.Detect(req.Text)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if entities == nil {
		entities = []pii.Entity{}
	}

	s.recordAudit(r, audit.Entry{Operation: audit.OpDetect, PIICount: len(entities)}, reqID)
	s.c.Telemetry.RecordOperation("detect", s.levelName(), true, msSince(start), len(entities), 0)
	writeJSON(w, http.StatusOK, detectResponse{Entities: entities, Count: len(entities), RequestID: reqID})
}

type anonymizeResponse struct {
	Text      string   `json:"text,omitempty"`
	Texts     []string `json:"texts,omitempty"`
	Count     int      `json:"count"`
	RequestID string   `json:"requestId"`
}

func (s *Server) handleAnonymize(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeTextRequest(w, r)
	if !ok {
		return
	}
	reqID := requestID(r)
	start := time.Now()

	var resp anonymizeResponse
	resp.RequestID = reqID

	if len(req.Texts) > 0 {
		out, err := s.c.Anonymizer.AnonymizeBatch(req.Texts)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		resp.Texts = out
		for _, text := range req.Texts {
			entities, err := s.c.Detector.Detect(text)
			if err != nil {
				writeError(w, http.StatusUnprocessableEntity, err.Error())
				return
			}
			resp.Count += len(entities)
		}
	} else {
		entities, err := s.c.Detector.Detect(req.Text)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		out, err := s.c.Anonymizer.Anonymize(req.Text)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		resp.Text = out
		resp.Count = len(entities)
	}

	s.recordAudit(r, audit.Entry{Operation: audit.OpAnonymize, PIICount: resp.Count}, reqID)
	s.c.Telemetry.RecordOperation("anonymize", s.levelName(), true, msSince(start), resp.Count, 0)
	writeJSON(w, http.StatusOK, resp)
}

type filterResponse struct {
	content.Result
	RequestID string `json:"requestId"`
}

func (s *Server) handleFilter(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeTextRequest(w, r)
	if !ok {
		return
	}
	if len(req.Texts) > 0 {
		writeError(w, http.StatusBadRequest, "filter takes a single text")
		return
	}
	reqID := requestID(r)
	start := time.Now()

	res, err := s.c.Filter.Filter(req.Text)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	categories := make([]string, 0, len(res.Violations))
	for _, v := range res.Violations {
		categories = append(categories, string(v.Category))
	}
	s.recordAudit(r, audit.Entry{
		Operation:           audit.OpFilter,
		ViolationCategories: categories,
		Passed:              &res.Passed,
	}, reqID)
	s.c.Telemetry.RecordOperation("filter", s.levelName(), res.Passed, msSince(start), 0, len(res.Violations))
	writeJSON(w, http.StatusOK, filterResponse{Result: res, RequestID: reqID})
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeTextRequest(w, r)
	if !ok {
		return
	}
	reqID := requestID(r)
	start := time.Now()

	if len(req.Texts) > 0 {
		results, err := s.c.Validator.ValidateBatch(r.Context(), req.Texts)
		if err != nil {
			if !errors.Is(err, audit.ErrWrite) {
				s.writeValidateError(w, err)
				return
			}
			redact.Logf("validate: %v", err)
		}
		writeJSON(w, http.StatusOK, map[string]any{"results": results, "requestId": reqID})
		return
	}

	contextID := req.ContextID
	if contextID == "" {
		contextID = reqID
	}
	res, err := s.c.Validator.ValidateWithContext(r.Context(), req.Text, contextID)
	if err != nil {
		// A failed audit write is a warning on a completed validation.
		if !errors.Is(err, audit.ErrWrite) {
			s.writeValidateError(w, err)
			return
		}
		redact.Logf("validate: %v", err)
	}
	s.c.Telemetry.RecordOperation("validate", s.levelName(), res.Passed, msSince(start), res.PIICount, len(res.Violations))
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) writeValidateError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, pii.ErrDetection), errors.Is(err, content.ErrClassification):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) handleAuditSummary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.c.Ledger == nil {
		writeError(w, http.StatusNotFound, "auditing is not configured")
		return
	}
	writeJSON(w, http.StatusOK, s.c.Ledger.Summarize())
}

type healthResponse struct {
	Status  string `json:"status"`
	Backend string `json:"backend"`
	Level   string `json:"level"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:  "ok",
		Backend: string(s.c.Guard.Status()),
		Level:   s.levelName(),
	})
}

// recordAudit writes a best-effort entry for non-validate operations.
// The validator audits its own runs.
func (s *Server) recordAudit(r *http.Request, e audit.Entry, reqID string) {
	if s.c.Ledger == nil || s.cfg.Audit.Disabled {
		return
	}
	e.ContextID = &reqID
	if err := s.c.Ledger.Record(r.Context(), e); err != nil {
		redact.Logf("audit: %v", err)
	}
}

func (s *Server) levelName() string {
	return s.cfg.Privacy.Level
}

func msSince(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000.0
}
