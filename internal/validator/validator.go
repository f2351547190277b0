package validator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/veilguard-ai/veilguard/internal/audit"
	"github.com/veilguard-ai/veilguard/internal/content"
	"github.com/veilguard-ai/veilguard/internal/pii"
)

// Result is the outcome of one validation. Detection and filtering
// evidence is always included so callers can explain a failure.
type Result struct {
	Passed          bool                `json:"passed"`
	Level           string              `json:"level"`
	Entities        []pii.Entity        `json:"entities"`
	PIIDetected     bool                `json:"piiDetected"`
	PIICount        int                 `json:"piiCount"`
	Violations      []content.Violation `json:"violations"`
	Scores          content.Scores      `json:"scores,omitempty"`
	Recommendations []string            `json:"recommendations"`
	ContextID       string              `json:"contextId,omitempty"`
}

// Validator runs the level's policy over detection, filtering, and the
// audit ledger. It is safe for concurrent use when its collaborators are.
type Validator struct {
	level         Level
	detector      pii.Detector
	filter        *content.Filter
	ledger        *audit.Ledger
	auditDisabled bool
}

// New wires a validator. The ledger may be nil when auditing is off
// entirely, but High and Strict force an audit write whenever a ledger
// exists.
func New(level Level, detector pii.Detector, filter *content.Filter, ledger *audit.Ledger, auditDisabled bool) *Validator {
	return &Validator{
		level:         level,
		detector:      detector,
		filter:        filter,
		ledger:        ledger,
		auditDisabled: auditDisabled,
	}
}

// Level reports the configured privacy level.
func (v *Validator) Level() Level { return v.level }

// Validate checks text without a caller-supplied correlation id.
func (v *Validator) Validate(ctx context.Context, text string) (Result, error) {
	return v.ValidateWithContext(ctx, text, "")
}

// ValidateWithContext checks text and threads contextID through to the
// result and the audit entry. A failed audit write does not fail the
// validation: the full result is returned together with an error
// wrapping audit.ErrWrite.
func (v *Validator) ValidateWithContext(ctx context.Context, text, contextID string) (Result, error) {
	pol := policyFor(v.level)
	res := Result{
		Passed:          true,
		Level:           v.level.String(),
		Entities:        []pii.Entity{},
		Violations:      []content.Violation{},
		Recommendations: []string{},
		ContextID:       contextID,
	}

	if pol.detect {
		entities, err := v.detector.Detect(text)
		if err != nil {
			return res, fmt.Errorf("validate: %w", err)
		}
		if entities != nil {
			res.Entities = entities
		}
		res.PIICount = len(entities)
		res.PIIDetected = res.PIICount > 0
	}

	if pol.filter {
		fres, err := v.filter.Filter(text)
		if err != nil {
			return res, fmt.Errorf("validate: %w", err)
		}
		if fres.Violations != nil {
			res.Violations = fres.Violations
		}
		res.Scores = fres.Scores
	}

	if pol.failOnViolations && len(res.Violations) > 0 {
		res.Passed = false
	}
	if pol.failOnPII && res.PIICount > 0 {
		res.Passed = false
	}
	res.Recommendations = recommendations(res)

	if !v.shouldAudit(pol) {
		return res, nil
	}
	entry := audit.Entry{
		Operation:           audit.OpValidate,
		PIICount:            res.PIICount,
		ViolationCategories: violationCategories(res.Violations),
		Passed:              &res.Passed,
	}
	if contextID != "" {
		entry.ContextID = &contextID
	}
	if err := v.ledger.Record(ctx, entry); err != nil {
		return res, fmt.Errorf("validate: %w", err)
	}
	return res, nil
}

// ValidateBatch validates each text independently and preserves order.
// Failed audit writes do not cost the caller any results: they are
// collected and returned alongside the full result set. Any other error
// aborts the batch.
func (v *Validator) ValidateBatch(ctx context.Context, texts []string) ([]Result, error) {
	out := make([]Result, 0, len(texts))
	var auditErrs []error
	for i, text := range texts {
		res, err := v.Validate(ctx, text)
		if err != nil {
			if !errors.Is(err, audit.ErrWrite) {
				return nil, fmt.Errorf("item %d: %w", i, err)
			}
			auditErrs = append(auditErrs, fmt.Errorf("item %d: %w", i, err))
		}
		out = append(out, res)
	}
	return out, errors.Join(auditErrs...)
}

func (v *Validator) shouldAudit(pol policy) bool {
	if v.ledger == nil {
		return false
	}
	if pol.forceAudit {
		return true
	}
	return !v.auditDisabled
}

func recommendations(res Result) []string {
	var out []string
	if res.PIICount > 0 {
		out = append(out, fmt.Sprintf("detected %d PII entities; consider anonymization before sharing", res.PIICount))
	}
	if len(res.Violations) > 0 {
		out = append(out, "content flagged for: "+strings.Join(violationCategories(res.Violations), ", "))
	}
	if !res.Passed && len(out) == 0 {
		out = append(out, "input did not meet the configured privacy level")
	}
	if out == nil {
		return []string{}
	}
	return out
}

func violationCategories(violations []content.Violation) []string {
	out := make([]string, 0, len(violations))
	seen := make(map[string]struct{}, len(violations))
	for _, v := range violations {
		name := string(v.Category)
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out
}
