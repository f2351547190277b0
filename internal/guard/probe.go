package guard

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/veilguard-ai/veilguard/internal/config"
	"github.com/veilguard-ai/veilguard/internal/content"
	"github.com/veilguard-ai/veilguard/internal/pii"
	"github.com/veilguard-ai/veilguard/internal/redact"
)

// ErrBackendUnavailable marks a startup probe failure when the ML backend
// is required. Fallback configurations never return it.
var ErrBackendUnavailable = errors.New("ml backend unavailable")

// Status reports which backend family the probe settled on.
type Status string

const (
	// StatusML means at least one ONNX head loaded.
	StatusML Status = "ml"
	// StatusPattern means recognition and classification both run on the
	// built-in pattern and lexicon fallbacks.
	StatusPattern Status = "pattern"
)

// Capabilities is the immutable result of the startup probe. The backend
// choice is made exactly once; per-request calls never re-probe.
type Capabilities struct {
	recognizer *NERModel
	classifier *TextModel
	status     Status
}

// Status reports the probe outcome.
func (c *Capabilities) Status() Status {
	if c == nil {
		return StatusPattern
	}
	return c.status
}

// Recognizer returns the ML recognition backend when one loaded.
func (c *Capabilities) Recognizer() (pii.Recognizer, bool) {
	if c == nil || c.recognizer == nil {
		return nil, false
	}
	return c.recognizer, true
}

// Classifier returns the ML classification backend when one loaded.
func (c *Capabilities) Classifier() (content.LabelScorer, bool) {
	if c == nil || c.classifier == nil {
		return nil, false
	}
	return c.classifier, true
}

// Probe inspects the configured bundle once at startup and loads whatever
// ONNX heads are present. A missing or broken bundle degrades to the
// pattern fallback unless require_ml is set, in which case it is a
// startup error.
func Probe(cfg config.GuardConfig) (*Capabilities, error) {
	if cfg.BundleDir == "" {
		if cfg.RequireML {
			return nil, fmt.Errorf("%w: guard.bundle_dir is not configured", ErrBackendUnavailable)
		}
		redact.Logf("guard: no bundle configured, using pattern fallback")
		return &Capabilities{status: StatusPattern}, nil
	}

	if _, err := os.Stat(cfg.BundleDir); err != nil {
		if cfg.RequireML {
			return nil, fmt.Errorf("%w: bundle dir %s: %v", ErrBackendUnavailable, cfg.BundleDir, err)
		}
		redact.Logf("guard: bundle dir %s unreadable (%v), using pattern fallback", cfg.BundleDir, err)
		return &Capabilities{status: StatusPattern}, nil
	}

	caps := &Capabilities{status: StatusPattern}

	recognizer, err := LoadNERModel(filepath.Join(cfg.BundleDir, "recognizer"), cfg.SeqLen)
	if err != nil {
		if cfg.RequireML {
			return nil, fmt.Errorf("%w: load recognizer: %v", ErrBackendUnavailable, err)
		}
		redact.Logf("guard: recognizer unavailable (%v), detection falls back to patterns", err)
	} else {
		caps.recognizer = recognizer
		caps.status = StatusML
		redact.Logf("guard: recognizer loaded from %s", filepath.Join(cfg.BundleDir, "recognizer"))
	}

	classifier, err := LoadTextModel(filepath.Join(cfg.BundleDir, "classifier"), cfg.SeqLen)
	if err != nil {
		if cfg.RequireML {
			return nil, fmt.Errorf("%w: load classifier: %v", ErrBackendUnavailable, err)
		}
		redact.Logf("guard: classifier unavailable (%v), classification falls back to lexicon", err)
	} else {
		caps.classifier = classifier
		caps.status = StatusML
		redact.Logf("guard: classifier loaded from %s", filepath.Join(cfg.BundleDir, "classifier"))
	}

	return caps, nil
}
