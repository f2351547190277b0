package pii

import (
	"fmt"
	"unicode/utf8"
)

// Options control which kinds a detector reports and the minimum confidence
// a candidate needs to survive.
type Options struct {
	Kinds          []Kind
	ScoreThreshold float64
}

func (o Options) withDefaults() Options {
	if len(o.Kinds) == 0 {
		o.Kinds = DefaultKinds()
	}
	if o.ScoreThreshold <= 0 {
		o.ScoreThreshold = 0.6
	}
	return o
}

// Detector produces an ordered, non-overlapping sequence of detected
// entities. Implementations must be deterministic for a fixed backend
// and input.
type Detector interface {
	Detect(text string) ([]Entity, error)
}

// Candidate is a raw span reported by a recognition backend before
// thresholding and overlap resolution.
type Candidate struct {
	Kind       string
	Start      int
	End        int
	Confidence float64
}

// Recognizer is the contract a recognition backend must satisfy.
type Recognizer interface {
	Recognize(text string) ([]Candidate, error)
}

// GuardDetector delegates to a recognition backend and applies the engine's
// post-processing: threshold filter, allowlist restriction, and overlap
// resolution (longer span wins, then higher confidence).
type GuardDetector struct {
	backend Recognizer
	opts    Options
	allow   map[Kind]struct{}
}

// NewGuardDetector wraps a recognition backend selected by the startup probe.
func NewGuardDetector(backend Recognizer, opts Options) *GuardDetector {
	opts = opts.withDefaults()
	return &GuardDetector{backend: backend, opts: opts, allow: kindSet(opts.Kinds)}
}

// Detect implements Detector.
func (d *GuardDetector) Detect(text string) ([]Entity, error) {
	if !utf8.ValidString(text) {
		return nil, fmt.Errorf("%w: input is not valid UTF-8 text", ErrDetection)
	}
	if text == "" {
		return nil, nil
	}

	candidates, err := d.backend.Recognize(text)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDetection, err)
	}

	var found []Entity
	for _, c := range candidates {
		kind, err := ParseKind(c.Kind)
		if err != nil {
			// Backend labels outside the engine's taxonomy are ignored.
			continue
		}
		if c.Confidence < d.opts.ScoreThreshold || !kindAllowed(kind, d.allow) {
			continue
		}
		if c.Start < 0 || c.End > len(text) || c.End <= c.Start {
			continue
		}
		found = append(found, Entity{
			Kind:       kind,
			Start:      c.Start,
			End:        c.End,
			Text:       text[c.Start:c.End],
			Confidence: c.Confidence,
		})
	}

	return ResolveOverlaps(found), nil
}
