package content

import (
	"fmt"
	"unicode/utf8"
)

// LabelScorer is the contract a classification backend must satisfy: one
// whole-text score per label. Labels outside the engine's category set are
// ignored.
type LabelScorer interface {
	ClassifyText(text string) (map[string]float64, error)
}

// GuardClassifier delegates scoring to a classification backend selected by
// the startup probe. It cannot report spans; span-level redaction degrades
// to whole-text redaction with this variant.
type GuardClassifier struct {
	backend LabelScorer
}

// NewGuardClassifier wraps a classification backend.
func NewGuardClassifier(backend LabelScorer) *GuardClassifier {
	return &GuardClassifier{backend: backend}
}

// Score implements Classifier.
func (c *GuardClassifier) Score(text string) (Scores, error) {
	if !utf8.ValidString(text) {
		return nil, fmt.Errorf("%w: input is not valid UTF-8 text", ErrClassification)
	}

	scores := emptyScores()
	if text == "" {
		return scores, nil
	}

	raw, err := c.backend.ClassifyText(text)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrClassification, err)
	}

	for label, score := range raw {
		cat, err := ParseCategory(label)
		if err != nil {
			continue
		}
		if score < 0 {
			score = 0
		}
		if score > 1 {
			score = 1
		}
		scores[cat] = score
	}
	return scores, nil
}
