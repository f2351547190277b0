package content

import (
	"errors"
	"fmt"
	"strings"
)

// Category is one class of harmful content the engine scores text against.
type Category string

const (
	CategoryToxicity       Category = "toxicity"
	CategorySevereToxicity Category = "severe_toxicity"
	CategoryObscene        Category = "obscene"
	CategoryThreat         Category = "threat"
	CategoryInsult         Category = "insult"
	CategoryIdentityAttack Category = "identity_attack"
	CategorySexualExplicit Category = "sexual_explicit"
	CategoryProfanity      Category = "profanity"
	CategoryHateSpeech     Category = "hate_speech"

	// CategoryBlocklist is the synthetic category reported when a configured
	// blocklist term matches; it bypasses the classifier entirely.
	CategoryBlocklist Category = "custom_blocklist"
)

// ErrClassification marks fatal classifier failures (malformed input,
// backend faults).
var ErrClassification = errors.New("content classification failed")

// ErrFilterConfig marks invalid filter configuration.
var ErrFilterConfig = errors.New("invalid filter configuration")

// Categories lists every scoreable category.
func Categories() []Category {
	return []Category{
		CategoryToxicity, CategorySevereToxicity, CategoryObscene,
		CategoryThreat, CategoryInsult, CategoryIdentityAttack,
		CategorySexualExplicit, CategoryProfanity, CategoryHateSpeech,
	}
}

// ParseCategory resolves a configured category name.
func ParseCategory(name string) (Category, error) {
	normalized := Category(strings.ToLower(strings.TrimSpace(name)))
	for _, c := range Categories() {
		if c == normalized {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown content category %q", name)
}

// DefaultCategories is the category set used when none is configured.
func DefaultCategories() []Category {
	return []Category{
		CategoryToxicity, CategorySevereToxicity, CategoryObscene,
		CategoryThreat, CategoryInsult, CategoryIdentityAttack,
	}
}

// DefaultThresholds supplies the per-category violation cutoffs.
func DefaultThresholds() map[Category]float64 {
	return map[Category]float64{
		CategoryToxicity:       0.7,
		CategorySevereToxicity: 0.5,
		CategoryObscene:        0.7,
		CategoryThreat:         0.5,
		CategoryInsult:         0.7,
		CategoryIdentityAttack: 0.7,
		CategorySexualExplicit: 0.8,
		CategoryProfanity:      0.7,
		CategoryHateSpeech:     0.6,
	}
}

// Scores maps each category to a probability-like value in [0,1].
type Scores map[Category]float64

// Span is a [Start,End) byte range in the input that matched a category
// lexicon. Only the pattern-based classifier can produce spans.
type Span struct {
	Start    int
	End      int
	Category Category
}

// Classifier scores whole text against the category set. Implementations
// must be deterministic for a fixed backend and input.
type Classifier interface {
	Score(text string) (Scores, error)
}

// SpanScorer is implemented by classifiers that can also report which spans
// triggered each category, enabling span-level redaction.
type SpanScorer interface {
	Classifier
	ScoreSpans(text string) (Scores, []Span, error)
}

func emptyScores() Scores {
	s := make(Scores, len(Categories()))
	for _, c := range Categories() {
		s[c] = 0
	}
	return s
}
