package content

import (
	"fmt"
	"regexp"
	"unicode/utf8"
)

// lexiconRule scores one category from match density: score is
// min(cap, matches*weight). Secondary spillover lets profanity raise the
// broader toxicity signal the way whole-text models do.
type lexiconRule struct {
	category Category
	re       *regexp.Regexp
	weight   float64
	cap      float64
	spill    map[Category]float64 // per-match contribution to other categories
}

var lexiconRules = []lexiconRule{
	{
		category: CategoryProfanity,
		re:       regexp.MustCompile(`(?i)\b(fuck\w*|shit\w*|damn|bitch|bastard|crap|piss(?:ed)?|dick|cock|whore|slut|asshole)\b`),
		weight:   0.3,
		cap:      1.0,
		spill: map[Category]float64{
			CategoryToxicity: 0.2,
			CategoryObscene:  0.25,
		},
	},
	{
		category: CategoryThreat,
		re:       regexp.MustCompile(`(?i)\b(kill you|hurt you|destroy you|beat you up|make you pay|watch your back|i will find you|gonna kill)\b`),
		weight:   0.55,
		cap:      1.0,
		spill: map[Category]float64{
			CategoryToxicity:       0.3,
			CategorySevereToxicity: 0.3,
		},
	},
	{
		category: CategoryInsult,
		re:       regexp.MustCompile(`(?i)\b(idiot|stupid|moron|loser|dumb|pathetic|worthless|imbecile|clown)\b`),
		weight:   0.4,
		cap:      1.0,
		spill: map[Category]float64{
			CategoryToxicity: 0.25,
		},
	},
	{
		category: CategoryIdentityAttack,
		re:       regexp.MustCompile(`(?i)\b(go back to your country|your kind (?:doesn'?t|don'?t) belong|subhuman|vermin like you)\b`),
		weight:   0.6,
		cap:      1.0,
		spill: map[Category]float64{
			CategoryHateSpeech: 0.5,
			CategoryToxicity:   0.3,
		},
	},
	{
		category: CategorySexualExplicit,
		re:       regexp.MustCompile(`(?i)\b(explicit sex\w*|hardcore porn\w*|nude photo\w*)\b`),
		weight:   0.45,
		cap:      1.0,
	},
}

// LexiconClassifier is the fallback classifier used when no classification
// backend is available. It derives category scores from lexicon match
// density and reports the matched spans.
type LexiconClassifier struct{}

// NewLexiconClassifier builds the pattern-based fallback classifier.
func NewLexiconClassifier() *LexiconClassifier {
	return &LexiconClassifier{}
}

// Score implements Classifier.
func (c *LexiconClassifier) Score(text string) (Scores, error) {
	scores, _, err := c.ScoreSpans(text)
	return scores, err
}

// ScoreSpans implements SpanScorer.
func (c *LexiconClassifier) ScoreSpans(text string) (Scores, []Span, error) {
	if !utf8.ValidString(text) {
		return nil, nil, fmt.Errorf("%w: input is not valid UTF-8 text", ErrClassification)
	}

	scores := emptyScores()
	var spans []Span
	if text == "" {
		return scores, nil, nil
	}

	for _, rule := range lexiconRules {
		locs := rule.re.FindAllStringIndex(text, -1)
		if len(locs) == 0 {
			continue
		}
		n := float64(len(locs))
		scores[rule.category] = clamp(scores[rule.category]+n*rule.weight, rule.cap)
		for spillCat, w := range rule.spill {
			scores[spillCat] = clamp(scores[spillCat]+n*w, 0.9)
		}
		for _, loc := range locs {
			spans = append(spans, Span{Start: loc[0], End: loc[1], Category: rule.category})
		}
	}

	return scores, spans, nil
}

func clamp(v, max float64) float64 {
	if v > max {
		return max
	}
	return v
}
