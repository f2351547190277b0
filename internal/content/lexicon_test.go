package content

import (
	"errors"
	"testing"
)

func TestLexiconScoresCleanText(t *testing.T) {
	c := NewLexiconClassifier()
	scores, err := c.Score("a calm and pleasant remark about the weather")
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	for _, cat := range Categories() {
		if scores[cat] != 0 {
			t.Fatalf("expected zero score for %s, got %v", cat, scores[cat])
		}
	}
}

func TestLexiconDensityRaisesScore(t *testing.T) {
	c := NewLexiconClassifier()

	one, err := c.Score("you idiot")
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	many, err := c.Score("you idiot, you moron, you pathetic loser")
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	if many[CategoryInsult] <= one[CategoryInsult] {
		t.Fatalf("match density should raise the score: %v vs %v", many[CategoryInsult], one[CategoryInsult])
	}
	if many[CategoryInsult] > 1 {
		t.Fatalf("score must stay in [0,1], got %v", many[CategoryInsult])
	}
}

func TestLexiconSpillRaisesToxicity(t *testing.T) {
	c := NewLexiconClassifier()
	scores, err := c.Score("I will hurt you and make you pay")
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	if scores[CategoryThreat] < 0.5 {
		t.Fatalf("expected threat signal, got %v", scores[CategoryThreat])
	}
	if scores[CategoryToxicity] == 0 {
		t.Fatalf("threat matches should spill into toxicity")
	}
}

func TestLexiconReportsSpans(t *testing.T) {
	c := NewLexiconClassifier()
	text := "what a stupid idea"
	_, spans, err := c.ScoreSpans(text)
	if err != nil {
		t.Fatalf("score spans: %v", err)
	}
	if len(spans) != 1 {
		t.Fatalf("expected one span, got %+v", spans)
	}
	if text[spans[0].Start:spans[0].End] != "stupid" {
		t.Fatalf("span offsets wrong: %+v", spans[0])
	}
	if spans[0].Category != CategoryInsult {
		t.Fatalf("span category wrong: %+v", spans[0])
	}
}

func TestLexiconRejectsNonText(t *testing.T) {
	c := NewLexiconClassifier()
	if _, err := c.Score(string([]byte{0xc3, 0x28})); !errors.Is(err, ErrClassification) {
		t.Fatalf("expected ErrClassification, got %v", err)
	}
}

func TestGuardClassifierNormalizesLabels(t *testing.T) {
	backend := &stubLabelScorer{labels: map[string]float64{
		"TOXICITY":    0.82,
		"exotic_axis": 0.99, // outside the category set, ignored
		"threat":      -0.5, // clamped
	}}
	c := NewGuardClassifier(backend)

	scores, err := c.Score("anything")
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	if scores[CategoryToxicity] != 0.82 {
		t.Fatalf("expected normalized toxicity score, got %v", scores[CategoryToxicity])
	}
	if scores[CategoryThreat] != 0 {
		t.Fatalf("expected clamped threat score, got %v", scores[CategoryThreat])
	}
	if _, ok := scores[CategoryInsult]; !ok {
		t.Fatalf("every category must be present in the score map")
	}
}

func TestGuardClassifierBackendFailureIsFatal(t *testing.T) {
	c := NewGuardClassifier(&stubLabelScorer{err: errors.New("session crashed")})
	if _, err := c.Score("text"); !errors.Is(err, ErrClassification) {
		t.Fatalf("expected ErrClassification, got %v", err)
	}
}

type stubLabelScorer struct {
	labels map[string]float64
	err    error
}

func (s *stubLabelScorer) ClassifyText(text string) (map[string]float64, error) {
	return s.labels, s.err
}
