package content

import (
	"fmt"
	"sort"
	"strings"
)

// Action selects what the filter does when violations are found.
type Action string

const (
	ActionAllow  Action = "allow"
	ActionFlag   Action = "flag"
	ActionRedact Action = "redact"
	ActionReject Action = "reject"
)

// ParseAction resolves a configured action name.
func ParseAction(name string) (Action, error) {
	switch a := Action(strings.ToLower(strings.TrimSpace(name))); a {
	case ActionAllow, ActionFlag, ActionRedact, ActionReject:
		return a, nil
	default:
		return "", fmt.Errorf("%w: unknown action %q", ErrFilterConfig, name)
	}
}

const (
	filteredToken    = "[FILTERED]"
	blocklistMarker  = "[BLOCKED - Custom Blocklist]"
	redactedTextStem = "[CONTENT FILTERED - "
)

// Violation records one category whose score met its threshold.
type Violation struct {
	Category  Category `json:"category"`
	Score     float64  `json:"score"`
	Threshold float64  `json:"threshold"`
}

// FilterConfig configures the content filter. Every configured category is
// guaranteed a threshold; missing entries fall back to the defaults table.
type FilterConfig struct {
	Categories []Category
	Thresholds map[Category]float64
	Action     Action
	Blocklist  []string
}

// Result is the outcome of filtering one text.
type Result struct {
	Passed     bool        `json:"passed"`
	Text       string      `json:"text"`
	Violations []Violation `json:"violations"`
	Scores     Scores      `json:"scores"`
	Action     Action      `json:"action_taken"`
}

// Filter applies the configured action based on classifier scores and
// per-category thresholds. Immutable after construction, safe for
// concurrent use.
type Filter struct {
	classifier Classifier
	categories []Category
	thresholds map[Category]float64
	action     Action
	blocklist  []string
}

// NewFilter validates the configuration and binds the filter to a
// classifier.
func NewFilter(classifier Classifier, cfg FilterConfig) (*Filter, error) {
	if classifier == nil {
		return nil, fmt.Errorf("%w: classifier is nil", ErrFilterConfig)
	}

	action := cfg.Action
	if action == "" {
		action = ActionFlag
	}
	action, err := ParseAction(string(action))
	if err != nil {
		return nil, err
	}

	categories := cfg.Categories
	if len(categories) == 0 {
		categories = DefaultCategories()
	}
	// Deterministic violation ordering.
	sorted := make([]Category, len(categories))
	copy(sorted, categories)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	defaults := DefaultThresholds()
	thresholds := make(map[Category]float64, len(sorted))
	for _, c := range sorted {
		if _, err := ParseCategory(string(c)); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrFilterConfig, err)
		}
		th, ok := cfg.Thresholds[c]
		if !ok {
			th, ok = defaults[c]
			if !ok {
				th = 0.7
			}
		}
		if th < 0 || th > 1 {
			return nil, fmt.Errorf("%w: threshold for %s out of [0,1]: %v", ErrFilterConfig, c, th)
		}
		thresholds[c] = th
	}

	blocklist := make([]string, 0, len(cfg.Blocklist))
	for _, term := range cfg.Blocklist {
		term = strings.ToLower(strings.TrimSpace(term))
		if term != "" {
			blocklist = append(blocklist, term)
		}
	}

	return &Filter{
		classifier: classifier,
		categories: sorted,
		thresholds: thresholds,
		action:     action,
		blocklist:  blocklist,
	}, nil
}

// Filter scores the text and applies the configured action.
func (f *Filter) Filter(text string) (Result, error) {
	if term, hit := f.blocklistHit(text); hit {
		violations := []Violation{{Category: CategoryBlocklist, Score: 1.0, Threshold: 1.0}}
		return f.applyAction(text, violations, nil, nil, term), nil
	}

	var (
		scores Scores
		spans  []Span
		err    error
	)
	if spanScorer, ok := f.classifier.(SpanScorer); ok {
		scores, spans, err = spanScorer.ScoreSpans(text)
	} else {
		scores, err = f.classifier.Score(text)
	}
	if err != nil {
		return Result{}, err
	}

	var violations []Violation
	for _, c := range f.categories {
		score, ok := scores[c]
		if !ok {
			continue
		}
		if th := f.thresholds[c]; score >= th {
			violations = append(violations, Violation{Category: c, Score: score, Threshold: th})
		}
	}

	return f.applyAction(text, violations, scores, spans, ""), nil
}

// FilterBatch filters each text independently, preserving order and length
// of the input slice.
func (f *Filter) FilterBatch(texts []string) ([]Result, error) {
	out := make([]Result, len(texts))
	for i, text := range texts {
		res, err := f.Filter(text)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		out[i] = res
	}
	return out, nil
}

func (f *Filter) blocklistHit(text string) (string, bool) {
	if len(f.blocklist) == 0 {
		return "", false
	}
	lower := strings.ToLower(text)
	for _, term := range f.blocklist {
		if strings.Contains(lower, term) {
			return term, true
		}
	}
	return "", false
}

func (f *Filter) applyAction(text string, violations []Violation, scores Scores, spans []Span, blockTerm string) Result {
	res := Result{
		Passed:     true,
		Text:       text,
		Violations: violations,
		Scores:     scores,
		Action:     ActionAllow,
	}
	if len(violations) == 0 {
		return res
	}
	res.Action = f.action

	switch f.action {
	case ActionAllow:
		// Violations stay recorded for observability; text passes unchanged.
	case ActionFlag:
		res.Passed = false
	case ActionRedact:
		// The returned text is compliant by construction.
		res.Text = f.redact(text, violations, spans, blockTerm)
	case ActionReject:
		res.Passed = false
		res.Text = ""
	}
	return res
}

// redact masks the violating spans when the classifier could provide them;
// otherwise the whole text is replaced with a redaction marker.
func (f *Filter) redact(text string, violations []Violation, spans []Span, blockTerm string) string {
	if blockTerm != "" {
		return blocklistMarker
	}

	violating := make(map[Category]struct{}, len(violations))
	for _, v := range violations {
		violating[v.Category] = struct{}{}
	}

	var target []Span
	for _, s := range spans {
		if _, ok := violating[s.Category]; ok {
			target = append(target, s)
		}
	}

	if len(target) == 0 {
		names := make([]string, len(violations))
		for i, v := range violations {
			names[i] = string(v.Category)
		}
		return redactedTextStem + strings.Join(names, ", ") + "]"
	}

	sort.Slice(target, func(i, j int) bool { return target[i].Start < target[j].Start })
	merged := target[:1]
	for _, s := range target[1:] {
		last := &merged[len(merged)-1]
		if s.Start <= last.End {
			if s.End > last.End {
				last.End = s.End
			}
			continue
		}
		merged = append(merged, s)
	}

	out := text
	for i := len(merged) - 1; i >= 0; i-- {
		s := merged[i]
		if s.Start < 0 || s.End > len(out) || s.End <= s.Start {
			continue
		}
		out = out[:s.Start] + filteredToken + out[s.End:]
	}
	return out
}
