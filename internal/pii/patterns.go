package pii

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// kindPattern is one structural rule of the fallback table. Confidence is
// fixed per rule since patterns carry no model probability.
type kindPattern struct {
	kind       Kind
	re         *regexp.Regexp
	confidence float64
}

var patternTable = []kindPattern{
	{KindEmail, regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`), 0.95},
	{KindSSN, regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`), 0.9},
	{KindPhone, regexp.MustCompile(`(?:\+?\d{1,2}[\s.\-]?)?(?:\(\d{3}\)|\b\d{3})[\s.\-]?\d{3}[\s.\-]?\d{4}\b`), 0.85},
	{KindCreditCard, regexp.MustCompile(`\b\d{4}[ \-]?\d{4}[ \-]?\d{4}[ \-]?\d{4}\b`), 0.85},
	{KindIPAddress, regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`), 0.9},
	{KindIBAN, regexp.MustCompile(`\b[A-Z]{2}\d{2}[A-Z0-9]{11,30}\b`), 0.85},
	{KindDateTime, regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}(?:[T ]\d{2}:\d{2}(?::\d{2})?)?\b`), 0.8},
	{KindCrypto, regexp.MustCompile(`\b[13][a-km-zA-HJ-NP-Z1-9]{25,34}\b`), 0.7},
}

// personRe over-matches ("Contact John Smith"); leading non-name words are
// trimmed afterwards via nameStopwords.
var personRe = regexp.MustCompile(`\b(?:Mr\.|Mrs\.|Ms\.|Dr\.|Prof\.)?\s*[A-Z][a-z]+(?:\s+[A-Z][a-z]+)+\b`)

const personConfidence = 0.6

var nameStopwords = map[string]struct{}{
	"contact": {}, "email": {}, "call": {}, "phone": {}, "dear": {},
	"hello": {}, "hi": {}, "please": {}, "the": {}, "this": {},
	"that": {}, "my": {}, "our": {}, "your": {}, "from": {}, "to": {},
	"regards": {}, "thanks": {}, "sincerely": {}, "meet": {}, "ask": {},
}

// PatternDetector is the fallback detector used when no recognition backend
// is available. It applies a fixed table of structural patterns per kind.
type PatternDetector struct {
	opts  Options
	allow map[Kind]struct{}
}

// NewPatternDetector builds a detector over the fixed pattern table.
func NewPatternDetector(opts Options) *PatternDetector {
	opts = opts.withDefaults()
	return &PatternDetector{opts: opts, allow: kindSet(opts.Kinds)}
}

// Detect returns the ordered, non-overlapping entities found in text.
func (d *PatternDetector) Detect(text string) ([]Entity, error) {
	if !utf8.ValidString(text) {
		return nil, fmt.Errorf("%w: input is not valid UTF-8 text", ErrDetection)
	}
	if text == "" {
		return nil, nil
	}

	var found []Entity
	for _, p := range patternTable {
		if !kindAllowed(p.kind, d.allow) || p.confidence < d.opts.ScoreThreshold {
			continue
		}
		for _, loc := range p.re.FindAllStringIndex(text, -1) {
			found = append(found, Entity{
				Kind:       p.kind,
				Start:      loc[0],
				End:        loc[1],
				Text:       text[loc[0]:loc[1]],
				Confidence: p.confidence,
			})
		}
	}

	if kindAllowed(KindPerson, d.allow) && personConfidence >= d.opts.ScoreThreshold {
		found = append(found, detectPersons(text)...)
	}

	return ResolveOverlaps(found), nil
}

// detectPersons matches runs of capitalized words and trims leading words
// that are common sentence openers rather than given names.
func detectPersons(text string) []Entity {
	var out []Entity
	for _, loc := range personRe.FindAllStringIndex(text, -1) {
		start, end := loc[0], loc[1]
		match := text[start:end]

		for {
			word, rest, ok := strings.Cut(match, " ")
			if !ok {
				break
			}
			if _, stop := nameStopwords[strings.ToLower(strings.TrimSuffix(word, "."))]; !stop {
				break
			}
			start += len(word) + 1
			match = rest
		}

		if strings.Count(match, " ") < 1 {
			continue
		}
		out = append(out, Entity{
			Kind:       KindPerson,
			Start:      start,
			End:        end,
			Text:       match,
			Confidence: personConfidence,
		})
	}
	return out
}
