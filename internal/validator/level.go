package validator

import (
	"fmt"
	"strings"
)

// Level orders the privacy postures from weakest to strongest. A higher
// level never passes input that a lower level would reject.
type Level int

const (
	LevelNone Level = iota
	LevelLow
	LevelMedium
	LevelHigh
	LevelStrict
)

var levelNames = map[Level]string{
	LevelNone:   "none",
	LevelLow:    "low",
	LevelMedium: "medium",
	LevelHigh:   "high",
	LevelStrict: "strict",
}

func (l Level) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return fmt.Sprintf("level(%d)", int(l))
}

// ParseLevel maps a case-insensitive name to a Level.
func ParseLevel(s string) (Level, error) {
	normalized := strings.ToLower(strings.TrimSpace(s))
	for l, name := range levelNames {
		if name == normalized {
			return l, nil
		}
	}
	return LevelNone, fmt.Errorf("unknown privacy level %q", s)
}

// policy is the declarative behavior of one level. Stronger levels only
// ever add checks, which is what keeps the ordering monotonic.
type policy struct {
	detect           bool
	filter           bool
	failOnViolations bool
	failOnPII        bool
	forceAudit       bool
}

var policies = map[Level]policy{
	LevelNone:   {},
	LevelLow:    {detect: true},
	LevelMedium: {detect: true, filter: true, failOnViolations: true},
	LevelHigh:   {detect: true, filter: true, failOnViolations: true, failOnPII: true, forceAudit: true},
	LevelStrict: {detect: true, filter: true, failOnViolations: true, failOnPII: true, forceAudit: true},
}

func policyFor(l Level) policy {
	return policies[l]
}
