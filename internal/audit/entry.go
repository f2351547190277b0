package audit

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrWrite marks a failed ledger write. Callers treat it as a warning on
// an otherwise completed operation, never as an operation failure.
var ErrWrite = errors.New("audit write failed")

// Operation identifies which engine entry point produced a ledger entry.
type Operation string

const (
	OpDetect    Operation = "detect"
	OpAnonymize Operation = "anonymize"
	OpFilter    Operation = "filter"
	OpValidate  Operation = "validate"
)

// ParseOperation maps a case-insensitive name to an Operation.
func ParseOperation(s string) (Operation, error) {
	switch Operation(strings.ToLower(strings.TrimSpace(s))) {
	case OpDetect:
		return OpDetect, nil
	case OpAnonymize:
		return OpAnonymize, nil
	case OpFilter:
		return OpFilter, nil
	case OpValidate:
		return OpValidate, nil
	}
	return "", fmt.Errorf("unknown audit operation %q", s)
}

// Entry is one immutable ledger record. Passed and ContextID serialize as
// JSON null when absent; ViolationCategories always serializes as an
// array, empty included.
type Entry struct {
	Timestamp           time.Time `json:"timestamp"`
	Operation           Operation `json:"operation"`
	PIICount            int       `json:"piiCount"`
	ViolationCategories []string  `json:"violationCategories"`
	Passed              *bool     `json:"passed"`
	ContextID           *string   `json:"contextId"`
}

func (e *Entry) normalize() {
	if e.ViolationCategories == nil {
		e.ViolationCategories = []string{}
	}
}
