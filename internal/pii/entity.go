package pii

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Kind identifies a category of sensitive information.
type Kind string

const (
	KindEmail         Kind = "EMAIL_ADDRESS"
	KindPhone         Kind = "PHONE_NUMBER"
	KindCreditCard    Kind = "CREDIT_CARD"
	KindSSN           Kind = "US_SSN"
	KindPerson        Kind = "PERSON"
	KindLocation      Kind = "LOCATION"
	KindDateTime      Kind = "DATE_TIME"
	KindIPAddress     Kind = "IP_ADDRESS"
	KindIBAN          Kind = "IBAN_CODE"
	KindCrypto        Kind = "CRYPTO"
	KindPassport      Kind = "US_PASSPORT"
	KindDriverLicense Kind = "US_DRIVER_LICENSE"
)

// ErrDetection marks fatal detector failures (malformed input, backend faults).
var ErrDetection = errors.New("pii detection failed")

// Kinds returns every recognized entity kind.
func Kinds() []Kind {
	return []Kind{
		KindEmail, KindPhone, KindCreditCard, KindSSN, KindPerson,
		KindLocation, KindDateTime, KindIPAddress, KindIBAN, KindCrypto,
		KindPassport, KindDriverLicense,
	}
}

// ParseKind resolves a configured entity name to a Kind.
func ParseKind(name string) (Kind, error) {
	normalized := Kind(strings.ToUpper(strings.TrimSpace(name)))
	for _, k := range Kinds() {
		if k == normalized {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown entity kind %q", name)
}

// DefaultKinds is the allowlist used when none is configured.
func DefaultKinds() []Kind {
	return []Kind{
		KindEmail, KindPhone, KindCreditCard, KindSSN, KindPerson,
		KindLocation, KindDateTime, KindIPAddress, KindIBAN, KindCrypto,
	}
}

// Entity is one detected sensitive span, using byte offsets into the
// original text ([Start,End) half-open).
type Entity struct {
	Kind       Kind    `json:"entity_type"`
	Start      int     `json:"start"`
	End        int     `json:"end"`
	Text       string  `json:"text"`
	Confidence float64 `json:"score"`
}

// ResolveOverlaps produces the canonical detection result: entities sorted
// by start offset, with no two spans overlapping. When spans overlap the
// longer one wins; equal lengths fall back to the higher confidence.
func ResolveOverlaps(entities []Entity) []Entity {
	if len(entities) <= 1 {
		out := make([]Entity, len(entities))
		copy(out, entities)
		return out
	}

	candidates := make([]Entity, len(entities))
	copy(candidates, entities)
	sort.SliceStable(candidates, func(i, j int) bool {
		li, lj := candidates[i].End-candidates[i].Start, candidates[j].End-candidates[j].Start
		if li != lj {
			return li > lj
		}
		if candidates[i].Confidence != candidates[j].Confidence {
			return candidates[i].Confidence > candidates[j].Confidence
		}
		return candidates[i].Start < candidates[j].Start
	})

	kept := make([]Entity, 0, len(candidates))
	for _, cand := range candidates {
		overlaps := false
		for _, k := range kept {
			if cand.Start < k.End && k.Start < cand.End {
				overlaps = true
				break
			}
		}
		if !overlaps {
			kept = append(kept, cand)
		}
	}

	sort.Slice(kept, func(i, j int) bool { return kept[i].Start < kept[j].Start })
	return kept
}

func kindAllowed(kind Kind, allowlist map[Kind]struct{}) bool {
	if len(allowlist) == 0 {
		return true
	}
	_, ok := allowlist[kind]
	return ok
}

func kindSet(kinds []Kind) map[Kind]struct{} {
	if len(kinds) == 0 {
		return nil
	}
	set := make(map[Kind]struct{}, len(kinds))
	for _, k := range kinds {
		set[k] = struct{}{}
	}
	return set
}
