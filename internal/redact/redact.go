package redact

import (
	"fmt"
	"log"
	"regexp"
	"strings"
)

// The engine's own logs must never leak the material it exists to detect.
// Every log line produced by veilguard goes through String first.

var (
	emailRe      = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)
	phoneRe      = regexp.MustCompile(`\+?\d[\d\s\-().]{7,}\d`)
	ssnRe        = regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)
	keyMaterial  = regexp.MustCompile(`(?i)(key|token|secret|password)\s*[:=]\s*([A-Za-z0-9._\-+/=]{6,})`)
	longTokenRe  = regexp.MustCompile(`[A-Za-z0-9_\-]{24,}`)
	bearerRe     = regexp.MustCompile(`(?i)(bearer\s+)([A-Za-z0-9._\-+/=]+)`)
	encryptedRe  = regexp.MustCompile(`enc_[A-Za-z0-9+/=]+`)
	digestTailRe = regexp.MustCompile(`hash_[0-9a-f]{8,}`)
)

// String scrubs PII-shaped values and key material from free-form strings.
func String(s string) string {
	if s == "" {
		return s
	}

	out := s
	out = bearerRe.ReplaceAllString(out, "${1}[SCRUBBED]")
	out = keyMaterial.ReplaceAllString(out, "${1}=[SCRUBBED]")
	out = emailRe.ReplaceAllString(out, "[SCRUBBED_EMAIL]")
	out = ssnRe.ReplaceAllString(out, "[SCRUBBED_SSN]")
	out = phoneRe.ReplaceAllString(out, "[SCRUBBED_PHONE]")
	out = encryptedRe.ReplaceAllString(out, "enc_[SCRUBBED]")
	out = digestTailRe.ReplaceAllString(out, "hash_[SCRUBBED]")
	out = longTokenRe.ReplaceAllStringFunc(out, func(m string) string {
		if strings.Contains(m, "SCRUBBED") {
			return m
		}
		return "[SCRUBBED_TOKEN]"
	})
	for strings.Contains(out, "[SCRUBBED][SCRUBBED]") {
		out = strings.ReplaceAll(out, "[SCRUBBED][SCRUBBED]", "[SCRUBBED]")
	}
	return out
}

// Any formats the value with %+v and scrubs it.
func Any(v any) string {
	return String(fmt.Sprintf("%+v", v))
}

// Sprintf formats like fmt.Sprintf and scrubs the result.
func Sprintf(format string, args ...interface{}) string {
	return String(fmt.Sprintf(format, args...))
}

// Logf prints a scrubbed log line.
func Logf(format string, args ...interface{}) {
	log.Print(Sprintf(format, args...))
}

// Fatalf prints a scrubbed fatal log line.
func Fatalf(format string, args ...interface{}) {
	log.Fatal(Sprintf(format, args...))
}
