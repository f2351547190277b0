package telemetry

import (
	"testing"
)

func TestSafeAttributesFiltersSensitiveKeys(t *testing.T) {
	kvs := map[string]interface{}{
		"text":          "should drop",
		"content":       "drop",
		"api_key":       "sk-123",
		"token":         "abc",
		"user_email":    "a@b.com",
		"safe_key":      "ok",
		"long_string":   string(make([]byte, 600)),
		"pii_count":     3,
		"passed":        true,
		"authorization": "secret",
	}

	attrs := SafeAttributes(kvs)
	for _, a := range attrs {
		switch string(a.Key) {
		case "text", "content", "api_key", "authorization", "token", "user_email":
			t.Fatalf("unexpected unsafe attribute %s", a.Key)
		case "long_string":
			t.Fatal("expected long string to be skipped")
		}
	}

	var sawCount, sawPassed bool
	for _, a := range attrs {
		if a.Key == "pii_count" {
			sawCount = true
		}
		if a.Key == "passed" {
			sawPassed = true
		}
	}
	if !sawCount || !sawPassed {
		t.Fatalf("safe attributes missing: %+v", attrs)
	}
}
