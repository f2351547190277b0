package redact

import (
	"strings"
	"testing"
)

func TestStringScrubbing(t *testing.T) {
	cases := []struct {
		name     string
		input    string
		disallow []string
		require  []string
	}{
		{
			name:     "email address",
			input:    "detected entity at john.doe@example.com during validation",
			disallow: []string{"john.doe@example.com"},
			require:  []string{"[SCRUBBED_EMAIL]"},
		},
		{
			name:     "phone number",
			input:    "span text was 555-123-4567 (phone)",
			disallow: []string{"555-123-4567"},
			require:  []string{"[SCRUBBED_PHONE]"},
		},
		{
			name:     "ssn",
			input:    "matched 123-45-6789",
			disallow: []string{"123-45-6789"},
			require:  []string{"[SCRUBBED_SSN]"},
		},
		{
			name:     "encryption key material",
			input:    "anonymizer key=c2VjcmV0LWtleS0xMjM0 loaded",
			disallow: []string{"c2VjcmV0LWtleS0xMjM0"},
			require:  []string{"key=[SCRUBBED]"},
		},
		{
			name:     "bearer token",
			input:    "mirror sink auth Bearer sk-abcdef123456",
			disallow: []string{"sk-abcdef123456"},
			require:  []string{"[SCRUBBED]"},
		},
		{
			name:     "long opaque token",
			input:    "ciphertext AAAABBBBCCCCDDDDEEEEFFFF0000 written",
			disallow: []string{"AAAABBBBCCCCDDDDEEEEFFFF0000"},
			require:  []string{"[SCRUBBED_TOKEN]"},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out := String(tc.input)
			for _, bad := range tc.disallow {
				if strings.Contains(out, bad) {
					t.Fatalf("output still contains %q: %s", bad, out)
				}
			}
			for _, want := range tc.require {
				if !strings.Contains(out, want) {
					t.Fatalf("output missing %q: %s", want, out)
				}
			}
		})
	}
}

func TestStringEmptyPassthrough(t *testing.T) {
	if got := String(""); got != "" {
		t.Fatalf("expected empty string unchanged, got %q", got)
	}
}
