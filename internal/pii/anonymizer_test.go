package pii

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/base64"
	"errors"
	"strings"
	"testing"
)

func newTestAnonymizer(t *testing.T, cfg AnonymizerConfig) *Anonymizer {
	t.Helper()
	a, err := NewAnonymizer(NewPatternDetector(Options{}), cfg)
	if err != nil {
		t.Fatalf("new anonymizer: %v", err)
	}
	return a
}

func TestAnonymizeMaskPreservesSeparatorsAndLength(t *testing.T) {
	a, err := NewAnonymizer(
		NewPatternDetector(Options{Kinds: []Kind{KindEmail}}),
		AnonymizerConfig{Method: MethodMask},
	)
	if err != nil {
		t.Fatalf("new anonymizer: %v", err)
	}

	out, err := a.Anonymize("Email: a@b.com")
	if err != nil {
		t.Fatalf("anonymize: %v", err)
	}
	if out != "Email: *@*.***" {
		t.Fatalf("unexpected mask output %q", out)
	}
	if len(out) != len("Email: a@b.com") {
		t.Fatalf("mask changed total length: %q", out)
	}
}

func TestAnonymizeMethodsRewriteSpan(t *testing.T) {
	text := "ping john@example.com now"

	cases := []struct {
		name   string
		method Method
		check  func(t *testing.T, out string)
	}{
		{"redact", MethodRedact, func(t *testing.T, out string) {
			if out != "ping [REDACTED] now" {
				t.Fatalf("unexpected redact output %q", out)
			}
		}},
		{"replace", MethodReplace, func(t *testing.T, out string) {
			if out != "ping <EMAIL_ADDRESS> now" {
				t.Fatalf("unexpected replace output %q", out)
			}
		}},
		{"hash", MethodHash, func(t *testing.T, out string) {
			if !strings.Contains(out, "hash_") {
				t.Fatalf("expected digest token in %q", out)
			}
			if strings.Contains(out, "john@example.com") {
				t.Fatalf("original span leaked: %q", out)
			}
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			a := newTestAnonymizer(t, AnonymizerConfig{Method: tc.method})
			out, err := a.Anonymize(text)
			if err != nil {
				t.Fatalf("anonymize: %v", err)
			}
			tc.check(t, out)
		})
	}
}

func TestAnonymizeNoEntitiesIsIdentity(t *testing.T) {
	text := "a perfectly ordinary sentence with no sensitive content"
	key := []byte("0123456789abcdef0123456789abcdef")

	for _, method := range []Method{MethodMask, MethodRedact, MethodReplace, MethodHash, MethodEncrypt} {
		t.Run(string(method), func(t *testing.T) {
			a := newTestAnonymizer(t, AnonymizerConfig{Method: method, Key: key})
			out, err := a.Anonymize(text)
			if err != nil {
				t.Fatalf("anonymize: %v", err)
			}
			if out != text {
				t.Fatalf("expected identity on entity-free text, got %q", out)
			}
		})
	}
}

func TestAnonymizeIdempotentMethods(t *testing.T) {
	text := "Contact John Smith at john@example.com or call 555-123-4567"

	for _, method := range []Method{MethodMask, MethodRedact, MethodReplace} {
		t.Run(string(method), func(t *testing.T) {
			a := newTestAnonymizer(t, AnonymizerConfig{Method: method})
			once, err := a.Anonymize(text)
			if err != nil {
				t.Fatalf("first pass: %v", err)
			}
			twice, err := a.Anonymize(once)
			if err != nil {
				t.Fatalf("second pass: %v", err)
			}
			if once != twice {
				t.Fatalf("method %s not idempotent: %q vs %q", method, once, twice)
			}
		})
	}
}

func TestAnonymizeHashDeterministic(t *testing.T) {
	a := newTestAnonymizer(t, AnonymizerConfig{Method: MethodHash})
	text := "reach jane.roe@corp.example.org"

	first, err := a.Anonymize(text)
	if err != nil {
		t.Fatalf("anonymize: %v", err)
	}
	second, err := a.Anonymize(text)
	if err != nil {
		t.Fatalf("anonymize: %v", err)
	}
	if first != second {
		t.Fatalf("hash method must be stable across calls: %q vs %q", first, second)
	}
}

func TestAnonymizeBatchPreservesOrderAndLength(t *testing.T) {
	a := newTestAnonymizer(t, AnonymizerConfig{Method: MethodRedact})
	texts := []string{
		"first: a@b.com",
		"second has nothing",
		"third: 555-123-4567",
	}

	out, err := a.AnonymizeBatch(texts)
	if err != nil {
		t.Fatalf("batch: %v", err)
	}
	if len(out) != len(texts) {
		t.Fatalf("expected %d outputs, got %d", len(texts), len(out))
	}
	if out[1] != texts[1] {
		t.Fatalf("entity-free item changed: %q", out[1])
	}
	if !strings.HasPrefix(out[0], "first: ") || !strings.Contains(out[0], "[REDACTED]") {
		t.Fatalf("first item not anonymized in place: %q", out[0])
	}
	if !strings.Contains(out[2], "[REDACTED]") {
		t.Fatalf("third item not anonymized: %q", out[2])
	}
}

func TestEncryptRequiresKey(t *testing.T) {
	_, err := NewAnonymizer(NewPatternDetector(Options{}), AnonymizerConfig{Method: MethodEncrypt})
	if !errors.Is(err, ErrConfig) {
		t.Fatalf("expected ErrConfig for missing key, got %v", err)
	}
}

func TestEncryptRoundTrip(t *testing.T) {
	key := []byte("0123456789abcdef0123456789abcdef")
	a, err := NewAnonymizer(
		NewPatternDetector(Options{Kinds: []Kind{KindEmail}}),
		AnonymizerConfig{Method: MethodEncrypt, Key: key},
	)
	if err != nil {
		t.Fatalf("new anonymizer: %v", err)
	}

	out, err := a.Anonymize("send to a@b.com")
	if err != nil {
		t.Fatalf("anonymize: %v", err)
	}
	idx := strings.Index(out, "enc_")
	if idx < 0 {
		t.Fatalf("expected ciphertext token in %q", out)
	}

	// The ciphertext must decrypt back to the original span under the key.
	token := out[idx+len("enc_"):]
	if end := strings.IndexByte(token, ' '); end >= 0 {
		token = token[:end]
	}
	sealed, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		t.Fatalf("decode ciphertext: %v", err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		t.Fatalf("cipher: %v", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		t.Fatalf("gcm: %v", err)
	}
	nonce, body := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, body, nil)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if string(plain) != "a@b.com" {
		t.Fatalf("round trip mismatch: %q", plain)
	}
}

func TestUnknownMethodIsConfigurationError(t *testing.T) {
	_, err := NewAnonymizer(NewPatternDetector(Options{}), AnonymizerConfig{Method: "scramble"})
	if !errors.Is(err, ErrConfig) {
		t.Fatalf("expected ErrConfig, got %v", err)
	}
}
