package pii

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// Method selects how detected spans are transformed.
type Method string

const (
	MethodMask    Method = "mask"
	MethodRedact  Method = "redact"
	MethodReplace Method = "replace"
	MethodHash    Method = "hash"
	MethodEncrypt Method = "encrypt"
)

// ErrConfig marks invalid anonymizer configuration (unknown method, missing
// or malformed encryption key). Fatal, never retried.
var ErrConfig = errors.New("invalid anonymizer configuration")

// ParseMethod resolves a configured method name.
func ParseMethod(name string) (Method, error) {
	switch m := Method(strings.ToLower(strings.TrimSpace(name))); m {
	case MethodMask, MethodRedact, MethodReplace, MethodHash, MethodEncrypt:
		return m, nil
	default:
		return "", fmt.Errorf("%w: unknown method %q", ErrConfig, name)
	}
}

const redactToken = "[REDACTED]"

// maskKeepSeparators lists characters the mask method preserves so the
// transformed value keeps its structural shape (a@b.com -> *@*.***).
const maskKeepSeparators = "@.-_+() "

// AnonymizerConfig configures span transformation.
type AnonymizerConfig struct {
	Method   Method
	MaskChar rune
	// Key is required for MethodEncrypt; 16, 24, or 32 bytes (AES-GCM).
	Key []byte
}

// Anonymizer rewrites detected entity spans in text. Each instance is
// immutable after construction and safe for concurrent use.
type Anonymizer struct {
	detector Detector
	method   Method
	maskChar rune
	aead     cipher.AEAD
}

// NewAnonymizer validates the configuration and binds the anonymizer to a
// detector. A missing encryption key is a configuration error, not a
// silent no-op.
func NewAnonymizer(detector Detector, cfg AnonymizerConfig) (*Anonymizer, error) {
	if detector == nil {
		return nil, fmt.Errorf("%w: detector is nil", ErrConfig)
	}
	method, err := ParseMethod(string(cfg.Method))
	if err != nil {
		return nil, err
	}

	maskChar := cfg.MaskChar
	if maskChar == 0 {
		maskChar = '*'
	}

	a := &Anonymizer{detector: detector, method: method, maskChar: maskChar}

	if method == MethodEncrypt {
		if len(cfg.Key) == 0 {
			return nil, fmt.Errorf("%w: method %q requires an encryption key", ErrConfig, MethodEncrypt)
		}
		block, err := aes.NewCipher(cfg.Key)
		if err != nil {
			return nil, fmt.Errorf("%w: bad encryption key: %v", ErrConfig, err)
		}
		aead, err := cipher.NewGCM(block)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrConfig, err)
		}
		a.aead = aead
	}

	return a, nil
}

// Anonymize transforms every detected entity span in text. If detection
// finds nothing, the text is returned unchanged.
func (a *Anonymizer) Anonymize(text string) (string, error) {
	entities, err := a.detector.Detect(text)
	if err != nil {
		return "", err
	}
	if len(entities) == 0 {
		return text, nil
	}

	// Rewrite right to left so earlier offsets stay valid.
	out := text
	for i := len(entities) - 1; i >= 0; i-- {
		ent := entities[i]
		replacement, err := a.transform(ent)
		if err != nil {
			return "", err
		}
		out = out[:ent.Start] + replacement + out[ent.End:]
	}
	return out, nil
}

// AnonymizeBatch anonymizes each text independently, preserving order and
// length of the input slice.
func (a *Anonymizer) AnonymizeBatch(texts []string) ([]string, error) {
	out := make([]string, len(texts))
	for i, text := range texts {
		transformed, err := a.Anonymize(text)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		out[i] = transformed
	}
	return out, nil
}

func (a *Anonymizer) transform(ent Entity) (string, error) {
	switch a.method {
	case MethodMask:
		return a.mask(ent.Text), nil
	case MethodRedact:
		return redactToken, nil
	case MethodReplace:
		return "<" + string(ent.Kind) + ">", nil
	case MethodHash:
		return hashSpan(ent.Text), nil
	case MethodEncrypt:
		return a.encrypt(ent.Text)
	default:
		return "", fmt.Errorf("%w: unknown method %q", ErrConfig, a.method)
	}
}

func (a *Anonymizer) mask(span string) string {
	var b strings.Builder
	b.Grow(len(span))
	for _, r := range span {
		if strings.ContainsRune(maskKeepSeparators, r) {
			b.WriteRune(r)
		} else {
			b.WriteRune(a.maskChar)
		}
	}
	return b.String()
}

// hashSpan yields a deterministic one-way digest token for the span.
func hashSpan(span string) string {
	sum := sha256.Sum256([]byte(span))
	return "hash_" + hex.EncodeToString(sum[:])[:16]
}

func (a *Anonymizer) encrypt(span string) (string, error) {
	nonce := make([]byte, a.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	sealed := a.aead.Seal(nonce, nonce, []byte(span), nil)
	return "enc_" + base64.StdEncoding.EncodeToString(sealed), nil
}
