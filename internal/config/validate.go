package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/veilguard-ai/veilguard/internal/content"
	"github.com/veilguard-ai/veilguard/internal/pii"
)

// ErrConfiguration marks invalid configuration. Fatal: the operation never
// runs, nothing is retried.
var ErrConfiguration = errors.New("invalid configuration")

var validLevels = []string{"none", "low", "medium", "high", "strict"}

// Validate checks the loaded config for required fields and safe values.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("%w: config is nil", ErrConfiguration)
	}

	if strings.TrimSpace(cfg.Server.Addr) == "" {
		return fmt.Errorf("%w: server.addr must be set", ErrConfiguration)
	}

	if err := validateLevel(cfg.Privacy.Level); err != nil {
		return err
	}
	if err := validateAnonymization(cfg.Anonymization); err != nil {
		return err
	}
	if err := validateFilter(cfg.Filter); err != nil {
		return err
	}
	if err := validateTelemetry(cfg.Telemetry); err != nil {
		return err
	}

	return nil
}

func validateLevel(level string) error {
	normalized := strings.ToLower(strings.TrimSpace(level))
	for _, v := range validLevels {
		if normalized == v {
			return nil
		}
	}
	return fmt.Errorf("%w: unknown privacy.level %q", ErrConfiguration, level)
}

func validateAnonymization(ac AnonymizationConfig) error {
	method, err := pii.ParseMethod(ac.Method)
	if err != nil {
		return fmt.Errorf("%w: anonymization.method: %v", ErrConfiguration, err)
	}

	for _, name := range ac.Entities {
		if _, err := pii.ParseKind(name); err != nil {
			return fmt.Errorf("%w: anonymization.entities: %v", ErrConfiguration, err)
		}
	}

	if ac.ScoreThreshold < 0 || ac.ScoreThreshold > 1 {
		return fmt.Errorf("%w: anonymization.score_threshold out of [0,1]: %v", ErrConfiguration, ac.ScoreThreshold)
	}

	if len([]rune(ac.MaskChar)) > 1 {
		return fmt.Errorf("%w: anonymization.mask_char must be a single character", ErrConfiguration)
	}

	if method == pii.MethodEncrypt {
		if strings.TrimSpace(ac.EncryptionKeyEnv) == "" {
			return fmt.Errorf("%w: anonymization.encryption_key_env must be set for method %q", ErrConfiguration, method)
		}
		if _, err := ResolveEncryptionKey(ac); err != nil {
			return err
		}
	}

	return nil
}

// ResolveEncryptionKey reads the AES key from the configured environment
// variable. Absence is a configuration error, not a silent no-op.
func ResolveEncryptionKey(ac AnonymizationConfig) ([]byte, error) {
	raw := strings.TrimSpace(os.Getenv(ac.EncryptionKeyEnv))
	if raw == "" {
		return nil, fmt.Errorf("%w: environment variable %s holds no encryption key", ErrConfiguration, ac.EncryptionKeyEnv)
	}
	if decoded, err := base64.StdEncoding.DecodeString(raw); err == nil {
		switch len(decoded) {
		case 16, 24, 32:
			return decoded, nil
		}
	}
	switch len(raw) {
	case 16, 24, 32:
		return []byte(raw), nil
	}
	return nil, fmt.Errorf("%w: %s must decode to 16, 24, or 32 key bytes", ErrConfiguration, ac.EncryptionKeyEnv)
}

func validateFilter(fc FilterConfig) error {
	if _, err := content.ParseAction(fc.Action); err != nil {
		return fmt.Errorf("%w: filter.action: %v", ErrConfiguration, err)
	}
	for _, name := range fc.Categories {
		if _, err := content.ParseCategory(name); err != nil {
			return fmt.Errorf("%w: filter.categories: %v", ErrConfiguration, err)
		}
	}
	for name, th := range fc.Thresholds {
		if _, err := content.ParseCategory(name); err != nil {
			return fmt.Errorf("%w: filter.thresholds: %v", ErrConfiguration, err)
		}
		if th < 0 || th > 1 {
			return fmt.Errorf("%w: filter.thresholds[%s] out of [0,1]: %v", ErrConfiguration, name, th)
		}
	}
	return nil
}

func validateTelemetry(tc TelemetryConfig) error {
	if !tc.Enabled {
		return nil
	}
	switch strings.ToLower(strings.TrimSpace(tc.Protocol)) {
	case "grpc", "http":
	default:
		return fmt.Errorf("%w: telemetry.protocol must be grpc or http, got %q", ErrConfiguration, tc.Protocol)
	}
	if strings.TrimSpace(tc.Endpoint) == "" {
		return fmt.Errorf("%w: telemetry.endpoint must be set when telemetry is enabled", ErrConfiguration)
	}
	return nil
}
