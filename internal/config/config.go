package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds veilguard configuration.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Privacy       PrivacyConfig       `yaml:"privacy"`
	Anonymization AnonymizationConfig `yaml:"anonymization"`
	Filter        FilterConfig        `yaml:"filter"`
	Audit         AuditConfig         `yaml:"audit"`
	Guard         GuardConfig         `yaml:"guard"`
	Telemetry     TelemetryConfig     `yaml:"telemetry"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"` // HTTP listen address, e.g. ":8080"
}

type PrivacyConfig struct {
	Level string `yaml:"level"` // none | low | medium | high | strict
}

type AnonymizationConfig struct {
	Method         string   `yaml:"method"` // mask | redact | replace | hash | encrypt
	Entities       []string `yaml:"entities"`
	ScoreThreshold float64  `yaml:"score_threshold"`
	MaskChar       string   `yaml:"mask_char"`
	// EncryptionKeyEnv names the environment variable holding the AES key
	// (base64 or raw 16/24/32 bytes). Required when method is "encrypt".
	EncryptionKeyEnv string `yaml:"encryption_key_env"`
}

type FilterConfig struct {
	Action     string             `yaml:"action"` // allow | flag | redact | reject
	Categories []string           `yaml:"categories"`
	Thresholds map[string]float64 `yaml:"thresholds"`
	Blocklist  []string           `yaml:"blocklist"`
}

type AuditConfig struct {
	// Disabled turns off audit writes for levels that do not mandate them.
	Disabled bool `yaml:"disabled"`
	// File is the JSONL ledger path; empty keeps the ledger in memory only.
	File string `yaml:"file"`
	// MirrorURL optionally forwards each entry to a webhook, best effort.
	MirrorURL       string `yaml:"mirror_url"`
	MirrorTimeoutMS int    `yaml:"mirror_timeout_ms"`
	MirrorQueueSize int    `yaml:"mirror_queue_size"`
}

type GuardConfig struct {
	// BundleDir holds the ONNX recognition/classification bundle. Empty
	// means pattern-based fallback only.
	BundleDir string `yaml:"bundle_dir"`
	SeqLen    int    `yaml:"seq_len"`
	// RequireML turns a missing or broken bundle into a startup error
	// instead of a silent fallback to pattern matching.
	RequireML bool `yaml:"require_ml"`
}

type TelemetryConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
	Protocol string `yaml:"protocol"` // grpc | http
	Service  string `yaml:"service"`
	Version  string `yaml:"version"`
}

// Load reads configuration from a YAML file.
// If the file doesn't exist, it returns a default config and no error.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return defaultConfig(), nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	applyDefaults(&cfg)

	return &cfg, nil
}

func defaultConfig() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.Privacy.Level == "" {
		cfg.Privacy.Level = "medium"
	}
	if cfg.Anonymization.Method == "" {
		cfg.Anonymization.Method = "mask"
	}
	if cfg.Anonymization.ScoreThreshold == 0 {
		cfg.Anonymization.ScoreThreshold = 0.6
	}
	if cfg.Anonymization.MaskChar == "" {
		cfg.Anonymization.MaskChar = "*"
	}
	if cfg.Filter.Action == "" {
		cfg.Filter.Action = "flag"
	}
	if cfg.Audit.MirrorTimeoutMS <= 0 {
		cfg.Audit.MirrorTimeoutMS = 2000
	}
	if cfg.Audit.MirrorQueueSize <= 0 {
		cfg.Audit.MirrorQueueSize = 1000
	}
	if cfg.Guard.SeqLen <= 0 {
		cfg.Guard.SeqLen = 256
	}
	if cfg.Telemetry.Protocol == "" {
		cfg.Telemetry.Protocol = "grpc"
	}
	if cfg.Telemetry.Service == "" {
		cfg.Telemetry.Service = "veilguard"
	}
}
