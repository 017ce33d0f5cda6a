package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known transcription backend names. Used by
// [Validate] to warn about likely typos without rejecting third-party
// backends outright.
var ValidProviderNames = []string{"whispercpp", "openai", "mock"}

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if tls := cfg.Server.TLS; tls != nil {
		if tls.CertFile == "" {
			errs = append(errs, errors.New("server.tls.cert_file is required when tls is set"))
		}
		if tls.KeyFile == "" {
			errs = append(errs, errors.New("server.tls.key_file is required when tls is set"))
		}
	}

	validateProviderName("asr.primary", cfg.ASR.Primary.Name)
	for i, entry := range cfg.ASR.Fallbacks {
		prefix := fmt.Sprintf("asr.fallbacks[%d]", i)
		if entry.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
		}
		validateProviderName(prefix, entry.Name)
	}
	if cfg.ASR.Primary.Name == "" && len(cfg.ASR.Fallbacks) > 0 {
		errs = append(errs, errors.New("asr.fallbacks configured without asr.primary"))
	}
	if cfg.ASR.Primary.Name == "" {
		slog.Warn("no transcription backend configured; only typed commands will work")
	}
	if cfg.ASR.TranscribeTimeout < 0 {
		errs = append(errs, fmt.Errorf("asr.transcribe_timeout %v must not be negative", cfg.ASR.TranscribeTimeout))
	}

	if cfg.Store.PostgresDSN == "" {
		slog.Warn("store.postgres_dsn is empty; records are kept in memory and lost on restart")
	}

	if t := cfg.Roster.MatchThreshold; t < 0 || t > 100 {
		errs = append(errs, fmt.Errorf("roster.match_threshold %.1f is out of range [0, 100]", t))
	}
	if m := cfg.Roster.AmbiguityMargin; m < 0 || m > 100 {
		errs = append(errs, fmt.Errorf("roster.ambiguity_margin %.1f is out of range [0, 100]", m))
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// [ValidProviderNames].
func validateProviderName(field, name string) {
	if name == "" || slices.Contains(ValidProviderNames, name) {
		return
	}
	slog.Warn("unknown transcription backend — may be a typo or third-party backend",
		"field", field,
		"name", name,
		"known", ValidProviderNames,
	)
}
