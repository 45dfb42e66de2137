package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

// envAPIKey is the environment fallback for the session credential.
const envAPIKey = "GEMINI_API_KEY"

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

// LoadFromReader decodes a YAML config from r on top of the defaults,
// applies the environment credential fallback, and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if cfg.Session.APIKey == "" {
		cfg.Session.APIKey = os.Getenv(envAPIKey)
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

	if cfg.LogLevel != "" && !cfg.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("log_level %q is invalid; valid values: debug, info, warn, error", cfg.LogLevel))
	}
	if cfg.Audio.InputRate <= 0 {
		errs = append(errs, fmt.Errorf("audio.input_rate %d must be positive", cfg.Audio.InputRate))
	}
	if cfg.Audio.OutputRate <= 0 {
		errs = append(errs, fmt.Errorf("audio.output_rate %d must be positive", cfg.Audio.OutputRate))
	}
	if cfg.Audio.FrameSize <= 0 {
		errs = append(errs, fmt.Errorf("audio.frame_size %d must be positive", cfg.Audio.FrameSize))
	}
	if cfg.Audio.Amplification <= 0 {
		errs = append(errs, fmt.Errorf("audio.amplification %v must be positive", cfg.Audio.Amplification))
	}
	if cfg.Video.IntervalMS < 0 {
		errs = append(errs, fmt.Errorf("video.interval_ms %d must not be negative", cfg.Video.IntervalMS))
	}

	// Non-fatal oddities are warned about; connecting without a credential
	// is refused later by the session manager.
	if cfg.Session.APIKey == "" {
		slog.Warn("no session API key configured; set session.api_key or " + envAPIKey)
	}
	if cfg.Audio.InputRate > 0 && cfg.Audio.InputRate < 8000 {
		slog.Warn("audio.input_rate is unusually low", "rate", cfg.Audio.InputRate)
	}

	return errors.Join(errs...)
}
