// Package config provides the configuration schema and loader for the
// voxline client.
package config

import (
	"log/slog"
	"time"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Slog maps l onto the corresponding slog level. Unknown values map to Info.
func (l LogLevel) Slog() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Config is the root configuration structure, typically loaded from a YAML
// file using [Load] or [LoadFromReader].
type Config struct {
	// LogLevel controls verbosity. Defaults to info.
	LogLevel LogLevel `yaml:"log_level"`

	// MetricsAddr is the optional listen address for the Prometheus
	// /metrics endpoint. Empty disables the listener.
	MetricsAddr string `yaml:"metrics_addr"`

	Session SessionConfig `yaml:"session"`
	Audio   AudioConfig   `yaml:"audio"`
	Video   VideoConfig   `yaml:"video"`
}

// SessionConfig holds the live session parameters.
type SessionConfig struct {
	// APIKey authenticates against the live endpoint. When empty, the
	// GEMINI_API_KEY environment variable is consulted at load time.
	APIKey string `yaml:"api_key"`

	// Model overrides the default live model.
	Model string `yaml:"model"`

	// Voice selects the prebuilt synthesis voice (e.g. "Aoede").
	Voice string `yaml:"voice"`

	// Instructions is the system instruction sent at session setup.
	Instructions string `yaml:"instructions"`
}

// AudioConfig holds the capture and playback stream parameters.
type AudioConfig struct {
	// InputRate is the microphone sample rate in Hz. Defaults to 16000.
	InputRate int `yaml:"input_rate"`

	// OutputRate is the playback sample rate in Hz. Defaults to 24000.
	OutputRate int `yaml:"output_rate"`

	// FrameSize is the number of samples per outbound frame.
	// Defaults to 4096.
	FrameSize int `yaml:"frame_size"`

	// Amplification scales RMS into the displayed volume envelope.
	// Defaults to 5.0.
	Amplification float64 `yaml:"amplification"`
}

// VideoConfig holds the optional outbound video cadence.
type VideoConfig struct {
	// Enabled turns on the 2 fps frame forwarder when a source exists.
	Enabled bool `yaml:"enabled"`

	// IntervalMS is the time between forwarded frames in milliseconds.
	// Defaults to 500 (2 fps).
	IntervalMS int `yaml:"interval_ms"`
}

// Interval returns the video cadence as a duration.
func (v VideoConfig) Interval() time.Duration {
	if v.IntervalMS <= 0 {
		return 500 * time.Millisecond
	}
	return time.Duration(v.IntervalMS) * time.Millisecond
}

// Default returns a configuration with all defaults applied and no
// credential set.
func Default() *Config {
	return &Config{
		LogLevel: LogInfo,
		Audio: AudioConfig{
			InputRate:     16000,
			OutputRate:    24000,
			FrameSize:     4096,
			Amplification: 5.0,
		},
		Video: VideoConfig{IntervalMS: 500},
	}
}
