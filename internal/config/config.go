// Package config loads the agent configuration. Defaults are set first
// and the yaml file is unmarshalled over them, so a partial config file is
// always valid.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Backend   BackendConfig   `yaml:"backend"`
	Monitor   MonitorConfig   `yaml:"monitor"`
	Enforce   EnforceConfig   `yaml:"enforce"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Report    ReportConfig    `yaml:"report"`
}

type BackendConfig struct {
	// BaseURL is the REST backend root (session records, violation
	// persistence).
	BaseURL string `yaml:"base_url"`

	// TelemetryURL is the websocket endpoint for the streaming channel.
	// The session ID is appended as a path segment.
	TelemetryURL string `yaml:"telemetry_url"`

	// Token is the bearer credential. Usually supplied via the
	// EXAMGUARD_TOKEN environment variable rather than the file.
	Token string `yaml:"token"`
}

type MonitorConfig struct {
	HeartbeatInterval   time.Duration `yaml:"heartbeat_interval"`
	DevToolsPollEvery   time.Duration `yaml:"devtools_poll_every"`
	DevToolsThresholdPx int           `yaml:"devtools_threshold_px"`
	ClipboardPreviewLen int           `yaml:"clipboard_preview_len"`
}

type EnforceConfig struct {
	WarningDuration time.Duration `yaml:"warning_duration"`
	ReissueDelay    time.Duration `yaml:"reissue_delay"`
	WarningCooldown time.Duration `yaml:"warning_cooldown"`
	WarningMessage  string        `yaml:"warning_message"`
}

type TelemetryConfig struct {
	ReconnectBase     time.Duration `yaml:"reconnect_base"`
	ReconnectAttempts int           `yaml:"reconnect_attempts"`
	WriteTimeout      time.Duration `yaml:"write_timeout"`
	PingInterval      time.Duration `yaml:"ping_interval"`
	PongTimeout       time.Duration `yaml:"pong_timeout"`
}

type ReportConfig struct {
	// JournalPath is the local JSONL violation journal. Empty disables
	// journalling.
	JournalPath string `yaml:"journal_path"`

	// RequestTimeout bounds each persistence request.
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// RetryDelay is the pause before the single retry of a failed
	// persistence request.
	RetryDelay time.Duration `yaml:"retry_delay"`

	// FlushTimeout bounds queue draining during stop.
	FlushTimeout time.Duration `yaml:"flush_timeout"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Backend: BackendConfig{
			BaseURL:      "http://localhost:8080",
			TelemetryURL: "ws://localhost:8080/ws/sessions",
		},
		Monitor: MonitorConfig{
			HeartbeatInterval:   5 * time.Second,
			DevToolsPollEvery:   time.Second,
			DevToolsThresholdPx: 160,
			ClipboardPreviewLen: 120,
		},
		Enforce: EnforceConfig{
			WarningDuration: 3 * time.Second,
			ReissueDelay:    500 * time.Millisecond,
			WarningCooldown: 5 * time.Second,
		},
		Telemetry: TelemetryConfig{
			ReconnectBase:     3 * time.Second,
			ReconnectAttempts: 5,
			WriteTimeout:      10 * time.Second,
			PingInterval:      30 * time.Second,
			PongTimeout:       60 * time.Second,
		},
		Report: ReportConfig{
			JournalPath:    "violations.jsonl",
			RequestTimeout: 10 * time.Second,
			RetryDelay:     500 * time.Millisecond,
			FlushTimeout:   5 * time.Second,
		},
	}
}

// Load reads path and unmarshals it over the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return cfg, nil
}
