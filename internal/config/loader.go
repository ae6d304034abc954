package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
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

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Output
	if cfg.Output.Module != "" && !cfg.Output.Module.IsValid() {
		errs = append(errs, fmt.Errorf("output.module %q is invalid; valid values: espeakng, mock", cfg.Output.Module))
	}
	es := cfg.Output.EspeakNG
	if es.Rate != 0 && (es.Rate < 80 || es.Rate > 450) {
		errs = append(errs, fmt.Errorf("output.espeakng.rate %d is out of range [80, 450]", es.Rate))
	}
	if es.Pitch < 0 || es.Pitch > 99 {
		errs = append(errs, fmt.Errorf("output.espeakng.pitch %d is out of range [0, 99]", es.Pitch))
	}
	if es.Amplitude < 0 || es.Amplitude > 200 {
		errs = append(errs, fmt.Errorf("output.espeakng.amplitude %d is out of range [0, 200]", es.Amplitude))
	}
	if cfg.Output.Module == OutputMock && (es.Binary != "" || es.Voice != "") {
		slog.Warn("output.espeakng settings are ignored when output.module is mock")
	}

	// History
	if cfg.History.Backend != "" && !cfg.History.Backend.IsValid() {
		errs = append(errs, fmt.Errorf("history.backend %q is invalid; valid values: memory, postgres", cfg.History.Backend))
	}
	if cfg.History.Backend == HistoryPostgres && cfg.History.PostgresDSN == "" {
		errs = append(errs, fmt.Errorf("history.postgres_dsn is required when history.backend is postgres"))
	}
	if cfg.History.Backend != HistoryPostgres && cfg.History.PostgresDSN != "" {
		slog.Warn("history.postgres_dsn is set but history.backend is not postgres; the DSN is ignored")
	}
	if cfg.History.Capacity < 0 {
		errs = append(errs, fmt.Errorf("history.capacity %d must not be negative", cfg.History.Capacity))
	}

	return errors.Join(errs...)
}
