// Package config holds kernel run configuration: CPU timing, logging,
// tracing, and the optional inspector endpoint.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration decodes Go duration strings ("2ms") from YAML.
type Duration time.Duration

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}

// Config holds configuration for a kernel run.
type Config struct {
	// Quantum is the number of timer ticks in one time slice.
	Quantum int `yaml:"quantum"`
	// Tick is the period of the timer interrupt.
	Tick Duration `yaml:"tick"`
	// Wall selects the real-time clock instead of the simulated one.
	Wall bool `yaml:"wall"`

	LogLevel  string `yaml:"log_level"`  // debug, info, warn, error
	LogFormat string `yaml:"log_format"` // text, json

	// TraceDB is the SQLite path for the scheduling trace; empty
	// disables tracing. ":memory:" works for throwaway runs.
	TraceDB string `yaml:"trace_db"`

	// InspectorAddr is the listen address of the HTTP inspector; empty
	// disables it.
	InspectorAddr string `yaml:"inspector_addr"`
}

// Default returns sensible defaults.
func Default() Config {
	return Config{
		Quantum:   8,
		Tick:      Duration(time.Millisecond),
		LogLevel:  "info",
		LogFormat: "text",
	}
}

// Load reads a YAML config file over the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects timing parameters the CPU would refuse at boot.
func (c Config) Validate() error {
	if c.Quantum <= 0 {
		return fmt.Errorf("quantum must be positive, got %d", c.Quantum)
	}
	if c.Tick <= 0 {
		return fmt.Errorf("tick must be positive, got %s", c.Tick)
	}
	return nil
}
