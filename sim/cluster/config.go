package cluster

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/lb-sim/lb-sim/sim"
	"github.com/lb-sim/lb-sim/sim/trace"
	"github.com/lb-sim/lb-sim/sim/workload"
)

// Config is the complete, validated configuration of one simulation.
type Config struct {
	Seed           int64                `yaml:"seed"`
	Horizon        int64                `yaml:"horizon"`   // ticks; 0 = run until stopped
	Algorithm      string               `yaml:"algorithm"` // name, alias or 1-based index
	Pool           []sim.PoolEntry      `yaml:"pool"`
	Health         sim.HealthThresholds `yaml:"health"`
	ScoreWeights   sim.ScoreWeights     `yaml:"score_weights"`
	Contention     float64              `yaml:"contention"` // service-time slowdown per unit of load score
	Traffic        workload.TrafficSpec `yaml:"traffic"`
	Naughty        workload.NaughtySpec `yaml:"naughty"`
	SeriesWindow   int                  `yaml:"series_window"`    // per-server samples kept
	RequestLog     int                  `yaml:"request_log"`      // most recent request records kept
	TraceLevel     string               `yaml:"trace_level"`      // "none" or "decisions"
	Counterfactual int                  `yaml:"counterfactual_k"` // ranked alternatives kept per traced decision
}

// DefaultConfig returns the configuration used when no file or flag overrides it.
func DefaultConfig() Config {
	return Config{
		Seed:         42,
		Algorithm:    sim.AlgorithmRoundRobin,
		Pool:         sim.DefaultPool(),
		Health:       sim.DefaultHealthThresholds(),
		ScoreWeights: sim.DefaultScoreWeights(),
		Contention:   1.0,
		Traffic:      workload.DefaultTrafficSpec(),
		Naughty:      workload.DefaultNaughtySpec(),
		SeriesWindow: 600,
		RequestLog:   1000,
		TraceLevel:   string(trace.TraceLevelNone),
	}
}

// Validate checks every section. All failures wrap sim.ErrInvalidConfiguration;
// a bad algorithm selector additionally wraps sim.ErrInvalidAlgorithm.
func (c *Config) Validate() error {
	if c.Horizon < 0 {
		return fmt.Errorf("horizon must be non-negative, got %d: %w", c.Horizon, sim.ErrInvalidConfiguration)
	}
	if _, err := sim.ParseAlgorithm(c.Algorithm); err != nil {
		return fmt.Errorf("%w: %w", sim.ErrInvalidConfiguration, err)
	}
	if err := sim.ValidatePool(c.Pool); err != nil {
		return err
	}
	if err := c.Health.Validate(); err != nil {
		return err
	}
	if err := c.ScoreWeights.Validate(); err != nil {
		return err
	}
	if math.IsNaN(c.Contention) || math.IsInf(c.Contention, 0) || c.Contention < 0 {
		return fmt.Errorf("contention must be a finite non-negative number, got %f: %w", c.Contention, sim.ErrInvalidConfiguration)
	}
	if err := c.Traffic.Validate(); err != nil {
		if errors.Is(err, sim.ErrInvalidConfiguration) {
			return err
		}
		return fmt.Errorf("%w: %w", sim.ErrInvalidConfiguration, err)
	}
	if err := c.Naughty.Validate(); err != nil {
		return err
	}
	if c.SeriesWindow < 0 {
		return fmt.Errorf("series_window must be non-negative, got %d: %w", c.SeriesWindow, sim.ErrInvalidConfiguration)
	}
	if c.RequestLog < 0 {
		return fmt.Errorf("request_log must be non-negative, got %d: %w", c.RequestLog, sim.ErrInvalidConfiguration)
	}
	if c.Counterfactual < 0 {
		return fmt.Errorf("counterfactual_k must be non-negative, got %d: %w", c.Counterfactual, sim.ErrInvalidConfiguration)
	}
	if !trace.IsValidTraceLevel(c.TraceLevel) {
		return fmt.Errorf("unknown trace_level %q; valid: none, decisions: %w", c.TraceLevel, sim.ErrInvalidConfiguration)
	}
	return nil
}

// LoadConfig reads a YAML configuration layered onto DefaultConfig.
// Uses strict parsing: unrecognized keys (typos) are rejected.
// A traffic.mix given in the file replaces the default mix instead of merging into it.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig decodes YAML bytes the same way LoadConfig does.
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	defaultMix := cfg.Traffic.Mix
	cfg.Traffic.Mix = nil

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("parsing config: %w", err)
	}
	if cfg.Traffic.Mix == nil {
		cfg.Traffic.Mix = defaultMix
	}
	return cfg, nil
}
