package workload

import (
	"fmt"
	"math"
	"strings"

	"github.com/lb-sim/lb-sim/sim"
)

// Traffic pattern names.
const (
	PatternSteady = "steady"
	PatternWave   = "wave"
	PatternSpike  = "spike"
	PatternRandom = "random"
)

var patternOrder = []string{PatternSteady, PatternWave, PatternSpike, PatternRandom}

// MaxBaseRate bounds the expected arrivals per tick.
const MaxBaseRate = 1000.0

// MaxBurst bounds the regular manual arrivals queued for one tick.
const MaxBurst = 10000

// Patterns returns the pattern names in canonical order.
func Patterns() []string {
	return append([]string(nil), patternOrder...)
}

// ParsePattern resolves a pattern name, case-insensitively.
func ParsePattern(name string) (string, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	for _, p := range patternOrder {
		if n == p {
			return p, nil
		}
	}
	return "", fmt.Errorf("unknown pattern %q; valid: %s: %w", name, strings.Join(patternOrder, ", "), sim.ErrInvalidPattern)
}

// TrafficSpec configures pattern-driven arrivals.
type TrafficSpec struct {
	Pattern          string             `yaml:"pattern"`
	BaseRate         float64            `yaml:"base_rate"`         // expected arrivals per tick
	WavePeriod       int64              `yaml:"wave_period"`       // ticks per full oscillation
	SpikeProbability float64            `yaml:"spike_probability"` // per-tick chance a spike begins
	SpikeMultiplier  float64            `yaml:"spike_multiplier"`
	SpikeDuration    int64              `yaml:"spike_duration"`
	RandomMin        float64            `yaml:"random_min"` // lower bound factor on base rate
	RandomMax        float64            `yaml:"random_max"` // upper bound factor on base rate
	Mix              map[string]float64 `yaml:"mix"`        // user type -> relative weight
}

// DefaultTrafficSpec returns a steady pattern at two arrivals per tick.
func DefaultTrafficSpec() TrafficSpec {
	return TrafficSpec{
		Pattern:          PatternSteady,
		BaseRate:         2.0,
		WavePeriod:       60,
		SpikeProbability: 0.05,
		SpikeMultiplier:  3.0,
		SpikeDuration:    5,
		RandomMin:        0.2,
		RandomMax:        2.0,
		Mix: map[string]float64{
			string(sim.UserLight):    0.39,
			string(sim.UserStandard): 0.30,
			string(sim.UserHeavy):    0.18,
			string(sim.UserBurst):    0.12,
		},
	}
}

// Validate checks that all fields are within bounds.
func (s *TrafficSpec) Validate() error {
	if _, err := ParsePattern(s.Pattern); err != nil {
		return fmt.Errorf("traffic.pattern: %w", err)
	}
	if err := validateFiniteRange("traffic.base_rate", s.BaseRate, 0, MaxBaseRate); err != nil {
		return err
	}
	if s.WavePeriod < 1 {
		return invalid("traffic.wave_period must be >= 1, got %d", s.WavePeriod)
	}
	if err := validateFiniteRange("traffic.spike_probability", s.SpikeProbability, 0, 1); err != nil {
		return err
	}
	if err := validateFiniteRange("traffic.spike_multiplier", s.SpikeMultiplier, 1, math.MaxFloat64); err != nil {
		return err
	}
	if s.SpikeDuration < 1 {
		return invalid("traffic.spike_duration must be >= 1, got %d", s.SpikeDuration)
	}
	if err := validateFiniteRange("traffic.random_min", s.RandomMin, 0, math.MaxFloat64); err != nil {
		return err
	}
	if err := validateFiniteRange("traffic.random_max", s.RandomMax, s.RandomMin, math.MaxFloat64); err != nil {
		return err
	}
	total := 0.0
	for name, w := range s.Mix {
		t, err := sim.ParseUserType(name)
		if err != nil || t == sim.UserNaughty {
			return invalid("traffic.mix: %q is not a regular user type", name)
		}
		if err := validateFiniteRange("traffic.mix."+name, w, 0, math.MaxFloat64); err != nil {
			return err
		}
		total += w
	}
	if total <= 0 {
		return invalid("traffic.mix must have at least one positive weight")
	}
	return nil
}

// NaughtySpec configures adversarial campaigns.
type NaughtySpec struct {
	Probability    float64  `yaml:"probability"`     // per-tick chance a campaign begins
	AttackDuration int64    `yaml:"attack_duration"` // ticks a campaign keeps emitting
	IntensityMin   float64  `yaml:"intensity_min"`
	IntensityMax   float64  `yaml:"intensity_max"`
	Kinds          []string `yaml:"kinds"` // allowed attack kinds, empty = all
}

// DefaultNaughtySpec returns a 1% per-tick campaign probability with 20-tick attacks.
func DefaultNaughtySpec() NaughtySpec {
	return NaughtySpec{
		Probability:    0.01,
		AttackDuration: 20,
		IntensityMin:   0.5,
		IntensityMax:   3.0,
	}
}

// Validate checks that all fields are within bounds.
func (s *NaughtySpec) Validate() error {
	if err := validateFiniteRange("naughty.probability", s.Probability, 0, 1); err != nil {
		return err
	}
	if s.AttackDuration < 1 {
		return invalid("naughty.attack_duration must be >= 1, got %d", s.AttackDuration)
	}
	if err := validateFiniteRange("naughty.intensity_min", s.IntensityMin, 0, math.MaxFloat64); err != nil {
		return err
	}
	if s.IntensityMin == 0 {
		return invalid("naughty.intensity_min must be positive")
	}
	if err := validateFiniteRange("naughty.intensity_max", s.IntensityMax, s.IntensityMin, math.MaxFloat64); err != nil {
		return err
	}
	for _, k := range s.Kinds {
		if _, ok := attackProfiles[k]; !ok {
			return invalid("naughty.kinds: unknown attack kind %q; valid: %s", k, strings.Join(AttackKinds(), ", "))
		}
	}
	return nil
}

func validateFiniteRange(name string, val, lo, hi float64) error {
	if math.IsNaN(val) || math.IsInf(val, 0) {
		return invalid("%s must be a finite number, got %f", name, val)
	}
	if val < lo || val > hi {
		return invalid("%s must be in [%g, %g], got %g", name, lo, hi, val)
	}
	return nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, sim.ErrInvalidConfiguration)...)
}
