package workload

import (
	"math"
	"math/rand"
)

// ArrivalPattern yields the expected number of arrivals for a tick.
// Implementations may keep state across ticks (Spike) and draw from rng.
type ArrivalPattern interface {
	Name() string
	Rate(tick int64, rng *rand.Rand) float64
}

// SteadyPattern keeps a constant expected rate.
type SteadyPattern struct {
	base float64
}

func (p *SteadyPattern) Name() string                       { return PatternSteady }
func (p *SteadyPattern) Rate(_ int64, _ *rand.Rand) float64 { return p.base }

// WavePattern oscillates between 0.5x and 1.5x the base rate over period ticks.
type WavePattern struct {
	base   float64
	period int64
}

func (p *WavePattern) Name() string { return PatternWave }

func (p *WavePattern) Rate(tick int64, _ *rand.Rand) float64 {
	phase := 2 * math.Pi * float64(tick) / float64(p.period)
	return p.base * (0.5 + (math.Sin(phase)+1)/2)
}

// SpikePattern runs at the base rate and occasionally jumps by multiplier
// for duration ticks.
type SpikePattern struct {
	base        float64
	probability float64
	multiplier  float64
	duration    int64
	remaining   int64 // spike ticks left after the current one
}

func (p *SpikePattern) Name() string { return PatternSpike }

func (p *SpikePattern) Rate(_ int64, rng *rand.Rand) float64 {
	if p.remaining > 0 {
		p.remaining--
		return p.base * p.multiplier
	}
	if rng.Float64() < p.probability {
		p.remaining = p.duration - 1
		return p.base * p.multiplier
	}
	return p.base
}

// InSpike reports whether the next tick continues a spike.
func (p *SpikePattern) InSpike() bool { return p.remaining > 0 }

// RandomPattern draws the rate uniformly within [base*min, base*max] every tick.
type RandomPattern struct {
	base, min, max float64
}

func (p *RandomPattern) Name() string { return PatternRandom }

func (p *RandomPattern) Rate(_ int64, rng *rand.Rand) float64 {
	return p.base * (p.min + rng.Float64()*(p.max-p.min))
}

// NewArrivalPattern creates the pattern named by name, parameterized by spec.
// Returns ErrInvalidPattern for unknown names.
func NewArrivalPattern(name string, spec TrafficSpec) (ArrivalPattern, error) {
	n, err := ParsePattern(name)
	if err != nil {
		return nil, err
	}
	switch n {
	case PatternWave:
		return &WavePattern{base: spec.BaseRate, period: spec.WavePeriod}, nil
	case PatternSpike:
		return &SpikePattern{
			base:        spec.BaseRate,
			probability: spec.SpikeProbability,
			multiplier:  spec.SpikeMultiplier,
			duration:    spec.SpikeDuration,
		}, nil
	case PatternRandom:
		return &RandomPattern{base: spec.BaseRate, min: spec.RandomMin, max: spec.RandomMax}, nil
	default:
		return &SteadyPattern{base: spec.BaseRate}, nil
	}
}

// poissonThreshold switches from Knuth's product method to a normal approximation.
const poissonThreshold = 30.0

// samplePoisson draws an arrival count with mean lambda.
func samplePoisson(rng *rand.Rand, lambda float64) int {
	if lambda <= 0 {
		return 0
	}
	if lambda >= poissonThreshold {
		n := math.Round(lambda + math.Sqrt(lambda)*rng.NormFloat64())
		if n < 0 {
			return 0
		}
		return int(n)
	}
	limit := math.Exp(-lambda)
	k := 0
	p := rng.Float64()
	for p > limit {
		k++
		p *= rng.Float64()
	}
	return k
}
