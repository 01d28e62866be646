package workload

import (
	"math/rand"

	"github.com/lb-sim/lb-sim/sim"
)

// Range is a closed interval sampled uniformly.
type Range struct {
	Min, Max float64
}

func (r Range) sample(rng *rand.Rand) float64 {
	if r.Max <= r.Min {
		return r.Min
	}
	return r.Min + rng.Float64()*(r.Max-r.Min)
}

// TickRange is a closed integer interval sampled uniformly.
type TickRange struct {
	Min, Max int64
}

func (r TickRange) sample(rng *rand.Rand) int64 {
	if r.Max <= r.Min {
		return r.Min
	}
	return r.Min + rng.Int63n(r.Max-r.Min+1)
}

// DemandProfile describes the resource footprint of one user type.
type DemandProfile struct {
	CPU    Range
	Memory Range
	Work   TickRange
}

// Sample draws one demand. Draw order is cpu, memory, work.
func (p DemandProfile) Sample(rng *rand.Rand) sim.Demand {
	return sim.Demand{
		CPU:       p.CPU.sample(rng),
		Memory:    p.Memory.sample(rng),
		WorkTicks: p.Work.sample(rng),
	}
}

// DemandProfiles maps every user type to its demand distribution.
// Naughty demand is the base that attack kinds and intensity scale.
var DemandProfiles = map[sim.UserType]DemandProfile{
	sim.UserLight:    {CPU: Range{0.1, 0.5}, Memory: Range{0.05, 0.2}, Work: TickRange{2, 4}},
	sim.UserStandard: {CPU: Range{0.3, 1.0}, Memory: Range{0.1, 0.5}, Work: TickRange{4, 8}},
	sim.UserHeavy:    {CPU: Range{0.8, 2.0}, Memory: Range{0.3, 1.5}, Work: TickRange{8, 16}},
	sim.UserBurst:    {CPU: Range{0.2, 0.8}, Memory: Range{0.08, 0.3}, Work: TickRange{2, 6}},
	sim.UserNaughty:  {CPU: Range{0.3, 0.8}, Memory: Range{0.1, 0.4}, Work: TickRange{3, 6}},
}

// regularUserTypes are the types pattern and burst arrivals draw from.
var regularUserTypes = []sim.UserType{sim.UserLight, sim.UserStandard, sim.UserHeavy, sim.UserBurst}

// userMix is a cumulative distribution over regular user types.
type userMix struct {
	types      []sim.UserType
	cumulative []float64
}

// newUserMix normalizes weights in canonical user type order so sampling does
// not depend on map iteration.
func newUserMix(weights map[string]float64) userMix {
	m := userMix{}
	total := 0.0
	for _, t := range regularUserTypes {
		total += weights[string(t)]
	}
	acc := 0.0
	for _, t := range regularUserTypes {
		w := weights[string(t)]
		if w <= 0 {
			continue
		}
		acc += w / total
		m.types = append(m.types, t)
		m.cumulative = append(m.cumulative, acc)
	}
	return m
}

func (m userMix) sample(rng *rand.Rand) sim.UserType {
	u := rng.Float64()
	for i, c := range m.cumulative {
		if u < c {
			return m.types[i]
		}
	}
	return m.types[len(m.types)-1]
}
