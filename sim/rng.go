package sim

import (
	"hash/fnv"
	"math/rand"
)

// SimulationKey identifies a reproducible run. Two simulations with the same
// key and identical configuration produce bit-for-bit identical snapshots.
type SimulationKey int64

// NewSimulationKey creates a SimulationKey from a seed value.
func NewSimulationKey(seed int64) SimulationKey {
	return SimulationKey(seed)
}

// RNG subsystems. Each gets an isolated stream so that, for example,
// switching from round-robin to random does not shift arrival sampling.
const (
	SubsystemWorkload = "workload" // arrival counts, user types, demand
	SubsystemRouter   = "router"   // Random and PowerOfTwo draws
	SubsystemNaughty  = "naughty"  // attack spawn, target and intensity
)

// PartitionedRNG derives deterministic per-subsystem streams from one seed.
//
// Derivation: the workload stream uses the seed directly; every other
// subsystem uses seed XOR fnv1a64(name).
//
// Not thread-safe. The owning engine is the only caller.
type PartitionedRNG struct {
	key        SimulationKey
	subsystems map[string]*rand.Rand
}

// NewPartitionedRNG creates a PartitionedRNG from a SimulationKey.
func NewPartitionedRNG(key SimulationKey) *PartitionedRNG {
	return &PartitionedRNG{
		key:        key,
		subsystems: make(map[string]*rand.Rand),
	}
}

// ForSubsystem returns the cached stream for name, creating it on first use.
// Never returns nil.
func (p *PartitionedRNG) ForSubsystem(name string) *rand.Rand {
	if rng, ok := p.subsystems[name]; ok {
		return rng
	}
	seed := int64(p.key)
	if name != SubsystemWorkload {
		seed ^= fnv1a64(name)
	}
	rng := rand.New(rand.NewSource(seed))
	p.subsystems[name] = rng
	return rng
}

// Key returns the SimulationKey used to create this PartitionedRNG.
func (p *PartitionedRNG) Key() SimulationKey {
	return p.key
}

func fnv1a64(s string) int64 {
	h := fnv.New64a()
	h.Write([]byte(s))
	return int64(h.Sum64())
}
