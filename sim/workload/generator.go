package workload

import (
	"fmt"
	"math/rand"

	"github.com/sirupsen/logrus"

	"github.com/lb-sim/lb-sim/sim"
)

// Generator produces the arrivals of each tick: queued manual spawns first,
// then pattern arrivals, then naughty campaign traffic. Request ids are
// assigned here and increase monotonically across a run.
//
// Deterministic given the same specs, targets and PartitionedRNG seed.
// Not thread-safe; the owning engine is the only caller.
type Generator struct {
	initial TrafficSpec // restored by Reset
	traffic TrafficSpec
	naughty NaughtySpec
	targets []string

	pattern   ArrivalPattern
	mix       userMix
	rng       *rand.Rand // workload stream
	attackRNG *rand.Rand // naughty stream
	campaigns *campaigns

	nextID  int64
	manual  []sim.UserType // single spawns awaiting the next tick
	bursts  int            // burst arrivals awaiting the next tick
	attacks int            // manual campaigns awaiting the next tick
}

// NewGenerator validates both specs and creates a generator targeting the given server ids.
func NewGenerator(traffic TrafficSpec, naughty NaughtySpec, targets []string, rng *sim.PartitionedRNG) (*Generator, error) {
	if err := traffic.Validate(); err != nil {
		return nil, err
	}
	if err := naughty.Validate(); err != nil {
		return nil, err
	}
	if len(targets) == 0 {
		return nil, fmt.Errorf("generator needs at least one target server: %w", sim.ErrInvalidConfiguration)
	}
	if rng == nil {
		panic("NewGenerator: rng must not be nil")
	}
	g := &Generator{initial: traffic, naughty: naughty, targets: append([]string(nil), targets...)}
	g.Reset(rng)
	return g, nil
}

// Reset restores the generator to its configured state using fresh RNG streams.
// Pattern and rate changes made since construction are discarded.
func (g *Generator) Reset(rng *sim.PartitionedRNG) {
	g.traffic = g.initial
	pattern, err := NewArrivalPattern(g.traffic.Pattern, g.traffic)
	if err != nil {
		panic(fmt.Sprintf("Generator.Reset: validated pattern rejected: %v", err))
	}
	g.pattern = pattern
	g.mix = newUserMix(g.traffic.Mix)
	g.rng = rng.ForSubsystem(sim.SubsystemWorkload)
	g.attackRNG = rng.ForSubsystem(sim.SubsystemNaughty)
	g.campaigns = newCampaigns(g.naughty, g.targets)
	g.nextID = 0
	g.manual = nil
	g.bursts = 0
	g.attacks = 0
}

// Pattern returns the active pattern name.
func (g *Generator) Pattern() string { return g.pattern.Name() }

// SetPattern switches the arrival pattern. Pattern state (an ongoing spike)
// is discarded. Unknown names return ErrInvalidPattern and change nothing.
func (g *Generator) SetPattern(name string) error {
	p, err := NewArrivalPattern(name, g.traffic)
	if err != nil {
		return err
	}
	g.traffic.Pattern = p.Name()
	g.pattern = p
	return nil
}

// SetBaseRate changes the expected arrivals per tick for the active and future patterns.
func (g *Generator) SetBaseRate(rate float64) error {
	next := g.traffic
	next.BaseRate = rate
	if err := next.Validate(); err != nil {
		return err
	}
	p, _ := NewArrivalPattern(next.Pattern, next)
	g.traffic = next
	g.pattern = p
	return nil
}

// SpawnOne spawns one user of the given type. A regular user is a single
// arrival on the next tick. A naughty user starts a full campaign on the next
// tick: several pinned requests per tick against one randomly chosen target
// for the configured attack duration.
func (g *Generator) SpawnOne(t sim.UserType) error {
	if _, err := sim.ParseUserType(string(t)); err != nil {
		return err
	}
	if t == sim.UserNaughty {
		g.attacks++
		return nil
	}
	if err := g.checkQueued(1); err != nil {
		return err
	}
	g.manual = append(g.manual, t)
	return nil
}

// SpawnBurst queues exactly n arrivals for the next tick, with user types
// drawn uniformly from the regular types. At most MaxBurst regular arrivals
// may be queued at once.
func (g *Generator) SpawnBurst(n int) error {
	if n < 0 {
		return fmt.Errorf("burst size must be non-negative, got %d: %w", n, sim.ErrInvalidConfiguration)
	}
	if err := g.checkQueued(n); err != nil {
		return err
	}
	g.bursts += n
	return nil
}

func (g *Generator) checkQueued(n int) error {
	queued := len(g.manual) + g.bursts
	if n > MaxBurst-queued {
		return fmt.Errorf("queueing %d arrivals on top of %d exceeds the limit of %d: %w",
			n, queued, MaxBurst, sim.ErrInvalidConfiguration)
	}
	return nil
}

// Pending returns the number of queued manual arrivals, counting each queued campaign once.
func (g *Generator) Pending() int { return len(g.manual) + g.bursts + g.attacks }

// Campaigns returns the campaigns still tracked, including ones that ended
// but have not been retired yet.
func (g *Generator) Campaigns() []Campaign { return g.campaigns.snapshot() }

// CampaignsStarted returns how many campaigns have begun since the last reset.
func (g *Generator) CampaignsStarted() int64 { return g.campaigns.started }

// Arrivals returns the requests arriving at tick, in Pending state.
func (g *Generator) Arrivals(tick int64) []*sim.Request {
	var out []*sim.Request

	for _, t := range g.manual {
		out = append(out, g.newRequest(tick, t, DemandProfiles[t].Sample(g.rng)))
	}
	g.manual = g.manual[:0]
	for i := 0; i < g.bursts; i++ {
		t := regularUserTypes[g.rng.Intn(len(regularUserTypes))]
		out = append(out, g.newRequest(tick, t, DemandProfiles[t].Sample(g.rng)))
	}
	g.bursts = 0

	n := samplePoisson(g.rng, g.pattern.Rate(tick, g.rng))
	for i := 0; i < n; i++ {
		t := g.mix.sample(g.rng)
		out = append(out, g.newRequest(tick, t, DemandProfiles[t].Sample(g.rng)))
	}

	for ; g.attacks > 0; g.attacks-- {
		g.campaigns.start(tick, g.attackRNG)
	}
	g.campaigns.maybeStart(tick, g.attackRNG)
	out = append(out, g.campaigns.emit(tick, g.attackRNG, func(t sim.UserType, d sim.Demand) *sim.Request {
		return g.newRequest(tick, t, d)
	})...)

	if len(out) > 0 {
		logrus.Debugf("[tick %d] %d arrivals (pattern=%s)", tick, len(out), g.pattern.Name())
	}
	return out
}

func (g *Generator) newRequest(tick int64, t sim.UserType, d sim.Demand) *sim.Request {
	g.nextID++
	return &sim.Request{
		ID:          g.nextID,
		UserType:    t,
		ArrivalTick: tick,
		Demand:      d,
		State:       sim.StatePending,
	}
}
