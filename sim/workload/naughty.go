package workload

import (
	"math"
	"math/rand"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/lb-sim/lb-sim/sim"
)

// Attack kinds.
const (
	AttackDoS                = "dos"
	AttackResourceExhaustion = "resource-exhaustion"
	AttackSlowloris          = "slowloris"
	AttackAmplification      = "amplification"
)

// AttackProfile scales the naughty base demand and sets the per-tick request
// count of a campaign before intensity is applied.
type AttackProfile struct {
	CPUFactor       float64
	MemoryFactor    float64
	WorkFactor      float64
	RequestsPerTick float64
	Weight          float64 // relative chance of being drawn
}

var attackProfiles = map[string]AttackProfile{
	// many small requests
	AttackDoS: {CPUFactor: 0.4, MemoryFactor: 0.5, WorkFactor: 1.0, RequestsPerTick: 4, Weight: 0.30},
	// few requests that grab as much as they can
	AttackResourceExhaustion: {CPUFactor: 4.0, MemoryFactor: 4.0, WorkFactor: 1.5, RequestsPerTick: 1, Weight: 0.25},
	// cheap requests that hold connections open
	AttackSlowloris: {CPUFactor: 0.2, MemoryFactor: 0.3, WorkFactor: 4.0, RequestsPerTick: 2, Weight: 0.20},
	// memory-heavy responses
	AttackAmplification: {CPUFactor: 1.5, MemoryFactor: 2.5, WorkFactor: 1.0, RequestsPerTick: 2, Weight: 0.25},
}

// AttackKinds returns all attack kind names, sorted.
func AttackKinds() []string {
	kinds := make([]string, 0, len(attackProfiles))
	for k := range attackProfiles {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// Campaign is one sustained naughty attack against a fixed target.
type Campaign struct {
	ID        int64
	Kind      string
	Target    string
	Intensity float64
	StartTick int64
	EndTick   int64 // exclusive
}

// Active reports whether the campaign emits requests at tick.
func (c Campaign) Active(tick int64) bool {
	return tick >= c.StartTick && tick < c.EndTick
}

// requestsPerTick is the number of requests emitted each active tick, at least one.
func (c Campaign) requestsPerTick() int {
	n := int(math.Round(attackProfiles[c.Kind].RequestsPerTick * c.Intensity))
	if n < 1 {
		return 1
	}
	return n
}

// demand returns the scaled demand of one attack request.
func (c Campaign) demand(rng *rand.Rand) sim.Demand {
	p := attackProfiles[c.Kind]
	base := DemandProfiles[sim.UserNaughty].Sample(rng)
	work := int64(math.Round(float64(base.WorkTicks) * p.WorkFactor * c.Intensity))
	if work < 1 {
		work = 1
	}
	return sim.Demand{
		CPU:       base.CPU * p.CPUFactor * c.Intensity,
		Memory:    base.Memory * p.MemoryFactor * c.Intensity,
		WorkTicks: work,
	}
}

// campaigns tracks naughty attacks. All draws use the naughty stream so that
// enabling attacks never shifts regular arrivals.
type campaigns struct {
	spec    NaughtySpec
	targets []string
	kinds   []string
	weights []float64
	nextID  int64
	active  []Campaign
	started int64
}

func newCampaigns(spec NaughtySpec, targets []string) *campaigns {
	kinds := spec.Kinds
	if len(kinds) == 0 {
		kinds = AttackKinds()
	} else {
		kinds = append([]string(nil), kinds...)
		sort.Strings(kinds)
	}
	c := &campaigns{spec: spec, targets: append([]string(nil), targets...), kinds: kinds}
	total := 0.0
	for _, k := range kinds {
		total += attackProfiles[k].Weight
	}
	acc := 0.0
	for _, k := range kinds {
		acc += attackProfiles[k].Weight / total
		c.weights = append(c.weights, acc)
	}
	return c
}

// maybeStart starts a campaign with the configured per-tick probability.
func (c *campaigns) maybeStart(tick int64, rng *rand.Rand) {
	if c.spec.Probability <= 0 {
		return
	}
	if rng.Float64() < c.spec.Probability {
		c.start(tick, rng)
	}
}

// start begins a campaign at tick. The target is chosen uniformly over the
// whole pool, independent of the dispatch algorithm.
func (c *campaigns) start(tick int64, rng *rand.Rand) Campaign {
	c.nextID++
	c.started++
	camp := Campaign{
		ID:        c.nextID,
		Kind:      c.pickKind(rng),
		Target:    c.targets[rng.Intn(len(c.targets))],
		Intensity: c.spec.IntensityMin + rng.Float64()*(c.spec.IntensityMax-c.spec.IntensityMin),
		StartTick: tick,
		EndTick:   tick + c.spec.AttackDuration,
	}
	c.active = append(c.active, camp)
	logrus.Debugf("[tick %d] naughty campaign %d started: kind=%s target=%s intensity=%.2f until tick %d",
		tick, camp.ID, camp.Kind, camp.Target, camp.Intensity, camp.EndTick)
	return camp
}

func (c *campaigns) pickKind(rng *rand.Rand) string {
	u := rng.Float64()
	for i, w := range c.weights {
		if u < w {
			return c.kinds[i]
		}
	}
	return c.kinds[len(c.kinds)-1]
}

// emit returns the attack requests of every campaign active at tick and
// retires campaigns that have ended.
func (c *campaigns) emit(tick int64, rng *rand.Rand, newRequest func(sim.UserType, sim.Demand) *sim.Request) []*sim.Request {
	var out []*sim.Request
	kept := c.active[:0]
	for _, camp := range c.active {
		if tick >= camp.EndTick {
			logrus.Debugf("[tick %d] naughty campaign %d against %s ended", tick, camp.ID, camp.Target)
			continue
		}
		kept = append(kept, camp)
		if !camp.Active(tick) {
			continue
		}
		for i := 0; i < camp.requestsPerTick(); i++ {
			req := newRequest(sim.UserNaughty, camp.demand(rng))
			req.AttackID = camp.ID
			req.AttackKind = camp.Kind
			req.AttackIntensity = camp.Intensity
			req.Target = camp.Target
			out = append(out, req)
		}
	}
	c.active = kept
	return out
}

func (c *campaigns) snapshot() []Campaign {
	return append([]Campaign(nil), c.active...)
}
