package cluster

import (
	"fmt"
	"math"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/lb-sim/lb-sim/sim"
	"github.com/lb-sim/lb-sim/sim/trace"
	"github.com/lb-sim/lb-sim/sim/workload"
)

// State is the lifecycle state of a Simulator.
type State string

const (
	StateStopped State = "stopped"
	StateRunning State = "running"
	StatePaused  State = "paused"
)

// ReasonPinned is recorded for naughty requests sent to their fixed target.
const ReasonPinned = "naughty-pinned"

// Simulator is the simulation engine. It owns the server pool, the active
// algorithm, the traffic generator and the metrics collector, and advances
// them together one tick at a time.
//
// Every tick runs the same ordered phases: arrivals, dispatch, progress,
// completion, metrics. A request dispatched at tick t is first decremented
// at tick t+1, so nothing completes in the tick it arrived.
//
// Not thread-safe. Concurrent hosts go through Runner.
type Simulator struct {
	cfg       Config
	weights   sim.ScoreWeights
	pool      *sim.ServerPool
	generator *workload.Generator
	collector *sim.MetricsCollector
	rng       *sim.PartitionedRNG
	algorithm sim.Algorithm

	state    State
	finished bool // set by Stop and horizon; Start is refused until Reset
	clock    int64
	inFlight []*sim.Request

	trace        *trace.SimulationTrace // nil when tracing is off
	lastCampaign int64

	resets int
	runID  string
}

// NewSimulator validates cfg and builds a simulator in the Stopped state.
// Returns an error wrapping sim.ErrInvalidConfiguration for any bad setting.
func NewSimulator(cfg Config) (*Simulator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	pool, err := sim.NewServerPool(cfg.Pool, cfg.Health)
	if err != nil {
		return nil, err
	}
	rng := sim.NewPartitionedRNG(sim.NewSimulationKey(cfg.Seed))
	gen, err := workload.NewGenerator(cfg.Traffic, cfg.Naughty, pool.IDs(), rng)
	if err != nil {
		return nil, err
	}
	s := &Simulator{
		cfg:       cfg,
		weights:   cfg.ScoreWeights,
		pool:      pool,
		generator: gen,
		collector: sim.NewMetricsCollector(pool.IDs(), cfg.SeriesWindow, cfg.RequestLog),
		rng:       rng,
		state:     StateStopped,
	}
	if s.algorithm, err = s.newAlgorithm(cfg.Algorithm); err != nil {
		return nil, fmt.Errorf("%w: %w", sim.ErrInvalidConfiguration, err)
	}
	s.resetTrace()
	s.runID = s.newRunID()
	logrus.Infof("simulator ready: %d servers, algorithm=%s, pattern=%s, seed=%d",
		pool.Len(), s.algorithm.Name(), gen.Pattern(), cfg.Seed)
	return s, nil
}

func (s *Simulator) newAlgorithm(selector string) (sim.Algorithm, error) {
	return sim.NewAlgorithm(selector, s.rng.ForSubsystem(sim.SubsystemRouter), s.weights)
}

func (s *Simulator) resetTrace() {
	s.trace = nil
	s.lastCampaign = 0
	level := trace.TraceLevel(s.cfg.TraceLevel)
	if level.Enabled() {
		s.trace = trace.NewSimulationTrace(trace.TraceConfig{Level: level, CounterfactualK: s.cfg.Counterfactual})
	}
}

// newRunID derives a stable identifier from the seed and reset count, so
// identical runs export identical snapshots.
func (s *Simulator) newRunID() string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(fmt.Sprintf("lbsim/%d/%d", s.cfg.Seed, s.resets))).String()
}

// Config returns the configuration the simulator was built with.
func (s *Simulator) Config() Config { return s.cfg }

// State returns the current lifecycle state.
func (s *Simulator) State() State { return s.state }

// Clock returns the number of ticks executed since construction or the last Reset.
func (s *Simulator) Clock() int64 { return s.clock }

// Algorithm returns the name of the active algorithm.
func (s *Simulator) Algorithm() string { return s.algorithm.Name() }

// InFlight returns the number of dispatched requests not yet completed.
func (s *Simulator) InFlight() int { return len(s.inFlight) }

// Status is the lifecycle summary of a simulator, cheap to read at any size.
type Status struct {
	RunID     string
	State     State
	Tick      int64
	Algorithm string
	Pattern   string
}

// Status reads the lifecycle fields without building a Snapshot.
func (s *Simulator) Status() Status {
	return Status{
		RunID:     s.runID,
		State:     s.state,
		Tick:      s.clock,
		Algorithm: s.algorithm.Name(),
		Pattern:   s.generator.Pattern(),
	}
}

// Start begins or resumes tick advancement (Stopped or Paused -> Running).
// A stopped run must be Reset before it can start again.
func (s *Simulator) Start() error {
	switch {
	case s.state == StateRunning:
		return fmt.Errorf("start: already running: %w", sim.ErrInvalidTransition)
	case s.state == StateStopped && s.finished:
		return fmt.Errorf("start: run was stopped at tick %d, reset first: %w", s.clock, sim.ErrInvalidTransition)
	}
	logrus.Infof("[tick %d] %s -> %s", s.clock, s.state, StateRunning)
	s.state = StateRunning
	return nil
}

// Pause suspends tick advancement (Running -> Paused).
func (s *Simulator) Pause() error {
	if s.state != StateRunning {
		return fmt.Errorf("pause: simulator is %s: %w", s.state, sim.ErrInvalidTransition)
	}
	logrus.Infof("[tick %d] %s -> %s", s.clock, s.state, StatePaused)
	s.state = StatePaused
	return nil
}

// Stop ends the run (Running or Paused -> Stopped). Aggregates are kept for export.
func (s *Simulator) Stop() error {
	if s.state == StateStopped {
		return fmt.Errorf("stop: simulator is already stopped: %w", sim.ErrInvalidTransition)
	}
	s.stop()
	return nil
}

func (s *Simulator) stop() {
	logrus.Infof("[tick %d] %s -> %s", s.clock, s.state, StateStopped)
	s.state = StateStopped
	s.finished = true
}

// Reset returns to Stopped with zero utilization, no requests and cleared
// metrics. Pool identities and lifetime server aggregates are kept. The
// configured algorithm and traffic pattern are restored and every random
// stream restarts from the seed. Valid from any state.
func (s *Simulator) Reset() {
	s.resets++
	s.state = StateStopped
	s.finished = false
	s.clock = 0
	s.inFlight = nil
	s.rng = sim.NewPartitionedRNG(sim.NewSimulationKey(s.cfg.Seed))
	alg, err := s.newAlgorithm(s.cfg.Algorithm)
	if err != nil {
		panic(fmt.Sprintf("Simulator.Reset: validated algorithm rejected: %v", err))
	}
	s.algorithm = alg
	s.generator.Reset(s.rng)
	s.pool.ResetUtilization()
	s.collector.Reset()
	s.resetTrace()
	s.runID = s.newRunID()
	logrus.Infof("simulator reset (run %s)", s.runID)
}

// SetAlgorithm switches the dispatch algorithm. Only future dispatches are
// affected; in-flight requests keep their server. Selecting the active
// algorithm again is a no-op.
func (s *Simulator) SetAlgorithm(selector string) error {
	name, err := sim.ParseAlgorithm(selector)
	if err != nil {
		return err
	}
	if name == s.algorithm.Name() {
		return nil
	}
	alg, err := s.newAlgorithm(name)
	if err != nil {
		return err
	}
	logrus.Infof("[tick %d] algorithm %s -> %s", s.clock, s.algorithm.Name(), name)
	s.algorithm = alg
	s.collector.RecordSwitch()
	return nil
}

// SetTrafficPattern switches the arrival pattern.
func (s *Simulator) SetTrafficPattern(name string) error {
	prev := s.generator.Pattern()
	if err := s.generator.SetPattern(name); err != nil {
		return err
	}
	logrus.Infof("[tick %d] pattern %s -> %s", s.clock, prev, s.generator.Pattern())
	return nil
}

// SetBaseRate changes the expected arrivals per tick.
func (s *Simulator) SetBaseRate(rate float64) error {
	if err := s.generator.SetBaseRate(rate); err != nil {
		return err
	}
	logrus.Infof("[tick %d] base rate -> %.2f", s.clock, rate)
	return nil
}

// SpawnOne spawns one user of the given type for the next tick. A regular
// type yields one request; UserNaughty starts a whole campaign that emits
// pinned requests every tick for the configured attack duration.
func (s *Simulator) SpawnOne(t sim.UserType) error { return s.generator.SpawnOne(t) }

// SpawnBurst queues exactly n regular arrivals for the next tick, bounded by
// workload.MaxBurst.
func (s *Simulator) SpawnBurst(n int) error { return s.generator.SpawnBurst(n) }

// Tick advances one tick if Running and reports whether it did. When a
// horizon is configured the simulator stops itself after reaching it.
func (s *Simulator) Tick() bool {
	if s.state != StateRunning {
		return false
	}
	s.step(true)
	if s.cfg.Horizon > 0 && s.clock >= s.cfg.Horizon {
		logrus.Infof("[tick %d] horizon reached", s.clock)
		s.stop()
	}
	return true
}

// Run ticks until maxTicks have executed or the simulator leaves Running.
// Returns the number of ticks executed.
func (s *Simulator) Run(maxTicks int64) int64 {
	var n int64
	for n < maxTicks && s.Tick() {
		n++
	}
	return n
}

// Drain advances ticks without new arrivals until nothing is in flight or
// maxTicks have executed, in any state. Returns the number of ticks executed.
// Queued manual spawns stay queued.
func (s *Simulator) Drain(maxTicks int64) int64 {
	var n int64
	for n < maxTicks && len(s.inFlight) > 0 {
		s.step(false)
		n++
	}
	if len(s.inFlight) > 0 {
		logrus.Warnf("[tick %d] drain stopped after %d ticks with %d requests in flight", s.clock, n, len(s.inFlight))
	}
	return n
}

func (s *Simulator) step(arrivals bool) {
	s.clock++

	// 1+2. arrivals and dispatch
	if arrivals {
		reqs := s.generator.Arrivals(s.clock)
		s.traceCampaigns()
		for _, req := range reqs {
			s.collector.RecordSpawn(req)
			s.dispatch(req)
		}
	}

	// 3. progress; requests dispatched this tick start next tick
	for _, req := range s.inFlight {
		if req.DispatchTick < s.clock {
			req.Remaining--
		}
	}

	// 4. completion, judged against health before any release this tick
	overloaded := make(map[string]bool)
	for _, v := range s.pool.Views() {
		if v.Health == sim.HealthOverloaded {
			overloaded[v.ID] = true
		}
	}
	kept := s.inFlight[:0]
	for _, req := range s.inFlight {
		if req.Remaining > 0 {
			kept = append(kept, req)
			continue
		}
		s.complete(req, overloaded[req.ServerID])
	}
	for i := len(kept); i < len(s.inFlight); i++ {
		s.inFlight[i] = nil
	}
	s.inFlight = kept

	// 5. metrics
	s.collector.RecordTick(s.clock, s.pool.Views())
}

func (s *Simulator) dispatch(req *sim.Request) {
	req.Algorithm = s.algorithm.Name()
	views := s.pool.Views()

	var (
		decision sim.RoutingDecision
		err      error
	)
	if req.Pinned() {
		decision = sim.RoutingDecision{Target: req.Target, Reason: ReasonPinned}
		if s.pool.Health(req.Target) == sim.HealthOverloaded {
			err = fmt.Errorf("pinned target %s is overloaded: %w", req.Target, sim.ErrNoEligibleServer)
		}
	} else {
		decision, err = s.algorithm.Select(views, req)
	}
	if err == nil {
		err = s.pool.Reserve(decision.Target, req.Demand)
		if err != nil {
			s.pool.RecordOutcome(decision.Target, sim.StateRejected, 0)
		}
	}

	if err != nil {
		req.State = sim.StateRejected
		req.Reason = sim.RejectionReason(err)
		logrus.Debugf("[tick %d] request %d (%s) rejected: %v", s.clock, req.ID, req.UserType, err)
		s.collector.RecordDispatch(req, "", err)
		s.traceDispatch(req, decision, views, false)
		return
	}

	after, _ := s.pool.View(decision.Target)
	req.State = sim.StateInProgress
	req.ServerID = decision.Target
	req.Reason = decision.Reason
	req.DispatchTick = s.clock
	req.ServiceTicks = s.serviceTicks(after, req.Demand)
	req.Remaining = req.ServiceTicks
	s.inFlight = append(s.inFlight, req)
	s.collector.RecordDispatch(req, decision.Target, nil)
	s.traceDispatch(req, decision, views, true)
}

// serviceTicks is the fixed service time of a request on a server whose
// utilization already includes the request:
// ceil((base + work/speed) * (1 + contention*loadScore)), at least 1.
func (s *Simulator) serviceTicks(v sim.ServerView, d sim.Demand) int64 {
	spec := sim.ServerSpecs[v.Type]
	raw := (float64(spec.BaseResponseTicks) + float64(d.WorkTicks)/spec.Speed) *
		(1 + s.cfg.Contention*v.LoadScore(s.weights))
	ticks := int64(math.Ceil(raw - 1e-9))
	if ticks < 1 {
		return 1
	}
	return ticks
}

func (s *Simulator) complete(req *sim.Request, failed bool) {
	req.CompletionTick = s.clock
	outcome := sim.StateCompleted
	if failed {
		outcome = sim.StateFailed
		req.Reason = "server_overloaded"
	}
	req.State = outcome
	s.pool.Release(req.ServerID, req.Demand)
	s.pool.RecordOutcome(req.ServerID, outcome, req.ResponseTicks())
	s.collector.RecordCompletion(req, outcome, req.ResponseTicks())
}

func (s *Simulator) traceDispatch(req *sim.Request, decision sim.RoutingDecision, views []sim.ServerView, accepted bool) {
	if s.trace == nil {
		return
	}
	rec := trace.DispatchRecord{
		RequestID: req.ID,
		Tick:      s.clock,
		UserType:  string(req.UserType),
		Algorithm: req.Algorithm,
		ServerID:  decision.Target,
		Accepted:  accepted,
		Pinned:    req.Pinned(),
		Reason:    req.Reason,
		Scores:    copyScores(decision.Scores),
	}
	if accepted {
		rec.Candidates, rec.Regret = computeCounterfactual(decision.Target, decision.Scores, views, s.weights, s.trace.Config.CounterfactualK)
	}
	s.trace.RecordDispatch(rec)
}

func (s *Simulator) traceCampaigns() {
	if s.trace == nil {
		return
	}
	for _, c := range s.generator.Campaigns() {
		if c.ID <= s.lastCampaign {
			continue
		}
		s.trace.RecordCampaign(trace.CampaignRecord{
			AttackID:  c.ID,
			Tick:      c.StartTick,
			Kind:      c.Kind,
			Target:    c.Target,
			Intensity: c.Intensity,
		})
		s.lastCampaign = c.ID
	}
}

// Snapshot returns an immutable export of the current state, taken between ticks.
func (s *Simulator) Snapshot() sim.Snapshot {
	ms := s.collector.Snapshot()
	views := s.pool.Views()
	servers := make([]sim.ServerRecord, len(views))
	for i, v := range views {
		servers[i] = sim.NewServerRecord(v, s.collector.ServerMetrics(v.ID), s.weights)
	}
	snap := sim.Snapshot{
		RunID:             s.runID,
		Seed:              s.cfg.Seed,
		Tick:              s.clock,
		State:             string(s.state),
		Algorithm:         s.algorithm.Name(),
		Pattern:           s.generator.Pattern(),
		Totals:            ms.Totals,
		Servers:           servers,
		Algorithms:        ms.Algorithms,
		UserTypes:         ms.UserTypes,
		ResponseTime:      ms.ResponseTime,
		Attacks:           ms.Attacks,
		AlgorithmSwitches: ms.AlgorithmSwitches,
		Requests:          ms.Requests,
	}
	if s.trace != nil {
		snap.Trace = trace.Summarize(s.trace)
	}
	return snap
}
