package cluster

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/lb-sim/lb-sim/sim"
)

// Runner hosts a Simulator for concurrent callers. The simulator is only
// touched under the runner's lock, so control operations and snapshots
// always land between ticks.
type Runner struct {
	mu       sync.Mutex
	sim      *Simulator
	interval time.Duration
}

// NewRunner wraps s, ticking once per interval while Run is active.
// Panics if s is nil or interval is not positive.
func NewRunner(s *Simulator, interval time.Duration) *Runner {
	if s == nil {
		panic("NewRunner: simulator must not be nil")
	}
	if interval <= 0 {
		panic("NewRunner: interval must be positive")
	}
	return &Runner{sim: s, interval: interval}
}

// Interval returns the wall-clock time between ticks.
func (r *Runner) Interval() time.Duration { return r.interval }

// Run advances the simulator one tick per interval until ctx is done.
// Ticks are no-ops while the simulator is not Running.
func (r *Runner) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	logrus.Infof("runner started, tick interval %s", r.interval)
	for {
		select {
		case <-ctx.Done():
			logrus.Infof("runner stopped: %v", ctx.Err())
			return ctx.Err()
		case <-ticker.C:
			r.mu.Lock()
			r.sim.Tick()
			r.mu.Unlock()
		}
	}
}

// Do applies fn to the simulator between ticks and returns its error.
func (r *Runner) Do(fn func(*Simulator) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return fn(r.sim)
}

// Status returns the simulator's lifecycle summary, taken between ticks.
func (r *Runner) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sim.Status()
}

// Snapshot returns a snapshot taken between ticks.
func (r *Runner) Snapshot() sim.Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sim.Snapshot()
}
