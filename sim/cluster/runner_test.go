package cluster

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lb-sim/lb-sim/sim"
)

func TestRunner_TicksWhileRunning(t *testing.T) {
	// GIVEN a runner over a started simulator
	r := NewRunner(newTestSimulator(t, testConfig()), time.Millisecond)
	require.NoError(t, r.Do(func(s *Simulator) error { return s.Start() }))

	// WHEN run until the context expires
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := r.Run(ctx)

	// THEN the clock advanced and Run reports why it returned
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	snap := r.Snapshot()
	assert.Positive(t, snap.Tick)
	assert.Equal(t, string(StateRunning), snap.State)
}

func TestRunner_StatusMatchesSnapshot(t *testing.T) {
	// GIVEN a runner whose simulator has advanced and switched algorithm and pattern
	r := NewRunner(newTestSimulator(t, testConfig()), time.Millisecond)
	require.NoError(t, r.Do(func(s *Simulator) error {
		require.NoError(t, s.Start())
		require.NoError(t, s.SetAlgorithm("p2c"))
		require.NoError(t, s.SetTrafficPattern("wave"))
		s.Run(7)
		return s.Pause()
	}))

	// WHEN reading the lightweight status
	st := r.Status()

	// THEN it agrees with the full snapshot
	snap := r.Snapshot()
	assert.Equal(t, snap.RunID, st.RunID)
	assert.Equal(t, snap.State, string(st.State))
	assert.Equal(t, snap.Tick, st.Tick)
	assert.Equal(t, snap.Algorithm, st.Algorithm)
	assert.Equal(t, snap.Pattern, st.Pattern)
	assert.Equal(t, Status{RunID: snap.RunID, State: StatePaused, Tick: 7, Algorithm: sim.AlgorithmPowerOfTwo, Pattern: "wave"}, st)
}

func TestRunner_StoppedSimulatorDoesNotAdvance(t *testing.T) {
	r := NewRunner(newTestSimulator(t, testConfig()), time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_ = r.Run(ctx)
	assert.Zero(t, r.Snapshot().Tick)
}

func TestRunner_DoReturnsOperationError(t *testing.T) {
	r := NewRunner(newTestSimulator(t, testConfig()), time.Second)
	err := r.Do(func(s *Simulator) error { return s.SetAlgorithm("nine") })
	assert.ErrorIs(t, err, sim.ErrInvalidAlgorithm)
}

func TestNewRunner_PanicsOnBadArguments(t *testing.T) {
	assert.Panics(t, func() { NewRunner(nil, time.Second) })
	assert.Panics(t, func() { NewRunner(newTestSimulator(t, testConfig()), 0) })
}
