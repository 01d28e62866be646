package sim

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// views builds healthy views for a pool of standard servers with the given connection counts.
func views(conns ...int) []ServerView {
	out := make([]ServerView, len(conns))
	for i, c := range conns {
		s := NewServer(fmt.Sprintf("srv-%02d", i+1), i, ServerStandard, 0, DefaultHealthThresholds())
		s.ActiveConnections = c
		out[i] = s.View()
	}
	return out
}

func overloaded(v ServerView) ServerView {
	v.ActiveConnections = v.MaxConnections
	v.Health = HealthOverloaded
	return v
}

func newTestAlgorithm(t *testing.T, name string, seed int64) Algorithm {
	t.Helper()
	alg, err := NewAlgorithm(name, rand.New(rand.NewSource(seed)), DefaultScoreWeights())
	require.NoError(t, err)
	return alg
}

func TestAlgorithm_TargetAlwaysEligible(t *testing.T) {
	for _, name := range Algorithms() {
		t.Run(name, func(t *testing.T) {
			// GIVEN a pool where the middle server is overloaded
			pool := views(0, 0, 0)
			pool[1] = overloaded(pool[1])
			alg := newTestAlgorithm(t, name, 42)

			// WHEN selecting many times
			for i := 0; i < 50; i++ {
				d, err := alg.Select(pool, &Request{ID: int64(i)})

				// THEN the overloaded server is never returned
				require.NoError(t, err)
				assert.NotEqual(t, "srv-02", d.Target)
				assert.NotEmpty(t, d.Reason)
			}
		})
	}
}

func TestAlgorithm_AllOverloaded_NoEligibleServer(t *testing.T) {
	for _, name := range Algorithms() {
		t.Run(name, func(t *testing.T) {
			pool := views(0, 0)
			pool[0], pool[1] = overloaded(pool[0]), overloaded(pool[1])
			alg := newTestAlgorithm(t, name, 1)

			_, err := alg.Select(pool, &Request{})
			assert.ErrorIs(t, err, ErrNoEligibleServer)
		})
	}
}

func TestAlgorithm_EmptyPool_NoEligibleServer(t *testing.T) {
	for _, name := range Algorithms() {
		t.Run(name, func(t *testing.T) {
			alg := newTestAlgorithm(t, name, 1)
			_, err := alg.Select(nil, &Request{})
			assert.ErrorIs(t, err, ErrNoEligibleServer)
		})
	}
}

func TestAlgorithm_SingleCandidate_TriviallySelected(t *testing.T) {
	for _, name := range Algorithms() {
		t.Run(name, func(t *testing.T) {
			// GIVEN three servers of which only the last is eligible
			pool := views(5, 1, 9)
			pool[0], pool[1] = overloaded(pool[0]), overloaded(pool[1])
			alg := newTestAlgorithm(t, name, 3)

			for i := 0; i < 5; i++ {
				d, err := alg.Select(pool, &Request{})
				require.NoError(t, err)
				assert.Equal(t, "srv-03", d.Target)
			}
		})
	}
}

func TestRoundRobin_CyclicOrder(t *testing.T) {
	// GIVEN three healthy servers
	pool := views(0, 0, 0)
	alg := newTestAlgorithm(t, AlgorithmRoundRobin, 0)

	// WHEN six requests are dispatched
	var got []int
	for i := 0; i < 6; i++ {
		d, err := alg.Select(pool, &Request{ID: int64(i), UserType: UserStandard})
		require.NoError(t, err)
		v, _ := findView(pool, d.Target)
		got = append(got, v.Index)
	}

	// THEN servers are used in exact cyclic order
	assert.Equal(t, []int{0, 1, 2, 0, 1, 2}, got)
}

func TestRoundRobin_SkipsIneligibleWithoutExtraSteps(t *testing.T) {
	// GIVEN server 1 is overloaded
	pool := views(0, 0, 0)
	pool[1] = overloaded(pool[1])
	alg := newTestAlgorithm(t, AlgorithmRoundRobin, 0)

	var got []string
	for i := 0; i < 4; i++ {
		d, err := alg.Select(pool, &Request{})
		require.NoError(t, err)
		got = append(got, d.Target)
	}

	// THEN the cursor steps over srv-02 and keeps the cycle of the remaining two
	assert.Equal(t, []string{"srv-01", "srv-03", "srv-01", "srv-03"}, got)
}

func TestRoundRobin_ReasonCarriesPosition(t *testing.T) {
	alg := newTestAlgorithm(t, AlgorithmRoundRobin, 0)
	pool := views(0, 0, 0, 0)
	for i := 0; i < 3; i++ {
		_, _ = alg.Select(pool, &Request{})
	}
	d, err := alg.Select(pool, &Request{})
	require.NoError(t, err)
	assert.Equal(t, "round-robin[3]", d.Reason)
}

func TestLeastConnections_PicksMinimum(t *testing.T) {
	// GIVEN connections [3,1,2]
	pool := views(3, 1, 2)
	alg := newTestAlgorithm(t, AlgorithmLeastConnections, 0)

	// WHEN dispatching repeatedly without changing counts
	for i := 0; i < 5; i++ {
		d, err := alg.Select(pool, &Request{})

		// THEN index 1 is always selected
		require.NoError(t, err)
		assert.Equal(t, "srv-02", d.Target)
		assert.Equal(t, "least-connections (conn=1)", d.Reason)
	}
}

func TestLeastConnections_TieBrokenByLowestIndex(t *testing.T) {
	pool := views(2, 1, 1)
	d, err := newTestAlgorithm(t, AlgorithmLeastConnections, 0).Select(pool, &Request{})
	require.NoError(t, err)
	assert.Equal(t, "srv-02", d.Target)
}

func TestWeightedRoundRobin_ExactWindow(t *testing.T) {
	// GIVEN weights [1,1,2]
	pool := views(0, 0, 0)
	pool[0].Weight, pool[1].Weight, pool[2].Weight = 1, 1, 2
	alg := newTestAlgorithm(t, AlgorithmWeightedRoundRobin, 0)

	// WHEN selecting one full window
	var got []string
	for i := 0; i < 4; i++ {
		d, err := alg.Select(pool, &Request{})
		require.NoError(t, err)
		got = append(got, d.Target)
	}

	// THEN each server appears weight times
	assert.Equal(t, []string{"srv-01", "srv-02", "srv-03", "srv-03"}, got)
}

func TestWeightedRoundRobin_ProportionalOver400(t *testing.T) {
	pool := views(0, 0, 0)
	pool[0].Weight, pool[1].Weight, pool[2].Weight = 1, 1, 2
	alg := newTestAlgorithm(t, AlgorithmWeightedRoundRobin, 0)

	counts := map[string]int{}
	for i := 0; i < 400; i++ {
		d, err := alg.Select(pool, &Request{})
		require.NoError(t, err)
		counts[d.Target]++
	}

	expected := map[string]float64{"srv-01": 0.25, "srv-02": 0.25, "srv-03": 0.5}
	for id, share := range expected {
		assert.InDelta(t, share, float64(counts[id])/400, 0.05, "server %s", id)
	}
}

func TestWeightedRoundRobin_DefaultsToTypeWeights(t *testing.T) {
	// GIVEN a standard (w2) and a high-performance (w4) server
	s1 := NewServer("srv-01", 0, ServerStandard, 0, DefaultHealthThresholds())
	s2 := NewServer("srv-02", 1, ServerHighPerformance, 0, DefaultHealthThresholds())
	pool := []ServerView{s1.View(), s2.View()}
	alg := newTestAlgorithm(t, AlgorithmWeightedRoundRobin, 0)

	counts := map[string]int{}
	for i := 0; i < 60; i++ {
		d, err := alg.Select(pool, &Request{})
		require.NoError(t, err)
		counts[d.Target]++
	}

	// THEN the 2:4 weights yield a 1:2 split
	assert.Equal(t, 20, counts["srv-01"])
	assert.Equal(t, 40, counts["srv-02"])
}

func TestLeastResponseTime_IdleServersUseBaseResponse(t *testing.T) {
	// GIVEN a standard server with avg 10 ticks and an idle high-performance server (base 3)
	s1 := NewServer("srv-01", 0, ServerStandard, 0, DefaultHealthThresholds())
	s1.observe(10)
	s2 := NewServer("srv-02", 1, ServerHighPerformance, 0, DefaultHealthThresholds())
	pool := []ServerView{s1.View(), s2.View()}

	d, err := newTestAlgorithm(t, AlgorithmLeastResponseTime, 0).Select(pool, &Request{})

	// THEN the idle server wins on its base response time
	require.NoError(t, err)
	assert.Equal(t, "srv-02", d.Target)
	assert.Equal(t, 3.0, d.Scores["srv-02"])
	assert.Equal(t, 10.0, d.Scores["srv-01"])
}

func TestLeastResponseTime_UsesRollingAverage(t *testing.T) {
	s1 := NewServer("srv-01", 0, ServerStandard, 0, DefaultHealthThresholds())
	s1.observe(2)
	s1.observe(4)
	s2 := NewServer("srv-02", 1, ServerStandard, 0, DefaultHealthThresholds())
	s2.observe(5)
	pool := []ServerView{s1.View(), s2.View()}

	d, err := newTestAlgorithm(t, AlgorithmLeastResponseTime, 0).Select(pool, &Request{})
	require.NoError(t, err)
	assert.Equal(t, "srv-01", d.Target)
}

func TestResourceBased_PicksLowestScore(t *testing.T) {
	// GIVEN srv-01 busy on cpu, srv-02 idle, srv-03 busy on memory
	pool := views(0, 0, 0)
	pool[0].CPUUsed = 2
	pool[2].MemUsed = 4

	d, err := newTestAlgorithm(t, AlgorithmResourceBased, 0).Select(pool, &Request{})
	require.NoError(t, err)
	assert.Equal(t, "srv-02", d.Target)
	assert.Len(t, d.Scores, 3)
	assert.InDelta(t, 0.2, d.Scores["srv-01"], 1e-9)
}

func TestResourceBased_TieBrokenByLowestIndex(t *testing.T) {
	pool := views(1, 1, 1)
	d, err := newTestAlgorithm(t, AlgorithmResourceBased, 0).Select(pool, &Request{})
	require.NoError(t, err)
	assert.Equal(t, "srv-01", d.Target)
}

func TestRandom_DeterministicForSeed(t *testing.T) {
	pool := views(0, 0, 0, 0)
	a := newTestAlgorithm(t, AlgorithmRandom, 7)
	b := newTestAlgorithm(t, AlgorithmRandom, 7)
	for i := 0; i < 20; i++ {
		da, _ := a.Select(pool, &Request{})
		db, _ := b.Select(pool, &Request{})
		assert.Equal(t, da.Target, db.Target)
	}
}

func TestRandom_CoversAllCandidates(t *testing.T) {
	pool := views(0, 0, 0)
	alg := newTestAlgorithm(t, AlgorithmRandom, 11)
	seen := map[string]bool{}
	for i := 0; i < 200; i++ {
		d, err := alg.Select(pool, &Request{})
		require.NoError(t, err)
		seen[d.Target] = true
	}
	assert.Len(t, seen, 3)
}

func TestPowerOfTwo_NeverPicksStrictlyWorse(t *testing.T) {
	// GIVEN a pool with varied connection counts
	pool := views(7, 2, 5, 2, 9, 0)
	alg := newTestAlgorithm(t, AlgorithmPowerOfTwo, 99)

	for i := 0; i < 500; i++ {
		d, err := alg.Select(pool, &Request{})
		require.NoError(t, err)
		require.Len(t, d.Sampled, 2)
		assert.NotEqual(t, d.Sampled[0], d.Sampled[1], "samples must be distinct")

		a, _ := findView(pool, d.Sampled[0])
		b, _ := findView(pool, d.Sampled[1])
		chosen, _ := findView(pool, d.Target)

		// THEN the chosen server never has strictly more connections than both samples
		assert.Contains(t, d.Sampled, d.Target)
		assert.LessOrEqual(t, chosen.ActiveConnections, max(a.ActiveConnections, b.ActiveConnections))
		assert.Equal(t, min(a.ActiveConnections, b.ActiveConnections), chosen.ActiveConnections)
	}
}

func TestPowerOfTwo_TieFallsBackToLoadScore(t *testing.T) {
	// GIVEN two servers with equal connections, srv-01 under more cpu load
	pool := views(1, 1)
	pool[0].CPUUsed = 3
	alg := newTestAlgorithm(t, AlgorithmPowerOfTwo, 5)

	for i := 0; i < 10; i++ {
		d, err := alg.Select(pool, &Request{})
		require.NoError(t, err)
		assert.Equal(t, "srv-02", d.Target)
	}
}

func TestParseAlgorithm(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"round-robin", AlgorithmRoundRobin},
		{"1", AlgorithmRoundRobin},
		{"7", AlgorithmPowerOfTwo},
		{"lc", AlgorithmLeastConnections},
		{"WRR", AlgorithmWeightedRoundRobin},
		{"least_response_time", AlgorithmLeastResponseTime},
		{"resource", AlgorithmResourceBased},
		{" random ", AlgorithmRandom},
		{"p2c", AlgorithmPowerOfTwo},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseAlgorithm(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseAlgorithm_Invalid(t *testing.T) {
	for _, in := range []string{"", "0", "8", "-1", "fastest", "round robin"} {
		_, err := ParseAlgorithm(in)
		assert.ErrorIs(t, err, ErrInvalidAlgorithm, "selector %q", in)
		assert.False(t, IsValidAlgorithm(in))
	}
}

func TestNewAlgorithm_NamesMatch(t *testing.T) {
	for i, name := range Algorithms() {
		alg := newTestAlgorithm(t, fmt.Sprint(i+1), 0)
		assert.Equal(t, name, alg.Name())
	}
}

func TestNewAlgorithm_Invalid(t *testing.T) {
	alg, err := NewAlgorithm("bogus", nil, DefaultScoreWeights())
	assert.Nil(t, alg)
	assert.ErrorIs(t, err, ErrInvalidAlgorithm)
}

func TestNewAlgorithm_RandomWithoutRNG_Panics(t *testing.T) {
	assert.Panics(t, func() { _, _ = NewAlgorithm(AlgorithmRandom, nil, DefaultScoreWeights()) })
}

func findView(vs []ServerView, id string) (ServerView, bool) {
	for _, v := range vs {
		if v.ID == id {
			return v, true
		}
	}
	return ServerView{}, false
}
