// Package testutil provides shared test infrastructure for the simulator.
// It consolidates the conservation and capacity assertions used across
// the sim/cluster and sim/telemetry test packages.
package testutil

import (
	"math"
	"testing"

	"github.com/lb-sim/lb-sim/sim"
)

// AssertConserved checks that a drained snapshot accounts for every request:
// overall, per algorithm, and between the two.
func AssertConserved(t *testing.T, snap sim.Snapshot) {
	t.Helper()
	tot := snap.Totals
	if tot.InFlight != 0 {
		t.Errorf("in flight = %d, want 0", tot.InFlight)
	}
	if tot.Spawned != tot.Completed+tot.Failed+tot.Rejected {
		t.Errorf("overall: spawned %d != completed %d + failed %d + rejected %d",
			tot.Spawned, tot.Completed, tot.Failed, tot.Rejected)
	}
	var routed int64
	for _, a := range snap.Algorithms {
		if a.Routed != a.Completed+a.Failed+a.Rejected {
			t.Errorf("%s: routed %d != completed %d + failed %d + rejected %d",
				a.Name, a.Routed, a.Completed, a.Failed, a.Rejected)
		}
		routed += a.Routed
	}
	if routed != tot.Spawned {
		t.Errorf("routed across algorithms = %d, want spawned %d", routed, tot.Spawned)
	}
}

// AssertWithinCapacity checks that no server is negative or over capacity on
// any resource. Returns false if any check failed.
func AssertWithinCapacity(t *testing.T, views []sim.ServerView) bool {
	t.Helper()
	ok := true
	for _, v := range views {
		if v.ActiveConnections < 0 || v.ActiveConnections > v.MaxConnections {
			t.Errorf("%s: connections %d outside [0, %d]", v.ID, v.ActiveConnections, v.MaxConnections)
			ok = false
		}
		if v.CPUUsed < 0 || v.CPUUsed > v.CPUCapacity {
			t.Errorf("%s: cpu %v outside [0, %v]", v.ID, v.CPUUsed, v.CPUCapacity)
			ok = false
		}
		if v.MemUsed < 0 || v.MemUsed > v.MemCapacity {
			t.Errorf("%s: memory %v outside [0, %v]", v.ID, v.MemUsed, v.MemCapacity)
			ok = false
		}
	}
	return ok
}

// AssertFloat64Equal compares two float64 values with relative tolerance.
func AssertFloat64Equal(t *testing.T, name string, want, got, relTol float64) {
	t.Helper()
	if want == 0 && got == 0 {
		return
	}
	diff := math.Abs(want - got)
	maxVal := math.Max(math.Abs(want), math.Abs(got))
	if diff/maxVal > relTol {
		t.Errorf("%s: got %v, want %v (diff=%v, relDiff=%v)", name, got, want, diff, diff/maxVal)
	}
}
