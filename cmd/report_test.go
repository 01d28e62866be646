package cmd

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/lb-sim/lb-sim/sim"
	"github.com/lb-sim/lb-sim/sim/cluster"
	"github.com/lb-sim/lb-sim/sim/trace"
)

func reportSnapshot() sim.Snapshot {
	return sim.Snapshot{
		RunID:     "run-1",
		Seed:      3,
		Tick:      40,
		State:     string(cluster.StateStopped),
		Algorithm: sim.AlgorithmLeastConnections,
		Pattern:   "steady",
		Totals:    sim.Totals{Spawned: 10, Completed: 7, Failed: 1, Rejected: 2},
		Servers: []sim.ServerRecord{
			{ID: "srv-01", Type: sim.ServerStandard, Health: sim.HealthHealthy, MaxConnections: 50, TotalServed: 5, OverloadedTicks: 3, PeakConnections: 4},
			{ID: "srv-02", Type: sim.ServerHighPerformance, Health: sim.HealthHealthy, MaxConnections: 100, TotalServed: 3, PeakConnections: 9},
		},
		Algorithms: []sim.AlgorithmSummary{{Name: sim.AlgorithmLeastConnections, Routed: 10, Completed: 7, Failed: 1, Rejected: 2}},
		Attacks:    []sim.AttackRecord{{ID: 1, Kind: "dos", Target: "srv-01", Intensity: 2, FirstTick: 5, LastTick: 9, Requests: 4}},
		Trace:      &trace.TraceSummary{TotalDecisions: 10, AcceptedCount: 8, RejectedCount: 2},
	}
}

func TestWriteReport_Text(t *testing.T) {
	var buf bytes.Buffer
	if err := writeReport(&buf, reportSnapshot(), "text"); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{
		"=== Simulation Report ===",
		"spawned 10  completed 7  failed 1  rejected 2",
		"srv-01", "srv-02", "high-performance",
		"ATTACK", "dos", "5-9",
		"trace: 10 decisions",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("text report missing %q\n%s", want, out)
		}
	}
}

func TestWriteReport_TextOmitsEmptySections(t *testing.T) {
	snap := reportSnapshot()
	snap.Attacks = nil
	snap.Trace = nil
	var buf bytes.Buffer
	if err := writeReport(&buf, snap, "text"); err != nil {
		t.Fatal(err)
	}
	if strings.Contains(buf.String(), "ATTACK") || strings.Contains(buf.String(), "trace:") {
		t.Errorf("unexpected attack or trace section\n%s", buf.String())
	}
}

func TestWriteReport_JSON(t *testing.T) {
	var buf bytes.Buffer
	if err := writeReport(&buf, reportSnapshot(), "json"); err != nil {
		t.Fatal(err)
	}
	var got sim.Snapshot
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if got.RunID != "run-1" || got.Totals.Rejected != 2 || len(got.Servers) != 2 {
		t.Errorf("unexpected decoded snapshot: %+v", got)
	}
}

func TestComparisonRow_AggregatesServers(t *testing.T) {
	row := comparisonRow("x", reportSnapshot())
	if row.OverloadedTicks != 3 {
		t.Errorf("overloaded ticks = %d, want 3", row.OverloadedTicks)
	}
	if row.PeakConnections != 9 {
		t.Errorf("peak connections = %d, want 9", row.PeakConnections)
	}
	if row.Spawned != 10 || row.Completed != 7 {
		t.Errorf("totals not copied: %+v", row)
	}
}

func TestWriteComparison_Text(t *testing.T) {
	rows := []ComparisonRow{{Algorithm: "round-robin", Spawned: 5}, {Algorithm: "random", Spawned: 5}}
	var buf bytes.Buffer
	if err := writeComparison(&buf, rows, "text"); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("lines = %d, want header + 2 rows\n%s", len(lines), buf.String())
	}
	if !strings.HasPrefix(lines[1], "round-robin") {
		t.Errorf("row 1 = %q", lines[1])
	}
}
