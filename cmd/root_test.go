package cmd

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/lb-sim/lb-sim/sim"
	"github.com/lb-sim/lb-sim/sim/cluster"
)

// withFlags restores the package-level flag variables after the test.
func withFlags(t *testing.T) {
	t.Helper()
	saved := struct {
		configPath, presetName, algorithm, pattern, traceLevel string
		seed, attackDuration                                   int64
		baseRate, naughtyProb                                  float64
		counterfactualK                                        int
	}{configPath, presetName, algorithm, pattern, traceLevel, seed, attackDuration, baseRate, naughtyProb, counterfactualK}
	t.Cleanup(func() {
		configPath, presetName, algorithm, pattern, traceLevel = saved.configPath, saved.presetName, saved.algorithm, saved.pattern, saved.traceLevel
		seed, attackDuration = saved.seed, saved.attackDuration
		baseRate, naughtyProb = saved.baseRate, saved.naughtyProb
		counterfactualK = saved.counterfactualK
	})
	configPath, presetName = "", ""
}

func changedFlags(names ...string) func(string) bool {
	set := map[string]bool{}
	for _, n := range names {
		set[n] = true
	}
	return func(name string) bool { return set[name] }
}

func TestBuildConfig_UnchangedFlagsKeepPresetValues(t *testing.T) {
	withFlags(t)
	// GIVEN a preset and flag variables holding values the user did not set
	presetName = "flash-crowd"
	seed = 999
	algorithm = "random"

	// WHEN building the config with no flags marked changed
	cfg, err := buildConfig(changedFlags())
	if err != nil {
		t.Fatal(err)
	}

	// THEN the preset values survive
	if cfg.Seed != 7 {
		t.Errorf("seed = %d, want preset seed 7", cfg.Seed)
	}
	if cfg.Algorithm != sim.AlgorithmLeastConnections {
		t.Errorf("algorithm = %q, want %q", cfg.Algorithm, sim.AlgorithmLeastConnections)
	}
}

func TestBuildConfig_ChangedFlagsOverride(t *testing.T) {
	withFlags(t)
	presetName = "baseline"
	seed = 100
	algorithm = "3"
	pattern = "wave"
	baseRate = 5
	naughtyProb = 0.2
	attackDuration = 7
	traceLevel = "decisions"
	counterfactualK = 2

	cfg, err := buildConfig(changedFlags("seed", "algorithm", "pattern", "rate", "naughty-prob", "attack-duration", "trace", "counterfactual-k"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Seed != 100 || cfg.Algorithm != "3" || cfg.Traffic.Pattern != "wave" || cfg.Traffic.BaseRate != 5 {
		t.Errorf("overrides not applied: seed=%d algorithm=%q pattern=%q rate=%v",
			cfg.Seed, cfg.Algorithm, cfg.Traffic.Pattern, cfg.Traffic.BaseRate)
	}
	if cfg.Naughty.Probability != 0.2 || cfg.Naughty.AttackDuration != 7 {
		t.Errorf("naughty overrides not applied: %+v", cfg.Naughty)
	}
	if cfg.TraceLevel != "decisions" || cfg.Counterfactual != 2 {
		t.Errorf("trace overrides not applied: level=%q k=%d", cfg.TraceLevel, cfg.Counterfactual)
	}
}

func TestBuildConfig_ConfigFile(t *testing.T) {
	withFlags(t)
	path := filepath.Join(t.TempDir(), "lbsim.yaml")
	if err := os.WriteFile(path, []byte("seed: 5\nalgorithm: p2c\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	configPath = path

	cfg, err := buildConfig(changedFlags())
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Seed != 5 || cfg.Algorithm != "p2c" {
		t.Errorf("got seed=%d algorithm=%q, want 5 p2c", cfg.Seed, cfg.Algorithm)
	}
}

func TestBuildConfig_Errors(t *testing.T) {
	withFlags(t)

	// GIVEN both a config file and a preset
	configPath, presetName = "x.yaml", "baseline"
	_, err := buildConfig(changedFlags())
	// THEN they are rejected as mutually exclusive
	if !errors.Is(err, sim.ErrInvalidConfiguration) {
		t.Errorf("expected ErrInvalidConfiguration, got %v", err)
	}

	// GIVEN an invalid algorithm override
	configPath, presetName = "", ""
	algorithm = "9"
	_, err = buildConfig(changedFlags("algorithm"))
	if !errors.Is(err, sim.ErrInvalidAlgorithm) {
		t.Errorf("expected ErrInvalidAlgorithm, got %v", err)
	}

	// GIVEN an unknown preset
	presetName = "nope"
	if _, err := buildConfig(changedFlags()); err == nil {
		t.Error("expected error for unknown preset")
	}
}

func TestRunSimulation_DrainsAndConserves(t *testing.T) {
	// GIVEN the default config
	cfg := cluster.DefaultConfig()

	// WHEN running 200 ticks and draining
	snap, err := runSimulation(cfg, 200, true)
	if err != nil {
		t.Fatal(err)
	}

	// THEN nothing is left in flight and every spawned request has an outcome
	tot := snap.Totals
	if tot.InFlight != 0 {
		t.Errorf("in flight = %d after drain, want 0", tot.InFlight)
	}
	if tot.Spawned == 0 {
		t.Fatal("expected traffic")
	}
	if tot.Spawned != tot.Completed+tot.Failed+tot.Rejected {
		t.Errorf("spawned %d != completed %d + failed %d + rejected %d",
			tot.Spawned, tot.Completed, tot.Failed, tot.Rejected)
	}
	if snap.State != string(cluster.StateStopped) {
		t.Errorf("state = %q, want stopped", snap.State)
	}
	if snap.Tick < 200 {
		t.Errorf("tick = %d, want >= 200", snap.Tick)
	}
}

func TestRunSimulation_HorizonStopsEarly(t *testing.T) {
	cfg := cluster.DefaultConfig()
	cfg.Horizon = 20

	snap, err := runSimulation(cfg, 500, false)
	if err != nil {
		t.Fatal(err)
	}
	if snap.Tick != 20 {
		t.Errorf("tick = %d, want horizon 20", snap.Tick)
	}
	if snap.State != string(cluster.StateStopped) {
		t.Errorf("state = %q, want stopped", snap.State)
	}
}

func TestCompareAlgorithms_SameTrafficEveryAlgorithm(t *testing.T) {
	// GIVEN one seed
	cfg := cluster.DefaultConfig()
	cfg.Seed = 11

	// WHEN comparing all algorithms
	rows, err := compareAlgorithms(cfg, 150, true)
	if err != nil {
		t.Fatal(err)
	}

	// THEN there is one row per algorithm, in index order, with identical arrivals
	names := sim.Algorithms()
	if len(rows) != len(names) {
		t.Fatalf("rows = %d, want %d", len(rows), len(names))
	}
	for i, r := range rows {
		if r.Algorithm != names[i] {
			t.Errorf("row %d algorithm = %q, want %q", i, r.Algorithm, names[i])
		}
		if r.Spawned != rows[0].Spawned {
			t.Errorf("%s spawned %d, want %d", r.Algorithm, r.Spawned, rows[0].Spawned)
		}
		if r.Spawned != r.Completed+r.Failed+r.Rejected {
			t.Errorf("%s does not conserve requests: %+v", r.Algorithm, r)
		}
	}
}

func TestListAlgorithms(t *testing.T) {
	var buf bytes.Buffer
	listAlgorithms(&buf)
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != len(sim.Algorithms()) {
		t.Fatalf("lines = %d, want %d", len(lines), len(sim.Algorithms()))
	}
	if lines[0] != "1  round-robin (rr)" {
		t.Errorf("first line = %q", lines[0])
	}
	if !strings.HasPrefix(lines[6], "7  power-of-two (") {
		t.Errorf("last line = %q", lines[6])
	}
}
