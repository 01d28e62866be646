package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/lb-sim/lb-sim/sim"
	"github.com/lb-sim/lb-sim/sim/cluster"
)

// maxDrainTicks bounds the drain that follows a batch run.
const maxDrainTicks = 100000

var (
	// CLI flags for the batch run
	configPath      string  // YAML config layered onto the defaults
	presetName      string  // built-in scenario, exclusive with configPath
	seed            int64   // Seed for arrivals, demands and attacks
	ticks           int64   // Ticks to simulate
	algorithm       string  // Dispatch algorithm name, alias or 1-based index
	pattern         string  // Traffic pattern
	baseRate        float64 // Expected arrivals per tick
	naughtyProb     float64 // Per-tick chance a naughty campaign begins
	attackDuration  int64   // Ticks a campaign keeps emitting
	traceLevel      string  // Decision trace level
	counterfactualK int     // Alternatives ranked per traced decision
	drain           bool    // Finish in-flight requests after the run
	compare         bool    // Run every algorithm on the same seed
	includeRequests bool    // Keep the request log in JSON output
	logLevel        string  // Log verbosity level
	outputFormat    string  // json or text
)

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:   "lbsim",
	Short: "Tick-driven load balancer dispatch simulator",
}

// runCmd executes one batch simulation using parameters from CLI flags
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a simulation for a fixed number of ticks and print the report",
	Run: func(cmd *cobra.Command, args []string) {
		setLogLevel(logLevel)
		if outputFormat != "json" && outputFormat != "text" {
			logrus.Fatalf("Invalid output format %q; valid: json, text", outputFormat)
		}
		if ticks <= 0 {
			logrus.Fatalf("--ticks must be positive, got %d", ticks)
		}

		cfg, err := buildConfig(cmd.Flags().Changed)
		if err != nil {
			logrus.Fatalf("%v", err)
		}

		if compare {
			rows, err := compareAlgorithms(cfg, ticks, drain)
			if err != nil {
				logrus.Fatalf("Comparison failed: %v", err)
			}
			if err := writeComparison(os.Stdout, rows, outputFormat); err != nil {
				logrus.Fatalf("Writing report: %v", err)
			}
			return
		}

		logrus.Infof("Starting simulation: seed=%d ticks=%d algorithm=%s pattern=%s",
			cfg.Seed, ticks, cfg.Algorithm, cfg.Traffic.Pattern)
		snap, err := runSimulation(cfg, ticks, drain)
		if err != nil {
			logrus.Fatalf("Simulation failed: %v", err)
		}
		if !includeRequests {
			snap.Requests = nil
		}
		if err := writeReport(os.Stdout, snap, outputFormat); err != nil {
			logrus.Fatalf("Writing report: %v", err)
		}
		logrus.Info("Simulation complete.")
	},
}

// algorithmsCmd lists the dispatch algorithms and their selectors
var algorithmsCmd = &cobra.Command{
	Use:   "algorithms",
	Short: "List dispatch algorithms with their index and aliases",
	Run: func(cmd *cobra.Command, args []string) {
		listAlgorithms(os.Stdout)
	},
}

// presetsCmd lists the built-in scenarios
var presetsCmd = &cobra.Command{
	Use:   "presets",
	Short: "List built-in scenarios usable with --preset",
	Run: func(cmd *cobra.Command, args []string) {
		for _, p := range Presets() {
			fmt.Fprintf(os.Stdout, "%-16s %s\n", p.Name, p.Description)
		}
	},
}

func setLogLevel(name string) {
	level, err := logrus.ParseLevel(name)
	if err != nil {
		logrus.Fatalf("Invalid log level: %s", name)
	}
	logrus.SetLevel(level)
}

// buildConfig resolves the base config (file, preset or defaults) and applies
// the flags the user set explicitly. changed reports whether a flag was set.
func buildConfig(changed func(name string) bool) (cluster.Config, error) {
	var (
		cfg cluster.Config
		err error
	)
	switch {
	case configPath != "" && presetName != "":
		return cluster.Config{}, fmt.Errorf("--config and --preset are mutually exclusive: %w", sim.ErrInvalidConfiguration)
	case configPath != "":
		cfg, err = cluster.LoadConfig(configPath)
	case presetName != "":
		cfg, err = LoadPreset(presetName)
	default:
		cfg = cluster.DefaultConfig()
	}
	if err != nil {
		return cluster.Config{}, err
	}

	if changed("seed") {
		cfg.Seed = seed
	}
	if changed("algorithm") {
		cfg.Algorithm = algorithm
	}
	if changed("pattern") {
		cfg.Traffic.Pattern = pattern
	}
	if changed("rate") {
		cfg.Traffic.BaseRate = baseRate
	}
	if changed("naughty-prob") {
		cfg.Naughty.Probability = naughtyProb
	}
	if changed("attack-duration") {
		cfg.Naughty.AttackDuration = attackDuration
	}
	if changed("trace") {
		cfg.TraceLevel = traceLevel
	}
	if changed("counterfactual-k") {
		cfg.Counterfactual = counterfactualK
	}

	if err := cfg.Validate(); err != nil {
		return cluster.Config{}, err
	}
	return cfg, nil
}

// runSimulation executes one run of n ticks and returns its final snapshot.
// A horizon in cfg may stop the run earlier.
func runSimulation(cfg cluster.Config, n int64, drainAfter bool) (sim.Snapshot, error) {
	s, err := cluster.NewSimulator(cfg)
	if err != nil {
		return sim.Snapshot{}, err
	}
	if err := s.Start(); err != nil {
		return sim.Snapshot{}, err
	}
	executed := s.Run(n)
	logrus.Debugf("executed %d ticks", executed)
	if s.State() != cluster.StateStopped {
		if err := s.Stop(); err != nil {
			return sim.Snapshot{}, err
		}
	}
	if drainAfter {
		steps := s.Drain(maxDrainTicks)
		logrus.Debugf("drain finished after %d ticks", steps)
	}
	return s.Snapshot(), nil
}

func listAlgorithms(w io.Writer) {
	for i, name := range sim.Algorithms() {
		aliases := sim.Aliases(name)
		if len(aliases) == 0 {
			fmt.Fprintf(w, "%d  %s\n", i+1, name)
			continue
		}
		fmt.Fprintf(w, "%d  %s (%s)\n", i+1, name, strings.Join(aliases, ", "))
	}
}

// Execute runs the CLI root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// init sets up CLI flags and subcommands
func init() {
	runCmd.Flags().StringVar(&configPath, "config", "", "YAML config file layered onto the defaults")
	runCmd.Flags().StringVar(&presetName, "preset", "", "Built-in scenario (see 'lbsim presets')")
	runCmd.Flags().Int64Var(&seed, "seed", 42, "Seed for arrivals, demands and attacks")
	runCmd.Flags().Int64Var(&ticks, "ticks", 1000, "Number of ticks to simulate")
	runCmd.Flags().StringVar(&algorithm, "algorithm", sim.AlgorithmRoundRobin, "Dispatch algorithm: name, alias or 1-based index")
	runCmd.Flags().StringVar(&pattern, "pattern", "steady", "Traffic pattern (steady, wave, spike, random)")
	runCmd.Flags().Float64Var(&baseRate, "rate", 2.0, "Expected arrivals per tick")
	runCmd.Flags().Float64Var(&naughtyProb, "naughty-prob", 0.01, "Per-tick chance a naughty campaign begins")
	runCmd.Flags().Int64Var(&attackDuration, "attack-duration", 20, "Ticks a naughty campaign keeps emitting")
	runCmd.Flags().StringVar(&traceLevel, "trace", "none", "Decision trace level (none, decisions)")
	runCmd.Flags().IntVar(&counterfactualK, "counterfactual-k", 0, "Alternatives ranked per traced decision")
	runCmd.Flags().BoolVar(&drain, "drain", true, "Finish in-flight requests after the last tick")
	runCmd.Flags().BoolVar(&compare, "compare", false, "Run every algorithm on the same seed and print a comparison")
	runCmd.Flags().BoolVar(&includeRequests, "requests", false, "Include the request log in JSON output")
	runCmd.Flags().StringVar(&logLevel, "log", "warn", "Log level (trace, debug, info, warn, error, fatal, panic)")
	runCmd.Flags().StringVar(&outputFormat, "output", "text", "Report format (json, text)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(algorithmsCmd)
	rootCmd.AddCommand(presetsCmd)
}
