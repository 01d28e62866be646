package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/lb-sim/lb-sim/api"
	"github.com/lb-sim/lb-sim/sim/cluster"
)

// ServeSettings configures the HTTP server. Values come from the environment,
// optionally seeded from a dotenv file; variables already set take precedence.
type ServeSettings struct {
	Addr         string        `env:"LBSIM_ADDR" envDefault:":8080"`
	TickInterval time.Duration `env:"LBSIM_TICK_INTERVAL" envDefault:"100ms"`
	ConfigPath   string        `env:"LBSIM_CONFIG"`
	Preset       string        `env:"LBSIM_PRESET"`
	LogLevel     string        `env:"LBSIM_LOG_LEVEL" envDefault:"info"`
	AutoStart    bool          `env:"LBSIM_AUTOSTART" envDefault:"false"`
	AccessLog    bool          `env:"LBSIM_ACCESS_LOG" envDefault:"false"`
}

var (
	envFile   string // dotenv file read before parsing the environment
	serveAddr string // overrides LBSIM_ADDR
)

// serveCmd runs the simulation continuously behind the HTTP control API
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve a live simulation over HTTP with Prometheus metrics",
	Run: func(cmd *cobra.Command, args []string) {
		settings, err := loadServeSettings(envFile)
		if err != nil {
			logrus.Fatalf("Loading settings: %v", err)
		}
		if cmd.Flags().Changed("addr") {
			settings.Addr = serveAddr
		}
		setLogLevel(settings.LogLevel)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		if err := serve(ctx, settings); err != nil {
			logrus.Fatalf("Server failed: %v", err)
		}
	},
}

// loadServeSettings reads path (if it exists) into the environment and parses ServeSettings.
func loadServeSettings(path string) (ServeSettings, error) {
	if path != "" {
		if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return ServeSettings{}, fmt.Errorf("reading %s: %w", path, err)
		}
	}
	var s ServeSettings
	if err := env.Parse(&s); err != nil {
		return ServeSettings{}, err
	}
	if s.TickInterval <= 0 {
		return ServeSettings{}, fmt.Errorf("LBSIM_TICK_INTERVAL must be positive, got %s", s.TickInterval)
	}
	if s.ConfigPath != "" && s.Preset != "" {
		return ServeSettings{}, errors.New("LBSIM_CONFIG and LBSIM_PRESET are mutually exclusive")
	}
	return s, nil
}

// serverConfig resolves the simulation config named by the settings.
func serverConfig(s ServeSettings) (cluster.Config, error) {
	switch {
	case s.ConfigPath != "":
		return cluster.LoadConfig(s.ConfigPath)
	case s.Preset != "":
		return LoadPreset(s.Preset)
	default:
		return cluster.DefaultConfig(), nil
	}
}

// serve blocks until ctx is cancelled or the listener fails.
func serve(ctx context.Context, s ServeSettings) error {
	cfg, err := serverConfig(s)
	if err != nil {
		return err
	}
	simulator, err := cluster.NewSimulator(cfg)
	if err != nil {
		return err
	}
	if s.AutoStart {
		if err := simulator.Start(); err != nil {
			return err
		}
	}
	runner := cluster.NewRunner(simulator, s.TickInterval)
	app, err := api.NewApp(runner, api.Options{AccessLog: s.AccessLog})
	if err != nil {
		return err
	}

	go func() {
		if err := runner.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logrus.Errorf("runner stopped: %v", err)
		}
	}()
	go func() {
		<-ctx.Done()
		logrus.Info("shutting down")
		if err := app.ShutdownWithTimeout(5 * time.Second); err != nil {
			logrus.Errorf("shutdown: %v", err)
		}
	}()

	logrus.Infof("listening on %s (tick interval %s, algorithm %s, autostart %v)",
		s.Addr, s.TickInterval, cfg.Algorithm, s.AutoStart)
	return app.Listen(s.Addr)
}

func init() {
	serveCmd.Flags().StringVar(&envFile, "env-file", ".env", "Dotenv file loaded before reading LBSIM_* variables")
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8080", "Listen address, overrides LBSIM_ADDR")
	rootCmd.AddCommand(serveCmd)
}
