// Package api exposes a running simulation over HTTP: control operations,
// snapshot export and Prometheus metrics.
package api

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/lb-sim/lb-sim/sim/cluster"
	"github.com/lb-sim/lb-sim/sim/telemetry"
)

// Version is reported by /health.
var Version = "dev"

// Options tune the HTTP surface.
type Options struct {
	AccessLog bool                 // log every request via the fiber logger middleware
	Registry  *prometheus.Registry // nil creates a private registry
}

// NewApp builds the fiber application serving runner.
func NewApp(runner *cluster.Runner, opts Options) (*fiber.App, error) {
	reg := opts.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	if err := telemetry.Register(reg, telemetry.NewCollector(runner.Snapshot)); err != nil {
		return nil, err
	}
	httpMetrics, err := telemetry.NewHTTPMetrics(reg)
	if err != nil {
		return nil, err
	}

	app := fiber.New(fiber.Config{
		AppName:               "lbsim",
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler,
	})
	app.Use(recover.New())
	if opts.AccessLog {
		app.Use(logger.New())
	}
	app.Use(cors.New())
	app.Use(instrument(httpMetrics))

	h := &handlers{runner: runner, started: time.Now()}
	setupRoutes(app, h, httpMetrics)
	return app, nil
}

func setupRoutes(app *fiber.App, h *handlers, m *telemetry.HTTPMetrics) {
	app.Get("/health", h.health)
	app.Get("/snapshot", h.snapshot)
	app.Get("/metrics", metricsHandler(m))

	app.Post("/start", h.control(func(s *cluster.Simulator) error { return s.Start() }))
	app.Post("/pause", h.control(func(s *cluster.Simulator) error { return s.Pause() }))
	app.Post("/stop", h.control(func(s *cluster.Simulator) error { return s.Stop() }))
	app.Post("/reset", h.control(func(s *cluster.Simulator) error { s.Reset(); return nil }))
	app.Post("/drain", h.drain)
	app.Post("/spawn/:type", h.spawn)
	app.Post("/burst/:n", h.burst)
	app.Post("/algorithm/:selector", h.algorithm)
	app.Post("/pattern/:name", h.pattern)
	app.Post("/rate/:rate", h.rate)
}
