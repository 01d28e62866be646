package api

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/lb-sim/lb-sim/sim"
	"github.com/lb-sim/lb-sim/sim/telemetry"
)

// instrument records request counts and latency per route.
func instrument(m *telemetry.HTTPMetrics) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		status := c.Response().StatusCode()
		var fe *fiber.Error
		if errors.As(err, &fe) {
			status = fe.Code
		} else if err != nil {
			status = statusFor(err)
		}
		m.Observe(c.Method(), c.Route().Path, status, time.Since(start).Seconds())
		return err
	}
}

func metricsHandler(m *telemetry.HTTPMetrics) fiber.Handler {
	return adaptor.HTTPHandler(m.Handler())
}

// statusFor maps simulation errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, sim.ErrInvalidTransition):
		return fiber.StatusConflict
	case errors.Is(err, sim.ErrInvalidAlgorithm),
		errors.Is(err, sim.ErrInvalidPattern),
		errors.Is(err, sim.ErrInvalidUserType),
		errors.Is(err, sim.ErrInvalidConfiguration):
		return fiber.StatusBadRequest
	default:
		return fiber.StatusInternalServerError
	}
}

func errorHandler(c *fiber.Ctx, err error) error {
	code := statusFor(err)
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	return c.Status(code).JSON(fiber.Map{"error": err.Error()})
}
