package api

import (
	"fmt"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/lb-sim/lb-sim/sim"
	"github.com/lb-sim/lb-sim/sim/cluster"
)

const defaultDrainTicks = 10000

type handlers struct {
	runner  *cluster.Runner
	started time.Time
}

// StatusResponse is returned by every successful control operation.
type StatusResponse struct {
	RunID     string `json:"run_id"`
	State     string `json:"state"`
	Tick      int64  `json:"tick"`
	Algorithm string `json:"algorithm"`
	Pattern   string `json:"pattern"`
}

// HealthResponse is returned by /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Uptime  string `json:"uptime"`
	StatusResponse
}

func (h *handlers) status() StatusResponse {
	st := h.runner.Status()
	return StatusResponse{
		RunID:     st.RunID,
		State:     string(st.State),
		Tick:      st.Tick,
		Algorithm: st.Algorithm,
		Pattern:   st.Pattern,
	}
}

func (h *handlers) health(c *fiber.Ctx) error {
	return c.JSON(HealthResponse{
		Status:         "ok",
		Version:        Version,
		Uptime:         time.Since(h.started).Round(time.Second).String(),
		StatusResponse: h.status(),
	})
}

func (h *handlers) snapshot(c *fiber.Ctx) error {
	snap := h.runner.Snapshot()
	if !c.QueryBool("requests", true) {
		snap.Requests = nil
	}
	return c.JSON(snap)
}

// control wraps an operation that takes no parameters.
func (h *handlers) control(op func(*cluster.Simulator) error) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if err := h.runner.Do(op); err != nil {
			return err
		}
		return c.JSON(h.status())
	}
}

func (h *handlers) drain(c *fiber.Ctx) error {
	maxTicks := int64(c.QueryInt("max", defaultDrainTicks))
	if maxTicks < 0 {
		return fmt.Errorf("max must be non-negative, got %d: %w", maxTicks, sim.ErrInvalidConfiguration)
	}
	var ticks int64
	_ = h.runner.Do(func(s *cluster.Simulator) error {
		ticks = s.Drain(maxTicks)
		return nil
	})
	return c.JSON(fiber.Map{"drained_ticks": ticks, "status": h.status()})
}

func (h *handlers) spawn(c *fiber.Ctx) error {
	t, err := sim.ParseUserType(c.Params("type"))
	if err != nil {
		return err
	}
	if err := h.runner.Do(func(s *cluster.Simulator) error { return s.SpawnOne(t) }); err != nil {
		return err
	}
	return c.JSON(h.status())
}

func (h *handlers) burst(c *fiber.Ctx) error {
	n, err := strconv.Atoi(c.Params("n"))
	if err != nil {
		return fmt.Errorf("burst size %q is not an integer: %w", c.Params("n"), sim.ErrInvalidConfiguration)
	}
	if err := h.runner.Do(func(s *cluster.Simulator) error { return s.SpawnBurst(n) }); err != nil {
		return err
	}
	return c.JSON(h.status())
}

func (h *handlers) algorithm(c *fiber.Ctx) error {
	selector := c.Params("selector")
	if err := h.runner.Do(func(s *cluster.Simulator) error { return s.SetAlgorithm(selector) }); err != nil {
		return err
	}
	return c.JSON(h.status())
}

func (h *handlers) pattern(c *fiber.Ctx) error {
	name := c.Params("name")
	if err := h.runner.Do(func(s *cluster.Simulator) error { return s.SetTrafficPattern(name) }); err != nil {
		return err
	}
	return c.JSON(h.status())
}

func (h *handlers) rate(c *fiber.Ctx) error {
	rate, err := strconv.ParseFloat(c.Params("rate"), 64)
	if err != nil {
		return fmt.Errorf("rate %q is not a number: %w", c.Params("rate"), sim.ErrInvalidConfiguration)
	}
	if err := h.runner.Do(func(s *cluster.Simulator) error { return s.SetBaseRate(rate) }); err != nil {
		return err
	}
	return c.JSON(h.status())
}
