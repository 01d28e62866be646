// Defines the simulated backend server: type-specific capacity constants,
// live utilization, health derivation and lifetime aggregates.

package sim

import (
	"fmt"
	"math"

	"github.com/sirupsen/logrus"
)

// ServerType selects a capacity profile from ServerSpecs.
type ServerType string

const (
	ServerStandard        ServerType = "standard"
	ServerHighPerformance ServerType = "high-performance"
	ServerMemoryOptimized ServerType = "memory-optimized"
	ServerCPUOptimized    ServerType = "cpu-optimized"
)

// ServerSpec holds the capacity constants for one server type.
type ServerSpec struct {
	MaxConnections    int     // concurrent in-flight requests
	CPUCapacity       float64 // cpu units
	MemoryCapacity    float64 // memory units
	BaseResponseTicks int64   // fixed per-request overhead, also the LRT prior for idle servers
	Speed             float64 // work ticks are divided by this factor
	Weight            int     // default weighted-round-robin weight
}

// ServerSpecs maps every known ServerType to its capacity profile.
var ServerSpecs = map[ServerType]ServerSpec{
	ServerStandard:        {MaxConnections: 20, CPUCapacity: 4, MemoryCapacity: 8, BaseResponseTicks: 4, Speed: 1.0, Weight: 2},
	ServerHighPerformance: {MaxConnections: 40, CPUCapacity: 8, MemoryCapacity: 16, BaseResponseTicks: 3, Speed: 1.5, Weight: 4},
	ServerMemoryOptimized: {MaxConnections: 25, CPUCapacity: 4, MemoryCapacity: 32, BaseResponseTicks: 5, Speed: 0.9, Weight: 2},
	ServerCPUOptimized:    {MaxConnections: 30, CPUCapacity: 12, MemoryCapacity: 8, BaseResponseTicks: 3, Speed: 1.3, Weight: 3},
}

// serverTypeOrder is the canonical listing order for server types.
var serverTypeOrder = []ServerType{ServerStandard, ServerHighPerformance, ServerMemoryOptimized, ServerCPUOptimized}

// ServerTypes returns all server types in canonical order.
func ServerTypes() []ServerType {
	out := make([]ServerType, len(serverTypeOrder))
	copy(out, serverTypeOrder)
	return out
}

// ParseServerType resolves a server type name.
func ParseServerType(name string) (ServerType, error) {
	t := ServerType(name)
	if _, ok := ServerSpecs[t]; !ok {
		return "", fmt.Errorf("unknown server type %q: %w", name, ErrInvalidConfiguration)
	}
	return t, nil
}

// Health is derived from utilization; it is never stored.
type Health string

const (
	HealthHealthy    Health = "healthy"
	HealthDegraded   Health = "degraded"
	HealthOverloaded Health = "overloaded"
)

// HealthThresholds are utilization ratios in (0, 1].
type HealthThresholds struct {
	Degraded   float64 `yaml:"degraded"`
	Overloaded float64 `yaml:"overloaded"`
}

// DefaultHealthThresholds returns the 80% / 95% thresholds.
func DefaultHealthThresholds() HealthThresholds {
	return HealthThresholds{Degraded: 0.80, Overloaded: 0.95}
}

// Validate checks 0 < Degraded < Overloaded <= 1.
func (h HealthThresholds) Validate() error {
	if h.Degraded <= 0 || h.Overloaded > 1 || h.Degraded >= h.Overloaded {
		return fmt.Errorf("health thresholds must satisfy 0 < degraded < overloaded <= 1, got %.2f/%.2f: %w",
			h.Degraded, h.Overloaded, ErrInvalidConfiguration)
	}
	return nil
}

// Classify maps utilization ratios onto a Health value.
// Connection saturation alone is enough to be Overloaded.
func (h HealthThresholds) Classify(cpuRatio, memRatio, connRatio float64) Health {
	if cpuRatio >= h.Overloaded || memRatio >= h.Overloaded || connRatio >= 1 {
		return HealthOverloaded
	}
	if cpuRatio >= h.Degraded || memRatio >= h.Degraded || connRatio >= h.Degraded {
		return HealthDegraded
	}
	return HealthHealthy
}

// Demand is the resource footprint of one request.
type Demand struct {
	CPU       float64 `json:"cpu"`
	Memory    float64 `json:"memory"`
	WorkTicks int64   `json:"work_ticks"`
}

// Scale multiplies every component of the demand by factor.
// WorkTicks never drops below 1.
func (d Demand) Scale(factor float64) Demand {
	work := int64(math.Round(float64(d.WorkTicks) * factor))
	if work < 1 {
		work = 1
	}
	return Demand{CPU: d.CPU * factor, Memory: d.Memory * factor, WorkTicks: work}
}

// utilizationEpsilon absorbs float rounding from repeated add/subtract cycles.
const utilizationEpsilon = 1e-9

// Server is one simulated backend. Only ServerPool mutates it.
type Server struct {
	ID     string
	Index  int // position in the pool, used for deterministic tie-breaking
	Type   ServerType
	Spec   ServerSpec
	Weight int

	thresholds HealthThresholds

	// Live utilization
	ActiveConnections int
	CPUUsed           float64
	MemUsed           float64

	// Lifetime aggregates, retained across Reset
	TotalServed       int64
	TotalFailures     int64
	TotalRejections   int64
	ResponseTickSum   int64
	ResponseCount     int64
	LastResponseTicks int64
}

// NewServer creates an idle server of the given type.
// A non-positive weight selects the type's default weight.
func NewServer(id string, index int, t ServerType, weight int, thresholds HealthThresholds) *Server {
	spec, ok := ServerSpecs[t]
	if !ok {
		panic(fmt.Sprintf("NewServer: unknown server type %q", t))
	}
	if weight <= 0 {
		weight = spec.Weight
	}
	return &Server{ID: id, Index: index, Type: t, Spec: spec, Weight: weight, thresholds: thresholds}
}

func (s *Server) cpuRatio() float64 { return s.CPUUsed / s.Spec.CPUCapacity }
func (s *Server) memRatio() float64 { return s.MemUsed / s.Spec.MemoryCapacity }
func (s *Server) connRatio() float64 {
	return float64(s.ActiveConnections) / float64(s.Spec.MaxConnections)
}

// Health derives the current health status from utilization.
func (s *Server) Health() Health {
	return s.thresholds.Classify(s.cpuRatio(), s.memRatio(), s.connRatio())
}

// fits reports whether the demand fits in the remaining capacity.
func (s *Server) fits(d Demand) bool {
	return s.ActiveConnections < s.Spec.MaxConnections &&
		s.CPUUsed+d.CPU <= s.Spec.CPUCapacity+utilizationEpsilon &&
		s.MemUsed+d.Memory <= s.Spec.MemoryCapacity+utilizationEpsilon
}

func (s *Server) reserve(d Demand) error {
	if !s.fits(d) {
		return fmt.Errorf("server %s (conn=%d/%d cpu=%.2f/%.0f mem=%.2f/%.0f): %w",
			s.ID, s.ActiveConnections, s.Spec.MaxConnections, s.CPUUsed, s.Spec.CPUCapacity,
			s.MemUsed, s.Spec.MemoryCapacity, ErrCapacityExceeded)
	}
	s.ActiveConnections++
	s.CPUUsed = math.Min(s.CPUUsed+d.CPU, s.Spec.CPUCapacity)
	s.MemUsed = math.Min(s.MemUsed+d.Memory, s.Spec.MemoryCapacity)
	return nil
}

func (s *Server) release(d Demand) {
	s.ActiveConnections--
	if s.ActiveConnections < 0 {
		logrus.Errorf("defect: server %s connection count went negative, clamping to 0", s.ID)
		s.ActiveConnections = 0
	}
	s.CPUUsed = clampRelease(s.ID, "cpu", s.CPUUsed-d.CPU)
	s.MemUsed = clampRelease(s.ID, "memory", s.MemUsed-d.Memory)
	if s.ActiveConnections == 0 {
		// nothing in flight means nothing reserved; drop accumulated rounding
		s.CPUUsed, s.MemUsed = 0, 0
	}
}

func clampRelease(id, resource string, v float64) float64 {
	if v < -utilizationEpsilon {
		logrus.Errorf("defect: server %s %s usage went negative (%.6f), clamping to 0", id, resource, v)
	}
	if v < 0 {
		return 0
	}
	return v
}

// observe folds one completed request's response time into the aggregates.
func (s *Server) observe(responseTicks int64) {
	s.ResponseTickSum += responseTicks
	s.ResponseCount++
	s.LastResponseTicks = responseTicks
}

func (s *Server) resetUtilization() {
	s.ActiveConnections = 0
	s.CPUUsed = 0
	s.MemUsed = 0
}

// View returns an immutable copy of the server's state.
func (s *Server) View() ServerView {
	return ServerView{
		ID:                s.ID,
		Index:             s.Index,
		Type:              s.Type,
		Weight:            s.Weight,
		ActiveConnections: s.ActiveConnections,
		MaxConnections:    s.Spec.MaxConnections,
		CPUUsed:           s.CPUUsed,
		CPUCapacity:       s.Spec.CPUCapacity,
		MemUsed:           s.MemUsed,
		MemCapacity:       s.Spec.MemoryCapacity,
		BaseResponseTicks: s.Spec.BaseResponseTicks,
		TotalServed:       s.TotalServed,
		TotalFailures:     s.TotalFailures,
		TotalRejections:   s.TotalRejections,
		ResponseTickSum:   s.ResponseTickSum,
		ResponseCount:     s.ResponseCount,
		LastResponseTicks: s.LastResponseTicks,
		Health:            s.Health(),
	}
}

// ServerView is the read-only server state handed to algorithms.
type ServerView struct {
	ID                string
	Index             int
	Type              ServerType
	Weight            int
	ActiveConnections int
	MaxConnections    int
	CPUUsed           float64
	CPUCapacity       float64
	MemUsed           float64
	MemCapacity       float64
	BaseResponseTicks int64
	TotalServed       int64
	TotalFailures     int64
	TotalRejections   int64
	ResponseTickSum   int64
	ResponseCount     int64
	LastResponseTicks int64
	Health            Health
}

// CPURatio returns cpu utilization in [0, 1].
func (v ServerView) CPURatio() float64 { return ratio(v.CPUUsed, v.CPUCapacity) }

// MemRatio returns memory utilization in [0, 1].
func (v ServerView) MemRatio() float64 { return ratio(v.MemUsed, v.MemCapacity) }

// ConnRatio returns connection utilization in [0, 1].
func (v ServerView) ConnRatio() float64 {
	return ratio(float64(v.ActiveConnections), float64(v.MaxConnections))
}

// AvgResponseTicks returns sum/count of observed response times, or 0 with no samples.
func (v ServerView) AvgResponseTicks() float64 {
	if v.ResponseCount == 0 {
		return 0
	}
	return float64(v.ResponseTickSum) / float64(v.ResponseCount)
}

// ExpectedResponseTicks is the rolling average, falling back to the type's
// base response time for servers that have not completed anything yet.
func (v ServerView) ExpectedResponseTicks() float64 {
	if v.ResponseCount == 0 {
		return float64(v.BaseResponseTicks)
	}
	return v.AvgResponseTicks()
}

// LoadScore is the weighted sum of cpu, memory and connection ratios.
func (v ServerView) LoadScore(w ScoreWeights) float64 {
	return w.CPU*v.CPURatio() + w.Memory*v.MemRatio() + w.Connections*v.ConnRatio()
}

func ratio(used, capacity float64) float64 {
	if capacity <= 0 {
		return 0
	}
	return used / capacity
}

// ScoreWeights weight the utilization ratios in the composite load score.
type ScoreWeights struct {
	CPU         float64 `yaml:"cpu"`
	Memory      float64 `yaml:"memory"`
	Connections float64 `yaml:"connections"`
}

// DefaultScoreWeights returns 0.4 cpu, 0.4 memory, 0.2 connections.
func DefaultScoreWeights() ScoreWeights {
	return ScoreWeights{CPU: 0.4, Memory: 0.4, Connections: 0.2}
}

// Validate rejects negative weights and an all-zero weighting.
func (w ScoreWeights) Validate() error {
	if w.CPU < 0 || w.Memory < 0 || w.Connections < 0 {
		return fmt.Errorf("score weights must be non-negative: %w", ErrInvalidConfiguration)
	}
	if w.CPU+w.Memory+w.Connections == 0 {
		return fmt.Errorf("score weights must not all be zero: %w", ErrInvalidConfiguration)
	}
	return nil
}
