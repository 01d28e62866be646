package sim

import (
	"fmt"
)

// PoolEntry describes Count servers of one type in the pool composition.
type PoolEntry struct {
	Type   ServerType `yaml:"type"`
	Count  int        `yaml:"count"`
	Weight int        `yaml:"weight"` // 0 = type default
}

// DefaultPool mirrors a four-server mixed deployment, one of each type.
func DefaultPool() []PoolEntry {
	return []PoolEntry{
		{Type: ServerStandard, Count: 1},
		{Type: ServerHighPerformance, Count: 1},
		{Type: ServerMemoryOptimized, Count: 1},
		{Type: ServerCPUOptimized, Count: 1},
	}
}

// MaxPoolSize bounds the pool. Ids are "srv-%02d" from 1, so they run from
// "srv-01" to at most "srv-999".
const MaxPoolSize = 999

// ValidatePool checks pool composition bounds.
func ValidatePool(entries []PoolEntry) error {
	if len(entries) == 0 {
		return fmt.Errorf("server pool is empty: %w", ErrInvalidConfiguration)
	}
	total := 0
	for i, e := range entries {
		if _, ok := ServerSpecs[e.Type]; !ok {
			return fmt.Errorf("pool entry %d: unknown server type %q: %w", i, e.Type, ErrInvalidConfiguration)
		}
		if e.Count < 1 {
			return fmt.Errorf("pool entry %d: count must be >= 1, got %d: %w", i, e.Count, ErrInvalidConfiguration)
		}
		if e.Weight < 0 {
			return fmt.Errorf("pool entry %d: weight must be non-negative, got %d: %w", i, e.Weight, ErrInvalidConfiguration)
		}
		total += e.Count
	}
	if total > MaxPoolSize {
		return fmt.Errorf("server pool has %d servers, max is %d: %w", total, MaxPoolSize, ErrInvalidConfiguration)
	}
	return nil
}

// ServerPool owns the servers of one simulation. Servers are created once and
// keep their identity for the lifetime of the pool.
type ServerPool struct {
	servers []*Server
	byID    map[string]*Server
}

// NewServerPool builds the pool in entry order with ids srv-01, srv-02, ...
func NewServerPool(entries []PoolEntry, thresholds HealthThresholds) (*ServerPool, error) {
	if err := ValidatePool(entries); err != nil {
		return nil, err
	}
	if err := thresholds.Validate(); err != nil {
		return nil, err
	}
	p := &ServerPool{byID: make(map[string]*Server)}
	for _, e := range entries {
		for i := 0; i < e.Count; i++ {
			idx := len(p.servers)
			s := NewServer(fmt.Sprintf("srv-%02d", idx+1), idx, e.Type, e.Weight, thresholds)
			p.servers = append(p.servers, s)
			p.byID[s.ID] = s
		}
	}
	return p, nil
}

// Len returns the number of servers.
func (p *ServerPool) Len() int { return len(p.servers) }

// IDs returns server ids in pool order.
func (p *ServerPool) IDs() []string {
	ids := make([]string, len(p.servers))
	for i, s := range p.servers {
		ids[i] = s.ID
	}
	return ids
}

// Views returns a point-in-time copy of every server, in pool order.
func (p *ServerPool) Views() []ServerView {
	views := make([]ServerView, len(p.servers))
	for i, s := range p.servers {
		views[i] = s.View()
	}
	return views
}

// View returns the view of one server.
func (p *ServerPool) View(id string) (ServerView, bool) {
	s, ok := p.byID[id]
	if !ok {
		return ServerView{}, false
	}
	return s.View(), true
}

// ListEligible returns, in pool order, the servers whose health passes the filter.
func (p *ServerPool) ListEligible(filter func(Health) bool) []ServerView {
	return FilterViews(p.Views(), filter)
}

// FilterViews keeps the views whose health passes the filter, preserving order.
func FilterViews(views []ServerView, filter func(Health) bool) []ServerView {
	out := make([]ServerView, 0, len(views))
	for _, v := range views {
		if filter(v.Health) {
			out = append(out, v)
		}
	}
	return out
}

// NotOverloaded is the default eligibility predicate: Healthy and Degraded pass.
func NotOverloaded(h Health) bool { return h != HealthOverloaded }

// Reserve atomically checks remaining capacity and takes it.
// Fails with ErrCapacityExceeded and leaves the server untouched if the demand does not fit.
func (p *ServerPool) Reserve(id string, d Demand) error {
	s, ok := p.byID[id]
	if !ok {
		panic(fmt.Sprintf("ServerPool.Reserve: unknown server %q", id))
	}
	return s.reserve(d)
}

// Release returns a previously reserved demand. Usage is clamped at zero.
func (p *ServerPool) Release(id string, d Demand) {
	s, ok := p.byID[id]
	if !ok {
		panic(fmt.Sprintf("ServerPool.Release: unknown server %q", id))
	}
	s.release(d)
}

// RecordOutcome updates the lifetime aggregates of a server.
func (p *ServerPool) RecordOutcome(id string, outcome RequestState, responseTicks int64) {
	s, ok := p.byID[id]
	if !ok {
		return
	}
	switch outcome {
	case StateCompleted:
		s.TotalServed++
		s.observe(responseTicks)
	case StateFailed:
		s.TotalFailures++
	case StateRejected:
		s.TotalRejections++
	}
}

// Health returns the derived health of one server.
func (p *ServerPool) Health(id string) Health {
	return p.byID[id].Health()
}

// ResetUtilization zeroes live utilization while keeping identity and lifetime aggregates.
func (p *ServerPool) ResetUtilization() {
	for _, s := range p.servers {
		s.resetUtilization()
	}
}
