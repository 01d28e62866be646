package sim

import "github.com/lb-sim/lb-sim/sim/trace"

// ServerRecord is the exported state of one server: identity, live
// utilization, derived health and lifetime totals.
type ServerRecord struct {
	ID                string     `json:"id"`
	Type              ServerType `json:"type"`
	Weight            int        `json:"weight"`
	ActiveConnections int        `json:"active_connections"`
	MaxConnections    int        `json:"max_connections"`
	CPUUsed           float64    `json:"cpu_used"`
	CPUCapacity       float64    `json:"cpu_capacity"`
	MemUsed           float64    `json:"mem_used"`
	MemCapacity       float64    `json:"mem_capacity"`
	LoadScore         float64    `json:"load_score"`
	Health            Health     `json:"health"`
	TotalServed       int64      `json:"total_served"`
	TotalFailures     int64      `json:"total_failures"`
	TotalRejections   int64      `json:"total_rejections"`
	AvgResponseTicks  float64    `json:"avg_response_ticks"`
	LastResponseTicks int64      `json:"last_response_ticks"`
	OverloadedTicks   int64      `json:"overloaded_ticks"`
	PeakConnections   int        `json:"peak_connections"`
	Series            []Sample   `json:"series,omitempty"`
}

// NewServerRecord builds the exported record from a view and its collector metrics.
func NewServerRecord(v ServerView, m ServerMetrics, weights ScoreWeights) ServerRecord {
	return ServerRecord{
		ID:                v.ID,
		Type:              v.Type,
		Weight:            v.Weight,
		ActiveConnections: v.ActiveConnections,
		MaxConnections:    v.MaxConnections,
		CPUUsed:           v.CPUUsed,
		CPUCapacity:       v.CPUCapacity,
		MemUsed:           v.MemUsed,
		MemCapacity:       v.MemCapacity,
		LoadScore:         v.LoadScore(weights),
		Health:            v.Health,
		TotalServed:       v.TotalServed,
		TotalFailures:     v.TotalFailures,
		TotalRejections:   v.TotalRejections,
		AvgResponseTicks:  v.AvgResponseTicks(),
		LastResponseTicks: v.LastResponseTicks,
		OverloadedTicks:   m.OverloadedTicks,
		PeakConnections:   m.PeakConnections,
		Series:            m.Series,
	}
}

// RequestRecord is the exported lifecycle of one request.
type RequestRecord struct {
	ID             int64        `json:"id"`
	UserType       UserType     `json:"user_type"`
	ArrivalTick    int64        `json:"arrival_tick"`
	DispatchTick   int64        `json:"dispatch_tick,omitempty"`
	CompletionTick int64        `json:"completion_tick,omitempty"`
	ServerID       string       `json:"server_id,omitempty"`
	Algorithm      string       `json:"algorithm,omitempty"`
	State          RequestState `json:"state"`
	Reason         string       `json:"reason,omitempty"`
	ResponseTicks  int64        `json:"response_ticks,omitempty"`
	Demand         Demand       `json:"demand"`
	AttackID       int64        `json:"attack_id,omitempty"`
}

// NewRequestRecord copies the exported fields of a request.
func NewRequestRecord(r *Request) RequestRecord {
	return RequestRecord{
		ID:             r.ID,
		UserType:       r.UserType,
		ArrivalTick:    r.ArrivalTick,
		DispatchTick:   r.DispatchTick,
		CompletionTick: r.CompletionTick,
		ServerID:       r.ServerID,
		Algorithm:      r.Algorithm,
		State:          r.State,
		Reason:         r.Reason,
		ResponseTicks:  r.ResponseTicks(),
		Demand:         r.Demand,
		AttackID:       r.AttackID,
	}
}

// Totals are the run-wide request counters. After a drained run
// Spawned == Completed + Failed + Rejected and InFlight == 0.
type Totals struct {
	Spawned   int64 `json:"spawned"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Rejected  int64 `json:"rejected"`
	InFlight  int64 `json:"in_flight"`
}

// Snapshot is the immutable point-in-time export of a simulation.
// Every slice and map is a fresh copy; nothing aliases engine state.
type Snapshot struct {
	RunID             string              `json:"run_id"`
	Seed              int64               `json:"seed"`
	Tick              int64               `json:"tick"`
	State             string              `json:"state"`
	Algorithm         string              `json:"algorithm"`
	Pattern           string              `json:"pattern"`
	Totals            Totals              `json:"totals"`
	Servers           []ServerRecord      `json:"servers"`
	Algorithms        []AlgorithmSummary  `json:"algorithms"`
	UserTypes         []UserTypeSummary   `json:"user_types"`
	ResponseTime      Distribution        `json:"response_time"`
	Attacks           []AttackRecord      `json:"attacks"`
	AlgorithmSwitches int                 `json:"algorithm_switches"`
	Requests          []RequestRecord     `json:"requests,omitempty"`
	Trace             *trace.TraceSummary `json:"trace,omitempty"`
}

// Server returns the record with the given id.
func (s Snapshot) Server(id string) (ServerRecord, bool) {
	for _, r := range s.Servers {
		if r.ID == id {
			return r, true
		}
	}
	return ServerRecord{}, false
}

// ForAlgorithm returns the summary for the named algorithm.
func (s Snapshot) ForAlgorithm(name string) (AlgorithmSummary, bool) {
	for _, a := range s.Algorithms {
		if a.Name == name {
			return a, true
		}
	}
	return AlgorithmSummary{}, false
}
