// Tracks run-wide, per-algorithm, per-user-type and per-server statistics.
// Averages are always derived from sum/count at snapshot time.

package sim

import "sort"

// AlgorithmSummary aggregates the dispatches made while an algorithm was active.
// Routed counts every dispatch attempt, so Routed == Completed + Failed + Rejected
// once nothing routed by the algorithm is in flight.
type AlgorithmSummary struct {
	Name             string  `json:"name"`
	Routed           int64   `json:"routed"`
	Completed        int64   `json:"completed"`
	Failed           int64   `json:"failed"`
	Rejected         int64   `json:"rejected"`
	ResponseTickSum  int64   `json:"response_tick_sum"`
	AvgResponseTicks float64 `json:"avg_response_ticks"`
}

// UserTypeSummary aggregates the requests of one user type.
type UserTypeSummary struct {
	UserType         UserType `json:"user_type"`
	Spawned          int64    `json:"spawned"`
	Completed        int64    `json:"completed"`
	Failed           int64    `json:"failed"`
	Rejected         int64    `json:"rejected"`
	ResponseTickSum  int64    `json:"response_tick_sum"`
	AvgResponseTicks float64  `json:"avg_response_ticks"`
}

// Sample is one per-tick utilization reading of a server.
type Sample struct {
	Tick        int64   `json:"tick"`
	CPU         float64 `json:"cpu"`
	Memory      float64 `json:"memory"`
	Connections float64 `json:"connections"`
	Health      Health  `json:"health"`
}

// ServerMetrics holds the collector's per-server view for the current run.
type ServerMetrics struct {
	ID              string   `json:"id"`
	OverloadedTicks int64    `json:"overloaded_ticks"`
	PeakConnections int      `json:"peak_connections"`
	Series          []Sample `json:"series,omitempty"`
}

// AttackRecord summarizes one naughty campaign as observed by the collector.
type AttackRecord struct {
	ID        int64   `json:"id"`
	Kind      string  `json:"kind"`
	Target    string  `json:"target"`
	Intensity float64 `json:"intensity"`
	FirstTick int64   `json:"first_tick"`
	LastTick  int64   `json:"last_tick"`
	Requests  int64   `json:"requests"`
	Completed int64   `json:"completed"`
	Failed    int64   `json:"failed"`
	Rejected  int64   `json:"rejected"`
}

// MetricsSnapshot is a deep copy of the collector state.
type MetricsSnapshot struct {
	Totals            Totals
	Algorithms        []AlgorithmSummary
	UserTypes         []UserTypeSummary
	Servers           []ServerMetrics
	ResponseTime      Distribution
	Attacks           []AttackRecord
	AlgorithmSwitches int
	Requests          []RequestRecord
}

// MetricsCollector aggregates engine events. It is owned by one engine and
// is not safe for concurrent use; readers go through Snapshot.
type MetricsCollector struct {
	window     int // per-server series length, 0 disables series
	requestLog int // number of most recent request records kept, 0 disables

	totals        Totals
	algorithms    map[string]*AlgorithmSummary
	userTypes     map[UserType]*UserTypeSummary
	serverOrder   []string
	servers       map[string]*ServerMetrics
	responseTicks []float64
	attackOrder   []int64
	attacks       map[int64]*AttackRecord
	switches      int
	records       []RequestRecord
}

// NewMetricsCollector creates a collector for the given servers.
func NewMetricsCollector(serverIDs []string, window, requestLog int) *MetricsCollector {
	m := &MetricsCollector{
		window:      window,
		requestLog:  requestLog,
		serverOrder: append([]string(nil), serverIDs...),
	}
	m.Reset()
	return m
}

// Reset clears every aggregate while keeping the server list and limits.
func (m *MetricsCollector) Reset() {
	m.totals = Totals{}
	m.algorithms = make(map[string]*AlgorithmSummary, len(algorithmOrder))
	for _, name := range algorithmOrder {
		m.algorithms[name] = &AlgorithmSummary{Name: name}
	}
	m.userTypes = make(map[UserType]*UserTypeSummary, len(userTypeOrder))
	for _, t := range userTypeOrder {
		m.userTypes[t] = &UserTypeSummary{UserType: t}
	}
	m.servers = make(map[string]*ServerMetrics, len(m.serverOrder))
	for _, id := range m.serverOrder {
		m.servers[id] = &ServerMetrics{ID: id}
	}
	m.responseTicks = nil
	m.attackOrder = nil
	m.attacks = make(map[int64]*AttackRecord)
	m.switches = 0
	m.records = nil
}

// RecordSpawn registers a new arrival.
func (m *MetricsCollector) RecordSpawn(req *Request) {
	m.totals.Spawned++
	m.totals.InFlight++
	m.userType(req.UserType).Spawned++
	if req.AttackID != 0 {
		a, ok := m.attacks[req.AttackID]
		if !ok {
			a = &AttackRecord{
				ID:        req.AttackID,
				Kind:      req.AttackKind,
				Target:    req.Target,
				Intensity: req.AttackIntensity,
				FirstTick: req.ArrivalTick,
			}
			m.attacks[req.AttackID] = a
			m.attackOrder = append(m.attackOrder, req.AttackID)
		}
		a.LastTick = req.ArrivalTick
		a.Requests++
	}
	if m.requestLog > 0 {
		m.records = append(m.records, NewRequestRecord(req))
		// Compact in batches so each spawn costs amortized O(1).
		if len(m.records) > 2*m.requestLog {
			n := copy(m.records, m.records[len(m.records)-m.requestLog:])
			m.records = m.records[:n]
		}
	}
}

// RecordDispatch registers a dispatch attempt under req.Algorithm.
// A non-nil err means the request was rejected.
func (m *MetricsCollector) RecordDispatch(req *Request, serverID string, err error) {
	alg := m.algorithm(req.Algorithm)
	alg.Routed++
	if err != nil {
		alg.Rejected++
		m.totals.Rejected++
		m.totals.InFlight--
		m.userType(req.UserType).Rejected++
		if a, ok := m.attacks[req.AttackID]; ok {
			a.Rejected++
		}
	}
	m.updateRecord(req)
}

// RecordCompletion registers a terminal in-flight outcome (Completed or Failed).
func (m *MetricsCollector) RecordCompletion(req *Request, outcome RequestState, responseTicks int64) {
	alg := m.algorithm(req.Algorithm)
	ut := m.userType(req.UserType)
	a := m.attacks[req.AttackID]
	m.totals.InFlight--
	switch outcome {
	case StateCompleted:
		m.totals.Completed++
		alg.Completed++
		alg.ResponseTickSum += responseTicks
		ut.Completed++
		ut.ResponseTickSum += responseTicks
		m.responseTicks = append(m.responseTicks, float64(responseTicks))
		if a != nil {
			a.Completed++
		}
	case StateFailed:
		m.totals.Failed++
		alg.Failed++
		ut.Failed++
		if a != nil {
			a.Failed++
		}
	default:
		panic("RecordCompletion: outcome must be completed or failed, got " + string(outcome))
	}
	m.updateRecord(req)
}

// RecordTick samples server utilization at the end of a tick.
func (m *MetricsCollector) RecordTick(tick int64, views []ServerView) {
	for _, v := range views {
		sm, ok := m.servers[v.ID]
		if !ok {
			continue
		}
		if v.Health == HealthOverloaded {
			sm.OverloadedTicks++
		}
		if v.ActiveConnections > sm.PeakConnections {
			sm.PeakConnections = v.ActiveConnections
		}
		if m.window > 0 {
			sm.Series = append(sm.Series, Sample{
				Tick:        tick,
				CPU:         v.CPURatio(),
				Memory:      v.MemRatio(),
				Connections: v.ConnRatio(),
				Health:      v.Health,
			})
			if over := len(sm.Series) - m.window; over > 0 {
				sm.Series = sm.Series[over:]
			}
		}
	}
}

// RecordSwitch counts an algorithm change.
func (m *MetricsCollector) RecordSwitch() { m.switches++ }

// Totals returns the run-wide counters.
func (m *MetricsCollector) Totals() Totals { return m.totals }

// Snapshot returns a deep copy of all aggregates. Later recording never
// affects a returned snapshot.
func (m *MetricsCollector) Snapshot() MetricsSnapshot {
	out := MetricsSnapshot{
		Totals:            m.totals,
		Algorithms:        make([]AlgorithmSummary, 0, len(algorithmOrder)),
		UserTypes:         make([]UserTypeSummary, 0, len(userTypeOrder)),
		Servers:           make([]ServerMetrics, 0, len(m.serverOrder)),
		ResponseTime:      NewDistribution(m.responseTicks),
		Attacks:           make([]AttackRecord, 0, len(m.attackOrder)),
		AlgorithmSwitches: m.switches,
		Requests:          append([]RequestRecord(nil), m.recentRecords()...),
	}
	for _, name := range algorithmOrder {
		a := *m.algorithms[name]
		a.AvgResponseTicks = meanOf(a.ResponseTickSum, a.Completed)
		out.Algorithms = append(out.Algorithms, a)
	}
	for _, t := range userTypeOrder {
		u := *m.userTypes[t]
		u.AvgResponseTicks = meanOf(u.ResponseTickSum, u.Completed)
		out.UserTypes = append(out.UserTypes, u)
	}
	for _, id := range m.serverOrder {
		sm := *m.servers[id]
		sm.Series = append([]Sample(nil), sm.Series...)
		out.Servers = append(out.Servers, sm)
	}
	ids := append([]int64(nil), m.attackOrder...)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		out.Attacks = append(out.Attacks, *m.attacks[id])
	}
	return out
}

// ServerMetrics returns a copy of one server's run metrics.
func (m *MetricsCollector) ServerMetrics(id string) ServerMetrics {
	sm, ok := m.servers[id]
	if !ok {
		return ServerMetrics{ID: id}
	}
	out := *sm
	out.Series = append([]Sample(nil), sm.Series...)
	return out
}

func (m *MetricsCollector) algorithm(name string) *AlgorithmSummary {
	a, ok := m.algorithms[name]
	if !ok {
		panic("MetricsCollector: unknown algorithm " + name)
	}
	return a
}

func (m *MetricsCollector) userType(t UserType) *UserTypeSummary {
	u, ok := m.userTypes[t]
	if !ok {
		panic("MetricsCollector: unknown user type " + string(t))
	}
	return u
}

// recentRecords is the tail of the log within the configured limit.
func (m *MetricsCollector) recentRecords() []RequestRecord {
	if over := len(m.records) - m.requestLog; over > 0 {
		return m.records[over:]
	}
	return m.records
}

// updateRecord refreshes the stored record of req, if it is still in the log.
func (m *MetricsCollector) updateRecord(req *Request) {
	if len(m.records) == 0 {
		return
	}
	pos := req.ID - m.records[0].ID
	if pos < 0 || pos >= int64(len(m.records)) || m.records[pos].ID != req.ID {
		return
	}
	m.records[pos] = NewRequestRecord(req)
}
