// Package telemetry exports simulation state to Prometheus.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/lb-sim/lb-sim/sim"
)

const namespace = "lbsim"

// SnapshotSource returns the current simulation snapshot. It must be safe to
// call from the scrape goroutine, e.g. cluster.Runner.Snapshot.
type SnapshotSource func() sim.Snapshot

// Collector is a prometheus.Collector that turns each scrape into one
// snapshot and emits it as constant metrics. It never mutates the simulation.
type Collector struct {
	source SnapshotSource

	tick          *prometheus.Desc
	requests      *prometheus.Desc
	inFlight      *prometheus.Desc
	algRequests   *prometheus.Desc
	algResponse   *prometheus.Desc
	utilization   *prometheus.Desc
	loadScore     *prometheus.Desc
	health        *prometheus.Desc
	overloaded    *prometheus.Desc
	serverTotals  *prometheus.Desc
	responseTicks *prometheus.Desc
	attacks       *prometheus.Desc
	switches      *prometheus.Desc
}

// NewCollector creates a collector over source. Panics if source is nil.
func NewCollector(source SnapshotSource) *Collector {
	if source == nil {
		panic("telemetry.NewCollector: source must not be nil")
	}
	desc := func(name, help string, labels ...string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "", name), help, labels, nil)
	}
	return &Collector{
		source:        source,
		tick:          desc("tick", "Current simulation tick."),
		requests:      desc("requests_total", "Requests by lifecycle outcome since the last reset.", "outcome"),
		inFlight:      desc("requests_in_flight", "Requests dispatched and not yet completed."),
		algRequests:   desc("algorithm_requests_total", "Requests handled while each algorithm was active, by outcome.", "algorithm", "outcome"),
		algResponse:   desc("algorithm_avg_response_ticks", "Mean response time of completed requests per algorithm.", "algorithm"),
		utilization:   desc("server_utilization_ratio", "Live server utilization by resource.", "server", "type", "resource"),
		loadScore:     desc("server_load_score", "Composite load score of each server.", "server"),
		health:        desc("server_health", "1 for the server's current health status, 0 otherwise.", "server", "health"),
		overloaded:    desc("server_overloaded_ticks_total", "Ticks each server spent overloaded since the last reset.", "server"),
		serverTotals:  desc("server_requests_total", "Lifetime requests per server by outcome, kept across resets.", "server", "outcome"),
		responseTicks: desc("response_ticks", "Response time of completed requests in ticks."),
		attacks:       desc("attacks_total", "Naughty campaigns observed since the last reset."),
		switches:      desc("algorithm_switches_total", "Algorithm changes since the last reset."),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		c.tick, c.requests, c.inFlight, c.algRequests, c.algResponse, c.utilization,
		c.loadScore, c.health, c.overloaded, c.serverTotals, c.responseTicks, c.attacks, c.switches,
	} {
		ch <- d
	}
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	snap := c.source()

	gauge := func(d *prometheus.Desc, v float64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, v, labels...)
	}
	counter := func(d *prometheus.Desc, v int64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v), labels...)
	}

	gauge(c.tick, float64(snap.Tick))
	counter(c.requests, snap.Totals.Spawned, "spawned")
	counter(c.requests, snap.Totals.Completed, "completed")
	counter(c.requests, snap.Totals.Failed, "failed")
	counter(c.requests, snap.Totals.Rejected, "rejected")
	gauge(c.inFlight, float64(snap.Totals.InFlight))

	for _, a := range snap.Algorithms {
		counter(c.algRequests, a.Routed, a.Name, "routed")
		counter(c.algRequests, a.Completed, a.Name, "completed")
		counter(c.algRequests, a.Failed, a.Name, "failed")
		counter(c.algRequests, a.Rejected, a.Name, "rejected")
		gauge(c.algResponse, a.AvgResponseTicks, a.Name)
	}

	for _, s := range snap.Servers {
		v := sim.ServerView{
			CPUUsed: s.CPUUsed, CPUCapacity: s.CPUCapacity,
			MemUsed: s.MemUsed, MemCapacity: s.MemCapacity,
			ActiveConnections: s.ActiveConnections, MaxConnections: s.MaxConnections,
		}
		gauge(c.utilization, v.CPURatio(), s.ID, string(s.Type), "cpu")
		gauge(c.utilization, v.MemRatio(), s.ID, string(s.Type), "memory")
		gauge(c.utilization, v.ConnRatio(), s.ID, string(s.Type), "connections")
		gauge(c.loadScore, s.LoadScore, s.ID)
		for _, h := range []sim.Health{sim.HealthHealthy, sim.HealthDegraded, sim.HealthOverloaded} {
			val := 0.0
			if s.Health == h {
				val = 1
			}
			gauge(c.health, val, s.ID, string(h))
		}
		counter(c.overloaded, s.OverloadedTicks, s.ID)
		counter(c.serverTotals, s.TotalServed, s.ID, "served")
		counter(c.serverTotals, s.TotalFailures, s.ID, "failed")
		counter(c.serverTotals, s.TotalRejections, s.ID, "rejected")
	}

	rt := snap.ResponseTime
	ch <- prometheus.MustNewConstSummary(c.responseTicks, uint64(rt.Count), rt.Mean*float64(rt.Count),
		map[float64]float64{0.5: rt.P50, 0.95: rt.P95, 0.99: rt.P99})

	counter(c.attacks, int64(len(snap.Attacks)))
	counter(c.switches, int64(snap.AlgorithmSwitches))
}
