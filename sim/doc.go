// Package sim provides the core of a tick-driven load balancer simulation.
//
// # Reading Guide
//
// Start with these files to understand the dispatch model:
//   - server.go: Server capacity, reservation/release and health classification
//   - pool.go: the ordered server pool and its eligibility filter
//   - routing.go: the seven dispatch algorithms and selector parsing
//   - metrics.go: run-wide, per-algorithm, per-user-type and per-server aggregation
//
// # Architecture
//
// The sim package defines the domain types; orchestration lives in sub-packages:
//   - sim/cluster/: the engine (tick loop, state machine, wall-clock runner)
//   - sim/workload/: arrival patterns, demand profiles and naughty campaigns
//   - sim/trace/: dispatch decision recording and counterfactual regret
//   - sim/telemetry/: Prometheus export of engine snapshots
//
// # Determinism
//
// All randomness flows from one seed through PartitionedRNG. Each subsystem
// (workload, router, naughty) draws from its own stream, so enabling attacks
// or switching algorithms never shifts the regular arrival sequence.
package sim
