package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/lb-sim/lb-sim/sim"
	"github.com/lb-sim/lb-sim/sim/cluster"
)

// ComparisonRow is one algorithm's outcome in a same-seed comparison.
type ComparisonRow struct {
	Algorithm       string  `json:"algorithm"`
	Spawned         int64   `json:"spawned"`
	Completed       int64   `json:"completed"`
	Failed          int64   `json:"failed"`
	Rejected        int64   `json:"rejected"`
	AvgResponse     float64 `json:"avg_response_ticks"`
	P95Response     float64 `json:"p95_response_ticks"`
	OverloadedTicks int64   `json:"overloaded_ticks"`
	PeakConnections int     `json:"peak_connections"`
}

// compareAlgorithms runs cfg once per algorithm. Only the algorithm differs
// between runs, so arrivals and attacks are identical.
func compareAlgorithms(cfg cluster.Config, n int64, drainAfter bool) ([]ComparisonRow, error) {
	var rows []ComparisonRow
	for _, name := range sim.Algorithms() {
		c := cfg
		c.Algorithm = name
		snap, err := runSimulation(c, n, drainAfter)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		rows = append(rows, comparisonRow(name, snap))
	}
	return rows, nil
}

func comparisonRow(name string, snap sim.Snapshot) ComparisonRow {
	row := ComparisonRow{
		Algorithm:   name,
		Spawned:     snap.Totals.Spawned,
		Completed:   snap.Totals.Completed,
		Failed:      snap.Totals.Failed,
		Rejected:    snap.Totals.Rejected,
		AvgResponse: snap.ResponseTime.Mean,
		P95Response: snap.ResponseTime.P95,
	}
	for _, srv := range snap.Servers {
		row.OverloadedTicks += srv.OverloadedTicks
		if srv.PeakConnections > row.PeakConnections {
			row.PeakConnections = srv.PeakConnections
		}
	}
	return row
}

func writeJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

// writeReport prints a run's final snapshot as JSON or as aligned text tables.
func writeReport(w io.Writer, snap sim.Snapshot, format string) error {
	if format == "json" {
		return writeJSON(w, snap)
	}

	fmt.Fprintf(w, "=== Simulation Report ===\n")
	fmt.Fprintf(w, "run %s  seed %d  tick %d  state %s\n", snap.RunID, snap.Seed, snap.Tick, snap.State)
	fmt.Fprintf(w, "algorithm %s  pattern %s  switches %d\n\n", snap.Algorithm, snap.Pattern, snap.AlgorithmSwitches)

	t := snap.Totals
	fmt.Fprintf(w, "spawned %d  completed %d  failed %d  rejected %d  in flight %d\n",
		t.Spawned, t.Completed, t.Failed, t.Rejected, t.InFlight)
	rt := snap.ResponseTime
	fmt.Fprintf(w, "response ticks: mean %.2f  p50 %.0f  p95 %.0f  p99 %.0f  max %.0f\n\n",
		rt.Mean, rt.P50, rt.P95, rt.P99, rt.Max)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SERVER\tTYPE\tHEALTH\tCONN\tLOAD\tSERVED\tFAILED\tREJECTED\tAVG RT\tOVERLOADED")
	for _, s := range snap.Servers {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d/%d\t%.3f\t%d\t%d\t%d\t%.2f\t%d\n",
			s.ID, s.Type, s.Health, s.ActiveConnections, s.MaxConnections, s.LoadScore,
			s.TotalServed, s.TotalFailures, s.TotalRejections, s.AvgResponseTicks, s.OverloadedTicks)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintln(w)
	tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ALGORITHM\tROUTED\tCOMPLETED\tFAILED\tREJECTED\tAVG RT")
	for _, a := range snap.Algorithms {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%.2f\n",
			a.Name, a.Routed, a.Completed, a.Failed, a.Rejected, a.AvgResponseTicks)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if len(snap.Attacks) > 0 {
		fmt.Fprintln(w)
		tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "ATTACK\tKIND\tTARGET\tINTENSITY\tTICKS\tREQUESTS\tFAILED\tREJECTED")
		for _, a := range snap.Attacks {
			fmt.Fprintf(tw, "%d\t%s\t%s\t%.2f\t%d-%d\t%d\t%d\t%d\n",
				a.ID, a.Kind, a.Target, a.Intensity, a.FirstTick, a.LastTick, a.Requests, a.Failed, a.Rejected)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}

	if tr := snap.Trace; tr != nil {
		fmt.Fprintf(w, "\ntrace: %d decisions  %d accepted  %d rejected  %d pinned  mean regret %.4f  max regret %.4f\n",
			tr.TotalDecisions, tr.AcceptedCount, tr.RejectedCount, tr.PinnedCount, tr.MeanRegret, tr.MaxRegret)
	}
	return nil
}

// writeComparison prints comparison rows as JSON or as an aligned table.
func writeComparison(w io.Writer, rows []ComparisonRow, format string) error {
	if format == "json" {
		return writeJSON(w, rows)
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ALGORITHM\tSPAWNED\tCOMPLETED\tFAILED\tREJECTED\tAVG RT\tP95 RT\tOVERLOADED\tPEAK CONN")
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%.2f\t%.0f\t%d\t%d\n",
			r.Algorithm, r.Spawned, r.Completed, r.Failed, r.Rejected,
			r.AvgResponse, r.P95Response, r.OverloadedTicks, r.PeakConnections)
	}
	return tw.Flush()
}
