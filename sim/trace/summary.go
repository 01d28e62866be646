package trace

// TraceSummary aggregates statistics from a SimulationTrace.
type TraceSummary struct {
	TotalDecisions        int            `json:"total_decisions"`
	AcceptedCount         int            `json:"accepted"`
	RejectedCount         int            `json:"rejected"`
	PinnedCount           int            `json:"pinned"`
	Campaigns             int            `json:"campaigns"`
	UniqueTargets         int            `json:"unique_targets"`
	TargetDistribution    map[string]int `json:"target_distribution"`    // server ID → accepted dispatches
	RejectionReasons      map[string]int `json:"rejection_reasons"`      // reason → count
	AlgorithmDistribution map[string]int `json:"algorithm_distribution"` // algorithm → decisions
	MeanRegret            float64        `json:"mean_regret"`
	MaxRegret             float64        `json:"max_regret"`
}

// Summarize computes aggregate statistics from a SimulationTrace.
// Safe for nil or empty traces (returns zero-value fields).
func Summarize(st *SimulationTrace) *TraceSummary {
	summary := &TraceSummary{
		TargetDistribution:    make(map[string]int),
		RejectionReasons:      make(map[string]int),
		AlgorithmDistribution: make(map[string]int),
	}
	if st == nil {
		return summary
	}

	summary.TotalDecisions = len(st.Dispatches)
	summary.Campaigns = len(st.Campaigns)
	totalRegret := 0.0
	for _, d := range st.Dispatches {
		summary.AlgorithmDistribution[d.Algorithm]++
		totalRegret += d.Regret
		if d.Regret > summary.MaxRegret {
			summary.MaxRegret = d.Regret
		}
		if d.Pinned {
			summary.PinnedCount++
		}
		if d.Accepted {
			summary.AcceptedCount++
			summary.TargetDistribution[d.ServerID]++
		} else {
			summary.RejectedCount++
			summary.RejectionReasons[d.Reason]++
		}
	}

	summary.UniqueTargets = len(summary.TargetDistribution)
	if summary.TotalDecisions > 0 {
		summary.MeanRegret = totalRegret / float64(summary.TotalDecisions)
	}

	return summary
}
