package trace

import "testing"

func TestSummarize_NilTrace_ZeroValues(t *testing.T) {
	summary := Summarize(nil)
	if summary.TotalDecisions != 0 || summary.UniqueTargets != 0 {
		t.Error("expected zero counts for nil trace")
	}
	if summary.TargetDistribution == nil || summary.RejectionReasons == nil {
		t.Error("expected non-nil maps")
	}
}

func TestSummarize_EmptyTrace_ZeroValues(t *testing.T) {
	// GIVEN an empty trace
	st := NewSimulationTrace(TraceConfig{Level: TraceLevelDecisions})

	// WHEN summarized
	summary := Summarize(st)

	// THEN all counts are zero
	if summary.TotalDecisions != 0 {
		t.Errorf("expected 0 total decisions, got %d", summary.TotalDecisions)
	}
	if summary.AcceptedCount != 0 || summary.RejectedCount != 0 {
		t.Error("expected 0 accepted and rejected")
	}
	if len(summary.TargetDistribution) != 0 {
		t.Error("expected empty target distribution")
	}
}

func TestSummarize_PopulatedTrace_CorrectCounts(t *testing.T) {
	// GIVEN a trace with accepted, rejected and pinned decisions
	st := NewSimulationTrace(TraceConfig{Level: TraceLevelDecisions})
	st.RecordDispatch(DispatchRecord{RequestID: 1, Algorithm: "round-robin", ServerID: "srv-01", Accepted: true})
	st.RecordDispatch(DispatchRecord{RequestID: 2, Algorithm: "round-robin", ServerID: "srv-02", Accepted: true})
	st.RecordDispatch(DispatchRecord{RequestID: 3, Algorithm: "random", ServerID: "srv-01", Accepted: true})
	st.RecordDispatch(DispatchRecord{RequestID: 4, Algorithm: "random", Accepted: false, Reason: "no_eligible_server"})
	st.RecordDispatch(DispatchRecord{RequestID: 5, Algorithm: "random", ServerID: "srv-03", Accepted: false, Pinned: true, Reason: "capacity_exceeded"})
	st.RecordCampaign(CampaignRecord{AttackID: 1, Target: "srv-03"})

	// WHEN summarized
	summary := Summarize(st)

	// THEN counts match
	if summary.TotalDecisions != 5 {
		t.Errorf("expected 5 total decisions, got %d", summary.TotalDecisions)
	}
	if summary.AcceptedCount != 3 || summary.RejectedCount != 2 {
		t.Errorf("expected 3 accepted / 2 rejected, got %d / %d", summary.AcceptedCount, summary.RejectedCount)
	}
	if summary.UniqueTargets != 2 {
		t.Errorf("expected 2 unique targets, got %d", summary.UniqueTargets)
	}
	if summary.TargetDistribution["srv-01"] != 2 {
		t.Errorf("expected srv-01 to receive 2, got %d", summary.TargetDistribution["srv-01"])
	}
	if summary.RejectionReasons["no_eligible_server"] != 1 || summary.RejectionReasons["capacity_exceeded"] != 1 {
		t.Errorf("unexpected rejection reasons %v", summary.RejectionReasons)
	}
	if summary.AlgorithmDistribution["random"] != 3 {
		t.Errorf("expected 3 random decisions, got %d", summary.AlgorithmDistribution["random"])
	}
	if summary.PinnedCount != 1 || summary.Campaigns != 1 {
		t.Errorf("expected 1 pinned and 1 campaign, got %d and %d", summary.PinnedCount, summary.Campaigns)
	}
}

func TestSummarize_Regret_MeanAndMax(t *testing.T) {
	// GIVEN decisions with known regret
	st := NewSimulationTrace(TraceConfig{Level: TraceLevelDecisions, CounterfactualK: 2})
	st.RecordDispatch(DispatchRecord{RequestID: 1, ServerID: "srv-01", Accepted: true, Regret: 0.0})
	st.RecordDispatch(DispatchRecord{RequestID: 2, ServerID: "srv-02", Accepted: true, Regret: 0.5})
	st.RecordDispatch(DispatchRecord{RequestID: 3, ServerID: "srv-01", Accepted: true, Regret: 0.25})
	st.RecordDispatch(DispatchRecord{RequestID: 4, ServerID: "srv-02", Accepted: true, Regret: 0.25})

	// WHEN summarized
	summary := Summarize(st)

	// THEN mean and max regret reflect the records
	if summary.MeanRegret != 0.25 {
		t.Errorf("expected mean regret 0.25, got %f", summary.MeanRegret)
	}
	if summary.MaxRegret != 0.5 {
		t.Errorf("expected max regret 0.5, got %f", summary.MaxRegret)
	}
}
