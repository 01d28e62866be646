// Package trace provides decision-trace recording for dispatch analysis.
// This package has no dependencies on sim/ or sim/cluster/; it stores pure data types.
package trace

// DispatchRecord captures a single dispatch decision.
type DispatchRecord struct {
	RequestID int64
	Tick      int64
	UserType  string
	Algorithm string
	ServerID  string // chosen server; empty when no server was eligible
	Accepted  bool
	Pinned    bool               // naughty request sent to its fixed target
	Reason    string             // routing reason, or rejection reason when !Accepted
	Scores    map[string]float64 // from RoutingDecision.Scores (may be nil)

	// Counterfactual analysis, populated only when TraceConfig.CounterfactualK > 0
	Candidates []CandidateScore
	Regret     float64 // best candidate score minus chosen score, >= 0
}

// CandidateScore is one ranked alternative considered for a dispatch.
type CandidateScore struct {
	ServerID          string
	Score             float64
	ActiveConnections int
	LoadScore         float64
}

// CampaignRecord captures the start of a naughty campaign.
type CampaignRecord struct {
	AttackID  int64
	Tick      int64
	Kind      string
	Target    string
	Intensity float64
}
