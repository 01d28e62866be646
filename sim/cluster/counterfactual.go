package cluster

import (
	"sort"

	"github.com/lb-sim/lb-sim/sim"
	"github.com/lb-sim/lb-sim/sim/trace"
)

// copyScores returns a shallow copy of the scores map.
// Returns nil for nil input.
func copyScores(scores map[string]float64) map[string]float64 {
	if scores == nil {
		return nil
	}
	cp := make(map[string]float64, len(scores))
	for k, v := range scores {
		cp[k] = v
	}
	return cp
}

// computeCounterfactual ranks the eligible servers and computes regret (how
// much better the best alternative was than the chosen server).
//
// Algorithm scores are lower-is-better (response ticks, load score), so they
// are negated to rank. When scores is nil (RoundRobin, LeastConnections,
// Random, PowerOfTwo) the negated composite load score is used instead.
//
// Returns the top-k candidates sorted by score descending and regret (>= 0).
func computeCounterfactual(chosenID string, scores map[string]float64, views []sim.ServerView, weights sim.ScoreWeights, k int) ([]trace.CandidateScore, float64) {
	if k <= 0 || len(views) == 0 {
		return nil, 0
	}

	type scored struct {
		view  sim.ServerView
		load  float64
		score float64
	}

	all := make([]scored, 0, len(views))
	var chosenScore float64
	chosenFound := false
	for _, v := range sim.FilterViews(views, sim.NotOverloaded) {
		load := v.LoadScore(weights)
		s := -load
		if scores != nil {
			if raw, ok := scores[v.ID]; ok {
				s = -raw
			}
		}
		all = append(all, scored{view: v, load: load, score: s})
		if v.ID == chosenID {
			chosenScore = s
			chosenFound = true
		}
	}

	// pinned traffic can land on a server that is no longer eligible
	if !chosenFound || len(all) == 0 {
		return nil, 0
	}

	// ties by pool position
	sort.SliceStable(all, func(i, j int) bool {
		if all[i].score != all[j].score {
			return all[i].score > all[j].score
		}
		return all[i].view.Index < all[j].view.Index
	})

	n := min(k, len(all))
	result := make([]trace.CandidateScore, n)
	for i := 0; i < n; i++ {
		result[i] = trace.CandidateScore{
			ServerID:          all[i].view.ID,
			Score:             all[i].score,
			ActiveConnections: all[i].view.ActiveConnections,
			LoadScore:         all[i].load,
		}
	}

	regret := all[0].score - chosenScore
	if regret < 0 {
		regret = 0
	}
	return result, regret
}
