package sim

import (
	"fmt"
	"math/rand"
	"sort"
	"strconv"
	"strings"
)

// Algorithm names, in the order used for 1-based index selection.
const (
	AlgorithmRoundRobin         = "round-robin"
	AlgorithmLeastConnections   = "least-connections"
	AlgorithmWeightedRoundRobin = "weighted-round-robin"
	AlgorithmLeastResponseTime  = "least-response-time"
	AlgorithmResourceBased      = "resource-based"
	AlgorithmRandom             = "random"
	AlgorithmPowerOfTwo         = "power-of-two"
)

var algorithmOrder = []string{
	AlgorithmRoundRobin,
	AlgorithmLeastConnections,
	AlgorithmWeightedRoundRobin,
	AlgorithmLeastResponseTime,
	AlgorithmResourceBased,
	AlgorithmRandom,
	AlgorithmPowerOfTwo,
}

// algorithmAliases maps short and legacy spellings onto canonical names.
var algorithmAliases = map[string]string{
	"rr":                   AlgorithmRoundRobin,
	"lc":                   AlgorithmLeastConnections,
	"wrr":                  AlgorithmWeightedRoundRobin,
	"lrt":                  AlgorithmLeastResponseTime,
	"resource":             AlgorithmResourceBased,
	"rb":                   AlgorithmResourceBased,
	"p2c":                  AlgorithmPowerOfTwo,
	"power-of-two-choices": AlgorithmPowerOfTwo,
}

// Algorithms returns the canonical algorithm names in index order.
func Algorithms() []string {
	out := make([]string, len(algorithmOrder))
	copy(out, algorithmOrder)
	return out
}

// Aliases returns the alternative spellings accepted for name, sorted.
func Aliases(name string) []string {
	var out []string
	for alias, target := range algorithmAliases {
		if target == name {
			out = append(out, alias)
		}
	}
	sort.Strings(out)
	return out
}

// IsValidAlgorithm returns true if name resolves to an algorithm.
func IsValidAlgorithm(name string) bool {
	_, err := ParseAlgorithm(name)
	return err == nil
}

// ParseAlgorithm resolves a selector to a canonical algorithm name.
// Accepted forms: canonical name, alias, snake_case spelling, or a 1-based index "1".."7".
func ParseAlgorithm(selector string) (string, error) {
	s := strings.TrimSpace(selector)
	if idx, err := strconv.Atoi(s); err == nil {
		if idx < 1 || idx > len(algorithmOrder) {
			return "", fmt.Errorf("algorithm index %d out of range 1..%d: %w", idx, len(algorithmOrder), ErrInvalidAlgorithm)
		}
		return algorithmOrder[idx-1], nil
	}
	norm := strings.ReplaceAll(strings.ToLower(s), "_", "-")
	for _, name := range algorithmOrder {
		if norm == name {
			return name, nil
		}
	}
	if name, ok := algorithmAliases[norm]; ok {
		return name, nil
	}
	return "", fmt.Errorf("unknown algorithm %q: %w", selector, ErrInvalidAlgorithm)
}

// RoutingDecision is the result of one successful selection.
type RoutingDecision struct {
	Target  string             // server id, always one of the eligible views
	Reason  string             // human-readable explanation
	Sampled []string           // PowerOfTwo: the two ids that were compared
	Scores  map[string]float64 // per-candidate score, nil for policies without scoring
}

// Algorithm selects a target server for a request.
// Implementations receive a read-only copy of the pool in pool order and must
// only consider servers that are not Overloaded. When no server qualifies they
// return ErrNoEligibleServer.
type Algorithm interface {
	Name() string
	Select(servers []ServerView, req *Request) (RoutingDecision, error)
}

func eligible(servers []ServerView) ([]ServerView, error) {
	candidates := FilterViews(servers, NotOverloaded)
	if len(candidates) == 0 {
		return nil, ErrNoEligibleServer
	}
	return candidates, nil
}

// RoundRobin walks the pool in fixed order. The cursor points at the next pool
// position to try; ineligible servers are stepped over and the cursor lands one
// past the chosen server.
type RoundRobin struct {
	cursor int
}

func (rr *RoundRobin) Name() string { return AlgorithmRoundRobin }

// Select implements Algorithm for RoundRobin.
func (rr *RoundRobin) Select(servers []ServerView, _ *Request) (RoutingDecision, error) {
	n := len(servers)
	for k := 0; k < n; k++ {
		pos := (rr.cursor + k) % n
		if !NotOverloaded(servers[pos].Health) {
			continue
		}
		rr.cursor = (pos + 1) % n
		return RoutingDecision{
			Target: servers[pos].ID,
			Reason: fmt.Sprintf("round-robin[%d]", pos),
		}, nil
	}
	return RoutingDecision{}, ErrNoEligibleServer
}

// LeastConnections picks the eligible server with the fewest active connections.
// Ties are broken by lowest pool index.
type LeastConnections struct{}

func (lc *LeastConnections) Name() string { return AlgorithmLeastConnections }

// Select implements Algorithm for LeastConnections.
func (lc *LeastConnections) Select(servers []ServerView, _ *Request) (RoutingDecision, error) {
	candidates, err := eligible(servers)
	if err != nil {
		return RoutingDecision{}, err
	}
	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.ActiveConnections < best.ActiveConnections ||
			(c.ActiveConnections == best.ActiveConnections && c.Index < best.Index) {
			best = c
		}
	}
	return RoutingDecision{
		Target: best.ID,
		Reason: fmt.Sprintf("least-connections (conn=%d)", best.ActiveConnections),
	}, nil
}

// WeightedRoundRobin hands out per-server credits equal to the server weight.
// Selection walks the pool from the cursor to the next eligible server that
// still has credit; when no eligible server has credit left, every server is
// refilled. Over a window of sum(weights) selections each server is chosen
// exactly weight times while the eligible set is stable.
type WeightedRoundRobin struct {
	credits map[string]int
	cursor  int
}

// NewWeightedRoundRobin creates a WeightedRoundRobin with empty credit state.
func NewWeightedRoundRobin() *WeightedRoundRobin {
	return &WeightedRoundRobin{credits: make(map[string]int)}
}

func (w *WeightedRoundRobin) Name() string { return AlgorithmWeightedRoundRobin }

// Select implements Algorithm for WeightedRoundRobin.
func (w *WeightedRoundRobin) Select(servers []ServerView, _ *Request) (RoutingDecision, error) {
	if _, err := eligible(servers); err != nil {
		return RoutingDecision{}, err
	}
	pos, ok := w.next(servers)
	if !ok {
		w.refill(servers)
		pos, ok = w.next(servers)
		if !ok {
			panic("WeightedRoundRobin: no credit after refill")
		}
	}
	chosen := servers[pos]
	w.credits[chosen.ID]--
	w.cursor = (pos + 1) % len(servers)
	return RoutingDecision{
		Target: chosen.ID,
		Reason: fmt.Sprintf("weighted-round-robin (weight=%d, credit=%d)", serverWeight(chosen), w.credits[chosen.ID]),
	}, nil
}

func (w *WeightedRoundRobin) next(servers []ServerView) (int, bool) {
	n := len(servers)
	for k := 0; k < n; k++ {
		pos := (w.cursor + k) % n
		v := servers[pos]
		if !NotOverloaded(v.Health) {
			continue
		}
		credit, seen := w.credits[v.ID]
		if !seen {
			credit = serverWeight(v)
			w.credits[v.ID] = credit
		}
		if credit > 0 {
			return pos, true
		}
	}
	return 0, false
}

func (w *WeightedRoundRobin) refill(servers []ServerView) {
	for _, v := range servers {
		w.credits[v.ID] = serverWeight(v)
	}
}

func serverWeight(v ServerView) int {
	if v.Weight < 1 {
		return 1
	}
	return v.Weight
}

// LeastResponseTime picks the eligible server with the lowest average response
// time. Servers without samples count as their type's base response time.
// Ties are broken by lowest pool index.
type LeastResponseTime struct{}

func (l *LeastResponseTime) Name() string { return AlgorithmLeastResponseTime }

// Select implements Algorithm for LeastResponseTime.
func (l *LeastResponseTime) Select(servers []ServerView, _ *Request) (RoutingDecision, error) {
	candidates, err := eligible(servers)
	if err != nil {
		return RoutingDecision{}, err
	}
	scores := make(map[string]float64, len(candidates))
	best := candidates[0]
	bestRT := best.ExpectedResponseTicks()
	for _, c := range candidates {
		rt := c.ExpectedResponseTicks()
		scores[c.ID] = rt
		if rt < bestRT || (rt == bestRT && c.Index < best.Index) {
			best, bestRT = c, rt
		}
	}
	return RoutingDecision{
		Target: best.ID,
		Reason: fmt.Sprintf("least-response-time (avg=%.2f)", bestRT),
		Scores: scores,
	}, nil
}

// ResourceBased picks the eligible server with the lowest composite load score.
// Ties are broken by lowest pool index.
type ResourceBased struct {
	weights ScoreWeights
}

func (rb *ResourceBased) Name() string { return AlgorithmResourceBased }

// Select implements Algorithm for ResourceBased.
func (rb *ResourceBased) Select(servers []ServerView, _ *Request) (RoutingDecision, error) {
	candidates, err := eligible(servers)
	if err != nil {
		return RoutingDecision{}, err
	}
	scores := make(map[string]float64, len(candidates))
	best := candidates[0]
	bestScore := best.LoadScore(rb.weights)
	for _, c := range candidates {
		s := c.LoadScore(rb.weights)
		scores[c.ID] = s
		if s < bestScore || (s == bestScore && c.Index < best.Index) {
			best, bestScore = c, s
		}
	}
	return RoutingDecision{
		Target: best.ID,
		Reason: fmt.Sprintf("resource-based (score=%.3f)", bestScore),
		Scores: scores,
	}, nil
}

// Random draws uniformly from the eligible servers.
type Random struct {
	rng *rand.Rand
}

func (r *Random) Name() string { return AlgorithmRandom }

// Select implements Algorithm for Random.
func (r *Random) Select(servers []ServerView, _ *Request) (RoutingDecision, error) {
	candidates, err := eligible(servers)
	if err != nil {
		return RoutingDecision{}, err
	}
	pick := candidates[r.rng.Intn(len(candidates))]
	return RoutingDecision{
		Target: pick.ID,
		Reason: fmt.Sprintf("random (1 of %d)", len(candidates)),
	}, nil
}

// PowerOfTwo samples two distinct eligible servers and keeps the one with fewer
// connections; equal connections fall back to the lower load score, then the
// lower pool index.
type PowerOfTwo struct {
	rng     *rand.Rand
	weights ScoreWeights
}

func (p *PowerOfTwo) Name() string { return AlgorithmPowerOfTwo }

// Select implements Algorithm for PowerOfTwo.
func (p *PowerOfTwo) Select(servers []ServerView, _ *Request) (RoutingDecision, error) {
	candidates, err := eligible(servers)
	if err != nil {
		return RoutingDecision{}, err
	}
	if len(candidates) == 1 {
		return RoutingDecision{
			Target:  candidates[0].ID,
			Reason:  "power-of-two (single candidate)",
			Sampled: []string{candidates[0].ID},
		}, nil
	}
	i := p.rng.Intn(len(candidates))
	j := p.rng.Intn(len(candidates) - 1)
	if j >= i {
		j++
	}
	a, b := candidates[i], candidates[j]
	pick := a
	if p.prefer(b, a) {
		pick = b
	}
	return RoutingDecision{
		Target:  pick.ID,
		Reason:  fmt.Sprintf("power-of-two (%s conn=%d vs %s conn=%d)", a.ID, a.ActiveConnections, b.ID, b.ActiveConnections),
		Sampled: []string{a.ID, b.ID},
	}, nil
}

// prefer reports whether x beats y.
func (p *PowerOfTwo) prefer(x, y ServerView) bool {
	if x.ActiveConnections != y.ActiveConnections {
		return x.ActiveConnections < y.ActiveConnections
	}
	sx, sy := x.LoadScore(p.weights), y.LoadScore(p.weights)
	if sx != sy {
		return sx < sy
	}
	return x.Index < y.Index
}

// NewAlgorithm creates an algorithm from any selector accepted by ParseAlgorithm.
// rng feeds Random and PowerOfTwo and must be non-nil for them.
func NewAlgorithm(selector string, rng *rand.Rand, weights ScoreWeights) (Algorithm, error) {
	name, err := ParseAlgorithm(selector)
	if err != nil {
		return nil, err
	}
	switch name {
	case AlgorithmRoundRobin:
		return &RoundRobin{}, nil
	case AlgorithmLeastConnections:
		return &LeastConnections{}, nil
	case AlgorithmWeightedRoundRobin:
		return NewWeightedRoundRobin(), nil
	case AlgorithmLeastResponseTime:
		return &LeastResponseTime{}, nil
	case AlgorithmResourceBased:
		return &ResourceBased{weights: weights}, nil
	case AlgorithmRandom:
		if rng == nil {
			panic("NewAlgorithm: random requires an rng")
		}
		return &Random{rng: rng}, nil
	case AlgorithmPowerOfTwo:
		if rng == nil {
			panic("NewAlgorithm: power-of-two requires an rng")
		}
		return &PowerOfTwo{rng: rng, weights: weights}, nil
	default:
		panic(fmt.Sprintf("unhandled algorithm %q", name))
	}
}
