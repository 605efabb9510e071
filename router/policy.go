package router

import (
	"fmt"
	"math"

	"github.com/normanking/contentpipe/contract"
)

// Policy selects one arm from a filtered candidate set (spec.md §4.3
// "Policies (pluggable)"). Implementations never mutate state directly;
// learning happens through BanditState.Update after a reward is observed.
type Policy interface {
	Name() string
	Select(state *BanditState, candidates []contract.ProviderAdapter, features []float64) (string, error)
}

// breakTies applies spec.md §4.3 step 3's tie-break rule: lower cost, then
// lower p95 latency. p95Latency is looked up by arm id; callers without a
// latency history pass a nil map, which treats every arm as tied on
// latency.
func breakTies(candidates []contract.ProviderAdapter, armIDs []string, p95Latency map[string]float64) string {
	best := armIDs[0]
	bestAdapter := lookupAdapter(candidates, best)
	for _, id := range armIDs[1:] {
		a := lookupAdapter(candidates, id)
		if a == nil || bestAdapter == nil {
			continue
		}
		costBest := bestAdapter.CostPer1kIn() + bestAdapter.CostPer1kOut()
		costCand := a.CostPer1kIn() + a.CostPer1kOut()
		switch {
		case costCand < costBest:
			best, bestAdapter = id, a
		case costCand == costBest && p95Latency[id] < p95Latency[best]:
			best, bestAdapter = id, a
		}
	}
	return best
}

func lookupAdapter(candidates []contract.ProviderAdapter, armID string) contract.ProviderAdapter {
	for _, c := range candidates {
		if ArmID(c) == armID {
			return c
		}
	}
	return nil
}

// EpsilonGreedy explores with probability Epsilon, otherwise exploits the
// arm with highest running mean reward.
type EpsilonGreedy struct {
	Epsilon float64
}

func (p EpsilonGreedy) Name() string { return "epsilon_greedy" }

func (p EpsilonGreedy) Select(state *BanditState, candidates []contract.ProviderAdapter, _ []float64) (string, error) {
	if len(candidates) == 0 {
		return "", fmt.Errorf("router: no candidate arms")
	}
	if state.Float64() < p.Epsilon {
		idx := int(state.Float64() * float64(len(candidates)))
		if idx >= len(candidates) {
			idx = len(candidates) - 1
		}
		return ArmID(candidates[idx]), nil
	}

	var best string
	var bestMean float64
	first := true
	for _, c := range candidates {
		id := ArmID(c)
		mean, _ := state.Mean(id)
		if first || mean > bestMean {
			best, bestMean, first = id, mean, false
		}
	}
	return best, nil
}

// UCB1 implements `mean_i + c*sqrt(ln(N)/n_i)`, treating unseen arms
// (n_i == 0) as having infinite score so every arm is tried at least once.
type UCB1 struct {
	C float64
}

func (p UCB1) Name() string { return "ucb1" }

func (p UCB1) Select(state *BanditState, candidates []contract.ProviderAdapter, _ []float64) (string, error) {
	if len(candidates) == 0 {
		return "", fmt.Errorf("router: no candidate arms")
	}
	total := state.TotalCount()

	var best string
	bestScore := math.Inf(-1)
	for _, c := range candidates {
		id := ArmID(c)
		mean, n := state.Mean(id)
		var score float64
		if n == 0 {
			score = math.Inf(1)
		} else {
			score = mean + p.C*math.Sqrt(math.Log(float64(total))/float64(n))
		}
		if score > bestScore {
			bestScore, best = score, id
		}
	}
	return best, nil
}

// LinUCBDiagonal implements the diagonal contextual-bandit policy
// (spec.md §4.3: "θᵀx + α·sqrt(xᵀA⁻¹x)").
type LinUCBDiagonal struct {
	Alpha float64
}

func (p LinUCBDiagonal) Name() string { return "linucb_diagonal" }

func (p LinUCBDiagonal) Select(state *BanditState, candidates []contract.ProviderAdapter, features []float64) (string, error) {
	if len(candidates) == 0 {
		return "", fmt.Errorf("router: no candidate arms")
	}
	var best string
	bestScore := math.Inf(-1)
	for _, c := range candidates {
		id := ArmID(c)
		score := state.LinUCBScore(id, features, p.Alpha)
		if score > bestScore {
			bestScore, best = score, id
		}
	}
	return best, nil
}

// QualityFirst restricts selection to a curated shortlist of top-tier arm
// ids first, falling through to the wrapped policy over the full candidate
// set when the shortlist has no eligible members in this request's
// candidates (spec.md §4.3 step 2: "restrict to curated shortlist first;
// fall through if empty").
type QualityFirst struct {
	Shortlist []string
	Fallback  Policy
}

func (p QualityFirst) Name() string { return "quality_first" }

func (p QualityFirst) Select(state *BanditState, candidates []contract.ProviderAdapter, features []float64) (string, error) {
	shortlisted := filterShortlist(candidates, p.Shortlist)
	if len(shortlisted) > 0 {
		return p.Fallback.Select(state, shortlisted, features)
	}
	return p.Fallback.Select(state, candidates, features)
}

func filterShortlist(candidates []contract.ProviderAdapter, shortlist []string) []contract.ProviderAdapter {
	want := make(map[string]struct{}, len(shortlist))
	for _, id := range shortlist {
		want[id] = struct{}{}
	}
	var out []contract.ProviderAdapter
	for _, c := range candidates {
		if _, ok := want[ArmID(c)]; ok {
			out = append(out, c)
		}
	}
	return out
}
