// Package router implements the contextual-bandit LLM routing substrate of
// spec.md §4.3: an arm registry of contract.ProviderAdapter, a set of
// pluggable selection policies, reward composition, a deterministic
// high-stakes backstop, and persisted bandit state.
//
// The arm registry is grounded on the teacher's ai.ProviderRegistry
// (mutex-guarded map, Register/Get/List), generalized from "one AI client
// per detected environment" to "N capability-tagged arms filtered per
// request".
package router

import (
	"time"

	"github.com/normanking/contentpipe/tenancy"
)

// TaskRequest is the logical LLM request the router resolves to a
// RouteDecision (spec.md §4.3).
type TaskRequest struct {
	Prompt               string
	TaskType             string
	RequiredCapabilities []string
	BudgetUSD            float64
	HighStakes           bool
	ContextFeatures      []float64
	Tenant               tenancy.TenantContext
}

// RouteDecision is the router's output (spec.md §3).
type RouteDecision struct {
	ArmID             string
	PolicyName        string
	ContextFeatures   []float64
	EstimatedCostUSD  float64
	CapabilityTags    []string
}

// CacheMetadata reports whether Complete was served from the multi-level
// semantic cache substrate (spec.md §4.4, §8 scenarios 3-4), for the
// caller to stamp onto its StepResult.Metadata["cache"].
type CacheMetadata struct {
	Hit        bool
	Kind       string // cache.LayerExact | cache.LayerSemantic, empty on miss
	Similarity float64
}

// ToStepMetadata renders the cache outcome in the shape
// contract.StepResult.Metadata["cache"] takes (spec.md §7/§8 scenarios 3-4:
// metadata.cache.hit, cache.kind, similarity). AnalysisTool implementations
// that call Router.Complete stamp this directly onto their result.
func (m CacheMetadata) ToStepMetadata() map[string]interface{} {
	return map[string]interface{}{
		"hit":        m.Hit,
		"kind":       m.Kind,
		"similarity": m.Similarity,
	}
}

// Reward is recorded after a routed call completes (spec.md §3).
type Reward struct {
	ArmID     string
	Quality   float64
	CostUSD   float64
	LatencyMS int64
	Success   bool
	Composite float64
}

// RewardWeights parameterizes composite reward scoring (spec.md §4.3).
// Defaults resolve the Open Question in spec.md §9 (no stable source for
// non-QUALITY_FIRST weights): an even split between quality, cost, and
// latency for general policies, and the spec-given 0.8/0.1/0.1 split for
// QUALITY_FIRST.
type RewardWeights struct {
	Quality float64
	Cost    float64
	Latency float64
}

// DefaultWeights is used by ε-greedy, UCB1, and LinUCB-diagonal.
var DefaultWeights = RewardWeights{Quality: 0.34, Cost: 0.33, Latency: 0.33}

// QualityFirstWeights is used by the QUALITY_FIRST policy (spec.md §4.3:
// "QUALITY_FIRST uses w_q=0.8").
var QualityFirstWeights = RewardWeights{Quality: 0.8, Cost: 0.1, Latency: 0.1}

// ComposeReward implements `composite = w_q·quality + w_c·(1-norm_cost) +
// w_l·(1-norm_latency) - penalty(failure)`. normCost/normLatency must
// already be normalized to [0,1] by the caller (typically cost/budget and
// latency/p95_ceiling, clamped).
func ComposeReward(w RewardWeights, quality, normCost, normLatency float64, success bool) float64 {
	composite := w.Quality*quality + w.Cost*(1-normCost) + w.Latency*(1-normLatency)
	if !success {
		composite -= 0.5
	}
	if composite > 1 {
		composite = 1
	}
	if composite < -1 {
		composite = -1
	}
	return composite
}

// QualityPrior resolves spec.md §4.3's "on missing quality, use a prior of
// 0.5 only if success else 0" rule.
func QualityPrior(success bool) float64 {
	if success {
		return 0.5
	}
	return 0
}

// SnapshotInterval is the default interval bandit state is persisted at,
// in addition to the mandatory persist-on-shutdown.
const SnapshotInterval = 5 * time.Minute
