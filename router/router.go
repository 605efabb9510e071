package router

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/normanking/contentpipe/cache"
	"github.com/normanking/contentpipe/config"
	"github.com/normanking/contentpipe/contract"
	"github.com/normanking/contentpipe/logging"
	"github.com/normanking/contentpipe/telemetry"
)

// highStakesQualityFloor is the threshold below which a high-stakes task's
// reward triggers the deterministic backstop (spec.md §4.3).
const highStakesQualityFloor = 0.7

// Router ties the arm registry, selection policy, and bandit state
// together, implementing spec.md §4.3's selection order, reward
// composition, and deterministic high-stakes backstop.
type Router struct {
	registry *ArmRegistry
	policy   Policy
	state    *BanditState
	weights  RewardWeights
	cache    *cache.MultiLevelCache

	logger    logging.Logger
	telemetry *telemetry.Provider

	mu             sync.Mutex
	latencySamples map[string][]int64
}

// SetCache wires the multi-level semantic cache into the routed completion
// path (spec.md §1/§4.3-4.4: "routed LLM-call substrate applies a
// multi-level semantic cache"). No production caller constructs a Router
// with the cache pre-wired via New, since the cache's own construction
// needs config this constructor doesn't see; callers assemble both and
// connect them with SetCache once at startup.
func (r *Router) SetCache(c *cache.MultiLevelCache) {
	r.cache = c
}

// New builds a Router from process config, resolving its policy and
// per-policy reward weights (spec.md §4.3 "weights depend on policy").
func New(cfg *config.Config, registry *ArmRegistry, contextDim int, rngSeed int64, logger logging.Logger, tel *telemetry.Provider) *Router {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	weights := DefaultWeights
	policyName := cfg.Router.Policy
	if policyName == "" {
		policyName = "quality_first"
	}

	var policy Policy
	switch policyName {
	case "quality_first":
		policy = QualityFirst{Shortlist: cfg.Router.QualityFirstTasks, Fallback: UCB1{C: 1.4}}
		weights = QualityFirstWeights
	case "cost_aware":
		policy = EpsilonGreedy{Epsilon: 0.1}
	case "latency_aware":
		policy = LinUCBDiagonal{Alpha: 0.5}
	default:
		policy = UCB1{C: 1.4}
	}
	if w, ok := cfg.Router.RewardWeights[policyName]; ok {
		weights = RewardWeights{Quality: w.Quality, Cost: w.Cost, Latency: w.Latency}
	}

	return &Router{
		registry:       registry,
		policy:         policy,
		state:          NewBanditState(policyName, contextDim, rngSeed),
		weights:        weights,
		logger:         logger,
		telemetry:      tel,
		latencySamples: make(map[string][]int64),
	}
}

// Route resolves a TaskRequest to a RouteDecision following spec.md §4.3's
// four-step selection order: capability/budget filter, QUALITY_FIRST
// shortlist, bandit query, cost/latency tie-break.
func (r *Router) Route(ctx context.Context, req TaskRequest, promptTokens, maxOutputTokens int) (RouteDecision, error) {
	candidates := r.registry.FilterCandidates(req, promptTokens, maxOutputTokens)
	if len(candidates) == 0 {
		return RouteDecision{}, fmt.Errorf("router: no arm satisfies capabilities %v within budget %.4f", req.RequiredCapabilities, req.BudgetUSD)
	}

	armID, err := r.policy.Select(r.state, candidates, req.ContextFeatures)
	if err != nil {
		return RouteDecision{}, err
	}

	adapter := lookupAdapter(candidates, armID)
	decision := RouteDecision{
		ArmID:            armID,
		PolicyName:       r.policy.Name(),
		ContextFeatures:  req.ContextFeatures,
		EstimatedCostUSD: estimateCost(adapter, promptTokens, maxOutputTokens),
		CapabilityTags:   adapter.Capabilities(),
	}
	return decision, nil
}

// Complete invokes the routed arm via its ProviderAdapter and records the
// resulting reward, applying the deterministic high-stakes backstop
// (spec.md §4.3) when the first attempt under-delivers. When a cache is
// wired (SetCache), it is consulted before the call and written through
// after a successful one (spec.md §4.4), and the returned CacheMetadata
// reports whether — and how — the response was served from cache.
func (r *Router) Complete(ctx context.Context, req TaskRequest, decision RouteDecision, creq contract.CompletionRequest, evaluate func(contract.CompletionResponse) (quality float64, hasQuality bool)) (contract.CompletionResponse, Reward, CacheMetadata, error) {
	adapter, ok := r.registry.Get(decision.ArmID)
	if !ok {
		return contract.CompletionResponse{}, Reward{}, CacheMetadata{}, fmt.Errorf("router: arm %q not registered", decision.ArmID)
	}

	cacheKey := ""
	if r.cache != nil {
		cacheKey = cache.BuildKey(req.Tenant, cache.DomainLLM, creq.Prompt, adapter.ModelID())
		if raw, hit, kind, sim, err := r.cache.Get(ctx, cache.DomainLLM, cacheKey, creq.Prompt); err == nil && hit {
			var resp contract.CompletionResponse
			if err := json.Unmarshal(raw, &resp); err == nil {
				return resp, Reward{ArmID: decision.ArmID, Quality: QualityPrior(true), Success: true}, CacheMetadata{Hit: true, Kind: kind, Similarity: sim}, nil
			}
		}
	}

	resp, reward, err := r.attempt(ctx, decision, adapter, creq, evaluate)
	if err != nil {
		return resp, reward, CacheMetadata{}, err
	}
	r.cacheStore(ctx, cacheKey, creq.Prompt, resp)

	if req.HighStakes && reward.Quality < highStakesQualityFloor {
		top := r.topTierShortlistArm(req)
		if top != "" && top != decision.ArmID {
			backupAdapter, ok := r.registry.Get(top)
			if ok {
				r.logger.Warn("router: high-stakes backstop retry", map[string]interface{}{
					"original_arm": decision.ArmID,
					"backup_arm":   top,
					"quality":      reward.Quality,
				})
				backupDecision := decision
				backupDecision.ArmID = top
				backupResp, backupReward, berr := r.attempt(ctx, backupDecision, backupAdapter, creq, evaluate)
				if berr == nil && backupReward.Composite > reward.Composite {
					r.cacheStore(ctx, cacheKey, creq.Prompt, backupResp)
					return backupResp, backupReward, CacheMetadata{}, nil
				}
			}
		}
	}

	return resp, reward, CacheMetadata{}, nil
}

// cacheStore writes a completed response through to the wired cache, if
// any. Encoding/cache failures are non-fatal (spec.md §4.4 failure
// semantics).
func (r *Router) cacheStore(ctx context.Context, key, promptCanonical string, resp contract.CompletionResponse) {
	if r.cache == nil || key == "" {
		return
	}
	raw, err := json.Marshal(resp)
	if err != nil {
		return
	}
	if err := r.cache.Set(ctx, cache.DomainLLM, key, promptCanonical, raw, 0); err != nil {
		r.logger.Warn("router: cache write failed", map[string]interface{}{"error": err.Error()})
	}
}

func (r *Router) attempt(ctx context.Context, decision RouteDecision, adapter contract.ProviderAdapter, creq contract.CompletionRequest, evaluate func(contract.CompletionResponse) (float64, bool)) (contract.CompletionResponse, Reward, error) {
	resp, err := adapter.Complete(ctx, creq)
	success := err == nil

	var quality float64
	if success && evaluate != nil {
		if q, ok := evaluate(resp); ok {
			quality = q
		} else {
			quality = QualityPrior(success)
		}
	} else {
		quality = QualityPrior(success)
	}

	costUSD := estimateCost(adapter, creq.MaxTokens, creq.MaxTokens)
	latencyMS := resp.LatencyMS
	r.recordLatencySample(decision.ArmID, latencyMS)

	normCost := normalize(costUSD, r.weights.Cost)
	normLatency := r.normalizedLatency(decision.ArmID, latencyMS)
	composite := ComposeReward(r.weights, quality, normCost, normLatency, success)

	reward := Reward{
		ArmID:     decision.ArmID,
		Quality:   quality,
		CostUSD:   costUSD,
		LatencyMS: latencyMS,
		Success:   success,
		Composite: composite,
	}
	r.state.Update(decision.ArmID, composite, decision.ContextFeatures)
	r.logger.Debug("router: reward recorded", map[string]interface{}{
		"arm_id":    reward.ArmID,
		"quality":   reward.Quality,
		"cost_usd":  reward.CostUSD,
		"latency_ms": reward.LatencyMS,
		"success":   reward.Success,
		"composite": reward.Composite,
	})

	if err != nil {
		return resp, reward, err
	}
	return resp, reward, nil
}

// topTierShortlistArm returns the highest mean-reward arm among the
// QUALITY_FIRST shortlist restricted to candidates satisfying req, or ""
// when no shortlist arm qualifies.
func (r *Router) topTierShortlistArm(req TaskRequest) string {
	qf, ok := r.policy.(QualityFirst)
	if !ok || len(qf.Shortlist) == 0 {
		return ""
	}
	candidates := r.registry.FilterCandidates(req, 0, 0)
	shortlisted := filterShortlist(candidates, qf.Shortlist)
	if len(shortlisted) == 0 {
		return ""
	}
	var best string
	var bestMean float64
	first := true
	for _, c := range shortlisted {
		id := ArmID(c)
		mean, _ := r.state.Mean(id)
		if first || mean > bestMean {
			best, bestMean, first = id, mean, false
		}
	}
	return best
}

func (r *Router) recordLatencySample(armID string, latencyMS int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	samples := append(r.latencySamples[armID], latencyMS)
	if len(samples) > 100 {
		samples = samples[len(samples)-100:]
	}
	r.latencySamples[armID] = samples
}

// normalizedLatency returns latencyMS normalized against the arm's
// observed p95, clamped to [0,1]; an arm with fewer than 5 samples
// normalizes against a conservative 10s ceiling instead.
func (r *Router) normalizedLatency(armID string, latencyMS int64) float64 {
	r.mu.Lock()
	samples := append([]int64(nil), r.latencySamples[armID]...)
	r.mu.Unlock()

	ceiling := int64(10_000)
	if len(samples) >= 5 {
		ceiling = p95(samples)
	}
	if ceiling == 0 {
		return 0
	}
	v := float64(latencyMS) / float64(ceiling)
	if v > 1 {
		v = 1
	}
	return v
}

func p95(samples []int64) int64 {
	sorted := append([]int64(nil), samples...)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j-1] > sorted[j]; j-- {
			sorted[j-1], sorted[j] = sorted[j], sorted[j-1]
		}
	}
	idx := int(float64(len(sorted)) * 0.95)
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// normalize clamps a raw cost against a nominal per-call ceiling; weight is
// accepted for call-site symmetry but unused (cost ceiling is absolute,
// not policy-dependent).
func normalize(costUSD float64, _ float64) float64 {
	const ceiling = 0.50 // nominal per-call cost ceiling, USD
	v := costUSD / ceiling
	if v > 1 {
		v = 1
	}
	return v
}

// Snapshot returns the router's current bandit state for persistence.
func (r *Router) Snapshot() PolicySnapshot {
	return r.state.Snapshot()
}
