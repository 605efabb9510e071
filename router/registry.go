package router

import (
	"fmt"
	"sort"
	"sync"

	"github.com/normanking/contentpipe/contract"
)

// ArmRegistry holds the set of available ProviderAdapter arms, grounded on
// the teacher's ai.ProviderRegistry (mutex-guarded map, Register/Get/List),
// generalized from environment-detected AI clients to capability-tagged
// routing arms.
type ArmRegistry struct {
	mu   sync.RWMutex
	arms map[string]contract.ProviderAdapter
}

func NewArmRegistry() *ArmRegistry {
	return &ArmRegistry{arms: make(map[string]contract.ProviderAdapter)}
}

// Register adds an arm keyed by "name:model_id" (spec.md §3 arm_id shape).
func (r *ArmRegistry) Register(adapter contract.ProviderAdapter) error {
	if adapter == nil {
		return fmt.Errorf("router: adapter cannot be nil")
	}
	id := ArmID(adapter)
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.arms[id]; exists {
		return fmt.Errorf("router: arm %q already registered", id)
	}
	r.arms[id] = adapter
	return nil
}

// ArmID derives the "provider:model" identifier spec.md §3 specifies.
func ArmID(adapter contract.ProviderAdapter) string {
	return adapter.Name() + ":" + adapter.ModelID()
}

// Get returns the adapter for an arm id.
func (r *ArmRegistry) Get(armID string) (contract.ProviderAdapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.arms[armID]
	return a, ok
}

// List returns all registered arm ids, sorted for deterministic iteration.
func (r *ArmRegistry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.arms))
	for id := range r.arms {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// estimateCost approximates the cost of a request against an arm, assuming
// promptTokens of input and maxOutputTokens of output.
func estimateCost(adapter contract.ProviderAdapter, promptTokens, maxOutputTokens int) float64 {
	in := float64(promptTokens) / 1000 * adapter.CostPer1kIn()
	out := float64(maxOutputTokens) / 1000 * adapter.CostPer1kOut()
	return in + out
}

// FilterCandidates implements spec.md §4.3 selection step 1: filter arms by
// capability and budget.
func (r *ArmRegistry) FilterCandidates(req TaskRequest, promptTokens, maxOutputTokens int) []contract.ProviderAdapter {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []contract.ProviderAdapter
	for _, id := range sortedKeys(r.arms) {
		adapter := r.arms[id]
		if !hasAllCapabilities(adapter.Capabilities(), req.RequiredCapabilities) {
			continue
		}
		if req.BudgetUSD > 0 && estimateCost(adapter, promptTokens, maxOutputTokens) > req.BudgetUSD {
			continue
		}
		out = append(out, adapter)
	}
	return out
}

func sortedKeys(m map[string]contract.ProviderAdapter) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func hasAllCapabilities(have, want []string) bool {
	set := make(map[string]struct{}, len(have))
	for _, c := range have {
		set[c] = struct{}{}
	}
	for _, c := range want {
		if _, ok := set[c]; !ok {
			return false
		}
	}
	return true
}
