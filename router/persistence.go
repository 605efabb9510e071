package router

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
)

// snapshotVersion is bumped whenever the on-disk shape changes in a way
// that isn't purely additive. Restore ignores unknown fields (spec.md §6:
// "versioned; unknown fields ignored").
const snapshotVersion = 1

// ArmSnapshot is one arm's persisted learned state.
type ArmSnapshot struct {
	ID    string    `json:"id"`
	ADiag []float64 `json:"A_diag,omitempty"`
	B     []float64 `json:"b,omitempty"`
	Count int64     `json:"count"`
	Mean  float64   `json:"mean_reward"`
}

// PolicySnapshot is one domain's persisted bandit state.
type PolicySnapshot struct {
	Domain  string        `json:"domain"`
	Arms    []ArmSnapshot `json:"arms"`
	RNGSeed int64         `json:"rng_seed"`
}

// SnapshotDocument is the full persisted file (spec.md §6 Persisted state
// layout): `{version, policies:[{domain, arms:[...], rng_seed}]}`.
type SnapshotDocument struct {
	Version  int              `json:"version"`
	Policies []PolicySnapshot `json:"policies"`
}

// SaveSnapshots writes every domain's bandit state to path as one JSON
// document, atomically via a temp-file rename so a crash mid-write never
// leaves a truncated snapshot on disk.
func SaveSnapshots(path string, states map[string]*BanditState) error {
	doc := SnapshotDocument{Version: snapshotVersion}
	for _, domain := range sortedDomainKeys(states) {
		doc.Policies = append(doc.Policies, states[domain].Snapshot())
	}

	encoded, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("router: encoding bandit snapshot: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, encoded, 0o644); err != nil {
		return fmt.Errorf("router: writing bandit snapshot: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("router: committing bandit snapshot: %w", err)
	}
	return nil
}

// LoadSnapshots reads a snapshot document and restores one BanditState per
// domain, keyed by domain name. dimByDomain supplies each domain's context
// feature dimensionality for LinUCB-diagonal reconstruction; domains absent
// from it restore with dim 0 (mean-reward-only policies).
func LoadSnapshots(path string, dimByDomain map[string]int) (map[string]*BanditState, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("router: reading bandit snapshot: %w", err)
	}
	var doc SnapshotDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("router: decoding bandit snapshot: %w", err)
	}

	states := make(map[string]*BanditState, len(doc.Policies))
	for _, snap := range doc.Policies {
		dim := dimByDomain[snap.Domain]
		states[snap.Domain] = RestoreBanditState(snap, dim)
	}
	return states, nil
}

func sortedDomainKeys(m map[string]*BanditState) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
