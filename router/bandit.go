package router

import (
	"math"
	"math/rand"
	"sort"
	"sync"
)

// ArmStats is the per-arm learned state. MeanReward/Count back ε-greedy and
// UCB1; ADiag/B back LinUCB-diagonal (spec.md §3 BanditState: "A: diag
// matrix (d), b: vector (d), count").
type ArmStats struct {
	ID         string
	MeanReward float64
	Count      int64
	ADiag      []float64 // diagonal of A, length Dim; initialized to 1s (ridge prior)
	B          []float64 // length Dim
}

// BanditState is the full learned state for one routing domain (policy
// family), covering every arm it has seen. Deterministic given RNGSeed and
// the sequence of Update calls (spec.md §4.3 "State").
type BanditState struct {
	Domain  string
	Dim     int
	RNGSeed int64

	mu   sync.Mutex
	rng  *rand.Rand
	arms map[string]*ArmStats
}

// NewBanditState creates learner state for a routing domain with context
// feature dimensionality dim (0 if the domain's policies never use LinUCB).
func NewBanditState(domain string, dim int, seed int64) *BanditState {
	return &BanditState{
		Domain:  domain,
		Dim:     dim,
		RNGSeed: seed,
		rng:     rand.New(rand.NewSource(seed)),
		arms:    make(map[string]*ArmStats),
	}
}

func (s *BanditState) ensureArmLocked(armID string) *ArmStats {
	a, ok := s.arms[armID]
	if !ok {
		a = &ArmStats{ID: armID}
		if s.Dim > 0 {
			a.ADiag = onesVector(s.Dim)
			a.B = make([]float64, s.Dim)
		}
		s.arms[armID] = a
	}
	return a
}

func onesVector(n int) []float64 {
	v := make([]float64, n)
	for i := range v {
		v[i] = 1
	}
	return v
}

// Update folds a reward observation into the arm's learned state: running
// mean for ε-greedy/UCB1, and the LinUCB-diagonal (A_i, b_i) update when
// features are supplied.
func (s *BanditState) Update(armID string, reward float64, features []float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a := s.ensureArmLocked(armID)
	a.Count++
	a.MeanReward += (reward - a.MeanReward) / float64(a.Count)

	if s.Dim > 0 && len(features) == s.Dim {
		for i, x := range features {
			a.ADiag[i] += x * x
			a.B[i] += x * reward
		}
	}
}

// Mean returns an arm's running mean reward and observation count.
func (s *BanditState) Mean(armID string) (float64, int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.arms[armID]
	if !ok {
		return 0, 0
	}
	return a.MeanReward, a.Count
}

// TotalCount is the sum of observations across all arms (N in UCB1's
// ln(N)/n_i term).
func (s *BanditState) TotalCount() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var total int64
	for _, a := range s.arms {
		total += a.Count
	}
	return total
}

// LinUCBScore computes θᵀx + α·sqrt(xᵀA⁻¹x) for armID under the diagonal
// approximation, where θ_i = b_i/A_i and A⁻¹ is diagonal inversion.
func (s *BanditState) LinUCBScore(armID string, features []float64, alpha float64) float64 {
	s.mu.Lock()
	a := s.ensureArmLocked(armID)
	aDiag := append([]float64(nil), a.ADiag...)
	b := append([]float64(nil), a.B...)
	s.mu.Unlock()

	if len(features) != s.Dim || s.Dim == 0 {
		return 0
	}
	var mean, variance float64
	for i, x := range features {
		theta := b[i] / aDiag[i]
		mean += theta * x
		variance += (x * x) / aDiag[i]
	}
	return mean + alpha*math.Sqrt(variance)
}

// Float64 returns the next deterministic pseudo-random float in [0,1) from
// this state's seeded RNG, used by ε-greedy's exploration draw.
func (s *BanditState) Float64() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Float64()
}

// Snapshot captures the state for persistence (spec.md §6 Persisted state
// layout).
func (s *BanditState) Snapshot() PolicySnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	arms := make([]ArmSnapshot, 0, len(s.arms))
	for _, id := range sortedArmIDs(s.arms) {
		a := s.arms[id]
		arms = append(arms, ArmSnapshot{
			ID:    a.ID,
			ADiag: append([]float64(nil), a.ADiag...),
			B:     append([]float64(nil), a.B...),
			Count: a.Count,
			Mean:  a.MeanReward,
		})
	}
	return PolicySnapshot{Domain: s.Domain, Arms: arms, RNGSeed: s.RNGSeed}
}

func sortedArmIDs(m map[string]*ArmStats) []string {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// RestoreBanditState rebuilds state from a snapshot, re-seeding the RNG so subsequent
// ε-greedy draws reproduce exactly (spec.md §4.3 "restore must include RNG
// seed to preserve reproducibility under tests").
func RestoreBanditState(snap PolicySnapshot, dim int) *BanditState {
	s := NewBanditState(snap.Domain, dim, snap.RNGSeed)
	for _, a := range snap.Arms {
		s.arms[a.ID] = &ArmStats{
			ID:         a.ID,
			MeanReward: a.Mean,
			Count:      a.Count,
			ADiag:      append([]float64(nil), a.ADiag...),
			B:          append([]float64(nil), a.B...),
		}
	}
	return s
}
