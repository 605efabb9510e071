package router

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBanditState_MeanUpdatesRunningAverage(t *testing.T) {
	s := NewBanditState("test", 0, 1)
	s.Update("arm1", 1.0, nil)
	s.Update("arm1", 0.0, nil)

	mean, count := s.Mean("arm1")
	assert.InDelta(t, 0.5, mean, 1e-9)
	assert.EqualValues(t, 2, count)
}

func TestBanditState_LinUCBScoreFavorsHigherRewardDirection(t *testing.T) {
	s := NewBanditState("test", 2, 1)
	s.Update("arm1", 1.0, []float64{1, 0})
	s.Update("arm2", 0.0, []float64{1, 0})

	score1 := s.LinUCBScore("arm1", []float64{1, 0}, 0.1)
	score2 := s.LinUCBScore("arm2", []float64{1, 0}, 0.1)
	assert.Greater(t, score1, score2)
}

func TestBanditState_SnapshotRestoreRoundTrip(t *testing.T) {
	s := NewBanditState("llm", 2, 99)
	s.Update("armA", 0.7, []float64{1, 2})
	s.Update("armB", 0.3, []float64{0, 1})

	snap := s.Snapshot()
	assert.Equal(t, "llm", snap.Domain)
	assert.EqualValues(t, 99, snap.RNGSeed)
	require.Len(t, snap.Arms, 2)

	restored := RestoreBanditState(snap, 2)
	meanA, countA := restored.Mean("armA")
	assert.InDelta(t, 0.7, meanA, 1e-9)
	assert.EqualValues(t, 1, countA)

	// restored RNG must reproduce the same draw sequence as a fresh state
	// seeded identically (spec.md §4.3 "restore must include RNG seed").
	fresh := NewBanditState("llm", 2, 99)
	assert.Equal(t, fresh.Float64(), restored.Float64())
}

func TestBanditState_UnseenArmHasZeroMean(t *testing.T) {
	s := NewBanditState("test", 0, 1)
	mean, count := s.Mean("never-seen")
	assert.Equal(t, 0.0, mean)
	assert.EqualValues(t, 0, count)
}
