package router

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEpsilonGreedy_ExploitsBestMeanWhenNotExploring(t *testing.T) {
	reg := newTestRegistry()
	candidates := reg.FilterCandidates(TaskRequest{RequiredCapabilities: []string{"summarize"}}, 0, 0)
	require.Len(t, candidates, 2)

	s := NewBanditState("test", 0, 1)
	s.Update("openai:gpt-tier1", 0.9, nil)
	s.Update("openai:gpt-cheap", 0.1, nil)

	p := EpsilonGreedy{Epsilon: 0} // never explore
	armID, err := p.Select(s, candidates, nil)
	require.NoError(t, err)
	assert.Equal(t, "openai:gpt-tier1", armID)
}

func TestUCB1_PrefersUnseenArms(t *testing.T) {
	reg := newTestRegistry()
	candidates := reg.FilterCandidates(TaskRequest{RequiredCapabilities: []string{"summarize"}}, 0, 0)

	s := NewBanditState("test", 0, 1)
	s.Update("openai:gpt-tier1", 0.9, nil) // seen once; gpt-cheap unseen

	p := UCB1{C: 1.4}
	armID, err := p.Select(s, candidates, nil)
	require.NoError(t, err)
	assert.Equal(t, "openai:gpt-cheap", armID, "unseen arms score +Inf and must be tried first")
}

func TestQualityFirst_FallsThroughWhenShortlistEmpty(t *testing.T) {
	reg := newTestRegistry()
	candidates := reg.FilterCandidates(TaskRequest{RequiredCapabilities: []string{"summarize"}}, 0, 0)
	s := NewBanditState("test", 0, 1)
	s.Update("openai:gpt-cheap", 0.8, nil)

	p := QualityFirst{Shortlist: []string{"nonexistent:model"}, Fallback: EpsilonGreedy{Epsilon: 0}}
	armID, err := p.Select(s, candidates, nil)
	require.NoError(t, err)
	assert.Equal(t, "openai:gpt-cheap", armID)
}

func TestQualityFirst_RestrictsToShortlistWhenPresent(t *testing.T) {
	reg := newTestRegistry()
	candidates := reg.FilterCandidates(TaskRequest{RequiredCapabilities: []string{"summarize"}}, 0, 0)
	s := NewBanditState("test", 0, 1)
	s.Update("openai:gpt-tier1", 0.1, nil) // low mean, but it's the only shortlisted arm

	p := QualityFirst{Shortlist: []string{"openai:gpt-tier1"}, Fallback: EpsilonGreedy{Epsilon: 0}}
	armID, err := p.Select(s, candidates, nil)
	require.NoError(t, err)
	assert.Equal(t, "openai:gpt-tier1", armID)
}

func TestBreakTies_PrefersLowerCost(t *testing.T) {
	reg := newTestRegistry()
	candidates := reg.FilterCandidates(TaskRequest{RequiredCapabilities: []string{"summarize"}}, 0, 0)
	winner := breakTies(candidates, []string{"openai:gpt-tier1", "openai:gpt-cheap"}, nil)
	assert.Equal(t, "openai:gpt-cheap", winner)
}
