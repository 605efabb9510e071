package router

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArmRegistry_RegisterRejectsDuplicate(t *testing.T) {
	reg := NewArmRegistry()
	adapter := fakeAdapter{name: "a", model: "m1", capabilities: []string{"summarize"}}
	require.NoError(t, reg.Register(adapter))
	assert.Error(t, reg.Register(adapter))
}

func TestArmRegistry_FilterByBudget(t *testing.T) {
	reg := newTestRegistry()
	candidates := reg.FilterCandidates(TaskRequest{RequiredCapabilities: []string{"summarize"}, BudgetUSD: 0.01}, 1000, 1000)
	require.Len(t, candidates, 1)
	assert.Equal(t, "gpt-cheap", candidates[0].ModelID())
}

func TestArmRegistry_ListIsSorted(t *testing.T) {
	reg := newTestRegistry()
	ids := reg.List()
	require.Len(t, ids, 2)
	assert.Equal(t, "openai:gpt-cheap", ids[0])
	assert.Equal(t, "openai:gpt-tier1", ids[1])
}
