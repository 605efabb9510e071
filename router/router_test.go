package router

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normanking/contentpipe/cache"
	"github.com/normanking/contentpipe/config"
	"github.com/normanking/contentpipe/contract"
)

type fakeAdapter struct {
	name         string
	model        string
	capabilities []string
	costIn       float64
	costOut      float64
	window       int
	respond      func(contract.CompletionRequest) (contract.CompletionResponse, error)
}

func (f fakeAdapter) Name() string            { return f.name }
func (f fakeAdapter) ModelID() string         { return f.model }
func (f fakeAdapter) Capabilities() []string  { return f.capabilities }
func (f fakeAdapter) CostPer1kIn() float64    { return f.costIn }
func (f fakeAdapter) CostPer1kOut() float64   { return f.costOut }
func (f fakeAdapter) ContextWindow() int      { return f.window }
func (f fakeAdapter) Complete(_ context.Context, req contract.CompletionRequest) (contract.CompletionResponse, error) {
	return f.respond(req)
}

func okResponder(text string, latencyMS int64) func(contract.CompletionRequest) (contract.CompletionResponse, error) {
	return func(req contract.CompletionRequest) (contract.CompletionResponse, error) {
		return contract.CompletionResponse{Text: text, FinishReason: "stop", LatencyMS: latencyMS}, nil
	}
}

func newTestRegistry() *ArmRegistry {
	reg := NewArmRegistry()
	_ = reg.Register(fakeAdapter{
		name: "openai", model: "gpt-tier1", capabilities: []string{"summarize", "claim_extraction"},
		costIn: 0.01, costOut: 0.03, window: 128_000, respond: okResponder("tier1 output", 500),
	})
	_ = reg.Register(fakeAdapter{
		name: "openai", model: "gpt-cheap", capabilities: []string{"summarize"},
		costIn: 0.001, costOut: 0.002, window: 16_000, respond: okResponder("cheap output", 200),
	})
	return reg
}

func TestRouter_RouteFiltersByCapability(t *testing.T) {
	reg := newTestRegistry()
	cfg := config.DefaultConfig()
	cfg.Router.Policy = "cost_aware"
	r := New(cfg, reg, 0, 42, nil, nil)

	decision, err := r.Route(context.Background(), TaskRequest{RequiredCapabilities: []string{"claim_extraction"}}, 100, 100)
	require.NoError(t, err)
	assert.Equal(t, "openai:gpt-tier1", decision.ArmID)
}

func TestRouter_RouteErrorsWhenNoArmQualifies(t *testing.T) {
	reg := newTestRegistry()
	cfg := config.DefaultConfig()
	r := New(cfg, reg, 0, 42, nil, nil)

	_, err := r.Route(context.Background(), TaskRequest{RequiredCapabilities: []string{"video_generation"}}, 100, 100)
	assert.Error(t, err)
}

func TestRouter_CompleteRecordsReward(t *testing.T) {
	reg := newTestRegistry()
	cfg := config.DefaultConfig()
	cfg.Router.Policy = "cost_aware"
	r := New(cfg, reg, 0, 1, nil, nil)

	decision, err := r.Route(context.Background(), TaskRequest{RequiredCapabilities: []string{"summarize"}}, 50, 50)
	require.NoError(t, err)

	resp, reward, cacheMeta, err := r.Complete(context.Background(), TaskRequest{RequiredCapabilities: []string{"summarize"}}, decision,
		contract.CompletionRequest{Prompt: "hi"},
		func(r contract.CompletionResponse) (float64, bool) { return 0.9, true })
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Text)
	assert.Equal(t, 0.9, reward.Quality)
	assert.True(t, reward.Success)
	assert.False(t, cacheMeta.Hit, "no cache wired, should never report a hit")
}

func TestRouter_HighStakesBackstopRetriesOnLowQuality(t *testing.T) {
	reg := NewArmRegistry()
	require.NoError(t, reg.Register(fakeAdapter{
		name: "cheapco", model: "fast", capabilities: []string{"summarize"},
		costIn: 0.001, costOut: 0.001, window: 8000, respond: okResponder("weak output", 100),
	}))
	require.NoError(t, reg.Register(fakeAdapter{
		name: "premium", model: "tier1", capabilities: []string{"summarize"},
		costIn: 0.02, costOut: 0.04, window: 128_000, respond: okResponder("strong output", 300),
	}))

	cfg := config.DefaultConfig()
	cfg.Router.Policy = "quality_first"
	cfg.Router.QualityFirstTasks = []string{"premium:tier1"}
	r := New(cfg, reg, 0, 7, nil, nil)

	decision := RouteDecision{ArmID: "cheapco:fast"}
	calls := 0
	resp, reward, _, err := r.Complete(context.Background(), TaskRequest{HighStakes: true, RequiredCapabilities: []string{"summarize"}}, decision,
		contract.CompletionRequest{Prompt: "important"},
		func(resp contract.CompletionResponse) (float64, bool) {
			calls++
			if resp.Text == "weak output" {
				return 0.3, true // below the 0.7 floor, triggers backstop
			}
			return 0.95, true
		})
	require.NoError(t, err)
	assert.Equal(t, 2, calls, "both attempts should be evaluated")
	assert.Equal(t, "strong output", resp.Text)
	assert.Equal(t, 0.95, reward.Quality)
}

// fixedEmbedder returns the same embedding for every prompt, so any two
// prompts routed through it are semantically "identical" for test purposes.
type fixedEmbedder struct{}

func (fixedEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	return []float32{1, 0, 0}, nil
}

func TestRouter_CompleteServesExactCacheHit(t *testing.T) {
	reg := newTestRegistry()
	cfg := config.DefaultConfig()
	cfg.Router.Policy = "cost_aware"
	r := New(cfg, reg, 0, 1, nil, nil)
	r.SetCache(cache.New(cache.NewLRULayer(64), nil, cache.NewSemanticLayer(fixedEmbedder{}, 64), nil, nil))

	decision, err := r.Route(context.Background(), TaskRequest{RequiredCapabilities: []string{"summarize"}}, 50, 50)
	require.NoError(t, err)
	req := TaskRequest{RequiredCapabilities: []string{"summarize"}}
	creq := contract.CompletionRequest{Prompt: "summarize this exact prompt"}
	evaluate := func(contract.CompletionResponse) (float64, bool) { return 0.9, true }

	first, _, firstMeta, err := r.Complete(context.Background(), req, decision, creq, evaluate)
	require.NoError(t, err)
	assert.False(t, firstMeta.Hit)

	second, _, secondMeta, err := r.Complete(context.Background(), req, decision, creq, evaluate)
	require.NoError(t, err)
	assert.True(t, secondMeta.Hit)
	assert.Equal(t, cache.LayerExact, secondMeta.Kind)
	assert.GreaterOrEqual(t, secondMeta.Similarity, 0.9)
	assert.Equal(t, first.Text, second.Text)
}

func TestRouter_CompleteServesSemanticCacheHit(t *testing.T) {
	reg := newTestRegistry()
	cfg := config.DefaultConfig()
	cfg.Router.Policy = "cost_aware"
	r := New(cfg, reg, 0, 1, nil, nil)
	r.SetCache(cache.New(cache.NewLRULayer(64), nil, cache.NewSemanticLayer(fixedEmbedder{}, 64), nil, nil))

	decision, err := r.Route(context.Background(), TaskRequest{RequiredCapabilities: []string{"summarize"}}, 50, 50)
	require.NoError(t, err)
	req := TaskRequest{RequiredCapabilities: []string{"summarize"}}
	evaluate := func(contract.CompletionResponse) (float64, bool) { return 0.9, true }

	_, _, _, err = r.Complete(context.Background(), req, decision,
		contract.CompletionRequest{Prompt: "please summarize the quarterly report"}, evaluate)
	require.NoError(t, err)

	// A different prompt maps to a different exact key but, via the fixed
	// embedder, the same embedding, so only the semantic layer can match it.
	_, _, meta, err := r.Complete(context.Background(), req, decision,
		contract.CompletionRequest{Prompt: "please summarize the annual report instead"}, evaluate)
	require.NoError(t, err)
	assert.True(t, meta.Hit)
	assert.Equal(t, cache.LayerSemantic, meta.Kind)
	assert.GreaterOrEqual(t, meta.Similarity, 0.9)
}

func TestCacheMetadata_ToStepMetadata(t *testing.T) {
	meta := CacheMetadata{Hit: true, Kind: cache.LayerSemantic, Similarity: 0.93}
	out := meta.ToStepMetadata()
	assert.Equal(t, true, out["hit"])
	assert.Equal(t, cache.LayerSemantic, out["kind"])
	assert.Equal(t, 0.93, out["similarity"])
}

func TestRouter_CompleteReturnsErrorOnAdapterFailure(t *testing.T) {
	reg := NewArmRegistry()
	require.NoError(t, reg.Register(fakeAdapter{
		name: "flaky", model: "v1", capabilities: []string{"summarize"},
		costIn: 0.01, costOut: 0.01, window: 8000,
		respond: func(contract.CompletionRequest) (contract.CompletionResponse, error) {
			return contract.CompletionResponse{}, errors.New("provider unavailable")
		},
	}))
	cfg := config.DefaultConfig()
	r := New(cfg, reg, 0, 1, nil, nil)

	decision := RouteDecision{ArmID: "flaky:v1"}
	_, reward, _, err := r.Complete(context.Background(), TaskRequest{RequiredCapabilities: []string{"summarize"}}, decision, contract.CompletionRequest{}, nil)
	assert.Error(t, err)
	assert.False(t, reward.Success)
	assert.Equal(t, 0.0, reward.Quality)
}
