package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubEmbedder maps fixed strings to fixed vectors so similarity is
// deterministic in tests without a real embedding provider.
type stubEmbedder struct {
	vectors map[string][]float32
}

func (s stubEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if v, ok := s.vectors[text]; ok {
		return v, nil
	}
	return []float32{0, 0, 1}, nil
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, cosineSimilarity([]float32{1, 0}, []float32{1, 0}), 1e-9)
	assert.InDelta(t, 0.0, cosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.Equal(t, float64(0), cosineSimilarity(nil, []float32{1}))
}

func TestSemanticLayer_NearestAboveThreshold(t *testing.T) {
	embedder := stubEmbedder{vectors: map[string][]float32{
		"original":     {1, 0, 0},
		"near-dup":     {0.99, 0.01, 0},
		"unrelated":    {0, 1, 0},
	}}
	s := NewSemanticLayer(embedder, 100)

	entry := &Entry{Key: "k", Value: []byte("cached"), CreatedAt: time.Now(), TTL: time.Hour, Domain: DomainLLM}
	require.NoError(t, s.Put(context.Background(), DomainLLM, "original", entry))

	got, sim, ok, err := s.Nearest(context.Background(), DomainLLM, "near-dup")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, entry, got)
	assert.Greater(t, sim, 0.9)
}

func TestSemanticLayer_BelowThresholdIsMiss(t *testing.T) {
	embedder := stubEmbedder{vectors: map[string][]float32{
		"original":  {1, 0, 0},
		"unrelated": {0, 1, 0},
	}}
	s := NewSemanticLayer(embedder, 100)
	entry := &Entry{Key: "k", Value: []byte("cached"), CreatedAt: time.Now(), TTL: time.Hour, Domain: DomainLLM}
	require.NoError(t, s.Put(context.Background(), DomainLLM, "original", entry))

	_, _, ok, err := s.Nearest(context.Background(), DomainLLM, "unrelated")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSemanticLayer_Invalidate(t *testing.T) {
	embedder := stubEmbedder{vectors: map[string][]float32{"a": {1, 0}}}
	s := NewSemanticLayer(embedder, 100)
	entry := &Entry{Key: "tenant:ws:prefix:abc", Value: []byte("v"), CreatedAt: time.Now(), TTL: time.Hour, Domain: DomainLLM}
	require.NoError(t, s.Put(context.Background(), DomainLLM, "a", entry))

	removed := s.Invalidate(DomainLLM, "tenant:ws:prefix")
	assert.Equal(t, 1, removed)

	_, _, ok, err := s.Nearest(context.Background(), DomainLLM, "a")
	require.NoError(t, err)
	assert.False(t, ok)
}
