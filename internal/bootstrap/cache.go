package bootstrap

import (
	"context"

	"github.com/normanking/contentpipe/cache"
	"github.com/normanking/contentpipe/config"
	"github.com/normanking/contentpipe/contract"
	"github.com/normanking/contentpipe/logging"
	"github.com/normanking/contentpipe/telemetry"
)

// embedderAdapter narrows a contract.Embedder to cache.Embedder so the
// same embedding collaborator the pipeline uses for vector memory also
// drives the cache's semantic layer (spec.md §4.4).
type embedderAdapter struct{ e contract.Embedder }

func (a embedderAdapter) Embed(ctx context.Context, text string) ([]float32, error) {
	return a.e.Embed(ctx, text)
}

// BuildCache constructs the multi-level cache from CacheConfig, wiring the
// semantic layer to embedder when one is configured and EnableSemanticCache
// is set. Callers that build their own router.Router (with real
// contract.ProviderAdapter arms, left to operators the same way
// UnconfiguredAcquirer/Transcriber are) connect it via Router.SetCache.
func BuildCache(cfg *config.Config, embedder contract.Embedder, tel *telemetry.Provider, logger logging.Logger) *cache.MultiLevelCache {
	lru := cache.NewLRULayer(cfg.Cache.MaxEntries)

	var semantic *cache.SemanticLayer
	if cfg.Cache.EnableSemanticCache && embedder != nil {
		semantic = cache.NewSemanticLayer(embedderAdapter{e: embedder}, cfg.Cache.MaxEntries)
		semantic.SetThreshold(cache.DomainLLM, cfg.Cache.SemanticCacheThreshold)
	}

	return cache.New(lru, nil, semantic, tel, logger)
}
