// Package cache implements the multi-level semantic cache of spec.md §4.4.
package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/normanking/contentpipe/logging"
	"github.com/normanking/contentpipe/tenancy"
	"github.com/normanking/contentpipe/telemetry"
)

// Layer labels used in the cache_hits_total{domain,layer} metric.
const (
	LayerExact    = "exact"
	LayerSemantic = "semantic"
)

// MultiLevelCache consults an in-process exact layer, an optional shared
// Redis exact layer, and a semantic layer in that order, with at-most-one
// concurrent compute per key (spec.md §4.4 "in-flight requests ... join a
// shared future"). Grounded on the teacher's pkg/routing.SimpleCache/LRUCache
// pair, generalized to a three-tier consult chain.
type MultiLevelCache struct {
	lru      *LRULayer
	shared   *RedisLayer // nil when no shared layer is configured
	semantic *SemanticLayer
	tel      *telemetry.Provider
	logger   logging.Logger

	inflightMu sync.Mutex
	inflight   map[string]*inflightCall
}

type inflightCall struct {
	done chan struct{}
	val  []byte
	err  error
}

func New(lru *LRULayer, shared *RedisLayer, semantic *SemanticLayer, tel *telemetry.Provider, logger logging.Logger) *MultiLevelCache {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &MultiLevelCache{
		lru:      lru,
		shared:   shared,
		semantic: semantic,
		tel:      tel,
		logger:   logger,
		inflight: make(map[string]*inflightCall),
	}
}

// BuildKey forms the canonical exact-layer key, spec.md §4.4:
// hash(tenant:workspace:domain:prompt_canonical:model). Hashing itself
// happens inside the exact layer; this just canonicalizes the pre-image.
func BuildKey(tc tenancy.TenantContext, domain Domain, promptCanonical, model string) string {
	return fmt.Sprintf("%s:%s:%s", tenancy.Namespace(tc, string(domain)), promptCanonical, model)
}

// Get consults the exact layer, then (if configured) the shared layer, then
// the semantic layer, in that order. It returns the value, whether it was
// a hit, which layer/kind served it ("exact" or "semantic"), and the match
// similarity (1.0 for exact hits). Any cache error is swallowed and reported
// as a miss (spec.md §4.4 failure semantics: cache errors are non-fatal and
// fall through to compute).
func (c *MultiLevelCache) Get(ctx context.Context, domain Domain, key, text string) ([]byte, bool, string, float64, error) {
	if entry, ok := c.lru.Get(key); ok {
		c.recordHit(domain, LayerExact, 1.0)
		return entry.Value, true, LayerExact, 1.0, nil
	}

	if c.shared != nil {
		entry, ok, err := c.shared.Get(ctx, key)
		if err != nil {
			c.logger.Warn("cache: shared layer get failed, falling through", map[string]interface{}{"error": err.Error()})
		} else if ok {
			c.lru.Set(key, entry)
			c.recordHit(domain, LayerExact, 1.0)
			return entry.Value, true, LayerExact, 1.0, nil
		}
	}

	if c.semantic != nil && text != "" {
		entry, sim, ok, err := c.semantic.Nearest(ctx, domain, text)
		if err != nil {
			c.logger.Warn("cache: semantic lookup failed, falling through", map[string]interface{}{"error": err.Error()})
		} else if ok {
			c.recordHit(domain, LayerSemantic, sim)
			return entry.Value, true, LayerSemantic, sim, nil
		}
	}

	c.recordMiss(domain)
	return nil, false, "", 0, nil
}

// Set writes through to every configured layer with the same TTL
// (spec.md §4.4 "Set writes to both layers with the same TTL").
func (c *MultiLevelCache) Set(ctx context.Context, domain Domain, key, text string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultTTL(domain)
	}
	entry := &Entry{Key: key, Value: value, CreatedAt: time.Now(), TTL: ttl, Domain: domain}

	c.lru.Set(key, entry)

	if c.shared != nil {
		if err := c.shared.Set(ctx, key, entry); err != nil {
			c.logger.Warn("cache: shared layer set failed", map[string]interface{}{"error": err.Error()})
		}
	}
	if c.semantic != nil && text != "" {
		if err := c.semantic.Put(ctx, domain, text, entry); err != nil {
			c.logger.Warn("cache: semantic index put failed", map[string]interface{}{"error": err.Error()})
		}
	}
	return nil
}

// Invalidate removes every domain entry whose key has the given prefix from
// the in-process exact layer and the semantic layer, each under its own lock
// (spec.md §4.4 Invalidate). The shared layer is not scanned: entries already
// written there stay until their TTL expires.
func (c *MultiLevelCache) Invalidate(ctx context.Context, domain Domain, prefix string) error {
	c.lru.mu.Lock()
	for _, n := range c.lru.items {
		if k := n.entr.Key; n.entr.Domain == domain && len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			c.lru.removeNode(n)
		}
	}
	c.lru.mu.Unlock()
	if c.semantic != nil {
		c.semantic.Invalidate(domain, prefix)
	}
	return nil
}

// GetOrCompute is the in-flight de-duplication entry point: concurrent
// callers for the same key share one underlying compute.
func (c *MultiLevelCache) GetOrCompute(ctx context.Context, domain Domain, key, text string, compute func(context.Context) ([]byte, error), ttl time.Duration) ([]byte, bool, error) {
	if val, hit, _, _, err := c.Get(ctx, domain, key, text); err == nil && hit {
		return val, true, nil
	}

	c.inflightMu.Lock()
	if call, ok := c.inflight[key]; ok {
		c.inflightMu.Unlock()
		<-call.done
		return call.val, false, call.err
	}
	call := &inflightCall{done: make(chan struct{})}
	c.inflight[key] = call
	c.inflightMu.Unlock()

	val, err := compute(ctx)
	call.val, call.err = val, err
	close(call.done)

	c.inflightMu.Lock()
	delete(c.inflight, key)
	c.inflightMu.Unlock()

	if err == nil {
		_ = c.Set(ctx, domain, key, text, val, ttl)
	}
	return val, false, err
}

func (c *MultiLevelCache) recordHit(domain Domain, layer string, similarity float64) {
	if c.tel == nil {
		return
	}
	c.tel.CacheHits.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("domain", string(domain)),
		attribute.String("layer", layer),
	))
	if layer == LayerSemantic {
		c.tel.CacheSimilarity.Add(context.Background(), 1, metric.WithAttributes(
			attribute.String("bucket", telemetry.CacheSimilarityBucket(similarity)),
		))
	}
}

func (c *MultiLevelCache) recordMiss(domain Domain) {
	if c.tel == nil {
		return
	}
	c.tel.CacheMisses.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("domain", string(domain)),
	))
}

// HTTPCacheAdapter narrows MultiLevelCache to the 3-argument shape
// httpx.Client's CacheLayer interface expects (no raw-text argument, since
// cached_get keys are URLs with no semantic-similarity meaning).
type HTTPCacheAdapter struct {
	Cache *MultiLevelCache
}

func (a HTTPCacheAdapter) Get(ctx context.Context, domain, key string) ([]byte, bool, string, error) {
	val, hit, kind, _, err := a.Cache.Get(ctx, Domain(domain), key, "")
	return val, hit, kind, err
}

func (a HTTPCacheAdapter) Set(ctx context.Context, domain, key string, value []byte, ttl time.Duration) error {
	return a.Cache.Set(ctx, Domain(domain), key, "", value, ttl)
}

// IssueSemanticPrefetch records that a semantic-similarity prefetch was
// issued for a near-miss key; the pipeline calls this when it chooses to
// warm the cache speculatively ahead of a predicted follow-up request.
func (c *MultiLevelCache) IssueSemanticPrefetch(domain Domain) {
	if c.tel == nil {
		return
	}
	c.tel.SemPrefetchIssued.Add(context.Background(), 1, metric.WithAttributes(attribute.String("domain", string(domain))))
}

// RecordSemanticPrefetchUsed records that a previously prefetched entry was
// actually served to a later request.
func (c *MultiLevelCache) RecordSemanticPrefetchUsed(domain Domain) {
	if c.tel == nil {
		return
	}
	c.tel.SemPrefetchUsed.Add(context.Background(), 1, metric.WithAttributes(attribute.String("domain", string(domain))))
}
