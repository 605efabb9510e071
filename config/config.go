// Package config provides the pipeline's typed settings, functional options,
// and environment/file loaders, grounded on the teacher framework's
// core.Config + Option pattern but scoped to the content pipeline's own
// tunables (spec.md §6 Configuration).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/normanking/contentpipe/logging"
)

// Config aggregates every tunable named in spec.md §6, organized by the
// component that owns it.
type Config struct {
	Pipeline      PipelineConfig
	Quality       QualityConfig
	Cache         CacheConfig
	Router        RouterConfig
	HTTP          HTTPConfig
	Tenancy       TenancyConfig
	Observability ObservabilityConfig

	// TenantOverrides holds per-tenant config fragments consulted by the
	// retry-precedence resolver (explicit > tenant > process > env > default).
	TenantOverrides map[string]TenantOverride

	logger logging.Logger
}

type PipelineConfig struct {
	MaxParallelAnalysis int
	RequestBudgetMs     int
}

type QualityConfig struct {
	MinWordCount       int
	MinSentenceCount   int
	MinCoherence       float64
	MinOverall         float64
	EnableFiltering    bool
}

type CacheConfig struct {
	LLMTTL                  time.Duration
	RetrievalTTL            time.Duration
	ToolTTL                 time.Duration
	RoutingTTL              time.Duration
	EnableSemanticCache     bool
	SemanticCacheThreshold  float64
	SemanticCacheTTLSeconds int
	MaxEntries              int
}

type RouterConfig struct {
	Policy            string // "quality_first" | "cost_aware" | "latency_aware"
	ProviderAllowlist []string
	QualityFirstTasks []string
	RewardWeights     map[string]RewardWeights
}

// RewardWeights are the per-policy composite-reward weights (spec.md §4.3).
type RewardWeights struct {
	Quality float64
	Cost    float64
	Latency float64
}

type HTTPConfig struct {
	MaxRetries           int
	DefaultTimeout       time.Duration
	BackoffFactor        float64
	ConnectionErrorScale float64
}

type TenancyConfig struct {
	EnableStrict bool
}

type ObservabilityConfig struct {
	EnablePrometheusEndpoint bool
	EnableTracing            bool
}

// TenantOverride is the subset of Config a tenant may override; currently
// only HTTP retry count (spec.md §4.5 precedence chain), extensible later.
type TenantOverride struct {
	HTTPMaxRetries *int
}

// Option mutates a Config during construction.
type Option func(*Config) error

// DefaultConfig returns the documented defaults for every tunable.
func DefaultConfig() *Config {
	return &Config{
		Pipeline: PipelineConfig{
			MaxParallelAnalysis: 4,
			RequestBudgetMs:     120_000,
		},
		Quality: QualityConfig{
			MinWordCount:     500,
			MinSentenceCount: 10,
			MinCoherence:     0.6,
			MinOverall:       0.65,
			EnableFiltering:  true,
		},
		Cache: CacheConfig{
			LLMTTL:                  3600 * time.Second,
			RetrievalTTL:            300 * time.Second,
			ToolTTL:                 300 * time.Second,
			RoutingTTL:              300 * time.Second,
			EnableSemanticCache:     true,
			SemanticCacheThreshold:  0.85,
			SemanticCacheTTLSeconds: 3600,
			MaxEntries:              10_000,
		},
		Router: RouterConfig{
			Policy: "quality_first",
			RewardWeights: map[string]RewardWeights{
				"default":       {Quality: 0.6, Cost: 0.25, Latency: 0.15},
				"quality_first": {Quality: 0.8, Cost: 0.1, Latency: 0.1},
			},
		},
		HTTP: HTTPConfig{
			MaxRetries:           3,
			DefaultTimeout:       30 * time.Second,
			BackoffFactor:        2.0,
			ConnectionErrorScale: 1.5,
		},
		Tenancy: TenancyConfig{EnableStrict: false},
		Observability: ObservabilityConfig{
			EnablePrometheusEndpoint: false,
			EnableTracing:            false,
		},
		TenantOverrides: map[string]TenantOverride{},
	}
}

// NewConfig builds a Config from defaults, environment, then options, in
// that order, so explicit Option values always win over the environment.
func NewConfig(opts ...Option) (*Config, error) {
	c := DefaultConfig()
	if err := c.LoadFromEnv(); err != nil {
		return nil, err
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, fmt.Errorf("applying config option: %w", err)
		}
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// LoadFromEnv overlays recognized environment variables (spec.md §6) onto c.
func (c *Config) LoadFromEnv() error {
	if v := os.Getenv("PIPELINE_MAX_PARALLEL_ANALYSIS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Pipeline.MaxParallelAnalysis = n
		}
	}
	if v := os.Getenv("PIPELINE_REQUEST_BUDGET_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Pipeline.RequestBudgetMs = n
		}
	}

	if v := os.Getenv("QUALITY_MIN_WORD_COUNT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Quality.MinWordCount = n
		}
	}
	if v := os.Getenv("QUALITY_MIN_SENTENCE_COUNT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Quality.MinSentenceCount = n
		}
	}
	if v := os.Getenv("QUALITY_MIN_COHERENCE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Quality.MinCoherence = f
		}
	}
	if v := os.Getenv("QUALITY_MIN_OVERALL"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Quality.MinOverall = f
		}
	}
	if v := os.Getenv("ENABLE_QUALITY_FILTERING"); v != "" {
		c.Quality.EnableFiltering = parseBool(v)
	}

	if v := os.Getenv("CACHE_LLM_TTL"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Cache.LLMTTL = time.Duration(n) * time.Second
		}
	}
	if v := os.Getenv("CACHE_TOOL_TTL"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Cache.ToolTTL = time.Duration(n) * time.Second
		}
	}
	if v := os.Getenv("CACHE_ROUTING_TTL"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Cache.RoutingTTL = time.Duration(n) * time.Second
		}
	}
	if v := os.Getenv("ENABLE_SEMANTIC_CACHE"); v != "" {
		c.Cache.EnableSemanticCache = parseBool(v)
	}
	if v := os.Getenv("SEMANTIC_CACHE_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Cache.SemanticCacheThreshold = f
		}
	}
	if v := os.Getenv("SEMANTIC_CACHE_TTL_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Cache.SemanticCacheTTLSeconds = n
		}
	}

	if v := os.Getenv("ROUTER_POLICY"); v != "" {
		c.Router.Policy = v
	}
	if v := os.Getenv("LLM_PROVIDER_ALLOWLIST"); v != "" {
		c.Router.ProviderAllowlist = parseStringList(v)
	}
	if v := os.Getenv("QUALITY_FIRST_TASKS"); v != "" {
		c.Router.QualityFirstTasks = parseStringList(v)
	}

	if v := os.Getenv("HTTP_MAX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.HTTP.MaxRetries = n
		}
	}
	if v := os.Getenv("HTTP_DEFAULT_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.HTTP.DefaultTimeout = d
		}
	}
	if v := os.Getenv("HTTP_BACKOFF_FACTOR"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.HTTP.BackoffFactor = f
		}
	}
	if v := os.Getenv("HTTP_CONNECTION_ERROR_SCALE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.HTTP.ConnectionErrorScale = f
		}
	}

	if v := os.Getenv("ENABLE_TENANCY_STRICT"); v != "" {
		c.Tenancy.EnableStrict = parseBool(v)
	}

	if v := os.Getenv("ENABLE_PROMETHEUS_ENDPOINT"); v != "" {
		c.Observability.EnablePrometheusEndpoint = parseBool(v)
	}
	if v := os.Getenv("ENABLE_TRACING"); v != "" {
		c.Observability.EnableTracing = parseBool(v)
	}

	return nil
}

// LoadFromFile overlays a YAML document (same shape as Config's exported
// fields) onto c. Unknown fields are ignored by yaml.v3's default behavior.
func (c *Config) LoadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file %s: %w", path, err)
	}
	return yaml.Unmarshal(data, c)
}

// Validate rejects nonsensical settings before the runtime starts.
func (c *Config) Validate() error {
	if c.Pipeline.MaxParallelAnalysis < 1 {
		return fmt.Errorf("pipeline.max_parallel_analysis must be >= 1")
	}
	if c.Cache.SemanticCacheThreshold < 0 || c.Cache.SemanticCacheThreshold > 1 {
		return fmt.Errorf("cache.semantic_cache_threshold must be in [0,1]")
	}
	if c.HTTP.MaxRetries < 1 || c.HTTP.MaxRetries > 20 {
		return fmt.Errorf("http.max_retries must be in [1,20]")
	}
	return nil
}

func parseStringList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseBool(s string) bool {
	b, err := strconv.ParseBool(s)
	if err != nil {
		return strings.EqualFold(s, "yes") || strings.EqualFold(s, "on")
	}
	return b
}

// WithLogger attaches a logger the config loader uses while loading.
func WithLogger(logger logging.Logger) Option {
	return func(c *Config) error {
		c.logger = logger
		return nil
	}
}

// WithMaxParallelAnalysis overrides PIPELINE_MAX_PARALLEL_ANALYSIS.
func WithMaxParallelAnalysis(n int) Option {
	return func(c *Config) error {
		if n < 1 {
			return fmt.Errorf("max parallel analysis must be >= 1, got %d", n)
		}
		c.Pipeline.MaxParallelAnalysis = n
		return nil
	}
}

// WithRouterPolicy overrides ROUTER_POLICY.
func WithRouterPolicy(policy string) Option {
	return func(c *Config) error {
		c.Router.Policy = policy
		return nil
	}
}

// WithTenantOverride registers a per-tenant override fragment.
func WithTenantOverride(tenantID string, override TenantOverride) Option {
	return func(c *Config) error {
		if c.TenantOverrides == nil {
			c.TenantOverrides = map[string]TenantOverride{}
		}
		c.TenantOverrides[tenantID] = override
		return nil
	}
}

// WithConfigFile loads path as an additional YAML layer.
func WithConfigFile(path string) Option {
	return func(c *Config) error {
		return c.LoadFromFile(path)
	}
}
