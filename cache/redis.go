package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/normanking/contentpipe/logging"
)

// RedisLayer is the optional shared exact-match layer (spec.md §4.4), used
// so that a cache hit on one replica is visible to all others. Grounded on
// the teacher's core.RedisClient: namespace-prefixed keys, DB isolation,
// and the same connect-time Ping health check, generalized from ad hoc
// string/int values to JSON-encoded Entry records.
type RedisLayer struct {
	client    *redis.Client
	namespace string
	logger    logging.Logger
}

// RedisLayerOptions configures the shared layer.
type RedisLayerOptions struct {
	RedisURL  string
	DB        int
	Namespace string
	Logger    logging.Logger
}

// NewRedisLayer dials Redis and verifies connectivity before returning, the
// same fail-fast posture as the teacher's NewRedisClient.
func NewRedisLayer(opts RedisLayerOptions) (*RedisLayer, error) {
	if opts.RedisURL == "" {
		return nil, errors.New("cache: redis URL is required for shared layer")
	}
	redisOpt, err := redis.ParseURL(opts.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("cache: invalid redis url: %w", err)
	}
	if opts.DB >= 0 && opts.DB <= 15 {
		redisOpt.DB = opts.DB
	}
	client := redis.NewClient(redisOpt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("cache: connecting to redis: %w", err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &RedisLayer{client: client, namespace: opts.Namespace, logger: logger}, nil
}

func (r *RedisLayer) formatKey(key string) string {
	if r.namespace == "" {
		return key
	}
	return fmt.Sprintf("%s:%s", r.namespace, key)
}

// Get returns the decoded entry if present. A Redis miss is reported as
// (nil, false, nil), not an error.
func (r *RedisLayer) Get(ctx context.Context, key string) (*Entry, bool, error) {
	raw, err := r.client.Get(ctx, r.formatKey(key)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache: redis get: %w", err)
	}
	var entry Entry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		return nil, false, fmt.Errorf("cache: decoding redis entry: %w", err)
	}
	return &entry, true, nil
}

// Set stores the entry with its TTL.
func (r *RedisLayer) Set(ctx context.Context, key string, entry *Entry) error {
	encoded, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("cache: encoding entry: %w", err)
	}
	ttl := entry.TTL
	if ttl <= 0 {
		ttl = DefaultTTL(entry.Domain)
	}
	if err := r.client.Set(ctx, r.formatKey(key), encoded, ttl).Err(); err != nil {
		return fmt.Errorf("cache: redis set: %w", err)
	}
	return nil
}

// Del removes one or more keys, tolerating a no-op call with zero keys.
func (r *RedisLayer) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	formatted := make([]string, len(keys))
	for i, k := range keys {
		formatted[i] = r.formatKey(k)
	}
	if err := r.client.Del(ctx, formatted...).Err(); err != nil {
		return fmt.Errorf("cache: redis del: %w", err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (r *RedisLayer) Close() error {
	return r.client.Close()
}

// HealthCheck verifies connectivity, mirroring the teacher's health-check
// convention for components backed by external stores.
func (r *RedisLayer) HealthCheck(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
