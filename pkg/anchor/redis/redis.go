package redis

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/merklevault/merklevault/pkg/anchor"
)

// Key layout in Redis
const (
	keyPrefixAnchor      = "vault:anchor:"
	keySetAnchors        = "vault:anchors:index"
	keySchemaVersion     = "vault:metadata:schema_version"
	currentSchemaVersion = "v1"
)

// RedisStore is an anchor store backed by Redis, for clients running on
// ephemeral filesystems where a local Badger directory would not survive.
type RedisStore struct {
	client    *redis.Client
	logger    *zap.Logger
	keyPrefix string
	mu        sync.RWMutex
	closed    bool
}

// RedisConfig holds the configuration for connecting to Redis
type RedisConfig struct {
	// Address is the Redis server address (host:port)
	Address string
	// Password is the optional Redis password
	Password string
	// DB is the Redis database number (0-15)
	DB int
	// KeyPrefix is an optional extra prefix for all keys, for shared
	// Redis deployments.
	KeyPrefix string
}

// NewRedisStore creates a Redis-backed anchor store and verifies the
// connection before returning.
func NewRedisStore(cfg *RedisConfig, logger *zap.Logger) (*RedisStore, error) {
	if cfg == nil {
		return nil, fmt.Errorf("redis config cannot be nil")
	}
	if cfg.Address == "" {
		return nil, fmt.Errorf("redis address cannot be empty")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Address, err)
	}

	rs := &RedisStore{
		client:    client,
		logger:    logger,
		keyPrefix: cfg.KeyPrefix,
	}

	if err := rs.initSchema(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Sugar().Infow("Redis anchor store initialized", "address", cfg.Address, "db", cfg.DB)

	return rs, nil
}

// prefixKey adds the custom key prefix (if configured) to a key
func (r *RedisStore) prefixKey(key string) string {
	if r.keyPrefix == "" {
		return key
	}
	return r.keyPrefix + key
}

// initSchema initializes or validates the schema version
func (r *RedisStore) initSchema(ctx context.Context) error {
	schemaKey := r.prefixKey(keySchemaVersion)

	existingVersion, err := r.client.Get(ctx, schemaKey).Result()
	if err == redis.Nil {
		return r.client.Set(ctx, schemaKey, currentSchemaVersion, 0).Err()
	}
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	if existingVersion != currentSchemaVersion {
		return fmt.Errorf("unsupported schema version: %s (expected: %s)", existingVersion, currentSchemaVersion)
	}
	return nil
}

// SaveAnchor persists an anchor.
func (r *RedisStore) SaveAnchor(a *anchor.Anchor) error {
	if a == nil {
		return fmt.Errorf("cannot save nil Anchor")
	}
	if a.BatchID == "" {
		return fmt.Errorf("cannot save Anchor with empty batch ID")
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return fmt.Errorf("anchor store is closed")
	}

	data, err := anchor.MarshalAnchor(a)
	if err != nil {
		return fmt.Errorf("failed to marshal Anchor: %w", err)
	}

	ctx := context.Background()
	key := r.prefixKey(keyPrefixAnchor + a.BatchID)
	indexKey := r.prefixKey(keySetAnchors)

	// Pipeline the value write and the index update.
	pipe := r.client.Pipeline()
	pipe.Set(ctx, key, data, 0)
	pipe.SAdd(ctx, indexKey, a.BatchID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save Anchor: %w", err)
	}

	r.logger.Sugar().Debugw("Saved anchor", "batch_id", a.BatchID, "merkle_root", a.RootHash)
	return nil
}

// LoadAnchor retrieves an anchor by batch ID.
func (r *RedisStore) LoadAnchor(batchID string) (*anchor.Anchor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return nil, fmt.Errorf("anchor store is closed")
	}

	ctx := context.Background()
	data, err := r.client.Get(ctx, r.prefixKey(keyPrefixAnchor+batchID)).Bytes()
	if err == redis.Nil {
		return nil, nil // Not found is not an error
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load Anchor: %w", err)
	}

	return anchor.UnmarshalAnchor(data)
}

// LatestAnchor returns the most recently created anchor.
func (r *RedisStore) LatestAnchor() (*anchor.Anchor, error) {
	anchors, err := r.ListAnchors()
	if err != nil {
		return nil, err
	}
	if len(anchors) == 0 {
		return nil, nil
	}
	return anchors[len(anchors)-1], nil
}

// ListAnchors returns all anchors sorted by creation time.
func (r *RedisStore) ListAnchors() ([]*anchor.Anchor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return nil, fmt.Errorf("anchor store is closed")
	}

	ctx := context.Background()
	ids, err := r.client.SMembers(ctx, r.prefixKey(keySetAnchors)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list Anchor index: %w", err)
	}

	result := make([]*anchor.Anchor, 0, len(ids))
	for _, id := range ids {
		data, err := r.client.Get(ctx, r.prefixKey(keyPrefixAnchor+id)).Bytes()
		if err == redis.Nil {
			// Index entry without a value; skip rather than fail the listing.
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load Anchor %s: %w", id, err)
		}
		a, err := anchor.UnmarshalAnchor(data)
		if err != nil {
			return nil, err
		}
		result = append(result, a)
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].BatchID < result[j].BatchID
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

// DeleteAnchor removes an anchor. Idempotent.
func (r *RedisStore) DeleteAnchor(batchID string) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return fmt.Errorf("anchor store is closed")
	}

	ctx := context.Background()
	pipe := r.client.Pipeline()
	pipe.Del(ctx, r.prefixKey(keyPrefixAnchor+batchID))
	pipe.SRem(ctx, r.prefixKey(keySetAnchors), batchID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete Anchor: %w", err)
	}
	return nil
}

// Close closes the Redis connection. Idempotent.
func (r *RedisStore) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true

	if err := r.client.Close(); err != nil {
		return fmt.Errorf("failed to close redis client: %w", err)
	}
	return nil
}

// HealthCheck pings the Redis server.
func (r *RedisStore) HealthCheck() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return fmt.Errorf("anchor store is closed")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis health check failed: %w", err)
	}
	return nil
}
