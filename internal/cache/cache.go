// Package cache provides Redis caching of per-asset annotation lists.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/agency-studio/content-pipeline/internal/config"
	"github.com/agency-studio/content-pipeline/internal/models"
)

const (
	// Cache key prefix; the full list of an asset lives under assetKeyPrefix + assetID.
	assetKeyPrefix = "annotations:asset:"

	// The invalidation counter of an asset lives under assetKeyPrefix + assetID + generationSuffix.
	generationSuffix = ":gen"

	// Default TTL for cached items
	defaultTTL = 5 * time.Minute

	// Generation counters must outlive any list filled against them.
	generationTTL = 24 * time.Hour
)

// Cache defines the interface for caching operations.
type Cache interface {
	// GetAsset returns the cached annotation list of an asset (resolved ones included).
	GetAsset(ctx context.Context, assetID string) ([]models.Annotation, bool, error)

	// Generation returns the invalidation counter of an asset. Read it before loading the
	// list from the store and pass it to SetAsset.
	Generation(ctx context.Context, assetID string) (int64, error)

	// SetAsset stores the full annotation list of an asset unless the asset was
	// invalidated after gen was read. A skipped write is not an error.
	SetAsset(ctx context.Context, assetID string, gen int64, annotations []models.Annotation) error

	// InvalidateAsset drops the cached list of an asset and advances its generation.
	InvalidateAsset(ctx context.Context, assetID string) error

	// Close closes the cache connection.
	Close() error
}

// RedisCache implements Cache using Redis.
type RedisCache struct {
	client *redis.Client
	logger *zap.Logger
	ttl    time.Duration
}

// NewRedisCache creates a new Redis cache.
func NewRedisCache(cfg *config.Config, logger *zap.Logger) (*RedisCache, error) {
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("Connected to Redis cache")

	return NewRedisCacheWithClient(client, logger), nil
}

// NewRedisCacheWithClient wraps an existing client.
func NewRedisCacheWithClient(client *redis.Client, logger *zap.Logger) *RedisCache {
	return &RedisCache{
		client: client,
		logger: logger,
		ttl:    defaultTTL,
	}
}

// GetAsset retrieves the cached annotations of an asset.
func (c *RedisCache) GetAsset(ctx context.Context, assetID string) ([]models.Annotation, bool, error) {
	key := assetKeyPrefix + assetID

	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil // Cache miss
	}
	if err != nil {
		c.logger.Warn("Failed to get from cache", zap.String("key", key), zap.Error(err))
		return nil, false, nil // Treat errors as cache miss
	}

	var annotations []models.Annotation
	if err := json.Unmarshal(data, &annotations); err != nil {
		c.logger.Warn("Failed to unmarshal cached annotations", zap.String("key", key), zap.Error(err))
		return nil, false, nil
	}

	c.logger.Debug("Cache hit", zap.String("key", key))
	return annotations, true, nil
}

// Generation reads the invalidation counter of an asset. A missing counter is zero.
func (c *RedisCache) Generation(ctx context.Context, assetID string) (int64, error) {
	gen, err := c.client.Get(ctx, generationKey(assetID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		c.logger.Warn("Failed to read cache generation", zap.String("asset_id", assetID), zap.Error(err))
		return 0, err
	}
	return gen, nil
}

// SetAsset stores the annotations of an asset. The write runs under WATCH on the
// generation key and is dropped when an invalidation raced the caller's store read.
func (c *RedisCache) SetAsset(ctx context.Context, assetID string, gen int64, annotations []models.Annotation) error {
	key := assetKeyPrefix + assetID
	genKey := generationKey(assetID)

	data, err := json.Marshal(annotations)
	if err != nil {
		c.logger.Warn("Failed to marshal annotations for cache", zap.Error(err))
		return err
	}

	err = c.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, genKey).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if current != gen {
			return errStaleGeneration
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, c.ttl)
			return nil
		})
		return err
	}, genKey)

	switch {
	case errors.Is(err, errStaleGeneration), errors.Is(err, redis.TxFailedErr):
		c.logger.Debug("Skipped stale cache fill", zap.String("key", key), zap.Int64("generation", gen))
		return nil
	case err != nil:
		c.logger.Warn("Failed to set cache", zap.String("key", key), zap.Error(err))
		return err
	}

	c.logger.Debug("Cached asset annotations", zap.String("key", key), zap.Int("count", len(annotations)))
	return nil
}

// InvalidateAsset removes the cached list of an asset and bumps its generation in one
// transaction.
func (c *RedisCache) InvalidateAsset(ctx context.Context, assetID string) error {
	key := assetKeyPrefix + assetID
	genKey := generationKey(assetID)

	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, genKey)
		pipe.Expire(ctx, genKey, generationTTL)
		pipe.Del(ctx, key)
		return nil
	})
	if err != nil {
		c.logger.Warn("Failed to invalidate cache", zap.String("key", key), zap.Error(err))
		return err
	}
	return nil
}

var errStaleGeneration = errors.New("cache generation moved")

func generationKey(assetID string) string {
	return assetKeyPrefix + assetID + generationSuffix
}

// Close closes the Redis connection.
func (c *RedisCache) Close() error {
	c.logger.Info("Closing Redis connection")
	return c.client.Close()
}

// NopCache never stores anything. It backs the in-memory store driver, where a cache in
// front of process memory would only add staleness.
type NopCache struct{}

func (NopCache) GetAsset(context.Context, string) ([]models.Annotation, bool, error) {
	return nil, false, nil
}

func (NopCache) Generation(context.Context, string) (int64, error) { return 0, nil }

func (NopCache) SetAsset(context.Context, string, int64, []models.Annotation) error { return nil }

func (NopCache) InvalidateAsset(context.Context, string) error { return nil }

func (NopCache) Close() error { return nil }
