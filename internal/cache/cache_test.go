package cache

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/agency-studio/content-pipeline/internal/config"
	"github.com/agency-studio/content-pipeline/internal/models"
)

func TestNopCache_AlwaysMisses(t *testing.T) {
	var c Cache = NopCache{}
	ctx := context.Background()

	gen, err := c.Generation(ctx, "asset-1")
	require.NoError(t, err)
	require.NoError(t, c.SetAsset(ctx, "asset-1", gen, []models.Annotation{{ID: "a1"}}))

	list, found, err := c.GetAsset(ctx, "asset-1")
	assert.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, list)
	assert.NoError(t, c.InvalidateAsset(ctx, "asset-1"))
	assert.NoError(t, c.Close())
}

func TestRedisCache_UnreachableServerIsAMiss(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	c := NewRedisCacheWithClient(client, zap.NewNop())
	defer c.Close()

	list, found, err := c.GetAsset(context.Background(), "asset-1")
	assert.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, list)
	_, err = c.Generation(context.Background(), "asset-1")
	assert.Error(t, err)
	assert.Error(t, c.SetAsset(context.Background(), "asset-1", 0, nil))
	assert.Error(t, c.InvalidateAsset(context.Background(), "asset-1"))
}

func TestGenerationKey(t *testing.T) {
	assert.Equal(t, "annotations:asset:asset-1:gen", generationKey("asset-1"))
}

func TestNewRedisCache_InvalidURL(t *testing.T) {
	_, err := NewRedisCache(&config.Config{RedisURL: "not-a-url"}, zap.NewNop())

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse Redis URL")
}
