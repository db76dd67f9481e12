package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/skorper/harmony/pkg/models"
)

// Cache is the caching interface. Only jobs in a terminal state are worth
// caching since nothing may change them afterwards.
// Implementations must be safe for concurrent use.
type Cache interface {
	Ping(ctx context.Context) error
	SetJob(ctx context.Context, rec models.JobRecord, ttl time.Duration) error
	GetJob(ctx context.Context, requestID uuid.UUID) (models.JobRecord, bool, error)
	DeleteJob(ctx context.Context, requestID uuid.UUID) error
	IncrWithExpiry(ctx context.Context, key string, expiry time.Duration) (int64, error)
}

// RedisCache implements the Cache interface using go-redis/v9.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache creates a new RedisCache from a Redis URL.
func NewRedisCache(redisURL string) (*RedisCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	return &RedisCache{client: redis.NewClient(opts)}, nil
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close releases the underlying connections.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

func (c *RedisCache) SetJob(ctx context.Context, rec models.JobRecord, ttl time.Duration) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode job %s: %w", rec.RequestID, err)
	}
	return c.client.Set(ctx, JobKey(rec.RequestID), data, ttl).Err()
}

// GetJob returns the cached record for requestID. A value that no longer
// decodes is reported as a miss.
func (c *RedisCache) GetJob(ctx context.Context, requestID uuid.UUID) (models.JobRecord, bool, error) {
	val, err := c.client.Get(ctx, JobKey(requestID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return models.JobRecord{}, false, nil
	}
	if err != nil {
		return models.JobRecord{}, false, err
	}

	var rec models.JobRecord
	if err := json.Unmarshal(val, &rec); err != nil {
		return models.JobRecord{}, false, nil
	}
	return rec, true, nil
}

func (c *RedisCache) DeleteJob(ctx context.Context, requestID uuid.UUID) error {
	return c.client.Del(ctx, JobKey(requestID)).Err()
}

func (c *RedisCache) IncrWithExpiry(ctx context.Context, key string, expiry time.Duration) (int64, error) {
	pipe := c.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, expiry)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}
