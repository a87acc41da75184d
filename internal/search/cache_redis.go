package search

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"substream/subtitleservice/internal/domain"
)

const redisResolvedPrefix = "subsvc:resolved:"

// RedisContentCache stores resolved subtitles in Redis with JSON serialization.
type RedisContentCache struct {
	client *redis.Client
}

func NewRedisContentCache(client *redis.Client) *RedisContentCache {
	return &RedisContentCache{client: client}
}

func (r *RedisContentCache) Get(ctx context.Context, token string) (*domain.ResolvedSubtitle, bool, error) {
	data, err := r.client.Get(ctx, redisResolvedPrefix+token).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, false, nil
		}
		return nil, false, err
	}
	var resolved domain.ResolvedSubtitle
	if err := json.Unmarshal(data, &resolved); err != nil {
		return nil, false, err
	}
	return &resolved, true, nil
}

func (r *RedisContentCache) Set(ctx context.Context, token string, resolved *domain.ResolvedSubtitle, ttl time.Duration) error {
	data, err := json.Marshal(resolved)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, redisResolvedPrefix+token, data, ttl).Err()
}

func (r *RedisContentCache) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
