package coingecko

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"cryptofolio/internal/logger"
)

// PriceCache is a best-effort cache in front of the price lookup. A short TTL
// keeps profit/loss recomputes close to live pricing while absorbing the
// repeated fetches a burst of writes would otherwise send upstream.
type PriceCache interface {
	Get(ctx context.Context, id string) (PriceInfo, bool)
	Set(ctx context.Context, id string, info PriceInfo)
}

// redisCache stores price entries in Redis with a TTL.
type redisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache creates a Redis-backed price cache.
func NewRedisCache(client *redis.Client, ttl time.Duration) PriceCache {
	return &redisCache{client: client, ttl: ttl}
}

func cacheKey(id string) string {
	return "coingecko:price:" + id
}

// Get returns a cached price entry if present and decodable.
// Cache failures are logged and treated as misses.
func (r *redisCache) Get(ctx context.Context, id string) (PriceInfo, bool) {
	raw, err := r.client.Get(ctx, cacheKey(id)).Bytes()
	if err != nil {
		if err != redis.Nil {
			logger.Get().Debugw("price cache get failed", "coin", id, "error", err)
		}
		return PriceInfo{}, false
	}

	var info PriceInfo
	if err := json.Unmarshal(raw, &info); err != nil {
		logger.Get().Debugw("price cache entry corrupt", "coin", id, "error", err)
		return PriceInfo{}, false
	}
	return info, true
}

// Set stores a price entry. Failures are logged, never surfaced.
func (r *redisCache) Set(ctx context.Context, id string, info PriceInfo) {
	raw, err := json.Marshal(info)
	if err != nil {
		return
	}
	if err := r.client.Set(ctx, cacheKey(id), raw, r.ttl).Err(); err != nil {
		logger.Get().Debugw("price cache set failed", "coin", id, "error", err)
	}
}
