package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Cache is the key/value surface CachedStore needs. RedisCache is the
// production implementation.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Incr(ctx context.Context, key string) (int64, error)
}

// RedisCache adapts a go-redis client to Cache.
type RedisCache struct {
	client redis.UniversalClient
}

// NewRedisCache wraps an existing client.
func NewRedisCache(client redis.UniversalClient) *RedisCache {
	return &RedisCache{client: client}
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.client.Set(ctx, key, value, ttl).Err()
}

func (c *RedisCache) Incr(ctx context.Context, key string) (int64, error) {
	return c.client.Incr(ctx, key).Result()
}

const (
	cacheGenKey    = "wallpaper:catalog:gen"
	cacheKeyPrefix = "wallpaper:catalog:"
)

// CachedStore serves the list reads from a cache and falls through to the
// wrapped Store on a miss or any cache error. Writes go straight to the
// store and then bump a generation number that is part of every cache key,
// which invalidates all cached lists at once.
type CachedStore struct {
	Store
	cache Cache
	ttl   time.Duration
}

// Compile-time interface check.
var _ Store = (*CachedStore)(nil)

// NewCachedStore decorates store with cache. Entries expire after ttl even
// without an invalidating write.
func NewCachedStore(store Store, cache Cache, ttl time.Duration) *CachedStore {
	return &CachedStore{Store: store, cache: cache, ttl: ttl}
}

// AdvanceCounter invalidates as well, since the counter row is visible to
// ListCounters even when the finalization that advanced it later fails.
func (c *CachedStore) AdvanceCounter(ctx context.Context, category string) (int, error) {
	n, err := c.Store.AdvanceCounter(ctx, category)
	if err != nil {
		return 0, err
	}
	c.invalidate(ctx)
	return n, nil
}

func (c *CachedStore) InsertWallpaper(ctx context.Context, w *Wallpaper) error {
	if err := c.Store.InsertWallpaper(ctx, w); err != nil {
		return err
	}
	c.invalidate(ctx)
	return nil
}

func (c *CachedStore) IncrementDownloads(ctx context.Context, filename string) (int, error) {
	n, err := c.Store.IncrementDownloads(ctx, filename)
	if err != nil {
		return 0, err
	}
	c.invalidate(ctx)
	return n, nil
}

func (c *CachedStore) TopDownloads(ctx context.Context, limit int) ([]Wallpaper, error) {
	limit = ClampLimit(limit, DefaultTopLimit)
	var out []Wallpaper
	err := c.readThrough(ctx, "top:"+strconv.Itoa(limit), &out, func() (interface{}, error) {
		return c.Store.TopDownloads(ctx, limit)
	})
	return out, err
}

func (c *CachedStore) Latest(ctx context.Context, limit int) ([]Wallpaper, error) {
	limit = ClampLimit(limit, DefaultLatestLimit)
	var out []Wallpaper
	err := c.readThrough(ctx, "latest:"+strconv.Itoa(limit), &out, func() (interface{}, error) {
		return c.Store.Latest(ctx, limit)
	})
	return out, err
}

func (c *CachedStore) ListCounters(ctx context.Context) ([]CategoryCounter, error) {
	var out []CategoryCounter
	err := c.readThrough(ctx, "counters", &out, func() (interface{}, error) {
		return c.Store.ListCounters(ctx)
	})
	return out, err
}

// readThrough fills out from the cache entry for name, or from load on a
// miss, storing the loaded value back into the cache.
func (c *CachedStore) readThrough(ctx context.Context, name string, out interface{}, load func() (interface{}, error)) error {
	key, keyErr := c.key(ctx, name)
	if keyErr == nil {
		data, ok, err := c.cache.Get(ctx, key)
		if err == nil && ok {
			if err := json.Unmarshal(data, out); err == nil {
				return nil
			}
		}
		if err != nil {
			log.Warn().Err(err).Str("key", key).Msg("Catalog cache read failed")
		}
	} else {
		log.Warn().Err(keyErr).Msg("Catalog cache generation read failed")
	}

	val, err := load()
	if err != nil {
		return err
	}
	data, err := json.Marshal(val)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", name, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("unmarshal %s: %w", name, err)
	}
	if keyErr == nil {
		if err := c.cache.Set(ctx, key, data, c.ttl); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("Catalog cache write failed")
		}
	}
	return nil
}

func (c *CachedStore) key(ctx context.Context, name string) (string, error) {
	gen := "0"
	data, ok, err := c.cache.Get(ctx, cacheGenKey)
	if err != nil {
		return "", err
	}
	if ok {
		gen = string(data)
	}
	return cacheKeyPrefix + gen + ":" + name, nil
}

func (c *CachedStore) invalidate(ctx context.Context) {
	if _, err := c.cache.Incr(ctx, cacheGenKey); err != nil {
		log.Warn().Err(err).Msg("Catalog cache invalidation failed")
	}
}
