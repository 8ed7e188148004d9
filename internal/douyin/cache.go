package douyin

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/famomatic/dyextract/internal/types"
)

const DefaultCacheTTL = 30 * time.Minute

// Cache stores resolved video metadata by aweme id. Media URLs are signed
// and expire upstream, so entries carry a TTL.
type Cache interface {
	Get(ctx context.Context, id string) (types.VideoInfo, bool)
	Set(ctx context.Context, id string, info types.VideoInfo)
}

type memoryCache struct {
	mu    sync.RWMutex
	ttl   time.Duration
	now   func() time.Time
	items map[string]cacheItem
}

type cacheItem struct {
	info      types.VideoInfo
	createdAt time.Time
}

func NewMemoryCache(ttl time.Duration) Cache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &memoryCache{
		ttl:   ttl,
		now:   time.Now,
		items: make(map[string]cacheItem),
	}
}

func (c *memoryCache) Get(_ context.Context, id string) (types.VideoInfo, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	item, ok := c.items[id]
	if !ok || c.now().Sub(item.createdAt) > c.ttl {
		return types.VideoInfo{}, false
	}
	return item.info, true
}

func (c *memoryCache) Set(_ context.Context, id string, info types.VideoInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	for k, item := range c.items {
		if now.Sub(item.createdAt) > c.ttl {
			delete(c.items, k)
		}
	}
	c.items[id] = cacheItem{info: info, createdAt: now}
}

// RedisCache shares resolutions between processes.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &RedisCache{client: client, ttl: ttl, prefix: "dyextract:video:"}
}

// Get treats any redis failure as a miss.
func (c *RedisCache) Get(ctx context.Context, id string) (types.VideoInfo, bool) {
	val, err := c.client.Get(ctx, c.prefix+id).Result()
	if err != nil {
		return types.VideoInfo{}, false
	}
	var info types.VideoInfo
	if err := json.Unmarshal([]byte(val), &info); err != nil {
		return types.VideoInfo{}, false
	}
	return info, true
}

func (c *RedisCache) Set(ctx context.Context, id string, info types.VideoInfo) {
	data, err := json.Marshal(info)
	if err != nil {
		return
	}
	_ = c.client.Set(ctx, c.prefix+id, data, c.ttl).Err()
}
