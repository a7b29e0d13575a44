package thumbnail

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/redis/go-redis/v9"

	"github.com/marcus-crane/voxpro/metrics"
)

const (
	DefaultCacheSize = 1024
	redisPrefix      = "voxpro:thumb:"
)

// Key derives the cache key, and public raster name, of a resolved URL
func Key(mediaURL string) string {
	return strconv.FormatUint(xxhash.Sum64String(mediaURL), 16)
}

// Cache memoizes previews by key. Entries are written once: adding a key
// that is already present keeps the existing preview. Redis, when
// configured, shares previews across restarts and instances.
type Cache struct {
	memory *lru.Cache[string, Preview]
	redis  *redis.Client
	ttl    time.Duration
}

type redisEntry struct {
	Preview Preview `json:"preview"`
	PNG     []byte  `json:"png,omitempty"`
}

func NewCache(size int, rdb *redis.Client, ttl time.Duration) (*Cache, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	memory, err := lru.New[string, Preview](size)
	if err != nil {
		return nil, err
	}
	return &Cache{memory: memory, redis: rdb, ttl: ttl}, nil
}

func (c *Cache) Get(ctx context.Context, key string) (Preview, bool) {
	if p, ok := c.memory.Get(key); ok {
		metrics.ThumbnailCacheTotal.WithLabelValues("memory", "hit").Inc()
		return p, true
	}
	metrics.ThumbnailCacheTotal.WithLabelValues("memory", "miss").Inc()
	if c.redis == nil {
		return Preview{}, false
	}
	raw, err := c.redis.Get(ctx, redisPrefix+key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			slog.Warn("Failed to read thumbnail from redis", slog.String("key", key), slog.Any("error", err))
		}
		metrics.ThumbnailCacheTotal.WithLabelValues("redis", "miss").Inc()
		return Preview{}, false
	}
	var entry redisEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		slog.Warn("Discarding unreadable thumbnail from redis", slog.String("key", key), slog.Any("error", err))
		return Preview{}, false
	}
	metrics.ThumbnailCacheTotal.WithLabelValues("redis", "hit").Inc()
	entry.Preview.PNG = entry.PNG
	c.memory.ContainsOrAdd(key, entry.Preview)
	p, _ := c.memory.Get(key)
	return p, true
}

// Add stores p under key unless a preview is already present, and
// returns whichever preview ends up cached
func (c *Cache) Add(ctx context.Context, key string, p Preview) Preview {
	if ok, _ := c.memory.ContainsOrAdd(key, p); ok {
		if existing, found := c.memory.Get(key); found {
			return existing
		}
	}
	if c.redis != nil {
		data, err := json.Marshal(redisEntry{Preview: p, PNG: p.PNG})
		if err == nil {
			err = c.redis.SetNX(ctx, redisPrefix+key, data, c.ttl).Err()
		}
		if err != nil {
			slog.Warn("Failed to write thumbnail to redis", slog.String("key", key), slog.Any("error", err))
		}
	}
	return p
}

func (c *Cache) Len() int {
	return c.memory.Len()
}
