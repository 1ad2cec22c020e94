package permission

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultCacheTTL    = 5 * time.Minute
	defaultCachePrefix = "perms"
)

// Loader reads a user's permission graph from the system of record.
type Loader func(ctx context.Context, userID string) (Graph, error)

// CacheObserver receives hit/miss notifications. Nil-safe.
type CacheObserver interface {
	PermissionCacheHit()
	PermissionCacheMiss()
}

// Cache is a read-through Redis cache of aggregated permission sets.
type Cache struct {
	redis  redis.UniversalClient
	load   Loader
	ttl    time.Duration
	prefix string
	logger *zap.Logger
	obs    CacheObserver
	group  singleflight.Group
}

type CacheOption func(*Cache)

func WithTTL(ttl time.Duration) CacheOption {
	return func(c *Cache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithKeyPrefix namespaces cache keys, e.g. "auth" gives "auth:perms:{id}".
func WithKeyPrefix(prefix string) CacheOption {
	return func(c *Cache) {
		if prefix != "" {
			c.prefix = prefix + ":" + defaultCachePrefix
		}
	}
}

func WithLogger(l *zap.Logger) CacheOption {
	return func(c *Cache) {
		if l != nil {
			c.logger = l
		}
	}
}

func WithObserver(o CacheObserver) CacheOption {
	return func(c *Cache) { c.obs = o }
}

func NewCache(client redis.UniversalClient, load Loader, opts ...CacheOption) *Cache {
	c := &Cache{
		redis:  client,
		load:   load,
		ttl:    DefaultCacheTTL,
		prefix: defaultCachePrefix,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Cache) key(userID string) string {
	return c.prefix + ":" + userID
}

// Get returns the effective set for userID. Concurrent misses for the same user
// share one load. Cache faults are logged and the loader is used directly.
func (c *Cache) Get(ctx context.Context, userID string) (Set, error) {
	if set, ok := c.lookup(ctx, userID); ok {
		if c.obs != nil {
			c.obs.PermissionCacheHit()
		}
		return set, nil
	}
	if c.obs != nil {
		c.obs.PermissionCacheMiss()
	}

	v, err, _ := c.group.Do(userID, func() (any, error) {
		return c.Refresh(ctx, userID)
	})
	if err != nil {
		return nil, err
	}
	return v.(Set), nil
}

// Refresh bypasses the cached value, recomputes from the loader and stores it.
func (c *Cache) Refresh(ctx context.Context, userID string) (Set, error) {
	g, err := c.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	set := Aggregate(g)

	raw, err := json.Marshal(set.Sorted())
	if err == nil {
		err = c.redis.Set(ctx, c.key(userID), raw, c.ttl).Err()
	}
	if err != nil {
		c.logger.Error("permission cache write failed", zap.String("user_id", userID), zap.Error(err))
	}
	return set, nil
}

func (c *Cache) lookup(ctx context.Context, userID string) (Set, bool) {
	raw, err := c.redis.Get(ctx, c.key(userID)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Error("permission cache read failed", zap.String("user_id", userID), zap.Error(err))
		}
		return nil, false
	}
	var names []string
	if err := json.Unmarshal(raw, &names); err != nil {
		c.logger.Warn("permission cache entry corrupt", zap.String("user_id", userID), zap.Error(err))
		return nil, false
	}
	return NewSet(names...), true
}

// Invalidate drops the cached sets of every listed user.
func (c *Cache) Invalidate(ctx context.Context, userIDs ...string) error {
	if len(userIDs) == 0 {
		return nil
	}
	keys := make([]string, len(userIDs))
	for i, id := range userIDs {
		keys[i] = c.key(id)
	}
	return c.redis.Del(ctx, keys...).Err()
}
