package annotate

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"

	"github.com/docuchat/docuchat/engine/domain"
	"github.com/redis/go-redis/v9"
)

// Cache stores annotations keyed by content hash, so retrieval only
// re-annotates a document when its text has not been seen before.
type Cache interface {
	Get(ctx context.Context, key string) (*domain.Annotation, bool, error)
	Set(ctx context.Context, key string, ann *domain.Annotation) error
}

// Cached wraps an Annotator with a Cache. prefix namespaces keys, use the
// tagger's language code.
func Cached(inner Annotator, cache Cache, prefix string) Annotator {
	return &cachedAnnotator{inner: inner, cache: cache, prefix: prefix}
}

type cachedAnnotator struct {
	inner  Annotator
	cache  Cache
	prefix string
}

func (c *cachedAnnotator) Annotate(ctx context.Context, text string) (*domain.Annotation, error) {
	key := c.key(text)
	if ann, ok, err := c.cache.Get(ctx, key); err == nil && ok {
		return ann, nil
	}
	// Cache errors fall through to the tagger; a cold cache must never
	// fail a request.
	ann, err := c.inner.Annotate(ctx, text)
	if err != nil {
		return nil, err
	}
	_ = c.cache.Set(ctx, key, ann)
	return ann, nil
}

func (c *cachedAnnotator) key(text string) string {
	sum := sha256.Sum256([]byte(c.prefix + "\x00" + text))
	return "annotation:" + c.prefix + ":" + hex.EncodeToString(sum[:])
}

// RedisCache is a redis-backed Cache with a TTL.
type RedisCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisCache creates a RedisCache. ttl <= 0 means entries never expire.
func NewRedisCache(rdb *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{rdb: rdb, ttl: ttl}
}

func (c *RedisCache) Get(ctx context.Context, key string) (*domain.Annotation, bool, error) {
	data, err := c.rdb.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var ann domain.Annotation
	if err := json.Unmarshal(data, &ann); err != nil {
		return nil, false, err
	}
	return &ann, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, ann *domain.Annotation) error {
	data, err := json.Marshal(ann)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, key, data, c.ttl).Err()
}

// MemoryCache is an in-process Cache for single-node deployments and tests.
type MemoryCache struct {
	mu sync.RWMutex
	m  map[string]*domain.Annotation
}

// NewMemoryCache creates an empty MemoryCache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{m: make(map[string]*domain.Annotation)}
}

func (c *MemoryCache) Get(_ context.Context, key string) (*domain.Annotation, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ann, ok := c.m[key]
	return ann, ok, nil
}

func (c *MemoryCache) Set(_ context.Context, key string, ann *domain.Annotation) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[key] = ann
	return nil
}
