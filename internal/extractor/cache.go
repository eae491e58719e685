package extractor

import (
	"container/list"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
)

// Cache is an LRU cache of embeddings keyed by image digest.
type Cache struct {
	capacity int
	entries  map[string]*list.Element
	lru      *list.List
	mu       sync.Mutex
}

type cacheEntry struct {
	key   string
	value []float32
}

// NewCache creates a cache holding up to capacity embeddings.
func NewCache(capacity int) *Cache {
	return &Cache{
		capacity: capacity,
		entries:  make(map[string]*list.Element),
		lru:      list.New(),
	}
}

// Get returns a copy of the cached embedding for key.
func (c *Cache) Get(key string) ([]float32, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	c.lru.MoveToFront(elem)
	return clone(elem.Value.(*cacheEntry).value), true
}

// Set stores value for key, evicting the least recently used entry at capacity.
func (c *Cache) Set(key string, value []float32) {
	if c.capacity <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[key]; ok {
		c.lru.MoveToFront(elem)
		elem.Value.(*cacheEntry).value = clone(value)
		return
	}
	c.entries[key] = c.lru.PushFront(&cacheEntry{key: key, value: clone(value)})
	if c.lru.Len() > c.capacity {
		oldest := c.lru.Back()
		c.lru.Remove(oldest)
		delete(c.entries, oldest.Value.(*cacheEntry).key)
	}
}

// Len returns the number of cached embeddings.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// Key returns the cache key for image data under policy.
func Key(data []byte, policy Policy) string {
	sum := sha256.Sum256(data)
	key := hex.EncodeToString(sum[:])
	if policy.RequireSingleFace {
		key += ":single"
	}
	return key
}

// Cached wraps an Extractor with an LRU cache. Only successful extractions are cached.
type Cached struct {
	Extractor
	cache *Cache
}

// NewCached returns ext wrapped with a cache of the given capacity.
func NewCached(ext Extractor, capacity int) *Cached {
	return &Cached{Extractor: ext, cache: NewCache(capacity)}
}

// Extract returns the cached embedding for data, or extracts and caches it.
func (c *Cached) Extract(ctx context.Context, data []byte, policy Policy) ([]float32, error) {
	key := Key(data, policy)
	if emb, ok := c.cache.Get(key); ok {
		return emb, nil
	}
	emb, err := c.Extractor.Extract(ctx, data, policy)
	if err != nil {
		return nil, err
	}
	c.cache.Set(key, emb)
	return emb, nil
}

func clone(v []float32) []float32 {
	out := make([]float32, len(v))
	copy(out, v)
	return out
}
