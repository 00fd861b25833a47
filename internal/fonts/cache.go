package fonts

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/hpungsan/layerdeck/internal/layer"
)

// DefaultCacheSize is the entry count used when NewCache gets size <= 0.
const DefaultCacheSize = 256

type cacheKey struct {
	family string
	weight int
	style  layer.FontStyle
}

// Cache memoises successful resolutions of another Resolver. Failures are
// not cached. The cache is owned by whoever constructs it; nothing global.
type Cache struct {
	next    Resolver
	entries *lru.Cache[cacheKey, *Handle]
}

// NewCache wraps next with an LRU of size entries.
func NewCache(next Resolver, size int) (*Cache, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	entries, err := lru.New[cacheKey, *Handle](size)
	if err != nil {
		return nil, err
	}
	return &Cache{next: next, entries: entries}, nil
}

func (c *Cache) Resolve(ctx context.Context, family string, weight int, style layer.FontStyle) (*Handle, error) {
	key := cacheKey{family: layer.FamilyKey(family), weight: weight, style: style}
	if h, ok := c.entries.Get(key); ok {
		return h, nil
	}
	h, err := c.next.Resolve(ctx, family, weight, style)
	if err != nil {
		return nil, err
	}
	c.entries.Add(key, h)
	return h, nil
}

// Invalidate drops every cached entry of family.
func (c *Cache) Invalidate(family string) int {
	key := layer.FamilyKey(family)
	n := 0
	for _, k := range c.entries.Keys() {
		if k.family == key && c.entries.Remove(k) {
			n++
		}
	}
	return n
}

// Purge empties the cache.
func (c *Cache) Purge() {
	c.entries.Purge()
}

// Len reports the number of cached entries.
func (c *Cache) Len() int {
	return c.entries.Len()
}
