package onemap

import (
	"context"
	"strings"
	"sync"

	"github.com/couchcryptid/hdb-property-etl/internal/domain"
	"github.com/couchcryptid/hdb-property-etl/internal/observability"
)

// CachedGeocoder wraps a Geocoder with an in-memory LRU cache keyed on the
// normalised address.
type CachedGeocoder struct {
	inner   domain.Geocoder
	cache   *lruCache[domain.Coordinates]
	metrics *observability.Metrics
}

// NewCachedGeocoder creates a cache decorator around a geocoder.
func NewCachedGeocoder(inner domain.Geocoder, maxEntries int, metrics *observability.Metrics) *CachedGeocoder {
	return &CachedGeocoder{
		inner:   inner,
		cache:   newLRUCache[domain.Coordinates](maxEntries),
		metrics: metrics,
	}
}

func (c *CachedGeocoder) Geocode(ctx context.Context, address, token string) (*domain.Coordinates, error) {
	key := cacheKey(address)
	if loc, ok := c.cache.get(key); ok {
		c.metrics.GeocodeCache.WithLabelValues("hit").Inc()
		return &loc, nil
	}
	c.metrics.GeocodeCache.WithLabelValues("miss").Inc()

	loc, err := c.inner.Geocode(ctx, address, token)
	if err != nil || loc == nil {
		// Misses stay uncached so a later lookup can retry.
		return loc, err
	}
	c.cache.put(key, *loc)
	return loc, nil
}

// Len returns the number of cached matches.
func (c *CachedGeocoder) Len() int {
	return c.cache.len()
}

func cacheKey(address string) string {
	return strings.ToUpper(strings.Join(strings.Fields(address), " "))
}

// lruCache is a thread-safe least-recently-used map with a fixed capacity.
type lruCache[V any] struct {
	capacity int
	mu       sync.Mutex
	items    map[string]*node[V]
	newest   *node[V]
	oldest   *node[V]
}

type node[V any] struct {
	key          string
	value        V
	newer, older *node[V]
}

func newLRUCache[V any](capacity int) *lruCache[V] {
	return &lruCache[V]{
		capacity: capacity,
		items:    make(map[string]*node[V]),
	}
}

func (c *lruCache[V]) get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	n, ok := c.items[key]
	if !ok {
		var zero V
		return zero, false
	}
	c.touch(n)
	return n.value, true
}

func (c *lruCache[V]) put(key string, value V) {
	if c.capacity <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if n, ok := c.items[key]; ok {
		n.value = value
		c.touch(n)
		return
	}

	n := &node[V]{key: key, value: value}
	c.items[key] = n
	c.pushNewest(n)

	if len(c.items) > c.capacity {
		evicted := c.oldest
		c.unlink(evicted)
		delete(c.items, evicted.key)
	}
}

func (c *lruCache[V]) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

func (c *lruCache[V]) touch(n *node[V]) {
	if n == c.newest {
		return
	}
	c.unlink(n)
	c.pushNewest(n)
}

func (c *lruCache[V]) pushNewest(n *node[V]) {
	n.older = c.newest
	n.newer = nil
	if c.newest != nil {
		c.newest.newer = n
	}
	c.newest = n
	if c.oldest == nil {
		c.oldest = n
	}
}

func (c *lruCache[V]) unlink(n *node[V]) {
	if n.newer != nil {
		n.newer.older = n.older
	} else {
		c.newest = n.older
	}
	if n.older != nil {
		n.older.newer = n.newer
	} else {
		c.oldest = n.newer
	}
}
