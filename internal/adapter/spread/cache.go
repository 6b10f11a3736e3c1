package spread

import (
	"context"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/couchcryptid/fire-threat-engine/internal/domain"
	"github.com/couchcryptid/fire-threat-engine/internal/observability"
	"github.com/jonboulle/clockwork"
)

// CachedProvider wraps a PredictionProvider with a bounded in-memory LRU
// cache whose entries expire after a fixed TTL.
type CachedProvider struct {
	inner   domain.PredictionProvider
	cache   *lruCache
	metrics *observability.Metrics
}

// NewCachedProvider creates a cache decorator around a prediction provider.
func NewCachedProvider(inner domain.PredictionProvider, maxEntries int, ttl time.Duration, clock clockwork.Clock, metrics *observability.Metrics) *CachedProvider {
	return &CachedProvider{
		inner:   inner,
		cache:   newLRUCache(maxEntries, ttl, clock),
		metrics: metrics,
	}
}

// Predict serves from cache when the same fire set and horizon were asked
// about within the TTL. Errors are never cached.
func (c *CachedProvider) Predict(ctx context.Context, req domain.PredictionRequest) (domain.PredictionMap, error) {
	key := cacheKey(req)
	if preds, ok := c.cache.get(key); ok {
		c.metrics.PredictionCache.WithLabelValues("hit").Inc()
		return clonePredictions(preds), nil
	}
	c.metrics.PredictionCache.WithLabelValues("miss").Inc()

	preds, err := c.inner.Predict(ctx, req)
	if err != nil {
		return nil, err
	}
	c.cache.put(key, clonePredictions(preds))
	return preds, nil
}

// cacheKey is order-insensitive in the active node ids.
func cacheKey(req domain.PredictionRequest) string {
	ids := slices.Clone(req.ActiveNodeIDs)
	slices.Sort(ids)
	ids = slices.Compact(ids)
	return strings.Join(ids, ",") + "|h=" + strconv.Itoa(req.HorizonHours)
}

func clonePredictions(in domain.PredictionMap) domain.PredictionMap {
	out := make(domain.PredictionMap, len(in))
	for origin, preds := range in {
		out[origin] = slices.Clone(preds)
	}
	return out
}

// lruCache is a thread-safe LRU cache for prediction maps with per-entry expiry.
type lruCache struct {
	maxEntries int
	ttl        time.Duration
	clock      clockwork.Clock
	mu         sync.Mutex
	entries    map[string]*entry
	head       *entry // most recently used
	tail       *entry // least recently used
}

type entry struct {
	key       string
	value     domain.PredictionMap
	expiresAt time.Time
	prev      *entry
	next      *entry
}

func newLRUCache(maxEntries int, ttl time.Duration, clock clockwork.Clock) *lruCache {
	return &lruCache{
		maxEntries: max(maxEntries, 1),
		ttl:        ttl,
		clock:      clock,
		entries:    make(map[string]*entry),
	}
}

func (c *lruCache) get(key string) (domain.PredictionMap, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if !c.clock.Now().Before(e.expiresAt) {
		delete(c.entries, key)
		c.remove(e)
		return nil, false
	}
	c.moveToFront(e)
	return e.value, true
}

func (c *lruCache) put(key string, value domain.PredictionMap) {
	c.mu.Lock()
	defer c.mu.Unlock()

	expiresAt := c.clock.Now().Add(c.ttl)
	if e, ok := c.entries[key]; ok {
		e.value = value
		e.expiresAt = expiresAt
		c.moveToFront(e)
		return
	}

	e := &entry{key: key, value: value, expiresAt: expiresAt}
	c.entries[key] = e
	c.addToFront(e)

	if len(c.entries) > c.maxEntries {
		c.evictTail()
	}
}

func (c *lruCache) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *lruCache) moveToFront(e *entry) {
	if e == c.head {
		return
	}
	c.remove(e)
	c.addToFront(e)
}

func (c *lruCache) addToFront(e *entry) {
	e.next = c.head
	e.prev = nil
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

func (c *lruCache) remove(e *entry) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		c.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		c.tail = e.prev
	}
}

func (c *lruCache) evictTail() {
	if c.tail == nil {
		return
	}
	delete(c.entries, c.tail.key)
	c.remove(c.tail)
}
