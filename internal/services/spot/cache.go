package spot

import (
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"flowscan/internal/metrics"
)

const (
	// DefaultSoftCap is the resident-entry limit of the price cache
	DefaultSoftCap = 1000

	// DefaultEvictBatch entries are dropped, oldest insertion first,
	// whenever the soft cap is exceeded
	DefaultEvictBatch = 200
)

// cacheKey identifies one resolved price: a symbol at a minute bucket
type cacheKey struct {
	Symbol string
	Minute int64
}

type cacheEntry struct {
	price      decimal.Decimal
	insertedAt time.Time
	seq        uint64
}

// Cache is a bounded in-memory price cache. Eviction is purely
// capacity-driven: entries never expire by age, they are only displaced
// in insertion order once the soft cap is crossed. Safe for concurrent
// use during a batch scan.
type Cache struct {
	mu      sync.Mutex
	entries map[cacheKey]cacheEntry
	seq     uint64

	softCap    int
	evictBatch int
}

// NewCache creates a bounded price cache
func NewCache(softCap, evictBatch int) *Cache {
	if softCap <= 0 {
		softCap = DefaultSoftCap
	}
	if evictBatch <= 0 {
		evictBatch = DefaultEvictBatch
	}
	return &Cache{
		entries:    make(map[cacheKey]cacheEntry, softCap),
		softCap:    softCap,
		evictBatch: evictBatch,
	}
}

// Get returns the cached price for (symbol, minute bucket), if resident
func (c *Cache) Get(symbol string, minuteBucket int64) (decimal.Decimal, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[cacheKey{Symbol: symbol, Minute: minuteBucket}]
	if !ok {
		metrics.SpotCacheLookups.WithLabelValues("miss").Inc()
		return decimal.Zero, false
	}
	metrics.SpotCacheLookups.WithLabelValues("hit").Inc()
	return entry.price, true
}

// Put inserts a resolved price, evicting the oldest batch when the cap
// is exceeded
func (c *Cache) Put(symbol string, minuteBucket int64, price decimal.Decimal) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.seq++
	c.entries[cacheKey{Symbol: symbol, Minute: minuteBucket}] = cacheEntry{
		price:      price,
		insertedAt: time.Now(),
		seq:        c.seq,
	}

	if len(c.entries) > c.softCap {
		c.evictOldest()
	}

	metrics.SpotCacheSize.Set(float64(len(c.entries)))
}

// Len returns the number of resident entries
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// evictOldest drops the evictBatch entries with the oldest insertion order.
// Caller holds the lock.
func (c *Cache) evictOldest() {
	type aged struct {
		key cacheKey
		seq uint64
	}

	all := make([]aged, 0, len(c.entries))
	for k, e := range c.entries {
		all = append(all, aged{key: k, seq: e.seq})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].seq < all[j].seq })

	n := c.evictBatch
	if n > len(all) {
		n = len(all)
	}
	for _, victim := range all[:n] {
		delete(c.entries, victim.key)
	}

	metrics.SpotCacheEvictions.Add(float64(n))
}
