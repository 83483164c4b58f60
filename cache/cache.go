package cache

import (
	"container/list"
	"errors"
	"io"
	"log"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/shibukawa/pyplusplus"
	"github.com/shibukawa/pyplusplus/rewriter"
)

// Cache maps fingerprints to rewritten units.
// A bounded LRU in memory sits in front of an optional persistent Store.
// Concurrent requests for one fingerprint share a single computation.
// Store failures are logged and never returned: a broken store turns the
// cache memory-only for the rest of the process.
// It is safe for concurrent use.
type Cache struct {
	cap int
	ll  *list.List
	m   map[string]*list.Element
	mu  sync.Mutex

	store    Store
	backend  string
	degraded bool
	stats    Stats

	group  singleflight.Group
	logger *log.Logger
}

type cacheEntry struct {
	fingerprint string
	unit        *rewriter.Unit
}

// Options configures a Cache
type Options struct {
	// Capacity bounds the memory tier; values <= 0 mean 1
	Capacity int
	// Store is the persistent tier; nil keeps the cache in memory only
	Store   Store
	Backend string
	Logger  *log.Logger
}

// Stats are counters since the cache was created
type Stats struct {
	Backend    string
	MemoryHits int64
	StoreHits  int64
	Computes   int64
	Entries    int
	Degraded   bool
}

// New creates a cache
func New(opts Options) *Cache {
	capacity := opts.Capacity
	if capacity <= 0 {
		capacity = 1
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	backend := opts.Backend
	if backend == "" {
		backend = pyplusplus.BackendMemory
	}

	return &Cache{
		cap:     capacity,
		ll:      list.New(),
		m:       make(map[string]*list.Element),
		store:   opts.Store,
		backend: backend,
		logger:  logger,
	}
}

// Open creates a cache for the configured backend. When the store cannot be
// opened the cache falls back to memory only and logs why.
func Open(cfg pyplusplus.CacheConfig, logger *log.Logger) *Cache {
	store, err := OpenStore(cfg.Backend, cfg.Dir)

	c := New(Options{
		Capacity: cfg.MemoryEntries,
		Store:    store,
		Backend:  cfg.Backend,
		Logger:   logger,
	})

	if err != nil {
		c.logger.Printf("cache: %v; continuing with an in-memory cache", err)
		c.store = nil
		c.degraded = true
	}

	return c
}

// GetOrCompute returns the unit for fingerprint, calling compute on a miss.
// fingerprint is any hex digest that determines the result; callers fold
// their options into it. compute runs at most once at a time per
// fingerprint; its errors are returned to every waiting caller and are not
// cached.
func (c *Cache) GetOrCompute(fingerprint string, compute func() (*rewriter.Unit, error)) (*rewriter.Unit, error) {
	if unit, ok := c.get(fingerprint); ok {
		c.count(&c.stats.MemoryHits)
		return unit, nil
	}

	v, err, _ := c.group.Do(fingerprint, func() (any, error) {
		// a flight that ended between get and Do may have filled the entry
		if unit, ok := c.get(fingerprint); ok {
			c.count(&c.stats.MemoryHits)
			return unit, nil
		}

		if unit := c.load(fingerprint); unit != nil {
			c.count(&c.stats.StoreHits)
			c.put(fingerprint, unit)

			return unit, nil
		}

		unit, err := compute()
		if err != nil {
			return nil, err
		}

		c.count(&c.stats.Computes)
		c.put(fingerprint, unit)
		c.persist(fingerprint, unit)

		return unit, nil
	})
	if err != nil {
		return nil, err
	}

	return v.(*rewriter.Unit), nil
}

// get returns a unit from the memory tier if present
func (c *Cache) get(fingerprint string) (*rewriter.Unit, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ele, ok := c.m[fingerprint]; ok {
		c.ll.MoveToFront(ele)
		return ele.Value.(*cacheEntry).unit, true
	}

	return nil, false
}

// put inserts or updates a unit in the memory tier
func (c *Cache) put(fingerprint string, unit *rewriter.Unit) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ele, ok := c.m[fingerprint]; ok {
		c.ll.MoveToFront(ele)
		ele.Value.(*cacheEntry).unit = unit

		return
	}

	ele := c.ll.PushFront(&cacheEntry{fingerprint: fingerprint, unit: unit})
	c.m[fingerprint] = ele

	if c.ll.Len() > c.cap {
		c.evict()
	}
}

func (c *Cache) evict() {
	ele := c.ll.Back()
	if ele == nil {
		return
	}

	c.ll.Remove(ele)
	delete(c.m, ele.Value.(*cacheEntry).fingerprint)
}

// load reads the persistent tier. Missing and corrupt entries are both misses.
func (c *Cache) load(fingerprint string) *rewriter.Unit {
	store := c.activeStore()
	if store == nil {
		return nil
	}

	unit, err := store.Load(fingerprint)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			c.logger.Printf("cache: discarding entry %s: %v", fingerprint, err)
		}

		return nil
	}

	return unit
}

func (c *Cache) persist(fingerprint string, unit *rewriter.Unit) {
	store := c.activeStore()
	if store == nil {
		return
	}

	if err := store.Save(fingerprint, unit); err != nil {
		c.logger.Printf("cache: %v; continuing with an in-memory cache", err)

		c.mu.Lock()
		c.degraded = true
		c.mu.Unlock()
	}
}

func (c *Cache) activeStore() Store {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.degraded {
		return nil
	}

	return c.store
}

func (c *Cache) count(counter *int64) {
	c.mu.Lock()
	*counter++
	c.mu.Unlock()
}

// Stats returns a snapshot of the counters
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := c.stats
	stats.Backend = c.backend
	stats.Entries = c.ll.Len()
	stats.Degraded = c.degraded

	return stats
}

// StoreStats describes the persistent tier; a memory-only cache reports zero
func (c *Cache) StoreStats() (StoreStats, error) {
	store := c.activeStore()
	if store == nil {
		return StoreStats{}, nil
	}

	return store.Stats()
}

// Clear drops every entry from both tiers
func (c *Cache) Clear() error {
	c.mu.Lock()
	c.ll.Init()
	c.m = make(map[string]*list.Element)
	c.mu.Unlock()

	store := c.activeStore()
	if store == nil {
		return nil
	}

	return store.Clear()
}

// Len returns the number of units in the memory tier
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.ll.Len()
}

// Close releases the persistent tier
func (c *Cache) Close() error {
	if c.store == nil {
		return nil
	}

	return c.store.Close()
}
