package snapshot

import (
	"container/list"
	"sync"

	"github.com/modernice/cqrs/aggregate"
	"github.com/sirupsen/logrus"
)

// DefaultCapacity is the default number of aggregates a Cache holds.
const DefaultCapacity = 1000

// Cache is an in-memory cache of hydrated aggregates. Cached aggregates are
// never handed out: Get returns a deep clone, Put stores a deep clone. The
// least recently used aggregate is evicted when the capacity is exceeded.
type Cache struct {
	factory  aggregate.Factory
	capacity int
	log      logrus.FieldLogger

	mux     sync.Mutex
	entries map[aggregate.Ref]*list.Element
	lru     *list.List
	hits    uint64
	misses  uint64
}

// CacheOption is a Cache option.
type CacheOption func(*Cache)

// Capacity returns a CacheOption that sets the maximum number of cached
// aggregates.
func Capacity(n int) CacheOption {
	return func(c *Cache) {
		c.capacity = n
	}
}

// CacheLogger returns a CacheOption that sets the logger of the Cache.
func CacheLogger(l logrus.FieldLogger) CacheOption {
	return func(c *Cache) {
		c.log = l
	}
}

// CacheStats are the hit and miss counters of a Cache.
type CacheStats struct {
	Hits   uint64
	Misses uint64
	Len    int
}

// NewCache returns a Cache that uses fac to make aggregates for cloning.
func NewCache(fac aggregate.Factory, opts ...CacheOption) *Cache {
	c := &Cache{
		factory:  fac,
		capacity: DefaultCapacity,
		entries:  make(map[aggregate.Ref]*list.Element),
		lru:      list.New(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.log == nil {
		c.log = logrus.StandardLogger()
	}
	if c.capacity <= 0 {
		c.capacity = DefaultCapacity
	}
	return c
}

// Get returns a clone of the cached aggregate if its cached state is valid
// for the given cutoff. The caller must replay the events between the
// returned Info's LastGlobal and cutoff onto the clone.
func (c *Cache) Get(ref aggregate.Ref, cutoff int64) (aggregate.Info[aggregate.Aggregate], bool) {
	c.mux.Lock()
	elem, ok := c.entries[ref]
	if !ok || !elem.Value.(aggregate.Info[aggregate.Aggregate]).ValidFor(cutoff) {
		c.misses++
		c.mux.Unlock()
		return aggregate.Info[aggregate.Aggregate]{}, false
	}
	c.lru.MoveToFront(elem)
	cached := elem.Value.(aggregate.Info[aggregate.Aggregate])
	c.hits++
	c.mux.Unlock()

	// cached aggregates are never mutated, so cloning outside the lock is safe
	clone, err := Clone(c.factory, cached.Root)
	if err != nil {
		c.log.WithError(err).WithField("aggregate", ref).Warn("[cqrs/snapshot.Cache] Failed to clone cached aggregate.")
		c.remove(ref, elem)
		return aggregate.Info[aggregate.Aggregate]{}, false
	}

	cached.Root = clone
	cached.IsNew = false
	return cached, true
}

// Put caches a clone of the given aggregate. Put does nothing if a state
// that is at least as recent is already cached.
func (c *Cache) Put(info aggregate.Info[aggregate.Aggregate]) error {
	ref := info.Ref()

	c.mux.Lock()
	if elem, ok := c.entries[ref]; ok {
		cached := elem.Value.(aggregate.Info[aggregate.Aggregate])
		if cached.LastGlobal > info.LastGlobal {
			c.mux.Unlock()
			return nil
		}
		if cached.LastGlobal == info.LastGlobal {
			if info.Cutoff > cached.Cutoff {
				cached.Cutoff = info.Cutoff
				elem.Value = cached
			}
			c.lru.MoveToFront(elem)
			c.mux.Unlock()
			return nil
		}
	}
	c.mux.Unlock()

	clone, err := Clone(c.factory, info.Root)
	if err != nil {
		return err
	}

	entry := aggregate.Info[aggregate.Aggregate]{
		Root:       clone,
		Cutoff:     info.Cutoff,
		LastGlobal: info.LastGlobal,
	}

	c.mux.Lock()
	defer c.mux.Unlock()

	if elem, ok := c.entries[ref]; ok {
		if elem.Value.(aggregate.Info[aggregate.Aggregate]).LastGlobal > entry.LastGlobal {
			return nil
		}
		elem.Value = entry
		c.lru.MoveToFront(elem)
		return nil
	}

	c.entries[ref] = c.lru.PushFront(entry)

	for c.lru.Len() > c.capacity {
		oldest := c.lru.Back()
		c.lru.Remove(oldest)
		delete(c.entries, oldest.Value.(aggregate.Info[aggregate.Aggregate]).Ref())
	}

	return nil
}

// Forget removes an aggregate from the cache.
func (c *Cache) Forget(ref aggregate.Ref) {
	c.mux.Lock()
	defer c.mux.Unlock()
	if elem, ok := c.entries[ref]; ok {
		c.lru.Remove(elem)
		delete(c.entries, ref)
	}
}

// Stats returns the hit and miss counters of the cache.
func (c *Cache) Stats() CacheStats {
	c.mux.Lock()
	defer c.mux.Unlock()
	return CacheStats{Hits: c.hits, Misses: c.misses, Len: c.lru.Len()}
}

func (c *Cache) remove(ref aggregate.Ref, elem *list.Element) {
	c.mux.Lock()
	defer c.mux.Unlock()
	if current, ok := c.entries[ref]; ok && current == elem {
		c.lru.Remove(elem)
		delete(c.entries, ref)
	}
}
