package whois

import (
	"sync"

	lru "github.com/hashicorp/golang-lru"
)

// Entry is what the resolver remembers per registrable domain: either the
// resolved record or the failure of the lookup. Entries are stored whole.
type Entry struct {
	Record *Record
	Err    error
}

func (e Entry) Failed() bool {
	return e.Err != nil || e.Record == nil
}

type Cache interface {
	Get(domain string) (Entry, bool)
	Add(domain string, e Entry)
	Len() int
	// maximum number of entries, 0 if unbounded
	Cap() int
}

// plain memoization, entries live for the lifetime of the process
type memoCache struct {
	m       sync.RWMutex
	entries map[string]Entry
}

func (c *memoCache) Get(domain string) (Entry, bool) {
	c.m.RLock()
	defer c.m.RUnlock()
	e, ok := c.entries[domain]
	return e, ok
}

func (c *memoCache) Add(domain string, e Entry) {
	c.m.Lock()
	defer c.m.Unlock()
	c.entries[domain] = e
}

func (c *memoCache) Len() int {
	c.m.RLock()
	defer c.m.RUnlock()
	return len(c.entries)
}

func (c *memoCache) Cap() int {
	return 0
}

type lruCache struct {
	c    *lru.Cache
	size int
}

func (c *lruCache) Get(domain string) (Entry, bool) {
	v, ok := c.c.Get(domain)
	if !ok {
		return Entry{}, false
	}
	return v.(Entry), true
}

func (c *lruCache) Add(domain string, e Entry) {
	c.c.Add(domain, e)
}

func (c *lruCache) Len() int {
	return c.c.Len()
}

func (c *lruCache) Cap() int {
	return c.size
}

// NewCache returns an unbounded cache when size <= 0, and an LRU cache
// holding at most size entries otherwise
func NewCache(size int) (Cache, error) {
	if size <= 0 {
		return &memoCache{
			entries: make(map[string]Entry),
		}, nil
	}
	c, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	return &lruCache{
		c:    c,
		size: size,
	}, nil
}
