// Package cache implements the Query Result Cache: a bounded TTL map keyed
// by a stable request fingerprint, with an expiry sweeper and opportunistic
// LRU eviction on overflow.
package cache

import (
	"encoding/binary"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/crypto/blake2b"

	"github.com/propsearch/poolcore/internal/models"
)

// Entry is the Data Model's Cached Search Entry.
type Entry struct {
	Fingerprint string
	Result      models.SearchResult
	StoredAt    time.Time
	TTL         time.Duration
}

func (e Entry) expired(now time.Time) bool {
	return !now.Before(e.StoredAt.Add(e.TTL))
}

// Cache is the bounded TTL map. The LRU's own bookkeeping provides the
// opportunistic eviction on overflow; the sweeper additionally removes
// expired entries every 60s so memory doesn't hold dead entries between
// reads.
type Cache struct {
	mu    sync.RWMutex
	store *lru.Cache[string, Entry]
	ttl   time.Duration

	stopOnce sync.Once
	stop     chan struct{}
}

// New creates a Cache with the given default TTL and capacity, and starts
// the 60s expiry sweeper.
func New(ttl time.Duration, capacity int) *Cache {
	store, _ := lru.New[string, Entry](capacity)
	c := &Cache{
		store: store,
		ttl:   ttl,
		stop:  make(chan struct{}),
	}
	go c.sweepLoop()
	return c
}

// Get returns the cached result for fingerprint if present and unexpired.
// It never returns an expired or partially-constructed entry.
func (c *Cache) Get(fingerprint string) (models.SearchResult, bool) {
	c.mu.RLock()
	e, ok := c.store.Get(fingerprint)
	c.mu.RUnlock()

	if !ok || e.expired(time.Now()) {
		return models.SearchResult{}, false
	}
	return e.Result, true
}

// Put stores result under fingerprint with the cache's default TTL,
// letting the underlying LRU evict the least-recently-used entry if
// capacity is exceeded.
func (c *Cache) Put(fingerprint string, result models.SearchResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store.Add(fingerprint, Entry{
		Fingerprint: fingerprint,
		Result:      result,
		StoredAt:    time.Now(),
		TTL:         c.ttl,
	})
}

func (c *Cache) sweepLoop() {
	ticker := time.NewTicker(60 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.sweep()
		case <-c.stop:
			return
		}
	}
}

func (c *Cache) sweep() {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range c.store.Keys() {
		if e, ok := c.store.Peek(k); ok && e.expired(now) {
			c.store.Remove(k)
		}
	}
}

// Stop halts the sweeper goroutine.
func (c *Cache) Stop() {
	c.stopOnce.Do(func() { close(c.stop) })
}

// Fingerprint computes a stable hash over the normalized request, excluding
// the embedding vector: two clients may produce slightly different
// embeddings for identical text, but the text itself is part of the
// fingerprint, so including the vector would cause spurious cache misses.
func Fingerprint(req *models.SearchRequest) string {
	h, _ := blake2b.New256(nil)

	write := func(s string) { h.Write([]byte(s)); h.Write([]byte{0}) }
	writeInt := func(n int) {
		var buf [8]byte
		binary.BigEndian.PutUint64(buf[:], uint64(int64(n)))
		h.Write(buf[:])
	}

	write(strings.ToLower(strings.TrimSpace(req.QueryText)))
	write(strings.ToLower(strings.TrimSpace(req.Location)))
	write(strings.ToLower(strings.TrimSpace(req.PropertyType)))
	writeInt(req.Bedrooms)
	writeInt(req.Bathrooms)

	if req.PriceRange != nil {
		write(strconv.FormatFloat(req.PriceRange.Min, 'f', 2, 64))
		write(strconv.FormatFloat(req.PriceRange.Max, 'f', 2, 64))
	}

	features := append([]string(nil), req.Features...)
	sort.Strings(features)
	write(strings.Join(features, ","))

	writeInt(req.Limit)
	writeInt(req.Offset)
	write(string(req.SortBy))
	write(string(req.SortOrder))

	return fmt.Sprintf("%x", h.Sum(nil))
}
