// Package cache keeps recent extraction results in memory.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/use-agent/listingd/models"
)

type entry struct {
	result    *models.ExtractResult
	createdAt time.Time
}

// Cache is a bounded in-memory store of extraction results. The least
// recently used result is evicted at capacity and every result expires
// after the TTL. It is safe for concurrent use.
type Cache struct {
	lru *expirable.LRU[string, *entry]
	ttl time.Duration
}

// New creates a Cache holding at most maxEntries results, each kept for ttl.
func New(maxEntries int, ttl time.Duration) *Cache {
	if maxEntries <= 0 {
		maxEntries = 1000
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Cache{
		lru: expirable.NewLRU[string, *entry](maxEntries, nil, ttl),
		ttl: ttl,
	}
}

// Key derives a cache key from the URL, the fetch mode and the field table
// version, so a reloaded table never serves results shaped by the old one.
func Key(url, fetchMode, tableVersion string) string {
	h := sha256.New()
	h.Write([]byte(url))
	h.Write([]byte("|"))
	h.Write([]byte(fetchMode))
	h.Write([]byte("|"))
	h.Write([]byte(tableVersion))
	return hex.EncodeToString(h.Sum(nil))
}

// Get returns a result younger than both maxAgeMs milliseconds and the
// cache TTL. maxAgeMs <= 0 disables the lookup.
func (c *Cache) Get(key string, maxAgeMs int) (*models.ExtractResult, bool) {
	if maxAgeMs <= 0 {
		return nil, false
	}
	e, ok := c.lru.Get(key)
	if !ok {
		return nil, false
	}
	age := time.Since(e.createdAt)
	if age > c.ttl || age > time.Duration(maxAgeMs)*time.Millisecond {
		return nil, false
	}
	return e.result, true
}

// Set stores res, evicting the least recently used result when at capacity.
func (c *Cache) Set(key string, res *models.ExtractResult) {
	c.lru.Add(key, &entry{result: res, createdAt: time.Now()})
}

// Len returns the number of stored results, including expired ones not yet purged.
func (c *Cache) Len() int {
	return c.lru.Len()
}
