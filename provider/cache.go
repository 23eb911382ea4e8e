package provider

import (
	"container/list"
	"fmt"
	"sync"
	"time"
)

// AccountCacheEntry represents a cached merchant account
type AccountCacheEntry struct {
	Account      *Account
	Key          string
	MerchantKey  string
	Gateway      string
	CreatedAt    time.Time
	LastAccessed time.Time
	listElement  *list.Element // For LRU tracking
}

// AccountCache keeps decoded accounts so the store is not hit per request.
type AccountCache interface {
	Get(merchantKey, gateway string) *Account
	Set(merchantKey, gateway string, acc *Account)
	Delete(merchantKey, gateway string)
	Clear()
	Size() int
	Stats() CacheStats
	Cleanup()
}

// CacheStats represents cache performance metrics
type CacheStats struct {
	Size        int           `json:"size"`
	MaxSize     int           `json:"max_size"`
	Hits        int64         `json:"hits"`
	Misses      int64         `json:"misses"`
	Evictions   int64         `json:"evictions"`
	TTLExpiries int64         `json:"ttl_expiries"`
	HitRatio    float64       `json:"hit_ratio"`
	TTL         time.Duration `json:"ttl"`
}

// InMemoryAccountCache is an LRU cache with a TTL.
type InMemoryAccountCache struct {
	entries     map[string]*AccountCacheEntry
	accessOrder *list.List // most recent at front
	maxSize     int
	ttl         time.Duration
	now         func() time.Time
	mu          sync.Mutex

	hits        int64
	misses      int64
	evictions   int64
	ttlExpiries int64
}

// NewAccountCache creates a new in-memory account cache
func NewAccountCache(maxSize int, ttl time.Duration) *InMemoryAccountCache {
	if maxSize <= 0 {
		maxSize = 100
	}
	return &InMemoryAccountCache{
		entries:     make(map[string]*AccountCacheEntry),
		accessOrder: list.New(),
		maxSize:     maxSize,
		ttl:         ttl,
		now:         time.Now,
	}
}

func cacheKey(merchantKey, gateway string) string {
	return fmt.Sprintf("%s-%s", merchantKey, gateway)
}

// Get returns a cached account, nil on miss or expiry
func (c *InMemoryAccountCache) Get(merchantKey, gateway string) *Account {
	key := cacheKey(merchantKey, gateway)

	c.mu.Lock()
	defer c.mu.Unlock()

	entry, exists := c.entries[key]
	if !exists {
		c.misses++
		return nil
	}

	if c.ttl > 0 && c.now().Sub(entry.CreatedAt) > c.ttl {
		c.deleteEntryUnsafe(key, entry)
		c.ttlExpiries++
		c.misses++
		return nil
	}

	entry.LastAccessed = c.now()
	c.accessOrder.MoveToFront(entry.listElement)

	c.hits++
	return entry.Account
}

// Set stores an account in cache
func (c *InMemoryAccountCache) Set(merchantKey, gateway string, acc *Account) {
	key := cacheKey(merchantKey, gateway)
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, exists := c.entries[key]; exists {
		existing.Account = acc
		existing.CreatedAt = now
		existing.LastAccessed = now
		c.accessOrder.MoveToFront(existing.listElement)
		return
	}

	if len(c.entries) >= c.maxSize {
		c.evictLRUUnsafe()
	}

	entry := &AccountCacheEntry{
		Account:      acc,
		Key:          key,
		MerchantKey:  merchantKey,
		Gateway:      gateway,
		CreatedAt:    now,
		LastAccessed: now,
	}
	entry.listElement = c.accessOrder.PushFront(entry)
	c.entries[key] = entry
}

// Delete removes an account from cache
func (c *InMemoryAccountCache) Delete(merchantKey, gateway string) {
	key := cacheKey(merchantKey, gateway)

	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, exists := c.entries[key]; exists {
		c.deleteEntryUnsafe(key, entry)
	}
}

// Clear removes all entries from cache
func (c *InMemoryAccountCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*AccountCacheEntry)
	c.accessOrder = list.New()
}

// Size returns the current number of cached entries
func (c *InMemoryAccountCache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.entries)
}

// Stats returns cache statistics
func (c *InMemoryAccountCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	totalRequests := c.hits + c.misses
	hitRatio := 0.0
	if totalRequests > 0 {
		hitRatio = float64(c.hits) / float64(totalRequests)
	}

	return CacheStats{
		Size:        len(c.entries),
		MaxSize:     c.maxSize,
		Hits:        c.hits,
		Misses:      c.misses,
		Evictions:   c.evictions,
		TTLExpiries: c.ttlExpiries,
		HitRatio:    hitRatio,
		TTL:         c.ttl,
	}
}

// Cleanup removes expired entries
func (c *InMemoryAccountCache) Cleanup() {
	if c.ttl <= 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for key, entry := range c.entries {
		if now.Sub(entry.CreatedAt) > c.ttl {
			c.deleteEntryUnsafe(key, entry)
			c.ttlExpiries++
		}
	}
}

// evictLRUUnsafe must be called with lock held
func (c *InMemoryAccountCache) evictLRUUnsafe() {
	lruElement := c.accessOrder.Back()
	if lruElement == nil {
		return
	}

	lruEntry := lruElement.Value.(*AccountCacheEntry)
	c.deleteEntryUnsafe(lruEntry.Key, lruEntry)
	c.evictions++
}

// deleteEntryUnsafe must be called with lock held
func (c *InMemoryAccountCache) deleteEntryUnsafe(key string, entry *AccountCacheEntry) {
	delete(c.entries, key)
	if entry.listElement != nil {
		c.accessOrder.Remove(entry.listElement)
	}
}
