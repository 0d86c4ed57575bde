package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/custodia-labs/notelens/internal/core/ports/driven"
)

const (
	queryCacheTTL = 10 * time.Minute
	queryCacheCap = 256
)

// QueryEmbeddingCache memoises query vectors per normalized query text,
// model, and dimension count. Entries expire after a TTL and the cache
// is size-capped, evicting expired entries first and then the oldest.
// Two goroutines missing on the same key may both call the provider;
// the later write wins and both callers get a valid vector.
type QueryEmbeddingCache struct {
	mu      sync.Mutex
	entries map[string]queryCacheEntry
	ttl     time.Duration
	cap     int
	now     func() time.Time
}

type queryCacheEntry struct {
	vec     []float32
	addedAt time.Time
}

// NewQueryEmbeddingCache creates a cache with the default TTL and cap.
func NewQueryEmbeddingCache() *QueryEmbeddingCache {
	return &QueryEmbeddingCache{
		entries: make(map[string]queryCacheEntry),
		ttl:     queryCacheTTL,
		cap:     queryCacheCap,
		now:     time.Now,
	}
}

// Get returns the cached vector for the query under embedder's model,
// computing and storing it on a miss. Provider failures are returned to
// the caller and never cached, so a transient failure cannot poison
// later lookups.
func (c *QueryEmbeddingCache) Get(ctx context.Context, text string, embedder driven.EmbeddingService) ([]float32, error) {
	key := c.cacheKey(text, embedder.ModelName(), embedder.Dimensions())

	c.mu.Lock()
	if e, ok := c.entries[key]; ok && c.now().Sub(e.addedAt) < c.ttl {
		vec := e.vec
		c.mu.Unlock()
		return vec, nil
	}
	c.mu.Unlock()

	vec, err := embedder.Embed(ctx, text, driven.EmbedRoleQuery)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.evictForSpace()
	c.entries[key] = queryCacheEntry{vec: vec, addedAt: c.now()}
	c.mu.Unlock()
	return vec, nil
}

// Len reports the number of cached entries, expired or not.
func (c *QueryEmbeddingCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// cacheKey hashes the whitespace-normalized, lowercased query together
// with the model identity, so the same text under a different model or
// dimension count is a distinct entry.
func (c *QueryEmbeddingCache) cacheKey(text, model string, dims int) string {
	norm := strings.Join(strings.Fields(strings.ToLower(text)), " ")
	h := sha256.Sum256([]byte(norm + "|" + model + "|" + strconv.Itoa(dims)))
	return hex.EncodeToString(h[:])
}

// evictForSpace frees room for one insert: expired entries go first,
// then the oldest remaining. Caller holds mu.
func (c *QueryEmbeddingCache) evictForSpace() {
	if len(c.entries) < c.cap {
		return
	}
	cutoff := c.now().Add(-c.ttl)
	for k, e := range c.entries {
		if e.addedAt.Before(cutoff) {
			delete(c.entries, k)
		}
	}
	for len(c.entries) >= c.cap {
		var oldestKey string
		var oldestAt time.Time
		for k, e := range c.entries {
			if oldestKey == "" || e.addedAt.Before(oldestAt) {
				oldestKey = k
				oldestAt = e.addedAt
			}
		}
		delete(c.entries, oldestKey)
	}
}
