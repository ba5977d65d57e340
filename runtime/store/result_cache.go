package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"sync"
	"time"

	"github.com/bindevz/toolrt/runtime/analytics"
)

const (
	resultCacheTTLMin     = 5 * time.Minute
	resultCacheTTLMax     = 10 * time.Minute
	resultCacheTTLDefault = 5 * time.Minute
)

// ClampResultCacheTTL enforces the result cache's documented TTL range.
func ClampResultCacheTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return resultCacheTTLDefault
	}
	if ttl < resultCacheTTLMin {
		return resultCacheTTLMin
	}
	if ttl > resultCacheTTLMax {
		return resultCacheTTLMax
	}
	return ttl
}

// ResultCacheKey builds the memoization key for one analytics.Execute call.
func ResultCacheKey(datasetID string, bounds analytics.Bounds, pipelineJSON []byte) string {
	h := sha256.New()
	parts := []string{
		datasetID,
		strconv.Itoa(bounds.TopN),
		strconv.Itoa(bounds.MaxGroups),
		strconv.Itoa(bounds.MaxResultRows),
		strconv.Itoa(bounds.MaxJoinRows),
		strconv.Itoa(bounds.MaxJoinMatchesPerLeft),
		strconv.Itoa(bounds.MaxColumns),
	}
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{'|'})
	}
	h.Write(pipelineJSON)
	return hex.EncodeToString(h.Sum(nil))
}

// CachedResult is the memoized outcome of one analytics.Execute call.
type CachedResult struct {
	Frame    analytics.Frame
	Warnings []string
}

// ResultCache memoizes analytics.Execute outcomes keyed by ResultCacheKey.
type ResultCache interface {
	Get(ctx context.Context, key string) (CachedResult, bool, error)
	Put(ctx context.Context, key string, result CachedResult, ttl time.Duration) error
}

type resultEntry struct {
	result    CachedResult
	expiresAt time.Time
}

// MemoryResultCache is a mutex-protected, TTL-expiring in-memory result
// cache, mirroring MemoryDatasetStore's lazy-expiry-on-lookup pattern.
type MemoryResultCache struct {
	mu      sync.RWMutex
	entries map[string]resultEntry
	now     func() time.Time
}

var _ ResultCache = (*MemoryResultCache)(nil)

// NewMemoryResultCache creates an empty in-memory result cache.
func NewMemoryResultCache() *MemoryResultCache {
	return &MemoryResultCache{entries: make(map[string]resultEntry), now: time.Now}
}

func (c *MemoryResultCache) Get(ctx context.Context, key string) (CachedResult, bool, error) {
	select {
	case <-ctx.Done():
		return CachedResult{}, false, ctx.Err()
	default:
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[key]
	if !ok {
		return CachedResult{}, false, nil
	}
	if c.now().After(entry.expiresAt) {
		delete(c.entries, key)
		return CachedResult{}, false, nil
	}
	return entry.result, true, nil
}

func (c *MemoryResultCache) Put(ctx context.Context, key string, result CachedResult, ttl time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = resultEntry{result: result, expiresAt: c.now().Add(ClampResultCacheTTL(ttl))}
	return nil
}

// DegradingResultCache mirrors DegradingDatasetStore: primary failures fall
// back to a secondary in-memory cache so no request fails because the cache
// does.
type DegradingResultCache struct {
	Primary   ResultCache
	Secondary ResultCache
	OnDegrade func(err error)
}

var _ ResultCache = (*DegradingResultCache)(nil)

func (c *DegradingResultCache) Get(ctx context.Context, key string) (CachedResult, bool, error) {
	result, ok, err := c.Primary.Get(ctx, key)
	if err != nil {
		c.degraded(err)
		return c.Secondary.Get(ctx, key)
	}
	return result, ok, nil
}

func (c *DegradingResultCache) Put(ctx context.Context, key string, result CachedResult, ttl time.Duration) error {
	if err := c.Primary.Put(ctx, key, result, ttl); err != nil {
		c.degraded(err)
		return c.Secondary.Put(ctx, key, result, ttl)
	}
	return nil
}

func (c *DegradingResultCache) degraded(err error) {
	if c.OnDegrade != nil {
		c.OnDegrade(err)
	}
}
