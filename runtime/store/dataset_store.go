// Package store implements the Dataset Store and Result Cache: TTL-bounded,
// tenant/user-scoped key-value stores. The in-memory backend is grounded on
// the teacher's registry/store/memory package (mutex-protected map,
// ctx-cancellation check on every call); the optional Redis-backed variant
// mirrors the teacher's registry/service.go result-stream TTL handling.
package store

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/bindevz/toolrt/runtime/analytics"
)

// ErrNotFound is returned when a key is absent or owned by a different
// tenant/user than the caller presented.
var ErrNotFound = errors.New("store: not found")

const (
	datasetTTLMin     = time.Minute
	datasetTTLMax     = time.Hour
	datasetTTLDefault = 10 * time.Minute
)

// ClampDatasetTTL enforces the dataset store's documented TTL range.
func ClampDatasetTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return datasetTTLDefault
	}
	if ttl < datasetTTLMin {
		return datasetTTLMin
	}
	if ttl > datasetTTLMax {
		return datasetTTLMax
	}
	return ttl
}

// DatasetStore is satisfied by every dataset store backend: in-memory,
// Redis-backed, or a degrading wrapper of the two.
type DatasetStore interface {
	Put(ctx context.Context, d *analytics.Dataset) error
	Get(ctx context.Context, datasetID, tenantID, userID string) (*analytics.Dataset, bool, error)
}

type datasetEntry struct {
	dataset   *analytics.Dataset
	expiresAt time.Time
}

// MemoryDatasetStore is a mutex-protected, TTL-expiring in-memory dataset
// store. Lazy expiry: a lookup past expiresAt is treated as not-found and
// the entry is dropped; there is no background sweeper.
type MemoryDatasetStore struct {
	mu      sync.RWMutex
	entries map[string]datasetEntry
	now     func() time.Time
}

var _ DatasetStore = (*MemoryDatasetStore)(nil)

// NewMemoryDatasetStore creates an empty in-memory dataset store.
func NewMemoryDatasetStore() *MemoryDatasetStore {
	return &MemoryDatasetStore{entries: make(map[string]datasetEntry), now: time.Now}
}

// Put inserts or replaces a dataset, deriving expiry from the dataset's own
// CreatedAtUTC + TTL (clamped).
func (s *MemoryDatasetStore) Put(ctx context.Context, d *analytics.Dataset) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ttl := ClampDatasetTTL(d.TTL)
	s.entries[d.DatasetID] = datasetEntry{dataset: d, expiresAt: d.CreatedAtUTC.Add(ttl)}
	return nil
}

// Get retrieves a dataset by id, enforcing tenant/user ownership and lazy
// TTL expiry. A mismatched owner is indistinguishable from not-found, per
// the tenant isolation invariant.
func (s *MemoryDatasetStore) Get(ctx context.Context, datasetID, tenantID, userID string) (*analytics.Dataset, bool, error) {
	select {
	case <-ctx.Done():
		return nil, false, ctx.Err()
	default:
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[datasetID]
	if !ok {
		return nil, false, nil
	}
	if s.now().After(entry.expiresAt) {
		delete(s.entries, datasetID)
		return nil, false, nil
	}
	if entry.dataset.TenantID != tenantID || entry.dataset.UserID != userID {
		return nil, false, nil
	}
	return entry.dataset, true, nil
}

// DegradingDatasetStore tries a primary (typically remote) backend first and
// falls back to a secondary in-memory backend on any primary error, so a
// remote outage never fails the calling request.
type DegradingDatasetStore struct {
	Primary   DatasetStore
	Secondary DatasetStore
	OnDegrade func(err error)
}

var _ DatasetStore = (*DegradingDatasetStore)(nil)

func (s *DegradingDatasetStore) Put(ctx context.Context, d *analytics.Dataset) error {
	if err := s.Primary.Put(ctx, d); err != nil {
		s.degraded(err)
		return s.Secondary.Put(ctx, d)
	}
	return nil
}

func (s *DegradingDatasetStore) Get(ctx context.Context, datasetID, tenantID, userID string) (*analytics.Dataset, bool, error) {
	d, ok, err := s.Primary.Get(ctx, datasetID, tenantID, userID)
	if err != nil {
		s.degraded(err)
		return s.Secondary.Get(ctx, datasetID, tenantID, userID)
	}
	return d, ok, nil
}

func (s *DegradingDatasetStore) degraded(err error) {
	if s.OnDegrade != nil {
		s.OnDegrade(err)
	}
}
