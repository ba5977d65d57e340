package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/bindevz/toolrt/runtime/analytics"
)

// wireDataset is the columnar-preserving JSON representation persisted to
// Redis. Column values are serialized as-is and read back exactly as
// encoding/json decodes them (numbers as float64, decimals and times as
// strings); the read path does not convert them back by Schema's DataType.
type wireDataset struct {
	DatasetID    string                     `json:"datasetId"`
	Source       string                     `json:"source"`
	TenantID     string                     `json:"tenantId"`
	UserID       string                     `json:"userId"`
	CreatedAtUTC time.Time                  `json:"createdAtUtc"`
	TTL          time.Duration              `json:"ttl"`
	Schema       []analytics.ColumnDef      `json:"schema"`
	SchemaDigest string                     `json:"schemaDigest,omitempty"`
	Columns      map[string][]any           `json:"columns"`
}

// RedisDatasetStore persists datasets under a `keyPrefix:datasetId` key
// (tenant/user ownership is checked on read, not encoded in the key), maintaining
// a secondary `datasetId -> canonical key` index so id-only lookups stay
// O(1), matching the teacher's result-stream id-to-stream-id mapping
// pattern (registry/result_stream.go).
type RedisDatasetStore struct {
	rdb       *redis.Client
	keyPrefix string
}

var _ DatasetStore = (*RedisDatasetStore)(nil)

// NewRedisDatasetStore wraps an existing Redis client. keyPrefix namespaces
// keys for multi-tenant deployments sharing one Redis instance.
func NewRedisDatasetStore(rdb *redis.Client, keyPrefix string) *RedisDatasetStore {
	if keyPrefix == "" {
		keyPrefix = "toolrt:dataset"
	}
	return &RedisDatasetStore{rdb: rdb, keyPrefix: keyPrefix}
}

func (s *RedisDatasetStore) canonicalKey(datasetID string) string {
	return fmt.Sprintf("%s:%s", s.keyPrefix, datasetID)
}

func (s *RedisDatasetStore) indexKey(datasetID string) string {
	return fmt.Sprintf("%s:index:%s", s.keyPrefix, datasetID)
}

// Put serializes the dataset and stores it with a TTL matching its own
// clamped lifetime, alongside the secondary index entry.
func (s *RedisDatasetStore) Put(ctx context.Context, d *analytics.Dataset) error {
	wire := wireDataset{
		DatasetID:    d.DatasetID,
		Source:       d.Source,
		TenantID:     d.TenantID,
		UserID:       d.UserID,
		CreatedAtUTC: d.CreatedAtUTC,
		TTL:          d.TTL,
		Schema:       d.Schema,
		SchemaDigest: d.SchemaDigest,
		Columns:      d.Columns,
	}
	payload, err := json.Marshal(wire)
	if err != nil {
		return fmt.Errorf("marshal dataset: %w", err)
	}
	ttl := ClampDatasetTTL(d.TTL)
	key := s.canonicalKey(d.DatasetID)
	if err := s.rdb.Set(ctx, key, payload, ttl).Err(); err != nil {
		return fmt.Errorf("set dataset %q: %w", d.DatasetID, err)
	}
	if err := s.rdb.Set(ctx, s.indexKey(d.DatasetID), key, ttl).Err(); err != nil {
		return fmt.Errorf("set dataset index %q: %w", d.DatasetID, err)
	}
	return nil
}

// Get resolves datasetID through the secondary index, loads the canonical
// key, and enforces tenant/user ownership before returning the dataset.
func (s *RedisDatasetStore) Get(ctx context.Context, datasetID, tenantID, userID string) (*analytics.Dataset, bool, error) {
	key, err := s.rdb.Get(ctx, s.indexKey(datasetID)).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("lookup dataset index %q: %w", datasetID, err)
	}
	payload, err := s.rdb.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get dataset %q: %w", datasetID, err)
	}
	var wire wireDataset
	if err := json.Unmarshal(payload, &wire); err != nil {
		return nil, false, fmt.Errorf("unmarshal dataset %q: %w", datasetID, err)
	}
	if wire.TenantID != tenantID || wire.UserID != userID {
		return nil, false, nil
	}
	d := &analytics.Dataset{
		DatasetID:    wire.DatasetID,
		Source:       wire.Source,
		TenantID:     wire.TenantID,
		UserID:       wire.UserID,
		CreatedAtUTC: wire.CreatedAtUTC,
		TTL:          wire.TTL,
		Schema:       wire.Schema,
		SchemaDigest: wire.SchemaDigest,
		Columns:      wire.Columns,
	}
	return d, true, nil
}
