package main

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bindevz/toolrt/runtime/analytics"
	"github.com/bindevz/toolrt/runtime/catalog"
	"github.com/bindevz/toolrt/runtime/dispatch"
	"github.com/bindevz/toolrt/runtime/store"
)

func TestRegisterAnalyticsRun_FiltersAndCounts(t *testing.T) {
	registry := catalog.New()
	table := dispatch.NewTable()
	datasetStore := store.NewMemoryDatasetStore()
	registerAnalyticsRun(registry, table, datasetStore, store.NewMemoryResultCache())
	seedDemoDataset(datasetStore)

	pipeline := []any{
		map[string]any{"op": "filter", "column": "status", "operator": "eq", "value": "active"},
	}
	pipelineJSON, _ := json.Marshal(pipeline)

	spec, ok := registry.Lookup("analytics.run")
	require.True(t, ok)
	intent, warnings, err := spec.Validate(mustJSON(map[string]any{
		"datasetId": demoDatasetID,
		"pipeline":  json.RawMessage(pipelineJSON),
	}))
	require.NoError(t, err)
	assert.Empty(t, warnings)

	result, extras, err := table.Dispatch(context.Background(), "analytics.run", dispatch.ExecutionContext{
		TenantID: demoTenantID, UserID: demoUserID,
	}, intent)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "analytics", extras.Source)

	data := result.Data.(map[string]any)
	assert.Equal(t, 3, data["rowCount"])
}

func TestRegisterAnalyticsRun_UnknownDatasetFails(t *testing.T) {
	registry := catalog.New()
	table := dispatch.NewTable()
	datasetStore := store.NewMemoryDatasetStore()
	registerAnalyticsRun(registry, table, datasetStore, store.NewMemoryResultCache())

	spec, _ := registry.Lookup("analytics.run")
	intent, _, err := spec.Validate(mustJSON(map[string]any{
		"datasetId": "11111111-1111-1111-1111-111111111111",
	}))
	require.NoError(t, err)

	result, _, err := table.Dispatch(context.Background(), "analytics.run", dispatch.ExecutionContext{
		TenantID: demoTenantID, UserID: demoUserID,
	}, intent)
	require.NoError(t, err)
	assert.False(t, result.Success)
}

func TestRegisterAnalyticsRun_PersistStoresNewDatasetAndBypassesCache(t *testing.T) {
	registry := catalog.New()
	table := dispatch.NewTable()
	datasetStore := store.NewMemoryDatasetStore()
	resultCache := store.NewMemoryResultCache()
	registerAnalyticsRun(registry, table, datasetStore, resultCache)
	seedDemoDataset(datasetStore)

	pipeline := []any{
		map[string]any{"op": "filter", "column": "status", "operator": "eq", "value": "active"},
	}
	pipelineJSON, _ := json.Marshal(pipeline)

	spec, ok := registry.Lookup("analytics.run")
	require.True(t, ok)
	intent, _, err := spec.Validate(mustJSON(map[string]any{
		"datasetId": demoDatasetID,
		"pipeline":  json.RawMessage(pipelineJSON),
		"persist":   true,
	}))
	require.NoError(t, err)

	execCtx := dispatch.ExecutionContext{TenantID: demoTenantID, UserID: demoUserID}
	result, extras, err := table.Dispatch(context.Background(), "analytics.run", execCtx, intent)
	require.NoError(t, err)
	require.True(t, result.Success)
	assert.Equal(t, "analytics", extras.Source)

	data := result.Data.(map[string]any)
	persistedID, ok := data["persistedDatasetId"].(string)
	require.True(t, ok)
	assert.NotEmpty(t, persistedID)

	persisted, found, err := datasetStore.Get(context.Background(), persistedID, demoTenantID, demoUserID)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 3, persisted.RowCount())

	cacheKey := store.ResultCacheKey(demoDatasetID, analytics.DefaultBounds(), pipelineJSON)
	_, cached, err := resultCache.Get(context.Background(), cacheKey)
	require.NoError(t, err)
	assert.False(t, cached)
}

func mustJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}
