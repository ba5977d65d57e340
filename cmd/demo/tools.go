package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/bindevz/toolrt/runtime/analytics"
	"github.com/bindevz/toolrt/runtime/catalog"
	"github.com/bindevz/toolrt/runtime/dispatch"
	"github.com/bindevz/toolrt/runtime/store"
	"github.com/bindevz/toolrt/runtime/tools"
)

// registerAnalyticsRun wires the one demo tool this binary exposes:
// analytics.run, which executes a pipeline DSL plan against a dataset
// already materialized in datasetStore, memoizing results in resultCache
// keyed on (datasetId, bounds, pipeline).
func registerAnalyticsRun(registry *catalog.Registry, table *dispatch.Table, datasetStore store.DatasetStore, resultCache store.ResultCache) {
	registry.Register(catalog.ToolSpec{
		Name: "analytics.run",
		Args: []catalog.ArgSpec{
			{Name: "datasetId", Type: tools.ArgGUID, Required: true},
			{Name: "pipeline", Type: tools.ArgJSON, Required: false, Default: []any{}},
			{Name: "persist", Type: tools.ArgBool, Required: false, Default: false},
		},
	})

	table.Register("analytics.run", func(ctx context.Context, execCtx dispatch.ExecutionContext, intent catalog.DynamicIntent) (dispatch.Result, dispatch.Extras, error) {
		datasetID, _ := intent.Args["datasetId"].(string)

		dataset, ok, err := datasetStore.Get(ctx, datasetID, execCtx.TenantID, execCtx.UserID)
		if err != nil {
			return dispatch.Result{}, dispatch.Extras{}, fmt.Errorf("analytics.run: load dataset: %w", err)
		}
		if !ok {
			return dispatch.Result{Success: false, Message: "dataset not found"}, dispatch.Extras{}, nil
		}

		pipelineJSON, err := json.Marshal(intent.Args["pipeline"])
		if err != nil {
			return dispatch.Result{}, dispatch.Extras{}, fmt.Errorf("analytics.run: re-encode pipeline: %w", err)
		}
		persist, _ := intent.Args["persist"].(bool)

		bounds := analytics.DefaultBounds()
		cacheKey := store.ResultCacheKey(datasetID, bounds, pipelineJSON)
		if !persist {
			if cached, ok, err := resultCache.Get(ctx, cacheKey); err == nil && ok {
				rows := frameToRowMaps(cached.Frame)
				return dispatch.Result{
					Success: true,
					Message: fmt.Sprintf("returned %d rows (cached)", len(rows)),
					Data:    map[string]any{"rows": rows, "rowCount": len(rows), "warnings": cached.Warnings},
				}, dispatch.Extras{Source: "analytics-cache"}, nil
			}
		}

		plan, parseWarnings, err := analytics.ParsePlan(pipelineJSON)
		if err != nil {
			return dispatch.Result{Success: false, Message: err.Error()}, dispatch.Extras{}, nil
		}

		resolver := analytics.DatasetResolverFunc(func(id string) (*analytics.Dataset, bool) {
			d, ok, err := datasetStore.Get(ctx, id, execCtx.TenantID, execCtx.UserID)
			if err != nil || !ok {
				return nil, false
			}
			return d, true
		})

		frame, execWarnings, err := analytics.Execute(dataset, plan, bounds, resolver)
		if err != nil {
			var argErr *analytics.ArgumentError
			if errors.As(err, &argErr) {
				return dispatch.Result{Success: false, Message: argErr.Error()}, dispatch.Extras{}, nil
			}
			return dispatch.Result{}, dispatch.Extras{}, fmt.Errorf("analytics.run: execute: %w", err)
		}
		warnings := append(parseWarnings, execWarnings...)
		rows := frameToRowMaps(frame)
		data := map[string]any{"rows": rows, "rowCount": len(rows), "warnings": warnings}

		if persist {
			persisted, err := analytics.NewDataset("analytics.run", execCtx.TenantID, execCtx.UserID, frame.Schema, frame.ToColumns(), 0, time.Now().UTC())
			if err != nil {
				return dispatch.Result{}, dispatch.Extras{}, fmt.Errorf("analytics.run: persist result: %w", err)
			}
			if err := datasetStore.Put(ctx, persisted); err != nil {
				return dispatch.Result{}, dispatch.Extras{}, fmt.Errorf("analytics.run: store persisted dataset: %w", err)
			}
			data["persistedDatasetId"] = persisted.DatasetID
		} else {
			_ = resultCache.Put(ctx, cacheKey, store.CachedResult{Frame: frame, Warnings: warnings}, 0)
		}

		return dispatch.Result{
			Success: true,
			Message: fmt.Sprintf("returned %d rows", len(rows)),
			Data:    data,
		}, dispatch.Extras{Source: "analytics"}, nil
	})
}

func frameToRowMaps(f analytics.Frame) []map[string]any {
	out := make([]map[string]any, len(f.Rows))
	for i, row := range f.Rows {
		m := make(map[string]any, len(f.Schema))
		for c, col := range f.Schema {
			m[col.Name] = row[c]
		}
		out[i] = m
	}
	return out
}
