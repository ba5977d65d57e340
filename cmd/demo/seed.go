package main

import (
	"context"
	"log"
	"time"

	"github.com/bindevz/toolrt/runtime/analytics"
	"github.com/bindevz/toolrt/runtime/store"
)

// demoTenantID and demoUserID identify the dataset seeded at startup so the
// demo's analytics.run tool always has something to query.
const (
	demoTenantID   = "tenant-demo"
	demoUserID     = "user-demo"
	demoDatasetID  = "00000000-0000-0000-0000-000000000001"
	demoDatasetTTL = time.Hour
)

func seedDemoDataset(datasetStore store.DatasetStore) {
	schema := []analytics.ColumnDef{
		{Name: "accountId", Type: analytics.TypeString},
		{Name: "region", Type: analytics.TypeString},
		{Name: "status", Type: analytics.TypeString},
		{Name: "revenue", Type: analytics.TypeDouble},
	}
	columns := map[string][]any{
		"accountId": {"acc-1", "acc-2", "acc-3", "acc-4"},
		"region":    {"us", "us", "eu", "eu"},
		"status":    {"active", "churned", "active", "active"},
		"revenue":   {1200.0, 300.0, 800.0, 450.0},
	}

	dataset, err := analytics.NewDataset("demo-seed", demoTenantID, demoUserID, schema, columns, demoDatasetTTL, time.Now())
	if err != nil {
		log.Fatalf("failed to build demo dataset: %v", err)
	}
	dataset.DatasetID = demoDatasetID

	if err := datasetStore.Put(context.Background(), dataset); err != nil {
		log.Fatalf("failed to seed demo dataset: %v", err)
	}
}
