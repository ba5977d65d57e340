// Package analytics implements the in-memory, in-process pipeline DSL
// executor (the "atomic data engine") over short-lived, tenant-scoped
// tabular datasets: filter / select / groupBy / sort / topN / join.
//
// Execute is a pure function of (dataset, plan, bounds, resolver): it never
// reaches into storage directly (the right-hand side of a join is supplied
// via a resolver closure) and it never throws for cap breaches — every
// policy decision beyond a structural error is recorded as a warning.
package analytics

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DataType is one of the closed set of column types the engine understands.
// Unknown runtime types fall back to TypeString at ingestion time.
type DataType string

const (
	TypeInt32    DataType = "int32"
	TypeInt64    DataType = "int64"
	TypeDouble   DataType = "double"
	TypeSingle   DataType = "single"
	TypeDecimal  DataType = "decimal"
	TypeBoolean  DataType = "boolean"
	TypeDatetime DataType = "datetime"
	TypeString   DataType = "string"
)

// ColumnDef describes one ordered column of a dataset or frame.
type ColumnDef struct {
	Name        string
	Type        DataType
	DisplayName string
}

// Dataset is an immutable, in-memory tabular collection identified by an
// opaque id. Tenant/user ownership never changes after construction, column
// order and names are immutable, and the dataset becomes unreachable
// strictly after CreatedAtUTC plus the store-clamped TTL (enforced by the
// dataset store, not here).
type Dataset struct {
	DatasetID    string
	Source       string
	TenantID     string
	UserID       string
	CreatedAtUTC time.Time
	TTL          time.Duration
	Schema       []ColumnDef
	SchemaDigest string
	// Columns holds columnar data keyed by column name, preserving the
	// declared type per column. Every slice has the same length (RowCount).
	Columns map[string][]any
}

// NewDataset validates column lengths and assigns a fresh random datasetId.
func NewDataset(source, tenantID, userID string, schema []ColumnDef, columns map[string][]any, ttl time.Duration, createdAt time.Time) (*Dataset, error) {
	if len(schema) == 0 {
		return nil, fmt.Errorf("dataset: schema must have at least one column")
	}
	rowCount := -1
	for _, col := range schema {
		vals, ok := columns[col.Name]
		if !ok {
			return nil, fmt.Errorf("dataset: column %q missing data", col.Name)
		}
		if rowCount == -1 {
			rowCount = len(vals)
		} else if len(vals) != rowCount {
			return nil, fmt.Errorf("dataset: column %q has %d rows, expected %d", col.Name, len(vals), rowCount)
		}
	}
	return &Dataset{
		DatasetID:    uuid.NewString(),
		Source:       source,
		TenantID:     tenantID,
		UserID:       userID,
		CreatedAtUTC: createdAt,
		TTL:          ttl,
		Schema:       append([]ColumnDef(nil), schema...),
		Columns:      columns,
	}, nil
}

// RowCount returns the number of rows in the dataset.
func (d *Dataset) RowCount() int {
	if len(d.Schema) == 0 {
		return 0
	}
	return len(d.Columns[d.Schema[0].Name])
}

// ExpiresAt returns CreatedAtUTC+TTL using the unclamped TTL; the dataset
// store computes its own expiry from the clamped TTL.
func (d *Dataset) ExpiresAt() time.Time { return d.CreatedAtUTC.Add(d.TTL) }

// Expired reports whether the dataset has outlived its TTL as of now.
func (d *Dataset) Expired(now time.Time) bool { return now.After(d.ExpiresAt()) }

// Frame is the engine's row-major working representation. DatasetToFrame and
// Frame.ToColumns convert between the dataset's columnar storage and the
// row-major shape the pipeline steps operate on.
type Frame struct {
	Schema []ColumnDef
	Rows   [][]any
}

// DatasetToFrame converts a dataset's columnar storage into a row-major Frame.
func DatasetToFrame(d *Dataset) Frame {
	n := d.RowCount()
	rows := make([][]any, n)
	for i := 0; i < n; i++ {
		row := make([]any, len(d.Schema))
		for c, col := range d.Schema {
			row[c] = d.Columns[col.Name][i]
		}
		rows[i] = row
	}
	return Frame{Schema: append([]ColumnDef(nil), d.Schema...), Rows: rows}
}

// ToColumns converts a row-major Frame back into columnar storage, suitable
// for persisting the result of a pipeline as a new dataset.
func (f Frame) ToColumns() map[string][]any {
	out := make(map[string][]any, len(f.Schema))
	for c, col := range f.Schema {
		vals := make([]any, len(f.Rows))
		for i, row := range f.Rows {
			vals[i] = row[c]
		}
		out[col.Name] = vals
	}
	return out
}

// ColumnIndex returns the index of the named column, or -1 if absent.
func (f Frame) ColumnIndex(name string) int {
	for i, c := range f.Schema {
		if c.Name == name {
			return i
		}
	}
	return -1
}
