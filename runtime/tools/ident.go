// Package tools exposes shared tool identity, argument, and validation types
// used across the catalog, dispatcher, invoker, and planner packages.
package tools

// Ident is the strong type for a registered tool name (e.g., "analytics.run",
// "dataset.query"). Use this type instead of a bare string when referencing
// tools in maps or APIs to avoid accidental mixing with free-form strings.
type Ident string

// String implements fmt.Stringer.
func (i Ident) String() string { return string(i) }

// ArgType enumerates the coercion target for a single declared tool argument.
type ArgType string

const (
	ArgString    ArgType = "string"
	ArgInt       ArgType = "int"
	ArgBool      ArgType = "bool"
	ArgGUID      ArgType = "guid"
	ArgDecimal   ArgType = "decimal"
	ArgJSON      ArgType = "json"
	ArgStringMap ArgType = "stringMap"
)

// FieldIssue represents a single validation issue surfaced for an offending
// argument. Constraint values are stable strings consumers can switch on:
// unknown_tool, invalid_json, unknown_field, missing_field, invalid_field_type
// (the last also covers out-of-range integers, with MinInt/MaxInt set).
type FieldIssue struct {
	Field      string
	Constraint string
	MinInt     *int64
	MaxInt     *int64
}
