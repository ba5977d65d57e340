package catalog

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/google/uuid"

	"github.com/bindevz/toolrt/runtime/tools"
)

// DynamicIntent is the normalized output of validation: canonicalized
// filters, clamped paging, and typed, defaulted arguments.
type DynamicIntent struct {
	Filters  map[string]string
	Page     int
	PageSize int
	Args     map[string]any
}

// ValidationError carries the field-level issues produced by Validate.
// It is never raised for filter-key problems (those degrade to warnings);
// it is raised for unknown top-level arguments, type/range mismatches, and
// missing required arguments.
type ValidationError struct {
	Issues []tools.FieldIssue
}

func (e *ValidationError) Error() string {
	if len(e.Issues) == 0 {
		return "catalog: validation failed"
	}
	return fmt.Sprintf("catalog: validation failed on field %q (%s)", e.Issues[0].Field, e.Issues[0].Constraint)
}

// Validate applies the registry validation algorithm (spec §4.2) to a tool
// call's raw JSON arguments: unknown top-level keys are rejected, filters
// are canonicalized against the tool's alias table (unknown keys become
// warnings, not errors), every declared arg is parsed and coerced to its
// declared type, and paging is clamped to [1, maxPageSize].
func (r *Registry) Validate(name tools.Ident, argsJSON json.RawMessage) (DynamicIntent, []string, error) {
	spec, ok := r.Lookup(name)
	if !ok {
		return DynamicIntent{}, nil, &ValidationError{Issues: []tools.FieldIssue{{Field: "tool", Constraint: "unknown_tool"}}}
	}
	return spec.Validate(argsJSON)
}

// Validate applies spec's own validation rules directly, without a registry
// lookup; exported so handlers that already hold a ToolSpec can reuse it.
func (spec ToolSpec) Validate(argsJSON json.RawMessage) (DynamicIntent, []string, error) {
	var top map[string]json.RawMessage
	if len(argsJSON) > 0 {
		if err := json.Unmarshal(argsJSON, &top); err != nil {
			return DynamicIntent{}, nil, &ValidationError{Issues: []tools.FieldIssue{{Field: "$", Constraint: "invalid_json"}}}
		}
	}

	known := make(map[string]struct{}, len(spec.Args)+3)
	for _, a := range spec.Args {
		known[a.Name] = struct{}{}
	}
	known["filters"] = struct{}{}
	known["page"] = struct{}{}
	known["pageSize"] = struct{}{}

	var issues []tools.FieldIssue
	for key := range top {
		if _, ok := known[key]; !ok {
			issues = append(issues, tools.FieldIssue{Field: key, Constraint: "unknown_field"})
		}
	}
	if len(issues) > 0 {
		return DynamicIntent{}, nil, &ValidationError{Issues: issues}
	}

	var warnings []string
	filters, filterWarnings := spec.canonicalizeFilters(top["filters"])
	warnings = append(warnings, filterWarnings...)

	args := make(map[string]any, len(spec.Args))
	for _, a := range spec.Args {
		raw, present := top[a.Name]
		if !present || string(raw) == "null" {
			if a.Required {
				issues = append(issues, tools.FieldIssue{Field: a.Name, Constraint: "missing_field"})
				continue
			}
			args[a.Name] = a.Default
			continue
		}
		val, err := coerceArg(a, raw)
		if err != nil {
			issues = append(issues, tools.FieldIssue{Field: a.Name, Constraint: "invalid_field_type", MinInt: a.MinInt, MaxInt: a.MaxInt})
			continue
		}
		args[a.Name] = val
	}
	if len(issues) > 0 {
		return DynamicIntent{}, nil, &ValidationError{Issues: issues}
	}

	page, pageSize := spec.clampPaging(top["page"], top["pageSize"])

	return DynamicIntent{Filters: filters, Page: page, PageSize: pageSize, Args: args}, warnings, nil
}

// canonicalizeFilters maps alias keys to canonical keys via the tool's
// FilterAliases table; keys that remain unknown after aliasing are dropped
// with a warning rather than rejected.
func (spec ToolSpec) canonicalizeFilters(raw json.RawMessage) (map[string]string, []string) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var in map[string]string
	if err := json.Unmarshal(raw, &in); err != nil {
		return nil, []string{"filters: malformed object ignored"}
	}
	out := make(map[string]string, len(in))
	var warnings []string
	for key, val := range in {
		canonical := key
		if spec.FilterAliases != nil {
			if alias, ok := spec.FilterAliases[key]; ok {
				canonical = alias
			}
		}
		if spec.AllowedFilters != nil {
			if _, ok := spec.AllowedFilters[canonical]; !ok {
				warnings = append(warnings, "filters: unknown key "+key+" dropped")
				continue
			}
		}
		out[canonical] = val
	}
	return out, warnings
}

func (spec ToolSpec) clampPaging(pageRaw, pageSizeRaw json.RawMessage) (int, int) {
	page := spec.Paging.DefaultPage
	if page < 1 {
		page = 1
	}
	pageSize := spec.Paging.DefaultPageSize
	if pageSize < 1 {
		pageSize = 1
	}
	if n, ok := parseIntLoose(pageRaw); ok {
		page = n
	}
	if n, ok := parseIntLoose(pageSizeRaw); ok {
		pageSize = n
	}
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 1
	}
	maxPageSize := spec.Paging.MaxPageSize
	if maxPageSize > 0 && pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return page, pageSize
}

func parseIntLoose(raw json.RawMessage) (int, bool) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, false
	}
	var n int
	if err := json.Unmarshal(raw, &n); err == nil {
		return n, true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if n, err := strconv.Atoi(s); err == nil {
			return n, true
		}
	}
	return 0, false
}

func coerceArg(spec ArgSpec, raw json.RawMessage) (any, error) {
	switch spec.Type {
	case tools.ArgString:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, err
		}
		return s, nil
	case tools.ArgInt:
		n, ok := parseIntLoose(raw)
		if !ok {
			return nil, fmt.Errorf("not an integer")
		}
		if spec.MinInt != nil && int64(n) < *spec.MinInt {
			return nil, fmt.Errorf("below minimum")
		}
		if spec.MaxInt != nil && int64(n) > *spec.MaxInt {
			return nil, fmt.Errorf("above maximum")
		}
		return n, nil
	case tools.ArgBool:
		var b bool
		if err := json.Unmarshal(raw, &b); err != nil {
			return nil, err
		}
		return b, nil
	case tools.ArgGUID:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, err
		}
		if _, err := uuid.Parse(s); err != nil {
			return nil, err
		}
		return s, nil
	case tools.ArgDecimal:
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return s, nil
		}
		var f float64
		if err := json.Unmarshal(raw, &f); err != nil {
			return nil, err
		}
		return strconv.FormatFloat(f, 'f', -1, 64), nil
	case tools.ArgJSON:
		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, err
		}
		return v, nil
	case tools.ArgStringMap:
		var m map[string]string
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, err
		}
		return m, nil
	default:
		return nil, fmt.Errorf("unsupported arg type %q", spec.Type)
	}
}
