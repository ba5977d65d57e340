// Package catalog implements the tool registry: per-tool argument
// whitelists, type coercion, filter canonicalization, and paging defaults.
// The catalog is initialized once at startup and thereafter read-only, per
// the concurrency model's startup/read-only resource class.
package catalog

import "github.com/bindevz/toolrt/runtime/tools"

// ArgSpec describes one declared argument of a tool.
type ArgSpec struct {
	Name     string
	Type     tools.ArgType
	Required bool
	Default  any
	MinInt   *int64
	MaxInt   *int64
}

// PagingPolicy declares a tool's paging defaults and ceiling.
type PagingPolicy struct {
	SupportsPaging  bool
	DefaultPage     int
	DefaultPageSize int
	MaxPageSize     int
}

// ToolSpec is the full registration record for one tool.
type ToolSpec struct {
	Name            tools.Ident
	RequiresWrite   bool
	Args            []ArgSpec
	Paging          PagingPolicy
	AllowedFilters  map[string]struct{} // canonical filter keys this tool accepts
	FilterAliases   map[string]string   // alias -> canonical key
	WriteAllowRoles map[string]struct{} // roles satisfying the write-authorization check
}

func (t ToolSpec) argSpec(name string) (ArgSpec, bool) {
	for _, a := range t.Args {
		if a.Name == name {
			return a, true
		}
	}
	return ArgSpec{}, false
}
