// Package compact implements the evidence-fallback JSON compaction shared
// by the Tool Invoker (C6) and the chat-history Compactor (C9): the same
// depth/array/object/string bounds apply whenever an arbitrary JSON value
// must be squeezed into a bounded shape for the planner's benefit.
package compact

import "encoding/json"

// Bounds enumerates the compaction limits. Both call sites (evidence
// fallback and chat-history pruning) use the same documented values.
type Bounds struct {
	MaxDepth      int
	MaxArrayItems int
	MaxObjectKeys int
	MaxStringLen  int
}

// DefaultBounds are the bounds named in the specification: depth 3, arrays
// 5 items, objects 20 properties, strings 512 characters.
func DefaultBounds() Bounds {
	return Bounds{MaxDepth: 3, MaxArrayItems: 5, MaxObjectKeys: 20, MaxStringLen: 512}
}

// Value compacts an arbitrary JSON-serializable value under bounds,
// returning the compacted value and whether any limit fired.
func Value(v any, bounds Bounds) (any, bool) {
	return compact(v, bounds, 0)
}

// JSON normalizes raw into its decoded form and compacts it, returning the
// re-marshaled bytes. Used for evidence synthesis, which always works from
// a tool's raw data payload.
func JSON(raw any, bounds Bounds) (json.RawMessage, bool, error) {
	// Round-trip through JSON so non-JSON Go types (e.g. time.Time) normalize
	// to their wire representation before the bounds are applied.
	normalizedBytes, err := json.Marshal(raw)
	if err != nil {
		return nil, false, err
	}
	var normalized any
	if err := json.Unmarshal(normalizedBytes, &normalized); err != nil {
		return nil, false, err
	}
	compacted, truncated := compact(normalized, bounds, 0)
	out, err := json.Marshal(compacted)
	if err != nil {
		return nil, false, err
	}
	return out, truncated, nil
}

func compact(v any, bounds Bounds, depth int) (any, bool) {
	if depth >= bounds.MaxDepth {
		switch v.(type) {
		case map[string]any, []any:
			return "truncated", true
		}
	}
	switch val := v.(type) {
	case map[string]any:
		truncated := false
		out := make(map[string]any, len(val))
		keys := sortedKeys(val)
		if len(keys) > bounds.MaxObjectKeys {
			keys = keys[:bounds.MaxObjectKeys]
			truncated = true
		}
		for _, k := range keys {
			compacted, childTruncated := compact(val[k], bounds, depth+1)
			out[k] = compacted
			truncated = truncated || childTruncated
		}
		if truncated {
			out["truncated"] = true
		}
		return out, truncated
	case []any:
		truncated := false
		n := len(val)
		if n > bounds.MaxArrayItems {
			n = bounds.MaxArrayItems
			truncated = true
		}
		out := make([]any, 0, n)
		for i := 0; i < n; i++ {
			compacted, childTruncated := compact(val[i], bounds, depth+1)
			out = append(out, compacted)
			truncated = truncated || childTruncated
		}
		return out, truncated
	case string:
		if len(val) > bounds.MaxStringLen {
			return val[:bounds.MaxStringLen], true
		}
		return val, false
	default:
		return val, false
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	// Deterministic ordering keeps truncation behavior reproducible across runs.
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && keys[j-1] > keys[j]; j-- {
			keys[j-1], keys[j] = keys[j], keys[j-1]
		}
	}
	return keys
}
