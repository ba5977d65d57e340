package analytics

// Bounds enumerates the hard caps the engine enforces while executing a plan.
// Values are clamped to their documented ranges via Clamp so a misconfigured
// caller can never request an unbounded pipeline.
type Bounds struct {
	TopN                  int
	MaxGroups             int
	MaxJoinRows           int
	MaxJoinMatchesPerLeft int
	MaxColumns            int
	MaxResultRows         int
}

// Clamp returns a copy of b with every field clamped to its documented range.
func (b Bounds) Clamp() Bounds {
	return Bounds{
		TopN:                  clampInt(b.TopN, 1, 5000),
		MaxGroups:             clampInt(b.MaxGroups, 1, 20000),
		MaxJoinRows:           clampInt(b.MaxJoinRows, 1, 100000),
		MaxJoinMatchesPerLeft: clampInt(b.MaxJoinMatchesPerLeft, 1, 1000),
		MaxColumns:            clampInt(b.MaxColumns, 1, 200),
		MaxResultRows:         clampInt(b.MaxResultRows, 1, 50000),
	}
}

// DefaultBounds returns a conservative, already-clamped bound set suitable
// for callers that don't need to tune caps per request.
func DefaultBounds() Bounds {
	return Bounds{
		TopN:                  100,
		MaxGroups:             1000,
		MaxJoinRows:           5000,
		MaxJoinMatchesPerLeft: 50,
		MaxColumns:            50,
		MaxResultRows:         1000,
	}.Clamp()
}

func clampInt(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
