package analytics

import "math/big"

type groupAccumulator struct {
	rowCount int

	// double path
	sum      float64
	min      float64
	max      float64
	haveMin  bool
	haveMax  bool
	validN   int // count of successfully-parsed numeric contributions

	// decimal path (source column type decimal)
	decSum *big.Rat
	decMin *big.Rat
	decMax *big.Rat
}

func newGroupAccumulator() *groupAccumulator {
	return &groupAccumulator{decSum: new(big.Rat)}
}

// applyGroupBy partitions rows by the `by` columns and computes the declared
// aggregates per group. Validation failures (unknown column) are
// ArgumentErrors; the maxGroups cap is a warning, never an error.
func applyGroupBy(frame Frame, step GroupByStep, bounds Bounds) (Frame, []string, error) {
	if len(step.By) == 0 {
		return Frame{}, nil, argErr("groupBy: `by` must not be empty")
	}
	byIdx := make([]int, len(step.By))
	for i, name := range step.By {
		idx := frame.ColumnIndex(name)
		if idx == -1 {
			return Frame{}, nil, argErr("groupBy: unknown `by` column %q", name)
		}
		byIdx[i] = idx
	}
	type aggPlan struct {
		agg       Aggregate
		colIdx    int
		isDecimal bool
	}
	aggs := make([]aggPlan, len(step.Aggregates))
	for i, a := range step.Aggregates {
		if a.Op == AggCount {
			if a.Column != "" {
				return Frame{}, nil, argErr("groupBy: count aggregate must not declare a column")
			}
			aggs[i] = aggPlan{agg: a, colIdx: -1}
			continue
		}
		if a.Column == "" {
			return Frame{}, nil, argErr("groupBy: aggregate %q requires a column", a.Op)
		}
		idx := frame.ColumnIndex(a.Column)
		if idx == -1 {
			return Frame{}, nil, argErr("groupBy: unknown aggregate column %q", a.Column)
		}
		aggs[i] = aggPlan{agg: a, colIdx: idx, isDecimal: frame.Schema[idx].Type == TypeDecimal}
	}

	var order []string
	groups := make(map[string][]*groupAccumulator)
	groupByValues := make(map[string][]any)

	for _, row := range frame.Rows {
		keyParts := make([]string, len(byIdx))
		byVals := make([]any, len(byIdx))
		for i, idx := range byIdx {
			keyParts[i] = stringify(row[idx])
			byVals[i] = row[idx]
		}
		key := buildKey(keyParts)
		accs, ok := groups[key]
		if !ok {
			if len(order) >= bounds.MaxGroups {
				continue // cap breach: row dropped, warning recorded once below
			}
			accs = make([]*groupAccumulator, len(aggs))
			for i := range accs {
				accs[i] = newGroupAccumulator()
			}
			groups[key] = accs
			groupByValues[key] = byVals
			order = append(order, key)
		}
		for i, ap := range aggs {
			acc := accs[i]
			acc.rowCount++
			if ap.agg.Op == AggCount {
				continue
			}
			cell := row[ap.colIdx]
			if ap.isDecimal {
				d, ok := coerceDecimal(cell)
				if !ok {
					continue
				}
				acc.validN++
				acc.decSum.Add(acc.decSum, d)
				if acc.decMin == nil || d.Cmp(acc.decMin) < 0 {
					acc.decMin = d
				}
				if acc.decMax == nil || d.Cmp(acc.decMax) > 0 {
					acc.decMax = d
				}
			} else {
				f, ok := coerceDouble(cell)
				if !ok {
					continue
				}
				acc.validN++
				acc.sum += f
				if !acc.haveMin || f < acc.min {
					acc.min = f
					acc.haveMin = true
				}
				if !acc.haveMax || f > acc.max {
					acc.max = f
					acc.haveMax = true
				}
			}
		}
	}

	var warnings []string
	truncated := false
	if countDistinctOverCap(frame, byIdx, bounds.MaxGroups) {
		truncated = true
	}
	if truncated {
		warnings = append(warnings, "groupBy: groups truncated to maxGroups cap")
	}

	schema := make([]ColumnDef, 0, len(step.By)+len(aggs))
	for _, idx := range byIdx {
		schema = append(schema, frame.Schema[idx])
	}
	for _, ap := range aggs {
		if ap.agg.Op == AggCount {
			schema = append(schema, ColumnDef{Name: ap.agg.As, Type: TypeDouble, DisplayName: ap.agg.As})
			continue
		}
		resultType := TypeDouble
		if ap.isDecimal {
			resultType = TypeDecimal
		}
		schema = append(schema, ColumnDef{Name: ap.agg.As, Type: resultType, DisplayName: ap.agg.As})
	}

	rows := make([][]any, 0, len(order))
	for _, key := range order {
		accs := groups[key]
		byVals := groupByValues[key]
		row := make([]any, 0, len(byVals)+len(aggs))
		row = append(row, byVals...)
		for i, ap := range aggs {
			acc := accs[i]
			row = append(row, aggregateValue(ap.agg, acc, ap.isDecimal))
		}
		rows = append(rows, row)
	}

	return Frame{Schema: schema, Rows: rows}, warnings, nil
}

func aggregateValue(agg Aggregate, acc *groupAccumulator, isDecimal bool) any {
	switch agg.Op {
	case AggCount:
		return float64(acc.rowCount)
	case AggSum:
		if isDecimal {
			return new(big.Rat).Set(acc.decSum)
		}
		return acc.sum
	case AggAvg:
		if acc.validN == 0 {
			if isDecimal {
				return new(big.Rat)
			}
			return float64(0)
		}
		if isDecimal {
			return new(big.Rat).Quo(acc.decSum, new(big.Rat).SetInt64(int64(acc.validN)))
		}
		return acc.sum / float64(acc.validN)
	case AggMin:
		if isDecimal {
			if acc.decMin == nil {
				return new(big.Rat)
			}
			return new(big.Rat).Set(acc.decMin)
		}
		return acc.min
	case AggMax:
		if isDecimal {
			if acc.decMax == nil {
				return new(big.Rat)
			}
			return new(big.Rat).Set(acc.decMax)
		}
		return acc.max
	}
	return nil
}

// countDistinctOverCap reports whether the number of distinct `by` keys in
// frame exceeds maxGroups, so the caller can emit a single coarse warning
// without tracking per-row truncation state.
func countDistinctOverCap(frame Frame, byIdx []int, maxGroups int) bool {
	seen := make(map[string]struct{})
	for _, row := range frame.Rows {
		parts := make([]string, len(byIdx))
		for i, idx := range byIdx {
			parts[i] = stringify(row[idx])
		}
		seen[buildKey(parts)] = struct{}{}
		if len(seen) > maxGroups {
			return true
		}
	}
	return false
}
