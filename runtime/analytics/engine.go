package analytics

import "sort"

// DatasetResolver resolves the right-hand side of a join. The engine never
// reaches into storage directly; callers inject a closure bound to the
// current tenant/user scope so the engine itself stays a pure function
// testable without infrastructure.
type DatasetResolver interface {
	Resolve(datasetID string) (*Dataset, bool)
}

// DatasetResolverFunc adapts a function to DatasetResolver.
type DatasetResolverFunc func(datasetID string) (*Dataset, bool)

func (f DatasetResolverFunc) Resolve(datasetID string) (*Dataset, bool) { return f(datasetID) }

// Execute runs plan over dataset under bounds, resolving join right-hand
// sides via resolver. Execute is total: it never returns an error for a cap
// breach, only for the structural ArgumentError cases named in spec.md
// §4.1 (unknown aggregate column, empty `by`, malformed join keys, missing
// right dataset).
func Execute(dataset *Dataset, plan Plan, bounds Bounds, resolver DatasetResolver) (Frame, []string, error) {
	bounds = bounds.Clamp()
	frame := DatasetToFrame(dataset)
	var warnings []string

	for _, step := range plan.Steps {
		var err error
		var stepWarnings []string
		switch step.Op {
		case OpFilter:
			if step.Filter != nil {
				frame = applyFilter(frame, *step.Filter)
			}
		case OpSelect:
			if step.Select != nil {
				frame = applySelect(frame, *step.Select)
			}
		case OpGroupBy:
			if step.GroupBy != nil {
				frame, stepWarnings, err = applyGroupBy(frame, *step.GroupBy, bounds)
			}
		case OpSort:
			if step.Sort != nil {
				frame = applySort(frame, *step.Sort)
			}
		case OpTopN:
			if step.TopN != nil {
				frame = applyTopN(frame, *step.TopN, bounds)
			}
		case OpJoin:
			if step.Join != nil {
				frame, stepWarnings, err = applyJoin(frame, *step.Join, bounds, resolver)
			}
		default:
			warnings = append(warnings, "unknown pipeline op ignored: "+string(step.Op))
			continue
		}
		if err != nil {
			return Frame{}, nil, err
		}
		warnings = append(warnings, stepWarnings...)
	}

	frame, finalWarnings := enforceFinalBounds(frame, bounds)
	warnings = append(warnings, finalWarnings...)
	return frame, warnings, nil
}

// enforceFinalBounds applies the engine-wide row and column caps after the
// last pipeline step, independent of any topN step the plan itself ran.
func enforceFinalBounds(frame Frame, bounds Bounds) (Frame, []string) {
	var warnings []string
	rowCap := bounds.TopN
	if bounds.MaxResultRows < rowCap {
		rowCap = bounds.MaxResultRows
	}
	if len(frame.Rows) > rowCap {
		frame.Rows = frame.Rows[:rowCap]
		warnings = append(warnings, "result truncated to maxResultRows/topN cap")
	}
	if len(frame.Schema) > bounds.MaxColumns {
		frame.Schema = frame.Schema[:bounds.MaxColumns]
		for i, row := range frame.Rows {
			frame.Rows[i] = row[:bounds.MaxColumns]
		}
		warnings = append(warnings, "result truncated to maxColumns cap")
	}
	return frame, warnings
}

func applyFilter(frame Frame, step FilterStep) Frame {
	idx := frame.ColumnIndex(step.Column)
	if idx == -1 {
		return frame // missing column: no-op, not an error
	}
	out := make([][]any, 0, len(frame.Rows))
	for _, row := range frame.Rows {
		cell := stringify(row[idx])
		var keep bool
		switch step.Operator {
		case FilterContains:
			keep = ordinalContainsFold(cell, step.Value)
		default: // eq
			keep = ordinalEqualFold(cell, step.Value)
		}
		if keep {
			out = append(out, row)
		}
	}
	frame.Rows = out
	return frame
}

func applySelect(frame Frame, step SelectStep) Frame {
	seen := make(map[string]struct{}, len(step.Columns))
	var cols []string
	for _, name := range step.Columns {
		key := foldCaser.String(name)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		cols = append(cols, name)
	}
	var idxs []int
	var schema []ColumnDef
	for _, name := range cols {
		idx := frame.ColumnIndex(name)
		if idx == -1 {
			continue // unknown name: silently dropped
		}
		idxs = append(idxs, idx)
		schema = append(schema, frame.Schema[idx])
	}
	if len(idxs) == 0 {
		return frame // none resolved: frame returned unchanged
	}
	rows := make([][]any, len(frame.Rows))
	for i, row := range frame.Rows {
		newRow := make([]any, len(idxs))
		for j, idx := range idxs {
			newRow[j] = row[idx]
		}
		rows[i] = newRow
	}
	return Frame{Schema: schema, Rows: rows}
}

func applySort(frame Frame, step SortStep) Frame {
	idx := frame.ColumnIndex(step.Column)
	if idx == -1 {
		return frame // missing column: no-op
	}
	rows := append([][]any(nil), frame.Rows...)
	sort.SliceStable(rows, func(i, j int) bool {
		cmp := ordinalCompareFold(stringify(rows[i][idx]), stringify(rows[j][idx]))
		if step.Direction == SortDesc {
			return cmp > 0
		}
		return cmp < 0
	})
	frame.Rows = rows
	return frame
}

func applyTopN(frame Frame, step TopNStep, bounds Bounds) Frame {
	n := clampInt(step.N, 1, 5000)
	if n < len(frame.Rows) {
		frame.Rows = frame.Rows[:n]
	}
	return frame
}
