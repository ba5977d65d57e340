package analytics

// applyJoin combines frame with a resolver-supplied right dataset on the
// declared key columns. Missing right dataset is an ArgumentError; missing
// key columns on either side degrade to a skipped join plus a warning,
// matching filter/sort/select's "ignore, don't fail" posture for anything
// that isn't a structural contract violation.
func applyJoin(frame Frame, step JoinStep, bounds Bounds, resolver DatasetResolver) (Frame, []string, error) {
	if len(step.LeftKeys) == 0 || len(step.RightKeys) == 0 {
		return Frame{}, nil, argErr("join: leftKeys and rightKeys must not be empty")
	}
	if len(step.LeftKeys) != len(step.RightKeys) {
		return Frame{}, nil, argErr("join: leftKeys and rightKeys must have matching arity")
	}
	if step.RightDatasetID == "" {
		return Frame{}, nil, argErr("join: rightDatasetId must not be empty")
	}
	rightDataset, ok := resolver.Resolve(step.RightDatasetID)
	if !ok {
		return Frame{}, nil, argErr("join: right dataset %q not found", step.RightDatasetID)
	}
	rightFrame := DatasetToFrame(rightDataset)

	leftIdx := make([]int, len(step.LeftKeys))
	for i, name := range step.LeftKeys {
		idx := frame.ColumnIndex(name)
		if idx == -1 {
			return frame, []string{"join: left key column " + name + " not found, join skipped"}, nil
		}
		leftIdx[i] = idx
	}
	rightIdx := make([]int, len(step.RightKeys))
	for i, name := range step.RightKeys {
		idx := rightFrame.ColumnIndex(name)
		if idx == -1 {
			return frame, []string{"join: right key column " + name + " not found, join skipped"}, nil
		}
		rightIdx[i] = idx
	}

	rightCols := rightFrame.Schema
	rightColIdxs := make([]int, 0, len(rightCols))
	for i := range rightCols {
		rightColIdxs = append(rightColIdxs, i)
	}
	if step.SelectRight != nil {
		rightColIdxs = rightColIdxs[:0]
		seen := make(map[string]struct{}, len(step.SelectRight))
		for _, name := range step.SelectRight {
			key := foldCaser.String(name)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			idx := rightFrame.ColumnIndex(name)
			if idx == -1 {
				continue
			}
			rightColIdxs = append(rightColIdxs, idx)
		}
	}

	var warnings []string

	rightRowCap := len(rightFrame.Rows)
	if rightRowCap > bounds.MaxJoinRows {
		rightRowCap = bounds.MaxJoinRows
		warnings = append(warnings, "join: right dataset truncated to maxJoinRows before indexing")
	}

	index := make(map[string][]int)
	for r := 0; r < rightRowCap; r++ {
		row := rightFrame.Rows[r]
		parts := make([]string, len(rightIdx))
		for i, idx := range rightIdx {
			parts[i] = stringify(row[idx])
		}
		key := buildKey(parts)
		index[key] = append(index[key], r)
	}

	schema := append([]ColumnDef(nil), frame.Schema...)
	usedNames := make(map[string]struct{}, len(schema))
	for _, col := range schema {
		usedNames[foldCaser.String(col.Name)] = struct{}{}
	}
	collision := false
	rightSchema := make([]ColumnDef, 0, len(rightColIdxs))
	for _, idx := range rightColIdxs {
		col := rightCols[idx]
		name := step.RightPrefix + col.Name
		candidate := name
		suffix := 2
		for {
			key := foldCaser.String(candidate)
			if _, dup := usedNames[key]; !dup {
				break
			}
			collision = true
			candidate = name + "_" + itoaSmall(suffix)
			suffix++
		}
		usedNames[foldCaser.String(candidate)] = struct{}{}
		rightSchema = append(rightSchema, ColumnDef{Name: candidate, Type: col.Type, DisplayName: col.DisplayName})
	}
	if collision {
		warnings = append(warnings, "join: right column name collided with left schema, suffixed to disambiguate")
	}
	schema = append(schema, rightSchema...)

	var rows [][]any
	matchesCapped := false
	totalCapped := false

outer:
	for _, leftRow := range frame.Rows {
		parts := make([]string, len(leftIdx))
		for i, idx := range leftIdx {
			parts[i] = stringify(leftRow[idx])
		}
		key := buildKey(parts)
		matches := index[key]

		if len(matches) == 0 {
			if step.How == JoinLeft {
				row := append([]any(nil), leftRow...)
				for range rightColIdxs {
					row = append(row, nil)
				}
				if len(rows) >= bounds.MaxJoinRows {
					totalCapped = true
					break outer
				}
				rows = append(rows, row)
			}
			continue
		}

		matchCount := len(matches)
		if matchCount > bounds.MaxJoinMatchesPerLeft {
			matchCount = bounds.MaxJoinMatchesPerLeft
			matchesCapped = true
		}
		for m := 0; m < matchCount; m++ {
			rightRow := rightFrame.Rows[matches[m]]
			row := append([]any(nil), leftRow...)
			for _, idx := range rightColIdxs {
				row = append(row, rightRow[idx])
			}
			if len(rows) >= bounds.MaxJoinRows {
				totalCapped = true
				break outer
			}
			rows = append(rows, row)
		}
	}

	if matchesCapped {
		warnings = append(warnings, "join: per-key matches truncated to maxJoinMatchesPerLeft")
	}
	if totalCapped {
		warnings = append(warnings, "join: output truncated to maxJoinRows")
	}

	return Frame{Schema: schema, Rows: rows}, warnings, nil
}

func itoaSmall(n int) string {
	if n < 10 {
		return string(rune('0' + n))
	}
	digits := []byte{}
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	return string(digits)
}
