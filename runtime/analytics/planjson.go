package analytics

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// rawPlan accepts either {"steps": [...]} or a bare [...] array, per spec
// §6's tolerant pipeline DSL input contract.
type rawPlan struct {
	Steps []json.RawMessage `json:"steps"`
}

type rawStep struct {
	Op string `json:"op"`

	// filter
	Column   string `json:"column"`
	Operator string `json:"operator"`
	Value    string `json:"value"`

	// select
	Columns []string `json:"columns"`

	// groupBy
	By         []string        `json:"by"`
	Aggregates []rawAggregate  `json:"aggregates"`

	// sort
	Direction string `json:"direction"`

	// topN
	N json.RawMessage `json:"n"`

	// join
	RightDatasetID string          `json:"rightDatasetId"`
	LeftKeys       []string        `json:"leftKeys"`
	RightKeys      []string        `json:"rightKeys"`
	How            string          `json:"how"`
	RightPrefix    string          `json:"rightPrefix"`
	SelectRight    []string        `json:"selectRight"`
}

type rawAggregate struct {
	Op     string `json:"op"`
	Column string `json:"column"`
	As     string `json:"as"`
}

// ParsePlan decodes the tool pipeline DSL's tolerant wire format: a bare
// step array or {"steps": [...]}. Any step with an unrecognized `op` is
// dropped with a warning rather than rejected, and numeric fields (`n`)
// tolerate both JSON number and JSON string encodings.
func ParsePlan(raw json.RawMessage) (Plan, []string, error) {
	raw = trimJSONWhitespace(raw)
	if len(raw) == 0 {
		return Plan{}, nil, nil
	}

	var stepsRaw []json.RawMessage
	if len(raw) > 0 && raw[0] == '[' {
		if err := json.Unmarshal(raw, &stepsRaw); err != nil {
			return Plan{}, nil, fmt.Errorf("analytics: decode pipeline array: %w", err)
		}
	} else {
		var wrapper rawPlan
		if err := json.Unmarshal(raw, &wrapper); err != nil {
			return Plan{}, nil, fmt.Errorf("analytics: decode pipeline object: %w", err)
		}
		stepsRaw = wrapper.Steps
	}

	var warnings []string
	steps := make([]Step, 0, len(stepsRaw))
	for i, stepRaw := range stepsRaw {
		var rs rawStep
		if err := json.Unmarshal(stepRaw, &rs); err != nil {
			warnings = append(warnings, fmt.Sprintf("step %d: malformed, skipped", i))
			continue
		}
		step, ok, warning := toStep(rs)
		if warning != "" {
			warnings = append(warnings, warning)
		}
		if ok {
			steps = append(steps, step)
		}
	}
	return Plan{Steps: steps}, warnings, nil
}

func toStep(rs rawStep) (Step, bool, string) {
	switch StepOp(rs.Op) {
	case OpFilter:
		return Step{Op: OpFilter, Filter: &FilterStep{
			Column: rs.Column, Operator: FilterOperator(rs.Operator), Value: rs.Value,
		}}, true, ""
	case OpSelect:
		return Step{Op: OpSelect, Select: &SelectStep{Columns: rs.Columns}}, true, ""
	case OpGroupBy:
		aggs := make([]Aggregate, 0, len(rs.Aggregates))
		for _, a := range rs.Aggregates {
			aggs = append(aggs, Aggregate{Op: AggOp(a.Op), Column: a.Column, As: a.As})
		}
		return Step{Op: OpGroupBy, GroupBy: &GroupByStep{By: rs.By, Aggregates: aggs}}, true, ""
	case OpSort:
		return Step{Op: OpSort, Sort: &SortStep{Column: rs.Column, Direction: SortDirection(rs.Direction)}}, true, ""
	case OpTopN:
		n, err := looseInt(rs.N)
		if err != nil {
			return Step{}, false, fmt.Sprintf("topN step: %s, skipped", err)
		}
		return Step{Op: OpTopN, TopN: &TopNStep{N: n}}, true, ""
	case OpJoin:
		how := JoinHow(rs.How)
		if how == "" {
			how = JoinInner
		}
		return Step{Op: OpJoin, Join: &JoinStep{
			RightDatasetID: rs.RightDatasetID,
			LeftKeys:       rs.LeftKeys,
			RightKeys:      rs.RightKeys,
			How:            how,
			RightPrefix:    rs.RightPrefix,
			SelectRight:    rs.SelectRight,
		}}, true, ""
	default:
		return Step{}, false, fmt.Sprintf("unknown step op %q, ignored", rs.Op)
	}
}

func looseInt(raw json.RawMessage) (int, error) {
	if len(raw) == 0 {
		return 0, fmt.Errorf("missing numeric value")
	}
	var asNum int
	if err := json.Unmarshal(raw, &asNum); err == nil {
		return asNum, nil
	}
	var asStr string
	if err := json.Unmarshal(raw, &asStr); err == nil {
		n, err := strconv.Atoi(asStr)
		if err != nil {
			return 0, fmt.Errorf("invalid numeric string %q", asStr)
		}
		return n, nil
	}
	return 0, fmt.Errorf("value is neither a number nor a numeric string")
}

func trimJSONWhitespace(raw json.RawMessage) json.RawMessage {
	start := 0
	for start < len(raw) && isJSONSpace(raw[start]) {
		start++
	}
	end := len(raw)
	for end > start && isJSONSpace(raw[end-1]) {
		end--
	}
	return raw[start:end]
}

func isJSONSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}
