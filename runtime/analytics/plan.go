package analytics

import "fmt"

// StepOp enumerates the pipeline DSL's step variants.
type StepOp string

const (
	OpFilter  StepOp = "filter"
	OpSelect  StepOp = "select"
	OpGroupBy StepOp = "groupBy"
	OpSort    StepOp = "sort"
	OpTopN    StepOp = "topN"
	OpJoin    StepOp = "join"
)

// FilterOperator enumerates the supported filter comparisons.
type FilterOperator string

const (
	FilterEq       FilterOperator = "eq"
	FilterContains FilterOperator = "contains"
)

// SortDirection enumerates sort order.
type SortDirection string

const (
	SortAsc  SortDirection = "asc"
	SortDesc SortDirection = "desc"
)

// AggOp enumerates the supported groupBy aggregate functions.
type AggOp string

const (
	AggCount AggOp = "count"
	AggSum   AggOp = "sum"
	AggAvg   AggOp = "avg"
	AggMin   AggOp = "min"
	AggMax   AggOp = "max"
)

// JoinHow enumerates the supported join kinds.
type JoinHow string

const (
	JoinInner JoinHow = "inner"
	JoinLeft  JoinHow = "left"
)

type (
	// Step is a single typed pipeline operation. Exactly one of the pointer
	// fields matching Op is populated.
	Step struct {
		Op      StepOp
		Filter  *FilterStep
		Select  *SelectStep
		GroupBy *GroupByStep
		Sort    *SortStep
		TopN    *TopNStep
		Join    *JoinStep
	}

	// FilterStep keeps rows where Column compares true against Value under Operator.
	FilterStep struct {
		Column   string
		Operator FilterOperator
		Value    string
	}

	// SelectStep projects the frame onto the named columns, in the given order.
	SelectStep struct {
		Columns []string
	}

	// Aggregate describes one groupBy aggregate function.
	Aggregate struct {
		Op     AggOp
		Column string // empty for count
		As     string
	}

	// GroupByStep partitions rows by By and computes Aggregates per group.
	GroupByStep struct {
		By         []string
		Aggregates []Aggregate
	}

	// SortStep orders rows by the stringified value of Column.
	SortStep struct {
		Column    string
		Direction SortDirection
	}

	// TopNStep keeps the first N rows.
	TopNStep struct {
		N int
	}

	// JoinStep merges rows from RightDatasetID matching on LeftKeys=RightKeys.
	JoinStep struct {
		RightDatasetID string
		LeftKeys       []string
		RightKeys      []string
		How            JoinHow
		RightPrefix    string
		SelectRight    []string // nil means all right columns
	}

	// Plan is an ordered sequence of pipeline steps.
	Plan struct {
		Steps []Step
	}
)

// ArgumentError signals a structural pipeline error (spec.md §4.1): unknown
// aggregate column, empty `by`, malformed join keys. Every other policy
// decision is recorded as a warning, never as an error.
type ArgumentError struct {
	Msg string
}

func (e *ArgumentError) Error() string { return e.Msg }

func argErr(format string, args ...any) error {
	return &ArgumentError{Msg: fmt.Sprintf(format, args...)}
}
