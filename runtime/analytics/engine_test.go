package analytics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustDataset(t *testing.T, schema []ColumnDef, columns map[string][]any) *Dataset {
	t.Helper()
	d, err := NewDataset("test", "tenant-1", "user-1", schema, columns, time.Minute, time.Now())
	require.NoError(t, err)
	return d
}

func noResolver() DatasetResolver {
	return DatasetResolverFunc(func(string) (*Dataset, bool) { return nil, false })
}

func TestExecute_FilterSortTopN(t *testing.T) {
	d := mustDataset(t, []ColumnDef{
		{Name: "region", Type: TypeString},
		{Name: "amount", Type: TypeDouble},
	}, map[string][]any{
		"region": {"West", "east", "West", "North"},
		"amount": {10.0, 5.0, 30.0, 20.0},
	})

	plan := Plan{Steps: []Step{
		{Op: OpFilter, Filter: &FilterStep{Column: "region", Operator: FilterEq, Value: "west"}},
		{Op: OpSort, Sort: &SortStep{Column: "amount", Direction: SortDesc}},
		{Op: OpTopN, TopN: &TopNStep{N: 1}},
	}}

	frame, warnings, err := Execute(d, plan, DefaultBounds(), noResolver())
	require.NoError(t, err)
	assert.Empty(t, warnings)
	require.Len(t, frame.Rows, 1)
	assert.Equal(t, 30.0, frame.Rows[0][frame.ColumnIndex("amount")])
}

func TestExecute_GroupByCountAndSum(t *testing.T) {
	d := mustDataset(t, []ColumnDef{
		{Name: "region", Type: TypeString},
		{Name: "amount", Type: TypeDouble},
	}, map[string][]any{
		"region": {"West", "East", "West", "West"},
		"amount": {10.0, 5.0, 20.0, 30.0},
	})

	plan := Plan{Steps: []Step{
		{Op: OpGroupBy, GroupBy: &GroupByStep{
			By: []string{"region"},
			Aggregates: []Aggregate{
				{Op: AggCount, As: "n"},
				{Op: AggSum, Column: "amount", As: "total"},
			},
		}},
		{Op: OpSort, Sort: &SortStep{Column: "region", Direction: SortAsc}},
	}}

	frame, warnings, err := Execute(d, plan, DefaultBounds(), noResolver())
	require.NoError(t, err)
	assert.Empty(t, warnings)
	require.Len(t, frame.Rows, 2)

	regionIdx := frame.ColumnIndex("region")
	nIdx := frame.ColumnIndex("n")
	totalIdx := frame.ColumnIndex("total")

	row := frame.Rows[0]
	assert.Equal(t, "East", row[regionIdx])
	assert.Equal(t, float64(1), row[nIdx])
	assert.Equal(t, 5.0, row[totalIdx])

	row = frame.Rows[1]
	assert.Equal(t, "West", row[regionIdx])
	assert.Equal(t, float64(3), row[nIdx])
	assert.Equal(t, 60.0, row[totalIdx])
}

func TestExecute_GroupBy_UnknownColumnIsArgumentError(t *testing.T) {
	d := mustDataset(t, []ColumnDef{
		{Name: "region", Type: TypeString},
	}, map[string][]any{
		"region": {"West"},
	})

	plan := Plan{Steps: []Step{
		{Op: OpGroupBy, GroupBy: &GroupByStep{By: []string{"missing"}}},
	}}

	_, _, err := Execute(d, plan, DefaultBounds(), noResolver())
	require.Error(t, err)
	var argErr *ArgumentError
	assert.ErrorAs(t, err, &argErr)
}

func TestExecute_InnerJoin_WithPrefixCollision(t *testing.T) {
	left := mustDataset(t, []ColumnDef{
		{Name: "id", Type: TypeString},
		{Name: "name", Type: TypeString},
	}, map[string][]any{
		"id":   {"1", "2", "3"},
		"name": {"alice", "bob", "carol"},
	})
	right := mustDataset(t, []ColumnDef{
		{Name: "id", Type: TypeString},
		{Name: "name", Type: TypeString},
	}, map[string][]any{
		"id":   {"1", "1", "2"},
		"name": {"acct-a", "acct-b", "acct-c"},
	})

	resolver := DatasetResolverFunc(func(id string) (*Dataset, bool) {
		if id == right.DatasetID {
			return right, true
		}
		return nil, false
	})

	plan := Plan{Steps: []Step{
		{Op: OpJoin, Join: &JoinStep{
			RightDatasetID: right.DatasetID,
			LeftKeys:       []string{"id"},
			RightKeys:      []string{"id"},
			How:            JoinInner,
			RightPrefix:    "",
		}},
	}}

	frame, warnings, err := Execute(left, plan, DefaultBounds(), resolver)
	require.NoError(t, err)
	assert.NotEmpty(t, warnings) // collision warning expected

	// id=1 matches two right rows, id=2 matches one, id=3 has no match (dropped by inner join)
	assert.Len(t, frame.Rows, 3)

	nameIdx := frame.ColumnIndex("name")
	name2Idx := frame.ColumnIndex("name_2")
	require.NotEqual(t, -1, nameIdx)
	require.NotEqual(t, -1, name2Idx)
}

func TestExecute_LeftJoin_NoMatchEmitsNullRightCells(t *testing.T) {
	left := mustDataset(t, []ColumnDef{
		{Name: "id", Type: TypeString},
	}, map[string][]any{
		"id": {"1", "2"},
	})
	right := mustDataset(t, []ColumnDef{
		{Name: "id", Type: TypeString},
		{Name: "label", Type: TypeString},
	}, map[string][]any{
		"id":    {"1"},
		"label": {"only-one"},
	})

	resolver := DatasetResolverFunc(func(id string) (*Dataset, bool) {
		if id == right.DatasetID {
			return right, true
		}
		return nil, false
	})

	plan := Plan{Steps: []Step{
		{Op: OpJoin, Join: &JoinStep{
			RightDatasetID: right.DatasetID,
			LeftKeys:       []string{"id"},
			RightKeys:      []string{"id"},
			How:            JoinLeft,
			RightPrefix:    "r_",
		}},
	}}

	frame, _, err := Execute(left, plan, DefaultBounds(), resolver)
	require.NoError(t, err)
	require.Len(t, frame.Rows, 2)

	labelIdx := frame.ColumnIndex("r_label")
	require.NotEqual(t, -1, labelIdx)
	assert.Equal(t, "only-one", frame.Rows[0][labelIdx])
	assert.Nil(t, frame.Rows[1][labelIdx])
}

func TestExecute_Join_MissingRightDatasetIsArgumentError(t *testing.T) {
	left := mustDataset(t, []ColumnDef{
		{Name: "id", Type: TypeString},
	}, map[string][]any{
		"id": {"1"},
	})

	plan := Plan{Steps: []Step{
		{Op: OpJoin, Join: &JoinStep{
			RightDatasetID: "does-not-exist",
			LeftKeys:       []string{"id"},
			RightKeys:      []string{"id"},
		}},
	}}

	_, _, err := Execute(left, plan, DefaultBounds(), noResolver())
	require.Error(t, err)
}

func TestExecute_EnforcesResultRowCap(t *testing.T) {
	values := make([]any, 10)
	for i := range values {
		values[i] = i
	}
	d := mustDataset(t, []ColumnDef{{Name: "n", Type: TypeInt32}}, map[string][]any{"n": values})

	bounds := DefaultBounds()
	bounds.MaxResultRows = 3
	bounds.TopN = 100

	frame, warnings, err := Execute(d, Plan{}, bounds, noResolver())
	require.NoError(t, err)
	assert.Len(t, frame.Rows, 3)
	assert.NotEmpty(t, warnings)
}
