package analytics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePlan_BareArrayWithFilterAndTopN(t *testing.T) {
	plan, warnings, err := ParsePlan([]byte(`[
		{"op":"filter","column":"status","operator":"eq","value":"active"},
		{"op":"topN","n":"10"}
	]`))
	require.NoError(t, err)
	assert.Empty(t, warnings)
	require.Len(t, plan.Steps, 2)
	assert.Equal(t, OpFilter, plan.Steps[0].Op)
	assert.Equal(t, 10, plan.Steps[1].TopN.N)
}

func TestParsePlan_WrappedStepsObject(t *testing.T) {
	plan, warnings, err := ParsePlan([]byte(`{"steps":[{"op":"select","columns":["a","b"]}]}`))
	require.NoError(t, err)
	assert.Empty(t, warnings)
	require.Len(t, plan.Steps, 1)
	assert.Equal(t, []string{"a", "b"}, plan.Steps[0].Select.Columns)
}

func TestParsePlan_UnknownOpIsIgnoredWithWarning(t *testing.T) {
	plan, warnings, err := ParsePlan([]byte(`[{"op":"pivot"},{"op":"select","columns":["a"]}]`))
	require.NoError(t, err)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "pivot")
	require.Len(t, plan.Steps, 1)
}

func TestParsePlan_EmptyInputYieldsEmptyPlan(t *testing.T) {
	plan, warnings, err := ParsePlan(nil)
	require.NoError(t, err)
	assert.Empty(t, warnings)
	assert.Empty(t, plan.Steps)
}

func TestParsePlan_JoinDefaultsToInner(t *testing.T) {
	plan, _, err := ParsePlan([]byte(`[{"op":"join","rightDatasetId":"ds2","leftKeys":["id"],"rightKeys":["id"]}]`))
	require.NoError(t, err)
	require.Len(t, plan.Steps, 1)
	assert.Equal(t, JoinInner, plan.Steps[0].Join.How)
}
