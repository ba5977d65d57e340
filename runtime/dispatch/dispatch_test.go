package dispatch

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bindevz/toolrt/runtime/catalog"
)

func TestTable_DispatchRoutesToRegisteredHandler(t *testing.T) {
	table := NewTable()
	called := false
	table.Register("accounts.search", func(ctx context.Context, execCtx ExecutionContext, intent catalog.DynamicIntent) (Result, Extras, error) {
		called = true
		assert.Equal(t, "tenant-1", execCtx.TenantID)
		return Result{Success: true, Message: "ok", Data: map[string]any{"n": 1}}, Extras{}, nil
	})

	result, _, err := table.Dispatch(context.Background(), "accounts.search", ExecutionContext{TenantID: "tenant-1"}, catalog.DynamicIntent{})
	require.NoError(t, err)
	assert.True(t, called)
	assert.True(t, result.Success)
}

func TestTable_DispatchUnknownToolReturnsErrNoHandler(t *testing.T) {
	table := NewTable()
	_, _, err := table.Dispatch(context.Background(), "missing.tool", ExecutionContext{}, catalog.DynamicIntent{})
	require.Error(t, err)
	var noHandler *ErrNoHandler
	require.ErrorAs(t, err, &noHandler)
}
