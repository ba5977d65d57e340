package invoker

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bindevz/toolrt/runtime/catalog"
	"github.com/bindevz/toolrt/runtime/dispatch"
	"github.com/bindevz/toolrt/runtime/tools"
)

func sampleSpec() catalog.ToolSpec {
	return catalog.ToolSpec{
		Name: "accounts.search",
		Args: []catalog.ArgSpec{
			{Name: "query", Type: tools.ArgString, Required: true},
		},
		Paging: catalog.PagingPolicy{DefaultPage: 1, DefaultPageSize: 25, MaxPageSize: 100},
	}
}

func newTestInvoker(t *testing.T) (*Invoker, map[tools.Ident]struct{}) {
	t.Helper()
	reg := catalog.New()
	reg.Register(sampleSpec())

	table := dispatch.NewTable()
	table.Register("accounts.search", func(ctx context.Context, execCtx dispatch.ExecutionContext, intent catalog.DynamicIntent) (dispatch.Result, dispatch.Extras, error) {
		return dispatch.Result{Success: true, Message: "found", Data: map[string]any{"count": 1}}, dispatch.Extras{}, nil
	})

	inv := &Invoker{Registry: reg, Dispatch: table}
	exposed := map[tools.Ident]struct{}{"accounts.search": {}}
	return inv, exposed
}

func TestInvoke_Success(t *testing.T) {
	inv, exposed := newTestInvoker(t)
	env := inv.Invoke(context.Background(), dispatch.ExecutionContext{TenantID: "t1", UserID: "u1", Roles: []string{"member"}}, exposed,
		Call{Tool: "accounts.search", ArgsRaw: []byte(`{"query":"a"}`)})

	require.NoError(t, env.Validate())
	assert.True(t, env.OK)
	assert.NotEmpty(t, env.Evidence)
}

func TestInvoke_NotExposedIsToolNotAllowed(t *testing.T) {
	inv, _ := newTestInvoker(t)
	env := inv.Invoke(context.Background(), dispatch.ExecutionContext{Roles: []string{"member"}}, map[tools.Ident]struct{}{},
		Call{Tool: "accounts.search", ArgsRaw: []byte(`{"query":"a"}`)})

	require.NoError(t, env.Validate())
	assert.False(t, env.OK)
	assert.Equal(t, "TOOL_NOT_ALLOWED", env.Error.Code)
}

func TestInvoke_ValidationFailureIsValidationError(t *testing.T) {
	inv, exposed := newTestInvoker(t)
	env := inv.Invoke(context.Background(), dispatch.ExecutionContext{Roles: []string{"member"}}, exposed,
		Call{Tool: "accounts.search", ArgsRaw: []byte(`{}`)})

	require.NoError(t, env.Validate())
	assert.False(t, env.OK)
	assert.Equal(t, "VALIDATION_ERROR", env.Error.Code)
}

func TestInvoke_NoRolesIsForbidden(t *testing.T) {
	inv, exposed := newTestInvoker(t)
	env := inv.Invoke(context.Background(), dispatch.ExecutionContext{Roles: nil}, exposed,
		Call{Tool: "accounts.search", ArgsRaw: []byte(`{"query":"a"}`)})

	require.NoError(t, env.Validate())
	assert.False(t, env.OK)
	assert.Equal(t, "FORBIDDEN", env.Error.Code)
}

func TestInvoke_WriteToolRequiresAllowListedRole(t *testing.T) {
	reg := catalog.New()
	reg.Register(catalog.ToolSpec{
		Name:            "accounts.archive",
		RequiresWrite:   true,
		WriteAllowRoles: map[string]struct{}{"admin": {}},
	})
	table := dispatch.NewTable()
	table.Register("accounts.archive", func(ctx context.Context, execCtx dispatch.ExecutionContext, intent catalog.DynamicIntent) (dispatch.Result, dispatch.Extras, error) {
		return dispatch.Result{Success: true, Message: "archived"}, dispatch.Extras{}, nil
	})
	inv := &Invoker{Registry: reg, Dispatch: table}
	exposed := map[tools.Ident]struct{}{"accounts.archive": {}}

	env := inv.Invoke(context.Background(), dispatch.ExecutionContext{Roles: []string{"member"}}, exposed, Call{Tool: "accounts.archive"})
	assert.False(t, env.OK)
	assert.Equal(t, "FORBIDDEN", env.Error.Code)

	env = inv.Invoke(context.Background(), dispatch.ExecutionContext{Roles: []string{"admin"}}, exposed, Call{Tool: "accounts.archive"})
	assert.True(t, env.OK)
}

func TestInvoke_HandlerFailureIsToolExecutionFailed(t *testing.T) {
	reg := catalog.New()
	reg.Register(sampleSpec())
	table := dispatch.NewTable()
	table.Register("accounts.search", func(ctx context.Context, execCtx dispatch.ExecutionContext, intent catalog.DynamicIntent) (dispatch.Result, dispatch.Extras, error) {
		return dispatch.Result{Success: false, Message: "downstream unavailable"}, dispatch.Extras{}, nil
	})
	inv := &Invoker{Registry: reg, Dispatch: table}
	exposed := map[tools.Ident]struct{}{"accounts.search": {}}

	env := inv.Invoke(context.Background(), dispatch.ExecutionContext{Roles: []string{"member"}}, exposed,
		Call{Tool: "accounts.search", ArgsRaw: []byte(`{"query":"a"}`)})
	assert.False(t, env.OK)
	assert.Equal(t, "TOOL_EXECUTION_FAILED", env.Error.Code)
}
