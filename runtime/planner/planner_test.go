package planner

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bindevz/toolrt/runtime/catalog"
	"github.com/bindevz/toolrt/runtime/dispatch"
	"github.com/bindevz/toolrt/runtime/invoker"
	"github.com/bindevz/toolrt/runtime/model"
	"github.com/bindevz/toolrt/runtime/tools"
)

// fakeModel replays a scripted sequence of responses, one per Complete call,
// and records every request it was asked to answer.
type fakeModel struct {
	responses []model.Response
	calls     []model.Request
}

func (f *fakeModel) Complete(ctx context.Context, req model.Request) (model.Response, error) {
	f.calls = append(f.calls, req)
	idx := len(f.calls) - 1
	if idx >= len(f.responses) {
		return f.responses[len(f.responses)-1], nil
	}
	return f.responses[idx], nil
}

func newTestLoop(t *testing.T, fm *fakeModel, handler dispatch.Handler) *Loop {
	t.Helper()
	reg := catalog.New()
	reg.Register(catalog.ToolSpec{
		Name: "accounts.search",
		Args: []catalog.ArgSpec{
			{Name: "query", Type: tools.ArgString, Required: true},
		},
		Paging: catalog.PagingPolicy{DefaultPage: 1, DefaultPageSize: 25, MaxPageSize: 100},
	})
	table := dispatch.NewTable()
	table.Register("accounts.search", handler)

	return &Loop{
		Model:   fm,
		Invoker: &invoker.Invoker{Registry: reg, Dispatch: table},
		Exposed: map[tools.Ident]struct{}{"accounts.search": {}},
		Tools: []model.ToolDefinition{
			{Name: "accounts.search", InputSchema: map[string]any{"type": "object"}},
		},
		ExecCtx:            dispatch.ExecutionContext{TenantID: "t1", UserID: "u1", Roles: []string{"member"}},
		SystemPrompt:       "You are a tool-calling assistant.",
		SynthesisAppendage: "You already have tool results; do not call tools again.",
		FallbackMessage:    "I could not produce an answer.",
		Tuning:             Tuning{MaxSteps: 5, MaxToolResultBytes: 4096},
	}
}

func successHandler(ctx context.Context, execCtx dispatch.ExecutionContext, intent catalog.DynamicIntent) (dispatch.Result, dispatch.Extras, error) {
	return dispatch.Result{Success: true, Message: "found 1 account", Data: map[string]any{"count": 1}}, dispatch.Extras{}, nil
}

// recordingLogger captures Info lines so tests can assert on the fields a
// call site logged, without pulling in the zerolog-backed implementation.
type recordingLogger struct {
	infos []string
}

func (l *recordingLogger) Debug(ctx context.Context, msg string, keyvals ...any) {}
func (l *recordingLogger) Info(ctx context.Context, msg string, keyvals ...any)  { l.infos = append(l.infos, msg) }
func (l *recordingLogger) Warn(ctx context.Context, msg string, keyvals ...any)  {}
func (l *recordingLogger) Error(ctx context.Context, msg string, keyvals ...any) {}

func TestLoop_LogsToolCallAndCircuitBreakerTrip(t *testing.T) {
	repeatedCall := model.ToolCall{ID: "call_1", Name: "accounts.search", Payload: map[string]any{"query": "acme"}}
	fm := &fakeModel{responses: []model.Response{
		{ToolCalls: []model.ToolCall{repeatedCall}},
		{ToolCalls: []model.ToolCall{repeatedCall}},
		{ToolCalls: []model.ToolCall{repeatedCall}},
		{Content: "## Conclusion\nrepeated call detected\n\n## Insight Preview\n|a|\n|-|"},
	}}
	loop := newTestLoop(t, fm, successHandler)
	logger := &recordingLogger{}
	loop.Logger = logger

	outcome, err := loop.Run(context.Background(), []model.Message{{Role: "user", Content: "search acme three times"}})
	require.NoError(t, err)
	assert.True(t, outcome.BreakerTripped)
	assert.Contains(t, logger.infos, "tool call issued")
	assert.Contains(t, logger.infos, "circuit breaker tripped")
}

func TestLoop_NoToolCallsGoesStraightToSynthesis(t *testing.T) {
	fm := &fakeModel{responses: []model.Response{
		{Content: "## Conclusion\nhello\n\n## Insight Preview\n|a|\n|-|"},
	}}
	loop := newTestLoop(t, fm, successHandler)

	outcome, err := loop.Run(context.Background(), []model.Message{{Role: "user", Content: "hi"}})
	require.NoError(t, err)
	assert.Equal(t, 1, outcome.StepsUsed)
	assert.False(t, outcome.BreakerTripped)
	assert.Contains(t, outcome.FinalContent, "Conclusion")
	assert.Len(t, fm.calls, 2)
}

func TestLoop_CircuitBreakerTripsOnThirdIdenticalCall(t *testing.T) {
	repeatedCall := model.ToolCall{ID: "call_1", Name: "accounts.search", Payload: map[string]any{"query": "acme"}}
	fm := &fakeModel{responses: []model.Response{
		{ToolCalls: []model.ToolCall{repeatedCall}},
		{ToolCalls: []model.ToolCall{repeatedCall}},
		{ToolCalls: []model.ToolCall{repeatedCall}},
		{Content: "## Conclusion\nrepeated call detected\n\n## Insight Preview\n|a|\n|-|\n\n## List Preview\n|b|\n|-|"},
	}}
	loop := newTestLoop(t, fm, successHandler)

	outcome, err := loop.Run(context.Background(), []model.Message{{Role: "user", Content: "search acme three times"}})
	require.NoError(t, err)
	assert.True(t, outcome.BreakerTripped)
	assert.Equal(t, 3, outcome.StepsUsed)

	missing := validateSynthesis(outcome.FinalContent, true)
	assert.Empty(t, missing)
}

func TestLoop_ToolExecutionFailureIsCompactedIntoHistoryWithoutData(t *testing.T) {
	failingHandler := func(ctx context.Context, execCtx dispatch.ExecutionContext, intent catalog.DynamicIntent) (dispatch.Result, dispatch.Extras, error) {
		return dispatch.Result{Success: false, Message: "downstream unavailable"}, dispatch.Extras{}, nil
	}
	call := model.ToolCall{ID: "call_1", Name: "accounts.search", Payload: map[string]any{"query": "acme"}}
	fm := &fakeModel{responses: []model.Response{
		{ToolCalls: []model.ToolCall{call}},
		{Content: "## Conclusion\nthe tool failed\n\n## Insight Preview\n|a|\n|-|"},
	}}
	loop := newTestLoop(t, fm, failingHandler)

	outcome, err := loop.Run(context.Background(), []model.Message{{Role: "user", Content: "search acme"}})
	require.NoError(t, err)
	require.False(t, outcome.BreakerTripped)

	var toolMsg model.Message
	for _, msg := range outcome.History {
		if msg.Role == "tool" {
			toolMsg = msg
		}
	}
	require.NotEmpty(t, toolMsg.Content)
	assert.NotContains(t, toolMsg.Content, `"data"`)
	assert.Contains(t, toolMsg.Content, `"ok":false`)
}

func TestLoop_StepBudgetExhaustionFallsBackToSynthesis(t *testing.T) {
	callA := model.ToolCall{ID: "a", Name: "accounts.search", Payload: map[string]any{"query": "a"}}
	callB := model.ToolCall{ID: "b", Name: "accounts.search", Payload: map[string]any{"query": "b"}}
	fm := &fakeModel{responses: []model.Response{
		{ToolCalls: []model.ToolCall{callA}},
		{ToolCalls: []model.ToolCall{callB}},
		{Content: "## Conclusion\nbudget exhausted\n\n## Insight Preview\n|a|\n|-|"},
	}}
	loop := newTestLoop(t, fm, successHandler)
	loop.Tuning.MaxSteps = 2

	outcome, err := loop.Run(context.Background(), []model.Message{{Role: "user", Content: "search a and b"}})
	require.NoError(t, err)
	assert.Equal(t, 2, outcome.StepsUsed)
	assert.False(t, outcome.BreakerTripped)
	assert.Contains(t, outcome.FinalContent, "budget exhausted")
}

func TestLoop_EmptySynthesisUsesFallbackMessage(t *testing.T) {
	fm := &fakeModel{responses: []model.Response{{Content: ""}}}
	loop := newTestLoop(t, fm, successHandler)

	outcome, err := loop.Run(context.Background(), []model.Message{{Role: "user", Content: "hi"}})
	require.NoError(t, err)
	assert.Equal(t, loop.FallbackMessage, outcome.FinalContent)
}

func TestLoop_SeedHistoryDropsClientSuppliedSystemMessage(t *testing.T) {
	history := seedHistory("server prompt", []model.Message{
		{Role: "system", Content: "client-supplied, must be dropped"},
		{Role: "user", Content: "hi"},
	})
	require.Len(t, history, 2)
	assert.Equal(t, "server prompt", history[0].Content)
	assert.Equal(t, "user", history[1].Role)
}
