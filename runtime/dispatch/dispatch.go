// Package dispatch implements the Tool Dispatcher: a table keyed by tool
// name routing a validated intent to exactly one registered handler.
// Handlers never touch the envelope, compute telemetry, or perform
// authorization — they receive only an immutable ExecutionContext.
package dispatch

import (
	"context"
	"fmt"

	"github.com/bindevz/toolrt/runtime/catalog"
	"github.com/bindevz/toolrt/runtime/envelope"
	"github.com/bindevz/toolrt/runtime/tools"
)

// ExecutionContext is the immutable, per-call context handlers receive.
// Handlers must not mutate it or retain references to it across
// suspension points beyond the call they were invoked for.
type ExecutionContext struct {
	TenantID       string
	UserID         string
	Roles          []string
	CorrelationID  string
	RequestID      string
	TraceID        string
	ConversationID string
}

// Result is what a handler produces: success/failure plus a data payload.
type Result struct {
	Success bool
	Message string
	Data    any
}

// Extras carries handler-supplied hints that don't belong in the result
// itself: a source label and pre-attached evidence items.
type Extras struct {
	Source   string
	Evidence []envelope.Evidence
}

// Handler executes one tool call against a validated intent.
type Handler func(ctx context.Context, execCtx ExecutionContext, intent catalog.DynamicIntent) (Result, Extras, error)

// ErrNoHandler is returned by Dispatch when no handler is registered for a
// tool name that nonetheless passed registry validation — a wiring bug, not
// a caller error.
type ErrNoHandler struct {
	Tool tools.Ident
}

func (e *ErrNoHandler) Error() string {
	return fmt.Sprintf("dispatch: no handler registered for tool %q", e.Tool)
}

// Table is a dispatch table keyed by tool name. At most one handler per
// tool; registering the same name twice replaces the prior handler.
type Table struct {
	handlers map[tools.Ident]Handler
}

// NewTable creates an empty dispatch table.
func NewTable() *Table {
	return &Table{handlers: make(map[tools.Ident]Handler)}
}

// Register binds name to handler.
func (t *Table) Register(name tools.Ident, handler Handler) {
	t.handlers[name] = handler
}

// Dispatch routes intent to the handler registered for name.
func (t *Table) Dispatch(ctx context.Context, name tools.Ident, execCtx ExecutionContext, intent catalog.DynamicIntent) (Result, Extras, error) {
	handler, ok := t.handlers[name]
	if !ok {
		return Result{}, Extras{}, &ErrNoHandler{Tool: name}
	}
	return handler(ctx, execCtx, intent)
}
