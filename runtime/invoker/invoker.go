// Package invoker implements the Tool Invoker (C6): the fail-closed state
// machine that takes one LLM-emitted tool call from exposure check through
// to a fully-formed Envelope, never letting a panic or error escape to the
// planner loop.
package invoker

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/bindevz/toolrt/runtime/catalog"
	"github.com/bindevz/toolrt/runtime/compact"
	"github.com/bindevz/toolrt/runtime/dispatch"
	"github.com/bindevz/toolrt/runtime/envelope"
	"github.com/bindevz/toolrt/runtime/schema"
	"github.com/bindevz/toolrt/runtime/telemetry"
	"github.com/bindevz/toolrt/runtime/toolerrors"
	"github.com/bindevz/toolrt/runtime/tools"
)

const (
	codeToolNotAllowed     = "TOOL_NOT_ALLOWED"
	codeValidationError    = "VALIDATION_ERROR"
	codeForbidden          = "FORBIDDEN"
	codeToolExecutionFail  = "TOOL_EXECUTION_FAILED"
	codeContractError      = "CONTRACT_ERROR"
	codeInternalError      = "INTERNAL_ERROR"
)

// Invoker wires the registry, dispatcher, and schema validator together to
// produce envelopes. It holds no per-turn mutable state; every field is
// read-only after construction.
type Invoker struct {
	Registry  *catalog.Registry
	Dispatch  *dispatch.Table
	Schema    *schema.Validator
	Logger    telemetry.Logger
	NowFunc   func() time.Time
}

// Call is one LLM-emitted tool invocation, already decoded from its JSON
// arguments string.
type Call struct {
	Tool    tools.Ident
	ArgsRaw json.RawMessage
}

// Invoke runs the full state machine and always returns a complete,
// Validate()-passing Envelope — it never returns a Go error to the caller.
func (inv *Invoker) Invoke(ctx context.Context, execCtx dispatch.ExecutionContext, exposed map[tools.Ident]struct{}, call Call) (result *envelope.Envelope) {
	start := inv.now()
	env := &envelope.Envelope{
		Kind:           envelope.Kind,
		GeneratedAtUTC: inv.now(),
		Tool:           envelope.ToolInfo{Name: call.Tool},
		Meta: envelope.Meta{
			TenantID:      execCtx.TenantID,
			UserID:        execCtx.UserID,
			CorrelationID: execCtx.CorrelationID,
			Roles:         execCtx.Roles,
		},
		Telemetry: envelope.Telemetry{
			RequestID: execCtx.RequestID,
			TraceID:   execCtx.TraceID,
		},
	}

	var compactedBytes int
	var truncated bool
	var datasetID string

	defer func() {
		if r := recover(); r != nil {
			te := toolerrors.Errorf("panic: %v", r)
			fail(env, codeInternalError, te.Error(), nil)
			result = env
		}
		env.Telemetry.DurationMs = inv.now().Sub(start).Milliseconds()
		inv.logOutcome(ctx, env, compactedBytes, truncated, datasetID)
	}()

	if _, ok := exposed[call.Tool]; !ok {
		fail(env, codeToolNotAllowed, "tool is not exposed for this request", nil)
		return env
	}

	spec, ok := inv.Registry.Lookup(call.Tool)
	if !ok {
		fail(env, codeToolNotAllowed, "tool is not registered", nil)
		return env
	}
	env.Tool.RequiresWrite = spec.RequiresWrite

	intent, warnings, err := spec.Validate(call.ArgsRaw)
	if err != nil {
		details := map[string]string{}
		if verr, ok := err.(*catalog.ValidationError); ok && len(verr.Issues) > 0 {
			details["field"] = verr.Issues[0].Field
			details["constraint"] = verr.Issues[0].Constraint
		}
		fail(env, codeValidationError, err.Error(), details)
		return env
	}
	env.Warnings = append(env.Warnings, warnings...)
	if raw, err := json.Marshal(intent); err == nil {
		env.NormalizedIntent = raw
	}
	if v, ok := intent.Args["datasetId"].(string); ok {
		datasetID = v
	}

	if !authorized(spec, execCtx.Roles) {
		fail(env, codeForbidden, "role is not authorized for this tool", nil)
		return env
	}

	result, extras, err := inv.Dispatch.Dispatch(ctx, call.Tool, execCtx, intent)
	if err != nil {
		te := toolerrors.FromError(err)
		fail(env, codeInternalError, te.Error(), nil)
		return env
	}
	if !result.Success {
		fail(env, codeToolExecutionFail, result.Message, nil)
		return env
	}

	if inv.Schema != nil {
		if payloadJSON, err := json.Marshal(result.Data); err == nil {
			if warning, err := inv.Schema.Validate(payloadJSON); err != nil {
				if ce, ok := err.(*schema.ContractError); ok {
					fail(env, codeContractError, ce.Error(), map[string]string{"kind": ce.Kind})
					return env
				}
				te := toolerrors.FromError(err)
				fail(env, codeInternalError, te.Error(), nil)
				return env
			} else if warning != "" {
				env.Warnings = append(env.Warnings, warning)
			}
		}
	}

	compacted, wasTruncated, compactErr := compact.JSON(result.Data, compact.DefaultBounds())
	if compactErr == nil {
		compactedBytes = len(compacted)
		truncated = wasTruncated
	}

	evidence := extras.Evidence
	if len(evidence) == 0 && compactErr == nil {
		var decoded any
		_ = json.Unmarshal(compacted, &decoded)
		evidence = []envelope.Evidence{{Audience: envelope.AudienceEvidence, Data: decoded, Truncated: truncated}}
	}

	env.OK = true
	env.Message = result.Message
	env.Data = result.Data
	env.Source = extras.Source
	env.Evidence = evidence
	env.Policy = envelope.Policy{Decision: envelope.DecisionAllow, ReasonCode: "", CheckedAtUTC: inv.now(), RolesEvaluated: execCtx.Roles}
	return env
}

func authorized(spec catalog.ToolSpec, roles []string) bool {
	if !spec.RequiresWrite {
		return len(roles) > 0
	}
	if len(spec.WriteAllowRoles) == 0 {
		return false
	}
	for _, role := range roles {
		if _, ok := spec.WriteAllowRoles[role]; ok {
			return true
		}
	}
	return false
}

func fail(env *envelope.Envelope, code, message string, details map[string]string) {
	env.OK = false
	env.Data = nil
	env.Error = &envelope.Error{Code: code, Message: message, Details: details}
	env.Policy = envelope.Policy{Decision: envelope.DecisionDeny, ReasonCode: code, CheckedAtUTC: time.Now()}
}

func (inv *Invoker) now() time.Time {
	if inv.NowFunc != nil {
		return inv.NowFunc()
	}
	return time.Now()
}

func (inv *Invoker) logOutcome(ctx context.Context, env *envelope.Envelope, compactedBytes int, truncated bool, datasetID string) {
	if inv.Logger == nil {
		return
	}
	payload, _ := json.Marshal(env.Data)
	hash := sha256.Sum256(payload)
	fields := []any{
		"tool", string(env.Tool.Name),
		"ok", env.OK,
		"durationMs", env.Telemetry.DurationMs,
		"compactedBytes", compactedBytes,
		"truncated", truncated,
		"outputHash", hex.EncodeToString(hash[:]),
		"tenantId", env.Meta.TenantID,
		"userId", env.Meta.UserID,
	}
	if datasetID != "" {
		fields = append(fields, "datasetId", datasetID)
	}
	inv.Logger.Info(ctx, "tool invocation completed", fields...)
}
