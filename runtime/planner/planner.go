// Package planner implements the Planner Loop (C7): the bounded,
// circuit-broken exchange between the LLM and the tool runtime that
// produces one user-visible answer per turn. Each turn owns its own Loop
// instance; there is no shared mutable state across turns beyond whatever
// conversation store the caller wires in separately.
package planner

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/bindevz/toolrt/runtime/compact"
	"github.com/bindevz/toolrt/runtime/dispatch"
	"github.com/bindevz/toolrt/runtime/invoker"
	"github.com/bindevz/toolrt/runtime/model"
	"github.com/bindevz/toolrt/runtime/telemetry"
	"github.com/bindevz/toolrt/runtime/toolerrors"
	"github.com/bindevz/toolrt/runtime/tools"
)

// Tuning bounds the loop's behavior for one turn.
type Tuning struct {
	MaxSteps            int // clamped to [1,20]
	MaxTokens           int
	ToolCallTemperature float32
	SynthesisTemp       float32
	MaxToolResultBytes  int // passed to compact.ForHistory
}

func (t Tuning) clamp() Tuning {
	if t.MaxSteps < 1 {
		t.MaxSteps = 1
	}
	if t.MaxSteps > 20 {
		t.MaxSteps = 20
	}
	if t.MaxToolResultBytes <= 0 {
		t.MaxToolResultBytes = 4096
	}
	return t
}

// Loop drives one user turn's worth of tool-calling conversation.
type Loop struct {
	Model   model.Client
	Invoker *invoker.Invoker
	Exposed map[tools.Ident]struct{}
	Tools   []model.ToolDefinition
	ExecCtx dispatch.ExecutionContext

	SystemPrompt       string // language-resolved; includes reset-filters + confirm-by-id contract
	SynthesisAppendage string // appended to SystemPrompt for the synthesis pass

	FallbackMessage string // localized fallback when synthesis returns empty content

	Tuning Tuning
	Logger telemetry.Logger
}

// Outcome is the terminal result of running the loop for one turn.
type Outcome struct {
	FinalContent   string
	BreakerTripped bool
	StepsUsed      int
	History        []model.Message
	Usage          model.TokenUsage
}

// Run drives the loop to completion: synthesis, circuit-breaker trip, or
// step-budget exhaustion, per spec §4.6.
func (l *Loop) Run(ctx context.Context, incoming []model.Message) (Outcome, error) {
	tuning := l.Tuning.clamp()
	history := seedHistory(l.SystemPrompt, incoming)
	signatureCounts := make(map[string]int)
	var usage model.TokenUsage

	for step := 0; step < tuning.MaxSteps; step++ {
		resp, err := l.Model.Complete(ctx, model.Request{
			Messages:    history,
			Tools:       l.Tools,
			ToolChoice:  "auto",
			Temperature: tuning.ToolCallTemperature,
			MaxTokens:   tuning.MaxTokens,
		})
		if err != nil {
			return Outcome{}, toolerrors.NewWithCause("planner: tool-call step", err)
		}
		usage = addUsage(usage, resp.Usage)

		if len(resp.ToolCalls) == 0 {
			final, synthUsage, err := l.synthesize(ctx, history, tuning)
			if err != nil {
				return Outcome{}, err
			}
			usage = addUsage(usage, synthUsage)
			return Outcome{FinalContent: final, StepsUsed: step + 1, History: history, Usage: usage}, nil
		}

		history = append(history, model.Message{Role: "assistant", Content: resp.Content, ToolCalls: resp.ToolCalls})

		for _, call := range resp.ToolCalls {
			argsJSON, _ := json.Marshal(call.Payload)
			sig := callSignature(call.Name, argsJSON)
			signatureCounts[sig]++
			if signatureCounts[sig] > 2 {
				l.logf(ctx, "circuit breaker tripped", call.Name, "signature", sig, "count", signatureCounts[sig])
				final, synthUsage, err := l.synthesize(ctx, history, tuning)
				if err != nil {
					return Outcome{}, err
				}
				usage = addUsage(usage, synthUsage)
				return Outcome{FinalContent: final, BreakerTripped: true, StepsUsed: step + 1, History: history, Usage: usage}, nil
			}

			l.logf(ctx, "tool call issued", call.Name, "step", step+1)
			env := l.Invoker.Invoke(ctx, l.ExecCtx, l.Exposed, invoker.Call{Tool: tools.Ident(call.Name), ArgsRaw: argsJSON})
			compacted, err := compact.ForHistory(env, tuning.MaxToolResultBytes)
			if err != nil {
				return Outcome{}, toolerrors.NewWithCause("planner: compact tool result", err)
			}
			history = append(history, model.Message{Role: "tool", Content: string(compacted), ToolCallID: call.ID})
		}
	}

	l.logf(ctx, "step budget exhausted", "", "maxSteps", tuning.MaxSteps)
	final, synthUsage, err := l.synthesize(ctx, history, tuning)
	if err != nil {
		return Outcome{}, err
	}
	usage = addUsage(usage, synthUsage)
	return Outcome{FinalContent: final, StepsUsed: tuning.MaxSteps, History: history, Usage: usage}, nil
}

// synthesize re-issues one completion with tools disabled so the model
// composes its final answer from the tool results already in history.
func (l *Loop) synthesize(ctx context.Context, history []model.Message, tuning Tuning) (string, model.TokenUsage, error) {
	synthesisHistory := append([]model.Message(nil), history...)
	if len(synthesisHistory) > 0 && synthesisHistory[0].Role == "system" {
		synthesisHistory[0] = model.Message{
			Role:    "system",
			Content: synthesisHistory[0].Content + "\n" + l.SynthesisAppendage,
		}
	}
	resp, err := l.Model.Complete(ctx, model.Request{
		Messages:    synthesisHistory,
		ToolChoice:  "none",
		Temperature: tuning.SynthesisTemp,
		MaxTokens:   tuning.MaxTokens,
	})
	if err != nil {
		return "", model.TokenUsage{}, toolerrors.NewWithCause("planner: synthesis step", err)
	}
	if resp.Content == "" {
		l.logf(ctx, "synthesis returned empty content, using fallback message", "")
		return l.FallbackMessage, resp.Usage, nil
	}
	return resp.Content, resp.Usage, nil
}

// logf emits a structured planner log line carrying the fields named in
// SPEC_FULL.md §10.1: component, tool, run_id, tenant_id, user_id,
// correlation_id, plus any call-specific key-value pairs. A nil Logger is a
// silent no-op, matching the invoker's same tolerance for an unset logger.
func (l *Loop) logf(ctx context.Context, msg, tool string, extra ...any) {
	if l.Logger == nil {
		return
	}
	fields := []any{
		"component", "planner",
		"tool", tool,
		"run_id", l.ExecCtx.RequestID,
		"tenant_id", l.ExecCtx.TenantID,
		"user_id", l.ExecCtx.UserID,
		"correlation_id", l.ExecCtx.CorrelationID,
	}
	fields = append(fields, extra...)
	l.Logger.Info(ctx, msg, fields...)
}

func addUsage(a, b model.TokenUsage) model.TokenUsage {
	return model.TokenUsage{
		InputTokens:  a.InputTokens + b.InputTokens,
		OutputTokens: a.OutputTokens + b.OutputTokens,
		TotalTokens:  a.TotalTokens + b.TotalTokens,
	}
}

// seedHistory builds the initial chat history: the system prompt, followed
// by the incoming messages with any client-supplied system role stripped.
func seedHistory(systemPrompt string, incoming []model.Message) []model.Message {
	history := make([]model.Message, 0, len(incoming)+1)
	history = append(history, model.Message{Role: "system", Content: systemPrompt})
	for _, msg := range incoming {
		if msg.Role == "system" {
			continue
		}
		history = append(history, msg)
	}
	return history
}

// callSignature is the deterministic SHA-256(toolName|argsJSON) signature
// used to detect repeated identical tool calls across planner steps.
func callSignature(toolName string, argsJSON []byte) string {
	h := sha256.New()
	h.Write([]byte(toolName))
	h.Write([]byte{'|'})
	h.Write(argsJSON)
	return hex.EncodeToString(h.Sum(nil))
}

// validateSynthesis checks the three required Markdown sections named in
// spec §4.6: Conclusion / Insight, Insight Preview (table), List Preview
// (table, only when list data exists). Exposed for callers that want to
// assert on synthesis shape in tests without re-deriving the heading text.
func validateSynthesis(content string, requireListPreview bool) []string {
	var missing []string
	if !containsHeading(content, "Conclusion") && !containsHeading(content, "Insight") {
		missing = append(missing, "Conclusion / Insight")
	}
	if !containsHeading(content, "Insight Preview") {
		missing = append(missing, "Insight Preview")
	}
	if requireListPreview && !containsHeading(content, "List Preview") {
		missing = append(missing, "List Preview")
	}
	return missing
}

func containsHeading(content, heading string) bool {
	return len(content) > 0 && indexOfFold(content, heading) >= 0
}

func indexOfFold(haystack, needle string) int {
	hLower := toLowerASCII(haystack)
	nLower := toLowerASCII(needle)
	return indexOf(hLower, nLower)
}

func toLowerASCII(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

func indexOf(haystack, needle string) int {
	if len(needle) == 0 {
		return 0
	}
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return i
		}
	}
	return -1
}
