// Package envelope defines the uniform response container produced by the
// tool invoker for every tool call. Evidence and chat-history compaction
// live in runtime/compact.
package envelope

import (
	"encoding/json"
	"time"

	"github.com/bindevz/toolrt/runtime/tools"
)

// Kind is the stable discriminator for the envelope wire shape.
const Kind = "envelope.v2"

// PolicyDecision enumerates the authorization outcome recorded on an envelope.
type PolicyDecision string

const (
	DecisionAllow PolicyDecision = "allow"
	DecisionDeny  PolicyDecision = "deny"
)

// EvidenceAudience tags who an evidence item is intended for, following the
// teacher's server-data audience convention collapsed onto evidence items.
type EvidenceAudience string

const (
	AudienceTimeline EvidenceAudience = "timeline"
	AudienceInternal EvidenceAudience = "internal"
	AudienceEvidence EvidenceAudience = "evidence"
)

type (
	// Envelope is the uniform response container for every tool invocation.
	Envelope struct {
		Kind             string          `json:"kind"`
		GeneratedAtUTC   time.Time       `json:"generatedAtUtc"`
		Tool             ToolInfo        `json:"tool"`
		OK               bool            `json:"ok"`
		Message          string          `json:"message,omitempty"`
		NormalizedIntent json.RawMessage `json:"normalizedIntent,omitempty"`
		Data             any             `json:"data,omitempty"`
		Warnings         []string        `json:"warnings,omitempty"`
		Error            *Error          `json:"error,omitempty"`
		Meta             Meta            `json:"meta"`
		Telemetry        Telemetry       `json:"telemetry"`
		Policy           Policy          `json:"policy"`
		Source           string          `json:"source,omitempty"`
		Evidence         []Evidence      `json:"evidence,omitempty"`
	}

	// ToolInfo identifies the tool that produced the envelope.
	ToolInfo struct {
		Name          tools.Ident `json:"name"`
		RequiresWrite bool        `json:"requiresWrite"`
	}

	// Error carries a stable reason code plus human-readable context.
	Error struct {
		Code    string            `json:"code"`
		Message string            `json:"message"`
		Details map[string]string `json:"details,omitempty"`
	}

	// Meta carries request-scoped identity.
	Meta struct {
		TenantID      string   `json:"tenantId"`
		UserID        string   `json:"userId"`
		CorrelationID string   `json:"correlationId"`
		Roles         []string `json:"roles,omitempty"`
	}

	// Telemetry carries observability identifiers and timing.
	Telemetry struct {
		RequestID string `json:"requestId"`
		TraceID   string `json:"traceId"`
		DurationMs int64  `json:"durationMs"`
	}

	// Policy records the authorization decision for this invocation.
	Policy struct {
		Decision      PolicyDecision `json:"decision"`
		ReasonCode    string         `json:"reasonCode"`
		CheckedAtUTC  time.Time      `json:"checkedAtUtc"`
		RolesEvaluated []string      `json:"rolesEvaluated,omitempty"`
	}

	// Evidence is a bounded excerpt of tool output embedded for the LLM's benefit.
	Evidence struct {
		Audience  EvidenceAudience `json:"audience"`
		Data      any              `json:"data"`
		Truncated bool             `json:"truncated,omitempty"`
	}
)

// Validate checks the universal envelope invariants from spec.md §8.
func (e *Envelope) Validate() error {
	if e.OK && e.Error != nil {
		return errInvariant("ok=true but error is set")
	}
	if !e.OK && e.Error == nil {
		return errInvariant("ok=false but error is nil")
	}
	if !e.OK && e.Data != nil {
		return errInvariant("ok=false but data is non-empty")
	}
	if (e.Policy.Decision == DecisionDeny) != !e.OK {
		return errInvariant("policy.decision=deny must imply ok=false and vice versa")
	}
	return nil
}

type invariantError string

func (e invariantError) Error() string { return string(e) }

func errInvariant(msg string) error { return invariantError(msg) }
