package compact

import (
	"encoding/json"

	"github.com/bindevz/toolrt/runtime/envelope"
)

// chatEnvelope mirrors envelope.Envelope's wire shape for the chat-history
// copy, minus Data (always dropped) and with Message length-capped in the
// final fallback tier.
type chatEnvelope struct {
	Kind             string              `json:"kind"`
	GeneratedAtUTC   any                 `json:"generatedAtUtc,omitempty"`
	Tool             envelope.ToolInfo   `json:"tool"`
	OK               bool                `json:"ok"`
	Message          string              `json:"message,omitempty"`
	NormalizedIntent json.RawMessage     `json:"normalizedIntent,omitempty"`
	Warnings         []string            `json:"warnings,omitempty"`
	Error            *envelope.Error     `json:"error,omitempty"`
	Meta             envelope.Meta       `json:"meta"`
	Telemetry        envelope.Telemetry  `json:"telemetry"`
	Policy           envelope.Policy     `json:"policy"`
	Source           string              `json:"source,omitempty"`
	Evidence         []envelope.Evidence `json:"evidence,omitempty"`
	Truncated        bool                `json:"truncated,omitempty"`
	Compacted        bool                `json:"compacted,omitempty"`
	Note             string              `json:"note,omitempty"`
}

// ForHistory renders env as the bounded JSON document inserted into chat
// history, per the rules in spec §4.8: drop `data` entirely; prune
// `evidence` with the shared compaction bounds; if still over maxBytes,
// empty evidence and mark compacted+truncated; if still over budget, emit
// the minimal {tool, ok, message, compacted, truncated, note} shape. The
// envelope the Invoker hands back to the API caller is never mutated — this
// always produces an independent copy.
func ForHistory(env *envelope.Envelope, maxToolResultBytes int) ([]byte, error) {
	bounds := DefaultBounds()

	evidence, evidenceTruncated := compactEvidence(env.Evidence, bounds)
	out := chatEnvelope{
		Kind:             env.Kind,
		Tool:             env.Tool,
		OK:               env.OK,
		Message:          env.Message,
		NormalizedIntent: env.NormalizedIntent,
		Warnings:         env.Warnings,
		Error:            env.Error,
		Meta:             env.Meta,
		Telemetry:        env.Telemetry,
		Policy:           env.Policy,
		Source:           env.Source,
		Evidence:         evidence,
		Truncated:        evidenceTruncated,
	}
	payload, err := json.Marshal(out)
	if err != nil {
		return nil, err
	}
	if len(payload) <= maxToolResultBytes {
		return payload, nil
	}

	out.Evidence = nil
	out.Truncated = true
	out.Compacted = true
	payload, err = json.Marshal(out)
	if err != nil {
		return nil, err
	}
	if len(payload) <= maxToolResultBytes {
		return payload, nil
	}

	message := env.Message
	if len(message) > 200 {
		message = message[:200]
	}
	minimal := map[string]any{
		"tool":      env.Tool,
		"ok":        env.OK,
		"message":   message,
		"compacted": true,
		"truncated": true,
		"note":      "max_bytes",
	}
	return json.Marshal(minimal)
}

func compactEvidence(items []envelope.Evidence, bounds Bounds) ([]envelope.Evidence, bool) {
	if len(items) == 0 {
		return nil, false
	}
	truncatedAny := false
	out := make([]envelope.Evidence, len(items))
	for i, item := range items {
		data, truncated := compact(item.Data, bounds, 0)
		out[i] = envelope.Evidence{Audience: item.Audience, Data: data, Truncated: item.Truncated || truncated}
		truncatedAny = truncatedAny || out[i].Truncated
	}
	return out, truncatedAny
}
