package main

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/bindevz/toolrt/runtime/catalog"
	"github.com/bindevz/toolrt/runtime/confirm"
	"github.com/bindevz/toolrt/runtime/conversation"
	"github.com/bindevz/toolrt/runtime/invoker"
	"github.com/bindevz/toolrt/runtime/model"
	"github.com/bindevz/toolrt/runtime/planner"
	"github.com/bindevz/toolrt/runtime/telemetry"
	"github.com/bindevz/toolrt/runtime/tools"
)

type chatServer struct {
	model        model.Client
	invoker      *invoker.Invoker
	registry     *catalog.Registry
	confirm      confirm.Store
	conversation conversation.Store
	logger       telemetry.Logger
}

// chatMessage mirrors the OpenAI-shaped message the external interface
// names in spec §6.
type chatMessage struct {
	Role       string           `json:"role"`
	Content    string           `json:"content,omitempty"`
	ToolCallID string           `json:"tool_call_id,omitempty"`
	ToolCalls  []toolCallWire   `json:"tool_calls,omitempty"`
}

type toolCallWire struct {
	ID       string           `json:"id"`
	Type     string           `json:"type"`
	Function functionCallWire `json:"function"`
}

type functionCallWire struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float32       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatChoice struct {
	Index        int         `json:"index"`
	FinishReason string      `json:"finish_reason"`
	Message      chatMessage `json:"message"`
}

type chatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type chatResponse struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"`
	Created int64        `json:"created"`
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
	Usage   chatUsage    `json:"usage"`
}

func (s *chatServer) handleChatCompletions(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"code": "INVALID_REQUEST", "message": err.Error()}})
		return
	}
	if len(req.Messages) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"code": "INVALID_REQUEST", "message": "messages is required"}})
		return
	}

	execCtx := buildExecutionContext(c)
	exposed := exposedTools(s.registry)

	if last := lastUserContent(req.Messages); last != "" {
		if planID, ok := confirm.ExtractID(last); ok {
			if plan, err := s.confirm.Commit(c.Request.Context(), planID, execCtx.TenantID, execCtx.UserID); err == nil {
				s.logger.Info(c.Request.Context(), "confirmation plan committed", "tool", plan.Tool, "plan_id", plan.ID, "tenant_id", execCtx.TenantID)
			} else {
				s.logger.Warn(c.Request.Context(), "confirmation plan commit failed", "plan_id", planID, "error", err.Error())
			}
		}
	}

	language := resolveLanguage(c.GetHeader("Accept-Language"))
	if execCtx.ConversationID != "" {
		if state, ok, err := s.conversation.Get(c.Request.Context(), execCtx.TenantID, execCtx.ConversationID); err == nil && ok && state.Language != "" {
			language = state.Language
		}
	}

	loop := &planner.Loop{
		Model:              s.model,
		Invoker:            s.invoker,
		Exposed:            exposed,
		Tools:              toolDefinitions(s.registry, exposed),
		ExecCtx:            execCtx,
		SystemPrompt:       systemPrompt(language),
		SynthesisAppendage: synthesisAppendage(language),
		FallbackMessage:    fallbackMessage(language),
		Logger:             s.logger,
		Tuning: planner.Tuning{
			MaxSteps:            8,
			MaxTokens:           req.MaxTokens,
			ToolCallTemperature: req.Temperature,
			SynthesisTemp:       req.Temperature,
			MaxToolResultBytes:  4096,
		},
	}

	outcome, err := loop.Run(c.Request.Context(), toModelMessages(req.Messages))
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": gin.H{"code": "UPSTREAM_MODEL_ERROR", "message": err.Error()}})
		return
	}

	if execCtx.ConversationID != "" {
		_ = s.conversation.Put(c.Request.Context(), execCtx.TenantID, execCtx.ConversationID, conversation.State{
			Language: language, UpdatedAt: time.Now(),
		}, 0)
	}

	modelID := req.Model
	if modelID == "" {
		modelID = "toolrt-demo"
	}

	c.JSON(http.StatusOK, chatResponse{
		ID:      "chatcmpl-" + uuid.NewString(),
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   modelID,
		Choices: []chatChoice{
			{Index: 0, FinishReason: "stop", Message: chatMessage{Role: "assistant", Content: outcome.FinalContent}},
		},
		Usage: chatUsage{
			PromptTokens:     outcome.Usage.InputTokens,
			CompletionTokens: outcome.Usage.OutputTokens,
			TotalTokens:      outcome.Usage.TotalTokens,
		},
	})
}

func lastUserContent(msgs []chatMessage) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == "user" {
			return msgs[i].Content
		}
	}
	return ""
}

func toModelMessages(msgs []chatMessage) []model.Message {
	out := make([]model.Message, len(msgs))
	for i, m := range msgs {
		out[i] = model.Message{Role: m.Role, Content: m.Content, ToolCallID: m.ToolCallID}
	}
	return out
}

func exposedTools(registry *catalog.Registry) map[tools.Ident]struct{} {
	names := registry.Names()
	out := make(map[tools.Ident]struct{}, len(names))
	for _, n := range names {
		out[n] = struct{}{}
	}
	return out
}

func toolDefinitions(registry *catalog.Registry, exposed map[tools.Ident]struct{}) []model.ToolDefinition {
	defs := make([]model.ToolDefinition, 0, len(exposed))
	for name := range exposed {
		spec, ok := registry.Lookup(name)
		if !ok {
			continue
		}
		defs = append(defs, model.ToolDefinition{
			Name:        string(spec.Name),
			Description: "tool-calling runtime demo tool",
			InputSchema: argsToJSONSchema(spec),
		})
	}
	return defs
}

func argsToJSONSchema(spec catalog.ToolSpec) map[string]any {
	properties := make(map[string]any, len(spec.Args))
	var required []string
	for _, arg := range spec.Args {
		properties[arg.Name] = map[string]any{"type": jsonSchemaType(arg.Type)}
		if arg.Required {
			required = append(required, arg.Name)
		}
	}
	schema := map[string]any{"type": "object", "properties": properties}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func jsonSchemaType(t tools.ArgType) string {
	switch t {
	case tools.ArgInt:
		return "integer"
	case tools.ArgBool:
		return "boolean"
	case tools.ArgJSON:
		return "object"
	case tools.ArgStringMap:
		return "object"
	default:
		return "string"
	}
}

func resolveLanguage(acceptLanguage string) string {
	if len(acceptLanguage) >= 2 {
		return acceptLanguage[:2]
	}
	return "en"
}

func systemPrompt(language string) string {
	return "You are a tool-calling analytics assistant (language: " + language + "). " +
		"When the user asks to start over, drop any previously applied filters. " +
		"If a prior turn gave the user a confirmation id, accept \"CONFIRM <id>\" in their next message as authorization to commit that pending action."
}

func synthesisAppendage(language string) string {
	return "You already have the tool results you need for this turn (language: " + language + "). " +
		"Do not call any more tools. Compose the final answer now as three Markdown sections, in order: " +
		"Conclusion / Insight, Insight Preview (a table), and List Preview (a table, only if there is list data to show)."
}

func fallbackMessage(language string) string {
	if language == "es" {
		return "No se pudo generar una respuesta a partir de los resultados disponibles."
	}
	return "I could not compose an answer from the available tool results."
}
