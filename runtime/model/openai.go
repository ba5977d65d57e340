package model

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// ChatClient captures the subset of the go-openai client the adapter uses,
// so tests can substitute a fake without reaching the network.
type ChatClient interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// OpenAIOptions configures the OpenAI-backed Client.
type OpenAIOptions struct {
	Client       ChatClient
	DefaultModel string
}

// OpenAIClient implements Client via the OpenAI-compatible
// /v1/chat/completions endpoint.
type OpenAIClient struct {
	chat  ChatClient
	model string
}

var _ Client = (*OpenAIClient)(nil)

// NewOpenAIClient builds a Client from a pre-configured go-openai client.
func NewOpenAIClient(opts OpenAIOptions) (*OpenAIClient, error) {
	if opts.Client == nil {
		return nil, errors.New("model: openai client is required")
	}
	modelID := strings.TrimSpace(opts.DefaultModel)
	if modelID == "" {
		return nil, errors.New("model: default model is required")
	}
	return &OpenAIClient{chat: opts.Client, model: modelID}, nil
}

// NewOpenAIClientFromAPIKey constructs a client using the default go-openai
// HTTP transport, optionally pointed at a compatible alternate base URL.
func NewOpenAIClientFromAPIKey(apiKey, defaultModel, baseURL string) (*OpenAIClient, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("model: api key is required")
	}
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return NewOpenAIClient(OpenAIOptions{Client: openai.NewClientWithConfig(cfg), DefaultModel: defaultModel})
}

// Complete renders req as a Chat Completions request and translates the
// response back into the provider-agnostic shape.
func (c *OpenAIClient) Complete(ctx context.Context, req Request) (Response, error) {
	if len(req.Messages) == 0 {
		return Response{}, errors.New("model: messages are required")
	}
	modelID := strings.TrimSpace(req.Model)
	if modelID == "" {
		modelID = c.model
	}

	messages := make([]openai.ChatCompletionMessage, len(req.Messages))
	for i, msg := range req.Messages {
		messages[i] = openai.ChatCompletionMessage{
			Role:       msg.Role,
			Content:    msg.Content,
			ToolCallID: msg.ToolCallID,
		}
	}

	tools, err := encodeTools(req.Tools)
	if err != nil {
		return Response{}, err
	}

	request := openai.ChatCompletionRequest{
		Model:       modelID,
		Messages:    messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		Tools:       tools,
	}
	if len(tools) > 0 {
		request.ToolChoice = toolChoiceOrDefault(req.ToolChoice)
	}

	response, err := c.chat.CreateChatCompletion(ctx, request)
	if err != nil {
		return Response{}, fmt.Errorf("openai chat completion: %w", err)
	}
	return translateResponse(response), nil
}

func toolChoiceOrDefault(choice string) any {
	switch choice {
	case "":
		return "auto"
	case "auto", "none":
		return choice
	}
	return openai.ToolChoice{Type: openai.ToolTypeFunction, Function: openai.ToolFunction{Name: choice}}
}

func encodeTools(defs []ToolDefinition) ([]openai.Tool, error) {
	if len(defs) == 0 {
		return nil, nil
	}
	out := make([]openai.Tool, 0, len(defs))
	for _, def := range defs {
		params, err := json.Marshal(def.InputSchema)
		if err != nil {
			return nil, fmt.Errorf("marshal tool %s schema: %w", def.Name, err)
		}
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        def.Name,
				Description: def.Description,
				Parameters:  json.RawMessage(params),
			},
		})
	}
	return out, nil
}

func translateResponse(resp openai.ChatCompletionResponse) Response {
	var content string
	var toolCalls []ToolCall
	if len(resp.Choices) > 0 {
		msg := resp.Choices[0].Message
		content = msg.Content
		for _, call := range msg.ToolCalls {
			toolCalls = append(toolCalls, ToolCall{
				ID:      call.ID,
				Name:    call.Function.Name,
				Payload: parseToolArguments(call.Function.Arguments),
				RawArgs: call.Function.Arguments,
			})
		}
	}
	stop := ""
	if len(resp.Choices) > 0 {
		stop = string(resp.Choices[0].FinishReason)
	}
	return Response{
		Content:   content,
		ToolCalls: toolCalls,
		Usage: TokenUsage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
			TotalTokens:  resp.Usage.TotalTokens,
		},
		StopReason: stop,
	}
}

func parseToolArguments(raw string) any {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return raw
	}
	return v
}
