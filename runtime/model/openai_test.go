package model

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	openai "github.com/sashabaranov/go-openai"
)

type fakeChatClient struct {
	lastRequest openai.ChatCompletionRequest
	response    openai.ChatCompletionResponse
	err         error
}

func (f *fakeChatClient) CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	f.lastRequest = request
	return f.response, f.err
}

func TestOpenAIClient_CompleteTranslatesToolCalls(t *testing.T) {
	fake := &fakeChatClient{
		response: openai.ChatCompletionResponse{
			Choices: []openai.ChatCompletionChoice{
				{
					FinishReason: openai.FinishReasonToolCalls,
					Message: openai.ChatCompletionMessage{
						Role: "assistant",
						ToolCalls: []openai.ToolCall{
							{ID: "call_1", Function: openai.FunctionCall{Name: "accounts.search", Arguments: `{"query":"a"}`}},
						},
					},
				},
			},
			Usage: openai.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
		},
	}
	client, err := NewOpenAIClient(OpenAIOptions{Client: fake, DefaultModel: "gpt-4o"})
	require.NoError(t, err)

	resp, err := client.Complete(context.Background(), Request{
		Messages: []Message{{Role: "user", Content: "hi"}},
		Tools:    []ToolDefinition{{Name: "accounts.search", InputSchema: map[string]any{"type": "object"}}},
	})
	require.NoError(t, err)
	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "accounts.search", resp.ToolCalls[0].Name)
	assert.Equal(t, 15, resp.Usage.TotalTokens)
	assert.Equal(t, "gpt-4o", fake.lastRequest.Model)
	assert.Equal(t, "auto", fake.lastRequest.ToolChoice)
}

func TestOpenAIClient_CompleteFinalMessage(t *testing.T) {
	fake := &fakeChatClient{
		response: openai.ChatCompletionResponse{
			Choices: []openai.ChatCompletionChoice{
				{FinishReason: openai.FinishReasonStop, Message: openai.ChatCompletionMessage{Role: "assistant", Content: "done"}},
			},
		},
	}
	client, err := NewOpenAIClient(OpenAIOptions{Client: fake, DefaultModel: "gpt-4o"})
	require.NoError(t, err)

	resp, err := client.Complete(context.Background(), Request{Messages: []Message{{Role: "user", Content: "hi"}}})
	require.NoError(t, err)
	assert.Equal(t, "done", resp.Content)
	assert.Empty(t, resp.ToolCalls)
}

func TestOpenAIClient_RequiresMessages(t *testing.T) {
	client, err := NewOpenAIClient(OpenAIOptions{Client: &fakeChatClient{}, DefaultModel: "gpt-4o"})
	require.NoError(t, err)
	_, err = client.Complete(context.Background(), Request{})
	require.Error(t, err)
}
