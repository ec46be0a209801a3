// Package judge invokes a judging model against a fixed rubric and validates
// its structured verdict. Parsing and validation are pure functions so they
// can be exercised against recorded judge transcripts without a live model.
package judge

import (
	"context"
	"fmt"
	"os"

	openai "github.com/sashabaranov/go-openai"
)

// LLMClient represents any judging model provider.
type LLMClient interface {
	// Complete sends messages and returns the model's text response.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// Model returns the model identifier.
	Model() string
}

// CompletionRequest contains the parameters for one judge completion.
type CompletionRequest struct {
	System      string
	User        string
	Temperature float64
	MaxTokens   int
}

// CompletionResponse is the judging model's raw response.
type CompletionResponse struct {
	Content string
}

// OpenAIClient talks to any OpenAI-compatible completion endpoint.
type OpenAIClient struct {
	client *openai.Client
	model  string
}

// NewOpenAIClient builds a client for model against baseURL (empty means the
// provider default). The API key falls back to OPENAI_API_KEY when empty.
func NewOpenAIClient(model, baseURL, apiKey string) *OpenAIClient {
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIClient{client: openai.NewClientWithConfig(cfg), model: model}
}

func (c *OpenAIClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: float32(req.Temperature),
		MaxTokens:   req.MaxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: req.System},
			{Role: openai.ChatMessageRoleUser, Content: req.User},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("judge completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("judge completion: empty choices")
	}
	return &CompletionResponse{Content: resp.Choices[0].Message.Content}, nil
}

func (c *OpenAIClient) Model() string { return c.model }
