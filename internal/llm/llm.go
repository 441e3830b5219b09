package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// GenerationConfig holds the provider settings resolved once at
// startup and injected by reference. Business logic never reads the
// environment directly.
type GenerationConfig struct {
	Provider    string
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float32
	MaxTokens   int
	Timeout     time.Duration
	Stream      bool
}

// Options tunes a single completion request.
type Options struct {
	Temperature float32
	MaxTokens   int
	JSONOnly    bool
}

// Completion is the raw result of a completion request. Text is
// untrusted model output; callers must not assume well-formed JSON.
type Completion struct {
	Text         string
	FinishReason string
	Tokens       int
}

// Port is the boundary to an external text-generation model.
type Port interface {
	Complete(ctx context.Context, prompt string, opts Options) (Completion, error)
}

// StreamingPort is implemented by providers that support streamed
// completions. Callers check for it once at construction instead of
// probing an optional method at call time.
type StreamingPort interface {
	Port
	CompleteStream(ctx context.Context, prompt string, opts Options) (Completion, error)
}

// Client wraps an OpenAI-compatible API client.
type Client struct {
	api   *openai.Client
	model string
}

// New creates a new LLM client. baseURL may point at any
// OpenAI-compatible endpoint (OpenAI, Ollama, vLLM).
func New(baseURL, apiKey, modelName string) *Client {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &Client{
		api:   openai.NewClientWithConfig(config),
		model: modelName,
	}
}

// NewFromConfig creates a client from a resolved generation config.
func NewFromConfig(cfg GenerationConfig) *Client {
	return New(cfg.BaseURL, cfg.APIKey, cfg.Model)
}

// Complete sends a single prompt and returns the raw completion text.
func (c *Client) Complete(ctx context.Context, prompt string, opts Options) (Completion, error) {
	req := openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
	}
	if opts.JSONOnly {
		// A hint only; providers are free to ignore it, so the caller
		// still parses defensively.
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	resp, err := c.api.CreateChatCompletion(ctx, req)
	if err != nil {
		return Completion{}, fmt.Errorf("LLM API call: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Completion{}, fmt.Errorf("LLM returned no choices")
	}

	choice := resp.Choices[0]
	slog.Debug("LLM response", "finish_reason", choice.FinishReason, "tokens", resp.Usage.CompletionTokens)

	return Completion{
		Text:         choice.Message.Content,
		FinishReason: string(choice.FinishReason),
		Tokens:       resp.Usage.CompletionTokens,
	}, nil
}

// CompleteStream consumes a streamed completion and returns the
// concatenated text. Useful against endpoints that enforce shorter
// per-response timeouts on non-streaming requests.
func (c *Client) CompleteStream(ctx context.Context, prompt string, opts Options) (Completion, error) {
	req := openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
		Stream:      true,
	}

	stream, err := c.api.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return Completion{}, fmt.Errorf("LLM stream call: %w", err)
	}
	defer stream.Close()

	var sb strings.Builder
	var finishReason string
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Completion{}, fmt.Errorf("LLM stream recv: %w", err)
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		sb.WriteString(chunk.Choices[0].Delta.Content)
		if chunk.Choices[0].FinishReason != "" {
			finishReason = string(chunk.Choices[0].FinishReason)
		}
	}

	return Completion{Text: sb.String(), FinishReason: finishReason}, nil
}

// Ping verifies the endpoint is reachable and the model responds.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: "ping"},
		},
		MaxTokens: 1,
	})
	if err != nil {
		return fmt.Errorf("LLM health check: %w", err)
	}
	return nil
}
