// Package genai provides content generation for graycells using the OpenAI API.
package genai

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// Default generation configuration.
const (
	// DefaultModel is the chat model used when none is configured.
	DefaultModel = openai.ChatModelGPT4oMini
	// DefaultTimeout bounds a single generation call. Expiry is treated as a
	// generator failure by the caller.
	DefaultTimeout = 30 * time.Second
)

// ClientInterface is the generator contract consumed by the conversation
// engine (and replaced by a fake in its tests).
type ClientInterface interface {
	// GeneratePrompt generates a plain text response. An empty system prompt
	// sends the user prompt alone.
	GeneratePrompt(ctx context.Context, systemPrompt, userPrompt string) (string, error)

	// GenerateStructured generates a response constrained to a JSON object.
	GenerateStructured(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Opts holds configuration options for the GenAI client.
type Opts struct {
	APIKey  string
	Model   openai.ChatModel
	Timeout time.Duration
}

// Option defines a configuration option for the GenAI client.
type Option func(*Opts)

// WithAPIKey sets the OpenAI API key.
func WithAPIKey(key string) Option {
	return func(o *Opts) {
		o.APIKey = key
	}
}

// WithModel sets the chat model by name.
func WithModel(model string) Option {
	return func(o *Opts) {
		o.Model = openai.ChatModel(model)
	}
}

// WithTimeout sets the per-call timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(o *Opts) {
		o.Timeout = timeout
	}
}

// Client wraps the OpenAI chat completion API.
type Client struct {
	client  openai.Client
	model   openai.ChatModel
	timeout time.Duration
}

// NewClient creates a new GenAI client, applying any provided options.
func NewClient(opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("genai NewClient invoked", "api_key_set", cfg.APIKey != "", "model", cfg.Model, "timeout", cfg.Timeout)

	if cfg.APIKey == "" {
		slog.Error("genai API key not set")
		return nil, fmt.Errorf("OpenAI API key not set")
	}
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &Client{
		client:  openai.NewClient(option.WithAPIKey(cfg.APIKey)),
		model:   model,
		timeout: timeout,
	}, nil
}

// GeneratePrompt generates a plain text response from the given prompts.
func (c *Client) GeneratePrompt(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return c.complete(ctx, systemPrompt, userPrompt, false)
}

// GenerateStructured generates a response constrained to a JSON object.
func (c *Client) GenerateStructured(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return c.complete(ctx, systemPrompt, userPrompt, true)
}

func (c *Client) complete(ctx context.Context, systemPrompt, userPrompt string, structured bool) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var messages []openai.ChatCompletionMessageParamUnion
	if systemPrompt != "" {
		messages = append(messages, openai.SystemMessage(systemPrompt))
	}
	messages = append(messages, openai.UserMessage(userPrompt))

	params := openai.ChatCompletionNewParams{
		Model:    c.model,
		Messages: messages,
	}
	if structured {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &openai.ResponseFormatJSONObjectParam{},
		}
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		slog.Error("genai completion failed", "error", err, "structured", structured)
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		slog.Error("genai completion returned no choices", "structured", structured)
		return "", fmt.Errorf("no choices returned")
	}
	slog.Debug("genai completion succeeded", "structured", structured, "length", len(resp.Choices[0].Message.Content))
	return resp.Choices[0].Message.Content, nil
}
