// Package anthropic provides an Anthropic-backed language model provider.
package anthropic

import (
	"context"
	"errors"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/engram-ai/engram-go/pkg/llm"
)

// Client is an Anthropic LLM client.
// It implements the llm.Provider interface on top of the Anthropic Messages API.
// System messages are separated out per the Messages API specification.
type Client struct {
	client *anthropic.Client
	model  string
}

// Config is the configuration for the Anthropic LLM provider.
// APIKey: Anthropic API key (required)
// Model: Model name to use, defaults to "claude-3-5-sonnet-20240620"
// BaseURL: API base URL, defaults to the Anthropic official address
type Config struct {
	APIKey  string
	Model   string
	BaseURL string
}

// NewClient creates a new Anthropic LLM client.
func NewClient(cfg *Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("anthropic llm: API key is required")
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	model := cfg.Model
	if model == "" {
		model = "claude-3-5-sonnet-20240620"
	}

	client := anthropic.NewClient(opts...)

	return &Client{
		client: &client,
		model:  model,
	}, nil
}

// Generate generates text from a single prompt.
func (c *Client) Generate(ctx context.Context, prompt string, opts ...llm.GenerateOption) (string, error) {
	messages := []llm.Message{
		{Role: llm.RoleUser, Content: prompt},
	}
	return c.GenerateWithMessages(ctx, messages, opts...)
}

// GenerateWithMessages generates text from a conversation history.
//
// Anthropic has no native JSON response mode; when JSONResponse is
// requested an instruction is appended to the system prompt instead.
func (c *Client) GenerateWithMessages(ctx context.Context, messages []llm.Message, opts ...llm.GenerateOption) (string, error) {
	options := llm.ApplyGenerateOptions(opts)

	var system strings.Builder
	params := make([]anthropic.MessageParam, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case llm.RoleSystem:
			if system.Len() > 0 {
				system.WriteString("\n\n")
			}
			system.WriteString(msg.Content)
		case llm.RoleAssistant:
			params = append(params, anthropic.NewAssistantMessage(anthropic.NewTextBlock(msg.Content)))
		default:
			params = append(params, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		}
	}
	if options.JSONResponse {
		if system.Len() > 0 {
			system.WriteString("\n\n")
		}
		system.WriteString("Respond with a single valid JSON object and nothing else.")
	}

	req := anthropic.MessageNewParams{
		Model:       anthropic.Model(c.model),
		MaxTokens:   int64(options.MaxTokens),
		Messages:    params,
		Temperature: anthropic.Float(options.Temperature),
	}
	if system.Len() > 0 {
		req.System = []anthropic.TextBlockParam{{Text: system.String()}}
	}

	resp, err := c.client.Messages.New(ctx, req)
	if err != nil {
		return "", err
	}

	var out strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			out.WriteString(block.Text)
		}
	}
	if out.Len() == 0 {
		return "", errors.New("anthropic llm: empty response")
	}

	return out.String(), nil
}

// Close closes the client. The underlying HTTP client needs no cleanup.
func (c *Client) Close() error {
	return nil
}
