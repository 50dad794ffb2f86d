package codegen

import (
	"context"
	"strings"

	"github.com/metalagman/anvil/internal/logging"
	"github.com/sashabaranov/go-openai"
)

const (
	// DefaultOpenRouterURL is the OpenAI-compatible endpoint used when no base URL is configured.
	DefaultOpenRouterURL = "https://openrouter.ai/api/v1"
	// DefaultOpenAIModel is the model requested through OpenRouter by default.
	DefaultOpenAIModel = "openai/gpt-4.1"
	// DefaultTemperature keeps generated code close to deterministic.
	DefaultTemperature float32 = 0.1
)

// OpenAIClient calls an OpenAI-compatible chat completions API.
type OpenAIClient struct {
	client      *openai.Client
	model       string
	temperature float32
	prompter    Prompter
}

// OpenAIOptions configures an OpenAIClient.
type OpenAIOptions struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float32
	Language    string
}

// NewOpenAIClient creates a chat completions client.
func NewOpenAIClient(opts OpenAIOptions) *OpenAIClient {
	cfg := openai.DefaultConfig(opts.APIKey)
	cfg.BaseURL = DefaultOpenRouterURL
	if opts.BaseURL != "" {
		cfg.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	}
	model := opts.Model
	if model == "" {
		model = DefaultOpenAIModel
	}
	return &OpenAIClient{
		client:      openai.NewClientWithConfig(cfg),
		model:       model,
		temperature: opts.Temperature,
		prompter:    Prompter{Language: opts.Language},
	}
}

// Generate sends one chat completion request.
func (c *OpenAIClient) Generate(ctx context.Context, mode Mode, input string) (string, error) {
	logger := logging.Component("codegen")
	logger.Debug().Str("provider", "openai").Str("model", c.model).Str("mode", string(mode)).Msg("chat completion")

	req := openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: c.prompter.System(mode)},
			{Role: openai.ChatMessageRoleUser, Content: c.prompter.User(mode, input)},
		},
		Temperature: c.temperature,
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", transportErr("openai", err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", transportErr("openai", ErrEmptyResponse)
	}
	logger.Debug().Str("finish_reason", string(resp.Choices[0].FinishReason)).Msg("chat completion done")
	return resp.Choices[0].Message.Content, nil
}
