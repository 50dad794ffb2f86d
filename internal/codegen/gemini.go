package codegen

import (
	"context"
	"fmt"
	"strings"

	"github.com/metalagman/anvil/internal/logging"
	"google.golang.org/genai"
)

// DefaultGeminiModel is used when no model is configured for the gemini provider.
const DefaultGeminiModel = "gemini-2.5-flash"

// GeminiClient calls the Gemini API through the official genai client.
type GeminiClient struct {
	cli         *genai.Client
	model       string
	temperature float32
	prompter    Prompter
}

// GeminiOptions configures a GeminiClient.
type GeminiOptions struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float32
	Language    string
}

// NewGeminiClient creates a Gemini client.
func NewGeminiClient(ctx context.Context, opts GeminiOptions) (*GeminiClient, error) {
	cc := &genai.ClientConfig{APIKey: opts.APIKey, Backend: genai.BackendGeminiAPI}
	if opts.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: opts.BaseURL}
	}
	cli, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	model := opts.Model
	if model == "" {
		model = DefaultGeminiModel
	}
	return &GeminiClient{
		cli:         cli,
		model:       model,
		temperature: opts.Temperature,
		prompter:    Prompter{Language: opts.Language},
	}, nil
}

// Generate sends one GenerateContent request.
func (g *GeminiClient) Generate(ctx context.Context, mode Mode, input string) (string, error) {
	logger := logging.Component("codegen")
	logger.Debug().Str("provider", "gemini").Str("model", g.model).Str("mode", string(mode)).Msg("generate content")

	temp := g.temperature
	resp, err := g.cli.Models.GenerateContent(ctx, g.model,
		[]*genai.Content{{Role: genai.RoleUser, Parts: []*genai.Part{{Text: g.prompter.User(mode, input)}}}},
		&genai.GenerateContentConfig{
			SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: g.prompter.System(mode)}}},
			Temperature:       &temp,
		},
	)
	if err != nil {
		return "", transportErr("gemini", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", transportErr("gemini", ErrEmptyResponse)
	}

	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil {
			b.WriteString(part.Text)
		}
	}
	if strings.TrimSpace(b.String()) == "" {
		return "", transportErr("gemini", ErrEmptyResponse)
	}
	return b.String(), nil
}
