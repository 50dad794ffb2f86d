package codegen

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/metalagman/anvil/internal/config"
)

var defaultKeyEnv = map[string][]string{
	config.ProviderOpenAI: {"OPEN_ROUTER_AI_KEY", "OPENROUTER_API_KEY", "OPENAI_API_KEY"},
	config.ProviderGemini: {"GEMINI_API_KEY", "GOOGLE_API_KEY"},
}

// New builds the configured oracle client wrapped with a single transport retry.
// workRoot holds scratch directories of the exec provider; output receives its process output.
func New(ctx context.Context, cfg config.GeneratorConfig, language, workRoot string, output io.Writer) (Client, error) {
	var (
		client Client
		err    error
	)
	switch cfg.Provider {
	case config.ProviderOpenAI, "":
		client = NewOpenAIClient(OpenAIOptions{
			APIKey:      apiKey(cfg, config.ProviderOpenAI),
			BaseURL:     cfg.BaseURL,
			Model:       cfg.Model,
			Temperature: temperature(cfg),
			Language:    language,
		})
	case config.ProviderGemini:
		client, err = NewGeminiClient(ctx, GeminiOptions{
			APIKey:      apiKey(cfg, config.ProviderGemini),
			BaseURL:     cfg.BaseURL,
			Model:       cfg.Model,
			Temperature: temperature(cfg),
			Language:    language,
		})
	case config.ProviderExec:
		useTTY := false
		if cfg.UseTTY != nil {
			useTTY = *cfg.UseTTY
		}
		client, err = NewExecClient(ExecOptions{
			Cmd:      cfg.Cmd,
			UseTTY:   useTTY,
			WorkRoot: workRoot,
			Output:   output,
			Language: language,
		})
	default:
		return nil, fmt.Errorf("unknown generator provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}
	return NewRetrying(client, cfg.Timeout), nil
}

func apiKey(cfg config.GeneratorConfig, provider string) string {
	if cfg.APIKey != "" {
		return cfg.APIKey
	}
	if cfg.APIKeyEnv != "" {
		return os.Getenv(cfg.APIKeyEnv)
	}
	for _, name := range defaultKeyEnv[provider] {
		if v := os.Getenv(name); v != "" {
			return v
		}
	}
	return ""
}

func temperature(cfg config.GeneratorConfig) float32 {
	if cfg.Temperature > 0 {
		return cfg.Temperature
	}
	return DefaultTemperature
}
