package llm

import (
	"context"
	"fmt"
	"log/slog"

	openai "github.com/sashabaranov/go-openai"

	"MedArticles/internal/logging"
	"MedArticles/internal/ports"
)

// OpenAIGenerator talks to any OpenAI-compatible chat completions endpoint.
// It serves both the openai and gemini providers.
type OpenAIGenerator struct {
	name     string
	client   *openai.Client
	settings Settings
	logger   *slog.Logger
}

var _ ports.TextGenerator = (*OpenAIGenerator)(nil)

// NewOpenAIGenerator builds a generator registered under name.
func NewOpenAIGenerator(name string, settings Settings, logger *slog.Logger) (*OpenAIGenerator, error) {
	if settings.APIKey == "" {
		return nil, fmt.Errorf("%s: API key is required", name)
	}
	settings = settings.withDefaults()

	cfg := openai.DefaultConfig(settings.APIKey)
	if settings.BaseURL != "" {
		cfg.BaseURL = settings.BaseURL
	}

	return &OpenAIGenerator{
		name:     name,
		client:   openai.NewClientWithConfig(cfg),
		settings: settings,
		logger:   logging.OrDiscard(logger).With("provider", name),
	}, nil
}

// Name reports the provider this generator was built for.
func (g *OpenAIGenerator) Name() string {
	return g.name
}

// Generate sends the prompt as a single user message.
func (g *OpenAIGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.settings.Timeout)
	defer cancel()

	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: g.settings.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: g.settings.Temperature,
		MaxTokens:   g.settings.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("create %s completion: %w", g.name, err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}

	choice := resp.Choices[0]
	if choice.FinishReason == openai.FinishReasonContentFilter {
		return "", fmt.Errorf("%s blocked the response: %w", g.name, ErrContentFiltered)
	}
	if choice.Message.Content == "" {
		return "", ErrEmptyResponse
	}

	g.logger.Debug("chat completion",
		"finish_reason", choice.FinishReason,
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens,
	)
	return choice.Message.Content, nil
}
