package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"MedArticles/internal/logging"
	"MedArticles/internal/ports"
)

const anthropicBaseURL = "https://api.anthropic.com"

// AnthropicGenerator calls the Anthropic Messages API.
type AnthropicGenerator struct {
	settings Settings
	client   anthropic.Client
	logger   *slog.Logger
}

var _ ports.TextGenerator = (*AnthropicGenerator)(nil)

// NewAnthropicGenerator validates credentials and fills endpoint defaults.
// Retries are left to the caller.
func NewAnthropicGenerator(settings Settings, logger *slog.Logger) (*AnthropicGenerator, error) {
	if settings.APIKey == "" {
		return nil, fmt.Errorf("anthropic: API key is required")
	}
	if settings.BaseURL == "" {
		settings.BaseURL = anthropicBaseURL
	}
	settings = settings.withDefaults()

	client := anthropic.NewClient(
		option.WithAPIKey(settings.APIKey),
		option.WithBaseURL(settings.BaseURL),
		option.WithHTTPClient(&http.Client{Timeout: settings.Timeout}),
		option.WithMaxRetries(0),
	)

	return &AnthropicGenerator{
		settings: settings,
		client:   client,
		logger:   logging.OrDiscard(logger).With("provider", ProviderAnthropic),
	}, nil
}

// Name reports the provider.
func (g *AnthropicGenerator) Name() string {
	return ProviderAnthropic
}

// Generate sends the prompt as a single user message.
func (g *AnthropicGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	msg, err := g.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(g.settings.Model),
		MaxTokens:   int64(g.settings.MaxTokens),
		Temperature: anthropic.Float(float64(g.settings.Temperature)),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			return "", fmt.Errorf("anthropic error %d: %w", apiErr.StatusCode, err)
		}
		return "", fmt.Errorf("send anthropic request: %w", err)
	}
	if msg.StopReason == "refusal" {
		return "", fmt.Errorf("anthropic refused the request: %w", ErrContentFiltered)
	}

	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return "", ErrEmptyResponse
	}

	g.logger.Debug("anthropic completion", "stop_reason", msg.StopReason, "chars", text.Len())
	return text.String(), nil
}
