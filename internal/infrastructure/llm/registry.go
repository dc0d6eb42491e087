package llm

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"MedArticles/internal/config"
	"MedArticles/internal/ports"
)

// Provider names accepted in configuration.
const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderGemini    = "gemini"
)

const (
	defaultMaxTokens = 2000
	defaultTimeout   = 90 * time.Second
)

var (
	// ErrContentFiltered marks replies withheld by the provider's safety layer.
	ErrContentFiltered = errors.New("response blocked by content filter")
	// ErrEmptyResponse marks replies without any text.
	ErrEmptyResponse = errors.New("empty model response")
)

// Settings is the resolved configuration of one provider.
type Settings struct {
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int
	Temperature float32
	Timeout     time.Duration
}

func (s Settings) withDefaults() Settings {
	if s.MaxTokens <= 0 {
		s.MaxTokens = defaultMaxTokens
	}
	if s.Timeout <= 0 {
		s.Timeout = defaultTimeout
	}
	return s
}

// Factory constructs a generator for one provider.
type Factory func(cfg config.LLMConfig, logger *slog.Logger) (ports.TextGenerator, error)

// Registry keeps a mapping from provider names to generator factories.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry returns a registry with the built-in providers.
func NewRegistry() *Registry {
	r := &Registry{factories: map[string]Factory{}}
	r.Register(ProviderAnthropic, func(cfg config.LLMConfig, logger *slog.Logger) (ports.TextGenerator, error) {
		return NewAnthropicGenerator(settingsFor(cfg, cfg.Anthropic), logger)
	})
	r.Register(ProviderOpenAI, func(cfg config.LLMConfig, logger *slog.Logger) (ports.TextGenerator, error) {
		return NewOpenAIGenerator(ProviderOpenAI, settingsFor(cfg, cfg.OpenAI), logger)
	})
	r.Register(ProviderGemini, func(cfg config.LLMConfig, logger *slog.Logger) (ports.TextGenerator, error) {
		return NewOpenAIGenerator(ProviderGemini, settingsFor(cfg, cfg.Gemini), logger)
	})
	return r
}

// Register adds or replaces a provider factory.
func (r *Registry) Register(name string, factory Factory) {
	if r.factories == nil {
		r.factories = map[string]Factory{}
	}
	r.factories[strings.ToLower(name)] = factory
}

// Providers lists the registered names in order.
func (r *Registry) Providers() []string {
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Build resolves the configured provider and constructs its generator.
func (r *Registry) Build(cfg config.LLMConfig, logger *slog.Logger) (ports.TextGenerator, error) {
	name := strings.ToLower(strings.TrimSpace(cfg.Provider))
	factory, ok := r.factories[name]
	if !ok {
		return nil, fmt.Errorf("model provider %q is not registered (known: %s)", cfg.Provider, strings.Join(r.Providers(), ", "))
	}
	return factory(cfg, logger)
}

func settingsFor(cfg config.LLMConfig, p config.ProviderConfig) Settings {
	return Settings{
		APIKey:      p.APIKey,
		BaseURL:     p.BaseURL,
		Model:       p.Model,
		MaxTokens:   p.MaxTokens,
		Temperature: cfg.Temperature,
		Timeout:     cfg.Timeout,
	}
}
