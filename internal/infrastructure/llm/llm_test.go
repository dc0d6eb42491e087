package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"MedArticles/internal/config"
)

type anthropicRequest struct {
	Model       string  `json:"model"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float64 `json:"temperature"`
	Messages    []struct {
		Role    string `json:"role"`
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	} `json:"messages"`
}

func TestAnthropicGenerate(t *testing.T) {
	t.Parallel()

	var got anthropicRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("x-api-key"))
		assert.NotEmpty(t, r.Header.Get("anthropic-version"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"msg_1","type":"message","role":"assistant","model":"claude-test",` +
			`"content":[{"type":"text","text":"{\"is_relevant\": true}"}],"stop_reason":"end_turn"}`))
	}))
	defer server.Close()

	gen, err := NewAnthropicGenerator(Settings{APIKey: "secret", BaseURL: server.URL, Model: "claude-test", Temperature: 0.01}, nil)
	require.NoError(t, err)

	out, err := gen.Generate(context.Background(), "classify this")
	require.NoError(t, err)
	assert.Equal(t, `{"is_relevant": true}`, out)
	assert.Equal(t, "claude-test", got.Model)
	assert.Equal(t, defaultMaxTokens, got.MaxTokens)
	assert.InDelta(t, 0.01, got.Temperature, 1e-6)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "user", got.Messages[0].Role)
	require.Len(t, got.Messages[0].Content, 1)
	assert.Equal(t, "classify this", got.Messages[0].Content[0].Text)
}

func TestAnthropicErrors(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"rate_limit_error","message":"slow down"}}`))
	}))
	defer server.Close()

	gen, err := NewAnthropicGenerator(Settings{APIKey: "k", BaseURL: server.URL}, nil)
	require.NoError(t, err)

	_, err = gen.Generate(context.Background(), "p")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "anthropic error 429")
	assert.Equal(t, int32(1), calls.Load(), "no automatic retries")

	_, err = NewAnthropicGenerator(Settings{}, nil)
	require.Error(t, err)
}

func TestAnthropicRefusal(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"msg_2","type":"message","role":"assistant","content":[],"stop_reason":"refusal"}`))
	}))
	defer server.Close()

	gen, err := NewAnthropicGenerator(Settings{APIKey: "k", BaseURL: server.URL}, nil)
	require.NoError(t, err)

	_, err = gen.Generate(context.Background(), "p")
	assert.True(t, errors.Is(err, ErrContentFiltered))
}

func chatCompletionServer(t *testing.T, finishReason, content string) *httptest.Server {
	t.Helper()

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"created": 1,
			"model":   "gpt-test",
			"choices": []map[string]any{{
				"index":         0,
				"message":       map[string]string{"role": "assistant", "content": content},
				"finish_reason": finishReason,
			}},
			"usage": map[string]int{"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15},
		})
	}))
}

func TestOpenAIGenerate(t *testing.T) {
	t.Parallel()

	server := chatCompletionServer(t, "stop", `{"medical_category": "Cardiology"}`)
	defer server.Close()

	gen, err := NewOpenAIGenerator(ProviderGemini, Settings{APIKey: "key", BaseURL: server.URL + "/v1", Model: "gpt-test"}, nil)
	require.NoError(t, err)
	assert.Equal(t, ProviderGemini, gen.Name())

	out, err := gen.Generate(context.Background(), "score this")
	require.NoError(t, err)
	assert.Equal(t, `{"medical_category": "Cardiology"}`, out)
}

func TestOpenAIContentFilter(t *testing.T) {
	t.Parallel()

	server := chatCompletionServer(t, "content_filter", "")
	defer server.Close()

	gen, err := NewOpenAIGenerator(ProviderOpenAI, Settings{APIKey: "key", BaseURL: server.URL + "/v1"}, nil)
	require.NoError(t, err)

	_, err = gen.Generate(context.Background(), "p")
	assert.True(t, errors.Is(err, ErrContentFiltered))
}

func TestRegistryBuild(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	assert.Equal(t, []string{ProviderAnthropic, ProviderGemini, ProviderOpenAI}, r.Providers())

	gen, err := r.Build(config.LLMConfig{
		Provider: "OpenAI",
		OpenAI:   config.ProviderConfig{APIKey: "k", Model: "gpt-4o-mini"},
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, ProviderOpenAI, gen.Name())

	_, err = r.Build(config.LLMConfig{Provider: "anthropic"}, nil)
	require.Error(t, err, "missing credentials must fail at construction")

	_, err = r.Build(config.LLMConfig{Provider: "mystery"}, nil)
	require.Error(t, err)
}
