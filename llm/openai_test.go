package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const okBody = `{
	"model": "gpt-4-0613",
	"choices": [{"message": {"content": "MATCH (c:Customer) RETURN c.name"}, "finish_reason": "stop"}],
	"usage": {"prompt_tokens": 120, "completion_tokens": 12, "total_tokens": 132}
}`

func TestOpenAICompat_Complete(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(okBody))
	}))
	defer srv.Close()

	p := NewOpenAICompat(Config{BaseURL: srv.URL + "/", Model: "gpt-4", APIKey: "sk-test"})
	resp, err := p.Complete(context.Background(), NewCompletionRequest(
		[]Message{{Role: RoleUser, Content: "prompt"}},
		WithTemperature(0),
	))
	require.NoError(t, err)

	assert.Equal(t, "MATCH (c:Customer) RETURN c.name", resp.Content)
	assert.Equal(t, "gpt-4-0613", resp.Model)
	assert.Equal(t, TokenUsage{InputTokens: 120, OutputTokens: 12, TotalTokens: 132}, resp.Usage)
	assert.False(t, resp.Truncated())

	// A zero temperature is sent explicitly.
	assert.Equal(t, "gpt-4", got["model"])
	assert.Equal(t, 0.0, got["temperature"])
	assert.NotContains(t, got, "max_tokens")
	assert.Equal(t, []any{map[string]any{"role": "user", "content": "prompt"}}, got["messages"])
}

func TestOpenAICompat_RetriesUnavailable(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(okBody))
	}))
	defer srv.Close()

	p := NewOpenAICompat(Config{BaseURL: srv.URL, Model: "gpt-4", MaxRetries: 2, RetryDelay: time.Millisecond})
	resp, err := p.Complete(context.Background(), NewCompletionRequest([]Message{{Role: RoleUser, Content: "q"}}))
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Content)
	assert.Equal(t, int32(2), calls.Load())
}

func TestOpenAICompat_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, `{"error":"invalid api key"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	p := NewOpenAICompat(Config{BaseURL: srv.URL, Model: "gpt-4", RetryDelay: time.Millisecond})
	_, err := p.Complete(context.Background(), NewCompletionRequest([]Message{{Role: RoleUser, Content: "q"}}))

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Contains(t, apiErr.Body, "invalid api key")
	assert.Equal(t, int32(1), calls.Load())
}

func TestOpenAICompat_RetriesExhausted(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	p := NewOpenAICompat(Config{BaseURL: srv.URL, Model: "gpt-4", MaxRetries: 1, RetryDelay: time.Millisecond})
	_, err := p.Complete(context.Background(), NewCompletionRequest([]Message{{Role: RoleUser, Content: "q"}}))

	require.Error(t, err)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusTooManyRequests, apiErr.StatusCode)
	assert.Equal(t, int32(2), calls.Load())
}

func TestOpenAICompat_NoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices": []}`))
	}))
	defer srv.Close()

	p := NewOpenAICompat(Config{BaseURL: srv.URL, Model: "gpt-4"})
	_, err := p.Complete(context.Background(), NewCompletionRequest([]Message{{Role: RoleUser, Content: "q"}}))
	require.Error(t, err)
}

func TestOpenAICompat_ContextDeadline(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	p := NewOpenAICompat(Config{BaseURL: srv.URL, Model: "gpt-4"})
	_, err := p.Complete(ctx, NewCompletionRequest([]Message{{Role: RoleUser, Content: "q"}}))
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestNewProvider(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantURL string
		wantErr bool
	}{
		{name: "openai default url", cfg: Config{Provider: "openai", Model: "gpt-4"}, wantURL: "https://api.openai.com"},
		{name: "ollama default url", cfg: Config{Provider: "Ollama", Model: "llama3"}, wantURL: "http://localhost:11434"},
		{name: "custom url", cfg: Config{Provider: "custom", Model: "m", BaseURL: "http://llm.internal/"}, wantURL: "http://llm.internal"},
		{name: "custom without url", cfg: Config{Provider: "custom", Model: "m"}, wantErr: true},
		{name: "missing provider", cfg: Config{Model: "m"}, wantErr: true},
		{name: "unknown provider", cfg: Config{Provider: "bard", Model: "m"}, wantErr: true},
		{name: "missing model", cfg: Config{Provider: "openai"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewProvider(tt.cfg)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			oc, ok := p.(*OpenAICompat)
			require.True(t, ok)
			assert.Equal(t, tt.wantURL, oc.cfg.BaseURL)
		})
	}
}
