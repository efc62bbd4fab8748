package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCompletionRequest(t *testing.T) {
	messages := []Message{
		{Role: RoleSystem, Content: "You write Cypher."},
		{Role: RoleUser, Content: "Which customers hold mortgages?"},
	}

	req := NewCompletionRequest(messages, WithModel("gpt-4o"), WithTemperature(0))

	assert.Equal(t, messages, req.Messages)
	assert.Equal(t, "gpt-4o", req.Model)
	require.NotNil(t, req.Temperature)
	assert.Equal(t, 0.0, *req.Temperature)
	assert.Nil(t, req.MaxTokens)
}

func TestWithMaxTokens(t *testing.T) {
	req := NewCompletionRequest(nil, WithMaxTokens(512))
	require.NotNil(t, req.MaxTokens)
	assert.Equal(t, 512, *req.MaxTokens)
}

func TestCompletionResponse_Truncated(t *testing.T) {
	tests := []struct {
		reason string
		want   bool
	}{
		{"stop", false},
		{"", false},
		{"length", true},
		{"content_filter", false},
	}
	for _, tt := range tests {
		t.Run(tt.reason, func(t *testing.T) {
			r := &CompletionResponse{FinishReason: tt.reason}
			assert.Equal(t, tt.want, r.Truncated())
		})
	}
}

func TestTokenUsage_Add(t *testing.T) {
	a := TokenUsage{InputTokens: 100, OutputTokens: 50, TotalTokens: 150}
	b := TokenUsage{InputTokens: 10, OutputTokens: 5, TotalTokens: 15}

	assert.Equal(t, TokenUsage{InputTokens: 110, OutputTokens: 55, TotalTokens: 165}, a.Add(b))
	assert.Equal(t, TokenUsage{InputTokens: 100, OutputTokens: 50, TotalTokens: 150}, a, "Add must not modify its receiver")
}
