package llm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidMessages(t *testing.T) {
	tests := []struct {
		name string
		msgs []Message
		want int
	}{
		{"system and user", []Message{{Role: RoleSystem, Content: "s"}, {Role: RoleUser, Content: "u"}}, -1},
		{"assistant turn", []Message{{Role: RoleUser, Content: "u"}, {Role: RoleAssistant, Content: "a"}}, -1},
		{"tool role unsupported", []Message{{Role: RoleUser, Content: "u"}, {Role: "tool", Content: "t"}}, 1},
		{"empty content", []Message{{Role: RoleUser}}, 0},
		{"none", nil, -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, validMessages(tt.msgs))
		})
	}
}

func TestOpenAICompat_RejectsInvalidMessages(t *testing.T) {
	p := NewOpenAICompat(Config{BaseURL: "http://127.0.0.1:1", Model: "gpt-4"})

	_, err := p.Complete(context.Background(), NewCompletionRequest(nil))
	require.Error(t, err)

	_, err = p.Complete(context.Background(), NewCompletionRequest([]Message{{Role: "tool", Content: "x"}}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "index 0")
}
