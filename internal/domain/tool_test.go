package domain

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToolMapping_Lookup(t *testing.T) {
	chatgpt := uuid.New()
	claude := uuid.New()
	m := NewToolMapping([]Tool{
		{ID: chatgpt, Slug: "chatgpt", Name: "ChatGPT"},
		{ID: claude, Slug: "claude", Name: "Claude"},
	})

	assert.Equal(t, 4, m.Len(), "each tool indexes under name and slug")

	id, ok := m.Lookup("chatgpt")
	require.True(t, ok)
	assert.Equal(t, chatgpt, id)

	id, ok = m.Lookup("  CLAUDE ")
	require.True(t, ok, "lookup is case-insensitive and trims whitespace")
	assert.Equal(t, claude, id)

	_, ok = m.Lookup("gemini")
	assert.False(t, ok)

	_, ok = m.Lookup("")
	assert.False(t, ok)
}

func TestToolMapping_NilSafe(t *testing.T) {
	var m *ToolMapping
	assert.Equal(t, 0, m.Len())
	_, ok := m.Lookup("chatgpt")
	assert.False(t, ok)
}
