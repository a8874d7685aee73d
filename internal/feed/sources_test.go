package feed

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectTool(t *testing.T) {
	tests := []struct {
		name        string
		title       string
		description string
		want        string
	}{
		{name: "title match", title: "ChatGPT gets memory", want: "chatgpt"},
		{name: "case insensitive", title: "CLAUDE 4 RELEASED", want: "claude"},
		{name: "match in description", title: "New model drops", description: "Gemini now supports video", want: "gemini"},
		{name: "multiple tools resolve by declared order", title: "ChatGPT and Claude both shipped updates", want: "chatgpt"},
		{name: "vendor name defers to product names", title: "OpenAI's answer to Claude", want: "claude"},
		{name: "no match", title: "Quantum computing breakthrough", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectTool(tt.title, tt.description))
		})
	}
}

func TestLoadSources(t *testing.T) {
	reader := strings.NewReader(`
sources:
  - name: "Custom Feed"
    url: "https://example.com/feed.xml"
    category: "Industry News"
`)
	sources, err := LoadSources(reader)
	require.NoError(t, err)
	require.Len(t, sources, 1)
	assert.Equal(t, "Custom Feed", sources[0].Name)
	assert.Equal(t, "https://example.com/feed.xml", sources[0].URL)
	assert.Equal(t, "Industry News", sources[0].Category)
}

func TestLoadSources_Empty(t *testing.T) {
	_, err := LoadSources(strings.NewReader(`sources: []`))
	assert.Error(t, err)
}

func TestLoadSources_MissingURL(t *testing.T) {
	_, err := LoadSources(strings.NewReader(`
sources:
  - name: "No URL"
    category: "Industry News"
`))
	assert.Error(t, err)
}
