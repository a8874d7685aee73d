package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/dkovacevic/toolpulse/internal/enrich"
	"github.com/dkovacevic/toolpulse/internal/feed"
	"github.com/dkovacevic/toolpulse/pkg/config/env"
)

type AppConfig struct {
	DatabaseURL string
	Generation  enrich.ClientConfig
	Sources     []feed.Source
}

func LoadAppConfig() (*AppConfig, error) {
	_ = env.LoadDotEnv("cmd/api/.env")

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	cfg := &AppConfig{
		DatabaseURL: dbURL,
		Generation:  loadGenerationConfig(),
		Sources:     loadSources(),
	}
	return cfg, nil
}

// loadGenerationConfig reads the LLM credential. An empty key is valid:
// the pipeline runs without enrichment.
func loadGenerationConfig() enrich.ClientConfig {
	endpoint := os.Getenv("GENERATION_ENDPOINT")
	if endpoint == "" {
		endpoint = "https://api.openai.com/v1/chat/completions"
	}
	model := os.Getenv("GENERATION_MODEL")
	if model == "" {
		model = "gpt-4o-mini"
	}
	return enrich.ClientConfig{
		Endpoint: endpoint,
		Model:    model,
		APIKey:   os.Getenv("GENERATION_API_KEY"),
	}
}

// loadSources returns the compiled-in feed table unless SOURCES_FILE
// points at a YAML override.
func loadSources() []feed.Source {
	path := os.Getenv("SOURCES_FILE")
	if path == "" {
		return feed.DefaultSources
	}

	f, err := os.Open(path)
	if err != nil {
		slog.Warn("cannot open sources file, using defaults", "path", path, "error", err)
		return feed.DefaultSources
	}
	defer f.Close()

	sources, err := feed.LoadSources(f)
	if err != nil {
		slog.Warn("cannot parse sources file, using defaults", "path", path, "error", err)
		return feed.DefaultSources
	}
	return sources
}
