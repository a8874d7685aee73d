package main

import (
	"fmt"
	"os"

	"github.com/dkovacevic/toolpulse/internal/enrich"
	"github.com/dkovacevic/toolpulse/pkg/config/env"
)

type WorkerConfig struct {
	DatabaseURL string
	Generation  enrich.ClientConfig
	XFeedURL    string
}

func LoadWorkerConfig() (*WorkerConfig, error) {
	_ = env.LoadDotEnv("cmd/worker/.env")

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	endpoint := os.Getenv("GENERATION_ENDPOINT")
	if endpoint == "" {
		endpoint = "https://api.openai.com/v1/chat/completions"
	}
	model := os.Getenv("GENERATION_MODEL")
	if model == "" {
		model = "gpt-4o-mini"
	}

	return &WorkerConfig{
		DatabaseURL: dbURL,
		Generation: enrich.ClientConfig{
			Endpoint: endpoint,
			Model:    model,
			APIKey:   os.Getenv("GENERATION_API_KEY"),
		},
		XFeedURL: os.Getenv("X_FEED_URL"),
	}, nil
}
