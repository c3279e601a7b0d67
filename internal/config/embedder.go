package config

import (
	"context"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/dlyss/ai-agent-framework/pkg/log"
)

type EmbedderConfig struct {
	BaseURL    string        `env:"EMBEDDER_BASE_URL" envDefault:"http://localhost:8080"`
	APIKey     string        `env:"EMBEDDER_API_KEY"`
	Model      string        `env:"EMBEDDER_MODEL" envDefault:"intfloat/e5-base-v2"`
	Dimensions int           `env:"EMBEDDER_DIMENSIONS" envDefault:"768"`
	Timeout    time.Duration `env:"EMBEDDER_TIMEOUT" envDefault:"10s"`

	// e5-style models expect asymmetric prefixes for queries vs passages.
	QueryPrefix   string `env:"EMBEDDER_QUERY_PREFIX" envDefault:"query: "`
	PassagePrefix string `env:"EMBEDDER_PASSAGE_PREFIX" envDefault:"passage: "`
}

func NewEmbedderConfig(ctx context.Context) *EmbedderConfig {
	c := &EmbedderConfig{}
	if err := env.Parse(c); err != nil {
		log.FromCtx(ctx).Fatal().Err(err).Msg("failed to parse embedder config")
	}
	return c
}
