package config

import (
	"context"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/dlyss/ai-agent-framework/pkg/log"
)

type MemoryConfig struct {
	// Short-term buffer capacity, in turns.
	ShortTermSize int `env:"MEMORY_SHORT_TERM_SIZE" envDefault:"10"`

	// Turns scoring at or above this are promoted to long-term memory.
	ArchiveThreshold float64 `env:"MEMORY_ARCHIVE_THRESHOLD" envDefault:"0.6"`

	// Vector collection holding long-term items.
	Collection string `env:"MEMORY_COLLECTION" envDefault:"long_term_memory"`

	// Minimum similarity for retrieval results.
	ScoreThreshold float64 `env:"MEMORY_SCORE_THRESHOLD" envDefault:"0.35"`

	// Neighbors requested per retrieval query.
	RetrievalK int `env:"MEMORY_RETRIEVAL_K" envDefault:"5"`

	// Fraction of the context budget reserved for recent turns.
	ShortTermFraction float64 `env:"CONTEXT_SHORT_TERM_FRACTION" envDefault:"0.4"`

	ArchiveQueueSize int           `env:"MEMORY_ARCHIVE_QUEUE_SIZE" envDefault:"256"`
	ReindexInterval  time.Duration `env:"MEMORY_REINDEX_INTERVAL" envDefault:"30s"`
	ReindexBatch     int           `env:"MEMORY_REINDEX_BATCH" envDefault:"50"`
}

func NewMemoryConfig(ctx context.Context) *MemoryConfig {
	c := &MemoryConfig{}
	if err := env.Parse(c); err != nil {
		log.FromCtx(ctx).Fatal().Err(err).Msg("failed to parse memory config")
	}
	return c
}
