package main

import (
	"context"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/dlyss/ai-agent-framework/internal/assembler"
	"github.com/dlyss/ai-agent-framework/internal/config"
	"github.com/dlyss/ai-agent-framework/internal/core"
	"github.com/dlyss/ai-agent-framework/internal/memory"
	"github.com/dlyss/ai-agent-framework/internal/providers/embedder"
	"github.com/dlyss/ai-agent-framework/internal/providers/vector/chromem"
	"github.com/dlyss/ai-agent-framework/internal/retrieval"
	"github.com/dlyss/ai-agent-framework/internal/storage/sqlite"
	"github.com/dlyss/ai-agent-framework/pkg/log"
	"github.com/dlyss/ai-agent-framework/pkg/srv"
)

// App is the wired dependency graph of the daemon.
type App struct {
	Manager   *memory.Manager
	Assembler *assembler.Assembler
	Services  []srv.Service
}

// NewApp builds the full graph: storage, vector index, embedding
// provider, long-term store, manager, retriever, and assembler. The
// embedding provider can be swapped for graph construction in tests and
// the demo command.
func NewApp(ctx context.Context, provider core.EmbeddingProvider) *App {
	logger := log.FromCtx(ctx)

	if err := initEnv(ctx); err != nil {
		logger.Fatal().Err(err).Msg("failed to init env")
	}

	appCfg := config.NewAppConfig(ctx)
	memCfg := config.NewMemoryConfig(ctx)

	var services []srv.Service

	db, err := sqlite.NewDB(ctx, appCfg.GetDatabasePath())
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize storage")
	}
	services = append(services, srv.NewCleanup(db.Close))

	index, err := chromem.NewPersistent(appCfg.GetVectorPath())
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize vector index")
	}
	store := memory.NewStore(memCfg.Collection, sqlite.NewItemsRepo(db), index, provider)

	archiver := memory.NewArchiver(store, memCfg.ArchiveQueueSize, memCfg.ReindexInterval, memCfg.ReindexBatch)
	services = append(services, archiver)

	manager := memory.NewManager(
		memCfg,
		memory.NewHeuristicScorer(),
		memory.NewExtractiveCondenser(),
		store,
		archiver,
	)

	retriever, err := retrieval.New(memCfg.Collection, index, provider)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize retriever")
	}
	services = append(services, srv.NewCleanup(func() error {
		retriever.Close()
		return nil
	}))

	asm := assembler.New(manager, retriever, assembler.Options{
		Size:              assembler.TokenSize,
		ShortTermFraction: memCfg.ShortTermFraction,
		ScoreThreshold:    memCfg.ScoreThreshold,
	})

	services = append(services, newStatsReporter(manager, time.Minute))

	return &App{
		Manager:   manager,
		Assembler: asm,
		Services:  services,
	}
}

func NewServices(ctx context.Context) []srv.Service {
	embCfg := config.NewEmbedderConfig(ctx)
	return NewApp(ctx, embedder.NewOpenAI(embCfg)).Services
}

func initEnv(ctx context.Context) error {
	logger := log.FromCtx(ctx)
	envFile := config.NewAppConfig(ctx).GetEnvPath()

	if _, err := os.Stat(envFile); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	if err := godotenv.Load(envFile); err != nil {
		logger.Warn().Err(err).Str("path", envFile).Msg("failed to load .env file")
		return err
	}

	logger.Debug().Str("path", envFile).Msg("loaded .env file")
	return nil
}

// statsReporter periodically logs buffer occupancy.
type statsReporter struct {
	manager  *memory.Manager
	interval time.Duration
}

func newStatsReporter(manager *memory.Manager, interval time.Duration) *statsReporter {
	return &statsReporter{manager: manager, interval: interval}
}

func (s *statsReporter) Start(ctx context.Context) error {
	logger := log.With(ctx, "stats")
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			stats := s.manager.Stats()
			logger.Info().
				Int("sessions", stats.Sessions).
				Int("buffered_turns", stats.BufferedTurns).
				Msg("memory stats")
		}
	}
}

func (s *statsReporter) Shutdown(ctx context.Context) error { return nil }
