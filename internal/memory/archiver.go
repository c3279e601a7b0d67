package memory

import (
	"context"
	"time"

	"github.com/dlyss/ai-agent-framework/internal/core"
	"github.com/dlyss/ai-agent-framework/pkg/log"
)

const drainTimeout = 10 * time.Second

// LongTermWriter is the slice of the store the archiver needs.
type LongTermWriter interface {
	Put(ctx context.Context, item core.MemoryItem) (core.MemoryItem, error)
	ReindexPending(ctx context.Context, batch int) (int, error)
}

// Archiver persists queued items to long-term memory off the request
// path. Enqueue never blocks: when the queue is full the item is dropped
// from the queue, which is safe because summarization re-covers dropped
// turns later. A ticker additionally heals catalog rows whose vector
// upsert failed.
type Archiver struct {
	store    LongTermWriter
	queue    chan core.MemoryItem
	interval time.Duration
	batch    int
}

func NewArchiver(store LongTermWriter, queueSize int, interval time.Duration, batch int) *Archiver {
	if queueSize <= 0 {
		queueSize = 256
	}
	return &Archiver{
		store:    store,
		queue:    make(chan core.MemoryItem, queueSize),
		interval: interval,
		batch:    batch,
	}
}

// Enqueue hands an item to the background worker. Returns false when the
// queue is full and the item was not accepted.
func (a *Archiver) Enqueue(ctx context.Context, item core.MemoryItem) bool {
	select {
	case a.queue <- item:
		return true
	default:
		log.FromCtx(ctx).Warn().
			Str("session_id", item.SessionID).
			Msg("archive queue full, dropping item")
		return false
	}
}

func (a *Archiver) Start(ctx context.Context) error {
	logger := log.With(ctx, "archiver")
	logger.Info().
		Dur("reindex_interval", a.interval).
		Msg("starting archiver")

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case item := <-a.queue:
			if _, err := a.store.Put(ctx, item); err != nil && !core.IsUnavailable(err) {
				logger.Error().Err(err).
					Str("session_id", item.SessionID).
					Msg("failed to archive item")
			}

		case <-ticker.C:
			healed, err := a.store.ReindexPending(ctx, a.batch)
			if err != nil {
				logger.Warn().Err(err).Msg("reindex pass failed")
				continue
			}
			if healed > 0 {
				logger.Info().Int("healed", healed).Msg("reindexed pending items")
			}
		}
	}
}

// Shutdown drains whatever Enqueue already accepted. The turns behind
// these items are marked archived in their buffers, so dropping them
// here would lose them to both the catalog and future summaries. Runs
// on a fresh deadline because the run context is cancelled by now.
func (a *Archiver) Shutdown(ctx context.Context) error {
	drainCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), drainTimeout)
	defer cancel()

	logger := log.With(ctx, "archiver")
	for {
		select {
		case item := <-a.queue:
			if _, err := a.store.Put(drainCtx, item); err != nil && !core.IsUnavailable(err) {
				logger.Error().Err(err).
					Str("session_id", item.SessionID).
					Msg("failed to archive item during drain")
			}
		default:
			return nil
		}
	}
}
