package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dlyss/ai-agent-framework/internal/core"
	"github.com/dlyss/ai-agent-framework/pkg/log"
	"github.com/dlyss/ai-agent-framework/pkg/retry"
)

// Catalog is the durable record of archived items. The sqlite ItemsRepo
// is the production implementation.
type Catalog interface {
	Upsert(ctx context.Context, item core.MemoryItem, indexed bool) error
	GetByID(ctx context.Context, id string) (core.MemoryItem, error)
	GetByIDs(ctx context.Context, ids []string) (map[string]core.MemoryItem, error)
	ByImportance(ctx context.Context, minImportance float64, limit int) ([]core.MemoryItem, error)
	DeleteByIDs(ctx context.Context, ids []string) error
	ListUnindexed(ctx context.Context, limit int) ([]core.MemoryItem, error)
	MarkIndexed(ctx context.Context, id string) error
}

// Store is the long-term memory layer. Writes land in the catalog first
// (with the row journaled as unindexed) and are then embedded and pushed
// to the vector index, so a provider outage never loses an item. The
// rescue path, ReindexPending, finishes whatever the write path could not.
type Store struct {
	collection string
	catalog    Catalog
	index      core.VectorIndex
	embedder   core.EmbeddingProvider
	retrier    *retry.Retrier

	ensureMu sync.Mutex
	ensured  bool
}

func NewStore(collection string, catalog Catalog, index core.VectorIndex, embedder core.EmbeddingProvider) *Store {
	return &Store{
		collection: collection,
		catalog:    catalog,
		index:      index,
		embedder:   embedder,
		retrier:    retry.New(retry.DefaultPolicy(), core.IsUnavailable),
	}
}

// ensureCollection creates the collection on first use. Only success is
// latched: a transient failure here must not poison later calls, or the
// reindex rescue loop could never recover from an index outage.
func (s *Store) ensureCollection(ctx context.Context) error {
	s.ensureMu.Lock()
	defer s.ensureMu.Unlock()

	if s.ensured {
		return nil
	}
	if err := s.index.CreateCollection(ctx, s.collection, s.embedder.Dimensions()); err != nil {
		return err
	}
	s.ensured = true
	return nil
}

// Put validates, persists, and indexes one item. Returns the stored item
// with its assigned id. A transient embedding or index failure still
// leaves the item durable in the catalog and returns *UnavailableError;
// callers may treat that as deferred rather than failed.
func (s *Store) Put(ctx context.Context, item core.MemoryItem) (core.MemoryItem, error) {
	if strings.TrimSpace(item.Content) == "" {
		return core.MemoryItem{}, &core.ValidationError{Field: "content", Reason: "must not be empty"}
	}
	if item.Importance < 0 || item.Importance > 1 {
		return core.MemoryItem{}, &core.ValidationError{Field: "importance", Reason: "must be in [0, 1]"}
	}

	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC()
	}

	if err := s.catalog.Upsert(ctx, item, false); err != nil {
		return core.MemoryItem{}, err
	}

	if err := s.indexItem(ctx, &item); err != nil {
		log.FromCtx(ctx).Warn().Err(err).
			Str("id", item.ID).
			Msg("item journaled but not indexed yet")
		return item, err
	}
	return item, nil
}

// indexItem embeds (if needed) and upserts the vector document, marking
// the catalog row indexed on success. Mutates item.Embedding.
func (s *Store) indexItem(ctx context.Context, item *core.MemoryItem) error {
	if err := s.ensureCollection(ctx); err != nil {
		return err
	}

	if item.Embedding == nil {
		err := s.retrier.Do(ctx, func(ctx context.Context) error {
			vec, err := s.embedder.EmbedPassage(ctx, item.Content)
			if err != nil {
				return err
			}
			item.Embedding = vec
			return nil
		})
		if err != nil {
			return err
		}
		// Persist the vector so the rescue loop skips re-embedding.
		if err := s.catalog.Upsert(ctx, *item, false); err != nil {
			return err
		}
	}

	err := s.retrier.Do(ctx, func(ctx context.Context) error {
		return s.index.Upsert(ctx, s.collection, []core.IndexDoc{item.IndexDoc()})
	})
	if err != nil {
		return err
	}
	return s.catalog.MarkIndexed(ctx, item.ID)
}

// Search embeds the query and returns items ranked by similarity,
// filtered to score >= scoreThreshold. Filters narrow by metadata
// (session_id is the common one). Results are hydrated from the catalog
// when a row exists, falling back to the index's copy otherwise.
func (s *Store) Search(ctx context.Context, query string, k int, scoreThreshold float64, filters map[string]string) ([]core.RetrievalResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, &core.ValidationError{Field: "query", Reason: "must not be empty"}
	}
	if k <= 0 {
		return nil, &core.ValidationError{Field: "k", Reason: "must be positive"}
	}
	if err := s.ensureCollection(ctx); err != nil {
		return nil, err
	}

	var vec []float32
	err := s.retrier.Do(ctx, func(ctx context.Context) error {
		var err error
		vec, err = s.embedder.EmbedQuery(ctx, query)
		return err
	})
	if err != nil {
		return nil, err
	}

	var neighbors []core.Neighbor
	err = s.retrier.Do(ctx, func(ctx context.Context) error {
		var err error
		neighbors, err = s.index.Query(ctx, s.collection, vec, k, filters)
		return err
	})
	if err != nil {
		return nil, err
	}

	kept := neighbors[:0]
	ids := make([]string, 0, len(neighbors))
	for _, n := range neighbors {
		if n.Score < scoreThreshold {
			continue
		}
		kept = append(kept, n)
		ids = append(ids, n.ID)
	}

	rows, err := s.catalog.GetByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	results := make([]core.RetrievalResult, 0, len(kept))
	for _, n := range kept {
		item, ok := rows[n.ID]
		if !ok {
			item = core.ItemFromNeighbor(n)
		}
		results = append(results, core.RetrievalResult{Item: item, Score: n.Score})
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Item.CreatedAt.After(results[j].Item.CreatedAt)
	})
	for i := range results {
		results[i].Rank = i + 1
	}
	return results, nil
}

// ByImportance returns items at or above minImportance, most important
// first. Served straight from the catalog; no embedding involved.
func (s *Store) ByImportance(ctx context.Context, minImportance float64, limit int) ([]core.MemoryItem, error) {
	if minImportance < 0 || minImportance > 1 {
		return nil, &core.ValidationError{Field: "min_importance", Reason: "must be in [0, 1]"}
	}
	if limit <= 0 {
		return nil, &core.ValidationError{Field: "limit", Reason: "must be positive"}
	}
	return s.catalog.ByImportance(ctx, minImportance, limit)
}

func (s *Store) Get(ctx context.Context, id string) (core.MemoryItem, error) {
	return s.catalog.GetByID(ctx, id)
}

// Delete removes items from the catalog and the index. Missing ids are
// ignored; a missing collection means there is nothing to unindex.
func (s *Store) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := s.catalog.DeleteByIDs(ctx, ids); err != nil {
		return err
	}

	err := s.index.Delete(ctx, s.collection, ids)
	if err != nil && !core.IsCollectionMissing(err) {
		return err
	}
	return nil
}

// ReindexPending pushes journaled catalog rows into the vector index,
// at most batch of them. Returns how many were healed. Per-item failures
// are logged and skipped so one poisoned row cannot stall the rest.
func (s *Store) ReindexPending(ctx context.Context, batch int) (int, error) {
	items, err := s.catalog.ListUnindexed(ctx, batch)
	if err != nil {
		return 0, err
	}

	healed := 0
	for i := range items {
		if err := s.indexItem(ctx, &items[i]); err != nil {
			log.FromCtx(ctx).Warn().Err(err).
				Str("id", items[i].ID).
				Msg("reindex attempt failed")
			continue
		}
		healed++
	}
	return healed, nil
}
