package memory

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dlyss/ai-agent-framework/internal/core"
	"github.com/dlyss/ai-agent-framework/internal/providers/embedder/mock"
	"github.com/dlyss/ai-agent-framework/internal/storage/sqlite"
)

// stubIndex records upserts and serves canned neighbors so tests control
// similarity scores exactly.
type stubIndex struct {
	docs      map[string]core.IndexDoc
	neighbors []core.Neighbor

	createFails int
	upsertErr   error
	queryErr    error
	deleted     []string
}

func newStubIndex() *stubIndex {
	return &stubIndex{docs: make(map[string]core.IndexDoc)}
}

func (s *stubIndex) CreateCollection(context.Context, string, int) error {
	if s.createFails > 0 {
		s.createFails--
		return &core.UnavailableError{Op: "create collection", Err: errors.New("down")}
	}
	return nil
}

func (s *stubIndex) Upsert(_ context.Context, _ string, docs []core.IndexDoc) error {
	if s.upsertErr != nil {
		return s.upsertErr
	}
	for _, d := range docs {
		s.docs[d.ID] = d
	}
	return nil
}

func (s *stubIndex) Query(context.Context, string, []float32, int, map[string]string) ([]core.Neighbor, error) {
	if s.queryErr != nil {
		return nil, s.queryErr
	}
	return s.neighbors, nil
}

func (s *stubIndex) Delete(_ context.Context, _ string, ids []string) error {
	s.deleted = append(s.deleted, ids...)
	return nil
}

func newTestStore(t *testing.T, index core.VectorIndex) (*Store, *sqlite.ItemsRepo) {
	t.Helper()

	db, err := sqlite.NewDB(context.Background(), filepath.Join(t.TempDir(), "memory.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	repo := sqlite.NewItemsRepo(db)
	return NewStore("long_term_memory", repo, index, mock.New(8)), repo
}

func TestStorePutAssignsIDAndIndexes(t *testing.T) {
	index := newStubIndex()
	store, repo := newTestStore(t, index)
	ctx := context.Background()

	stored, err := store.Put(ctx, core.MemoryItem{
		SessionID:  "s1",
		Content:    "user prefers dark mode",
		Importance: 0.7,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, stored.ID)
	assert.False(t, stored.CreatedAt.IsZero())
	assert.NotEmpty(t, stored.Embedding)

	// The vector document carries the flattened metadata.
	doc, ok := index.docs[stored.ID]
	require.True(t, ok)
	assert.Equal(t, "s1", doc.Metadata[core.MetaSessionID])

	// The catalog row is marked indexed, so nothing is pending.
	pending, err := repo.ListUnindexed(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestStorePutValidates(t *testing.T) {
	store, _ := newTestStore(t, newStubIndex())
	ctx := context.Background()

	_, err := store.Put(ctx, core.MemoryItem{Content: "  ", Importance: 0.5})
	assert.True(t, core.IsValidation(err))

	_, err = store.Put(ctx, core.MemoryItem{Content: "ok", Importance: 1.5})
	assert.True(t, core.IsValidation(err))
}

func TestStorePutJournalsOnIndexFailure(t *testing.T) {
	index := newStubIndex()
	index.upsertErr = &core.UnavailableError{Op: "vector upsert", Err: errors.New("down")}
	store, repo := newTestStore(t, index)
	ctx := context.Background()

	stored, err := store.Put(ctx, core.MemoryItem{Content: "to be healed", Importance: 0.8})
	require.Error(t, err)
	assert.True(t, core.IsUnavailable(err))

	// The row is durable despite the index being down.
	got, err := repo.GetByID(ctx, stored.ID)
	require.NoError(t, err)
	assert.Equal(t, "to be healed", got.Content)

	pending, err := repo.ListUnindexed(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	// Once the index recovers, the rescue pass heals the row.
	index.upsertErr = nil
	healed, err := store.ReindexPending(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, healed)

	pending, err = repo.ListUnindexed(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
	assert.Contains(t, index.docs, stored.ID)
}

func TestStorePutSameIDOverwrites(t *testing.T) {
	index := newStubIndex()
	store, _ := newTestStore(t, index)
	ctx := context.Background()

	first, err := store.Put(ctx, core.MemoryItem{ID: "fixed", Content: "v1 content", Importance: 0.5})
	require.NoError(t, err)

	second, err := store.Put(ctx, core.MemoryItem{ID: "fixed", Content: "v2 content", Importance: 0.6})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	// Exactly one retrievable item, with the second call's content.
	got, err := store.Get(ctx, "fixed")
	require.NoError(t, err)
	assert.Equal(t, "v2 content", got.Content)
	assert.Equal(t, 0.6, got.Importance)

	items, err := store.ByImportance(ctx, 0, 10)
	require.NoError(t, err)
	assert.Len(t, items, 1)

	require.Len(t, index.docs, 1)
	assert.Equal(t, "v2 content", index.docs["fixed"].Content)
}

func TestStoreRecoversFromCreateCollectionOutage(t *testing.T) {
	index := newStubIndex()
	index.createFails = 1
	store, repo := newTestStore(t, index)
	ctx := context.Background()

	// First write hits the outage; the row is journaled, not lost.
	stored, err := store.Put(ctx, core.MemoryItem{Content: "early bird", Importance: 0.7})
	require.Error(t, err)
	assert.True(t, core.IsUnavailable(err))

	pending, err := repo.ListUnindexed(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	// The index is back: later writes must not see a stale error.
	later, err := store.Put(ctx, core.MemoryItem{Content: "after recovery", Importance: 0.7})
	require.NoError(t, err)
	assert.Contains(t, index.docs, later.ID)

	// And the rescue pass heals the journaled row too.
	healed, err := store.ReindexPending(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, healed)
	assert.Contains(t, index.docs, stored.ID)
}

func TestStoreSearchFiltersAndRanks(t *testing.T) {
	index := newStubIndex()
	store, _ := newTestStore(t, index)
	ctx := context.Background()

	a, err := store.Put(ctx, core.MemoryItem{Content: "alpha fact", Importance: 0.5})
	require.NoError(t, err)
	b, err := store.Put(ctx, core.MemoryItem{Content: "beta fact", Importance: 0.5})
	require.NoError(t, err)

	index.neighbors = []core.Neighbor{
		{ID: a.ID, Score: 0.4, Content: a.Content},
		{ID: b.ID, Score: 0.9, Content: b.Content},
		{ID: "below", Score: 0.1, Content: "noise"},
	}

	results, err := store.Search(ctx, "fact", 5, 0.35, nil)
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, b.ID, results[0].Item.ID)
	assert.Equal(t, 0.9, results[0].Score)
	assert.Equal(t, 1, results[0].Rank)
	assert.Equal(t, a.ID, results[1].Item.ID)
	assert.Equal(t, 2, results[1].Rank)
}

func TestStoreSearchHydratesFromNeighborWhenRowMissing(t *testing.T) {
	index := newStubIndex()
	store, _ := newTestStore(t, index)
	ctx := context.Background()

	index.neighbors = []core.Neighbor{{
		ID:      "ghost",
		Score:   0.8,
		Content: "index-only item",
		Metadata: map[string]string{
			core.MetaSessionID:  "s9",
			core.MetaImportance: "0.6",
		},
	}}

	results, err := store.Search(ctx, "anything", 5, 0.35, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "index-only item", results[0].Item.Content)
	assert.Equal(t, "s9", results[0].Item.SessionID)
	assert.Equal(t, 0.6, results[0].Item.Importance)
}

func TestStoreSearchValidates(t *testing.T) {
	store, _ := newTestStore(t, newStubIndex())
	ctx := context.Background()

	_, err := store.Search(ctx, "", 5, 0, nil)
	assert.True(t, core.IsValidation(err))

	_, err = store.Search(ctx, "q", 0, 0, nil)
	assert.True(t, core.IsValidation(err))
}

func TestStoreByImportance(t *testing.T) {
	store, _ := newTestStore(t, newStubIndex())
	ctx := context.Background()

	now := time.Now().UTC()
	for _, it := range []core.MemoryItem{
		{Content: "low", Importance: 0.2, CreatedAt: now},
		{Content: "mid", Importance: 0.6, CreatedAt: now},
		{Content: "high", Importance: 0.9, CreatedAt: now},
	} {
		_, err := store.Put(ctx, it)
		require.NoError(t, err)
	}

	items, err := store.ByImportance(ctx, 0.5, 10)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "high", items[0].Content)
	assert.Equal(t, "mid", items[1].Content)

	_, err = store.ByImportance(ctx, -0.1, 10)
	assert.True(t, core.IsValidation(err))
}

func TestStoreDelete(t *testing.T) {
	index := newStubIndex()
	store, _ := newTestStore(t, index)
	ctx := context.Background()

	stored, err := store.Put(ctx, core.MemoryItem{Content: "ephemeral", Importance: 0.3})
	require.NoError(t, err)

	require.NoError(t, store.Delete(ctx, []string{stored.ID}))

	_, err = store.Get(ctx, stored.ID)
	assert.True(t, core.IsNotFound(err))
	assert.Contains(t, index.deleted, stored.ID)

	// Deleting nothing is a no-op.
	assert.NoError(t, store.Delete(ctx, nil))
}
