package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dlyss/ai-agent-framework/internal/config"
	"github.com/dlyss/ai-agent-framework/internal/core"
)

type stubLongTerm struct {
	mu      sync.Mutex
	puts    []core.MemoryItem
	results []core.RetrievalResult
	putErr  error
}

func (s *stubLongTerm) Put(_ context.Context, item core.MemoryItem) (core.MemoryItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.putErr != nil {
		return core.MemoryItem{}, s.putErr
	}
	item.ID = "stored"
	s.puts = append(s.puts, item)
	return item, nil
}

func (s *stubLongTerm) Search(context.Context, string, int, float64, map[string]string) ([]core.RetrievalResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.results, nil
}

type stubQueue struct {
	mu    sync.Mutex
	items []core.MemoryItem
	full  bool
}

func (q *stubQueue) Enqueue(_ context.Context, item core.MemoryItem) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.full {
		return false
	}
	q.items = append(q.items, item)
	return true
}

func testConfig() *config.MemoryConfig {
	return &config.MemoryConfig{
		ShortTermSize:    10,
		ArchiveThreshold: 0.6,
		Collection:       "long_term_memory",
		ScoreThreshold:   0.35,
		RetrievalK:       5,
	}
}

func newTestManager(cfg *config.MemoryConfig, longTerm LongTerm, queue ArchiveQueue) *Manager {
	return NewManager(cfg, NewHeuristicScorer(), NewExtractiveCondenser(), longTerm, queue)
}

func TestManagerRecordTurnValidates(t *testing.T) {
	m := newTestManager(testConfig(), &stubLongTerm{}, nil)
	ctx := context.Background()

	err := m.RecordTurn(ctx, "", core.Turn{Role: core.RoleUser, Content: "hi"})
	assert.True(t, core.IsValidation(err))

	err = m.RecordTurn(ctx, "s1", core.Turn{Role: "robot", Content: "hi"})
	assert.True(t, core.IsValidation(err))

	err = m.RecordTurn(ctx, "s1", core.Turn{Role: core.RoleUser, Content: "   "})
	assert.True(t, core.IsValidation(err))
}

func TestManagerHistoryUnknownSession(t *testing.T) {
	m := newTestManager(testConfig(), &stubLongTerm{}, nil)

	_, err := m.History(context.Background(), "nope", 5)
	assert.True(t, core.IsNotFound(err))
}

func TestManagerArchivesAboveThreshold(t *testing.T) {
	queue := &stubQueue{}
	m := newTestManager(testConfig(), &stubLongTerm{}, queue)
	ctx := context.Background()

	// Below threshold: a short assistant turn.
	require.NoError(t, m.RecordTurn(ctx, "s1", core.Turn{Role: core.RoleAssistant, Content: "ok"}))
	assert.Empty(t, queue.items)

	// Above threshold: an explicit hint.
	require.NoError(t, m.RecordTurn(ctx, "s1", core.Turn{
		Role: core.RoleUser, Content: "my address is 5 Main St", ImportanceHint: 0.9,
	}))
	require.Len(t, queue.items, 1)
	assert.Equal(t, "s1", queue.items[0].SessionID)
	assert.Equal(t, 0.9, queue.items[0].Importance)
	assert.Equal(t, "turn", queue.items[0].Metadata["kind"])
	assert.Equal(t, core.RoleUser, queue.items[0].Metadata["role"])

	// Auto-archived turns are excluded from later summaries.
	buf, ok := m.session("s1")
	require.True(t, ok)
	pending := buf.OldestUnarchived(10)
	require.Len(t, pending, 1)
	assert.Equal(t, "ok", pending[0].Turn.Content)
}

func TestManagerQueueFullLeavesTurnForSummary(t *testing.T) {
	queue := &stubQueue{full: true}
	m := newTestManager(testConfig(), &stubLongTerm{}, queue)
	ctx := context.Background()

	require.NoError(t, m.RecordTurn(ctx, "s1", core.Turn{
		Role: core.RoleUser, Content: "critical", ImportanceHint: 1,
	}))

	buf, _ := m.session("s1")
	assert.Len(t, buf.OldestUnarchived(10), 1)
}

func TestManagerConversationLifecycle(t *testing.T) {
	cfg := testConfig()
	cfg.ShortTermSize = 2
	longTerm := &stubLongTerm{}
	m := newTestManager(cfg, longTerm, nil)
	ctx := context.Background()

	require.NoError(t, m.RecordTurn(ctx, "s1", core.Turn{Role: core.RoleUser, Content: "Hi"}))
	require.NoError(t, m.RecordTurn(ctx, "s1", core.Turn{Role: core.RoleAssistant, Content: "Hello, how can I help?"}))
	require.NoError(t, m.RecordTurn(ctx, "s1", core.Turn{Role: core.RoleUser, Content: "My order #42 is late"}))

	// Capacity two keeps only the last two turns.
	history, err := m.History(ctx, "s1", 10)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "Hello, how can I help?", history[0].Content)
	assert.Equal(t, "My order #42 is late", history[1].Content)

	// Summarizing persists one condensed item covering both turns.
	item, ok, err := m.SummarizeAndArchive(ctx, "s1", 0)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "summary", item.Metadata["kind"])
	assert.Equal(t, "2,3", item.Metadata["source_turns"])
	assert.Contains(t, item.Content, "My order #42 is late")
	require.Len(t, longTerm.puts, 1)

	// The buffer still serves history after summarization.
	history, err = m.History(ctx, "s1", 10)
	require.NoError(t, err)
	assert.Len(t, history, 2)

	// A second summarize finds nothing new.
	_, ok, err = m.SummarizeAndArchive(ctx, "s1", 0)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestManagerSummaryInheritsMaxImportance(t *testing.T) {
	cfg := testConfig()
	cfg.ArchiveThreshold = 1.1 // keep everything in the buffer
	longTerm := &stubLongTerm{}
	m := newTestManager(cfg, longTerm, nil)
	ctx := context.Background()

	require.NoError(t, m.RecordTurn(ctx, "s1", core.Turn{Role: core.RoleUser, Content: "a", ImportanceHint: 0.3}))
	require.NoError(t, m.RecordTurn(ctx, "s1", core.Turn{Role: core.RoleUser, Content: "b", ImportanceHint: 0.8}))

	item, ok, err := m.SummarizeAndArchive(ctx, "s1", 0)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 0.8, item.Importance)
}

func TestManagerArchivePromotesAboveCutoff(t *testing.T) {
	cfg := testConfig()
	cfg.ArchiveThreshold = 1.1 // disable the automatic path
	longTerm := &stubLongTerm{}
	m := newTestManager(cfg, longTerm, nil)
	ctx := context.Background()

	require.NoError(t, m.RecordTurn(ctx, "s1", core.Turn{Role: core.RoleUser, Content: "keep me", ImportanceHint: 0.8}))
	require.NoError(t, m.RecordTurn(ctx, "s1", core.Turn{Role: core.RoleUser, Content: "skip me", ImportanceHint: 0.2}))

	archived, err := m.Archive(ctx, "s1", 0, 0.5)
	require.NoError(t, err)
	assert.Equal(t, 1, archived)
	require.Len(t, longTerm.puts, 1)
	assert.Equal(t, "keep me", longTerm.puts[0].Content)
	assert.Equal(t, "turn", longTerm.puts[0].Metadata["kind"])

	// Promoted turns are not re-archived; the low scorer stays pending.
	archived, err = m.Archive(ctx, "s1", 0, 0.5)
	require.NoError(t, err)
	assert.Equal(t, 0, archived)

	buf, _ := m.session("s1")
	pending := buf.OldestUnarchived(10)
	require.Len(t, pending, 1)
	assert.Equal(t, "skip me", pending[0].Turn.Content)

	// A later summary covers what promotion left behind.
	item, ok, err := m.SummarizeAndArchive(ctx, "s1", 0)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Contains(t, item.Content, "skip me")
	assert.NotContains(t, item.Content, "keep me")
}

func TestManagerArchiveValidates(t *testing.T) {
	m := newTestManager(testConfig(), &stubLongTerm{}, nil)
	ctx := context.Background()

	_, err := m.Archive(ctx, "s1", 0, 1.5)
	assert.True(t, core.IsValidation(err))

	_, err = m.Archive(ctx, "nope", 0, 0.5)
	assert.True(t, core.IsNotFound(err))
}

func TestManagerSummarizeRespectsMaxItems(t *testing.T) {
	cfg := testConfig()
	cfg.ArchiveThreshold = 1.1
	longTerm := &stubLongTerm{}
	m := newTestManager(cfg, longTerm, nil)
	ctx := context.Background()

	require.NoError(t, m.RecordTurn(ctx, "s1", core.Turn{Role: core.RoleUser, Content: "first"}))
	require.NoError(t, m.RecordTurn(ctx, "s1", core.Turn{Role: core.RoleUser, Content: "second"}))

	item, ok, err := m.SummarizeAndArchive(ctx, "s1", 1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Contains(t, item.Content, "first")
	assert.NotContains(t, item.Content, "second")

	// The remaining turn is picked up by the next pass.
	item, ok, err = m.SummarizeAndArchive(ctx, "s1", 1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Contains(t, item.Content, "second")
}

func TestManagerSummarizeUnknownSession(t *testing.T) {
	m := newTestManager(testConfig(), &stubLongTerm{}, nil)

	_, _, err := m.SummarizeAndArchive(context.Background(), "nope", 0)
	assert.True(t, core.IsNotFound(err))
}

func TestManagerSearchAllMergesAndDedupes(t *testing.T) {
	longTerm := &stubLongTerm{
		results: []core.RetrievalResult{
			{Item: core.MemoryItem{ID: "lt1", Content: "order #42 shipped yesterday"}, Score: 0.8},
			// Same content as a buffered turn, lower score: collapses.
			{Item: core.MemoryItem{ID: "lt2", Content: "my ORDER  #42 is late"}, Score: 0.7},
		},
	}
	m := newTestManager(testConfig(), longTerm, nil)
	ctx := context.Background()

	require.NoError(t, m.RecordTurn(ctx, "s1", core.Turn{Role: core.RoleUser, Content: "my order #42 is late"}))

	results, err := m.SearchAll(ctx, "s1", "order", 10, true)
	require.NoError(t, err)
	require.Len(t, results, 2)

	// The short-term copy wins the duplicate and ranks first.
	assert.Equal(t, 1.0, results[0].Score)
	assert.Equal(t, "my order #42 is late", results[0].Item.Content)
	assert.Equal(t, 1, results[0].Rank)
	assert.Equal(t, "lt1", results[1].Item.ID)
	assert.Equal(t, 2, results[1].Rank)
}

func TestManagerSearchAllEqualScoresOrderByRecency(t *testing.T) {
	now := time.Now().UTC()
	longTerm := &stubLongTerm{
		results: []core.RetrievalResult{
			{Item: core.MemoryItem{ID: "older", Content: "order note a", CreatedAt: now.Add(-time.Hour)}, Score: 0.8},
			{Item: core.MemoryItem{ID: "newer", Content: "order note b", CreatedAt: now}, Score: 0.8},
		},
	}
	m := newTestManager(testConfig(), longTerm, nil)

	results, err := m.SearchAll(context.Background(), "s1", "order", 10, true)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "newer", results[0].Item.ID)
	assert.Equal(t, "older", results[1].Item.ID)
}

func TestManagerSearchAllShortTermOnly(t *testing.T) {
	longTerm := &stubLongTerm{
		results: []core.RetrievalResult{{Item: core.MemoryItem{ID: "lt1", Content: "x"}, Score: 0.9}},
	}
	m := newTestManager(testConfig(), longTerm, nil)
	ctx := context.Background()

	require.NoError(t, m.RecordTurn(ctx, "s1", core.Turn{Role: core.RoleUser, Content: "buffered note"}))

	results, err := m.SearchAll(ctx, "s1", "note", 10, false)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "buffered note", results[0].Item.Content)

	_, err = m.SearchAll(ctx, "s1", "", 10, false)
	assert.True(t, core.IsValidation(err))
}

func TestManagerClearIsIdempotent(t *testing.T) {
	m := newTestManager(testConfig(), &stubLongTerm{}, nil)
	ctx := context.Background()

	m.Clear(ctx, "never-seen")

	require.NoError(t, m.RecordTurn(ctx, "s1", core.Turn{Role: core.RoleUser, Content: "hi"}))
	m.Clear(ctx, "s1")

	history, err := m.History(ctx, "s1", 10)
	require.NoError(t, err)
	assert.Empty(t, history)

	m.Clear(ctx, "s1")
}

func TestManagerWindowAndStats(t *testing.T) {
	m := newTestManager(testConfig(), &stubLongTerm{}, nil)
	ctx := context.Background()

	assert.Nil(t, m.Window("nope", 100, core.RuneSize))

	require.NoError(t, m.RecordExchange(ctx, "s1", "what is the weather", "sunny"))
	require.NoError(t, m.RecordTurn(ctx, "s2", core.Turn{Role: core.RoleUser, Content: "hello"}))

	window := m.Window("s1", 5, core.RuneSize)
	require.Len(t, window, 1)
	assert.Equal(t, "sunny", window[0].Content)

	stats := m.Stats()
	assert.Equal(t, 2, stats.Sessions)
	assert.Equal(t, 3, stats.BufferedTurns)
}

func TestManagerConcurrentSessions(t *testing.T) {
	m := newTestManager(testConfig(), &stubLongTerm{}, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			id := string(rune('a' + n))
			for j := 0; j < 20; j++ {
				_ = m.RecordTurn(ctx, id, core.Turn{
					Role:      core.RoleUser,
					Content:   "turn",
					Timestamp: time.Now(),
				})
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 8, m.Stats().Sessions)
}
