package memory

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dlyss/ai-agent-framework/internal/config"
	"github.com/dlyss/ai-agent-framework/internal/core"
	"github.com/dlyss/ai-agent-framework/pkg/log"
)

// LongTerm is the slice of the store the manager depends on.
type LongTerm interface {
	Put(ctx context.Context, item core.MemoryItem) (core.MemoryItem, error)
	Search(ctx context.Context, query string, k int, scoreThreshold float64, filters map[string]string) ([]core.RetrievalResult, error)
}

// ArchiveQueue accepts items for asynchronous archiving.
type ArchiveQueue interface {
	Enqueue(ctx context.Context, item core.MemoryItem) bool
}

// Stats is a point-in-time snapshot of the manager's short-term state.
type Stats struct {
	Sessions      int
	BufferedTurns int
}

// Manager owns the per-session short-term buffers and decides what gets
// promoted to long-term memory. Sessions are created lazily on first
// write and are independent: operations on one session never block
// another.
type Manager struct {
	cfg       *config.MemoryConfig
	scorer    Scorer
	condenser Condenser
	longTerm  LongTerm
	archiver  ArchiveQueue

	mu       sync.RWMutex
	sessions map[string]*Buffer
}

func NewManager(cfg *config.MemoryConfig, scorer Scorer, condenser Condenser, longTerm LongTerm, archiver ArchiveQueue) *Manager {
	return &Manager{
		cfg:       cfg,
		scorer:    scorer,
		condenser: condenser,
		longTerm:  longTerm,
		archiver:  archiver,
		sessions:  make(map[string]*Buffer),
	}
}

func (m *Manager) session(id string) (*Buffer, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.sessions[id]
	return b, ok
}

func (m *Manager) sessionOrCreate(id string) *Buffer {
	m.mu.RLock()
	b, ok := m.sessions[id]
	m.mu.RUnlock()
	if ok {
		return b
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if b, ok := m.sessions[id]; ok {
		return b
	}
	b = NewBuffer(m.cfg.ShortTermSize)
	m.sessions[id] = b
	return b
}

// RecordTurn appends a turn to the session's buffer, creating the
// session on first use. Turns scoring at or above the archive threshold
// are queued for long-term storage; the write path never blocks on it.
func (m *Manager) RecordTurn(ctx context.Context, sessionID string, turn core.Turn) error {
	if strings.TrimSpace(sessionID) == "" {
		return &core.ValidationError{Field: "session_id", Reason: "must not be empty"}
	}
	if !core.ValidRole(turn.Role) {
		return &core.ValidationError{Field: "role", Reason: fmt.Sprintf("unknown role %q", turn.Role)}
	}
	if strings.TrimSpace(turn.Content) == "" {
		return &core.ValidationError{Field: "content", Reason: "must not be empty"}
	}
	if turn.Timestamp.IsZero() {
		turn.Timestamp = time.Now().UTC()
	}

	importance := m.scorer.Score(turn)
	buf := m.sessionOrCreate(sessionID)
	seq := buf.Add(turn, importance)

	if importance >= m.cfg.ArchiveThreshold && m.archiver != nil {
		item := core.MemoryItem{
			SessionID:  sessionID,
			Content:    turn.Content,
			Importance: importance,
			CreatedAt:  turn.Timestamp,
			Metadata: map[string]string{
				"kind": "turn",
				"role": turn.Role,
			},
		}
		if m.archiver.Enqueue(ctx, item) {
			buf.MarkArchived([]uint64{seq})
		}
	}
	return nil
}

// RecordExchange records a user turn and the assistant's reply as one
// call. The first failure aborts; the user turn stays recorded.
func (m *Manager) RecordExchange(ctx context.Context, sessionID, userContent, assistantContent string) error {
	now := time.Now().UTC()
	if err := m.RecordTurn(ctx, sessionID, core.Turn{Role: core.RoleUser, Content: userContent, Timestamp: now}); err != nil {
		return err
	}
	return m.RecordTurn(ctx, sessionID, core.Turn{Role: core.RoleAssistant, Content: assistantContent, Timestamp: now})
}

// History returns the session's last n turns in order. Unknown sessions
// are an error; History never creates one.
func (m *Manager) History(ctx context.Context, sessionID string, n int) ([]core.Turn, error) {
	buf, ok := m.session(sessionID)
	if !ok {
		return nil, &core.NotFoundError{Kind: "session", ID: sessionID}
	}
	if n <= 0 {
		n = m.cfg.ShortTermSize
	}
	return buf.Recent(n), nil
}

// Window returns the largest recent suffix of the session's turns that
// fits in budget. Unknown sessions yield an empty window.
func (m *Manager) Window(sessionID string, budget int, size core.SizeFunc) []core.Turn {
	buf, ok := m.session(sessionID)
	if !ok {
		return nil
	}
	if size == nil {
		size = core.RuneSize
	}
	return buf.WindowBySize(budget, size)
}

// SearchAll searches the session's short-term buffer and, when asked,
// long-term memory too. Short-term substring hits rank at full score;
// duplicates across the two tiers collapse to the higher-scored copy.
func (m *Manager) SearchAll(ctx context.Context, sessionID, query string, limit int, includeLongTerm bool) ([]core.RetrievalResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, &core.ValidationError{Field: "query", Reason: "must not be empty"}
	}
	if limit <= 0 {
		limit = m.cfg.RetrievalK
	}

	var results []core.RetrievalResult
	if buf, ok := m.session(sessionID); ok {
		for _, bt := range buf.Search(query, limit) {
			results = append(results, core.RetrievalResult{
				Item: core.MemoryItem{
					ID:         fmt.Sprintf("%s/turn/%d", sessionID, bt.Seq),
					SessionID:  sessionID,
					Content:    bt.Turn.Content,
					Importance: bt.Importance,
					CreatedAt:  bt.Turn.Timestamp,
					Metadata:   map[string]string{"kind": "turn", "role": bt.Turn.Role},
				},
				Score: 1.0,
			})
		}
	}

	if includeLongTerm {
		longTerm, err := m.longTerm.Search(ctx, query, limit, m.cfg.ScoreThreshold,
			map[string]string{core.MetaSessionID: sessionID})
		if err != nil {
			return nil, err
		}
		results = append(results, longTerm...)
	}

	results = dedupeByContent(results)
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Item.CreatedAt.After(results[j].Item.CreatedAt)
	})
	if len(results) > limit {
		results = results[:limit]
	}
	for i := range results {
		results[i].Rank = i + 1
	}
	return results, nil
}

// Archive promotes up to maxTurns of the session's oldest unarchived
// turns scoring at or above minImportance into long-term memory, one
// item per turn, and returns how many were persisted. Unlike the
// automatic path this is synchronous and caller-driven; turns below the
// cutoff stay in the buffer untouched.
func (m *Manager) Archive(ctx context.Context, sessionID string, maxTurns int, minImportance float64) (int, error) {
	if minImportance < 0 || minImportance > 1 {
		return 0, &core.ValidationError{Field: "min_importance", Reason: "must be in [0, 1]"}
	}
	buf, ok := m.session(sessionID)
	if !ok {
		return 0, &core.NotFoundError{Kind: "session", ID: sessionID}
	}
	if maxTurns <= 0 {
		maxTurns = m.cfg.ShortTermSize
	}

	archived := 0
	for _, bt := range buf.OldestUnarchived(maxTurns) {
		if bt.Importance < minImportance {
			continue
		}

		item := core.MemoryItem{
			SessionID:  sessionID,
			Content:    bt.Turn.Content,
			Importance: bt.Importance,
			CreatedAt:  bt.Turn.Timestamp,
			Metadata: map[string]string{
				"kind": "turn",
				"role": bt.Turn.Role,
			},
		}
		if _, err := m.longTerm.Put(ctx, item); err != nil && !core.IsUnavailable(err) {
			return archived, err
		}
		// Durable (or journaled for the rescue loop): mark so neither
		// this method nor summarization covers the turn again.
		buf.MarkArchived([]uint64{bt.Seq})
		archived++
	}
	return archived, nil
}

// SummarizeAndArchive condenses up to maxItems of the session's not yet
// archived turns into one long-term item (maxItems <= 0 means the whole
// buffer). The summary inherits the highest importance among its source
// turns. Returns ok = false when there is nothing to summarize. The
// buffer itself is untouched apart from archive marks.
func (m *Manager) SummarizeAndArchive(ctx context.Context, sessionID string, maxItems int) (core.MemoryItem, bool, error) {
	buf, ok := m.session(sessionID)
	if !ok {
		return core.MemoryItem{}, false, &core.NotFoundError{Kind: "session", ID: sessionID}
	}
	if maxItems <= 0 {
		maxItems = m.cfg.ShortTermSize
	}

	// Snapshot and mark under the buffer's lock discipline, then do all
	// I/O outside it so slow providers never stall recording.
	turns := buf.OldestUnarchived(maxItems)
	if len(turns) == 0 {
		return core.MemoryItem{}, false, nil
	}

	content := m.condenser.Condense(turns)
	if strings.TrimSpace(content) == "" {
		return core.MemoryItem{}, false, nil
	}

	importance := 0.0
	seqs := make([]uint64, len(turns))
	sources := make([]string, len(turns))
	for i, bt := range turns {
		seqs[i] = bt.Seq
		sources[i] = strconv.FormatUint(bt.Seq, 10)
		if bt.Importance > importance {
			importance = bt.Importance
		}
	}
	buf.MarkArchived(seqs)

	item := core.MemoryItem{
		SessionID:  sessionID,
		Content:    content,
		Importance: importance,
		Metadata: map[string]string{
			"kind":         "summary",
			"source_turns": strings.Join(sources, ","),
		},
	}

	stored, err := m.longTerm.Put(ctx, item)
	if err != nil {
		if core.IsUnavailable(err) {
			// Durable in the catalog already; indexing catches up later.
			log.FromCtx(ctx).Warn().Err(err).
				Str("session_id", sessionID).
				Msg("summary archived but not indexed yet")
			return stored, true, nil
		}
		return core.MemoryItem{}, false, err
	}
	return stored, true, nil
}

// Clear empties the session's short-term buffer. Long-term items are
// unaffected. Clearing an unknown session is a no-op.
func (m *Manager) Clear(ctx context.Context, sessionID string) {
	if buf, ok := m.session(sessionID); ok {
		buf.Clear()
		log.FromCtx(ctx).Debug().Str("session_id", sessionID).Msg("session buffer cleared")
	}
}

// Stats reports the current session and buffered-turn counts.
func (m *Manager) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := Stats{Sessions: len(m.sessions)}
	for _, buf := range m.sessions {
		s.BufferedTurns += buf.Len()
	}
	return s
}

func dedupeByContent(results []core.RetrievalResult) []core.RetrievalResult {
	best := make(map[string]int, len(results))
	out := results[:0]
	for _, r := range results {
		key := normalizeContent(r.Item.Content)
		if i, seen := best[key]; seen {
			if r.Score > out[i].Score {
				out[i] = r
			}
			continue
		}
		best[key] = len(out)
		out = append(out, r)
	}
	return out
}

func normalizeContent(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
