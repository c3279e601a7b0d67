package memory

import (
	"strings"
	"sync"

	"github.com/dlyss/ai-agent-framework/internal/core"
)

const defaultBufferSize = 10

// BufferedTurn is a turn as held by the short-term buffer, together with
// the bookkeeping the manager needs for archiving.
type BufferedTurn struct {
	Seq        uint64
	Turn       core.Turn
	Importance float64
	Archived   bool
}

// Buffer is a bounded, ordered short-term history of one session.
// Eviction is strict FIFO; all operations are total over the current
// state. Safe for concurrent use.
type Buffer struct {
	mu      sync.RWMutex
	maxSize int
	nextSeq uint64
	turns   []BufferedTurn
}

func NewBuffer(maxSize int) *Buffer {
	if maxSize <= 0 {
		maxSize = defaultBufferSize
	}
	return &Buffer{maxSize: maxSize}
}

// Add appends a turn, evicting the oldest when over capacity, and
// returns the turn's sequence number.
func (b *Buffer) Add(turn core.Turn, importance float64) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextSeq++
	b.turns = append(b.turns, BufferedTurn{
		Seq:        b.nextSeq,
		Turn:       turn,
		Importance: importance,
	})
	if len(b.turns) > b.maxSize {
		b.turns = b.turns[1:]
	}
	return b.nextSeq
}

// Recent returns the last n turns in chronological order, n clamped to
// the buffer length.
func (b *Buffer) Recent(n int) []core.Turn {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if n > len(b.turns) {
		n = len(b.turns)
	}
	if n <= 0 {
		return nil
	}

	out := make([]core.Turn, n)
	for i, bt := range b.turns[len(b.turns)-n:] {
		out[i] = bt.Turn
	}
	return out
}

// WindowBySize returns the maximal suffix of turns whose cumulative size
// stays within budget, walking backward from the most recent turn so
// older turns are dropped before newer ones. The result is chronological.
func (b *Buffer) WindowBySize(budget int, size core.SizeFunc) []core.Turn {
	b.mu.RLock()
	defer b.mu.RUnlock()

	used := 0
	start := len(b.turns)
	for i := len(b.turns) - 1; i >= 0; i-- {
		cost := size(b.turns[i].Turn.Content)
		if used+cost > budget {
			break
		}
		used += cost
		start = i
	}

	if start == len(b.turns) {
		return nil
	}
	out := make([]core.Turn, 0, len(b.turns)-start)
	for _, bt := range b.turns[start:] {
		out = append(out, bt.Turn)
	}
	return out
}

// Search returns buffered turns whose content contains the query,
// case-insensitively, newest first, at most limit entries.
func (b *Buffer) Search(query string, limit int) []BufferedTurn {
	b.mu.RLock()
	defer b.mu.RUnlock()

	needle := strings.ToLower(query)
	var out []BufferedTurn
	for i := len(b.turns) - 1; i >= 0 && len(out) < limit; i-- {
		if strings.Contains(strings.ToLower(b.turns[i].Turn.Content), needle) {
			out = append(out, b.turns[i])
		}
	}
	return out
}

// OldestUnarchived snapshots up to max turns that have not been archived
// yet, oldest first.
func (b *Buffer) OldestUnarchived(max int) []BufferedTurn {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []BufferedTurn
	for _, bt := range b.turns {
		if bt.Archived {
			continue
		}
		out = append(out, bt)
		if len(out) == max {
			break
		}
	}
	return out
}

// MarkArchived flags the given sequence numbers so they are never
// summarized twice. Unknown (already evicted) seqs are ignored.
func (b *Buffer) MarkArchived(seqs []uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	marked := make(map[uint64]struct{}, len(seqs))
	for _, s := range seqs {
		marked[s] = struct{}{}
	}
	for i := range b.turns {
		if _, ok := marked[b.turns[i].Seq]; ok {
			b.turns[i].Archived = true
		}
	}
}

func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.turns)
}

// Clear empties the buffer. Sequence numbers keep increasing so that
// references to archived turns stay unique for the session's lifetime.
func (b *Buffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.turns = nil
}
