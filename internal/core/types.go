package core

import (
	"strconv"
	"time"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// ValidRole reports whether role is one of the conversation roles.
func ValidRole(role string) bool {
	return role == RoleUser || role == RoleAssistant || role == RoleSystem
}

// Turn is a single message exchanged within a session. Immutable once
// created; owned by the session buffer that holds it until evicted.
type Turn struct {
	Role      string
	Content   string
	Timestamp time.Time

	// ImportanceHint is an optional caller-supplied archive hint in (0,1].
	// Zero means no hint; the scorer derives importance on its own.
	ImportanceHint float64
}

// MemoryItem is a unit of durable long-term memory. Never mutated after
// creation except importance re-scoring and metadata merge.
type MemoryItem struct {
	ID         string
	SessionID  string
	Content    string
	Embedding  []float32
	Importance float64
	Metadata   map[string]string
	CreatedAt  time.Time
}

// RetrievalResult pairs an item with its similarity score for one query.
// Ephemeral; never persisted.
type RetrievalResult struct {
	Item  MemoryItem
	Score float64
	Rank  int
}

// ContextWindow is the budgeted payload handed to a downstream
// language-model call. Built fresh per request.
type ContextWindow struct {
	Turns     []Turn
	Retrieved []RetrievalResult
	TotalSize int
}

// SizeFunc measures text in budget units (tokens, runes, ...).
type SizeFunc func(text string) int

// RuneSize measures text in runes. It is the fallback SizeFunc when no
// tokenizer is configured.
func RuneSize(text string) int {
	return len([]rune(text))
}

// Reserved metadata keys used when an item travels through a VectorIndex.
const (
	MetaSessionID  = "session_id"
	MetaImportance = "importance"
	MetaCreatedAt  = "created_at"
)

// IndexDoc flattens the item into the document form a VectorIndex stores.
// Custom metadata keys must not collide with the reserved ones.
func (m MemoryItem) IndexDoc() IndexDoc {
	md := make(map[string]string, len(m.Metadata)+3)
	for k, v := range m.Metadata {
		md[k] = v
	}
	md[MetaSessionID] = m.SessionID
	md[MetaImportance] = strconv.FormatFloat(m.Importance, 'f', -1, 64)
	md[MetaCreatedAt] = m.CreatedAt.UTC().Format(time.RFC3339Nano)

	return IndexDoc{
		ID:        m.ID,
		Content:   m.Content,
		Embedding: m.Embedding,
		Metadata:  md,
	}
}

// ItemFromNeighbor rebuilds an item from a query neighbor. Used when the
// durable catalog has no row for the id (or by thin retrievers that work
// straight off the index).
func ItemFromNeighbor(n Neighbor) MemoryItem {
	item := MemoryItem{
		ID:       n.ID,
		Content:  n.Content,
		Metadata: make(map[string]string, len(n.Metadata)),
	}
	for k, v := range n.Metadata {
		switch k {
		case MetaSessionID:
			item.SessionID = v
		case MetaImportance:
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				item.Importance = f
			}
		case MetaCreatedAt:
			if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
				item.CreatedAt = t
			}
		default:
			item.Metadata[k] = v
		}
	}
	return item
}
