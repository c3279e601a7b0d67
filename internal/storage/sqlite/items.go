package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dlyss/ai-agent-framework/internal/core"
)

// ItemsRepo is the durable catalog of archived memory items. It is the
// authoritative copy of item metadata; the vector index holds only the
// searchable projection. Rows with indexed = 0 are pending vector
// upserts and are healed by the archiver's rescue loop.
type ItemsRepo struct {
	db *sql.DB
}

func NewItemsRepo(db *sql.DB) *ItemsRepo {
	return &ItemsRepo{db: db}
}

func (r *ItemsRepo) Upsert(ctx context.Context, item core.MemoryItem, indexed bool) error {
	metadata, err := json.Marshal(item.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	embedding, err := serializeVector(item.Embedding)
	if err != nil {
		return err
	}

	idx := 0
	if indexed {
		idx = 1
	}

	query := `
		INSERT INTO memory_items (id, session_id, content, importance, metadata, embedding, created_at, indexed)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			session_id = excluded.session_id,
			content    = excluded.content,
			importance = excluded.importance,
			metadata   = excluded.metadata,
			embedding  = excluded.embedding,
			created_at = excluded.created_at,
			indexed    = excluded.indexed`

	_, err = r.db.ExecContext(ctx, query,
		item.ID, item.SessionID, item.Content, item.Importance,
		string(metadata), embedding, item.CreatedAt.UTC().Format(time.RFC3339Nano), idx,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert memory item: %w", err)
	}
	return nil
}

func (r *ItemsRepo) GetByID(ctx context.Context, id string) (core.MemoryItem, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, session_id, content, importance, metadata, embedding, created_at
		 FROM memory_items WHERE id = ?`, id)

	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.MemoryItem{}, &core.NotFoundError{Kind: "memory item", ID: id}
	}
	if err != nil {
		return core.MemoryItem{}, fmt.Errorf("failed to get memory item: %w", err)
	}
	return item, nil
}

func (r *ItemsRepo) GetByIDs(ctx context.Context, ids []string) (map[string]core.MemoryItem, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query := fmt.Sprintf(
		`SELECT id, session_id, content, importance, metadata, embedding, created_at
		 FROM memory_items WHERE id IN (%s)`, placeholders(len(ids)))

	rows, err := r.db.QueryContext(ctx, query, idArgs(ids)...)
	if err != nil {
		return nil, fmt.Errorf("failed to query memory items: %w", err)
	}
	defer rows.Close()

	items := make(map[string]core.MemoryItem, len(ids))
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items[item.ID] = item
	}
	return items, rows.Err()
}

// ByImportance returns items at or above the threshold, most important
// first, ties broken by recency.
func (r *ItemsRepo) ByImportance(ctx context.Context, minImportance float64, limit int) ([]core.MemoryItem, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, session_id, content, importance, metadata, embedding, created_at
		 FROM memory_items
		 WHERE importance >= ?
		 ORDER BY importance DESC, created_at DESC
		 LIMIT ?`, minImportance, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query by importance: %w", err)
	}
	defer rows.Close()

	return collectItems(rows)
}

func (r *ItemsRepo) DeleteByIDs(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	query := fmt.Sprintf(`DELETE FROM memory_items WHERE id IN (%s)`, placeholders(len(ids)))
	if _, err := r.db.ExecContext(ctx, query, idArgs(ids)...); err != nil {
		return fmt.Errorf("failed to delete memory items: %w", err)
	}
	return nil
}

// ListUnindexed returns items whose vector upsert has not succeeded yet,
// oldest first.
func (r *ItemsRepo) ListUnindexed(ctx context.Context, limit int) ([]core.MemoryItem, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, session_id, content, importance, metadata, embedding, created_at
		 FROM memory_items
		 WHERE indexed = 0
		 ORDER BY created_at ASC
		 LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list unindexed items: %w", err)
	}
	defer rows.Close()

	return collectItems(rows)
}

func (r *ItemsRepo) MarkIndexed(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE memory_items SET indexed = 1 WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to mark item indexed: %w", err)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanItem(row scannable) (core.MemoryItem, error) {
	var (
		item      core.MemoryItem
		metadata  string
		embedding []byte
		createdAt string
	)

	if err := row.Scan(&item.ID, &item.SessionID, &item.Content,
		&item.Importance, &metadata, &embedding, &createdAt); err != nil {
		return core.MemoryItem{}, err
	}

	if metadata != "" && metadata != "null" {
		if err := json.Unmarshal([]byte(metadata), &item.Metadata); err != nil {
			return core.MemoryItem{}, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}

	vec, err := deserializeVector(embedding)
	if err != nil {
		return core.MemoryItem{}, err
	}
	item.Embedding = vec

	ts, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return core.MemoryItem{}, fmt.Errorf("failed to parse created_at: %w", err)
	}
	item.CreatedAt = ts

	return item, nil
}

func collectItems(rows *sql.Rows) ([]core.MemoryItem, error) {
	var items []core.MemoryItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func idArgs(ids []string) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}
