// Package chromem implements the VectorIndex capability on top of
// chromem-go, an embedded pure-Go vector database.
package chromem

import (
	"context"
	"fmt"
	"sync"

	chromem "github.com/philippgille/chromem-go"

	"github.com/dlyss/ai-agent-framework/internal/core"
)

type Index struct {
	db *chromem.DB

	mu          sync.RWMutex
	collections map[string]*collection
}

type collection struct {
	col       *chromem.Collection
	dimension int
}

// New returns an in-memory index. State is lost on process exit; use
// NewPersistent for anything whose catalog outlives the process.
func New() *Index {
	return &Index{
		db:          chromem.NewDB(),
		collections: make(map[string]*collection),
	}
}

// NewPersistent returns an index backed by on-disk storage at path, so
// indexed documents survive restarts alongside the durable catalog.
func NewPersistent(path string) (*Index, error) {
	db, err := chromem.NewPersistentDB(path, false)
	if err != nil {
		return nil, fmt.Errorf("failed to open vector db: %w", err)
	}
	return &Index{
		db:          db,
		collections: make(map[string]*collection),
	}, nil
}

// CreateCollection is idempotent; re-creating an existing collection with
// a different dimension is a validation error.
func (x *Index) CreateCollection(ctx context.Context, name string, dimension int) error {
	if dimension <= 0 {
		return &core.ValidationError{Field: "dimension", Reason: "must be positive"}
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	if existing, ok := x.collections[name]; ok {
		if existing.dimension != dimension {
			return &core.ValidationError{
				Field:  "dimension",
				Reason: fmt.Sprintf("collection %q has dimension %d", name, existing.dimension),
			}
		}
		return nil
	}

	col, err := x.db.GetOrCreateCollection(name, nil, nil)
	if err != nil {
		return &core.UnavailableError{Op: "create collection", Err: err}
	}

	x.collections[name] = &collection{col: col, dimension: dimension}
	return nil
}

func (x *Index) Upsert(ctx context.Context, name string, docs []core.IndexDoc) error {
	c, err := x.get(name)
	if err != nil {
		return err
	}

	for _, doc := range docs {
		if len(doc.Embedding) != c.dimension {
			return &core.ValidationError{
				Field:  "embedding",
				Reason: fmt.Sprintf("dimension %d does not match collection dimension %d", len(doc.Embedding), c.dimension),
			}
		}
		err := c.col.AddDocument(ctx, chromem.Document{
			ID:        doc.ID,
			Content:   doc.Content,
			Embedding: doc.Embedding,
			Metadata:  doc.Metadata,
		})
		if err != nil {
			return &core.UnavailableError{Op: "vector upsert", Err: err}
		}
	}
	return nil
}

func (x *Index) Query(ctx context.Context, name string, vector []float32, k int, filters map[string]string) ([]core.Neighbor, error) {
	c, err := x.get(name)
	if err != nil {
		return nil, err
	}
	if len(vector) != c.dimension {
		return nil, &core.ValidationError{
			Field:  "vector",
			Reason: fmt.Sprintf("dimension %d does not match collection dimension %d", len(vector), c.dimension),
		}
	}

	// chromem rejects nResults greater than the collection size.
	if count := c.col.Count(); k > count {
		k = count
	}
	if k <= 0 {
		return nil, nil
	}

	results, err := c.col.QueryEmbedding(ctx, vector, k, filters, nil)
	if err != nil {
		return nil, &core.UnavailableError{Op: "vector query", Err: err}
	}

	neighbors := make([]core.Neighbor, 0, len(results))
	for _, r := range results {
		neighbors = append(neighbors, core.Neighbor{
			ID:       r.ID,
			Score:    float64(r.Similarity),
			Content:  r.Content,
			Metadata: r.Metadata,
		})
	}
	return neighbors, nil
}

func (x *Index) Delete(ctx context.Context, name string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	c, err := x.get(name)
	if err != nil {
		return err
	}

	if err := c.col.Delete(ctx, nil, nil, ids...); err != nil {
		return &core.UnavailableError{Op: "vector delete", Err: err}
	}
	return nil
}

func (x *Index) get(name string) (*collection, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	c, ok := x.collections[name]
	if !ok {
		return nil, &core.CollectionMissingError{Collection: name}
	}
	return c, nil
}
