package core

import "context"

// EmbeddingProvider turns text into a fixed-dimension vector. Queries and
// passages may receive different preprocessing (e5-style models prefix
// them differently). Implementations return *EmbeddingError for input
// they cannot embed and *UnavailableError for transport failures.
type EmbeddingProvider interface {
	EmbedPassage(ctx context.Context, text string) ([]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
}

// IndexDoc is the document form a VectorIndex stores: content plus a
// flat string metadata map, associated 1:1 with the embedding by id.
type IndexDoc struct {
	ID        string
	Content   string
	Embedding []float32
	Metadata  map[string]string
}

// Neighbor is one ranked match from a vector query. Score is a
// similarity in [-1, 1]; higher is closer.
type Neighbor struct {
	ID       string
	Score    float64
	Content  string
	Metadata map[string]string
}

// VectorIndex stores vectors with metadata and answers nearest-neighbor
// queries. Implementations must be safe for concurrent use; puts are
// last-writer-wins per id. Unknown collections surface as
// *CollectionMissingError, transport failures as *UnavailableError.
type VectorIndex interface {
	CreateCollection(ctx context.Context, name string, dimension int) error
	Upsert(ctx context.Context, collection string, docs []IndexDoc) error
	Query(ctx context.Context, collection string, vector []float32, k int, filters map[string]string) ([]Neighbor, error)
	Delete(ctx context.Context, collection string, ids []string) error
}
