// Package retrieval serves similarity queries over long-term memory,
// with a small cache in front of the embedding provider.
package retrieval

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/dgraph-io/ristretto"

	"github.com/dlyss/ai-agent-framework/internal/core"
	"github.com/dlyss/ai-agent-framework/pkg/log"
	"github.com/dlyss/ai-agent-framework/pkg/retry"
)

const cacheCapacityBytes = 8 << 20

// Retriever answers nearest-neighbor queries against one collection.
// Query embeddings are cached so repeated queries (the common case when
// a context window is rebuilt per request) skip the provider round trip.
type Retriever struct {
	collection string
	index      core.VectorIndex
	embedder   core.EmbeddingProvider
	cache      *ristretto.Cache
	retrier    *retry.Retrier
}

func New(collection string, index core.VectorIndex, embedder core.EmbeddingProvider) (*Retriever, error) {
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 10_000,
		MaxCost:     cacheCapacityBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding cache: %w", err)
	}

	return &Retriever{
		collection: collection,
		index:      index,
		embedder:   embedder,
		cache:      cache,
		retrier:    retry.New(retry.DefaultPolicy(), core.IsUnavailable),
	}, nil
}

// Retrieve returns up to k items ranked by similarity to query, dropping
// anything below scoreThreshold. A missing collection surfaces as
// *CollectionMissingError so callers can decide whether to degrade.
func (r *Retriever) Retrieve(ctx context.Context, query string, k int, scoreThreshold float64, filters map[string]string) ([]core.RetrievalResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, &core.ValidationError{Field: "query", Reason: "must not be empty"}
	}
	if k <= 0 {
		return nil, &core.ValidationError{Field: "k", Reason: "must be positive"}
	}

	vec, err := r.queryVector(ctx, query)
	if err != nil {
		return nil, err
	}

	var neighbors []core.Neighbor
	err = r.retrier.Do(ctx, func(ctx context.Context) error {
		var err error
		neighbors, err = r.index.Query(ctx, r.collection, vec, k, filters)
		return err
	})
	if err != nil {
		return nil, err
	}

	results := make([]core.RetrievalResult, 0, len(neighbors))
	for _, n := range neighbors {
		if n.Score < scoreThreshold {
			continue
		}
		results = append(results, core.RetrievalResult{Item: core.ItemFromNeighbor(n), Score: n.Score})
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

	log.FromCtx(ctx).Debug().
		Int("requested", k).
		Int("returned", len(results)).
		Msg("retrieval query served")
	return results, nil
}

func (r *Retriever) queryVector(ctx context.Context, query string) ([]float32, error) {
	if cached, ok := r.cache.Get(query); ok {
		return cached.([]float32), nil
	}

	var vec []float32
	err := r.retrier.Do(ctx, func(ctx context.Context) error {
		var err error
		vec, err = r.embedder.EmbedQuery(ctx, query)
		return err
	})
	if err != nil {
		return nil, err
	}

	r.cache.Set(query, vec, int64(len(vec)*4))
	return vec, nil
}

func (r *Retriever) Close() {
	r.cache.Close()
}
