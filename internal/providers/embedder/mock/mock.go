// Package mock provides a deterministic in-process embedder for tests
// and local development. No model, no network.
package mock

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
)

const DefaultDimensions = 64

// Embedder produces bag-of-words style unit vectors: each token
// contributes a pseudo-random direction derived from its hash, so texts
// sharing words land near each other while unrelated texts stay roughly
// orthogonal. Identical text always maps to the identical vector.
type Embedder struct {
	dimensions int
}

func New(dimensions int) *Embedder {
	if dimensions <= 0 {
		dimensions = DefaultDimensions
	}
	return &Embedder{dimensions: dimensions}
}

func (e *Embedder) EmbedPassage(_ context.Context, text string) ([]float32, error) {
	return e.encode(text), nil
}

func (e *Embedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	return e.encode(text), nil
}

func (e *Embedder) Dimensions() int { return e.dimensions }

func (e *Embedder) encode(text string) []float32 {
	vec := make([]float32, e.dimensions)

	for _, token := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New64a()
		h.Write([]byte(token))
		seed := h.Sum64()

		for i := 0; i < e.dimensions; i++ {
			seed = seed*6364136223846793005 + 1442695040888963407
			vec[i] += float32(int64(seed)) / float32(math.MaxInt64)
		}
	}

	return normalize(vec)
}

func normalize(vec []float32) []float32 {
	var norm float32
	for _, v := range vec {
		norm += v * v
	}
	if norm == 0 {
		// Zero input (e.g. empty text) maps to a fixed unit vector.
		vec[0] = 1
		return vec
	}

	norm = float32(math.Sqrt(float64(norm)))
	for i := range vec {
		vec[i] /= norm
	}
	return vec
}
