// Package mock provides a deterministic embedding provider for tests.
//
// Vectors are derived from word-level hashes, so texts sharing words
// produce similar vectors and identical texts produce identical ones.
// No network, no randomness.
package mock

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
)

// Embedder is a deterministic, offline embedding provider.
type Embedder struct {
	dimensions int
}

// New creates a mock embedder producing vectors of the given dimension.
// A dimension of 0 defaults to 64, plenty for similarity tests.
func New(dimensions int) *Embedder {
	if dimensions <= 0 {
		dimensions = 64
	}
	return &Embedder{dimensions: dimensions}
}

// Embed creates a deterministic embedding from text.
//
// Each lowercased word contributes a pseudo-random unit direction seeded
// by its hash; the sum is normalized. Overlapping vocabulary therefore
// yields high cosine similarity, which is what dedup tests need.
func (m *Embedder) Embed(_ context.Context, text string) ([]float32, error) {
	embedding := make([]float32, m.dimensions)

	for _, word := range strings.Fields(strings.ToLower(text)) {
		word = strings.Trim(word, ".,!?;:'\"")
		if word == "" {
			continue
		}
		h := fnv.New64a()
		_, _ = h.Write([]byte(word))
		seed := h.Sum64()
		for i := 0; i < m.dimensions; i++ {
			seed = seed*6364136223846793005 + 1442695040888963407
			embedding[i] += float32(int64(seed)) / float32(math.MaxInt64)
		}
	}

	return normalize(embedding), nil
}

// EmbedBatch embeds each text independently.
func (m *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := m.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		embeddings[i] = vec
	}
	return embeddings, nil
}

// Dimensions returns the embedding size.
func (m *Embedder) Dimensions() int {
	return m.dimensions
}

// Close is a no-op.
func (m *Embedder) Close() error {
	return nil
}

func normalize(vec []float32) []float32 {
	var norm float32
	for _, v := range vec {
		norm += v * v
	}
	if norm == 0 {
		return vec
	}
	norm = float32(math.Sqrt(float64(norm)))
	for i, v := range vec {
		vec[i] = v / norm
	}
	return vec
}
