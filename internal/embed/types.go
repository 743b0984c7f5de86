// Package embed maps text to fixed-dimension vectors through a pluggable
// provider. The same Embedder instance serves index builds and queries for
// the lifetime of a session.
package embed

import (
	"context"
	"fmt"
	"math"
	"time"
)

const (
	// DefaultBatchSize is the number of texts per provider request.
	DefaultBatchSize = 32

	// MaxBatchSize caps batch requests to bound memory.
	MaxBatchSize = 256

	// DefaultTimeout is the per-request timeout for network providers.
	DefaultTimeout = 120 * time.Second

	// DefaultMaxRetries is the transport retry budget of network providers.
	DefaultMaxRetries = 2

	// StaticDimensions is the vector size of the static embedder.
	StaticDimensions = 256

	// ProbeText is the one-token string embedded to measure dimensions.
	ProbeText = "a"
)

// Embedder generates vector embeddings for text.
type Embedder interface {
	// Embed embeds a single query.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch embeds texts, preserving order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the vector size, or 0 before it is known.
	Dimensions() int

	// ModelName identifies the provider and model, e.g. "ollama/nomic-embed-text".
	ModelName() string

	// Available reports whether the provider answers.
	Available(ctx context.Context) bool

	// Close releases pooled connections.
	Close() error
}

// Probe embeds ProbeText and returns the resulting vector length. Index
// dimensions come from here rather than from a per-model constant.
func Probe(ctx context.Context, e Embedder) (int, error) {
	vec, err := e.Embed(ctx, ProbeText)
	if err != nil {
		return 0, err
	}
	if len(vec) == 0 {
		return 0, fmt.Errorf("probe embedding from %s is empty", e.ModelName())
	}
	return len(vec), nil
}

// normalizeVector scales v to unit length; zero vectors are returned as-is.
func normalizeVector(v []float32) []float32 {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}

	magnitude := math.Sqrt(sumSquares)
	if magnitude == 0 {
		return v
	}

	normalized := make([]float32, len(v))
	for i, val := range v {
		normalized[i] = float32(float64(val) / magnitude)
	}
	return normalized
}

// batches splits n items into [start, end) ranges of at most size.
func batches(n, size int) [][2]int {
	if size <= 0 {
		size = DefaultBatchSize
	}
	var out [][2]int
	for start := 0; start < n; start += size {
		out = append(out, [2]int{start, min(start+size, n)})
	}
	return out
}
