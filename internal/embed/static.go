package embed

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
	"sync"
	"unicode"
)

// StaticEmbedder hashes words and character trigrams into a fixed vector.
// It needs no network or model, so it backs offline use and tests. Texts
// that share vocabulary land close together; paraphrases do not.
type StaticEmbedder struct {
	mu     sync.RWMutex
	closed bool
}

var _ Embedder = (*StaticEmbedder)(nil)

// englishStopWords are dropped before word hashing.
var englishStopWords = map[string]bool{
	"a": true, "an": true, "the": true, "is": true, "are": true,
	"was": true, "were": true, "of": true, "to": true, "in": true,
	"on": true, "and": true, "or": true, "for": true, "with": true,
	"what": true, "which": true, "who": true, "how": true, "does": true,
	"do": true, "it": true, "its": true, "be": true, "by": true,
}

const (
	wordWeight    = 0.7
	trigramWeight = 0.3
	trigramSize   = 3
)

// NewStaticEmbedder creates a static embedder.
func NewStaticEmbedder() *StaticEmbedder {
	return &StaticEmbedder{}
}

// Embed returns a unit vector for text, or a zero vector for blank text.
func (e *StaticEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if e.isClosed() {
		return nil, fmt.Errorf("embedder is closed")
	}

	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return make([]float32, StaticDimensions), nil
	}
	return normalizeVector(staticVector(trimmed)), nil
}

func staticVector(text string) []float32 {
	vector := make([]float32, StaticDimensions)

	words := words(text)
	kept := 0
	for _, w := range words {
		if englishStopWords[w] {
			continue
		}
		vector[hashToIndex(w, StaticDimensions)] += wordWeight
		kept++
	}
	// Questions made only of stop words still need a signal.
	if kept == 0 {
		for _, w := range words {
			vector[hashToIndex(w, StaticDimensions)] += wordWeight
		}
	}

	for _, w := range words {
		for _, g := range trigrams(w) {
			vector[hashToIndex(g, StaticDimensions)] += trigramWeight
		}
	}
	return vector
}

// words lowercases text and splits it on anything that is not a letter or digit.
func words(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// trigrams returns the rune trigrams of a padded word.
func trigrams(word string) []string {
	runes := []rune("^" + word + "$")
	if len(runes) < trigramSize {
		return nil
	}
	out := make([]string, 0, len(runes)-trigramSize+1)
	for i := 0; i+trigramSize <= len(runes); i++ {
		out = append(out, string(runes[i:i+trigramSize]))
	}
	return out
}

func hashToIndex(s string, size int) int {
	h := fnv.New64()
	_, _ = h.Write([]byte(s))
	return int(h.Sum64() % uint64(size))
}

// EmbedBatch embeds each text in order.
func (e *StaticEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	results := make([][]float32, len(texts))
	for i, text := range texts {
		emb, err := e.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("failed to embed text %d: %w", i, err)
		}
		results[i] = emb
	}
	return results, nil
}

// Dimensions returns StaticDimensions.
func (e *StaticEmbedder) Dimensions() int {
	return StaticDimensions
}

// ModelName returns "static".
func (e *StaticEmbedder) ModelName() string {
	return "static"
}

// Available reports true until Close.
func (e *StaticEmbedder) Available(_ context.Context) bool {
	return !e.isClosed()
}

func (e *StaticEmbedder) isClosed() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.closed
}

// Close marks the embedder closed.
func (e *StaticEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}
