package embed

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/sync/errgroup"

	cerrors "github.com/Aman-CERP/chatmydocs/internal/errors"
)

const (
	// DefaultOpenAIModel is the default hosted embedding model.
	DefaultOpenAIModel = "text-embedding-3-small"

	// openAIParallel bounds concurrent batch requests.
	openAIParallel = 4
)

// OpenAIConfig configures the OpenAI-compatible embedder.
type OpenAIConfig struct {
	APIKey string

	// BaseURL points at any OpenAI-compatible endpoint; empty means api.openai.com.
	BaseURL    string
	Model      string
	BatchSize  int
	MaxRetries int

	// HTTPClient overrides the default client.
	HTTPClient *http.Client
}

// OpenAIEmbedder calls the /embeddings endpoint through go-openai. Batches
// are sent concurrently with a bounded fan-out.
type OpenAIEmbedder struct {
	client *openai.Client
	model  string
	batch  int
	retry  cerrors.RetryConfig

	mu     sync.RWMutex
	dims   int
	closed bool
}

var _ Embedder = (*OpenAIEmbedder)(nil)

// NewOpenAIEmbedder creates an embedder. No request is made until first use.
func NewOpenAIEmbedder(cfg OpenAIConfig) (*OpenAIEmbedder, error) {
	if cfg.APIKey == "" && cfg.BaseURL == "" {
		return nil, cerrors.ConfigError("openai embeddings need an API key", nil).
			WithSuggestion("Set OPENAI_API_KEY or embeddings.api_key")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultOpenAIModel
	}
	if cfg.BatchSize <= 0 || cfg.BatchSize > MaxBatchSize {
		cfg.BatchSize = DefaultBatchSize
	}

	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	if cfg.HTTPClient != nil {
		oc.HTTPClient = cfg.HTTPClient
	}

	retry := cerrors.DefaultRetryConfig()
	if cfg.MaxRetries > 0 {
		retry.MaxRetries = cfg.MaxRetries
	}

	return &OpenAIEmbedder{
		client: openai.NewClientWithConfig(oc),
		model:  cfg.Model,
		batch:  cfg.BatchSize,
		retry:  retry,
	}, nil
}

// Embed embeds a single text.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds texts preserving order.
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if e.isClosed() {
		return nil, fmt.Errorf("embedder is closed")
	}
	results := make([][]float32, len(texts))
	if len(texts) == 0 {
		return results, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(openAIParallel)
	for _, b := range batches(len(texts), e.batch) {
		g.Go(func() error {
			vecs, err := cerrors.RetryWithResult(gctx, e.retry, func() ([][]float32, error) {
				return e.doEmbed(gctx, texts[b[0]:b[1]])
			})
			if err != nil {
				return err
			}
			copy(results[b[0]:b[1]], vecs)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, cerrors.EmbeddingProviderError("embed", err)
	}

	if len(results[0]) > 0 && e.Dimensions() == 0 {
		e.mu.Lock()
		e.dims = len(results[0])
		e.mu.Unlock()
	}
	return results, nil
}

func (e *OpenAIEmbedder) doEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	// The API rejects empty strings.
	input := make([]string, len(texts))
	for i, t := range texts {
		if strings.TrimSpace(t) == "" {
			t = " "
		}
		input[i] = t
	}

	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: input,
		Model: openai.EmbeddingModel(e.model),
	})
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) && apiErr.HTTPStatusCode >= 400 && apiErr.HTTPStatusCode < 500 &&
			apiErr.HTTPStatusCode != http.StatusTooManyRequests {
			return nil, cerrors.Permanent(err)
		}
		return nil, err
	}
	if len(resp.Data) != len(texts) {
		return nil, cerrors.Permanent(fmt.Errorf("expected %d embeddings, got %d", len(texts), len(resp.Data)))
	}

	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(out) {
			return nil, cerrors.Permanent(fmt.Errorf("embedding index %d out of range", d.Index))
		}
		v := make([]float32, len(d.Embedding))
		for j, x := range d.Embedding {
			v[j] = float32(x)
		}
		out[d.Index] = normalizeVector(v)
	}
	return out, nil
}

// Dimensions returns the size seen on the last response, or 0.
func (e *OpenAIEmbedder) Dimensions() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.dims
}

// ModelName returns "openai/<model>".
func (e *OpenAIEmbedder) ModelName() string {
	return "openai/" + e.model
}

// Available lists models as a cheap reachability check.
func (e *OpenAIEmbedder) Available(ctx context.Context) bool {
	if e.isClosed() {
		return false
	}
	_, err := e.client.ListModels(ctx)
	return err == nil
}

func (e *OpenAIEmbedder) isClosed() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.closed
}

// Close marks the embedder closed.
func (e *OpenAIEmbedder) Close() error {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
	return nil
}
