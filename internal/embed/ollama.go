package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	cerrors "github.com/Aman-CERP/chatmydocs/internal/errors"
)

// OllamaEmbedder generates embeddings using Ollama's HTTP API.
type OllamaEmbedder struct {
	client    *http.Client
	transport *http.Transport
	config    OllamaConfig
	retry     cerrors.RetryConfig

	mu     sync.RWMutex
	model  string
	dims   int
	closed bool
}

var _ Embedder = (*OllamaEmbedder)(nil)

// NewOllamaEmbedder creates an embedder bound to one pooled HTTP client.
// Unless SkipHealthCheck is set it resolves the model against /api/tags
// and probes the dimension.
func NewOllamaEmbedder(ctx context.Context, cfg OllamaConfig) (*OllamaEmbedder, error) {
	def := DefaultOllamaConfig()
	if cfg.Host == "" {
		cfg.Host = def.Host
	}
	cfg.Host = strings.TrimRight(cfg.Host, "/")
	if cfg.Model == "" {
		cfg.Model = def.Model
	}
	if cfg.BatchSize <= 0 || cfg.BatchSize > MaxBatchSize {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = def.PoolSize
	}

	transport := &http.Transport{
		MaxIdleConns:        cfg.PoolSize,
		MaxIdleConnsPerHost: cfg.PoolSize,
		MaxConnsPerHost:     cfg.PoolSize * 2,
		IdleConnTimeout:     30 * time.Second,
	}

	retry := cerrors.DefaultRetryConfig()
	retry.MaxRetries = cfg.MaxRetries

	e := &OllamaEmbedder{
		// Per-request deadlines come from context so callers can shorten them.
		client:    &http.Client{Transport: transport},
		transport: transport,
		config:    cfg,
		retry:     retry,
		model:     cfg.Model,
		dims:      cfg.Dimensions,
	}

	if !cfg.SkipHealthCheck {
		model, err := e.findModel(ctx)
		if err != nil {
			transport.CloseIdleConnections()
			return nil, cerrors.EmbeddingProviderError("startup", err).
				WithSuggestion(fmt.Sprintf("Run: ollama pull %s", cfg.Model))
		}
		e.model = model

		if e.dims == 0 {
			dims, err := Probe(ctx, e)
			if err != nil {
				transport.CloseIdleConnections()
				return nil, err
			}
			e.setDims(dims)
		}
	}

	return e, nil
}

// findModel matches the configured model against installed models, with or
// without a tag.
func (e *OllamaEmbedder) findModel(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.config.Host+"/api/tags", nil)
	if err != nil {
		return "", err
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to connect to Ollama at %s: %w", e.config.Host, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}

	var tags ollamaTagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return "", fmt.Errorf("failed to decode model list: %w", err)
	}

	want := strings.ToLower(e.config.Model)
	wantBase, _, _ := strings.Cut(want, ":")
	for _, m := range tags.Models {
		name := strings.ToLower(m.Name)
		base, _, _ := strings.Cut(name, ":")
		if name == want || base == want || (wantBase == want && base == wantBase) {
			return m.Name, nil
		}
	}
	return "", fmt.Errorf("embedding model %q is not installed", e.config.Model)
}

// Embed embeds one text.
func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds texts in request batches of BatchSize. Blank texts get
// zero vectors without a request.
func (e *OllamaEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if e.isClosed() {
		return nil, fmt.Errorf("embedder is closed")
	}
	results := make([][]float32, len(texts))
	if len(texts) == 0 {
		return results, nil
	}

	var idx []int
	for i, t := range texts {
		if strings.TrimSpace(t) != "" {
			idx = append(idx, i)
		}
	}

	for n, b := range batches(len(idx), e.config.BatchSize) {
		batch := make([]string, 0, b[1]-b[0])
		for _, i := range idx[b[0]:b[1]] {
			batch = append(batch, texts[i])
		}

		vecs, err := cerrors.RetryWithResult(ctx, e.retry, func() ([][]float32, error) {
			return e.doEmbed(ctx, batch)
		})
		if err != nil {
			slog.Debug("embedding batch failed",
				slog.Int("batch", n),
				slog.Int("texts", len(batch)),
				slog.String("error", err.Error()))
			return nil, cerrors.EmbeddingProviderError("embed", err)
		}
		for j, i := range idx[b[0]:b[1]] {
			results[i] = vecs[j]
		}
	}

	dims := e.Dimensions()
	for i := range results {
		if results[i] == nil {
			results[i] = make([]float32, dims)
		}
	}
	return results, nil
}

func (e *OllamaEmbedder) doEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	body, err := json.Marshal(ollamaEmbedRequest{Model: e.ModelID(), Input: texts})
	if err != nil {
		return nil, cerrors.Permanent(fmt.Errorf("failed to marshal request: %w", err))
	}

	ctx, cancel := context.WithTimeout(ctx, e.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.config.Host+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, cerrors.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		err := fmt.Errorf("embedding failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
		if resp.StatusCode < 500 {
			return nil, cerrors.Permanent(err)
		}
		return nil, err
	}

	var result ollamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if len(result.Embeddings) != len(texts) {
		return nil, cerrors.Permanent(fmt.Errorf("expected %d embeddings, got %d", len(texts), len(result.Embeddings)))
	}

	out := make([][]float32, len(result.Embeddings))
	for i, emb := range result.Embeddings {
		v := make([]float32, len(emb))
		for j, x := range emb {
			v[j] = float32(x)
		}
		out[i] = normalizeVector(v)
	}
	if len(out) > 0 && e.Dimensions() == 0 {
		e.setDims(len(out[0]))
	}
	return out, nil
}

// ModelID returns the Ollama model tag without the provider prefix.
func (e *OllamaEmbedder) ModelID() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.model
}

func (e *OllamaEmbedder) setDims(d int) {
	e.mu.Lock()
	e.dims = d
	e.mu.Unlock()
}

func (e *OllamaEmbedder) isClosed() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.closed
}

// Dimensions returns the embedding dimension.
func (e *OllamaEmbedder) Dimensions() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.dims
}

// ModelName returns "ollama/<model>".
func (e *OllamaEmbedder) ModelName() string {
	return "ollama/" + e.ModelID()
}

// Available checks that Ollama answers and the model is installed.
func (e *OllamaEmbedder) Available(ctx context.Context) bool {
	if e.isClosed() {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_, err := e.findModel(ctx)
	return err == nil
}

// Close releases pooled connections.
func (e *OllamaEmbedder) Close() error {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
	e.transport.CloseIdleConnections()
	return nil
}
