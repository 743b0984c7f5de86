package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	cerrors "github.com/Aman-CERP/chatmydocs/internal/errors"
)

const (
	defaultHostedTimeout = 30 * time.Second

	// hostedUpsertBatch is the largest upsert the data plane accepts.
	hostedUpsertBatch = 100
)

// HostedConfig configures the hosted vector database client.
type HostedConfig struct {
	// Host is the index data-plane URL.
	Host    string
	APIKey  string
	Timeout time.Duration

	// HTTPClient overrides the default client.
	HTTPClient *http.Client
}

// Hosted talks to a Pinecone-compatible data plane. Namespaces map one to
// one onto knowledge bases.
type Hosted struct {
	host   string
	apiKey string
	client *http.Client
	retry  cerrors.RetryConfig
}

var _ Strategy = (*Hosted)(nil)

// NewHosted creates the hosted strategy.
func NewHosted(cfg HostedConfig) (*Hosted, error) {
	if cfg.Host == "" {
		return nil, cerrors.ConfigError("hosted store host is not set", nil).
			WithSuggestion("Set store.hosted.host to the index URL")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultHostedTimeout
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	host := strings.TrimRight(cfg.Host, "/")
	if !strings.Contains(host, "://") {
		host = "https://" + host
	}
	return &Hosted{
		host:   host,
		apiKey: cfg.APIKey,
		client: client,
		retry:  cerrors.DefaultRetryConfig(),
	}, nil
}

// Kind returns KindHosted.
func (h *Hosted) Kind() Kind { return KindHosted }

type hostedVector struct {
	ID       string         `json:"id"`
	Values   []float32      `json:"values"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type hostedUpsertRequest struct {
	Vectors   []hostedVector `json:"vectors"`
	Namespace string         `json:"namespace"`
}

type hostedQueryRequest struct {
	Namespace       string    `json:"namespace"`
	Vector          []float32 `json:"vector"`
	TopK            int       `json:"topK"`
	IncludeValues   bool      `json:"includeValues"`
	IncludeMetadata bool      `json:"includeMetadata"`
}

type hostedQueryResponse struct {
	Matches []struct {
		ID       string         `json:"id"`
		Score    float32        `json:"score"`
		Values   []float32      `json:"values"`
		Metadata map[string]any `json:"metadata"`
	} `json:"matches"`
}

type hostedDeleteRequest struct {
	DeleteAll bool   `json:"deleteAll"`
	Namespace string `json:"namespace"`
}

type hostedStats struct {
	Dimension  int `json:"dimension"`
	Namespaces map[string]struct {
		VectorCount int `json:"vectorCount"`
	} `json:"namespaces"`
}

// statusError carries the HTTP status of a failed call.
type statusError struct {
	Status int
	Body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("hosted store returned status %d: %s", e.Status, e.Body)
}

// post sends body to path and decodes the response into out. 4xx responses
// are not retried.
func (h *Hosted) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	return cerrors.Retry(ctx, h.retry, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.host+path, bytes.NewReader(payload))
		if err != nil {
			return cerrors.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		if h.apiKey != "" {
			req.Header.Set("Api-Key", h.apiKey)
		}

		resp, err := h.client.Do(req)
		if err != nil {
			return err
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode >= 300 {
			msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			se := &statusError{Status: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
			if resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
				return cerrors.Permanent(se)
			}
			return se
		}
		if out == nil {
			_, _ = io.Copy(io.Discard, resp.Body)
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
		return nil
	})
}

func (h *Hosted) stats(ctx context.Context) (*hostedStats, error) {
	var s hostedStats
	if err := h.post(ctx, "/describe_index_stats", struct{}{}, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// Build upserts records into the namespace in batches.
func (h *Hosted) Build(ctx context.Context, ns Namespace, records []Record, spec IndexSpec) (*Handle, error) {
	if err := ns.validate(); err != nil {
		return nil, cerrors.StoreCreationError(ns.String(), err)
	}
	st, err := h.stats(ctx)
	if err != nil {
		return nil, cerrors.StoreCreationError(ns.String(), err)
	}
	if st.Dimension != 0 && st.Dimension != spec.Dimension {
		return nil, cerrors.StoreCreationError(ns.String(), ErrDimensionMismatch{Expected: st.Dimension, Got: spec.Dimension})
	}
	if err := checkDimensions(records, spec.Dimension); err != nil {
		return nil, cerrors.StoreCreationError(ns.String(), err)
	}

	for start := 0; start < len(records); start += hostedUpsertBatch {
		end := min(start+hostedUpsertBatch, len(records))
		req := hostedUpsertRequest{Namespace: ns.String(), Vectors: make([]hostedVector, 0, end-start)}
		for _, r := range records[start:end] {
			req.Vectors = append(req.Vectors, hostedVector{
				ID:     r.ID,
				Values: r.Vector,
				Metadata: map[string]any{
					fieldText:   r.Text,
					fieldSource: r.Source,
					fieldOwner:  ns.Owner,
					fieldKB:     ns.Name,
				},
			})
		}
		if err := h.post(ctx, "/vectors/upsert", req, nil); err != nil {
			return nil, cerrors.StoreCreationError(ns.String(), err)
		}
	}

	count := len(records)
	if st, err := h.stats(ctx); err == nil {
		if n := st.Namespaces[ns.String()].VectorCount; n > 0 {
			count = n
		}
	} else {
		slog.Debug("hosted stats unavailable after upsert", slog.String("error", err.Error()))
	}
	return &Handle{Namespace: ns, Kind: KindHosted, Dimension: spec.Dimension, Model: spec.Model, Count: count}, nil
}

// Load reports the namespace when the index stats list it.
func (h *Hosted) Load(ctx context.Context, ns Namespace) (*Handle, error) {
	st, err := h.stats(ctx)
	if err != nil {
		return nil, cerrors.New(cerrors.ErrCodeStoreIO, "failed to read hosted index stats", err)
	}
	n, ok := st.Namespaces[ns.String()]
	if !ok || n.VectorCount == 0 {
		return nil, nil
	}
	return &Handle{Namespace: ns, Kind: KindHosted, Dimension: st.Dimension, Count: n.VectorCount}, nil
}

// Query asks the data plane for FetchK matches with values and reranks them.
func (h *Hosted) Query(ctx context.Context, hd *Handle, vec []float32, opts QueryOptions) ([]Result, error) {
	if hd == nil {
		return nil, fmt.Errorf("nil handle")
	}
	if hd.Dimension != 0 && len(vec) != hd.Dimension {
		return nil, ErrDimensionMismatch{Expected: hd.Dimension, Got: len(vec)}
	}
	opts = opts.withDefaults()

	var resp hostedQueryResponse
	err := h.post(ctx, "/query", hostedQueryRequest{
		Namespace:       hd.Namespace.String(),
		Vector:          vec,
		TopK:            opts.FetchK,
		IncludeValues:   true,
		IncludeMetadata: true,
	}, &resp)
	if err != nil {
		return nil, cerrors.New(cerrors.ErrCodeStoreIO, "hosted query failed", err)
	}

	records := make([]Record, 0, len(resp.Matches))
	for _, m := range resp.Matches {
		r := Record{ID: m.ID, Vector: m.Values}
		r.Text, _ = m.Metadata[fieldText].(string)
		r.Source, _ = m.Metadata[fieldSource].(string)
		records = append(records, r)
	}
	return rank(vec, records, opts), nil
}

// DeleteNamespace deletes every vector of ns. A missing namespace is not an error.
func (h *Hosted) DeleteNamespace(ctx context.Context, ns Namespace) error {
	err := h.post(ctx, "/vectors/delete", hostedDeleteRequest{DeleteAll: true, Namespace: ns.String()}, nil)
	var se *statusError
	if errors.As(err, &se) && se.Status == http.StatusNotFound {
		return nil
	}
	return err
}

// List returns the namespaces prefixed "{owner}-", with the prefix removed.
func (h *Hosted) List(ctx context.Context, owner string) ([]string, error) {
	st, err := h.stats(ctx)
	if err != nil {
		return nil, err
	}
	prefix := owner + "-"
	names := make([]string, 0)
	for ns, info := range st.Namespaces {
		if info.VectorCount > 0 && strings.HasPrefix(ns, prefix) {
			names = append(names, strings.TrimPrefix(ns, prefix))
		}
	}
	sort.Strings(names)
	return names, nil
}

// Close releases idle connections.
func (h *Hosted) Close() error {
	h.client.CloseIdleConnections()
	return nil
}
