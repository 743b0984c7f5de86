// Package store persists chunk embeddings and answers similarity queries
// behind one Strategy interface. LOCAL keeps one on-disk index per knowledge
// base, CLUSTER shares a single search index partitioned by namespace, and
// HOSTED talks to a managed vector database.
package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/Aman-CERP/chatmydocs/internal/chunk"
	"github.com/Aman-CERP/chatmydocs/internal/config"
	cerrors "github.com/Aman-CERP/chatmydocs/internal/errors"
)

// Kind names a storage strategy.
type Kind string

const (
	KindLocal   Kind = "local"
	KindCluster Kind = "cluster"
	KindHosted  Kind = "hosted"
)

// ParseKind maps a config backend name to a Kind.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindLocal, KindCluster, KindHosted:
		return k, nil
	case "":
		return KindLocal, nil
	default:
		return "", cerrors.ConfigError("unknown store backend: "+s, nil).
			WithSuggestion("Use one of: local, cluster, hosted")
	}
}

// Namespace partitions records by owner and sanitized knowledge-base name.
type Namespace struct {
	Owner string
	Name  string
}

// String returns the locator "{owner}-{name}".
func (n Namespace) String() string {
	return n.Owner + "-" + n.Name
}

func (n Namespace) validate() error {
	if n.Owner == "" || n.Name == "" {
		return fmt.Errorf("namespace needs both owner and name, got %q", n.String())
	}
	return nil
}

// Record is one embedded chunk.
type Record struct {
	ID     string
	Vector []float32
	Text   string
	Source string
}

// Result is a ranked retrieval hit.
type Result struct {
	Chunk chunk.Chunk
	Score float32
}

// Retrieval defaults.
const (
	DefaultK      = 5
	DefaultFetchK = 50
	DefaultLambda = 0.5
)

// QueryOptions controls retrieval. When FetchK > K, maximal marginal
// relevance picks K results from the FetchK nearest.
type QueryOptions struct {
	K      int
	FetchK int
	Lambda float64
}

func (o QueryOptions) withDefaults() QueryOptions {
	if o.K <= 0 {
		o.K = DefaultK
	}
	if o.FetchK < o.K {
		o.FetchK = o.K
	}
	if o.Lambda <= 0 || o.Lambda > 1 {
		o.Lambda = DefaultLambda
	}
	return o
}

// IndexSpec describes the vectors being written.
type IndexSpec struct {
	Dimension int
	Model     string
}

// Handle refers to an existing namespace in a strategy.
type Handle struct {
	Namespace Namespace
	Kind      Kind
	Dimension int
	Model     string
	Count     int
}

// ErrDimensionMismatch is returned when vectors do not fit an index.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: index has %d, got %d", e.Expected, e.Got)
}

// Strategy is a vector store backend.
type Strategy interface {
	Kind() Kind

	// Build creates the namespace or appends to it.
	Build(ctx context.Context, ns Namespace, records []Record, spec IndexSpec) (*Handle, error)

	// Load returns nil, nil when the namespace does not exist.
	Load(ctx context.Context, ns Namespace) (*Handle, error)

	// Query returns hits from h's namespace only.
	Query(ctx context.Context, h *Handle, vec []float32, opts QueryOptions) ([]Result, error)

	// DeleteNamespace removes every record of ns. Deleting a missing
	// namespace succeeds.
	DeleteNamespace(ctx context.Context, ns Namespace) error

	// List returns the sanitized knowledge-base names held for owner.
	List(ctx context.Context, owner string) ([]string, error)

	Close() error
}

// ErrZeroVector is returned for a vector with no direction. Cosine distance
// to it is undefined.
type ErrZeroVector struct {
	ID string
}

func (e ErrZeroVector) Error() string {
	return fmt.Sprintf("record %q has a zero vector", e.ID)
}

// IsZero reports whether v has zero magnitude.
func IsZero(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}

// checkDimensions verifies every record against dim and rejects zero vectors.
func checkDimensions(records []Record, dim int) error {
	for _, r := range records {
		if len(r.Vector) != dim {
			return ErrDimensionMismatch{Expected: dim, Got: len(r.Vector)}
		}
		if IsZero(r.Vector) {
			return ErrZeroVector{ID: r.ID}
		}
	}
	return nil
}

// Open builds the strategy selected by cfg.Backend.
func Open(cfg config.StoreConfig) (Strategy, error) {
	kind, err := ParseKind(cfg.Backend)
	if err != nil {
		return nil, err
	}
	switch kind {
	case KindCluster:
		return NewCluster(cfg.Cluster.Root, cfg.Cluster.Index)
	case KindHosted:
		return NewHosted(HostedConfig{
			Host:    cfg.Hosted.Host,
			APIKey:  cfg.Hosted.APIKey,
			Timeout: cfg.Hosted.Timeout,
		})
	default:
		return NewLocal(cfg.Local.Root)
	}
}
