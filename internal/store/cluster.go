package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"

	cerrors "github.com/Aman-CERP/chatmydocs/internal/errors"
)

// Cluster field names.
const (
	fieldNamespace = "namespace"
	fieldOwner     = "owner"
	fieldKB        = "kb"
	fieldText      = "text"
	fieldSource    = "source"
	fieldVector    = "vector"
	fieldChunkID   = "chunk_id"

	internalDimension = "dimension"
	internalModel     = "model"

	// clusterPageSize is the hit page used when scanning a namespace.
	clusterPageSize = 1000

	// DefaultClusterIndex names the shared index when none is configured.
	DefaultClusterIndex = "chatmydocs"
)

// Cluster stores every knowledge base in one shared bleve index. Each
// document carries keyword fields for namespace, owner and kb, and every
// read is scoped by a namespace term query.
type Cluster struct {
	mu     sync.RWMutex
	index  bleve.Index
	path   string
	closed bool
}

var _ Strategy = (*Cluster)(nil)

// NewCluster opens or creates {root}/{name}.bleve. An empty root creates
// an in-memory index.
func NewCluster(root, name string) (*Cluster, error) {
	if name == "" {
		name = DefaultClusterIndex
	}
	m := clusterMapping()

	var (
		idx  bleve.Index
		err  error
		path string
	)
	if root == "" {
		idx, err = bleve.NewMemOnly(m)
	} else {
		if err := os.MkdirAll(root, 0o755); err != nil {
			return nil, cerrors.StoreCreationError(name, err)
		}
		path = filepath.Join(root, name+".bleve")
		idx, err = bleve.Open(path)
		if err == bleve.ErrorIndexPathDoesNotExist {
			idx, err = bleve.New(path, m)
		}
	}
	if err != nil {
		return nil, cerrors.StoreCreationError(name, fmt.Errorf("failed to create/open index: %w", err))
	}
	return &Cluster{index: idx, path: path}, nil
}

func clusterMapping() *mapping.IndexMappingImpl {
	keyword := bleve.NewKeywordFieldMapping()
	keyword.IncludeInAll = false

	stored := bleve.NewTextFieldMapping()
	stored.Index = false
	stored.Store = true
	stored.IncludeInAll = false
	stored.IncludeTermVectors = false

	text := bleve.NewTextFieldMapping()
	text.Store = true

	doc := bleve.NewDocumentStaticMapping()
	doc.AddFieldMappingsAt(fieldNamespace, keyword)
	doc.AddFieldMappingsAt(fieldOwner, keyword)
	doc.AddFieldMappingsAt(fieldKB, keyword)
	doc.AddFieldMappingsAt(fieldSource, keyword)
	doc.AddFieldMappingsAt(fieldText, text)
	doc.AddFieldMappingsAt(fieldVector, stored)
	doc.AddFieldMappingsAt(fieldChunkID, stored)

	m := bleve.NewIndexMapping()
	m.DefaultMapping = doc
	return m
}

// Kind returns KindCluster.
func (c *Cluster) Kind() Kind { return KindCluster }

func termQuery(field, value string) *query.TermQuery {
	q := bleve.NewTermQuery(value)
	q.SetField(field)
	return q
}

// scoped restricts q to ns.
func scoped(ns Namespace, q query.Query) query.Query {
	return bleve.NewConjunctionQuery(termQuery(fieldNamespace, ns.String()), q)
}

func docID(ns Namespace, recordID string) string {
	return ns.String() + "/" + recordID
}

// Build indexes records into the shared index under ns.
func (c *Cluster) Build(ctx context.Context, ns Namespace, records []Record, spec IndexSpec) (*Handle, error) {
	if err := ns.validate(); err != nil {
		return nil, cerrors.StoreCreationError(ns.String(), err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, cerrors.StoreCreationError(ns.String(), fmt.Errorf("index is closed"))
	}

	dims, model, err := c.meta()
	if err != nil {
		return nil, cerrors.StoreCreationError(ns.String(), err)
	}
	if dims != 0 && dims != spec.Dimension {
		return nil, cerrors.StoreCreationError(ns.String(), ErrDimensionMismatch{Expected: dims, Got: spec.Dimension})
	}
	if err := checkDimensions(records, spec.Dimension); err != nil {
		return nil, cerrors.StoreCreationError(ns.String(), err)
	}

	batch := c.index.NewBatch()
	for _, r := range records {
		vec, err := json.Marshal(r.Vector)
		if err != nil {
			return nil, cerrors.StoreCreationError(ns.String(), err)
		}
		doc := map[string]any{
			fieldNamespace: ns.String(),
			fieldOwner:     ns.Owner,
			fieldKB:        ns.Name,
			fieldText:      r.Text,
			fieldSource:    r.Source,
			fieldVector:    string(vec),
			fieldChunkID:   r.ID,
		}
		if err := batch.Index(docID(ns, r.ID), doc); err != nil {
			return nil, cerrors.StoreCreationError(ns.String(), fmt.Errorf("failed to index chunk %s: %w", r.ID, err))
		}
	}
	if err := c.index.Batch(batch); err != nil {
		return nil, cerrors.StoreCreationError(ns.String(), fmt.Errorf("failed to execute batch: %w", err))
	}

	if dims == 0 {
		if err := c.index.SetInternal([]byte(internalDimension), []byte(strconv.Itoa(spec.Dimension))); err != nil {
			return nil, cerrors.StoreCreationError(ns.String(), err)
		}
		if err := c.index.SetInternal([]byte(internalModel), []byte(spec.Model)); err != nil {
			return nil, cerrors.StoreCreationError(ns.String(), err)
		}
		dims, model = spec.Dimension, spec.Model
	}

	count, err := c.count(ctx, ns)
	if err != nil {
		return nil, cerrors.StoreCreationError(ns.String(), err)
	}
	slog.Debug("cluster namespace written",
		slog.String("namespace", ns.String()),
		slog.Int("added", len(records)),
		slog.Int("total", count))

	return &Handle{Namespace: ns, Kind: KindCluster, Dimension: dims, Model: model, Count: count}, nil
}

// meta reads the index-wide dimension and model; 0 means unset.
func (c *Cluster) meta() (int, string, error) {
	raw, err := c.index.GetInternal([]byte(internalDimension))
	if err != nil {
		return 0, "", err
	}
	if len(raw) == 0 {
		return 0, "", nil
	}
	dims, err := strconv.Atoi(string(raw))
	if err != nil {
		return 0, "", fmt.Errorf("corrupt index dimension %q: %w", raw, err)
	}
	model, err := c.index.GetInternal([]byte(internalModel))
	if err != nil {
		return 0, "", err
	}
	return dims, string(model), nil
}

func (c *Cluster) count(ctx context.Context, ns Namespace) (int, error) {
	req := bleve.NewSearchRequestOptions(scoped(ns, bleve.NewMatchAllQuery()), 0, 0, false)
	res, err := c.index.SearchInContext(ctx, req)
	if err != nil {
		return 0, err
	}
	return int(res.Total), nil
}

// Load reports the namespace if it holds any documents.
func (c *Cluster) Load(ctx context.Context, ns Namespace) (*Handle, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return nil, fmt.Errorf("index is closed")
	}

	count, err := c.count(ctx, ns)
	if err != nil {
		return nil, cerrors.New(cerrors.ErrCodeStoreIO, "failed to read index", err)
	}
	if count == 0 {
		return nil, nil
	}
	dims, model, err := c.meta()
	if err != nil {
		return nil, cerrors.New(cerrors.ErrCodeStoreIO, "failed to read index", err)
	}
	return &Handle{Namespace: ns, Kind: KindCluster, Dimension: dims, Model: model, Count: count}, nil
}

// Query scores every document of the namespace against vec.
func (c *Cluster) Query(ctx context.Context, h *Handle, vec []float32, opts QueryOptions) ([]Result, error) {
	if h == nil {
		return nil, fmt.Errorf("nil handle")
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return nil, fmt.Errorf("index is closed")
	}

	dims, _, err := c.meta()
	if err != nil {
		return nil, cerrors.New(cerrors.ErrCodeStoreIO, "failed to read index", err)
	}
	if dims != 0 && len(vec) != dims {
		return nil, ErrDimensionMismatch{Expected: dims, Got: len(vec)}
	}

	var records []Record
	err = c.scan(ctx, scoped(h.Namespace, bleve.NewMatchAllQuery()),
		[]string{fieldChunkID, fieldText, fieldSource, fieldVector},
		func(_ string, fields map[string]any) error {
			r := Record{
				ID:     stringField(fields, fieldChunkID),
				Text:   stringField(fields, fieldText),
				Source: stringField(fields, fieldSource),
			}
			if err := json.Unmarshal([]byte(stringField(fields, fieldVector)), &r.Vector); err != nil {
				return fmt.Errorf("chunk %s: corrupt vector: %w", r.ID, err)
			}
			records = append(records, r)
			return nil
		})
	if err != nil {
		return nil, cerrors.New(cerrors.ErrCodeStoreIO, "failed to read namespace "+h.Namespace.String(), err)
	}
	return rank(vec, records, opts), nil
}

// scan pages through every hit of q in a stable order.
func (c *Cluster) scan(ctx context.Context, q query.Query, fields []string, fn func(id string, fields map[string]any) error) error {
	for from := 0; ; from += clusterPageSize {
		req := bleve.NewSearchRequestOptions(q, clusterPageSize, from, false)
		req.Fields = fields
		req.SortBy([]string{"_id"})
		res, err := c.index.SearchInContext(ctx, req)
		if err != nil {
			return err
		}
		for _, hit := range res.Hits {
			if err := fn(hit.ID, hit.Fields); err != nil {
				return err
			}
		}
		if len(res.Hits) < clusterPageSize {
			return nil
		}
	}
}

// DeleteNamespace removes every document of ns.
func (c *Cluster) DeleteNamespace(ctx context.Context, ns Namespace) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return fmt.Errorf("index is closed")
	}

	var ids []string
	if err := c.scan(ctx, scoped(ns, bleve.NewMatchAllQuery()), nil, func(id string, _ map[string]any) error {
		ids = append(ids, id)
		return nil
	}); err != nil {
		return fmt.Errorf("failed to find documents of %s: %w", ns, err)
	}
	if len(ids) == 0 {
		return nil
	}

	batch := c.index.NewBatch()
	for _, id := range ids {
		batch.Delete(id)
	}
	if err := c.index.Batch(batch); err != nil {
		return fmt.Errorf("failed to delete documents: %w", err)
	}
	return nil
}

// List collects the distinct kb values of owner's documents.
func (c *Cluster) List(ctx context.Context, owner string) ([]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return nil, fmt.Errorf("index is closed")
	}

	seen := make(map[string]struct{})
	err := c.scan(ctx, termQuery(fieldOwner, owner), []string{fieldKB}, func(_ string, fields map[string]any) error {
		if kb := stringField(fields, fieldKB); kb != "" {
			seen[kb] = struct{}{}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	sort.Strings(names)
	return names, nil
}

// Close closes the shared index.
func (c *Cluster) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.index.Close()
}

func stringField(fields map[string]any, name string) string {
	if v, ok := fields[name].(string); ok {
		return v
	}
	return ""
}
