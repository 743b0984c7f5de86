// Package kb manages the lifecycle of owner-scoped knowledge bases: creation
// from uploads, listing, loading, deletion and chat-history persistence.
package kb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/Aman-CERP/chatmydocs/internal/blob"
	"github.com/Aman-CERP/chatmydocs/internal/chunk"
	"github.com/Aman-CERP/chatmydocs/internal/embed"
	cerrors "github.com/Aman-CERP/chatmydocs/internal/errors"
	"github.com/Aman-CERP/chatmydocs/internal/extract"
	"github.com/Aman-CERP/chatmydocs/internal/store"
)

// Delete parts, as reported by PartialDeleteFailure.
const (
	PartVectors  = "vectors"
	PartManifest = "manifest"
	PartHistory  = "history"
	PartFiles    = "files"
)

// embedBatchSize is the number of chunks sent per embedding request.
const embedBatchSize = 64

// Extractor turns uploads into documents.
type Extractor interface {
	Batch(ctx context.Context, files []extract.File, policy extract.Policy) ([]extract.Document, []extract.Warning, error)
}

// Options configures a Manager.
type Options struct {
	Extractor Extractor
	Chunker   *chunk.Chunker
	Embedder  embed.Embedder
	Store     store.Strategy
	Blobs     blob.Store
	Policy    extract.Policy

	// LockDir enables cross-process lock files. Set it for the local backend.
	LockDir string

	Logger *slog.Logger
}

// Manager coordinates extraction, embedding, the vector store and the blob
// store for every knowledge base.
type Manager struct {
	extractor Extractor
	chunker   *chunk.Chunker
	embedder  embed.Embedder
	store     store.Strategy
	blobs     blob.Store
	policy    extract.Policy
	locker    *Locker
	logger    *slog.Logger

	now func() time.Time
}

// NewManager creates a Manager.
func NewManager(opts Options) (*Manager, error) {
	switch {
	case opts.Extractor == nil:
		return nil, cerrors.InternalError("kb manager requires an extractor", nil)
	case opts.Chunker == nil:
		return nil, cerrors.InternalError("kb manager requires a chunker", nil)
	case opts.Embedder == nil:
		return nil, cerrors.InternalError("kb manager requires an embedder", nil)
	case opts.Store == nil:
		return nil, cerrors.InternalError("kb manager requires a vector store", nil)
	case opts.Blobs == nil:
		return nil, cerrors.InternalError("kb manager requires a blob store", nil)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	policy := opts.Policy
	if policy == "" {
		policy = extract.PolicyAbort
	}

	return &Manager{
		extractor: opts.Extractor,
		chunker:   opts.Chunker,
		embedder:  opts.Embedder,
		store:     opts.Store,
		blobs:     opts.Blobs,
		policy:    policy,
		locker:    NewLocker(opts.LockDir),
		logger:    logger,
		now:       time.Now,
	}, nil
}

// Create builds a new knowledge base from files. Nothing is rolled back on
// failure; a later Delete removes partial state.
func (m *Manager) Create(ctx context.Context, owner, name string, files []extract.File) (*CreateResult, error) {
	ns, err := m.namespace(owner, name)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, cerrors.ValidationError("no files to ingest", nil).
			WithSuggestion("Upload at least one document")
	}

	unlock, err := m.locker.Lock(ns.Owner, ns.Name)
	if err != nil {
		return nil, cerrors.New(cerrors.ErrCodeStoreIO, "failed to lock knowledge base", err)
	}
	defer unlock()

	existing, err := m.store.Load(ctx, ns)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, cerrors.New(cerrors.ErrCodeInvalidName,
			fmt.Sprintf("knowledge base %q already exists", name), nil).
			WithSuggestion("Choose another name or add documents to the existing knowledge base")
	}

	if err := m.putFiles(ctx, ns, files); err != nil {
		return nil, err
	}

	h, chunks, warnings, err := m.ingest(ctx, ns, files)
	if err != nil {
		return nil, err
	}
	sources := uploadNames(files)

	now := m.now().UTC()
	meta := metadata{
		Name:      strings.TrimSpace(name),
		Backend:   h.Kind,
		Model:     m.embedder.ModelName(),
		Dimension: h.Dimension,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := m.writeManifest(ctx, ns, sources); err != nil {
		return nil, err
	}
	if err := m.writeJSON(ctx, key(ns, metadataFile), meta); err != nil {
		return nil, err
	}

	m.logger.Info("knowledge base created",
		slog.String("owner", ns.Owner),
		slog.String("kb", ns.Name),
		slog.Int("documents", len(sources)),
		slog.Int("chunks", chunks),
		slog.Int("warnings", len(warnings)))

	return &CreateResult{
		KB:       m.knowledgeBase(ns, h, meta, sources),
		Warnings: warnings,
		Chunks:   chunks,
	}, nil
}

// AddDocuments appends files to an existing knowledge base.
func (m *Manager) AddDocuments(ctx context.Context, owner, name string, files []extract.File) (*CreateResult, error) {
	ns, err := m.namespace(owner, name)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, cerrors.ValidationError("no files to ingest", nil)
	}

	unlock, err := m.locker.Lock(ns.Owner, ns.Name)
	if err != nil {
		return nil, cerrors.New(cerrors.ErrCodeStoreIO, "failed to lock knowledge base", err)
	}
	defer unlock()

	current, err := m.load(ctx, ns, name)
	if err != nil {
		return nil, err
	}

	if err := m.putFiles(ctx, ns, files); err != nil {
		return nil, err
	}
	h, chunks, warnings, err := m.ingest(ctx, ns, files)
	if err != nil {
		return nil, err
	}
	added := uploadNames(files)

	sources := mergeSources(current.SourceDocuments, added)
	if err := m.writeManifest(ctx, ns, sources); err != nil {
		return nil, err
	}
	meta := metadata{
		Name:      current.Name,
		Backend:   h.Kind,
		Model:     m.embedder.ModelName(),
		Dimension: h.Dimension,
		CreatedAt: current.CreatedAt,
		UpdatedAt: m.now().UTC(),
	}
	if err := m.writeJSON(ctx, key(ns, metadataFile), meta); err != nil {
		return nil, err
	}

	m.logger.Info("documents added",
		slog.String("owner", ns.Owner),
		slog.String("kb", ns.Name),
		slog.Int("documents", len(added)),
		slog.Int("chunks", chunks))

	return &CreateResult{
		KB:       m.knowledgeBase(ns, h, meta, sources),
		Warnings: warnings,
		Chunks:   chunks,
	}, nil
}

// ingest runs extraction, chunking, embedding and the store build. It
// returns the number of chunks indexed.
func (m *Manager) ingest(ctx context.Context, ns store.Namespace, files []extract.File) (*store.Handle, int, []extract.Warning, error) {
	var (
		docs     []extract.Document
		warnings []extract.Warning
	)
	for i, f := range files {
		report(ctx, ProgressEvent{Stage: StageExtracting, Current: i, Total: len(files), File: f.Name})
		d, w, err := m.extractor.Batch(ctx, files[i:i+1], m.policy)
		warnings = append(warnings, w...)
		if err != nil {
			return nil, 0, warnings, err
		}
		docs = append(docs, d...)
	}
	report(ctx, ProgressEvent{Stage: StageExtracting, Current: len(files), Total: len(files)})
	if len(docs) == 0 {
		return nil, 0, warnings, cerrors.ExtractionError(files[0].Name,
			errors.New("no text could be extracted from the uploaded files"))
	}

	report(ctx, ProgressEvent{Stage: StageChunking, Total: len(docs)})
	chunks := indexable(m.chunker.SplitAll(docs))
	report(ctx, ProgressEvent{Stage: StageChunking, Current: len(docs), Total: len(docs)})
	if len(chunks) == 0 {
		return nil, 0, warnings, cerrors.ExtractionError(files[0].Name,
			errors.New("uploaded files contain no indexable text"))
	}

	dim, err := embed.Probe(ctx, m.embedder)
	if err != nil {
		return nil, 0, warnings, asProviderError("probe", err)
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors := make([][]float32, 0, len(texts))
	report(ctx, ProgressEvent{Stage: StageEmbedding, Total: len(texts)})
	for start := 0; start < len(texts); start += embedBatchSize {
		end := min(start+embedBatchSize, len(texts))
		batch, err := m.embedder.EmbedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, 0, warnings, asProviderError("batch", err)
		}
		if len(batch) != end-start {
			return nil, 0, warnings, cerrors.EmbeddingProviderError("batch",
				fmt.Errorf("got %d vectors for %d chunks", len(batch), end-start))
		}
		vectors = append(vectors, batch...)
		report(ctx, ProgressEvent{Stage: StageEmbedding, Current: end, Total: len(texts)})
	}

	records := make([]store.Record, 0, len(chunks))
	for i, c := range chunks {
		if store.IsZero(vectors[i]) {
			m.logger.Warn("skipping chunk without embedding signal",
				slog.String("kb", ns.String()),
				slog.String("file", c.Metadata.Source),
				slog.Int("chunk", c.Index))
			continue
		}
		records = append(records, store.Record{
			ID:     c.ID,
			Vector: vectors[i],
			Text:   c.Text,
			Source: c.Metadata.Source,
		})
	}
	if len(records) == 0 {
		return nil, 0, warnings, cerrors.ExtractionError(files[0].Name,
			errors.New("uploaded files contain no indexable text"))
	}

	report(ctx, ProgressEvent{Stage: StageIndexing, Total: len(records)})
	h, err := m.store.Build(ctx, ns, records, store.IndexSpec{
		Dimension: dim,
		Model:     m.embedder.ModelName(),
	})
	if err != nil {
		return nil, 0, warnings, err
	}

	report(ctx, ProgressEvent{Stage: StageIndexing, Current: len(records), Total: len(records)})

	return h, len(records), warnings, nil
}

// List returns the knowledge bases of owner sorted by name.
func (m *Manager) List(ctx context.Context, owner string) ([]Summary, error) {
	if err := ValidateOwner(owner); err != nil {
		return nil, err
	}

	names, err := m.store.List(ctx, owner)
	if err != nil {
		return nil, err
	}
	sort.Strings(names)

	out := make([]Summary, 0, len(names))
	for _, n := range names {
		ns := store.Namespace{Owner: owner, Name: n}
		s := Summary{Name: n, DisplayName: DisplayName(n)}

		var meta metadata
		if ok, err := m.readJSON(ctx, key(ns, metadataFile), &meta); err != nil {
			m.logger.Warn("unreadable kb metadata", slog.String("kb", ns.String()), slog.String("error", err.Error()))
		} else if ok {
			if meta.Name != "" {
				s.DisplayName = meta.Name
			}
			s.CreatedAt = meta.CreatedAt
		}

		var sources []string
		if _, err := m.readJSON(ctx, key(ns, manifestFile), &sources); err != nil {
			m.logger.Warn("unreadable manifest", slog.String("kb", ns.String()), slog.String("error", err.Error()))
		}
		s.Documents = len(sources)

		out = append(out, s)
	}
	return out, nil
}

// Load opens an existing knowledge base.
func (m *Manager) Load(ctx context.Context, owner, name string) (*KnowledgeBase, error) {
	ns, err := m.namespace(owner, name)
	if err != nil {
		return nil, err
	}
	return m.load(ctx, ns, name)
}

func (m *Manager) load(ctx context.Context, ns store.Namespace, name string) (*KnowledgeBase, error) {
	h, err := m.store.Load(ctx, ns)
	if err != nil {
		return nil, err
	}
	if h == nil {
		return nil, cerrors.NotFoundFailure(ns.Owner, name)
	}

	var meta metadata
	if _, err := m.readJSON(ctx, key(ns, metadataFile), &meta); err != nil {
		return nil, err
	}
	var sources []string
	if _, err := m.readJSON(ctx, key(ns, manifestFile), &sources); err != nil {
		return nil, err
	}

	built := meta.Model
	if built == "" {
		built = h.Model
	}
	if active := m.embedder.ModelName(); built != "" && built != active {
		return nil, cerrors.EmbeddingMismatchError(ns.Name, built, active)
	}

	if meta.Name == "" {
		meta.Name = DisplayName(ns.Name)
	}
	return m.knowledgeBase(ns, h, meta, sources), nil
}

// Delete removes every part of a knowledge base. Each part is attempted even
// when an earlier one fails. Deleting a missing knowledge base succeeds.
func (m *Manager) Delete(ctx context.Context, owner, name string) error {
	ns, err := m.namespace(owner, name)
	if err != nil {
		return err
	}

	unlock, err := m.locker.Lock(ns.Owner, ns.Name)
	if err != nil {
		return cerrors.New(cerrors.ErrCodeStoreIO, "failed to lock knowledge base", err)
	}
	defer unlock()

	failed := make(map[string]error)
	if err := m.store.DeleteNamespace(ctx, ns); err != nil {
		failed[PartVectors] = err
	}
	if err := errors.Join(
		m.blobs.Delete(ctx, key(ns, manifestFile)),
		m.blobs.Delete(ctx, key(ns, metadataFile)),
	); err != nil {
		failed[PartManifest] = err
	}
	if err := m.blobs.Delete(ctx, key(ns, historyFile)); err != nil {
		failed[PartHistory] = err
	}
	if err := m.blobs.Delete(ctx, key(ns, filesDir)); err != nil {
		failed[PartFiles] = err
	}

	if len(failed) > 0 {
		m.logger.Error("knowledge base partially deleted",
			slog.String("owner", ns.Owner),
			slog.String("kb", ns.Name),
			slog.Int("failed_parts", len(failed)))
		return cerrors.PartialDeleteFailure(ns.Owner, name, failed)
	}

	// Leftover keys under the prefix are not tracked parts.
	if err := m.blobs.Delete(ctx, prefix(ns.Owner, ns.Name)); err != nil {
		m.logger.Warn("failed to clean knowledge base prefix", slog.String("error", err.Error()))
	}

	m.logger.Info("knowledge base deleted", slog.String("owner", ns.Owner), slog.String("kb", ns.Name))
	return nil
}

// History decodes the saved chat history into v. A missing history leaves v
// untouched.
func (m *Manager) History(ctx context.Context, owner, name string, v any) error {
	ns, err := m.namespace(owner, name)
	if err != nil {
		return err
	}
	_, err = m.readJSON(ctx, key(ns, historyFile), v)
	return err
}

// SaveHistory stores the chat history. Guest histories are not persisted.
func (m *Manager) SaveHistory(ctx context.Context, owner, name string, history any) error {
	if IsGuest(owner) {
		return nil
	}
	ns, err := m.namespace(owner, name)
	if err != nil {
		return err
	}
	return m.writeJSON(ctx, key(ns, historyFile), history)
}

// Embedder returns the active embedder.
func (m *Manager) Embedder() embed.Embedder { return m.embedder }

// Store returns the vector store strategy.
func (m *Manager) Store() store.Strategy { return m.store }

func (m *Manager) namespace(owner, name string) (store.Namespace, error) {
	if err := ValidateOwner(owner); err != nil {
		return store.Namespace{}, err
	}
	sanitized, err := validateName(name)
	if err != nil {
		return store.Namespace{}, err
	}
	return store.Namespace{Owner: owner, Name: sanitized}, nil
}

func (m *Manager) knowledgeBase(ns store.Namespace, h *store.Handle, meta metadata, sources []string) *KnowledgeBase {
	model := meta.Model
	if model == "" {
		model = h.Model
	}
	dim := h.Dimension
	if dim == 0 {
		dim = meta.Dimension
	}
	if sources == nil {
		sources = []string{}
	}
	return &KnowledgeBase{
		Owner:           ns.Owner,
		Name:            meta.Name,
		SanitizedName:   ns.Name,
		SourceDocuments: sources,
		Locator:         ns.String(),
		Backend:         h.Kind,
		EmbeddingModel:  model,
		Dimension:       dim,
		CreatedAt:       meta.CreatedAt,
		Handle:          h,
	}
}

func (m *Manager) putFiles(ctx context.Context, ns store.Namespace, files []extract.File) error {
	for _, f := range files {
		data, err := f.Bytes()
		if err != nil {
			return cerrors.ExtractionError(f.Name, err)
		}
		if err := m.blobs.Put(ctx, key(ns, filesDir+fileKey(f.Name)), data); err != nil {
			return cerrors.New(cerrors.ErrCodeStoreIO, fmt.Sprintf("failed to store %q", f.Name), err)
		}
	}
	return nil
}

func (m *Manager) writeManifest(ctx context.Context, ns store.Namespace, sources []string) error {
	return m.writeJSON(ctx, key(ns, manifestFile), sources)
}

func (m *Manager) writeJSON(ctx context.Context, k string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return cerrors.InternalError("failed to encode "+k, err)
	}
	if err := m.blobs.Put(ctx, k, data); err != nil {
		return cerrors.New(cerrors.ErrCodeStoreIO, "failed to write "+k, err)
	}
	return nil
}

// readJSON reports false when k does not exist.
func (m *Manager) readJSON(ctx context.Context, k string, v any) (bool, error) {
	data, err := m.blobs.Get(ctx, k)
	if errors.Is(err, blob.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, cerrors.New(cerrors.ErrCodeStoreIO, "failed to read "+k, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, cerrors.New(cerrors.ErrCodeStoreIO, "corrupt "+k, err)
	}
	return true, nil
}

func key(ns store.Namespace, name string) string {
	return prefix(ns.Owner, ns.Name) + name
}

// fileKey turns an upload name into a relative blob key. Directory parts are
// kept so equal base names from different folders do not collide.
func fileKey(name string) string {
	cleaned := path.Clean("/" + strings.ReplaceAll(name, "\\", "/"))
	parts := make([]string, 0, 4)
	for _, p := range strings.Split(cleaned, "/") {
		if p == "" || p == "." || p == ".." {
			continue
		}
		parts = append(parts, p)
	}
	if len(parts) == 0 {
		return "upload"
	}
	return strings.Join(parts, "/")
}

// uploadNames returns distinct upload names in upload order, including
// files that produced no text.
func uploadNames(files []extract.File) []string {
	names := make([]string, len(files))
	for i, f := range files {
		names[i] = f.Name
	}
	return mergeSources(nil, names)
}

// indexable drops whitespace-only chunks; they embed to a zero vector.
func indexable(chunks []chunk.Chunk) []chunk.Chunk {
	out := chunks[:0:0]
	for _, c := range chunks {
		if strings.TrimSpace(c.Text) == "" {
			continue
		}
		out = append(out, c)
	}
	return out
}

func mergeSources(existing, added []string) []string {
	seen := make(map[string]bool, len(existing)+len(added))
	out := make([]string, 0, len(existing)+len(added))
	for _, s := range append(append([]string{}, existing...), added...) {
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

func asProviderError(op string, err error) error {
	var ce *cerrors.Error
	if errors.As(err, &ce) {
		return err
	}
	return cerrors.EmbeddingProviderError(op, err)
}
