package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	cerrors "github.com/Aman-CERP/chatmydocs/internal/errors"
)

const (
	chunksDBName  = "chunks.db"
	graphFileName = "vectors.hnsw"

	// localOpenIndexes bounds the number of knowledge bases kept open.
	localOpenIndexes = 16
)

var errIndexClosed = errors.New("index is closed")

// Local keeps one physical index per knowledge base under
// {root}/{owner}/{name}: an HNSW graph plus a SQLite file holding chunk
// text, source and vectors.
type Local struct {
	root string

	mu   sync.Mutex
	open *lru.Cache[string, *localIndex]
}

var _ Strategy = (*Local)(nil)

// localIndex is one open knowledge base.
type localIndex struct {
	mu    sync.RWMutex
	dir   string
	db    *sql.DB
	graph *vectorGraph
	dims  int
	model string
}

// NewLocal creates the LOCAL strategy rooted at root.
func NewLocal(root string) (*Local, error) {
	if root == "" {
		return nil, cerrors.ConfigError("local store root is not set", nil)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, cerrors.StoreCreationError(root, err)
	}
	cache, err := lru.NewWithEvict[string, *localIndex](localOpenIndexes, func(_ string, idx *localIndex) {
		idx.close()
	})
	if err != nil {
		return nil, err
	}
	return &Local{root: root, open: cache}, nil
}

// Kind returns KindLocal.
func (l *Local) Kind() Kind { return KindLocal }

// Dir returns the directory of ns.
func (l *Local) Dir(ns Namespace) string {
	return filepath.Join(l.root, ns.Owner, ns.Name)
}

// Build creates or appends to the knowledge base index.
func (l *Local) Build(ctx context.Context, ns Namespace, records []Record, spec IndexSpec) (*Handle, error) {
	if err := ns.validate(); err != nil {
		return nil, cerrors.StoreCreationError(ns.String(), err)
	}
	if spec.Dimension <= 0 {
		return nil, cerrors.StoreCreationError(ns.String(), fmt.Errorf("invalid dimension %d", spec.Dimension))
	}

	idx, err := l.index(ns, true)
	if err != nil {
		return nil, cerrors.StoreCreationError(ns.String(), err)
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	if idx.db == nil {
		return nil, cerrors.StoreCreationError(ns.String(), errIndexClosed)
	}
	if idx.dims != 0 && idx.dims != spec.Dimension {
		return nil, cerrors.StoreCreationError(ns.String(), ErrDimensionMismatch{Expected: idx.dims, Got: spec.Dimension})
	}
	if err := checkDimensions(records, spec.Dimension); err != nil {
		return nil, cerrors.StoreCreationError(ns.String(), err)
	}

	keys, vecs, err := idx.insert(ctx, records, spec)
	if err != nil {
		return nil, cerrors.StoreCreationError(ns.String(), err)
	}

	if idx.graph == nil || idx.graph.dims != spec.Dimension {
		idx.graph = newVectorGraph(spec.Dimension)
	}
	if err := idx.graph.add(keys, vecs); err != nil {
		return nil, cerrors.StoreCreationError(ns.String(), err)
	}
	if err := idx.graph.save(filepath.Join(idx.dir, graphFileName)); err != nil {
		return nil, cerrors.StoreCreationError(ns.String(), err)
	}
	idx.dims = spec.Dimension
	if idx.model == "" {
		idx.model = spec.Model
	}

	slog.Debug("local index written",
		slog.String("namespace", ns.String()),
		slog.Int("added", len(keys)),
		slog.Int("total", idx.graph.len()))

	return &Handle{
		Namespace: ns,
		Kind:      KindLocal,
		Dimension: idx.dims,
		Model:     idx.model,
		Count:     idx.graph.len(),
	}, nil
}

// Load opens an existing knowledge base index.
func (l *Local) Load(_ context.Context, ns Namespace) (*Handle, error) {
	if err := ns.validate(); err != nil {
		return nil, err
	}
	if !fileExists(filepath.Join(l.Dir(ns), chunksDBName)) {
		return nil, nil
	}
	idx, err := l.index(ns, false)
	if err != nil {
		return nil, cerrors.New(cerrors.ErrCodeStoreIO, "failed to open index "+ns.String(), err)
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()
	count := 0
	if idx.graph != nil {
		count = idx.graph.len()
	}
	return &Handle{Namespace: ns, Kind: KindLocal, Dimension: idx.dims, Model: idx.model, Count: count}, nil
}

// Query searches the HNSW graph for FetchK neighbours and reranks them.
func (l *Local) Query(ctx context.Context, h *Handle, vec []float32, opts QueryOptions) ([]Result, error) {
	if h == nil {
		return nil, fmt.Errorf("nil handle")
	}
	idx, err := l.index(h.Namespace, false)
	if err != nil {
		return nil, cerrors.New(cerrors.ErrCodeStoreIO, "failed to open index "+h.Namespace.String(), err)
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if idx.db == nil {
		return nil, errIndexClosed
	}
	if idx.graph == nil {
		return nil, nil
	}
	opts = opts.withDefaults()
	keys, err := idx.graph.search(vec, opts.FetchK)
	if err != nil {
		return nil, err
	}
	records, err := idx.fetch(ctx, keys)
	if err != nil {
		return nil, cerrors.New(cerrors.ErrCodeStoreIO, "failed to read chunks", err)
	}
	return rank(vec, records, opts), nil
}

// DeleteNamespace removes the knowledge base directory.
func (l *Local) DeleteNamespace(_ context.Context, ns Namespace) error {
	if err := ns.validate(); err != nil {
		return err
	}
	l.mu.Lock()
	l.open.Remove(l.Dir(ns))
	l.mu.Unlock()

	if err := os.RemoveAll(l.Dir(ns)); err != nil {
		return fmt.Errorf("failed to remove %s: %w", ns, err)
	}
	return nil
}

// List returns subdirectories of the owner's directory holding a chunk database.
func (l *Local) List(_ context.Context, owner string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(l.root, owner))
	if os.IsNotExist(err) {
		return []string{}, nil
	}
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		if fileExists(filepath.Join(l.root, owner, e.Name(), chunksDBName)) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// Close closes every open index.
func (l *Local) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.open.Purge()
	return nil
}

// index returns the open index for ns, opening it if needed.
func (l *Local) index(ns Namespace, create bool) (*localIndex, error) {
	dir := l.Dir(ns)

	l.mu.Lock()
	defer l.mu.Unlock()

	if idx, ok := l.open.Get(dir); ok {
		return idx, nil
	}
	if !create && !fileExists(filepath.Join(dir, chunksDBName)) {
		return nil, fmt.Errorf("index %s does not exist", ns)
	}
	idx, err := openLocalIndex(dir)
	if err != nil {
		return nil, err
	}
	l.open.Add(dir, idx)
	return idx, nil
}

func openLocalIndex(dir string) (*localIndex, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", filepath.Join(dir, chunksDBName))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Single writer to prevent lock contention
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	const schema = `
	CREATE TABLE IF NOT EXISTS meta (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS chunks (
		id       INTEGER PRIMARY KEY AUTOINCREMENT,
		chunk_id TEXT NOT NULL UNIQUE,
		text     TEXT NOT NULL,
		source   TEXT NOT NULL,
		vector   BLOB NOT NULL
	);`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	idx := &localIndex{dir: dir, db: db}
	if err := idx.readMeta(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if idx.dims > 0 {
		g, err := loadVectorGraph(filepath.Join(dir, graphFileName), idx.dims)
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		idx.graph = g
	}
	return idx, nil
}

func (idx *localIndex) readMeta() error {
	rows, err := idx.db.Query(`SELECT key, value FROM meta`)
	if err != nil {
		return fmt.Errorf("failed to read meta: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return err
		}
		switch k {
		case "dimension":
			d, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("corrupt dimension %q: %w", v, err)
			}
			idx.dims = d
		case "model":
			idx.model = v
		}
	}
	return rows.Err()
}

// insert stores records and returns the row ids and vectors of those not
// already present.
func (idx *localIndex) insert(ctx context.Context, records []Record, spec IndexSpec) ([]uint64, [][]float32, error) {
	tx, err := idx.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO meta(key, value) VALUES ('dimension', ?), ('model', ?)`,
		strconv.Itoa(spec.Dimension), spec.Model); err != nil {
		return nil, nil, fmt.Errorf("failed to write meta: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR IGNORE INTO chunks(chunk_id, text, source, vector) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = stmt.Close() }()

	keys := make([]uint64, 0, len(records))
	vecs := make([][]float32, 0, len(records))
	for _, r := range records {
		res, err := stmt.ExecContext(ctx, r.ID, r.Text, r.Source, encodeVector(r.Vector))
		if err != nil {
			return nil, nil, fmt.Errorf("failed to insert chunk %s: %w", r.ID, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			continue
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, nil, err
		}
		keys = append(keys, uint64(id))
		vecs = append(vecs, r.Vector)
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("failed to commit: %w", err)
	}
	return keys, vecs, nil
}

// fetch loads records by row id, preserving the order of keys.
func (idx *localIndex) fetch(ctx context.Context, keys []uint64) ([]Record, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	args := make([]any, len(keys))
	for i, k := range keys {
		args[i] = int64(k)
	}
	q := `SELECT id, chunk_id, text, source, vector FROM chunks WHERE id IN (?` +
		strings.Repeat(",?", len(keys)-1) + `)`

	rows, err := idx.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	byKey := make(map[uint64]Record, len(keys))
	for rows.Next() {
		var (
			id   int64
			r    Record
			blob []byte
		)
		if err := rows.Scan(&id, &r.ID, &r.Text, &r.Source, &blob); err != nil {
			return nil, err
		}
		if r.Vector, err = decodeVector(blob); err != nil {
			return nil, fmt.Errorf("chunk %s: %w", r.ID, err)
		}
		byKey[uint64(id)] = r
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]Record, 0, len(keys))
	for _, k := range keys {
		if r, ok := byKey[k]; ok {
			out = append(out, r)
		}
	}
	return out, nil
}

func (idx *localIndex) close() {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.db != nil {
		if err := idx.db.Close(); err != nil {
			slog.Warn("failed to close chunk database",
				slog.String("dir", idx.dir),
				slog.String("error", err.Error()))
		}
		idx.db = nil
	}
}

// encodeVector packs v as little-endian float32.
func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(x))
	}
	return buf
}

func decodeVector(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, errors.New("vector blob length is not a multiple of 4")
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v, nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
