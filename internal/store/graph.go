package store

import (
	"bufio"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/coder/hnsw"
	"github.com/google/renameio"
)

// vectorGraph is a cosine HNSW graph keyed by chunk row id.
type vectorGraph struct {
	g    *hnsw.Graph[uint64]
	dims int
}

func newVectorGraph(dims int) *vectorGraph {
	g := hnsw.NewGraph[uint64]()
	g.Distance = hnsw.CosineDistance
	g.M = 16
	g.EfSearch = 64
	g.Ml = 0.25
	return &vectorGraph{g: g, dims: dims}
}

// add inserts unit-normalized copies of vecs under keys.
func (v *vectorGraph) add(keys []uint64, vecs [][]float32) error {
	nodes := make([]hnsw.Node[uint64], 0, len(keys))
	for i, key := range keys {
		if len(vecs[i]) != v.dims {
			return ErrDimensionMismatch{Expected: v.dims, Got: len(vecs[i])}
		}
		if IsZero(vecs[i]) {
			return ErrZeroVector{ID: fmt.Sprint(key)}
		}
		vec := make([]float32, len(vecs[i]))
		copy(vec, vecs[i])
		normalizeInPlace(vec)
		nodes = append(nodes, hnsw.MakeNode(key, vec))
	}
	v.g.Add(nodes...)
	return nil
}

// search returns up to k keys nearest to q.
func (v *vectorGraph) search(q []float32, k int) ([]uint64, error) {
	if len(q) != v.dims {
		return nil, ErrDimensionMismatch{Expected: v.dims, Got: len(q)}
	}
	if v.g.Len() == 0 || IsZero(q) {
		return nil, nil
	}
	vec := make([]float32, len(q))
	copy(vec, q)
	normalizeInPlace(vec)

	nodes := v.g.Search(vec, k)
	keys := make([]uint64, len(nodes))
	for i, n := range nodes {
		keys[i] = n.Key
	}
	return keys, nil
}

func (v *vectorGraph) len() int { return v.g.Len() }

// save writes the graph atomically.
func (v *vectorGraph) save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	t, err := renameio.TempFile(filepath.Dir(path), path)
	if err != nil {
		return fmt.Errorf("failed to create graph file: %w", err)
	}
	defer func() { _ = t.Cleanup() }()

	w := bufio.NewWriter(t)
	if err := v.g.Export(w); err != nil {
		return fmt.Errorf("failed to export graph: %w", err)
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("failed to write graph: %w", err)
	}
	return t.CloseAtomicallyReplace()
}

// loadVectorGraph reads a graph saved by save. A missing file yields an
// empty graph.
func loadVectorGraph(path string, dims int) (*vectorGraph, error) {
	v := newVectorGraph(dims)
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return v, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open graph: %w", err)
	}
	defer func() { _ = f.Close() }()

	// Import needs an io.ByteReader.
	if err := v.g.Import(bufio.NewReader(f)); err != nil {
		return nil, fmt.Errorf("failed to import graph: %w", err)
	}
	return v, nil
}

func normalizeInPlace(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	inv := float32(1 / math.Sqrt(sum))
	for i := range v {
		v[i] *= inv
	}
}
