package store

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/chatmydocs/internal/config"
	cerrors "github.com/Aman-CERP/chatmydocs/internal/errors"
)

// fakeDataPlane is an in-memory Pinecone-compatible index.
type fakeDataPlane struct {
	mu         sync.Mutex
	dimension  int
	namespaces map[string]map[string]hostedVector
	apiKeys    []string
}

func newFakeDataPlane() *fakeDataPlane {
	return &fakeDataPlane{namespaces: make(map[string]map[string]hostedVector)}
}

func (f *fakeDataPlane) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.apiKeys = append(f.apiKeys, r.Header.Get("Api-Key"))

	switch r.URL.Path {
	case "/describe_index_stats":
		st := map[string]any{"dimension": f.dimension}
		nss := map[string]any{}
		for ns, vs := range f.namespaces {
			nss[ns] = map[string]int{"vectorCount": len(vs)}
		}
		st["namespaces"] = nss
		_ = json.NewEncoder(w).Encode(st)

	case "/vectors/upsert":
		var req hostedUpsertRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if f.namespaces[req.Namespace] == nil {
			f.namespaces[req.Namespace] = map[string]hostedVector{}
		}
		for _, v := range req.Vectors {
			if f.dimension == 0 {
				f.dimension = len(v.Values)
			}
			f.namespaces[req.Namespace][v.ID] = v
		}
		_ = json.NewEncoder(w).Encode(map[string]int{"upsertedCount": len(req.Vectors)})

	case "/query":
		var req hostedQueryRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		type match struct {
			ID       string         `json:"id"`
			Score    float32        `json:"score"`
			Values   []float32      `json:"values"`
			Metadata map[string]any `json:"metadata"`
		}
		var out []match
		for _, v := range f.namespaces[req.Namespace] {
			out = append(out, match{ID: v.ID, Score: cosine(req.Vector, v.Values), Values: v.Values, Metadata: v.Metadata})
		}
		sort.Slice(out, func(i, j int) bool { return out[i].Score > out[j].Score })
		if len(out) > req.TopK {
			out = out[:req.TopK]
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"matches": out})

	case "/vectors/delete":
		var req hostedDeleteRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if _, ok := f.namespaces[req.Namespace]; !ok {
			http.Error(w, `{"message":"Namespace not found"}`, http.StatusNotFound)
			return
		}
		delete(f.namespaces, req.Namespace)
		_, _ = w.Write([]byte(`{}`))

	default:
		http.NotFound(w, r)
	}
}

type strategyFactory func(t *testing.T) Strategy

func strategies() map[string]strategyFactory {
	return map[string]strategyFactory{
		"local": func(t *testing.T) Strategy {
			s, err := NewLocal(t.TempDir())
			require.NoError(t, err)
			return s
		},
		"cluster": func(t *testing.T) Strategy {
			s, err := NewCluster(t.TempDir(), "test")
			require.NoError(t, err)
			return s
		},
		"hosted": func(t *testing.T) Strategy {
			srv := httptest.NewServer(newFakeDataPlane())
			t.Cleanup(srv.Close)
			s, err := NewHosted(HostedConfig{Host: srv.URL, APIKey: "pc-test"})
			require.NoError(t, err)
			return s
		},
	}
}

var (
	parisVec = []float32{1, 0, 0, 0}
	photoVec = []float32{0, 1, 0, 0}
	spec4    = IndexSpec{Dimension: 4, Model: "test/4d"}
)

func geoRecords() []Record {
	return []Record{
		{ID: "c1", Vector: parisVec, Text: "The capital of France is Paris.", Source: "france.txt"},
		{ID: "c2", Vector: photoVec, Text: "Photosynthesis converts sunlight into chemical energy.", Source: "biology.txt"},
	}
}

func TestStrategies_BuildAndQuery(t *testing.T) {
	for name, factory := range strategies() {
		t.Run(name, func(t *testing.T) {
			// Given: a knowledge base with two unrelated chunks
			s := factory(t)
			defer func() { _ = s.Close() }()
			ctx := context.Background()
			ns := Namespace{Owner: "alice", Name: "geo"}

			h, err := s.Build(ctx, ns, geoRecords(), spec4)
			require.NoError(t, err)
			assert.Equal(t, 2, h.Count)
			assert.Equal(t, s.Kind(), h.Kind)

			// When: querying near the Paris vector
			results, err := s.Query(ctx, h, []float32{0.9, 0.1, 0, 0}, QueryOptions{K: 1, FetchK: 2})
			require.NoError(t, err)

			// Then: the Paris chunk comes back with its source
			require.Len(t, results, 1)
			assert.Equal(t, "france.txt", results[0].Chunk.Metadata.Source)
			assert.Contains(t, results[0].Chunk.Text, "Paris")
			assert.Greater(t, results[0].Score, float32(0.9))
		})
	}
}

func TestStrategies_NamespaceIsolation(t *testing.T) {
	for name, factory := range strategies() {
		t.Run(name, func(t *testing.T) {
			s := factory(t)
			defer func() { _ = s.Close() }()
			ctx := context.Background()

			alice := Namespace{Owner: "alice", Name: "geo"}
			bob := Namespace{Owner: "bob", Name: "geo"}
			_, err := s.Build(ctx, alice, geoRecords(), spec4)
			require.NoError(t, err)
			hb, err := s.Build(ctx, bob, []Record{
				{ID: "b1", Vector: []float32{0, 0, 1, 0}, Text: "Bob's note.", Source: "bob.txt"},
			}, spec4)
			require.NoError(t, err)

			results, err := s.Query(ctx, hb, parisVec, QueryOptions{K: 5, FetchK: 50})
			require.NoError(t, err)

			require.Len(t, results, 1)
			assert.Equal(t, "bob.txt", results[0].Chunk.Metadata.Source)
		})
	}
}

func TestStrategies_LoadAbsentReturnsNil(t *testing.T) {
	for name, factory := range strategies() {
		t.Run(name, func(t *testing.T) {
			s := factory(t)
			defer func() { _ = s.Close() }()

			h, err := s.Load(context.Background(), Namespace{Owner: "alice", Name: "nothing"})

			require.NoError(t, err)
			assert.Nil(t, h)
		})
	}
}

func TestStrategies_AppendAndLoad(t *testing.T) {
	for name, factory := range strategies() {
		t.Run(name, func(t *testing.T) {
			s := factory(t)
			defer func() { _ = s.Close() }()
			ctx := context.Background()
			ns := Namespace{Owner: "alice", Name: "geo"}

			_, err := s.Build(ctx, ns, geoRecords()[:1], spec4)
			require.NoError(t, err)
			_, err = s.Build(ctx, ns, geoRecords()[1:], spec4)
			require.NoError(t, err)

			h, err := s.Load(ctx, ns)
			require.NoError(t, err)
			require.NotNil(t, h)
			assert.Equal(t, 2, h.Count)
			assert.Equal(t, 4, h.Dimension)

			results, err := s.Query(ctx, h, photoVec, QueryOptions{K: 1})
			require.NoError(t, err)
			require.Len(t, results, 1)
			assert.Equal(t, "biology.txt", results[0].Chunk.Metadata.Source)
		})
	}
}

func TestStrategies_DimensionMismatch(t *testing.T) {
	for name, factory := range strategies() {
		t.Run(name, func(t *testing.T) {
			s := factory(t)
			defer func() { _ = s.Close() }()
			ctx := context.Background()
			ns := Namespace{Owner: "alice", Name: "geo"}

			_, err := s.Build(ctx, ns, geoRecords(), spec4)
			require.NoError(t, err)

			// When: appending 3-dimensional vectors to a 4-dimensional index
			_, err = s.Build(ctx, ns, []Record{{ID: "x", Vector: []float32{1, 0, 0}, Text: "x", Source: "x.txt"}},
				IndexSpec{Dimension: 3, Model: "test/3d"})

			// Then: a store creation error wrapping the mismatch
			require.Error(t, err)
			assert.Equal(t, cerrors.ErrCodeStoreCreation, cerrors.GetCode(err))
			var dm ErrDimensionMismatch
			require.True(t, errors.As(err, &dm))
			assert.Equal(t, 4, dm.Expected)
			assert.Equal(t, 3, dm.Got)
		})
	}
}

func TestStrategies_RejectZeroVectors(t *testing.T) {
	for name, factory := range strategies() {
		t.Run(name, func(t *testing.T) {
			s := factory(t)
			defer func() { _ = s.Close() }()
			ctx := context.Background()
			ns := Namespace{Owner: "alice", Name: "geo"}

			// When: a blank chunk with a zero vector sits next to a real one
			blank := Record{ID: "blank", Vector: make([]float32, 4), Text: "          ", Source: "france.txt"}
			_, err := s.Build(ctx, ns, append(geoRecords(), blank), spec4)

			// Then: the build is refused before anything is written
			require.Error(t, err)
			assert.Equal(t, cerrors.ErrCodeStoreCreation, cerrors.GetCode(err))
			var zv ErrZeroVector
			require.True(t, errors.As(err, &zv))
			assert.Equal(t, "blank", zv.ID)

			h, err := s.Build(ctx, ns, geoRecords(), spec4)
			require.NoError(t, err)
			results, err := s.Query(ctx, h, parisVec, QueryOptions{K: 1, FetchK: 1})
			require.NoError(t, err)
			require.Len(t, results, 1)
			assert.Equal(t, "c1", results[0].Chunk.ID)
		})
	}
}

func TestVectorGraph_ZeroVectors(t *testing.T) {
	g := newVectorGraph(4)

	err := g.add([]uint64{1, 2}, [][]float32{parisVec, make([]float32, 4)})
	var zv ErrZeroVector
	require.True(t, errors.As(err, &zv))

	require.NoError(t, g.add([]uint64{1}, [][]float32{parisVec}))
	keys, err := g.search(make([]float32, 4), 1)
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestIsZero(t *testing.T) {
	assert.True(t, IsZero(nil))
	assert.True(t, IsZero([]float32{0, 0}))
	assert.False(t, IsZero([]float32{0, 0.1}))
}

func TestStrategies_DeleteIsIdempotentAndComplete(t *testing.T) {
	for name, factory := range strategies() {
		t.Run(name, func(t *testing.T) {
			s := factory(t)
			defer func() { _ = s.Close() }()
			ctx := context.Background()
			geo := Namespace{Owner: "alice", Name: "geo"}
			bio := Namespace{Owner: "alice", Name: "bio"}

			_, err := s.Build(ctx, geo, geoRecords(), spec4)
			require.NoError(t, err)
			_, err = s.Build(ctx, bio, geoRecords(), spec4)
			require.NoError(t, err)

			names, err := s.List(ctx, "alice")
			require.NoError(t, err)
			assert.Equal(t, []string{"bio", "geo"}, names)

			require.NoError(t, s.DeleteNamespace(ctx, geo))
			require.NoError(t, s.DeleteNamespace(ctx, geo), "second delete succeeds")

			h, err := s.Load(ctx, geo)
			require.NoError(t, err)
			assert.Nil(t, h)

			names, err = s.List(ctx, "alice")
			require.NoError(t, err)
			assert.Equal(t, []string{"bio"}, names)
		})
	}
}

func TestStrategies_ListUnknownOwner(t *testing.T) {
	for name, factory := range strategies() {
		t.Run(name, func(t *testing.T) {
			s := factory(t)
			defer func() { _ = s.Close() }()

			names, err := s.List(context.Background(), "nobody")
			require.NoError(t, err)
			assert.Empty(t, names)
		})
	}
}

func TestLocal_PersistsAcrossReopen(t *testing.T) {
	// Given: an index written and closed
	root := t.TempDir()
	ctx := context.Background()
	ns := Namespace{Owner: "alice", Name: "geo"}

	s1, err := NewLocal(root)
	require.NoError(t, err)
	_, err = s1.Build(ctx, ns, geoRecords(), spec4)
	require.NoError(t, err)
	require.NoError(t, s1.Close())

	// When: a new strategy loads it
	s2, err := NewLocal(root)
	require.NoError(t, err)
	defer func() { _ = s2.Close() }()

	h, err := s2.Load(ctx, ns)
	require.NoError(t, err)
	require.NotNil(t, h)

	// Then: the model and vectors survived
	assert.Equal(t, "test/4d", h.Model)
	results, err := s2.Query(ctx, h, parisVec, QueryOptions{K: 1})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "france.txt", results[0].Chunk.Metadata.Source)
}

func TestLocal_DuplicateRecordsAreIgnored(t *testing.T) {
	s, err := NewLocal(t.TempDir())
	require.NoError(t, err)
	defer func() { _ = s.Close() }()
	ctx := context.Background()
	ns := Namespace{Owner: "alice", Name: "geo"}

	_, err = s.Build(ctx, ns, geoRecords(), spec4)
	require.NoError(t, err)
	h, err := s.Build(ctx, ns, geoRecords(), spec4)
	require.NoError(t, err)

	assert.Equal(t, 2, h.Count)
}

func TestHosted_SendsAPIKey(t *testing.T) {
	fake := newFakeDataPlane()
	srv := httptest.NewServer(fake)
	defer srv.Close()

	s, err := NewHosted(HostedConfig{Host: srv.URL, APIKey: "pc-secret"})
	require.NoError(t, err)
	_, err = s.Load(context.Background(), Namespace{Owner: "a", Name: "b"})
	require.NoError(t, err)

	require.NotEmpty(t, fake.apiKeys)
	assert.Equal(t, "pc-secret", fake.apiKeys[0])
}

func TestHosted_ClientErrorNotRetried(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}))
	defer srv.Close()

	s, err := NewHosted(HostedConfig{Host: srv.URL})
	require.NoError(t, err)

	_, err = s.List(context.Background(), "alice")

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestNamespace_String(t *testing.T) {
	assert.Equal(t, "alice-my_kb", Namespace{Owner: "alice", Name: "my_kb"}.String())
}

func TestOpen_SelectsBackend(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.StoreConfig
		want    Kind
		wantErr bool
	}{
		{name: "default local", cfg: config.StoreConfig{Local: config.LocalStoreConfig{Root: t.TempDir()}}, want: KindLocal},
		{name: "cluster", cfg: config.StoreConfig{Backend: "cluster", Cluster: config.ClusterStoreConfig{Root: t.TempDir(), Index: "i"}}, want: KindCluster},
		{name: "hosted", cfg: config.StoreConfig{Backend: "hosted", Hosted: config.HostedStoreConfig{Host: "http://localhost:1"}}, want: KindHosted},
		{name: "hosted without host", cfg: config.StoreConfig{Backend: "hosted"}, wantErr: true},
		{name: "unknown", cfg: config.StoreConfig{Backend: "faiss"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := Open(tt.cfg)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			defer func() { _ = s.Close() }()
			assert.Equal(t, tt.want, s.Kind())
		})
	}
}
