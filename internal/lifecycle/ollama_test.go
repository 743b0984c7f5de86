package lifecycle

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tagsServer(t *testing.T, models ...string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tags" {
			http.NotFound(w, r)
			return
		}
		var resp struct {
			Models []map[string]string `json:"models"`
		}
		for _, m := range models {
			resp.Models = append(resp.Models, map[string]string{"name": m})
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestModelManager_IsRunning(t *testing.T) {
	srv := tagsServer(t)

	assert.True(t, NewModelManager(srv.URL).IsRunning(context.Background()))
	assert.False(t, NewModelManager("http://127.0.0.1:1").IsRunning(context.Background()))
}

func TestModelManager_HostDefaults(t *testing.T) {
	m := NewModelManager("")
	assert.Equal(t, DefaultHost, m.Host())
	assert.False(t, m.IsRemoteHost())

	m = NewModelManager("http://gpu-box:11434/")
	assert.Equal(t, "http://gpu-box:11434", m.Host())
	assert.True(t, m.IsRemoteHost())
}

func TestModelManager_ListModels(t *testing.T) {
	srv := tagsServer(t, "nomic-embed-text:latest", "llama3.1:8b")

	names, err := NewModelManager(srv.URL).ListModels(context.Background())

	require.NoError(t, err)
	assert.Equal(t, []string{"nomic-embed-text:latest", "llama3.1:8b"}, names)
}

func TestModelManager_ListModels_NotRunning(t *testing.T) {
	_, err := NewModelManager("http://127.0.0.1:1").ListModels(context.Background())
	assert.ErrorIs(t, err, ErrNotRunning)
}

func TestMatchModel(t *testing.T) {
	installed := []string{"nomic-embed-text:latest", "llama3.1:8b", "mxbai-embed-large"}

	tests := []struct {
		model string
		want  bool
	}{
		{"nomic-embed-text", true},
		{"NOMIC-EMBED-TEXT:latest", true},
		{"llama3.1", true},
		{"llama3.1:8b", true},
		{"llama3.1:70b", false},
		{"mxbai-embed-large:latest", true},
		{"all-minilm", false},
	}
	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			assert.Equal(t, tt.want, matchModel(installed, tt.model))
		})
	}
}

func TestModelManager_WaitForReady(t *testing.T) {
	srv := tagsServer(t)
	require.NoError(t, NewModelManager(srv.URL).WaitForReady(context.Background(), time.Second))

	err := NewModelManager("http://127.0.0.1:1").WaitForReady(context.Background(), 300*time.Millisecond)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timeout waiting for ollama")
}

func TestModelManager_PullModel(t *testing.T) {
	// Given: a server without the model that streams pull progress
	var pulled atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/tags":
			_, _ = w.Write([]byte(`{"models":[]}`))
		case "/api/pull":
			var req map[string]any
			_ = json.NewDecoder(r.Body).Decode(&req)
			assert.Equal(t, "nomic-embed-text", req["name"])
			pulled.Store(true)
			lines := []string{
				`{"status":"pulling manifest"}`,
				`{"status":"downloading","digest":"sha256:abc","total":200,"completed":100}`,
				`{"status":"downloading","digest":"sha256:abc","total":200,"completed":200}`,
				`{"status":"success"}`,
			}
			_, _ = w.Write([]byte(strings.Join(lines, "\n") + "\n"))
		}
	}))
	defer srv.Close()

	// When: pulling
	var events []PullProgress
	err := NewModelManager(srv.URL).PullModel(context.Background(), "nomic-embed-text", func(p PullProgress) {
		events = append(events, p)
	})

	// Then: every status line is reported with a percentage
	require.NoError(t, err)
	assert.True(t, pulled.Load())
	require.Len(t, events, 4)
	assert.InDelta(t, 50.0, events[1].Percent, 0.01)
	assert.Equal(t, "success", events[3].Status)
}

func TestModelManager_PullModel_AlreadyInstalled(t *testing.T) {
	srv := tagsServer(t, "nomic-embed-text:latest")

	called := false
	err := NewModelManager(srv.URL).PullModel(context.Background(), "nomic-embed-text", func(PullProgress) {
		called = true
	})

	require.NoError(t, err)
	assert.False(t, called)
}

func TestModelManager_PullModel_StreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/tags" {
			_, _ = w.Write([]byte(`{"models":[]}`))
			return
		}
		_, _ = w.Write([]byte(`{"error":"pull model manifest: file does not exist"}` + "\n"))
	}))
	defer srv.Close()

	err := NewModelManager(srv.URL).PullModel(context.Background(), "no-such-model", nil)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "file does not exist")
}

func TestModelManager_EnsureModel(t *testing.T) {
	srv := tagsServer(t, "llama3.1:latest")
	m := NewModelManager(srv.URL)

	require.NoError(t, m.EnsureModel(context.Background(), "llama3.1", false, nil))

	err := m.EnsureModel(context.Background(), "nomic-embed-text", false, nil)
	var notFound *ModelNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "nomic-embed-text", notFound.Model)

	err = NewModelManager("http://127.0.0.1:1").EnsureModel(context.Background(), "llama3.1", true, nil)
	assert.ErrorIs(t, err, ErrNotRunning)
}
