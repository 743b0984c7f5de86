package watcher

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func onlyText(name string) bool {
	return strings.HasSuffix(name, ".txt")
}

// startWatcher runs w on dir and waits until it is ready for changes.
func startWatcher(t *testing.T, w *Watcher, dir string) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx, dir) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	// Give fsnotify time to register and polling time to take its baseline.
	time.Sleep(200 * time.Millisecond)
}

// collect gathers events until want paths have been seen or time runs out.
func collect(t *testing.T, w *Watcher, want int) map[string]Op {
	t.Helper()
	seen := make(map[string]Op)
	deadline := time.After(5 * time.Second)
	for len(seen) < want {
		select {
		case batch, ok := <-w.Batches():
			if !ok {
				return seen
			}
			for _, ev := range batch {
				seen[filepath.Base(ev.Path)] = ev.Op
			}
		case <-deadline:
			return seen
		}
	}
	return seen
}

func TestWatcher_ReportsNewFiles(t *testing.T) {
	for _, polling := range []bool{false, true} {
		name := "fsnotify"
		if polling {
			name = "polling"
		}
		t.Run(name, func(t *testing.T) {
			// Given: a watched folder that filters to .txt
			dir := t.TempDir()
			w := New(Options{
				Debounce:     50 * time.Millisecond,
				PollInterval: 50 * time.Millisecond,
				ForcePolling: polling,
				Filter:       onlyText,
			})
			if polling {
				assert.True(t, w.Polling())
			}
			startWatcher(t, w, dir)

			// When: documents and ignored files appear
			require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("hello"), 0o644))
			require.NoError(t, os.WriteFile(filepath.Join(dir, "image.bin"), []byte{1, 2}, 0o644))
			require.NoError(t, os.WriteFile(filepath.Join(dir, ".hidden.txt"), []byte("x"), 0o644))

			// Then: only the document is reported, as a create
			seen := collect(t, w, 1)
			assert.Equal(t, map[string]Op{"notes.txt": OpCreate}, seen)
		})
	}
}

func TestWatcher_NewSubdirectory(t *testing.T) {
	dir := t.TempDir()
	w := New(Options{Debounce: 50 * time.Millisecond, Filter: onlyText})
	startWatcher(t, w, dir)

	sub := filepath.Join(dir, "2024")
	require.NoError(t, os.Mkdir(sub, 0o755))
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(sub, "report.txt"), []byte("q1"), 0o644))

	seen := collect(t, w, 1)
	assert.Equal(t, OpCreate, seen["report.txt"])
}

func TestWatcher_PollingReportsModifyAndDelete(t *testing.T) {
	// Given: an existing document under a polling watcher
	dir := t.TempDir()
	path := filepath.Join(dir, "plan.txt")
	require.NoError(t, os.WriteFile(path, []byte("v1"), 0o644))

	w := New(Options{Debounce: 50 * time.Millisecond, PollInterval: 50 * time.Millisecond, ForcePolling: true})
	startWatcher(t, w, dir)

	// When: it grows
	require.NoError(t, os.WriteFile(path, []byte("version two"), 0o644))

	// Then
	assert.Equal(t, OpModify, collect(t, w, 1)["plan.txt"])

	// When: it is removed
	require.NoError(t, os.Remove(path))

	// Then
	assert.Equal(t, OpDelete, collect(t, w, 1)["plan.txt"])
}

func TestWatcher_RunRejectsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.txt")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	w := New(Options{ForcePolling: true})
	err := w.Run(context.Background(), path)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a directory")
	_, ok := <-w.Batches()
	assert.False(t, ok)
}
