package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// syncBuffer is a bytes.Buffer safe for one writer and one reader.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func waitFor(t *testing.T, out *syncBuffer, text string) {
	t.Helper()
	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), text)
	}, 10*time.Second, 50*time.Millisecond, "output never contained %q:\n%s", text, out.String())
}

func TestWatch_AddsNewDocuments(t *testing.T) {
	// Given: a knowledge base built from one document, and a folder
	home := setupCLI(t)
	first := writeDoc(t, home, "sky.txt", "The sky is blue because of Rayleigh scattering.")
	_, err := run(t, "", "ingest", "--kb", "Nature", "--plain", first)
	require.NoError(t, err)

	inbox := filepath.Join(home, "inbox")
	require.NoError(t, os.Mkdir(inbox, 0o755))
	writeDoc(t, inbox, "sky.txt", "A copy already indexed.")
	writeDoc(t, inbox, "sea.md", "# Sea\n\nThe sea is salty.")

	// When: watching with --initial and then dropping a new file in
	ctx, cancel := context.WithCancel(context.Background())
	out := &syncBuffer{}
	done := make(chan error, 1)
	go func() {
		done <- runWatch(ctx, out, watchOptions{
			kbName:   "Nature",
			poll:     true,
			initial:  true,
			debounce: 50 * time.Millisecond,
		}, inbox)
	}()

	// Then: only the missing existing file is added first
	waitFor(t, out, "Added 1 document(s) to Nature: sea.md")
	waitFor(t, out, "Watching")
	// Let the poller take its baseline scan.
	time.Sleep(300 * time.Millisecond)

	writeDoc(t, inbox, "forest.txt", "Forests are full of trees.")
	waitFor(t, out, "Added 1 document(s) to Nature: forest.txt")

	cancel()
	require.NoError(t, <-done)
	assert.NotContains(t, out.String(), "Nature: sky.txt")

	listing, err := run(t, "", "list", "--json")
	require.NoError(t, err)
	assert.Contains(t, listing, `"documents": 3`)
}

func TestWatch_MissingKnowledgeBase(t *testing.T) {
	home := setupCLI(t)

	err := runWatch(context.Background(), &syncBuffer{}, watchOptions{kbName: "Nope", poll: true}, home)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "ERR_404")
}
