package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/chatmydocs/internal/answer"
	"github.com/Aman-CERP/chatmydocs/internal/app"
	"github.com/Aman-CERP/chatmydocs/internal/llm"
)

// stubGenerator answers every question with the same sentence, or refuses
// when the question mentions Mars.
type stubGenerator struct{}

func (stubGenerator) Generate(_ context.Context, msgs []llm.Message) (string, error) {
	if strings.Contains(msgs[len(msgs)-1].Content, "Mars") {
		return answer.RefusalMessage, nil
	}
	return "The sky is blue.", nil
}
func (stubGenerator) ModelName() string { return "stub" }
func (stubGenerator) Close() error      { return nil }

// setupCLI isolates config, data and logs in a temp home and injects
// deterministic providers. It returns the home directory.
func setupCLI(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, ".config"))
	t.Setenv("CHATMYDOCS_DATA_DIR", filepath.Join(home, "data"))
	t.Setenv("CHATMYDOCS_EMBEDDINGS_PROVIDER", "static")
	t.Setenv("CHATMYDOCS_OWNER", "alice")

	appOptions = []app.Option{app.WithGenerator(stubGenerator{})}
	t.Cleanup(func() { appOptions = nil })
	return home
}

// run executes the root command with args and stdin and returns everything
// written to stdout and stderr.
func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return buf.String(), err
}

// writeDoc writes a document into dir and returns its path.
func writeDoc(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}
