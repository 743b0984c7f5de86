package app

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/chatmydocs/internal/answer"
	"github.com/Aman-CERP/chatmydocs/internal/auth"
	"github.com/Aman-CERP/chatmydocs/internal/config"
	"github.com/Aman-CERP/chatmydocs/internal/embed"
	cerrors "github.com/Aman-CERP/chatmydocs/internal/errors"
	"github.com/Aman-CERP/chatmydocs/internal/extract"
	"github.com/Aman-CERP/chatmydocs/internal/llm"
	"github.com/Aman-CERP/chatmydocs/internal/logging"
	"github.com/Aman-CERP/chatmydocs/internal/wizard"
)

// echoGenerator answers with the first line of context, or refuses when the
// question mentions Mars.
type echoGenerator struct{ calls int }

func (g *echoGenerator) Generate(_ context.Context, msgs []llm.Message) (string, error) {
	g.calls++
	q := msgs[len(msgs)-1].Content
	if q == "What is the population of Mars?" {
		return answer.RefusalMessage, nil
	}
	return "The sky is blue.", nil
}
func (g *echoGenerator) ModelName() string { return "echo" }
func (g *echoGenerator) Close() error      { return nil }

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.NewConfig()
	cfg.DataDir = dir
	cfg.Embeddings.Provider = "static"
	cfg.Embeddings.CacheSize = 16
	cfg.Store.Local.Root = filepath.Join(dir, "indexes")
	cfg.Store.Cluster.Root = filepath.Join(dir, "cluster")
	cfg.Blob.Root = filepath.Join(dir, "blobs")
	cfg.Auth.DBPath = filepath.Join(dir, "users.db")
	cfg.Sessions.Dir = filepath.Join(dir, "sessions")
	cfg.Telemetry.DBPath = filepath.Join(dir, "telemetry.db")
	return cfg
}

func newTestApp(t *testing.T, cfg *config.Config) (*App, *echoGenerator) {
	t.Helper()
	gen := &echoGenerator{}
	a, err := New(context.Background(), cfg, logging.Discard(), WithGenerator(gen))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a, gen
}

func skyFiles() []extract.File {
	return []extract.File{{Name: "sky.txt", Data: []byte("The sky is blue.")}}
}

func TestApp_IngestAskListDelete(t *testing.T) {
	for _, backend := range []string{config.BackendLocal, config.BackendCluster} {
		t.Run(backend, func(t *testing.T) {
			// Given
			cfg := testConfig(t)
			cfg.Store.Backend = backend
			a, gen := newTestApp(t, cfg)
			ctx := context.Background()

			// When
			res, err := a.Ingest(ctx, "alice", "Sky Facts", skyFiles())
			require.NoError(t, err)

			grounded, err := a.Ask(ctx, "alice", "sky facts", nil, "What colour is the sky?")
			require.NoError(t, err)
			refused, err := a.Ask(ctx, "alice", "sky facts", grounded.History, "What is the population of Mars?")
			require.NoError(t, err)
			hello, err := a.Ask(ctx, "alice", "sky facts", nil, "hello")
			require.NoError(t, err)

			// Then
			assert.Equal(t, []string{"sky.txt"}, res.KB.SourceDocuments)
			assert.Equal(t, []string{"sky.txt"}, grounded.Sources)
			assert.Equal(t, answer.RefusalMessage, refused.Answer)
			assert.Empty(t, refused.Sources)
			assert.True(t, hello.Greeting)
			assert.Equal(t, 2, gen.calls)

			history, err := a.History(ctx, "alice", "Sky Facts")
			require.NoError(t, err)
			assert.Len(t, history, 2, "last saved history is the greeting exchange")

			list, err := a.ListKnowledgeBases(ctx, "alice")
			require.NoError(t, err)
			require.Len(t, list, 1)
			assert.Equal(t, "Sky Facts", list[0].DisplayName)
			assert.Equal(t, 1, list[0].Documents)

			require.NoError(t, a.DeleteKnowledgeBase(ctx, "alice", "Sky Facts"))
			_, err = a.Ask(ctx, "alice", "sky facts", nil, "anything")
			assert.True(t, cerrors.IsNotFound(err))

			stats := a.Stats()
			require.NotNil(t, stats)
			assert.Equal(t, int64(3), stats.Total)

			stored, err := a.StoredStats(7)
			require.NoError(t, err)
			assert.Equal(t, stats.Total, stored.Total)
		})
	}
}

func TestApp_OwnersAreIsolated(t *testing.T) {
	a, _ := newTestApp(t, testConfig(t))
	ctx := context.Background()
	_, err := a.Ingest(ctx, "alice", "notes", skyFiles())
	require.NoError(t, err)

	_, err = a.Ask(ctx, "bob", "notes", nil, "What colour is the sky?")
	assert.True(t, cerrors.IsNotFound(err))

	list, err := a.ListKnowledgeBases(ctx, "bob")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestApp_WizardSessionResume(t *testing.T) {
	// Given
	cfg := testConfig(t)
	a, _ := newTestApp(t, cfg)
	ctx := context.Background()

	m, err := a.NewSession("alice", false)
	require.NoError(t, err)
	require.NoError(t, m.Buffer(wizard.Upload{Name: "sky.txt", Data: []byte("The sky is blue.")}))
	require.NoError(t, m.Continue())
	_, err = m.Process(ctx, "Sky")
	require.NoError(t, err)
	_, err = m.Ask(ctx, "What colour is the sky?")
	require.NoError(t, err)

	// When
	resumed, err := a.ResumeSession(ctx, "alice", m.Session().ID)

	// Then
	require.NoError(t, err)
	assert.Equal(t, wizard.StepChat, resumed.Step())
	assert.Equal(t, "sky", resumed.Session().Active.SanitizedName)
	assert.Len(t, resumed.Session().Chat, 2)

	infos, err := a.ListSessions("alice")
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, "chat", infos[0].Step)

	require.NoError(t, a.DeleteSession("alice", m.Session().ID))
	infos, err = a.ListSessions("alice")
	require.NoError(t, err)
	assert.Empty(t, infos)

	err = a.DeleteSession("alice", m.Session().ID)
	assert.Equal(t, cerrors.ErrCodeInvalidInput, cerrors.GetCode(err))
}

func TestApp_PruneSessions(t *testing.T) {
	a, _ := newTestApp(t, testConfig(t))

	m, err := a.NewSession("alice", false)
	require.NoError(t, err)
	require.NoError(t, m.Buffer(wizard.Upload{Name: "a.txt", Data: []byte("x")}))

	n, err := a.PruneSessions("alice", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	n, err = a.PruneSessions("alice", -time.Second)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestApp_GuestSession(t *testing.T) {
	a, _ := newTestApp(t, testConfig(t))
	ctx := context.Background()

	m, err := a.NewSession("", true)
	require.NoError(t, err)
	owner := m.Session().Owner
	assert.Contains(t, owner, "guest_")

	require.NoError(t, m.Buffer(wizard.Upload{Name: "sky.txt", Data: []byte("The sky is blue.")}))
	require.NoError(t, m.Continue())
	_, err = m.Process(ctx, "Sky")
	require.NoError(t, err)
	_, err = m.Ask(ctx, "What colour is the sky?")
	require.NoError(t, err)

	history, err := a.History(ctx, owner, "Sky")
	require.NoError(t, err)
	assert.Empty(t, history)

	infos, err := a.ListSessions(owner)
	require.NoError(t, err)
	assert.Empty(t, infos)
}

func TestApp_RegisterAndAuthenticate(t *testing.T) {
	a, _ := newTestApp(t, testConfig(t))
	ctx := context.Background()

	_, err := a.Register(ctx, auth.Registration{
		Name: "Alice", Email: "alice@example.com", Username: "alice",
		Password: "s3cret-pass", ConfirmPassword: "s3cret-pass",
	})
	require.NoError(t, err)

	u, err := a.Authenticate(ctx, "alice", "s3cret-pass")
	require.NoError(t, err)
	assert.Equal(t, "Alice", u.Name)

	_, err = a.Authenticate(ctx, "alice", "wrong")
	assert.Equal(t, cerrors.ErrCodeAuthFailed, cerrors.GetCode(err))
}

func TestNew_InvalidBackendCleansUp(t *testing.T) {
	cfg := testConfig(t)
	cfg.Store.Backend = "bogus"

	_, err := New(context.Background(), cfg, logging.Discard(), WithGenerator(&echoGenerator{}))

	assert.Error(t, err)
}

type stuckEmbedder struct{ embed.Embedder }

func (stuckEmbedder) Close() error { return errors.New("embedder still busy") }

type stuckGenerator struct{ echoGenerator }

func (*stuckGenerator) Close() error { return errors.New("generator still busy") }

func TestApp_CloseReportsEveryFailure(t *testing.T) {
	// Given: two clients that fail to close
	a, err := New(context.Background(), testConfig(t), logging.Discard(),
		WithEmbedder(stuckEmbedder{embed.NewStaticEmbedder()}),
		WithGenerator(&stuckGenerator{}))
	require.NoError(t, err)

	// When
	err = a.Close()

	// Then
	require.Error(t, err)
	assert.ErrorContains(t, err, "embedder still busy")
	assert.ErrorContains(t, err, "generator still busy")
}
