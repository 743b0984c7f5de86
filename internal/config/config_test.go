package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate points the user config and data dir at temp locations.
func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, ".config"))
	for _, k := range []string{"OPENAI_API_KEY", "PINECONE_API_KEY", "CHATMYDOCS_STORE_BACKEND", "CHATMYDOCS_EMBEDDINGS_PROVIDER"} {
		t.Setenv(k, "")
	}
	return home
}

func TestNewConfig_ReturnsDefaults(t *testing.T) {
	// Given: no configuration file exists
	cfg := NewConfig()

	// Then: chunking and retrieval defaults are applied
	require.NotNil(t, cfg)
	assert.Equal(t, 1000, cfg.Chunking.Size)
	assert.Equal(t, 200, cfg.Chunking.Overlap)
	assert.Equal(t, 5, cfg.Retrieval.K)
	assert.Equal(t, 50, cfg.Retrieval.FetchK)
	assert.Equal(t, 0.5, cfg.Retrieval.MMRLambda)

	// Backends default to local storage and abort-on-first-error
	assert.Equal(t, BackendLocal, cfg.Store.Backend)
	assert.Equal(t, PolicyAbort, cfg.Ingestion.Policy)
	assert.Equal(t, "fs", cfg.Blob.Backend)
	assert.Equal(t, "ollama", cfg.Embeddings.Provider)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_ProjectConfigOverridesDefaults(t *testing.T) {
	// Given: a project config selecting the cluster backend
	isolate(t)
	dir := t.TempDir()
	yaml := "store:\n  backend: cluster\n  cluster:\n    index: shared\nchunking:\n  size: 500\n  overlap: 50\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".chatmydocs.yaml"), []byte(yaml), 0644))

	// When: loading
	cfg, err := Load(dir)

	// Then: file values win and untouched values keep defaults
	require.NoError(t, err)
	assert.Equal(t, BackendCluster, cfg.Store.Backend)
	assert.Equal(t, "shared", cfg.Store.Cluster.Index)
	assert.Equal(t, 500, cfg.Chunking.Size)
	assert.Equal(t, 50, cfg.Chunking.Overlap)
	assert.Equal(t, 5, cfg.Retrieval.K)
}

func TestLoad_UserConfigAppliesBeforeProject(t *testing.T) {
	home := isolate(t)
	userPath := filepath.Join(home, ".config", "chatmydocs", "config.yaml")
	require.NoError(t, os.MkdirAll(filepath.Dir(userPath), 0755))
	require.NoError(t, os.WriteFile(userPath, []byte("embeddings:\n  model: user-model\ngeneration:\n  model: user-llm\n"), 0644))

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".chatmydocs.yml"), []byte("generation:\n  model: project-llm\n"), 0644))

	cfg, err := Load(dir)

	require.NoError(t, err)
	assert.Equal(t, "user-model", cfg.Embeddings.Model)
	assert.Equal(t, "project-llm", cfg.Generation.Model)
}

func TestLoad_EnvOverridesWin(t *testing.T) {
	// Given: a project file and an env override for the same field
	isolate(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".chatmydocs.yaml"), []byte("ingestion:\n  policy: abort\n"), 0644))
	t.Setenv("CHATMYDOCS_INGESTION_POLICY", "skip")
	t.Setenv("CHATMYDOCS_RETRIEVAL_K", "3")
	t.Setenv("OPENAI_API_KEY", "sk-test")

	// When: loading
	cfg, err := Load(dir)

	// Then: the environment wins
	require.NoError(t, err)
	assert.Equal(t, PolicySkip, cfg.Ingestion.Policy)
	assert.Equal(t, 3, cfg.Retrieval.K)
	assert.Equal(t, "sk-test", cfg.Embeddings.APIKey)
	assert.Equal(t, "sk-test", cfg.Generation.APIKey)
}

func TestLoad_DotEnvFillsUnsetVariables(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	// t.Setenv restores the original value; godotenv never overrides a set variable.
	t.Setenv("CHATMYDOCS_GENERATION_MODEL", "")
	require.NoError(t, os.Unsetenv("CHATMYDOCS_GENERATION_MODEL"))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("CHATMYDOCS_GENERATION_MODEL=from-dotenv\n"), 0644))

	cfg, err := Load(dir)

	require.NoError(t, err)
	assert.Equal(t, "from-dotenv", cfg.Generation.Model)
}

func TestLoad_ResolvesPathsUnderDataDir(t *testing.T) {
	isolate(t)
	dataDir := t.TempDir()
	t.Setenv("CHATMYDOCS_DATA_DIR", dataDir)

	cfg, err := Load(t.TempDir())

	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dataDir, "indexes"), cfg.Store.Local.Root)
	assert.Equal(t, filepath.Join(dataDir, "cluster"), cfg.Store.Cluster.Root)
	assert.Equal(t, filepath.Join(dataDir, "blobs"), cfg.Blob.Root)
	assert.Equal(t, filepath.Join(dataDir, "users.db"), cfg.Auth.DBPath)
	assert.Equal(t, filepath.Join(dataDir, "sessions"), cfg.Sessions.Dir)
	assert.Equal(t, filepath.Join(dataDir, "telemetry.db"), cfg.Telemetry.DBPath)
}

func TestLoad_TelemetryCanBeDisabled(t *testing.T) {
	isolate(t)
	t.Setenv("CHATMYDOCS_TELEMETRY", "false")

	cfg, err := Load(t.TempDir())

	require.NoError(t, err)
	assert.True(t, cfg.Telemetry.Disabled)
}

func TestValidate_RejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"overlap equals size", func(c *Config) { c.Chunking.Overlap = c.Chunking.Size }, "chunking.overlap"},
		{"zero k", func(c *Config) { c.Retrieval.K = 0 }, "retrieval.k"},
		{"fetch_k below k", func(c *Config) { c.Retrieval.FetchK = 2 }, "fetch_k"},
		{"unknown backend", func(c *Config) { c.Store.Backend = "redis" }, "store.backend"},
		{"hosted without host", func(c *Config) { c.Store.Backend = BackendHosted }, "store.hosted.host"},
		{"unknown policy", func(c *Config) { c.Ingestion.Policy = "retry" }, "ingestion.policy"},
		{"s3 without bucket", func(c *Config) { c.Blob.Backend = "s3" }, "blob.bucket"},
		{"bad log level", func(c *Config) { c.Logging.Level = "trace" }, "logging.level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestWriteYAML_RoundTripsThroughLoad(t *testing.T) {
	// Given: a config with a non-default timeout
	isolate(t)
	dir := t.TempDir()
	cfg := NewConfig()
	cfg.Generation.Timeout = 45 * time.Second
	cfg.Store.Backend = BackendCluster

	// When: writing it as the project config and loading it back
	require.NoError(t, cfg.WriteYAML(filepath.Join(dir, ".chatmydocs.yaml")))
	loaded, err := Load(dir)

	// Then: values survive
	require.NoError(t, err)
	assert.Equal(t, 45*time.Second, loaded.Generation.Timeout)
	assert.Equal(t, BackendCluster, loaded.Store.Backend)
}

func TestBackupFile_KeepsNewestBackups(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("version: 1\n"), 0644))

	for i := 0; i < MaxBackups+2; i++ {
		_, err := BackupFile(path)
		require.NoError(t, err)
		time.Sleep(2 * time.Millisecond)
	}

	backups, err := ListBackups(path)
	require.NoError(t, err)
	assert.Len(t, backups, MaxBackups)
}

func TestBackupFile_MissingFileIsNoop(t *testing.T) {
	got, err := BackupFile(filepath.Join(t.TempDir(), "absent.yaml"))

	assert.NoError(t, err)
	assert.Empty(t, got)
}
