package configs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/chatmydocs/internal/config"
)

func TestTemplates_MatchDefaults(t *testing.T) {
	// Given: both templates installed in an isolated home and project
	home := t.TempDir()
	project := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, ".config"))
	for _, env := range []string{"CHATMYDOCS_DATA_DIR", "CHATMYDOCS_EMBEDDINGS_PROVIDER", "CHATMYDOCS_OLLAMA_HOST"} {
		t.Setenv(env, "")
	}

	userPath := config.GetUserConfigPath()
	require.NoError(t, os.MkdirAll(filepath.Dir(userPath), 0o755))
	require.NoError(t, os.WriteFile(userPath, []byte(UserConfigTemplate), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(project, ".chatmydocs.yaml"), []byte(ProjectConfigTemplate), 0o600))

	// When: loading
	cfg, err := config.Load(project)

	// Then: the templates describe the built-in defaults
	require.NoError(t, err)
	defaults := config.NewConfig()
	assert.Equal(t, defaults.Embeddings.Model, cfg.Embeddings.Model)
	assert.Equal(t, defaults.Generation.Timeout, cfg.Generation.Timeout)
	assert.Equal(t, defaults.Chunking, cfg.Chunking)
	assert.Equal(t, defaults.Retrieval, cfg.Retrieval)
	assert.Equal(t, defaults.Ingestion.Policy, cfg.Ingestion.Policy)
	assert.Equal(t, defaults.Store.Backend, cfg.Store.Backend)
}
