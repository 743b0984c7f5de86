package preflight

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/chatmydocs/internal/config"
)

func TestNeedsCheck_NoMarker(t *testing.T) {
	assert.True(t, NeedsCheck(t.TempDir(), "abc"))
}

func TestMarkPassed_ThenNeedsCheck(t *testing.T) {
	// Given: a marker for one fingerprint
	dir := filepath.Join(t.TempDir(), "data")
	require.NoError(t, MarkPassed(dir, "abc"))

	// Then: the same fingerprint is satisfied and another is not
	assert.False(t, NeedsCheck(dir, "abc"))
	assert.True(t, NeedsCheck(dir, "def"))
}

func TestNeedsCheck_CorruptMarker(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, MarkerFile), []byte("garbage"), 0o644))

	assert.True(t, NeedsCheck(dir, "abc"))
	assert.Zero(t, MarkerAge(dir))
}

func TestClearMarker(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, MarkPassed(dir, "abc"))

	require.NoError(t, ClearMarker(dir))
	require.NoError(t, ClearMarker(dir))

	assert.True(t, NeedsCheck(dir, "abc"))
}

func TestMarkerAge(t *testing.T) {
	dir := t.TempDir()
	assert.Zero(t, MarkerAge(dir))

	require.NoError(t, MarkPassed(dir, "abc"))
	age := MarkerAge(dir)
	assert.GreaterOrEqual(t, age, time.Duration(0))
	assert.Less(t, age, time.Minute)
}

func TestFingerprint_ChangesWithProvider(t *testing.T) {
	a := config.NewConfig()
	b := config.NewConfig()
	assert.Equal(t, Fingerprint(a), Fingerprint(b))

	b.Embeddings.Provider = "static"
	assert.NotEqual(t, Fingerprint(a), Fingerprint(b))
}
