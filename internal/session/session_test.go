package session

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/chatmydocs/pkg/version"
)

func newTestManager(t *testing.T, maxSessions int) *Manager {
	t.Helper()
	mgr, err := NewManager(ManagerConfig{StoragePath: t.TempDir(), MaxSessions: maxSessions})
	require.NoError(t, err)
	return mgr
}

func TestNew_CreatesWithDefaults(t *testing.T) {
	// When
	sess := New("alice", false)

	// Then
	assert.NoError(t, ValidateID(sess.ID))
	assert.Equal(t, "alice", sess.Owner)
	assert.Equal(t, version.Version, sess.Version)
	assert.Equal(t, sess.CreatedAt, sess.LastUsed)
	assert.NotEqual(t, sess.ID, New("alice", false).ID)
}

func TestSession_IsStale(t *testing.T) {
	sess := New("alice", false)
	sess.LastUsed = time.Now().Add(-48 * time.Hour)

	assert.True(t, sess.IsStale(24*time.Hour))
	assert.False(t, sess.IsStale(72*time.Hour))
}

func TestValidateID(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		wantErr string
	}{
		{"uuid", "0b5c6f1e-2a6b-4c41-9f57-0d7d5d8f6e21", ""},
		{"underscore", "my_session", ""},
		{"empty", "", "cannot be empty"},
		{"slash", "a/b", "can only contain"},
		{"dots", "..", "can only contain"},
		{"too long", string(make([]byte, 65)), "too long"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateID(tt.id)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestNewManager_CreatesStorageDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "new", "sessions")

	mgr, err := NewManager(ManagerConfig{StoragePath: path})

	require.NoError(t, err)
	assert.DirExists(t, path)
	assert.Equal(t, DefaultMaxSessions, mgr.maxSessions)

	_, err = NewManager(ManagerConfig{})
	assert.Error(t, err)
}

func TestManager_SaveAndGet(t *testing.T) {
	// Given
	mgr := newTestManager(t, 0)
	sess := New("alice", false)
	sess.Step = "chat"
	sess.ActiveKB = "Geography"

	// When
	require.NoError(t, mgr.Save(sess))
	got, err := mgr.Get("alice", sess.ID)

	// Then
	require.NoError(t, err)
	assert.Equal(t, sess.ID, got.ID)
	assert.Equal(t, "chat", got.Step)
	assert.Equal(t, "Geography", got.ActiveKB)
	assert.Equal(t, sess.Dir, got.Dir)
	assert.NoFileExists(t, filepath.Join(sess.Dir, sessionFileName+".tmp"))
}

func TestManager_GuestNeverSaved(t *testing.T) {
	mgr := newTestManager(t, 0)
	sess := New("guest_abc", true)

	require.NoError(t, mgr.Save(sess))

	assert.False(t, mgr.Exists("guest_abc", sess.ID))
	entries, err := os.ReadDir(mgr.storagePath)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestManager_MaxSessions(t *testing.T) {
	// Given
	mgr := newTestManager(t, 2)
	first := New("alice", false)
	require.NoError(t, mgr.Save(first))
	require.NoError(t, mgr.Save(New("alice", false)))

	// When
	err := mgr.Save(New("alice", false))

	// Then
	require.Error(t, err)
	assert.Contains(t, err.Error(), "maximum 2 sessions")
	assert.NoError(t, mgr.Save(first), "re-saving an existing session is allowed")
	assert.NoError(t, mgr.Save(New("bob", false)), "limit is per owner")
}

func TestManager_ListDeletePrune(t *testing.T) {
	// Given
	mgr := newTestManager(t, 0)
	old := New("alice", false)
	require.NoError(t, mgr.Save(old))
	old.LastUsed = time.Now().Add(-30 * 24 * time.Hour)
	require.NoError(t, saveSession(old))

	recent := New("alice", false)
	require.NoError(t, mgr.Save(recent))

	// When
	list, err := mgr.List("alice")

	// Then
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, recent.ID, list[0].ID)

	n, err := mgr.Prune("alice", 7*24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.False(t, mgr.Exists("alice", old.ID))

	require.NoError(t, mgr.Delete("alice", recent.ID))
	assert.Error(t, mgr.Delete("alice", recent.ID))

	empty, err := mgr.List("nobody")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestManager_GetMissing(t *testing.T) {
	mgr := newTestManager(t, 0)

	_, err := mgr.Get("alice", "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")

	_, err = mgr.Get("alice", "../escape")
	assert.Error(t, err)
}
