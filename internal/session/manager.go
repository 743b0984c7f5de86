package session

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// DefaultMaxSessions is the default number of saved sessions per owner.
const DefaultMaxSessions = 20

// ManagerConfig configures the session manager.
type ManagerConfig struct {
	// StoragePath is the directory where sessions are stored.
	StoragePath string

	// MaxSessions caps saved sessions per owner. Defaults to DefaultMaxSessions.
	MaxSessions int
}

// Manager stores sessions under {StoragePath}/{owner}/{id}.
type Manager struct {
	storagePath string
	maxSessions int
}

// NewManager creates a session manager and its storage directory.
func NewManager(cfg ManagerConfig) (*Manager, error) {
	if cfg.StoragePath == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	if err := os.MkdirAll(cfg.StoragePath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create session storage: %w", err)
	}

	maxSessions := cfg.MaxSessions
	if maxSessions <= 0 {
		maxSessions = DefaultMaxSessions
	}
	return &Manager{storagePath: cfg.StoragePath, maxSessions: maxSessions}, nil
}

// Save persists sess and updates LastUsed. Guest sessions are ignored.
func (m *Manager) Save(sess *Session) error {
	if sess.Guest {
		return nil
	}
	if err := ValidateID(sess.ID); err != nil {
		return fmt.Errorf("invalid session: %w", err)
	}
	if err := validateOwner(sess.Owner); err != nil {
		return err
	}

	sess.Dir = m.dir(sess.Owner, sess.ID)
	if !m.Exists(sess.Owner, sess.ID) {
		count, err := m.count(sess.Owner)
		if err != nil {
			return fmt.Errorf("failed to count sessions: %w", err)
		}
		if count >= m.maxSessions {
			return fmt.Errorf("maximum %d sessions reached; delete old sessions first", m.maxSessions)
		}
	}

	sess.Touch()
	return saveSession(sess)
}

// Get loads a saved session.
func (m *Manager) Get(owner, id string) (*Session, error) {
	if err := ValidateID(id); err != nil {
		return nil, err
	}
	if err := validateOwner(owner); err != nil {
		return nil, err
	}
	if !m.Exists(owner, id) {
		return nil, fmt.Errorf("session '%s' not found", id)
	}
	return loadSession(m.dir(owner, id))
}

// List returns the sessions of owner, most recently used first.
func (m *Manager) List(owner string) ([]*Info, error) {
	if err := validateOwner(owner); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(filepath.Join(m.storagePath, owner))
	if err != nil {
		if os.IsNotExist(err) {
			return []*Info{}, nil
		}
		return nil, fmt.Errorf("failed to read sessions directory: %w", err)
	}

	sessions := []*Info{}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		sess, err := loadSession(m.dir(owner, entry.Name()))
		if err != nil {
			// Skip invalid sessions
			continue
		}
		sessions = append(sessions, sess.ToInfo())
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].LastUsed.After(sessions[j].LastUsed)
	})
	return sessions, nil
}

// Delete removes a saved session.
func (m *Manager) Delete(owner, id string) error {
	if !m.Exists(owner, id) {
		return fmt.Errorf("session '%s' not found", id)
	}
	if err := os.RemoveAll(m.dir(owner, id)); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// Prune removes sessions of owner older than olderThan and returns how many
// were deleted.
func (m *Manager) Prune(owner string, olderThan time.Duration) (int, error) {
	sessions, err := m.List(owner)
	if err != nil {
		return 0, err
	}

	deleted := 0
	for _, info := range sessions {
		if time.Since(info.LastUsed) > olderThan {
			if err := m.Delete(owner, info.ID); err != nil {
				continue
			}
			deleted++
		}
	}
	return deleted, nil
}

// Exists checks if a session is saved.
func (m *Manager) Exists(owner, id string) bool {
	_, err := os.Stat(filepath.Join(m.dir(owner, id), sessionFileName))
	return err == nil
}

func (m *Manager) count(owner string) (int, error) {
	entries, err := os.ReadDir(filepath.Join(m.storagePath, owner))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}

	count := 0
	for _, entry := range entries {
		if entry.IsDir() && m.Exists(owner, entry.Name()) {
			count++
		}
	}
	return count, nil
}

func (m *Manager) dir(owner, id string) string {
	return filepath.Join(m.storagePath, owner, id)
}
