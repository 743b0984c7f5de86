package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/google/renameio"
)

const (
	// sessionFileName is the metadata file name within each session directory.
	sessionFileName = "session.json"

	maxSessionIDLength = 64
)

var validSessionIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// ValidateID checks that id is safe to use as a directory name.
func ValidateID(id string) error {
	if id == "" {
		return fmt.Errorf("session id cannot be empty")
	}
	if len(id) > maxSessionIDLength {
		return fmt.Errorf("session id too long (max %d chars)", maxSessionIDLength)
	}
	if !validSessionIDPattern.MatchString(id) {
		return fmt.Errorf("session id can only contain letters, numbers, hyphens, and underscores")
	}
	return nil
}

// validateOwner rejects owners that would leave the storage directory.
func validateOwner(owner string) error {
	if owner == "" || owner == "." || owner == ".." || filepath.Base(owner) != owner {
		return fmt.Errorf("invalid session owner %q", owner)
	}
	return nil
}

// saveSession writes sess atomically to its directory.
func saveSession(sess *Session) error {
	if err := os.MkdirAll(sess.Dir, 0o755); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}

	data, err := json.MarshalIndent(sess, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	if err := renameio.WriteFile(filepath.Join(sess.Dir, sessionFileName), data, 0o644); err != nil {
		return fmt.Errorf("failed to save session file: %w", err)
	}
	return nil
}

// loadSession reads the session stored in dir.
func loadSession(dir string) (*Session, error) {
	data, err := os.ReadFile(filepath.Join(dir, sessionFileName))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("session.json not found in %s", dir)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session.json: %w", err)
	}

	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("failed to parse session.json: %w", err)
	}
	sess.Dir = dir
	return &sess, nil
}
