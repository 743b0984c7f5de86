// Package auth holds registered users and verifies their passwords. It is
// deliberately small: a users table and bcrypt hashes.
package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	cerrors "github.com/Aman-CERP/chatmydocs/internal/errors"
)

// User is a registered account. PasswordHash is a bcrypt hash.
type User struct {
	Username     string
	Name         string
	Email        string
	PasswordHash string
}

// CredentialStore lists and adds users.
type CredentialStore interface {
	ListUsers(ctx context.Context) (map[string]User, error)
	AddUser(ctx context.Context, username, name, email, passwordHash string) error
}

// SQLiteStore keeps users in a SQLite table.
type SQLiteStore struct {
	mu     sync.Mutex
	db     *sql.DB
	closed bool
}

var _ CredentialStore = (*SQLiteStore)(nil)

// OpenSQLite opens or creates the database at path. An empty path opens an
// in-memory database.
func OpenSQLite(path string) (*SQLiteStore, error) {
	dsn := ":memory:"
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
		dsn = path
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to set pragma: %w", err)
	}

	const schema = `
	CREATE TABLE IF NOT EXISTS users (
		username   TEXT PRIMARY KEY,
		name       TEXT NOT NULL,
		email      TEXT NOT NULL,
		password   TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// ListUsers returns every user keyed by username.
func (s *SQLiteStore) ListUsers(ctx context.Context) (map[string]User, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT username, name, email, password FROM users`)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer func() { _ = rows.Close() }()

	users := make(map[string]User)
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.Username, &u.Name, &u.Email, &u.PasswordHash); err != nil {
			return nil, err
		}
		users[u.Username] = u
	}
	return users, rows.Err()
}

// AddUser inserts a user. An existing username is ErrUserExists.
func (s *SQLiteStore) AddUser(ctx context.Context, username, name, email, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("credential store is closed")
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users(username, name, email, password) VALUES (?, ?, ?, ?)`,
		username, name, email, passwordHash)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") || strings.Contains(err.Error(), "PRIMARY KEY") {
			return userExists(username)
		}
		return fmt.Errorf("failed to add user: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

func userExists(username string) *cerrors.Error {
	return cerrors.New(cerrors.ErrCodeUserExists, fmt.Sprintf("username %q is already taken", username), nil).
		WithDetail("username", username).
		WithSuggestion("Choose a different username")
}
