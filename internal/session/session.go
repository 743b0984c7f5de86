// Package session persists wizard sessions so a registered user can resume
// where they left off. Guest sessions never touch disk.
package session

import (
	"time"

	"github.com/google/uuid"

	"github.com/Aman-CERP/chatmydocs/pkg/version"
)

// Session is the persisted part of a wizard session. Upload bytes and chat
// messages are not stored here; chat history lives with the knowledge base.
type Session struct {
	// ID identifies the session.
	ID string `json:"id"`

	// Owner is the user the session belongs to.
	Owner string `json:"owner"`

	// Guest sessions are never saved.
	Guest bool `json:"-"`

	// Step is the wizard step name.
	Step string `json:"step"`

	// ActiveKB is the display name of the open knowledge base, if any.
	ActiveKB string `json:"active_kb,omitempty"`

	// PendingUploads lists buffered filenames. Their content is lost on
	// restart.
	PendingUploads []string `json:"pending_uploads,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	LastUsed  time.Time `json:"last_used"`

	// Version is the chatmydocs version that last saved this session.
	Version string `json:"version"`

	// Dir is where the session is stored. Computed, not persisted.
	Dir string `json:"-"`
}

// Info summarizes a session for listing.
type Info struct {
	ID       string
	Owner    string
	Step     string
	ActiveKB string
	LastUsed time.Time
}

// New creates a session with a fresh ID.
func New(owner string, guest bool) *Session {
	now := time.Now()
	return &Session{
		ID:        uuid.NewString(),
		Owner:     owner,
		Guest:     guest,
		CreatedAt: now,
		LastUsed:  now,
		Version:   version.Version,
	}
}

// Touch updates LastUsed to now.
func (s *Session) Touch() {
	s.LastUsed = time.Now()
}

// IsStale returns true if the session hasn't been used within maxAge.
func (s *Session) IsStale(maxAge time.Duration) bool {
	return time.Since(s.LastUsed) > maxAge
}

// ToInfo converts a Session to Info for listing.
func (s *Session) ToInfo() *Info {
	return &Info{
		ID:       s.ID,
		Owner:    s.Owner,
		Step:     s.Step,
		ActiveKB: s.ActiveKB,
		LastUsed: s.LastUsed,
	}
}
