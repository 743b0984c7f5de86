package answer

import "context"

// Role of a chat message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of a conversation.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// History is an ordered conversation with one knowledge base.
type History []Message

// Last returns at most the n most recent messages.
func (h History) Last(n int) History {
	if n <= 0 {
		return nil
	}
	if len(h) <= n {
		return h
	}
	return h[len(h)-n:]
}

// HistoryStore persists chat histories. kb.Manager implements it.
type HistoryStore interface {
	SaveHistory(ctx context.Context, owner, name string, history any) error
}
