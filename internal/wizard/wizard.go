// Package wizard sequences the upload, process and chat steps of one user
// session. All state lives in an explicit Session owned by the Machine.
package wizard

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Aman-CERP/chatmydocs/internal/answer"
	"github.com/Aman-CERP/chatmydocs/internal/extract"
	"github.com/Aman-CERP/chatmydocs/internal/kb"
)

// Step is a wizard step.
type Step int

const (
	StepUpload Step = iota
	StepProcess
	StepChat
)

func (s Step) String() string {
	switch s {
	case StepUpload:
		return "upload"
	case StepProcess:
		return "process"
	case StepChat:
		return "chat"
	default:
		return fmt.Sprintf("step(%d)", int(s))
	}
}

// ParseStep is the inverse of Step.String. Unknown names map to StepUpload.
func ParseStep(s string) Step {
	switch strings.ToLower(s) {
	case "process":
		return StepProcess
	case "chat":
		return StepChat
	default:
		return StepUpload
	}
}

// ErrNoFiles is returned by Continue when nothing was uploaded.
var ErrNoFiles = errors.New("upload at least one file before continuing")

// ErrInvalidTransition reports an action not allowed in the current step.
type ErrInvalidTransition struct {
	From   Step
	Action string
}

func (e ErrInvalidTransition) Error() string {
	return fmt.Sprintf("cannot %s during the %s step", e.Action, e.From)
}

// Upload is a buffered file.
type Upload struct {
	Name string
	Data []byte
}

// Session is the per-user wizard context.
type Session struct {
	ID      string
	Owner   string
	Guest   bool
	Step    Step
	Uploads []Upload
	Active  *kb.KnowledgeBase
	Chat    answer.History
}

// Backend performs the work behind each step.
type Backend interface {
	Create(ctx context.Context, owner, name string, files []extract.File) (*kb.CreateResult, error)
	Load(ctx context.Context, owner, name string) (*kb.KnowledgeBase, error)
	History(ctx context.Context, owner, name string, v any) error
	Answer(ctx context.Context, req answer.Request) (*answer.Response, error)
}

// Persister saves the session after every transition.
type Persister interface {
	Persist(s *Session) error
}
