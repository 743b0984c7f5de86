package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/Aman-CERP/chatmydocs/internal/answer"
	cerrors "github.com/Aman-CERP/chatmydocs/internal/errors"
	"github.com/Aman-CERP/chatmydocs/internal/extract"
	"github.com/Aman-CERP/chatmydocs/internal/kb"
	"github.com/Aman-CERP/chatmydocs/internal/session"
	"github.com/Aman-CERP/chatmydocs/internal/wizard"
)

// NewSession starts a wizard for owner. A guest session gets a fresh guest
// owner id when owner is empty.
func (a *App) NewSession(owner string, guest bool) (*wizard.Machine, error) {
	if guest && owner == "" {
		owner = kb.NewGuestOwner()
	}
	if err := kb.ValidateOwner(owner); err != nil {
		return nil, err
	}

	rec := session.New(owner, guest)
	sess := &wizard.Session{ID: rec.ID, Owner: owner, Guest: guest, Step: wizard.StepUpload}
	return wizard.New(sess, backend{a}, &persister{mgr: a.sessions, rec: rec}), nil
}

// ResumeSession restores a saved session. Buffered uploads are not saved,
// so a session saved before processing resumes at the upload step.
func (a *App) ResumeSession(ctx context.Context, owner, id string) (*wizard.Machine, error) {
	rec, err := a.sessions.Get(owner, id)
	if err != nil {
		return nil, err
	}

	sess := &wizard.Session{ID: rec.ID, Owner: rec.Owner, Step: wizard.StepUpload}
	m := wizard.New(sess, backend{a}, &persister{mgr: a.sessions, rec: rec})

	if rec.ActiveKB != "" && wizard.ParseStep(rec.Step) == wizard.StepChat {
		if err := m.Open(ctx, rec.ActiveKB); err != nil {
			a.logger.Warn("saved knowledge base unavailable, starting over",
				slog.String("session", id),
				slog.String("kb", rec.ActiveKB),
				slog.String("error", err.Error()))
			if err := m.Reset(); err != nil {
				return nil, err
			}
		}
	}
	return m, nil
}

// ListSessions lists the saved sessions of owner.
func (a *App) ListSessions(owner string) ([]*session.Info, error) {
	return a.sessions.List(owner)
}

// DeleteSession removes a saved session of owner.
func (a *App) DeleteSession(owner, id string) error {
	if !a.sessions.Exists(owner, id) {
		return cerrors.ValidationError("session not found: "+id, nil)
	}
	return a.sessions.Delete(owner, id)
}

// PruneSessions removes sessions of owner unused for longer than olderThan
// and returns how many were removed.
func (a *App) PruneSessions(owner string, olderThan time.Duration) (int, error) {
	return a.sessions.Prune(owner, olderThan)
}

// backend exposes the App to the wizard.
type backend struct{ a *App }

func (b backend) Create(ctx context.Context, owner, name string, files []extract.File) (*kb.CreateResult, error) {
	return b.a.kbs.Create(ctx, owner, name, files)
}

func (b backend) Load(ctx context.Context, owner, name string) (*kb.KnowledgeBase, error) {
	return b.a.kbs.Load(ctx, owner, name)
}

func (b backend) History(ctx context.Context, owner, name string, v any) error {
	return b.a.kbs.History(ctx, owner, name, v)
}

func (b backend) Answer(ctx context.Context, req answer.Request) (*answer.Response, error) {
	return b.a.engine.Ask(ctx, req)
}

// persister mirrors a wizard session into its saved record.
type persister struct {
	mgr *session.Manager
	rec *session.Session
}

func (p *persister) Persist(s *wizard.Session) error {
	p.rec.Step = s.Step.String()
	p.rec.ActiveKB = ""
	if s.Active != nil {
		p.rec.ActiveKB = s.Active.Name
	}
	p.rec.PendingUploads = p.rec.PendingUploads[:0]
	for _, u := range s.Uploads {
		p.rec.PendingUploads = append(p.rec.PendingUploads, u.Name)
	}
	return p.mgr.Save(p.rec)
}
