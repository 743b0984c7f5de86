package wizard

import (
	"context"

	"github.com/Aman-CERP/chatmydocs/internal/answer"
	"github.com/Aman-CERP/chatmydocs/internal/extract"
	"github.com/Aman-CERP/chatmydocs/internal/kb"
)

// Machine drives one Session through the wizard. It is not safe for
// concurrent use; each user session owns its Machine.
type Machine struct {
	sess    *Session
	backend Backend
	persist Persister
}

// New returns a Machine at StepUpload. persist may be nil.
func New(sess *Session, backend Backend, persist Persister) *Machine {
	return &Machine{sess: sess, backend: backend, persist: persist}
}

// Session returns the session context.
func (m *Machine) Session() *Session { return m.sess }

// Step returns the current step.
func (m *Machine) Step() Step { return m.sess.Step }

// Buffer adds files to the upload buffer.
func (m *Machine) Buffer(files ...Upload) error {
	if m.sess.Step != StepUpload {
		return ErrInvalidTransition{From: m.sess.Step, Action: "upload files"}
	}
	m.sess.Uploads = append(m.sess.Uploads, files...)
	return m.save()
}

// Clear empties the upload buffer.
func (m *Machine) Clear() error {
	if m.sess.Step != StepUpload {
		return ErrInvalidTransition{From: m.sess.Step, Action: "clear uploads"}
	}
	m.sess.Uploads = nil
	return m.save()
}

// Continue moves from UPLOAD to PROCESS.
func (m *Machine) Continue() error {
	if m.sess.Step != StepUpload {
		return ErrInvalidTransition{From: m.sess.Step, Action: "continue"}
	}
	if len(m.sess.Uploads) == 0 {
		return ErrNoFiles
	}
	m.sess.Step = StepProcess
	return m.save()
}

// Back returns from PROCESS to UPLOAD, keeping the buffer.
func (m *Machine) Back() error {
	if m.sess.Step != StepProcess {
		return ErrInvalidTransition{From: m.sess.Step, Action: "go back"}
	}
	m.sess.Step = StepUpload
	return m.save()
}

// Process builds a knowledge base named name from the buffer and moves to
// CHAT. On failure the machine stays in PROCESS with the buffer intact.
func (m *Machine) Process(ctx context.Context, name string) (*kb.CreateResult, error) {
	if m.sess.Step != StepProcess {
		return nil, ErrInvalidTransition{From: m.sess.Step, Action: "process documents"}
	}

	files := make([]extract.File, len(m.sess.Uploads))
	for i, u := range m.sess.Uploads {
		files[i] = extract.File{Name: u.Name, Data: u.Data}
	}

	res, err := m.backend.Create(ctx, m.sess.Owner, name, files)
	if err != nil {
		return nil, err
	}

	m.sess.Active = res.KB
	m.sess.Chat = nil
	m.sess.Uploads = nil
	m.sess.Step = StepChat
	return res, m.save()
}

// Open loads an existing knowledge base with its saved chat and moves to
// CHAT from any step. Buffered uploads are discarded.
func (m *Machine) Open(ctx context.Context, name string) error {
	loaded, err := m.backend.Load(ctx, m.sess.Owner, name)
	if err != nil {
		return err
	}

	var history answer.History
	if !m.sess.Guest {
		if err := m.backend.History(ctx, m.sess.Owner, name, &history); err != nil {
			return err
		}
	}

	m.sess.Active = loaded
	m.sess.Chat = history
	m.sess.Uploads = nil
	m.sess.Step = StepChat
	return m.save()
}

// Ask answers a question against the active knowledge base.
func (m *Machine) Ask(ctx context.Context, question string) (*answer.Response, error) {
	if m.sess.Step != StepChat || m.sess.Active == nil {
		return nil, ErrInvalidTransition{From: m.sess.Step, Action: "ask a question"}
	}

	resp, err := m.backend.Answer(ctx, answer.Request{
		KB:       m.sess.Active,
		History:  m.sess.Chat,
		Question: question,
	})
	if err != nil {
		return nil, err
	}
	m.sess.Chat = resp.History
	return resp, m.save()
}

// Reset starts over at UPLOAD with nothing buffered, no active knowledge
// base and an empty chat.
func (m *Machine) Reset() error {
	m.sess.Step = StepUpload
	m.sess.Uploads = nil
	m.sess.Active = nil
	m.sess.Chat = nil
	return m.save()
}

func (m *Machine) save() error {
	if m.persist == nil || m.sess.Guest {
		return nil
	}
	return m.persist.Persist(m.sess)
}
