package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/chatmydocs/internal/app"
	"github.com/Aman-CERP/chatmydocs/internal/kb"
	"github.com/Aman-CERP/chatmydocs/internal/ui"
	"github.com/Aman-CERP/chatmydocs/internal/wizard"
)

const chatHelp = `Commands:
  :open NAME   chat with an existing knowledge base
  :list        list your knowledge bases
  :continue    build a knowledge base from the uploaded files
  :back        return to uploading
  :clear       forget the uploaded files
  :sources     show the documents of the active knowledge base
  :reset       start over
  :help        show this help
  :quit        leave the chat`

func newChatCmd() *cobra.Command {
	var (
		guest     bool
		sessionID string
	)

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Upload documents and chat with them interactively",
		Long: `Start the interactive wizard.

1. Upload: type file paths to upload them, then :continue.
2. Process: type a name for the knowledge base to build it.
3. Chat: ask questions. Answers list the documents they came from.

Use :open NAME at any time to chat with an existing knowledge base.

Sessions are saved so they can be resumed with --session. Guest sessions
use a throwaway owner and save nothing.`,
		Example: `  chatmydocs chat
  chatmydocs chat --guest
  chatmydocs chat --session 2f1c...`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runChat(cmd.Context(), cmd, guest, sessionID)
		},
	}

	cmd.Flags().BoolVar(&guest, "guest", false, "Use a temporary guest identity")
	cmd.Flags().StringVar(&sessionID, "session", "", "Resume a saved session")
	cmd.MarkFlagsMutuallyExclusive("guest", "session")

	return cmd
}

func runChat(ctx context.Context, cmd *cobra.Command, guest bool, sessionID string) error {
	if ctx == nil {
		ctx = context.Background()
	}

	owner := ""
	if !guest {
		var err error
		if owner, err = resolveOwner(); err != nil {
			return err
		}
	}

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	var m *wizard.Machine
	if sessionID != "" {
		m, err = a.ResumeSession(ctx, owner, sessionID)
	} else {
		m, err = a.NewSession(owner, guest)
	}
	if err != nil {
		return err
	}

	loop := newChatLoop(a, m, cmd.OutOrStdout(), noColorFlag || ui.DetectNoColor())
	loop.greet()
	return loop.run(ctx, cmd.InOrStdin())
}

// chatLoop reads commands and questions line by line and drives the wizard.
type chatLoop struct {
	app     *app.App
	m       *wizard.Machine
	out     io.Writer
	p       *ui.ChatPrinter
	noColor bool
}

func newChatLoop(a *app.App, m *wizard.Machine, out io.Writer, noColor bool) *chatLoop {
	return &chatLoop{app: a, m: m, out: out, p: ui.NewChatPrinter(out, noColor), noColor: noColor}
}

func (l *chatLoop) greet() {
	sess := l.m.Session()
	if sess.Guest {
		l.p.Info("Guest session. Nothing you upload is kept after you leave.")
	} else {
		l.p.Info("Session %s (resume with --session %s)", sess.ID, sess.ID)
	}
	if sess.Active != nil {
		l.p.Info("Chatting with %s. %d earlier message(s).", sess.Active.Name, len(sess.Chat))
	} else {
		l.p.Info("Type file paths to upload them, then :continue. :help lists commands.")
	}
}

func (l *chatLoop) run(ctx context.Context, in io.Reader) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for {
		l.p.Prompt(l.m.Step().String())
		if !scanner.Scan() {
			_, _ = fmt.Fprintln(l.out)
			return scanner.Err()
		}

		quit, err := l.handle(ctx, strings.TrimSpace(scanner.Text()))
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			l.p.Error(err)
		}
		if quit {
			return nil
		}
	}
}

// handle processes one input line. It reports whether the user asked to
// quit; returned errors are shown and the loop continues.
func (l *chatLoop) handle(ctx context.Context, line string) (bool, error) {
	if line == "" {
		return false, nil
	}

	if strings.HasPrefix(line, ":") {
		return l.command(ctx, line)
	}

	switch l.m.Step() {
	case wizard.StepUpload:
		return false, l.upload(strings.Fields(line))
	case wizard.StepProcess:
		return false, l.process(ctx, line)
	default:
		return false, l.ask(ctx, line)
	}
}

func (l *chatLoop) command(ctx context.Context, line string) (bool, error) {
	name, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch name {
	case ":quit", ":q", ":exit":
		return true, nil
	case ":help":
		_, _ = fmt.Fprintln(l.out, chatHelp)
	case ":reset":
		if err := l.m.Reset(); err != nil {
			return false, err
		}
		l.p.Info("Started over. Upload files to build a new knowledge base.")
	case ":open":
		if arg == "" {
			return false, errors.New("usage: :open NAME")
		}
		if err := l.m.Open(ctx, arg); err != nil {
			return false, err
		}
		l.p.Success("Opened %s", l.m.Session().Active.Name)
		for _, msg := range l.m.Session().Chat {
			l.p.Message(string(msg.Role), msg.Content)
		}
	case ":list":
		return false, l.list(ctx)
	case ":continue":
		if err := l.m.Continue(); err != nil {
			return false, err
		}
		l.p.Info("Name the knowledge base to build it, or :back to upload more.")
	case ":back":
		return false, l.m.Back()
	case ":clear":
		if err := l.m.Clear(); err != nil {
			return false, err
		}
		l.p.Info("Upload buffer cleared.")
	case ":sources":
		active := l.m.Session().Active
		if active == nil {
			return false, errors.New("no knowledge base is open")
		}
		for _, doc := range active.SourceDocuments {
			_, _ = fmt.Fprintf(l.out, "  %s\n", doc)
		}
	default:
		return false, fmt.Errorf("unknown command %s (try :help)", name)
	}
	return false, nil
}

func (l *chatLoop) upload(paths []string) error {
	uploads := make([]wizard.Upload, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return fmt.Errorf("cannot read %s: %w", p, err)
		}
		uploads = append(uploads, wizard.Upload{Name: filepath.Base(p), Data: data})
	}
	if err := l.m.Buffer(uploads...); err != nil {
		return err
	}
	l.p.Success("%d file(s) ready: %s", len(l.m.Session().Uploads), uploadNames(l.m.Session().Uploads))
	return nil
}

func (l *chatLoop) process(ctx context.Context, name string) error {
	r := ui.NewPlainRenderer(ui.NewConfig(l.out, ui.WithNoColor(l.noColor), ui.WithKnowledgeBase(name)))
	res, err := l.m.Process(kb.WithProgress(ctx, ui.Observe(r, nil)), name)
	if err != nil {
		return err
	}

	for _, w := range res.Warnings {
		l.p.Warn("skipped %s", w.String())
	}
	l.p.Success("%s is ready: %d document(s), %d chunk(s). Ask away.",
		res.KB.Name, len(res.KB.SourceDocuments), res.Chunks)
	return nil
}

func (l *chatLoop) ask(ctx context.Context, question string) error {
	resp, err := l.m.Ask(ctx, question)
	if err != nil {
		return err
	}
	l.p.Answer(resp.Answer, resp.Sources)
	if resp.HistoryWarning != "" {
		l.p.Warn("%s", resp.HistoryWarning)
	}
	return nil
}

func (l *chatLoop) list(ctx context.Context) error {
	kbs, err := l.app.ListKnowledgeBases(ctx, l.m.Session().Owner)
	if err != nil {
		return err
	}
	if len(kbs) == 0 {
		l.p.Info("No knowledge bases yet.")
		return nil
	}
	for _, s := range kbs {
		_, _ = fmt.Fprintf(l.out, "  %s (%d documents)\n", s.DisplayName, s.Documents)
	}
	return nil
}

func uploadNames(uploads []wizard.Upload) string {
	names := make([]string, len(uploads))
	for i, u := range uploads {
		names[i] = u.Name
	}
	return strings.Join(names, ", ")
}
