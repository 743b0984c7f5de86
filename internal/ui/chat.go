package ui

import (
	"fmt"
	"io"
	"strings"
)

// ChatPrinter writes the interactive chat transcript.
type ChatPrinter struct {
	out    io.Writer
	styles Styles
}

// NewChatPrinter creates a chat printer.
func NewChatPrinter(out io.Writer, noColor bool) *ChatPrinter {
	return &ChatPrinter{out: out, styles: GetStyles(noColor)}
}

// Prompt writes the input prompt for the given step, e.g. "upload".
func (p *ChatPrinter) Prompt(step string) {
	_, _ = fmt.Fprint(p.out, p.styles.User.Render(step+"> "))
}

// Message writes one conversation turn. role is "user" or "assistant".
func (p *ChatPrinter) Message(role, content string) {
	label := p.styles.User.Render("You:")
	if role == "assistant" {
		label = p.styles.Assistant.Render("Assistant:")
	}
	_, _ = fmt.Fprintf(p.out, "%s %s\n", label, content)
}

// Answer writes an answer with its sources.
func (p *ChatPrinter) Answer(text string, sources []string) {
	p.Message("assistant", text)
	if len(sources) > 0 {
		_, _ = fmt.Fprintln(p.out, p.styles.Sources.Render("  Sources: "+strings.Join(sources, ", ")))
	}
	_, _ = fmt.Fprintln(p.out)
}

// Info writes a status line.
func (p *ChatPrinter) Info(format string, args ...any) {
	_, _ = fmt.Fprintln(p.out, p.styles.Label.Render(fmt.Sprintf(format, args...)))
}

// Success writes a success line.
func (p *ChatPrinter) Success(format string, args ...any) {
	_, _ = fmt.Fprintln(p.out, p.styles.Success.Render("✓ "+fmt.Sprintf(format, args...)))
}

// Warn writes a warning line.
func (p *ChatPrinter) Warn(format string, args ...any) {
	_, _ = fmt.Fprintln(p.out, p.styles.Warning.Render("⚠ "+fmt.Sprintf(format, args...)))
}

// Error writes an error line.
func (p *ChatPrinter) Error(err error) {
	_, _ = fmt.Fprintln(p.out, p.styles.Error.Render("✗ "+err.Error()))
}
