package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/x/term"
	"github.com/spf13/cobra"

	"github.com/Aman-CERP/chatmydocs/internal/auth"
)

func newRegisterCmd() *cobra.Command {
	var r auth.Registration

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account",
		Long: `Create an account. The username becomes the owner of the knowledge
bases you build (pass it as --owner or set CHATMYDOCS_OWNER).

Fields not given as flags are prompted for. Passwords are never echoed.`,
		Example: `  chatmydocs register
  chatmydocs register --username ada --name "Ada Lovelace" --email ada@example.com`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRegister(cmd.Context(), cmd, r)
		},
	}

	cmd.Flags().StringVar(&r.Username, "username", "", "Username")
	cmd.Flags().StringVar(&r.Name, "name", "", "Full name")
	cmd.Flags().StringVar(&r.Email, "email", "", "Email address")

	return cmd
}

func newLoginCmd() *cobra.Command {
	var username string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Check a username and password",
		Long:  `Verify account credentials. The password is prompted for.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runLogin(cmd.Context(), cmd, username)
		},
	}

	cmd.Flags().StringVarP(&username, "user", "u", "", "Username")

	return cmd
}

func runRegister(ctx context.Context, cmd *cobra.Command, r auth.Registration) error {
	if ctx == nil {
		ctx = context.Background()
	}

	p := newPrompter(cmd)
	var err error
	if r.Name, err = p.field("Name", r.Name); err != nil {
		return err
	}
	if r.Email, err = p.field("Email", r.Email); err != nil {
		return err
	}
	if r.Username, err = p.field("Username", r.Username); err != nil {
		return err
	}
	if r.Password, err = p.secret("Password"); err != nil {
		return err
	}
	if r.ConfirmPassword, err = p.secret("Confirm password"); err != nil {
		return err
	}

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	u, err := a.Register(ctx, r)
	if err != nil {
		return err
	}

	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Welcome, %s! Your owner name is '%s'.\n", u.Name, u.Username)
	return nil
}

func runLogin(ctx context.Context, cmd *cobra.Command, username string) error {
	if ctx == nil {
		ctx = context.Background()
	}

	p := newPrompter(cmd)
	username, err := p.field("Username", username)
	if err != nil {
		return err
	}
	password, err := p.secret("Password")
	if err != nil {
		return err
	}

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	u, err := a.Authenticate(ctx, username, password)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "Welcome back, %s.\n", u.Name)
	_, _ = fmt.Fprintf(out, "Use --owner %s or export CHATMYDOCS_OWNER=%s to work with your knowledge bases.\n",
		u.Username, u.Username)
	return nil
}

// prompter reads form fields from the command input. Secrets are read
// without echo when the input is a terminal.
type prompter struct {
	in  io.Reader
	out io.Writer
	r   *bufio.Reader
}

func newPrompter(cmd *cobra.Command) *prompter {
	in := cmd.InOrStdin()
	return &prompter{in: in, out: cmd.OutOrStdout(), r: bufio.NewReader(in)}
}

// field returns current when set, otherwise prompts for a value.
func (p *prompter) field(label, current string) (string, error) {
	if current != "" {
		return current, nil
	}
	_, _ = fmt.Fprintf(p.out, "%s: ", label)
	return p.line()
}

func (p *prompter) secret(label string) (string, error) {
	_, _ = fmt.Fprintf(p.out, "%s: ", label)
	if f, ok := p.in.(*os.File); ok && term.IsTerminal(f.Fd()) {
		b, err := term.ReadPassword(f.Fd())
		_, _ = fmt.Fprintln(p.out)
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		return string(b), nil
	}
	return p.line()
}

func (p *prompter) line() (string, error) {
	s, err := p.r.ReadString('\n')
	if err != nil && (err != io.EOF || s == "") {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	return strings.TrimRight(s, "\r\n"), nil
}
