package cmd

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newSessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Manage saved chat sessions",
		Long: `List, delete, or prune saved chat sessions.

A session remembers the wizard step and the active knowledge base so
'chatmydocs chat --session ID' can pick up where you left off.

Examples:
  # List all sessions
  chatmydocs sessions

  # Delete a specific session
  chatmydocs sessions delete 2f1c...

  # Remove sessions older than 30 days
  chatmydocs sessions prune --older-than=30d`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSessionsList(cmd.Context(), cmd)
		},
	}

	cmd.AddCommand(newSessionsDeleteCmd())
	cmd.AddCommand(newSessionsPruneCmd())

	return cmd
}

func newSessionsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID",
		Short: "Delete a saved session",
		Long: `Delete a saved session. The knowledge base it points to is kept.

Example:
  chatmydocs sessions delete 2f1c...`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSessionsDelete(cmd.Context(), cmd, args[0])
		},
	}
}

func newSessionsPruneCmd() *cobra.Command {
	var olderThan string

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Remove old sessions",
		Long: `Remove sessions that haven't been used within the specified duration.

Examples:
  chatmydocs sessions prune --older-than=30d
  chatmydocs sessions prune --older-than=12h`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSessionsPrune(cmd.Context(), cmd, olderThan)
		},
	}

	cmd.Flags().StringVar(&olderThan, "older-than", "30d", "Remove sessions older than this duration (e.g., 7d, 30d)")

	return cmd
}

func runSessionsList(ctx context.Context, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}

	owner, err := resolveOwner()
	if err != nil {
		return err
	}

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	sessions, err := a.ListSessions(owner)
	if err != nil {
		return fmt.Errorf("failed to list sessions: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(sessions) == 0 {
		_, _ = fmt.Fprintln(out, "No sessions found.")
		_, _ = fmt.Fprintln(out, "")
		_, _ = fmt.Fprintln(out, "Start one with: chatmydocs chat")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tSTEP\tKNOWLEDGE BASE\tLAST USED")
	_, _ = fmt.Fprintln(w, "--\t----\t--------------\t---------")
	for _, s := range sessions {
		active := s.ActiveKB
		if active == "" {
			active = "-"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", s.ID, s.Step, active, formatTimeAgo(s.LastUsed))
	}
	return w.Flush()
}

func runSessionsDelete(ctx context.Context, cmd *cobra.Command, id string) error {
	if ctx == nil {
		ctx = context.Background()
	}

	owner, err := resolveOwner()
	if err != nil {
		return err
	}

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	if err := a.DeleteSession(owner, id); err != nil {
		return err
	}

	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Session '%s' deleted.\n", id)
	return nil
}

func runSessionsPrune(ctx context.Context, cmd *cobra.Command, olderThan string) error {
	if ctx == nil {
		ctx = context.Background()
	}

	duration, err := parseDuration(olderThan)
	if err != nil {
		return fmt.Errorf("invalid duration '%s': %w", olderThan, err)
	}

	owner, err := resolveOwner()
	if err != nil {
		return err
	}

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	count, err := a.PruneSessions(owner, duration)
	if err != nil {
		return fmt.Errorf("failed to prune sessions: %w", err)
	}

	if count == 0 {
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), "No sessions to prune.")
	} else {
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Pruned %d session(s).\n", count)
	}
	return nil
}
