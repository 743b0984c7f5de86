package cmd

import (
	"bufio"
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	cerrors "github.com/Aman-CERP/chatmydocs/internal/errors"
)

func newDeleteCmd() *cobra.Command {
	var (
		kbName string
		yes    bool
	)

	cmd := &cobra.Command{
		Use:     "delete --kb NAME",
		Aliases: []string{"rm"},
		Short:   "Delete a knowledge base and all its data",
		Long: `Delete a knowledge base and all its data.

This permanently removes:
- the vector index
- the metadata and source document list
- the saved conversation
- the uploaded files

Every part is attempted even when an earlier one fails; the parts that
could not be removed are reported.`,
		Example: `  chatmydocs delete --kb Handbook
  chatmydocs delete --kb Handbook --yes`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDelete(cmd.Context(), cmd, kbName, yes)
		},
	}

	cmd.Flags().StringVar(&kbName, "kb", "", "Knowledge base name (required)")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Do not ask for confirmation")
	_ = cmd.MarkFlagRequired("kb")

	return cmd
}

func runDelete(ctx context.Context, cmd *cobra.Command, kbName string, yes bool) error {
	if ctx == nil {
		ctx = context.Background()
	}

	owner, err := resolveOwner()
	if err != nil {
		return err
	}

	if !yes && !confirm(cmd, fmt.Sprintf("Delete knowledge base '%s'? [y/N] ", kbName)) {
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Aborted.")
		return nil
	}

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	if err := a.DeleteKnowledgeBase(ctx, owner, kbName); err != nil {
		if cerrors.IsPartialDelete(err) {
			_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Knowledge base '%s' was only partly deleted.\n", kbName)
		}
		return err
	}

	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Knowledge base '%s' deleted.\n", kbName)
	return nil
}

// confirm asks a yes/no question on the command's input.
func confirm(cmd *cobra.Command, prompt string) bool {
	_, _ = fmt.Fprint(cmd.OutOrStdout(), prompt)
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && line == "" {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	default:
		return false
	}
}
