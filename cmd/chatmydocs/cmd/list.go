package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/chatmydocs/internal/kb"
)

func newListCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List knowledge bases",
		Long:    `List the knowledge bases of the owner with their document counts.`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runList(cmd.Context(), cmd, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runList(ctx context.Context, cmd *cobra.Command, jsonOutput bool) error {
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

	kbs, err := a.ListKnowledgeBases(ctx, owner)
	if err != nil {
		return err
	}

	if jsonOutput {
		if kbs == nil {
			kbs = []kb.Summary{}
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(kbs)
	}

	out := cmd.OutOrStdout()
	if len(kbs) == 0 {
		_, _ = fmt.Fprintln(out, "No knowledge bases found.")
		_, _ = fmt.Fprintln(out, "")
		_, _ = fmt.Fprintln(out, "Create one with: chatmydocs ingest --kb NAME FILE...")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "NAME\tDOCUMENTS\tCREATED")
	_, _ = fmt.Fprintln(w, "----\t---------\t-------")
	for _, s := range kbs {
		_, _ = fmt.Fprintf(w, "%s\t%d\t%s\n", s.DisplayName, s.Documents, formatTimeAgo(s.CreatedAt))
	}
	return w.Flush()
}
