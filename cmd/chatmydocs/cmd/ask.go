package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/chatmydocs/internal/answer"
	"github.com/Aman-CERP/chatmydocs/internal/ui"
)

func newAskCmd() *cobra.Command {
	var (
		kbName     string
		fresh      bool
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "ask --kb NAME QUESTION",
		Short: "Ask a question about a knowledge base",
		Long: `Ask a question answered only from the documents of a knowledge base.

The saved conversation is continued so follow-up questions work; use
--fresh to ignore it. When the documents do not contain the answer the
reply says so and no sources are listed.`,
		Example: `  chatmydocs ask --kb Handbook "How many vacation days do I get?"
  chatmydocs ask --kb Handbook --fresh --json "Who approves expenses?"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAsk(cmd.Context(), cmd, kbName, strings.Join(args, " "), fresh, jsonOutput)
		},
	}

	cmd.Flags().StringVar(&kbName, "kb", "", "Knowledge base name (required)")
	cmd.Flags().BoolVar(&fresh, "fresh", false, "Ignore the saved conversation")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	_ = cmd.MarkFlagRequired("kb")

	return cmd
}

func runAsk(ctx context.Context, cmd *cobra.Command, kbName, question string, fresh, jsonOutput bool) error {
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

	var history answer.History
	if !fresh {
		if history, err = a.History(ctx, owner, kbName); err != nil {
			return err
		}
	}

	resp, err := a.Ask(ctx, owner, kbName, history, question)
	if err != nil {
		return err
	}

	if jsonOutput {
		if resp.Sources == nil {
			resp.Sources = []string{}
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}

	p := ui.NewChatPrinter(cmd.OutOrStdout(), noColorFlag || ui.DetectNoColor())
	p.Answer(resp.Answer, resp.Sources)
	if resp.HistoryWarning != "" {
		_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Warning: %s\n", resp.HistoryWarning)
	}
	return nil
}
