package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/chatmydocs/internal/ui"
)

func newStatsCmd() *cobra.Command {
	var (
		jsonOutput bool
		days       int
	)

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show question answering statistics",
		Long: `Display telemetry about answered questions:
  - Outcome distribution (grounded, refusal, greeting, error)
  - Refusal rate
  - Latency distribution

Counts are kept per day in the local telemetry database. Set
CHATMYDOCS_TELEMETRY=false to disable collection.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStats(cmd.Context(), cmd, jsonOutput, days)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().IntVar(&days, "days", 7, "Number of days to include")

	return cmd
}

func runStats(ctx context.Context, cmd *cobra.Command, jsonOutput bool, days int) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if days < 1 {
		days = 1
	}

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	snap, err := a.StoredStats(days)
	if err != nil {
		return err
	}

	r := ui.NewStatsRenderer(cmd.OutOrStdout(), noColorFlag || ui.DetectNoColor())
	if jsonOutput {
		return r.RenderJSON(snap)
	}
	return r.Render(snap)
}
