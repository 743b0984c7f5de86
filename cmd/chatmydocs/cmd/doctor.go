package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/chatmydocs/internal/config"
	"github.com/Aman-CERP/chatmydocs/internal/lifecycle"
	"github.com/Aman-CERP/chatmydocs/internal/preflight"
)

var errChecksFailed = errors.New("system check failed")

func newDoctorCmd() *cobra.Command {
	var (
		jsonOutput bool
		verbose    bool
		pull       bool
	)

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check that providers, storage and services are ready",
		Long: `Run the system checks for the current configuration:
  - data directory, disk space and file descriptor limit
  - embedding and generation providers (Ollama models or API keys)
  - vector store and blob storage
  - OCR service, when configured

With --pull, missing Ollama models are downloaded before checking.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDoctor(cmd.Context(), cmd, jsonOutput, verbose, pull)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Show details for each check")
	cmd.Flags().BoolVar(&pull, "pull", false, "Pull missing Ollama models")

	return cmd
}

func runDoctor(ctx context.Context, cmd *cobra.Command, jsonOutput, verbose, pull bool) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if pull {
		if err := pullModels(ctx, cfg, cmd.ErrOrStderr()); err != nil {
			return err
		}
	}

	checker := preflight.New(cfg, preflight.WithOutput(cmd.OutOrStdout()), preflight.WithVerbose(verbose))
	results := checker.RunAll(ctx)

	if jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(map[string]any{
			"status": checker.SummaryStatus(results),
			"checks": results,
		}); err != nil {
			return err
		}
	} else {
		checker.PrintResults(results)
	}

	if checker.HasCriticalFailures(results) {
		_ = preflight.ClearMarker(cfg.DataDir)
		return errChecksFailed
	}
	return preflight.MarkPassed(cfg.DataDir, preflight.Fingerprint(cfg))
}

// pullModels downloads every configured Ollama model that is missing.
func pullModels(ctx context.Context, cfg *config.Config, w io.Writer) error {
	for _, ref := range preflight.OllamaModels(cfg) {
		m := lifecycle.NewModelManager(ref.Host)
		has, err := m.HasModel(ctx, ref.Model)
		if err != nil {
			return fmt.Errorf("%s: %w", ref.Role, err)
		}
		if has {
			continue
		}

		_, _ = fmt.Fprintf(w, "Pulling %s model %s from %s...\n", ref.Role, ref.Model, m.Host())
		if err := m.PullModel(ctx, ref.Model, lifecycle.PullProgressPrinter(w)); err != nil {
			_, _ = fmt.Fprintln(w)
			return fmt.Errorf("pull %s: %w", ref.Model, err)
		}
		_, _ = fmt.Fprintf(w, "\nModel %s ready.\n", ref.Model)
		slog.Info("pulled model", slog.String("model", ref.Model), slog.String("role", ref.Role))
	}
	return nil
}

// ensurePreflight runs the system checks once per configuration. Results are
// only printed, to w, when a required check fails.
func ensurePreflight(ctx context.Context, cfg *config.Config, w io.Writer) error {
	fp := preflight.Fingerprint(cfg)
	if !preflight.NeedsCheck(cfg.DataDir, fp) {
		return nil
	}

	checker := preflight.New(cfg, preflight.WithOutput(w))
	results := checker.RunAll(ctx)
	if checker.HasCriticalFailures(results) {
		checker.PrintResults(results)
		return fmt.Errorf("%w (run 'chatmydocs doctor' for details)", errChecksFailed)
	}

	if err := preflight.MarkPassed(cfg.DataDir, fp); err != nil {
		slog.Warn("failed to record preflight result", slog.String("error", err.Error()))
	}
	return nil
}
