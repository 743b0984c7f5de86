package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/chatmydocs/internal/config"
	"github.com/Aman-CERP/chatmydocs/internal/extract"
	"github.com/Aman-CERP/chatmydocs/internal/kb"
	"github.com/Aman-CERP/chatmydocs/internal/ui"
)

type ingestOptions struct {
	kbName string
	plain  bool
	skip   bool
	append bool
}

func newIngestCmd() *cobra.Command {
	var opts ingestOptions

	cmd := &cobra.Command{
		Use:   "ingest --kb NAME FILE...",
		Short: "Build a knowledge base from documents",
		Long: `Build a new knowledge base from one or more documents.

Supported formats: PDF, DOCX, XLSX, PPTX, TXT, Markdown, CSV, JSON and
images (when an OCR service is configured).

By default an unreadable file aborts the build. With --skip-unreadable the
file is reported and the remaining documents are indexed.`,
		Example: `  # Build the "Handbook" knowledge base
  chatmydocs ingest --kb Handbook handbook.pdf policies.docx

  # Plain progress output, skipping files that cannot be read
  chatmydocs ingest --kb Notes --plain --skip-unreadable notes/*.md`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(cmd.Context(), cmd, opts, args)
		},
	}

	addIngestFlags(cmd, &opts)
	return cmd
}

func newAddCmd() *cobra.Command {
	var opts ingestOptions

	cmd := &cobra.Command{
		Use:   "add --kb NAME FILE...",
		Short: "Add documents to an existing knowledge base",
		Long: `Add documents to an existing knowledge base. The new documents are
embedded with the same model the knowledge base was built with.`,
		Example: `  chatmydocs add --kb Handbook appendix.pdf`,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.append = true
			return runIngest(cmd.Context(), cmd, opts, args)
		},
	}

	addIngestFlags(cmd, &opts)
	return cmd
}

func addIngestFlags(cmd *cobra.Command, opts *ingestOptions) {
	cmd.Flags().StringVar(&opts.kbName, "kb", "", "Knowledge base name (required)")
	cmd.Flags().BoolVar(&opts.plain, "plain", false, "Plain progress output (no TUI)")
	cmd.Flags().BoolVar(&opts.skip, "skip-unreadable", false, "Skip files that cannot be read instead of aborting")
	_ = cmd.MarkFlagRequired("kb")
}

func runIngest(ctx context.Context, cmd *cobra.Command, opts ingestOptions, paths []string) error {
	if ctx == nil {
		ctx = context.Background()
	}

	owner, err := resolveOwner()
	if err != nil {
		return err
	}
	files, err := filesFromPaths(paths)
	if err != nil {
		return err
	}

	a, err := openApp(ctx, func(cfg *config.Config) {
		if opts.skip {
			cfg.Ingestion.Policy = config.PolicySkip
		}
	})
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	renderer := ui.NewRenderer(ui.NewConfig(cmd.OutOrStdout(),
		ui.WithForcePlain(opts.plain),
		ui.WithNoColor(noColorFlag || ui.DetectNoColor()),
		ui.WithKnowledgeBase(opts.kbName),
	))
	if err := renderer.Start(ctx); err != nil {
		return err
	}
	tracker := ui.NewProgressTracker()
	ctx = kb.WithProgress(ctx, ui.Observe(renderer, tracker))

	start := time.Now()
	var res *kb.CreateResult
	if opts.append {
		res, err = a.AddDocuments(ctx, owner, opts.kbName, files)
	} else {
		res, err = a.Ingest(ctx, owner, opts.kbName, files)
	}
	if err != nil {
		_ = renderer.Stop()
		return err
	}

	for _, w := range res.Warnings {
		renderer.AddError(ui.ErrorEvent{File: w.File, Err: w.Err, IsWarn: true})
	}
	renderer.Complete(completionStats(res, tracker, time.Since(start)))
	if err := renderer.Stop(); err != nil {
		return err
	}

	// The TUI panel only shows a count.
	if _, plain := renderer.(*ui.PlainRenderer); !plain {
		printWarnings(cmd, res.Warnings)
	}
	return nil
}

func completionStats(res *kb.CreateResult, tracker *ui.ProgressTracker, elapsed time.Duration) ui.CompletionStats {
	return ui.CompletionStats{
		KnowledgeBase: res.KB.Name,
		Documents:     len(res.KB.SourceDocuments),
		Chunks:        res.Chunks,
		Duration:      elapsed,
		Warnings:      len(res.Warnings),
		Stages:        tracker.Timings(),
		Embedder: ui.EmbedderInfo{
			Model:      res.KB.EmbeddingModel,
			Dimensions: res.KB.Dimension,
		},
	}
}

func printWarnings(cmd *cobra.Command, warnings []extract.Warning) {
	if len(warnings) == 0 {
		return
	}
	_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Skipped %d file(s):\n", len(warnings))
	for _, w := range warnings {
		_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "  %s\n", w.String())
	}
}
