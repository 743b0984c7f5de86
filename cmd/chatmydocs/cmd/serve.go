package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/chatmydocs/internal/app"
	"github.com/Aman-CERP/chatmydocs/internal/mcp"
)

func newServeCmd() *cobra.Command {
	var (
		transport  string
		addr       string
		skipChecks bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server",
		Long: `Start the Model Context Protocol server so AI assistants can list,
build, query and delete the owner's knowledge bases.

With the stdio transport, stdout carries protocol messages only; logs go
to the log file.

Tools: list_knowledge_bases, ask_question, ingest_documents,
delete_knowledge_base.`,
		Example: `  chatmydocs serve --owner ada
  chatmydocs serve --transport http --addr :8765`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), cmd, transport, addr, skipChecks)
		},
	}

	cmd.Flags().StringVar(&transport, "transport", "stdio", "Transport: stdio or http")
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8765", "Listen address for the http transport")
	cmd.Flags().BoolVar(&skipChecks, "skip-checks", false, "Start without the first-run system checks")

	return cmd
}

func runServe(ctx context.Context, cmd *cobra.Command, transport, addr string, skipChecks bool) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	owner, err := resolveOwner()
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if !skipChecks {
		if err := ensurePreflight(ctx, cfg, cmd.ErrOrStderr()); err != nil {
			return err
		}
	}

	a, err := app.New(ctx, cfg, slog.Default(), appOptions...)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	srv, err := mcp.NewServer(a, owner, slog.Default())
	if err != nil {
		return err
	}

	slog.Info("starting MCP server",
		slog.String("transport", transport),
		slog.String("owner", owner))

	if err := srv.Serve(ctx, transport, addr); err != nil && ctx.Err() == nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}
