// Package cmd provides the CLI commands for chatmydocs.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	cerrors "github.com/Aman-CERP/chatmydocs/internal/errors"
	"github.com/Aman-CERP/chatmydocs/internal/logging"
	"github.com/Aman-CERP/chatmydocs/internal/profiling"
	"github.com/Aman-CERP/chatmydocs/pkg/version"
)

// defaultOwner is used when neither --owner nor CHATMYDOCS_OWNER is set.
const defaultOwner = "local"

// Global flags
var (
	debugMode      bool
	ownerFlag      string
	noColorFlag    bool
	loggingCleanup func()
)

// Profiling flags
var (
	profileOpts profiling.Options
	profile     *profiling.Session
)

// NewRootCmd creates the root command for the chatmydocs CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chatmydocs",
		Short: "Chat with your documents",
		Long: `chatmydocs turns a set of documents into a knowledge base and answers
questions grounded in them.

Documents are extracted, split into overlapping chunks, embedded and
indexed. Questions are answered from the most relevant chunks only; when
the documents do not contain the answer, chatmydocs says so.

Knowledge bases belong to an owner (--owner, or CHATMYDOCS_OWNER).`,
		Version:       version.Version,
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	cmd.SetVersionTemplate("chatmydocs version {{.Version}}\n")

	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging (also mirrored to stderr)")
	cmd.PersistentFlags().StringVar(&ownerFlag, "owner", "", "Owner of the knowledge bases (default $CHATMYDOCS_OWNER or \"local\")")
	cmd.PersistentFlags().BoolVar(&noColorFlag, "no-color", false, "Disable colored output")

	cmd.PersistentFlags().StringVar(&profileOpts.CPU, "profile-cpu", "", "Write CPU profile to file")
	cmd.PersistentFlags().StringVar(&profileOpts.Heap, "profile-mem", "", "Write memory profile to file")
	cmd.PersistentFlags().StringVar(&profileOpts.Trace, "profile-trace", "", "Write execution trace to file")

	cmd.PersistentPreRunE = startProfilingAndLogging
	cmd.PersistentPostRunE = stopProfilingAndLogging

	// Knowledge bases
	cmd.AddCommand(newIngestCmd())
	cmd.AddCommand(newAddCmd())
	cmd.AddCommand(newWatchCmd())
	cmd.AddCommand(newAskCmd())
	cmd.AddCommand(newListCmd())
	cmd.AddCommand(newDeleteCmd())

	// Interactive wizard and its saved sessions
	cmd.AddCommand(newChatCmd())
	cmd.AddCommand(newSessionsCmd())

	// Accounts
	cmd.AddCommand(newRegisterCmd())
	cmd.AddCommand(newLoginCmd())

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newStatsCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newDoctorCmd())
	cmd.AddCommand(newLogsCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// startProfilingAndLogging starts any requested profiles, then sends
// structured logs to the log file. With --debug the level drops to debug and
// lines are mirrored to stderr.
func startProfilingAndLogging(_ *cobra.Command, _ []string) error {
	if profileOpts.Enabled() {
		s, err := profiling.Start(profileOpts)
		if err != nil {
			return err
		}
		profile = s
	}

	cfg := logging.DefaultConfig()
	if lvl := os.Getenv("CHATMYDOCS_LOG_LEVEL"); lvl != "" {
		cfg.Level = lvl
	}
	if debugMode {
		cfg.Level = "debug"
		cfg.WriteToStderr = true
	}

	logger, cleanup, err := logging.Setup(cfg)
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	loggingCleanup = cleanup
	slog.SetDefault(logger)
	slog.Debug("debug logging enabled",
		slog.String("log_file", cfg.FilePath),
		slog.String("version", version.Version))
	return nil
}

func stopProfilingAndLogging(_ *cobra.Command, _ []string) error {
	err := profile.Stop()
	profile = nil
	if err != nil {
		slog.Error("failed to write profiles", slog.String("error", err.Error()))
	}

	if loggingCleanup != nil {
		loggingCleanup()
		loggingCleanup = nil
	}
	return err
}

// Execute runs the root command and prints any error for the terminal.
func Execute() error {
	err := NewRootCmd().Execute()
	if err != nil {
		_, _ = fmt.Fprint(os.Stderr, formatError(err))
	}
	return err
}

func formatError(err error) string {
	if debugMode {
		return cerrors.FormatForUser(err, true) + "\n"
	}
	return cerrors.FormatForCLI(err)
}
