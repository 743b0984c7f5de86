package cmd

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"regexp"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/chatmydocs/internal/logging"
)

type logsOptions struct {
	lines   int
	level   string
	filter  string
	logFile string
}

func newLogsCmd() *cobra.Command {
	var opts logsOptions

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show recent log entries",
		Long: `Show the last entries of the chatmydocs log
(~/.chatmydocs/logs/chatmydocs.log by default).`,
		Example: `  chatmydocs logs
  chatmydocs logs -n 200 --level warn
  chatmydocs logs --filter "kb=Handbook"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runLogs(cmd.OutOrStdout(), opts)
		},
	}

	cmd.Flags().IntVarP(&opts.lines, "lines", "n", 50, "Number of lines to show")
	cmd.Flags().StringVar(&opts.level, "level", "", "Minimum log level (debug|info|warn|error)")
	cmd.Flags().StringVar(&opts.filter, "filter", "", "Only show lines matching this pattern (regex)")
	cmd.Flags().StringVar(&opts.logFile, "file", "", "Path to log file")

	return cmd
}

func runLogs(out io.Writer, opts logsOptions) error {
	path, err := logging.FindLogFile(opts.logFile)
	if err != nil {
		return err
	}

	var pattern *regexp.Regexp
	if opts.filter != "" {
		if pattern, err = regexp.Compile(opts.filter); err != nil {
			return fmt.Errorf("invalid filter pattern: %w", err)
		}
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer func() { _ = f.Close() }()

	var minLevel *slog.Level
	if opts.level != "" {
		lvl := logging.ParseLevel(opts.level)
		minLevel = &lvl
	}

	// Keep the last n matching lines.
	tail := make([]string, 0, max(opts.lines, 0))
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if minLevel != nil && lineLevel(line) < *minLevel {
			continue
		}
		if pattern != nil && !pattern.MatchString(line) {
			continue
		}
		if opts.lines > 0 && len(tail) == opts.lines {
			tail = tail[1:]
		}
		tail = append(tail, line)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read log file: %w", err)
	}

	for _, line := range tail {
		_, _ = fmt.Fprintln(out, line)
	}
	return nil
}

// lineLevel returns the level of a JSON log line, info when absent.
func lineLevel(line string) slog.Level {
	var entry struct {
		Level string `json:"level"`
	}
	if err := json.Unmarshal([]byte(line), &entry); err != nil || entry.Level == "" {
		return logging.ParseLevel("info")
	}
	return logging.ParseLevel(strings.ToLower(entry.Level))
}
