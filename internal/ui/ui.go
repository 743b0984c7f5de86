// Package ui provides terminal UI components for ingestion progress, chat
// output and answer statistics.
package ui

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/mattn/go-isatty"

	"github.com/Aman-CERP/chatmydocs/internal/kb"
)

// Stage represents an ingestion stage.
type Stage int

const (
	// StageExtracting reads text out of the uploaded files.
	StageExtracting Stage = iota
	// StageChunking splits documents into overlapping chunks.
	StageChunking
	// StageEmbedding sends chunks to the embedding provider.
	StageEmbedding
	// StageIndexing writes the vector index.
	StageIndexing
	// StageComplete indicates ingestion is complete.
	StageComplete
)

// String returns the human-readable stage name.
func (s Stage) String() string {
	switch s {
	case StageExtracting:
		return "Extracting"
	case StageChunking:
		return "Chunking"
	case StageEmbedding:
		return "Embedding"
	case StageIndexing:
		return "Indexing"
	case StageComplete:
		return "Complete"
	default:
		return "Unknown"
	}
}

// Icon returns the short stage icon for plain text output.
func (s Stage) Icon() string {
	switch s {
	case StageExtracting:
		return "READ"
	case StageChunking:
		return "CHUNK"
	case StageEmbedding:
		return "EMBED"
	case StageIndexing:
		return "INDEX"
	case StageComplete:
		return "DONE"
	default:
		return "???"
	}
}

// unit names what Current counts in a stage.
func (s Stage) unit() string {
	switch s {
	case StageExtracting:
		return "files"
	case StageChunking:
		return "documents"
	default:
		return "chunks"
	}
}

// StageFromKB maps a knowledge-base ingestion stage.
func StageFromKB(s kb.Stage) Stage {
	switch s {
	case kb.StageExtracting:
		return StageExtracting
	case kb.StageChunking:
		return StageChunking
	case kb.StageEmbedding:
		return StageEmbedding
	case kb.StageIndexing:
		return StageIndexing
	default:
		return StageComplete
	}
}

// ProgressEvent represents a progress update.
type ProgressEvent struct {
	Stage       Stage
	Current     int
	Total       int
	CurrentFile string
	Message     string
}

// ErrorEvent represents an error during processing.
type ErrorEvent struct {
	File   string
	Err    error
	IsWarn bool
}

// StageTimings tracks duration for each ingestion stage.
type StageTimings struct {
	Extract time.Duration
	Chunk   time.Duration
	Embed   time.Duration
	Index   time.Duration
}

// EmbedderInfo contains embedding provider details.
type EmbedderInfo struct {
	Model      string
	Dimensions int
}

// CompletionStats contains final ingestion statistics.
type CompletionStats struct {
	KnowledgeBase string
	Documents     int
	Chunks        int
	Duration      time.Duration
	Errors        int
	Warnings      int
	Stages        StageTimings
	Embedder      EmbedderInfo
}

// Renderer defines the interface for progress display.
type Renderer interface {
	// Start initializes the renderer.
	Start(ctx context.Context) error

	// UpdateProgress updates progress display.
	UpdateProgress(event ProgressEvent)

	// AddError adds an error to display.
	AddError(event ErrorEvent)

	// Complete marks rendering as complete with summary.
	Complete(stats CompletionStats)

	// Stop stops the renderer and cleans up.
	Stop() error
}

// Config configures the UI renderer.
type Config struct {
	Output        io.Writer
	ForcePlain    bool
	NoColor       bool
	KnowledgeBase string // shown in the panel header
}

// ConfigOption is a function that modifies Config.
type ConfigOption func(*Config)

// WithForcePlain forces plain text output.
func WithForcePlain(force bool) ConfigOption {
	return func(c *Config) {
		c.ForcePlain = force
	}
}

// WithNoColor disables color output.
func WithNoColor(noColor bool) ConfigOption {
	return func(c *Config) {
		c.NoColor = noColor
	}
}

// WithKnowledgeBase sets the knowledge-base name shown in the header.
func WithKnowledgeBase(name string) ConfigOption {
	return func(c *Config) {
		c.KnowledgeBase = name
	}
}

// NewConfig creates a new Config with the given output and options.
func NewConfig(output io.Writer, opts ...ConfigOption) Config {
	cfg := Config{Output: output}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// NewRenderer creates an appropriate renderer based on config and environment.
// It returns a TUI renderer for interactive terminals, and a plain text
// renderer for CI environments, pipes, or when --plain is specified.
func NewRenderer(cfg Config) Renderer {
	if cfg.ForcePlain || !IsTTY(cfg.Output) || DetectCI() {
		return NewPlainRenderer(cfg)
	}

	tui, err := NewTUIRenderer(cfg)
	if err != nil {
		return NewPlainRenderer(cfg)
	}
	return tui
}

// Observe adapts r to a knowledge-base progress observer. When t is not nil
// it records the same events, so stage timings are available afterwards.
func Observe(r Renderer, t *ProgressTracker) kb.ProgressFunc {
	return func(ev kb.ProgressEvent) {
		event := ProgressEvent{
			Stage:       StageFromKB(ev.Stage),
			Current:     ev.Current,
			Total:       ev.Total,
			CurrentFile: ev.File,
		}
		if t != nil {
			t.Apply(event)
		}
		r.UpdateProgress(event)
	}
}

// IsTTY checks if output is a terminal.
func IsTTY(w io.Writer) bool {
	if w == nil {
		return false
	}

	if f, ok := w.(*os.File); ok {
		return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}

	return false
}

// DetectNoColor checks if NO_COLOR environment variable is set.
func DetectNoColor() bool {
	_, exists := os.LookupEnv("NO_COLOR")
	return exists
}

// DetectCI checks if running in a CI environment.
func DetectCI() bool {
	ciVars := []string{"CI", "GITHUB_ACTIONS", "GITLAB_CI", "JENKINS_URL", "TRAVIS"}
	for _, v := range ciVars {
		if _, exists := os.LookupEnv(v); exists {
			return true
		}
	}
	return false
}
