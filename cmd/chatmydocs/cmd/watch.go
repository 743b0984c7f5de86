package cmd

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/chatmydocs/internal/app"
	"github.com/Aman-CERP/chatmydocs/internal/config"
	"github.com/Aman-CERP/chatmydocs/internal/extract"
	"github.com/Aman-CERP/chatmydocs/internal/watcher"
)

type watchOptions struct {
	kbName   string
	poll     bool
	initial  bool
	debounce time.Duration
}

func newWatchCmd() *cobra.Command {
	var opts watchOptions

	cmd := &cobra.Command{
		Use:   "watch --kb NAME DIR",
		Short: "Add new documents from a folder as they appear",
		Long: `Watch a folder and add every new document to an existing knowledge base.

Files are added once, when they appear. Changing or deleting a file that
is already indexed does not touch the knowledge base; rebuild it with
'chatmydocs ingest' to pick up those changes.

Unreadable files are reported and skipped. Use --poll on network mounts
and container volumes where change notifications do not arrive.`,
		Example: `  # Add anything dropped into ~/inbox to "Handbook"
  chatmydocs watch --kb Handbook ~/inbox

  # Also add files already in the folder that the knowledge base lacks
  chatmydocs watch --kb Handbook --initial ~/inbox`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer cancel()
			return runWatch(ctx, cmd.OutOrStdout(), opts, args[0])
		},
	}

	cmd.Flags().StringVar(&opts.kbName, "kb", "", "Knowledge base name (required)")
	cmd.Flags().BoolVar(&opts.poll, "poll", false, "Scan the folder instead of using change notifications")
	cmd.Flags().BoolVar(&opts.initial, "initial", false, "First add documents already in the folder")
	cmd.Flags().DurationVar(&opts.debounce, "debounce", time.Second, "Quiet period before a new file is added")
	_ = cmd.MarkFlagRequired("kb")

	return cmd
}

// folderSync adds watched files to one knowledge base.
type folderSync struct {
	app   *app.App
	owner string
	name  string
	out   io.Writer

	// indexed holds the source names already in the knowledge base.
	indexed map[string]bool
}

func runWatch(ctx context.Context, out io.Writer, opts watchOptions, dir string) error {
	owner, err := resolveOwner()
	if err != nil {
		return err
	}

	a, err := openApp(ctx, func(cfg *config.Config) {
		cfg.Ingestion.Policy = config.PolicySkip
	})
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	kbase, err := a.LoadKnowledgeBase(ctx, owner, opts.kbName)
	if err != nil {
		return err
	}
	syncer := &folderSync{app: a, owner: owner, name: kbase.Name, out: out, indexed: make(map[string]bool)}
	for _, src := range kbase.SourceDocuments {
		syncer.indexed[src] = true
	}

	supported := extract.New(extract.Options{}).Supported
	w := watcher.New(watcher.Options{
		Debounce:     opts.debounce,
		ForcePolling: opts.poll,
		Filter:       supported,
		Logger:       slog.Default(),
	})

	if opts.initial {
		syncer.add(ctx, existingFiles(dir, supported))
	}

	errc := make(chan error, 1)
	go func() { errc <- w.Run(ctx, dir) }()

	mode := "notifications"
	if w.Polling() {
		mode = "polling"
	}
	_, _ = fmt.Fprintf(out, "Watching %s for %s (%s). Press Ctrl+C to stop.\n", dir, kbase.Name, mode)

	for {
		select {
		case batch, ok := <-w.Batches():
			if !ok {
				return <-errc
			}
			syncer.handle(ctx, batch)
		case err := <-w.Errors():
			slog.Warn("watch error", slog.String("error", err.Error()))
		}
	}
}

func (s *folderSync) handle(ctx context.Context, batch []watcher.Event) {
	var created []string
	for _, ev := range batch {
		name := filepath.Base(ev.Path)
		switch ev.Op {
		case watcher.OpCreate:
			created = append(created, ev.Path)
		case watcher.OpModify:
			if s.indexed[name] {
				_, _ = fmt.Fprintf(s.out, "%s changed; run 'chatmydocs ingest' to rebuild with the new content.\n", name)
			} else {
				created = append(created, ev.Path)
			}
		case watcher.OpDelete:
			if s.indexed[name] {
				_, _ = fmt.Fprintf(s.out, "%s was removed from the folder; it stays in %s until it is rebuilt.\n", name, s.name)
			}
		}
	}
	s.add(ctx, created)
}

// add indexes paths whose names are not in the knowledge base yet.
func (s *folderSync) add(ctx context.Context, paths []string) {
	files := make([]extract.File, 0, len(paths))
	for _, p := range paths {
		name := filepath.Base(p)
		if s.indexed[name] {
			continue
		}
		files = append(files, extract.File{Name: name, Path: p})
	}
	if len(files) == 0 {
		return
	}

	res, err := s.app.AddDocuments(ctx, s.owner, s.name, files)
	if err != nil {
		_, _ = fmt.Fprintf(s.out, "Failed to add %d file(s): %v\n", len(files), err)
		return
	}

	skipped := make(map[string]bool, len(res.Warnings))
	for _, w := range res.Warnings {
		skipped[w.File] = true
		_, _ = fmt.Fprintf(s.out, "Skipped %s\n", w.String())
	}
	var added []string
	for _, f := range files {
		if !skipped[f.Name] {
			added = append(added, f.Name)
			s.indexed[f.Name] = true
		}
	}
	if len(added) > 0 {
		_, _ = fmt.Fprintf(s.out, "Added %d document(s) to %s: %s (%d chunks)\n",
			len(added), s.name, strings.Join(added, ", "), res.Chunks)
	}
}

// existingFiles lists supported files below dir, skipping hidden folders.
func existingFiles(dir string, supported func(string) bool) []string {
	var paths []string
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if path != dir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasPrefix(d.Name(), ".") && supported(d.Name()) {
			paths = append(paths, path)
		}
		return nil
	})
	return paths
}
