package watcher

import (
	"context"
	"io/fs"
	"path/filepath"
	"time"
)

type snapshot struct {
	modTime time.Time
	size    int64
}

func (w *Watcher) runPolling(ctx context.Context, root string) error {
	state := w.scan(root)

	ticker := time.NewTicker(w.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			next := w.scan(root)
			for path, snap := range next {
				prev, ok := state[path]
				switch {
				case !ok:
					w.queue(path, OpCreate)
				case !snap.modTime.Equal(prev.modTime) || snap.size != prev.size:
					w.queue(path, OpModify)
				}
			}
			for path := range state {
				if _, ok := next[path]; !ok {
					w.queue(path, OpDelete)
				}
			}
			state = next
		}
	}
}

// scan records every visible file below root.
func (w *Watcher) scan(root string) map[string]snapshot {
	files := make(map[string]snapshot)
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if path != root && hidden(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		files[path] = snapshot{modTime: info.ModTime(), size: info.Size()}
		return nil
	})
	return files
}
