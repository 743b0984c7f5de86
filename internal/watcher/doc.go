// Package watcher reports document files appearing, changing and
// disappearing in a folder.
//
// fsnotify is used where the platform supports it; otherwise, or when asked,
// the folder is polled. Events for the same file within the debounce window
// are coalesced, so an editor's create-write-write sequence arrives as one
// create in a single batch:
//
//	w := watcher.New(watcher.Options{Filter: extractor.Supported})
//	go func() { _ = w.Run(ctx, "/path/to/docs") }()
//	for batch := range w.Batches() {
//	    // add the created files
//	}
package watcher
