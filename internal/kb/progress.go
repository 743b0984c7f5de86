package kb

import "context"

// Stage names an ingestion step reported to a progress observer.
type Stage string

const (
	StageExtracting Stage = "extracting"
	StageChunking   Stage = "chunking"
	StageEmbedding  Stage = "embedding"
	StageIndexing   Stage = "indexing"
)

// ProgressEvent reports Current of Total units done in Stage. File is set
// while extracting.
type ProgressEvent struct {
	Stage   Stage
	Current int
	Total   int
	File    string
}

// ProgressFunc observes ingestion. It is called from the ingesting goroutine.
type ProgressFunc func(ProgressEvent)

type progressKey struct{}

// WithProgress returns a context whose ingestion calls report to fn.
func WithProgress(ctx context.Context, fn ProgressFunc) context.Context {
	return context.WithValue(ctx, progressKey{}, fn)
}

func report(ctx context.Context, ev ProgressEvent) {
	if fn, ok := ctx.Value(progressKey{}).(ProgressFunc); ok && fn != nil {
		fn(ev)
	}
}
