// Package blob stores raw uploads, manifests and chat history under
// slash-separated keys such as "alice/geo/kb.json".
package blob

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Aman-CERP/chatmydocs/internal/config"
	cerrors "github.com/Aman-CERP/chatmydocs/internal/errors"
)

// ErrNotFound is returned by Get for a missing key.
var ErrNotFound = errors.New("blob not found")

// Store is a flat key/value object store.
type Store interface {
	Put(ctx context.Context, key string, data []byte) error

	// Get returns ErrNotFound when key does not exist.
	Get(ctx context.Context, key string) ([]byte, error)

	// List returns every key beginning with prefix, sorted.
	List(ctx context.Context, prefix string) ([]string, error)

	// Delete removes every key beginning with prefix. Deleting nothing succeeds.
	Delete(ctx context.Context, prefix string) error
}

// Open builds the store selected by cfg.Backend.
func Open(ctx context.Context, cfg config.BlobConfig) (Store, error) {
	switch strings.ToLower(cfg.Backend) {
	case "", "fs":
		return NewFS(cfg.Root)
	case "s3":
		return NewS3(ctx, S3Config{
			Bucket:   cfg.Bucket,
			Region:   cfg.Region,
			Endpoint: cfg.Endpoint,
		})
	default:
		return nil, cerrors.ConfigError("unknown blob backend: "+cfg.Backend, nil).
			WithSuggestion("Use one of: fs, s3")
	}
}

// validKey rejects keys that could escape the store root.
func validKey(key string) error {
	if key == "" || strings.HasPrefix(key, "/") {
		return fmt.Errorf("invalid blob key %q", key)
	}
	for _, part := range strings.Split(key, "/") {
		if part == "" || part == "." || part == ".." {
			return fmt.Errorf("invalid blob key %q", key)
		}
	}
	return nil
}
