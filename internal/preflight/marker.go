package preflight

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Aman-CERP/chatmydocs/internal/config"
)

// MarkerFile records the last passing check inside the data directory.
const MarkerFile = ".preflight-passed"

// Fingerprint identifies the provider and store settings a passing check
// covered. Changing any of them invalidates the marker.
func Fingerprint(cfg *config.Config) string {
	parts := []string{
		cfg.Embeddings.Provider, cfg.Embeddings.Model, cfg.Embeddings.Host,
		cfg.Generation.Provider, cfg.Generation.Model, cfg.Generation.Host,
		cfg.Store.Backend, cfg.Blob.Backend,
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "\x00")))
	return hex.EncodeToString(sum[:8])
}

// NeedsCheck returns true when no marker exists in dataDir or it was written
// for a different fingerprint.
func NeedsCheck(dataDir, fingerprint string) bool {
	_, fp, ok := readMarker(dataDir)
	return !ok || fp != fingerprint
}

// MarkPassed records a passing check for fingerprint.
func MarkPassed(dataDir, fingerprint string) error {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("create marker directory: %w", err)
	}
	content := time.Now().UTC().Format(time.RFC3339) + " " + fingerprint + "\n"
	return os.WriteFile(filepath.Join(dataDir, MarkerFile), []byte(content), 0o644)
}

// ClearMarker removes the marker, forcing a re-check on next run.
func ClearMarker(dataDir string) error {
	err := os.Remove(filepath.Join(dataDir, MarkerFile))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove marker file: %w", err)
	}
	return nil
}

// MarkerAge returns how long ago the check passed, or zero without a marker.
func MarkerAge(dataDir string) time.Duration {
	at, _, ok := readMarker(dataDir)
	if !ok {
		return 0
	}
	return time.Since(at)
}

func readMarker(dataDir string) (time.Time, string, bool) {
	content, err := os.ReadFile(filepath.Join(dataDir, MarkerFile))
	if err != nil {
		return time.Time{}, "", false
	}
	stamp, fp, _ := strings.Cut(strings.TrimSpace(string(content)), " ")
	at, err := time.Parse(time.RFC3339, stamp)
	if err != nil {
		return time.Time{}, "", false
	}
	return at, fp, true
}
