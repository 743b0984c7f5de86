package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/Aman-CERP/chatmydocs/internal/app"
	"github.com/Aman-CERP/chatmydocs/internal/config"
	"github.com/Aman-CERP/chatmydocs/internal/extract"
	"github.com/Aman-CERP/chatmydocs/internal/kb"
)

// appOptions are passed to every app.New call. Tests use it to inject
// deterministic providers.
var appOptions []app.Option

// loadConfig loads the configuration for the working directory.
func loadConfig() (*config.Config, error) {
	dir, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get working directory: %w", err)
	}
	return config.Load(dir)
}

// openApp loads the configuration, applies overrides and builds the core API.
// The caller must Close the returned App.
func openApp(ctx context.Context, overrides ...func(*config.Config)) (*app.App, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	for _, o := range overrides {
		o(cfg)
	}
	return app.New(ctx, cfg, slog.Default(), appOptions...)
}

// resolveOwner returns the owner named by --owner, CHATMYDOCS_OWNER or the
// default, validated against the owner rules.
func resolveOwner() (string, error) {
	owner := ownerFlag
	if owner == "" {
		owner = os.Getenv("CHATMYDOCS_OWNER")
	}
	if owner == "" {
		owner = defaultOwner
	}
	if err := kb.ValidateOwner(owner); err != nil {
		return "", err
	}
	return owner, nil
}

// filesFromPaths turns command-line paths into extractor inputs. Content is
// read lazily by the extractor.
func filesFromPaths(paths []string) ([]extract.File, error) {
	files := make([]extract.File, 0, len(paths))
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("cannot read %s: %w", p, err)
		}
		if info.IsDir() {
			return nil, fmt.Errorf("%s is a directory, pass files instead", p)
		}
		files = append(files, extract.File{Name: filepath.Base(p), Path: p})
	}
	return files, nil
}

// parseDuration parses a duration string like "30d", "7d", "24h".
func parseDuration(s string) (time.Duration, error) {
	if len(s) > 1 && s[len(s)-1] == 'd' {
		days := 0
		if _, err := fmt.Sscanf(s, "%dd", &days); err != nil {
			return 0, err
		}
		return time.Duration(days) * 24 * time.Hour, nil
	}
	return time.ParseDuration(s)
}

// formatTimeAgo formats a time as a relative string.
func formatTimeAgo(t time.Time) string {
	if t.IsZero() {
		return "never"
	}

	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%d min ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%d hours ago", int(d.Hours()))
	case d < 7*24*time.Hour:
		return fmt.Sprintf("%d days ago", int(d.Hours()/24))
	default:
		return t.Format("Jan 2, 2006")
	}
}
