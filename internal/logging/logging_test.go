package logging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultLogPath(t *testing.T) {
	path := DefaultLogPath()

	if filepath.Base(path) != "chatmydocs.log" {
		t.Errorf("DefaultLogPath should end with chatmydocs.log, got: %s", path)
	}
	if !strings.Contains(path, ".chatmydocs") {
		t.Errorf("DefaultLogPath should live under .chatmydocs, got: %s", path)
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]string{
		"debug":   "DEBUG",
		"INFO":    "INFO",
		"warning": "WARN",
		"error":   "ERROR",
		"bogus":   "INFO",
	}
	for in, want := range tests {
		if got := ParseLevel(in).String(); got != want {
			t.Errorf("ParseLevel(%q) = %s, want %s", in, got, want)
		}
	}
}

func TestSetup_WritesJSONToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "test.log")

	logger, cleanup, err := Setup(Config{Level: "debug", FilePath: path, MaxSizeMB: 1, MaxFiles: 2})
	if err != nil {
		t.Fatalf("Setup failed: %v", err)
	}
	logger.Debug("chunked document", "file", "notes.txt", "chunks", 3)
	cleanup()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(string(data))), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v (%s)", err, data)
	}
	if entry["msg"] != "chunked document" || entry["file"] != "notes.txt" {
		t.Errorf("unexpected entry: %v", entry)
	}
}

func TestSetup_LevelFiltersDebug(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.log")

	logger, cleanup, err := Setup(Config{Level: "warn", FilePath: path})
	if err != nil {
		t.Fatalf("Setup failed: %v", err)
	}
	logger.Info("hidden")
	logger.Warn("shown")
	cleanup()

	data, _ := os.ReadFile(path)
	if strings.Contains(string(data), "hidden") {
		t.Error("info line should be filtered at warn level")
	}
	if !strings.Contains(string(data), "shown") {
		t.Error("warn line missing")
	}
}

func TestRotatingWriter_RotatesAndCapsFiles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rot.log")
	w, err := NewRotatingWriter(path, 1, 2)
	if err != nil {
		t.Fatalf("NewRotatingWriter: %v", err)
	}
	defer w.Close()

	// Each write is just over half the limit so every second write rotates.
	line := []byte(strings.Repeat("x", 600*1024) + "\n")
	for i := 0; i < 6; i++ {
		if _, err := w.Write(line); err != nil {
			t.Fatalf("write %d: %v", i, err)
		}
	}

	for _, p := range []string{path, path + ".1", path + ".2"} {
		if _, err := os.Stat(p); err != nil {
			t.Errorf("expected %s to exist: %v", p, err)
		}
	}
	if _, err := os.Stat(path + ".3"); !os.IsNotExist(err) {
		t.Errorf("expected %s.3 to be pruned", path)
	}
}

func TestRotatingWriter_WriteAfterClose(t *testing.T) {
	w, err := NewRotatingWriter(filepath.Join(t.TempDir(), "c.log"), 1, 1)
	if err != nil {
		t.Fatal(err)
	}
	_ = w.Close()

	if _, err := w.Write([]byte("x")); err == nil {
		t.Error("expected error writing to a closed writer")
	}
}

func TestFindLogFile_Explicit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.log")
	if err := os.WriteFile(path, []byte("{}"), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := FindLogFile(path)
	if err != nil || got != path {
		t.Errorf("FindLogFile(%q) = %q, %v", path, got, err)
	}
	if _, err := FindLogFile(path + ".missing"); err == nil {
		t.Error("expected error for missing explicit file")
	}
}
