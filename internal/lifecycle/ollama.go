// Package lifecycle manages the local Ollama models that the embedding and
// generation providers depend on: reachability, installed models and pulls.
package lifecycle

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	// DefaultHost is the Ollama API endpoint used when none is configured.
	DefaultHost = "http://localhost:11434"

	// ReadyPollInterval is the first WaitForReady poll delay.
	ReadyPollInterval = 100 * time.Millisecond

	// MaxReadyPollInterval caps the WaitForReady backoff.
	MaxReadyPollInterval = 2 * time.Second
)

// ErrNotRunning is returned when the Ollama API does not answer.
var ErrNotRunning = errors.New("ollama is not running")

// ModelNotFoundError reports a model that is not installed locally.
type ModelNotFoundError struct {
	Model string
}

func (e *ModelNotFoundError) Error() string {
	return fmt.Sprintf("model %s is not installed (run: chatmydocs doctor --pull)", e.Model)
}

// PullProgress is one status line of a streaming model pull.
type PullProgress struct {
	Status    string
	Digest    string
	Total     int64
	Completed int64
	Percent   float64
}

// ModelManager talks to one Ollama host.
type ModelManager struct {
	host   string
	client *http.Client

	// pullClient has no timeout; pulls stream for minutes.
	pullClient *http.Client
}

// NewModelManager creates a manager for host, falling back to DefaultHost.
func NewModelManager(host string) *ModelManager {
	if host == "" {
		host = DefaultHost
	}
	return &ModelManager{
		host:       strings.TrimRight(host, "/"),
		client:     &http.Client{Timeout: 5 * time.Second},
		pullClient: &http.Client{},
	}
}

// Host returns the configured Ollama host.
func (m *ModelManager) Host() string {
	return m.host
}

// IsRemoteHost reports whether the host is not the local machine.
func (m *ModelManager) IsRemoteHost() bool {
	return !strings.Contains(m.host, "localhost") && !strings.Contains(m.host, "127.0.0.1")
}

// IsRunning reports whether the Ollama API answers. A refused connection is
// not an error.
func (m *ModelManager) IsRunning(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.host+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// WaitForReady polls with exponential backoff until the API answers.
func (m *ModelManager) WaitForReady(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	interval := ReadyPollInterval
	for {
		if m.IsRunning(ctx) {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for ollama at %s: %w", m.host, ctx.Err())
		case <-time.After(interval):
		}
		interval = min(interval*2, MaxReadyPollInterval)
	}
}

// ListModels returns the names of the installed models.
func (m *ModelManager) ListModels(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.host+"/api/tags", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotRunning, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}

	var tags struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return nil, fmt.Errorf("failed to decode model list: %w", err)
	}

	names := make([]string, len(tags.Models))
	for i, model := range tags.Models {
		names[i] = model.Name
	}
	return names, nil
}

// HasModel reports whether model is installed. A bare name matches any tag
// ("nomic-embed-text" matches "nomic-embed-text:latest"); a tagged name must
// match exactly.
func (m *ModelManager) HasModel(ctx context.Context, model string) (bool, error) {
	names, err := m.ListModels(ctx)
	if err != nil {
		return false, err
	}
	return matchModel(names, model), nil
}

func matchModel(installed []string, model string) bool {
	want := strings.ToLower(model)
	wantBase, wantTag, tagged := strings.Cut(want, ":")
	for _, name := range installed {
		have := strings.ToLower(name)
		if have == want {
			return true
		}
		haveBase, haveTag, _ := strings.Cut(have, ":")
		if haveBase != wantBase {
			continue
		}
		if !tagged || (wantTag == "latest" && haveTag == "") {
			return true
		}
	}
	return false
}

// PullModel downloads model, reporting each streamed status line to progress.
// It returns immediately when the model is already installed.
func (m *ModelManager) PullModel(ctx context.Context, model string, progress func(PullProgress)) error {
	has, err := m.HasModel(ctx, model)
	if err != nil {
		return err
	}
	if has {
		return nil
	}

	body, err := json.Marshal(map[string]any{"name": model, "stream": true})
	if err != nil {
		return fmt.Errorf("failed to marshal pull request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.host+"/api/pull", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.pullClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to start pull: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("pull failed with status %d: %s", resp.StatusCode, string(respBody))
	}

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var status struct {
			Status    string `json:"status"`
			Digest    string `json:"digest"`
			Total     int64  `json:"total"`
			Completed int64  `json:"completed"`
			Error     string `json:"error"`
		}
		if err := json.Unmarshal(line, &status); err != nil {
			continue
		}
		if status.Error != "" {
			return fmt.Errorf("pull %s: %s", model, status.Error)
		}
		if progress == nil {
			continue
		}
		p := PullProgress{
			Status:    status.Status,
			Digest:    status.Digest,
			Total:     status.Total,
			Completed: status.Completed,
		}
		if p.Total > 0 {
			p.Percent = float64(p.Completed) / float64(p.Total) * 100
		}
		progress(p)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading pull response: %w", err)
	}
	return nil
}

// EnsureModel checks that the API answers and model is installed, pulling it
// when pull is true.
func (m *ModelManager) EnsureModel(ctx context.Context, model string, pull bool, progress func(PullProgress)) error {
	if !m.IsRunning(ctx) {
		return ErrNotRunning
	}
	has, err := m.HasModel(ctx, model)
	if err != nil {
		return err
	}
	if has {
		return nil
	}
	if !pull {
		return &ModelNotFoundError{Model: model}
	}
	return m.PullModel(ctx, model, progress)
}
