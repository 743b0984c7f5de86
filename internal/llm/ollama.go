package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	cerrors "github.com/Aman-CERP/chatmydocs/internal/errors"
)

const (
	defaultOllamaHost  = "http://localhost:11434"
	defaultOllamaModel = "llama3.1"
	defaultTimeout     = 2 * time.Minute
)

// OllamaConfig configures the Ollama chat client.
type OllamaConfig struct {
	Host        string
	Model       string
	Temperature float64
	Timeout     time.Duration
}

// Ollama calls /api/chat with streaming disabled.
type Ollama struct {
	cfg       OllamaConfig
	client    *http.Client
	transport *http.Transport
}

var _ Generator = (*Ollama)(nil)

type ollamaChatRequest struct {
	Model    string         `json:"model"`
	Messages []Message      `json:"messages"`
	Stream   bool           `json:"stream"`
	Options  map[string]any `json:"options,omitempty"`
}

type ollamaChatResponse struct {
	Message Message `json:"message"`
	Done    bool    `json:"done"`
	Error   string  `json:"error,omitempty"`
}

// NewOllama creates a chat client with its own connection pool.
func NewOllama(cfg OllamaConfig) *Ollama {
	if cfg.Host == "" {
		cfg.Host = defaultOllamaHost
	}
	cfg.Host = strings.TrimRight(cfg.Host, "/")
	if cfg.Model == "" {
		cfg.Model = defaultOllamaModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	transport := &http.Transport{
		MaxIdleConns:        2,
		MaxIdleConnsPerHost: 2,
		IdleConnTimeout:     30 * time.Second,
	}
	return &Ollama{
		cfg:       cfg,
		client:    &http.Client{Transport: transport, Timeout: cfg.Timeout},
		transport: transport,
	}
}

// Generate sends the conversation and returns the reply text. There is no
// retry here; a failed answer is surfaced to the user to resend.
func (o *Ollama) Generate(ctx context.Context, messages []Message) (string, error) {
	body, err := json.Marshal(ollamaChatRequest{
		Model:    o.cfg.Model,
		Messages: messages,
		Stream:   false,
		Options:  map[string]any{"temperature": o.cfg.Temperature},
	})
	if err != nil {
		return "", cerrors.GenerationProviderError(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.cfg.Host+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return "", cerrors.GenerationProviderError(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return "", cerrors.GenerationProviderError(fmt.Errorf("calling Ollama: %w", err))
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", cerrors.GenerationProviderError(
			fmt.Errorf("ollama returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))))
	}

	var out ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", cerrors.GenerationProviderError(fmt.Errorf("decoding response: %w", err))
	}
	if out.Error != "" {
		return "", cerrors.GenerationProviderError(fmt.Errorf("ollama: %s", out.Error))
	}
	return strings.TrimSpace(out.Message.Content), nil
}

// ModelName returns "ollama/<model>".
func (o *Ollama) ModelName() string { return "ollama/" + o.cfg.Model }

// Close releases idle connections.
func (o *Ollama) Close() error {
	o.transport.CloseIdleConnections()
	return nil
}
