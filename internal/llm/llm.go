// Package llm talks to text-generation providers. The answering engine
// hands it a fully assembled conversation and gets one reply back.
package llm

import (
	"context"
	"strings"

	"github.com/Aman-CERP/chatmydocs/internal/config"
	cerrors "github.com/Aman-CERP/chatmydocs/internal/errors"
)

// Role of a message in a chat request.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of a chat request.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Generator produces a single completion for a conversation.
type Generator interface {
	// Generate returns the assistant reply to messages.
	Generate(ctx context.Context, messages []Message) (string, error)

	// ModelName identifies the provider and model, e.g. "ollama/llama3.1".
	ModelName() string

	// Close releases pooled connections.
	Close() error
}

// NewGenerator builds the configured generator.
func NewGenerator(cfg config.GenerationConfig) (Generator, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", "ollama":
		return NewOllama(OllamaConfig{
			Host:        cfg.Host,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			Timeout:     cfg.Timeout,
		}), nil
	case "openai":
		return NewOpenAI(OpenAIConfig{
			APIKey:      cfg.APIKey,
			BaseURL:     cfg.BaseURL,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			Timeout:     cfg.Timeout,
		})
	default:
		return nil, cerrors.ConfigError("unknown generation provider: "+cfg.Provider, nil).
			WithSuggestion("Use one of: ollama, openai")
	}
}
