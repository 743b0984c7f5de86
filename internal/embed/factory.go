package embed

import (
	"context"
	"log/slog"
	"strings"

	"github.com/Aman-CERP/chatmydocs/internal/config"
	cerrors "github.com/Aman-CERP/chatmydocs/internal/errors"
)

// ProviderType names an embedding provider.
type ProviderType string

const (
	// ProviderOllama uses a local or remote Ollama server.
	ProviderOllama ProviderType = "ollama"

	// ProviderOpenAI uses the OpenAI embeddings API or a compatible endpoint.
	ProviderOpenAI ProviderType = "openai"

	// ProviderStatic uses hash-based vectors with no external service.
	ProviderStatic ProviderType = "static"
)

// ParseProvider maps a config string to a ProviderType.
func ParseProvider(s string) (ProviderType, error) {
	switch p := ProviderType(strings.ToLower(strings.TrimSpace(s))); p {
	case ProviderOllama, ProviderOpenAI, ProviderStatic:
		return p, nil
	case "":
		return ProviderOllama, nil
	default:
		return "", cerrors.ConfigError("unknown embedding provider: "+s, nil).
			WithSuggestion("Use one of: ollama, openai, static")
	}
}

// New builds the configured embedder and wraps it with a query cache unless
// CacheSize is zero. There is no silent fallback: a configured provider that
// cannot start is an error, since vectors from two models must never mix.
func New(ctx context.Context, cfg config.EmbeddingsConfig) (Embedder, error) {
	provider, err := ParseProvider(cfg.Provider)
	if err != nil {
		return nil, err
	}

	var e Embedder
	switch provider {
	case ProviderOllama:
		e, err = NewOllamaEmbedder(ctx, OllamaConfig{
			Host:      cfg.Host,
			Model:     cfg.Model,
			BatchSize: cfg.BatchSize,
		})
	case ProviderOpenAI:
		e, err = NewOpenAIEmbedder(OpenAIConfig{
			APIKey:    cfg.APIKey,
			BaseURL:   cfg.BaseURL,
			Model:     cfg.Model,
			BatchSize: cfg.BatchSize,
		})
	case ProviderStatic:
		e = NewStaticEmbedder()
	}
	if err != nil {
		return nil, err
	}

	slog.Debug("embedder ready",
		slog.String("provider", string(provider)),
		slog.String("model", e.ModelName()),
		slog.Int("dimensions", e.Dimensions()))

	if cfg.CacheSize <= 0 {
		return e, nil
	}
	return NewCachedEmbedder(e, cfg.CacheSize), nil
}
