package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	cerrors "github.com/Aman-CERP/chatmydocs/internal/errors"
)

const defaultOpenAIModel = "gpt-4o-mini"

// OpenAIConfig configures the OpenAI-compatible chat client.
type OpenAIConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float64
	Timeout     time.Duration
}

// OpenAI calls the chat completions endpoint through go-openai.
type OpenAI struct {
	client      *openai.Client
	httpClient  *http.Client
	model       string
	temperature float32
}

var _ Generator = (*OpenAI)(nil)

// NewOpenAI creates a chat client. An API key is required unless BaseURL
// points at a compatible server that ignores it.
func NewOpenAI(cfg OpenAIConfig) (*OpenAI, error) {
	if cfg.APIKey == "" && cfg.BaseURL == "" {
		return nil, cerrors.ConfigError("openai generation needs an API key", nil).
			WithSuggestion("Set OPENAI_API_KEY or generation.api_key")
	}
	if cfg.Model == "" {
		cfg.Model = defaultOpenAIModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}

	hc := &http.Client{Timeout: cfg.Timeout}
	oc := openai.DefaultConfig(cfg.APIKey)
	oc.HTTPClient = hc
	if cfg.BaseURL != "" {
		oc.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}

	return &OpenAI{
		client:      openai.NewClientWithConfig(oc),
		httpClient:  hc,
		model:       cfg.Model,
		temperature: float32(cfg.Temperature),
	}, nil
}

// Generate requests one completion.
func (o *OpenAI) Generate(ctx context.Context, messages []Message) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:       o.model,
		Temperature: o.temperature,
		Messages:    make([]openai.ChatCompletionMessage, 0, len(messages)),
	}
	for _, m := range messages {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{
			Role:    string(m.Role),
			Content: m.Content,
		})
	}

	resp, err := o.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", cerrors.GenerationProviderError(err)
	}
	if len(resp.Choices) == 0 {
		return "", cerrors.GenerationProviderError(fmt.Errorf("no choices in completion response"))
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// ModelName returns "openai/<model>".
func (o *OpenAI) ModelName() string { return "openai/" + o.model }

// Close releases idle connections.
func (o *OpenAI) Close() error {
	o.httpClient.CloseIdleConnections()
	return nil
}
