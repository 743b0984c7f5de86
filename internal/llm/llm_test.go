package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/chatmydocs/internal/config"
	cerrors "github.com/Aman-CERP/chatmydocs/internal/errors"
)

func TestOllama_Generate(t *testing.T) {
	// Given: an Ollama server that echoes the last user message
	var got ollamaChatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/chat", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(ollamaChatResponse{
			Message: Message{Role: RoleAssistant, Content: "  Paris.\n"},
			Done:    true,
		})
	}))
	defer srv.Close()

	g := NewOllama(OllamaConfig{Host: srv.URL + "/", Model: "llama3.1"})
	defer func() { _ = g.Close() }()

	// When: generating
	reply, err := g.Generate(context.Background(), []Message{
		{Role: RoleSystem, Content: "context"},
		{Role: RoleUser, Content: "capital?"},
	})

	// Then: reply is trimmed and the request was non-streaming
	require.NoError(t, err)
	assert.Equal(t, "Paris.", reply)
	assert.False(t, got.Stream)
	assert.Equal(t, "llama3.1", got.Model)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, RoleSystem, got.Messages[0].Role)
	assert.Equal(t, "ollama/llama3.1", g.ModelName())
}

func TestOllama_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := NewOllama(OllamaConfig{Host: srv.URL}).Generate(context.Background(), nil)

	require.Error(t, err)
	assert.Equal(t, cerrors.ErrCodeGenerationProvider, cerrors.GetCode(err))
	assert.Contains(t, err.Error(), "text generation failed")
}

func TestOpenAI_Generate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","model":"gpt-4o-mini",
			"choices":[{"index":0,"message":{"role":"assistant","content":"Paris."},"finish_reason":"stop"}]}`))
	}))
	defer srv.Close()

	g, err := NewOpenAI(OpenAIConfig{APIKey: "sk-test", BaseURL: srv.URL + "/v1"})
	require.NoError(t, err)

	reply, err := g.Generate(context.Background(), []Message{{Role: RoleUser, Content: "capital?"}})

	require.NoError(t, err)
	assert.Equal(t, "Paris.", reply)
	assert.Equal(t, "openai/gpt-4o-mini", g.ModelName())
}

func TestOpenAI_NoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","choices":[]}`))
	}))
	defer srv.Close()

	g, err := NewOpenAI(OpenAIConfig{APIKey: "k", BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = g.Generate(context.Background(), []Message{{Role: RoleUser, Content: "q"}})
	assert.Equal(t, cerrors.ErrCodeGenerationProvider, cerrors.GetCode(err))
}

func TestNewGenerator(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.GenerationConfig
		want    string
		wantErr bool
	}{
		{name: "default is ollama", cfg: config.GenerationConfig{Model: "mistral"}, want: "ollama/mistral"},
		{name: "openai", cfg: config.GenerationConfig{Provider: "OpenAI", APIKey: "k", Model: "gpt-4o"}, want: "openai/gpt-4o"},
		{name: "openai without key", cfg: config.GenerationConfig{Provider: "openai"}, wantErr: true},
		{name: "unknown", cfg: config.GenerationConfig{Provider: "llamacpp"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := NewGenerator(tt.cfg)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, g.ModelName())
		})
	}
}
