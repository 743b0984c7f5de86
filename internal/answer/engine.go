// Package answer implements grounded question answering over a knowledge
// base: greeting short-circuit, retrieval, a strict refusal prompt and
// post-hoc source filtering.
package answer

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/Aman-CERP/chatmydocs/internal/embed"
	cerrors "github.com/Aman-CERP/chatmydocs/internal/errors"
	"github.com/Aman-CERP/chatmydocs/internal/kb"
	"github.com/Aman-CERP/chatmydocs/internal/llm"
	"github.com/Aman-CERP/chatmydocs/internal/store"
	"github.com/Aman-CERP/chatmydocs/internal/telemetry"
)

// DefaultHistoryWindow is how many prior messages go into the prompt.
const DefaultHistoryWindow = 6

// Config tunes retrieval and prompting.
type Config struct {
	K             int
	FetchK        int
	Lambda        float64
	HistoryWindow int
}

// DefaultConfig returns K=5, FetchK=50, Lambda=0.5 and a six-message window.
func DefaultConfig() Config {
	return Config{K: 5, FetchK: 50, Lambda: 0.5, HistoryWindow: DefaultHistoryWindow}
}

// Request is one question against a loaded knowledge base.
type Request struct {
	KB       *kb.KnowledgeBase
	History  History
	Question string
}

// Response carries the answer and the updated history.
type Response struct {
	Answer string `json:"answer"`
	// Sources are distinct filenames in rank order; empty for greetings and
	// generic answers.
	Sources  []string `json:"sources"`
	Greeting bool     `json:"greeting,omitempty"`
	History  History  `json:"-"`

	// HistoryWarning is set when the history could not be saved.
	HistoryWarning string `json:"history_warning,omitempty"`
}

// Engine answers questions. It is stateless between calls.
type Engine struct {
	store     store.Strategy
	embedder  embed.Embedder
	generator llm.Generator
	history   HistoryStore
	metrics   *telemetry.AskMetrics
	config    Config
	logger    *slog.Logger
}

// EngineOption configures the engine.
type EngineOption func(*Engine)

// WithHistoryStore persists the conversation after every answer.
func WithHistoryStore(h HistoryStore) EngineOption {
	return func(e *Engine) {
		e.history = h
	}
}

// WithMetrics records every answer in m.
func WithMetrics(m *telemetry.AskMetrics) EngineOption {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = l
	}
}

// NewEngine creates an answering engine.
func NewEngine(s store.Strategy, e embed.Embedder, g llm.Generator, cfg Config, opts ...EngineOption) (*Engine, error) {
	if s == nil || e == nil || g == nil {
		return nil, cerrors.InternalError("answer engine requires a store, an embedder and a generator", nil)
	}
	def := DefaultConfig()
	if cfg.K <= 0 {
		cfg.K = def.K
	}
	if cfg.FetchK < cfg.K {
		cfg.FetchK = max(def.FetchK, cfg.K)
	}
	if cfg.Lambda < 0 || cfg.Lambda > 1 {
		cfg.Lambda = def.Lambda
	}
	if cfg.HistoryWindow < 0 {
		cfg.HistoryWindow = def.HistoryWindow
	}

	eng := &Engine{
		store:     s,
		embedder:  e,
		generator: g,
		config:    cfg,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(eng)
	}
	return eng, nil
}

// Ask answers req.Question from the knowledge base. Provider failures are
// returned as answering errors and are never retried.
func (e *Engine) Ask(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return nil, cerrors.ValidationError("question is empty", nil)
	}
	if req.KB == nil || req.KB.Handle == nil {
		return nil, cerrors.AnsweringError(errors.New("no knowledge base is loaded"))
	}

	if IsGreeting(question) {
		resp := &Response{Answer: GreetingReply, Sources: []string{}, Greeting: true}
		e.finish(ctx, req, question, resp)
		e.record(question, telemetry.OutcomeGreeting, resp, start)
		return resp, nil
	}

	vec, err := e.embedder.Embed(ctx, question)
	if err != nil {
		e.record(question, telemetry.OutcomeError, nil, start)
		return nil, cerrors.AnsweringError(err)
	}

	results, err := e.store.Query(ctx, req.KB.Handle, vec, store.QueryOptions{
		K:      e.config.K,
		FetchK: e.config.FetchK,
		Lambda: e.config.Lambda,
	})
	if err != nil {
		e.record(question, telemetry.OutcomeError, nil, start)
		return nil, cerrors.AnsweringError(err)
	}

	msgs := buildMessages(results, req.History.Last(e.config.HistoryWindow), question)
	answer, err := e.generator.Generate(ctx, msgs)
	if err != nil {
		e.record(question, telemetry.OutcomeError, nil, start)
		return nil, cerrors.AnsweringError(err)
	}
	answer = strings.TrimSpace(answer)

	resp := &Response{Answer: answer, Sources: []string{}}
	outcome := telemetry.OutcomeRefusal
	if !IsGeneric(answer) {
		resp.Sources = distinctSources(results)
		outcome = telemetry.OutcomeGrounded
	}

	e.logger.Debug("question answered",
		slog.String("kb", req.KB.Locator),
		slog.Int("retrieved", len(results)),
		slog.Int("sources", len(resp.Sources)),
		slog.Duration("took", time.Since(start)))

	e.finish(ctx, req, question, resp)
	e.record(question, outcome, resp, start)
	return resp, nil
}

// finish appends the exchange to the history and persists it.
func (e *Engine) finish(ctx context.Context, req Request, question string, resp *Response) {
	h := make(History, 0, len(req.History)+2)
	h = append(h, req.History...)
	h = append(h,
		Message{Role: RoleUser, Content: question},
		Message{Role: RoleAssistant, Content: resp.Answer},
	)
	resp.History = h

	if e.history == nil {
		return
	}
	if err := e.history.SaveHistory(ctx, req.KB.Owner, req.KB.SanitizedName, h); err != nil {
		e.logger.Warn("failed to save chat history",
			slog.String("kb", req.KB.Locator),
			slog.String("error", err.Error()))
		resp.HistoryWarning = err.Error()
	}
}

func (e *Engine) record(question string, outcome telemetry.Outcome, resp *Response, start time.Time) {
	if e.metrics == nil {
		return
	}
	ev := telemetry.AskEvent{
		Question:  question,
		Outcome:   outcome,
		Latency:   time.Since(start),
		Timestamp: start,
	}
	if resp != nil {
		ev.Sources = len(resp.Sources)
	}
	e.metrics.Record(ev)
}

func distinctSources(results []store.Result) []string {
	seen := make(map[string]bool, len(results))
	out := make([]string, 0, len(results))
	for _, r := range results {
		src := r.Chunk.Metadata.Source
		if src == "" || seen[src] {
			continue
		}
		seen[src] = true
		out = append(out, src)
	}
	return out
}
