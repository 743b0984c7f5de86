// Package app wires providers, stores and engines into the core API used by
// the CLI and the MCP server. Provider clients are created once in New and
// released by Close.
package app

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/chatmydocs/internal/answer"
	"github.com/Aman-CERP/chatmydocs/internal/auth"
	"github.com/Aman-CERP/chatmydocs/internal/blob"
	"github.com/Aman-CERP/chatmydocs/internal/chunk"
	"github.com/Aman-CERP/chatmydocs/internal/config"
	"github.com/Aman-CERP/chatmydocs/internal/embed"
	cerrors "github.com/Aman-CERP/chatmydocs/internal/errors"
	"github.com/Aman-CERP/chatmydocs/internal/extract"
	"github.com/Aman-CERP/chatmydocs/internal/kb"
	"github.com/Aman-CERP/chatmydocs/internal/llm"
	"github.com/Aman-CERP/chatmydocs/internal/session"
	"github.com/Aman-CERP/chatmydocs/internal/store"
	"github.com/Aman-CERP/chatmydocs/internal/telemetry"
)

// ocrTimeout bounds one text-recognition request.
const ocrTimeout = 60 * time.Second

// App is the core API.
type App struct {
	cfg    *config.Config
	logger *slog.Logger

	embedder  embed.Embedder
	generator llm.Generator
	strategy  store.Strategy
	blobs     blob.Store
	users     *auth.SQLiteStore

	kbs      *kb.Manager
	engine   *answer.Engine
	sessions *session.Manager

	metrics   *telemetry.AskMetrics
	telemetry *telemetry.SQLiteStore
}

// Option customizes New. Used mainly to inject providers.
type Option func(*options)

type options struct {
	embedder  embed.Embedder
	generator llm.Generator
}

// WithEmbedder uses e instead of the configured embedding provider.
func WithEmbedder(e embed.Embedder) Option {
	return func(o *options) { o.embedder = e }
}

// WithGenerator uses g instead of the configured generation provider.
func WithGenerator(g llm.Generator) Option {
	return func(o *options) { o.generator = g }
}

// New builds an App from cfg. On error everything opened so far is closed.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts ...Option) (_ *App, err error) {
	if logger == nil {
		logger = slog.Default()
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	a := &App{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	a.embedder = o.embedder
	if a.embedder == nil {
		if a.embedder, err = embed.New(ctx, cfg.Embeddings); err != nil {
			return nil, err
		}
	}
	a.generator = o.generator
	if a.generator == nil {
		if a.generator, err = llm.NewGenerator(cfg.Generation); err != nil {
			return nil, err
		}
	}

	if a.strategy, err = store.Open(cfg.Store); err != nil {
		return nil, err
	}
	if a.blobs, err = blob.Open(ctx, cfg.Blob); err != nil {
		return nil, err
	}
	if a.users, err = auth.OpenSQLite(cfg.Auth.DBPath); err != nil {
		return nil, err
	}
	if a.sessions, err = session.NewManager(session.ManagerConfig{
		StoragePath: cfg.Sessions.Dir,
		MaxSessions: cfg.Sessions.MaxSessions,
	}); err != nil {
		return nil, cerrors.ConfigError("failed to open session storage", err)
	}

	chunker, err := chunk.New(chunk.Config{Size: cfg.Chunking.Size, Overlap: cfg.Chunking.Overlap})
	if err != nil {
		return nil, cerrors.ConfigError("invalid chunking configuration", err)
	}

	extOpts := extract.Options{
		MaxFileSize: int64(cfg.Ingestion.MaxFileSizeMB) << 20,
		Logger:      logger,
	}
	if cfg.Ingestion.OCRURL != "" {
		extOpts.OCR = extract.NewHTTPOCR(cfg.Ingestion.OCRURL, ocrTimeout)
	}

	lockDir := ""
	if a.strategy.Kind() == store.KindLocal {
		lockDir = cfg.Store.Local.Root
	}

	if a.kbs, err = kb.NewManager(kb.Options{
		Extractor: extract.New(extOpts),
		Chunker:   chunker,
		Embedder:  a.embedder,
		Store:     a.strategy,
		Blobs:     a.blobs,
		Policy:    extract.ParsePolicy(cfg.Ingestion.Policy),
		LockDir:   lockDir,
		Logger:    logger,
	}); err != nil {
		return nil, err
	}

	engineOpts := []answer.EngineOption{
		answer.WithHistoryStore(a.kbs),
		answer.WithLogger(logger),
	}
	if !cfg.Telemetry.Disabled {
		if a.telemetry, err = telemetry.OpenSQLiteStore(cfg.Telemetry.DBPath); err != nil {
			return nil, cerrors.ConfigError("failed to open telemetry database", err)
		}
		a.metrics = telemetry.NewAskMetrics(a.telemetry, telemetry.Config{})
		engineOpts = append(engineOpts, answer.WithMetrics(a.metrics))
	}

	if a.engine, err = answer.NewEngine(a.strategy, a.embedder, a.generator, answer.Config{
		K:             cfg.Retrieval.K,
		FetchK:        cfg.Retrieval.FetchK,
		Lambda:        cfg.Retrieval.MMRLambda,
		HistoryWindow: cfg.Retrieval.HistoryWindow,
	}, engineOpts...); err != nil {
		return nil, err
	}

	logger.Info("app initialized",
		slog.String("embedder", a.embedder.ModelName()),
		slog.String("generator", a.generator.ModelName()),
		slog.String("store", string(a.strategy.Kind())))
	return a, nil
}

// Ingest creates the knowledge base kbName for owner from files.
func (a *App) Ingest(ctx context.Context, owner, kbName string, files []extract.File) (*kb.CreateResult, error) {
	return a.kbs.Create(ctx, owner, kbName, files)
}

// AddDocuments appends files to an existing knowledge base.
func (a *App) AddDocuments(ctx context.Context, owner, kbName string, files []extract.File) (*kb.CreateResult, error) {
	return a.kbs.AddDocuments(ctx, owner, kbName, files)
}

// Ask answers question from kbName given the prior history.
func (a *App) Ask(ctx context.Context, owner, kbName string, history answer.History, question string) (*answer.Response, error) {
	loaded, err := a.kbs.Load(ctx, owner, kbName)
	if err != nil {
		return nil, err
	}
	return a.engine.Ask(ctx, answer.Request{KB: loaded, History: history, Question: question})
}

// History returns the saved conversation with kbName.
func (a *App) History(ctx context.Context, owner, kbName string) (answer.History, error) {
	var h answer.History
	if err := a.kbs.History(ctx, owner, kbName, &h); err != nil {
		return nil, err
	}
	return h, nil
}

// ListKnowledgeBases lists the knowledge bases of owner.
func (a *App) ListKnowledgeBases(ctx context.Context, owner string) ([]kb.Summary, error) {
	return a.kbs.List(ctx, owner)
}

// LoadKnowledgeBase opens kbName.
func (a *App) LoadKnowledgeBase(ctx context.Context, owner, kbName string) (*kb.KnowledgeBase, error) {
	return a.kbs.Load(ctx, owner, kbName)
}

// DeleteKnowledgeBase removes kbName. A partial failure is reported with
// errors.IsPartialDelete.
func (a *App) DeleteKnowledgeBase(ctx context.Context, owner, kbName string) error {
	return a.kbs.Delete(ctx, owner, kbName)
}

// Register creates a user account.
func (a *App) Register(ctx context.Context, r auth.Registration) (*auth.User, error) {
	return auth.Register(ctx, a.users, r)
}

// Authenticate checks a username and password.
func (a *App) Authenticate(ctx context.Context, username, password string) (*auth.User, error) {
	return auth.Authenticate(ctx, a.users, username, password)
}

// Stats returns the answer metrics collected by this process, or nil when
// telemetry is disabled.
func (a *App) Stats() *telemetry.Snapshot {
	if a.metrics == nil {
		return nil
	}
	return a.metrics.Snapshot()
}

// StoredStats summarizes the persisted answer metrics of the last days days.
func (a *App) StoredStats(days int) (*telemetry.Snapshot, error) {
	if a.telemetry == nil {
		return nil, cerrors.ConfigError("telemetry is disabled", nil).
			WithSuggestion("Set telemetry.disabled to false to collect answer statistics")
	}
	if a.metrics != nil {
		if err := a.metrics.Flush(); err != nil {
			a.logger.Warn("failed to flush telemetry", slog.String("error", err.Error()))
		}
	}
	return a.telemetry.Summary(days, time.Now())
}

// Config returns the configuration the app was built with.
func (a *App) Config() *config.Config { return a.cfg }

// Close releases every provider client and store concurrently and reports
// every failure.
func (a *App) Close() error {
	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs []error
	)
	closeWith := func(fn func() error) {
		g.Go(func() error {
			if err := fn(); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}

	if a.embedder != nil {
		closeWith(a.embedder.Close)
	}
	if a.generator != nil {
		closeWith(a.generator.Close)
	}
	if a.strategy != nil {
		closeWith(a.strategy.Close)
	}
	if a.users != nil {
		closeWith(a.users.Close)
	}
	if a.telemetry != nil {
		closeWith(func() error {
			if a.metrics != nil {
				if err := a.metrics.Close(); err != nil {
					a.logger.Warn("failed to flush telemetry", slog.String("error", err.Error()))
				}
			}
			return a.telemetry.Close()
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}
