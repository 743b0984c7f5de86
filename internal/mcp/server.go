package mcp

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Aman-CERP/chatmydocs/internal/answer"
	"github.com/Aman-CERP/chatmydocs/internal/extract"
	"github.com/Aman-CERP/chatmydocs/internal/kb"
	"github.com/Aman-CERP/chatmydocs/pkg/version"
)

// Backend is the part of the core API the tools call. *app.App implements it.
type Backend interface {
	ListKnowledgeBases(ctx context.Context, owner string) ([]kb.Summary, error)
	Ingest(ctx context.Context, owner, kbName string, files []extract.File) (*kb.CreateResult, error)
	AddDocuments(ctx context.Context, owner, kbName string, files []extract.File) (*kb.CreateResult, error)
	History(ctx context.Context, owner, kbName string) (answer.History, error)
	Ask(ctx context.Context, owner, kbName string, history answer.History, question string) (*answer.Response, error)
	DeleteKnowledgeBase(ctx context.Context, owner, kbName string) error
}

// Server is the MCP server for chatmydocs.
// Every tool acts on the knowledge bases of a single owner.
type Server struct {
	mcp     *mcp.Server
	backend Backend
	owner   string
	logger  *slog.Logger
}

// ToolInfo contains information about a registered tool.
type ToolInfo struct {
	Name        string
	Description string
}

var tools = []ToolInfo{
	{
		Name:        "list_knowledge_bases",
		Description: "List the knowledge bases available to ask questions about, with their document counts.",
	},
	{
		Name:        "ask_question",
		Description: "Answer a question strictly from the documents of one knowledge base. Returns the answer and the source documents it was drawn from. Continues the saved conversation unless fresh is set.",
	},
	{
		Name:        "ingest_documents",
		Description: "Create a knowledge base from local files (pdf, docx, pptx, xlsx, txt, md, csv, images), or add files to an existing one with append.",
	},
	{
		Name:        "delete_knowledge_base",
		Description: "Delete a knowledge base with its index, documents and conversation history.",
	},
}

// NewServer creates a new MCP server acting for owner.
func NewServer(backend Backend, owner string, logger *slog.Logger) (*Server, error) {
	if backend == nil {
		return nil, errors.New("backend is required")
	}
	if err := kb.ValidateOwner(owner); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		backend: backend,
		owner:   owner,
		logger:  logger,
	}

	s.mcp = mcp.NewServer(
		&mcp.Implementation{
			Name:    "chatmydocs",
			Version: version.Version,
		},
		nil,
	)
	s.registerTools()

	return s, nil
}

// MCPServer returns the underlying MCP server instance.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

// Owner returns the owner the tools act for.
func (s *Server) Owner() string {
	return s.owner
}

// ListTools returns all registered tools.
func (s *Server) ListTools() []ToolInfo {
	out := make([]ToolInfo, len(tools))
	copy(out, tools)
	return out
}

// CallTool invokes a tool by name with loosely typed arguments and returns
// its markdown rendering.
func (s *Server) CallTool(ctx context.Context, name string, args map[string]any) (string, error) {
	str := func(key string) string {
		v, _ := args[key].(string)
		return v
	}
	flag := func(key string) bool {
		v, _ := args[key].(bool)
		return v
	}

	switch name {
	case "list_knowledge_bases":
		out, err := s.list(ctx)
		if err != nil {
			return "", err
		}
		return FormatKnowledgeBases(out), nil
	case "ask_question":
		out, err := s.ask(ctx, AskInput{KnowledgeBase: str("knowledge_base"), Question: str("question"), Fresh: flag("fresh")})
		if err != nil {
			return "", err
		}
		return FormatAnswer(out), nil
	case "ingest_documents":
		in := IngestInput{KnowledgeBase: str("knowledge_base"), Append: flag("append")}
		if raw, ok := args["paths"].([]any); ok {
			for _, p := range raw {
				if p, ok := p.(string); ok {
					in.Paths = append(in.Paths, p)
				}
			}
		}
		out, err := s.ingest(ctx, in)
		if err != nil {
			return "", err
		}
		return FormatIngest(out), nil
	case "delete_knowledge_base":
		out, err := s.delete(ctx, DeleteInput{KnowledgeBase: str("knowledge_base")})
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("Knowledge base `%s` deleted.", out.Name), nil
	default:
		return "", NewMethodNotFoundError(name)
	}
}

// registerTools registers all tools with the MCP server.
func (s *Server) registerTools() {
	s.logger.Debug("Registering MCP tools")

	mcp.AddTool(s.mcp, &mcp.Tool{Name: tools[0].Name, Description: tools[0].Description}, s.mcpListHandler)
	mcp.AddTool(s.mcp, &mcp.Tool{Name: tools[1].Name, Description: tools[1].Description}, s.mcpAskHandler)
	mcp.AddTool(s.mcp, &mcp.Tool{Name: tools[2].Name, Description: tools[2].Description}, s.mcpIngestHandler)
	mcp.AddTool(s.mcp, &mcp.Tool{Name: tools[3].Name, Description: tools[3].Description}, s.mcpDeleteHandler)

	s.logger.Debug("MCP tools registered", slog.Int("count", len(tools)))
}

func (s *Server) mcpListHandler(ctx context.Context, _ *mcp.CallToolRequest, _ ListInput) (*mcp.CallToolResult, ListOutput, error) {
	out, err := s.list(ctx)
	if err != nil {
		return nil, ListOutput{}, err
	}
	return textResult(FormatKnowledgeBases(out)), out, nil
}

func (s *Server) mcpAskHandler(ctx context.Context, _ *mcp.CallToolRequest, in AskInput) (*mcp.CallToolResult, AskOutput, error) {
	out, err := s.ask(ctx, in)
	if err != nil {
		return nil, AskOutput{}, err
	}
	return textResult(FormatAnswer(out)), out, nil
}

func (s *Server) mcpIngestHandler(ctx context.Context, _ *mcp.CallToolRequest, in IngestInput) (*mcp.CallToolResult, IngestOutput, error) {
	out, err := s.ingest(ctx, in)
	if err != nil {
		return nil, IngestOutput{}, err
	}
	return textResult(FormatIngest(out)), out, nil
}

func (s *Server) mcpDeleteHandler(ctx context.Context, _ *mcp.CallToolRequest, in DeleteInput) (*mcp.CallToolResult, DeleteOutput, error) {
	out, err := s.delete(ctx, in)
	if err != nil {
		return nil, DeleteOutput{}, err
	}
	return nil, out, nil
}

func (s *Server) list(ctx context.Context) (ListOutput, error) {
	summaries, err := s.backend.ListKnowledgeBases(ctx, s.owner)
	if err != nil {
		return ListOutput{}, MapError(err)
	}

	out := ListOutput{KnowledgeBases: make([]KnowledgeBaseOutput, 0, len(summaries))}
	for _, k := range summaries {
		item := KnowledgeBaseOutput{
			Name:        k.Name,
			DisplayName: k.DisplayName,
			Documents:   k.Documents,
		}
		if !k.CreatedAt.IsZero() {
			item.CreatedAt = k.CreatedAt.UTC().Format(time.RFC3339)
		}
		out.KnowledgeBases = append(out.KnowledgeBases, item)
	}
	return out, nil
}

func (s *Server) ask(ctx context.Context, in AskInput) (AskOutput, error) {
	if strings.TrimSpace(in.KnowledgeBase) == "" {
		return AskOutput{}, NewInvalidParamsError("knowledge_base parameter is required")
	}
	if strings.TrimSpace(in.Question) == "" {
		return AskOutput{}, NewInvalidParamsError("question cannot be empty or whitespace only")
	}

	start := time.Now()
	requestID := generateRequestID()
	log := s.logger.With(
		slog.String("request_id", requestID),
		slog.String("owner", s.owner),
		slog.String("kb", in.KnowledgeBase))
	log.Info("ask started")

	var history answer.History
	if !in.Fresh {
		h, err := s.backend.History(ctx, s.owner, in.KnowledgeBase)
		if err != nil {
			log.Error("ask failed", slog.String("error", err.Error()))
			return AskOutput{}, MapError(err)
		}
		history = h
	}

	resp, err := s.backend.Ask(ctx, s.owner, in.KnowledgeBase, history, in.Question)
	if err != nil {
		log.Error("ask failed",
			slog.Duration("duration", time.Since(start)),
			slog.String("error", err.Error()))
		return AskOutput{}, MapError(err)
	}

	log.Info("ask completed",
		slog.Duration("duration", time.Since(start)),
		slog.Int("sources", len(resp.Sources)))

	out := AskOutput{
		Answer:   resp.Answer,
		Sources:  resp.Sources,
		Greeting: resp.Greeting,
	}
	if out.Sources == nil {
		out.Sources = []string{}
	}
	out.Warning = resp.HistoryWarning
	return out, nil
}

func (s *Server) ingest(ctx context.Context, in IngestInput) (IngestOutput, error) {
	if strings.TrimSpace(in.KnowledgeBase) == "" {
		return IngestOutput{}, NewInvalidParamsError("knowledge_base parameter is required")
	}
	if len(in.Paths) == 0 {
		return IngestOutput{}, NewInvalidParamsError("paths must list at least one file")
	}

	files := make([]extract.File, 0, len(in.Paths))
	for _, p := range in.Paths {
		if strings.TrimSpace(p) == "" {
			return IngestOutput{}, NewInvalidParamsError("paths cannot contain empty entries")
		}
		files = append(files, extract.File{Name: filepath.Base(p), Path: p})
	}

	start := time.Now()
	log := s.logger.With(
		slog.String("request_id", generateRequestID()),
		slog.String("owner", s.owner),
		slog.String("kb", in.KnowledgeBase))
	log.Info("ingest started", slog.Int("files", len(files)), slog.Bool("append", in.Append))

	ingest := s.backend.Ingest
	if in.Append {
		ingest = s.backend.AddDocuments
	}
	res, err := ingest(ctx, s.owner, in.KnowledgeBase, files)
	if err != nil {
		log.Error("ingest failed",
			slog.Duration("duration", time.Since(start)),
			slog.String("error", err.Error()))
		return IngestOutput{}, MapError(err)
	}

	log.Info("ingest completed",
		slog.Duration("duration", time.Since(start)),
		slog.Int("chunks", res.Chunks),
		slog.Int("warnings", len(res.Warnings)))

	out := IngestOutput{
		Name:            res.KB.SanitizedName,
		SourceDocuments: res.KB.SourceDocuments,
		Chunks:          res.Chunks,
	}
	for _, w := range res.Warnings {
		out.Warnings = append(out.Warnings, w.String())
	}
	return out, nil
}

func (s *Server) delete(ctx context.Context, in DeleteInput) (DeleteOutput, error) {
	if strings.TrimSpace(in.KnowledgeBase) == "" {
		return DeleteOutput{}, NewInvalidParamsError("knowledge_base parameter is required")
	}
	if err := s.backend.DeleteKnowledgeBase(ctx, s.owner, in.KnowledgeBase); err != nil {
		s.logger.Error("delete failed",
			slog.String("owner", s.owner),
			slog.String("kb", in.KnowledgeBase),
			slog.String("error", err.Error()))
		return DeleteOutput{}, MapError(err)
	}
	s.logger.Info("knowledge base deleted", slog.String("owner", s.owner), slog.String("kb", in.KnowledgeBase))
	return DeleteOutput{Name: kb.Sanitize(in.KnowledgeBase), Deleted: true}, nil
}

// Serve starts the server with the specified transport.
func (s *Server) Serve(ctx context.Context, transport, addr string) error {
	s.logger.Info("Starting MCP server",
		slog.String("transport", transport),
		slog.String("addr", addr),
		slog.String("owner", s.owner))

	switch transport {
	case "stdio":
		err := s.mcp.Run(ctx, &mcp.StdioTransport{})
		if err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("MCP server stopped with error",
				slog.String("error", err.Error()))
		} else {
			s.logger.Info("MCP server stopped gracefully")
		}
		return err
	case "http":
		if addr == "" {
			return fmt.Errorf("http transport requires an address")
		}
		handler := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return s.mcp }, nil)
		srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	default:
		return fmt.Errorf("unknown transport: %s (supported: stdio, http)", transport)
	}
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}

// generateRequestID creates a short unique request ID for log correlation.
func generateRequestID() string {
	b := make([]byte, 4)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
