package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Aman-CERP/codesearch/internal/index"
	"github.com/Aman-CERP/codesearch/internal/project"
	"github.com/Aman-CERP/codesearch/internal/search"
	"github.com/Aman-CERP/codesearch/pkg/version"
)

// Service is the set of operations the tools expose. *project.Manager
// implements it.
type Service interface {
	Index(ctx context.Context, path string, force bool, progress index.ProgressFunc) (*index.Summary, error)
	StartIndex(ctx context.Context, path string, force bool) (*project.IndexTask, error)
	Search(ctx context.Context, path string, req search.Request) ([]search.Result, error)
	Status(ctx context.Context, path string) (*project.Status, error)
	ModelName(ctx context.Context) (string, error)
}

var _ Service = (*project.Manager)(nil)

// Tool names.
const (
	ToolSearchCode    = "search_code"
	ToolIndexCodebase = "index_codebase"
	ToolIndexStatus   = "index_status"
)

// Server is the MCP server. Every tool takes an optional path; without one
// it acts on the project the server was started in.
type Server struct {
	mcp         *mcp.Server
	svc         Service
	defaultRoot string
	provider    string
	language    LanguageFunc
	logger      *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithLanguageFunc sets the language used for code fences in results.
func WithLanguageFunc(fn LanguageFunc) Option {
	return func(s *Server) { s.language = fn }
}

// WithProvider sets the embedding provider name reported by index_status.
func WithProvider(name string) Option {
	return func(s *Server) { s.provider = name }
}

// NewServer creates an MCP server over svc. defaultRoot is used when a tool
// call names no path.
func NewServer(svc Service, defaultRoot string, opts ...Option) (*Server, error) {
	if svc == nil {
		return nil, errors.New("service is required")
	}
	s := &Server{
		svc:         svc,
		defaultRoot: defaultRoot,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.mcp = mcp.NewServer(&mcp.Implementation{
		Name:    "codesearch",
		Version: version.Version,
	}, nil)
	s.registerTools()
	return s, nil
}

// MCPServer returns the underlying MCP server instance.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name: ToolSearchCode,
		Description: "Semantic code search over an indexed project. Finds functions, classes and " +
			"text by meaning and returns fresh file content with surrounding lines. " +
			"Fails with a 'no index' error if the project was never indexed.",
	}, s.handleSearchCode)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name: ToolIndexCodebase,
		Description: "Build or update the search index of a project. Only changed files are " +
			"re-processed unless force is set. Use background for large projects and poll index_status.",
	}, s.handleIndexCodebase)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        ToolIndexStatus,
		Description: "Report whether a project is indexed, its state (absent, building, ready, stale), counts and model.",
	}, s.handleIndexStatus)

	s.logger.Debug("mcp_tools_registered", slog.Int("count", 3))
}

func (s *Server) root(path string) string {
	if path == "" {
		return s.defaultRoot
	}
	return path
}

func (s *Server) handleSearchCode(ctx context.Context, _ *mcp.CallToolRequest, in SearchCodeInput) (
	*mcp.CallToolResult,
	SearchCodeOutput,
	error,
) {
	if strings.TrimSpace(in.Query) == "" {
		return nil, SearchCodeOutput{}, NewInvalidParamsError("query cannot be empty or whitespace only")
	}
	if in.K < 0 {
		return nil, SearchCodeOutput{}, NewInvalidParamsError("k must be positive")
	}

	includeContext := true
	if in.IncludeContext != nil {
		includeContext = *in.IncludeContext
	}
	root := s.root(in.Path)

	start := time.Now()
	results, err := s.svc.Search(ctx, root, search.Request{
		Query:          in.Query,
		K:              in.K,
		IncludeContext: includeContext,
		Scopes:         in.Scope,
		Language:       in.Language,
		ChunkType:      in.ChunkType,
	})
	if err != nil {
		s.logger.Debug("mcp_search_failed", slog.String("root", root), slog.String("error", err.Error()))
		return nil, SearchCodeOutput{}, MapError(err)
	}
	if results == nil {
		results = []search.Result{}
	}
	s.logger.Debug("mcp_search",
		slog.String("root", root),
		slog.Int("results", len(results)),
		slog.Duration("duration", time.Since(start)))

	out := SearchCodeOutput{Query: in.Query, Root: root, Results: results}
	return textResult(FormatResults(in.Query, results, s.language)), out, nil
}

func (s *Server) handleIndexCodebase(ctx context.Context, _ *mcp.CallToolRequest, in IndexCodebaseInput) (
	*mcp.CallToolResult,
	IndexCodebaseOutput,
	error,
) {
	root := s.root(in.Path)

	if in.Background {
		// The task must outlive this request.
		task, err := s.svc.StartIndex(context.WithoutCancel(ctx), root, in.Force)
		if err != nil {
			return nil, IndexCodebaseOutput{}, MapError(err)
		}
		out := IndexCodebaseOutput{Root: root, TaskID: task.ID()}
		msg := fmt.Sprintf("Indexing %s in the background (task %s). Poll index_status for progress.", root, task.ID())
		return textResult(msg), out, nil
	}

	summary, err := s.svc.Index(ctx, root, in.Force, nil)
	if err != nil {
		return nil, IndexCodebaseOutput{}, MapError(err)
	}
	out := IndexCodebaseOutput{
		Root:          root,
		FilesScanned:  summary.FilesScanned,
		FilesIndexed:  summary.FilesIndexed,
		FilesRemoved:  summary.FilesRemoved,
		ChunksIndexed: summary.ChunksIndexed,
		CacheHitRate:  summary.CacheHitRate,
		Skipped:       skippedFiles(summary),
		DurationMs:    summary.Duration.Milliseconds(),
	}
	return textResult(FormatSummary(root, summary)), out, nil
}

func (s *Server) handleIndexStatus(ctx context.Context, _ *mcp.CallToolRequest, in IndexStatusInput) (
	*mcp.CallToolResult,
	IndexStatusOutput,
	error,
) {
	status, err := s.svc.Status(ctx, s.root(in.Path))
	if err != nil {
		return nil, IndexStatusOutput{}, MapError(err)
	}
	model, err := s.svc.ModelName(ctx)
	if err != nil {
		return nil, IndexStatusOutput{}, MapError(err)
	}

	out := IndexStatusOutput{
		Root:       status.Root,
		ProjectID:  status.ProjectID,
		Exists:     status.Exists,
		State:      string(status.State),
		ChunkCount: status.ChunkCount,
		FileCount:  status.FileCount,
		Model:      status.Model,
		Dimensions: status.Dimensions,
		Embeddings: EmbeddingInfo{
			Provider: s.provider,
			Model:    model,
			Matches:  status.Model == "" || status.Model == model,
		},
	}
	if !status.LastIndexedAt.IsZero() {
		out.LastIndexedAt = status.LastIndexedAt.Format(time.RFC3339)
	}
	if t := status.Task; t != nil {
		out.Task = &TaskProgress{
			Status:         t.Status,
			Stage:          t.Stage,
			Current:        t.Current,
			Total:          t.Total,
			ProgressPct:    t.ProgressPct,
			ElapsedSeconds: t.ElapsedSeconds,
			Error:          t.Error,
		}
		if o := t.Outcome; o != nil {
			out.Task.FilesIndexed = o.FilesIndexed
			out.Task.ChunksIndexed = o.ChunksIndexed
			out.Task.Skipped = o.Failed + o.Excluded
		}
	}
	return textResult(formatStatus(out)), out, nil
}

func formatStatus(out IndexStatusOutput) string {
	if !out.Exists && out.State != "building" {
		return fmt.Sprintf("No index exists for %s. Run index_codebase first.", out.Root)
	}
	msg := fmt.Sprintf("Index for %s is %s: %d files, %d chunks, model %s.",
		out.Root, out.State, out.FileCount, out.ChunkCount, out.Model)
	if out.LastIndexedAt != "" {
		msg += " Last indexed " + out.LastIndexedAt + "."
	}
	if out.Task != nil && out.Task.Status == "indexing" {
		msg += fmt.Sprintf(" Background pass %s: %.0f%%.", out.Task.Stage, out.Task.ProgressPct)
	}
	return msg
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}

// Serve runs the server over stdio until ctx is done or the client
// disconnects.
func (s *Server) Serve(ctx context.Context) error {
	s.logger.Info("mcp_server_started", slog.String("transport", "stdio"), slog.String("root", s.defaultRoot))
	err := s.mcp.Run(ctx, &mcp.StdioTransport{})
	if err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Error("mcp_server_stopped", slog.String("error", err.Error()))
		return err
	}
	s.logger.Info("mcp_server_stopped")
	return nil
}
