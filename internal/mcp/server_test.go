package mcp

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/codesearch/internal/async"
	cserrors "github.com/Aman-CERP/codesearch/internal/errors"
	"github.com/Aman-CERP/codesearch/internal/index"
	"github.com/Aman-CERP/codesearch/internal/project"
	"github.com/Aman-CERP/codesearch/internal/search"
)

// fakeService records the last request and returns canned answers.
type fakeService struct {
	results   []search.Result
	searchErr error
	summary   *index.Summary
	status    *project.Status

	lastPath  string
	lastReq   search.Request
	lastForce bool
}

func (f *fakeService) Index(_ context.Context, path string, force bool, _ index.ProgressFunc) (*index.Summary, error) {
	f.lastPath, f.lastForce = path, force
	return f.summary, nil
}

func (f *fakeService) StartIndex(ctx context.Context, path string, force bool) (*project.IndexTask, error) {
	f.lastPath, f.lastForce = path, force
	return async.Start(ctx, func(context.Context, *async.Progress) (*index.Summary, error) {
		return f.summary, nil
	}), nil
}

func (f *fakeService) Search(_ context.Context, path string, req search.Request) ([]search.Result, error) {
	f.lastPath, f.lastReq = path, req
	return f.results, f.searchErr
}

func (f *fakeService) Status(_ context.Context, path string) (*project.Status, error) {
	f.lastPath = path
	return f.status, nil
}

func (f *fakeService) ModelName(context.Context) (string, error) { return "static-64", nil }

func newTestServer(t *testing.T, svc *fakeService) *Server {
	t.Helper()
	s, err := NewServer(svc, "/projects/default", WithProvider("static"))
	require.NoError(t, err)
	return s
}

func TestSearchCode_DefaultsAndResults(t *testing.T) {
	// Given a service with one match
	svc := &fakeService{results: []search.Result{{
		FilePath: "math.py", StartLine: 1, EndLine: 2, Score: 0.91,
		ChunkType: "function", Name: "add", Content: "def add(a, b):\n    return a + b",
	}}}
	s := newTestServer(t, svc)

	// When search_code is called with only a query
	res, out, err := s.handleSearchCode(context.Background(), nil, SearchCodeInput{Query: "sum two numbers"})

	// Then the default project and context are used and the match is rendered
	require.NoError(t, err)
	assert.Equal(t, "/projects/default", svc.lastPath)
	assert.True(t, svc.lastReq.IncludeContext)
	require.Len(t, out.Results, 1)
	assert.Equal(t, "math.py", out.Results[0].FilePath)
	text := res.Content[0].(*mcp.TextContent).Text
	assert.Contains(t, text, "math.py:1-2")
	assert.Contains(t, text, "`add`")
}

func TestSearchCode_PassesFilters(t *testing.T) {
	svc := &fakeService{}
	s := newTestServer(t, svc)
	noContext := false

	_, out, err := s.handleSearchCode(context.Background(), nil, SearchCodeInput{
		Query: "q", Path: "/other", K: 7, IncludeContext: &noContext,
		Language: "go", ChunkType: "method", Scope: []string{"internal"},
	})

	require.NoError(t, err)
	assert.Equal(t, "/other", svc.lastPath)
	assert.Equal(t, search.Request{
		Query: "q", K: 7, IncludeContext: false,
		Scopes: []string{"internal"}, Language: "go", ChunkType: "method",
	}, svc.lastReq)
	assert.NotNil(t, out.Results)
	assert.Empty(t, out.Results)
}

func TestSearchCode_RejectsEmptyQuery(t *testing.T) {
	s := newTestServer(t, &fakeService{})

	_, _, err := s.handleSearchCode(context.Background(), nil, SearchCodeInput{Query: "  "})

	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, ErrCodeInvalidParams, mcpErr.Code)
}

func TestSearchCode_NoIndexIsDistinct(t *testing.T) {
	// Given a project that was never indexed
	svc := &fakeService{searchErr: cserrors.IndexNotFound("/projects/new")}
	s := newTestServer(t, svc)

	// When searching
	_, _, err := s.handleSearchCode(context.Background(), nil, SearchCodeInput{Query: "anything", Path: "/projects/new"})

	// Then a no-index error is reported instead of an empty result
	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, ErrCodeIndexNotFound, mcpErr.Code)
	assert.Contains(t, mcpErr.Message, "No index exists for /projects/new")
}

func TestIndexCodebase_Foreground(t *testing.T) {
	svc := &fakeService{summary: &index.Summary{
		FilesScanned: 10, FilesIndexed: 3, ChunksIndexed: 12, CacheHitRate: 0.5,
		Oversized: []string{"big.json"}, Duration: 1500 * time.Millisecond,
	}}
	s := newTestServer(t, svc)

	res, out, err := s.handleIndexCodebase(context.Background(), nil, IndexCodebaseInput{Force: true})

	require.NoError(t, err)
	assert.True(t, svc.lastForce)
	assert.Equal(t, 3, out.FilesIndexed)
	assert.Equal(t, int64(1500), out.DurationMs)
	assert.Equal(t, []string{"big.json (too large)"}, out.Skipped)
	assert.Contains(t, res.Content[0].(*mcp.TextContent).Text, "50.0%")
}

func TestIndexCodebase_Background(t *testing.T) {
	svc := &fakeService{summary: &index.Summary{}}
	s := newTestServer(t, svc)

	_, out, err := s.handleIndexCodebase(context.Background(), nil, IndexCodebaseInput{Background: true})

	require.NoError(t, err)
	assert.NotEmpty(t, out.TaskID)
	assert.Zero(t, out.FilesIndexed)
}

func TestIndexStatus_ReportsState(t *testing.T) {
	svc := &fakeService{status: &project.Status{
		Root: "/projects/default", Exists: true, State: project.StateStale,
		ChunkCount: 40, FileCount: 4, Model: "static-64", Dimensions: 64,
		LastIndexedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Task: &async.Snapshot{Status: "indexing", Stage: "embedding", Current: 40, Total: 100, ProgressPct: 40,
			Outcome: &async.Outcome{FilesIndexed: 3, Failed: 1, Excluded: 2}},
	}}
	s := newTestServer(t, svc)

	res, out, err := s.handleIndexStatus(context.Background(), nil, IndexStatusInput{})

	require.NoError(t, err)
	assert.Equal(t, "stale", out.State)
	assert.Equal(t, "2026-01-02T03:04:05Z", out.LastIndexedAt)
	assert.True(t, out.Embeddings.Matches)
	assert.Equal(t, "static", out.Embeddings.Provider)
	require.NotNil(t, out.Task)
	assert.Equal(t, "embedding", out.Task.Stage)
	assert.Equal(t, 40, out.Task.Current)
	assert.Equal(t, 3, out.Task.FilesIndexed)
	assert.Equal(t, 3, out.Task.Skipped)
	assert.Contains(t, res.Content[0].(*mcp.TextContent).Text, "is stale")
}

func TestIndexStatus_Absent(t *testing.T) {
	svc := &fakeService{status: &project.Status{Root: "/p", State: project.StateAbsent}}
	s := newTestServer(t, svc)

	res, out, err := s.handleIndexStatus(context.Background(), nil, IndexStatusInput{Path: "/p"})

	require.NoError(t, err)
	assert.False(t, out.Exists)
	assert.Contains(t, res.Content[0].(*mcp.TextContent).Text, "No index exists for /p")
}

func TestServer_ToolsOverTransport(t *testing.T) {
	// Given a server connected to a client in memory
	svc := &fakeService{searchErr: cserrors.IndexNotFound("/projects/default")}
	s := newTestServer(t, svc)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	clientTransport, serverTransport := mcp.NewInMemoryTransports()
	serverSession, err := s.MCPServer().Connect(ctx, serverTransport, nil)
	require.NoError(t, err)
	defer func() { _ = serverSession.Close() }()

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "v0.0.1"}, nil)
	session, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)
	defer func() { _ = session.Close() }()

	// When listing tools
	tools, err := session.ListTools(ctx, nil)
	require.NoError(t, err)
	names := make([]string, 0, len(tools.Tools))
	for _, tool := range tools.Tools {
		names = append(names, tool.Name)
	}
	assert.ElementsMatch(t, []string{ToolSearchCode, ToolIndexCodebase, ToolIndexStatus}, names)

	// And searching a project without an index
	res, err := session.CallTool(ctx, &mcp.CallToolParams{
		Name:      ToolSearchCode,
		Arguments: map[string]any{"query": "anything"},
	})

	// Then the call reports a tool error naming the missing index
	require.NoError(t, err)
	assert.True(t, res.IsError)
	require.NotEmpty(t, res.Content)
	assert.Contains(t, res.Content[0].(*mcp.TextContent).Text, "No index exists")
}

func TestNewServer_RequiresService(t *testing.T) {
	_, err := NewServer(nil, "/")
	assert.Error(t, err)
}

func TestMapError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{name: "index not found", err: cserrors.IndexNotFound("/p"), code: ErrCodeIndexNotFound},
		{name: "wrapped index not found", err: errors.Join(errors.New("ctx"), cserrors.IndexNotFound("/p")), code: ErrCodeIndexNotFound},
		{name: "embedding", err: cserrors.EmbeddingUnavailable("ollama down", nil), code: ErrCodeEmbeddingFailed},
		{name: "locked", err: cserrors.New(cserrors.ErrCodeIndexLocked, "busy", nil), code: ErrCodeIndexLocked},
		{name: "dimension", err: cserrors.DimensionMismatch(64, 32), code: ErrCodeDimensionMismatch},
		{name: "validation", err: cserrors.New(cserrors.ErrCodeQueryEmpty, "empty", nil), code: ErrCodeInvalidParams},
		{name: "deadline", err: context.DeadlineExceeded, code: ErrCodeTimeout},
		{name: "plain", err: errors.New("boom"), code: ErrCodeInternalError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MapError(tt.err)
			require.NotNil(t, got)
			assert.Equal(t, tt.code, got.Code)
		})
	}
	assert.Nil(t, MapError(nil))
}
