// Package integration exercises indexing, search and watching together
// against real on-disk indexes.
package integration

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/codesearch/internal/config"
	"github.com/Aman-CERP/codesearch/internal/embed/embedtest"
	"github.com/Aman-CERP/codesearch/internal/project"
	"github.com/Aman-CERP/codesearch/internal/search"
)

var testProject = map[string]string{
	"pkg/auth/login.go": `package auth

// ValidatePassword compares a password against the stored bcrypt hash.
func ValidatePassword(hash, password string) bool {
	return compareHash(hash, password) == nil
}
`,
	"pkg/http/router.go": `package http

// RegisterRoutes wires the request handlers into the router.
func RegisterRoutes(r Router) {
	r.Handle("/users", listUsers)
	r.Handle("/orders", listOrders)
}
`,
	"scripts/report.py": `def render_report(rows):
    """Render monthly sales rows as a csv report."""
    return "\n".join(",".join(r) for r in rows)
`,
}

func newManager(t *testing.T) *project.Manager {
	t.Helper()
	cfg := config.NewConfig()
	cfg.DataDir = t.TempDir()
	cfg.Index.Workers = 2
	m, err := project.NewManager(cfg, project.WithEmbedder(embedtest.NewCounting(128)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func createProject(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		writeFile(t, root, rel, content)
	}
	return root
}

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func paths(results []search.Result) []string {
	out := make([]string, 0, len(results))
	for _, r := range results {
		out = append(out, r.FilePath)
	}
	return out
}

func TestIntegration_IndexAndSearch_FindsResults(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	// Given: an indexed project
	m := newManager(t)
	root := createProject(t, testProject)
	summary, err := m.Index(context.Background(), root, false, nil)
	require.NoError(t, err)
	require.Equal(t, 3, summary.FilesIndexed)

	// When: searching with the words of one function's doc comment
	results, err := m.Search(context.Background(), root, search.Request{
		Query: "compares a password against the stored bcrypt hash",
		K:     1,
	})

	// Then: that function is the top hit, with its current content
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "pkg/auth/login.go", results[0].FilePath)
	assert.Contains(t, results[0].Content, "ValidatePassword")
	assert.Greater(t, results[0].Score, float32(0))
}

func TestIntegration_SearchAfterDelete_ExcludesDeleted(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	// Given: an indexed project
	m := newManager(t)
	root := createProject(t, testProject)
	_, err := m.Index(context.Background(), root, false, nil)
	require.NoError(t, err)

	// When: a file is deleted and the project re-indexed
	require.NoError(t, os.Remove(filepath.Join(root, "scripts", "report.py")))
	summary, err := m.Index(context.Background(), root, false, nil)
	require.NoError(t, err)

	// Then: the pass removed it and search no longer returns it
	assert.Equal(t, 1, summary.FilesRemoved)
	results, err := m.Search(context.Background(), root, search.Request{Query: "monthly sales csv report", K: 10})
	require.NoError(t, err)
	assert.NotContains(t, paths(results), "scripts/report.py")
}

func TestIntegration_EmptyProject_ReturnsNoResults(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	// Given: an indexed project without source files
	m := newManager(t)
	root := createProject(t, map[string]string{"image.png": "not text"})
	summary, err := m.Index(context.Background(), root, false, nil)
	require.NoError(t, err)
	assert.Zero(t, summary.FilesIndexed)

	// When: searching it
	results, err := m.Search(context.Background(), root, search.Request{Query: "anything"})

	// Then: there are no results and no error
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestIntegration_SearchWithFilters_FiltersResults(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	// Given: an indexed project mixing Go and Python
	m := newManager(t)
	root := createProject(t, testProject)
	_, err := m.Index(context.Background(), root, false, nil)
	require.NoError(t, err)

	tests := []struct {
		name string
		req  search.Request
		want []string
	}{
		{
			name: "language",
			req:  search.Request{Query: "report", K: 10, Language: "python"},
			want: []string{"scripts/report.py"},
		},
		{
			name: "scope",
			req:  search.Request{Query: "handlers", K: 10, Scopes: []string{"pkg/http"}},
			want: []string{"pkg/http/router.go"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// When: searching with a filter
			results, err := m.Search(context.Background(), root, tt.req)

			// Then: only matching files come back
			require.NoError(t, err)
			require.NotEmpty(t, results)
			for _, p := range paths(results) {
				assert.Contains(t, tt.want, p)
			}
		})
	}
}

func TestIntegration_ConcurrentSearches_NoRace(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	// Given: an indexed project
	m := newManager(t)
	root := createProject(t, testProject)
	_, err := m.Index(context.Background(), root, false, nil)
	require.NoError(t, err)

	// When: many searches run at once
	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.Search(context.Background(), root, search.Request{Query: "register routes", K: 3})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	// Then: every one succeeds
	for err := range errs {
		assert.NoError(t, err)
	}
}

func TestIntegration_ProjectConfig_OverridesDefaults(t *testing.T) {
	// Given: a project carrying its own configuration file
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	root := createProject(t, map[string]string{
		config.ProjectConfigFile: "search:\n  default_top_k: 2\nindex:\n  chunk_size: 800\n",
	})

	// When: loading the layered configuration
	cfg, err := config.Load(root)

	// Then: file values win and the rest keep their defaults
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Search.DefaultTopK)
	assert.Equal(t, 800, cfg.Index.ChunkSize)
	assert.Equal(t, config.NewConfig().Search.MaxTopK, cfg.Search.MaxTopK)
}
