package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate points the user config and data dir at temp locations.
func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("CODESEARCH_DATA_DIR", "")
	t.Setenv("CODESEARCH_EMBEDDINGS_PROVIDER", "")
	t.Setenv("CODESEARCH_STORE_BACKEND", "")
	t.Setenv("CODESEARCH_WORKERS", "")
}

func TestNewConfig_ReturnsDefaults(t *testing.T) {
	// Given: no configuration file exists
	cfg := NewConfig()

	// Then: chunking and search defaults match the documented values
	assert.Equal(t, 1500, cfg.Index.ChunkSize)
	assert.Equal(t, 200, cfg.Index.ChunkOverlap)
	assert.Equal(t, 100, cfg.Index.MinChunkSize)
	assert.Equal(t, int64(1_000_000), cfg.Index.MaxFileSize)
	assert.True(t, cfg.Index.RespectGitignore)
	assert.Contains(t, cfg.Index.Extensions, ".go")
	assert.Contains(t, cfg.Index.SkipDirs, "node_modules")
	assert.Contains(t, cfg.Index.SkipFiles, "package-lock.json")

	assert.Equal(t, "static", cfg.Embeddings.Provider)
	assert.Equal(t, 32, cfg.Embeddings.BatchSize)
	assert.Equal(t, 0, cfg.Embeddings.CacheMaxEntries)

	assert.Equal(t, 5, cfg.Search.DefaultTopK)
	assert.Equal(t, 50, cfg.Search.MaxTopK)
	assert.Equal(t, 3, cfg.Search.ContextLines)
	assert.Equal(t, 3000, cfg.Search.MaxContentChars)

	assert.Equal(t, "exact", cfg.Store.Backend)
	require.NoError(t, cfg.Validate())
}

func TestLoad_ProjectConfigOverridesDefaults(t *testing.T) {
	isolate(t)

	// Given: a project config that changes a few keys
	dir := t.TempDir()
	yaml := `
index:
  chunk_size: 800
  chunk_overlap: 100
  respect_gitignore: false
search:
  context_lines: 0
store:
  backend: hnsw
watch:
  debounce: 2s
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, ProjectConfigFile), []byte(yaml), 0o644))

	// When: loading
	cfg, err := Load(dir)

	// Then: overridden keys change, the rest keep defaults
	require.NoError(t, err)
	assert.Equal(t, 800, cfg.Index.ChunkSize)
	assert.Equal(t, 100, cfg.Index.ChunkOverlap)
	assert.False(t, cfg.Index.RespectGitignore)
	assert.Equal(t, 0, cfg.Search.ContextLines)
	assert.Equal(t, "hnsw", cfg.Store.Backend)
	assert.Equal(t, 2*time.Second, cfg.Watch.Debounce)
	assert.Equal(t, 100, cfg.Index.MinChunkSize)
	assert.Equal(t, 50, cfg.Search.MaxTopK)
}

func TestLoad_UserConfigThenProjectThenEnv(t *testing.T) {
	isolate(t)
	xdg := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", xdg)

	// Given: user config sets the provider and project config sets the batch size
	userPath := filepath.Join(xdg, "codesearch", "config.yaml")
	require.NoError(t, os.MkdirAll(filepath.Dir(userPath), 0o755))
	require.NoError(t, os.WriteFile(userPath, []byte("embeddings:\n  provider: ollama\n  batch_size: 8\n"), 0o644))

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ProjectConfigFile), []byte("embeddings:\n  batch_size: 16\n"), 0o644))

	// And: env overrides the provider back
	t.Setenv("CODESEARCH_EMBEDDINGS_PROVIDER", "static")

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "static", cfg.Embeddings.Provider)
	assert.Equal(t, 16, cfg.Embeddings.BatchSize)
}

func TestLoad_InvalidYAMLFails(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ProjectConfigFile), []byte("index: [unclosed"), 0o644))

	_, err := Load(dir)
	assert.Error(t, err)
}

func TestApplyEnvOverrides_IgnoresMalformedNumbers(t *testing.T) {
	isolate(t)
	t.Setenv("CODESEARCH_WORKERS", "lots")
	t.Setenv("CODESEARCH_CACHE_MAX_ENTRIES", "500")

	cfg := NewConfig()
	before := cfg.Index.Workers
	cfg.applyEnvOverrides()

	assert.Equal(t, before, cfg.Index.Workers)
	assert.Equal(t, 500, cfg.Embeddings.CacheMaxEntries)
}

func TestValidate_RejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero chunk size", func(c *Config) { c.Index.ChunkSize = 0 }},
		{"overlap not below chunk size", func(c *Config) { c.Index.ChunkOverlap = c.Index.ChunkSize }},
		{"unknown provider", func(c *Config) { c.Embeddings.Provider = "magic" }},
		{"batch too large", func(c *Config) { c.Embeddings.BatchSize = 1000 }},
		{"default k above max", func(c *Config) { c.Search.DefaultTopK = 100 }},
		{"unknown backend", func(c *Config) { c.Store.Backend = "faiss" }},
		{"unknown transport", func(c *Config) { c.Server.Transport = "sse" }},
		{"bad log level", func(c *Config) { c.Server.LogLevel = "loud" }},
		{"negative cache cap", func(c *Config) { c.Embeddings.CacheMaxEntries = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestWriteYAML_RoundTripsThroughLoadFile(t *testing.T) {
	isolate(t)
	cfg := NewConfig()
	cfg.Search.DefaultTopK = 7
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	require.NoError(t, cfg.WriteYAML(path))
	loaded, err := LoadFile(path)

	require.NoError(t, err)
	assert.Equal(t, 7, loaded.Search.DefaultTopK)
	assert.Equal(t, cfg.Watch.Debounce, loaded.Watch.Debounce)
}
