// Package config provides configuration loading for codesearch.
//
// Configuration is layered, in order of increasing precedence:
//  1. Hardcoded defaults (NewConfig)
//  2. User config ($XDG_CONFIG_HOME/codesearch/config.yaml)
//  3. Project config (.codesearch.yaml in the project root)
//  4. Environment variables (CODESEARCH_*)
//
// The resulting *Config is passed explicitly to every constructor; nothing in
// the module reads configuration from package state.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ProjectConfigFile is the per-project configuration file name.
const ProjectConfigFile = ".codesearch.yaml"

// Config is the complete codesearch configuration.
type Config struct {
	Index      IndexConfig      `yaml:"index"`
	Embeddings EmbeddingsConfig `yaml:"embeddings"`
	Search     SearchConfig     `yaml:"search"`
	Store      StoreConfig      `yaml:"store"`
	Server     ServerConfig     `yaml:"server"`
	Watch      WatchConfig      `yaml:"watch"`

	// DataDir holds per-project index directories and logs.
	DataDir string `yaml:"data_dir"`
}

// IndexConfig controls file discovery and chunking.
type IndexConfig struct {
	ChunkSize        int      `yaml:"chunk_size"`
	ChunkOverlap     int      `yaml:"chunk_overlap"`
	MinChunkSize     int      `yaml:"min_chunk_size"`
	MaxFileSize      int64    `yaml:"max_file_size"`
	Extensions       []string `yaml:"extensions"`
	Filenames        []string `yaml:"filenames"`
	SkipDirs         []string `yaml:"skip_dirs"`
	SkipFiles        []string `yaml:"skip_files"`
	RespectGitignore bool     `yaml:"respect_gitignore"`
	Workers          int      `yaml:"workers"`
	EmbedWorkers     int      `yaml:"embed_workers"`
}

// EmbeddingsConfig selects and tunes the embedding model.
type EmbeddingsConfig struct {
	// Provider is "static" (built in, no model process) or "ollama".
	Provider   string        `yaml:"provider"`
	Model      string        `yaml:"model"`
	Dimensions int           `yaml:"dimensions"`
	BatchSize  int           `yaml:"batch_size"`
	OllamaHost string        `yaml:"ollama_host"`
	Timeout    time.Duration `yaml:"timeout"`

	// CacheMaxEntries bounds the embedding cache with LRU eviction.
	// Zero keeps every entry.
	CacheMaxEntries int `yaml:"cache_max_entries"`
}

// SearchConfig controls result assembly.
type SearchConfig struct {
	DefaultTopK     int `yaml:"default_top_k"`
	MaxTopK         int `yaml:"max_top_k"`
	ContextLines    int `yaml:"context_lines"`
	MaxContentChars int `yaml:"max_content_chars"`
}

// StoreConfig selects the vector store query backend.
type StoreConfig struct {
	// Backend is "exact" (brute-force cosine) or "hnsw" (approximate candidates, exact rescoring).
	Backend      string `yaml:"backend"`
	HNSWM        int    `yaml:"hnsw_m"`
	HNSWEfSearch int    `yaml:"hnsw_ef_search"`
}

// ServerConfig configures the tool adapters.
type ServerConfig struct {
	Transport string `yaml:"transport"`
	HTTPAddr  string `yaml:"http_addr"`
	LogLevel  string `yaml:"log_level"`
}

// WatchConfig configures the file watcher.
type WatchConfig struct {
	Debounce time.Duration `yaml:"debounce"`
}

// DefaultExtensions is the allow-list of indexable file extensions.
var DefaultExtensions = []string{
	".py", ".pyw", ".pyx", ".pyi",
	".js", ".jsx", ".ts", ".tsx", ".mjs", ".cjs",
	".html", ".htm", ".css", ".scss", ".sass", ".less", ".vue", ".svelte",
	".rb", ".rake", ".gemspec",
	".go",
	".rs",
	".java", ".kt", ".kts",
	".c", ".cpp", ".cc", ".cxx", ".h", ".hpp", ".hxx",
	".cs",
	".php",
	".swift",
	".sh", ".bash", ".zsh", ".fish",
	".json", ".yaml", ".yml", ".toml", ".ini", ".xml",
	".md", ".rst", ".txt",
	".sql",
}

// DefaultFilenames are extensionless files that are indexed by name.
var DefaultFilenames = []string{"Makefile", "Dockerfile", "Rakefile", "Gemfile"}

// DefaultSkipDirs are directory names never descended into.
var DefaultSkipDirs = []string{
	".git", ".svn", ".hg", ".bzr",
	"node_modules", "bower_components", "vendor", "vendors",
	"__pycache__", ".pytest_cache", ".mypy_cache", "venv", "env", ".venv", ".tox",
	"eggs", ".eggs", "dist", "build", "*.egg-info",
	".bundle",
	".vscode", ".idea", ".vs",
	"out", "target",
	".cache", ".parcel-cache", ".next", ".nuxt",
	"coverage", ".coverage", "htmlcov", ".angular", ".gradle",
	".aws", ".gcp", ".azure", ".ssh",
}

// DefaultSkipFiles are file name patterns never indexed: lock files,
// minified bundles and anything that commonly holds secrets.
var DefaultSkipFiles = []string{
	".DS_Store", "Thumbs.db",
	"package-lock.json", "yarn.lock", "pnpm-lock.yaml", "Gemfile.lock",
	"Cargo.lock", "poetry.lock", "go.sum",
	"*.min.js", "*.min.css",
	".env", ".env.*", "*.pem", "*.key", "*credentials*", "*secrets*",
	".netrc", ".npmrc", ".pypirc", "id_rsa", "id_ed25519",
}

// NewConfig returns a Config populated with defaults.
func NewConfig() *Config {
	return &Config{
		Index: IndexConfig{
			ChunkSize:        1500,
			ChunkOverlap:     200,
			MinChunkSize:     100,
			MaxFileSize:      1_000_000,
			Extensions:       append([]string(nil), DefaultExtensions...),
			Filenames:        append([]string(nil), DefaultFilenames...),
			SkipDirs:         append([]string(nil), DefaultSkipDirs...),
			SkipFiles:        append([]string(nil), DefaultSkipFiles...),
			RespectGitignore: true,
			Workers:          runtime.NumCPU(),
			EmbedWorkers:     2,
		},
		Embeddings: EmbeddingsConfig{
			Provider:   "static",
			Model:      "static-384",
			Dimensions: 384,
			BatchSize:  32,
			OllamaHost: "http://localhost:11434",
			Timeout:    60 * time.Second,
		},
		Search: SearchConfig{
			DefaultTopK:     5,
			MaxTopK:         50,
			ContextLines:    3,
			MaxContentChars: 3000,
		},
		Store: StoreConfig{
			Backend:      "exact",
			HNSWM:        16,
			HNSWEfSearch: 64,
		},
		Server: ServerConfig{
			Transport: "stdio",
			HTTPAddr:  "127.0.0.1:7777",
			LogLevel:  "info",
		},
		Watch: WatchConfig{
			Debounce: 500 * time.Millisecond,
		},
		DataDir: defaultDataDir(),
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".codesearch")
	}
	return filepath.Join(home, ".codesearch")
}

// IndexesDir returns the directory holding one subdirectory per project fingerprint.
func (c *Config) IndexesDir() string {
	return filepath.Join(c.DataDir, "indexes")
}

// GetUserConfigPath returns the user configuration path, honoring XDG_CONFIG_HOME.
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "codesearch", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "codesearch", "config.yaml")
	}
	return filepath.Join(home, ".config", "codesearch", "config.yaml")
}

// Load builds the layered configuration for the project rooted at dir.
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if err := cfg.loadYAMLIfExists(GetUserConfigPath()); err != nil {
		return nil, fmt.Errorf("failed to load user config: %w", err)
	}

	if dir != "" {
		if err := cfg.loadYAMLIfExists(filepath.Join(dir, ProjectConfigFile)); err != nil {
			return nil, err
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// LoadFile loads defaults overlaid with a single YAML file, then env overrides.
func LoadFile(path string) (*Config, error) {
	cfg := NewConfig()
	if err := cfg.loadYAML(path); err != nil {
		return nil, err
	}
	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) loadYAMLIfExists(path string) error {
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	return c.loadYAML(path)
}

// loadYAML decodes path over the current values. Keys absent from the file
// keep their current value, so booleans can be switched off explicitly.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// applyEnvOverrides applies CODESEARCH_* environment variable overrides.
// Malformed numeric values are ignored.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("CODESEARCH_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv("CODESEARCH_EMBEDDINGS_PROVIDER"); v != "" {
		c.Embeddings.Provider = v
	}
	if v := os.Getenv("CODESEARCH_EMBEDDINGS_MODEL"); v != "" {
		c.Embeddings.Model = v
	}
	if v := os.Getenv("CODESEARCH_OLLAMA_HOST"); v != "" {
		c.Embeddings.OllamaHost = v
	}
	if v := os.Getenv("CODESEARCH_CACHE_MAX_ENTRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			c.Embeddings.CacheMaxEntries = n
		}
	}
	if v := os.Getenv("CODESEARCH_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Index.Workers = n
		}
	}
	if v := os.Getenv("CODESEARCH_STORE_BACKEND"); v != "" {
		c.Store.Backend = strings.ToLower(v)
	}
	if v := os.Getenv("CODESEARCH_LOG_LEVEL"); v != "" {
		c.Server.LogLevel = v
	}
	if v := os.Getenv("CODESEARCH_TRANSPORT"); v != "" {
		c.Server.Transport = v
	}
}

// Validate checks value ranges and enumerations.
func (c *Config) Validate() error {
	ix := c.Index
	if ix.ChunkSize <= 0 {
		return fmt.Errorf("index.chunk_size must be positive, got %d", ix.ChunkSize)
	}
	if ix.ChunkOverlap < 0 || ix.ChunkOverlap >= ix.ChunkSize {
		return fmt.Errorf("index.chunk_overlap must be in [0, chunk_size), got %d", ix.ChunkOverlap)
	}
	if ix.MinChunkSize < 0 || ix.MinChunkSize >= ix.ChunkSize {
		return fmt.Errorf("index.min_chunk_size must be in [0, chunk_size), got %d", ix.MinChunkSize)
	}
	if ix.MaxFileSize <= 0 {
		return fmt.Errorf("index.max_file_size must be positive, got %d", ix.MaxFileSize)
	}
	if ix.Workers < 1 || ix.EmbedWorkers < 1 {
		return fmt.Errorf("index.workers and index.embed_workers must be at least 1")
	}

	switch strings.ToLower(c.Embeddings.Provider) {
	case "static", "ollama":
	default:
		return fmt.Errorf("embeddings.provider must be 'static' or 'ollama', got %q", c.Embeddings.Provider)
	}
	if c.Embeddings.BatchSize < 1 || c.Embeddings.BatchSize > 256 {
		return fmt.Errorf("embeddings.batch_size must be in [1, 256], got %d", c.Embeddings.BatchSize)
	}
	if c.Embeddings.Dimensions < 0 {
		return fmt.Errorf("embeddings.dimensions must be non-negative, got %d", c.Embeddings.Dimensions)
	}
	if c.Embeddings.CacheMaxEntries < 0 {
		return fmt.Errorf("embeddings.cache_max_entries must be non-negative, got %d", c.Embeddings.CacheMaxEntries)
	}

	s := c.Search
	if s.MaxTopK < 1 || s.DefaultTopK < 1 || s.DefaultTopK > s.MaxTopK {
		return fmt.Errorf("search.default_top_k must be in [1, max_top_k], got %d (max %d)", s.DefaultTopK, s.MaxTopK)
	}
	if s.ContextLines < 0 {
		return fmt.Errorf("search.context_lines must be non-negative, got %d", s.ContextLines)
	}
	if s.MaxContentChars <= 0 {
		return fmt.Errorf("search.max_content_chars must be positive, got %d", s.MaxContentChars)
	}

	switch c.Store.Backend {
	case "exact", "hnsw":
	default:
		return fmt.Errorf("store.backend must be 'exact' or 'hnsw', got %q", c.Store.Backend)
	}

	switch strings.ToLower(c.Server.Transport) {
	case "stdio", "http":
	default:
		return fmt.Errorf("server.transport must be 'stdio' or 'http', got %q", c.Server.Transport)
	}

	switch strings.ToLower(c.Server.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("server.log_level must be 'debug', 'info', 'warn', or 'error', got %q", c.Server.LogLevel)
	}

	if c.DataDir == "" {
		return fmt.Errorf("data_dir must not be empty")
	}
	return nil
}

// WriteYAML writes the configuration to path.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
