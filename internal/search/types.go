// Package search answers natural-language queries against a project's vector
// index. Hits are re-read from disk at query time, so results always show the
// current file content; the index itself never stores source text.
package search

import (
	"github.com/Aman-CERP/codesearch/internal/config"
)

// TruncationMarker is appended to content cut at the size cap.
const TruncationMarker = "\n... [truncated]"

// Request is one search.
type Request struct {
	Query string
	// K is the number of results wanted. Zero means the configured default;
	// values above the configured maximum are clamped.
	K int
	// IncludeContext adds the surrounding lines of each hit.
	IncludeContext bool

	// Scopes restricts results to files under these path prefixes (OR).
	Scopes []string
	// Language restricts results to one language, e.g. "go" or "python".
	Language string
	// ChunkType restricts results to one chunk kind, e.g. "function".
	ChunkType string
}

// Result is one hit with content read fresh from disk.
type Result struct {
	FilePath  string  `json:"file_path"`
	StartLine int     `json:"start_line"`
	EndLine   int     `json:"end_line"`
	Score     float32 `json:"score"`
	ChunkType string  `json:"chunk_type"`
	Name      string  `json:"name,omitempty"`
	Content   string  `json:"content"`
	// ContextBefore and ContextAfter hold up to Config.ContextLines lines
	// around the chunk, clipped to the file bounds.
	ContextBefore string `json:"context_before,omitempty"`
	ContextAfter  string `json:"context_after,omitempty"`
	Truncated     bool   `json:"truncated,omitempty"`
}

// Config bounds result counts and sizes.
type Config struct {
	DefaultTopK     int
	MaxTopK         int
	ContextLines    int
	MaxContentChars int
}

// DefaultConfig returns the default search bounds.
func DefaultConfig() Config {
	return Config{
		DefaultTopK:     5,
		MaxTopK:         50,
		ContextLines:    3,
		MaxContentChars: 3000,
	}
}

// ConfigFromConfig derives search bounds from the configuration.
func ConfigFromConfig(cfg *config.Config) Config {
	return Config{
		DefaultTopK:     cfg.Search.DefaultTopK,
		MaxTopK:         cfg.Search.MaxTopK,
		ContextLines:    cfg.Search.ContextLines,
		MaxContentChars: cfg.Search.MaxContentChars,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxTopK <= 0 {
		c.MaxTopK = d.MaxTopK
	}
	if c.DefaultTopK <= 0 {
		c.DefaultTopK = d.DefaultTopK
	}
	if c.DefaultTopK > c.MaxTopK {
		c.DefaultTopK = c.MaxTopK
	}
	if c.ContextLines < 0 {
		c.ContextLines = 0
	}
	if c.MaxContentChars <= 0 {
		c.MaxContentChars = d.MaxContentChars
	}
	return c
}

// ClampK applies the default and the maximum to a requested result count.
func (c Config) ClampK(k int) int {
	c = c.withDefaults()
	if k <= 0 {
		return c.DefaultTopK
	}
	return min(k, c.MaxTopK)
}
