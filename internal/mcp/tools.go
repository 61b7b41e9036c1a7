package mcp

import (
	"github.com/Aman-CERP/codesearch/internal/search"
)

// SearchCodeInput defines the input schema for the search_code tool.
type SearchCodeInput struct {
	Query          string   `json:"query" jsonschema:"natural-language or code query"`
	Path           string   `json:"path,omitempty" jsonschema:"project root; defaults to the server's project"`
	K              int      `json:"k,omitempty" jsonschema:"number of results, default 5, max 50"`
	IncludeContext *bool    `json:"include_context,omitempty" jsonschema:"include surrounding lines, default true"`
	Language       string   `json:"language,omitempty" jsonschema:"filter by language, e.g. go, python"`
	ChunkType      string   `json:"chunk_type,omitempty" jsonschema:"filter by chunk type: function, method, class, block, text"`
	Scope          []string `json:"scope,omitempty" jsonschema:"filter by path prefixes (OR logic)"`
}

// SearchCodeOutput defines the output schema for the search_code tool.
type SearchCodeOutput struct {
	Query   string          `json:"query"`
	Root    string          `json:"root"`
	Results []search.Result `json:"results" jsonschema:"matches ordered by descending score"`
}

// IndexCodebaseInput defines the input schema for the index_codebase tool.
type IndexCodebaseInput struct {
	Path       string `json:"path,omitempty" jsonschema:"project root; defaults to the server's project"`
	Force      bool   `json:"force,omitempty" jsonschema:"re-process every file, ignoring change detection"`
	Background bool   `json:"background,omitempty" jsonschema:"return immediately and index in the background; poll index_status"`
}

// IndexCodebaseOutput defines the output schema for the index_codebase tool.
type IndexCodebaseOutput struct {
	Root string `json:"root"`
	// TaskID is set for background runs.
	TaskID        string   `json:"task_id,omitempty"`
	FilesScanned  int      `json:"files_scanned"`
	FilesIndexed  int      `json:"files_indexed"`
	FilesRemoved  int      `json:"files_removed"`
	ChunksIndexed int      `json:"chunks_indexed"`
	CacheHitRate  float64  `json:"cache_hit_rate"`
	Skipped       []string `json:"skipped,omitempty" jsonschema:"files left unindexed by this pass"`
	DurationMs    int64    `json:"duration_ms"`
}

// IndexStatusInput defines the input schema for the index_status tool.
type IndexStatusInput struct {
	Path string `json:"path,omitempty" jsonschema:"project root; defaults to the server's project"`
}

// IndexStatusOutput defines the output schema for the index_status tool.
type IndexStatusOutput struct {
	Root       string `json:"root"`
	ProjectID  string `json:"project_id"`
	Exists     bool   `json:"exists"`
	State      string `json:"state" jsonschema:"absent, building, ready or stale"`
	ChunkCount int    `json:"chunk_count"`
	FileCount  int    `json:"file_count"`
	// LastIndexedAt is RFC 3339, empty before the first completed pass.
	LastIndexedAt string        `json:"last_indexed_at,omitempty"`
	Model         string        `json:"model,omitempty"`
	Dimensions    int           `json:"dimensions,omitempty"`
	Embeddings    EmbeddingInfo `json:"embeddings"`
	// Task is the background pass started through index_codebase, if any.
	Task *TaskProgress `json:"task,omitempty"`
}

// TaskProgress reports a background indexing pass.
type TaskProgress struct {
	Status         string  `json:"status" jsonschema:"indexing, ready, error or cancelled"`
	Stage          string  `json:"stage,omitempty"`
	Current        int     `json:"current" jsonschema:"units done in the stage: files, or chunks while embedding"`
	Total          int     `json:"total"`
	ProgressPct    float64 `json:"progress_pct"`
	ElapsedSeconds int     `json:"elapsed_seconds"`
	Error          string  `json:"error,omitempty"`
	FilesIndexed   int     `json:"files_indexed,omitempty" jsonschema:"set once the pass finished"`
	ChunksIndexed  int     `json:"chunks_indexed,omitempty"`
	Skipped        int     `json:"skipped,omitempty" jsonschema:"files that failed or were excluded as binary"`
}

// EmbeddingInfo describes the embedder the server queries with.
type EmbeddingInfo struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`
	// Matches is false when the index was built with a different model and
	// must be rebuilt with force before it can be searched.
	Matches bool `json:"matches"`
}
