// Package store persists the vector index of a project: chunk vectors with
// their location metadata, the per-file metadata used for change detection,
// and a small key/value state table. Raw file content is never stored.
package store

import (
	"context"
	"fmt"
)

// State keys kept in the state table.
const (
	// StateKeyDimension is the vector dimension fixed by the first write.
	StateKeyDimension = "dimension"
	// StateKeyModel is the embedding model name used for the stored vectors.
	StateKeyModel = "model"
	// StateKeyLastIndexedAt is the RFC3339 completion time of the last pass.
	StateKeyLastIndexedAt = "last_indexed_at"
	// StateKeyStale is "true" when the last pass left some files unindexed.
	StateKeyStale = "stale"
	// StateKeyRoot is the absolute project root the index was built for.
	StateKeyRoot = "root"
)

// Backend names accepted by Open.
const (
	BackendExact = "exact"
	BackendHNSW  = "hnsw"
)

// FileRecord is the metadata of one indexed file, used only for change detection.
type FileRecord struct {
	// Path is slash-separated and relative to the project root.
	Path string
	// ModTime is the modification time in unix nanoseconds.
	ModTime     int64
	Size        int64
	ContentHash string
	// Chunks is the number of vector records the file produced. Zero for
	// blank and binary files; -1 for rows written before it was tracked.
	Chunks int
}

// VectorRecord is one persisted chunk: its location, light metadata and vector.
type VectorRecord struct {
	ID          string
	FilePath    string
	StartLine   int
	EndLine     int
	Type        string
	Name        string
	Context     string
	ContentHash string
	Vector      []float32
}

// RecordID builds the record ID for a line range of a file.
func RecordID(filePath string, startLine, endLine int) string {
	return fmt.Sprintf("%s:%d-%d", filePath, startLine, endLine)
}

// Match is a query hit with its cosine similarity.
type Match struct {
	Record VectorRecord
	Score  float32
}

// VectorStore holds the vector records of one project.
type VectorStore interface {
	// Upsert atomically replaces every record of filePath with records.
	Upsert(ctx context.Context, filePath string, records []VectorRecord) error

	// Delete removes every record of filePath.
	Delete(ctx context.Context, filePath string) error

	// Query returns up to k records ordered by descending similarity.
	// Ties keep insertion order.
	Query(ctx context.Context, vector []float32, k int) ([]Match, error)

	// Count returns the number of stored records.
	Count() int

	// Dimensions returns the fixed vector dimension, or 0 before the first write.
	Dimensions() int

	// Generation increases with every Upsert and Delete. Two Query calls
	// bracketed by the same generation saw the same records.
	Generation() uint64

	Close() error
}

// FileRecordStore keeps the FileRecord table.
type FileRecordStore interface {
	FileRecords(ctx context.Context) (map[string]FileRecord, error)
	PutFileRecords(ctx context.Context, records []FileRecord) error
	DeleteFileRecords(ctx context.Context, paths []string) error
}

// StateStore is a string key/value table.
type StateStore interface {
	GetState(ctx context.Context, key string) (string, error)
	SetState(ctx context.Context, key, value string) error
}

// Config configures Open.
type Config struct {
	// Backend is BackendExact or BackendHNSW.
	Backend string
	// M is the HNSW max connections per layer.
	M int
	// EfSearch is the HNSW query-time search width.
	EfSearch int
}

// DefaultConfig returns the exact backend.
func DefaultConfig() Config {
	return Config{Backend: BackendExact, M: 16, EfSearch: 64}
}
