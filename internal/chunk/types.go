// Package chunk splits source files into bounded, syntactically aligned
// chunks for embedding.
//
// Two strategies exist: a structural one driven by a tree-sitter parse for
// languages with a grammar, and a heuristic one (declaration patterns, then
// fixed line windows) for everything else. Both feed the same assembler,
// which guarantees that the chunks of a file cover every line.
package chunk

import (
	"context"
	"fmt"

	cserrors "github.com/Aman-CERP/codesearch/internal/errors"
)

// Size defaults in characters.
const (
	DefaultChunkSize    = 1500
	DefaultChunkOverlap = 200
	DefaultMinChunkSize = 100

	// maxContextLines caps the import lines collected as chunk context.
	maxContextLines = 10
)

// ChunkType is the closed set of chunk kinds.
type ChunkType int

const (
	TypeBlock ChunkType = iota
	TypeFunction
	TypeMethod
	TypeClass
)

func (t ChunkType) String() string {
	switch t {
	case TypeFunction:
		return "function"
	case TypeMethod:
		return "method"
	case TypeClass:
		return "class"
	default:
		return "block"
	}
}

// ParseChunkType is the inverse of String. Unknown names map to TypeBlock.
func ParseChunkType(s string) ChunkType {
	switch s {
	case "function":
		return TypeFunction
	case "method":
		return TypeMethod
	case "class":
		return TypeClass
	default:
		return TypeBlock
	}
}

// CodeChunk is one contiguous line range of a file.
type CodeChunk struct {
	FilePath  string
	StartLine int // 1-indexed
	EndLine   int // inclusive
	Type      ChunkType
	Name      string
	// Context is the file's import/package text, shared by every chunk of the file.
	Context string
	// Content is the chunk text. It is only held while indexing.
	Content string
	// ContentHash keys the embedding cache; it covers Context and Content.
	ContentHash string
}

// File is the input of a Strategy.
type File struct {
	Path     string
	Language *Language
	Content  []byte
	Lines    []string
}

// Options bounds chunk sizes.
type Options struct {
	ChunkSize    int
	ChunkOverlap int
	MinChunkSize int
}

// DefaultOptions returns the default chunk sizes.
func DefaultOptions() Options {
	return Options{
		ChunkSize:    DefaultChunkSize,
		ChunkOverlap: DefaultChunkOverlap,
		MinChunkSize: DefaultMinChunkSize,
	}
}

func (o Options) withDefaults() Options {
	if o.ChunkSize <= 0 {
		o.ChunkSize = DefaultChunkSize
	}
	if o.ChunkOverlap < 0 || o.ChunkOverlap >= o.ChunkSize {
		o.ChunkOverlap = 0
	}
	if o.MinChunkSize < 0 {
		o.MinChunkSize = 0
	}
	return o
}

// Strategy turns one file into chunks.
type Strategy interface {
	Name() string
	Chunk(ctx context.Context, file *File) ([]CodeChunk, error)
}

// ErrBinaryContent is returned for files holding NUL bytes or invalid UTF-8.
var ErrBinaryContent = cserrors.ErrBinaryFile

// errParse wraps a structural parse failure so the caller can fall back.
func errParse(path string, cause error) error {
	return cserrors.New(cserrors.ErrCodeParseFailure, fmt.Sprintf("cannot parse %s", path), cause).
		WithDetail("path", path)
}
