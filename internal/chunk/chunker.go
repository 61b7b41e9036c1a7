package chunk

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"unicode/utf8"

	cserrors "github.com/Aman-CERP/codesearch/internal/errors"
)

// Chunker dispatches files to the strategy registered for their language.
// It is safe for concurrent use.
type Chunker struct {
	opts     Options
	registry *Registry
}

// New creates a Chunker with the built-in languages.
func New(opts Options) *Chunker {
	opts = opts.withDefaults()
	return &Chunker{
		opts: opts,
		registry: NewRegistry(
			NewStructuralStrategy(opts),
			NewHeuristicStrategy(opts),
			NewMarkdownStrategy(opts),
		),
	}
}

// Registry exposes the language registry for custom registrations.
func (c *Chunker) Registry() *Registry {
	return c.registry
}

// Options returns the effective size options.
func (c *Chunker) Options() Options {
	return c.opts
}

// Chunk splits content into chunks that together cover every line. Empty
// or whitespace-only content yields no chunks. Binary content yields
// ErrBinaryContent. A structural parse failure falls back to the heuristic
// strategy, so the only other error is context cancellation.
func (c *Chunker) Chunk(ctx context.Context, path string, content []byte) ([]CodeChunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if isBinary(content) {
		return nil, cserrors.New(cserrors.ErrCodeBinaryFile, "binary content in "+path, nil).
			WithDetail("path", path)
	}
	if len(bytes.TrimSpace(content)) == 0 {
		return nil, nil
	}

	content = normalizeNewlines(content)
	lang := c.registry.Lookup(path)
	file := &File{
		Path:     path,
		Language: lang,
		Content:  content,
		Lines:    splitLines(string(content)),
	}

	strategy := c.registry.StrategyFor(lang)
	chunks, err := strategy.Chunk(ctx, file)
	if err == nil {
		return chunks, nil
	}
	if !errors.Is(err, cserrors.ErrParseFailure) {
		return nil, err
	}

	slog.Debug("parse_fallback",
		slog.String("path", path),
		slog.String("strategy", strategy.Name()),
		slog.String("error", err.Error()))
	return c.registry.Fallback().Chunk(ctx, file)
}

// isBinary reports content holding a NUL byte or invalid UTF-8.
func isBinary(content []byte) bool {
	return bytes.IndexByte(content, 0) >= 0 || !utf8.Valid(content)
}

// Language returns the language name used for path, "text" when unknown.
func (c *Chunker) Language(path string) string {
	if lang := c.registry.Lookup(path); lang != nil {
		return lang.Name
	}
	return "text"
}

// normalizeNewlines converts CRLF line endings so chunk text never carries \r.
func normalizeNewlines(content []byte) []byte {
	if !bytes.Contains(content, []byte("\r\n")) {
		return content
	}
	return []byte(strings.ReplaceAll(string(content), "\r\n", "\n"))
}
