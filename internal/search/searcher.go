package search

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Aman-CERP/codesearch/internal/embed"
	cserrors "github.com/Aman-CERP/codesearch/internal/errors"
	"github.com/Aman-CERP/codesearch/internal/store"
)

// ErrNilDependency is returned by NewSearcher when a dependency is missing.
var ErrNilDependency = errors.New("nil dependency")

// overFetchFactor is the initial candidate multiplier over k. Candidates are
// consumed by missing files and filters, so the window doubles until k live
// results are found or the store is exhausted.
const overFetchFactor = 2

// maxWalkRestarts bounds how often a candidate walk restarts after a write.
// Past it, one query spans the whole store.
const maxWalkRestarts = 3

// Option configures a Searcher.
type Option func(*Searcher)

// WithLanguageFunc sets the resolver used by Request.Language.
func WithLanguageFunc(fn LanguageFunc) Option {
	return func(s *Searcher) {
		s.language = fn
	}
}

// Searcher runs queries against one project.
type Searcher struct {
	root     string
	embedder embed.Embedder
	vectors  store.VectorStore
	cfg      Config
	language LanguageFunc
}

// NewSearcher creates a Searcher for the project at root.
func NewSearcher(root string, embedder embed.Embedder, vectors store.VectorStore, cfg Config, opts ...Option) (*Searcher, error) {
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedder is required", ErrNilDependency)
	}
	if vectors == nil {
		return nil, fmt.Errorf("%w: vector store is required", ErrNilDependency)
	}
	s := &Searcher{
		root:     root,
		embedder: embedder,
		vectors:  vectors,
		cfg:      cfg.withDefaults(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Search returns up to k results ordered by descending score. A hit whose
// file is gone is skipped and the next candidate takes its place.
func (s *Searcher) Search(ctx context.Context, req Request) ([]Result, error) {
	start := time.Now()

	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, cserrors.New(cserrors.ErrCodeQueryEmpty, "query is empty", nil)
	}
	k := s.cfg.ClampK(req.K)

	total := s.vectors.Count()
	if total == 0 {
		return []Result{}, nil
	}

	vec, err := embed.EmbedOne(ctx, s.embedder, query)
	if err != nil {
		return nil, err
	}
	if dims := s.vectors.Dimensions(); len(vec) != dims {
		return nil, cserrors.DimensionMismatch(dims, len(vec)).
			WithDetail("model", s.embedder.ModelName()).
			WithSuggestion("Re-index with --force to rebuild with the current embedder")
	}

	filters := buildFilters(req, s.language)
	results, skipped, err := s.collect(ctx, vec, k, total, filters, req.IncludeContext)
	if err != nil {
		return nil, err
	}

	// Approximate backends may return later candidates out of order.
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })

	slog.Debug("search_complete",
		slog.String("query", query),
		slog.Int("k", k),
		slog.Int("results", len(results)),
		slog.Int("skipped_missing", skipped),
		slog.Duration("duration", time.Since(start)))
	return results, nil
}

// collect walks ranked candidates until k live results are found. Every
// widened window is a fresh Query, so a write between two windows could mix a
// file's old and new records. The walk restarts whenever the store generation
// moves after its first window; a single window is always consistent.
func (s *Searcher) collect(ctx context.Context, vec []float32, k, total int, filters []FilterFunc, includeContext bool) ([]Result, int, error) {
	results := make([]Result, 0, k)
	seen := make(map[string]struct{})
	skipped, restarts := 0, 0
	gen := s.vectors.Generation()
	fetch := k * overFetchFactor
	fresh := true

	for {
		matches, err := s.vectors.Query(ctx, vec, min(fetch, total))
		if err != nil {
			return nil, 0, cserrors.New(cserrors.ErrCodeSearchFailed, "vector query failed", err)
		}
		g := s.vectors.Generation()

		for i := range matches {
			m := &matches[i]
			if _, ok := seen[m.Record.ID]; ok {
				continue
			}
			seen[m.Record.ID] = struct{}{}

			if !matchesAllFilters(&m.Record, filters) {
				continue
			}
			res, ok := s.read(m, includeContext)
			if !ok {
				skipped++
				continue
			}
			results = append(results, res)
			if len(results) == k {
				break
			}
		}
		done := len(results) == k || fetch >= total

		if g != gen && !(fresh && done) {
			restarts++
			slog.Debug("search_walk_restarted", slog.Int("restarts", restarts))
			gen, total = g, s.vectors.Count()
			results, skipped, fresh = results[:0], 0, true
			clear(seen)
			if restarts >= maxWalkRestarts {
				fetch = max(fetch, total)
			}
			if err := ctx.Err(); err != nil {
				return nil, 0, err
			}
			continue
		}
		if done {
			return results, skipped, nil
		}
		if err := ctx.Err(); err != nil {
			return nil, 0, err
		}
		fetch *= 2
		fresh = false
	}
}

// read loads a hit's lines from disk. It reports false when the file is gone
// or no longer reaches the hit's first line.
func (s *Searcher) read(m *store.Match, includeContext bool) (Result, bool) {
	rec := m.Record
	path := filepath.Join(s.root, filepath.FromSlash(rec.FilePath))
	data, err := os.ReadFile(path)
	if err != nil {
		slog.Debug("search_hit_unreadable", slog.String("path", rec.FilePath), slog.String("error", err.Error()))
		return Result{}, false
	}

	lines := splitLines(data)
	if rec.StartLine < 1 || rec.StartLine > len(lines) {
		return Result{}, false
	}
	end := min(rec.EndLine, len(lines))

	res := Result{
		FilePath:  rec.FilePath,
		StartLine: rec.StartLine,
		EndLine:   end,
		Score:     m.Score,
		ChunkType: rec.Type,
		Name:      rec.Name,
	}
	var truncated bool
	res.Content, truncated = truncate(strings.Join(lines[rec.StartLine-1:end], "\n"), s.cfg.MaxContentChars)
	res.Truncated = truncated

	if includeContext && s.cfg.ContextLines > 0 {
		from := max(0, rec.StartLine-1-s.cfg.ContextLines)
		to := min(len(lines), end+s.cfg.ContextLines)
		before := strings.Join(lines[from:rec.StartLine-1], "\n")
		after := strings.Join(lines[end:to], "\n")

		// Context shares what the chunk left of the cap. Each side gets half,
		// plus whatever the other side does not use.
		budget := 0
		if !truncated {
			budget = s.cfg.MaxContentChars - len(res.Content)
		}
		beforeLimit := min(len(before), max(budget/2, budget-len(after)))
		var t1, t2 bool
		res.ContextBefore, t1 = truncateHead(before, beforeLimit)
		res.ContextAfter, t2 = truncate(after, budget-beforeLimit)
		res.Truncated = res.Truncated || t1 || t2
	}
	return res, true
}

// splitLines splits file content into lines without line terminators. A
// trailing newline does not start an extra line.
func splitLines(data []byte) []string {
	data = bytes.ReplaceAll(data, []byte("\r\n"), []byte("\n"))
	if len(data) == 0 {
		return nil
	}
	text := strings.TrimSuffix(string(data), "\n")
	return strings.Split(text, "\n")
}

// truncate cuts s to at most limit bytes on a rune boundary and appends the
// truncation marker. Nothing is left when limit is zero.
func truncate(s string, limit int) (string, bool) {
	if len(s) <= limit {
		return s, false
	}
	if limit <= 0 {
		return "", true
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + TruncationMarker, true
}

// truncateHead keeps the last limit bytes of s, the lines nearest the chunk.
func truncateHead(s string, limit int) (string, bool) {
	if len(s) <= limit {
		return s, false
	}
	if limit <= 0 {
		return "", true
	}
	cut := len(s) - limit
	for cut < len(s) && !utf8.RuneStart(s[cut]) {
		cut++
	}
	return s[cut:], true
}
