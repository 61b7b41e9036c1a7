package search

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/codesearch/internal/embed"
	"github.com/Aman-CERP/codesearch/internal/embed/embedtest"
	cserrors "github.com/Aman-CERP/codesearch/internal/errors"
	"github.com/Aman-CERP/codesearch/internal/store"
)

type searchFixture struct {
	root     string
	store    *store.SQLiteStore
	embedder *embedtest.Counting
}

func newSearchFixture(t *testing.T) *searchFixture {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "index.db"), store.DefaultConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return &searchFixture{root: t.TempDir(), store: st, embedder: embedtest.NewCounting(64)}
}

// add writes a file and indexes its lines [start, end] with the embedding of text.
func (f *searchFixture) add(t *testing.T, rel, content string, start, end int, text string) {
	t.Helper()
	path := filepath.Join(f.root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	vec, err := embed.EmbedOne(context.Background(), f.embedder, text)
	require.NoError(t, err)
	rec := store.VectorRecord{
		ID: store.RecordID(rel, start, end), FilePath: rel, StartLine: start, EndLine: end,
		Type: "function", ContentHash: rel + text, Vector: vec,
	}
	require.NoError(t, f.store.Upsert(context.Background(), rel, []store.VectorRecord{rec}))
}

func (f *searchFixture) searcher(t *testing.T, cfg Config) *Searcher {
	t.Helper()
	s, err := NewSearcher(f.root, f.embedder, f.store, cfg)
	require.NoError(t, err)
	return s
}

func numbered(n int) string {
	var sb strings.Builder
	for i := 1; i <= n; i++ {
		fmt.Fprintf(&sb, "line %d\n", i)
	}
	return sb.String()
}

func TestSearcher_RanksByScore(t *testing.T) {
	// Given two indexed files with distinct topics
	f := newSearchFixture(t)
	f.add(t, "math.py", "def add(a, b):\n    return a + b\n", 1, 2, "def add(a, b): sum two numbers return a + b")
	f.add(t, "config.py", "def parse_config(path):\n    return load(path)\n", 1, 2, "def parse_config(path): load yaml configuration file")

	// When searching for one topic
	results, err := f.searcher(t, DefaultConfig()).Search(context.Background(), Request{Query: "sum two numbers", K: 2})

	// Then its file ranks first and scores descend
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "math.py", results[0].FilePath)
	assert.GreaterOrEqual(t, results[0].Score, results[1].Score)
	assert.Equal(t, "def add(a, b):\n    return a + b", results[0].Content)
}

func TestSearcher_ReadsFreshContentWithContext(t *testing.T) {
	// Given a hit on lines 5-6 of a ten-line file
	f := newSearchFixture(t)
	f.add(t, "notes.txt", numbered(10), 5, 6, "line five six")

	// When searching with context
	s := f.searcher(t, Config{ContextLines: 3})
	results, err := s.Search(context.Background(), Request{Query: "line", IncludeContext: true})
	require.NoError(t, err)

	// Then the chunk lines and three lines on each side are returned
	require.Len(t, results, 1)
	assert.Equal(t, "line 5\nline 6", results[0].Content)
	assert.Equal(t, "line 2\nline 3\nline 4", results[0].ContextBefore)
	assert.Equal(t, "line 7\nline 8\nline 9", results[0].ContextAfter)

	// And without context only the chunk is returned
	results, err = s.Search(context.Background(), Request{Query: "line"})
	require.NoError(t, err)
	assert.Empty(t, results[0].ContextBefore)
	assert.Empty(t, results[0].ContextAfter)
}

func TestSearcher_ContextClippedToFileBounds(t *testing.T) {
	f := newSearchFixture(t)
	f.add(t, "short.txt", numbered(3), 1, 2, "short")

	results, err := f.searcher(t, Config{ContextLines: 5}).Search(context.Background(),
		Request{Query: "short", IncludeContext: true})

	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Empty(t, results[0].ContextBefore)
	assert.Equal(t, "line 3", results[0].ContextAfter)
}

func TestSearcher_TruncatesLongContent(t *testing.T) {
	// Given a hit on a single 5000-character line
	f := newSearchFixture(t)
	f.add(t, "long.txt", strings.Repeat("x", 5000)+"\n", 1, 1, "long line")

	// When searching with a 3000-character cap
	results, err := f.searcher(t, Config{MaxContentChars: 3000}).Search(context.Background(), Request{Query: "long"})

	// Then the result is kept, cut and marked
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, results[0].Truncated)
	assert.True(t, strings.HasSuffix(results[0].Content, TruncationMarker))
	assert.Len(t, results[0].Content, 3000+len(TruncationMarker))
}

func TestSearcher_MissingFileReplacedByNextCandidate(t *testing.T) {
	// Given three indexed files, the best match deleted from disk
	f := newSearchFixture(t)
	f.add(t, "a.go", "func Add() {}\n", 1, 1, "add numbers sum")
	f.add(t, "b.go", "func Sum() {}\n", 1, 1, "sum numbers total")
	f.add(t, "c.go", "func Parse() {}\n", 1, 1, "parse config")
	require.NoError(t, os.Remove(filepath.Join(f.root, "a.go")))

	// When asking for two results
	results, err := f.searcher(t, DefaultConfig()).Search(context.Background(), Request{Query: "add numbers sum", K: 2})

	// Then the deleted file is skipped and two live results are returned
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, r := range results {
		assert.NotEqual(t, "a.go", r.FilePath)
	}
}

func TestSearcher_ClampsK(t *testing.T) {
	f := newSearchFixture(t)
	for i := 0; i < 8; i++ {
		f.add(t, fmt.Sprintf("f%d.txt", i), "content\n", 1, 1, fmt.Sprintf("topic %d", i))
	}
	s := f.searcher(t, Config{DefaultTopK: 3, MaxTopK: 5})

	results, err := s.Search(context.Background(), Request{Query: "topic"})
	require.NoError(t, err)
	assert.Len(t, results, 3)

	results, err = s.Search(context.Background(), Request{Query: "topic", K: 100})
	require.NoError(t, err)
	assert.Len(t, results, 5)
}

func TestSearcher_EmptyQuery(t *testing.T) {
	f := newSearchFixture(t)
	_, err := f.searcher(t, DefaultConfig()).Search(context.Background(), Request{Query: "   "})
	require.Error(t, err)
	assert.Equal(t, cserrors.ErrCodeQueryEmpty, cserrors.GetCode(err))
}

func TestSearcher_EmptyIndexReturnsNoResults(t *testing.T) {
	f := newSearchFixture(t)
	results, err := f.searcher(t, DefaultConfig()).Search(context.Background(), Request{Query: "anything"})
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Zero(t, f.embedder.Calls())
}

func TestSearcher_DimensionMismatch(t *testing.T) {
	// Given an index built with 64-dimensional vectors
	f := newSearchFixture(t)
	f.add(t, "a.go", "func A() {}\n", 1, 1, "a")

	// When querying with a 32-dimensional embedder
	s, err := NewSearcher(f.root, embedtest.NewCounting(32), f.store, DefaultConfig())
	require.NoError(t, err)
	_, err = s.Search(context.Background(), Request{Query: "a"})

	// Then the mismatch is surfaced
	require.Error(t, err)
	assert.ErrorIs(t, err, cserrors.ErrDimensionMismatch)
}

func TestSearcher_FiltersByScope(t *testing.T) {
	f := newSearchFixture(t)
	f.add(t, "pkg/a.go", "func A() {}\n", 1, 1, "handler")
	f.add(t, "cmd/b.go", "func B() {}\n", 1, 1, "handler")

	results, err := f.searcher(t, DefaultConfig()).Search(context.Background(),
		Request{Query: "handler", Scopes: []string{"cmd"}})

	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "cmd/b.go", results[0].FilePath)
}

func TestSearcher_FileShrunkBelowHitIsSkipped(t *testing.T) {
	f := newSearchFixture(t)
	f.add(t, "a.txt", numbered(10), 8, 10, "tail")
	require.NoError(t, os.WriteFile(filepath.Join(f.root, "a.txt"), []byte("one\n"), 0o644))

	results, err := f.searcher(t, DefaultConfig()).Search(context.Background(), Request{Query: "tail"})
	require.NoError(t, err)
	assert.Empty(t, results)
}

// racingStore runs a hook before the numbered Query call, standing in for an
// index pass that writes while a search is walking candidates.
type racingStore struct {
	*store.SQLiteStore
	calls  int
	before map[int]func()
}

func (r *racingStore) Query(ctx context.Context, vector []float32, k int) ([]store.Match, error) {
	r.calls++
	if fn := r.before[r.calls]; fn != nil {
		fn()
	}
	return r.SQLiteStore.Query(ctx, vector, k)
}

// tilted returns q turned away from itself so its cosine with q is
// 1/sqrt(1+t*t).
func tilted(q []float32, t float32) []float32 {
	var norm float64
	for _, x := range q {
		norm += float64(x) * float64(x)
	}
	norm = math.Sqrt(norm)
	unit := make([]float32, len(q))
	for i, x := range q {
		unit[i] = float32(float64(x) / norm)
	}

	// Orthogonal direction: the axis q leans on least, minus its projection.
	axis := 0
	for i := range unit {
		if math.Abs(float64(unit[i])) < math.Abs(float64(unit[axis])) {
			axis = i
		}
	}
	ortho := make([]float32, len(q))
	ortho[axis] = 1
	for i := range ortho {
		ortho[i] -= unit[axis] * unit[i]
	}
	var on float64
	for _, x := range ortho {
		on += float64(x) * float64(x)
	}
	on = math.Sqrt(on)

	out := make([]float32, len(q))
	for i := range out {
		out[i] = unit[i] + t*float32(float64(ortho[i])/on)
	}
	return out
}

func chunkAt(file string, start, end int, vec []float32) store.VectorRecord {
	return store.VectorRecord{
		ID: store.RecordID(file, start, end), FilePath: file, StartLine: start, EndLine: end,
		Type: "function", ContentHash: fmt.Sprintf("%s-%d-%d", file, start, end), Vector: vec,
	}
}

func TestSearcher_WriteBetweenWindowsNeverMixesFileVersions(t *testing.T) {
	// Given a live file whose one chunk ranks first, followed by eight hits
	// on deleted files that exhaust the first candidate window
	f := newSearchFixture(t)
	ctx := context.Background()
	require.NoError(t, os.WriteFile(filepath.Join(f.root, "target.go"), []byte(numbered(10)), 0o644))
	q, err := embed.EmbedOne(ctx, f.embedder, "target")
	require.NoError(t, err)
	upsert := func(file string, records ...store.VectorRecord) {
		require.NoError(t, f.store.Upsert(ctx, file, records))
	}
	upsert("target.go", chunkAt("target.go", 1, 2, tilted(q, 0)))
	for i := range 8 {
		ghost := fmt.Sprintf("gone%d.go", i)
		upsert(ghost, chunkAt(ghost, 1, 1, tilted(q, 0.1*float32(i+1))))
	}

	// And a re-index of target.go that lands before the second window
	racing := &racingStore{SQLiteStore: f.store, before: map[int]func(){
		2: func() {
			upsert("target.go",
				chunkAt("target.go", 1, 5, tilted(q, 0.85)),
				chunkAt("target.go", 6, 10, tilted(q, 0.9)))
		},
	}}
	s, err := NewSearcher(f.root, f.embedder, racing, DefaultConfig())
	require.NoError(t, err)

	// When searching for three results
	results, err := s.Search(ctx, Request{Query: "target", K: 3})

	// Then only the new chunk set of target.go is returned
	require.NoError(t, err)
	ranges := make([]string, 0, len(results))
	for _, r := range results {
		ranges = append(ranges, fmt.Sprintf("%s:%d-%d", r.FilePath, r.StartLine, r.EndLine))
	}
	assert.Equal(t, []string{"target.go:1-5", "target.go:6-10"}, ranges)
	assert.Equal(t, 3, racing.calls)
}

func TestSearcher_SingleWindowKeptDespiteWrite(t *testing.T) {
	// Given a single window that covers the whole store
	f := newSearchFixture(t)
	ctx := context.Background()
	f.add(t, "a.go", numbered(4), 1, 2, "alpha")

	// And a write to another file landing before that window
	racing := &racingStore{SQLiteStore: f.store, before: map[int]func(){
		1: func() { f.add(t, "b.go", numbered(4), 1, 2, "beta") },
	}}
	s, err := NewSearcher(f.root, f.embedder, racing, DefaultConfig())
	require.NoError(t, err)

	// When searching
	results, err := s.Search(ctx, Request{Query: "alpha", K: 5})

	// Then the single consistent window is used without restarting
	require.NoError(t, err)
	assert.NotEmpty(t, results)
	assert.Equal(t, 1, racing.calls)
}

func TestSearcher_ContextSharesContentCap(t *testing.T) {
	// Given a hit on lines 5-6 of a ten-line file
	f := newSearchFixture(t)
	f.add(t, "notes.txt", numbered(10), 5, 6, "line five six")

	// When the cap leaves room for only part of four context lines a side
	results, err := f.searcher(t, Config{ContextLines: 4, MaxContentChars: 30}).Search(context.Background(),
		Request{Query: "line", IncludeContext: true})

	// Then chunk and context together stay within the cap
	require.NoError(t, err)
	require.Len(t, results, 1)
	r := results[0]
	assert.True(t, r.Truncated)
	assert.Equal(t, "line 5\nline 6", r.Content)
	assert.True(t, strings.HasSuffix(r.ContextBefore, "line 4"))
	assert.True(t, strings.HasPrefix(r.ContextAfter, "line 7"))
	after := strings.TrimSuffix(r.ContextAfter, TruncationMarker)
	assert.LessOrEqual(t, len(r.Content)+len(r.ContextBefore)+len(after), 30)
}

func TestSearcher_TruncatedContentLeavesNoRoomForContext(t *testing.T) {
	f := newSearchFixture(t)
	f.add(t, "notes.txt", numbered(10), 5, 6, "line five six")

	results, err := f.searcher(t, Config{ContextLines: 2, MaxContentChars: 10}).Search(context.Background(),
		Request{Query: "line", IncludeContext: true})

	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, results[0].Truncated)
	assert.Equal(t, "line 5\nlin"+TruncationMarker, results[0].Content)
	assert.Empty(t, results[0].ContextBefore)
	assert.Empty(t, results[0].ContextAfter)
}

func TestNewSearcher_RequiresDependencies(t *testing.T) {
	_, err := NewSearcher(".", nil, nil, DefaultConfig())
	assert.ErrorIs(t, err, ErrNilDependency)
}

func TestTruncate_RuneBoundary(t *testing.T) {
	out, cut := truncate("héllo", 2)
	assert.True(t, cut)
	assert.Equal(t, "h"+TruncationMarker, out)

	out, cut = truncate("short", 10)
	assert.False(t, cut)
	assert.Equal(t, "short", out)
}

func TestTruncateHead_KeepsTailOnRuneBoundary(t *testing.T) {
	out, cut := truncateHead("héllo", 4)
	assert.True(t, cut)
	assert.Equal(t, "llo", out)

	out, cut = truncateHead("tail", 0)
	assert.True(t, cut)
	assert.Empty(t, out)
}

func TestConfig_ClampK(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 5, cfg.ClampK(0))
	assert.Equal(t, 50, cfg.ClampK(500))
	assert.Equal(t, 7, cfg.ClampK(7))
}
