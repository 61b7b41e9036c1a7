// Package index runs indexing passes: it chunks changed files, embeds the
// chunks the cache does not know yet, and replaces each file's vector records
// as one atomic set.
package index

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/codesearch/internal/chunk"
	"github.com/Aman-CERP/codesearch/internal/config"
	"github.com/Aman-CERP/codesearch/internal/embed"
	cserrors "github.com/Aman-CERP/codesearch/internal/errors"
	"github.com/Aman-CERP/codesearch/internal/fingerprint"
	"github.com/Aman-CERP/codesearch/internal/scanner"
	"github.com/Aman-CERP/codesearch/internal/store"
)

// Stage names a phase of an indexing pass.
type Stage string

const (
	StageScanning  Stage = "scanning"
	StageChunking  Stage = "chunking"
	StageEmbedding Stage = "embedding"
	StageStoring   Stage = "storing"
	StageComplete  Stage = "complete"
)

// Progress is reported while a pass runs. Current and Total count files,
// except during StageEmbedding where they count chunks.
type Progress struct {
	Stage   Stage
	Current int
	Total   int
	File    string
}

// ProgressFunc receives progress updates. Calls are serialized.
type ProgressFunc func(Progress)

// FileFailure is a file skipped by a pass. Its previous records are kept.
type FileFailure struct {
	Path  string
	Stage Stage
	Err   error
}

// MarshalJSON renders Err as its message.
func (f FileFailure) MarshalJSON() ([]byte, error) {
	msg := ""
	if f.Err != nil {
		msg = f.Err.Error()
	}
	return json.Marshal(struct {
		Path  string `json:"path"`
		Stage Stage  `json:"stage"`
		Error string `json:"error"`
	}{f.Path, f.Stage, msg})
}

// Summary describes a finished pass.
type Summary struct {
	FilesScanned  int `json:"files_scanned"`
	FilesChanged  int `json:"files_changed"`
	FilesIndexed  int `json:"files_indexed"`
	FilesRemoved  int `json:"files_removed"`
	ChunksIndexed int `json:"chunks_indexed"`
	CacheHits     int `json:"cache_hits"`
	CacheMisses   int `json:"cache_misses"`
	// CacheHitRate is hits over lookups in [0, 1]. A pass with nothing to
	// look up reports 1: no embedding had to be computed.
	CacheHitRate float64       `json:"cache_hit_rate"`
	Failures     []FileFailure `json:"failures,omitempty"`
	Oversized    []string      `json:"oversized,omitempty"`
	// Excluded files hold binary or non-UTF-8 content. They are recorded
	// with no chunks, so they stay unchanged until their content changes.
	Excluded     []string      `json:"excluded,omitempty"`
	Duration     time.Duration `json:"duration_ns"`
}

// Stale reports whether some files were left unindexed.
func (s *Summary) Stale() bool {
	return len(s.Failures) > 0
}

// Options sizes the worker pools.
type Options struct {
	// Workers bounds concurrent chunking, one file per task.
	Workers int
	// EmbedWorkers bounds concurrent embedding batches.
	EmbedWorkers int
	// BatchSize is the number of texts per embedding call.
	BatchSize int
}

// OptionsFromConfig derives pipeline options from the configuration.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Workers:      cfg.Index.Workers,
		EmbedWorkers: cfg.Index.EmbedWorkers,
		BatchSize:    cfg.Embeddings.BatchSize,
	}
}

func (o Options) withDefaults() Options {
	if o.Workers <= 0 {
		o.Workers = runtime.NumCPU()
	}
	if o.EmbedWorkers <= 0 {
		o.EmbedWorkers = 1
	}
	o.BatchSize = embed.ClampBatchSize(o.BatchSize)
	return o
}

// Dependencies are the collaborators of a Pipeline. All are required.
type Dependencies struct {
	Chunker  *chunk.Chunker
	Embedder embed.Embedder
	Cache    *embed.EmbeddingCache
	Vectors  store.VectorStore
	Files    store.FileRecordStore
}

// Pipeline executes indexing passes over change sets.
type Pipeline struct {
	chunker  *chunk.Chunker
	embedder embed.Embedder
	cache    *embed.EmbeddingCache
	vectors  store.VectorStore
	files    store.FileRecordStore
	opts     Options
}

// NewPipeline creates a Pipeline with injected dependencies.
func NewPipeline(deps Dependencies, opts Options) (*Pipeline, error) {
	if deps.Chunker == nil {
		return nil, fmt.Errorf("chunker is required")
	}
	if deps.Embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if deps.Cache == nil {
		return nil, fmt.Errorf("embedding cache is required")
	}
	if deps.Vectors == nil {
		return nil, fmt.Errorf("vector store is required")
	}
	if deps.Files == nil {
		return nil, fmt.Errorf("file record store is required")
	}
	return &Pipeline{
		chunker:  deps.Chunker,
		embedder: deps.Embedder,
		cache:    deps.Cache,
		vectors:  deps.Vectors,
		files:    deps.Files,
		opts:     opts.withDefaults(),
	}, nil
}

// fileWork is one changed file moving through a pass.
type fileWork struct {
	info    scanner.FileInfo
	hash    string
	chunks   []chunk.CodeChunk
	vectors  [][]float32
	failed   bool
	excluded bool
}

// reporter serializes progress callbacks from worker goroutines.
type reporter struct {
	mu sync.Mutex
	fn ProgressFunc
}

func (r *reporter) report(p Progress) {
	if r.fn == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fn(p)
}

// Run indexes changes. Per-file failures are collected in the summary and
// never abort the pass. An embedding or store failure aborts it, leaving the
// records of unwritten files untouched. The cache is flushed on every path.
func (p *Pipeline) Run(ctx context.Context, root string, changes *scanner.ChangeSet, progress ProgressFunc) (summary *Summary, err error) {
	start := time.Now()
	rep := &reporter{fn: progress}

	summary = &Summary{
		FilesScanned: changes.Scanned,
		FilesChanged: len(changes.Added) + len(changes.Modified),
	}
	for _, f := range changes.Oversized {
		summary.Oversized = append(summary.Oversized, f.Path)
	}
	for _, u := range changes.Unreadable {
		summary.Failures = append(summary.Failures, FileFailure{Path: u.Path, Stage: StageScanning, Err: u.Err})
	}

	defer func() {
		if flushErr := p.cache.Flush(context.WithoutCancel(ctx)); flushErr != nil {
			slog.Warn("cache_flush_failed", slog.String("error", flushErr.Error()))
			if err == nil {
				err = flushErr
			}
		}
	}()

	if dims := p.vectors.Dimensions(); dims > 0 && dims != p.embedder.Dimensions() {
		return nil, cserrors.DimensionMismatch(dims, p.embedder.Dimensions()).
			WithDetail("model", p.embedder.ModelName()).
			WithSuggestion("Re-index with --force after changing the embedding model")
	}

	work, err := p.chunkFiles(ctx, changes.Changed(), summary, rep)
	if err != nil {
		return nil, err
	}

	if err := p.embedChunks(ctx, work, summary, rep); err != nil {
		return nil, err
	}

	written, storeErr := p.storeFiles(ctx, work, summary, rep)

	// Records of written files are persisted even when the pass stops early,
	// so they are not re-embedded next time.
	writeCtx := context.WithoutCancel(ctx)
	if storeErr == nil {
		storeErr = p.removeFiles(ctx, changes.Removed, summary)
	}
	records := append(written, changes.Touched...)
	if len(records) > 0 {
		if putErr := p.files.PutFileRecords(writeCtx, records); putErr != nil && storeErr == nil {
			storeErr = cserrors.New(cserrors.ErrCodeStoreFailed, "failed to update file records", putErr)
		}
	}
	if storeErr != nil {
		return nil, storeErr
	}

	lookups := summary.CacheHits + summary.CacheMisses
	summary.CacheHitRate = 1
	if lookups > 0 {
		summary.CacheHitRate = float64(summary.CacheHits) / float64(lookups)
	}
	summary.Duration = time.Since(start)

	rep.report(Progress{Stage: StageComplete, Current: summary.FilesIndexed, Total: summary.FilesChanged})
	slog.Info("index_complete",
		slog.String("root", root),
		slog.Int("files_scanned", summary.FilesScanned),
		slog.Int("files_changed", summary.FilesChanged),
		slog.Int("files_removed", summary.FilesRemoved),
		slog.Int("chunks", summary.ChunksIndexed),
		slog.Int("cache_hits", summary.CacheHits),
		slog.Int("cache_misses", summary.CacheMisses),
		slog.Int("failures", len(summary.Failures)),
		slog.Int("excluded", len(summary.Excluded)),
		slog.Duration("duration", summary.Duration))
	return summary, nil
}

// chunkFiles reads and chunks files on a bounded pool, one file per task.
func (p *Pipeline) chunkFiles(ctx context.Context, files []scanner.FileInfo, summary *Summary, rep *reporter) ([]*fileWork, error) {
	work := make([]*fileWork, len(files))
	failures := make([]*FileFailure, len(files))
	var done atomic.Int32

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.Workers)
	for i, f := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			w := &fileWork{info: f}
			work[i] = w
			defer func() {
				rep.report(Progress{Stage: StageChunking, Current: int(done.Add(1)), Total: len(files), File: f.Path})
			}()

			content, err := os.ReadFile(f.AbsPath)
			if err != nil {
				w.failed = true
				failures[i] = &FileFailure{Path: f.Path, Stage: StageChunking, Err: cserrors.FileUnreadable(f.Path, err)}
				return nil
			}
			w.hash = fingerprint.Bytes(content)

			chunks, err := p.chunker.Chunk(gctx, f.Path, content)
			if errors.Is(err, chunk.ErrBinaryContent) {
				// Same content, same verdict: record it instead of retrying.
				w.excluded = true
				return nil
			}
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				w.failed = true
				failures[i] = &FileFailure{Path: f.Path, Stage: StageChunking, Err: err}
				return nil
			}
			w.chunks = chunks
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for i, f := range failures {
		if f != nil {
			p.recordFailure(summary, *f)
		}
		if w := work[i]; w != nil && w.excluded {
			slog.Info("file_skipped", slog.String("path", w.info.Path), slog.String("reason", "binary"))
			summary.Excluded = append(summary.Excluded, w.info.Path)
		}
	}
	return work, nil
}

// pendingText is a cache miss to embed. slots are the chunk positions that
// share its content hash.
type pendingText struct {
	hash  string
	text  string
	slots []slot
}

type slot struct {
	work  *fileWork
	index int
}

// embedChunks fills in a vector for every chunk of every file that chunked
// cleanly. Cached vectors are reused; each distinct miss is embedded once.
func (p *Pipeline) embedChunks(ctx context.Context, work []*fileWork, summary *Summary, rep *reporter) error {
	var misses []*pendingText
	byHash := make(map[string]*pendingText)

	for _, w := range work {
		if w.failed {
			continue
		}
		w.vectors = make([][]float32, len(w.chunks))
		for i, c := range w.chunks {
			if vec, ok := p.cache.Lookup(c.ContentHash); ok {
				w.vectors[i] = vec
				summary.CacheHits++
				continue
			}
			summary.CacheMisses++
			pt, ok := byHash[c.ContentHash]
			if !ok {
				pt = &pendingText{hash: c.ContentHash, text: fingerprint.EmbeddingText(c.Context, c.Content)}
				byHash[c.ContentHash] = pt
				misses = append(misses, pt)
			}
			pt.slots = append(pt.slots, slot{work: w, index: i})
		}
	}
	if len(misses) == 0 {
		return nil
	}

	var embedded atomic.Int32
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.EmbedWorkers)
	for start := 0; start < len(misses); start += p.opts.BatchSize {
		batch := misses[start:min(start+p.opts.BatchSize, len(misses))]
		g.Go(func() error {
			texts := make([]string, len(batch))
			for i, pt := range batch {
				texts[i] = pt.text
			}
			vecs, err := p.embedder.EmbedBatch(gctx, texts)
			if err != nil {
				return err
			}
			if len(vecs) != len(batch) {
				return cserrors.EmbeddingUnavailable(
					fmt.Sprintf("embedder returned %d vectors for %d texts", len(vecs), len(batch)), nil)
			}
			for i, pt := range batch {
				p.cache.Store(pt.hash, vecs[i])
				// Slots of one hash never appear in another batch.
				for _, s := range pt.slots {
					s.work.vectors[s.index] = vecs[i]
				}
			}
			rep.report(Progress{Stage: StageEmbedding, Current: int(embedded.Add(int32(len(batch)))), Total: len(misses)})
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, cserrors.ErrEmbeddingUnavailable) || errors.Is(err, cserrors.ErrDimensionMismatch) {
			return err
		}
		return cserrors.EmbeddingUnavailable("embedding batch failed", err)
	}
	return nil
}

// storeFiles replaces each file's records. It stops at the first file
// boundary after cancellation and returns the FileRecords of written files.
func (p *Pipeline) storeFiles(ctx context.Context, work []*fileWork, summary *Summary, rep *reporter) ([]store.FileRecord, error) {
	var written []store.FileRecord
	total := len(work)
	for i, w := range work {
		if w.failed {
			continue
		}
		if err := ctx.Err(); err != nil {
			return written, err
		}

		records := make([]store.VectorRecord, len(w.chunks))
		for j, c := range w.chunks {
			records[j] = store.VectorRecord{
				ID:          store.RecordID(c.FilePath, c.StartLine, c.EndLine),
				FilePath:    c.FilePath,
				StartLine:   c.StartLine,
				EndLine:     c.EndLine,
				Type:        c.Type.String(),
				Name:        c.Name,
				Context:     c.Context,
				ContentHash: c.ContentHash,
				Vector:      w.vectors[j],
			}
		}

		if err := p.vectors.Upsert(ctx, w.info.Path, records); err != nil {
			if errors.Is(err, cserrors.ErrDimensionMismatch) {
				return written, err
			}
			if ctx.Err() != nil {
				return written, ctx.Err()
			}
			p.recordFailure(summary, FileFailure{Path: w.info.Path, Stage: StageStoring, Err: err})
			continue
		}

		written = append(written, store.FileRecord{
			Path:        w.info.Path,
			ModTime:     w.info.ModTime.UnixNano(),
			Size:        w.info.Size,
			ContentHash: w.hash,
			Chunks:      len(records),
		})
		if !w.excluded {
			summary.FilesIndexed++
		}
		summary.ChunksIndexed += len(records)
		rep.report(Progress{Stage: StageStoring, Current: i + 1, Total: total, File: w.info.Path})
	}
	return written, nil
}

// removeFiles drops the records of files that no longer exist.
func (p *Pipeline) removeFiles(ctx context.Context, paths []string, summary *Summary) error {
	if len(paths) == 0 {
		return nil
	}
	removed := make([]string, 0, len(paths))
	for _, path := range paths {
		if err := p.vectors.Delete(ctx, path); err != nil {
			if ctx.Err() != nil {
				break
			}
			p.recordFailure(summary, FileFailure{Path: path, Stage: StageStoring, Err: err})
			continue
		}
		removed = append(removed, path)
	}
	if len(removed) > 0 {
		if err := p.files.DeleteFileRecords(context.WithoutCancel(ctx), removed); err != nil {
			return cserrors.New(cserrors.ErrCodeStoreFailed, "failed to delete file records", err)
		}
	}
	summary.FilesRemoved = len(removed)
	return ctx.Err()
}

func (p *Pipeline) recordFailure(summary *Summary, f FileFailure) {
	slog.Warn("file_skipped",
		slog.String("path", f.Path),
		slog.String("stage", string(f.Stage)),
		slog.String("error", f.Err.Error()))
	summary.Failures = append(summary.Failures, f)
}
