package project

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/Aman-CERP/codesearch/internal/async"
	"github.com/Aman-CERP/codesearch/internal/chunk"
	"github.com/Aman-CERP/codesearch/internal/config"
	"github.com/Aman-CERP/codesearch/internal/embed"
	cserrors "github.com/Aman-CERP/codesearch/internal/errors"
	"github.com/Aman-CERP/codesearch/internal/fingerprint"
	"github.com/Aman-CERP/codesearch/internal/index"
	"github.com/Aman-CERP/codesearch/internal/scanner"
	"github.com/Aman-CERP/codesearch/internal/search"
	"github.com/Aman-CERP/codesearch/internal/store"
	"github.com/Aman-CERP/codesearch/internal/telemetry"
)

// DefaultLockWait bounds how long Index waits for another pass on the same
// project before failing with ErrIndexLocked.
const DefaultLockWait = 2 * time.Second

// IndexTask is a background indexing pass.
type IndexTask = async.Task[*index.Summary]

// Option configures a Manager.
type Option func(*Manager)

// WithEmbedder makes the Manager use e instead of building one from the
// configuration. The Manager takes ownership and closes it.
func WithEmbedder(e embed.Embedder) Option {
	return func(m *Manager) {
		m.embedder = e
	}
}

// WithLockWait sets how long Index waits for the project lock.
func WithLockWait(d time.Duration) Option {
	return func(m *Manager) {
		m.lockWait = d
	}
}

// Manager opens ProjectIndexes on demand and runs the public operations on
// them. It is safe for concurrent use.
type Manager struct {
	cfg      *config.Config
	chunker  *chunk.Chunker
	detector *scanner.Detector
	lockWait time.Duration
	metrics  *telemetry.QueryMetrics

	mu            sync.Mutex
	embedder      embed.Embedder
	queryEmbedder embed.Embedder
	projects      map[string]*ProjectIndex
	tasks         map[string]*IndexTask
	closed        bool
}

// NewManager creates a Manager for cfg.
func NewManager(cfg *config.Config, opts ...Option) (*Manager, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, cserrors.ConfigError("invalid configuration", err)
	}
	sc, err := scanner.New(scanner.OptionsFromConfig(cfg))
	if err != nil {
		return nil, err
	}
	m := &Manager{
		cfg: cfg,
		chunker: chunk.New(chunk.Options{
			ChunkSize:    cfg.Index.ChunkSize,
			ChunkOverlap: cfg.Index.ChunkOverlap,
			MinChunkSize: cfg.Index.MinChunkSize,
		}),
		detector: scanner.NewDetector(sc, cfg.Index.Workers),
		lockWait: DefaultLockWait,
		metrics:  telemetry.NewQueryMetrics(),
		projects: make(map[string]*ProjectIndex),
		tasks:    make(map[string]*IndexTask),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Config returns the configuration the Manager was created with.
func (m *Manager) Config() *config.Config {
	return m.cfg
}

// Chunker returns the shared chunker.
func (m *Manager) Chunker() *chunk.Chunker {
	return m.chunker
}

// ResolveRoot returns the absolute project root for path. An empty path is
// the working directory.
func ResolveRoot(path string) (string, error) {
	if path == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", cserrors.New(cserrors.ErrCodeInvalidPath, "cannot determine working directory", err)
		}
		path = wd
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", cserrors.New(cserrors.ErrCodeInvalidPath, "invalid project path", err).WithDetail("path", path)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", cserrors.New(cserrors.ErrCodeInvalidPath, "project path does not exist", err).WithDetail("path", abs)
	}
	if !info.IsDir() {
		return "", cserrors.New(cserrors.ErrCodeInvalidPath, "project path is not a directory", nil).WithDetail("path", abs)
	}
	return abs, nil
}

// IndexDir returns the index directory of the project at root.
func (m *Manager) IndexDir(root string) string {
	return filepath.Join(m.cfg.IndexesDir(), fingerprint.Project(root))
}

func (m *Manager) storeConfig() store.Config {
	return store.Config{
		Backend:  m.cfg.Store.Backend,
		M:        m.cfg.Store.HNSWM,
		EfSearch: m.cfg.Store.HNSWEfSearch,
	}
}

// embedders returns the indexing embedder and its query-cached wrapper,
// creating them on first use.
func (m *Manager) embedders(ctx context.Context) (embed.Embedder, embed.Embedder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, nil, fmt.Errorf("manager is closed")
	}
	if m.embedder == nil {
		e, err := embed.NewEmbedder(ctx, m.cfg.Embeddings)
		if err != nil {
			return nil, nil, err
		}
		m.embedder = e
	}
	if m.queryEmbedder == nil {
		m.queryEmbedder = embed.NewCachedEmbedder(m.embedder, embed.DefaultQueryCacheSize)
	}
	return m.embedder, m.queryEmbedder, nil
}

// ModelName returns the model of the embedder used for indexing and queries.
func (m *Manager) ModelName(ctx context.Context) (string, error) {
	e, _, err := m.embedders(ctx)
	if err != nil {
		return "", err
	}
	return e.ModelName(), nil
}

// open returns the ProjectIndex for root. Without create, a project that was
// never indexed is reported as IndexNotFound.
func (m *Manager) open(root string, create bool) (*ProjectIndex, error) {
	id := fingerprint.Project(root)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, fmt.Errorf("manager is closed")
	}
	if p, ok := m.projects[id]; ok {
		return p, nil
	}

	p := &ProjectIndex{root: root, id: id, dir: m.IndexDir(root)}
	if !create && !fileExists(p.dbPath()) {
		return nil, cserrors.IndexNotFound(root)
	}
	if err := os.MkdirAll(p.dir, 0o755); err != nil {
		return nil, cserrors.New(cserrors.ErrCodeStoreFailed, "cannot create index directory", err).WithDetail("path", p.dir)
	}
	st, err := store.Open(p.dbPath(), m.storeConfig())
	if err != nil {
		return nil, err
	}
	p.store = st
	p.generation, _ = st.GetState(context.Background(), store.StateKeyLastIndexedAt)
	m.projects[id] = p
	return p, nil
}

// Index runs one indexing pass over the project at path. Only changed files
// are re-processed unless force is set. A pass already running on the same
// project, in this process or another, makes Index fail with ErrIndexLocked
// after the lock wait.
func (m *Manager) Index(ctx context.Context, path string, force bool, progress index.ProgressFunc) (*index.Summary, error) {
	root, err := ResolveRoot(path)
	if err != nil {
		return nil, err
	}
	embedder, _, err := m.embedders(ctx)
	if err != nil {
		return nil, err
	}

	lock := NewFileLock(m.IndexDir(root))
	acquired, err := lock.TryLockWait(ctx, m.lockWait)
	if err != nil {
		return nil, err
	}
	if !acquired {
		return nil, cserrors.New(cserrors.ErrCodeIndexLocked, "another indexing pass is running for this project", nil).
			WithDetail("root", root).
			WithSuggestion("Wait for the running pass to finish, or check index_status")
	}
	defer func() { _ = lock.Unlock() }()

	p, err := m.open(root, true)
	if err != nil {
		return nil, err
	}
	if err := m.prepare(ctx, p, embedder, force); err != nil {
		return nil, err
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	summary, err := m.run(ctx, p, embedder, force, progress)

	// Store writes below must land even if ctx was cancelled mid-pass.
	writeCtx := context.WithoutCancel(ctx)
	if err != nil {
		_ = p.store.SetState(writeCtx, store.StateKeyStale, "true")
		slog.Warn("index_failed",
			slog.String("root", root),
			slog.String("error", err.Error()))
		return nil, err
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	if err := p.store.SetState(writeCtx, store.StateKeyLastIndexedAt, now); err != nil {
		return nil, cserrors.New(cserrors.ErrCodeStoreFailed, "failed to record index time", err)
	}
	if err := p.store.SetState(writeCtx, store.StateKeyStale, strconv.FormatBool(summary.Stale())); err != nil {
		return nil, cserrors.New(cserrors.ErrCodeStoreFailed, "failed to record index state", err)
	}
	p.generation = now
	return summary, nil
}

// prepare checks the stored model against the embedder. A different model
// fails the pass unless force is set, in which case the index is rebuilt
// from scratch.
func (m *Manager) prepare(ctx context.Context, p *ProjectIndex, embedder embed.Embedder, force bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	model, err := p.store.GetState(ctx, store.StateKeyModel)
	if err != nil {
		return err
	}
	dims := p.store.Dimensions()
	if mismatch := (model != "" && model != embedder.ModelName()) || (dims > 0 && dims != embedder.Dimensions()); mismatch {
		if !force {
			return cserrors.New(cserrors.ErrCodeDimensionMismatch,
				fmt.Sprintf("index was built with %s (%d dimensions), current embedder is %s (%d dimensions)",
					model, dims, embedder.ModelName(), embedder.Dimensions()), nil).
				WithSuggestion("Re-index with --force to rebuild with the current embedder")
		}
		slog.Info("index_reset",
			slog.String("root", p.root),
			slog.String("old_model", model),
			slog.String("new_model", embedder.ModelName()))
		if err := p.reset(m.storeConfig()); err != nil {
			return err
		}
	}

	for key, value := range map[string]string{
		store.StateKeyRoot:      p.root,
		store.StateKeyModel:     embedder.ModelName(),
		store.StateKeyDimension: strconv.Itoa(embedder.Dimensions()),
	} {
		if err := p.store.SetState(ctx, key, value); err != nil {
			return cserrors.New(cserrors.ErrCodeStoreFailed, "failed to record index metadata", err)
		}
	}
	return nil
}

// run executes detection and the pipeline. Caller holds p.mu for reading.
func (m *Manager) run(ctx context.Context, p *ProjectIndex, embedder embed.Embedder, force bool, progress index.ProgressFunc) (*index.Summary, error) {
	cache, err := embed.OpenCache(ctx, embed.CacheOptions{
		Path:       filepath.Join(p.dir, cacheDBFile),
		Model:      embedder.ModelName(),
		Dimensions: embedder.Dimensions(),
		MaxEntries: m.cfg.Embeddings.CacheMaxEntries,
	})
	if err != nil {
		return nil, err
	}
	defer func() { _ = cache.Close() }()

	checker := index.NewConsistencyChecker(p.store, p.store)
	if check, err := checker.Check(ctx); err == nil && len(check.Inconsistencies) > 0 {
		if err := checker.Repair(ctx, check.Inconsistencies); err != nil {
			slog.Warn("index_repair_failed", slog.String("error", err.Error()))
		}
	}

	if progress != nil {
		progress(index.Progress{Stage: index.StageScanning})
	}
	records, err := p.store.FileRecords(ctx)
	if err != nil {
		return nil, cserrors.New(cserrors.ErrCodeStoreFailed, "failed to read file records", err)
	}
	changes, err := m.detector.Detect(ctx, p.root, records, force)
	if err != nil {
		return nil, err
	}
	if progress != nil {
		progress(index.Progress{Stage: index.StageScanning, Current: changes.Scanned, Total: changes.Scanned})
	}

	pipeline, err := index.NewPipeline(index.Dependencies{
		Chunker:  m.chunker,
		Embedder: embedder,
		Cache:    cache,
		Vectors:  p.store,
		Files:    p.store,
	}, index.OptionsFromConfig(m.cfg))
	if err != nil {
		return nil, err
	}
	return pipeline.Run(ctx, p.root, changes, progress)
}

// Search queries the index of the project at path. A project that was never
// indexed fails with ErrIndexNotFound, which is distinct from zero results.
func (m *Manager) Search(ctx context.Context, path string, req search.Request) ([]search.Result, error) {
	start := time.Now()
	results, err := m.search(ctx, path, req)
	m.metrics.Record(telemetry.QueryEvent{
		Query:       req.Query,
		ResultCount: len(results),
		Latency:     time.Since(start),
		Filtered:    len(req.Scopes) > 0 || req.Language != "" || req.ChunkType != "",
		Failed:      err != nil,
	})
	return results, err
}

// QueryMetrics returns search telemetry since the Manager was created.
func (m *Manager) QueryMetrics() *telemetry.Snapshot {
	return m.metrics.Snapshot()
}

func (m *Manager) search(ctx context.Context, path string, req search.Request) ([]search.Result, error) {
	root, err := ResolveRoot(path)
	if err != nil {
		return nil, err
	}
	p, err := m.open(root, false)
	if err != nil {
		return nil, err
	}
	if err := p.refresh(ctx, m.storeConfig()); err != nil {
		return nil, err
	}
	_, queryEmbedder, err := m.embedders(ctx)
	if err != nil {
		return nil, err
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.store.Count() == 0 && p.generation == "" {
		return nil, cserrors.IndexNotFound(root)
	}
	model, err := p.store.GetState(ctx, store.StateKeyModel)
	if err != nil {
		return nil, err
	}
	if model != "" && model != queryEmbedder.ModelName() {
		return nil, cserrors.New(cserrors.ErrCodeDimensionMismatch,
			fmt.Sprintf("index was built with %s, current embedder is %s", model, queryEmbedder.ModelName()), nil).
			WithSuggestion("Re-index with --force to rebuild with the current embedder")
	}

	searcher, err := search.NewSearcher(root, queryEmbedder, p.store, search.ConfigFromConfig(m.cfg),
		search.WithLanguageFunc(m.chunker.Language))
	if err != nil {
		return nil, err
	}
	return searcher.Search(ctx, req)
}

// Status reports the index of the project at path. It never creates one.
func (m *Manager) Status(ctx context.Context, path string) (*Status, error) {
	root, err := ResolveRoot(path)
	if err != nil {
		return nil, err
	}
	status := &Status{
		Root:      root,
		ProjectID: fingerprint.Project(root),
		IndexDir:  m.IndexDir(root),
		State:     StateAbsent,
	}
	if task := m.Task(root); task != nil {
		snap := task.Progress()
		status.Task = &snap
	}
	building := isHeld(status.IndexDir) || (status.Task != nil && status.Task.Status == string(async.PassRunning))

	p, err := m.open(root, false)
	if errors.Is(err, cserrors.ErrIndexNotFound) {
		if building {
			status.State = StateBuilding
		}
		return status, nil
	}
	if err != nil {
		return nil, err
	}
	if err := p.refresh(ctx, m.storeConfig()); err != nil {
		return nil, err
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	lastIndexed, err := p.store.GetState(ctx, store.StateKeyLastIndexedAt)
	if err != nil {
		return nil, err
	}
	staleFlag, err := p.store.GetState(ctx, store.StateKeyStale)
	if err != nil {
		return nil, err
	}
	status.Model, _ = p.store.GetState(ctx, store.StateKeyModel)
	status.Dimensions = p.store.Dimensions()
	status.ChunkCount = p.store.Count()
	if status.FileCount, err = p.store.FileCount(ctx); err != nil {
		return nil, err
	}
	if lastIndexed != "" {
		status.LastIndexedAt, _ = time.Parse(time.RFC3339Nano, lastIndexed)
	}
	status.Exists = lastIndexed != "" || status.ChunkCount > 0

	switch {
	case building:
		status.State = StateBuilding
	case !status.Exists:
		status.State = StateAbsent
	case staleFlag == "true":
		status.State = StateStale
	default:
		status.State = StateReady
	}
	return status, nil
}

// StartIndex runs Index in the background. While a task for the same project
// is still running it is returned instead of starting another one.
func (m *Manager) StartIndex(ctx context.Context, path string, force bool) (*IndexTask, error) {
	root, err := ResolveRoot(path)
	if err != nil {
		return nil, err
	}
	id := fingerprint.Project(root)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, fmt.Errorf("manager is closed")
	}
	if task, ok := m.tasks[id]; ok && task.Running() {
		return task, nil
	}
	task := async.Start(ctx, func(ctx context.Context, progress *async.Progress) (*index.Summary, error) {
		summary, err := m.Index(ctx, root, force, TrackProgress(progress))
		if summary != nil {
			progress.Record(OutcomeOf(summary))
		}
		return summary, err
	})
	m.tasks[id] = task
	return task, nil
}

// Task returns the latest background task for the project at root, or nil.
func (m *Manager) Task(root string) *IndexTask {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tasks[fingerprint.Project(root)]
}

// TrackProgress adapts pipeline progress to a background task tracker.
func TrackProgress(progress *async.Progress) index.ProgressFunc {
	return func(p index.Progress) {
		if p.Stage == index.StageComplete {
			return
		}
		progress.Observe(string(p.Stage), p.Current, p.Total)
	}
}

// OutcomeOf condenses a pass summary for task polling.
func OutcomeOf(s *index.Summary) async.Outcome {
	return async.Outcome{
		FilesIndexed:  s.FilesIndexed,
		FilesRemoved:  s.FilesRemoved,
		ChunksIndexed: s.ChunksIndexed,
		CacheHits:     s.CacheHits,
		CacheMisses:   s.CacheMisses,
		Failed:        len(s.Failures),
		Excluded:      len(s.Excluded),
		Stale:         s.Stale(),
	}
}

// Close cancels background tasks, waits for them and closes every open
// index and the embedder.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	tasks := make([]*IndexTask, 0, len(m.tasks))
	for _, t := range m.tasks {
		tasks = append(tasks, t)
	}
	m.mu.Unlock()

	for _, t := range tasks {
		t.Cancel()
		_, _ = t.Wait()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	var errs []error
	for _, p := range m.projects {
		if err := p.close(); err != nil {
			errs = append(errs, err)
		}
	}
	m.projects = make(map[string]*ProjectIndex)
	if m.embedder != nil {
		if err := m.embedder.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
