package embed

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	cserrors "github.com/Aman-CERP/codesearch/internal/errors"
	"github.com/Aman-CERP/codesearch/internal/store"
)

const cacheSchema = `
CREATE TABLE IF NOT EXISTS embeddings (
    hash TEXT NOT NULL,
    model TEXT NOT NULL,
    dims INTEGER NOT NULL,
    vector BLOB NOT NULL,
    PRIMARY KEY (hash, model)
);
`

// CacheOptions configures an EmbeddingCache.
type CacheOptions struct {
	// Path of the cache database. Empty keeps the cache in memory only.
	Path string
	// Model and Dimensions identify the active embedder; rows written by any
	// other model or at any other size are ignored.
	Model      string
	Dimensions int
	// MaxEntries bounds the cache with LRU eviction. Zero is unbounded.
	MaxEntries int
}

// CacheStats is a point-in-time view of an EmbeddingCache.
type CacheStats struct {
	Entries int
	Pending int
	Hits    int64
	Misses  int64
	Evicted int64
}

// EmbeddingCache maps chunk content hashes to vectors. Entries are loaded
// once on open, added by Store, and written back by Flush. One mutex guards
// the table and the pending writes, so Flush never interleaves with Store.
type EmbeddingCache struct {
	mu   sync.Mutex
	db   *sql.DB
	opts CacheOptions

	entries map[string][]float32          // unbounded mode
	bounded *lru.Cache[string, []float32] // MaxEntries > 0

	pending map[string][]float32
	evicted map[string]struct{}

	hits, misses, evictions int64
}

// OpenCache opens or creates the cache at opts.Path. A corrupt or unreadable
// file is logged, discarded and replaced by an empty cache.
func OpenCache(ctx context.Context, opts CacheOptions) (*EmbeddingCache, error) {
	c := &EmbeddingCache{
		opts:    opts,
		pending: make(map[string][]float32),
		evicted: make(map[string]struct{}),
	}
	if opts.MaxEntries > 0 {
		bounded, err := lru.NewWithEvict[string, []float32](opts.MaxEntries, func(key string, _ []float32) {
			c.evicted[key] = struct{}{}
			delete(c.pending, key)
			c.evictions++
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create cache: %w", err)
		}
		c.bounded = bounded
	} else {
		c.entries = make(map[string][]float32)
	}

	if opts.Path == "" {
		return c, nil
	}

	db, reset, err := store.OpenChecked(opts.Path)
	if err != nil {
		return nil, cserrors.New(cserrors.ErrCodeCacheCorruption, "cannot open embedding cache", err).
			WithDetail("path", opts.Path)
	}
	if reset {
		slog.Warn("cache_corruption_detected",
			slog.String("path", opts.Path),
			slog.String("action", "rebuilt_empty"))
	}
	c.db = db

	if err := c.load(ctx); err != nil {
		// Readable as SQLite but not as a cache: start over.
		slog.Warn("cache_corruption_detected",
			slog.String("path", opts.Path),
			slog.String("error", err.Error()),
			slog.String("action", "rebuilt_empty"))
		_ = db.Close()
		if rmErr := store.RemoveDatabase(opts.Path); rmErr != nil {
			return nil, cserrors.New(cserrors.ErrCodeCacheCorruption, "cannot discard corrupt embedding cache", rmErr).
				WithDetail("path", opts.Path)
		}
		if c.db, err = store.OpenDB(opts.Path); err != nil {
			return nil, cserrors.New(cserrors.ErrCodeCacheCorruption, "cannot recreate embedding cache", err).
				WithDetail("path", opts.Path)
		}
		if _, err := c.db.ExecContext(ctx, cacheSchema); err != nil {
			_ = c.db.Close()
			return nil, cserrors.New(cserrors.ErrCodeCacheCorruption, "cannot recreate embedding cache", err).
				WithDetail("path", opts.Path)
		}
		c.reset()
	}
	return c, nil
}

func (c *EmbeddingCache) load(ctx context.Context) error {
	if _, err := c.db.ExecContext(ctx, cacheSchema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	rows, err := c.db.QueryContext(ctx,
		`SELECT hash, dims, vector FROM embeddings WHERE model = ?`, c.opts.Model)
	if err != nil {
		return fmt.Errorf("failed to read cache: %w", err)
	}
	defer func() { _ = rows.Close() }()

	loaded, skipped := 0, 0
	for rows.Next() {
		var (
			hash string
			dims int
			blob []byte
		)
		if err := rows.Scan(&hash, &dims, &blob); err != nil {
			return fmt.Errorf("failed to scan cache row: %w", err)
		}
		vec := store.DecodeVector(blob)
		if len(vec) != dims || (c.opts.Dimensions > 0 && dims != c.opts.Dimensions) {
			skipped++
			continue
		}
		c.put(hash, vec)
		loaded++
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to read cache: %w", err)
	}

	// Rows evicted while loading a bounded cache are deleted on the next flush.
	slog.Debug("cache_loaded",
		slog.String("model", c.opts.Model),
		slog.Int("entries", loaded),
		slog.Int("skipped", skipped))
	return nil
}

func (c *EmbeddingCache) reset() {
	if c.bounded != nil {
		c.bounded.Purge()
	} else {
		c.entries = make(map[string][]float32)
	}
	c.pending = make(map[string][]float32)
	c.evicted = make(map[string]struct{})
}

func (c *EmbeddingCache) put(hash string, vec []float32) {
	if c.bounded != nil {
		c.bounded.Add(hash, vec)
		return
	}
	c.entries[hash] = vec
}

func (c *EmbeddingCache) get(hash string) ([]float32, bool) {
	if c.bounded != nil {
		return c.bounded.Get(hash)
	}
	v, ok := c.entries[hash]
	return v, ok
}

// Lookup returns the vector stored for hash.
func (c *EmbeddingCache) Lookup(hash string) ([]float32, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	v, ok := c.get(hash)
	if ok {
		c.hits++
	} else {
		c.misses++
	}
	return v, ok
}

// Store records vec for hash, overwriting any previous vector. Vectors whose
// length differs from the cache dimension are not stored.
func (c *EmbeddingCache) Store(hash string, vec []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.opts.Dimensions == 0 {
		c.opts.Dimensions = len(vec)
	}
	if len(vec) != c.opts.Dimensions {
		slog.Debug("cache_store_skipped",
			slog.String("hash", hash),
			slog.Int("dimensions", len(vec)),
			slog.Int("expected", c.opts.Dimensions))
		return
	}
	c.put(hash, vec)
	c.pending[hash] = vec
	delete(c.evicted, hash)
}

// Flush writes stored entries and removes evicted ones in one transaction.
// Pending entries are kept when the write fails.
func (c *EmbeddingCache) Flush(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.db == nil || (len(c.pending) == 0 && len(c.evicted) == 0) {
		return nil
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return cserrors.New(cserrors.ErrCodeStoreFailed, "failed to begin cache flush", err)
	}
	defer func() { _ = tx.Rollback() }()

	if len(c.pending) > 0 {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT OR REPLACE INTO embeddings (hash, model, dims, vector) VALUES (?, ?, ?, ?)`)
		if err != nil {
			return cserrors.New(cserrors.ErrCodeStoreFailed, "failed to prepare cache flush", err)
		}
		defer func() { _ = stmt.Close() }()
		for hash, vec := range c.pending {
			if _, err := stmt.ExecContext(ctx, hash, c.opts.Model, len(vec), store.EncodeVector(vec)); err != nil {
				return cserrors.New(cserrors.ErrCodeStoreFailed, "failed to write cache entry", err)
			}
		}
	}
	for hash := range c.evicted {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM embeddings WHERE hash = ? AND model = ?`, hash, c.opts.Model); err != nil {
			return cserrors.New(cserrors.ErrCodeStoreFailed, "failed to delete evicted cache entry", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return cserrors.New(cserrors.ErrCodeStoreFailed, "failed to commit cache flush", err)
	}

	slog.Debug("cache_flushed",
		slog.Int("written", len(c.pending)),
		slog.Int("evicted", len(c.evicted)))
	c.pending = make(map[string][]float32)
	c.evicted = make(map[string]struct{})
	return nil
}

// Len returns the number of cached vectors.
func (c *EmbeddingCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.bounded != nil {
		return c.bounded.Len()
	}
	return len(c.entries)
}

// Stats returns counters since open.
func (c *EmbeddingCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := len(c.entries)
	if c.bounded != nil {
		n = c.bounded.Len()
	}
	return CacheStats{
		Entries: n,
		Pending: len(c.pending),
		Hits:    c.hits,
		Misses:  c.misses,
		Evicted: c.evictions,
	}
}

// Close flushes pending entries and closes the database.
func (c *EmbeddingCache) Close() error {
	flushErr := c.Flush(context.Background())

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.db == nil {
		return flushErr
	}
	err := c.db.Close()
	c.db = nil
	if flushErr != nil {
		return flushErr
	}
	return err
}
