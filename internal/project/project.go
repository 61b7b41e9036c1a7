// Package project manages ProjectIndexes: one isolated index per project
// directory, keyed by the fingerprint of its absolute path. It exposes the
// three public operations Index, Search and Status, and owns the lifecycle
// absent → building → ready | stale.
package project

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/Aman-CERP/codesearch/internal/async"
	"github.com/Aman-CERP/codesearch/internal/store"
)

// File names inside a project index directory.
const (
	indexDBFile = "index.db"
	cacheDBFile = "embeddings.db"
)

// State is the lifecycle state of a ProjectIndex.
type State string

const (
	StateAbsent   State = "absent"
	StateBuilding State = "building"
	StateReady    State = "ready"
	// StateStale is ready, but the last pass left some files unindexed.
	StateStale State = "stale"
)

// Status describes a project's index.
type Status struct {
	Root          string    `json:"root"`
	ProjectID     string    `json:"project_id"`
	IndexDir      string    `json:"index_dir"`
	Exists        bool      `json:"exists"`
	State         State     `json:"state"`
	LastIndexedAt time.Time `json:"last_indexed_at,omitzero"`
	ChunkCount    int       `json:"chunk_count"`
	FileCount     int       `json:"file_count"`
	Model         string    `json:"model,omitempty"`
	Dimensions    int       `json:"dimensions,omitempty"`
	// Task is the progress of a background pass started by this process.
	Task *async.Snapshot `json:"task,omitempty"`
}

// ProjectIndex is the open index of one project.
type ProjectIndex struct {
	root string
	id   string
	dir  string

	// mu guards store. Readers hold it for the whole query; a reset or a
	// reload swaps the store under the write lock.
	mu    sync.RWMutex
	store *store.SQLiteStore
	// generation is last_indexed_at as of the loaded snapshot. A different
	// value on disk means another process finished a pass.
	generation string
}

func (p *ProjectIndex) dbPath() string {
	return filepath.Join(p.dir, indexDBFile)
}

// Root returns the absolute project root.
func (p *ProjectIndex) Root() string { return p.root }

// ID returns the project fingerprint.
func (p *ProjectIndex) ID() string { return p.id }

// reset discards the stored index and opens an empty one. Caller holds mu.
func (p *ProjectIndex) reset(cfg store.Config) error {
	if err := p.store.Close(); err != nil {
		return err
	}
	if err := store.RemoveDatabase(p.dbPath()); err != nil {
		return err
	}
	st, err := store.Open(p.dbPath(), cfg)
	if err != nil {
		return err
	}
	p.store = st
	p.generation = ""
	return nil
}

// refresh reloads the snapshot when another process completed a pass since
// it was loaded. It never blocks on a local writer.
func (p *ProjectIndex) refresh(ctx context.Context, cfg store.Config) error {
	if isHeld(p.dir) {
		return nil
	}
	p.mu.RLock()
	current, err := p.store.GetState(ctx, store.StateKeyLastIndexedAt)
	stale := err == nil && current != p.generation
	p.mu.RUnlock()
	if !stale || !p.mu.TryLock() {
		return nil
	}
	defer p.mu.Unlock()

	st, err := store.Open(p.dbPath(), cfg)
	if err != nil {
		return err
	}
	_ = p.store.Close()
	p.store = st
	p.generation = current
	return nil
}

func (p *ProjectIndex) close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.store.Close()
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
