package watcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOperation_String(t *testing.T) {
	tests := []struct {
		op   Operation
		want string
	}{
		{OpCreate, "CREATE"},
		{OpModify, "MODIFY"},
		{OpDelete, "DELETE"},
		{OpRename, "RENAME"},
		{Operation(99), "UNKNOWN"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.op.String())
		})
	}
}

func TestOptions_WithDefaults(t *testing.T) {
	assert.Equal(t, DefaultOptions(), Options{}.WithDefaults())

	got := Options{Debounce: 50 * time.Millisecond}.WithDefaults()
	assert.Equal(t, 50*time.Millisecond, got.Debounce)
	assert.Equal(t, DefaultOptions().BufferSize, got.BufferSize)
}

// goFilter reports only .go files and skips vendor directories.
type goFilter struct{}

func (goFilter) IsIndexable(rel string) bool { return filepath.Ext(rel) == ".go" }
func (goFilter) SkipsDir(name string) bool   { return name == "vendor" }

func startWatcher(t *testing.T, root string) *Watcher {
	t.Helper()
	w, err := New(goFilter{}, Options{Debounce: 20 * time.Millisecond})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Start(ctx, root) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	// Wait for the watches to be registered.
	require.Eventually(t, func() bool { return len(w.fs.WatchList()) > 0 }, 2*time.Second, 10*time.Millisecond)
	return w
}

func nextBatch(t *testing.T, w *Watcher) []FileEvent {
	t.Helper()
	select {
	case batch := <-w.Events():
		return batch
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for events")
		return nil
	}
}

func TestWatcher_ReportsIndexableFiles(t *testing.T) {
	// Given a watched directory
	root := t.TempDir()
	w := startWatcher(t, root)

	// When an indexable and a non-indexable file are written
	require.NoError(t, os.WriteFile(filepath.Join(root, "notes.bin"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "main.go"), []byte("package main"), 0o644))

	// Then only the indexable one is reported
	batch := nextBatch(t, w)
	require.Len(t, batch, 1)
	assert.Equal(t, "main.go", batch[0].Path)
	assert.Equal(t, OpCreate, batch[0].Operation)
}

func TestWatcher_ReportsDeletion(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "gone.go")
	require.NoError(t, os.WriteFile(path, []byte("package gone"), 0o644))
	w := startWatcher(t, root)

	require.NoError(t, os.Remove(path))

	batch := nextBatch(t, w)
	require.Len(t, batch, 1)
	assert.Equal(t, "gone.go", batch[0].Path)
	assert.Equal(t, OpDelete, batch[0].Operation)
}

func TestWatcher_WatchesNewSubdirectories(t *testing.T) {
	// Given a watched directory
	root := t.TempDir()
	w := startWatcher(t, root)

	// When a subdirectory is created and a file is later written inside it
	sub := filepath.Join(root, "pkg")
	require.NoError(t, os.Mkdir(sub, 0o755))
	first := nextBatch(t, w)
	require.NotEmpty(t, first)
	assert.True(t, first[0].IsDir)

	require.NoError(t, os.WriteFile(filepath.Join(sub, "lib.go"), []byte("package pkg"), 0o644))

	// Then the nested file is reported
	batch := nextBatch(t, w)
	paths := make([]string, 0, len(batch))
	for _, ev := range batch {
		paths = append(paths, ev.Path)
	}
	assert.Contains(t, paths, "pkg/lib.go")
}

func TestWatcher_SkipsExcludedDirectories(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, "vendor"), 0o755))
	w := startWatcher(t, root)

	assert.NotContains(t, w.fs.WatchList(), filepath.Join(root, "vendor"))
}

func TestWatcher_StartRejectsMissingRoot(t *testing.T) {
	w, err := New(nil, DefaultOptions())
	require.NoError(t, err)
	defer func() { _ = w.Stop() }()

	err = w.Start(context.Background(), filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

func TestWatcher_StopClosesChannels(t *testing.T) {
	w, err := New(nil, DefaultOptions())
	require.NoError(t, err)

	require.NoError(t, w.Stop())
	require.NoError(t, w.Stop())

	_, ok := <-w.Events()
	assert.False(t, ok)
	_, ok = <-w.Errors()
	assert.False(t, ok)
}

func TestReindex_FoldsQueuedBatches(t *testing.T) {
	// Given three batches already queued
	batches := make(chan []FileEvent, 3)
	for _, p := range []string{"a.go", "b.go", "c.go"} {
		batches <- []FileEvent{{Path: p, Operation: OpModify}}
	}
	close(batches)

	// When reindexing from them
	var passes atomic.Int32
	err := Reindex(context.Background(), batches, func(context.Context) error {
		passes.Add(1)
		return nil
	})

	// Then one pass covers all of them
	require.NoError(t, err)
	assert.Equal(t, int32(1), passes.Load())
}

func TestReindex_ContinuesAfterFailure(t *testing.T) {
	// Given an index function that always fails
	batches := make(chan []FileEvent)
	ran := make(chan struct{}, 2)
	done := make(chan error, 1)
	go func() {
		done <- Reindex(context.Background(), batches, func(context.Context) error {
			ran <- struct{}{}
			return errors.New("embedder down")
		})
	}()

	// When two batches arrive one after the other
	batches <- []FileEvent{{Path: "a.go"}}
	<-ran
	batches <- []FileEvent{{Path: "b.go"}}
	<-ran
	close(batches)

	// Then both ran and the loop ended cleanly
	require.NoError(t, <-done)
}

func TestReindex_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Reindex(ctx, make(chan []FileEvent), func(context.Context) error { return nil })

	assert.ErrorIs(t, err, context.Canceled)
}
