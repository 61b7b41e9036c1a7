package ui

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/codesearch/internal/index"
)

func TestPlainRenderer_StageLines(t *testing.T) {
	// Given: a plain renderer
	buf := &bytes.Buffer{}
	r := NewPlainRenderer(NewConfig(buf, WithProjectDir("/src/app")))
	require.NoError(t, r.Start(context.Background()))

	// When: a pass reports every stage
	r.Update(index.Progress{Stage: index.StageScanning})
	r.Update(index.Progress{Stage: index.StageChunking, Total: 4})
	r.Update(index.Progress{Stage: index.StageEmbedding, Total: 20})
	r.Update(index.Progress{Stage: index.StageStoring, Total: 4})
	r.Update(index.Progress{Stage: index.StageComplete})

	// Then: one header line per stage is printed without escape codes
	out := buf.String()
	assert.Contains(t, out, "Indexing /src/app\n")
	assert.Contains(t, out, "[CHUNK] Chunking 4 files\n")
	assert.Contains(t, out, "[EMBED] Embedding 20 chunks\n")
	assert.Contains(t, out, "[STORE] Storing 4 files\n")
	assert.NotContains(t, out, "DONE")
	assert.NotContains(t, out, "\x1b[")
}

func TestPlainRenderer_ThrottlesToTenthSteps(t *testing.T) {
	// Given: a chunking stage over 100 files
	buf := &bytes.Buffer{}
	r := NewPlainRenderer(NewConfig(buf))
	r.Update(index.Progress{Stage: index.StageChunking, Total: 100})

	// When: every file reports
	for i := 1; i <= 100; i++ {
		r.Update(index.Progress{Stage: index.StageChunking, Current: i, Total: 100, File: "f.go"})
	}

	// Then: only the header and ten progress lines are printed
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Len(t, lines, 11)
	assert.Equal(t, "[CHUNK] 10/100 files", lines[1])
	assert.Equal(t, "[CHUNK] 100/100 files", lines[10])
}

func TestPlainRenderer_Complete(t *testing.T) {
	// Given: a pass that skipped files
	buf := &bytes.Buffer{}
	r := NewPlainRenderer(NewConfig(buf))

	// When: completing it
	r.Complete(&index.Summary{
		FilesScanned: 10, FilesIndexed: 3, FilesRemoved: 1, ChunksIndexed: 12,
		CacheHitRate: 0.25, Duration: 1500 * time.Millisecond,
		Failures:  []index.FileFailure{{Path: "bad.go", Stage: index.StageChunking, Err: errors.New("unreadable")}},
		Oversized: []string{"huge.json"},
		Excluded:  []string{"logo.png"},
	})

	// Then: the counts, skipped files and staleness are reported
	out := buf.String()
	assert.Contains(t, out, "Indexed 3 of 10 files (12 chunks) in 1.5s")
	assert.Contains(t, out, "Removed 1 files, embedding cache hit rate 25.0%")
	assert.Contains(t, out, "SKIP bad.go (chunking: unreadable)")
	assert.Contains(t, out, "SKIP huge.json (too large)")
	assert.Contains(t, out, "SKIP logo.png (binary)")
	assert.Contains(t, out, "Index is stale")
}

func TestPlainRenderer_CleanPassIsNotStale(t *testing.T) {
	buf := &bytes.Buffer{}
	r := NewPlainRenderer(NewConfig(buf))

	r.Complete(&index.Summary{FilesScanned: 2, FilesIndexed: 2, CacheHitRate: 1})

	assert.NotContains(t, buf.String(), "stale")
	assert.NotContains(t, buf.String(), "SKIP")
}

func TestPlainRenderer_Fail(t *testing.T) {
	buf := &bytes.Buffer{}
	r := NewPlainRenderer(NewConfig(buf))

	r.Fail(errors.New("embedder down"))

	assert.Equal(t, "FAILED: embedder down\n", buf.String())
	assert.NoError(t, r.Stop())
}
