package ui

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/codesearch/internal/project"
)

func fixedRenderer(buf *bytes.Buffer, now time.Time) *StatusRenderer {
	r := NewStatusRenderer(buf, true)
	r.now = func() time.Time { return now }
	return r
}

func TestStatusRenderer_Ready(t *testing.T) {
	// Given: a ready index
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	buf := &bytes.Buffer{}
	info := StatusInfo{
		Status: project.Status{
			Root: "/src/app", IndexDir: "/data/projects/abc", Exists: true, State: project.StateReady,
			FileCount: 3, ChunkCount: 17, Model: "static-384", Dimensions: 384,
			LastIndexedAt: now.Add(-2 * time.Hour),
		},
		IndexBytes:  2048,
		ActiveModel: "static-384",
	}

	// When: rendering
	require.NoError(t, fixedRenderer(buf, now).Render(info))

	// Then: the panel lists the index details
	out := buf.String()
	for _, want := range []string{"/src/app", "ready", "17", "static-384 (384 dims)", "2 hours ago", "2.0 KB", "/data/projects/abc"} {
		assert.Contains(t, out, want)
	}
	assert.NotContains(t, out, "re-index")
}

func TestStatusRenderer_ModelChanged(t *testing.T) {
	buf := &bytes.Buffer{}
	info := StatusInfo{
		Status:      project.Status{Root: "/p", Exists: true, State: project.StateReady, Model: "old", Dimensions: 64},
		ActiveModel: "new",
	}

	require.NoError(t, fixedRenderer(buf, time.Now()).Render(info))

	assert.Contains(t, buf.String(), "new, re-index with --force")
}

func TestStatusRenderer_Absent(t *testing.T) {
	buf := &bytes.Buffer{}

	require.NoError(t, fixedRenderer(buf, time.Now()).Render(StatusInfo{Status: project.Status{Root: "/p", State: project.StateAbsent}}))

	assert.Contains(t, buf.String(), "No index exists for /p.")
}

func TestStatusRenderer_JSON(t *testing.T) {
	buf := &bytes.Buffer{}
	info := StatusInfo{
		Status:     project.Status{Root: "/p", Exists: true, State: project.StateStale, FileCount: 2},
		IndexBytes: 10,
	}

	require.NoError(t, NewStatusRenderer(buf, true).RenderJSON(info))

	var got map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "/p", got["root"])
	assert.Equal(t, "stale", got["state"])
	assert.InDelta(t, 10, got["index_bytes"], 0)
	assert.NotContains(t, got, "last_indexed_at")
}

func TestFormatTime(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, "just now", formatTime(now.Add(-10*time.Second), now))
	assert.Equal(t, "1 minute ago", formatTime(now.Add(-time.Minute), now))
	assert.Equal(t, "5 minutes ago", formatTime(now.Add(-5*time.Minute), now))
	assert.Equal(t, "3 days ago", formatTime(now.Add(-72*time.Hour), now))
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "512 B", FormatBytes(512))
	assert.Equal(t, "1.5 KB", FormatBytes(1536))
	assert.Equal(t, "3.0 MB", FormatBytes(3*1024*1024))
	assert.Equal(t, "2.0 GB", FormatBytes(2*1024*1024*1024))
}
