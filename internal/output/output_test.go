package output

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Aman-CERP/codesearch/internal/search"
)

func TestWriter_Messages(t *testing.T) {
	tests := []struct {
		name  string
		write func(w *Writer)
		want  string
	}{
		{name: "status", write: func(w *Writer) { w.Status(">", "scanning") }, want: "> scanning\n"},
		{name: "status without icon", write: func(w *Writer) { w.Status("", "detail") }, want: "   detail\n"},
		{name: "success", write: func(w *Writer) { w.Successf("wrote %s", "config.yaml") }, want: "✓ wrote config.yaml\n"},
		{name: "warning", write: func(w *Writer) { w.Warningf("%d files skipped", 2) }, want: "! 2 files skipped\n"},
		{name: "error", write: func(w *Writer) { w.Error("failed") }, want: "✗ failed\n"},
		{name: "code", write: func(w *Writer) { w.Code("a\nb") }, want: "\n  a\n  b\n\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			tt.write(New(buf))
			assert.Equal(t, tt.want, buf.String())
		})
	}
}

func TestWriter_SearchResults(t *testing.T) {
	// Given: a result with surrounding context
	buf := &bytes.Buffer{}
	results := []search.Result{{
		FilePath: "math.py", StartLine: 3, EndLine: 4, Score: 0.875,
		ChunkType: "function", Name: "add",
		ContextBefore: "import os\n", Content: "def add(a, b):\n    return a + b", ContextAfter: "",
	}}

	// When: printing it
	New(buf).SearchResults("sum", results)

	// Then: lines are numbered from the first context line
	want := "1. math.py:3-4  score 0.875  function add\n" +
		"     2 | import os\n" +
		"     3 > def add(a, b):\n" +
		"     4 >     return a + b\n"
	assert.Equal(t, want, buf.String())
}

func TestWriter_SearchResults_Empty(t *testing.T) {
	buf := &bytes.Buffer{}

	New(buf).SearchResults("nothing", nil)

	assert.Equal(t, "No results for \"nothing\"\n", buf.String())
}
