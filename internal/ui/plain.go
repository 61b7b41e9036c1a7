package ui

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/Aman-CERP/codesearch/internal/index"
)

// plainSteps is how many progress lines a stage prints at most.
const plainSteps = 10

// PlainRenderer prints one line per stage change and per tenth of a stage.
type PlainRenderer struct {
	mu      sync.Mutex
	out     io.Writer
	project string
	stage   Stage
	started bool
	step    int
}

// NewPlainRenderer creates a plain text renderer.
func NewPlainRenderer(cfg Config) *PlainRenderer {
	return &PlainRenderer{out: cfg.Output, project: cfg.ProjectDir}
}

// Start implements Renderer.
func (r *PlainRenderer) Start(context.Context) error {
	if r.project != "" {
		_, _ = fmt.Fprintf(r.out, "Indexing %s\n", r.project)
	}
	return nil
}

// Update implements Renderer.
func (r *PlainRenderer) Update(p index.Progress) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stage := StageOf(p.Stage)
	if stage == StageComplete {
		return
	}
	if !r.started || stage != r.stage {
		r.started, r.stage, r.step = true, stage, 0
		_, _ = fmt.Fprintf(r.out, "[%s] %s %d %s\n", stage.Icon(), stage, p.Total, stage.Unit())
		return
	}
	if p.Total <= 0 {
		return
	}
	step := p.Current * plainSteps / p.Total
	if step <= r.step {
		return
	}
	r.step = step
	_, _ = fmt.Fprintf(r.out, "[%s] %d/%d %s\n", stage.Icon(), p.Current, p.Total, stage.Unit())
}

// Complete implements Renderer.
func (r *PlainRenderer) Complete(s *index.Summary) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, line := range summaryLines(s) {
		_, _ = fmt.Fprintln(r.out, line)
	}
}

// Fail implements Renderer.
func (r *PlainRenderer) Fail(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, _ = fmt.Fprintf(r.out, "FAILED: %v\n", err)
}

// Stop implements Renderer.
func (r *PlainRenderer) Stop() error {
	return nil
}

// summaryLines renders a finished pass as plain lines.
func summaryLines(s *index.Summary) []string {
	lines := []string{
		fmt.Sprintf("Indexed %d of %d files (%d chunks) in %s",
			s.FilesIndexed, s.FilesScanned, s.ChunksIndexed, s.Duration.Round(time.Millisecond)),
		fmt.Sprintf("Removed %d files, embedding cache hit rate %.1f%%", s.FilesRemoved, s.CacheHitRate*100),
	}
	for _, f := range s.Failures {
		lines = append(lines, fmt.Sprintf("SKIP %s (%s: %v)", f.Path, f.Stage, f.Err))
	}
	for _, p := range s.Oversized {
		lines = append(lines, fmt.Sprintf("SKIP %s (too large)", p))
	}
	for _, p := range s.Excluded {
		lines = append(lines, fmt.Sprintf("SKIP %s (binary)", p))
	}
	if s.Stale() {
		lines = append(lines, "Index is stale: re-run index to retry skipped files")
	}
	return lines
}

var _ Renderer = (*PlainRenderer)(nil)
