// Package async runs indexing passes in the background and tracks their
// progress for polling callers.
package async

import (
	"sync"
	"time"
)

// PassState is the lifecycle state of a background pass.
type PassState string

const (
	PassRunning PassState = "indexing"
	PassReady   PassState = "ready"
	PassFailed  PassState = "error"
	// PassCancelled keeps the files stored before cancellation indexed.
	PassCancelled PassState = "cancelled"
)

// Stage names reported by the indexing pipeline that get their own counters.
const (
	stageEmbedding = "embedding"
	stageStoring   = "storing"
)

// Outcome holds the counts of a finished pass.
type Outcome struct {
	FilesIndexed  int  `json:"files_indexed"`
	FilesRemoved  int  `json:"files_removed"`
	ChunksIndexed int  `json:"chunks_indexed"`
	CacheHits     int  `json:"cache_hits"`
	CacheMisses   int  `json:"cache_misses"`
	Failed        int  `json:"failed"`
	Excluded      int  `json:"excluded"`
	Stale         bool `json:"stale"`
}

// Snapshot is a copy of a pass's progress. Current and Total count the units
// of Stage: files, or chunks while embedding.
type Snapshot struct {
	Status         string   `json:"status"`
	Stage          string   `json:"stage,omitempty"`
	Current        int      `json:"current"`
	Total          int      `json:"total"`
	ProgressPct    float64  `json:"progress_pct"`
	ChunksEmbedded int      `json:"chunks_embedded"`
	ChunksToEmbed  int      `json:"chunks_to_embed"`
	FilesStored    int      `json:"files_stored"`
	ElapsedSeconds int      `json:"elapsed_seconds"`
	Error          string   `json:"error,omitempty"`
	Outcome        *Outcome `json:"outcome,omitempty"`
}

// Progress tracks one pass. Stage counters arrive from pipeline callbacks;
// the outcome is recorded when the pass returns.
type Progress struct {
	mu  sync.RWMutex
	now func() time.Time

	state          PassState
	stage          string
	current, total int
	chunksEmbedded int
	chunksToEmbed  int
	filesStored    int
	started        time.Time
	finished       time.Time
	err            string
	outcome        *Outcome
}

func newProgress(now func() time.Time) *Progress {
	return &Progress{now: now, state: PassRunning, started: now()}
}

// Observe records a pipeline progress report. Reports after the pass ended
// are ignored.
func (p *Progress) Observe(stage string, current, total int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != PassRunning {
		return
	}
	p.stage, p.current, p.total = stage, current, total
	switch stage {
	case stageEmbedding:
		p.chunksEmbedded, p.chunksToEmbed = current, total
	case stageStoring:
		p.filesStored = current
	}
}

// Record stores the outcome of the pass.
func (p *Progress) Record(o Outcome) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.outcome = &o
}

// finish moves the pass out of PassRunning once.
func (p *Progress) finish(state PassState, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != PassRunning {
		return
	}
	p.state, p.finished = state, p.now()
	if err != nil {
		p.err = err.Error()
	}
}

// Snapshot returns the current progress.
func (p *Progress) Snapshot() Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()

	end := p.finished
	if end.IsZero() {
		end = p.now()
	}
	s := Snapshot{
		Status:         string(p.state),
		Stage:          p.stage,
		Current:        p.current,
		Total:          p.total,
		ChunksEmbedded: p.chunksEmbedded,
		ChunksToEmbed:  p.chunksToEmbed,
		FilesStored:    p.filesStored,
		ElapsedSeconds: int(end.Sub(p.started).Seconds()),
		Error:          p.err,
	}
	switch {
	case p.state == PassReady:
		s.ProgressPct = 100
	case p.total > 0:
		s.ProgressPct = float64(p.current) / float64(p.total) * 100
	}
	if p.outcome != nil {
		o := *p.outcome
		s.Outcome = &o
	}
	return s
}
