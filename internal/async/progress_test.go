package async

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock advances only when told to.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTestProgress() (*Progress, *fakeClock) {
	clock := &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	return newProgress(clock.now), clock
}

func TestProgress_StartsRunning(t *testing.T) {
	p, _ := newTestProgress()

	snap := p.Snapshot()

	assert.Equal(t, string(PassRunning), snap.Status)
	assert.Empty(t, snap.Stage)
	assert.Zero(t, snap.ProgressPct)
	assert.Nil(t, snap.Outcome)
}

func TestProgress_ObserveKeepsStageCounters(t *testing.T) {
	// Given a pass that has chunked, embedded and started storing
	p, _ := newTestProgress()
	p.Observe("chunking", 10, 10)
	p.Observe("embedding", 30, 120)
	p.Observe("embedding", 120, 120)
	p.Observe("storing", 3, 10)

	// When taking a snapshot
	snap := p.Snapshot()

	// Then the current stage drives the percentage and earlier counters survive
	assert.Equal(t, "storing", snap.Stage)
	assert.Equal(t, 3, snap.Current)
	assert.Equal(t, 10, snap.Total)
	assert.InDelta(t, 30.0, snap.ProgressPct, 0.01)
	assert.Equal(t, 120, snap.ChunksEmbedded)
	assert.Equal(t, 120, snap.ChunksToEmbed)
	assert.Equal(t, 3, snap.FilesStored)
}

func TestProgress_FinishFreezesElapsedAndIgnoresLateReports(t *testing.T) {
	// Given a pass that ran for five seconds and failed
	p, clock := newTestProgress()
	p.Observe("embedding", 5, 50)
	clock.advance(5 * time.Second)
	p.finish(PassFailed, errors.New("embedder unavailable"))

	// When time passes and a stale report arrives
	clock.advance(time.Minute)
	p.Observe("storing", 1, 1)
	p.finish(PassReady, nil)
	snap := p.Snapshot()

	// Then the failure stands as it was
	assert.Equal(t, string(PassFailed), snap.Status)
	assert.Equal(t, "embedder unavailable", snap.Error)
	assert.Equal(t, "embedding", snap.Stage)
	assert.Equal(t, 5, snap.ElapsedSeconds)
}

func TestProgress_ReadyPassReportsOutcome(t *testing.T) {
	p, _ := newTestProgress()
	p.Observe("storing", 2, 4)
	p.Record(Outcome{FilesIndexed: 2, ChunksIndexed: 9, CacheHits: 3, CacheMisses: 6, Excluded: 1})
	p.finish(PassReady, nil)

	snap := p.Snapshot()

	assert.InDelta(t, 100.0, snap.ProgressPct, 0.01)
	require.NotNil(t, snap.Outcome)
	assert.Equal(t, 2, snap.Outcome.FilesIndexed)
	assert.Equal(t, 6, snap.Outcome.CacheMisses)
	assert.Equal(t, 1, snap.Outcome.Excluded)
	assert.False(t, snap.Outcome.Stale)

	// And the snapshot does not alias the tracker
	snap.Outcome.FilesIndexed = 99
	assert.Equal(t, 2, p.Snapshot().Outcome.FilesIndexed)
}

func TestProgress_ConcurrentObserveAndSnapshot(t *testing.T) {
	p, _ := newTestProgress()
	var wg sync.WaitGroup
	for w := range 4 {
		wg.Go(func() {
			for i := range 100 {
				p.Observe("chunking", i, 100+w)
				_ = p.Snapshot()
			}
		})
	}
	wg.Wait()

	snap := p.Snapshot()
	assert.Equal(t, "chunking", snap.Stage)
	assert.LessOrEqual(t, snap.Current, snap.Total)
}
