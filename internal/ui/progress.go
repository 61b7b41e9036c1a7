package ui

import (
	"sync"
	"time"

	"github.com/Aman-CERP/codesearch/internal/index"
)

// speedInterval is how often throughput is sampled.
const speedInterval = 500 * time.Millisecond

// etaSmoothingFactor is the weight of a new ETA estimate against the
// previous one.
const etaSmoothingFactor = 0.3

// ProgressTracker folds pipeline progress into per-stage counters, speed
// and ETA. It is safe for concurrent use.
type ProgressTracker struct {
	mu          sync.Mutex
	stage       Stage
	current     int
	total       int
	currentFile string
	startTime   time.Time
	stageStart  time.Time
	lastETA     time.Duration

	lastCurrent   int
	lastSpeedCalc time.Time
	speed         SpeedStats
	speedSamples  int
	sparkline     *Sparkline

	now func() time.Time
}

// SpeedStats is throughput in items per second.
type SpeedStats struct {
	Current float64
	Avg     float64
	Peak    float64
}

// ProgressStats is a snapshot of a ProgressTracker.
type ProgressStats struct {
	Stage       Stage
	Current     int
	Total       int
	Progress    float64
	ETA         time.Duration
	Elapsed     time.Duration
	CurrentFile string
	Speed       SpeedStats
}

// NewProgressTracker creates a tracker in the scanning stage.
func NewProgressTracker() *ProgressTracker {
	return newProgressTracker(time.Now)
}

func newProgressTracker(now func() time.Time) *ProgressTracker {
	t := now()
	return &ProgressTracker{
		stage:         StageScanning,
		startTime:     t,
		stageStart:    t,
		lastSpeedCalc: t,
		sparkline:     NewSparkline(60),
		now:           now,
	}
}

// Observe applies one pipeline progress report.
func (p *ProgressTracker) Observe(pr index.Progress) {
	stage := StageOf(pr.Stage)

	p.mu.Lock()
	defer p.mu.Unlock()
	if stage != p.stage {
		p.setStage(stage, pr.Total)
	}
	p.total = pr.Total
	p.update(pr.Current, pr.File)
}

// SetStage moves to stage and resets the counters.
func (p *ProgressTracker) SetStage(stage Stage, total int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.setStage(stage, total)
}

func (p *ProgressTracker) setStage(stage Stage, total int) {
	now := p.now()
	p.stage = stage
	p.total = total
	p.current = 0
	p.currentFile = ""
	p.stageStart = now
	p.lastETA = 0
	p.lastCurrent = 0
	p.lastSpeedCalc = now
	p.speed = SpeedStats{}
	p.speedSamples = 0
	p.sparkline.Clear()
}

// Update sets the count within the current stage.
func (p *ProgressTracker) Update(current int, file string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.update(current, file)
}

func (p *ProgressTracker) update(current int, file string) {
	p.current = current
	if file != "" {
		p.currentFile = file
	}

	now := p.now()
	elapsed := now.Sub(p.lastSpeedCalc)
	if elapsed < speedInterval {
		return
	}
	if delta := current - p.lastCurrent; delta > 0 {
		speed := float64(delta) / elapsed.Seconds()
		p.speed.Current = speed
		p.speedSamples++
		if p.speedSamples == 1 {
			p.speed.Avg = speed
		} else {
			p.speed.Avg = 0.2*speed + 0.8*p.speed.Avg
		}
		p.speed.Peak = max(p.speed.Peak, speed)
		p.sparkline.Add(speed)
	}
	p.lastCurrent = current
	p.lastSpeedCalc = now
}

// Stats returns a snapshot.
func (p *ProgressTracker) Stats() ProgressStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	return ProgressStats{
		Stage:       p.stage,
		Current:     p.current,
		Total:       p.total,
		Progress:    p.fraction(),
		ETA:         p.eta(),
		Elapsed:     p.now().Sub(p.startTime),
		CurrentFile: p.currentFile,
		Speed:       p.speed,
	}
}

func (p *ProgressTracker) fraction() float64 {
	if p.total <= 0 {
		return 0
	}
	return min(float64(p.current)/float64(p.total), 1)
}

// eta estimates the remaining time of the stage, smoothed so batch-sized
// jumps do not make it swing. Caller holds mu.
func (p *ProgressTracker) eta() time.Duration {
	progress := p.fraction()
	if progress <= 0 || progress >= 1 {
		return 0
	}
	elapsed := p.now().Sub(p.stageStart)
	raw := time.Duration(float64(elapsed)/progress) - elapsed
	if raw < 0 {
		return 0
	}
	if p.lastETA == 0 {
		p.lastETA = raw
		return raw
	}
	p.lastETA = time.Duration(etaSmoothingFactor*float64(raw) + (1-etaSmoothingFactor)*float64(p.lastETA))
	return p.lastETA
}

// RenderSparkline draws recent throughput width bars wide.
func (p *ProgressTracker) RenderSparkline(width int) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sparkline.Render(width)
}
