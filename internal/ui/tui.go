package ui

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Aman-CERP/codesearch/internal/index"
)

// stopTimeout bounds how long Stop waits for the program to exit.
const stopTimeout = 2 * time.Second

// TUIRenderer renders progress with bubbletea.
type TUIRenderer struct {
	mu      sync.Mutex
	cfg     Config
	program *tea.Program
	model   *indexingModel
	tracker *ProgressTracker
	done    chan struct{}
}

// NewTUIRenderer creates a TUI renderer. It fails when the output is not a
// terminal.
func NewTUIRenderer(cfg Config) (*TUIRenderer, error) {
	if !IsTTY(cfg.Output) {
		return nil, errors.New("output is not a TTY")
	}
	tracker := NewProgressTracker()
	model := newIndexingModel(tracker, cfg.ProjectDir, cfg.OnInterrupt)
	if cfg.NoColor || DetectNoColor() {
		model.styles = NoColorStyles()
	}
	return &TUIRenderer{
		cfg:     cfg,
		tracker: tracker,
		model:   model,
		done:    make(chan struct{}),
	}, nil
}

// Start implements Renderer.
func (r *TUIRenderer) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.program != nil {
		return nil
	}

	opts := []tea.ProgramOption{tea.WithContext(ctx)}
	if f, ok := r.cfg.Output.(*os.File); ok {
		opts = append(opts, tea.WithOutput(f))
	}
	r.program = tea.NewProgram(r.model, opts...)
	go func() {
		defer close(r.done)
		_, _ = r.program.Run()
	}()
	return nil
}

// Update implements Renderer.
func (r *TUIRenderer) Update(p index.Progress) {
	r.tracker.Observe(p)
}

// Complete implements Renderer.
func (r *TUIRenderer) Complete(s *index.Summary) {
	r.tracker.SetStage(StageComplete, 0)
	r.send(completeMsg{summary: s})
}

// Fail implements Renderer.
func (r *TUIRenderer) Fail(err error) {
	r.send(failMsg{err: err})
}

func (r *TUIRenderer) send(msg tea.Msg) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.program != nil {
		r.program.Send(msg)
	}
}

// Stop implements Renderer. It waits for the final frame to be drawn.
func (r *TUIRenderer) Stop() error {
	r.mu.Lock()
	program := r.program
	r.mu.Unlock()
	if program == nil {
		return nil
	}

	select {
	case <-r.done:
	case <-time.After(stopTimeout):
		program.Quit()
		<-r.done
	}
	return nil
}

type (
	tickMsg     time.Time
	completeMsg struct{ summary *index.Summary }
	failMsg     struct{ err error }
)

// indexingModel is the bubbletea model of one pass. Counters come from the
// shared tracker; the model only redraws on ticks.
type indexingModel struct {
	tracker     *ProgressTracker
	project     string
	interrupt   func()
	width       int
	styles      Styles
	spinner     spinner.Model
	progressBar progress.Model

	summary     *index.Summary
	err         error
	interrupted bool
}

func newIndexingModel(tracker *ProgressTracker, project string, interrupt func()) *indexingModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color(ColorLime))

	return &indexingModel{
		tracker:   tracker,
		project:   project,
		interrupt: interrupt,
		width:     80,
		styles:    DefaultStyles(),
		spinner:   s,
		progressBar: progress.New(
			progress.WithSolidFill(ColorLime),
			progress.WithWidth(50),
			progress.WithoutPercentage(),
		),
	}
}

// Init implements tea.Model.
func (m *indexingModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, tickCmd())
}

func tickCmd() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// Update implements tea.Model.
func (m *indexingModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" && !m.interrupted {
			m.interrupted = true
			if m.interrupt != nil {
				m.interrupt()
			}
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.progressBar.Width = max(msg.Width-20, 20)
	case completeMsg:
		m.summary = msg.summary
		return m, tea.Quit
	case failMsg:
		m.err = msg.err
		return m, tea.Quit
	case tickMsg:
		return m, tickCmd()
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

// View implements tea.Model.
func (m *indexingModel) View() string {
	width := max(m.width-4, 40)
	switch {
	case m.summary != nil:
		return m.renderComplete(width)
	case m.err != nil:
		return m.styles.Error.Render("✗ Indexing failed: "+m.err.Error()) + "\n"
	}

	stats := m.tracker.Stats()
	sections := []string{
		m.renderStages(stats.Stage),
		m.divider(width),
		m.renderProgress(stats),
		m.renderSpeed(stats),
		m.divider(width),
		m.styles.Sparkline.Render(m.tracker.RenderSparkline(max(width-14, 10))) + " " + m.styles.Dim.Render("throughput"),
	}
	if stats.CurrentFile != "" {
		sections = append(sections, m.styles.Dim.Render(truncateFilePath(stats.CurrentFile, width-2)))
	}

	title := "codesearch index"
	if m.project != "" {
		title += " • " + m.project
	}
	hint := "ctrl+c to cancel"
	if m.interrupted {
		hint = "cancelling..."
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		m.styles.Header.Render(title),
		m.styles.Panel.Width(width).Render(strings.Join(sections, "\n")),
		m.styles.Dim.Render(hint),
	)
}

func (m *indexingModel) renderStages(current Stage) string {
	stages := []struct {
		stage Stage
		name  string
	}{
		{StageScanning, "Scan"},
		{StageChunking, "Chunk"},
		{StageEmbedding, "Embed"},
		{StageStoring, "Store"},
	}
	parts := make([]string, 0, len(stages))
	for _, s := range stages {
		switch {
		case s.stage < current:
			parts = append(parts, m.styles.Success.Render("● "+s.name))
		case s.stage == current:
			parts = append(parts, m.styles.Active.Render(m.spinner.View()+" "+s.name))
		default:
			parts = append(parts, m.styles.Dim.Render("○ "+s.name))
		}
	}
	return strings.Join(parts, m.styles.Dim.Render(" → "))
}

func (m *indexingModel) renderProgress(stats ProgressStats) string {
	if stats.Total == 0 {
		return fmt.Sprintf("%s %s...", m.spinner.View(), stats.Stage)
	}
	bar := m.progressBar.ViewAs(stats.Progress)
	pct := m.styles.Active.Render(fmt.Sprintf("%3.0f%%", stats.Progress*100))
	count := m.styles.Label.Render(fmt.Sprintf("%d / %d %s", stats.Current, stats.Total, stats.Stage.Unit()))
	return fmt.Sprintf("%s  %s\n%s", bar, pct, count)
}

func (m *indexingModel) renderSpeed(stats ProgressStats) string {
	line := fmt.Sprintf("Speed: %.0f/s", stats.Speed.Current)
	if stats.Speed.Avg > 0 {
		line += fmt.Sprintf(" (avg: %.0f, peak: %.0f)", stats.Speed.Avg, stats.Speed.Peak)
	}
	parts := []string{m.styles.Label.Render(line)}
	if stats.ETA > 0 {
		parts = append(parts, m.styles.Label.Render("ETA: "+formatDuration(stats.ETA)))
	}
	return strings.Join(parts, m.styles.Dim.Render("  •  "))
}

func (m *indexingModel) divider(width int) string {
	return m.styles.Border.Render(strings.Repeat("─", width-4))
}

func (m *indexingModel) renderComplete(width int) string {
	lines := []string{m.styles.Success.Render("✓ Indexing complete"), ""}
	for _, line := range summaryLines(m.summary) {
		style := m.styles.Label
		if strings.HasPrefix(line, "SKIP") || strings.HasPrefix(line, "Index is stale") {
			style = m.styles.Warning
		}
		lines = append(lines, style.Render(line))
	}
	return m.styles.Panel.
		BorderForeground(lipgloss.Color(ColorLime)).
		Width(width).
		Render(strings.Join(lines, "\n")) + "\n"
}

// formatDuration formats d as 42s, 3m 5s or 1h 2m.
func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		m, s := int(d.Minutes()), int(d.Seconds())%60
		if s == 0 {
			return fmt.Sprintf("%dm", m)
		}
		return fmt.Sprintf("%dm %ds", m, s)
	default:
		return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
	}
}

// truncateFilePath shortens path to maxLen, keeping the file name.
func truncateFilePath(path string, maxLen int) string {
	if len(path) <= maxLen {
		return path
	}
	if maxLen < 4 {
		return "..."
	}
	i := strings.LastIndex(path, "/")
	name := path[i+1:]
	if i < 0 || len(name)+4 > maxLen {
		return "..." + path[len(path)-maxLen+3:]
	}
	keep := maxLen - len(name) - 4
	dir := path[:i]
	return "..." + dir[len(dir)-keep:] + "/" + name
}

var _ Renderer = (*TUIRenderer)(nil)
