package ui

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/Aman-CERP/codesearch/internal/project"
)

// StatusInfo is what the status command shows for one project.
type StatusInfo struct {
	project.Status
	// IndexBytes is the on-disk size of the index directory.
	IndexBytes int64 `json:"index_bytes"`
	// ActiveModel is the model queries would be embedded with now.
	ActiveModel string `json:"active_model,omitempty"`
	Provider    string `json:"provider,omitempty"`
}

// StatusRenderer displays index status.
type StatusRenderer struct {
	out    io.Writer
	styles Styles
	now    func() time.Time
}

// NewStatusRenderer creates a status renderer.
func NewStatusRenderer(out io.Writer, noColor bool) *StatusRenderer {
	return &StatusRenderer{out: out, styles: GetStyles(noColor), now: time.Now}
}

// Render writes info as a bordered panel.
func (r *StatusRenderer) Render(info StatusInfo) error {
	title := r.styles.Header.Render("Index status")
	if info.State == project.StateAbsent {
		body := fmt.Sprintf("%s\n\nNo index exists for %s.\nRun `codesearch index` first.", title, info.Root)
		_, err := fmt.Fprintln(r.out, r.styles.Panel.Render(body))
		return err
	}

	rows := [][2]string{
		{"Project", info.Root},
		{"State", r.renderState(info.State)},
		{"Files", fmt.Sprintf("%d", info.FileCount)},
		{"Chunks", fmt.Sprintf("%d", info.ChunkCount)},
		{"Model", fmt.Sprintf("%s (%d dims)", info.Model, info.Dimensions)},
	}
	if info.ActiveModel != "" && info.Model != "" && info.ActiveModel != info.Model {
		rows = append(rows, [2]string{"Configured", r.styles.Warning.Render(info.ActiveModel + ", re-index with --force")})
	}
	if !info.LastIndexedAt.IsZero() {
		rows = append(rows, [2]string{"Last indexed", formatTime(info.LastIndexedAt, r.now())})
	}
	rows = append(rows,
		[2]string{"Index size", FormatBytes(info.IndexBytes)},
		[2]string{"Index dir", r.styles.Dim.Render(info.IndexDir)},
	)
	if t := info.Task; t != nil && t.Status == "indexing" {
		rows = append(rows, [2]string{"Task", fmt.Sprintf("%s %.0f%%", t.Stage, t.ProgressPct)})
	}

	lines := []string{title, ""}
	for _, row := range rows {
		label := r.styles.Label.Render(fmt.Sprintf("%-13s", row[0]))
		lines = append(lines, label+row[1])
	}
	_, err := fmt.Fprintln(r.out, r.styles.Panel.Render(strings.Join(lines, "\n")))
	return err
}

// RenderJSON writes info as indented JSON.
func (r *StatusRenderer) RenderJSON(info StatusInfo) error {
	enc := json.NewEncoder(r.out)
	enc.SetIndent("", "  ")
	return enc.Encode(info)
}

func (r *StatusRenderer) renderState(state project.State) string {
	var style lipgloss.Style
	switch state {
	case project.StateReady:
		style = r.styles.Success
	case project.StateStale, project.StateBuilding:
		style = r.styles.Warning
	default:
		style = r.styles.Dim
	}
	return style.Render(string(state))
}

// formatTime renders t relative to now for recent times.
func formatTime(t, now time.Time) string {
	diff := now.Sub(t)
	plural := func(n int, unit string) string {
		if n == 1 {
			return "1 " + unit + " ago"
		}
		return fmt.Sprintf("%d %ss ago", n, unit)
	}
	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		return plural(int(diff.Minutes()), "minute")
	case diff < 24*time.Hour:
		return plural(int(diff.Hours()), "hour")
	case diff < 7*24*time.Hour:
		return plural(int(diff.Hours()/24), "day")
	default:
		return t.Local().Format("2006-01-02 15:04")
	}
}

// FormatBytes formats a byte count with binary units.
func FormatBytes(bytes int64) string {
	const (
		KB = 1024
		MB = 1024 * KB
		GB = 1024 * MB
	)
	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.1f GB", float64(bytes)/GB)
	case bytes >= MB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/MB)
	case bytes >= KB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/KB)
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
