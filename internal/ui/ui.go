// Package ui renders indexing progress and index status in the terminal.
//
// Interactive terminals get a bubbletea view; pipes, CI and --no-tui get
// line-oriented plain text with no escape codes.
package ui

import (
	"context"
	"io"
	"os"

	"github.com/mattn/go-isatty"

	"github.com/Aman-CERP/codesearch/internal/index"
)

// Stage is a display stage of an indexing pass.
type Stage int

const (
	StageScanning Stage = iota
	StageChunking
	StageEmbedding
	StageStoring
	StageComplete
)

// String returns the human-readable stage name.
func (s Stage) String() string {
	switch s {
	case StageScanning:
		return "Scanning"
	case StageChunking:
		return "Chunking"
	case StageEmbedding:
		return "Embedding"
	case StageStoring:
		return "Storing"
	case StageComplete:
		return "Complete"
	default:
		return "Unknown"
	}
}

// Icon returns the short tag used by plain output.
func (s Stage) Icon() string {
	switch s {
	case StageScanning:
		return "SCAN"
	case StageChunking:
		return "CHUNK"
	case StageEmbedding:
		return "EMBED"
	case StageStoring:
		return "STORE"
	case StageComplete:
		return "DONE"
	default:
		return "???"
	}
}

// Unit is what Current and Total count during the stage.
func (s Stage) Unit() string {
	if s == StageEmbedding {
		return "chunks"
	}
	return "files"
}

// StageOf maps a pipeline stage to its display stage.
func StageOf(s index.Stage) Stage {
	switch s {
	case index.StageChunking:
		return StageChunking
	case index.StageEmbedding:
		return StageEmbedding
	case index.StageStoring:
		return StageStoring
	case index.StageComplete:
		return StageComplete
	default:
		return StageScanning
	}
}

// Renderer displays one indexing pass. Update has the index.ProgressFunc
// signature so it can be handed to the pipeline directly.
type Renderer interface {
	Start(ctx context.Context) error
	Update(p index.Progress)
	// Complete shows the outcome of a finished pass.
	Complete(summary *index.Summary)
	// Fail shows a pass that ended with err.
	Fail(err error)
	Stop() error
}

// Config configures a Renderer.
type Config struct {
	Output     io.Writer
	ForcePlain bool
	NoColor    bool
	// ProjectDir is shown in the header.
	ProjectDir string
	// OnInterrupt is called when the user presses ctrl+c in the interactive
	// view, which swallows the signal.
	OnInterrupt func()
}

// ConfigOption modifies a Config.
type ConfigOption func(*Config)

// WithForcePlain forces plain text output.
func WithForcePlain(force bool) ConfigOption {
	return func(c *Config) { c.ForcePlain = force }
}

// WithNoColor disables color output.
func WithNoColor(noColor bool) ConfigOption {
	return func(c *Config) { c.NoColor = noColor }
}

// WithProjectDir sets the project shown in the header.
func WithProjectDir(dir string) ConfigOption {
	return func(c *Config) { c.ProjectDir = dir }
}

// WithInterrupt sets the ctrl+c handler of the interactive view.
func WithInterrupt(fn func()) ConfigOption {
	return func(c *Config) { c.OnInterrupt = fn }
}

// NewConfig creates a Config writing to output.
func NewConfig(output io.Writer, opts ...ConfigOption) Config {
	cfg := Config{Output: output}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// NewRenderer returns the TUI renderer for interactive terminals and the
// plain renderer otherwise.
func NewRenderer(cfg Config) Renderer {
	if cfg.ForcePlain || !IsTTY(cfg.Output) || DetectCI() {
		return NewPlainRenderer(cfg)
	}
	tui, err := NewTUIRenderer(cfg)
	if err != nil {
		return NewPlainRenderer(cfg)
	}
	return tui
}

// IsTTY reports whether w is a terminal.
func IsTTY(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok || f == nil {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// DetectNoColor reports whether NO_COLOR is set.
func DetectNoColor() bool {
	_, exists := os.LookupEnv("NO_COLOR")
	return exists
}

// DetectCI reports whether the process runs under a CI system.
func DetectCI() bool {
	for _, v := range []string{"CI", "GITHUB_ACTIONS", "GITLAB_CI", "JENKINS_URL", "TRAVIS"} {
		if _, exists := os.LookupEnv(v); exists {
			return true
		}
	}
	return false
}
