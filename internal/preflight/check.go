package preflight

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Aman-CERP/codesearch/internal/config"
	"github.com/Aman-CERP/codesearch/internal/embed"
)

// CheckStatus represents the result of a preflight check.
type CheckStatus int

const (
	StatusPass CheckStatus = iota
	StatusWarn
	StatusFail
)

// String returns the string representation of a CheckStatus.
func (s CheckStatus) String() string {
	switch s {
	case StatusPass:
		return "PASS"
	case StatusWarn:
		return "WARN"
	case StatusFail:
		return "FAIL"
	default:
		return "UNKNOWN"
	}
}

// MarshalText renders the status by name in JSON output.
func (s CheckStatus) MarshalText() ([]byte, error) {
	return []byte(strings.ToLower(s.String())), nil
}

// UnmarshalText parses a status written by MarshalText.
func (s *CheckStatus) UnmarshalText(text []byte) error {
	for _, st := range []CheckStatus{StatusPass, StatusWarn, StatusFail} {
		if strings.EqualFold(string(text), st.String()) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown check status %q", text)
}

// CheckResult holds the result of a single preflight check.
type CheckResult struct {
	Name     string      `json:"name"`
	Status   CheckStatus `json:"status"`
	Message  string      `json:"message"`
	Details  string      `json:"details,omitempty"`
	Required bool        `json:"required"`
}

// IsCritical returns true if this is a required check that failed.
func (r CheckResult) IsCritical() bool {
	return r.Required && r.Status == StatusFail
}

// EmbedderFunc opens the embedder a check probes.
type EmbedderFunc func(ctx context.Context, cfg config.EmbeddingsConfig) (embed.Embedder, error)

// Checker performs preflight validation checks.
type Checker struct {
	cfg          *config.Config
	newEmbedder  EmbedderFunc
	probeTimeout time.Duration
	minDiskBytes uint64
	minFiles     uint64
}

// Option configures a Checker.
type Option func(*Checker)

// WithEmbedderFunc replaces how the embedder is opened.
func WithEmbedderFunc(fn EmbedderFunc) Option {
	return func(c *Checker) {
		c.newEmbedder = fn
	}
}

// WithProbeTimeout bounds the embedder check.
func WithProbeTimeout(d time.Duration) Option {
	return func(c *Checker) {
		c.probeTimeout = d
	}
}

// WithMinDiskSpace sets the free space the data directory needs.
func WithMinDiskSpace(bytes uint64) Option {
	return func(c *Checker) {
		c.minDiskBytes = bytes
	}
}

// New creates a Checker for cfg.
func New(cfg *config.Config, opts ...Option) *Checker {
	c := &Checker{
		cfg:          cfg,
		newEmbedder:  embed.NewEmbedder,
		probeTimeout: 10 * time.Second,
		minDiskBytes: MinDiskSpaceBytes,
		minFiles:     MinFileDescriptors,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RunAll runs all preflight checks and returns the results.
func (c *Checker) RunAll(ctx context.Context) []CheckResult {
	return []CheckResult{
		c.CheckConfig(),
		c.CheckWritePermissions(),
		c.CheckDiskSpace(),
		c.CheckFileDescriptors(),
		c.CheckEmbedder(ctx),
	}
}

// HasCriticalFailures returns true if any required check failed.
func HasCriticalFailures(results []CheckResult) bool {
	for _, r := range results {
		if r.IsCritical() {
			return true
		}
	}
	return false
}

// SummaryStatus returns "failed", "ready_with_warnings" or "ready".
func SummaryStatus(results []CheckResult) string {
	hasWarnings := false
	for _, r := range results {
		if r.IsCritical() {
			return "failed"
		}
		if r.Status != StatusPass {
			hasWarnings = true
		}
	}
	if hasWarnings {
		return "ready_with_warnings"
	}
	return "ready"
}

// PrintResults writes one line per check, then the overall status.
func PrintResults(w io.Writer, results []CheckResult, verbose bool) {
	_, _ = fmt.Fprintln(w, "codesearch system check")
	_, _ = fmt.Fprintln(w)

	for _, r := range results {
		_, _ = fmt.Fprintf(w, "[%s] %s: %s\n", r.Status, r.Name, r.Message)
		if r.Details != "" && (verbose || r.Status != StatusPass) {
			_, _ = fmt.Fprintf(w, "       %s\n", r.Details)
		}
	}

	_, _ = fmt.Fprintln(w)
	_, _ = fmt.Fprintf(w, "Status: %s\n", strings.ToUpper(SummaryStatus(results)))
}

// CheckConfig validates the configuration.
func (c *Checker) CheckConfig() CheckResult {
	result := CheckResult{Name: "config", Required: true}
	if err := c.cfg.Validate(); err != nil {
		result.Status = StatusFail
		result.Message = err.Error()
		return result
	}
	result.Status = StatusPass
	result.Message = "OK"
	return result
}

// CheckWritePermissions checks that indexes can be created under the data
// directory.
func (c *Checker) CheckWritePermissions() CheckResult {
	result := CheckResult{
		Name:     "write_permissions",
		Required: true,
		Details:  c.cfg.IndexesDir(),
	}

	dir := c.cfg.IndexesDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("cannot create data directory: %v", err)
		return result
	}
	f, err := os.CreateTemp(dir, ".preflight-*")
	if err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("permission denied: %v", err)
		return result
	}
	_ = f.Close()
	_ = os.Remove(filepath.Clean(f.Name()))

	result.Status = StatusPass
	result.Message = "OK"
	return result
}
