// Package output formats CLI messages and search results as plain text.
package output

import (
	"fmt"
	"io"
	"strings"

	"github.com/Aman-CERP/codesearch/internal/search"
)

// Writer writes CLI output. Write errors are ignored: there is nowhere
// better to report them.
type Writer struct {
	out io.Writer
}

// New creates a Writer.
func New(out io.Writer) *Writer {
	return &Writer{out: out}
}

// Status prints msg after icon, or indented when icon is empty.
func (w *Writer) Status(icon, msg string) {
	if icon == "" {
		_, _ = fmt.Fprintf(w.out, "   %s\n", msg)
		return
	}
	_, _ = fmt.Fprintf(w.out, "%s %s\n", icon, msg)
}

// Statusf is Status with formatting.
func (w *Writer) Statusf(icon, format string, args ...any) {
	w.Status(icon, fmt.Sprintf(format, args...))
}

// Success prints a success message.
func (w *Writer) Success(msg string) { w.Status("✓", msg) }

// Successf is Success with formatting.
func (w *Writer) Successf(format string, args ...any) { w.Success(fmt.Sprintf(format, args...)) }

// Warning prints a warning message.
func (w *Writer) Warning(msg string) { w.Status("!", msg) }

// Warningf is Warning with formatting.
func (w *Writer) Warningf(format string, args ...any) { w.Warning(fmt.Sprintf(format, args...)) }

// Error prints an error message.
func (w *Writer) Error(msg string) { w.Status("✗", msg) }

// Code prints content indented by two spaces, framed by blank lines.
func (w *Writer) Code(content string) {
	_, _ = fmt.Fprintln(w.out)
	for _, line := range strings.Split(content, "\n") {
		_, _ = fmt.Fprintf(w.out, "  %s\n", line)
	}
	_, _ = fmt.Fprintln(w.out)
}

// Newline prints an empty line.
func (w *Writer) Newline() {
	_, _ = fmt.Fprintln(w.out)
}

// SearchResults prints ranked results with line-numbered content. Context
// lines are marked with '|', chunk lines with '>'.
func (w *Writer) SearchResults(query string, results []search.Result) {
	if len(results) == 0 {
		_, _ = fmt.Fprintf(w.out, "No results for %q\n", query)
		return
	}
	for i, r := range results {
		header := fmt.Sprintf("%d. %s:%d-%d  score %.3f  %s", i+1, r.FilePath, r.StartLine, r.EndLine, r.Score, r.ChunkType)
		if r.Name != "" {
			header += " " + r.Name
		}
		if r.Truncated {
			header += " (truncated)"
		}
		_, _ = fmt.Fprintln(w.out, header)

		before := splitLines(r.ContextBefore)
		line := r.StartLine - len(before)
		for _, l := range before {
			w.numbered(line, '|', l)
			line++
		}
		for _, l := range splitLines(r.Content) {
			w.numbered(line, '>', l)
			line++
		}
		for _, l := range splitLines(r.ContextAfter) {
			w.numbered(line, '|', l)
			line++
		}
		if i < len(results)-1 {
			_, _ = fmt.Fprintln(w.out)
		}
	}
}

func (w *Writer) numbered(n int, mark rune, text string) {
	_, _ = fmt.Fprintf(w.out, "%6d %c %s\n", n, mark, text)
}

func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(strings.TrimSuffix(s, "\n"), "\n")
}
