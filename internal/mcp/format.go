package mcp

import (
	"fmt"
	"strings"
	"time"

	"github.com/Aman-CERP/codesearch/internal/index"
	"github.com/Aman-CERP/codesearch/internal/search"
)

// LanguageFunc maps a file path to a language name used as the code fence
// hint.
type LanguageFunc func(path string) string

// FormatResults renders search results as markdown.
func FormatResults(query string, results []search.Result, language LanguageFunc) string {
	if len(results) == 0 {
		return fmt.Sprintf("No results found for %q", query)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "## Search Results for %q\n\n", query)
	fmt.Fprintf(&sb, "Found %d result", len(results))
	if len(results) != 1 {
		sb.WriteString("s")
	}
	sb.WriteString("\n\n")

	for i, r := range results {
		formatResult(&sb, i+1, r, language)
	}
	return sb.String()
}

func formatResult(sb *strings.Builder, num int, r search.Result, language LanguageFunc) {
	fmt.Fprintf(sb, "### %d. %s:%d-%d (score: %.2f)\n", num, r.FilePath, r.StartLine, r.EndLine, r.Score)
	if r.Name != "" {
		fmt.Fprintf(sb, "**%s** `%s`\n\n", r.ChunkType, r.Name)
	} else {
		sb.WriteString("\n")
	}

	lang := "text"
	if language != nil {
		lang = language(r.FilePath)
	}

	// Context lines share the fence so line numbers stay contiguous.
	var body strings.Builder
	if r.ContextBefore != "" {
		body.WriteString(r.ContextBefore)
		body.WriteString("\n")
	}
	body.WriteString(r.Content)
	if r.ContextAfter != "" {
		body.WriteString("\n")
		body.WriteString(r.ContextAfter)
	}
	fmt.Fprintf(sb, "```%s\n%s\n```\n\n", lang, body.String())
}

// FormatSummary renders the outcome of an indexing pass.
func FormatSummary(root string, s *index.Summary) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "## Indexed %s\n\n", root)
	fmt.Fprintf(&sb, "- Files scanned: %d\n", s.FilesScanned)
	fmt.Fprintf(&sb, "- Files indexed: %d\n", s.FilesIndexed)
	fmt.Fprintf(&sb, "- Files removed: %d\n", s.FilesRemoved)
	fmt.Fprintf(&sb, "- Chunks indexed: %d\n", s.ChunksIndexed)
	fmt.Fprintf(&sb, "- Embedding cache hit rate: %.1f%%\n", s.CacheHitRate*100)
	fmt.Fprintf(&sb, "- Duration: %s\n", s.Duration.Round(time.Millisecond))
	if skipped := skippedFiles(s); len(skipped) > 0 {
		if s.Stale() {
			fmt.Fprintf(&sb, "\n%d file(s) were skipped and the index is marked stale:\n", len(skipped))
		} else {
			fmt.Fprintf(&sb, "\n%d file(s) were skipped:\n", len(skipped))
		}
		for _, p := range skipped {
			fmt.Fprintf(&sb, "- %s\n", p)
		}
	}
	return sb.String()
}

func skippedFiles(s *index.Summary) []string {
	out := make([]string, 0, len(s.Failures)+len(s.Oversized)+len(s.Excluded))
	for _, f := range s.Failures {
		out = append(out, fmt.Sprintf("%s (%s: %v)", f.Path, f.Stage, f.Err))
	}
	for _, p := range s.Oversized {
		out = append(out, p+" (too large)")
	}
	for _, p := range s.Excluded {
		out = append(out, p+" (binary)")
	}
	return out
}
