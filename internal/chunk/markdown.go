package chunk

import (
	"context"
	"regexp"
	"strings"
)

var (
	// headerPattern matches ATX headers (# through ######).
	headerPattern = regexp.MustCompile(`^(#{1,6})\s+(.+?)\s*#*\s*$`)

	// fencePattern matches the opening or closing line of a fenced code block.
	fencePattern = regexp.MustCompile("^\\s*(```|~~~)")
)

// MarkdownStrategy splits documents at their headers. Sections carry their
// header path ("Install > From source") as the chunk name; small sections
// merge with their neighbours and long ones fall back to line windows.
type MarkdownStrategy struct {
	opts Options
}

// NewMarkdownStrategy creates a MarkdownStrategy.
func NewMarkdownStrategy(opts Options) *MarkdownStrategy {
	return &MarkdownStrategy{opts: opts.withDefaults()}
}

// Name implements Strategy.
func (m *MarkdownStrategy) Name() string { return "markdown" }

// Chunk implements Strategy.
func (m *MarkdownStrategy) Chunk(_ context.Context, file *File) ([]CodeChunk, error) {
	a := newAssembler(file.Lines, m.opts)

	var (
		decls   []segment
		path    []string // header text by level-1
		inFence string
	)
	for i, line := range file.Lines {
		if f := fencePattern.FindStringSubmatch(line); f != nil {
			switch {
			case inFence == "":
				inFence = f[1]
			case inFence == f[1]:
				inFence = ""
			}
			continue
		}
		if inFence != "" {
			continue
		}

		h := headerPattern.FindStringSubmatch(line)
		if h == nil {
			continue
		}
		level := len(h[1])
		if len(path) >= level {
			path = path[:level-1]
		}
		for len(path) < level-1 {
			path = append(path, "")
		}
		path = append(path, h[2])

		decls = append(decls, segment{
			start: i + 1,
			typ:   TypeBlock,
			name:  headerPath(path),
			decl:  true,
		})
	}

	for i := range decls {
		if i+1 < len(decls) {
			decls[i].end = decls[i+1].start - 1
		} else {
			decls[i].end = len(file.Lines)
		}
	}

	return build(file, decls, "", a), nil
}

func headerPath(path []string) string {
	parts := make([]string, 0, len(path))
	for _, p := range path {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, " > ")
}
