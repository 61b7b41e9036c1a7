package chunk

import (
	"context"
	"regexp"
	"strings"
)

var (
	classPattern = regexp.MustCompile(`^(\s*)(?:export\s+)?(?:default\s+)?(?:(?:public|private|protected|internal|abstract|final|sealed|static|data|open|partial)\s+)*(?:class|interface|struct|trait|module|enum|object|impl)\s+([A-Za-z_]\w*)`)

	funcPatterns = []*regexp.Regexp{
		// JavaScript/TypeScript function declarations.
		regexp.MustCompile(`^(\s*)(?:export\s+)?(?:default\s+)?(?:async\s+)?function\s*\*?\s*([A-Za-z_$][\w$]*)`),
		// Python.
		regexp.MustCompile(`^(\s*)(?:async\s+)?def\s+([A-Za-z_]\w*)`),
		// Go, receivers included.
		regexp.MustCompile(`^(\s*)func\s+(?:\([^)]*\)\s*)?([A-Za-z_]\w*)`),
		// Rust.
		regexp.MustCompile(`^(\s*)(?:pub(?:\([^)]*\))?\s+)?(?:const\s+)?(?:async\s+)?(?:unsafe\s+)?fn\s+([A-Za-z_]\w*)`),
		// Function-valued bindings: const f = () => ..., const f = function.
		regexp.MustCompile(`^(\s*)(?:export\s+)?(?:const|let|var)\s+([A-Za-z_$][\w$]*)\s*=\s*(?:async\s*)?(?:function\b|\([^)]*\)\s*(?::[^=]+)?=>|[A-Za-z_$][\w$]*\s*=>)`),
		// Kotlin.
		regexp.MustCompile(`^(\s*)(?:(?:public|private|protected|internal|override|suspend|open|inline)\s+)*fun\s+(?:<[^>]*>\s*)?(?:[\w.]+\.)?([A-Za-z_]\w*)`),
		// PHP.
		regexp.MustCompile(`^(\s*)(?:(?:public|private|protected|static|final|abstract)\s+)+function\s+&?([A-Za-z_]\w*)`),
		// Java/C# methods: at least one modifier, a return type, a name and an open parameter list.
		regexp.MustCompile(`^(\s*)(?:(?:public|private|protected|internal|static|final|abstract|synchronized|override|virtual|async)\s+)+[\w<>\[\],.?]+\s+([A-Za-z_]\w*)\s*\([^;]*$`),
		// Ruby.
		regexp.MustCompile(`^(\s*)def\s+(?:self\.)?([A-Za-z_]\w*[?!]?)`),
		// Shell.
		regexp.MustCompile(`^(\s*)(?:function\s+)?([A-Za-z_][\w-]*)\s*\(\)\s*\{`),
		// SQL definitions.
		regexp.MustCompile(`(?i)^(\s*)create\s+(?:or\s+replace\s+)?(?:function|procedure|view|table|trigger)\s+([\w."]+)`),
	}

	importPattern = regexp.MustCompile(`^\s*(?:import\s|from\s+\S+\s+import\s|#include\s|#import\s|using\s+[\w.]+\s*;|require(?:_relative)?[\s(]|use\s+[\w:]+|package\s+[\w.]+)`)
)

// HeuristicStrategy chunks any text. Declaration-like lines become split
// points; text without any falls back to fixed line windows.
type HeuristicStrategy struct {
	opts Options
}

// NewHeuristicStrategy creates a HeuristicStrategy.
func NewHeuristicStrategy(opts Options) *HeuristicStrategy {
	return &HeuristicStrategy{opts: opts.withDefaults()}
}

// Name implements Strategy.
func (h *HeuristicStrategy) Name() string { return "heuristic" }

type openClass struct {
	indent int
	key    int
}

// Chunk implements Strategy. It never fails.
func (h *HeuristicStrategy) Chunk(_ context.Context, file *File) ([]CodeChunk, error) {
	a := newAssembler(file.Lines, h.opts)

	var (
		decls   []segment
		classes []openClass
	)
	popTo := func(indent int) {
		for len(classes) > 0 && classes[len(classes)-1].indent >= indent {
			classes = classes[:len(classes)-1]
		}
	}

	for i, line := range file.Lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		indent := indentation(line)

		typ, name, ok := matchDeclaration(line)
		if !ok {
			popTo(indent)
			continue
		}

		d := segment{typ: typ, name: name, decl: true}
		popTo(indent)
		switch {
		case typ == TypeClass:
			d.key = a.newKey()
			classes = append(classes, openClass{indent: indent, key: d.key})
		case len(classes) > 0:
			d.typ = TypeMethod
			d.key = classes[len(classes)-1].key
		}

		d.start = leadingComments(file.Lines, i) + 1
		if n := len(decls); n > 0 && d.start <= decls[n-1].start {
			d.start = i + 1
		}
		decls = append(decls, d)
	}

	for i := range decls {
		if i+1 < len(decls) {
			decls[i].end = decls[i+1].start - 1
		} else {
			decls[i].end = len(file.Lines)
		}
	}

	header := len(file.Lines)
	if len(decls) > 0 {
		header = decls[0].start - 1
	}
	return build(file, decls, importContext(file.Lines[:header]), a), nil
}

// matchDeclaration reports whether line opens a class or function.
func matchDeclaration(line string) (ChunkType, string, bool) {
	if m := classPattern.FindStringSubmatch(line); m != nil {
		return TypeClass, m[2], true
	}
	for _, p := range funcPatterns {
		if m := p.FindStringSubmatch(line); m != nil {
			return TypeFunction, strings.Trim(m[2], `"`), true
		}
	}
	return TypeBlock, "", false
}

// leadingComments returns the 0-based index of the first line of the
// comment or decorator run directly above line i.
func leadingComments(lines []string, i int) int {
	start := i
	for start > 0 && isCommentLine(lines[start-1]) {
		start--
	}
	return start
}

func isCommentLine(line string) bool {
	t := strings.TrimSpace(line)
	switch {
	case t == "":
		return false
	case strings.HasPrefix(t, "#include"), strings.HasPrefix(t, "#import"),
		strings.HasPrefix(t, "#define"), strings.HasPrefix(t, "#if"), strings.HasPrefix(t, "#pragma"):
		return false
	}
	for _, prefix := range []string{"//", "/*", "*", "#", "--", "@", `"""`, "///"} {
		if strings.HasPrefix(t, prefix) {
			return true
		}
	}
	return false
}

// importContext collects up to maxContextLines import-like lines.
func importContext(lines []string) string {
	var out []string
	for _, l := range lines {
		if importPattern.MatchString(l) {
			out = append(out, strings.TrimSpace(l))
			if len(out) == maxContextLines {
				break
			}
		}
	}
	return strings.Join(out, "\n")
}

// indentation counts leading whitespace, a tab as four columns.
func indentation(line string) int {
	n := 0
	for _, r := range line {
		switch r {
		case ' ':
			n++
		case '\t':
			n += 4
		default:
			return n
		}
	}
	return n
}
