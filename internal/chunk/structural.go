package chunk

import (
	"context"
	"slices"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

// StructuralStrategy chunks files along the top-level declarations of a
// tree-sitter parse. Classes that exceed the ceiling split into their
// members; functions split at statement boundaries.
type StructuralStrategy struct {
	opts Options
}

// NewStructuralStrategy creates a StructuralStrategy.
func NewStructuralStrategy(opts Options) *StructuralStrategy {
	return &StructuralStrategy{opts: opts.withDefaults()}
}

// Name implements Strategy.
func (s *StructuralStrategy) Name() string { return "structural" }

// Chunk implements Strategy. A parse failure is returned as a ParseFailure
// error and the file is left to the fallback strategy.
func (s *StructuralStrategy) Chunk(ctx context.Context, file *File) ([]CodeChunk, error) {
	lang := file.Language
	tree, err := parse(ctx, lang, file.Content)
	if err != nil {
		return nil, errParse(file.Path, err)
	}
	defer tree.Close()

	a := newAssembler(file.Lines, s.opts)
	root := tree.RootNode()

	var (
		decls    []segment
		ctxLines []string
	)
	for i := 0; i < int(root.NamedChildCount()); i++ {
		n := root.NamedChild(i)
		if slices.Contains(lang.ContextTypes, n.Type()) {
			if len(ctxLines) < maxContextLines {
				ctxLines = append(ctxLines, strings.TrimSpace(n.Content(file.Content)))
			}
			continue
		}
		if d, ok := s.declaration(n, file.Content, lang, a, false); ok {
			decls = append(decls, d)
		}
	}

	return build(file, decls, strings.Join(ctxLines, "\n"), a), nil
}

// declaration classifies n as a chunkable declaration.
func (s *StructuralStrategy) declaration(n *sitter.Node, src []byte, lang *Language, a *assembler, inClass bool) (segment, bool) {
	target := n
	if slices.Contains(lang.WrapperTypes, n.Type()) {
		target = unwrap(n, lang)
		if target == nil {
			return segment{}, false
		}
	}

	start, end := nodeLines(n)
	seg := segment{start: start, end: end, decl: true, name: nodeName(target, src)}
	t := target.Type()

	switch {
	case inClass && slices.Contains(lang.MethodTypes, t):
		seg.typ = TypeMethod
		seg.breaks = statementStarts(target)
	case inClass && slices.Contains(lang.ClassTypes, t):
		seg.typ = TypeClass
	case inClass:
		return segment{}, false
	case slices.Contains(lang.FunctionTypes, t):
		seg.typ = TypeFunction
		seg.breaks = statementStarts(target)
	case slices.Contains(lang.MethodTypes, t):
		seg.typ = TypeMethod
		seg.breaks = statementStarts(target)
	case slices.Contains(lang.ClassTypes, t):
		seg.typ = TypeClass
		seg.key = a.newKey()
		seg.members = s.members(target, src, lang, a)
	case (t == "lexical_declaration" || t == "variable_declaration") && isFunctionValue(target):
		seg.typ = TypeFunction
	default:
		return segment{}, false
	}
	return seg, true
}

// members collects the declarations inside a class node, descending into
// its body nodes.
func (s *StructuralStrategy) members(class *sitter.Node, src []byte, lang *Language, a *assembler) []segment {
	var out []segment
	var visit func(parent *sitter.Node)
	visit = func(parent *sitter.Node) {
		for i := 0; i < int(parent.NamedChildCount()); i++ {
			c := parent.NamedChild(i)
			if d, ok := s.declaration(c, src, lang, a, true); ok {
				out = append(out, d)
				continue
			}
			if slices.Contains(lang.BodyTypes, c.Type()) {
				visit(c)
			}
		}
	}
	visit(class)
	return out
}

// unwrap returns the declaration inside a wrapper node, or nil.
func unwrap(n *sitter.Node, lang *Language) *sitter.Node {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		c := n.NamedChild(i)
		t := c.Type()
		if slices.Contains(lang.FunctionTypes, t) || slices.Contains(lang.MethodTypes, t) ||
			slices.Contains(lang.ClassTypes, t) || t == "lexical_declaration" || t == "variable_declaration" {
			return c
		}
	}
	return nil
}
