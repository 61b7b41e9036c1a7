package chunk

import (
	"context"
	"fmt"

	sitter "github.com/smacker/go-tree-sitter"
)

// parse parses source with the language grammar. A tree containing syntax
// errors counts as a failure so the caller can fall back to the heuristic
// strategy instead of chunking around error nodes.
func parse(ctx context.Context, lang *Language, source []byte) (*sitter.Tree, error) {
	if !lang.structural() {
		return nil, fmt.Errorf("no grammar for %s", lang.Name)
	}

	// Parsers are not safe for concurrent use; one per call keeps workers independent.
	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(lang.Grammar)

	tree, err := parser.ParseCtx(ctx, nil, source)
	if err != nil {
		return nil, fmt.Errorf("failed to parse source: %w", err)
	}
	if tree == nil {
		return nil, fmt.Errorf("failed to parse source: nil tree")
	}
	if tree.RootNode().HasError() {
		tree.Close()
		return nil, fmt.Errorf("syntax errors in source")
	}
	return tree, nil
}

// nodeLines returns the 1-indexed inclusive line range of n. A node that
// ends at column 0 of a row ends on the previous line.
func nodeLines(n *sitter.Node) (int, int) {
	start := int(n.StartPoint().Row) + 1
	end := int(n.EndPoint().Row) + 1
	if n.EndPoint().Column == 0 && end > start {
		end--
	}
	return start, end
}

// nodeName returns the text of n's name field, looking through declarators
// for JS/TS "const f = () => {}" and C/C++ function declarators.
func nodeName(n *sitter.Node, source []byte) string {
	switch n.Type() {
	case "identifier", "field_identifier", "type_identifier", "property_identifier", "constant":
		return n.Content(source)
	}
	if name := n.ChildByFieldName("name"); name != nil {
		return name.Content(source)
	}
	if decl := n.ChildByFieldName("declarator"); decl != nil {
		return nodeName(decl, source)
	}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		switch child.Type() {
		case "variable_declarator", "type_spec", "function_declarator":
			return nodeName(child, source)
		case "identifier", "constant", "type_identifier":
			return child.Content(source)
		}
	}
	return ""
}

// isFunctionValue reports whether a lexical/variable declaration binds a
// function expression, as in "export const handler = async () => {...}".
func isFunctionValue(n *sitter.Node) bool {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		if child.Type() != "variable_declarator" {
			continue
		}
		if v := child.ChildByFieldName("value"); v != nil {
			switch v.Type() {
			case "arrow_function", "function", "function_expression", "generator_function":
				return true
			}
		}
	}
	return false
}

// statementStarts returns the first line of each direct statement in the
// body of a function node. Oversized functions split at these lines.
func statementStarts(n *sitter.Node) []int {
	body := n.ChildByFieldName("body")
	if body == nil {
		return nil
	}
	starts := make([]int, 0, body.NamedChildCount())
	for i := 0; i < int(body.NamedChildCount()); i++ {
		s, _ := nodeLines(body.NamedChild(i))
		starts = append(starts, s)
	}
	return starts
}
