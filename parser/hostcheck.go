package parser

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	sitter "github.com/tree-sitter/go-tree-sitter"
	tree_sitter_python "github.com/tree-sitter/tree-sitter-python/bindings/go"

	tok "github.com/shibukawa/pyplusplus/tokenizer"
)

// CheckHost validates src against the standard Python grammar.
// src must be plain Python, typically the lowered output of the rewriter.
// The first ERROR or MISSING node is reported as *HostSyntaxError with a
// position in src coordinates.
func CheckHost(src []byte) error {
	p := sitter.NewParser()
	defer p.Close()

	if err := p.SetLanguage(sitter.NewLanguage(tree_sitter_python.Language())); err != nil {
		return fmt.Errorf("failed to load python grammar: %w", err)
	}

	tree := p.Parse(src, nil)
	if tree == nil {
		return &HostSyntaxError{Position: tok.Position{Line: 1, Column: 1}, Message: "python grammar could not parse the source"}
	}
	defer tree.Close()

	root := tree.RootNode()
	if root == nil || !root.HasError() {
		return nil
	}

	return hostSyntaxError(src, root)
}

func hostSyntaxError(src []byte, root *sitter.Node) *HostSyntaxError {
	missing := findFirstNode(root, (*sitter.Node).IsMissing)

	errorNode := missing
	if errorNode == nil {
		errorNode = findFirstNode(root, (*sitter.Node).IsError)
	}

	if errorNode == nil {
		errorNode = root
	}

	message := "invalid syntax"
	if missing != nil {
		message = "invalid syntax: expected " + formatExpectedKind(missing.Kind())
	}

	return &HostSyntaxError{
		Position: positionAt(src, int(errorNode.StartByte())),
		Message:  message,
	}
}

func findFirstNode(root *sitter.Node, match func(*sitter.Node) bool) *sitter.Node {
	var best *sitter.Node

	walkNodes(root, func(node *sitter.Node) {
		if !match(node) {
			return
		}

		if best == nil || node.StartByte() < best.StartByte() {
			best = node
		}
	})

	return best
}

func walkNodes(root *sitter.Node, visit func(node *sitter.Node)) {
	if root == nil {
		return
	}

	visit(root)

	for i := uint(0); i < root.ChildCount(); i++ {
		child := root.Child(i)
		if child == nil {
			continue
		}

		walkNodes(child, visit)
	}
}

func formatExpectedKind(kind string) string {
	trimmed := strings.TrimSpace(kind)
	if trimmed == "" {
		return "token"
	}

	for _, r := range trimmed {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' {
			return strings.ReplaceAll(trimmed, "_", " ")
		}
	}

	return "'" + trimmed + "'"
}

// positionAt converts a byte offset into a line/column position
func positionAt(src []byte, offset int) tok.Position {
	if offset > len(src) {
		offset = len(src)
	}

	pos := tok.Position{Line: 1, Column: 1}

	for pos.Offset < offset {
		r, size := utf8.DecodeRune(src[pos.Offset:])
		pos.Offset += size

		if r == '\n' || (r == '\r' && (pos.Offset >= len(src) || src[pos.Offset] != '\n')) {
			pos.Line++
			pos.Column = 1
		} else {
			pos.Column++
		}
	}

	return pos
}
