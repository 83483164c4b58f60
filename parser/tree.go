package parser

import (
	tok "github.com/shibukawa/pyplusplus/tokenizer"
)

// Op is the postfix operator kind
type Op int

const (
	Increment Op = iota
	Decrement
)

func (o Op) String() string {
	if o == Decrement {
		return "--"
	}

	return "++"
}

// Augmented returns the augmented assignment operator used to lower o
func (o Op) Augmented() string {
	if o == Decrement {
		return "-="
	}

	return "+="
}

// TargetKind classifies the assignable expression a postfix operator updates
type TargetKind int

const (
	NameTarget TargetKind = iota
	AttributeTarget
	SubscriptTarget
)

func (k TargetKind) String() string {
	switch k {
	case AttributeTarget:
		return "attribute"
	case SubscriptTarget:
		return "subscript"
	default:
		return "name"
	}
}

// Target is the assignable operand of a postfix statement.
// Container is set for attribute and subscript targets; Key only for subscripts.
// InlineKey marks slice or starred keys that cannot be evaluated on their own.
type Target struct {
	Kind      TargetKind
	Span      tok.Span
	Container tok.Span
	Attr      string
	Key       tok.Span
	InlineKey bool
}

// Node is an element of a parsed unit
type Node interface {
	NodeSpan() tok.Span
}

// Passthrough is standard Python text that is emitted unchanged
type Passthrough struct {
	Span tok.Span
}

func (p *Passthrough) NodeSpan() tok.Span { return p.Span }

// PostfixStmt is a `target++` or `target--` statement
type PostfixStmt struct {
	Target Target
	Op     Op
	Span   tok.Span
	OpSpan tok.Span

	// LineBreaks are the escaped line breaks between the target and the
	// operator that are not part of the container or key text.
	LineBreaks []string
}

func (p *PostfixStmt) NodeSpan() tok.Span { return p.Span }

// Tree is a parsed unit: an ordered sequence of nodes that covers the source
type Tree struct {
	Source []byte
	Nodes  []Node
	// Names holds every identifier of the unit in NFKC normal form
	Names map[string]bool
}

// Text returns the source text covered by span
func (t *Tree) Text(span tok.Span) string {
	return string(t.Source[span.Start.Offset:span.End.Offset])
}

// Postfix returns the postfix statements in source order
func (t *Tree) Postfix() []*PostfixStmt {
	var result []*PostfixStmt

	for _, node := range t.Nodes {
		if stmt, ok := node.(*PostfixStmt); ok {
			result = append(result, stmt)
		}
	}

	return result
}

// HasPostfix reports whether the unit uses the extension at all
func (t *Tree) HasPostfix() bool {
	for _, node := range t.Nodes {
		if _, ok := node.(*PostfixStmt); ok {
			return true
		}
	}

	return false
}
