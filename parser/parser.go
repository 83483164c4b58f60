package parser

import (
	"errors"
	"strings"

	tok "github.com/shibukawa/pyplusplus/tokenizer"
	"golang.org/x/text/unicode/norm"
)

// compoundKeywords open a statement whose header ends with a colon
var compoundKeywords = map[string]bool{
	"if": true, "elif": true, "else": true, "while": true, "for": true,
	"try": true, "except": true, "finally": true, "with": true,
	"def": true, "class": true, "async": true,
}

// statement is one simple statement: its significant tokens without the terminator
type statement struct {
	tokens []tok.Token
	depths []int
	// all holds every token of the statement including layout tokens
	all []tok.Token
}

// Parse parses Python source extended with postfix increment and decrement
// statements. Misuse of the operator is returned as *ExtensionSyntaxError.
//
// A lexical failure is returned as *HostSyntaxError together with a usable
// tree: postfix statements on the complete logical lines before the error
// are recognized and the rest of the source is passed through untouched.
func Parse(src []byte) (*Tree, error) {
	tokens, lexErr := tok.NewTokenizer(src).AllTokens()

	var end tok.Position
	if lexErr != nil {
		tokens = completeLines(tokens)
		end = endPosition(src)
	} else {
		end = tokens[len(tokens)-1].End
	}

	tree := &Tree{
		Source: src,
		Names:  collectNames(tokens),
	}

	var stmts []*PostfixStmt

	for _, st := range splitStatements(tokens) {
		for i, t := range st.tokens {
			if t.Type != tok.INCREMENT && t.Type != tok.DECREMENT {
				continue
			}

			stmt, err := buildPostfix(st, i)
			if err != nil {
				return nil, err
			}

			stmts = append(stmts, stmt)
		}
	}

	tree.Nodes = interleave(end, stmts)

	if lexErr != nil {
		return tree, lexError(lexErr)
	}

	return tree, nil
}

// completeLines keeps the tokens up to the last finished logical line
func completeLines(tokens []tok.Token) []tok.Token {
	last := -1

	for i, t := range tokens {
		if t.Type == tok.NEWLINE {
			last = i
		}
	}

	end := tok.Position{Line: 1, Column: 1}
	if last >= 0 {
		end = tokens[last].End
	}

	kept := make([]tok.Token, 0, last+2)
	kept = append(kept, tokens[:last+1]...)

	return append(kept, tok.Token{Type: tok.EOF, Position: end, End: end})
}

// endPosition is the position just past the last character of src
func endPosition(src []byte) tok.Position {
	p := tok.Position{Line: 1, Column: 1}

	for i, r := range string(src) {
		switch {
		case r == '\n' || (r == '\r' && (i+1 >= len(src) || src[i+1] != '\n')):
			p.Line++
			p.Column = 1
		default:
			p.Column++
		}
	}

	p.Offset = len(src)

	return p
}

func lexError(err error) error {
	var lexErr *tok.Error
	if errors.As(err, &lexErr) {
		message := lexErr.Err.Error()
		if lexErr.Detail != "" {
			message += ": " + lexErr.Detail
		}

		return &HostSyntaxError{Position: lexErr.Position, Message: message, Err: err}
	}

	return &HostSyntaxError{Message: err.Error(), Err: err}
}

// collectNames gathers identifiers in NFKC form, the form Python compares them in
func collectNames(tokens []tok.Token) map[string]bool {
	names := make(map[string]bool)

	for _, t := range tokens {
		if t.Type == tok.NAME {
			names[norm.NFKC.String(t.Value)] = true
		}
	}

	return names
}

// splitStatements cuts the token stream into simple statements.
// Boundaries are logical newlines, semicolons outside brackets, and the colon
// that ends a compound statement header.
func splitStatements(tokens []tok.Token) []statement {
	var (
		result  []statement
		current statement
		depth   int
		lambdas int
	)

	flush := func() {
		if len(current.tokens) > 0 {
			result = append(result, current)
		}

		current = statement{}
		lambdas = 0
	}

	for _, t := range tokens {
		if !t.IsSignificant() {
			if len(current.tokens) > 0 {
				current.all = append(current.all, t)
			}

			continue
		}

		switch {
		case t.Type == tok.NEWLINE || t.Type == tok.EOF:
			flush()
			continue
		case depth == 0 && t.IsOp(";"):
			flush()
			continue
		case depth == 0 && t.IsOp(":") && lambdas > 0:
			lambdas--
		case depth == 0 && t.IsOp(":") && isCompoundHeader(current.tokens):
			flush()
			continue
		case depth == 0 && t.Type == tok.NAME && t.Value == "lambda":
			lambdas++
		}

		current.tokens = append(current.tokens, t)
		current.depths = append(current.depths, depth)
		current.all = append(current.all, t)

		if t.Type == tok.OP {
			switch t.Value {
			case "(", "[", "{":
				depth++
			case ")", "]", "}":
				depth--
			}
		}
	}

	flush()

	return result
}

func isCompoundHeader(tokens []tok.Token) bool {
	if len(tokens) == 0 {
		return false
	}

	first := tokens[0]
	if first.Type != tok.NAME {
		return false
	}

	if compoundKeywords[first.Value] {
		return true
	}

	// soft keywords: "match x:" is a header, "match: int = 1" is an annotation
	return (first.Value == "match" || first.Value == "case") && len(tokens) > 1
}

// buildPostfix validates the operator at index i of st and builds the statement
func buildPostfix(st statement, i int) (*PostfixStmt, error) {
	opToken := st.tokens[i]

	op := Increment
	if opToken.Type == tok.DECREMENT {
		op = Decrement
	}

	if st.depths[i] > 0 || i != len(st.tokens)-1 {
		return nil, newExtensionError(opToken.Position, msgInsideExpression, op)
	}

	if i == 0 {
		return nil, newExtensionError(opToken.Position, msgMissingTarget, op)
	}

	targetTokens := st.tokens[:i]

	elements, complete := parseTarget(targetTokens)
	if !complete {
		return nil, newExtensionError(opToken.Position, msgInsideExpression, op)
	}

	target, err := targetOf(elements, targetTokens[0], op)
	if err != nil {
		return nil, err
	}

	stmt := &PostfixStmt{
		Target: target,
		Op:     op,
		Span:   tok.Span{Start: target.Span.Start, End: opToken.End},
		OpSpan: opToken.Span(),
	}
	stmt.LineBreaks = escapedLineBreaks(st.all, stmt)

	return stmt, nil
}

func targetOf(elements []*element, first tok.Token, op Op) (Target, error) {
	last := elements[len(elements)-1]
	span := tok.Span{Start: elements[0].span.Start, End: last.span.End}

	if len(elements) == 1 {
		switch last.kind {
		case elementName:
			return Target{Kind: NameTarget, Span: span}, nil
		case elementConstant:
			return Target{}, newExtensionError(first.Position, msgConstantTarget, op, first.Value)
		case elementLiteral:
			return Target{}, newExtensionError(first.Position, msgLiteralTarget, op)
		default:
			return Target{}, newExtensionError(first.Position, msgGroupTarget, op)
		}
	}

	container := tok.Span{Start: span.Start, End: elements[len(elements)-2].span.End}

	switch last.kind {
	case elementAttribute:
		return Target{Kind: AttributeTarget, Span: span, Container: container, Attr: last.attr}, nil
	case elementSubscript:
		return Target{Kind: SubscriptTarget, Span: span, Container: container, Key: last.key, InlineKey: last.inlineKey}, nil
	default:
		return Target{}, newExtensionError(first.Position, msgCallTarget, op)
	}
}

// escapedLineBreaks returns the line breaks of backslash continuations that
// lie between the pieces of the target the lowering copies verbatim.
func escapedLineBreaks(all []tok.Token, stmt *PostfixStmt) []string {
	var copied []tok.Span

	switch stmt.Target.Kind {
	case NameTarget:
		copied = []tok.Span{stmt.Target.Span}
	case AttributeTarget:
		copied = []tok.Span{stmt.Target.Container}
	case SubscriptTarget:
		copied = []tok.Span{stmt.Target.Container, stmt.Target.Key}
	}

	var breaks []string

	for _, t := range all {
		if t.Type != tok.CONTINUATION || t.Position.Offset < stmt.Span.Start.Offset || t.End.Offset > stmt.Span.End.Offset {
			continue
		}

		inside := false

		for _, span := range copied {
			if t.Position.Offset >= span.Start.Offset && t.End.Offset <= span.End.Offset {
				inside = true
			}
		}

		if !inside {
			breaks = append(breaks, strings.TrimPrefix(t.Value, "\\"))
		}
	}

	return breaks
}

// interleave builds the node list: passthrough text between postfix statements
func interleave(end tok.Position, stmts []*PostfixStmt) []Node {
	nodes := make([]Node, 0, len(stmts)*2+1)
	cursor := tok.Position{Line: 1, Column: 1, Offset: 0}

	for _, stmt := range stmts {
		if stmt.Span.Start.Offset > cursor.Offset {
			nodes = append(nodes, &Passthrough{Span: tok.Span{Start: cursor, End: stmt.Span.Start}})
		}

		nodes = append(nodes, stmt)
		cursor = stmt.Span.End
	}

	if end.Offset > cursor.Offset || len(nodes) == 0 {
		nodes = append(nodes, &Passthrough{Span: tok.Span{Start: cursor, End: end}})
	}

	return nodes
}
