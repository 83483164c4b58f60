package tokenizer

import (
	"errors"
	"fmt"
)

// Sentinel errors
var (
	ErrUnexpectedCharacter = errors.New("unexpected character")
	ErrUnterminatedString  = errors.New("unterminated string literal")
	ErrUnbalancedBracket   = errors.New("unbalanced bracket")
)

// TokenType represents the type of a token
type TokenType int

const (
	// Layout tokens
	EOF TokenType = iota
	WHITESPACE
	CONTINUATION // backslash followed by a line break
	COMMENT      // # comment (without the line break)
	NEWLINE      // end of a logical line
	NL           // line break that does not end a logical line

	// Python tokens
	NAME   // identifiers and keywords
	NUMBER // numeric literals
	STRING // string literals including prefixes and f-strings
	OP     // operators and delimiters

	// Postfix extension
	INCREMENT // ++ in postfix position
	DECREMENT // -- in postfix position
)

// String returns the string representation of TokenType
func (t TokenType) String() string {
	switch t {
	case EOF:
		return "EOF"
	case WHITESPACE:
		return "WHITESPACE"
	case CONTINUATION:
		return "CONTINUATION"
	case COMMENT:
		return "COMMENT"
	case NEWLINE:
		return "NEWLINE"
	case NL:
		return "NL"
	case NAME:
		return "NAME"
	case NUMBER:
		return "NUMBER"
	case STRING:
		return "STRING"
	case OP:
		return "OP"
	case INCREMENT:
		return "INCREMENT"
	case DECREMENT:
		return "DECREMENT"
	default:
		return "UNKNOWN"
	}
}

// Position represents a position in the source code.
// Line and Column are 1-based, Column counts code points, Offset is a byte offset.
type Position struct {
	Line   int
	Column int
	Offset int
}

func (p Position) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Column)
}

// Span is a half-open source range.
type Span struct {
	Start Position
	End   Position
}

// Contains reports whether p lies inside the span (end exclusive).
func (s Span) Contains(p Position) bool {
	if p.Line < s.Start.Line || p.Line > s.End.Line {
		return false
	}
	if p.Line == s.Start.Line && p.Column < s.Start.Column {
		return false
	}
	if p.Line == s.End.Line && p.Column >= s.End.Column {
		return false
	}

	return true
}

// Token represents a token
type Token struct {
	Type     TokenType
	Value    string
	Position Position
	End      Position
}

// Span returns the source range covered by the token
func (t Token) Span() Span {
	return Span{Start: t.Position, End: t.End}
}

// IsSignificant reports whether the token takes part in the grammar.
// Layout tokens (whitespace, comments, continuations, non-logical newlines) do not.
func (t Token) IsSignificant() bool {
	switch t.Type {
	case WHITESPACE, CONTINUATION, COMMENT, NL:
		return false
	default:
		return true
	}
}

// IsOp reports whether the token is the given operator or delimiter
func (t Token) IsOp(value string) bool {
	return t.Type == OP && t.Value == value
}

// String returns the string representation of Token
func (t Token) String() string {
	return t.Type.String() + ": " + t.Value
}

// Error is a lexical error with the position where the offending token starts
type Error struct {
	Err      error
	Position Position
	Detail   string
}

func (e *Error) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s at %s", e.Err.Error(), e.Detail, e.Position)
	}

	return fmt.Sprintf("%s at %s", e.Err.Error(), e.Position)
}

func (e *Error) Unwrap() error {
	return e.Err
}
