package tokenizer

import (
	"errors"
	"strings"
	"testing"

	"github.com/alecthomas/assert/v2"
)

func tokenTypes(t *testing.T, src string) []TokenType {
	t.Helper()

	tokens, err := NewTokenizer([]byte(src)).AllTokens()
	assert.NoError(t, err)

	types := make([]TokenType, 0, len(tokens))
	for _, token := range tokens {
		types = append(types, token.Type)
	}

	return types
}

func TestTokenIterator(t *testing.T) {
	tokenizer := NewTokenizer([]byte("count = count + 1\n"))

	expectedTypes := []TokenType{
		NAME, WHITESPACE, OP, WHITESPACE, NAME, WHITESPACE, OP, WHITESPACE, NUMBER, NEWLINE, EOF,
	}

	var actualTypes []TokenType
	for token, err := range tokenizer.Tokens() {
		assert.NoError(t, err)

		actualTypes = append(actualTypes, token.Type)

		if token.Type == EOF {
			break
		}
	}

	assert.Equal(t, expectedTypes, actualTypes)
}

func TestIteratorEarlyTermination(t *testing.T) {
	tokenizer := NewTokenizer([]byte("a = b + c\n"))

	count := 0
	for _, err := range tokenizer.Tokens() {
		assert.NoError(t, err)

		count++
		if count == 3 {
			break
		}
	}

	assert.Equal(t, 3, count)
}

func TestPostfixDetection(t *testing.T) {
	tests := []struct {
		name     string
		src      string
		expected []TokenType
	}{
		{
			name:     "increment",
			src:      "x++\n",
			expected: []TokenType{NAME, INCREMENT, NEWLINE, EOF},
		},
		{
			name:     "decrement with trailing comment",
			src:      "x-- # down\n",
			expected: []TokenType{NAME, DECREMENT, WHITESPACE, COMMENT, NEWLINE, EOF},
		},
		{
			name:     "semicolon separated",
			src:      "x++; y--",
			expected: []TokenType{NAME, INCREMENT, OP, WHITESPACE, NAME, DECREMENT, NEWLINE, EOF},
		},
		{
			name:     "unary plus chain stays binary",
			src:      "a ++b\n",
			expected: []TokenType{NAME, WHITESPACE, OP, OP, NAME, NEWLINE, EOF},
		},
		{
			name:     "triple plus stays binary",
			src:      "x+++y\n",
			expected: []TokenType{NAME, OP, OP, OP, NAME, NEWLINE, EOF},
		},
		{
			name:     "double negation of a number",
			src:      "x--1\n",
			expected: []TokenType{NAME, OP, OP, NUMBER, NEWLINE, EOF},
		},
		{
			name:     "separated signs are not an operator",
			src:      "x+ +\n",
			expected: []TokenType{NAME, OP, WHITESPACE, OP, NEWLINE, EOF},
		},
		{
			name:     "inside brackets is still recognised",
			src:      "(x++)\n",
			expected: []TokenType{OP, NAME, INCREMENT, OP, NEWLINE, EOF},
		},
		{
			name:     "followed by keyword operator",
			src:      "x++ if y else z\n",
			expected: []TokenType{NAME, INCREMENT, WHITESPACE, NAME, WHITESPACE, NAME, WHITESPACE, NAME, WHITESPACE, NAME, NEWLINE, EOF},
		},
		{
			name:     "followed by not",
			src:      "a ++ not b\n",
			expected: []TokenType{NAME, WHITESPACE, OP, OP, WHITESPACE, NAME, WHITESPACE, NAME, NEWLINE, EOF},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tokenTypes(t, tt.src))
		})
	}
}

func TestLogicalLines(t *testing.T) {
	tests := []struct {
		name     string
		src      string
		expected []TokenType
	}{
		{
			name:     "empty input",
			src:      "",
			expected: []TokenType{EOF},
		},
		{
			name:     "comment only",
			src:      "# nothing here",
			expected: []TokenType{COMMENT, EOF},
		},
		{
			name:     "missing final newline",
			src:      "x",
			expected: []TokenType{NAME, NEWLINE, EOF},
		},
		{
			name:     "blank line",
			src:      "x\n\ny\n",
			expected: []TokenType{NAME, NEWLINE, NL, NAME, NEWLINE, EOF},
		},
		{
			name:     "line break inside brackets",
			src:      "f(\n  x\n)\n",
			expected: []TokenType{NAME, OP, NL, WHITESPACE, NAME, NL, OP, NEWLINE, EOF},
		},
		{
			name:     "explicit continuation",
			src:      "a = \\\n  b\n",
			expected: []TokenType{NAME, WHITESPACE, OP, WHITESPACE, CONTINUATION, WHITESPACE, NAME, NEWLINE, EOF},
		},
		{
			name:     "crlf",
			src:      "x++\r\ny\r\n",
			expected: []TokenType{NAME, INCREMENT, NEWLINE, NAME, NEWLINE, EOF},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tokenTypes(t, tt.src))
		})
	}
}

func TestStrings(t *testing.T) {
	tests := []struct {
		name  string
		src   string
		value string
	}{
		{name: "single quoted", src: `'a\'b'`, value: `'a\'b'`},
		{name: "double quoted", src: `"x++"`, value: `"x++"`},
		{name: "raw bytes", src: `rb"\d+"`, value: `rb"\d+"`},
		{name: "triple quoted", src: "'''a\n'b'\n'''", value: "'''a\n'b'\n'''"},
		{name: "f-string with conversion and nested spec", src: `f"{x!r:>{width}} {{y}}"`, value: `f"{x!r:>{width}} {{y}}"`},
		{name: "f-string with nested quotes", src: `f"{d['k'] + "v"}"`, value: `f"{d['k'] + "v"}"`},
		{name: "f-string with dict literal", src: `F'{ {"a": 1}["a"] }'`, value: `F'{ {"a": 1}["a"] }'`},
		{name: "f-string with named escape", src: `f"\N{BULLET} {n}"`, value: `f"\N{BULLET} {n}"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tokens, err := NewTokenizer([]byte("s = " + tt.src + "\n")).AllTokens()
			assert.NoError(t, err)
			assert.Equal(t, STRING, tokens[4].Type)
			assert.Equal(t, tt.value, tokens[4].Value)
			assert.Equal(t, NEWLINE, tokens[5].Type)
		})
	}
}

func TestNumbers(t *testing.T) {
	for _, src := range []string{"0", "1_000", "0x_FF", "0o17", "0b1010", "3.14", ".5", "1e-9", "2.5E+3", "4j", "1.5J"} {
		t.Run(src, func(t *testing.T) {
			tokens, err := NewTokenizer([]byte(src)).AllTokens()
			assert.NoError(t, err)
			assert.Equal(t, NUMBER, tokens[0].Type)
			assert.Equal(t, src, tokens[0].Value)
		})
	}
}

func TestOperatorsLongestMatch(t *testing.T) {
	tokens, err := NewTokenizer([]byte("a **= b // c -> ... := x != y")).AllTokens()
	assert.NoError(t, err)

	var ops []string
	for _, token := range tokens {
		if token.Type == OP {
			ops = append(ops, token.Value)
		}
	}

	assert.Equal(t, []string{"**=", "//", "->", "...", ":=", "!="}, ops)
}

func TestPositions(t *testing.T) {
	tokens, err := NewTokenizer([]byte("a = 1\n  b++\n")).AllTokens()
	assert.NoError(t, err)

	var increment Token
	for _, token := range tokens {
		if token.Type == INCREMENT {
			increment = token
		}
	}

	assert.Equal(t, Position{Line: 2, Column: 4, Offset: 9}, increment.Position)
	assert.Equal(t, Position{Line: 2, Column: 6, Offset: 11}, increment.End)
}

func TestPositionsCountCodePoints(t *testing.T) {
	tokens, err := NewTokenizer([]byte("é++\n")).AllTokens()
	assert.NoError(t, err)
	assert.Equal(t, NAME, tokens[0].Type)
	assert.Equal(t, INCREMENT, tokens[1].Type)
	assert.Equal(t, Position{Line: 1, Column: 2, Offset: 2}, tokens[1].Position)
}

func TestLossless(t *testing.T) {
	src := strings.Join([]string{
		"# header",
		"def f(a, *, b=2) -> int:  # trailing",
		"    total = a + \\",
		"        b",
		"    items[i]++",
		`    msg = f"{total!r:>{w}} done" + '''x`,
		`y'''`,
		"    return (total",
		"            - 1)",
		"x--",
		"",
	}, "\r\n")

	tokens, err := NewTokenizer([]byte(src)).AllTokens()
	assert.NoError(t, err)

	var builder strings.Builder
	for _, token := range tokens {
		builder.WriteString(token.Value)
	}

	assert.Equal(t, src, builder.String())
	assert.Equal(t, EOF, tokens[len(tokens)-1].Type)
}

func TestLeadingByteOrderMark(t *testing.T) {
	src := "\uFEFFx++\n"

	assert.Equal(t, []TokenType{WHITESPACE, NAME, INCREMENT, NEWLINE, EOF}, tokenTypes(t, src))

	tokens, err := NewTokenizer([]byte(src)).AllTokens()
	assert.NoError(t, err)
	assert.Equal(t, "\uFEFF", tokens[0].Value)
	assert.Equal(t, 3, tokens[1].Position.Offset)
}

func TestTokenizerErrors(t *testing.T) {
	tests := []struct {
		name     string
		src      string
		err      error
		position Position
	}{
		{
			name:     "unterminated string",
			src:      "s = \"abc\nx = 1\n",
			err:      ErrUnterminatedString,
			position: Position{Line: 1, Column: 5, Offset: 4},
		},
		{
			name:     "unterminated triple quoted string",
			src:      "s = '''abc\n",
			err:      ErrUnterminatedString,
			position: Position{Line: 1, Column: 5, Offset: 4},
		},
		{
			name:     "bracket never closed",
			src:      "foo(1, 2\n",
			err:      ErrUnbalancedBracket,
			position: Position{Line: 1, Column: 4, Offset: 3},
		},
		{
			name:     "unmatched closing bracket",
			src:      "x = )\n",
			err:      ErrUnbalancedBracket,
			position: Position{Line: 1, Column: 5, Offset: 4},
		},
		{
			name:     "mismatched bracket",
			src:      "x = [1)\n",
			err:      ErrUnbalancedBracket,
			position: Position{Line: 1, Column: 7, Offset: 6},
		},
		{
			name:     "unexpected character",
			src:      "x = $y\n",
			err:      ErrUnexpectedCharacter,
			position: Position{Line: 1, Column: 5, Offset: 4},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewTokenizer([]byte(tt.src)).AllTokens()
			assert.Error(t, err)
			assert.True(t, errors.Is(err, tt.err))

			var tokErr *Error
			assert.True(t, errors.As(err, &tokErr))
			assert.Equal(t, tt.position, tokErr.Position)
		})
	}
}

func TestIteratorYieldsError(t *testing.T) {
	var lastErr error

	count := 0
	for _, err := range NewTokenizer([]byte("x = 'oops\n")).Tokens() {
		if err != nil {
			lastErr = err
			break
		}

		count++
	}

	assert.Equal(t, 4, count)
	assert.IsError(t, lastErr, ErrUnterminatedString)
}
