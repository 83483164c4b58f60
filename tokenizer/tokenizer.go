package tokenizer

import (
	"iter"
	"strings"
	"unicode"
	"unicode/utf8"
)

// TokenIterator uses Go 1.24 iterator pattern
type TokenIterator iter.Seq2[Token, error]

// Tokenizer is a lossless Python tokenizer: concatenating the values of all
// tokens reproduces the input exactly.
type Tokenizer struct {
	input string
}

// NewTokenizer creates a new Tokenizer
func NewTokenizer(src []byte) *Tokenizer {
	return &Tokenizer{input: string(src)}
}

// Tokens returns an iterator of tokens.
// Recognising a postfix operator needs the token after it, so the input is
// lexed completely before the first token is yielded. A lexical error is
// yielded after the tokens that precede it.
func (t *Tokenizer) Tokens() TokenIterator {
	return func(yield func(Token, error) bool) {
		tokens, err := t.lex()
		for _, token := range tokens {
			if !yield(token, nil) {
				return
			}
		}

		if err != nil {
			yield(Token{}, err)
		}
	}
}

// AllTokens gets all tokens as a slice
func (t *Tokenizer) AllTokens() ([]Token, error) {
	tokens, err := t.lex()
	if err != nil {
		return tokens, err
	}

	return tokens, nil
}

func (t *Tokenizer) lex() ([]Token, error) {
	l := &lexer{
		input:  t.input,
		line:   1,
		column: 1,
		tokens: make([]Token, 0, len(t.input)/3+2),
	}

	err := l.run()

	return markPostfix(l.tokens), err
}

// Internal lexer implementation
type lexer struct {
	input          string
	pos            int
	line           int
	column         int
	brackets       []Token
	lineHasContent bool
	tokens         []Token
}

func (l *lexer) run() error {
	if strings.HasPrefix(l.input, "\uFEFF") {
		start := l.position()
		l.advance()
		l.emit(WHITESPACE, start)
	}

	for !l.eof() {
		start := l.position()
		c := l.peek()

		switch {
		case c == ' ' || c == '\t' || c == '\f':
			for !l.eof() && isBlank(l.peek()) {
				l.advance()
			}

			l.emit(WHITESPACE, start)
		case c == '\n' || c == '\r':
			l.readLineBreak()

			if len(l.brackets) == 0 && l.lineHasContent {
				l.emit(NEWLINE, start)
				l.lineHasContent = false
			} else {
				l.emit(NL, start)
			}
		case c == '\\':
			l.advance()

			if l.peek() != '\n' && l.peek() != '\r' {
				return &Error{Err: ErrUnexpectedCharacter, Position: start, Detail: "unexpected character after line continuation"}
			}

			l.readLineBreak()
			l.emit(CONTINUATION, start)
		case c == '#':
			for !l.eof() && l.peek() != '\n' && l.peek() != '\r' {
				l.advance()
			}

			l.emit(COMMENT, start)
		case c == '"' || c == '\'':
			if err := l.readString(start, ""); err != nil {
				return err
			}
		case isDigit(c) || (c == '.' && isDigit(rune(l.peekByte(1)))):
			l.readNumber()
			l.emit(NUMBER, start)
		case isIdentStart(c):
			if err := l.readName(start); err != nil {
				return err
			}
		default:
			if err := l.readOperator(start); err != nil {
				return err
			}
		}
	}

	if len(l.brackets) > 0 {
		open := l.brackets[len(l.brackets)-1]
		return &Error{Err: ErrUnbalancedBracket, Position: open.Position, Detail: "'" + open.Value + "' was never closed"}
	}

	end := l.position()
	if l.lineHasContent {
		l.tokens = append(l.tokens, Token{Type: NEWLINE, Position: end, End: end})
	}

	l.tokens = append(l.tokens, Token{Type: EOF, Position: end, End: end})

	return nil
}

func (l *lexer) eof() bool {
	return l.pos >= len(l.input)
}

func (l *lexer) position() Position {
	return Position{Line: l.line, Column: l.column, Offset: l.pos}
}

// peek looks at the next character without consuming it
func (l *lexer) peek() rune {
	if l.eof() {
		return 0
	}

	r, _ := utf8.DecodeRuneInString(l.input[l.pos:])

	return r
}

// peekByte looks n bytes ahead; only used for ASCII lookahead
func (l *lexer) peekByte(n int) byte {
	if l.pos+n >= len(l.input) {
		return 0
	}

	return l.input[l.pos+n]
}

// advance consumes one character and keeps line/column current
func (l *lexer) advance() rune {
	r, size := utf8.DecodeRuneInString(l.input[l.pos:])
	l.pos += size

	if r == '\n' || (r == '\r' && l.peekByte(0) != '\n') {
		l.line++
		l.column = 1
	} else {
		l.column++
	}

	return r
}

func (l *lexer) emit(tokenType TokenType, start Position) {
	switch tokenType {
	case NAME, NUMBER, STRING, OP:
		l.lineHasContent = true
	}

	l.tokens = append(l.tokens, Token{
		Type:     tokenType,
		Value:    l.input[start.Offset:l.pos],
		Position: start,
		End:      l.position(),
	})
}

func (l *lexer) readLineBreak() {
	if l.peek() == '\r' {
		l.advance()
	}

	if l.peek() == '\n' {
		l.advance()
	}
}

// readName reads identifiers, keywords, and string prefixes
func (l *lexer) readName(start Position) error {
	for !l.eof() && isIdentContinue(l.peek()) {
		l.advance()
	}

	word := l.input[start.Offset:l.pos]
	if q := l.peek(); (q == '"' || q == '\'') && isStringPrefix(word) {
		return l.readString(start, word)
	}

	l.emit(NAME, start)

	return nil
}

// readString reads a string literal starting at the opening quote
func (l *lexer) readString(start Position, prefix string) error {
	lower := strings.ToLower(prefix)
	raw := strings.Contains(lower, "r")
	formatted := strings.ContainsAny(lower, "ft")

	if err := l.scanString(raw, formatted); err != nil {
		return &Error{Err: err, Position: start}
	}

	l.emit(STRING, start)

	return nil
}

func (l *lexer) scanString(raw, formatted bool) error {
	quote := l.advance()
	triple := false

	if rune(l.peekByte(0)) == quote && rune(l.peekByte(1)) == quote {
		l.advance()
		l.advance()

		triple = true
	}

	for {
		if l.eof() {
			return ErrUnterminatedString
		}

		c := l.peek()

		switch {
		case c == '\\':
			l.advance()

			if l.eof() {
				return ErrUnterminatedString
			}

			next := l.peek()
			if formatted && (next == '{' || next == '}') {
				continue
			}

			if formatted && !raw && next == 'N' && l.peekByte(1) == '{' {
				for !l.eof() && l.peek() != '}' {
					l.advance()
				}

				if l.eof() {
					return ErrUnterminatedString
				}

				l.advance()

				continue
			}

			l.advance()
		case c == quote:
			if !triple {
				l.advance()
				return nil
			}

			if rune(l.peekByte(1)) == quote && rune(l.peekByte(2)) == quote {
				l.advance()
				l.advance()
				l.advance()

				return nil
			}

			l.advance()
		case (c == '\n' || c == '\r') && !triple:
			return ErrUnterminatedString
		case formatted && c == '{':
			if l.peekByte(1) == '{' {
				l.advance()
				l.advance()

				continue
			}

			l.advance()

			if err := l.scanReplacementField(); err != nil {
				return err
			}
		default:
			l.advance()
		}
	}
}

// scanReplacementField skips an f-string replacement field up to and including
// its closing brace. Nested strings and format specs are followed.
func (l *lexer) scanReplacementField() error {
	depth := 0

	for {
		if l.eof() {
			return ErrUnterminatedString
		}

		c := l.peek()

		switch {
		case c == '"' || c == '\'':
			if err := l.scanString(false, false); err != nil {
				return err
			}
		case isIdentStart(c):
			wordStart := l.pos
			for !l.eof() && isIdentContinue(l.peek()) {
				l.advance()
			}

			word := l.input[wordStart:l.pos]
			if q := l.peek(); (q == '"' || q == '\'') && isStringPrefix(word) {
				lower := strings.ToLower(word)
				if err := l.scanString(strings.Contains(lower, "r"), strings.ContainsAny(lower, "ft")); err != nil {
					return err
				}
			}
		case c == '(' || c == '[' || c == '{':
			depth++

			l.advance()
		case c == ')' || c == ']':
			depth--

			l.advance()
		case c == '}':
			l.advance()

			if depth == 0 {
				return nil
			}

			depth--
		case c == ':' && depth == 0:
			l.advance()
			return l.scanFormatSpec()
		case c == '#':
			for !l.eof() && l.peek() != '\n' && l.peek() != '\r' {
				l.advance()
			}
		default:
			l.advance()
		}
	}
}

func (l *lexer) scanFormatSpec() error {
	for {
		if l.eof() {
			return ErrUnterminatedString
		}

		switch l.peek() {
		case '{':
			l.advance()

			if err := l.scanReplacementField(); err != nil {
				return err
			}
		case '}':
			l.advance()
			return nil
		default:
			l.advance()
		}
	}
}

// readNumber reads numeric literals
func (l *lexer) readNumber() {
	if l.peek() == '0' && strings.IndexByte("xXoObB", l.peekByte(1)) >= 0 {
		l.advance()
		l.advance()

		for !l.eof() && (isHexDigit(l.peek()) || l.peek() == '_') {
			l.advance()
		}

		return
	}

	for !l.eof() {
		c := l.peek()

		switch {
		case isDigit(c) || c == '_' || c == '.':
			l.advance()
		case c == 'e' || c == 'E':
			l.advance()

			if p := l.peek(); p == '+' || p == '-' {
				l.advance()
			}
		case c == 'j' || c == 'J':
			l.advance()
			return
		default:
			return
		}
	}
}

var (
	operators3 = []string{"**=", "//=", ">>=", "<<=", "..."}
	operators2 = []string{
		"**", "//", ">>", "<<", "<=", ">=", "==", "!=", "->", ":=",
		"+=", "-=", "*=", "/=", "%=", "&=", "|=", "^=", "@=",
	}
	operators1 = "+-*/%@&|^~<>()[]{},:;.=!"
	closers    = map[string]string{")": "(", "]": "[", "}": "{"}
)

// readOperator reads operators and delimiters with longest match
func (l *lexer) readOperator(start Position) error {
	rest := l.input[l.pos:]

	for _, group := range [][]string{operators3, operators2} {
		for _, op := range group {
			if strings.HasPrefix(rest, op) {
				for range op {
					l.advance()
				}

				l.emit(OP, start)

				return nil
			}
		}
	}

	c := l.peek()
	if c >= utf8.RuneSelf || strings.IndexByte(operators1, byte(c)) < 0 {
		return &Error{Err: ErrUnexpectedCharacter, Position: start, Detail: "'" + string(c) + "'"}
	}

	l.advance()
	l.emit(OP, start)

	token := l.tokens[len(l.tokens)-1]

	switch token.Value {
	case "(", "[", "{":
		l.brackets = append(l.brackets, token)
	case ")", "]", "}":
		if len(l.brackets) == 0 {
			return &Error{Err: ErrUnbalancedBracket, Position: start, Detail: "unmatched '" + token.Value + "'"}
		}

		open := l.brackets[len(l.brackets)-1]
		if open.Value != closers[token.Value] {
			return &Error{Err: ErrUnbalancedBracket, Position: start, Detail: "closing '" + token.Value + "' does not match '" + open.Value + "'"}
		}

		l.brackets = l.brackets[:len(l.brackets)-1]
	}

	return nil
}

// markPostfix merges two adjacent '+' (or '-') tokens into an INCREMENT (or
// DECREMENT) token when nothing that could start an operand follows them.
// In every other case the pair stays two ordinary operators, so valid Python
// such as "a ++b" or "x--1" is untouched.
func markPostfix(tokens []Token) []Token {
	result := make([]Token, 0, len(tokens))

	for i := 0; i < len(tokens); i++ {
		token := tokens[i]

		if (token.IsOp("+") || token.IsOp("-")) && i+1 < len(tokens) {
			next := tokens[i+1]
			if next.IsOp(token.Value) && next.Position.Offset == token.End.Offset && !startsOperand(nextSignificant(tokens, i+2)) {
				tokenType := INCREMENT
				if token.Value == "-" {
					tokenType = DECREMENT
				}

				result = append(result, Token{
					Type:     tokenType,
					Value:    token.Value + next.Value,
					Position: token.Position,
					End:      next.End,
				})
				i++

				continue
			}
		}

		result = append(result, token)
	}

	return result
}

func nextSignificant(tokens []Token, from int) Token {
	for i := from; i < len(tokens); i++ {
		if tokens[i].IsSignificant() {
			return tokens[i]
		}
	}

	return Token{Type: EOF}
}

// operandKeywords are keywords that may begin an expression operand
var operandKeywords = map[string]bool{
	"not": true, "lambda": true, "await": true,
	"None": true, "True": true, "False": true,
}

func startsOperand(token Token) bool {
	switch token.Type {
	case NUMBER, STRING:
		return true
	case NAME:
		return !IsKeyword(token.Value) || operandKeywords[token.Value]
	case OP:
		switch token.Value {
		case "(", "[", "{", "+", "-", "~", "...":
			return true
		}
	}

	return false
}

var keywords = map[string]bool{
	"False": true, "None": true, "True": true, "and": true, "as": true,
	"assert": true, "async": true, "await": true, "break": true, "class": true,
	"continue": true, "def": true, "del": true, "elif": true, "else": true,
	"except": true, "finally": true, "for": true, "from": true, "global": true,
	"if": true, "import": true, "in": true, "is": true, "lambda": true,
	"nonlocal": true, "not": true, "or": true, "pass": true, "raise": true,
	"return": true, "try": true, "while": true, "with": true, "yield": true,
}

// IsKeyword reports whether word is a hard Python keyword
func IsKeyword(word string) bool {
	return keywords[word]
}

var stringPrefixes = map[string]bool{
	"r": true, "u": true, "f": true, "b": true, "t": true,
	"br": true, "rb": true, "fr": true, "rf": true, "tr": true, "rt": true,
}

func isStringPrefix(word string) bool {
	return stringPrefixes[strings.ToLower(word)]
}

func isBlank(c rune) bool {
	return c == ' ' || c == '\t' || c == '\f'
}

func isDigit(c rune) bool {
	return c >= '0' && c <= '9'
}

func isHexDigit(c rune) bool {
	return isDigit(c) || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

func isIdentStart(c rune) bool {
	if c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') {
		return true
	}

	if c < utf8.RuneSelf || c == utf8.RuneError {
		return false
	}

	return unicode.IsLetter(c) || unicode.In(c, unicode.Nl, unicode.Other_ID_Start)
}

func isIdentContinue(c rune) bool {
	if isIdentStart(c) || isDigit(c) {
		return true
	}

	if c < utf8.RuneSelf || c == utf8.RuneError {
		return false
	}

	return unicode.In(c, unicode.Mn, unicode.Mc, unicode.Nd, unicode.Pc, unicode.Other_ID_Continue)
}
