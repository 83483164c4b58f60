package parser

import (
	"errors"
	"strings"
	"testing"

	"github.com/alecthomas/assert/v2"

	"github.com/shibukawa/pyplusplus"
	"github.com/shibukawa/pyplusplus/testhelper"
	tok "github.com/shibukawa/pyplusplus/tokenizer"
)

func TestParseWithoutPostfix(t *testing.T) {
	src := []byte("a = 1\nb = a + +1\nc = a ++b\n")

	tree, err := Parse(src)
	assert.NoError(t, err)
	assert.False(t, tree.HasPostfix())
	assert.Equal(t, 1, len(tree.Nodes))
	assert.Equal(t, string(src), tree.Text(tree.Nodes[0].NodeSpan()))
}

func TestParseEmptySource(t *testing.T) {
	tree, err := Parse(nil)
	assert.NoError(t, err)
	assert.False(t, tree.HasPostfix())
}

func TestParsePostfixTargets(t *testing.T) {
	tests := []struct {
		name      string
		src       string
		kind      TargetKind
		op        Op
		stmt      string
		container string
		attr      string
		key       string
		inlineKey bool
	}{
		{name: "name", src: "x++\n", kind: NameTarget, op: Increment, stmt: "x++"},
		{name: "name decrement", src: "count--\n", kind: NameTarget, op: Decrement, stmt: "count--"},
		{name: "attribute", src: "obj.count--\n", kind: AttributeTarget, op: Decrement, stmt: "obj.count--", container: "obj", attr: "count"},
		{name: "nested attribute", src: "a.b.c++\n", kind: AttributeTarget, op: Increment, stmt: "a.b.c++", container: "a.b", attr: "c"},
		{name: "attribute of call", src: "f(x).y++\n", kind: AttributeTarget, op: Increment, stmt: "f(x).y++", container: "f(x)", attr: "y"},
		{name: "subscript", src: "items[i + 1]++\n", kind: SubscriptTarget, op: Increment, stmt: "items[i + 1]++", container: "items", key: "i + 1"},
		{name: "nested subscript", src: "grid[r][c]--\n", kind: SubscriptTarget, op: Decrement, stmt: "grid[r][c]--", container: "grid[r]", key: "c"},
		{name: "tuple key", src: "m[a, b]++\n", kind: SubscriptTarget, op: Increment, stmt: "m[a, b]++", container: "m", key: "a, b"},
		{name: "slice key", src: "buf[1:3]++\n", kind: SubscriptTarget, op: Increment, stmt: "buf[1:3]++", container: "buf", key: "1:3", inlineKey: true},
		{name: "starred key", src: "t[*idx]++\n", kind: SubscriptTarget, op: Increment, stmt: "t[*idx]++", container: "t", key: "*idx", inlineKey: true},
		{name: "after compound header", src: "for i in range(3): total++\n", kind: NameTarget, op: Increment, stmt: "total++"},
		{name: "after semicolon", src: "d = {1: 2}; d[1]++\n", kind: SubscriptTarget, op: Increment, stmt: "d[1]++", container: "d", key: "1"},
		{name: "after annotation", src: "x: int = 0; x++\n", kind: NameTarget, op: Increment, stmt: "x++"},
		{name: "followed by comment", src: "n-- # done\n", kind: NameTarget, op: Decrement, stmt: "n--"},
		{name: "soft keyword as name", src: "match++\n", kind: NameTarget, op: Increment, stmt: "match++"},
		{name: "no final newline", src: "x++", kind: NameTarget, op: Increment, stmt: "x++"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tree, err := Parse([]byte(tt.src))
			assert.NoError(t, err)

			stmts := tree.Postfix()
			assert.Equal(t, 1, len(stmts))

			stmt := stmts[0]
			assert.Equal(t, tt.kind, stmt.Target.Kind)
			assert.Equal(t, tt.op, stmt.Op)
			assert.Equal(t, tt.stmt, tree.Text(stmt.Span))
			assert.Equal(t, tt.op.String(), tree.Text(stmt.OpSpan))

			if tt.kind != NameTarget {
				assert.Equal(t, tt.container, tree.Text(stmt.Target.Container))
			}

			assert.Equal(t, tt.attr, stmt.Target.Attr)

			if tt.kind == SubscriptTarget {
				assert.Equal(t, tt.key, tree.Text(stmt.Target.Key))
			}

			assert.Equal(t, tt.inlineKey, stmt.Target.InlineKey)
		})
	}
}

func TestParseNodesCoverSource(t *testing.T) {
	src := testhelper.TrimIndent(t, `
		def tick(state):
		    state.count++
		    state.hist[state.count]++  # record
		    while state.left: state.left--
		    return state
		`)

	tree, err := Parse([]byte(src))
	assert.NoError(t, err)
	assert.Equal(t, 3, len(tree.Postfix()))

	var b strings.Builder
	for _, node := range tree.Nodes {
		b.WriteString(tree.Text(node.NodeSpan()))
	}

	assert.Equal(t, src, b.String())

	first := tree.Postfix()[0]
	assert.Equal(t, tok.Position{Line: 2, Column: 5, Offset: 21}, first.Span.Start)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name     string
		src      string
		message  string
		position tok.Position
	}{
		{name: "assignment value", src: "y = x++\n", message: "cannot be used inside an expression", position: tok.Position{Line: 1, Column: 6, Offset: 5}},
		{name: "call argument", src: "print(x++)\n", message: "cannot be used inside an expression", position: tok.Position{Line: 1, Column: 8, Offset: 7}},
		{name: "lambda body", src: "f = lambda: x++\n", message: "cannot be used inside an expression", position: tok.Position{Line: 1, Column: 14, Offset: 13}},
		{name: "return value", src: "return x++\n", message: "cannot be used inside an expression", position: tok.Position{Line: 1, Column: 9, Offset: 8}},
		{name: "conditional expression", src: "x++ if y else z\n", message: "cannot be used inside an expression", position: tok.Position{Line: 1, Column: 2, Offset: 1}},
		{name: "literal", src: "5++\n", message: "cannot apply '++' to a literal", position: tok.Position{Line: 1, Column: 1, Offset: 0}},
		{name: "string literal", src: "'a' 'b'--\n", message: "cannot apply '--' to a literal", position: tok.Position{Line: 1, Column: 1, Offset: 0}},
		{name: "keyword constant", src: "None++\n", message: "cannot apply '++' to None", position: tok.Position{Line: 1, Column: 1, Offset: 0}},
		{name: "call", src: "    f()++\n", message: "cannot apply '++' to a function call", position: tok.Position{Line: 1, Column: 5, Offset: 4}},
		{name: "parenthesized", src: "(x)--\n", message: "parenthesized", position: tok.Position{Line: 1, Column: 1, Offset: 0}},
		{name: "no target", src: "++\n", message: "has no target", position: tok.Position{Line: 1, Column: 1, Offset: 0}},
		{name: "parenthesized assignment value", src: "x = (y++ )\n", message: "cannot be used inside an expression", position: tok.Position{Line: 1, Column: 7, Offset: 6}},
		{name: "second line", src: "a = 1\nb = [a++]\n", message: "cannot be used inside an expression", position: tok.Position{Line: 2, Column: 7, Offset: 12}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.src))
			assert.Error(t, err)
			assert.True(t, errors.Is(err, pyplusplus.ErrExtensionSyntax))
			assert.False(t, errors.Is(err, pyplusplus.ErrHostSyntax))

			var extErr *ExtensionSyntaxError
			assert.True(t, errors.As(err, &extErr))
			assert.Contains(t, extErr.Message, tt.message)
			assert.Equal(t, tt.position, extErr.Position)
		})
	}
}

func TestParseLexicalErrorIsHostError(t *testing.T) {
	src := []byte("x++\ns = 'abc\ny--\n")

	tree, err := Parse(src)
	assert.Error(t, err)
	assert.True(t, errors.Is(err, pyplusplus.ErrHostSyntax))
	assert.True(t, errors.Is(err, tok.ErrUnterminatedString))

	var hostErr *HostSyntaxError
	assert.True(t, errors.As(err, &hostErr))
	assert.Equal(t, 2, hostErr.Position.Line)
	assert.Equal(t, 5, hostErr.Position.Column)

	assert.True(t, tree != nil)
	assert.Equal(t, 1, len(tree.Postfix()))
	assert.Equal(t, "x", tree.Text(tree.Postfix()[0].Target.Span))

	last := tree.Nodes[len(tree.Nodes)-1].NodeSpan()
	assert.Equal(t, "\ns = 'abc\ny--\n", tree.Text(last))
	assert.Equal(t, tok.Position{Line: 4, Column: 1, Offset: len(src)}, last.End)
}

func TestParseLexicalErrorBeforeAnyCompleteLine(t *testing.T) {
	src := []byte("f(x++\n")

	tree, err := Parse(src)
	assert.True(t, errors.Is(err, pyplusplus.ErrHostSyntax))
	assert.False(t, tree.HasPostfix())
	assert.Equal(t, 1, len(tree.Nodes))
	assert.Equal(t, string(src), tree.Text(tree.Nodes[0].NodeSpan()))
}

func TestEndPosition(t *testing.T) {
	assert.Equal(t, tok.Position{Line: 1, Column: 1}, endPosition(nil))
	assert.Equal(t, tok.Position{Line: 1, Column: 3, Offset: 3}, endPosition([]byte("aé")))
	assert.Equal(t, tok.Position{Line: 3, Column: 2, Offset: 6}, endPosition([]byte("a\r\nb\nc")))
	assert.Equal(t, tok.Position{Line: 3, Column: 1, Offset: 3}, endPosition([]byte("a\r\r")))
}

func TestParseCollectsNormalizedNames(t *testing.T) {
	tree, err := Parse([]byte("_pp_obj0 = 1\nｘ = 2\nx++\n"))
	assert.NoError(t, err)
	assert.True(t, tree.Names["_pp_obj0"])
	assert.True(t, tree.Names["x"])
	assert.False(t, tree.Names["ｘ"])
}

func TestParseEscapedLineBreaks(t *testing.T) {
	tree, err := Parse([]byte("a.b \\\n++\nc[(1,\n 2)]++\n"))
	assert.NoError(t, err)

	stmts := tree.Postfix()
	assert.Equal(t, 2, len(stmts))
	assert.Equal(t, []string{"\n"}, stmts[0].LineBreaks)
	assert.Equal(t, 0, len(stmts[1].LineBreaks))
}

func TestFormatDiagnostic(t *testing.T) {
	src := []byte("a = 1\ny = x++\n")

	_, err := Parse(src)
	assert.Error(t, err)

	expected := "m.py:2:6: '++' cannot be used inside an expression; it must be a statement of its own\n" +
		"   2 | y = x++\n" +
		"     |      ^\n"
	assert.Equal(t, expected, FormatDiagnostic("m.py", src, err))
}

func TestFormatDiagnosticKeepsTabs(t *testing.T) {
	src := []byte("if a:\n\tf()++\n")

	_, err := Parse(src)
	assert.Error(t, err)
	assert.True(t, strings.HasSuffix(FormatDiagnostic("t.py", src, err), "   2 | \tf()++\n     | \t^\n"))
}

func TestFormatDiagnosticWithoutPosition(t *testing.T) {
	assert.Equal(t, "m.py: boom\n", FormatDiagnostic("m.py", nil, errors.New("boom")))
}
