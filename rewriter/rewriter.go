package rewriter

import (
	"bytes"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/shibukawa/pyplusplus"
	"github.com/shibukawa/pyplusplus/parser"
	tok "github.com/shibukawa/pyplusplus/tokenizer"
)

// DefaultTempPrefix is the prefix of temporaries introduced by the lowering
const DefaultTempPrefix = "_pp_"

// ErrInvalidTempPrefix is returned when the temporary prefix is not an identifier
var ErrInvalidTempPrefix = errors.New("temporary prefix must be a Python identifier")

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Options controls the lowering
type Options struct {
	TempPrefix string
}

// Unit is the lowered form of a source unit
type Unit struct {
	Fingerprint string      `json:"fingerprint" yaml:"fingerprint"`
	Source      []byte      `json:"source" yaml:"-"`
	Rewrites    int         `json:"rewrites" yaml:"rewrites"`
	Map         PositionMap `json:"map" yaml:"map"`
}

// Rewrite lowers every postfix statement of tree to standard Python.
//
//	x++       ->  x += 1
//	c.a++     ->  _pp_obj0 = c; _pp_obj0.a += 1; del _pp_obj0
//	c[k]--    ->  _pp_obj0 = c; _pp_key0 = (k); _pp_obj0[_pp_key0] -= 1; del _pp_obj0, _pp_key0
//
// Container and key are evaluated exactly once. No line break is added or
// removed, so line N of the result is line N of the input. A tree without
// postfix statements is returned with its source unchanged.
func Rewrite(tree *parser.Tree, opts ...Options) (*Unit, error) {
	var opt Options
	if len(opts) > 0 {
		opt = opts[0]
	}

	if opt.TempPrefix == "" {
		opt.TempPrefix = DefaultTempPrefix
	}

	if !identifierPattern.MatchString(opt.TempPrefix) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTempPrefix, opt.TempPrefix)
	}

	unit := &Unit{
		Fingerprint: pyplusplus.Fingerprint(tree.Source),
		Source:      tree.Source,
	}

	if !tree.HasPostfix() {
		return unit, nil
	}

	e := &emitter{line: 1, column: 1}
	e.buf.Grow(len(tree.Source) + 64)

	l := &lowering{
		tree:   tree,
		e:      e,
		prefix: tempPrefix(opt.TempPrefix, tree.Names),
	}

	for _, node := range tree.Nodes {
		switch n := node.(type) {
		case *parser.Passthrough:
			e.copyText(tree.Text(n.Span), n.Span.Start, nil)
		case *parser.PostfixStmt:
			l.lower(n)
			unit.Rewrites++
		}
	}

	unit.Source = e.buf.Bytes()
	unit.Map = PositionMap{Anchors: e.anchors}

	return unit, nil
}

// tempPrefix extends base until no identifier of the unit starts with it
func tempPrefix(base string, names map[string]bool) string {
	prefix := base

	for {
		collides := false

		for name := range names {
			if strings.HasPrefix(name, prefix) {
				collides = true
				break
			}
		}

		if !collides {
			return prefix
		}

		prefix += "_"
	}
}

type lowering struct {
	tree    *parser.Tree
	e       *emitter
	prefix  string
	counter int
}

func (l *lowering) lower(stmt *parser.PostfixStmt) {
	target := stmt.Target
	update := " " + stmt.Op.Augmented() + " 1"

	switch target.Kind {
	case parser.NameTarget:
		l.copy(target.Span, stmt)
		l.synthetic(update, stmt)
	case parser.AttributeTarget:
		obj := l.temp("obj")
		l.counter++

		l.synthetic(obj+" = ", stmt)
		l.copy(target.Container, stmt)
		l.synthetic("; "+obj+"."+target.Attr+update+"; del "+obj, stmt)
	case parser.SubscriptTarget:
		obj := l.temp("obj")
		key := l.temp("key")
		l.counter++

		l.synthetic(obj+" = ", stmt)
		l.copy(target.Container, stmt)

		if target.InlineKey {
			l.synthetic("; "+obj+"[", stmt)
			l.copy(target.Key, stmt)
			l.synthetic("]"+update+"; del "+obj, stmt)
		} else {
			l.synthetic("; "+key+" = (", stmt)
			l.copy(target.Key, stmt)
			l.synthetic("); "+obj+"["+key+"]"+update+"; del "+obj+", "+key, stmt)
		}
	}

	for _, lineBreak := range stmt.LineBreaks {
		l.synthetic(" \\"+lineBreak, stmt)
	}
}

func (l *lowering) temp(role string) string {
	return l.prefix + role + strconv.Itoa(l.counter)
}

func (l *lowering) copy(span tok.Span, stmt *parser.PostfixStmt) {
	l.e.copyText(l.tree.Text(span), span.Start, stmt)
}

func (l *lowering) synthetic(text string, stmt *parser.PostfixStmt) {
	l.e.syntheticText(text, stmt)
}

// emitter writes rewritten text while tracking the output position
type emitter struct {
	buf     bytes.Buffer
	line    int
	column  int
	anchors []Anchor
}

func (e *emitter) copyText(text string, from tok.Position, stmt *parser.PostfixStmt) {
	if text == "" {
		return
	}

	anchor := Anchor{OrigLine: from.Line, OrigColumn: from.Column}
	if stmt != nil {
		anchor.Start = pointOf(stmt.Span.Start)
		anchor.End = pointOf(stmt.Span.End)
	}

	e.anchor(anchor)
	e.write(text)
}

func (e *emitter) syntheticText(text string, stmt *parser.PostfixStmt) {
	if text == "" {
		return
	}

	e.anchor(Anchor{
		OrigLine:   stmt.Span.Start.Line,
		OrigColumn: stmt.Span.Start.Column,
		Synthetic:  true,
		Start:      pointOf(stmt.Span.Start),
		End:        pointOf(stmt.Span.End),
	})
	e.write(text)
}

func (e *emitter) anchor(a Anchor) {
	a.Line = e.line
	a.Column = e.column

	if n := len(e.anchors); n > 0 && e.anchors[n-1].Line == a.Line && e.anchors[n-1].Column == a.Column {
		e.anchors[n-1] = a
		return
	}

	e.anchors = append(e.anchors, a)
}

// write appends text; line breaks follow the tokenizer's rules
func (e *emitter) write(text string) {
	e.buf.WriteString(text)

	for i, r := range text {
		if r == '\n' || (r == '\r' && (i+1 >= len(text) || text[i+1] != '\n')) {
			e.line++
			e.column = 1
		} else {
			e.column++
		}
	}
}
