package rewriter

import (
	"sort"

	tok "github.com/shibukawa/pyplusplus/tokenizer"
)

// Point is a 1-based line and code point column
type Point struct {
	Line   int `json:"line" yaml:"line"`
	Column int `json:"column" yaml:"column"`
}

func pointOf(p tok.Position) Point {
	return Point{Line: p.Line, Column: p.Column}
}

func (p Point) before(other Point) bool {
	return p.Line < other.Line || (p.Line == other.Line && p.Column < other.Column)
}

// Anchor marks where a run of rewritten text begins.
// Copied runs map back by offset from the anchor. Synthetic runs, the text the
// lowering introduces, map to the start of the statement they came from.
type Anchor struct {
	Line       int   `json:"line" yaml:"line"`
	Column     int   `json:"column" yaml:"column"`
	OrigLine   int   `json:"orig_line" yaml:"orig_line"`
	OrigColumn int   `json:"orig_column" yaml:"orig_column"`
	Synthetic  bool  `json:"synthetic,omitempty" yaml:"synthetic,omitempty"`
	Start      Point `json:"start" yaml:"start"`
	End        Point `json:"end" yaml:"end"`
}

// PositionMap translates positions in rewritten source back to the original.
// Anchors are ordered by rewritten position.
type PositionMap struct {
	Anchors []Anchor `json:"anchors" yaml:"anchors"`
}

// Original returns the original position of a rewritten position.
// Positions outside rewritten statements map to themselves.
func (m PositionMap) Original(pos Point) Point {
	i := sort.Search(len(m.Anchors), func(i int) bool {
		a := m.Anchors[i]
		return pos.before(Point{Line: a.Line, Column: a.Column})
	})
	if i == 0 {
		return pos
	}

	a := m.Anchors[i-1]

	switch {
	case a.Synthetic:
		return a.Start
	case a.Line == pos.Line:
		return Point{Line: a.OrigLine, Column: a.OrigColumn + pos.Column - a.Column}
	default:
		// copied text is byte-identical after its first line break
		return Point{Line: a.OrigLine + pos.Line - a.Line, Column: pos.Column}
	}
}

// Statement returns the original span of the rewritten statement covering
// pos, or false when pos lies in unchanged text.
func (m PositionMap) Statement(pos Point) (start, end Point, ok bool) {
	i := sort.Search(len(m.Anchors), func(i int) bool {
		a := m.Anchors[i]
		return pos.before(Point{Line: a.Line, Column: a.Column})
	})
	if i == 0 {
		return Point{}, Point{}, false
	}

	a := m.Anchors[i-1]
	if a.Start == (Point{}) {
		return Point{}, Point{}, false
	}

	return a.Start, a.End, true
}

// IsIdentity reports whether the map changes no position
func (m PositionMap) IsIdentity() bool {
	return len(m.Anchors) == 0
}
