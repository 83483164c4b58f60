// Package engine composes the parser, the rewriter, and the rewrite cache.
package engine

import (
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/shibukawa/pyplusplus"
	"github.com/shibukawa/pyplusplus/cache"
	"github.com/shibukawa/pyplusplus/parser"
	"github.com/shibukawa/pyplusplus/rewriter"
	tok "github.com/shibukawa/pyplusplus/tokenizer"
)

// Options controls the pipeline
type Options struct {
	// HostCheck validates lowered output against the Python grammar
	HostCheck  bool
	TempPrefix string
}

// Engine turns extended Python into standard Python
type Engine struct {
	cache *cache.Cache
	opts  Options
}

// New creates an engine backed by c
func New(c *cache.Cache, opts Options) *Engine {
	return &Engine{cache: c, opts: opts}
}

// Rewrite returns the lowered form of unit, computing it at most once per
// source and option set. Source the tokenizer stops on is lowered up to the
// last complete line before the error, so the interpreter reports the error
// itself at its real position.
func (e *Engine) Rewrite(unit pyplusplus.SourceUnit) (*rewriter.Unit, error) {
	return e.cache.GetOrCompute(e.cacheKey(unit), func() (*rewriter.Unit, error) {
		tree, err := parser.Parse(unit.Bytes)

		var hostErr *parser.HostSyntaxError
		if errors.As(err, &hostErr) && tree != nil {
			return e.rewrite(tree)
		}

		if err != nil {
			return nil, err
		}

		return e.finish(unit, tree, e.opts.HostCheck)
	})
}

// Lower parses and rewrites unit without the cache. Unlike Rewrite it
// reports lexical errors.
func (e *Engine) Lower(unit pyplusplus.SourceUnit) (*rewriter.Unit, error) {
	return e.lower(unit, e.opts.HostCheck)
}

// Check validates unit without touching the cache. The host grammar check
// always runs.
func (e *Engine) Check(unit pyplusplus.SourceUnit) (*rewriter.Unit, error) {
	return e.lower(unit, true)
}

// cacheKey identifies a lowering by the source and every option that
// shapes the result
func (e *Engine) cacheKey(unit pyplusplus.SourceUnit) string {
	prefix := e.opts.TempPrefix
	if prefix == "" {
		prefix = rewriter.DefaultTempPrefix
	}

	return pyplusplus.Fingerprint(fmt.Appendf(nil, "%s\x00%s\x00%t", unit.Fingerprint, prefix, e.opts.HostCheck))
}

// lower parses and rewrites. A host check failure is returned together with
// the lowered unit; a parse failure without one.
func (e *Engine) lower(unit pyplusplus.SourceUnit, hostCheck bool) (*rewriter.Unit, error) {
	tree, err := parser.Parse(unit.Bytes)
	if err != nil {
		return nil, err
	}

	return e.finish(unit, tree, hostCheck)
}

func (e *Engine) finish(unit pyplusplus.SourceUnit, tree *parser.Tree, hostCheck bool) (*rewriter.Unit, error) {
	lowered, err := e.rewrite(tree)
	if err != nil {
		return nil, err
	}

	if !hostCheck {
		return lowered, nil
	}

	if err := parser.CheckHost(lowered.Source); err != nil {
		return lowered, toOriginal(unit.Bytes, lowered.Map, err)
	}

	return lowered, nil
}

func (e *Engine) rewrite(tree *parser.Tree) (*rewriter.Unit, error) {
	return rewriter.Rewrite(tree, rewriter.Options{TempPrefix: e.opts.TempPrefix})
}

// toOriginal moves the position of a host syntax error into original coordinates
func toOriginal(src []byte, m rewriter.PositionMap, err error) error {
	var hostErr *parser.HostSyntaxError
	if !errors.As(err, &hostErr) {
		return err
	}

	p := m.Original(rewriter.Point{Line: hostErr.Position.Line, Column: hostErr.Position.Column})

	return &parser.HostSyntaxError{
		Position: tok.Position{Line: p.Line, Column: p.Column, Offset: offsetOf(src, p.Line, p.Column)},
		Message:  hostErr.Message,
		Err:      hostErr.Err,
	}
}

// offsetOf converts a line/column position into a byte offset
func offsetOf(src []byte, line, column int) int {
	offset := 0

	for l := 1; l < line && offset < len(src); offset++ {
		if src[offset] == '\n' {
			l++
		}
	}

	for c := 1; c < column && offset < len(src) && src[offset] != '\n'; c++ {
		_, size := utf8.DecodeRune(src[offset:])
		offset += size
	}

	return offset
}
