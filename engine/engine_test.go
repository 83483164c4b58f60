package engine

import (
	"errors"
	"testing"

	"github.com/alecthomas/assert/v2"

	"github.com/shibukawa/pyplusplus"
	"github.com/shibukawa/pyplusplus/cache"
	"github.com/shibukawa/pyplusplus/parser"
	"github.com/shibukawa/pyplusplus/rewriter"
	tok "github.com/shibukawa/pyplusplus/tokenizer"
)

func sourceUnit(t *testing.T, name, src string) pyplusplus.SourceUnit {
	t.Helper()

	unit, err := pyplusplus.NewSourceUnit(name, []byte(src))
	assert.NoError(t, err)

	return unit
}

func TestRewriteUsesCache(t *testing.T) {
	c := cache.New(cache.Options{Capacity: 16})
	e := New(c, Options{})

	for _, name := range []string{"a.py", "b.py"} {
		lowered, err := e.Rewrite(sourceUnit(t, name, "x++\n"))
		assert.NoError(t, err)
		assert.Equal(t, "x += 1\n", string(lowered.Source))
	}

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Computes)
	assert.Equal(t, int64(1), stats.MemoryHits)
}

func TestRewriteLowersUpToLexicalError(t *testing.T) {
	tests := []struct {
		name     string
		src      string
		expected string
		rewrites int
	}{
		{
			name:     "unterminated string",
			src:      "x++\ns = 'unterminated\n",
			expected: "x += 1\ns = 'unterminated\n",
			rewrites: 1,
		},
		{
			name:     "bracket never closed",
			src:      "counter = 0\ncounter++\ndef broken(:\n    pass\n",
			expected: "counter = 0\ncounter += 1\ndef broken(:\n    pass\n",
			rewrites: 1,
		},
		{
			name:     "statements after the error stay untouched",
			src:      "a.n--\nf(1,\nb++\n",
			expected: "_pp_obj0 = a; _pp_obj0.n -= 1; del _pp_obj0\nf(1,\nb++\n",
			rewrites: 1,
		},
		{
			name:     "error on the first line",
			src:      "s = 'oops\nx++\n",
			expected: "s = 'oops\nx++\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := New(cache.New(cache.Options{Capacity: 4}), Options{})

			lowered, err := e.Rewrite(sourceUnit(t, "bad.py", tt.src))
			assert.NoError(t, err)
			assert.Equal(t, tt.expected, string(lowered.Source))
			assert.Equal(t, tt.rewrites, lowered.Rewrites)
			assert.Equal(t, pyplusplus.Fingerprint([]byte(tt.src)), lowered.Fingerprint)
		})
	}
}

func TestLowerReportsLexicalErrors(t *testing.T) {
	c := cache.New(cache.Options{Capacity: 4})
	e := New(c, Options{})

	_, err := e.Lower(sourceUnit(t, "bad.py", "x++\ns = 'unterminated\n"))
	assert.True(t, errors.Is(err, pyplusplus.ErrHostSyntax))

	lowered, err := e.Lower(sourceUnit(t, "ok.py", "x++\n"))
	assert.NoError(t, err)
	assert.Equal(t, "x += 1\n", string(lowered.Source))
	assert.Equal(t, 0, c.Len())
}

func TestCacheKeyDependsOnOptions(t *testing.T) {
	dir := t.TempDir()
	src := "o.x++\n"

	for _, prefix := range []string{"_aa_", "_bb_"} {
		store, err := cache.NewFileStore(dir)
		assert.NoError(t, err)

		c := cache.New(cache.Options{Capacity: 4, Store: store})
		e := New(c, Options{TempPrefix: prefix})

		lowered, err := e.Rewrite(sourceUnit(t, "m.py", src))
		assert.NoError(t, err)
		assert.Equal(t, prefix+"obj0 = o; "+prefix+"obj0.x += 1; del "+prefix+"obj0\n", string(lowered.Source))
		assert.Equal(t, int64(1), c.Stats().Computes)
		assert.NoError(t, c.Close())
	}

	store, err := cache.NewFileStore(dir)
	assert.NoError(t, err)

	c := cache.New(cache.Options{Capacity: 4, Store: store})
	_, err = New(c, Options{TempPrefix: "_aa_"}).Rewrite(sourceUnit(t, "m.py", src))
	assert.NoError(t, err)
	assert.Equal(t, int64(1), c.Stats().StoreHits)
	assert.Equal(t, int64(0), c.Stats().Computes)

	stats, err := c.StoreStats()
	assert.NoError(t, err)
	assert.Equal(t, 2, stats.Entries)
}

func TestHostCheckIsPartOfCacheKey(t *testing.T) {
	c := cache.New(cache.Options{Capacity: 4})
	src := "x++\ndef f(:\n    pass\n)\n"

	_, err := New(c, Options{}).Rewrite(sourceUnit(t, "m.py", src))
	assert.NoError(t, err)

	_, err = New(c, Options{HostCheck: true}).Rewrite(sourceUnit(t, "m.py", src))
	assert.True(t, errors.Is(err, pyplusplus.ErrHostSyntax))
}

func TestRewriteReportsExtensionErrors(t *testing.T) {
	e := New(cache.New(cache.Options{Capacity: 4}), Options{})

	_, err := e.Rewrite(sourceUnit(t, "bad.py", "y = x++\n"))
	assert.Error(t, err)
	assert.True(t, errors.Is(err, pyplusplus.ErrExtensionSyntax))
}

func TestRewriteWithTempPrefix(t *testing.T) {
	e := New(cache.New(cache.Options{Capacity: 4}), Options{TempPrefix: "_tmp_"})

	lowered, err := e.Rewrite(sourceUnit(t, "m.py", "o.n--\n"))
	assert.NoError(t, err)
	assert.Equal(t, "_tmp_obj0 = o; _tmp_obj0.n -= 1; del _tmp_obj0\n", string(lowered.Source))
}

func TestCheck(t *testing.T) {
	c := cache.New(cache.Options{Capacity: 4})
	e := New(c, Options{})

	lowered, err := e.Check(sourceUnit(t, "ok.py", "for i in range(3):\n    total[i]++\n"))
	assert.NoError(t, err)
	assert.Equal(t, 1, lowered.Rewrites)

	_, err = e.Check(sourceUnit(t, "bad.py", "x = = 1\nx++\n"))
	assert.Error(t, err)
	assert.True(t, errors.Is(err, pyplusplus.ErrHostSyntax))

	var hostErr *parser.HostSyntaxError
	assert.True(t, errors.As(err, &hostErr))
	assert.Equal(t, 1, hostErr.Position.Line)

	_, err = e.Check(sourceUnit(t, "lex.py", "s = 'oops\n"))
	assert.True(t, errors.Is(err, pyplusplus.ErrHostSyntax))

	assert.Equal(t, 0, c.Len())
	assert.Equal(t, int64(0), c.Stats().Computes)
}

func TestToOriginalMapsIntoStatement(t *testing.T) {
	src := []byte("print(1)\nc.a++\n")

	tree, err := parser.Parse(src)
	assert.NoError(t, err)

	lowered, err := rewriter.Rewrite(tree)
	assert.NoError(t, err)

	err = toOriginal(src, lowered.Map, &parser.HostSyntaxError{
		Position: tok.Position{Line: 2, Column: 20},
		Message:  "invalid syntax",
	})

	var hostErr *parser.HostSyntaxError
	assert.True(t, errors.As(err, &hostErr))
	assert.Equal(t, tok.Position{Line: 2, Column: 1, Offset: 9}, hostErr.Position)
	assert.Equal(t, "invalid syntax", hostErr.Message)
}

func TestOffsetOf(t *testing.T) {
	src := []byte("ab\nçd\nx")

	assert.Equal(t, 0, offsetOf(src, 1, 1))
	assert.Equal(t, 3, offsetOf(src, 2, 1))
	assert.Equal(t, 5, offsetOf(src, 2, 2))
	assert.Equal(t, 7, offsetOf(src, 3, 1))
	assert.Equal(t, 2, offsetOf(src, 1, 99))
}
