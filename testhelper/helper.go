// Package testhelper holds helpers shared by package tests.
package testhelper

import (
	"regexp"
	"strings"
	"testing"
)

var (
	indentation = regexp.MustCompile(`^[ \t]+`)
	leadingTabs = regexp.MustCompile(`^\t+`)
)

func tabsToSpaces(match string) string {
	return strings.Repeat("    ", len(match))
}

// TrimIndent turns a raw string literal written inside Go code into source
// text. The newline after the opening quote is dropped, the indentation of
// the first line is removed from every line, and remaining leading tabs
// become four spaces.
func TrimIndent(t *testing.T, src string) string {
	t.Helper()

	lines := strings.Split(src, "\n")
	if len(lines) > 1 && strings.TrimSpace(lines[0]) == "" {
		lines = lines[1:]
	}

	indent := indentation.FindString(lines[0])

	for i, line := range lines {
		line = strings.TrimPrefix(line, indent)
		lines[i] = leadingTabs.ReplaceAllStringFunc(line, tabsToSpaces)
	}

	return strings.Join(lines, "\n")
}
