package parser

import (
	"errors"
	"fmt"
	"strings"

	tok "github.com/shibukawa/pyplusplus/tokenizer"
)

// FormatDiagnostic renders err as "name:line:col: message" followed by the
// offending source line and a caret under the column.
// Errors without a source position are rendered as "name: message".
func FormatDiagnostic(name string, src []byte, err error) string {
	var (
		pos     tok.Position
		message string
	)

	var extErr *ExtensionSyntaxError

	var hostErr *HostSyntaxError

	switch {
	case errors.As(err, &extErr):
		pos, message = extErr.Position, extErr.Message
	case errors.As(err, &hostErr) && hostErr.Position.Line > 0:
		pos, message = hostErr.Position, hostErr.Message
	default:
		return fmt.Sprintf("%s: %v\n", name, err)
	}

	lines := strings.Split(strings.ReplaceAll(string(src), "\r\n", "\n"), "\n")

	line := min(max(pos.Line, 1), len(lines))
	lineText := lines[line-1]

	var b strings.Builder

	fmt.Fprintf(&b, "%s:%d:%d: %s\n", name, pos.Line, pos.Column, message)
	fmt.Fprintf(&b, "%4d | %s\n", line, lineText)
	fmt.Fprintf(&b, "     | %s^\n", caretPadding(lineText, pos.Column))

	return b.String()
}

// caretPadding keeps tabs so the caret lines up under tab-indented code
func caretPadding(lineText string, column int) string {
	var b strings.Builder

	i := 1
	for _, r := range lineText {
		if i >= column {
			break
		}

		if r == '\t' {
			b.WriteRune('\t')
		} else {
			b.WriteRune(' ')
		}

		i++
	}

	for ; i < column; i++ {
		b.WriteRune(' ')
	}

	return b.String()
}
