package parser

import (
	"fmt"

	"github.com/shibukawa/pyplusplus"
	tok "github.com/shibukawa/pyplusplus/tokenizer"
)

// Diagnostic messages
const (
	msgInsideExpression = "'%s' cannot be used inside an expression; it must be a statement of its own"
	msgMissingTarget    = "'%s' has no target to update"
	msgLiteralTarget    = "cannot apply '%s' to a literal"
	msgConstantTarget   = "cannot apply '%s' to %s"
	msgCallTarget       = "cannot apply '%s' to a function call"
	msgGroupTarget      = "cannot apply '%s' to a parenthesized or display expression"
)

// ExtensionSyntaxError reports a misuse of the postfix operator.
// Position is in original source coordinates.
type ExtensionSyntaxError struct {
	Position tok.Position
	Message  string
}

func (e *ExtensionSyntaxError) Error() string {
	return fmt.Sprintf("%s: %s", e.Position, e.Message)
}

func (e *ExtensionSyntaxError) Unwrap() error {
	return pyplusplus.ErrExtensionSyntax
}

// HostSyntaxError reports source the standard Python grammar rejects.
type HostSyntaxError struct {
	Position tok.Position
	Message  string
	Err      error
}

func (e *HostSyntaxError) Error() string {
	return fmt.Sprintf("%s: %s", e.Position, e.Message)
}

func (e *HostSyntaxError) Unwrap() []error {
	if e.Err == nil {
		return []error{pyplusplus.ErrHostSyntax}
	}

	return []error{pyplusplus.ErrHostSyntax, e.Err}
}

func newExtensionError(position tok.Position, format string, args ...any) *ExtensionSyntaxError {
	return &ExtensionSyntaxError{
		Position: position,
		Message:  fmt.Sprintf(format, args...),
	}
}
