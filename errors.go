package pyplusplus

import "errors"

// Common errors used throughout the pyplusplus packages
var (
	// ErrExtensionSyntax is returned when a postfix increment/decrement is used
	// on a target that cannot be assigned, or inside a larger expression.
	ErrExtensionSyntax = errors.New("invalid use of postfix operator")
	// ErrHostSyntax indicates the source is rejected by the standard Python grammar
	// for reasons unrelated to the postfix operator.
	ErrHostSyntax = errors.New("python syntax error")
	// ErrCacheIO indicates the rewrite cache could not read or persist an entry.
	// It is always recovered from inside the cache and never reaches the user.
	ErrCacheIO = errors.New("rewrite cache I/O failure")
	// ErrInjection indicates the import hook could not be attached to the interpreter.
	ErrInjection = errors.New("failed to attach import hook to the interpreter")

	// ErrEmptySourceName indicates a source unit was created without a name.
	ErrEmptySourceName = errors.New("source unit requires a name")
)
