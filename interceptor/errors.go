package interceptor

import (
	"errors"

	"github.com/shibukawa/pyplusplus"
)

// Sentinel errors
var (
	ErrUnsupportedInterpreter = errors.New("unsupported interpreter")
	ErrMissingOptionValue     = errors.New("option requires an argument")
	ErrUnknownOption          = errors.New("unknown option")
	ErrUnknownInterceptor     = errors.New("unknown interceptor")
	ErrBadToken               = errors.New("bad session token")
	ErrUnknownOp              = errors.New("unknown operation")
)

// InjectionError reports that the import hook could not be attached.
// Files using the postfix operators will not be recognized when it occurs.
type InjectionError struct {
	Reason string
	Err    error
}

func (e *InjectionError) Error() string {
	msg := pyplusplus.ErrInjection.Error() + ": " + e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}

	return msg + "; files using ++/-- will not be recognized"
}

func (e *InjectionError) Unwrap() []error {
	if e.Err == nil {
		return []error{pyplusplus.ErrInjection}
	}

	return []error{pyplusplus.ErrInjection, e.Err}
}
