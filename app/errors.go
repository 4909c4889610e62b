// Package app contains the provisioning services: reference resolution,
// configuration normalization, the provisioning operations, the task
// orchestrator and the extension notifier.
package app

import "errors"

// Error kinds. Every failure surfaced by this package matches exactly one
// of these with errors.Is.
var (
	ErrNoConfiguration  = errors.New("no mongopenter setup to execute")
	ErrConnection       = errors.New("connection failed")
	ErrResourceNotFound = errors.New("resource not found")
	ErrCatalogQuery     = errors.New("catalog query failed")
	ErrCreate           = errors.New("create failed")
	ErrCommand          = errors.New("command failed")
	ErrHook             = errors.New("hook failed")
)

// Error is an operation failure. It unwraps to both its kind and its cause.
type Error struct {
	Kind error
	Op   string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Kind.Error()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes the kind and the cause to errors.Is and errors.As.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func newError(kind error, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}
