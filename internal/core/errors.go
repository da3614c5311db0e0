package core

import "errors"

// Error taxonomy shared by the services and the HTTP layer. Callers wrap these
// with context and classify with errors.Is.
var (
	ErrInvalidArgument       = errors.New("invalid argument")
	ErrUnauthenticated       = errors.New("unauthenticated")
	ErrForbidden             = errors.New("forbidden")
	ErrNotFound              = errors.New("not found")
	ErrDependencyUnavailable = errors.New("dependency unavailable")
)
