package core

import "errors"

// Error kinds. Every error returned by the services wraps exactly one of
// these, so callers branch with errors.Is.
var (
	ErrUnauthenticated = errors.New("not authenticated")
	ErrValidation      = errors.New("validation error")
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("conflict")
)

// Kind returns the error kind wrapped by err, or nil when err carries none.
func Kind(err error) error {
	for _, k := range []error{ErrUnauthenticated, ErrValidation, ErrNotFound, ErrConflict} {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}
