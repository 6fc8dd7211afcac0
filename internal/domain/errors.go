package domain

import "errors"

var (
	// ErrValidation marks input that fails domain validation.
	ErrValidation = errors.New("validation error")
	// ErrNotFound marks a missing entity.
	ErrNotFound = errors.New("not found")
	// ErrConflict marks an operation rejected by the entity's current state.
	ErrConflict = errors.New("conflict")
	// ErrForbidden marks an operation the caller's role does not permit.
	ErrForbidden = errors.New("forbidden")
)
