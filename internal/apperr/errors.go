package apperr

import "errors"

var (
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("conflict")
	ErrAlreadyExists   = errors.New("already exists")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrInvalidPage     = errors.New("invalid page number")
	ErrPageLimit       = errors.New("page limit reached")
	ErrCorruptSnapshot = errors.New("corrupt snapshot")
	ErrNoText          = errors.New("no text found")
)
