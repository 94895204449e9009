package models

import "errors"

// Error kinds surfaced by the engines. Callers discriminate with errors.Is;
// engines wrap them with context via fmt.Errorf and %w.
var (
	ErrNotFound         = errors.New("not found")
	ErrAlreadyExists    = errors.New("already exists")
	ErrDenied           = errors.New("permission denied")
	ErrInvalidInput     = errors.New("invalid input")
	ErrStoreUnavailable = errors.New("store unavailable")
)
