package data

import "errors"

// Store errors. Callers match them with errors.Is; implementations wrap them
// with context.
var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrUserExists   = errors.New("user already exists")
)
