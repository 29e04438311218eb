package storage

import "errors"

// Storage errors shared by every backend.
var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateKey is returned when an index or address is already recorded.
	// Wallet records are never overwritten.
	ErrDuplicateKey = errors.New("duplicate key: wallet index or address already recorded")

	// ErrInvalidInput is returned when input validation fails.
	ErrInvalidInput = errors.New("invalid input")
)
