package store

import "errors"

var (
	// ErrNotFound is returned when a record does not exist in the store.
	ErrNotFound = errors.New("record not found")

	// ErrSelfRecognition is returned when an upsert would create a
	// recognition edge from a character to itself.
	ErrSelfRecognition = errors.New("recognition self-loop not allowed")

	// ErrDimensionMismatch is returned when an embedding's length does not
	// match the store's configured dimensionality.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)
