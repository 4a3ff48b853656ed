package engine

import "errors"

var (
	// ErrInvalidEvent is returned when a capture request fails validation.
	ErrInvalidEvent = errors.New("invalid event")

	// ErrNoMemories is returned when condensation finds no unprocessed
	// events for the session.
	ErrNoMemories = errors.New("no unprocessed memories for session")
)
