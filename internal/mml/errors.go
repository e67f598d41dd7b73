package mml

import "errors"

var (
	// ErrTruncated is returned when a trailing entry is short; replay
	// discards it silently rather than failing the whole load.
	ErrTruncated = errors.New("mml: truncated trailing entry")

	// ErrCorrupt is returned for any corruption that is not a truncated
	// trailing entry (bad checksum mid-stream, bad fragment header).
	ErrCorrupt = errors.New("mml: corrupt entry")

	// ErrDefinitionMismatch is returned when a fragment's name or version
	// disagrees with the expected definition.
	ErrDefinitionMismatch = errors.New("mml: fragment definition mismatch")
)
