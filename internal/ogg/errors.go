package ogg

import "github.com/agleyzer/oggseek/internal/extractor"

// parseError is a format fault. It matches extractor.ErrParse under errors.Is.
type parseError struct {
	msg string
}

func (e *parseError) Error() string { return e.msg }

func (e *parseError) Is(target error) bool { return target == extractor.ErrParse }

// Package-level errors for Ogg demuxing.
var (
	// ErrMalformedPage indicates a page without a valid capture pattern or
	// version where one was expected.
	ErrMalformedPage error = &parseError{"ogg: malformed page"}

	// ErrMalformedHeader indicates a codec setup packet that cannot be parsed.
	ErrMalformedHeader error = &parseError{"ogg: malformed codec header"}

	// ErrSeekFailed indicates that no page could be located near a seek probe.
	ErrSeekFailed error = &parseError{"ogg: seek failed"}

	// ErrNotInitialized indicates Read was called before Init.
	ErrNotInitialized error = &parseError{"ogg: demuxer not initialized"}
)
