package extractor

import "errors"

// Errors shared by extractors and inputs.
var (
	// ErrUnrecognized indicates that no extractor recognized the input format.
	ErrUnrecognized = errors.New("extractor: unrecognized format")

	// ErrParse indicates that the input was recognized but is malformed.
	// Format-specific errors wrap it so callers can test for the category.
	ErrParse = errors.New("extractor: parse error")

	// ErrInterrupted indicates that a blocking operation observed cancellation.
	// It is always returned wrapped together with the context's error.
	ErrInterrupted = errors.New("extractor: interrupted")

	// ErrInvalidPosition indicates a reposition outside the bounds of the input.
	ErrInvalidPosition = errors.New("extractor: invalid position")
)
