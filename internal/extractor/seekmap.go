package extractor

import "time"

// DurationUnknown is returned by SeekMap.Duration when the duration is not known.
const DurationUnknown time.Duration = -1

// SeekMap maps playback times to byte offsets.
//
// For progressive seeking Position is an estimate the extractor refines while
// reading; for direct seeking it is exact.
type SeekMap interface {
	// Seekable reports whether seeking is supported.
	Seekable() bool

	// Duration returns the stream duration, or DurationUnknown.
	Duration() time.Duration

	// Position returns the byte offset to start reading from for time t.
	Position(t time.Duration) int64
}

// Unseekable is a SeekMap for streams that only support playback from the start.
type Unseekable struct {
	duration time.Duration
	start    int64
}

// NewUnseekable returns a map whose only position is start.
func NewUnseekable(duration time.Duration, start int64) Unseekable {
	return Unseekable{duration: duration, start: start}
}

// Seekable always returns false.
func (u Unseekable) Seekable() bool { return false }

// Duration returns the duration passed to NewUnseekable.
func (u Unseekable) Duration() time.Duration { return u.duration }

// Position always returns the start position.
func (u Unseekable) Position(time.Duration) int64 { return u.start }
