package ogg

import (
	"fmt"

	"github.com/agleyzer/oggseek/internal/extractor"
)

// Seeker maps target granule positions to byte offsets, either directly from
// an index or progressively by searching the input.
type Seeker interface {
	// SeekMap returns the seek map, or nil while the information needed to
	// build it is still being read.
	SeekMap() extractor.SeekMap

	// StartSeek begins a new seek session towards target, discarding any
	// previous session. It returns the granule position the session converges
	// towards, clamped to the stream bounds.
	StartSeek(target int64) int64

	// Read advances the current session or the discovery of the seek map by
	// one step.
	Read(in extractor.Input) (SeekResult, error)

	// Cancel abandons the seek session in progress, if any.
	Cancel()
}

type seekKind uint8

const (
	seekNoAction seekKind = iota
	seekReposition
	seekDone
)

// SeekResult is the outcome of one Seeker.Read step.
type SeekResult struct {
	kind  seekKind
	value int64
}

// Reposition asks the caller to move the input to offset and call Read again.
func Reposition(offset int64) SeekResult {
	return SeekResult{kind: seekReposition, value: offset}
}

// NoAction means no repositioning is needed.
func NoAction() SeekResult {
	return SeekResult{kind: seekNoAction}
}

// Done reports that a seek converged; reading resumes at the current input
// position with granule as the position of the last sample before it.
func Done(granule int64) SeekResult {
	return SeekResult{kind: seekDone, value: granule}
}

// Offset returns the reposition offset, if this is a Reposition result.
func (r SeekResult) Offset() (int64, bool) {
	return r.value, r.kind == seekReposition
}

// Granule returns the converged granule, if this is a Done result.
func (r SeekResult) Granule() (int64, bool) {
	return r.value, r.kind == seekDone
}

// IsNoAction reports whether this is a NoAction result.
func (r SeekResult) IsNoAction() bool {
	return r.kind == seekNoAction
}

// Int64 returns the single-integer encoding of r: the offset for
// Reposition, -1 for NoAction and -(granule+2) for Done.
func (r SeekResult) Int64() int64 {
	switch r.kind {
	case seekReposition:
		return r.value
	case seekDone:
		return -(r.value + 2)
	default:
		return -1
	}
}

// SeekResultFromInt64 decodes the single-integer encoding produced by Int64.
func SeekResultFromInt64(v int64) SeekResult {
	switch {
	case v >= 0:
		return Reposition(v)
	case v == -1:
		return NoAction()
	default:
		return Done(-(v + 2))
	}
}

func (r SeekResult) String() string {
	switch r.kind {
	case seekReposition:
		return fmt.Sprintf("reposition(%d)", r.value)
	case seekDone:
		return fmt.Sprintf("done(%d)", r.value)
	default:
		return "no-action"
	}
}

// unseekableSeeker serves streams of unknown length. A seek restarts
// playback at the first audio page.
type unseekableSeeker struct {
	start   int64
	pending bool
}

func (s *unseekableSeeker) SeekMap() extractor.SeekMap {
	return extractor.NewUnseekable(extractor.DurationUnknown, s.start)
}

func (s *unseekableSeeker) StartSeek(int64) int64 {
	s.pending = true
	return 0
}

func (s *unseekableSeeker) Cancel() { s.pending = false }

func (s *unseekableSeeker) Read(in extractor.Input) (SeekResult, error) {
	if !s.pending {
		return NoAction(), nil
	}
	if in.Position() != s.start {
		return Reposition(s.start), nil
	}
	s.pending = false
	return Done(0), nil
}
