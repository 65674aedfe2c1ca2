package extractor

import "fmt"

// Status tells the caller of Extractor.Read what to do next.
type Status int

const (
	// Continue means Read should be called again at the current position.
	Continue Status = iota

	// Seek means the input must be repositioned to ReadResult.Position
	// before Read is called again.
	Seek

	// EndOfInput means extraction has finished.
	EndOfInput
)

func (s Status) String() string {
	switch s {
	case Continue:
		return "continue"
	case Seek:
		return "seek"
	case EndOfInput:
		return "end-of-input"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// ReadResult is returned by Extractor.Read.
type ReadResult struct {
	Status Status

	// Position is the byte offset to reposition to when Status is Seek.
	Position int64
}

// ContinueReading is the result for Continue.
func ContinueReading() ReadResult { return ReadResult{Status: Continue} }

// SeekTo is the result asking the caller to reposition to pos.
func SeekTo(pos int64) ReadResult { return ReadResult{Status: Seek, Position: pos} }

// EndOfStream is the result for EndOfInput.
func EndOfStream() ReadResult { return ReadResult{Status: EndOfInput} }
