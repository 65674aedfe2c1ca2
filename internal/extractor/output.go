package extractor

import (
	"strings"
	"time"

	"github.com/agleyzer/oggseek/internal/variant"
)

// SampleFlags describe a sample passed to TrackOutput.SampleMetadata.
type SampleFlags uint32

const (
	// SampleKeyFrame marks a sample that can be decoded independently.
	SampleKeyFrame SampleFlags = 1 << iota

	// SampleDecodeOnly marks a sample that must be decoded but not rendered.
	SampleDecodeOnly
)

// Output receives the tracks an extractor discovers.
type Output interface {
	// Track returns the output for the track with the given id, creating it if needed.
	Track(id int) TrackOutput

	// EndTracks signals that all tracks have been registered.
	EndTracks()

	// SeekMap publishes the seek map of the stream.
	SeekMap(m SeekMap)
}

// TrackOutput receives the format and samples of a single track.
type TrackOutput interface {
	// Format sets the format of the track.
	Format(f Format) error

	// SampleData appends sample bytes. The bytes are attributed to a sample by
	// the next call to SampleMetadata.
	SampleData(p []byte) error

	// SampleMetadata commits the last size bytes of sample data, ending offset
	// bytes before the end of the appended data, as one sample at time t.
	SampleMetadata(t time.Duration, flags SampleFlags, size, offset int) error
}

// Format describes an elementary audio track.
type Format struct {
	Variant       variant.Variant
	MimeType      string
	SampleRate    int
	Channels      int
	BitsPerSample int
	Bitrate       int
	MaxInputSize  int

	// EncoderDelay is the number of leading samples a decoder must discard.
	EncoderDelay int

	// SeekPreRoll is how much audio must be decoded before a seek target
	// produces correct output.
	SeekPreRoll time.Duration

	// Duration is the duration declared by the stream headers, or DurationUnknown.
	Duration time.Duration

	// InitializationData holds the raw setup packets a decoder needs.
	InitializationData [][]byte

	Metadata Metadata
}

// Metadata holds Vorbis-comment style tags.
type Metadata struct {
	Vendor   string
	Comments []string
}

// Get returns the first value of the comment with the given key. Keys compare
// case-insensitively.
func (m Metadata) Get(key string) (string, bool) {
	for _, c := range m.Comments {
		k, v, ok := strings.Cut(c, "=")
		if ok && strings.EqualFold(k, key) {
			return v, true
		}
	}
	return "", false
}
