package probe

import (
	"time"

	"github.com/agleyzer/oggseek/internal/extractor"
)

// recorder is the output of a probe session. It keeps the format and seek
// map and counts samples without retaining their data.
type recorder struct {
	format  *extractor.Format
	seekMap extractor.SeekMap

	samples int
	first   time.Duration

	onSample func(t time.Duration, size int) error
}

func (r *recorder) Track(int) extractor.TrackOutput { return r }

func (r *recorder) EndTracks() {}

func (r *recorder) SeekMap(m extractor.SeekMap) { r.seekMap = m }

func (r *recorder) Format(f extractor.Format) error {
	r.format = &f
	return nil
}

func (r *recorder) SampleData([]byte) error { return nil }

func (r *recorder) SampleMetadata(t time.Duration, _ extractor.SampleFlags, size, _ int) error {
	if r.samples == 0 {
		r.first = t
	}
	r.samples++
	if r.onSample != nil {
		return r.onSample(t, size)
	}
	return nil
}

// reset forgets the samples seen so far.
func (r *recorder) reset() {
	r.samples = 0
	r.first = 0
}
