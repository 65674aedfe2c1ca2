// Package extractortest provides fake outputs and inputs for extractor tests.
package extractortest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/agleyzer/oggseek/internal/extractor"
)

// Sample is one committed sample.
type Sample struct {
	Time  time.Duration
	Flags extractor.SampleFlags
	Data  []byte
}

// FakeTrackOutput records what a track receives.
type FakeTrackOutput struct {
	Formats []extractor.Format
	Samples []Sample

	pending []byte
}

// Format records f.
func (t *FakeTrackOutput) Format(f extractor.Format) error {
	t.Formats = append(t.Formats, f)
	return nil
}

// SampleData buffers p until it is committed by SampleMetadata.
func (t *FakeTrackOutput) SampleData(p []byte) error {
	t.pending = append(t.pending, p...)
	return nil
}

// SampleMetadata commits size bytes ending offset bytes before the end of
// the buffered data.
func (t *FakeTrackOutput) SampleMetadata(ts time.Duration, flags extractor.SampleFlags, size, offset int) error {
	end := len(t.pending) - offset
	start := end - size
	if start < 0 || end > len(t.pending) {
		return fmt.Errorf("sample of %d bytes at offset %d exceeds %d buffered bytes", size, offset, len(t.pending))
	}
	t.Samples = append(t.Samples, Sample{
		Time:  ts,
		Flags: flags,
		Data:  bytes.Clone(t.pending[start:end]),
	})
	t.pending = append(t.pending[:0], t.pending[end:]...)
	return nil
}

// LastFormat returns the most recent format, or the zero Format.
func (t *FakeTrackOutput) LastFormat() extractor.Format {
	if len(t.Formats) == 0 {
		return extractor.Format{}
	}
	return t.Formats[len(t.Formats)-1]
}

// FakeOutput records track registration and seek maps.
type FakeOutput struct {
	Tracks    map[int]*FakeTrackOutput
	Ended     int
	SeekMaps  []extractor.SeekMap
	trackList []int
}

// NewFakeOutput creates an empty FakeOutput.
func NewFakeOutput() *FakeOutput {
	return &FakeOutput{Tracks: make(map[int]*FakeTrackOutput)}
}

// Track returns the fake track for id, creating it on first use.
func (o *FakeOutput) Track(id int) extractor.TrackOutput {
	t, ok := o.Tracks[id]
	if !ok {
		t = &FakeTrackOutput{}
		o.Tracks[id] = t
		o.trackList = append(o.trackList, id)
	}
	return t
}

// EndTracks counts calls.
func (o *FakeOutput) EndTracks() {
	o.Ended++
}

// SeekMap records m.
func (o *FakeOutput) SeekMap(m extractor.SeekMap) {
	o.SeekMaps = append(o.SeekMaps, m)
}

// TrackIDs returns the registered track ids in registration order.
func (o *FakeOutput) TrackIDs() []int {
	return o.trackList
}

// LastSeekMap returns the most recent seek map, or nil.
func (o *FakeOutput) LastSeekMap() extractor.SeekMap {
	if len(o.SeekMaps) == 0 {
		return nil
	}
	return o.SeekMaps[len(o.SeekMaps)-1]
}

// NewInput returns a ReaderInput over data with a known length.
func NewInput(data []byte, opts ...extractor.InputOption) *extractor.ReaderInput {
	return extractor.NewReaderInput(context.Background(), bytes.NewReader(data), int64(len(data)), opts...)
}

// NewUnknownLengthInput returns a ReaderInput over data that does not report
// its length.
func NewUnknownLengthInput(data []byte, opts ...extractor.InputOption) *extractor.ReaderInput {
	return extractor.NewReaderInput(context.Background(), bytes.NewReader(data), extractor.LengthUnknown, opts...)
}

// CountingReaderAt counts the bytes read through it.
type CountingReaderAt struct {
	R     io.ReaderAt
	Bytes int64
	Calls int
}

// ReadAt implements io.ReaderAt.
func (c *CountingReaderAt) ReadAt(p []byte, off int64) (int, error) {
	n, err := c.R.ReadAt(p, off)
	c.Bytes += int64(n)
	c.Calls++
	return n, err
}

// Extract drives ext over in until the end of input and returns the number
// of Read calls it took.
func Extract(ext extractor.Extractor, in *extractor.ReaderInput) (int, error) {
	for calls := 1; ; calls++ {
		done, err := extractor.Step(ext, in)
		if err != nil {
			return calls, err
		}
		if done {
			return calls, nil
		}
	}
}
