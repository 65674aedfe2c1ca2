package ogg

import (
	"fmt"
	"time"

	"github.com/agleyzer/oggseek/internal/extractor"
	"github.com/agleyzer/oggseek/internal/variant"
	"github.com/hashicorp/go-hclog"
)

// codec is the per-format part of a stream reader.
type codec interface {
	// readHeader consumes one header packet, filling in f, and reports
	// whether more headers follow. For the first audio packet it returns
	// false and leaves f untouched.
	readHeader(p []byte, f *extractor.Format) (bool, error)

	// packetGranules returns the number of granules the audio packet p
	// spans, or -1 if p carries no audio.
	packetGranules(p []byte) int64

	// reset clears per-stream state. With headers set the setup headers are
	// forgotten too and will be read again.
	reset(headers bool)

	// onSeekEnd aligns the codec with a seek that landed after granule.
	onSeekEnd(granule int64)
}

type readerState int

const (
	stateReadHeaders readerState = iota
	stateSkipHeaders
	stateReadPayload
	stateEnd
)

func (s readerState) String() string {
	switch s {
	case stateReadHeaders:
		return "read-headers"
	case stateSkipHeaders:
		return "skip-headers"
	case stateReadPayload:
		return "read-payload"
	case stateEnd:
		return "end"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// noPendingSeek marks the absence of a seek deferred until the headers
// have been read.
const noPendingSeek time.Duration = -1

// streamReader turns the packets of one logical bitstream into samples on a
// track. It reads the codec headers, then forwards audio packets with their
// timestamps, consulting a Seeker to reposition the input.
type streamReader struct {
	log     hclog.Logger
	opts    *options
	variant variant.Variant
	codec   codec

	out     extractor.Output
	track   extractor.TrackOutput
	packets *packetReader
	seeker  Seeker
	clock   clock

	state        readerState
	format       extractor.Format
	formatSent   bool
	seekMapSent  bool
	payloadStart int64

	targetGranule  int64
	currentGranule int64

	restart     bool
	pendingSeek time.Duration
}

func newStreamReader(log hclog.Logger, opts *options, v variant.Variant, c codec) *streamReader {
	return &streamReader{
		log:           log,
		opts:          opts,
		variant:       v,
		codec:         c,
		packets:       newPacketReader(),
		targetGranule: -1,
		pendingSeek:   noPendingSeek,
	}
}

func (r *streamReader) init(out extractor.Output, track extractor.TrackOutput) {
	r.out = out
	r.track = track
	r.reset(true)
}

func (r *streamReader) reset(headers bool) {
	if headers {
		r.format = extractor.Format{}
		r.payloadStart = 0
		r.state = stateReadHeaders
	} else {
		r.state = stateSkipHeaders
	}
	r.targetGranule = -1
	r.currentGranule = 0
	r.codec.reset(headers)
}

// seek aligns the reader with an input repositioned to position for time t.
func (r *streamReader) seek(position int64, t time.Duration) {
	r.packets.Reset()
	if r.seeker != nil {
		r.seeker.Cancel()
	}
	r.pendingSeek = noPendingSeek

	switch {
	case position == 0:
		r.reset(!r.seekMapSent)
	case r.state == stateReadHeaders || r.seeker == nil:
		// Headers are incomplete: read them again from the start, then seek.
		r.reset(true)
		r.restart = true
		r.pendingSeek = t
	default:
		r.targetGranule = r.seeker.StartSeek(r.clock.toGranule(t))
		r.state = stateReadPayload
	}
	r.log.Debug("seek", "position", position, "time", t, "state", r.state)
}

func (r *streamReader) read(in extractor.Input) (extractor.ReadResult, error) {
	switch r.state {
	case stateReadHeaders:
		if r.restart {
			r.restart = false
			if in.Position() != 0 {
				return extractor.SeekTo(0), nil
			}
		}
		return r.readHeaders(in)
	case stateSkipHeaders:
		if in.Position() != r.payloadStart {
			return extractor.SeekTo(r.payloadStart), nil
		}
		r.state = stateReadPayload
		return r.readPayload(in)
	case stateReadPayload:
		return r.readPayload(in)
	default:
		return extractor.EndOfStream(), nil
	}
}

func (r *streamReader) readHeaders(in extractor.Input) (extractor.ReadResult, error) {
	for {
		ok, err := r.packets.Populate(in)
		if err != nil {
			return extractor.ReadResult{}, err
		}
		if !ok {
			r.log.Warn("input ended inside the codec headers", "variant", r.variant)
			r.state = stateEnd
			return extractor.EndOfStream(), nil
		}
		more, err := r.codec.readHeader(r.packets.Packet(), &r.format)
		if err != nil {
			return extractor.ReadResult{}, err
		}
		if !more {
			// The first audio packet is emitted by readPayload.
			r.packets.Hold()
			return r.finishHeaders(in)
		}
	}
}

func (r *streamReader) finishHeaders(in extractor.Input) (extractor.ReadResult, error) {
	if r.format.SampleRate <= 0 {
		return extractor.ReadResult{}, fmt.Errorf("%w: %s headers carry no sample rate", ErrMalformedHeader, r.variant)
	}
	r.payloadStart = r.packets.PacketOffset()
	r.clock = newClock(r.format.SampleRate)
	r.format.Variant = r.variant
	r.format.MimeType = r.variant.MimeType()

	if !r.formatSent {
		if err := r.track.Format(r.format); err != nil {
			return extractor.ReadResult{}, fmt.Errorf("failed to publish format: %w", err)
		}
		r.formatSent = true
	}
	if r.seeker == nil || !r.seekMapSent {
		r.seeker = r.newSeeker(in)
	}
	r.state = stateReadPayload
	r.log.Debug("headers read", "variant", r.variant, "payload_start", r.payloadStart,
		"sample_rate", r.format.SampleRate, "channels", r.format.Channels)

	if r.pendingSeek != noPendingSeek {
		r.targetGranule = r.seeker.StartSeek(r.clock.toGranule(r.pendingSeek))
		r.pendingSeek = noPendingSeek
	}
	return extractor.ContinueReading(), nil
}

func (r *streamReader) newSeeker(in extractor.Input) Seeker {
	serial, _ := r.packets.Serial()
	if index := r.opts.index; index != nil {
		if index.Serial == serial {
			return newIndexSeeker(r.clock, index, r.payloadStart)
		}
		r.log.Warn("page index is for another bitstream, ignoring it",
			"index_serial", index.Serial, "serial", serial)
	}
	if length := in.Length(); length != extractor.LengthUnknown {
		s := newBisectingSeeker(r.log.Named("seek"), r.clock, serial, r.payloadStart, length, r.opts.matchRange)
		if t, ok := r.codec.(seekTabler); ok {
			s.usePoints(t.seekTable())
		}
		return s
	}
	return &unseekableSeeker{start: r.payloadStart}
}

func (r *streamReader) readPayload(in extractor.Input) (extractor.ReadResult, error) {
	res, err := r.seeker.Read(in)
	if err != nil {
		return extractor.ReadResult{}, err
	}
	if offset, ok := res.Offset(); ok {
		return extractor.SeekTo(offset), nil
	}
	if granule, ok := res.Granule(); ok {
		r.onSeekEnd(granule)
	}
	if !r.seekMapSent {
		if m := r.seeker.SeekMap(); m != nil {
			r.out.SeekMap(m)
			r.seekMapSent = true
		}
	}

	ok, err := r.packets.Populate(in)
	if err != nil {
		return extractor.ReadResult{}, err
	}
	if !ok {
		r.state = stateEnd
		return extractor.EndOfStream(), nil
	}

	p := r.packets.Packet()
	granules := r.codec.packetGranules(p)
	if granules < 0 {
		r.log.Warn("dropping packet without audio", "variant", r.variant,
			"offset", r.packets.PacketOffset(), "size", len(p))
		return extractor.ContinueReading(), nil
	}
	if r.currentGranule+granules >= r.targetGranule {
		t := r.clock.toTime(r.currentGranule)
		if err := r.track.SampleData(p); err != nil {
			return extractor.ReadResult{}, fmt.Errorf("failed to write sample data: %w", err)
		}
		if err := r.track.SampleMetadata(t, extractor.SampleKeyFrame, len(p), 0); err != nil {
			return extractor.ReadResult{}, fmt.Errorf("failed to commit sample: %w", err)
		}
		r.targetGranule = -1
	}
	r.currentGranule += granules
	return extractor.ContinueReading(), nil
}

func (r *streamReader) onSeekEnd(granule int64) {
	r.packets.Reset()
	r.currentGranule = granule
	r.codec.onSeekEnd(granule)
	r.log.Debug("seek landed", "granule", granule, "target", r.targetGranule)
}
