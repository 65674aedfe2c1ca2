// Package ogg demultiplexes Ogg-framed FLAC, Vorbis and Opus streams.
//
// A Sniffer probes an input for a beginning-of-stream page carrying a
// supported codec and returns a Demuxer committed to that codec. The
// Demuxer is driven by a pull loop: each Read forwards at most one packet
// to the track output, or asks the caller to reposition the input while a
// seek is being resolved.
package ogg

import (
	"errors"
	"fmt"
	"time"

	"github.com/agleyzer/oggseek/internal/extractor"
	"github.com/agleyzer/oggseek/internal/variant"
	"github.com/hashicorp/go-hclog"
)

// maxVerificationBytes bounds the page body bytes inspected while sniffing.
const maxVerificationBytes = 8

// codecs lists the supported codecs in sniffing priority order.
var codecs = [...]struct {
	variant variant.Variant
	verify  func(p []byte) bool
	new     func() codec
}{
	{variant.FLAC, verifyFLAC, func() codec { return newFLACCodec() }},
	{variant.Vorbis, verifyVorbis, func() codec { return newVorbisCodec() }},
	{variant.Opus, verifyOpus, func() codec { return newOpusCodec() }},
}

type options struct {
	log        hclog.Logger
	index      *PageIndex
	matchRange int64
}

// Option configures a Sniffer and the demuxers it creates.
type Option func(*options)

// WithLogger sets the logger. Demuxers log through named sub-loggers.
func WithLogger(log hclog.Logger) Option {
	return func(o *options) {
		o.log = log
	}
}

// WithPageIndex makes demuxers seek directly from index instead of
// bisecting the input. It is ignored for bitstreams with another serial.
func WithPageIndex(index *PageIndex) Option {
	return func(o *options) {
		o.index = index
	}
}

// WithMatchRange sets the byte range below which a seek switches from
// bisection to a linear page scan.
func WithMatchRange(n int64) Option {
	return func(o *options) {
		o.matchRange = n
	}
}

// Sniffer recognizes Ogg streams.
type Sniffer struct {
	opts options
}

// NewSniffer creates a Sniffer.
func NewSniffer(opts ...Option) *Sniffer {
	o := options{matchRange: DefaultMatchRange}
	for _, opt := range opts {
		opt(&o)
	}
	if o.log == nil {
		o.log = hclog.NewNullLogger()
	}
	return &Sniffer{opts: o}
}

// Sniff checks whether in starts with the beginning-of-stream page of a
// supported codec. The read position of in is not advanced.
//
// Unless the input was interrupted, every failure wraps
// extractor.ErrUnrecognized.
func (s *Sniffer) Sniff(in extractor.Input) (*Demuxer, error) {
	defer in.ResetPeek()
	log := s.opts.log.Named("sniff")

	v, newCodec, err := sniffCodec(in)
	if err != nil {
		if errors.Is(err, extractor.ErrInterrupted) {
			return nil, err
		}
		log.Trace("not an ogg stream", "offset", in.Position(), "error", err)
		return nil, fmt.Errorf("%w: %w", extractor.ErrUnrecognized, err)
	}
	log.Debug("recognized ogg stream", "variant", v)

	opts := s.opts
	return &Demuxer{
		variant: v,
		reader:  newStreamReader(opts.log.Named(v.String()), &opts, v, newCodec()),
	}, nil
}

var (
	errNotBOS      = errors.New("first page is not a beginning-of-stream page")
	errNoSignature = errors.New("no codec signature")
)

func sniffCodec(in extractor.Input) (variant.Variant, func() codec, error) {
	var h PageHeader
	ok, err := h.Populate(in, true)
	if err != nil {
		return variant.Unknown, nil, err
	}
	if !ok {
		return variant.Unknown, nil, ErrMalformedPage
	}
	if !h.IsBOS() {
		return variant.Unknown, nil, errNotBOS
	}

	buf := make([]byte, min(h.BodySize, maxVerificationBytes))
	if err := in.PeekFully(buf); err != nil {
		return variant.Unknown, nil, err
	}
	for _, c := range codecs {
		if c.verify(buf) {
			return c.variant, c.new, nil
		}
	}
	return variant.Unknown, nil, errNoSignature
}

// Factory returns an extractor factory for Ogg streams.
func Factory(opts ...Option) extractor.Factory {
	return extractor.Factory{
		Name: "ogg",
		Sniff: func(in extractor.Input) (extractor.Extractor, error) {
			d, err := NewSniffer(opts...).Sniff(in)
			if err != nil {
				return nil, err
			}
			return d, nil
		},
	}
}

// Demuxer extracts the single audio track of a sniffed Ogg stream.
// It is not safe for concurrent use.
type Demuxer struct {
	variant     variant.Variant
	reader      *streamReader
	initialized bool
}

var _ extractor.Extractor = (*Demuxer)(nil)

// Variant returns the codec selected by sniffing.
func (d *Demuxer) Variant() variant.Variant {
	return d.variant
}

// Init registers track 0 with out and ends track registration.
func (d *Demuxer) Init(out extractor.Output) error {
	if d.reader == nil {
		return ErrNotInitialized
	}
	track := out.Track(0)
	out.EndTracks()
	d.reader.init(out, track)
	d.initialized = true
	return nil
}

// SeekTo prepares for reading from position. The input is expected to be at
// position when Read is next called; t is the time the caller is seeking to.
// Position 0 restarts reading from the beginning of the stream.
func (d *Demuxer) SeekTo(position int64, t time.Duration) {
	if !d.initialized {
		return
	}
	d.reader.seek(position, t)
}

// Read consumes input until one packet has been forwarded to the track, a
// reposition is needed, or the input ends.
func (d *Demuxer) Read(in extractor.Input) (extractor.ReadResult, error) {
	if !d.initialized {
		return extractor.ReadResult{}, ErrNotInitialized
	}
	return d.reader.read(in)
}

// PacketOffset returns the offset of the page on which the last forwarded
// packet began.
func (d *Demuxer) PacketOffset() int64 {
	if !d.initialized {
		return 0
	}
	return d.reader.packets.PacketOffset()
}

// Release drops the demuxer state. The input is owned by the caller and is
// not closed. Release may be called more than once.
func (d *Demuxer) Release() {
	d.reader = nil
	d.initialized = false
}
