// Package probe runs the ogg demuxer over whole files for the command and the
// server: stream summaries, packet walks, single seeks and page indexes.
package probe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/agleyzer/oggseek/internal/extractor"
	"github.com/agleyzer/oggseek/internal/ogg"
	"github.com/agleyzer/oggseek/internal/variant"
	"github.com/hashicorp/go-hclog"
)

// ErrNoAudio is returned when a stream ends before its first audio packet.
var ErrNoAudio = errors.New("stream has no audio packets")

// Options configures the demuxer and the input it reads.
type Options struct {
	// Logger receives demuxer logs. Nil discards them.
	Logger hclog.Logger

	// MatchRange overrides the bisection match range when positive.
	MatchRange int64

	// ChunkSize overrides the input read size when positive.
	ChunkSize int

	// Index makes seeks resolve directly from a page index.
	Index *ogg.PageIndex
}

func (o Options) input(ctx context.Context, r io.ReaderAt, size int64) *extractor.ReaderInput {
	var opts []extractor.InputOption
	if o.ChunkSize > 0 {
		opts = append(opts, extractor.WithChunkSize(o.ChunkSize))
	}
	return extractor.NewReaderInput(ctx, r, size, opts...)
}

func (o Options) sniffer() *ogg.Sniffer {
	var opts []ogg.Option
	if o.Logger != nil {
		opts = append(opts, ogg.WithLogger(o.Logger))
	}
	if o.MatchRange > 0 {
		opts = append(opts, ogg.WithMatchRange(o.MatchRange))
	}
	if o.Index != nil {
		opts = append(opts, ogg.WithPageIndex(o.Index))
	}
	return ogg.NewSniffer(opts...)
}

// Info summarizes a probed stream.
type Info struct {
	Variant variant.Variant
	Format  extractor.Format

	// Duration is extractor.DurationUnknown when the length is unknown.
	Duration time.Duration
	Seekable bool
	Size     int64

	// DataOffset is the offset of the page carrying the first audio packet.
	DataOffset int64
}

// session is one demuxer reading one input.
type session struct {
	ctx   context.Context
	in    *extractor.ReaderInput
	demux *ogg.Demuxer
	rec   *recorder
}

func open(ctx context.Context, r io.ReaderAt, size int64, opts Options) (*session, error) {
	in := opts.input(ctx, r, size)
	d, err := opts.sniffer().Sniff(in)
	if err != nil {
		return nil, err
	}
	rec := &recorder{}
	if err := d.Init(rec); err != nil {
		return nil, err
	}
	return &session{ctx: ctx, in: in, demux: d, rec: rec}, nil
}

func (s *session) close() {
	s.demux.Release()
}

// step performs one Read. It reports false at the end of input.
func (s *session) step() (bool, error) {
	if err := s.ctx.Err(); err != nil {
		return false, fmt.Errorf("%w: %w", extractor.ErrInterrupted, err)
	}
	done, err := extractor.Step(s.demux, s.in)
	return !done, err
}

// until steps until cond holds or the input ends.
func (s *session) until(cond func() bool) error {
	for !cond() {
		more, err := s.step()
		if err != nil {
			return err
		}
		if !more {
			return nil
		}
	}
	return nil
}

// start reads the headers, the first audio packet and the seek map.
func (s *session) start() error {
	if err := s.until(func() bool { return s.rec.samples > 0 && s.rec.seekMap != nil }); err != nil {
		return err
	}
	if s.rec.format == nil || s.rec.samples == 0 {
		return ErrNoAudio
	}
	return nil
}

// Probe reads the headers and the first audio packet of r.
func Probe(ctx context.Context, r io.ReaderAt, size int64, opts Options) (*Info, error) {
	s, err := open(ctx, r, size, opts)
	if err != nil {
		return nil, err
	}
	defer s.close()

	info := &Info{Variant: s.demux.Variant(), Size: size, Duration: extractor.DurationUnknown}
	if err := s.until(func() bool { return s.rec.samples > 0 }); err != nil {
		return nil, err
	}
	if s.rec.format == nil || s.rec.samples == 0 {
		return nil, ErrNoAudio
	}
	info.DataOffset = s.demux.PacketOffset()
	if err := s.start(); err != nil {
		return nil, err
	}
	info.Format = *s.rec.format
	info.Seekable = s.rec.seekMap.Seekable()
	info.Duration = s.rec.seekMap.Duration()
	return info, nil
}

// SeekPoint is where a seek resumed reading.
type SeekPoint struct {
	Target time.Duration `json:"target"`

	// Time is the timestamp of the first packet delivered after the seek.
	Time time.Duration `json:"time"`

	// Granule is Time in samples.
	Granule int64 `json:"granule"`

	// Offset is the page on which that packet began.
	Offset int64 `json:"offset"`
}

// Seek seeks r to t and reports the first packet delivered afterwards.
func Seek(ctx context.Context, r io.ReaderAt, size int64, t time.Duration, opts Options) (*SeekPoint, error) {
	s, err := open(ctx, r, size, opts)
	if err != nil {
		return nil, err
	}
	defer s.close()

	if err := s.start(); err != nil {
		return nil, err
	}
	m := s.rec.seekMap
	if !m.Seekable() {
		return nil, fmt.Errorf("%w: stream is not seekable", ogg.ErrSeekFailed)
	}

	position := m.Position(t)
	if err := s.in.SetPosition(position); err != nil {
		return nil, fmt.Errorf("reposition input: %w", err)
	}
	s.demux.SeekTo(position, t)
	s.rec.reset()
	if err := s.until(func() bool { return s.rec.samples > 0 }); err != nil {
		return nil, err
	}
	if s.rec.samples == 0 {
		// The target is at or past the end of the stream.
		return &SeekPoint{Target: t, Time: m.Duration(), Granule: granuleAt(m.Duration(), s.rec.format.SampleRate), Offset: size}, nil
	}
	return &SeekPoint{
		Target:  t,
		Time:    s.rec.first,
		Granule: granuleAt(s.rec.first, s.rec.format.SampleRate),
		Offset:  s.demux.PacketOffset(),
	}, nil
}

// Packet describes one demuxed packet.
type Packet struct {
	Time   time.Duration
	Size   int
	Offset int64
}

// Stats summarizes a full demux pass.
type Stats struct {
	Packets int
	Bytes   int64
	First   time.Duration
	Last    time.Duration
}

// Demux reads every packet of r, calling fn for each when it is not nil.
func Demux(ctx context.Context, r io.ReaderAt, size int64, opts Options, fn func(Packet) error) (*Stats, error) {
	s, err := open(ctx, r, size, opts)
	if err != nil {
		return nil, err
	}
	defer s.close()

	stats := &Stats{}
	s.rec.onSample = func(t time.Duration, n int) error {
		if stats.Packets == 0 {
			stats.First = t
		}
		stats.Packets++
		stats.Bytes += int64(n)
		stats.Last = t
		if fn == nil {
			return nil
		}
		return fn(Packet{Time: t, Size: n, Offset: s.demux.PacketOffset()})
	}
	if err := s.until(func() bool { return false }); err != nil {
		return nil, err
	}
	return stats, nil
}

// Index builds the page index of r.
func Index(ctx context.Context, r io.ReaderAt, size int64, opts Options) (*ogg.PageIndex, error) {
	return ogg.BuildIndex(opts.input(ctx, r, size))
}

// granuleAt converts t back to samples, rounding to undo truncation in the
// granule to time conversion.
func granuleAt(t time.Duration, sampleRate int) int64 {
	if t <= 0 || sampleRate <= 0 {
		return 0
	}
	rate := int64(sampleRate)
	sec := int64(t / time.Second)
	rem := int64(t % time.Second)
	return sec*rate + (rem*rate+int64(time.Second)/2)/int64(time.Second)
}
