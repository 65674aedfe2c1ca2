package probe

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/agleyzer/oggseek/internal/extractor"
	"github.com/agleyzer/oggseek/internal/ogg"
	"github.com/agleyzer/oggseek/internal/ogg/oggtest"
	"github.com/agleyzer/oggseek/internal/variant"
)

const testSerial = 0xC0FFEE

// testStream is 16 s of stereo Opus: 400 pages of two 20 ms packets.
func testStream() ([]byte, []oggtest.PageInfo) {
	return oggtest.OpusStream(testSerial, 400, 2, 60)
}

func TestProbe(t *testing.T) {
	data, pages := testStream()

	info, err := Probe(context.Background(), bytes.NewReader(data), int64(len(data)), Options{})
	if err != nil {
		t.Fatalf("Probe failed: %v", err)
	}
	if info.Variant != variant.Opus {
		t.Errorf("Expected variant opus, got %s", info.Variant)
	}
	if info.Format.SampleRate != 48000 || info.Format.Channels != 2 {
		t.Errorf("Expected 48000 Hz stereo, got %d Hz, %d channels", info.Format.SampleRate, info.Format.Channels)
	}
	if !info.Seekable {
		t.Error("Expected a seekable stream")
	}
	if info.Duration != 16*time.Second {
		t.Errorf("Expected duration 16s, got %v", info.Duration)
	}
	if info.DataOffset != pages[0].Offset {
		t.Errorf("Expected data offset %d, got %d", pages[0].Offset, info.DataOffset)
	}
	if info.Size != int64(len(data)) {
		t.Errorf("Expected size %d, got %d", len(data), info.Size)
	}
	if got, ok := info.Format.Metadata.Get("TITLE"); !ok || got != "Synthetic" {
		t.Errorf("Expected TITLE 'Synthetic', got '%s' (found %v)", got, ok)
	}
}

func TestProbeUnknownLength(t *testing.T) {
	data, _ := testStream()

	info, err := Probe(context.Background(), bytes.NewReader(data), extractor.LengthUnknown, Options{})
	if err != nil {
		t.Fatalf("Probe failed: %v", err)
	}
	if info.Seekable {
		t.Error("Expected an unseekable stream")
	}
	if info.Duration != extractor.DurationUnknown {
		t.Errorf("Expected unknown duration, got %v", info.Duration)
	}
}

func TestProbeErrors(t *testing.T) {
	headersOnly := oggtest.NewWriter(testSerial)
	headersOnly.WritePage(oggtest.BOS, 0, oggtest.OpusHead(2, 312, 48000))
	headersOnly.WritePage(0, 0, oggtest.OpusTags("oggseek test"))

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	data, _ := testStream()

	tests := []struct {
		name string
		ctx  context.Context
		data []byte
		want error
	}{
		{"not ogg", context.Background(), []byte("RIFF....WAVEfmt "), extractor.ErrUnrecognized},
		{"headers only", context.Background(), headersOnly.Bytes(), ErrNoAudio},
		{"cancelled", cancelled, data, extractor.ErrInterrupted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Probe(tt.ctx, bytes.NewReader(tt.data), int64(len(tt.data)), Options{})
			if !errors.Is(err, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestSeek(t *testing.T) {
	data, pages := testStream()
	size := int64(len(data))

	index, err := Index(context.Background(), bytes.NewReader(data), size, Options{})
	if err != nil {
		t.Fatalf("Index failed: %v", err)
	}

	tests := []struct {
		target  time.Duration
		time    time.Duration
		granule int64
		page    int
	}{
		{target: 0, time: 0, granule: 0, page: 0},
		{target: 5 * time.Second, time: 5 * time.Second, granule: 240000, page: 125},
		{target: 1500 * time.Millisecond, time: 1480 * time.Millisecond, granule: 71040, page: 37},
		{target: 14010 * time.Millisecond, time: 14 * time.Second, granule: 672000, page: 350},
	}

	variants := []struct {
		name string
		opts Options
	}{
		{"bisection", Options{MatchRange: 2000}},
		{"index", Options{Index: index}},
	}

	for _, v := range variants {
		for _, tt := range tests {
			t.Run(v.name+"/"+tt.target.String(), func(t *testing.T) {
				point, err := Seek(context.Background(), bytes.NewReader(data), size, tt.target, v.opts)
				if err != nil {
					t.Fatalf("Seek failed: %v", err)
				}
				if point.Target != tt.target {
					t.Errorf("Expected target %v, got %v", tt.target, point.Target)
				}
				if point.Time != tt.time {
					t.Errorf("Expected time %v, got %v", tt.time, point.Time)
				}
				if point.Granule != tt.granule {
					t.Errorf("Expected granule %d, got %d", tt.granule, point.Granule)
				}
				if point.Offset != pages[tt.page].Offset {
					t.Errorf("Expected offset %d (page %d), got %d", pages[tt.page].Offset, tt.page, point.Offset)
				}
			})
		}
	}
}

func TestSeekSpanningPackets(t *testing.T) {
	data, _ := oggtest.SpanningOpusStream(testSerial, 40)
	size := int64(len(data))

	var packets []Packet
	_, err := Demux(context.Background(), bytes.NewReader(data), size, Options{}, func(p Packet) error {
		packets = append(packets, p)
		return nil
	})
	if err != nil {
		t.Fatalf("Demux failed: %v", err)
	}
	if len(packets) != 80 {
		t.Fatalf("Expected 80 packets, got %d", len(packets))
	}

	for _, matchRange := range []int64{1, 2000, 0} {
		for i := 0; i < len(packets); i++ {
			want := packets[i]
			// Inside the packet, away from its boundaries.
			target := want.Time + 7*time.Millisecond
			point, err := Seek(context.Background(), bytes.NewReader(data), size, target, Options{MatchRange: matchRange})
			if err != nil {
				t.Fatalf("Seek(%v) failed: %v", target, err)
			}
			if point.Time != want.Time || point.Offset != want.Offset {
				t.Errorf("Match range %d, target %v: expected the %d-byte packet at %v (offset %d), got %v (offset %d)",
					matchRange, target, want.Size, want.Time, want.Offset, point.Time, point.Offset)
			}
		}
	}
}

func TestSeekUnseekable(t *testing.T) {
	data, _ := testStream()

	_, err := Seek(context.Background(), bytes.NewReader(data), extractor.LengthUnknown, time.Second, Options{})
	if !errors.Is(err, ogg.ErrSeekFailed) {
		t.Errorf("Expected ErrSeekFailed, got %v", err)
	}
}

func TestDemux(t *testing.T) {
	data, pages := testStream()

	var packets []Packet
	stats, err := Demux(context.Background(), bytes.NewReader(data), int64(len(data)), Options{}, func(p Packet) error {
		packets = append(packets, p)
		return nil
	})
	if err != nil {
		t.Fatalf("Demux failed: %v", err)
	}
	if stats.Packets != 800 {
		t.Errorf("Expected 800 packets, got %d", stats.Packets)
	}
	if stats.Bytes != 800*60 {
		t.Errorf("Expected %d bytes, got %d", 800*60, stats.Bytes)
	}
	if stats.First != 0 || stats.Last != 15980*time.Millisecond {
		t.Errorf("Expected packets from 0 to 15.98s, got %v to %v", stats.First, stats.Last)
	}
	if len(packets) != stats.Packets {
		t.Fatalf("Expected callback per packet, got %d calls", len(packets))
	}
	if packets[3].Offset != pages[1].Offset {
		t.Errorf("Expected fourth packet on page %d, got offset %d", pages[1].Offset, packets[3].Offset)
	}

	stop := errors.New("stop")
	_, err = Demux(context.Background(), bytes.NewReader(data), int64(len(data)), Options{}, func(Packet) error {
		return stop
	})
	if !errors.Is(err, stop) {
		t.Errorf("Expected callback error to propagate, got %v", err)
	}
}

func TestIndex(t *testing.T) {
	data, pages := testStream()

	index, err := Index(context.Background(), bytes.NewReader(data), int64(len(data)), Options{ChunkSize: 512})
	if err != nil {
		t.Fatalf("Index failed: %v", err)
	}
	if index.Serial != testSerial {
		t.Errorf("Expected serial %#x, got %#x", testSerial, index.Serial)
	}
	if len(index.Entries) != len(pages)+2 {
		t.Errorf("Expected %d entries, got %d", len(pages)+2, len(index.Entries))
	}
	if index.LastGranule() != 768000 {
		t.Errorf("Expected last granule 768000, got %d", index.LastGranule())
	}
}

func TestGranuleAt(t *testing.T) {
	tests := []struct {
		t    time.Duration
		rate int
		want int64
	}{
		{0, 48000, 0},
		{time.Second, 48000, 48000},
		{22675 * time.Nanosecond, 44100, 1},
		{1480 * time.Millisecond, 48000, 71040},
		{time.Second, 0, 0},
	}
	for _, tt := range tests {
		if got := granuleAt(tt.t, tt.rate); got != tt.want {
			t.Errorf("granuleAt(%v, %d) = %d, expected %d", tt.t, tt.rate, got, tt.want)
		}
	}
}
