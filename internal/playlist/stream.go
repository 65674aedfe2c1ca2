package playlist

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/agleyzer/oggseek/internal/ogg"
	"github.com/agleyzer/oggseek/internal/segment"
	"github.com/grafov/m3u8"
)

// Stream describes the Ogg file a playlist addresses.
type Stream struct {
	// URI is where the file is served from.
	URI string

	// Serial is the serial number of the indexed bitstream.
	Serial uint32

	// Header covers the codec header pages, published as EXT-X-MAP.
	Header segment.Segment

	// Segments cover the audio pages in file order.
	Segments []segment.Segment

	// TargetDuration is the maximum segment duration in whole seconds.
	TargetDuration int
}

// Duration returns the total duration of the segments.
func (s Stream) Duration() time.Duration {
	total := 0.0
	for _, seg := range s.Segments {
		total += seg.Duration
	}
	return time.Duration(total * float64(time.Second))
}

// FromIndex groups the pages of index into segments of about target
// duration. Pages before dataOffset hold the codec headers. A segment only
// ends on a page with a granule position and never before a page that
// continues a packet, so every segment can be decoded from its first page.
func FromIndex(index *ogg.PageIndex, dataOffset int64, sampleRate int, target time.Duration, uri string) (Stream, error) {
	if sampleRate <= 0 {
		return Stream{}, fmt.Errorf("invalid sample rate %d", sampleRate)
	}
	if target <= 0 {
		return Stream{}, fmt.Errorf("target duration must be positive")
	}
	entries := index.Entries
	first := 0
	for first < len(entries) && entries[first].Offset < dataOffset {
		first++
	}
	if first == len(entries) {
		return Stream{}, fmt.Errorf("index has no pages after offset %d", dataOffset)
	}

	stream := Stream{
		URI:    uri,
		Serial: index.Serial,
		Header: segment.Segment{
			URI:      uri,
			Offset:   entries[0].Offset,
			Length:   entries[first].Offset - entries[0].Offset,
			Sequence: -1,
		},
	}

	targetGranules := int64(target.Seconds() * float64(sampleRate))
	granule := int64(0)
	for _, e := range entries[:first] {
		if e.Granule != ogg.GranuleUnset {
			granule = e.Granule
		}
	}

	start, startGranule := first, granule
	for i := first; i < len(entries); i++ {
		e := entries[i]
		if e.Granule != ogg.GranuleUnset {
			granule = e.Granule
		}
		last := i == len(entries)-1
		full := e.Granule != ogg.GranuleUnset && granule-startGranule >= targetGranules
		if !last && (!full || entries[i+1].Continued()) {
			continue
		}

		offset := entries[start].Offset
		stream.Segments = append(stream.Segments, segment.Segment{
			URI:      uri,
			Offset:   offset,
			Length:   e.Offset + int64(e.Size) - offset,
			Duration: float64(granule-startGranule) / float64(sampleRate),
			Granule:  granule,
			Sequence: len(stream.Segments),
		})
		start, startGranule = i+1, granule
	}

	stream.TargetDuration = max(int(math.Ceil(target.Seconds())), maxDuration(stream.Segments))
	return stream, nil
}

// Index returns a page index with one entry per segment, usable to seek
// directly from a parsed playlist.
func (s Stream) Index() *ogg.PageIndex {
	index := &ogg.PageIndex{Serial: s.Serial}
	if s.Header.Length > 0 {
		index.Entries = append(index.Entries, ogg.IndexEntry{
			Offset: s.Header.Offset,
			Size:   int(s.Header.Length),
		})
	}
	for _, seg := range s.Segments {
		index.Entries = append(index.Entries, ogg.IndexEntry{
			Offset:  seg.Offset,
			Size:    int(seg.Length),
			Granule: seg.Granule,
		})
	}
	return index
}

// Title formats the EXTINF title carrying a segment's bitstream serial and
// end granule position.
func Title(serial uint32, granule int64) string {
	return fmt.Sprintf("serial=%d granule=%d", serial, granule)
}

// ParseTitle is the inverse of Title.
func ParseTitle(title string) (uint32, int64, error) {
	var (
		serial  uint32
		granule int64
		seen    int
	)
	for _, field := range strings.Fields(title) {
		key, value, ok := strings.Cut(field, "=")
		if !ok {
			continue
		}
		switch key {
		case "serial":
			v, err := strconv.ParseUint(value, 10, 32)
			if err != nil {
				return 0, 0, fmt.Errorf("invalid serial %q: %w", value, err)
			}
			serial = uint32(v)
			seen++
		case "granule":
			v, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return 0, 0, fmt.Errorf("invalid granule %q: %w", value, err)
			}
			granule = v
			seen++
		}
	}
	if seen != 2 {
		return 0, 0, errors.New("segment title lacks serial and granule")
	}
	return serial, granule, nil
}

// Subset returns the leading segments that fit within maxDuration.
// A segment is included if adding it doesn't exceed the threshold by more
// than 50%. At least one segment is returned for a non-empty input.
func Subset(segments []segment.Segment, maxDuration time.Duration) []segment.Segment {
	if len(segments) == 0 || maxDuration == 0 {
		return segments
	}

	maxDurationSeconds := maxDuration.Seconds()
	var totalDuration float64
	var result []segment.Segment

	for i, seg := range segments {
		if i == 0 {
			result = append(result, seg)
			totalDuration += seg.Duration
			continue
		}

		newTotal := totalDuration + seg.Duration
		if newTotal <= maxDurationSeconds {
			result = append(result, seg)
			totalDuration = newTotal
			continue
		}
		// Include if it doesn't exceed by more than 50%
		if newTotal-maxDurationSeconds <= maxDurationSeconds*0.5 {
			result = append(result, seg)
		}
		break
	}

	return result
}

// HeaderMap returns the EXT-X-MAP of a decoded playlist, whether it was
// attached to the playlist or to its first segment.
func HeaderMap(p *m3u8.MediaPlaylist) *m3u8.Map {
	if p.Map != nil {
		return p.Map
	}
	if len(p.Segments) > 0 && p.Segments[0] != nil {
		return p.Segments[0].Map
	}
	return nil
}
