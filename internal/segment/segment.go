// Package segment defines byte-range segments of an Ogg stream.
package segment

// Segment is a run of whole Ogg pages addressed by byte range.
type Segment struct {
	// URI names the media the byte range refers to
	URI string

	// Offset is the byte offset of the first page in the segment
	Offset int64

	// Length is the number of bytes in the segment
	Length int64

	// Duration is the segment duration in seconds
	Duration float64

	// Granule is the granule position at the end of the segment
	Granule int64

	// Sequence is the position in the playlist
	Sequence int
}

// End returns the offset just past the segment.
func (s Segment) End() int64 {
	return s.Offset + s.Length
}
