package ogg

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"

	"github.com/agleyzer/oggseek/internal/extractor"
)

// Page header flag constants.
const (
	// FlagContinued indicates the page begins with the continuation of a
	// packet from the previous page.
	FlagContinued = 0x01

	// FlagBOS marks the first page of a logical bitstream.
	FlagBOS = 0x02

	// FlagEOS marks the last page of a logical bitstream.
	FlagEOS = 0x04
)

// Page size constants.
const (
	// HeaderSize is the fixed portion of the page header (before the segment table).
	HeaderSize = 27

	// MaxSegments is the maximum number of lacing values in a page.
	MaxSegments = 255

	// MaxSegmentSize is the largest lacing value.
	MaxSegmentSize = 255

	// MaxPageSize is the largest possible page: 65307 bytes.
	MaxPageSize = HeaderSize + MaxSegments + MaxSegments*MaxSegmentSize

	// GranuleUnset is the granule position of a page on which no packet ends.
	GranuleUnset int64 = -1

	capturePattern = "OggS"
	scanChunkSize  = 2048
)

// PageHeader holds the header and segment table of one Ogg page.
type PageHeader struct {
	Version      byte
	Flags        byte
	Granule      int64
	Serial       uint32
	Sequence     uint32
	Checksum     uint32
	SegmentCount int
	Segments     [MaxSegments]byte

	// HeaderSize is the size of the fixed header plus the segment table.
	HeaderSize int

	// BodySize is the sum of the lacing values.
	BodySize int
}

// IsBOS reports whether the beginning-of-stream flag is set.
func (h *PageHeader) IsBOS() bool { return h.Flags&FlagBOS != 0 }

// IsEOS reports whether the end-of-stream flag is set.
func (h *PageHeader) IsEOS() bool { return h.Flags&FlagEOS != 0 }

// IsContinued reports whether the page starts in the middle of a packet.
func (h *PageHeader) IsContinued() bool { return h.Flags&FlagContinued != 0 }

// Size returns the total page size in bytes.
func (h *PageHeader) Size() int { return h.HeaderSize + h.BodySize }

func (h *PageHeader) reset() {
	*h = PageHeader{}
}

// Populate parses the page header and segment table at the read position of in.
//
// It returns false if the input ends before a full header is available, if
// the capture pattern does not match, or if the version is not zero. Errors
// are returned only for input failures (including interruption). When
// peekOnly is set, or when false is returned, the read position is unchanged;
// after a successful peek the peek position sits at the start of the body.
// Otherwise the header bytes are consumed.
func (h *PageHeader) Populate(in extractor.Input, peekOnly bool) (bool, error) {
	in.ResetPeek()
	ok, err := h.peek(in)
	if err != nil || !ok {
		in.ResetPeek()
		return false, err
	}
	if !peekOnly {
		if err := in.Skip(int64(h.HeaderSize)); err != nil {
			in.ResetPeek()
			if isEOF(err) {
				return false, nil
			}
			return false, err
		}
	}
	return true, nil
}

func (h *PageHeader) peek(in extractor.Input) (bool, error) {
	h.reset()
	if length := in.Length(); length != extractor.LengthUnknown && length-in.PeekPosition() < HeaderSize {
		return false, nil
	}

	var buf [HeaderSize]byte
	if err := in.PeekFully(buf[:]); err != nil {
		if isEOF(err) {
			return false, nil
		}
		return false, err
	}
	if string(buf[0:4]) != capturePattern {
		return false, nil
	}

	h.Version = buf[4]
	if h.Version != 0 {
		return false, nil
	}
	h.Flags = buf[5]
	h.Granule = int64(binary.LittleEndian.Uint64(buf[6:14]))
	h.Serial = binary.LittleEndian.Uint32(buf[14:18])
	h.Sequence = binary.LittleEndian.Uint32(buf[18:22])
	h.Checksum = binary.LittleEndian.Uint32(buf[22:26])
	h.SegmentCount = int(buf[26])
	h.HeaderSize = HeaderSize + h.SegmentCount

	if err := in.PeekFully(h.Segments[:h.SegmentCount]); err != nil {
		if isEOF(err) {
			return false, nil
		}
		return false, err
	}
	for _, s := range h.Segments[:h.SegmentCount] {
		h.BodySize += int(s)
	}
	return true, nil
}

// skipToNextPage advances the read position to the next capture pattern
// that starts before limit. A negative limit means the end of the input.
// It returns false, leaving the position where the scan stopped, if no
// pattern was found.
func skipToNextPage(in extractor.Input, limit int64) (bool, error) {
	if length := in.Length(); length != extractor.LengthUnknown && (limit < 0 || limit > length) {
		limit = length
	}
	defer in.ResetPeek()

	buf := make([]byte, scanChunkSize)
	for {
		in.ResetPeek()
		want := len(buf)
		if limit >= 0 {
			remaining := limit - in.Position()
			if remaining < int64(len(capturePattern)) {
				return false, nil
			}
			want = int(min(int64(want), remaining))
		}

		n, err := peekSome(in, buf[:want])
		if err != nil {
			return false, err
		}
		if i := bytes.Index(buf[:n], []byte(capturePattern)); i >= 0 {
			return true, in.Skip(int64(i))
		}
		if n < len(capturePattern) {
			return false, in.Skip(int64(n))
		}
		// Keep the last bytes in case the pattern straddles two chunks.
		if err := in.Skip(int64(n - len(capturePattern) + 1)); err != nil {
			return false, err
		}
	}
}

// peekSome peeks up to len(p) bytes and returns how many were available.
func peekSome(in extractor.Input, p []byte) (int, error) {
	if length := in.Length(); length != extractor.LengthUnknown {
		avail := length - in.PeekPosition()
		if avail <= 0 {
			return 0, nil
		}
		n := int(min(int64(len(p)), avail))
		if err := in.PeekFully(p[:n]); err != nil {
			return 0, err
		}
		return n, nil
	}
	// Unknown length: shrink until the peek succeeds.
	n := len(p)
	for n > 0 {
		err := in.PeekFully(p[:n])
		if err == nil {
			return n, nil
		}
		if !isEOF(err) {
			return 0, err
		}
		n /= 2
	}
	return 0, nil
}

func isEOF(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
}
