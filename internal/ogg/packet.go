package ogg

import (
	"fmt"

	"github.com/agleyzer/oggseek/internal/extractor"
)

// packetReader reassembles packets from the pages of one logical bitstream.
//
// Packets may span pages: a lacing value of 255 means the packet continues.
// Pages belonging to other bitstreams are skipped once the first page has
// locked the serial number.
type packetReader struct {
	header       PageHeader
	packet       []byte
	segmentIndex int
	populated    bool
	held         bool

	pageOffset   int64
	packetOffset int64

	serial       uint32
	serialLocked bool
}

func newPacketReader() *packetReader {
	return &packetReader{segmentIndex: -1}
}

// Packet returns the current packet. It is only valid until the next Populate.
func (r *packetReader) Packet() []byte {
	return r.packet
}

// Header returns the header of the page the current packet ended on.
func (r *packetReader) Header() *PageHeader {
	return &r.header
}

// PacketOffset returns the offset of the page on which the current packet
// began.
func (r *packetReader) PacketOffset() int64 {
	return r.packetOffset
}

// Serial returns the serial number of the bitstream the reader is locked to.
func (r *packetReader) Serial() (uint32, bool) {
	return r.serial, r.serialLocked
}

// Hold makes the next Populate return the current packet again.
func (r *packetReader) Hold() {
	if r.populated {
		r.held = true
	}
}

// Reset discards any partial packet and the current page. The locked serial
// number is kept.
func (r *packetReader) Reset() {
	r.header.reset()
	r.packet = r.packet[:0]
	r.segmentIndex = -1
	r.populated = false
	r.held = false
}

// Populate reads until one complete packet is available. It returns false at
// the end of the input.
func (r *packetReader) Populate(in extractor.Input) (bool, error) {
	if r.held {
		r.held = false
		return true, nil
	}
	if r.populated {
		r.packet = r.packet[:0]
		r.populated = false
	}

	for !r.populated {
		if r.segmentIndex < 0 {
			ok, err := r.nextPage(in)
			if err != nil || !ok {
				return false, err
			}
			continue
		}

		size, count := r.packetSize(r.segmentIndex)
		next := r.segmentIndex + count
		if size > 0 {
			start := len(r.packet)
			if start == 0 {
				r.packetOffset = r.pageOffset
			}
			r.packet = append(r.packet, make([]byte, size)...)
			if err := in.ReadFully(r.packet[start:]); err != nil {
				r.packet = r.packet[:start]
				if isEOF(err) {
					// Truncated final page.
					return false, nil
				}
				return false, err
			}
		}
		// Zero-length packets are skipped; a zero lacing value after a
		// 255 run still terminates the packet.
		r.populated = len(r.packet) > 0 && r.header.Segments[next-1] != MaxSegmentSize
		if next >= r.header.SegmentCount {
			r.segmentIndex = -1
		} else {
			r.segmentIndex = next
		}
	}
	return true, nil
}

// nextPage consumes the next page header of the locked bitstream and
// positions segmentIndex at its first packet.
func (r *packetReader) nextPage(in extractor.Input) (bool, error) {
	for {
		r.pageOffset = in.Position()
		ok, err := r.header.Populate(in, false)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, endOrMalformed(in)
		}

		if r.serialLocked && r.header.Serial != r.serial {
			if err := in.Skip(int64(r.header.BodySize)); err != nil {
				if isEOF(err) {
					return false, nil
				}
				return false, err
			}
			continue
		}
		if !r.serialLocked {
			r.serial = r.header.Serial
			r.serialLocked = true
		}

		index := 0
		if r.header.IsContinued() && len(r.packet) == 0 {
			// The packet started on a page we never saw; drop its tail.
			size, count := r.packetSize(0)
			if err := in.Skip(int64(size)); err != nil {
				if isEOF(err) {
					return false, nil
				}
				return false, err
			}
			index = count
		}
		if index >= r.header.SegmentCount {
			continue
		}
		r.segmentIndex = index
		return true, nil
	}
}

// packetSize returns the size of the packet (or packet fragment) starting at
// segment start and the number of segments it uses within the current page.
func (r *packetReader) packetSize(start int) (int, int) {
	size, count := 0, 0
	for start+count < r.header.SegmentCount {
		length := int(r.header.Segments[start+count])
		count++
		size += length
		if length != MaxSegmentSize {
			break
		}
	}
	return size, count
}

// endOrMalformed decides whether a failed header parse is the end of the
// input (nil) or a corrupt page (ErrMalformedPage).
func endOrMalformed(in extractor.Input) error {
	defer in.ResetPeek()
	in.ResetPeek()

	var head [5]byte
	if err := in.PeekFully(head[:4]); err != nil {
		if isEOF(err) {
			return nil
		}
		return err
	}
	if string(head[:4]) != capturePattern {
		return fmt.Errorf("%w: no capture pattern at offset %d", ErrMalformedPage, in.Position())
	}
	if err := in.PeekFully(head[4:]); err != nil {
		if isEOF(err) {
			return nil
		}
		return err
	}
	if head[4] != 0 {
		return fmt.Errorf("%w: unsupported version %d at offset %d", ErrMalformedPage, head[4], in.Position())
	}
	// A capture pattern followed by a truncated header ends the stream.
	return nil
}
