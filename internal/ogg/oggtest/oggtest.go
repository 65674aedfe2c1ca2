// Package oggtest builds synthetic Ogg streams for tests.
package oggtest

import (
	"bytes"
	"encoding/binary"
)

// Page flags.
const (
	Continued = 0x01
	BOS       = 0x02
	EOS       = 0x04
)

// NoGranule is the granule position of a page on which no packet ends.
const NoGranule int64 = -1

var crcTable [256]uint32

func init() {
	const poly = uint32(0x04C11DB7)
	for i := range crcTable {
		crc := uint32(i) << 24
		for range 8 {
			if crc&0x80000000 != 0 {
				crc = crc<<1 ^ poly
			} else {
				crc <<= 1
			}
		}
		crcTable[i] = crc
	}
}

// Checksum computes the Ogg CRC-32 (polynomial 0x04C11DB7, no reflection)
// of a page whose checksum field is zeroed.
func Checksum(data []byte) uint32 {
	var crc uint32
	for _, b := range data {
		crc = crc<<8 ^ crcTable[byte(crc>>24)^b]
	}
	return crc
}

// Lacing returns the segment table for one complete packet of n bytes.
// Packets whose size is a multiple of 255 end with a zero lacing value.
func Lacing(n int) []byte {
	segs := bytes.Repeat([]byte{255}, n/255)
	return append(segs, byte(n%255))
}

// OpenLacing returns the segment table for the first n bytes of a packet
// that continues on the next page. n must be a multiple of 255.
func OpenLacing(n int) []byte {
	if n%255 != 0 {
		panic("oggtest: open packet fragment must be a multiple of 255 bytes")
	}
	return bytes.Repeat([]byte{255}, n/255)
}

// Page is one Ogg page before encoding.
type Page struct {
	Version  byte
	Flags    byte
	Granule  int64
	Serial   uint32
	Sequence uint32
	Segments []byte
	Body     []byte
}

// Encode serializes the page and fills in its checksum.
func (p Page) Encode() []byte {
	headerSize := 27 + len(p.Segments)
	data := make([]byte, headerSize+len(p.Body))
	copy(data[0:4], "OggS")
	data[4] = p.Version
	data[5] = p.Flags
	binary.LittleEndian.PutUint64(data[6:14], uint64(p.Granule))
	binary.LittleEndian.PutUint32(data[14:18], p.Serial)
	binary.LittleEndian.PutUint32(data[18:22], p.Sequence)
	data[26] = byte(len(p.Segments))
	copy(data[27:], p.Segments)
	copy(data[headerSize:], p.Body)
	binary.LittleEndian.PutUint32(data[22:26], Checksum(data))
	return data
}

// PageInfo records where a written page landed.
type PageInfo struct {
	Offset  int64
	Size    int
	Granule int64
	Flags   byte
}

// Writer appends pages of one logical bitstream to a buffer.
type Writer struct {
	buf      bytes.Buffer
	serial   uint32
	sequence uint32
	pages    []PageInfo
}

// NewWriter creates a writer for the bitstream with the given serial.
func NewWriter(serial uint32) *Writer {
	return &Writer{serial: serial}
}

// WritePage writes a page holding the given complete packets.
func (w *Writer) WritePage(flags byte, granule int64, packets ...[]byte) PageInfo {
	var segs []byte
	var body []byte
	for _, p := range packets {
		segs = append(segs, Lacing(len(p))...)
		body = append(body, p...)
	}
	return w.WriteSegments(flags, granule, segs, body)
}

// WriteSegments writes a page with an explicit segment table.
func (w *Writer) WriteSegments(flags byte, granule int64, segments, body []byte) PageInfo {
	return w.WriteRaw(Page{
		Flags:    flags,
		Granule:  granule,
		Serial:   w.serial,
		Sequence: w.sequence,
		Segments: segments,
		Body:     body,
	})
}

// WriteRaw writes p as is, except that the sequence counter advances.
func (w *Writer) WriteRaw(p Page) PageInfo {
	info := PageInfo{
		Offset:  int64(w.buf.Len()),
		Size:    27 + len(p.Segments) + len(p.Body),
		Granule: p.Granule,
		Flags:   p.Flags,
	}
	w.buf.Write(p.Encode())
	w.sequence++
	if p.Serial == w.serial {
		w.pages = append(w.pages, info)
	}
	return info
}

// WriteBytes appends raw bytes that are not a page.
func (w *Writer) WriteBytes(p []byte) {
	w.buf.Write(p)
}

// Offset returns the number of bytes written so far.
func (w *Writer) Offset() int64 {
	return int64(w.buf.Len())
}

// Pages returns the pages written for the writer's own serial.
func (w *Writer) Pages() []PageInfo {
	return w.pages
}

// Bytes returns the stream written so far.
func (w *Writer) Bytes() []byte {
	return w.buf.Bytes()
}
