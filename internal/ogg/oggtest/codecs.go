package oggtest

import (
	"encoding/binary"
)

// OpusHead returns an OpusHead packet for channel mapping family 0.
func OpusHead(channels int, preSkip uint16, inputRate uint32) []byte {
	p := make([]byte, 19)
	copy(p, "OpusHead")
	p[8] = 1
	p[9] = byte(channels)
	binary.LittleEndian.PutUint16(p[10:12], preSkip)
	binary.LittleEndian.PutUint32(p[12:16], inputRate)
	return p
}

// OpusTags returns an OpusTags packet.
func OpusTags(vendor string, comments ...string) []byte {
	return append([]byte("OpusTags"), Comments(vendor, comments...)...)
}

// OpusPacket returns an audio packet of size bytes whose TOC byte selects
// config and frame count code. For code 3, frames is stored in the second
// byte.
func OpusPacket(config, code byte, frames, size int) []byte {
	p := make([]byte, max(size, 2))
	p[0] = config<<3 | code&0x03
	if code == 3 {
		p[1] = byte(frames) & 0x3F
	}
	for i := 2; i < len(p); i++ {
		p[i] = byte(i)
	}
	return p
}

// Comments encodes a Vorbis comment list.
func Comments(vendor string, comments ...string) []byte {
	var p []byte
	p = binary.LittleEndian.AppendUint32(p, uint32(len(vendor)))
	p = append(p, vendor...)
	p = binary.LittleEndian.AppendUint32(p, uint32(len(comments)))
	for _, c := range comments {
		p = binary.LittleEndian.AppendUint32(p, uint32(len(c)))
		p = append(p, c...)
	}
	return p
}

// FLACHeader returns the first packet of the FLAC-in-Ogg mapping, carrying
// a STREAMINFO block. headers is the number of header packets that follow.
func FLACHeader(sampleRate, channels, bits int, totalSamples int64, headers uint16) []byte {
	p := []byte{0x7F, 'F', 'L', 'A', 'C', 1, 0}
	p = binary.BigEndian.AppendUint16(p, headers)
	p = append(p, "fLaC"...)
	p = append(p, 0x00, 0, 0, 34) // STREAMINFO block header

	si := make([]byte, 34)
	binary.BigEndian.PutUint16(si[0:2], 4096)
	binary.BigEndian.PutUint16(si[2:4], 4096)
	si[9] = 0x20 // max frame size 32
	packed := uint64(sampleRate)<<44 | uint64(channels-1)<<41 | uint64(bits-1)<<36 | uint64(totalSamples)&0xFFFFFFFFF
	binary.BigEndian.PutUint64(si[10:18], packed)
	return append(p, si...)
}

// FLACCommentBlock returns a VORBIS_COMMENT metadata block packet.
func FLACCommentBlock(last bool, vendor string, comments ...string) []byte {
	return flacBlock(4, last, Comments(vendor, comments...))
}

// FLACSeekTable returns a SEEKTABLE metadata block packet with one point per
// sample/offset pair.
func FLACSeekTable(last bool, points ...[2]uint64) []byte {
	var body []byte
	for _, pt := range points {
		body = binary.BigEndian.AppendUint64(body, pt[0])
		body = binary.BigEndian.AppendUint64(body, pt[1])
		body = binary.BigEndian.AppendUint16(body, 4096)
	}
	return flacBlock(3, last, body)
}

func flacBlock(kind byte, last bool, body []byte) []byte {
	if last {
		kind |= 0x80
	}
	n := len(body)
	p := []byte{kind, byte(n >> 16), byte(n >> 8), byte(n)}
	return append(p, body...)
}

// FLACFrame returns a frame packet with the given block size code. For
// codes 6 and 7 explicit is the block size stored after the frame number.
func FLACFrame(code byte, explicit int, size int) []byte {
	p := []byte{0xFF, 0xF8, code<<4 | 0x09, 0x18, 0x00}
	switch code {
	case 6:
		p = append(p, byte(explicit-1))
	case 7:
		p = binary.BigEndian.AppendUint16(p, uint16(explicit-1))
	}
	for len(p) < size {
		p = append(p, byte(len(p)))
	}
	return p
}

// VorbisID returns a Vorbis identification header. The block sizes are
// given as powers of two.
func VorbisID(channels int, sampleRate uint32, bitrate int32, blockExp0, blockExp1 byte) []byte {
	p := make([]byte, 30)
	p[0] = 0x01
	copy(p[1:7], "vorbis")
	p[11] = byte(channels)
	binary.LittleEndian.PutUint32(p[12:16], sampleRate)
	binary.LittleEndian.PutUint32(p[20:24], uint32(bitrate))
	p[28] = blockExp1<<4 | blockExp0
	p[29] = 0x01
	return p
}

// VorbisComment returns a Vorbis comment header.
func VorbisComment(vendor string, comments ...string) []byte {
	p := append([]byte{0x03}, "vorbis"...)
	p = append(p, Comments(vendor, comments...)...)
	return append(p, 0x01)
}

// VorbisSetup returns a minimal valid Vorbis setup header whose modes have
// the given block flags: one codebook, one floor of type 1, one residue and
// one mapping.
func VorbisSetup(blockFlags ...bool) []byte {
	var w BitWriter

	w.WriteBits(0, 8) // one codebook
	w.WriteBits(0x564342, 24)
	w.WriteBits(1, 16) // dimensions
	w.WriteBits(2, 24) // entries
	w.WriteBits(0, 1)  // unordered
	w.WriteBits(0, 1)  // not sparse
	w.WriteBits(0, 5)
	w.WriteBits(0, 5)
	w.WriteBits(1, 4) // lookup type 1
	w.WriteBits(0, 32)
	w.WriteBits(0, 32)
	w.WriteBits(3, 4) // value bits - 1
	w.WriteBits(0, 1)
	w.WriteBits(0, 2*4) // lookup1Values(2, 1) = 2 values of 4 bits

	w.WriteBits(0, 6)  // one time domain transform
	w.WriteBits(0, 16) // of type 0

	w.WriteBits(0, 6)  // one floor
	w.WriteBits(1, 16) // type 1
	w.WriteBits(1, 5)  // one partition
	w.WriteBits(0, 4)  // of class 0
	w.WriteBits(1, 3)  // class dimensions - 1
	w.WriteBits(1, 2)  // one subclass bit
	w.WriteBits(0, 8)  // master book
	w.WriteBits(0, 8)  // subclass book 0
	w.WriteBits(0, 8)  // subclass book 1
	w.WriteBits(1, 2)  // multiplier - 1
	w.WriteBits(4, 4)  // range bits
	w.WriteBits(0, 4)  // x list, 2 points
	w.WriteBits(0, 4)

	w.WriteBits(0, 6)  // one residue
	w.WriteBits(0, 16) // type 0
	w.WriteBits(0, 24)
	w.WriteBits(0, 24)
	w.WriteBits(0, 24)
	w.WriteBits(0, 6) // one classification
	w.WriteBits(0, 8) // classbook
	w.WriteBits(1, 3) // cascade low bits
	w.WriteBits(0, 1) // no high bits
	w.WriteBits(0, 8) // book for cascade bit 0

	w.WriteBits(0, 6)  // one mapping
	w.WriteBits(0, 16) // type 0
	w.WriteBits(0, 1)  // one submap
	w.WriteBits(0, 1)  // no coupling
	w.WriteBits(0, 2)  // reserved
	w.WriteBits(0, 8)  // submap time
	w.WriteBits(0, 8)  // submap floor
	w.WriteBits(0, 8)  // submap residue

	w.WriteBits(uint64(len(blockFlags)-1), 6)
	for _, long := range blockFlags {
		if long {
			w.WriteBits(1, 1)
		} else {
			w.WriteBits(0, 1)
		}
		w.WriteBits(0, 16)
		w.WriteBits(0, 16)
		w.WriteBits(0, 8)
	}
	w.WriteBits(1, 1) // framing

	p := append([]byte{0x05}, "vorbis"...)
	return append(p, w.Bytes()...)
}

// VorbisAudio returns an audio packet of size bytes that uses mode.
func VorbisAudio(mode, size int) []byte {
	p := make([]byte, max(size, 1))
	p[0] = byte(mode << 1)
	for i := 1; i < len(p); i++ {
		p[i] = byte(i)
	}
	return p
}

// BitWriter packs bit fields least significant bit first.
type BitWriter struct {
	buf []byte
	n   int
}

// WriteBits appends the low n bits of v.
func (w *BitWriter) WriteBits(v uint64, n int) {
	for i := range n {
		if w.n%8 == 0 {
			w.buf = append(w.buf, 0)
		}
		if v>>i&1 != 0 {
			w.buf[len(w.buf)-1] |= 1 << (w.n % 8)
		}
		w.n++
	}
}

// Bytes returns the packed bits, zero padded to a whole byte.
func (w *BitWriter) Bytes() []byte {
	return w.buf
}

// OpusStream writes a stereo Opus stream: the two header pages, then pages
// of packetsPerPage 20 ms packets of packetSize bytes each. It returns the
// stream and the audio pages.
func OpusStream(serial uint32, pages, packetsPerPage, packetSize int) ([]byte, []PageInfo) {
	w := NewWriter(serial)
	w.WritePage(BOS, 0, OpusHead(2, 312, 48000))
	w.WritePage(0, 0, OpusTags("oggseek test", "TITLE=Synthetic"))

	var granule int64
	var audio []PageInfo
	for i := range pages {
		packets := make([][]byte, packetsPerPage)
		for j := range packets {
			packets[j] = OpusPacket(1, 0, 1, packetSize)
			granule += 960
		}
		var flags byte
		if i == pages-1 {
			flags = EOS
		}
		audio = append(audio, w.WritePage(flags, granule, packets...))
	}
	return w.Bytes(), audio
}

// SpanningOpusStream writes an Opus stream of pairs of pages. The first page
// of a pair holds a 20-byte packet and the start of a 600-byte packet that
// ends on the second, continued page. Every packet is 20 ms.
func SpanningOpusStream(serial uint32, pairs int) ([]byte, []PageInfo) {
	w := NewWriter(serial)
	w.WritePage(BOS, 0, OpusHead(2, 312, 48000))
	w.WritePage(0, 0, OpusTags("oggseek test"))

	var granule int64
	var audio []PageInfo
	for i := range pairs {
		small := OpusPacket(1, 0, 1, 20)
		big := OpusPacket(1, 0, 1, 600)
		granule += 960
		audio = append(audio, w.WriteSegments(0, granule,
			append(Lacing(len(small)), OpenLacing(510)...),
			append(small, big[:510]...)))

		var flags byte = Continued
		if i == pairs-1 {
			flags |= EOS
		}
		granule += 960
		audio = append(audio, w.WriteSegments(flags, granule, Lacing(len(big)-510), big[510:]))
	}
	return w.Bytes(), audio
}
