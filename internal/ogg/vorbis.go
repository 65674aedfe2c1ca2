package ogg

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/agleyzer/oggseek/internal/extractor"
)

// Vorbis header packet types.
const (
	vorbisIDHeader      = 0x01
	vorbisCommentHeader = 0x03
	vorbisSetupHeader   = 0x05

	vorbisMagic        = "vorbis"
	vorbisIDHeaderSize = 30
)

func verifyVorbis(p []byte) bool {
	return len(p) >= 7 && p[0] == vorbisIDHeader && string(p[1:7]) == vorbisMagic
}

// vorbisID holds the identification header fields.
type vorbisID struct {
	version        uint32
	channels       int
	sampleRate     int
	bitrateMax     int32
	bitrateNominal int32
	bitrateMin     int32
	blockSize0     int
	blockSize1     int
	raw            []byte
}

func parseVorbisID(p []byte) (vorbisID, error) {
	if len(p) < vorbisIDHeaderSize || !verifyVorbis(p) {
		return vorbisID{}, fmt.Errorf("%w: vorbis identification header", ErrMalformedHeader)
	}
	id := vorbisID{
		version:        binary.LittleEndian.Uint32(p[7:11]),
		channels:       int(p[11]),
		sampleRate:     int(binary.LittleEndian.Uint32(p[12:16])),
		bitrateMax:     int32(binary.LittleEndian.Uint32(p[16:20])),
		bitrateNominal: int32(binary.LittleEndian.Uint32(p[20:24])),
		bitrateMin:     int32(binary.LittleEndian.Uint32(p[24:28])),
		blockSize0:     1 << (p[28] & 0x0F),
		blockSize1:     1 << (p[28] >> 4),
		raw:            bytes.Clone(p),
	}
	if id.version != 0 {
		return vorbisID{}, fmt.Errorf("%w: vorbis version %d", ErrMalformedHeader, id.version)
	}
	if id.channels == 0 || id.sampleRate == 0 {
		return vorbisID{}, fmt.Errorf("%w: vorbis stream with %d channels at %d Hz", ErrMalformedHeader, id.channels, id.sampleRate)
	}
	if p[29]&0x01 == 0 {
		return vorbisID{}, fmt.Errorf("%w: vorbis identification framing bit unset", ErrMalformedHeader)
	}
	return id, nil
}

// bitrate picks the nominal bitrate, or the average of the bounds.
func (id vorbisID) bitrate() int {
	switch {
	case id.bitrateNominal > 0:
		return int(id.bitrateNominal)
	case id.bitrateMax > 0 && id.bitrateMin > 0:
		return int(id.bitrateMax/2 + id.bitrateMin/2)
	default:
		return 0
	}
}

func isVorbisHeader(p []byte, kind byte) bool {
	return len(p) >= 7 && p[0] == kind && string(p[1:7]) == vorbisMagic
}

type vorbisCodec struct {
	id       *vorbisID
	comments []byte
	modes    []bool // block flag per mode
	modeBits int

	previousBlockSize int
	seenFirstPacket   bool
}

func newVorbisCodec() *vorbisCodec {
	return &vorbisCodec{}
}

func (c *vorbisCodec) readHeader(p []byte, f *extractor.Format) (bool, error) {
	switch {
	case c.id == nil:
		id, err := parseVorbisID(p)
		if err != nil {
			return false, err
		}
		c.id = &id
		return true, nil
	case c.comments == nil:
		if !isVorbisHeader(p, vorbisCommentHeader) {
			return false, fmt.Errorf("%w: expected vorbis comment header", ErrMalformedHeader)
		}
		md, err := parseComments(p[7:])
		if err != nil {
			return false, err
		}
		f.Metadata = md
		c.comments = bytes.Clone(p)
		return true, nil
	case c.modes == nil:
		if !isVorbisHeader(p, vorbisSetupHeader) {
			return false, fmt.Errorf("%w: expected vorbis setup header", ErrMalformedHeader)
		}
		modes, err := readVorbisModes(p[7:], c.id.channels)
		if err != nil {
			return false, err
		}
		c.modes = modes
		c.modeBits = ilog(len(modes) - 1)

		f.SampleRate = c.id.sampleRate
		f.Channels = c.id.channels
		f.Bitrate = c.id.bitrate()
		f.MaxInputSize = c.id.blockSize1 * c.id.channels
		f.Duration = extractor.DurationUnknown
		f.InitializationData = [][]byte{c.id.raw, c.comments, bytes.Clone(p)}
		return true, nil
	default:
		return false, nil
	}
}

func (c *vorbisCodec) packetGranules(p []byte) int64 {
	// Header packets have the low bit set.
	if len(p) == 0 || p[0]&0x01 != 0 || c.id == nil {
		return -1
	}
	mode := int(p[0]>>1) & (1<<c.modeBits - 1)
	if mode >= len(c.modes) {
		return -1
	}
	blockSize := c.id.blockSize0
	if c.modes[mode] {
		blockSize = c.id.blockSize1
	}
	// The first packet only primes the overlap and produces no samples.
	var samples int
	if c.seenFirstPacket {
		samples = (c.previousBlockSize + blockSize) / 4
	}
	c.previousBlockSize = blockSize
	c.seenFirstPacket = true
	return int64(samples)
}

func (c *vorbisCodec) reset(headers bool) {
	if headers {
		c.id = nil
		c.comments = nil
		c.modes = nil
		c.modeBits = 0
	}
	c.previousBlockSize = 0
	c.seenFirstPacket = false
}

func (c *vorbisCodec) onSeekEnd(granule int64) {
	c.seenFirstPacket = granule != 0
	if c.id != nil {
		c.previousBlockSize = c.id.blockSize0
	}
}
