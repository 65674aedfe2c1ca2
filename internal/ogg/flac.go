package ogg

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"sort"

	"github.com/agleyzer/oggseek/internal/extractor"
)

// FLAC-in-Ogg mapping: the first packet is 0x7F "FLAC", a mapping version,
// a header packet count, the native "fLaC" marker and the STREAMINFO block.
// Further metadata blocks follow one per packet; audio frames start with the
// frame sync code.
const (
	flacMappingMagic    = "\x7fFLAC"
	flacStreamInfoStart = 17
	flacStreamInfoSize  = 34
	flacNativeStart     = 9

	flacBlockStreamInfo    = 0
	flacBlockSeekTable     = 3
	flacBlockVorbisComment = 4

	flacSeekPointSize  = 18
	flacFrameSyncByte  = 0xFF
	flacSampleNumStart = 4
)

func verifyFLAC(p []byte) bool {
	return bytes.HasPrefix(p, []byte(flacMappingMagic))
}

type flacSeekPoint struct {
	Sample uint64
	Offset uint64
}

type flacCodec struct {
	streamInfo bool
	seekPoints []flacSeekPoint
}

func newFLACCodec() *flacCodec {
	return &flacCodec{}
}

func isFLACAudio(p []byte) bool {
	return len(p) > 0 && p[0] == flacFrameSyncByte
}

func (c *flacCodec) readHeader(p []byte, f *extractor.Format) (bool, error) {
	switch {
	case verifyFLAC(p):
		if len(p) < flacStreamInfoStart+flacStreamInfoSize {
			return false, fmt.Errorf("%w: FLAC mapping header too short (%d bytes)", ErrMalformedHeader, len(p))
		}
		if p[flacStreamInfoStart-4]&0x7F != flacBlockStreamInfo {
			return false, fmt.Errorf("%w: FLAC mapping header lacks STREAMINFO", ErrMalformedHeader)
		}
		c.parseStreamInfo(p[flacStreamInfoStart:flacStreamInfoStart+flacStreamInfoSize], f)
		f.InitializationData = [][]byte{bytes.Clone(p[flacNativeStart:])}
		c.streamInfo = true
		return true, nil
	case isFLACAudio(p):
		if !c.streamInfo {
			return false, fmt.Errorf("%w: FLAC audio before STREAMINFO", ErrMalformedHeader)
		}
		return false, nil
	case len(p) >= 4:
		// Metadata block: 1 bit last flag, 7 bit type, 24 bit length.
		body := p[4:]
		switch p[0] & 0x7F {
		case flacBlockSeekTable:
			c.seekPoints = c.seekPoints[:0]
			for len(body) >= flacSeekPointSize {
				sample := binary.BigEndian.Uint64(body)
				if sample != ^uint64(0) {
					c.seekPoints = append(c.seekPoints, flacSeekPoint{
						Sample: sample,
						Offset: binary.BigEndian.Uint64(body[8:]),
					})
				}
				body = body[flacSeekPointSize:]
			}
		case flacBlockVorbisComment:
			md, err := parseComments(body)
			if err != nil {
				return false, err
			}
			f.Metadata = md
		}
		return true, nil
	default:
		return false, fmt.Errorf("%w: FLAC header packet of %d bytes", ErrMalformedHeader, len(p))
	}
}

// parseStreamInfo reads the big-endian bit fields of a STREAMINFO block.
func (c *flacCodec) parseStreamInfo(si []byte, f *extractor.Format) {
	maxFrameSize := int(si[7])<<16 | int(si[8])<<8 | int(si[9])
	packed := binary.BigEndian.Uint64(si[10:18])
	sampleRate := int(packed >> 44)
	channels := int(packed>>41&0x7) + 1
	bits := int(packed>>36&0x1F) + 1
	totalSamples := int64(packed & 0xFFFFFFFFF)

	f.SampleRate = sampleRate
	f.Channels = channels
	f.BitsPerSample = bits
	f.Bitrate = sampleRate * channels * bits
	f.Duration = extractor.DurationUnknown
	if maxFrameSize > 0 {
		f.MaxInputSize = maxFrameSize
	}
	if totalSamples > 0 && sampleRate > 0 {
		f.Duration = newClock(sampleRate).toTime(totalSamples)
	}
}

func (c *flacCodec) packetGranules(p []byte) int64 {
	if !isFLACAudio(p) || len(p) < 4 {
		return -1
	}
	return int64(flacBlockSize(p))
}

// flacBlockSize returns the number of samples in the frame starting at p, or
// -1 if the block size code is reserved or the header is truncated.
func flacBlockSize(p []byte) int {
	code := int(p[2] >> 4)
	switch {
	case code == 1:
		return 192
	case code >= 2 && code <= 5:
		return 576 << (code - 2)
	case code == 6 || code == 7:
		// The explicit size follows the UTF-8 coded frame or sample number.
		i := flacSampleNumStart + utf8CodedLength(p[flacSampleNumStart:])
		if code == 6 {
			if i >= len(p) {
				return -1
			}
			return int(p[i]) + 1
		}
		if i+1 >= len(p) {
			return -1
		}
		return int(binary.BigEndian.Uint16(p[i:])) + 1
	case code >= 8:
		return 256 << (code - 8)
	default:
		return -1
	}
}

// utf8CodedLength returns the length of the extended UTF-8 coded number at
// the start of p: up to seven bytes for 36-bit values.
func utf8CodedLength(p []byte) int {
	if len(p) == 0 {
		return 0
	}
	n := 0
	for b := p[0]; b&0x80 != 0 && n < 7; b <<= 1 {
		n++
	}
	if n == 0 {
		return 1
	}
	return n
}

// seekTable returns the SEEKTABLE points. Their offsets count frame bytes
// from the first frame, so Ogg framing only moves a frame further on.
func (c *flacCodec) seekTable() []seekPoint {
	points := make([]seekPoint, 0, len(c.seekPoints))
	for _, p := range c.seekPoints {
		if p.Sample > math.MaxInt64 || p.Offset > math.MaxInt64 {
			continue
		}
		points = append(points, seekPoint{granule: int64(p.Sample), offset: int64(p.Offset)})
	}
	sort.Slice(points, func(i, j int) bool { return points[i].granule < points[j].granule })
	return points
}

func (c *flacCodec) reset(headers bool) {
	if headers {
		c.streamInfo = false
		c.seekPoints = nil
	}
}

func (c *flacCodec) onSeekEnd(int64) {}
