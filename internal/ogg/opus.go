package ogg

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/agleyzer/oggseek/internal/extractor"
)

const (
	opusHeadMagic   = "OpusHead"
	opusTagsMagic   = "OpusTags"
	opusHeadMinSize = 19

	// Opus granule positions always count samples at 48 kHz.
	opusSampleRate = 48000

	opusSeekPreRoll = 80 * time.Millisecond
)

// opusFrameSizes is the frame size in 48 kHz samples of each TOC
// configuration (RFC 6716 section 3.1).
var opusFrameSizes = [32]int{
	480, 960, 1920, 2880, // SILK NB
	480, 960, 1920, 2880, // SILK MB
	480, 960, 1920, 2880, // SILK WB
	480, 960, // Hybrid SWB
	480, 960, // Hybrid FB
	120, 240, 480, 960, // CELT NB
	120, 240, 480, 960, // CELT WB
	120, 240, 480, 960, // CELT SWB
	120, 240, 480, 960, // CELT FB
}

func verifyOpus(p []byte) bool {
	return bytes.HasPrefix(p, []byte(opusHeadMagic))
}

type opusCodec struct {
	head bool
	tags bool
}

func newOpusCodec() *opusCodec {
	return &opusCodec{}
}

func (c *opusCodec) readHeader(p []byte, f *extractor.Format) (bool, error) {
	switch {
	case !c.head:
		if !verifyOpus(p) || len(p) < opusHeadMinSize {
			return false, fmt.Errorf("%w: OpusHead of %d bytes", ErrMalformedHeader, len(p))
		}
		if version := p[8]; version>>4 != 0 {
			return false, fmt.Errorf("%w: unsupported OpusHead version %d", ErrMalformedHeader, version)
		}
		channels := int(p[9])
		if channels == 0 {
			return false, fmt.Errorf("%w: OpusHead with no channels", ErrMalformedHeader)
		}
		preSkip := int(binary.LittleEndian.Uint16(p[10:12]))

		f.SampleRate = opusSampleRate
		f.Channels = channels
		f.EncoderDelay = preSkip
		f.SeekPreRoll = opusSeekPreRoll
		f.Duration = extractor.DurationUnknown
		f.InitializationData = [][]byte{bytes.Clone(p)}
		c.head = true
		return true, nil
	case !c.tags && bytes.HasPrefix(p, []byte(opusTagsMagic)):
		md, err := parseComments(p[len(opusTagsMagic):])
		if err != nil {
			return false, err
		}
		f.Metadata = md
		c.tags = true
		return true, nil
	default:
		// OpusTags is required, but a missing one does not stop playback.
		return false, nil
	}
}

func (c *opusCodec) packetGranules(p []byte) int64 {
	if len(p) == 0 {
		return -1
	}
	toc := p[0]
	var frames int
	switch toc & 0x03 {
	case 0:
		frames = 1
	case 1, 2:
		frames = 2
	default:
		if len(p) < 2 {
			return -1
		}
		frames = int(p[1] & 0x3F)
	}
	return int64(frames * opusFrameSizes[toc>>3])
}

func (c *opusCodec) reset(headers bool) {
	if headers {
		c.head = false
		c.tags = false
	}
}

func (c *opusCodec) onSeekEnd(int64) {}
