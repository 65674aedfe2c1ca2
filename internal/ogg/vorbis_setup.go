package ogg

import (
	"errors"
	"fmt"
)

var errBitsExhausted = errors.New("setup header exhausted")

// bitReader reads little-endian bit fields, least significant bit first, as
// the Vorbis setup header is packed. The first error sticks.
type bitReader struct {
	data []byte
	pos  int // in bits
	err  error
}

func (b *bitReader) readBits(n int) uint64 {
	if b.err != nil {
		return 0
	}
	if n == 0 {
		return 0
	}
	if b.pos+n > len(b.data)*8 {
		b.err = errBitsExhausted
		return 0
	}
	var v uint64
	for i := range n {
		bit := b.pos + i
		if b.data[bit>>3]>>(bit&7)&1 != 0 {
			v |= 1 << i
		}
	}
	b.pos += n
	return v
}

func (b *bitReader) readBit() bool {
	return b.readBits(1) == 1
}

func (b *bitReader) skip(n int64) {
	if b.err != nil {
		return
	}
	if n < 0 || int64(b.pos)+n > int64(len(b.data))*8 {
		b.err = errBitsExhausted
		return
	}
	b.pos += int(n)
}

// ilog returns the number of bits needed to represent x.
func ilog(x int) int {
	n := 0
	for x > 0 {
		n++
		x >>= 1
	}
	return n
}

// lookup1Values returns the largest r such that r^dimensions <= entries.
func lookup1Values(entries, dimensions int) int {
	if dimensions <= 0 {
		return 0
	}
	pow := func(r int) int {
		v := 1
		for range dimensions {
			v *= r
			if v > entries {
				return entries + 1
			}
		}
		return v
	}
	r := 0
	for pow(r+1) <= entries {
		r++
	}
	return r
}

// readVorbisModes walks a setup header, the bytes after the packet type and
// "vorbis" magic, and returns the block flag of every mode. Codebooks,
// floors, residues and mappings are validated and skipped.
func readVorbisModes(p []byte, channels int) ([]bool, error) {
	b := &bitReader{data: p}
	steps := []struct {
		name string
		fn   func(*bitReader, int) error
	}{
		{"codebooks", readVorbisCodebooks},
		{"time domain transforms", readVorbisTimes},
		{"floors", readVorbisFloors},
		{"residues", readVorbisResidues},
		{"mappings", readVorbisMappings},
	}
	for _, s := range steps {
		if err := s.fn(b, channels); err != nil {
			return nil, fmt.Errorf("%w: vorbis %s: %w", ErrMalformedHeader, s.name, err)
		}
		if b.err != nil {
			return nil, fmt.Errorf("%w: vorbis %s: %w", ErrMalformedHeader, s.name, b.err)
		}
	}

	count := int(b.readBits(6)) + 1
	modes := make([]bool, count)
	for i := range modes {
		modes[i] = b.readBit()
		b.readBits(16) // window type
		b.readBits(16) // transform type
		b.readBits(8)  // mapping
	}
	if !b.readBit() || b.err != nil {
		return nil, fmt.Errorf("%w: vorbis setup framing bit", ErrMalformedHeader)
	}
	return modes, nil
}

func readVorbisCodebooks(b *bitReader, _ int) error {
	count := int(b.readBits(8)) + 1
	for i := 0; i < count && b.err == nil; i++ {
		if sync := b.readBits(24); sync != 0x564342 {
			return fmt.Errorf("codebook %d: bad sync pattern 0x%06x", i, sync)
		}
		dimensions := int(b.readBits(16))
		entries := int(b.readBits(24))

		if ordered := b.readBit(); !ordered {
			sparse := b.readBit()
			for range entries {
				if sparse && !b.readBit() {
					continue
				}
				b.readBits(5) // length - 1
				if b.err != nil {
					break
				}
			}
		} else {
			b.readBits(5) // initial length - 1
			for e := 0; e < entries && b.err == nil; {
				e += int(b.readBits(ilog(entries - e)))
			}
		}

		lookup := b.readBits(4)
		switch lookup {
		case 0:
		case 1, 2:
			b.skip(32) // minimum value
			b.skip(32) // delta value
			valueBits := int64(b.readBits(4)) + 1
			b.skip(1) // sequence flag
			var values int64
			if lookup == 1 {
				values = int64(lookup1Values(entries, dimensions))
			} else {
				values = int64(entries) * int64(dimensions)
			}
			b.skip(values * valueBits)
		default:
			return fmt.Errorf("codebook %d: lookup type %d", i, lookup)
		}
	}
	return nil
}

func readVorbisTimes(b *bitReader, _ int) error {
	count := int(b.readBits(6)) + 1
	for i := range count {
		if v := b.readBits(16); v != 0 {
			return fmt.Errorf("transform %d: type %d", i, v)
		}
	}
	return nil
}

func readVorbisFloors(b *bitReader, _ int) error {
	count := int(b.readBits(6)) + 1
	for i := 0; i < count && b.err == nil; i++ {
		switch kind := b.readBits(16); kind {
		case 0:
			b.skip(8 + 16 + 16 + 6 + 8) // order, rate, bark map size, amplitude bits and offset
			books := int64(b.readBits(4)) + 1
			b.skip(books * 8)
		case 1:
			partitions := int(b.readBits(5))
			classes := make([]int, partitions)
			maxClass := -1
			for j := range classes {
				classes[j] = int(b.readBits(4))
				maxClass = max(maxClass, classes[j])
			}
			dimensions := make([]int, maxClass+1)
			for j := range dimensions {
				dimensions[j] = int(b.readBits(3)) + 1
				subclasses := int(b.readBits(2))
				if subclasses > 0 {
					b.skip(8) // master book
				}
				b.skip(int64(1<<subclasses) * 8)
			}
			b.skip(2) // multiplier
			rangeBits := int64(b.readBits(4))
			var points int64
			for _, c := range classes {
				points += int64(dimensions[c])
			}
			b.skip(points * rangeBits)
		default:
			return fmt.Errorf("floor %d: type %d", i, kind)
		}
	}
	return nil
}

func readVorbisResidues(b *bitReader, _ int) error {
	count := int(b.readBits(6)) + 1
	for i := 0; i < count && b.err == nil; i++ {
		if kind := b.readBits(16); kind > 2 {
			return fmt.Errorf("residue %d: type %d", i, kind)
		}
		b.skip(24 + 24 + 24) // begin, end, partition size
		classifications := int(b.readBits(6)) + 1
		b.skip(8) // classbook
		var books int64
		for range classifications {
			cascade := b.readBits(3)
			if b.readBit() {
				cascade |= b.readBits(5) << 3
			}
			for k := range 8 {
				if cascade&(1<<k) != 0 {
					books++
				}
			}
		}
		b.skip(books * 8)
	}
	return nil
}

func readVorbisMappings(b *bitReader, channels int) error {
	count := int(b.readBits(6)) + 1
	for i := 0; i < count && b.err == nil; i++ {
		if kind := b.readBits(16); kind != 0 {
			return fmt.Errorf("mapping %d: type %d", i, kind)
		}
		submaps := 1
		if b.readBit() {
			submaps = int(b.readBits(4)) + 1
		}
		if b.readBit() {
			steps := int64(b.readBits(8)) + 1
			b.skip(steps * 2 * int64(ilog(channels-1))) // magnitude and angle
		}
		if reserved := b.readBits(2); reserved != 0 {
			return fmt.Errorf("mapping %d: reserved field %d", i, reserved)
		}
		if submaps > 1 {
			b.skip(int64(channels) * 4) // channel mux
		}
		b.skip(int64(submaps) * (8 + 8 + 8)) // time, floor, residue
	}
	return nil
}
