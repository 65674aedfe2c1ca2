package ogg

import (
	"fmt"
	"sort"
	"time"

	"github.com/agleyzer/oggseek/internal/extractor"
)

// IndexEntry describes one page of the indexed bitstream.
type IndexEntry struct {
	Offset  int64
	Size    int
	Granule int64
	Flags   byte
}

// Continued reports whether the page starts in the middle of a packet.
func (e IndexEntry) Continued() bool { return e.Flags&FlagContinued != 0 }

// PageIndex lists the pages of one logical bitstream in file order.
type PageIndex struct {
	Serial  uint32
	Entries []IndexEntry
}

// LastGranule returns the last granule position set on any page, or 0.
func (x *PageIndex) LastGranule() int64 {
	for i := len(x.Entries) - 1; i >= 0; i-- {
		if g := x.Entries[i].Granule; g != GranuleUnset {
			return g
		}
	}
	return 0
}

// End returns the offset just past the last indexed page.
func (x *PageIndex) End() int64 {
	if len(x.Entries) == 0 {
		return 0
	}
	last := x.Entries[len(x.Entries)-1]
	return last.Offset + int64(last.Size)
}

// BuildIndex reads the page headers from the read position of in to the end
// and indexes the pages of the first bitstream it meets. Page bodies are
// skipped, not read.
func BuildIndex(in extractor.Input) (*PageIndex, error) {
	var (
		h      PageHeader
		index  PageIndex
		locked bool
	)
	for {
		offset := in.Position()
		ok, err := h.Populate(in, false)
		if err != nil {
			return nil, fmt.Errorf("failed to read page header at %d: %w", offset, err)
		}
		if !ok {
			if err := endOrMalformed(in); err != nil {
				return nil, err
			}
			break
		}
		if err := in.Skip(int64(h.BodySize)); err != nil {
			if isEOF(err) {
				// Truncated final page.
				break
			}
			return nil, fmt.Errorf("failed to skip page body at %d: %w", offset, err)
		}
		if !locked {
			index.Serial = h.Serial
			locked = true
		}
		if h.Serial != index.Serial {
			continue
		}
		index.Entries = append(index.Entries, IndexEntry{
			Offset:  offset,
			Size:    h.Size(),
			Granule: h.Granule,
			Flags:   h.Flags,
		})
	}
	if !locked {
		return nil, fmt.Errorf("%w: no pages", ErrMalformedPage)
	}
	return &index, nil
}

// indexSeeker resolves seeks directly from a PageIndex.
type indexSeeker struct {
	clock   clock
	start   int64
	pages   []IndexEntry
	prior   []int64
	total   int64
	end     int64
	pending bool
	offset  int64
	granule int64
}

// newIndexSeeker keeps the pages of index at or after start, the offset of
// the first audio page.
func newIndexSeeker(c clock, index *PageIndex, start int64) *indexSeeker {
	s := &indexSeeker{clock: c, start: start, total: index.LastGranule(), end: index.End()}
	last := int64(0)
	for _, e := range index.Entries {
		if e.Offset < start {
			if e.Granule != GranuleUnset {
				last = e.Granule
			}
			continue
		}
		s.pages = append(s.pages, e)
		s.prior = append(s.prior, last)
		if e.Granule != GranuleUnset {
			last = e.Granule
		}
	}
	return s
}

// locate returns the offset to resume reading at for target and the granule
// position of the last sample before it.
func (s *indexSeeker) locate(target int64) (int64, int64) {
	// The first page on which the target sample's packet has ended.
	i := sort.Search(len(s.pages), func(i int) bool {
		if i+1 < len(s.prior) {
			return s.prior[i+1] > target
		}
		return s.total > target
	})
	if i == len(s.pages) {
		return s.end, s.total
	}
	if s.pages[i].Continued() && i > 0 {
		i--
	}
	return s.pages[i].Offset, s.prior[i]
}

func (s *indexSeeker) SeekMap() extractor.SeekMap {
	return indexSeekMap{s}
}

func (s *indexSeeker) StartSeek(target int64) int64 {
	target = min(max(target, 0), s.total)
	s.offset, s.granule = s.locate(target)
	s.pending = true
	return target
}

func (s *indexSeeker) Cancel() { s.pending = false }

func (s *indexSeeker) Read(in extractor.Input) (SeekResult, error) {
	if !s.pending {
		return NoAction(), nil
	}
	if in.Position() != s.offset {
		return Reposition(s.offset), nil
	}
	s.pending = false
	return Done(s.granule), nil
}

type indexSeekMap struct {
	s *indexSeeker
}

func (m indexSeekMap) Seekable() bool { return true }

func (m indexSeekMap) Duration() time.Duration { return m.s.clock.toTime(m.s.total) }

func (m indexSeekMap) Position(t time.Duration) int64 {
	if len(m.s.pages) == 0 {
		return m.s.start
	}
	offset, _ := m.s.locate(m.s.clock.toGranule(t))
	return offset
}
