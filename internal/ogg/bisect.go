package ogg

import (
	"fmt"
	"sort"
	"time"

	"github.com/agleyzer/oggseek/internal/extractor"
	"github.com/hashicorp/go-hclog"
)

const (
	// DefaultMatchRange is the byte range below which a seek stops bisecting
	// and scans page headers forward.
	DefaultMatchRange = 100000

	// maxBisectSteps bounds the bisection before falling back to a scan.
	maxBisectSteps = 64

	// estimateBias moves estimated positions back so playback starts early
	// rather than late.
	estimateBias = 30000
)

// seekPoint pairs a granule position with a byte offset at or before the
// page on which that granule's packet starts.
type seekPoint struct {
	granule int64
	offset  int64
}

// seekTabler is implemented by codecs whose headers carry seek points.
type seekTabler interface {
	// seekTable returns the points with offsets relative to the first
	// audio page, sorted by granule.
	seekTable() []seekPoint
}

type bisectState int

const (
	bisectSeekToEnd bisectState = iota
	bisectReadLastPage
	bisectIdle
	bisectSearch
	bisectScan
	bisectLand
)

// bisectingSeeker is the progressive seeker. It learns the total granule
// count from the last page, then answers seeks by bisecting the byte range
// between the first audio page and the end of the input.
type bisectingSeeker struct {
	log        hclog.Logger
	clock      clock
	serial     uint32
	start      int64
	end        int64
	matchRange int64

	state    bisectState
	resumeAt int64
	total    int64
	header   PageHeader
	points   []seekPoint

	// Session state, reset by StartSeek.
	target      int64
	low         int64
	high        int64
	lowGranule  int64
	backLow     int64
	backGranule int64
	probe       int64
	probes      []int64
	steps       int
	nudged      bool
	landOffset  int64
	landGranule int64
}

func newBisectingSeeker(log hclog.Logger, c clock, serial uint32, start, end, matchRange int64) *bisectingSeeker {
	if matchRange <= 0 {
		matchRange = DefaultMatchRange
	}
	return &bisectingSeeker{
		log:        log,
		clock:      c,
		serial:     serial,
		start:      start,
		end:        end,
		matchRange: matchRange,
		state:      bisectSeekToEnd,
		total:      -1,
	}
}

// SeekMap returns nil until the total granule count is known.
func (s *bisectingSeeker) SeekMap() extractor.SeekMap {
	if s.total < 0 {
		return nil
	}
	return progressiveSeekMap{
		clock: s.clock,
		start: s.start,
		end:   s.end,
		total: s.total,
	}
}

// usePoints makes sessions probe the seek points around the target before
// falling back to midpoints. Offsets are relative to the first audio page.
func (s *bisectingSeeker) usePoints(points []seekPoint) {
	s.points = s.points[:0]
	for _, p := range points {
		if off := s.start + p.offset; off >= s.start && off < s.end {
			s.points = append(s.points, seekPoint{granule: p.granule, offset: off})
		}
	}
}

// pointProbes returns the offsets of the seek points on either side of
// target, the lower one first.
func (s *bisectingSeeker) pointProbes(target int64) []int64 {
	i := sort.Search(len(s.points), func(i int) bool { return s.points[i].granule > target })
	var probes []int64
	if i > 0 {
		probes = append(probes, s.points[i-1].offset)
	}
	if i < len(s.points) {
		probes = append(probes, s.points[i].offset)
	}
	return probes
}

// nextProbe picks where the next bisection step reads: the first pending
// seek point inside (low, high), otherwise the midpoint.
func (s *bisectingSeeker) nextProbe() int64 {
	for len(s.probes) > 0 {
		p := s.probes[0]
		s.probes = s.probes[1:]
		if p > s.low && p < s.high {
			return p
		}
	}
	return s.low + (s.high-s.low)/2
}

// StartSeek begins a bisection session towards target.
func (s *bisectingSeeker) StartSeek(target int64) int64 {
	target = max(target, 0)
	if s.total >= 0 {
		target = min(target, s.total)
	}
	s.target = target
	s.low = s.start
	s.high = s.end
	s.lowGranule = 0
	s.backLow, s.backGranule = s.low, 0
	s.steps = 0
	s.nudged = false
	s.probes = s.pointProbes(target)
	s.probe = s.nextProbe()
	s.state = bisectSearch
	s.log.Debug("seek started", "target", target, "low", s.low, "high", s.high)
	return target
}

// Cancel drops the current session. Discovery of the total granule count is
// restarted if it was interrupted.
func (s *bisectingSeeker) Cancel() {
	if s.total >= 0 {
		s.state = bisectIdle
	} else {
		s.state = bisectSeekToEnd
	}
}

// Read advances the seeker by one step.
func (s *bisectingSeeker) Read(in extractor.Input) (SeekResult, error) {
	switch s.state {
	case bisectSeekToEnd:
		s.resumeAt = in.Position()
		s.state = bisectReadLastPage
		if from := max(s.end-MaxPageSize, s.start); from != s.resumeAt {
			return Reposition(from), nil
		}
		fallthrough
	case bisectReadLastPage:
		total, err := s.lastGranule(in)
		if err != nil {
			return NoAction(), err
		}
		s.total = total
		s.state = bisectIdle
		s.log.Debug("total granules", "granules", total, "duration", s.clock.toTime(total))
		return Reposition(s.resumeAt), nil
	case bisectSearch:
		return s.bisect(in)
	case bisectScan:
		return s.scan(in)
	case bisectLand:
		if in.Position() != s.landOffset {
			return Reposition(s.landOffset), nil
		}
		return s.finish(s.landGranule), nil
	default:
		return NoAction(), nil
	}
}

// lastGranule scans the pages from the read position to the end and returns
// the last granule position of the locked bitstream.
func (s *bisectingSeeker) lastGranule(in extractor.Input) (int64, error) {
	last := int64(0)
	ok, err := skipToNextPage(in, s.end)
	if err != nil {
		return 0, err
	}
	for ok {
		found, err := s.header.Populate(in, false)
		if err != nil {
			return 0, err
		}
		if !found {
			// False capture pattern or truncated page; resynchronize.
			if err := in.Skip(1); err != nil {
				break
			}
			if ok, err = skipToNextPage(in, s.end); err != nil {
				return 0, err
			}
			continue
		}
		if s.header.Serial == s.serial && s.header.Granule != GranuleUnset {
			last = s.header.Granule
		}
		if err := in.Skip(int64(s.header.BodySize)); err != nil {
			if isEOF(err) {
				break
			}
			return 0, err
		}
		ok = in.Position() < s.end
	}
	return last, nil
}

// bisect probes the page following the probe offset in [low, high) and
// narrows the interval towards the target.
func (s *bisectingSeeker) bisect(in extractor.Input) (SeekResult, error) {
	if s.narrow() {
		return s.beginScan(in)
	}
	mid := s.probe
	if in.Position() != mid {
		return Reposition(mid), nil
	}
	s.steps++

	ok, err := skipToNextPage(in, s.high)
	if err != nil {
		return NoAction(), err
	}
	for ok {
		pageStart := in.Position()
		found, err := s.header.Populate(in, true)
		if err != nil {
			return NoAction(), err
		}
		if !found {
			if s.nudged {
				return NoAction(), fmt.Errorf("%w: no valid page after offset %d", ErrSeekFailed, pageStart)
			}
			s.nudged = true
			if err := in.Skip(1); err != nil {
				break
			}
			if ok, err = skipToNextPage(in, s.high); err != nil {
				return NoAction(), err
			}
			continue
		}
		s.nudged = false

		size := int64(s.header.Size())
		if s.header.Serial != s.serial || s.header.Granule == GranuleUnset {
			if pageStart+size >= s.high {
				break
			}
			if err := in.Skip(size); err != nil {
				if isEOF(err) {
					break
				}
				return NoAction(), err
			}
			continue
		}

		granule := s.header.Granule
		s.log.Trace("bisect probe", "offset", pageStart, "granule", granule, "target", s.target)
		switch {
		case granule == s.target:
			s.raiseLow(pageStart+size, granule)
			s.state = bisectScan
			return Reposition(s.low), nil
		case granule < s.target:
			s.raiseLow(pageStart+size, granule)
		default:
			s.high = pageStart
		}
		return s.next(), nil
	}

	// No page with a granule position starts in [mid, high), so the target
	// page starts before mid.
	s.high = mid
	s.state = bisectScan
	return Reposition(s.low), nil
}

// raiseLow moves the lower bound past a probed page. The previous bound is
// kept because a packet crossing the new bound starts before it.
func (s *bisectingSeeker) raiseLow(low, granule int64) {
	s.backLow, s.backGranule = s.low, s.lowGranule
	s.low, s.lowGranule = low, granule
}

func (s *bisectingSeeker) narrow() bool {
	return s.high-s.low <= s.matchRange || s.steps >= maxBisectSteps
}

func (s *bisectingSeeker) next() SeekResult {
	if s.narrow() {
		s.state = bisectScan
		return Reposition(s.low)
	}
	s.probe = s.nextProbe()
	return Reposition(s.probe)
}

func (s *bisectingSeeker) beginScan(in extractor.Input) (SeekResult, error) {
	s.state = bisectScan
	return s.scan(in)
}

// scan reads page headers forward from low and stops at the first page whose
// granule position is past the target. If that page continues a packet, the
// seek lands on the page where the packet starts.
func (s *bisectingSeeker) scan(in extractor.Input) (SeekResult, error) {
	if in.Position() != s.low {
		return Reposition(s.low), nil
	}

	granule := s.lowGranule
	landStart, landGranule := int64(-1), int64(0)
	for {
		pageStart := in.Position()
		found, err := s.header.Populate(in, true)
		if err != nil {
			return NoAction(), err
		}
		if !found {
			return s.finish(granule), nil
		}

		ours := s.header.Serial == s.serial
		if ours && s.header.Granule != GranuleUnset && s.header.Granule > s.target {
			if !s.header.IsContinued() {
				return s.finish(granule), nil
			}
			if landStart >= 0 {
				s.landOffset, s.landGranule = landStart, landGranule
				s.state = bisectLand
				return Reposition(landStart), nil
			}
			if s.low != s.backLow {
				// The packet starts before low; scan again from the previous bound.
				s.low, s.lowGranule = s.backLow, s.backGranule
				return Reposition(s.low), nil
			}
			return s.finish(granule), nil
		}

		if err := in.Skip(int64(s.header.Size())); err != nil {
			if isEOF(err) {
				return s.finish(granule), nil
			}
			return NoAction(), err
		}
		if ours {
			// A packet starts on this page unless the page is only the middle
			// of a longer packet.
			if !s.header.IsContinued() || s.header.Granule != GranuleUnset {
				landStart, landGranule = pageStart, granule
			}
			if s.header.Granule != GranuleUnset {
				granule = s.header.Granule
			}
		}
	}
}

func (s *bisectingSeeker) finish(granule int64) SeekResult {
	if s.total < 0 {
		// The seek arrived before the seek map was built; finish that next.
		s.state = bisectSeekToEnd
	} else {
		s.state = bisectIdle
	}
	s.log.Debug("seek converged", "target", s.target, "granule", granule, "steps", s.steps)
	return Done(granule)
}

// progressiveSeekMap estimates positions by linear interpolation between the
// first audio page and the end of the stream.
type progressiveSeekMap struct {
	clock clock
	start int64
	end   int64
	total int64
}

func (m progressiveSeekMap) Seekable() bool { return true }

func (m progressiveSeekMap) Duration() time.Duration { return m.clock.toTime(m.total) }

func (m progressiveSeekMap) Position(t time.Duration) int64 {
	if t <= 0 || m.total <= 0 {
		return m.start
	}
	granule := m.clock.toGranule(t)
	span := float64(m.end - m.start)
	pos := m.start + int64(span*float64(granule)/float64(m.total)) - estimateBias
	return min(max(pos, m.start), m.end-1)
}
