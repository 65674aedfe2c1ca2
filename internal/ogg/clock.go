package ogg

import "time"

// clock converts between granule positions and playback time at a fixed
// sample rate.
type clock struct {
	sampleRate int64
}

func newClock(sampleRate int) clock {
	return clock{sampleRate: int64(sampleRate)}
}

// toTime converts a granule position to a duration without overflowing for
// large positions.
func (c clock) toTime(granule int64) time.Duration {
	if c.sampleRate <= 0 || granule <= 0 {
		return 0
	}
	sec := granule / c.sampleRate
	rem := granule % c.sampleRate
	return time.Duration(sec)*time.Second + time.Duration(rem)*time.Second/time.Duration(c.sampleRate)
}

// toGranule converts a duration to the granule position of the sample
// playing at that time.
func (c clock) toGranule(t time.Duration) int64 {
	if c.sampleRate <= 0 || t <= 0 {
		return 0
	}
	sec := int64(t / time.Second)
	rem := int64(t % time.Second)
	return sec*c.sampleRate + rem*c.sampleRate/int64(time.Second)
}
