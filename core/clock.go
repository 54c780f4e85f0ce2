package core

import "time"

// Clock is a monotonic millisecond counter. It wraps at 2^32 ms (about 49
// days), so durations must be taken with MillisSince.
type Clock interface {
	Millis() uint32
}

// MillisSince returns now-start, correct across one wraparound.
func MillisSince(start, now uint32) uint32 {
	return now - start
}

// SystemClock counts milliseconds from its creation using the runtime's
// monotonic clock.
type SystemClock struct {
	epoch time.Time
}

// NewSystemClock starts a clock at zero.
func NewSystemClock() *SystemClock {
	return &SystemClock{epoch: time.Now()}
}

func (c *SystemClock) Millis() uint32 {
	return uint32(time.Since(c.epoch) / time.Millisecond)
}

// ClockFunc adapts a plain function to Clock.
type ClockFunc func() uint32

func (f ClockFunc) Millis() uint32 { return f() }
