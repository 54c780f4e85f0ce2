package core

import (
	"context"
	"time"
)

// Sleeper is the cooperative scheduler's suspension primitive. Sleep yields
// to other goroutines for d, returning early with ctx.Err() if the context
// ends first.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
	// Resolution is the smallest unit Sleep can honour.
	Resolution() time.Duration
}

// TimerSleeper sleeps on runtime timers, rounding each request down to a
// whole number of Units (at least one).
type TimerSleeper struct {
	Unit time.Duration
}

// DefaultSleeper sleeps with microsecond resolution.
var DefaultSleeper Sleeper = TimerSleeper{Unit: time.Microsecond}

func (s TimerSleeper) Resolution() time.Duration {
	if s.Unit <= 0 {
		return time.Microsecond
	}
	return s.Unit
}

func (s TimerSleeper) Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(Quantize(d, s.Resolution()))
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Quantize rounds d down to a multiple of unit, never below one unit.
func Quantize(d, unit time.Duration) time.Duration {
	if unit <= 0 {
		return d
	}
	n := d / unit
	if n < 1 {
		n = 1
	}
	return n * unit
}
