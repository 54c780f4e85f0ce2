package core

import (
	"sync"
	"time"

	"periph.io/x/conn/v3/physic"
)

// PeriodicTimer is the hardware abstraction for a repeating tick source.
// A driver owns one timer exclusively; a second driver needs its own.
type PeriodicTimer interface {
	// Arm starts calling fn at frequency f until Disarm is called.
	// Arming an already armed timer returns ErrTimerArmed.
	Arm(f physic.Frequency, fn func()) error

	// Disarm stops the ticks. It may be called from inside fn and must not
	// block waiting for fn to return.
	Disarm()
}

// TickerTimer is a PeriodicTimer backed by a goroutine and time.Ticker.
// It works on any Go runtime including TinyGo.
type TickerTimer struct {
	mu   sync.Mutex
	stop chan struct{}
}

// NewTickerTimer returns a disarmed timer.
func NewTickerTimer() *TickerTimer {
	return &TickerTimer{}
}

func (t *TickerTimer) Arm(f physic.Frequency, fn func()) error {
	if f <= 0 || f.Period() <= 0 {
		return configErr("arm timer", ErrInvalidTiming, "frequency "+f.String())
	}
	period := f.Period()

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stop != nil {
		return usageErr("arm timer", ErrTimerArmed, "")
	}
	stop := make(chan struct{})
	t.stop = stop
	go tickLoop(period, fn, stop)
	return nil
}

func (t *TickerTimer) Disarm() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stop != nil {
		close(t.stop)
		t.stop = nil
	}
}

// Armed reports whether ticks are being delivered.
func (t *TickerTimer) Armed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stop != nil
}

func tickLoop(period time.Duration, fn func(), stop <-chan struct{}) {
	tk := time.NewTicker(period)
	defer tk.Stop()
	for {
		select {
		case <-stop:
			return
		case <-tk.C:
			// A tick and a disarm can be ready together; the disarm wins.
			select {
			case <-stop:
				return
			default:
			}
			fn()
		}
	}
}
