// Package sim provides in-memory pins for running the driver without
// hardware, e.g. on a development host or in the simulate command.
package sim

import (
	"sync"
	"sync/atomic"

	"drv8825/core"
)

// Pin is a simulated digital line. It is safe for concurrent use and may be
// toggled from timer callbacks.
type Pin struct {
	name    string
	level   atomic.Bool
	sets    atomic.Int64
	toggles atomic.Int64
	rising  atomic.Int64
}

// NewPin returns a pin at LOW.
func NewPin(name string) *Pin {
	return &Pin{name: name}
}

func (p *Pin) Name() string { return p.name }

func (p *Pin) Set(high bool) {
	p.sets.Add(1)
	if old := p.level.Swap(high); !old && high {
		p.rising.Add(1)
	}
}

func (p *Pin) Get() bool { return p.level.Load() }

func (p *Pin) Toggle() {
	for {
		old := p.level.Load()
		if p.level.CompareAndSwap(old, !old) {
			if !old {
				p.rising.Add(1)
			}
			break
		}
	}
	p.toggles.Add(1)
}

// Toggles counts Toggle calls, i.e. pulses on a step line.
func (p *Pin) Toggles() int { return int(p.toggles.Load()) }

// RisingEdges counts LOW to HIGH transitions from any source.
func (p *Pin) RisingEdges() int { return int(p.rising.Load()) }

// Sets counts Set calls.
func (p *Pin) Sets() int { return int(p.sets.Load()) }

// Bank is a named set of simulated pins, created on first use.
type Bank struct {
	mu   sync.Mutex
	pins map[string]*Pin
}

func NewBank() *Bank {
	return &Bank{pins: make(map[string]*Pin)}
}

// Pin returns the pin called name, creating it at LOW.
func (b *Bank) Pin(name string) *Pin {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.pins[name]
	if !ok {
		p = NewPin(name)
		b.pins[name] = p
	}
	return p
}

// Lookup returns an existing pin.
func (b *Bank) Lookup(name string) (*Pin, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.pins[name]
	return p, ok
}

// DefaultWiring is the pin naming used by the simulate command.
var DefaultWiring = core.PinNames{
	Step:   "step",
	Dir:    "dir",
	Reset:  "reset",
	Sleep:  "sleep",
	Enable: "enable",
	Mode:   [3]string{"m0", "m1", "m2"},
	Fault:  "fault",
}

// Pins builds core.Pins from the bank. Empty names stay unwired. The
// fault line starts HIGH (no fault).
func (b *Bank) Pins(w core.PinNames) core.Pins {
	out := func(name string) core.OutputPin {
		if name == "" {
			return nil
		}
		return b.Pin(name)
	}
	var pins core.Pins
	pins.Step = out(w.Step)
	pins.Dir = out(w.Dir)
	pins.Reset = out(w.Reset)
	pins.Sleep = out(w.Sleep)
	pins.Enable = out(w.Enable)
	for i, name := range w.Mode {
		pins.Mode[i] = out(name)
	}
	if w.Fault != "" {
		f := b.Pin(w.Fault)
		f.Set(true)
		pins.Fault = f
	}
	return pins
}
