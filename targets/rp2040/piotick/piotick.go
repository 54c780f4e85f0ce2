// Package piotick is the RP2040 PIO program behind the firmware's tick
// source: a state machine that raises one IRQ flag per period, paced by
// a delay count pushed once through the TX FIFO.
package piotick

import (
	"fmt"
	"math"

	"periph.io/x/conn/v3/physic"

	"drv8825/core"
)

// Program layout:
//
//	0: pull noblock     ; new count if one was pushed, else OSR = X
//	1: mov x, osr       ; keep it for the next period
//	2: mov y, x
//	3: jmp y--, 3       ; y+1 cycles
//	4: irq nowait 0
//
// One period is count + Overhead cycles.
var Program = []uint16{
	0x8080,
	0xa027,
	0xa041,
	0x0083,
	0xc000 | IRQ,
}

const (
	// Origin is where Program must be loaded; its jump is absolute.
	Origin = 0
	// WrapTop and WrapBottom are relative to the load offset.
	WrapTop    = 4
	WrapBottom = 0
	// IRQ is the PIO flag raised each period.
	IRQ = 0
	// Overhead is the cycles per period spent outside the delay loop.
	Overhead = 5
)

// DelayCount returns the word to push for ticks at f on a state machine
// clocked at clockHz, rounded to the nearest cycle.
func DelayCount(f physic.Frequency, clockHz uint32) (uint32, error) {
	if f <= 0 {
		return 0, fmt.Errorf("pio tick at %s: %w", f, core.ErrInvalidTiming)
	}
	cycles := (uint64(clockHz)*uint64(physic.Hertz) + uint64(f)/2) / uint64(f)
	if cycles < Overhead {
		return 0, fmt.Errorf("pio tick at %s: faster than %d cycles: %w", f, Overhead, core.ErrInvalidTiming)
	}
	if cycles-Overhead > math.MaxUint32 {
		return 0, fmt.Errorf("pio tick at %s: period too long: %w", f, core.ErrInvalidTiming)
	}
	return uint32(cycles - Overhead), nil
}

// Rate is the tick frequency a pushed count produces.
func Rate(count, clockHz uint32) physic.Frequency {
	return physic.Frequency(uint64(clockHz) * uint64(physic.Hertz) / (uint64(count) + Overhead))
}
