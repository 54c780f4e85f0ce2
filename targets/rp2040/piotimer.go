//go:build rp2040

package main

import (
	"device/rp"
	"fmt"
	"machine"
	"runtime"
	"runtime/interrupt"
	"runtime/volatile"
	"sync"

	rp2pio "github.com/tinygo-org/pio/rp2-pio"
	"periph.io/x/conn/v3/physic"

	"drv8825/core"
	"drv8825/targets/rp2040/piotick"
)

// IRQ0_INTE enables PIO flags 0-3 for SM0-SM3 from bit 8.
const inteFlagPos = 8

// tickPending is set by the PIO interrupt and cleared by the dispatcher.
var tickPending volatile.Register32

// pioTimer is core.PeriodicTimer on a PIO0 state machine. The state
// machine sets an IRQ flag once per period; the interrupt only marks the
// tick and a goroutine calls fn, so fn may take locks. Ticks that land
// while fn is still running are merged into one.
type pioTimer struct {
	sm     rp2pio.StateMachine
	offset uint8

	mu    sync.Mutex
	armed bool
	// gen retires the dispatcher of the previous arm.
	gen volatile.Register32
}

// newPIOTimer claims state machine smNum of PIO0 and loads the tick
// program. Only one pioTimer can exist: it owns PIO0's IRQ line 0.
func newPIOTimer(smNum uint8) (*pioTimer, error) {
	sm := rp2pio.PIO0.StateMachine(smNum)
	sm.TryClaim()

	offset, err := rp2pio.PIO0.AddProgram(piotick.Program, piotick.Origin)
	if err != nil {
		return nil, fmt.Errorf("load tick program: %w", err)
	}

	irq := interrupt.New(rp.IRQ_PIO0_IRQ_0, func(interrupt.Interrupt) {
		rp.PIO0.IRQ.Set(1 << piotick.IRQ)
		tickPending.Set(1)
	})
	irq.Enable()
	return &pioTimer{sm: sm, offset: offset}, nil
}

func (t *pioTimer) Arm(f physic.Frequency, fn func()) error {
	count, err := piotick.DelayCount(f, uint32(machine.CPUFrequency()))
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.armed {
		return fmt.Errorf("pio timer: %w", core.ErrTimerArmed)
	}
	t.armed = true
	gen := t.gen.Get() + 1
	t.gen.Set(gen)

	cfg := rp2pio.DefaultStateMachineConfig()
	cfg.SetWrap(t.offset+piotick.WrapTop, t.offset+piotick.WrapBottom)
	cfg.SetClkDivIntFrac(1, 0)
	t.sm.Init(t.offset, cfg)
	t.sm.TxPut(count)

	tickPending.Set(0)
	rp.PIO0.IRQ.Set(1 << piotick.IRQ)
	rp.PIO0.IRQ0_INTE.SetBits(1 << (inteFlagPos + piotick.IRQ))
	go t.dispatch(gen, fn)
	t.sm.SetEnabled(true)
	return nil
}

func (t *pioTimer) Disarm() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.armed {
		return
	}
	t.armed = false
	t.gen.Set(t.gen.Get() + 1)

	t.sm.SetEnabled(false)
	rp.PIO0.IRQ0_INTE.ClearBits(1 << (inteFlagPos + piotick.IRQ))
	rp.PIO0.IRQ.Set(1 << piotick.IRQ)
	t.sm.ClearFIFOs()
	tickPending.Set(0)
}

// dispatch calls fn once per marked tick until the timer is disarmed or
// re-armed.
func (t *pioTimer) dispatch(gen uint32, fn func()) {
	for t.gen.Get() == gen {
		if tickPending.Get() != 0 {
			tickPending.Set(0)
			fn()
			continue
		}
		runtime.Gosched()
	}
}
