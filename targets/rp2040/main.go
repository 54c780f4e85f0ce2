//go:build rp2040

// Firmware for a Pico wired to a DRV8825 and a 128x32 SSD1306. Each press
// of the button starts one revolution, alternating direction; the panel
// shows mode, progress and a warning sign on fault or cancel. A long
// press cancels the running turn. Pulses are paced by a PIO state
// machine.
package main

import (
	"machine"
	"time"

	"drv8825/core"
	"drv8825/ui/status"
)

// Wiring.
const (
	pinStep   = machine.GP10
	pinDir    = machine.GP11
	pinEnable = machine.GP12
	pinSleep  = machine.GP13
	pinReset  = machine.GP14
	pinM0     = machine.GP6
	pinM1     = machine.GP7
	pinM2     = machine.GP8
	pinFault  = machine.GP9
	pinButton = machine.GP15
	pinSDA    = machine.GP20
	pinSCL    = machine.GP21
)

const (
	refresh   = 100 * time.Millisecond
	longPress = time.Second
)

func main() {
	// Clear any watchdog state left from before the reset.
	machine.Watchdog.Configure(machine.WatchdogConfig{TimeoutMillis: 0})

	cfg := core.Defaults()
	cfg.Pins = core.Pins{
		Step:   newOut(pinStep),
		Dir:    newOut(pinDir),
		Enable: newOut(pinEnable),
		Sleep:  newOut(pinSleep),
		Reset:  newOut(pinReset),
		Mode:   [3]core.OutputPin{newOut(pinM0), newOut(pinM1), newOut(pinM2)},
		Fault:  newIn(pinFault),
	}
	cfg.Mode = core.ModeEighth
	cfg.RevolutionTimeMS = 2000
	cfg.Clock = hwClock{}

	timer, err := newPIOTimer(0)
	if err != nil {
		fail(err)
	}
	cfg.Timer = timer

	d, err := core.New(cfg)
	if err != nil {
		fail(err)
	}

	scr, err := newPanel(machine.I2C0, pinSDA, pinSCL)
	if err != nil {
		fail(err)
	}

	button := newIn(pinButton)
	dir := core.Clockwise
	var res *core.RunResult[int]
	var pressedAt time.Time

	for {
		pressed := !button.Get()
		switch {
		case pressed && pressedAt.IsZero():
			pressedAt = time.Now()
		case pressed && time.Since(pressedAt) > longPress:
			d.Cancel()
		case !pressed && !pressedAt.IsZero():
			if time.Since(pressedAt) <= longPress && !d.Active() {
				req, err := core.NewRunRequest(core.Revolutions(1), dir, stepsDone)
				if err == nil {
					if r, err := core.StartRun(d, req); err == nil {
						res = r
						dir = dir.Reverse()
					}
				}
			}
			pressedAt = time.Time{}
		}

		if res != nil {
			fault, _ := d.Fault()
			scr.show(status.FromResult(d.Mode(), res, fault))
		}
		time.Sleep(refresh)
	}
}

func stepsDone(r *core.RunResult[int]) int { return r.StepsDone() }

// fail blinks the on-board LED forever.
func fail(err error) {
	println("drv8825:", err.Error())
	led := newOut(machine.LED)
	for {
		led.Toggle()
		time.Sleep(200 * time.Millisecond)
	}
}
