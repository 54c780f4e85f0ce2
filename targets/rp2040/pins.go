//go:build rp2040

package main

import "machine"

// outPin is core.OutputPin on a GPIO. The level is cached so Toggle is a
// single register write.
type outPin struct {
	pin  machine.Pin
	high bool
}

func newOut(p machine.Pin) *outPin {
	p.Configure(machine.PinConfig{Mode: machine.PinOutput})
	p.Low()
	return &outPin{pin: p}
}

func (o *outPin) Set(high bool) {
	o.high = high
	o.pin.Set(high)
}

func (o *outPin) Get() bool { return o.high }

func (o *outPin) Toggle() { o.Set(!o.high) }

// inPin is core.InputPin with the internal pull-up enabled.
type inPin struct{ pin machine.Pin }

func newIn(p machine.Pin) inPin {
	p.Configure(machine.PinConfig{Mode: machine.PinInputPullup})
	return inPin{pin: p}
}

func (i inPin) Get() bool { return i.pin.Get() }
