// Package gpio maps pin names from the config file onto real or simulated
// lines and returns them as core.Pins.
package gpio

import (
	"fmt"
	"io"
	"strings"

	"drv8825/core"
	"drv8825/host/sim"
)

// Backend names accepted by Open.
const (
	BackendSim    = "sim"
	BackendPeriph = "periph"
	BackendRPIO   = "rpio"
)

// Backends lists the supported backends.
func Backends() []string {
	return []string{BackendSim, BackendPeriph, BackendRPIO}
}

type opener interface {
	output(name string) (core.OutputPin, error)
	input(name string) (core.InputPin, error)
	io.Closer
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Open initialises backend and opens every named line. The returned closer
// releases the backend; for sim it does nothing. bank may be nil for the
// hardware backends and is created on demand for sim.
func Open(backend string, names core.PinNames, bank *sim.Bank) (core.Pins, io.Closer, error) {
	var o opener
	switch strings.ToLower(backend) {
	case BackendSim, "":
		if bank == nil {
			bank = sim.NewBank()
		}
		return bank.Pins(names), nopCloser{}, nil
	case BackendPeriph:
		p, err := openPeriph()
		if err != nil {
			return core.Pins{}, nil, err
		}
		o = p
	case BackendRPIO:
		r, err := openRPIO()
		if err != nil {
			return core.Pins{}, nil, err
		}
		o = r
	default:
		return core.Pins{}, nil, fmt.Errorf("unknown gpio backend %q (want one of %s)", backend, strings.Join(Backends(), ", "))
	}

	pins, err := build(o, names)
	if err != nil {
		o.Close()
		return core.Pins{}, nil, err
	}
	return pins, o, nil
}

func build(o opener, names core.PinNames) (core.Pins, error) {
	var pins core.Pins
	var err error
	out := func(dst *core.OutputPin, name string) {
		if err != nil || name == "" {
			return
		}
		*dst, err = o.output(name)
	}

	out(&pins.Step, names.Step)
	out(&pins.Dir, names.Dir)
	out(&pins.Reset, names.Reset)
	out(&pins.Sleep, names.Sleep)
	out(&pins.Enable, names.Enable)
	for i := range names.Mode {
		out(&pins.Mode[i], names.Mode[i])
	}
	if err == nil && names.Fault != "" {
		pins.Fault, err = o.input(names.Fault)
	}
	return pins, err
}
