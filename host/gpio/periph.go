package gpio

import (
	"fmt"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"

	"drv8825/core"
)

type periphBackend struct{}

func openPeriph() (*periphBackend, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("periph host init: %w", err)
	}
	return &periphBackend{}, nil
}

func (*periphBackend) Close() error { return nil }

func (*periphBackend) lookup(name string) (gpio.PinIO, error) {
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, fmt.Errorf("periph: no gpio named %q", name)
	}
	return p, nil
}

func (b *periphBackend) output(name string) (core.OutputPin, error) {
	p, err := b.lookup(name)
	if err != nil {
		return nil, err
	}
	if err := p.Out(gpio.Low); err != nil {
		return nil, fmt.Errorf("periph: %s as output: %w", name, err)
	}
	return &periphOut{pin: p}, nil
}

func (b *periphBackend) input(name string) (core.InputPin, error) {
	p, err := b.lookup(name)
	if err != nil {
		return nil, err
	}
	// nFAULT is open drain.
	if err := p.In(gpio.PullUp, gpio.NoEdge); err != nil {
		return nil, fmt.Errorf("periph: %s as input: %w", name, err)
	}
	return periphIn{pin: p}, nil
}

// periphOut caches the driven level so Toggle does not read the line back.
// Write errors are dropped: a line that configured as output does not fail
// later on sysfs or memory-mapped drivers.
type periphOut struct {
	pin   gpio.PinIO
	level gpio.Level
}

func (p *periphOut) Set(high bool) {
	p.level = gpio.Level(high)
	_ = p.pin.Out(p.level)
}

func (p *periphOut) Get() bool { return bool(p.level) }

func (p *periphOut) Toggle() { p.Set(!bool(p.level)) }

type periphIn struct{ pin gpio.PinIO }

func (p periphIn) Get() bool { return p.pin.Read() == gpio.High }
