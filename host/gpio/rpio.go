package gpio

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/stianeikeland/go-rpio/v4"

	"drv8825/core"
)

// rpioBackend drives the Raspberry Pi GPIO block through /dev/gpiomem.
// Pins are BCM numbers, written "17" or "GPIO17".
type rpioBackend struct{}

func openRPIO() (*rpioBackend, error) {
	if err := rpio.Open(); err != nil {
		return nil, fmt.Errorf("rpio open: %w", err)
	}
	return &rpioBackend{}, nil
}

func (*rpioBackend) Close() error { return rpio.Close() }

func parseBCM(name string) (rpio.Pin, error) {
	s := strings.TrimPrefix(strings.ToUpper(strings.TrimSpace(name)), "GPIO")
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 || n > 53 {
		return 0, fmt.Errorf("rpio: bad BCM pin %q", name)
	}
	return rpio.Pin(n), nil
}

func (*rpioBackend) output(name string) (core.OutputPin, error) {
	p, err := parseBCM(name)
	if err != nil {
		return nil, err
	}
	p.Output()
	p.Low()
	return &rpioOut{pin: p}, nil
}

func (*rpioBackend) input(name string) (core.InputPin, error) {
	p, err := parseBCM(name)
	if err != nil {
		return nil, err
	}
	p.Input()
	p.PullUp()
	return rpioIn{pin: p}, nil
}

type rpioOut struct {
	pin  rpio.Pin
	high bool
}

func (p *rpioOut) Set(high bool) {
	p.high = high
	if high {
		p.pin.High()
	} else {
		p.pin.Low()
	}
}

func (p *rpioOut) Get() bool { return p.high }

func (p *rpioOut) Toggle() { p.Set(!p.high) }

type rpioIn struct{ pin rpio.Pin }

func (p rpioIn) Get() bool { return p.pin.Read() == rpio.High }
