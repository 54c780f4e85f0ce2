package core

// OutputPin is the abstract digital output the driver writes to.
// Platform code supplies implementations (machine.Pin on the MCU, periph or
// rpio on a Linux host, sim pins in tests).
type OutputPin interface {
	// Set drives the line high (true) or low (false)
	Set(high bool)

	// Get returns the level last driven
	Get() bool

	// Toggle inverts the line. Called once per pulse, possibly from a
	// timer callback, so it must be fast and must not block.
	Toggle()
}

// InputPin is a digital input, used for the nFAULT line.
type InputPin interface {
	Get() bool
}

// ToggleOutput provides Toggle for pins that only have Set and Get.
type ToggleOutput struct {
	Pin interface {
		Set(high bool)
		Get() bool
	}
}

func (p ToggleOutput) Set(high bool) { p.Pin.Set(high) }
func (p ToggleOutput) Get() bool     { return p.Pin.Get() }
func (p ToggleOutput) Toggle()       { p.Pin.Set(!p.Pin.Get()) }
