package core

// Pins are the DRV8825 control lines. Any of them may be nil when not wired.
type Pins struct {
	Step   OutputPin
	Dir    OutputPin
	Reset  OutputPin // nRESET, active low
	Sleep  OutputPin // nSLEEP, active low
	Enable OutputPin // nENBL, active low
	// Mode holds M0, M1, M2.
	Mode [3]OutputPin
	// Fault is nFAULT, active low. Read only on request.
	Fault InputPin
}

// Direction of rotation for a run. The zero value leaves the direction
// line as it is.
type Direction int8

const (
	DirectionUnchanged Direction = 0
	Clockwise          Direction = 1
	CounterClockwise   Direction = -1
)

func (d Direction) String() string {
	switch d {
	case DirectionUnchanged:
		return "unchanged"
	case Clockwise:
		return "cw"
	case CounterClockwise:
		return "ccw"
	}
	return "Direction(?)"
}

func (d Direction) valid() bool {
	return d == DirectionUnchanged || d == Clockwise || d == CounterClockwise
}

// Reverse flips cw and ccw.
func (d Direction) Reverse() Direction { return -d }

// ParseDirection accepts "cw"/"clockwise" and "ccw"/"counterclockwise".
func ParseDirection(s string) (Direction, error) {
	switch s {
	case "cw", "CW", "clockwise":
		return Clockwise, nil
	case "ccw", "CCW", "counterclockwise", "anticlockwise":
		return CounterClockwise, nil
	case "":
		return DirectionUnchanged, nil
	}
	return DirectionUnchanged, configErr("parse direction", ErrInvalidDirection, s)
}

// activeLow maps a logical assertion to the level of an active-low line.
func activeLow(asserted bool) bool { return !asserted }

func directionFromLevel(high bool) Direction {
	if high {
		return Clockwise
	}
	return CounterClockwise
}

// Enable turns the output stage on (true) or off (false). nENBL is driven
// LOW to enable.
func (d *Driver) Enable(on bool) error {
	return d.setLine("enable", d.pins.Enable, activeLow(on))
}

// Sleep puts the chip into low-power sleep (true) or wakes it (false).
// nSLEEP is driven LOW to sleep.
func (d *Driver) Sleep(on bool) error {
	return d.setLine("sleep", d.pins.Sleep, activeLow(on))
}

// Reset holds the chip in reset (true) or releases it (false). nRESET is
// driven LOW to reset.
func (d *Driver) Reset(on bool) error {
	return d.setLine("reset", d.pins.Reset, activeLow(on))
}

func (d *Driver) setLine(op string, p OutputPin, level bool) error {
	if p == nil {
		return configErr(op, ErrPinMissing, op)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	p.Set(level)
	return nil
}

// SetDirection drives DIR HIGH for clockwise and LOW for counterclockwise.
func (d *Driver) SetDirection(dir Direction) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.setDirection("set direction", dir)
}

// setDirection requires d.mu.
func (d *Driver) setDirection(op string, dir Direction) error {
	if dir != Clockwise && dir != CounterClockwise {
		return configErr(op, ErrInvalidDirection, dir.String())
	}
	if d.pins.Dir == nil {
		return configErr(op, ErrPinMissing, "dir")
	}
	d.pins.Dir.Set(dir == Clockwise)
	d.dir = dir
	return nil
}

// Direction returns the direction last applied, or DirectionUnchanged if
// none has been and there is no DIR line to read back.
func (d *Driver) Direction() Direction {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dir
}

// Fault reports whether the chip signals a fault on nFAULT.
func (d *Driver) Fault() (bool, error) {
	if d.pins.Fault == nil {
		return false, configErr("fault", ErrPinMissing, "fault")
	}
	return !d.pins.Fault.Get(), nil
}

// PinNames names each control line for a GPIO backend. Empty names are
// left unwired.
type PinNames struct {
	Step   string    `yaml:"step"`
	Dir    string    `yaml:"dir"`
	Reset  string    `yaml:"reset"`
	Sleep  string    `yaml:"sleep"`
	Enable string    `yaml:"enable"`
	Mode   [3]string `yaml:"mode,flow"`
	Fault  string    `yaml:"fault"`
}
