package core

import (
	"strconv"
	"strings"
)

// Mode is a DRV8825 microstep resolution, selected through the M0/M1/M2
// lines.
type Mode uint8

const (
	ModeFull Mode = iota
	ModeHalf
	ModeQuarter
	ModeEighth
	ModeSixteenth
	ModeThirtySecond
)

type modeInfo struct {
	name       string
	microsteps uint8
	sel        [3]bool // M0, M1, M2 (true = HIGH)
}

// DRV8825 datasheet table 3.
var modeTable = [...]modeInfo{
	ModeFull:         {"FULL", 1, [3]bool{false, false, false}},
	ModeHalf:         {"HALF", 2, [3]bool{true, false, false}},
	ModeQuarter:      {"1/4", 4, [3]bool{false, true, false}},
	ModeEighth:       {"1/8", 8, [3]bool{true, true, false}},
	ModeSixteenth:    {"1/16", 16, [3]bool{false, false, true}},
	ModeThirtySecond: {"1/32", 32, [3]bool{true, false, true}},
}

// Modes lists every supported mode from coarse to fine.
func Modes() []Mode {
	return []Mode{ModeFull, ModeHalf, ModeQuarter, ModeEighth, ModeSixteenth, ModeThirtySecond}
}

// Valid reports whether m is one of the six table entries.
func (m Mode) Valid() bool { return int(m) < len(modeTable) }

func (m Mode) String() string {
	if !m.Valid() {
		return "Mode(" + strconv.Itoa(int(m)) + ")"
	}
	return modeTable[m].name
}

// Name is the display label, e.g. "1/16".
func (m Mode) Name() string { return m.String() }

// Microsteps returns the number of microsteps per full step, 0 for an
// invalid mode.
func (m Mode) Microsteps() uint8 {
	if !m.Valid() {
		return 0
	}
	return modeTable[m].microsteps
}

// Select returns the M0, M1, M2 levels for the mode.
func (m Mode) Select() [3]bool {
	if !m.Valid() {
		return [3]bool{}
	}
	return modeTable[m].sel
}

// ParseMode accepts a display name ("full", "half", "quarter", "1/8", ...)
// or a bare microstep count ("16").
func ParseMode(s string) (Mode, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	switch key {
	case "full":
		return ModeFull, nil
	case "half":
		return ModeHalf, nil
	case "quarter":
		return ModeQuarter, nil
	}
	for _, m := range Modes() {
		if strings.EqualFold(key, modeTable[m].name) {
			return m, nil
		}
	}
	if n, err := strconv.Atoi(key); err == nil {
		if m, ok := ModeForMicrosteps(n); ok {
			return m, nil
		}
	}
	return 0, configErr("parse mode", ErrUnknownMode, strconv.Quote(s))
}

// ModeForMicrosteps maps 1, 2, 4, 8, 16 or 32 to its Mode.
func ModeForMicrosteps(n int) (Mode, bool) {
	for _, m := range Modes() {
		if int(modeTable[m].microsteps) == n {
			return m, true
		}
	}
	return 0, false
}

// MarshalText lets modes round-trip through config files.
func (m Mode) MarshalText() ([]byte, error) {
	if !m.Valid() {
		return nil, configErr("marshal mode", ErrUnknownMode, m.String())
	}
	return []byte(m.String()), nil
}

func (m *Mode) UnmarshalText(b []byte) error {
	v, err := ParseMode(string(b))
	if err != nil {
		return err
	}
	*m = v
	return nil
}
