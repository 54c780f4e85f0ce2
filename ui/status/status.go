// Package status lays out run information for a 128x32 monochrome panel:
// four text rows of 8 pixels, each with a title, two fixed-width cells and
// an optional warning triangle at the right edge.
package status

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"drv8825/core"
)

// Panel geometry in pixels.
const (
	Width     = 128
	Height    = 32
	RowHeight = 8
	Rows      = Height / RowHeight

	MaxTitle = 3

	warnWidth   = 8
	warnPadding = 2
)

var (
	ErrRow   = errors.New("row out of range")
	ErrTitle = errors.New("title longer than 3 characters")
)

// Cell is a right-aligned value with a unit suffix, padded to Size
// characters. A value that does not fit is shown as '#' marks rather than
// truncated.
type Cell struct {
	Value string
	Unit  string
	Size  int
}

// DefaultCellSize fits four digits.
const DefaultCellSize = 4

// IntCell formats n with the default size.
func IntCell(n int, unit string) Cell {
	return Cell{Value: strconv.Itoa(n), Unit: unit, Size: DefaultCellSize}
}

func (c Cell) String() string {
	size := c.Size
	if size <= 0 {
		size = DefaultCellSize
	}
	room := size - len(c.Unit)
	switch {
	case len(c.Value) > room:
		if room < 1 {
			room = 1
		}
		return strings.Repeat("#", room) + c.Unit
	case len(c.Value) < room:
		return strings.Repeat(" ", room-len(c.Value)) + c.Value + c.Unit
	}
	return c.Value + c.Unit
}

// Row is one text line of the panel.
type Row struct {
	Title string
	Cells [2]Cell
	Warn  bool
}

// NewRow checks the title fits the layout.
func NewRow(title string, a, b Cell) (Row, error) {
	if len(title) > MaxTitle {
		return Row{}, fmt.Errorf("%w: %q", ErrTitle, title)
	}
	return Row{Title: title, Cells: [2]Cell{a, b}}, nil
}

func (r Row) String() string {
	return r.Title + ": " + r.Cells[0].String() + " " + r.Cells[1].String()
}

// Point is a pixel position, origin top left.
type Point struct{ X, Y int16 }

// Segment is a straight line between two points.
type Segment struct{ A, B Point }

// Baseline is the y coordinate of the bottom of row n.
func Baseline(n int) (int16, error) {
	if n < 0 || n >= Rows {
		return 0, fmt.Errorf("%w: %d", ErrRow, n)
	}
	return int16((n+1)*RowHeight - 1), nil
}

// WarnTriangle returns the outline and exclamation mark of the warning
// sign for row n, flush with the right edge.
func WarnTriangle(n int) ([]Segment, error) {
	bottom, err := Baseline(n)
	if err != nil {
		return nil, err
	}
	right := int16(Width - warnPadding - 1)
	left := right - warnWidth
	mid := right - warnWidth/2
	top := bottom - RowHeight + 1

	return []Segment{
		{Point{mid, top}, Point{right, bottom}},
		{Point{right, bottom}, Point{left, bottom}},
		{Point{left, bottom}, Point{mid, top}},
		// bang
		{Point{mid, bottom - RowHeight*6/10}, Point{mid, bottom - RowHeight*3/10}},
	}, nil
}

// Rect is a filled box.
type Rect struct{ X, Y, W, H int16 }

// ProgressBar returns the outline and fill for a bar across row n. frac is
// clamped to [0, 1]; a negative frac (unknown target) gives an empty fill.
func ProgressBar(n int, frac float64) (outline, fill Rect, err error) {
	bottom, err := Baseline(n)
	if err != nil {
		return Rect{}, Rect{}, err
	}
	outline = Rect{X: 0, Y: bottom - RowHeight + 2, W: Width - warnWidth - 2*warnPadding, H: RowHeight - 2}
	if frac < 0 {
		frac = 0
	}
	if frac > 1 {
		frac = 1
	}
	inner := outline.W - 2
	fill = Rect{X: 1, Y: outline.Y + 1, W: int16(frac * float64(inner)), H: outline.H - 2}
	return outline, fill, nil
}

// Snapshot is what the panel shows about one run.
type Snapshot struct {
	Mode      core.Mode
	Target    int
	Pulses    int
	Elapsed   time.Duration
	Running   bool
	Cancelled bool
	Fault     bool
}

// FromResult reads r at this instant.
func FromResult[T any](mode core.Mode, r *core.RunResult[T], fault bool) Snapshot {
	return Snapshot{
		Mode:      mode,
		Target:    r.Target(),
		Pulses:    r.PulsesDone(),
		Elapsed:   r.Elapsed(),
		Running:   r.State() == core.StateRunning,
		Cancelled: r.Cancelled(),
		Fault:     fault,
	}
}

// Progress is the completed fraction, or -1 for a run without a target.
func (s Snapshot) Progress() float64 {
	if s.Target < 0 {
		return -1
	}
	if s.Target == 0 {
		return 1
	}
	return float64(s.Pulses) / float64(s.Target)
}

// Rows lays out the snapshot: mode, steps and elapsed time. The warning
// sign goes on the steps row when the run was cancelled or the chip
// reports a fault.
func (s Snapshot) Rows() []Row {
	target := ""
	if s.Target >= 0 {
		target = strconv.Itoa(s.Target / core.PulsesPerStep)
	}
	state := "idle"
	if s.Running {
		state = "run"
	}
	return []Row{
		{Title: "MOD", Cells: [2]Cell{{Value: s.Mode.Name(), Size: DefaultCellSize}, {Value: state, Size: DefaultCellSize}}},
		{
			Title: "STP",
			Cells: [2]Cell{IntCell(s.Pulses/core.PulsesPerStep, ""), {Value: target, Size: DefaultCellSize}},
			Warn:  s.Cancelled || s.Fault,
		},
		{Title: "T", Cells: [2]Cell{IntCell(int(s.Elapsed/time.Millisecond), "ms"), {}}},
	}
}
