package status

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"drv8825/core"
)

func TestCell(t *testing.T) {
	tests := []struct {
		cell Cell
		want string
	}{
		{Cell{Value: "42", Size: 4}, "  42"},
		{Cell{Value: "42", Unit: "%", Size: 4}, " 42%"},
		{Cell{Value: "1234", Size: 4}, "1234"},
		{Cell{Value: "12345", Size: 4}, "####"},
		{Cell{Value: "123", Unit: "ms", Size: 4}, "##ms"},
		{Cell{Value: "7"}, "   7"},
		{Cell{}, "    "},
		{Cell{Value: "9", Unit: "rpm", Size: 2}, "#rpm"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.cell.String(), "%+v", tt.cell)
	}
	assert.Equal(t, "  12", IntCell(12, "").String())
}

func TestRow(t *testing.T) {
	r, err := NewRow("CPU", IntCell(37, "%"), IntCell(55, "C"))
	require.NoError(t, err)
	assert.Equal(t, "CPU:  37%  55C", r.String())

	_, err = NewRow("TEMP", Cell{}, Cell{})
	assert.ErrorIs(t, err, ErrTitle)
}

func TestWarnTriangle(t *testing.T) {
	segs, err := WarnTriangle(1)
	require.NoError(t, err)
	require.Len(t, segs, 4)

	// apex at the top of row 1, base on its baseline
	assert.Equal(t, Point{121, 8}, segs[0].A)
	assert.Equal(t, Point{125, 15}, segs[0].B)
	assert.Equal(t, Point{117, 15}, segs[1].B)
	for _, s := range segs {
		for _, p := range []Point{s.A, s.B} {
			assert.True(t, p.X >= 0 && p.X < Width && p.Y >= 8 && p.Y < 16, "%v outside row", p)
		}
	}

	_, err = WarnTriangle(Rows)
	assert.ErrorIs(t, err, ErrRow)
}

func TestProgressBar(t *testing.T) {
	outline, fill, err := ProgressBar(3, 0.5)
	require.NoError(t, err)
	assert.Equal(t, int16(25), outline.Y)
	assert.Less(t, outline.X+outline.W, int16(Width-warnWidth))
	assert.Equal(t, (outline.W-2)/2, fill.W)

	_, fill, _ = ProgressBar(0, 3)
	assert.Equal(t, outline.W-2, fill.W)
	_, fill, _ = ProgressBar(0, -1)
	assert.Zero(t, fill.W)
}

func TestFromResult(t *testing.T) {
	sched := core.NewScheduler()
	cfg := core.Defaults()
	step := &togglePin{}
	cfg.Pins.Step = step
	cfg.Mode = core.ModeHalf
	cfg.Timer = sched.NewTimer()
	cfg.Clock = sched
	d, err := core.New(cfg)
	require.NoError(t, err)

	res, err := core.RunNonBlocking[int](d, 40, core.DirectionUnchanged, nil)
	require.NoError(t, err)
	sched.Advance(20 * d.PulseDelay())

	s := FromResult(d.Mode(), res, false)
	assert.Equal(t, 20, s.Pulses)
	assert.True(t, s.Running)
	assert.InDelta(t, 0.5, s.Progress(), 1e-9)

	rows := s.Rows()
	require.Len(t, rows, 3)
	assert.Equal(t, "MOD: HALF  run", rows[0].String())
	assert.Equal(t, "STP:   10   20", rows[1].String())
	assert.False(t, rows[1].Warn)

	d.Cancel()
	s = FromResult(d.Mode(), res, false)
	assert.False(t, s.Running)
	assert.True(t, s.Rows()[1].Warn)

	assert.True(t, Snapshot{Fault: true, Target: -1}.Rows()[1].Warn)
	assert.Equal(t, -1.0, Snapshot{Target: -1}.Progress())
	assert.Equal(t, "T: ##ms     ", Snapshot{Elapsed: 5 * time.Second}.Rows()[2].String())
}

type togglePin struct{ high bool }

func (p *togglePin) Set(h bool) { p.high = h }
func (p *togglePin) Get() bool  { return p.high }
func (p *togglePin) Toggle()    { p.high = !p.high }
