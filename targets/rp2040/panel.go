//go:build rp2040

package main

import (
	"image/color"
	"machine"

	"tinygo.org/x/drivers/ssd1306"
	"tinygo.org/x/tinydraw"
	"tinygo.org/x/tinyfont"

	"drv8825/ui/status"
)

var white = color.RGBA{R: 255, G: 255, B: 255, A: 255}

// panel draws status rows on a 128x32 SSD1306.
type panel struct {
	dev *ssd1306.Device
}

func newPanel(bus *machine.I2C, sda, scl machine.Pin) (*panel, error) {
	if err := bus.Configure(machine.I2CConfig{
		Frequency: 400 * machine.KHz,
		SDA:       sda,
		SCL:       scl,
	}); err != nil {
		return nil, err
	}
	dev := ssd1306.NewI2C(bus)
	dev.Configure(ssd1306.Config{
		Address: 0x3C,
		Width:   status.Width,
		Height:  status.Height,
	})
	dev.ClearDisplay()
	return &panel{dev: dev}, nil
}

// show renders the first three rows as text and a progress bar on the
// last one.
func (p *panel) show(s status.Snapshot) error {
	p.dev.ClearBuffer()
	rows := s.Rows()
	for i, r := range rows {
		if i >= status.Rows-1 {
			break
		}
		y, _ := status.Baseline(i)
		tinyfont.WriteLine(p.dev, &tinyfont.TomThumb, 0, y, r.String(), white)
		if r.Warn {
			p.warn(i)
		}
	}
	if prog := s.Progress(); prog >= 0 {
		outline, fill, _ := status.ProgressBar(status.Rows-1, prog)
		tinydraw.Rectangle(p.dev, outline.X, outline.Y, outline.W, outline.H, white)
		if fill.W > 0 {
			tinydraw.FilledRectangle(p.dev, fill.X, fill.Y, fill.W, fill.H, white)
		}
	}
	return p.dev.Display()
}

func (p *panel) warn(row int) {
	segs, err := status.WarnTriangle(row)
	if err != nil {
		return
	}
	for _, s := range segs {
		tinydraw.Line(p.dev, s.A.X, s.A.Y, s.B.X, s.B.Y, white)
	}
}
