// Package serial opens the line the console is served on.
package serial

import (
	"io"
	"os"
)

// Port is a byte stream the console can be served on.
type Port interface {
	io.ReadWriteCloser
}

// Config holds serial port settings.
type Config struct {
	// Device path, e.g. "/dev/ttyACM0". "-" means stdin/stdout.
	Device string

	Baud int

	// ReadTimeout in milliseconds, 0 blocks.
	ReadTimeout int
}

// DefaultConfig returns 115200 baud with blocking reads.
func DefaultConfig(device string) *Config {
	return &Config{
		Device: device,
		Baud:   115200,
	}
}

// Stdio is a Port over the process's standard streams. Close does not
// close them.
type Stdio struct {
	io.Reader
	io.Writer
}

func NewStdio() *Stdio {
	return &Stdio{Reader: os.Stdin, Writer: os.Stdout}
}

func (*Stdio) Close() error { return nil }
