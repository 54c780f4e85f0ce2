// Package config loads the YAML file describing one driver board.
package config

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"drv8825/core"
	"drv8825/host/gpio"
)

// Tunings holds the per-strategy delay corrections. A nil entry takes the
// default for that strategy.
type Tunings struct {
	Blocking *core.Tuning `yaml:"blocking,omitempty"`
	Timer    *core.Tuning `yaml:"timer,omitempty"`
	Async    *core.Tuning `yaml:"async,omitempty"`
}

// Console configures the serial line console.
type Console struct {
	Port string `yaml:"port,omitempty"`
	Baud int    `yaml:"baud,omitempty"`
}

// File is the on-disk configuration.
type File struct {
	GPIO string        `yaml:"gpio"`
	Pins core.PinNames `yaml:"pins"`

	Mode                   core.Mode `yaml:"mode"`
	FullStepsPerRevolution int       `yaml:"full_steps_per_revolution"`
	RevolutionTimeMS       int       `yaml:"revolution_time_ms"`

	Tuning          Tunings       `yaml:"tuning"`
	AsyncResolution time.Duration `yaml:"async_resolution"`
	SkipInit        bool          `yaml:"skip_init"`

	LogLevel string  `yaml:"log_level"`
	Console  Console `yaml:"console"`
}

// Defaults returns the configuration used when no file is given: a
// simulated board at full step, one turn per second.
func Defaults() *File {
	f := &File{}
	applyDefaults(f)
	return f
}

// Load reads and parses path.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	f, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// Parse decodes YAML, fills in defaults and validates the result.
func Parse(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	applyDefaults(&f)
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// applyDefaults fills in missing values
func applyDefaults(f *File) {
	if f.GPIO == "" {
		f.GPIO = gpio.BackendSim
	}
	if f.GPIO == gpio.BackendSim && f.Pins == (core.PinNames{}) {
		f.Pins = defaultSimPins
	}
	if f.FullStepsPerRevolution == 0 {
		f.FullStepsPerRevolution = core.DefaultFullStepsPerRevolution
	}
	if f.RevolutionTimeMS == 0 {
		f.RevolutionTimeMS = core.DefaultRevolutionTimeMS
	}
	if f.Tuning.Blocking == nil {
		t := core.DefaultBlockingTuning
		f.Tuning.Blocking = &t
	}
	if f.Tuning.Timer == nil {
		f.Tuning.Timer = &core.Tuning{}
	}
	if f.Tuning.Async == nil {
		f.Tuning.Async = &core.Tuning{}
	}
	if f.AsyncResolution == 0 {
		f.AsyncResolution = time.Microsecond
	}
	if f.LogLevel == "" {
		f.LogLevel = "info"
	}
	if f.Console.Baud == 0 {
		f.Console.Baud = 115200
	}
}

var defaultSimPins = core.PinNames{
	Step:   "step",
	Dir:    "dir",
	Reset:  "reset",
	Sleep:  "sleep",
	Enable: "enable",
	Mode:   [3]string{"m0", "m1", "m2"},
	Fault:  "fault",
}

// Validate checks the values that would otherwise only fail when the
// driver is built.
func (f *File) Validate() error {
	known := false
	for _, b := range gpio.Backends() {
		if f.GPIO == b {
			known = true
		}
	}
	if !known {
		return fmt.Errorf("config: unknown gpio backend %q", f.GPIO)
	}
	if !f.Mode.Valid() {
		return fmt.Errorf("config: %w", core.ErrUnknownMode)
	}
	if _, err := core.ComputeTiming(f.Mode.Microsteps(), f.FullStepsPerRevolution, f.RevolutionTimeMS); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	for name, t := range map[string]*core.Tuning{
		"blocking": f.Tuning.Blocking,
		"timer":    f.Tuning.Timer,
		"async":    f.Tuning.Async,
	} {
		if t != nil && (t.Offset < 0 || t.PerMicrostep < 0) {
			return fmt.Errorf("config: %s tuning must not be negative", name)
		}
	}
	if f.AsyncResolution < 0 {
		return fmt.Errorf("config: negative async_resolution")
	}
	if _, err := logrus.ParseLevel(f.LogLevel); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// DriverConfig converts the file into a core.Config. Pins, timer and
// clock are left for the caller to supply.
func (f *File) DriverConfig(log logrus.FieldLogger) core.Config {
	cfg := core.Defaults()
	cfg.Mode = f.Mode
	cfg.FullStepsPerRevolution = f.FullStepsPerRevolution
	cfg.RevolutionTimeMS = f.RevolutionTimeMS
	cfg.SkipInit = f.SkipInit
	if f.Tuning.Blocking != nil {
		cfg.BlockingTuning = *f.Tuning.Blocking
	}
	if f.Tuning.Timer != nil {
		cfg.TimerTuning = *f.Tuning.Timer
	}
	if f.Tuning.Async != nil {
		cfg.AsyncTuning = *f.Tuning.Async
	}
	cfg.Sleeper = core.TimerSleeper{Unit: f.AsyncResolution}
	cfg.Logger = log
	return cfg
}

// NewLogger builds a text logger at the configured level.
func (f *File) NewLogger(out io.Writer) (*logrus.Logger, error) {
	lvl, err := logrus.ParseLevel(f.LogLevel)
	if err != nil {
		return nil, err
	}
	l := logrus.New()
	l.SetOutput(out)
	l.SetLevel(lvl)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return l, nil
}

// Marshal encodes f back to YAML.
func (f *File) Marshal() ([]byte, error) {
	return yaml.Marshal(f)
}
