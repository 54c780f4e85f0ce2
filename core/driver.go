package core

// DRV8825 step/dir driver.
// One Driver owns one chip: its control lines, its timing and at most one
// active run.

import (
	"io"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	// DefaultFullStepsPerRevolution fits the common 1.8 degree motor.
	DefaultFullStepsPerRevolution = 200
	// DefaultRevolutionTimeMS is one turn per second.
	DefaultRevolutionTimeMS = 1000
)

// Config describes one driver. Zero values for the optional collaborators
// are replaced with defaults by New.
type Config struct {
	Pins Pins

	Mode                   Mode
	FullStepsPerRevolution int
	RevolutionTimeMS       int

	// SkipInit leaves the control lines untouched at construction.
	SkipInit bool

	BlockingTuning Tuning
	TimerTuning    Tuning
	AsyncTuning    Tuning

	// Timer generates ticks for non-blocking runs. Owned by this driver.
	Timer PeriodicTimer
	// Sleeper suspends the async strategy between pulses.
	Sleeper Sleeper
	// Clock timestamps runs.
	Clock Clock
	// Delay blocks the blocking strategy between pulses.
	Delay func(time.Duration)

	Logger logrus.FieldLogger
}

// Defaults returns a config for a 200 step motor at full step, one turn
// per second, with the default blocking tuning.
func Defaults() Config {
	return Config{
		Mode:                   ModeFull,
		FullStepsPerRevolution: DefaultFullStepsPerRevolution,
		RevolutionTimeMS:       DefaultRevolutionTimeMS,
		BlockingTuning:         DefaultBlockingTuning,
	}
}

// activeRun is what the driver needs from whichever strategy holds it.
type activeRun interface {
	// cancel finalizes the run. It reports false if the run cannot be
	// cancelled or had already finished.
	cancel() bool
	strategy() string
}

// Driver is a DRV8825 stepper driver.
type Driver struct {
	mu sync.Mutex

	pins   Pins
	mode   Mode
	timing Timing
	dir    Direction

	blockingTuning Tuning
	timerTuning    Tuning
	asyncTuning    Tuning

	timer   PeriodicTimer
	sleeper Sleeper
	clock   Clock
	delay   func(time.Duration)
	log     logrus.FieldLogger

	active activeRun
}

// New validates cfg, computes the timing and, unless SkipInit is set, runs
// the init sequence.
func New(cfg Config) (*Driver, error) {
	if !cfg.Mode.Valid() {
		return nil, configErr("new driver", ErrUnknownMode, cfg.Mode.String())
	}
	t, err := ComputeTiming(cfg.Mode.Microsteps(), cfg.FullStepsPerRevolution, cfg.RevolutionTimeMS)
	if err != nil {
		return nil, err
	}

	d := &Driver{
		pins:           cfg.Pins,
		mode:           cfg.Mode,
		timing:         t,
		blockingTuning: cfg.BlockingTuning,
		timerTuning:    cfg.TimerTuning,
		asyncTuning:    cfg.AsyncTuning,
		timer:          cfg.Timer,
		sleeper:        cfg.Sleeper,
		clock:          cfg.Clock,
		delay:          cfg.Delay,
		log:            cfg.Logger,
	}
	if d.sleeper == nil {
		d.sleeper = DefaultSleeper
	}
	if d.clock == nil {
		d.clock = NewSystemClock()
	}
	if d.delay == nil {
		d.delay = time.Sleep
	}
	if d.log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		d.log = l
	}
	if d.pins.Dir != nil {
		d.dir = directionFromLevel(d.pins.Dir.Get())
	}

	if !cfg.SkipInit {
		d.Init()
	}
	return d, nil
}

// Init enables the chip, releases reset and sleep, and applies the mode.
// Steps whose pin is absent are skipped.
func (d *Driver) Init() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.pins.Enable != nil {
		d.pins.Enable.Set(activeLow(true))
	}
	if d.pins.Reset != nil {
		d.pins.Reset.Set(activeLow(false))
	}
	if d.pins.Sleep != nil {
		d.pins.Sleep.Set(activeLow(false))
	}
	d.applyMode()
	d.log.WithField("mode", d.mode).Debug("driver initialised")
}

// Configure sets mode, motor and revolution time in one go. On error
// nothing changes. The new timing applies to runs started afterwards.
func (d *Driver) Configure(mode Mode, fullStepsPerRev, revolutionMS int) error {
	if !mode.Valid() {
		return configErr("configure", ErrUnknownMode, mode.String())
	}
	t, err := ComputeTiming(mode.Microsteps(), fullStepsPerRev, revolutionMS)
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.timing = t
	if d.mode != mode {
		d.mode = mode
		d.applyMode()
	}
	return nil
}

// SetMode changes the microstep resolution and writes the select lines.
func (d *Driver) SetMode(mode Mode) error {
	d.mu.Lock()
	full, rev := d.timing.FullStepsPerRevolution, d.timing.RevolutionTimeMS
	d.mu.Unlock()
	return d.Configure(mode, full, rev)
}

// SetRevolutionTime changes the target time for one turn.
func (d *Driver) SetRevolutionTime(ms int) error {
	d.mu.Lock()
	mode, full := d.mode, d.timing.FullStepsPerRevolution
	d.mu.Unlock()
	return d.Configure(mode, full, ms)
}

// applyMode writes the select bits. Missing lines are assumed to be
// strapped externally. Caller holds d.mu.
func (d *Driver) applyMode() {
	sel := d.mode.Select()
	missing := false
	for i, p := range d.pins.Mode {
		if p == nil {
			missing = true
			continue
		}
		p.Set(sel[i])
	}
	if missing {
		d.log.WithFields(logrus.Fields{
			"mode":   d.mode,
			"select": sel,
		}).Warn("mode select line not connected, assuming hardware strapping matches")
	}
}

// Mode returns the current stepping mode.
func (d *Driver) Mode() Mode {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.mode
}

// Timing returns the current derived timing.
func (d *Driver) Timing() Timing {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.timing
}

// StepsPerRevolution is microsteps * full steps.
func (d *Driver) StepsPerRevolution() int {
	return d.Timing().StepsPerRevolution()
}

// PulseDelay is the untuned delay between toggles.
func (d *Driver) PulseDelay() time.Duration {
	return d.Timing().PulseDelay()
}

// Tunings returns the blocking, timer and async tunings.
func (d *Driver) Tunings() (blocking, timer, async Tuning) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.blockingTuning, d.timerTuning, d.asyncTuning
}

// SetTunings replaces the per-strategy tunings, for calibration.
func (d *Driver) SetTunings(blocking, timer, async Tuning) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.blockingTuning, d.timerTuning, d.asyncTuning = blocking, timer, async
}

// Active reports whether a run currently holds the driver.
func (d *Driver) Active() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.active != nil
}

// Cancel stops the active non-blocking or async run, finalizing it with its
// partial count and calling its finish callback. It returns false when
// nothing was cancelled: no run, or a blocking run, which cannot be
// interrupted.
func (d *Driver) Cancel() bool {
	d.mu.Lock()
	run := d.active
	d.mu.Unlock()
	if run == nil {
		return false
	}
	return run.cancel()
}

// begin applies the requested direction and takes the active slot. It
// fails without side effects if another run holds the driver. Caller holds
// d.mu.
func (d *Driver) begin(op string, dir Direction, run activeRun) error {
	if d.active != nil {
		return usageErr(op, ErrRunActive, d.active.strategy()+" run in progress")
	}
	if err := d.prepareRun(op, dir); err != nil {
		return err
	}
	d.active = run
	return nil
}

// release frees the slot if run still holds it.
func (d *Driver) release(run activeRun) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.active == run {
		d.active = nil
	}
}

// prepareRun applies the requested direction and checks the step line.
// Caller holds d.mu.
func (d *Driver) prepareRun(op string, dir Direction) error {
	if d.pins.Step == nil {
		return configErr(op, ErrPinMissing, "step")
	}
	if dir == DirectionUnchanged {
		return nil
	}
	return d.setDirection(op, dir)
}
