package core

import "github.com/sirupsen/logrus"

// blockingRun marks the driver busy for the length of a blocking run.
type blockingRun struct{ pulses int }

func (*blockingRun) cancel() bool     { return false }
func (*blockingRun) strategy() string { return "blocking" }

// RunBlocking emits 2*steps pulses on the caller's goroutine, sleeping the
// blocking-tuned delay before each toggle, and returns when all are out.
// There is no progress reporting and no way to stop it early; use the
// timer or async strategies when anything else must happen meanwhile.
func (d *Driver) RunBlocking(steps int, dir Direction) error {
	return d.runBlocking(Steps(steps), dir)
}

// RunBlockingRevolutions turns the motor revs times at the current mode.
func (d *Driver) RunBlockingRevolutions(revs float64, dir Direction) error {
	return d.runBlocking(Revolutions(revs), dir)
}

func (d *Driver) runBlocking(b Bound, dir Direction) error {
	const op = "run blocking"
	if err := (RunRequest[struct{}]{Bound: b, Direction: dir}).Validate(); err != nil {
		return err
	}

	d.mu.Lock()
	// Resolved under the lock so the count and the delay share one mode.
	pulses, _, err := targetPulses(b, d.timing)
	if err != nil {
		d.mu.Unlock()
		return err
	}
	run := &blockingRun{pulses: pulses}
	if err := d.begin(op, dir, run); err != nil {
		d.mu.Unlock()
		return err
	}
	step := d.pins.Step
	delay := d.blockingTuning.Apply(d.timing)
	sleep := d.delay
	d.mu.Unlock()
	defer d.release(run)

	d.log.WithFields(logrus.Fields{
		"strategy": "blocking",
		"pulses":   pulses,
		"delay":    delay,
	}).Debug("run start")

	for i := 0; i < pulses; i++ {
		sleep(delay)
		step.Toggle()
	}

	d.log.WithFields(logrus.Fields{
		"strategy": "blocking",
		"pulses":   pulses,
	}).Debug("run done")
	return nil
}
