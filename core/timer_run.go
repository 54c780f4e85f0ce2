package core

// Timer-driven (non-blocking) strategy.
// The driver's PeriodicTimer calls tick once per pulse delay; each tick
// either toggles the step line or ends the run.

import (
	"sync"

	"github.com/sirupsen/logrus"
)

type timerRun[T any] struct {
	d        *Driver
	res      *RunResult[T]
	onFinish FinishFunc[T]
	timer    PeriodicTimer
	step     OutputPin
	log      logrus.FieldLogger

	// mu serialises ticks against cancel.
	mu        sync.Mutex
	remaining int
	pred      func() bool
}

// StartRun arms the driver's timer for req and returns the live result at
// once. All validation happens here: the tick callback never fails.
func StartRun[T any](d *Driver, req RunRequest[T]) (*RunResult[T], error) {
	const op = "start run"
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if _, ok := req.Bound.(asyncPredicateBound); ok {
		return nil, usageErr(op, ErrPredicateFlavor, "async predicate given to a timer run")
	}

	d.mu.Lock()
	if d.timer == nil {
		d.mu.Unlock()
		return nil, configErr(op, ErrNoTimer, "")
	}
	freq := frequencyFor(d.timerTuning.Apply(d.timing))
	target, counted, err := targetPulses(req.Bound, d.timing)
	if err != nil {
		d.mu.Unlock()
		return nil, err
	}
	r := &timerRun[T]{
		d:        d,
		onFinish: req.OnFinish,
		timer:    d.timer,
		step:     d.pins.Step,
	}
	if counted {
		r.remaining = target
		r.res = newRunResult[T](d.clock, target)
	} else {
		r.pred = req.Bound.(predicateBound).fn
		r.res = newRunResult[T](d.clock, -1)
	}
	if err := d.begin(op, req.Direction, r); err != nil {
		d.mu.Unlock()
		return nil, err
	}
	r.log = d.log.WithFields(logrus.Fields{"run": r.res.ID(), "strategy": r.strategy()})
	d.mu.Unlock()

	r.log.WithFields(logrus.Fields{
		"bound":     req.Bound.String(),
		"frequency": freq.String(),
	}).Debug("run start")

	r.mu.Lock()
	err = r.timer.Arm(freq, r.tick)
	if err == nil && r.res.Done() {
		// Cancelled between claiming the driver and arming.
		r.timer.Disarm()
	}
	r.mu.Unlock()
	if err != nil {
		d.release(r)
		return nil, err
	}
	return r.res, nil
}

// RunNonBlocking starts a timer run of exactly pulses toggles.
func RunNonBlocking[T any](d *Driver, pulses int, dir Direction, onFinish FinishFunc[T]) (*RunResult[T], error) {
	req, err := NewRunRequest(Pulses(pulses), dir, onFinish)
	if err != nil {
		return nil, err
	}
	return StartRun(d, req)
}

// RunWhileNonBlocking starts a timer run that lasts while pred is true.
func RunWhileNonBlocking[T any](d *Driver, pred func() bool, dir Direction, onFinish FinishFunc[T]) (*RunResult[T], error) {
	req, err := NewRunRequest(While(pred), dir, onFinish)
	if err != nil {
		return nil, err
	}
	return StartRun(d, req)
}

func (r *timerRun[T]) strategy() string { return "timer" }

func (r *timerRun[T]) tick() {
	r.mu.Lock()
	if r.res.Done() {
		r.mu.Unlock()
		return
	}
	r.res.begin()
	pred := r.pred
	r.mu.Unlock()

	// The predicate runs unlocked so it may itself cancel the run.
	fire := true
	if pred != nil {
		fire = pred()
	}

	r.mu.Lock()
	if r.res.Done() {
		r.mu.Unlock()
		return
	}
	if pred == nil {
		fire = r.remaining > 0
		if fire {
			r.remaining--
		}
	}
	if fire {
		r.step.Toggle()
		r.res.addPulse()
		r.mu.Unlock()
		return
	}
	r.timer.Disarm()
	r.res.finish(false)
	r.d.release(r)
	r.mu.Unlock()
	r.completed()
}

func (r *timerRun[T]) cancel() bool {
	r.mu.Lock()
	if !r.res.finish(true) {
		r.mu.Unlock()
		return false
	}
	r.timer.Disarm()
	r.d.release(r)
	r.mu.Unlock()
	r.completed()
	return true
}

func (r *timerRun[T]) completed() {
	r.log.WithFields(logrus.Fields{
		"pulses":    r.res.PulsesDone(),
		"elapsed":   r.res.Elapsed(),
		"cancelled": r.res.Cancelled(),
	}).Debug("run done")
	r.res.complete(r.onFinish)
}
