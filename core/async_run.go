package core

// Cooperative async strategy.
// One goroutine per run suspends on the driver's Sleeper between pulses,
// so other goroutines interleave at pulse granularity.

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

type asyncRun[T any] struct {
	d        *Driver
	res      *RunResult[T]
	onFinish FinishFunc[T]
	sleeper  Sleeper
	step     OutputPin
	delay    time.Duration
	log      logrus.FieldLogger
	stop     context.CancelFunc

	// mu serialises pulses against cancel.
	mu sync.Mutex
}

// StartAsync validates req, claims the driver and starts the run's
// goroutine. Cancelling ctx or calling Driver.Cancel stops the run and
// finalizes it with the pulses emitted so far.
func StartAsync[T any](ctx context.Context, d *Driver, req RunRequest[T]) (*RunResult[T], error) {
	const op = "start async"
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if _, ok := req.Bound.(predicateBound); ok {
		return nil, usageErr(op, ErrPredicateFlavor, "synchronous predicate given to an async run")
	}

	d.mu.Lock()
	target, counted, err := targetPulses(req.Bound, d.timing)
	if err != nil {
		d.mu.Unlock()
		return nil, err
	}
	if !counted {
		target = -1
	}
	runCtx, stop := context.WithCancel(ctx)
	r := &asyncRun[T]{
		d:        d,
		res:      newRunResult[T](d.clock, target),
		onFinish: req.OnFinish,
		sleeper:  d.sleeper,
		step:     d.pins.Step,
		delay:    Quantize(d.asyncTuning.Apply(d.timing), d.sleeper.Resolution()),
		stop:     stop,
	}
	if err := d.begin(op, req.Direction, r); err != nil {
		d.mu.Unlock()
		stop()
		return nil, err
	}
	r.log = d.log.WithFields(logrus.Fields{"run": r.res.ID(), "strategy": r.strategy()})
	d.mu.Unlock()

	r.log.WithFields(logrus.Fields{
		"bound": req.Bound.String(),
		"delay": r.delay,
	}).Debug("run start")

	if counted {
		go r.runCounted(runCtx, target)
	} else {
		go r.runWhile(runCtx, req.Bound.(asyncPredicateBound).fn)
	}
	return r.res, nil
}

// RunAsync runs steps steps on the async strategy and waits for the end.
func RunAsync[T any](ctx context.Context, d *Driver, steps int, dir Direction, onFinish FinishFunc[T]) (*RunResult[T], error) {
	req, err := NewRunRequest(Steps(steps), dir, onFinish)
	if err != nil {
		return nil, err
	}
	return startAndWait(ctx, d, req)
}

// RunWhileAsync runs until pred returns false, awaiting it once per step.
func RunWhileAsync[T any](ctx context.Context, d *Driver, pred func(context.Context) bool, dir Direction, onFinish FinishFunc[T]) (*RunResult[T], error) {
	req, err := NewRunRequest(WhileAsync(pred), dir, onFinish)
	if err != nil {
		return nil, err
	}
	return startAndWait(ctx, d, req)
}

func startAndWait[T any](ctx context.Context, d *Driver, req RunRequest[T]) (*RunResult[T], error) {
	res, err := StartAsync(ctx, d, req)
	if err != nil {
		return nil, err
	}
	// The run observes ctx itself, so Finished closes soon after ctx ends.
	<-res.Finished()
	return res, nil
}

func (r *asyncRun[T]) strategy() string { return "async" }

func (r *asyncRun[T]) runCounted(ctx context.Context, pulses int) {
	r.res.begin()
	for i := 0; i < pulses; i++ {
		if !r.pulse(ctx) {
			r.end(true)
			return
		}
	}
	r.end(false)
}

func (r *asyncRun[T]) runWhile(ctx context.Context, pred func(context.Context) bool) {
	r.res.begin()
	for {
		if ctx.Err() != nil {
			r.end(true)
			return
		}
		if !pred(ctx) {
			break
		}
		for i := 0; i < PulsesPerStep; i++ {
			if !r.pulse(ctx) {
				r.end(true)
				return
			}
		}
	}
	r.end(false)
}

// pulse sleeps one delay then toggles. It reports false if the run was
// stopped in the meantime.
func (r *asyncRun[T]) pulse(ctx context.Context) bool {
	if err := r.sleeper.Sleep(ctx, r.delay); err != nil {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.res.Done() || ctx.Err() != nil {
		return false
	}
	r.step.Toggle()
	r.res.addPulse()
	return true
}

func (r *asyncRun[T]) end(cancelled bool) {
	r.mu.Lock()
	if !r.res.finish(cancelled) {
		// Driver.Cancel got there first.
		r.mu.Unlock()
		return
	}
	r.d.release(r)
	r.mu.Unlock()
	r.stop()
	r.completed()
}

func (r *asyncRun[T]) cancel() bool {
	r.mu.Lock()
	if !r.res.finish(true) {
		r.mu.Unlock()
		return false
	}
	r.d.release(r)
	r.mu.Unlock()
	r.stop()
	r.completed()
	return true
}

func (r *asyncRun[T]) completed() {
	r.log.WithFields(logrus.Fields{
		"pulses":    r.res.PulsesDone(),
		"elapsed":   r.res.Elapsed(),
		"cancelled": r.res.Cancelled(),
	}).Debug("run done")
	r.res.complete(r.onFinish)
}
