package core

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// RunState is the lifecycle of one run.
type RunState uint8

const (
	StateIdle     RunState = iota // created, no pulse emitted yet
	StateRunning                  // start time recorded
	StateFinished                 // finish time recorded, terminal
)

func (s RunState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateFinished:
		return "finished"
	}
	return "unknown"
}

// RunResult tracks one non-blocking run. The strategy running it is the
// only writer; any goroutine may read it at any time and gets a snapshot
// that is at worst one pulse behind.
type RunResult[T any] struct {
	id     uuid.UUID
	clock  Clock
	target int // -1 for predicate runs

	pulses    atomic.Int64
	started   atomic.Bool
	startMS   atomic.Uint32
	done      atomic.Bool
	finishMS  atomic.Uint32
	cancelled atomic.Bool

	value    T
	hasValue atomic.Bool
	finished chan struct{}
}

func newRunResult[T any](clock Clock, target int) *RunResult[T] {
	return &RunResult[T]{
		id:       uuid.New(),
		clock:    clock,
		target:   target,
		finished: make(chan struct{}),
	}
}

// ID identifies the run in logs.
func (r *RunResult[T]) ID() uuid.UUID { return r.id }

// Target returns the pulse count a bounded run aims for, or -1 for a
// predicate run.
func (r *RunResult[T]) Target() int { return r.target }

// PulsesDone is the number of step-line toggles emitted so far.
func (r *RunResult[T]) PulsesDone() int { return int(r.pulses.Load()) }

// StepsDone is PulsesDone / 2.
func (r *RunResult[T]) StepsDone() int { return r.PulsesDone() / PulsesPerStep }

// Started reports whether the first tick has happened.
func (r *RunResult[T]) Started() bool { return r.started.Load() }

// Done reports whether the run has finished or been cancelled.
func (r *RunResult[T]) Done() bool { return r.done.Load() }

// Cancelled reports whether the run was stopped before its bound.
func (r *RunResult[T]) Cancelled() bool { return r.cancelled.Load() }

// State derives the lifecycle state.
func (r *RunResult[T]) State() RunState {
	switch {
	case r.Done():
		return StateFinished
	case r.Started():
		return StateRunning
	}
	return StateIdle
}

// StartTime is the clock reading at the first tick.
func (r *RunResult[T]) StartTime() (uint32, bool) {
	if !r.Started() {
		return 0, false
	}
	return r.startMS.Load(), true
}

// FinishTime is the clock reading when the run finished.
func (r *RunResult[T]) FinishTime() (uint32, bool) {
	if !r.Done() {
		return 0, false
	}
	return r.finishMS.Load(), true
}

// Elapsed is finish-start once done, now-start while running, and zero
// before the first tick.
func (r *RunResult[T]) Elapsed() time.Duration {
	start, ok := r.StartTime()
	if !ok {
		return 0
	}
	end := r.clock.Millis()
	if fin, ok := r.FinishTime(); ok {
		end = fin
	}
	return time.Duration(MillisSince(start, end)) * time.Millisecond
}

// CallbackResult returns the value produced by the finish callback. ok is
// false until the callback has returned, or if there was none.
func (r *RunResult[T]) CallbackResult() (v T, ok bool) {
	if !r.hasValue.Load() {
		return v, false
	}
	return r.value, true
}

// Finished is closed once the run is done and the finish callback, if any,
// has returned.
func (r *RunResult[T]) Finished() <-chan struct{} { return r.finished }

// Wait blocks until Finished is closed or ctx ends.
func (r *RunResult[T]) Wait(ctx context.Context) error {
	select {
	case <-r.finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// begin records the start time on the first call only.
func (r *RunResult[T]) begin() {
	if r.started.Load() {
		return
	}
	r.startMS.Store(r.clock.Millis())
	r.started.Store(true)
}

func (r *RunResult[T]) addPulse() {
	r.pulses.Add(1)
}

// finish marks the run done exactly once and reports whether this call
// did it. A run that never ticked gets start == finish.
func (r *RunResult[T]) finish(cancelled bool) bool {
	if r.done.Load() {
		return false
	}
	now := r.clock.Millis()
	if !r.started.Load() {
		r.startMS.Store(now)
		r.started.Store(true)
	}
	r.finishMS.Store(now)
	r.cancelled.Store(cancelled)
	r.done.Store(true)
	return true
}

// complete runs the finish callback and publishes its value. Called once,
// after finish returned true.
func (r *RunResult[T]) complete(fn FinishFunc[T]) {
	if fn != nil {
		r.value = fn(r)
		r.hasValue.Store(true)
	}
	close(r.finished)
}
