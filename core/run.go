package core

import (
	"context"
	"math"
	"strconv"
)

// Bound decides how long a run lasts. It is a closed set: Pulses, Steps,
// Revolutions, While and WhileAsync are the only constructors.
type Bound interface {
	String() string
	bound()
}

type pulseBound struct{ pulses int }

type stepBound struct{ steps int }

type revolutionBound struct{ revs float64 }

type predicateBound struct{ fn func() bool }

type asyncPredicateBound struct{ fn func(context.Context) bool }

func (pulseBound) bound()          {}
func (stepBound) bound()           {}
func (revolutionBound) bound()     {}
func (predicateBound) bound()      {}
func (asyncPredicateBound) bound() {}

func (b pulseBound) String() string { return strconv.Itoa(b.pulses) + " pulses" }
func (b stepBound) String() string  { return strconv.Itoa(b.steps) + " steps" }
func (b revolutionBound) String() string {
	return strconv.FormatFloat(b.revs, 'g', -1, 64) + " revolutions"
}
func (predicateBound) String() string      { return "while predicate" }
func (asyncPredicateBound) String() string { return "while async predicate" }

// Pulses bounds a run to n toggles of the step line.
func Pulses(n int) Bound { return pulseBound{pulses: n} }

// Steps bounds a run to n steps, i.e. 2n pulses.
func Steps(n int) Bound { return stepBound{steps: n} }

// Revolutions bounds a run to r turns at the driver's current mode,
// rounded to the nearest step when the run starts.
func Revolutions(r float64) Bound { return revolutionBound{revs: r} }

// While keeps a timer run going as long as fn returns true. fn is called
// from the timer callback once per pulse and must be fast.
func While(fn func() bool) Bound { return predicateBound{fn: fn} }

// WhileAsync keeps an async run going as long as fn returns true. fn is
// awaited once per step.
func WhileAsync(fn func(ctx context.Context) bool) Bound { return asyncPredicateBound{fn: fn} }

// FinishFunc is called once when a run finishes or is cancelled. Its return
// value is stored in the result.
type FinishFunc[T any] func(r *RunResult[T]) T

// RunRequest is the unit of work handed to a strategy.
type RunRequest[T any] struct {
	Bound     Bound
	Direction Direction
	OnFinish  FinishFunc[T]
}

// NewRunRequest builds and validates a request.
func NewRunRequest[T any](b Bound, dir Direction, onFinish FinishFunc[T]) (RunRequest[T], error) {
	r := RunRequest[T]{Bound: b, Direction: dir, OnFinish: onFinish}
	if err := r.Validate(); err != nil {
		return RunRequest[T]{}, err
	}
	return r, nil
}

// RequestFrom builds a request from loosely typed inputs, such as parsed
// command arguments. Exactly one of targetPulses and predicate must be set.
func RequestFrom[T any](targetPulses *int, predicate func() bool, dir Direction, onFinish FinishFunc[T]) (RunRequest[T], error) {
	const op = "run request"
	switch {
	case targetPulses != nil && predicate != nil:
		return RunRequest[T]{}, configErr(op, ErrInvalidBound, "both pulse count and predicate given")
	case targetPulses == nil && predicate == nil:
		return RunRequest[T]{}, configErr(op, ErrInvalidBound, "neither pulse count nor predicate given")
	case targetPulses != nil:
		return NewRunRequest(Pulses(*targetPulses), dir, onFinish)
	default:
		return NewRunRequest(While(predicate), dir, onFinish)
	}
}

// Validate checks the bound and direction.
func (r RunRequest[T]) Validate() error {
	const op = "run request"
	if !r.Direction.valid() {
		return configErr(op, ErrInvalidDirection, r.Direction.String())
	}
	switch b := r.Bound.(type) {
	case nil:
		return configErr(op, ErrInvalidBound, "no bound")
	case pulseBound:
		if b.pulses < 0 {
			return configErr(op, ErrInvalidBound, "negative pulse count "+strconv.Itoa(b.pulses))
		}
	case stepBound:
		if b.steps < 0 {
			return configErr(op, ErrInvalidBound, "negative step count "+strconv.Itoa(b.steps))
		}
		if b.steps > maxSteps {
			return configErr(op, ErrInvalidBound, b.String()+" overflows the pulse count")
		}
	case revolutionBound:
		if b.revs < 0 || math.IsNaN(b.revs) || math.IsInf(b.revs, 0) {
			return configErr(op, ErrInvalidBound, "invalid revolution count "+b.String())
		}
		// A revolution is at least one step; the exact limit depends on
		// the mode and is checked when the run starts.
		if b.revs >= maxSteps {
			return configErr(op, ErrInvalidBound, b.String()+" overflows the pulse count")
		}
	case predicateBound:
		if b.fn == nil {
			return configErr(op, ErrInvalidBound, "nil predicate")
		}
	case asyncPredicateBound:
		if b.fn == nil {
			return configErr(op, ErrInvalidBound, "nil predicate")
		}
	}
	return nil
}

// targetPulses resolves a counted bound against the timing in force when
// the run starts. ok is false for predicate bounds.
func targetPulses(b Bound, t Timing) (n int, ok bool, err error) {
	switch b := b.(type) {
	case pulseBound:
		return b.pulses, true, nil
	case stepBound:
		return b.steps * PulsesPerStep, true, nil
	case revolutionBound:
		n, err := t.RevolutionPulses(b.revs)
		return n, true, err
	}
	return 0, false, nil
}
