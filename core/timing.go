package core

import (
	"math"
	"strconv"
	"time"

	"periph.io/x/conn/v3/physic"
)

// PulsesPerStep is the number of step-line toggles that make one step:
// a rising edge and a falling edge.
const PulsesPerStep = 2

// DefaultBlockingOffset is subtracted from the pulse delay in the blocking
// strategy only. It was found by measurement on one bench setup and has no
// derivation; calibrate it per board.
const DefaultBlockingOffset = 20 * time.Microsecond

// minPulseDelay keeps tuned delays from collapsing to zero.
const minPulseDelay = time.Microsecond

// Timing is the derived cadence for a mode, motor and revolution time.
type Timing struct {
	Microsteps             uint8
	FullStepsPerRevolution int
	RevolutionTimeMS       int

	// PulseDelayUS is the delay between two toggles of the step line.
	PulseDelayUS uint32
}

// ComputeTiming derives the pulse delay:
//
//	total_pulses   = microsteps * full_steps * 2
//	pulse_delay_us = floor(revolution_ms * 1000 / total_pulses)
func ComputeTiming(microsteps uint8, fullStepsPerRev int, revolutionMS int) (Timing, error) {
	const op = "compute timing"
	if revolutionMS <= 0 {
		return Timing{}, configErr(op, ErrInvalidTiming, "revolution time must be positive, got "+strconv.Itoa(revolutionMS)+"ms")
	}
	if fullStepsPerRev <= 0 || microsteps == 0 {
		return Timing{}, configErr(op, ErrInvalidTiming, "zero pulses per revolution")
	}
	total := int64(microsteps) * int64(fullStepsPerRev) * PulsesPerStep
	delay := int64(revolutionMS) * 1000 / total
	if delay <= 0 {
		return Timing{}, configErr(op, ErrInvalidTiming, "revolution time too short for "+strconv.FormatInt(total, 10)+" pulses")
	}
	return Timing{
		Microsteps:             microsteps,
		FullStepsPerRevolution: fullStepsPerRev,
		RevolutionTimeMS:       revolutionMS,
		PulseDelayUS:           uint32(delay),
	}, nil
}

// StepsPerRevolution is microsteps * full steps.
func (t Timing) StepsPerRevolution() int {
	return int(t.Microsteps) * t.FullStepsPerRevolution
}

// TotalPulses is the number of toggles in one revolution.
func (t Timing) TotalPulses() int {
	return t.StepsPerRevolution() * PulsesPerStep
}

// PulseDelay returns PulseDelayUS as a duration.
func (t Timing) PulseDelay() time.Duration {
	return time.Duration(t.PulseDelayUS) * time.Microsecond
}

// Frequency is the tick rate needed to emit one toggle per pulse delay,
// i.e. 1e6 / pulse_delay_us Hz.
func (t Timing) Frequency() physic.Frequency {
	return frequencyFor(t.PulseDelay())
}

// maxSteps is the largest step count whose pulse total fits an int.
const maxSteps = math.MaxInt / PulsesPerStep

// RevolutionPulses converts a revolution count into toggles, rounding to
// the nearest whole step. Counts whose pulse total does not fit an int
// fail with ErrInvalidBound.
func (t Timing) RevolutionPulses(revs float64) (int, error) {
	steps := revs*float64(t.StepsPerRevolution()) + 0.5
	if !(steps >= 0 && steps < maxSteps) {
		return 0, configErr("revolutions", ErrInvalidBound,
			strconv.FormatFloat(revs, 'g', -1, 64)+" revolutions overflows the pulse count")
	}
	return int(steps) * PulsesPerStep, nil
}

func frequencyFor(d time.Duration) physic.Frequency {
	if d <= 0 {
		return 0
	}
	return physic.PeriodToFrequency(d)
}

// Tuning is a per-strategy correction to the computed pulse delay. Offset
// is subtracted as is, PerMicrostep is scaled by the current microstep
// count. Neither has a derivation; both exist so each strategy can be
// calibrated on its own.
type Tuning struct {
	Offset       time.Duration `yaml:"offset"`
	PerMicrostep time.Duration `yaml:"per_microstep"`
}

// DefaultBlockingTuning is the tuning the blocking strategy starts with.
var DefaultBlockingTuning = Tuning{Offset: DefaultBlockingOffset}

// Apply returns the tuned delay, never below one microsecond.
func (tn Tuning) Apply(t Timing) time.Duration {
	d := t.PulseDelay() - tn.Offset - tn.PerMicrostep*time.Duration(t.Microsteps)
	if d < minPulseDelay {
		d = minPulseDelay
	}
	return d
}
