package core

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/physic"
)

func stepsDone(r *RunResult[int]) int { return r.StepsDone() }

func TestNonBlockingCountedRun(t *testing.T) {
	env := newTestDriver(t)

	res, err := RunNonBlocking(env.d, 10, Clockwise, stepsDone)
	require.NoError(t, err)
	assert.True(t, env.pins.dir.Get())
	assert.Equal(t, StateIdle, res.State())
	assert.True(t, env.d.Active())
	assert.Equal(t, testPulsePeriod, env.timer.Period())
	assert.Equal(t, 10, res.Target())

	// first tick at 1.25ms records the start time
	env.sched.Advance(testPulsePeriod)
	start, ok := res.StartTime()
	require.True(t, ok)
	assert.Equal(t, uint32(1), start)
	assert.Equal(t, 1, res.PulsesDone())
	assert.Equal(t, StateRunning, res.State())

	// ten toggles, then one more tick to notice the bound
	env.sched.Advance(10 * testPulsePeriod)
	require.True(t, res.Done())
	assert.False(t, res.Cancelled())
	assert.Equal(t, 10, res.PulsesDone())
	assert.Equal(t, 5, res.StepsDone())
	assert.Equal(t, 10, env.pins.step.Toggles())

	fin, ok := res.FinishTime()
	require.True(t, ok)
	assert.Equal(t, uint32(13), fin)
	assert.Equal(t, 12*time.Millisecond, res.Elapsed())

	v, ok := res.CallbackResult()
	require.True(t, ok)
	assert.Equal(t, 5, v)
	waitFinished(t, res)

	assert.False(t, env.d.Active())
	assert.False(t, env.timer.Armed())
	assert.Zero(t, env.sched.Pending())
}

func TestNonBlockingNoExtraPulses(t *testing.T) {
	env := newTestDriver(t)
	res, err := RunNonBlocking[int](env.d, 4, CounterClockwise, nil)
	require.NoError(t, err)

	env.sched.Advance(time.Second)
	assert.Equal(t, 4, res.PulsesDone())
	assert.Equal(t, 4, env.pins.step.Toggles())
	_, ok := res.CallbackResult()
	assert.False(t, ok, "no callback given")
}

func TestNonBlockingZeroPulses(t *testing.T) {
	env := newTestDriver(t)
	res, err := RunNonBlocking[int](env.d, 0, DirectionUnchanged, stepsDone)
	require.NoError(t, err)

	env.sched.Advance(testPulsePeriod)
	require.True(t, res.Done())
	assert.Zero(t, res.PulsesDone())
	v, _ := res.CallbackResult()
	assert.Zero(t, v)
}

func TestNonBlockingRevolutions(t *testing.T) {
	env := newTestDriver(t)
	req, err := NewRunRequest[int](Revolutions(0.5), Clockwise, nil)
	require.NoError(t, err)
	res, err := StartRun(env.d, req)
	require.NoError(t, err)
	assert.Equal(t, 200, res.Target())

	env.sched.RunUntil(res.Done, testPulsePeriod, time.Second)
	assert.Equal(t, 100, res.StepsDone())
}

func TestPredicateRun(t *testing.T) {
	env := newTestDriver(t)
	calls := 0
	limit := 6
	pred := func() bool {
		calls++
		return calls <= limit
	}

	res, err := RunWhileNonBlocking(env.d, pred, Clockwise, stepsDone)
	require.NoError(t, err)
	assert.Equal(t, -1, res.Target())

	env.sched.Advance(time.Second)
	require.True(t, res.Done())
	assert.Equal(t, limit, res.PulsesDone())
	assert.Equal(t, limit+1, calls)
	v, _ := res.CallbackResult()
	assert.Equal(t, 3, v)
}

func TestPredicateFalseImmediately(t *testing.T) {
	env := newTestDriver(t)
	calls := 0
	res, err := RunWhileNonBlocking[int](env.d, func() bool { calls++; return false }, Clockwise, nil)
	require.NoError(t, err)

	env.sched.Advance(5 * testPulsePeriod)
	require.True(t, res.Done())
	assert.Equal(t, 1, calls, "predicate is evaluated at least once")
	assert.Zero(t, res.PulsesDone())
}

func TestStartRunWhileActive(t *testing.T) {
	env := newTestDriver(t)
	first, err := RunNonBlocking[int](env.d, 100, Clockwise, nil)
	require.NoError(t, err)

	_, err = RunNonBlocking[int](env.d, 10, CounterClockwise, nil)
	assert.ErrorIs(t, err, ErrRunActive)
	assert.ErrorIs(t, err, UsageError)
	assert.True(t, env.pins.dir.Get(), "rejected run must not touch DIR")

	env.sched.Advance(3 * testPulsePeriod)
	assert.Equal(t, 3, first.PulsesDone())
}

func TestCancelNonBlocking(t *testing.T) {
	env := newTestDriver(t)
	res, err := RunNonBlocking(env.d, 100, Clockwise, stepsDone)
	require.NoError(t, err)

	env.sched.Advance(9 * testPulsePeriod)
	require.True(t, env.d.Cancel())
	assert.False(t, env.d.Cancel(), "second cancel finds nothing")

	require.True(t, res.Done())
	assert.True(t, res.Cancelled())
	assert.Equal(t, 9, res.PulsesDone())
	v, ok := res.CallbackResult()
	require.True(t, ok)
	assert.Equal(t, 4, v)
	assert.False(t, env.timer.Armed())

	env.sched.Advance(10 * testPulsePeriod)
	assert.Equal(t, 9, env.pins.step.Toggles())

	next, err := RunNonBlocking[int](env.d, 2, CounterClockwise, nil)
	require.NoError(t, err)
	env.sched.Advance(3 * testPulsePeriod)
	assert.True(t, next.Done())
	assert.Equal(t, 11, env.pins.step.Toggles())
}

func TestCancelBeforeFirstTick(t *testing.T) {
	env := newTestDriver(t)
	res, err := RunNonBlocking[int](env.d, 10, Clockwise, nil)
	require.NoError(t, err)

	require.True(t, env.d.Cancel())
	start, _ := res.StartTime()
	fin, _ := res.FinishTime()
	assert.Equal(t, start, fin)
	assert.Zero(t, res.Elapsed())
}

func TestCancelFromPredicate(t *testing.T) {
	env := newTestDriver(t)
	n := 0
	pred := func() bool {
		n++
		if n == 4 {
			env.d.Cancel()
		}
		return true
	}
	res, err := RunWhileNonBlocking(env.d, pred, Clockwise, stepsDone)
	require.NoError(t, err)

	env.sched.Advance(time.Second)
	require.True(t, res.Done())
	assert.True(t, res.Cancelled())
	assert.Equal(t, 3, res.PulsesDone())
}

func TestChainFromFinishCallback(t *testing.T) {
	env := newTestDriver(t)
	var second *RunResult[int]
	var chainErr error

	first, err := RunNonBlocking(env.d, 4, Clockwise, func(r *RunResult[int]) int {
		second, chainErr = RunNonBlocking[int](env.d, 6, CounterClockwise, nil)
		return r.PulsesDone()
	})
	require.NoError(t, err)

	env.sched.Advance(5 * testPulsePeriod)
	require.True(t, first.Done())
	require.NoError(t, chainErr)
	require.NotNil(t, second)
	assert.False(t, env.pins.dir.Get())

	env.sched.Advance(7 * testPulsePeriod)
	assert.True(t, second.Done())
	assert.Equal(t, 6, second.PulsesDone())
	assert.Equal(t, 10, env.pins.step.Toggles())
}

func TestStartRunRejects(t *testing.T) {
	t.Run("async predicate", func(t *testing.T) {
		env := newTestDriver(t)
		req := RunRequest[int]{Bound: WhileAsync(nil), Direction: Clockwise}
		_, err := StartRun(env.d, req)
		// validation runs first
		assert.ErrorIs(t, err, ErrInvalidBound)

		req.Bound = WhileAsync(func(_ context.Context) bool { return true })
		_, err = StartRun(env.d, req)
		assert.ErrorIs(t, err, ErrPredicateFlavor)
		assert.ErrorIs(t, err, UsageError)
		assert.False(t, env.d.Active())
	})
	t.Run("no timer", func(t *testing.T) {
		env := newTestDriver(t, func(c *Config) { c.Timer = nil })
		_, err := RunNonBlocking[int](env.d, 4, Clockwise, nil)
		assert.ErrorIs(t, err, ErrNoTimer)
		assert.ErrorIs(t, err, ConfigurationError)
	})
	t.Run("no step pin", func(t *testing.T) {
		env := newTestDriver(t, func(c *Config) { c.Pins.Step = nil })
		_, err := RunNonBlocking[int](env.d, 4, Clockwise, nil)
		assert.ErrorIs(t, err, ErrPinMissing)
		assert.False(t, env.d.Active())
		assert.False(t, env.timer.Armed())
	})
	t.Run("negative pulses", func(t *testing.T) {
		env := newTestDriver(t)
		_, err := RunNonBlocking[int](env.d, -2, Clockwise, nil)
		assert.ErrorIs(t, err, ErrInvalidBound)
	})
	t.Run("revolutions past max int", func(t *testing.T) {
		env := newTestDriver(t)
		req, err := NewRunRequest[int](Revolutions(1e18), Clockwise, nil)
		require.NoError(t, err)
		_, err = StartRun(env.d, req)
		assert.ErrorIs(t, err, ErrInvalidBound)
		assert.False(t, env.d.Active())
		assert.False(t, env.timer.Armed())
	})
}

func TestTimerTuningShortensPeriod(t *testing.T) {
	env := newTestDriver(t, func(c *Config) {
		c.TimerTuning = Tuning{Offset: 250 * time.Microsecond}
	})
	_, err := RunNonBlocking[int](env.d, 2, Clockwise, nil)
	require.NoError(t, err)
	assert.Equal(t, time.Millisecond, env.timer.Period())
}

func TestModeChangeAppliesToNextRun(t *testing.T) {
	env := newTestDriver(t)
	_, err := RunNonBlocking[int](env.d, 2, Clockwise, nil)
	require.NoError(t, err)

	require.NoError(t, env.d.SetMode(ModeHalf))
	assert.Equal(t, testPulsePeriod, env.timer.Period(), "running tick rate is fixed at start")

	env.sched.Advance(3 * testPulsePeriod)
	require.False(t, env.d.Active())

	_, err = RunNonBlocking[int](env.d, 2, Clockwise, nil)
	require.NoError(t, err)
	assert.Equal(t, testPulsePeriod/2, env.timer.Period())
}

func TestTickerTimerDrivesRun(t *testing.T) {
	env := newTestDriver(t, func(c *Config) {
		c.Timer = NewTickerTimer()
		c.Clock = NewSystemClock()
	})
	res, err := RunNonBlocking(env.d, 6, Clockwise, stepsDone)
	require.NoError(t, err)
	waitFinished(t, res)

	assert.Equal(t, 6, res.PulsesDone())
	v, _ := res.CallbackResult()
	assert.Equal(t, 3, v)
}

func TestTickerTimerRejectsDoubleArm(t *testing.T) {
	tt := NewTickerTimer()
	require.NoError(t, tt.Arm(physic.KiloHertz, func() {}))
	defer tt.Disarm()
	assert.ErrorIs(t, tt.Arm(physic.KiloHertz, func() {}), ErrTimerArmed)
	assert.ErrorIs(t, tt.Arm(0, func() {}), ErrInvalidTiming)
	assert.True(t, tt.Armed())
}
