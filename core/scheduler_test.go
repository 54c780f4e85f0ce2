package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/physic"
)

func TestSchedulerOrder(t *testing.T) {
	s := NewScheduler()
	var fired []int
	add := func(id int, at uint64) {
		s.Schedule(&Timer{WakeTime: at, Handler: func(*Timer) uint8 {
			fired = append(fired, id)
			return SF_DONE
		}})
	}
	add(1, 300)
	add(2, 100)
	add(3, 200)
	add(4, 100)
	assert.Equal(t, 4, s.Pending())

	s.Advance(250 * time.Microsecond)
	assert.Equal(t, []int{2, 4, 3}, fired)
	assert.Equal(t, uint64(250), s.Now())

	s.Advance(time.Millisecond)
	assert.Equal(t, []int{2, 4, 3, 1}, fired)
	assert.Zero(t, s.Pending())
	assert.Equal(t, uint32(1), s.Millis())
}

func TestSchedulerReschedule(t *testing.T) {
	s := NewScheduler()
	n := 0
	s.Schedule(&Timer{WakeTime: 10, Handler: func(t *Timer) uint8 {
		n++
		if n == 3 {
			return SF_DONE
		}
		t.WakeTime += 10
		return SF_RESCHEDULE
	}})
	s.Advance(time.Millisecond)
	assert.Equal(t, 3, n)
}

func TestSchedTimerPeriodic(t *testing.T) {
	s := NewScheduler()
	st := s.NewTimer()
	ticks := 0
	require.NoError(t, st.Arm(physic.KiloHertz, func() { ticks++ }))
	assert.Equal(t, time.Millisecond, st.Period())
	assert.ErrorIs(t, st.Arm(physic.KiloHertz, func() {}), ErrTimerArmed)

	s.Advance(5500 * time.Microsecond)
	assert.Equal(t, 5, ticks)

	st.Disarm()
	assert.False(t, st.Armed())
	s.Advance(10 * time.Millisecond)
	assert.Equal(t, 5, ticks)
}

func TestSchedTimerDisarmInsideTick(t *testing.T) {
	s := NewScheduler()
	st := s.NewTimer()
	ticks := 0
	require.NoError(t, st.Arm(physic.KiloHertz, func() {
		ticks++
		if ticks == 2 {
			st.Disarm()
		}
	}))
	s.Advance(10 * time.Millisecond)
	assert.Equal(t, 2, ticks)
	assert.Zero(t, s.Pending())
}

func TestSchedTimerRejectsZeroFrequency(t *testing.T) {
	st := NewScheduler().NewTimer()
	assert.ErrorIs(t, st.Arm(0, func() {}), ErrInvalidTiming)
	assert.False(t, st.Armed())
}

func TestRunUntil(t *testing.T) {
	s := NewScheduler()
	assert.True(t, s.RunUntil(func() bool { return s.Now() >= 3000 }, time.Millisecond, time.Second))
	assert.False(t, s.RunUntil(func() bool { return false }, time.Millisecond, 5*time.Millisecond))
}
