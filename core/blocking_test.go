package core

import (
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type delayRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (r *delayRecorder) delay(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.delays = append(r.delays, d)
}

// take returns the recorded delays and starts over.
func (r *delayRecorder) take() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.delays
	r.delays = nil
	return out
}

func TestRunBlocking(t *testing.T) {
	rec := &delayRecorder{}
	env := newTestDriver(t, func(c *Config) {
		c.Delay = rec.delay
		c.BlockingTuning = DefaultBlockingTuning
	})

	require.NoError(t, env.d.RunBlocking(25, Clockwise))
	assert.Equal(t, 50, env.pins.step.Toggles())
	assert.True(t, env.pins.dir.Get())
	require.Len(t, rec.delays, 50)
	for _, d := range rec.delays {
		assert.Equal(t, testPulsePeriod-DefaultBlockingOffset, d)
	}
	assert.False(t, env.d.Active())
}

func TestRunBlockingRevolutions(t *testing.T) {
	env := newTestDriver(t)
	require.NoError(t, env.d.SetMode(ModeHalf))
	require.NoError(t, env.d.RunBlockingRevolutions(0.25, CounterClockwise))
	assert.Equal(t, 200, env.pins.step.Toggles())
	assert.False(t, env.pins.dir.Get())

	assert.ErrorIs(t, env.d.RunBlockingRevolutions(-1, Clockwise), ErrInvalidBound)
}

func TestRunBlockingRejectsOverflow(t *testing.T) {
	env := newTestDriver(t)

	err := env.d.RunBlocking(math.MaxInt/PulsesPerStep+1, Clockwise)
	assert.ErrorIs(t, err, ErrInvalidBound)
	assert.Equal(t, ConfigurationError, CodeOf(err))

	// 1e18 turns of 200 steps is past MaxInt pulses; it must not wrap
	// into a short successful run.
	err = env.d.RunBlockingRevolutions(1e18, Clockwise)
	assert.ErrorIs(t, err, ErrInvalidBound)

	assert.Zero(t, env.pins.step.Toggles())
	assert.False(t, env.d.Active())
}

func TestRunBlockingRevolutionsUsesOneMode(t *testing.T) {
	rec := &delayRecorder{}
	env := newTestDriver(t, func(c *Config) { c.Delay = rec.delay })

	stop := make(chan struct{})
	flipped := make(chan struct{})
	go func() {
		defer close(flipped)
		modes := []Mode{ModeFull, ModeHalf}
		for i := 0; ; i++ {
			select {
			case <-stop:
				return
			default:
			}
			_ = env.d.SetMode(modes[i%len(modes)])
		}
	}()

	// A turn takes 500ms whatever the mode, as long as the pulse count
	// and the delay come from the same one.
	for i := 0; i < 50; i++ {
		require.NoError(t, env.d.RunBlockingRevolutions(1, Clockwise))
		delays := rec.take()
		require.NotEmpty(t, delays)
		assert.Equal(t, 500*time.Millisecond, time.Duration(len(delays))*delays[0], "run %d", i)
	}
	close(stop)
	<-flipped
}

func TestRunBlockingRejects(t *testing.T) {
	env := newTestDriver(t)
	assert.ErrorIs(t, env.d.RunBlocking(-1, Clockwise), ErrInvalidBound)
	assert.ErrorIs(t, env.d.RunBlocking(1, Direction(2)), ErrInvalidDirection)

	noStep := newTestDriver(t, func(c *Config) { c.Pins.Step = nil })
	err := noStep.d.RunBlocking(1, Clockwise)
	assert.ErrorIs(t, err, ErrPinMissing)
	assert.ErrorIs(t, err, ConfigurationError)
	assert.False(t, noStep.d.Active())
}

func TestBlockingRunCannotBeCancelled(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	env := newTestDriver(t, func(c *Config) {
		c.Delay = func(time.Duration) {
			once.Do(func() { close(entered) })
			<-release
		}
	})

	done := make(chan error, 1)
	go func() { done <- env.d.RunBlocking(3, Clockwise) }()
	<-entered

	assert.True(t, env.d.Active())
	assert.False(t, env.d.Cancel())
	_, err := RunNonBlocking[int](env.d, 2, Clockwise, nil)
	assert.ErrorIs(t, err, ErrRunActive)

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, 6, env.pins.step.Toggles())
	assert.False(t, env.d.Active())
}
