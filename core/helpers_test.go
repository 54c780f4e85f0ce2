package core

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
)

// fakePin records every write.
type fakePin struct {
	mu      sync.Mutex
	level   bool
	sets    int
	toggles int
}

func (p *fakePin) Set(high bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.level = high
	p.sets++
}

func (p *fakePin) Get() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.level
}

func (p *fakePin) Toggle() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.level = !p.level
	p.toggles++
}

func (p *fakePin) Toggles() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.toggles
}

func (p *fakePin) Sets() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sets
}

type fakeInput struct{ level bool }

func (p *fakeInput) Get() bool { return p.level }

type testPins struct {
	step, dir, reset, sleep, enable *fakePin
	mode                            [3]*fakePin
	fault                           *fakeInput
}

func newTestPins() *testPins {
	return &testPins{
		step:   &fakePin{},
		dir:    &fakePin{},
		reset:  &fakePin{},
		sleep:  &fakePin{},
		enable: &fakePin{},
		mode:   [3]*fakePin{{}, {}, {}},
		fault:  &fakeInput{level: true},
	}
}

func (tp *testPins) Pins() Pins {
	return Pins{
		Step:   tp.step,
		Dir:    tp.dir,
		Reset:  tp.reset,
		Sleep:  tp.sleep,
		Enable: tp.enable,
		Mode:   [3]OutputPin{tp.mode[0], tp.mode[1], tp.mode[2]},
		Fault:  tp.fault,
	}
}

func (tp *testPins) modeLevels() [3]bool {
	return [3]bool{tp.mode[0].Get(), tp.mode[1].Get(), tp.mode[2].Get()}
}

type testEnv struct {
	d     *Driver
	pins  *testPins
	sched *Scheduler
	timer *SchedTimer
	hook  *logtest.Hook
}

// newTestDriver builds a driver at FULL step, 200 steps/rev, 500ms per
// revolution: 1250us between pulses, 800Hz ticks.
func newTestDriver(t *testing.T, mutate ...func(*Config)) *testEnv {
	t.Helper()
	logger, hook := logtest.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	env := &testEnv{
		pins:  newTestPins(),
		sched: NewScheduler(),
		hook:  hook,
	}
	env.timer = env.sched.NewTimer()

	cfg := Config{
		Pins:                   env.pins.Pins(),
		Mode:                   ModeFull,
		FullStepsPerRevolution: 200,
		RevolutionTimeMS:       500,
		Timer:                  env.timer,
		Clock:                  env.sched,
		Delay:                  func(time.Duration) {},
		Logger:                 logger,
	}
	for _, m := range mutate {
		m(&cfg)
	}
	d, err := New(cfg)
	require.NoError(t, err)
	env.d = d
	return env
}

const testPulsePeriod = 1250 * time.Microsecond

// recordingSleeper returns at once and records every requested delay.
type recordingSleeper struct {
	mu     sync.Mutex
	delays []time.Duration
	unit   time.Duration
	// gate, when set, is received from before each sleep returns.
	gate chan struct{}
}

func (s *recordingSleeper) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.delays = append(s.delays, d)
	gate := s.gate
	s.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return ctx.Err()
}

func (s *recordingSleeper) Resolution() time.Duration {
	if s.unit == 0 {
		return time.Microsecond
	}
	return s.unit
}

func (s *recordingSleeper) Delays() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.delays...)
}

func waitFinished[T any](t *testing.T, r *RunResult[T]) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, r.Wait(ctx), "run did not finish")
}
