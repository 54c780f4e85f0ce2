package core

import (
	"sync"
	"time"

	"periph.io/x/conn/v3/physic"
)

// Timer is an event in a Scheduler's sorted list. WakeTime is in
// microseconds of virtual time.
type Timer struct {
	WakeTime uint64
	Handler  func(*Timer) uint8
	Next     *Timer
}

const (
	SF_DONE       = 0
	SF_RESCHEDULE = 1
)

// Scheduler is a virtual-time timer list: time only moves when Advance is
// called, and due timers fire in WakeTime order. Tests and the simulator
// use it to run timer strategies deterministically. It also implements
// Clock.
type Scheduler struct {
	mu   sync.Mutex
	now  uint64 // microseconds
	list *Timer
}

// NewScheduler returns a scheduler at virtual time zero.
func NewScheduler() *Scheduler {
	return &Scheduler{}
}

// Now returns the virtual time in microseconds.
func (s *Scheduler) Now() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}

// Millis implements Clock.
func (s *Scheduler) Millis() uint32 {
	return uint32(s.Now() / 1000)
}

// Elapsed returns the virtual time as a duration.
func (s *Scheduler) Elapsed() time.Duration {
	return time.Duration(s.Now()) * time.Microsecond
}

// Schedule adds t to the list.
func (s *Scheduler) Schedule(t *Timer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.insert(t)
}

// insert keeps the list sorted by WakeTime; equal wake times keep
// insertion order.
func (s *Scheduler) insert(t *Timer) {
	if s.list == nil || t.WakeTime < s.list.WakeTime {
		t.Next = s.list
		s.list = t
		return
	}

	cur := s.list
	for cur.Next != nil && cur.Next.WakeTime <= t.WakeTime {
		cur = cur.Next
	}
	t.Next = cur.Next
	cur.Next = t
}

func (s *Scheduler) remove(t *Timer) {
	if s.list == t {
		s.list = t.Next
		t.Next = nil
		return
	}
	for cur := s.list; cur != nil; cur = cur.Next {
		if cur.Next == t {
			cur.Next = t.Next
			t.Next = nil
			return
		}
	}
}

// Pending returns the number of scheduled timers.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for cur := s.list; cur != nil; cur = cur.Next {
		n++
	}
	return n
}

// Advance moves virtual time forward by d, firing every timer that falls
// due on the way. Handlers run without the scheduler lock held so they may
// schedule or cancel timers.
func (s *Scheduler) Advance(d time.Duration) {
	s.mu.Lock()
	target := s.now + uint64(d/time.Microsecond)
	for s.list != nil && s.list.WakeTime <= target {
		t := s.list
		s.list = t.Next
		t.Next = nil
		if t.WakeTime > s.now {
			s.now = t.WakeTime
		}
		s.mu.Unlock()

		result := t.Handler(t)

		s.mu.Lock()
		if result == SF_RESCHEDULE {
			s.insert(t)
		}
	}
	s.now = target
	s.mu.Unlock()
}

// RunUntil advances in steps of d until cond returns true or limit
// virtual time has passed. It reports whether cond was met.
func (s *Scheduler) RunUntil(cond func() bool, d, limit time.Duration) bool {
	start := s.Elapsed()
	for !cond() {
		if s.Elapsed()-start >= limit {
			return false
		}
		s.Advance(d)
	}
	return true
}

// NewTimer returns a PeriodicTimer driven by this scheduler.
func (s *Scheduler) NewTimer() *SchedTimer {
	st := &SchedTimer{s: s}
	st.t.Handler = st.handle
	return st
}

// SchedTimer is a PeriodicTimer on a Scheduler. Its fields are guarded by
// the scheduler's lock.
type SchedTimer struct {
	s      *Scheduler
	t      Timer
	period uint64
	fn     func()
	armed  bool
	gen    uint32
}

func (st *SchedTimer) Arm(f physic.Frequency, fn func()) error {
	if f <= 0 {
		return configErr("arm timer", ErrInvalidTiming, "frequency "+f.String())
	}
	period := uint64(f.Period() / time.Microsecond)
	if period == 0 {
		return configErr("arm timer", ErrInvalidTiming, "frequency "+f.String())
	}

	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	if st.armed {
		return usageErr("arm timer", ErrTimerArmed, "")
	}
	st.armed = true
	st.gen++
	st.period = period
	st.fn = fn
	st.t.WakeTime = st.s.now + period
	st.s.insert(&st.t)
	return nil
}

func (st *SchedTimer) Disarm() {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	if !st.armed {
		return
	}
	st.armed = false
	st.s.remove(&st.t)
}

// Armed reports whether the timer is scheduled.
func (st *SchedTimer) Armed() bool {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	return st.armed
}

// Period returns the armed tick period.
func (st *SchedTimer) Period() time.Duration {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	return time.Duration(st.period) * time.Microsecond
}

func (st *SchedTimer) handle(t *Timer) uint8 {
	st.s.mu.Lock()
	gen, fn := st.gen, st.fn
	st.s.mu.Unlock()

	fn()

	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	// Disarmed inside fn, or disarmed and re-armed (which already
	// scheduled the timer again).
	if !st.armed || st.gen != gen {
		return SF_DONE
	}
	t.WakeTime += st.period
	return SF_RESCHEDULE
}
