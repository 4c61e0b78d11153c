package testsupport

import (
	"sort"
	"sync"
	"time"
)

// ManualScheduler runs callbacks against a logical clock that only moves
// when Advance is called. Its Schedule method matches editor.ScheduleFunc.
type ManualScheduler struct {
	mu     sync.Mutex
	now    time.Duration
	seq    uint64
	timers []*manualTimer
}

type manualTimer struct {
	due       time.Duration
	seq       uint64
	fn        func()
	cancelled bool
}

func NewManualScheduler() *ManualScheduler {
	return &ManualScheduler{}
}

// Schedule registers fn to run once the clock passes delay from now. The
// returned function cancels it.
func (s *ManualScheduler) Schedule(delay time.Duration, fn func()) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	timer := &manualTimer{due: s.now + delay, seq: s.seq, fn: fn}
	s.timers = append(s.timers, timer)
	return func() {
		s.mu.Lock()
		timer.cancelled = true
		s.mu.Unlock()
	}
}

// Advance moves the clock forward by d and fires every due callback in
// deadline order. Callbacks run without the scheduler lock held, so they
// may schedule further work.
func (s *ManualScheduler) Advance(d time.Duration) {
	s.mu.Lock()
	target := s.now + d
	s.mu.Unlock()

	for {
		timer := s.popDue(target)
		if timer == nil {
			break
		}
		timer.fn()
	}

	s.mu.Lock()
	s.now = target
	s.mu.Unlock()
}

// Pending reports how many callbacks are scheduled and not cancelled.
func (s *ManualScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, timer := range s.timers {
		if !timer.cancelled {
			count++
		}
	}
	return count
}

// Elapsed returns the logical time advanced so far.
func (s *ManualScheduler) Elapsed() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}

func (s *ManualScheduler) popDue(target time.Duration) *manualTimer {
	s.mu.Lock()
	defer s.mu.Unlock()

	live := s.timers[:0]
	for _, timer := range s.timers {
		if !timer.cancelled {
			live = append(live, timer)
		}
	}
	s.timers = live
	if len(s.timers) == 0 {
		return nil
	}
	sort.Slice(s.timers, func(i, j int) bool {
		if s.timers[i].due != s.timers[j].due {
			return s.timers[i].due < s.timers[j].due
		}
		return s.timers[i].seq < s.timers[j].seq
	})
	next := s.timers[0]
	if next.due > target {
		return nil
	}
	s.timers = s.timers[1:]
	if next.due > s.now {
		s.now = next.due
	}
	return next
}
