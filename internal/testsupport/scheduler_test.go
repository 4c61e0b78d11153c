package testsupport

import (
	"testing"
	"time"
)

func TestManualSchedulerFiresInOrder(t *testing.T) {
	s := NewManualScheduler()
	var fired []string
	s.Schedule(300*time.Millisecond, func() { fired = append(fired, "late") })
	s.Schedule(100*time.Millisecond, func() { fired = append(fired, "early") })

	s.Advance(200 * time.Millisecond)
	if len(fired) != 1 || fired[0] != "early" {
		t.Fatalf("unexpected fired set %v", fired)
	}
	s.Advance(100 * time.Millisecond)
	if len(fired) != 2 || fired[1] != "late" {
		t.Fatalf("unexpected fired set %v", fired)
	}
	if s.Pending() != 0 {
		t.Fatalf("expected nothing pending")
	}
	if s.Elapsed() != 300*time.Millisecond {
		t.Fatalf("unexpected elapsed %v", s.Elapsed())
	}
}

func TestManualSchedulerCancel(t *testing.T) {
	s := NewManualScheduler()
	called := false
	cancel := s.Schedule(time.Second, func() { called = true })
	if s.Pending() != 1 {
		t.Fatalf("expected one pending callback")
	}
	cancel()
	s.Advance(2 * time.Second)
	if called {
		t.Fatalf("cancelled callback fired")
	}
}

func TestManualSchedulerNestedSchedule(t *testing.T) {
	s := NewManualScheduler()
	count := 0
	s.Schedule(10*time.Millisecond, func() {
		count++
		s.Schedule(10*time.Millisecond, func() { count++ })
	})
	s.Advance(25 * time.Millisecond)
	if count != 2 {
		t.Fatalf("expected nested callback to fire, count=%d", count)
	}
}
