package editor

import (
	"testing"
	"time"

	"github.com/zzdxppq/shop-video-scout/internal/testsupport"
)

func TestDebouncerCoalesces(t *testing.T) {
	sched := testsupport.NewManualScheduler()
	calls := 0
	d := NewDebouncer(sched.Schedule, 300*time.Millisecond, func() { calls++ })

	for i := 0; i < 5; i++ {
		d.Trigger()
		sched.Advance(100 * time.Millisecond)
	}
	if calls != 0 {
		t.Fatalf("expected no call during the burst, got %d", calls)
	}
	sched.Advance(300 * time.Millisecond)
	if calls != 1 {
		t.Fatalf("expected one coalesced call, got %d", calls)
	}
	if d.Pending() {
		t.Fatalf("nothing should be pending")
	}
}

func TestDebouncerFlushAndCancel(t *testing.T) {
	sched := testsupport.NewManualScheduler()
	calls := 0
	d := NewDebouncer(sched.Schedule, time.Second, func() { calls++ })

	if d.Flush() {
		t.Fatalf("flush without trigger should do nothing")
	}
	d.Trigger()
	if !d.Flush() || calls != 1 {
		t.Fatalf("flush should run the pending call")
	}
	sched.Advance(2 * time.Second)
	if calls != 1 {
		t.Fatalf("flushed call must not fire again")
	}

	d.Trigger()
	if !d.Cancel() {
		t.Fatalf("cancel should report the pending call")
	}
	sched.Advance(2 * time.Second)
	if calls != 1 {
		t.Fatalf("cancelled call fired")
	}
	if sched.Pending() != 0 {
		t.Fatalf("expected scheduler to be empty")
	}
}
