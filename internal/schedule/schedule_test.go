package schedule

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestSlotSupersession(t *testing.T) {
	clock := NewFakeClock(time.Unix(0, 0))
	slot := NewSlot(clock)

	var fired []string
	slot.Arm(8*time.Second, func() { fired = append(fired, "A") })
	clock.Advance(3 * time.Second)
	slot.Arm(8*time.Second, func() { fired = append(fired, "B") })

	clock.Advance(5 * time.Second) // A's original deadline
	if len(fired) != 0 {
		t.Fatalf("superseded timer fired: %v", fired)
	}
	clock.Advance(3 * time.Second)
	if len(fired) != 1 || fired[0] != "B" {
		t.Fatalf("fired = %v, want [B]", fired)
	}
	if slot.Armed() {
		t.Fatal("slot still armed after firing")
	}
}

func TestSlotCancel(t *testing.T) {
	clock := NewFakeClock(time.Unix(0, 0))
	slot := NewSlot(clock)
	ran := false
	slot.Arm(time.Second, func() { ran = true })
	slot.Cancel()
	clock.Advance(2 * time.Second)
	if ran {
		t.Fatal("cancelled callback ran")
	}
	if clock.Pending() != 0 {
		t.Fatalf("pending timers = %d", clock.Pending())
	}
}

func TestEveryKeepsCadenceOnError(t *testing.T) {
	clock := NewFakeClock(time.Unix(0, 0))
	calls := 0
	task := Every(context.Background(), clock, "test", 2*time.Second, func(context.Context) error {
		calls++
		return errors.New("boom")
	}, nil)
	defer task.Cancel()

	if calls != 1 {
		t.Fatalf("immediate tick: calls = %d", calls)
	}
	clock.Advance(6 * time.Second)
	if calls != 4 {
		t.Fatalf("calls = %d, want 4", calls)
	}
}

func TestEveryCancel(t *testing.T) {
	clock := NewFakeClock(time.Unix(0, 0))
	calls := 0
	task := Every(context.Background(), clock, "test", time.Second, func(context.Context) error {
		calls++
		return nil
	}, nil)
	task.Cancel()
	task.Cancel()
	<-task.Done()
	clock.Advance(5 * time.Second)
	if calls != 1 {
		t.Fatalf("calls after cancel = %d", calls)
	}
}
