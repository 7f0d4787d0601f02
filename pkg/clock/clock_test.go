package clock

import (
	"errors"
	"testing"
	"time"
)

var start = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func TestClock_AdvanceMovesForward(t *testing.T) {
	c := New(start)

	target := start.Add(time.Second)
	if err := c.Advance(target); err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if !c.Now().Equal(target) {
		t.Errorf("Now = %s; want %s", c.Now(), target)
	}
}

func TestClock_AdvanceBackwardsFails(t *testing.T) {
	c := New(start)
	_ = c.Advance(start.Add(time.Minute))

	err := c.Advance(start.Add(time.Second))
	if !errors.Is(err, ErrTimeRegression) {
		t.Errorf("Advance backwards = %v; want ErrTimeRegression", err)
	}
	if !c.Now().Equal(start.Add(time.Minute)) {
		t.Errorf("Now changed after failed Advance: %s", c.Now())
	}
}

func TestClock_AdvanceToSameInstant(t *testing.T) {
	c := New(start)
	if err := c.Advance(start); err != nil {
		t.Errorf("Advance to current instant = %v; want nil", err)
	}
}

func TestClock_TimersFireInTimeOrder(t *testing.T) {
	c := New(start)

	var fired []string
	c.ScheduleAt("second", start.Add(2*time.Second), func(at time.Time) {
		fired = append(fired, "second")
	})
	c.ScheduleAt("first", start.Add(time.Second), func(at time.Time) {
		fired = append(fired, "first")
	})

	if err := c.Advance(start.Add(time.Minute)); err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if len(fired) != 2 || fired[0] != "first" || fired[1] != "second" {
		t.Errorf("fired = %v; want [first second]", fired)
	}
	if c.TimerCount() != 0 {
		t.Errorf("TimerCount = %d; want 0", c.TimerCount())
	}
}

func TestClock_TimerTiesFireInScheduleOrder(t *testing.T) {
	c := New(start)
	at := start.Add(time.Second)

	var fired []string
	c.ScheduleAt("a", at, func(time.Time) { fired = append(fired, "a") })
	c.ScheduleAt("b", at, func(time.Time) { fired = append(fired, "b") })
	c.ScheduleAt("c", at, func(time.Time) { fired = append(fired, "c") })

	_ = c.Advance(at)
	if len(fired) != 3 || fired[0] != "a" || fired[1] != "b" || fired[2] != "c" {
		t.Errorf("fired = %v; want [a b c]", fired)
	}
}

func TestClock_TimerSeesScheduledInstant(t *testing.T) {
	c := New(start)
	scheduled := start.Add(time.Second)

	var observedAt, observedNow time.Time
	c.ScheduleAt("t", scheduled, func(at time.Time) {
		observedAt = at
		observedNow = c.Now()
	})

	_ = c.Advance(start.Add(time.Minute))
	if !observedAt.Equal(scheduled) {
		t.Errorf("handler at = %s; want %s", observedAt, scheduled)
	}
	if !observedNow.Equal(scheduled) {
		t.Errorf("Now during handler = %s; want %s", observedNow, scheduled)
	}
}

func TestClock_ScheduleReplacesByName(t *testing.T) {
	c := New(start)

	var fired []string
	c.ScheduleAt("t", start.Add(time.Second), func(time.Time) { fired = append(fired, "old") })
	c.ScheduleAt("t", start.Add(2*time.Second), func(time.Time) { fired = append(fired, "new") })

	if c.TimerCount() != 1 {
		t.Fatalf("TimerCount = %d; want 1", c.TimerCount())
	}

	_ = c.Advance(start.Add(time.Minute))
	if len(fired) != 1 || fired[0] != "new" {
		t.Errorf("fired = %v; want [new]", fired)
	}
}

func TestClock_CancelTimer(t *testing.T) {
	c := New(start)

	fired := false
	c.ScheduleAt("t", start.Add(time.Second), func(time.Time) { fired = true })
	c.CancelTimer("t")

	_ = c.Advance(start.Add(time.Minute))
	if fired {
		t.Error("canceled timer fired")
	}
}

func TestClock_TimerScheduledInPastFiresOnNextAdvance(t *testing.T) {
	c := New(start)
	_ = c.Advance(start.Add(time.Minute))

	fired := false
	c.ScheduleAt("late", start.Add(time.Second), func(time.Time) { fired = true })

	_ = c.Advance(start.Add(time.Minute))
	if !fired {
		t.Error("past-due timer did not fire")
	}
}

func TestClock_Reset(t *testing.T) {
	c := New(start)
	_ = c.Advance(start.Add(time.Hour))
	c.ScheduleAt("t", start.Add(2*time.Hour), func(time.Time) {})

	c.Reset(start)
	if !c.Now().Equal(start) {
		t.Errorf("Now after Reset = %s; want %s", c.Now(), start)
	}
	if c.TimerCount() != 0 {
		t.Errorf("TimerCount after Reset = %d; want 0", c.TimerCount())
	}
}
