package clock

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

var ErrTimeRegression = errors.New("clock cannot advance backwards")

// TimerHandler fires when simulated time reaches the scheduled instant. The
// argument is the instant the timer was scheduled for, not the clock's
// destination time.
type TimerHandler func(at time.Time)

type timer struct {
	name string
	at   time.Time
	seq  uint64
	fn   TimerHandler
}

// Clock is the single authoritative source of simulated time. It advances
// only when driven by incoming data events. Scheduled callbacks fire in time
// order during Advance, with schedule order breaking ties.
type Clock struct {
	now    time.Time
	timers []*timer
	seq    uint64
}

func New(start time.Time) *Clock {
	return &Clock{now: start}
}

func (c *Clock) Now() time.Time {
	return c.now
}

// Advance moves simulated time forward, firing due timers in order before
// settling on the target instant. Moving backwards fails, out-of-order input
// would silently break determinism.
func (c *Clock) Advance(to time.Time) error {
	if to.Before(c.now) {
		return fmt.Errorf("%w: %s -> %s", ErrTimeRegression, c.now.Format(time.RFC3339Nano), to.Format(time.RFC3339Nano))
	}

	for {
		next := c.popDue(to)
		if next == nil {
			break
		}
		if next.at.After(c.now) {
			c.now = next.at
		}
		next.fn(next.at)
	}

	c.now = to
	return nil
}

// ScheduleAt registers a named timer. Scheduling in the past fires on the
// next Advance. Re-using a name replaces the pending timer.
func (c *Clock) ScheduleAt(name string, at time.Time, fn TimerHandler) {
	c.CancelTimer(name)
	c.seq++
	c.timers = append(c.timers, &timer{name: name, at: at, seq: c.seq, fn: fn})
	sort.SliceStable(c.timers, func(i, j int) bool {
		if c.timers[i].at.Equal(c.timers[j].at) {
			return c.timers[i].seq < c.timers[j].seq
		}
		return c.timers[i].at.Before(c.timers[j].at)
	})
}

func (c *Clock) CancelTimer(name string) {
	for idx, t := range c.timers {
		if t.name == name {
			c.timers = append(c.timers[:idx], c.timers[idx+1:]...)
			return
		}
	}
}

func (c *Clock) TimerCount() int {
	return len(c.timers)
}

// Reset drops all timers and rewinds to start. Used between backtest runs.
func (c *Clock) Reset(start time.Time) {
	c.now = start
	c.timers = nil
	c.seq = 0
}

func (c *Clock) popDue(to time.Time) *timer {
	if len(c.timers) == 0 || c.timers[0].at.After(to) {
		return nil
	}
	next := c.timers[0]
	c.timers = c.timers[1:]
	return next
}
