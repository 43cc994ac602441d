package scheduler

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// gridRef is a Monday at midnight. Grid checks walk a year from it so that
// day-of-week and month fields are all visited.
var gridRef = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

const gridDays = 366

// MinuteGrid answers which clock minutes a cron schedule fires on.
type MinuteGrid struct {
	spec  string
	sched cron.Schedule
}

// ParseMinuteGrid parses a cron-kind schedule. Interval schedules are
// rejected: "@every" counts from process start, so its ticks drift off
// the clock minutes users pick.
func ParseMinuteGrid(schedule string) (MinuteGrid, error) {
	ps, err := ParseSchedule(schedule)
	if err != nil {
		return MinuteGrid{}, err
	}
	if ps.Kind != SpecCron {
		return MinuteGrid{}, fmt.Errorf("schedule %q is an interval; use a cron expression such as %q", schedule, "0 */30 * * * *")
	}
	sched, err := cronParser.Parse(ps.Cron)
	if err != nil {
		return MinuteGrid{}, fmt.Errorf("invalid cron %q: %w", ps.Cron, err)
	}
	if every, ok := sched.(cron.ConstantDelaySchedule); ok {
		return MinuteGrid{}, fmt.Errorf("schedule %q repeats every %s from start; use a cron expression", schedule, every.Delay)
	}
	return MinuteGrid{spec: ps.Cron, sched: sched}, nil
}

func (g MinuteGrid) String() string { return g.spec }

// Fires reports whether the schedule fires during hour:minute on at least
// one day of the year.
func (g MinuteGrid) Fires(hour, minute int) bool {
	if g.sched == nil {
		return false
	}
	offset := time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute
	for d := 0; d < gridDays; d++ {
		at := gridRef.AddDate(0, 0, d).Add(offset)
		n := g.sched.Next(at.Add(-time.Second))
		if !n.IsZero() && n.Before(at.Add(time.Minute)) {
			return true
		}
	}
	return false
}

// NextSlot returns the first minute at or after hour:minute, within a day,
// that the schedule fires on. ok is false when there is none.
func (g MinuteGrid) NextSlot(hour, minute int) (h, m int, ok bool) {
	if g.sched == nil {
		return 0, 0, false
	}
	at := gridRef.Add(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute)
	n := g.sched.Next(at.Add(-time.Second))
	if n.IsZero() || !n.Before(at.Add(24*time.Hour)) {
		return 0, 0, false
	}
	return n.Hour(), n.Minute(), true
}
