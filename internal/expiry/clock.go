package expiry

import (
	"time"

	"github.com/golang-sql/civil"
)

type Clock interface {
	Now() time.Time
}

type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

// SystemClock reads the wall clock.
var SystemClock Clock = ClockFunc(time.Now)

// Calendar maps instants to dates and minutes in the operating zone.
type Calendar struct {
	loc *time.Location
}

// NewCalendar returns a calendar for loc (UTC when nil).
func NewCalendar(loc *time.Location) Calendar {
	if loc == nil {
		loc = time.UTC
	}
	return Calendar{loc: loc}
}

func (c Calendar) Location() *time.Location {
	if c.loc == nil {
		return time.UTC
	}
	return c.loc
}

func (c Calendar) Today(now time.Time) civil.Date {
	return civil.DateOf(now.In(c.Location()))
}

// Minute truncates now to minute precision in the operating zone.
func (c Calendar) Minute(now time.Time) civil.Time {
	t := now.In(c.Location())
	return civil.Time{Hour: t.Hour(), Minute: t.Minute()}
}
