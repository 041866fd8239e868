package tool

import (
	"sync"
	"time"
)

// Clock is the single source of "now" for business rules.
// Dates are represented as UTC midnight of the calendar day in the clock's location.
type Clock interface {
	Now() time.Time
	Today() time.Time
	Location() *time.Location
}

type SystemClock struct {
	loc *time.Location
}

func NewSystemClock(loc *time.Location) *SystemClock {
	if loc == nil {
		loc = time.UTC
	}
	return &SystemClock{loc: loc}
}

// Now returns the current instant in UTC truncated to the second.
func (c *SystemClock) Now() time.Time {
	return time.Now().UTC().Truncate(time.Second)
}

func (c *SystemClock) Today() time.Time {
	return DateOf(time.Now(), c.loc)
}

func (c *SystemClock) Location() *time.Location { return c.loc }

// FixedClock is a manually advanced clock for tests and one-off job runs.
type FixedClock struct {
	mu  sync.RWMutex
	now time.Time
	loc *time.Location
}

func NewFixedClock(now time.Time, loc *time.Location) *FixedClock {
	if loc == nil {
		loc = time.UTC
	}
	return &FixedClock{now: now.UTC().Truncate(time.Second), loc: loc}
}

func (c *FixedClock) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.now
}

func (c *FixedClock) Today() time.Time {
	return DateOf(c.Now(), c.loc)
}

func (c *FixedClock) Location() *time.Location { return c.loc }

func (c *FixedClock) Set(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now.UTC().Truncate(time.Second)
}

func (c *FixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Date builds a calendar date value.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// DateOf returns the calendar day of t as observed in loc.
func DateOf(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	local := t.In(loc)
	return Date(local.Year(), local.Month(), local.Day())
}

// DaysBetween returns to - from in whole calendar days.
func DaysBetween(from, to time.Time) int {
	f := Date(from.Year(), from.Month(), from.Day())
	t := Date(to.Year(), to.Month(), to.Day())
	return int(t.Sub(f).Hours() / 24)
}

// MonthsBetween counts calendar months between the first days of the two months.
func MonthsBetween(start, end time.Time) int {
	return (end.Year()-start.Year())*12 + int(end.Month()) - int(start.Month())
}
