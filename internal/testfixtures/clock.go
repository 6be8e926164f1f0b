package testfixtures

import (
	"sync"
	"time"

	"github.com/example/meeting-coordinator/internal/meeting"
)

// Clock is a manually driven time source. Services, stores and the chat
// rate limiter all read it through NowFunc.
type Clock struct {
	mu      sync.Mutex
	current time.Time
}

// NewClock starts at start, or at ReferenceTime when start is zero.
func NewClock(start time.Time) *Clock {
	if start.IsZero() {
		start = ReferenceTime()
	}
	return &Clock{current: start.UTC()}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// NowFunc returns Now for injection; a nil clock yields time.Now.
func (c *Clock) NowFunc() func() time.Time {
	if c == nil {
		return time.Now
	}
	return c.Now
}

// Advance moves the clock forward by d and returns the new time.
func (c *Clock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = c.current.Add(d)
	return c.current
}

// AdvanceDays moves to the same time of day n calendar days later.
func (c *Clock) AdvanceDays(n int) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = c.current.AddDate(0, 0, n)
	return c.current
}

// Date returns the current calendar date in meeting.DateLayout.
func (c *Clock) Date() string {
	return c.Now().Format(meeting.DateLayout)
}

// SetDate moves the clock to date, keeping the time of day. It panics on a
// malformed date since fixtures are written by hand.
func (c *Clock) SetDate(date string) {
	day, err := time.Parse(meeting.DateLayout, date)
	if err != nil {
		panic("testfixtures: " + err.Error())
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	h, m, s := c.current.Clock()
	c.current = time.Date(day.Year(), day.Month(), day.Day(), h, m, s, c.current.Nanosecond(), time.UTC)
}
