// Package recurrence expands weekly rules into calendar dates.
package recurrence

import (
	"errors"
	"time"
)

// MaxWindow bounds a single expansion.
const MaxWindow = 366 * 24 * time.Hour

// Frequency represents supported recurrence intervals.
type Frequency int

const (
	// FrequencyUnspecified indicates the rule frequency is not set.
	FrequencyUnspecified Frequency = iota
	// FrequencyDaily generates a date for each day within the range.
	FrequencyDaily
	// FrequencyWeekly generates dates for the selected weekdays.
	FrequencyWeekly
)

// Rule describes which days of a window are occurrences. StartsOn and EndsOn
// are inclusive; only their calendar date in the engine location counts.
type Rule struct {
	Frequency Frequency
	Weekdays  []time.Weekday
	StartsOn  time.Time
	EndsOn    time.Time
}

// Engine expands recurrence rules into dates.
type Engine struct {
	location *time.Location
}

// NewEngine constructs an Engine that evaluates dates in loc. If loc is nil,
// UTC is used.
func NewEngine(loc *time.Location) *Engine {
	if loc == nil {
		loc = time.UTC
	}
	return &Engine{location: loc}
}

// ErrInvalidFrequency indicates the recurrence frequency is not supported.
var ErrInvalidFrequency = errors.New("recurrence: invalid frequency")

// ErrInvalidWindow indicates the window is reversed or unbounded.
var ErrInvalidWindow = errors.New("recurrence: window requires a start on or before its end")

// ErrWindowTooLarge indicates the window exceeds MaxWindow.
var ErrWindowTooLarge = errors.New("recurrence: window too large")

// Dates returns the occurrence dates of rule at midnight in the engine
// location, in chronological order.
//
// Weekly rules require weekdays and produce nothing without them; daily rules
// optionally filter by weekdays when provided.
func (e *Engine) Dates(rule Rule) ([]time.Time, error) {
	loc := e.location
	if loc == nil {
		loc = time.UTC
	}
	if rule.StartsOn.IsZero() || rule.EndsOn.IsZero() {
		return nil, ErrInvalidWindow
	}

	first := midnight(rule.StartsOn, loc)
	last := midnight(rule.EndsOn, loc)
	if last.Before(first) {
		return nil, ErrInvalidWindow
	}
	if last.Sub(first) > MaxWindow {
		return nil, ErrWindowTooLarge
	}

	weekdaySet := make(map[time.Weekday]struct{}, len(rule.Weekdays))
	for _, day := range rule.Weekdays {
		weekdaySet[day] = struct{}{}
	}

	dates := make([]time.Time, 0)
	for current := first; !current.After(last); current = current.AddDate(0, 0, 1) {
		include, err := shouldInclude(rule.Frequency, weekdaySet, current.Weekday())
		if err != nil {
			return nil, err
		}
		if include {
			dates = append(dates, current)
		}
	}
	return dates, nil
}

func midnight(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

func shouldInclude(freq Frequency, weekdaySet map[time.Weekday]struct{}, day time.Weekday) (bool, error) {
	switch freq {
	case FrequencyDaily:
		if len(weekdaySet) == 0 {
			return true, nil
		}
		_, ok := weekdaySet[day]
		return ok, nil
	case FrequencyWeekly:
		if len(weekdaySet) == 0 {
			return false, nil
		}
		_, ok := weekdaySet[day]
		return ok, nil
	case FrequencyUnspecified:
		fallthrough
	default:
		return false, ErrInvalidFrequency
	}
}
