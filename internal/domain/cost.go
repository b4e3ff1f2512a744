package domain

import (
	"fmt"
	"time"
)

// HalfHour is the billing unit; cost values are points per 30 minutes.
const HalfHour = 30 * time.Minute

// NightWindow is a daily time range in a given location, e.g. 00:00-06:00.
type NightWindow struct {
	Start time.Duration // offset from local midnight
	End   time.Duration
	Loc   *time.Location
}

// ParseClock converts "HH:MM" to an offset from midnight.
func ParseClock(s string) (time.Duration, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("parse clock %q: %w", s, err)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

func NewNightWindow(start, end string, loc *time.Location) (NightWindow, error) {
	s, err := ParseClock(start)
	if err != nil {
		return NightWindow{}, err
	}
	e, err := ParseClock(end)
	if err != nil {
		return NightWindow{}, err
	}
	if loc == nil {
		loc = time.UTC
	}
	return NightWindow{Start: s, End: e, Loc: loc}, nil
}

// Overlaps reports whether [from, to) intersects the window on any day.
// Windows that wrap midnight (Start > End) are handled.
func (w NightWindow) Overlaps(from, to time.Time) bool {
	if !to.After(from) || w.Start == w.End {
		return false
	}
	loc := w.Loc
	if loc == nil {
		loc = time.UTC
	}
	f := from.In(loc)
	day := time.Date(f.Year(), f.Month(), f.Day(), 0, 0, 0, 0, loc).AddDate(0, 0, -1)
	for !day.After(to) {
		ws := day.Add(w.Start)
		we := day.Add(w.End)
		if w.End < w.Start {
			we = we.AddDate(0, 0, 1)
		}
		if from.Before(we) && to.After(ws) {
			return true
		}
		day = day.AddDate(0, 0, 1)
	}
	return false
}

// MeetingCost is the breakdown of what a guest owes for one cast.
type MeetingCost struct {
	Base      int64 `json:"base"`
	Extension int64 `json:"extension"`
	Night     int64 `json:"night"`
	Total     int64 `json:"total"`
	Overtime  int   `json:"overtime_units"`
}

type CostInput struct {
	CostValue    int64 // per half hour
	CostExtended int64 // per started half hour of overtime
	NightFund    int64
	PeriodHours  int
	StartedAt    time.Time
	EndedAt      time.Time
	Night        NightWindow
}

// ComputeMeetingCost prices one cast's meeting: the booked period, each
// started half hour beyond it, and a flat night fund when the meeting
// touches the night window.
func ComputeMeetingCost(in CostInput) MeetingCost {
	var c MeetingCost
	c.Base = in.CostValue * int64(in.PeriodHours) * 2
	predicted := in.StartedAt.Add(time.Duration(in.PeriodHours) * time.Hour)
	if in.EndedAt.After(predicted) {
		over := in.EndedAt.Sub(predicted)
		units := int((over + HalfHour - 1) / HalfHour)
		c.Overtime = units
		c.Extension = in.CostExtended * int64(units)
	}
	if in.NightFund > 0 && in.Night.Overlaps(in.StartedAt, in.EndedAt) {
		c.Night = in.NightFund
	}
	c.Total = c.Base + c.Extension + c.Night
	return c
}

// BackAmount is the cast's share of a payment for the given back ratio (percent).
func BackAmount(amount int64, ratio int) int64 {
	if ratio <= 0 {
		return 0
	}
	if ratio > 100 {
		ratio = 100
	}
	return amount * int64(ratio) / 100
}
