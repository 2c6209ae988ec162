package billing

import (
	"time"

	"github.com/rotisserie/eris"
)

// Window selects the events a summary aggregates.
type Window string

const (
	WindowAll   Window = "all"
	WindowToday Window = "today"
	WindowWeek  Window = "week"
	WindowMonth Window = "month"
)

// ParseWindow accepts the window names used by the usage endpoints; empty means all.
func ParseWindow(s string) (Window, error) {
	switch Window(s) {
	case "", WindowAll:
		return WindowAll, nil
	case WindowToday, WindowWeek, WindowMonth:
		return Window(s), nil
	}
	return "", eris.Errorf("unknown usage window %q", s)
}

// Start returns the inclusive lower bound of the window in UTC. The zero time means unbounded.
// Weeks start on Monday.
func (w Window) Start(now time.Time) time.Time {
	now = now.UTC()
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	switch w {
	case WindowToday:
		return day
	case WindowWeek:
		offset := (int(day.Weekday()) + 6) % 7 // Monday = 0
		return day.AddDate(0, 0, -offset)
	case WindowMonth:
		return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	}
	return time.Time{}
}
