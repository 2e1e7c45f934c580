package executor

import (
	"fmt"
	"time"

	"github.com/ignite/journey-engine/internal/journey"
)

// evalTimeWindow reports whether now falls inside the node's recurring
// window, and, when it doesn't, the next time the window opens.
func evalTimeWindow(p journey.TimeWindowPayload, now time.Time) (inWindow bool, nextOpen time.Time, err error) {
	loc := time.UTC
	if p.Timezone != "" {
		loc, err = time.LoadLocation(p.Timezone)
		if err != nil {
			return false, time.Time{}, fmt.Errorf("executor: timeWindow timezone %q: %w", p.Timezone, err)
		}
	}
	startH, startM, err := parseHHMM(p.StartHHMM)
	if err != nil {
		return false, time.Time{}, fmt.Errorf("executor: timeWindow startHHMM: %w", err)
	}
	endH, endM, err := parseHHMM(p.EndHHMM)
	if err != nil {
		return false, time.Time{}, fmt.Errorf("executor: timeWindow endHHMM: %w", err)
	}

	local := now.In(loc)

	// An overnight window (end <= start) rolls its end into the next day, so
	// a window that opened yesterday can still contain now. Check that
	// rolled-over window before scanning forward for the next opening.
	prevDay := local.AddDate(0, 0, -1)
	if dayAllowed(prevDay, p.DaysOfWeek) {
		start := time.Date(prevDay.Year(), prevDay.Month(), prevDay.Day(), startH, startM, 0, 0, loc)
		end := time.Date(prevDay.Year(), prevDay.Month(), prevDay.Day(), endH, endM, 0, 0, loc)
		if !end.After(start) {
			end = end.AddDate(0, 0, 1)
		}
		if !local.Before(start) && local.Before(end) {
			return true, time.Time{}, nil
		}
	}

	for offset := 0; offset < 8; offset++ {
		day := local.AddDate(0, 0, offset)
		if !dayAllowed(day, p.DaysOfWeek) {
			continue
		}
		start := time.Date(day.Year(), day.Month(), day.Day(), startH, startM, 0, 0, loc)
		end := time.Date(day.Year(), day.Month(), day.Day(), endH, endM, 0, 0, loc)
		if !end.After(start) {
			end = end.AddDate(0, 0, 1)
		}
		if offset == 0 && !local.Before(start) && local.Before(end) {
			return true, time.Time{}, nil
		}
		if start.After(local) {
			return false, start, nil
		}
	}
	return false, time.Time{}, fmt.Errorf("executor: timeWindow has no day matching daysOfWeek %v", p.DaysOfWeek)
}

// dayAllowed reports whether t's weekday is in days, using Sun=1..Sat=7. An
// empty days list means every day is allowed.
func dayAllowed(t time.Time, days []int) bool {
	if len(days) == 0 {
		return true
	}
	dow := int(t.Weekday()) + 1
	for _, d := range days {
		if d == dow {
			return true
		}
	}
	return false
}

func parseHHMM(s string) (hour, minute int, err error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, 0, err
	}
	return t.Hour(), t.Minute(), nil
}
