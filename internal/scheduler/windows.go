package scheduler

import "time"

// Window describes when a task is due: a weekday set, a [start,end)
// hour:minute range, and an every-N-minutes predicate. All checks run
// against the wall clock already converted to the market timezone.
type Window struct {
	Days         []time.Weekday
	StartHour    int
	StartMinute  int
	EndHour      int
	EndMinute    int
	EveryMinutes int
}

// Weekdays is the Mon-Fri day set used by most market tasks
func Weekdays() []time.Weekday {
	return []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday}
}

// EveryDay returns all seven weekdays
func EveryDay() []time.Weekday {
	return []time.Weekday{
		time.Sunday, time.Monday, time.Tuesday, time.Wednesday,
		time.Thursday, time.Friday, time.Saturday,
	}
}

// Contains reports whether now falls inside this window
func (w Window) Contains(now time.Time) bool {
	if len(w.Days) > 0 {
		found := false
		for _, d := range w.Days {
			if now.Weekday() == d {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	currentMinutes := now.Hour()*60 + now.Minute()
	startMinutes := w.StartHour*60 + w.StartMinute
	endMinutes := w.EndHour*60 + w.EndMinute

	// A zero range means any time of day
	if startMinutes != endMinutes {
		if currentMinutes < startMinutes || currentMinutes >= endMinutes {
			return false
		}
	}

	if w.EveryMinutes > 1 && now.Minute()%w.EveryMinutes != 0 {
		return false
	}

	return true
}

// At returns a window that matches a single hour:minute each given day
func At(hour, minute int, days ...time.Weekday) Window {
	return Window{
		Days:        days,
		StartHour:   hour,
		StartMinute: minute,
		EndHour:     hour,
		EndMinute:   minute + 1,
	}
}
