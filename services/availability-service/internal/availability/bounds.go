package availability

import "time"

type PeriodType string

const (
	PeriodUnlimited PeriodType = "UNLIMITED"
	PeriodRolling   PeriodType = "ROLLING"
	PeriodRange     PeriodType = "RANGE"
)

// PeriodConfig limits how far ahead an event can be booked.
type PeriodConfig struct {
	Type              PeriodType
	Days              int
	CountCalendarDays bool
	StartDate         time.Time
	EndDate           time.Time
}

// WithinBounds compares calendar days in t's location. A zero StartDate or EndDate leaves
// that side of a range open.
func WithinBounds(t time.Time, p PeriodConfig, now time.Time) bool {
	loc := t.Location()
	day := startOfDay(t)
	switch p.Type {
	case PeriodRolling:
		from := now.In(loc)
		var limit time.Time
		if p.CountCalendarDays {
			limit = from.AddDate(0, 0, p.Days)
		} else {
			limit = addBusinessDays(from, p.Days)
		}
		return !day.After(startOfDay(limit))
	case PeriodRange:
		if !p.StartDate.IsZero() && day.Before(startOfDay(p.StartDate.In(loc))) {
			return false
		}
		if !p.EndDate.IsZero() && day.After(startOfDay(p.EndDate.In(loc))) {
			return false
		}
		return true
	default:
		return true
	}
}

// addBusinessDays moves n weekdays forward, skipping Saturdays and Sundays.
func addBusinessDays(t time.Time, n int) time.Time {
	for added := 0; added < n; {
		t = t.AddDate(0, 0, 1)
		if wd := t.Weekday(); wd != time.Saturday && wd != time.Sunday {
			added++
		}
	}
	return t
}

// FilterBounds drops slots outside the booking period, judged in loc.
func FilterBounds(slots []CandidateSlot, p PeriodConfig, now time.Time, loc *time.Location) []CandidateSlot {
	if loc == nil {
		loc = time.UTC
	}
	out := make([]CandidateSlot, 0, len(slots))
	for _, s := range slots {
		if WithinBounds(s.Time.In(loc), p, now) {
			out = append(out, s)
		}
	}
	return out
}
