package availability

import (
	"slices"
	"sort"
	"time"
)

// Interval is a half-open time range [Start, End).
type Interval struct {
	Start time.Time
	End   time.Time
}

func (i Interval) Empty() bool {
	return !i.End.After(i.Start)
}

// Contains reports whether [start, end) lies fully inside the interval.
func (i Interval) Contains(start, end time.Time) bool {
	return !start.Before(i.Start) && !end.After(i.End)
}

// Overlaps applies the four overlap rules against a busy interval:
//  1. the slot starts inside busy
//  2. the slot ends inside busy
//  3. busy lies inside the slot
//  4. the slot lies inside busy
//
// Touching endpoints never overlap, so back-to-back bookings stay available.
// Empty busy intervals must be filtered by the caller.
func Overlaps(start, end time.Time, busy Interval) bool {
	switch {
	case !start.Before(busy.Start) && start.Before(busy.End):
		return true
	case end.After(busy.Start) && !end.After(busy.End):
		return true
	case !busy.Start.Before(start) && !busy.End.After(end):
		return true
	case !start.Before(busy.Start) && !end.After(busy.End):
		return true
	}
	return false
}

func overlapsAny(start, end time.Time, busy []Interval) bool {
	for _, b := range busy {
		if b.Empty() {
			continue
		}
		if Overlaps(start, end, b) {
			return true
		}
	}
	return false
}

// mergeIntervals returns the union of in as sorted, non-touching intervals.
func mergeIntervals(in []Interval) []Interval {
	if len(in) == 0 {
		return nil
	}
	sorted := make([]Interval, 0, len(in))
	for _, iv := range in {
		if !iv.Empty() {
			sorted = append(sorted, iv)
		}
	}
	slices.SortFunc(sorted, func(a, b Interval) int { return a.Start.Compare(b.Start) })

	var out []Interval
	for _, iv := range sorted {
		if n := len(out); n > 0 && !iv.Start.After(out[n-1].End) {
			if iv.End.After(out[n-1].End) {
				out[n-1].End = iv.End
			}
			continue
		}
		out = append(out, iv)
	}
	return out
}

// busyIndex keeps a host's busy intervals sorted by start with a running maximum of end
// times, so an overlap query only visits intervals that can intersect the slot.
type busyIndex struct {
	items  []Interval
	maxEnd []time.Time
}

func newBusyIndex(busy []Interval) busyIndex {
	items := make([]Interval, 0, len(busy))
	for _, b := range busy {
		if !b.Empty() {
			items = append(items, b)
		}
	}
	slices.SortFunc(items, func(a, b Interval) int { return a.Start.Compare(b.Start) })

	maxEnd := make([]time.Time, len(items))
	for i, b := range items {
		maxEnd[i] = b.End
		if i > 0 && maxEnd[i-1].After(b.End) {
			maxEnd[i] = maxEnd[i-1]
		}
	}
	return busyIndex{items: items, maxEnd: maxEnd}
}

func (b busyIndex) overlaps(start, end time.Time) bool {
	// Intervals at or after hi start at or after end and cannot overlap.
	hi := sort.Search(len(b.items), func(i int) bool { return !b.items[i].Start.Before(end) })
	for i := hi - 1; i >= 0; i-- {
		if !b.maxEnd[i].After(start) {
			return false
		}
		if Overlaps(start, end, b.items[i]) {
			return true
		}
	}
	return false
}
