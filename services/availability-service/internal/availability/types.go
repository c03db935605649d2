package availability

import (
	"slices"
	"time"
)

type SchedulingType string

const (
	SchedulingNone       SchedulingType = ""
	SchedulingCollective SchedulingType = "COLLECTIVE"
	SchedulingRoundRobin SchedulingType = "ROUND_ROBIN"
)

// Host is a user attached to an event type. Fixed hosts must all be available for a slot;
// loose hosts only need one of them to be.
type Host struct {
	UserID   int64
	Username string
	IsFixed  bool
	TimeZone string
}

// SeatBooking is an existing booking on a seated event at an exact start time.
type SeatBooking struct {
	StartTime     time.Time
	BookingUID    string
	AttendeeCount int
}

type CurrentSeats []SeatBooking

// Find returns the seat booking starting exactly at t.
func (s CurrentSeats) Find(t time.Time) (SeatBooking, bool) {
	for _, seat := range s {
		if seat.StartTime.Equal(t) {
			return seat, true
		}
	}
	return SeatBooking{}, false
}

// HostSchedule is everything known about one host for the requested range.
type HostSchedule struct {
	Host          Host
	WorkingHours  []WorkingHours
	DateOverrides []DateOverride
	Busy          []Interval
	CurrentSeats  CurrentSeats
}

// HostSet is an immutable, sorted set of indices into a HostTable.
type HostSet struct {
	idx []int
}

func NewHostSet(indices ...int) HostSet {
	out := slices.Clone(indices)
	slices.Sort(out)
	return HostSet{idx: slices.Compact(out)}
}

func (s HostSet) Len() int { return len(s.idx) }

func (s HostSet) Contains(i int) bool {
	_, ok := slices.BinarySearch(s.idx, i)
	return ok
}

func (s HostSet) Indices() []int { return slices.Clone(s.idx) }

func (s HostSet) Filter(keep func(int) bool) HostSet {
	out := make([]int, 0, len(s.idx))
	for _, i := range s.idx {
		if keep(i) {
			out = append(out, i)
		}
	}
	return HostSet{idx: out}
}

func (s HostSet) Union(other HostSet) HostSet {
	if other.Len() == 0 {
		return s
	}
	if s.Len() == 0 {
		return other
	}
	return NewHostSet(append(slices.Clone(s.idx), other.idx...)...)
}

// CandidateSlot is a slot start with the hosts that can take it.
type CandidateSlot struct {
	Time  time.Time
	Hosts HostSet
}
