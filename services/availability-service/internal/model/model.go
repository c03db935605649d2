package model

import (
	"errors"
	"time"
)

// ErrNotFound is returned by stores when a lookup matches nothing.
var ErrNotFound = errors.New("not found")

type User struct {
	ID                  int64
	Username            string
	TimeZone            string
	AllowDynamicBooking bool
}

type EventHost struct {
	User    User
	IsFixed bool
}

// EventType is a bookable meeting template. Durations are minutes; zero SlotInterval means
// "use the duration".
type EventType struct {
	ID                      int64
	Slug                    string
	OwnerID                 int64
	Length                  int
	SlotInterval            int
	MinimumBookingNotice    int
	BeforeEventBuffer       int
	AfterEventBuffer        int
	SeatsPerTimeSlot        int
	SchedulingType          string
	PeriodType              string
	PeriodDays              int
	PeriodCountCalendarDays bool
	PeriodStartDate         *time.Time
	PeriodEndDate           *time.Time
	Hosts                   []EventHost
}

type Booking struct {
	UID         string
	UserID      int64
	EventTypeID int64
	StartTime   time.Time
	EndTime     time.Time
	Status      string
	Attendees   int
}

const (
	BookingAccepted  = "accepted"
	BookingPending   = "pending"
	BookingCancelled = "cancelled"
)

// Blocks reports whether the booking occupies the host's time.
func (b Booking) Blocks() bool {
	return b.Status == BookingAccepted || b.Status == BookingPending
}

// UserAvailabilityQuery asks for one host's schedule over [From, To).
type UserAvailabilityQuery struct {
	User    User
	IsFixed bool
	From    time.Time
	To      time.Time
	// EventTypeID and Seated select the seat bookings to return.
	EventTypeID int64
	Seated      bool
	// BusyFrom and BusyTo bound the bookings returned. Buffers and slot length reach
	// past [From, To), so callers widen this range; zero values mean From and To.
	BusyFrom time.Time
	BusyTo   time.Time
	// ForceUTC reads the host's date overrides as UTC, like its recurring hours.
	ForceUTC bool
}

// BusyRange returns the span whose bookings can block a slot in [From, To).
func (q UserAvailabilityQuery) BusyRange() (time.Time, time.Time) {
	from, to := q.From, q.To
	if !q.BusyFrom.IsZero() && q.BusyFrom.Before(from) {
		from = q.BusyFrom
	}
	if !q.BusyTo.IsZero() && q.BusyTo.After(to) {
		to = q.BusyTo
	}
	return from, to
}
