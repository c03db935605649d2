package availability

import "time"

// EventConstraints are the per-event-type inputs to slot computation. Durations are in
// minutes.
type EventConstraints struct {
	Length               int
	SlotInterval         int
	MinimumBookingNotice int
	BeforeEventBuffer    int
	AfterEventBuffer     int
	SeatsPerTimeSlot     int
	SchedulingType       SchedulingType
	Period               PeriodConfig
}

type Input struct {
	Start time.Time
	End   time.Time
	// Location is the invitee's zone. It decides day keys and booking-period days.
	Location *time.Location
	// ForceUTC reads every host's hours as UTC (Etc/GMT requests).
	ForceUTC bool
	Now      time.Time
	// Duration overrides Event.Length when positive.
	Duration     int
	Event        EventConstraints
	Hosts        []HostSchedule
	CurrentSeats CurrentSeats
	Users        []string
	UsersMode    UsersMode
}

type Result struct {
	Slots map[string][]Slot `json:"slots"`
}

// Compute runs the whole pipeline: host table, generation, fixed-host filter, loose-host
// filter, booking period, then grouping by date. It has no side effects; the same input
// (including Now) always yields the same result.
func Compute(in Input) Result {
	loc := in.Location
	if loc == nil {
		loc = time.UTC
	}
	duration := in.Duration
	if duration <= 0 {
		duration = in.Event.Length
	}
	frequency := in.Event.SlotInterval
	if frequency <= 0 {
		frequency = duration
	}

	table := NewHostTable(in.Hosts, in.Event.SchedulingType, in.Start, in.End, in.ForceUTC)
	slots := Generate(GenerateParams{
		Start:         in.Start,
		End:           in.End,
		Duration:      duration,
		Frequency:     frequency,
		MinimumNotice: in.Event.MinimumBookingNotice,
		Now:           in.Now,
		Location:      loc,
		Hosts:         table,
	})

	check := CheckParams{
		Duration:     duration,
		BeforeBuffer: in.Event.BeforeEventBuffer,
		AfterBuffer:  in.Event.AfterEventBuffer,
		Seats:        in.CurrentSeats,
	}
	slots = FilterFixed(slots, table, check)
	slots = FilterLoose(slots, table, check)
	slots = FilterBounds(slots, in.Event.Period, in.Now, loc)

	return Result{Slots: Aggregate(slots, AggregateParams{
		Location: loc,
		Mode:     in.UsersMode,
		Users:    in.Users,
		Hosts:    table,
		Seated:   in.Event.SeatsPerTimeSlot > 0,
		Seats:    in.CurrentSeats,
	})}
}

// Count returns the number of slots across all dates.
func (r Result) Count() int {
	n := 0
	for _, day := range r.Slots {
		n += len(day)
	}
	return n
}
