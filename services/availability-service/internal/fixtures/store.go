// Package fixtures serves users, event types and bookings from a YAML document, for local
// runs without Postgres and for tests.
package fixtures

import (
	"context"
	"fmt"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/md-rashed-zaman/slotfinder/services/availability-service/internal/availability"
	"github.com/md-rashed-zaman/slotfinder/services/availability-service/internal/model"
	"github.com/md-rashed-zaman/slotfinder/services/availability-service/internal/storage"
)

type document struct {
	Users      []userDoc      `yaml:"users"`
	EventTypes []eventTypeDoc `yaml:"event_types"`
	Bookings   []bookingDoc   `yaml:"bookings"`
}

type userDoc struct {
	ID                  int64             `yaml:"id"`
	Username            string            `yaml:"username"`
	TimeZone            string            `yaml:"time_zone"`
	AllowDynamicBooking *bool             `yaml:"allow_dynamic_booking"`
	Availability        []availabilityDoc `yaml:"availability"`
}

// availabilityDoc is either recurring hours (days set) or a date override (date set).
// An override without start/end marks the date off.
type availabilityDoc struct {
	Days  []int  `yaml:"days"`
	Date  string `yaml:"date"`
	Start string `yaml:"start"`
	End   string `yaml:"end"`
}

type eventTypeDoc struct {
	ID                      int64     `yaml:"id"`
	Owner                   string    `yaml:"owner"`
	Slug                    string    `yaml:"slug"`
	Length                  int       `yaml:"length"`
	SlotInterval            int       `yaml:"slot_interval"`
	MinimumBookingNotice    int       `yaml:"minimum_booking_notice"`
	BeforeEventBuffer       int       `yaml:"before_event_buffer"`
	AfterEventBuffer        int       `yaml:"after_event_buffer"`
	SeatsPerTimeSlot        int       `yaml:"seats_per_time_slot"`
	SchedulingType          string    `yaml:"scheduling_type"`
	PeriodType              string    `yaml:"period_type"`
	PeriodDays              int       `yaml:"period_days"`
	PeriodCountCalendarDays bool      `yaml:"period_count_calendar_days"`
	PeriodStartDate         string    `yaml:"period_start_date"`
	PeriodEndDate           string    `yaml:"period_end_date"`
	Hosts                   []hostDoc `yaml:"hosts"`
}

type hostDoc struct {
	Username string `yaml:"username"`
	Fixed    bool   `yaml:"fixed"`
}

type bookingDoc struct {
	UID         string    `yaml:"uid"`
	Username    string    `yaml:"username"`
	EventTypeID int64     `yaml:"event_type_id"`
	Start       time.Time `yaml:"start"`
	End         time.Time `yaml:"end"`
	Status      string    `yaml:"status"`
	Attendees   int       `yaml:"attendees"`
}

// Store implements the event-type and user-availability lookups in memory.
type Store struct {
	mu           sync.RWMutex
	users        map[string]model.User
	availability map[int64][]storage.AvailabilityRow
	eventTypes   []model.EventType
	bookings     []model.Booking
}

func Load(path string) (*Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixtures: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Store, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse fixtures: %w", err)
	}

	s := &Store{
		users:        make(map[string]model.User, len(doc.Users)),
		availability: make(map[int64][]storage.AvailabilityRow, len(doc.Users)),
	}
	for _, u := range doc.Users {
		if u.Username == "" || u.ID == 0 {
			return nil, fmt.Errorf("user needs id and username")
		}
		user := model.User{ID: u.ID, Username: u.Username, TimeZone: u.TimeZone, AllowDynamicBooking: true}
		if user.TimeZone == "" {
			user.TimeZone = "UTC"
		}
		if u.AllowDynamicBooking != nil {
			user.AllowDynamicBooking = *u.AllowDynamicBooking
		}
		s.users[u.Username] = user

		for _, a := range u.Availability {
			row, err := a.row()
			if err != nil {
				return nil, fmt.Errorf("user %s: %w", u.Username, err)
			}
			s.availability[u.ID] = append(s.availability[u.ID], row)
		}
	}

	for _, e := range doc.EventTypes {
		et, err := s.eventType(e)
		if err != nil {
			return nil, fmt.Errorf("event type %d: %w", e.ID, err)
		}
		s.eventTypes = append(s.eventTypes, et)
	}

	for _, b := range doc.Bookings {
		u, ok := s.users[b.Username]
		if !ok {
			return nil, fmt.Errorf("booking for unknown user %q", b.Username)
		}
		s.AddBooking(model.Booking{
			UID:         b.UID,
			UserID:      u.ID,
			EventTypeID: b.EventTypeID,
			StartTime:   b.Start,
			EndTime:     b.End,
			Status:      b.Status,
			Attendees:   b.Attendees,
		})
	}
	return s, nil
}

func (a availabilityDoc) row() (storage.AvailabilityRow, error) {
	var row storage.AvailabilityRow
	var err error
	if a.Start != "" || a.End != "" {
		if row.StartMinute, err = parseClock(a.Start); err != nil {
			return row, err
		}
		if row.EndMinute, err = parseClock(a.End); err != nil {
			return row, err
		}
	}
	if a.Date != "" {
		d, err := time.Parse("2006-01-02", a.Date)
		if err != nil {
			return row, fmt.Errorf("override date %q: %w", a.Date, err)
		}
		row.Date = &d
		return row, nil
	}
	row.Days = slices.Clone(a.Days)
	return row, nil
}

// parseClock reads "HH:MM" as minutes after midnight; "24:00" is allowed.
func parseClock(s string) (int, error) {
	if strings.TrimSpace(s) == "24:00" {
		return 24 * 60, nil
	}
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("clock %q: %w", s, err)
	}
	return t.Hour()*60 + t.Minute(), nil
}

func (s *Store) eventType(e eventTypeDoc) (model.EventType, error) {
	owner, ok := s.users[e.Owner]
	if !ok {
		return model.EventType{}, fmt.Errorf("unknown owner %q", e.Owner)
	}
	et := model.EventType{
		ID:                      e.ID,
		Slug:                    e.Slug,
		OwnerID:                 owner.ID,
		Length:                  e.Length,
		SlotInterval:            e.SlotInterval,
		MinimumBookingNotice:    e.MinimumBookingNotice,
		BeforeEventBuffer:       e.BeforeEventBuffer,
		AfterEventBuffer:        e.AfterEventBuffer,
		SeatsPerTimeSlot:        e.SeatsPerTimeSlot,
		SchedulingType:          e.SchedulingType,
		PeriodType:              e.PeriodType,
		PeriodDays:              e.PeriodDays,
		PeriodCountCalendarDays: e.PeriodCountCalendarDays,
	}
	for _, pair := range []struct {
		raw string
		dst **time.Time
	}{{e.PeriodStartDate, &et.PeriodStartDate}, {e.PeriodEndDate, &et.PeriodEndDate}} {
		if pair.raw == "" {
			continue
		}
		d, err := time.Parse("2006-01-02", pair.raw)
		if err != nil {
			return model.EventType{}, fmt.Errorf("period date %q: %w", pair.raw, err)
		}
		*pair.dst = &d
	}

	for _, h := range e.Hosts {
		u, ok := s.users[h.Username]
		if !ok {
			return model.EventType{}, fmt.Errorf("unknown host %q", h.Username)
		}
		et.Hosts = append(et.Hosts, model.EventHost{User: u, IsFixed: h.Fixed})
	}
	if len(et.Hosts) == 0 {
		et.Hosts = []model.EventHost{{User: owner, IsFixed: true}}
	}
	return et, nil
}

// AddBooking records a booking. A missing uid gets a fresh one; a missing status means
// accepted.
func (s *Store) AddBooking(b model.Booking) string {
	if b.UID == "" {
		b.UID = uuid.NewString()
	}
	if b.Status == "" {
		b.Status = model.BookingAccepted
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bookings = append(s.bookings, b)
	return b.UID
}

func (s *Store) EventTypeByID(_ context.Context, id int64) (model.EventType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, et := range s.eventTypes {
		if et.ID == id {
			return et, nil
		}
	}
	return model.EventType{}, fmt.Errorf("event type %d: %w", id, model.ErrNotFound)
}

func (s *Store) EventTypeBySlug(_ context.Context, username, slug string) (model.EventType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	owner, ok := s.users[username]
	if ok {
		for _, et := range s.eventTypes {
			if et.OwnerID == owner.ID && et.Slug == slug {
				return et, nil
			}
		}
	}
	return model.EventType{}, fmt.Errorf("event type %s/%s: %w", username, slug, model.ErrNotFound)
}

// UsersByUsername returns the known users in request order, skipping unknown names.
func (s *Store) UsersByUsername(_ context.Context, usernames []string) ([]model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.User
	for _, name := range usernames {
		if u, ok := s.users[name]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

func (s *Store) GetUserAvailability(_ context.Context, q model.UserAvailabilityQuery) (availability.HostSchedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	hs := availability.HostSchedule{
		Host: availability.Host{
			UserID:   q.User.ID,
			Username: q.User.Username,
			IsFixed:  q.IsFixed,
			TimeZone: q.User.TimeZone,
		},
	}
	hs.WorkingHours, hs.DateOverrides = storage.SplitAvailability(q.User.ID, s.availability[q.User.ID], storage.HoursLocation(q))
	busyFrom, busyTo := q.BusyRange()

	for _, b := range s.bookings {
		if !b.Blocks() {
			continue
		}
		if b.UserID == q.User.ID && b.StartTime.Before(busyTo) && b.EndTime.After(busyFrom) {
			hs.Busy = append(hs.Busy, availability.Interval{Start: b.StartTime, End: b.EndTime})
		}
		if q.Seated && b.EventTypeID == q.EventTypeID && !b.StartTime.Before(q.From) && b.StartTime.Before(q.To) {
			if _, dup := hs.CurrentSeats.Find(b.StartTime); !dup {
				hs.CurrentSeats = append(hs.CurrentSeats, availability.SeatBooking{
					StartTime:     b.StartTime,
					BookingUID:    b.UID,
					AttendeeCount: b.Attendees,
				})
			}
		}
	}
	return hs, nil
}
