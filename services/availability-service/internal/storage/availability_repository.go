package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/md-rashed-zaman/slotfinder/libs/db"
	"github.com/md-rashed-zaman/slotfinder/services/availability-service/internal/availability"
	"github.com/md-rashed-zaman/slotfinder/services/availability-service/internal/model"
)

type AvailabilityRepository struct {
	pool *db.Pool
}

func NewAvailabilityRepository(pool *db.Pool) *AvailabilityRepository {
	return &AvailabilityRepository{pool: pool}
}

// GetUserAvailability loads a host's hours, date overrides, the busy bookings in
// q.BusyRange() and, for seated events, the seat bookings of the event type in
// [q.From, q.To).
func (r *AvailabilityRepository) GetUserAvailability(ctx context.Context, q model.UserAvailabilityQuery) (availability.HostSchedule, error) {
	hs := availability.HostSchedule{
		Host: availability.Host{
			UserID:   q.User.ID,
			Username: q.User.Username,
			IsFixed:  q.IsFixed,
			TimeZone: q.User.TimeZone,
		},
	}

	rows, err := r.loadRows(ctx, q)
	if err != nil {
		return hs, fmt.Errorf("load availability for user %d: %w", q.User.ID, err)
	}
	hs.WorkingHours, hs.DateOverrides = SplitAvailability(q.User.ID, rows, HoursLocation(q))

	busyFrom, busyTo := q.BusyRange()
	bookings, err := r.listBlockingBookings(ctx, q.User.ID, busyFrom, busyTo)
	if err != nil {
		return hs, fmt.Errorf("load bookings for user %d: %w", q.User.ID, err)
	}
	for _, b := range bookings {
		hs.Busy = append(hs.Busy, availability.Interval{Start: b.StartTime, End: b.EndTime})
	}

	if q.Seated && q.EventTypeID != 0 {
		seats, err := r.listSeats(ctx, q.EventTypeID, q.From, q.To)
		if err != nil {
			return hs, fmt.Errorf("load seats for event type %d: %w", q.EventTypeID, err)
		}
		hs.CurrentSeats = seats
	}
	return hs, nil
}

// HoursLocation is the zone a host's stored hours are read in: UTC when the request
// forces it, the host's own zone otherwise.
func HoursLocation(q model.UserAvailabilityQuery) *time.Location {
	if q.ForceUTC {
		return time.UTC
	}
	return availability.LoadLocation(q.User.TimeZone)
}

// AvailabilityRow is one stored availability row. A nil Date means recurring hours.
type AvailabilityRow struct {
	Days        []int
	StartMinute int
	EndMinute   int
	Date        *time.Time
}

// SplitAvailability turns stored rows into recurring hours and per-date overrides.
// Override minutes are read in loc; an override row with no length marks the date off.
func SplitAvailability(userID int64, rows []AvailabilityRow, loc *time.Location) ([]availability.WorkingHours, []availability.DateOverride) {
	var hours []availability.WorkingHours
	var overrides []availability.DateOverride
	for _, row := range rows {
		if row.Date == nil {
			days := make([]time.Weekday, 0, len(row.Days))
			for _, d := range row.Days {
				if d >= 0 && d <= 6 {
					days = append(days, time.Weekday(d))
				}
			}
			hours = append(hours, availability.WorkingHours{
				UserID:      userID,
				Days:        days,
				StartMinute: row.StartMinute,
				EndMinute:   row.EndMinute,
			})
			continue
		}

		y, m, d := row.Date.Date()
		o := availability.DateOverride{UserID: userID, Date: row.Date.Format("2006-01-02")}
		if row.EndMinute > row.StartMinute {
			o.Intervals = []availability.Interval{{
				Start: time.Date(y, m, d, 0, row.StartMinute, 0, 0, loc),
				End:   time.Date(y, m, d, 0, row.EndMinute, 0, 0, loc),
			}}
		}
		overrides = append(overrides, o)
	}
	return hours, overrides
}

func (r *AvailabilityRepository) loadRows(ctx context.Context, q model.UserAvailabilityQuery) ([]AvailabilityRow, error) {
	loc := HoursLocation(q)
	// Overrides are keyed by host-local date; widen by a day for zone differences.
	from := q.From.In(loc).AddDate(0, 0, -1).Format("2006-01-02")
	to := q.To.In(loc).AddDate(0, 0, 1).Format("2006-01-02")

	rows, err := r.pool.Query(ctx, `
		SELECT days, start_minute, end_minute, date
		FROM availability
		WHERE user_id = $1
			AND (date IS NULL OR date BETWEEN $2::date AND $3::date)
		ORDER BY date NULLS FIRST, start_minute ASC
	`, q.User.ID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AvailabilityRow
	for rows.Next() {
		var row AvailabilityRow
		if err := rows.Scan(&row.Days, &row.StartMinute, &row.EndMinute, &row.Date); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

// Cancelled bookings do not block.
func (r *AvailabilityRepository) listBlockingBookings(ctx context.Context, userID int64, start, end time.Time) ([]model.Booking, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT uid::text, user_id, COALESCE(event_type_id, 0), start_time, end_time, status
		FROM bookings
		WHERE user_id = $1
			AND status IN ('accepted', 'pending')
			AND start_time < $3
			AND end_time > $2
		ORDER BY start_time ASC
	`, userID, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bookings []model.Booking
	for rows.Next() {
		var b model.Booking
		if err := rows.Scan(&b.UID, &b.UserID, &b.EventTypeID, &b.StartTime, &b.EndTime, &b.Status); err != nil {
			return nil, err
		}
		bookings = append(bookings, b)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return bookings, nil
}

func (r *AvailabilityRepository) listSeats(ctx context.Context, eventTypeID int64, start, end time.Time) (availability.CurrentSeats, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT b.uid::text, b.start_time, COUNT(a.id)
		FROM bookings b
		LEFT JOIN booking_attendees a ON a.booking_uid = b.uid
		WHERE b.event_type_id = $1
			AND b.status IN ('accepted', 'pending')
			AND b.start_time >= $2
			AND b.start_time < $3
		GROUP BY b.uid, b.start_time
		ORDER BY b.start_time ASC
	`, eventTypeID, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var seats availability.CurrentSeats
	for rows.Next() {
		var s availability.SeatBooking
		var count int64
		if err := rows.Scan(&s.BookingUID, &s.StartTime, &count); err != nil {
			return nil, err
		}
		s.AttendeeCount = int(count)
		seats = append(seats, s)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return seats, nil
}
