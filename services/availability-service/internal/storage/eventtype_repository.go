package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/slotfinder/libs/db"
	"github.com/md-rashed-zaman/slotfinder/services/availability-service/internal/model"
)

type EventTypeRepository struct {
	pool *db.Pool
}

func NewEventTypeRepository(pool *db.Pool) *EventTypeRepository {
	return &EventTypeRepository{pool: pool}
}

const eventTypeColumns = `
	e.id, e.slug, e.owner_id, e.length_minutes, COALESCE(e.slot_interval_minutes, 0),
	e.minimum_booking_notice, e.before_event_buffer, e.after_event_buffer,
	COALESCE(e.seats_per_time_slot, 0), COALESCE(e.scheduling_type, ''), e.period_type,
	COALESCE(e.period_days, 0), e.period_count_calendar_days, e.period_start_date, e.period_end_date`

func (r *EventTypeRepository) EventTypeByID(ctx context.Context, id int64) (model.EventType, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+eventTypeColumns+` FROM event_types e WHERE e.id = $1`, id)
	return r.loadEventType(ctx, row)
}

// EventTypeBySlug looks up an event type owned by username.
func (r *EventTypeRepository) EventTypeBySlug(ctx context.Context, username, slug string) (model.EventType, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+eventTypeColumns+`
		FROM event_types e
		JOIN users u ON u.id = e.owner_id
		WHERE u.username = $1 AND e.slug = $2
	`, username, slug)
	return r.loadEventType(ctx, row)
}

func (r *EventTypeRepository) UsersByUsername(ctx context.Context, usernames []string) ([]model.User, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, username, time_zone, allow_dynamic_booking
		FROM users
		WHERE username = ANY($1)
		ORDER BY array_position($1, username)
	`, usernames)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		var u model.User
		if err := rows.Scan(&u.ID, &u.Username, &u.TimeZone, &u.AllowDynamicBooking); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return users, nil
}

func (r *EventTypeRepository) loadEventType(ctx context.Context, row pgx.Row) (model.EventType, error) {
	var et model.EventType
	var startDate, endDate *time.Time
	err := row.Scan(
		&et.ID,
		&et.Slug,
		&et.OwnerID,
		&et.Length,
		&et.SlotInterval,
		&et.MinimumBookingNotice,
		&et.BeforeEventBuffer,
		&et.AfterEventBuffer,
		&et.SeatsPerTimeSlot,
		&et.SchedulingType,
		&et.PeriodType,
		&et.PeriodDays,
		&et.PeriodCountCalendarDays,
		&startDate,
		&endDate,
	)
	if err != nil {
		if IsNotFound(err) {
			return model.EventType{}, fmt.Errorf("event type: %w", model.ErrNotFound)
		}
		return model.EventType{}, err
	}
	et.PeriodStartDate = startDate
	et.PeriodEndDate = endDate

	hosts, err := r.hosts(ctx, et)
	if err != nil {
		return model.EventType{}, err
	}
	et.Hosts = hosts
	return et, nil
}

// hosts returns the event's hosts; an event without host rows is hosted by its owner.
func (r *EventTypeRepository) hosts(ctx context.Context, et model.EventType) ([]model.EventHost, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT u.id, u.username, u.time_zone, u.allow_dynamic_booking, h.is_fixed
		FROM event_type_hosts h
		JOIN users u ON u.id = h.user_id
		WHERE h.event_type_id = $1
		ORDER BY u.id ASC
	`, et.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hosts []model.EventHost
	for rows.Next() {
		var h model.EventHost
		if err := rows.Scan(&h.User.ID, &h.User.Username, &h.User.TimeZone, &h.User.AllowDynamicBooking, &h.IsFixed); err != nil {
			return nil, err
		}
		hosts = append(hosts, h)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	if len(hosts) > 0 {
		return hosts, nil
	}

	var owner model.EventHost
	err = r.pool.QueryRow(ctx, `
		SELECT id, username, time_zone, allow_dynamic_booking FROM users WHERE id = $1
	`, et.OwnerID).Scan(&owner.User.ID, &owner.User.Username, &owner.User.TimeZone, &owner.User.AllowDynamicBooking)
	if err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	owner.IsFixed = true
	return []model.EventHost{owner}, nil
}

func IsNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
