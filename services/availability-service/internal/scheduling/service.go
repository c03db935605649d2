package scheduling

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/md-rashed-zaman/slotfinder/libs/apperr"
	"github.com/md-rashed-zaman/slotfinder/libs/runtime"
	"github.com/md-rashed-zaman/slotfinder/services/availability-service/internal/availability"
	"github.com/md-rashed-zaman/slotfinder/services/availability-service/internal/metrics"
	"github.com/md-rashed-zaman/slotfinder/services/availability-service/internal/model"
)

type EventTypeStore interface {
	EventTypeByID(ctx context.Context, id int64) (model.EventType, error)
	EventTypeBySlug(ctx context.Context, username, slug string) (model.EventType, error)
	UsersByUsername(ctx context.Context, usernames []string) ([]model.User, error)
}

type AvailabilityStore interface {
	GetUserAvailability(ctx context.Context, q model.UserAvailabilityQuery) (availability.HostSchedule, error)
}

type SlotCache interface {
	Key(parts ...string) string
	Get(ctx context.Context, key string) (availability.Result, bool, error)
	Set(ctx context.Context, key string, userIDs []int64, res availability.Result) error
}

// Request is the slots query as received from clients.
type Request struct {
	StartTime     string
	EndTime       string
	EventTypeID   int64
	EventTypeSlug string
	TimeZone      string
	UsernameList  []string
	Duration      int
}

type Config struct {
	UsersMode availability.UsersMode
	// Dynamic group events have no stored event type; these fill in for it.
	DynamicLength        int
	DynamicMinimumNotice int
	// MaxConcurrentFetches bounds the per-host availability fan-out.
	MaxConcurrentFetches int
}

type Options struct {
	Cache   SlotCache
	Metrics *metrics.Metrics
	Now     func() time.Time
}

type Service struct {
	events  EventTypeStore
	avail   AvailabilityStore
	cache   SlotCache
	metrics *metrics.Metrics
	cfg     Config
	now     func() time.Time
	logger  *slog.Logger
	tracer  trace.Tracer
}

func NewService(events EventTypeStore, avail AvailabilityStore, cfg Config, logger *slog.Logger, opts Options) *Service {
	if cfg.UsersMode == "" {
		cfg.UsersMode = availability.UsersFromEventHosts
	}
	if cfg.DynamicLength <= 0 {
		cfg.DynamicLength = 30
	}
	if cfg.MaxConcurrentFetches <= 0 {
		cfg.MaxConcurrentFetches = 8
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		events:  events,
		avail:   avail,
		cache:   opts.Cache,
		metrics: opts.Metrics,
		cfg:     cfg,
		now:     now,
		logger:  logger,
		tracer:  otel.Tracer("availability-service/scheduling"),
	}
}

type window struct {
	start    time.Time
	end      time.Time
	loc      *time.Location
	forceUTC bool
}

// resolved is an event type ready for computation.
type resolved struct {
	event   model.EventType
	users   []string
	dynamic bool
}

// GetSchedule validates req, resolves its event type, loads every host's availability and
// computes the bookable slots.
func (s *Service) GetSchedule(ctx context.Context, req Request) (availability.Result, error) {
	started := time.Now()
	ctx, span := s.tracer.Start(ctx, "scheduling.GetSchedule")
	defer span.End()

	res, err := s.getSchedule(ctx, req)
	if err != nil {
		appErr := apperr.FromError(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, appErr.Code)
		s.metrics.ObserveComputation(strings.ToLower(appErr.Code), time.Since(started), 0)
		return availability.Result{}, err
	}
	s.metrics.ObserveComputation("ok", time.Since(started), res.Count())
	return res, nil
}

func (s *Service) getSchedule(ctx context.Context, req Request) (availability.Result, error) {
	logger := runtime.LoggerFromContext(ctx, s.logger)

	w, err := validate(req)
	if err != nil {
		return availability.Result{}, err
	}
	now := s.now()

	var key string
	if s.cache != nil {
		key = s.cacheKey(req, w, now)
		if cached, ok, err := s.cache.Get(ctx, key); err != nil {
			logger.Warn("slot cache read failed", "err", err)
		} else if ok {
			s.metrics.CacheHit()
			logger.Debug("slot cache hit", "key", key)
			return cached, nil
		}
		s.metrics.CacheMiss()
	}

	r, err := s.resolveEventType(ctx, req)
	if err != nil {
		return availability.Result{}, err
	}
	trace.SpanFromContext(ctx).SetAttributes(
		attribute.Int64("event_type.id", r.event.ID),
		attribute.Int("event_type.hosts", len(r.event.Hosts)),
		attribute.Bool("event_type.dynamic", r.dynamic),
	)

	schedules, err := s.fetchHosts(ctx, r.event, w, req.Duration)
	if err != nil {
		return availability.Result{}, err
	}

	in := availability.Input{
		Start:        w.start,
		End:          w.end,
		Location:     w.loc,
		ForceUTC:     w.forceUTC,
		Now:          now,
		Duration:     req.Duration,
		Event:        constraints(r.event),
		Hosts:        schedules,
		CurrentSeats: firstSeats(schedules),
		Users:        r.users,
		UsersMode:    s.cfg.UsersMode,
	}

	_, computeSpan := s.tracer.Start(ctx, "availability.Compute")
	res := availability.Compute(in)
	computeSpan.SetAttributes(attribute.Int("slots", res.Count()))
	computeSpan.End()

	logger.Debug("slots computed",
		"event_type_id", r.event.ID,
		"hosts", len(schedules),
		"days", len(res.Slots),
		"slots", res.Count(),
	)

	if s.cache != nil {
		ids := make([]int64, 0, len(schedules))
		for _, h := range schedules {
			ids = append(ids, h.Host.UserID)
		}
		if err := s.cache.Set(ctx, key, ids, res); err != nil {
			logger.Warn("slot cache write failed", "err", err)
		}
	}
	return res, nil
}

func validate(req Request) (window, error) {
	var w window
	if req.EventTypeID <= 0 && len(req.UsernameList) == 0 {
		return w, apperr.BadRequest("either eventTypeId or usernameList is required")
	}
	start, err := time.Parse(time.RFC3339, strings.TrimSpace(req.StartTime))
	if err != nil {
		return w, apperr.BadRequest("startTime must be an ISO-8601 timestamp")
	}
	end, err := time.Parse(time.RFC3339, strings.TrimSpace(req.EndTime))
	if err != nil {
		return w, apperr.BadRequest("endTime must be an ISO-8601 timestamp")
	}
	if !end.After(start) {
		return w, apperr.BadRequest("endTime must be after startTime")
	}
	if req.Duration < 0 {
		return w, apperr.BadRequest("duration must not be negative")
	}

	w.start, w.end, w.loc = start, end, time.UTC
	if tz := strings.TrimSpace(req.TimeZone); tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			return w, apperr.BadRequest("invalid timeZone %q", tz)
		}
		w.loc = loc
		// Etc/GMT requests read host hours as UTC.
		w.forceUTC = tz == "Etc/GMT"
	}
	return w, nil
}

func (s *Service) resolveEventType(ctx context.Context, req Request) (resolved, error) {
	switch {
	case req.EventTypeID > 0:
		et, err := s.events.EventTypeByID(ctx, req.EventTypeID)
		if err != nil {
			return resolved{}, lookupError(err, "event type %d not found", req.EventTypeID)
		}
		return resolved{event: et, users: hostUsernames(et)}, nil

	case len(req.UsernameList) > 1:
		return s.resolveDynamic(ctx, req.UsernameList)

	default:
		slug := strings.TrimSpace(req.EventTypeSlug)
		if slug == "" {
			return resolved{}, apperr.BadRequest("eventTypeSlug is required with a single username")
		}
		username := req.UsernameList[0]
		et, err := s.events.EventTypeBySlug(ctx, username, slug)
		if err != nil {
			return resolved{}, lookupError(err, "event type %s/%s not found", username, slug)
		}
		return resolved{event: et, users: hostUsernames(et)}, nil
	}
}

// resolveDynamic builds an ad-hoc collective event for a group of users.
func (s *Service) resolveDynamic(ctx context.Context, usernames []string) (resolved, error) {
	users, err := s.events.UsersByUsername(ctx, usernames)
	if err != nil {
		return resolved{}, fmt.Errorf("lookup users: %w", err)
	}
	if len(users) == 0 {
		return resolved{}, apperr.NotFound("no users found for %s", strings.Join(usernames, ", "))
	}
	et := model.EventType{
		Slug:                 "dynamic",
		Length:               s.cfg.DynamicLength,
		MinimumBookingNotice: s.cfg.DynamicMinimumNotice,
		SchedulingType:       string(availability.SchedulingCollective),
		PeriodType:           string(availability.PeriodUnlimited),
	}
	for _, u := range users {
		if !u.AllowDynamicBooking {
			return resolved{}, apperr.Unauthorized("dynamic booking is not allowed for %s", u.Username)
		}
		et.Hosts = append(et.Hosts, model.EventHost{User: u, IsFixed: true})
	}
	return resolved{event: et, users: append([]string(nil), usernames...), dynamic: true}, nil
}

func lookupError(err error, format string, args ...any) error {
	if errors.Is(err, model.ErrNotFound) {
		return apperr.NotFound(format, args...)
	}
	return fmt.Errorf("lookup event type: %w", err)
}

func hostUsernames(et model.EventType) []string {
	out := make([]string, 0, len(et.Hosts))
	for _, h := range et.Hosts {
		out = append(out, h.User.Username)
	}
	return out
}

// fetchHosts loads every host's availability concurrently. The first failure cancels the
// rest.
func (s *Service) fetchHosts(ctx context.Context, et model.EventType, w window, duration int) ([]availability.HostSchedule, error) {
	ctx, span := s.tracer.Start(ctx, "scheduling.fetchHosts", trace.WithAttributes(attribute.Int("hosts", len(et.Hosts))))
	defer span.End()

	busyFrom, busyTo := busyRange(et, w, duration)
	out := make([]availability.HostSchedule, len(et.Hosts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.MaxConcurrentFetches)
	for i, h := range et.Hosts {
		g.Go(func() error {
			hs, err := s.avail.GetUserAvailability(gctx, model.UserAvailabilityQuery{
				User:        h.User,
				IsFixed:     h.IsFixed,
				From:        w.start,
				To:          w.end,
				EventTypeID: et.ID,
				Seated:      et.SeatsPerTimeSlot > 0,
				BusyFrom:    busyFrom,
				BusyTo:      busyTo,
				ForceUTC:    w.forceUTC,
			})
			if err != nil {
				return fmt.Errorf("availability for %s: %w", h.User.Username, err)
			}
			out[i] = hs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetch failed")
		return nil, err
	}
	return out, nil
}

// busyRange widens w by what a slot check reaches: the before buffer ahead of the first
// slot, the slot length and after buffer behind the last.
func busyRange(et model.EventType, w window, duration int) (time.Time, time.Time) {
	length := et.Length
	if duration > 0 {
		length = duration
	}
	before := time.Duration(et.BeforeEventBuffer) * time.Minute
	after := time.Duration(length+et.AfterEventBuffer) * time.Minute
	return w.start.Add(-before), w.end.Add(after)
}

func firstSeats(schedules []availability.HostSchedule) availability.CurrentSeats {
	for _, h := range schedules {
		if len(h.CurrentSeats) > 0 {
			return h.CurrentSeats
		}
	}
	return nil
}

func constraints(et model.EventType) availability.EventConstraints {
	period := availability.PeriodConfig{
		Type:              availability.PeriodType(strings.ToUpper(et.PeriodType)),
		Days:              et.PeriodDays,
		CountCalendarDays: et.PeriodCountCalendarDays,
	}
	if et.PeriodStartDate != nil {
		period.StartDate = *et.PeriodStartDate
	}
	if et.PeriodEndDate != nil {
		period.EndDate = *et.PeriodEndDate
	}
	return availability.EventConstraints{
		Length:               et.Length,
		SlotInterval:         et.SlotInterval,
		MinimumBookingNotice: et.MinimumBookingNotice,
		BeforeEventBuffer:    et.BeforeEventBuffer,
		AfterEventBuffer:     et.AfterEventBuffer,
		SeatsPerTimeSlot:     et.SeatsPerTimeSlot,
		SchedulingType:       availability.SchedulingType(strings.ToUpper(et.SchedulingType)),
		Period:               period,
	}
}

func (s *Service) cacheKey(req Request, w window, now time.Time) string {
	return s.cache.Key(
		strconv.FormatInt(req.EventTypeID, 10),
		strings.TrimSpace(req.EventTypeSlug),
		strings.Join(req.UsernameList, ","),
		w.start.UTC().Format(time.RFC3339),
		w.end.UTC().Format(time.RFC3339),
		w.loc.String(),
		strconv.Itoa(req.Duration),
		string(s.cfg.UsersMode),
		now.UTC().Truncate(time.Minute).Format(time.RFC3339),
	)
}
