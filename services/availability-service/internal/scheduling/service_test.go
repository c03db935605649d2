package scheduling

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/md-rashed-zaman/slotfinder/libs/apperr"
	"github.com/md-rashed-zaman/slotfinder/services/availability-service/internal/availability"
	"github.com/md-rashed-zaman/slotfinder/services/availability-service/internal/cache"
	"github.com/md-rashed-zaman/slotfinder/services/availability-service/internal/fixtures"
	"github.com/md-rashed-zaman/slotfinder/services/availability-service/internal/metrics"
	"github.com/md-rashed-zaman/slotfinder/services/availability-service/internal/model"
)

var fixedNow = time.Date(2023, 12, 20, 0, 0, 0, 0, time.UTC)

type countingStore struct {
	AvailabilityStore
	calls atomic.Int64
	err   error
}

func (c *countingStore) GetUserAvailability(ctx context.Context, q model.UserAvailabilityQuery) (availability.HostSchedule, error) {
	c.calls.Add(1)
	if c.err != nil {
		return availability.HostSchedule{}, c.err
	}
	return c.AvailabilityStore.GetUserAvailability(ctx, q)
}

func newTestService(t *testing.T, cfg Config, opts Options) (*Service, *countingStore) {
	t.Helper()
	store, err := fixtures.Load("../fixtures/testdata/fixtures.yaml")
	require.NoError(t, err)
	if opts.Now == nil {
		opts.Now = func() time.Time { return fixedNow }
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New(prometheus.NewRegistry())
	}
	counting := &countingStore{AvailabilityStore: store}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(store, counting, cfg, logger, opts), counting
}

func mondayRequest() Request {
	return Request{
		StartTime: "2024-01-01T00:00:00Z",
		EndTime:   "2024-01-02T00:00:00Z",
	}
}

func times(res availability.Result, date string) []string {
	var out []string
	for _, s := range res.Slots[date] {
		out = append(out, s.Time)
	}
	return out
}

func TestGetSchedule_ByID(t *testing.T) {
	svc, _ := newTestService(t, Config{}, Options{})
	req := mondayRequest()
	req.EventTypeID = 1

	res, err := svc.GetSchedule(context.Background(), req)
	require.NoError(t, err)
	got := times(res, "2024-01-01")
	assert.Len(t, got, 15)
	assert.NotContains(t, got, "2024-01-01T10:00:00Z")
	assert.Contains(t, got, "2024-01-01T11:00:00Z", "cancelled bookings free the slot")
	assert.Equal(t, []string{"alice"}, res.Slots["2024-01-01"][0].Users)
}

func TestGetSchedule_BySlug(t *testing.T) {
	svc, _ := newTestService(t, Config{}, Options{})
	req := mondayRequest()
	req.UsernameList = []string{"alice"}
	req.EventTypeSlug = "intro"

	res, err := svc.GetSchedule(context.Background(), req)
	require.NoError(t, err)
	assert.Len(t, times(res, "2024-01-01"), 15)
}

func TestGetSchedule_Collective(t *testing.T) {
	svc, _ := newTestService(t, Config{}, Options{})
	req := mondayRequest()
	req.EventTypeID = 2

	res, err := svc.GetSchedule(context.Background(), req)
	require.NoError(t, err)
	got := times(res, "2024-01-01")
	require.Len(t, got, 13)
	assert.Equal(t, "2024-01-01T10:30:00Z", got[0])
	assert.Equal(t, "2024-01-01T16:30:00Z", got[12])
	assert.Equal(t, []string{"alice", "bob"}, res.Slots["2024-01-01"][0].Users)
}

func TestGetSchedule_RoundRobinSlotHosts(t *testing.T) {
	svc, _ := newTestService(t, Config{UsersMode: availability.UsersFromSlotHosts}, Options{})
	req := Request{
		StartTime:   "2024-01-02T00:00:00Z",
		EndTime:     "2024-01-04T00:00:00Z",
		EventTypeID: 3,
	}

	res, err := svc.GetSchedule(context.Background(), req)
	require.NoError(t, err)

	// dave is off on the 2nd and only works 13:00-15:00 on the 3rd.
	for _, s := range res.Slots["2024-01-02"] {
		assert.Equal(t, []string{"alice"}, s.Users)
	}
	byTime := map[string][]string{}
	for _, s := range res.Slots["2024-01-03"] {
		byTime[s.Time] = s.Users
	}
	assert.Equal(t, []string{"alice", "dave"}, byTime["2024-01-03T13:00:00Z"])
	assert.Equal(t, []string{"alice"}, byTime["2024-01-03T15:00:00Z"])
}

func TestGetSchedule_Seats(t *testing.T) {
	svc, _ := newTestService(t, Config{}, Options{})
	req := Request{
		StartTime:   "2024-01-03T00:00:00Z",
		EndTime:     "2024-01-04T00:00:00Z",
		EventTypeID: 4,
	}

	res, err := svc.GetSchedule(context.Background(), req)
	require.NoError(t, err)
	slots := res.Slots["2024-01-03"]
	require.Len(t, slots, 8)
	assert.Equal(t, "2024-01-03T09:00:00Z", slots[0].Time)
	require.NotNil(t, slots[0].Attendees)
	assert.Equal(t, 2, *slots[0].Attendees)
	assert.Equal(t, "0b7e2f4c-8d1a-4c3e-9f5b-6a7c8d9e0f1a", slots[0].BookingUID)
	assert.Nil(t, slots[1].Attendees)
}

func TestGetSchedule_NoticeIntervalAndPeriod(t *testing.T) {
	svc, _ := newTestService(t, Config{}, Options{
		Now: func() time.Time { return time.Date(2024, 1, 1, 9, 30, 0, 0, time.UTC) },
	})
	req := Request{
		StartTime:   "2024-01-01T00:00:00Z",
		EndTime:     "2024-01-06T00:00:00Z",
		EventTypeID: 5,
	}

	res, err := svc.GetSchedule(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, res.Slots, 3)
	got := times(res, "2024-01-01")
	require.Len(t, got, 6)
	assert.Equal(t, "2024-01-01T12:00:00Z", got[0])
	assert.Len(t, res.Slots["2024-01-03"], 8)
}

func TestGetSchedule_DynamicGroup(t *testing.T) {
	svc, _ := newTestService(t, Config{DynamicLength: 30}, Options{})
	req := mondayRequest()
	req.UsernameList = []string{"bob", "alice"}

	res, err := svc.GetSchedule(context.Background(), req)
	require.NoError(t, err)
	got := times(res, "2024-01-01")
	assert.Len(t, got, 13)
	assert.Equal(t, []string{"bob", "alice"}, res.Slots["2024-01-01"][0].Users)
}

func TestGetSchedule_Errors(t *testing.T) {
	tests := []struct {
		name string
		req  Request
		want error
	}{
		{"missing event and users", Request{StartTime: "2024-01-01T00:00:00Z", EndTime: "2024-01-02T00:00:00Z"}, apperr.ErrBadRequest},
		{"bad start", Request{StartTime: "yesterday", EndTime: "2024-01-02T00:00:00Z", EventTypeID: 1}, apperr.ErrBadRequest},
		{"end before start", Request{StartTime: "2024-01-02T00:00:00Z", EndTime: "2024-01-01T00:00:00Z", EventTypeID: 1}, apperr.ErrBadRequest},
		{"bad time zone", Request{StartTime: "2024-01-01T00:00:00Z", EndTime: "2024-01-02T00:00:00Z", EventTypeID: 1, TimeZone: "Mars/Olympus"}, apperr.ErrBadRequest},
		{"single user without slug", Request{StartTime: "2024-01-01T00:00:00Z", EndTime: "2024-01-02T00:00:00Z", UsernameList: []string{"alice"}}, apperr.ErrBadRequest},
		{"unknown event type", Request{StartTime: "2024-01-01T00:00:00Z", EndTime: "2024-01-02T00:00:00Z", EventTypeID: 99}, apperr.ErrNotFound},
		{"unknown slug", Request{StartTime: "2024-01-01T00:00:00Z", EndTime: "2024-01-02T00:00:00Z", UsernameList: []string{"alice"}, EventTypeSlug: "nope"}, apperr.ErrNotFound},
		{"unknown dynamic users", Request{StartTime: "2024-01-01T00:00:00Z", EndTime: "2024-01-02T00:00:00Z", UsernameList: []string{"x", "y"}}, apperr.ErrNotFound},
		{"dynamic booking disallowed", Request{StartTime: "2024-01-01T00:00:00Z", EndTime: "2024-01-02T00:00:00Z", UsernameList: []string{"alice", "carol"}}, apperr.ErrUnauthorized},
	}
	svc, store := newTestService(t, Config{}, Options{})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.GetSchedule(context.Background(), tt.req)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
		})
	}
	assert.Zero(t, store.calls.Load(), "errors are raised before any availability is fetched")
}

func TestGetSchedule_FetchFailure(t *testing.T) {
	svc, store := newTestService(t, Config{}, Options{})
	store.err = errors.New("connection refused")
	req := mondayRequest()
	req.EventTypeID = 2

	_, err := svc.GetSchedule(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, apperr.ErrInternal.Code, apperr.FromError(err).Code)
}

func TestGetSchedule_Cache(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	slotCache := cache.NewSlotCache(rdb, time.Minute)

	svc, store := newTestService(t, Config{}, Options{Cache: slotCache})
	req := mondayRequest()
	req.EventTypeID = 2

	first, err := svc.GetSchedule(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, int64(2), store.calls.Load())

	second, err := svc.GetSchedule(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, int64(2), store.calls.Load(), "second request is served from cache")

	n, err := slotCache.InvalidateUsers(context.Background(), []int64{2})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = svc.GetSchedule(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, int64(4), store.calls.Load())
}

func TestValidate_EtcGMTForcesUTC(t *testing.T) {
	w, err := validate(Request{StartTime: "2024-01-01T00:00:00Z", EndTime: "2024-01-02T00:00:00Z", EventTypeID: 1, TimeZone: "Etc/GMT"})
	require.NoError(t, err)
	assert.True(t, w.forceUTC)

	w, err = validate(Request{StartTime: "2024-01-01T00:00:00+01:00", EndTime: "2024-01-02T00:00:00Z", EventTypeID: 1, TimeZone: "Europe/Berlin"})
	require.NoError(t, err)
	assert.False(t, w.forceUTC)
	assert.Equal(t, "Europe/Berlin", w.loc.String())
}

func newYAMLService(t *testing.T, doc string) *Service {
	t.Helper()
	store, err := fixtures.Parse([]byte(doc))
	require.NoError(t, err)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(store, store, Config{}, logger, Options{Now: func() time.Time { return fixedNow }})
}

const bufferedDoc = `
users:
  - id: 1
    username: frank
    time_zone: UTC
    availability:
      - days: [1, 2, 3, 4, 5]
        start: "09:00"
        end: "17:00"
event_types:
  - id: 1
    owner: frank
    slug: consult
    length: 30
    before_event_buffer: 15
    after_event_buffer: 15
bookings:
  - username: frank
    event_type_id: 1
    start: 2024-01-01T08:30:00Z
    end: 2024-01-01T09:00:00Z
    status: accepted
  - username: frank
    event_type_id: 1
    start: 2024-01-01T12:30:00Z
    end: 2024-01-01T13:00:00Z
    status: accepted
`

func TestGetSchedule_BuffersSeeBookingsOutsideWindow(t *testing.T) {
	svc := newYAMLService(t, bufferedDoc)
	ctx := context.Background()

	full, err := svc.GetSchedule(ctx, Request{StartTime: "2024-01-01T00:00:00Z", EndTime: "2024-01-02T00:00:00Z", EventTypeID: 1})
	require.NoError(t, err)
	assert.NotContains(t, times(full, "2024-01-01"), "2024-01-01T09:00:00Z")
	assert.NotContains(t, times(full, "2024-01-01"), "2024-01-01T12:00:00Z")

	// Both bookings lie outside [09:00, 12:00) but their buffers still reach in.
	narrow, err := svc.GetSchedule(ctx, Request{StartTime: "2024-01-01T09:00:00Z", EndTime: "2024-01-01T12:30:00Z", EventTypeID: 1})
	require.NoError(t, err)
	got := times(narrow, "2024-01-01")
	require.NotEmpty(t, got)
	assert.Equal(t, "2024-01-01T09:30:00Z", got[0])
	assert.NotContains(t, got, "2024-01-01T12:00:00Z")

	for _, slot := range got {
		assert.Contains(t, times(full, "2024-01-01"), slot)
	}
}

const overrideDoc = `
users:
  - id: 1
    username: greta
    time_zone: Europe/Berlin
    availability:
      - days: [1, 2, 3, 4, 5]
        start: "09:00"
        end: "17:00"
      - date: "2024-01-03"
        start: "09:00"
        end: "12:00"
event_types:
  - id: 1
    owner: greta
    slug: consult
    length: 60
`

func TestGetSchedule_ForcedUTCReadsOverridesAsUTC(t *testing.T) {
	svc := newYAMLService(t, overrideDoc)
	ctx := context.Background()

	res, err := svc.GetSchedule(ctx, Request{
		StartTime:   "2024-01-02T00:00:00Z",
		EndTime:     "2024-01-04T00:00:00Z",
		EventTypeID: 1,
		TimeZone:    "Etc/GMT",
	})
	require.NoError(t, err)
	assert.Equal(t, "2024-01-02T09:00:00Z", times(res, "2024-01-02")[0])
	assert.Equal(t, []string{
		"2024-01-03T09:00:00Z",
		"2024-01-03T10:00:00Z",
		"2024-01-03T11:00:00Z",
	}, times(res, "2024-01-03"))

	local, err := svc.GetSchedule(ctx, Request{
		StartTime:   "2024-01-02T00:00:00Z",
		EndTime:     "2024-01-04T00:00:00Z",
		EventTypeID: 1,
	})
	require.NoError(t, err)
	assert.Equal(t, "2024-01-03T08:00:00Z", times(local, "2024-01-03")[0])
}
