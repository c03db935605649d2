package availability

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAggregateWorkingHours(t *testing.T) {
	hosts := []HostSchedule{
		{Host: Host{UserID: 1}, WorkingHours: []WorkingHours{
			{Days: []time.Weekday{time.Monday}, StartMinute: 540, EndMinute: 1020},
			{Days: []time.Weekday{time.Tuesday}, StartMinute: 600, EndMinute: 600},
		}},
		{Host: Host{UserID: 2}, WorkingHours: []WorkingHours{
			{UserID: 99, Days: []time.Weekday{time.Friday}, StartMinute: 0, EndMinute: 1440},
			{Days: nil, StartMinute: 0, EndMinute: 60},
		}},
	}

	got := AggregateWorkingHours(hosts)
	require.Len(t, got, 2)
	assert.Equal(t, int64(1), got[0].UserID)
	assert.Equal(t, int64(2), got[1].UserID, "owner comes from the host, not the row")
	assert.Equal(t, 1440, got[1].EndMinute)
}

func TestHostWindows(t *testing.T) {
	hours := []WorkingHours{
		{Days: []time.Weekday{time.Monday, time.Tuesday}, StartMinute: 9 * 60, EndMinute: 12 * 60},
		{Days: []time.Weekday{time.Monday}, StartMinute: 11 * 60, EndMinute: 14 * 60},
	}
	// Monday 2024-01-01 through Wednesday 2024-01-03.
	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 1, 3, 12, 0, 0, 0, time.UTC)

	got := HostWindows(hours, nil, time.UTC, from, to)
	assert.Equal(t, []Interval{
		{Start: time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC), End: time.Date(2024, 1, 1, 14, 0, 0, 0, time.UTC)},
		{Start: time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC), End: time.Date(2024, 1, 2, 12, 0, 0, 0, time.UTC)},
	}, got)
}

func TestHostWindows_OverrideReplacesDay(t *testing.T) {
	hours := []WorkingHours{{Days: allWeek(), StartMinute: 9 * 60, EndMinute: 17 * 60}}
	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 1, 2, 23, 0, 0, 0, time.UTC)
	overrides := []DateOverride{
		{Date: "2024-01-01", Intervals: []Interval{{Start: at(7, 0), End: at(8, 0)}}},
		{Date: "2024-01-02"},
	}

	got := HostWindows(hours, overrides, time.UTC, from, to)
	assert.Equal(t, []Interval{{Start: at(7, 0), End: at(8, 0)}}, got)
}

func TestHostWindows_MidnightEnd(t *testing.T) {
	hours := []WorkingHours{{Days: []time.Weekday{time.Monday}, StartMinute: 22 * 60, EndMinute: minutesPerDay}}
	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	got := HostWindows(hours, nil, time.UTC, from, from.Add(12*time.Hour))
	require.Len(t, got, 1)
	assert.Equal(t, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), got[0].End)
}

func TestNewHostTable_FixedBySchedulingType(t *testing.T) {
	schedules := []HostSchedule{
		{Host: Host{UserID: 1, IsFixed: true}},
		{Host: Host{UserID: 2}},
	}
	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	to := from.Add(24 * time.Hour)

	rr := NewHostTable(schedules, SchedulingRoundRobin, from, to, false)
	assert.Equal(t, []int{0}, rr.Fixed())
	assert.Equal(t, []int{1}, rr.Loose())

	for _, st := range []SchedulingType{SchedulingNone, SchedulingCollective} {
		tbl := NewHostTable(schedules, st, from, to, false)
		assert.Equal(t, []int{0, 1}, tbl.Fixed())
		assert.Empty(t, tbl.Loose())
	}
}

func TestLoadLocation(t *testing.T) {
	assert.Equal(t, time.UTC, LoadLocation(""))
	assert.Equal(t, time.UTC, LoadLocation("Not/AZone"))
}

func TestGenerate_FrequencyFallbackAndMergedRanges(t *testing.T) {
	a := HostSchedule{Host: Host{UserID: 1, TimeZone: "UTC"}, WorkingHours: []WorkingHours{{Days: allWeek(), StartMinute: 9 * 60, EndMinute: 10 * 60}}}
	b := HostSchedule{Host: Host{UserID: 2, TimeZone: "UTC"}, WorkingHours: []WorkingHours{{Days: allWeek(), StartMinute: 9*60 + 30, EndMinute: 11 * 60}}}
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(24 * time.Hour)

	slots := Generate(GenerateParams{
		Start:    start,
		End:      end,
		Duration: 30,
		Hosts:    NewHostTable([]HostSchedule{a, b}, SchedulingRoundRobin, start, end, false),
	})

	require.Len(t, slots, 4)
	assert.Equal(t, at(9, 0), slots[0].Time)
	assert.Equal(t, []int{0}, slots[0].Hosts.Indices())
	assert.Equal(t, at(9, 30), slots[1].Time)
	assert.Equal(t, []int{0, 1}, slots[1].Hosts.Indices())
	assert.Equal(t, at(10, 30), slots[3].Time)
	assert.Equal(t, []int{1}, slots[3].Hosts.Indices())
}
