package availability

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIsAvailable(t *testing.T) {
	busy := []Interval{{Start: at(10, 0), End: at(10, 30)}}
	tests := []struct {
		name     string
		start    time.Time
		duration time.Duration
		want     bool
	}{
		{"ends where busy starts", at(9, 30), 30 * time.Minute, true},
		{"starts where busy ends", at(10, 30), 30 * time.Minute, true},
		{"same interval", at(10, 0), 30 * time.Minute, false},
		{"ends inside busy", at(9, 45), 30 * time.Minute, false},
		{"starts inside busy", at(10, 20), 30 * time.Minute, false},
		{"inside busy", at(10, 10), 10 * time.Minute, false},
		{"contains busy", at(9, 30), 90 * time.Minute, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsAvailable(tt.start, busy, tt.duration, nil))
		})
	}
}

func TestIsAvailable_SeatBypass(t *testing.T) {
	busy := []Interval{{Start: at(9, 0), End: at(17, 0)}}
	seats := CurrentSeats{{StartTime: at(10, 0), BookingUID: "bk", AttendeeCount: 2}}

	assert.True(t, IsAvailable(at(10, 0), busy, 30*time.Minute, seats))
	assert.False(t, IsAvailable(at(10, 30), busy, 30*time.Minute, seats))
}

func TestIsAvailable_IgnoresEmptyBusy(t *testing.T) {
	busy := []Interval{{Start: at(10, 15), End: at(10, 15)}}
	assert.True(t, IsAvailable(at(10, 0), busy, 30*time.Minute, nil))
}

func TestBusyIndex(t *testing.T) {
	idx := newBusyIndex([]Interval{
		{Start: at(10, 0), End: at(10, 15)},
		{Start: at(9, 0), End: at(12, 0)},
		{Start: at(15, 0), End: at(15, 0)},
		{Start: at(14, 0), End: at(15, 0)},
	})

	assert.True(t, idx.overlaps(at(11, 0), at(11, 30)), "covered by the long interval")
	assert.False(t, idx.overlaps(at(12, 0), at(12, 30)))
	assert.False(t, idx.overlaps(at(13, 30), at(14, 0)))
	assert.True(t, idx.overlaps(at(13, 30), at(14, 1)))
	assert.False(t, idx.overlaps(at(15, 0), at(16, 0)))
	assert.False(t, newBusyIndex(nil).overlaps(at(9, 0), at(10, 0)))
}

func TestMergeIntervals(t *testing.T) {
	got := mergeIntervals([]Interval{
		{Start: at(13, 0), End: at(17, 0)},
		{Start: at(9, 0), End: at(12, 0)},
		{Start: at(12, 0), End: at(12, 30)},
		{Start: at(14, 0), End: at(15, 0)},
		{Start: at(18, 0), End: at(18, 0)},
	})
	assert.Equal(t, []Interval{
		{Start: at(9, 0), End: at(12, 30)},
		{Start: at(13, 0), End: at(17, 0)},
	}, got)
}

func TestHostSet(t *testing.T) {
	s := NewHostSet(3, 1, 3, 2)
	assert.Equal(t, []int{1, 2, 3}, s.Indices())
	assert.True(t, s.Contains(2))
	assert.False(t, s.Contains(4))

	odd := s.Filter(func(i int) bool { return i%2 == 1 })
	assert.Equal(t, []int{1, 3}, odd.Indices())
	assert.Equal(t, 3, s.Len(), "filter leaves the source untouched")

	assert.Equal(t, []int{1, 2, 3, 5}, odd.Union(NewHostSet(5, 2)).Indices())
}
