package availability

import (
	"slices"
	"time"
)

const (
	minutesPerDay = 24 * 60
	dateLayout    = "2006-01-02"
)

// WorkingHours is a recurring weekly window expressed in minutes from the host's local
// midnight. EndMinute may be 1440 for "until midnight".
type WorkingHours struct {
	UserID      int64
	Days        []time.Weekday
	StartMinute int
	EndMinute   int
}

func (w WorkingHours) valid() bool {
	return len(w.Days) > 0 && w.StartMinute >= 0 && w.EndMinute <= minutesPerDay && w.EndMinute > w.StartMinute
}

// DateOverride replaces a host's recurring hours on one host-local date. An override
// without intervals marks the whole day as unavailable.
type DateOverride struct {
	UserID    int64
	Date      string
	Intervals []Interval
}

// AggregateWorkingHours flattens the hosts' recurring hours into one set, each entry
// tagged with its owner. Hours are not intersected here: for collective events every
// fixed host has to pass its own availability check later, which yields the
// intersection. The scheduling type only decides which hosts are fixed, see NewHostTable.
func AggregateWorkingHours(hosts []HostSchedule) []WorkingHours {
	var out []WorkingHours
	for _, h := range hosts {
		for _, wh := range h.WorkingHours {
			if !wh.valid() {
				continue
			}
			wh.UserID = h.Host.UserID
			wh.Days = slices.Clone(wh.Days)
			out = append(out, wh)
		}
	}
	return out
}

// HostWindows expands recurring hours and date overrides into absolute, merged windows
// covering every host-local date touched by [from, to].
func HostWindows(hours []WorkingHours, overrides []DateOverride, loc *time.Location, from, to time.Time) []Interval {
	if loc == nil {
		loc = time.UTC
	}
	byDate := make(map[string][]Interval, len(overrides))
	for _, o := range overrides {
		byDate[o.Date] = append(byDate[o.Date], o.Intervals...)
	}

	first := from.In(loc)
	last := to.In(loc)
	var out []Interval
	for day := startOfDay(first); !day.After(last); day = nextDay(day) {
		if ov, ok := byDate[day.Format(dateLayout)]; ok {
			out = append(out, ov...)
			continue
		}
		y, m, d := day.Date()
		for _, wh := range hours {
			if !slices.Contains(wh.Days, day.Weekday()) {
				continue
			}
			out = append(out, Interval{
				Start: time.Date(y, m, d, 0, wh.StartMinute, 0, 0, loc),
				End:   time.Date(y, m, d, 0, wh.EndMinute, 0, 0, loc),
			})
		}
	}
	return mergeIntervals(out)
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func nextDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, t.Location())
}

type hostEntry struct {
	host    Host
	fixed   bool
	windows []Interval
	busy    busyIndex
}

// HostTable is the per-request view of every host: working windows for the range and
// indexed busy time. Slots refer to hosts by their index here.
type HostTable struct {
	hosts []hostEntry
}

// NewHostTable builds the table for [from, to). With forceUTC every host's hours are read
// as UTC. For events without a scheduling type, and for collective events, every host is
// treated as fixed.
func NewHostTable(schedules []HostSchedule, st SchedulingType, from, to time.Time, forceUTC bool) HostTable {
	hoursByUser := make(map[int64][]WorkingHours, len(schedules))
	for _, wh := range AggregateWorkingHours(schedules) {
		hoursByUser[wh.UserID] = append(hoursByUser[wh.UserID], wh)
	}

	// Windows are expanded a day beyond the range on both sides so hosts far from the
	// request zone still cover the range edges.
	expandFrom := from.Add(-24 * time.Hour)
	expandTo := to.Add(24 * time.Hour)

	table := HostTable{hosts: make([]hostEntry, 0, len(schedules))}
	for _, s := range schedules {
		loc := time.UTC
		if !forceUTC {
			loc = LoadLocation(s.Host.TimeZone)
		}
		table.hosts = append(table.hosts, hostEntry{
			host:    s.Host,
			fixed:   st != SchedulingRoundRobin || s.Host.IsFixed,
			windows: HostWindows(hoursByUser[s.Host.UserID], s.DateOverrides, loc, expandFrom, expandTo),
			busy:    newBusyIndex(s.Busy),
		})
	}
	return table
}

// LoadLocation resolves an IANA zone name, falling back to UTC.
func LoadLocation(name string) *time.Location {
	if name == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (t HostTable) Len() int { return len(t.hosts) }

func (t HostTable) Host(i int) Host { return t.hosts[i].host }

func (t HostTable) IsFixed(i int) bool { return t.hosts[i].fixed }

func (t HostTable) indices(fixed bool) []int {
	var out []int
	for i, h := range t.hosts {
		if h.fixed == fixed {
			out = append(out, i)
		}
	}
	return out
}

func (t HostTable) Fixed() []int { return t.indices(true) }

func (t HostTable) Loose() []int { return t.indices(false) }

// Windows returns host i's working windows. The slice must not be modified.
func (t HostTable) Windows(i int) []Interval { return t.hosts[i].windows }

func (t HostTable) working(i int, start, end time.Time) bool {
	for _, w := range t.hosts[i].windows {
		if w.Start.After(start) {
			return false
		}
		if w.Contains(start, end) {
			return true
		}
	}
	return false
}
