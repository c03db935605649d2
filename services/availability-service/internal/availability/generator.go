package availability

import (
	"slices"
	"time"
)

type GenerateParams struct {
	Start time.Time
	End   time.Time
	// Duration and Frequency are in minutes. Frequency <= 0 falls back to Duration.
	Duration      int
	Frequency     int
	MinimumNotice int
	Now           time.Time
	// Location is the zone of the returned slot times; nil means UTC.
	Location *time.Location
	Hosts    HostTable
}

// Generate merges the working windows of all hosts into ranges and steps each range from
// its own start by Frequency while a full Duration still fits. Ranges are not cut at day
// boundaries, so a host working across midnight keeps one grid. Only grid points inside
// [Start, End) and not before Now+MinimumNotice are emitted; skipping never shifts the
// grid. Location is the zone of the returned times.
//
// Every slot carries the hosts whose own working window contains the whole slot; slots
// no single host can cover are dropped.
func Generate(p GenerateParams) []CandidateSlot {
	if p.Duration <= 0 || !p.End.After(p.Start) {
		return nil
	}
	loc := p.Location
	if loc == nil {
		loc = time.UTC
	}
	duration := time.Duration(p.Duration) * time.Minute
	step := time.Duration(p.Frequency) * time.Minute
	if step <= 0 {
		step = duration
	}
	lower := p.Start
	if notBefore := p.Now.Add(time.Duration(p.MinimumNotice) * time.Minute); notBefore.After(lower) {
		lower = notBefore
	}

	var windows []Interval
	for i := 0; i < p.Hosts.Len(); i++ {
		windows = append(windows, p.Hosts.Windows(i)...)
	}

	byTime := make(map[time.Time]HostSet)
	for _, r := range mergeIntervals(windows) {
		if !r.Start.Before(p.End) || !r.End.After(lower) {
			continue
		}
		for t := firstGridPoint(r.Start, lower, step); t.Before(p.End) && !t.Add(duration).After(r.End); t = t.Add(step) {
			hosts := coveringHosts(p.Hosts, t, t.Add(duration))
			if hosts.Len() == 0 {
				continue
			}
			key := t.UTC()
			byTime[key] = byTime[key].Union(hosts)
		}
	}

	out := make([]CandidateSlot, 0, len(byTime))
	for t, hosts := range byTime {
		out = append(out, CandidateSlot{Time: t.In(loc), Hosts: hosts})
	}
	slices.SortFunc(out, func(a, b CandidateSlot) int { return a.Time.Compare(b.Time) })
	return out
}

// firstGridPoint returns the first anchor+k*step (k >= 0) at or after lower.
func firstGridPoint(anchor, lower time.Time, step time.Duration) time.Time {
	if !anchor.Before(lower) {
		return anchor
	}
	k := (lower.Sub(anchor) + step - 1) / step
	return anchor.Add(k * step)
}

func coveringHosts(table HostTable, start, end time.Time) HostSet {
	var idx []int
	for i := 0; i < table.Len(); i++ {
		if table.working(i, start, end) {
			idx = append(idx, i)
		}
	}
	return HostSet{idx: idx}
}
