package availability

import "time"

// IsAvailable reports whether a slot of the given duration starting at t is free of busy
// time. A seat booking at exactly t makes the slot available regardless of busy time, so
// further attendees can join it.
func IsAvailable(t time.Time, busy []Interval, duration time.Duration, seats CurrentSeats) bool {
	if _, ok := seats.Find(t); ok {
		return true
	}
	return !overlapsAny(t, t.Add(duration), busy)
}

// CheckParams carries what the per-host check needs besides the host itself. Values are
// minutes.
type CheckParams struct {
	Duration     int
	BeforeBuffer int
	AfterBuffer  int
	Seats        CurrentSeats
}

// hostAvailable checks host i for the slot at t: seat bypass first, then the host's
// working window, then busy time widened by the event buffers.
func (tbl HostTable) hostAvailable(i int, t time.Time, p CheckParams) bool {
	if _, ok := p.Seats.Find(t); ok {
		return true
	}
	end := t.Add(time.Duration(p.Duration) * time.Minute)
	if !tbl.working(i, t, end) {
		return false
	}
	start := t.Add(-time.Duration(p.BeforeBuffer) * time.Minute)
	end = end.Add(time.Duration(p.AfterBuffer) * time.Minute)
	return !tbl.hosts[i].busy.overlaps(start, end)
}

// FilterFixed keeps the slots every fixed host can take. Without fixed hosts the slots
// pass through unchanged.
func FilterFixed(slots []CandidateSlot, tbl HostTable, p CheckParams) []CandidateSlot {
	fixed := tbl.Fixed()
	out := make([]CandidateSlot, 0, len(slots))
	for _, s := range slots {
		ok := true
		for _, i := range fixed {
			if !tbl.hostAvailable(i, s.Time, p) {
				ok = false
				break
			}
		}
		if ok {
			out = append(out, s)
		}
	}
	return out
}

// FilterLoose narrows each slot's hosts to the loose hosts that can take it and drops
// slots left with none. Without loose hosts the slots pass through unchanged.
func FilterLoose(slots []CandidateSlot, tbl HostTable, p CheckParams) []CandidateSlot {
	out := make([]CandidateSlot, 0, len(slots))
	if len(tbl.Loose()) == 0 {
		return append(out, slots...)
	}
	for _, s := range slots {
		hosts := s.Hosts.Filter(func(i int) bool {
			return !tbl.IsFixed(i) && tbl.hostAvailable(i, s.Time, p)
		})
		if hosts.Len() == 0 {
			continue
		}
		out = append(out, CandidateSlot{Time: s.Time, Hosts: hosts})
	}
	return out
}
