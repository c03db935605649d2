package availability

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

type UsersMode string

const (
	// UsersFromEventHosts lists the event's declared hosts on every slot.
	UsersFromEventHosts UsersMode = "event_hosts"
	// UsersFromSlotHosts lists only the hosts still able to take the slot.
	UsersFromSlotHosts UsersMode = "slot_hosts"
)

func ParseUsersMode(s string) (UsersMode, error) {
	switch m := UsersMode(strings.ToLower(strings.TrimSpace(s))); m {
	case "", UsersFromEventHosts:
		return UsersFromEventHosts, nil
	case UsersFromSlotHosts:
		return m, nil
	default:
		return "", fmt.Errorf("unknown users mode %q", s)
	}
}

// Slot is one bookable start time as returned to clients.
type Slot struct {
	Time       string   `json:"time"`
	Users      []string `json:"users,omitempty"`
	Attendees  *int     `json:"attendees,omitempty"`
	BookingUID string   `json:"bookingUid,omitempty"`
}

type AggregateParams struct {
	Location *time.Location
	Mode     UsersMode
	// Users is the event-level user list used by UsersFromEventHosts.
	Users []string
	Hosts HostTable
	// Seats annotates matching slots when Seated is set.
	Seated bool
	Seats  CurrentSeats
}

// Aggregate groups slots by calendar date (YYYY-MM-DD in Location), keeping time order
// within each date.
func Aggregate(slots []CandidateSlot, p AggregateParams) map[string][]Slot {
	loc := p.Location
	if loc == nil {
		loc = time.UTC
	}
	out := make(map[string][]Slot)
	for _, s := range slots {
		local := s.Time.In(loc)
		slot := Slot{
			Time:  s.Time.UTC().Format(time.RFC3339),
			Users: slotUsers(s, p),
		}
		if p.Seated {
			if seat, ok := p.Seats.Find(s.Time); ok {
				attendees := seat.AttendeeCount
				slot.Attendees = &attendees
				slot.BookingUID = seat.BookingUID
			}
		}
		key := local.Format(dateLayout)
		out[key] = append(out[key], slot)
	}
	return out
}

func slotUsers(s CandidateSlot, p AggregateParams) []string {
	if p.Mode == UsersFromSlotHosts {
		users := make([]string, 0, s.Hosts.Len())
		for _, i := range s.Hosts.idx {
			users = append(users, p.Hosts.Host(i).Username)
		}
		return users
	}
	return slices.Clone(p.Users)
}
