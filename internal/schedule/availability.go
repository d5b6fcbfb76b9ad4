package schedule

import (
	"github.com/clinisys/clinic-scheduling/internal/calendar"
)

// Slot is a single candidate appointment unit, annotated with whether it is
// still free. Slots are derived per query and never persisted.
type Slot struct {
	Date      calendar.LocalDate
	Time      calendar.TimeOfDay
	Available bool
}

// BookedSet is the set of slot times already claimed for one (doctor, date).
type BookedSet map[calendar.TimeOfDay]struct{}

// NewBookedSet collects times into a set for O(1) membership tests.
func NewBookedSet(times []calendar.TimeOfDay) BookedSet {
	set := make(BookedSet, len(times))
	for _, t := range times {
		set[t] = struct{}{}
	}
	return set
}

// ResolveAvailability marks each candidate time of a day available unless it
// appears in the booked set. The result has exactly one Slot per candidate,
// in the same order.
func ResolveAvailability(date calendar.LocalDate, times []calendar.TimeOfDay, booked BookedSet) []Slot {
	slots := make([]Slot, len(times))
	for i, t := range times {
		_, taken := booked[t]
		slots[i] = Slot{Date: date, Time: t, Available: !taken}
	}
	return slots
}

// DropElapsed filters out candidate times at or before the given cutoff
// time. It implements the optional intra-day cutoff for bookings targeting
// the current day.
func DropElapsed(times []calendar.TimeOfDay, now calendar.TimeOfDay) []calendar.TimeOfDay {
	kept := make([]calendar.TimeOfDay, 0, len(times))
	for _, t := range times {
		if t <= now {
			continue
		}
		kept = append(kept, t)
	}
	return kept
}
