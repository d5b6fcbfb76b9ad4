// Package schedule computes the working-hours slot grid and the availability
// of each slot for one clinic day. All computations are pure and work on a
// snapshot of booked times fetched by the caller immediately before.
package schedule

import (
	"fmt"

	"github.com/clinisys/clinic-scheduling/internal/calendar"
)

// WorkingHours is the clinic-wide slot policy: appointments run from Start to
// End in fixed Interval-minute units. The zero value is not usable; Validate
// must pass before the policy is handed to the rest of the core.
type WorkingHours struct {
	Start    calendar.TimeOfDay
	End      calendar.TimeOfDay
	Interval int // minutes
}

// DefaultWorkingHours is the standing clinic policy: 08:00-17:00 in
// 15-minute units.
var DefaultWorkingHours = WorkingHours{
	Start:    calendar.ClockTime(8, 0),
	End:      calendar.ClockTime(17, 0),
	Interval: 15,
}

func (w WorkingHours) Validate() error {
	if !w.Start.Valid() || !w.End.Valid() {
		return fmt.Errorf("working hours out of range: %s-%s", w.Start, w.End)
	}
	if w.Interval <= 0 {
		return fmt.Errorf("slot interval must be positive, got %d", w.Interval)
	}
	if w.Start >= w.End {
		return fmt.Errorf("working hours start %s not before end %s", w.Start, w.End)
	}
	if (int(w.End)-int(w.Start))%w.Interval != 0 {
		return fmt.Errorf("interval %dm does not divide working hours %s-%s", w.Interval, w.Start, w.End)
	}
	return nil
}

// Slots generates the candidate slot times for one day: (End-Start)/Interval
// entries, strictly increasing, starting at Start and ending before End.
func (w WorkingHours) Slots() []calendar.TimeOfDay {
	n := (int(w.End) - int(w.Start)) / w.Interval
	times := make([]calendar.TimeOfDay, 0, n)
	for t := w.Start; t < w.End; t = t.AddMinutes(w.Interval) {
		times = append(times, t)
	}
	return times
}

// Month identifies one calendar month inside the booking window.
type Month struct {
	Year  int
	Month int // 1-12
}

// MonthWindow lists the n months a booking may target, starting at today's
// month.
func MonthWindow(today calendar.LocalDate, n int) []Month {
	months := make([]Month, 0, n)
	y, m := today.Year, today.Month
	for i := 0; i < n; i++ {
		months = append(months, Month{Year: y, Month: m})
		m++
		if m > 12 {
			m = 1
			y++
		}
	}
	return months
}

// DaysInMonthFrom lists the bookable days of a month: every day of the month
// on or after today. The cutoff is date-level only; whether a partially
// elapsed today should also drop its past slots is a policy decision made at
// availability time, not here.
func DaysInMonthFrom(m Month, today calendar.LocalDate) []calendar.LocalDate {
	last := calendar.DaysInMonth(m.Year, m.Month)
	days := make([]calendar.LocalDate, 0, last)
	for d := 1; d <= last; d++ {
		date := calendar.LocalDate{Year: m.Year, Month: m.Month, Day: d}
		if date.Before(today) {
			continue
		}
		days = append(days, date)
	}
	return days
}
