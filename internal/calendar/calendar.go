// Package calendar holds the date and wall-clock value types the scheduling
// core is written in terms of. Everything here is pure; the only failure mode
// is a malformed parse input.
package calendar

import (
	"errors"
	"fmt"
	"time"
)

var ErrMalformedDate = errors.New("malformed date")

// LocalDate is a calendar date with no time-zone component.
type LocalDate struct {
	Year  int
	Month int // 1-12
	Day   int // 1-31
}

// DateOf truncates t to its local calendar date.
func DateOf(t time.Time) LocalDate {
	y, m, d := t.Date()
	return LocalDate{Year: y, Month: int(m), Day: d}
}

// ParseISO parses a YYYY-MM-DD string. Every field must be all digits; there
// is no whitespace or trailing-garbage tolerance.
func ParseISO(s string) (LocalDate, error) {
	if len(s) != 10 || s[4] != '-' || s[7] != '-' {
		return LocalDate{}, fmt.Errorf("%w: %q", ErrMalformedDate, s)
	}
	year, okY := parseDigits(s[0:4])
	month, okM := parseDigits(s[5:7])
	day, okD := parseDigits(s[8:10])
	if !okY || !okM || !okD {
		return LocalDate{}, fmt.Errorf("%w: %q", ErrMalformedDate, s)
	}
	d := LocalDate{Year: year, Month: month, Day: day}
	if !d.Valid() {
		return LocalDate{}, fmt.Errorf("%w: %q", ErrMalformedDate, s)
	}
	return d, nil
}

// parseDigits converts a string of ASCII digits. Any other byte fails.
func parseDigits(s string) (int, bool) {
	n := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c < '0' || c > '9' {
			return 0, false
		}
		n = n*10 + int(c-'0')
	}
	return n, true
}

// ISO renders the date as YYYY-MM-DD.
func (d LocalDate) ISO() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day)
}

// Valid reports whether d is a real Gregorian date.
func (d LocalDate) Valid() bool {
	if d.Year < 1 || d.Month < 1 || d.Month > 12 || d.Day < 1 {
		return false
	}
	return d.Day <= DaysInMonth(d.Year, d.Month)
}

func (d LocalDate) Equal(o LocalDate) bool {
	return d == o
}

// Before orders dates chronologically.
func (d LocalDate) Before(o LocalDate) bool {
	if d.Year != o.Year {
		return d.Year < o.Year
	}
	if d.Month != o.Month {
		return d.Month < o.Month
	}
	return d.Day < o.Day
}

func (d LocalDate) After(o LocalDate) bool {
	return o.Before(d)
}

// Time anchors the date at midnight in loc.
func (d LocalDate) Time(loc *time.Location) time.Time {
	return time.Date(d.Year, time.Month(d.Month), d.Day, 0, 0, 0, 0, loc)
}

// AddDays returns the date n days after d (n may be negative).
func (d LocalDate) AddDays(n int) LocalDate {
	return DateOf(d.Time(time.UTC).AddDate(0, 0, n))
}

// Weekday with Monday = 0, matching the ISO week used by the calendar views.
func (d LocalDate) Weekday() int {
	wd := d.Time(time.UTC).Weekday() // Sunday = 0
	return (int(wd) + 6) % 7
}

// StartOfWeek returns the Monday on or before d.
func StartOfWeek(d LocalDate) LocalDate {
	return d.AddDays(-d.Weekday())
}

// DaysInMonth applies the standard Gregorian rule, leap years included.
func DaysInMonth(year, month int) int {
	switch month {
	case 1, 3, 5, 7, 8, 10, 12:
		return 31
	case 4, 6, 9, 11:
		return 30
	case 2:
		if isLeap(year) {
			return 29
		}
		return 28
	default:
		return 0
	}
}

func isLeap(year int) bool {
	return year%4 == 0 && (year%100 != 0 || year%400 == 0)
}
