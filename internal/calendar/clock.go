package calendar

import (
	"errors"
	"fmt"
)

var ErrMalformedClock = errors.New("malformed clock time")

// TimeOfDay is a wall-clock time at minute granularity, stored as minutes
// since midnight. Valid values are 0 <= t < 1440.
type TimeOfDay int

const MinutesPerDay = 24 * 60

// ClockTime builds a TimeOfDay from hour and minute components.
func ClockTime(hour, minute int) TimeOfDay {
	return TimeOfDay(hour*60 + minute)
}

// ParseClock parses an HH:MM string. Both fields must be all digits; there is
// no whitespace or trailing-garbage tolerance.
func ParseClock(s string) (TimeOfDay, error) {
	if len(s) != 5 || s[2] != ':' {
		return 0, fmt.Errorf("%w: %q", ErrMalformedClock, s)
	}
	h, okH := parseDigits(s[0:2])
	m, okM := parseDigits(s[3:5])
	if !okH || !okM || h > 23 || m > 59 {
		return 0, fmt.Errorf("%w: %q", ErrMalformedClock, s)
	}
	return ClockTime(h, m), nil
}

// String renders the time as HH:MM.
func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", int(t)/60, int(t)%60)
}

func (t TimeOfDay) Valid() bool {
	return t >= 0 && t < MinutesPerDay
}

func (t TimeOfDay) Before(o TimeOfDay) bool { return t < o }

// AddMinutes returns the time n minutes later. The caller is responsible for
// keeping the result within the same day.
func (t TimeOfDay) AddMinutes(n int) TimeOfDay {
	return t + TimeOfDay(n)
}
