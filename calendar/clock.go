package calendar

import (
	"fmt"
	"strconv"
	"strings"
)

// Clock is a local time of day with minute precision.
type Clock struct {
	Hour   int
	Minute int
}

var (
	StartOfDay = Clock{Hour: 0, Minute: 0}
	EndOfDay   = Clock{Hour: 23, Minute: 59}
)

// ParseClock parses "HH:MM" (also accepts "H:MM" and "HH:MM:SS", seconds ignored).
func ParseClock(s string) (Clock, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return Clock{}, fmt.Errorf("invalid time of day %q (use HH:MM)", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return Clock{}, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return Clock{}, fmt.Errorf("invalid minute in %q", s)
	}
	return Clock{Hour: h, Minute: m}, nil
}

// ParseClockOr parses s, returning fallback when s is empty or malformed.
func ParseClockOr(s string, fallback Clock) Clock {
	if s == "" {
		return fallback
	}
	c, err := ParseClock(s)
	if err != nil {
		return fallback
	}
	return c
}

func (c Clock) minutes() int { return c.Hour*60 + c.Minute }

// Before reports whether c is numerically earlier than other.
func (c Clock) Before(other Clock) bool { return c.minutes() < other.minutes() }

func (c Clock) String() string { return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute) }
