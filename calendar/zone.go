package calendar

import (
	"time"
	_ "time/tzdata"
)

// =============================================================================
// ZONE - Local wall clock to UTC instant
// =============================================================================

// Zone converts local wall-clock tuples of one IANA zone into UTC instants.
// The zone database is embedded (time/tzdata) so conversions do not depend on
// the host's zoneinfo files.
type Zone struct {
	Name string
	loc  *time.Location
}

// UTC is the fallback zone for unknown countries.
var UTC = Zone{Name: "UTC", loc: time.UTC}

// LoadZone resolves an IANA zone name.
func LoadZone(name string) (Zone, error) {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return Zone{}, err
	}
	return Zone{Name: name, loc: loc}, nil
}

// Location returns the underlying location.
func (z Zone) Location() *time.Location {
	if z.loc == nil {
		return time.UTC
	}
	return z.loc
}

// At converts a local date and time of day into a UTC instant. Offsets are
// resolved for that exact wall-clock moment, so DST transitions between the
// query date and today do not shift the result.
func (z Zone) At(d Date, c Clock) time.Time {
	return time.Date(d.Year(), d.Month(), d.Day(), c.Hour, c.Minute, 0, 0, z.Location()).UTC()
}

// Window converts a custom start/end time pair on day d into UTC instants.
// When wrap is true the window crosses midnight and the end is computed
// against d+1.
func (z Zone) Window(d Date, start, end Clock, wrap bool) (time.Time, time.Time) {
	endDay := d
	if wrap {
		endDay = d.AddDays(1)
	}
	return z.At(d, start), z.At(endDay, end)
}

// DateOf returns the local calendar day of an instant.
func (z Zone) DateOf(t time.Time) Date {
	local := t.In(z.Location())
	return NewDate(local.Year(), local.Month(), local.Day())
}

// Today returns the local calendar day of now.
func (z Zone) Today(now time.Time) Date {
	return z.DateOf(now)
}
