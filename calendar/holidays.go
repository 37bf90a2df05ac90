/*
holidays.go - Country timezone and holiday service

PURPOSE:
  Resolves a country code to its IANA zone and its national holiday
  calendar, and merges in operator-defined custom holidays.

DESIGN:
  - Service is constructed explicitly and handed to the expander. There is
    no package-level cache: each Service owns its per-country calendars,
    built lazily on first lookup and guarded by a mutex.
  - National rules come from github.com/rickar/cal/v2 country packages.
  - Custom holidays mirror the holidays table: one-off dates or recurring
    month/day entries, scoped to a country ("" = every country).
  - Unknown country codes are not an error: UTC, no national holidays. The
    fallback is logged once per code so misconfiguration stays visible.

USAGE:
  svc := calendar.NewService(nil)
  zone := svc.Zone("FR")
  if svc.IsHoliday("FR", calendar.NewDate(2024, time.July, 14)) { ... }

SEE ALSO:
  - recurrence/expander.go: task-day predicate
  - store/sqlite/sqlite.go: custom holiday persistence
*/
package calendar

import (
	"sort"
	"strings"
	"sync"

	"github.com/rickar/cal/v2"
	"github.com/rickar/cal/v2/be"
	"github.com/rickar/cal/v2/de"
	"github.com/rickar/cal/v2/es"
	"github.com/rickar/cal/v2/fr"
	"github.com/rickar/cal/v2/gb"
	"github.com/rickar/cal/v2/it"
	"github.com/rickar/cal/v2/nl"
	"github.com/rickar/cal/v2/us"
	"github.com/sirupsen/logrus"

	applog "github.com/warp/checklist-engine/internal/log"
)

// =============================================================================
// RULES
// =============================================================================

// CountryRules is the holiday-rules table entry of one country.
type CountryRules struct {
	Zone     string
	Holidays []*cal.Holiday
}

// DefaultRules returns the built-in rules table keyed by ISO country code.
func DefaultRules() map[string]CountryRules {
	return map[string]CountryRules{
		"FR": {Zone: "Europe/Paris", Holidays: fr.Holidays},
		"BE": {Zone: "Europe/Brussels", Holidays: be.Holidays},
		"DE": {Zone: "Europe/Berlin", Holidays: de.Holidays},
		"ES": {Zone: "Europe/Madrid", Holidays: es.Holidays},
		"IT": {Zone: "Europe/Rome", Holidays: it.Holidays},
		"NL": {Zone: "Europe/Amsterdam", Holidays: nl.Holidays},
		"GB": {Zone: "Europe/London", Holidays: gb.Holidays},
		"US": {Zone: "America/New_York", Holidays: us.Holidays},
	}
}

// Holiday is a custom (operator-defined) holiday.
type Holiday struct {
	ID        string
	Country   string // "" = applies to every country
	Date      Date
	Name      string
	Recurring bool // true = same month/day every year
}

func (h Holiday) matches(d Date) bool {
	if h.Recurring {
		return h.Date.Month() == d.Month() && h.Date.Day() == d.Day()
	}
	return h.Date.Equal(d)
}

// =============================================================================
// SERVICE
// =============================================================================

type countryCalendar struct {
	zone     Zone
	business *cal.BusinessCalendar
	rules    []*cal.Holiday
}

// Service resolves zones and holidays per country.
type Service struct {
	mu        sync.RWMutex
	rules     map[string]CountryRules
	countries map[string]*countryCalendar
	custom    []Holiday
	warned    map[string]bool
	logger    logrus.FieldLogger
}

// NewService builds a service over the given rules table. A nil table uses
// DefaultRules.
func NewService(rules map[string]CountryRules) *Service {
	if rules == nil {
		rules = DefaultRules()
	}
	normalized := make(map[string]CountryRules, len(rules))
	for code, r := range rules {
		normalized[normalizeCountry(code)] = r
	}
	return &Service{
		rules:     normalized,
		countries: make(map[string]*countryCalendar),
		warned:    make(map[string]bool),
		logger:    applog.GetLogger(),
	}
}

// WithLogger replaces the service logger.
func (s *Service) WithLogger(l logrus.FieldLogger) *Service {
	s.logger = applog.OrDefault(l)
	return s
}

// SetCustomHolidays replaces the custom holiday list.
func (s *Service) SetCustomHolidays(holidays []Holiday) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.custom = append([]Holiday(nil), holidays...)
}

// AddCustomHoliday appends one custom holiday.
func (s *Service) AddCustomHoliday(h Holiday) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.custom = append(s.custom, h)
}

// KnownCountry reports whether a rules entry exists for the code.
func (s *Service) KnownCountry(country string) bool {
	_, ok := s.rules[normalizeCountry(country)]
	return ok
}

// Zone returns the zone of a country, UTC when unknown.
func (s *Service) Zone(country string) Zone {
	return s.calendarFor(country).zone
}

// IsHoliday reports whether d is a national or custom holiday for country.
func (s *Service) IsHoliday(country string, d Date) bool {
	cc := s.calendarFor(country)
	if cc.business != nil {
		actual, observed, _ := cc.business.IsHoliday(d.Time)
		if actual || observed {
			return true
		}
	}
	return s.isCustomHoliday(country, d)
}

// IsBusinessDay reports whether d is neither a weekend day nor a holiday.
func (s *Service) IsBusinessDay(country string, d Date) bool {
	return !d.IsWeekend() && !s.IsHoliday(country, d)
}

// Holidays lists the holidays of a year for country, national and custom,
// ordered by date.
func (s *Service) Holidays(country string, year int) []Holiday {
	cc := s.calendarFor(country)
	code := normalizeCountry(country)

	var out []Holiday
	for _, h := range cc.rules {
		actual, _ := h.Calc(year)
		if actual.IsZero() {
			continue
		}
		out = append(out, Holiday{
			Country: code,
			Date:    NewDate(actual.Year(), actual.Month(), actual.Day()),
			Name:    h.Name,
		})
	}

	s.mu.RLock()
	for _, h := range s.custom {
		if !s.customApplies(h, code) {
			continue
		}
		if h.Recurring {
			h.Date = Clamp(year, h.Date.Month(), h.Date.Day())
		} else if h.Date.Year() != year {
			continue
		}
		out = append(out, h)
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

func (s *Service) isCustomHoliday(country string, d Date) bool {
	code := normalizeCountry(country)
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, h := range s.custom {
		if s.customApplies(h, code) && h.matches(d) {
			return true
		}
	}
	return false
}

func (s *Service) customApplies(h Holiday, code string) bool {
	return h.Country == "" || normalizeCountry(h.Country) == code
}

// calendarFor returns (building on first use) the calendar of a country.
func (s *Service) calendarFor(country string) *countryCalendar {
	code := normalizeCountry(country)

	s.mu.RLock()
	cc, ok := s.countries[code]
	s.mu.RUnlock()
	if ok {
		return cc
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if cc, ok := s.countries[code]; ok {
		return cc
	}

	rules, known := s.rules[code]
	cc = &countryCalendar{zone: UTC}
	if !known {
		if !s.warned[code] {
			s.warned[code] = true
			s.logger.WithField("country", country).Warn("unknown country code, using UTC and no national holidays")
		}
		s.countries[code] = cc
		return cc
	}

	if rules.Zone != "" {
		zone, err := LoadZone(rules.Zone)
		if err != nil {
			s.logger.WithError(err).WithFields(logrus.Fields{
				"country": code,
				"zone":    rules.Zone,
			}).Warn("failed to load zone, using UTC")
		} else {
			cc.zone = zone
		}
	}
	if len(rules.Holidays) > 0 {
		cc.business = cal.NewBusinessCalendar()
		cc.business.AddHoliday(rules.Holidays...)
		cc.rules = rules.Holidays
	}
	s.countries[code] = cc
	return cc
}

func normalizeCountry(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

