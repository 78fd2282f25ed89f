// Package practice holds per-practice configuration: timezone, weekly
// operating hours, closures and one-off hour overrides.
package practice

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"

	"github.com/wolfman30/vetcare-scheduling/internal/scheduling"
	"github.com/wolfman30/vetcare-scheduling/internal/timezone"
)

var (
	// ErrNotFound is returned for practices with no stored config. It matches
	// scheduling.ErrNotFound.
	ErrNotFound = fmt.Errorf("practice: config %w", scheduling.ErrNotFound)
	// ErrInvalidConfig wraps validation failures.
	ErrInvalidConfig = errors.New("practice: invalid config")
)

// DayHours represents the opening hours for a single day. Close "00:00"
// means open until midnight.
type DayHours struct {
	Open  string `json:"open"`  // "08:00" in 24-hour format
	Close string `json:"close"` // "18:00" in 24-hour format
}

func (h DayHours) operating() (scheduling.OperatingHours, error) {
	open, err := parseClock(h.Open)
	if err != nil {
		return scheduling.OperatingHours{}, err
	}
	closeAt, err := parseClock(h.Close)
	if err != nil {
		return scheduling.OperatingHours{}, err
	}
	return scheduling.OperatingHours{Open: open, Close: closeAt}, nil
}

// BusinessHours maps day names to their hours. Nil means closed.
type BusinessHours struct {
	Monday    *DayHours `json:"monday,omitempty"`
	Tuesday   *DayHours `json:"tuesday,omitempty"`
	Wednesday *DayHours `json:"wednesday,omitempty"`
	Thursday  *DayHours `json:"thursday,omitempty"`
	Friday    *DayHours `json:"friday,omitempty"`
	Saturday  *DayHours `json:"saturday,omitempty"`
	Sunday    *DayHours `json:"sunday,omitempty"`
}

// ForDay returns the hours for a weekday.
func (b *BusinessHours) ForDay(weekday time.Weekday) *DayHours {
	switch weekday {
	case time.Sunday:
		return b.Sunday
	case time.Monday:
		return b.Monday
	case time.Tuesday:
		return b.Tuesday
	case time.Wednesday:
		return b.Wednesday
	case time.Thursday:
		return b.Thursday
	case time.Friday:
		return b.Friday
	case time.Saturday:
		return b.Saturday
	default:
		return nil
	}
}

// HasAnyHours returns true if at least one day has hours configured.
func (b *BusinessHours) HasAnyHours() bool {
	return b.Sunday != nil || b.Monday != nil || b.Tuesday != nil ||
		b.Wednesday != nil || b.Thursday != nil || b.Friday != nil || b.Saturday != nil
}

// Config holds practice-specific scheduling configuration.
type Config struct {
	PracticeID    uuid.UUID     `json:"practice_id"`
	Name          string        `json:"name"`
	Timezone      string        `json:"timezone"` // e.g., "America/Los_Angeles"
	BusinessHours BusinessHours `json:"business_hours"`
	// Closures are local dates ("2025-12-25") the practice is shut.
	Closures []string `json:"closures,omitempty"`
	// HoursOverrides replace the weekly hours on specific local dates.
	HoursOverrides map[string]DayHours `json:"hours_overrides,omitempty"`
	// SlotDurationMinutes overrides the service default when set.
	SlotDurationMinutes int `json:"slot_duration_minutes,omitempty"`
}

// Validate checks zone, clock strings and dates.
func (c *Config) Validate() error {
	if c.PracticeID == uuid.Nil {
		return fmt.Errorf("%w: practice_id required", ErrInvalidConfig)
	}
	if _, err := timezone.Load(c.Timezone); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	for _, day := range []time.Weekday{time.Sunday, time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday, time.Saturday} {
		if h := c.BusinessHours.ForDay(day); h != nil {
			if _, err := h.operating(); err != nil {
				return fmt.Errorf("%w: %s hours: %v", ErrInvalidConfig, strings.ToLower(day.String()), err)
			}
		}
	}
	for _, raw := range c.Closures {
		if _, err := civil.ParseDate(raw); err != nil {
			return fmt.Errorf("%w: closure %q", ErrInvalidConfig, raw)
		}
	}
	for raw, h := range c.HoursOverrides {
		if _, err := civil.ParseDate(raw); err != nil {
			return fmt.Errorf("%w: override date %q", ErrInvalidConfig, raw)
		}
		if _, err := h.operating(); err != nil {
			return fmt.Errorf("%w: override %s: %v", ErrInvalidConfig, raw, err)
		}
	}
	if c.SlotDurationMinutes < 0 {
		return fmt.Errorf("%w: slot_duration_minutes must not be negative", ErrInvalidConfig)
	}
	return nil
}

// HoursOn resolves the operating hours for a local date: a dated override
// wins, then a closure, then the weekly schedule. A practice with no weekly
// hours at all is treated as open all day (appointment-only practices).
// Nil means closed.
func (c *Config) HoursOn(d civil.Date) (*scheduling.OperatingHours, error) {
	if h, ok := c.HoursOverrides[d.String()]; ok {
		hours, err := h.operating()
		if err != nil {
			return nil, fmt.Errorf("%w: override %s: %v", ErrInvalidConfig, d, err)
		}
		return &hours, nil
	}
	for _, raw := range c.Closures {
		if raw == d.String() {
			return nil, nil
		}
	}
	if !c.BusinessHours.HasAnyHours() {
		return &scheduling.OperatingHours{}, nil
	}
	day := c.BusinessHours.ForDay(d.In(time.UTC).Weekday())
	if day == nil {
		return nil, nil
	}
	hours, err := day.operating()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return &hours, nil
}

// DefaultConfig returns a weekday 08:00-18:00, Saturday 09:00-13:00 schedule.
func DefaultConfig(practiceID uuid.UUID, tz string) *Config {
	weekday := &DayHours{Open: "08:00", Close: "18:00"}
	return &Config{
		PracticeID: practiceID,
		Timezone:   tz,
		BusinessHours: BusinessHours{
			Monday:    weekday,
			Tuesday:   weekday,
			Wednesday: weekday,
			Thursday:  weekday,
			Friday:    weekday,
			Saturday:  &DayHours{Open: "09:00", Close: "13:00"},
		},
	}
}

// parseClock accepts "HH:MM" and "HH:MM:SS".
func parseClock(raw string) (civil.Time, error) {
	raw = strings.TrimSpace(raw)
	if strings.Count(raw, ":") == 1 {
		raw += ":00"
	}
	t, err := civil.ParseTime(raw)
	if err != nil {
		return civil.Time{}, fmt.Errorf("invalid clock %q", raw)
	}
	return t, nil
}
