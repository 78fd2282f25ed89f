// Package timezone converts between practice wall-clock times and UTC
// instants. Every function is pure; zone lookups go through the IANA
// database so DST follows each zone's own rules.
package timezone

import (
	"errors"
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	"cloud.google.com/go/civil"
)

// ErrInvalidTimezone is returned for names the IANA database does not know.
// Callers must surface it; there is no fallback zone.
var ErrInvalidTimezone = errors.New("timezone: invalid IANA timezone")

// Load resolves an IANA zone name. Empty and "Local" are rejected because
// time.LoadLocation would quietly map them to UTC or the host zone.
func Load(name string) (*time.Location, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" || strings.EqualFold(trimmed, "local") {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTimezone, name)
	}
	loc, err := time.LoadLocation(trimmed)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTimezone, name)
	}
	return loc, nil
}

// Valid reports whether name is a usable IANA zone.
func Valid(name string) bool {
	_, err := Load(name)
	return err == nil
}

// CreateLocalDateTime attaches tzName to the stored date and clock without
// shifting the clock value. With tzName "UTC" it reinterprets a UTC-stored
// pair as the instant it denotes.
func CreateLocalDateTime(d civil.Date, t civil.Time, tzName string) (time.Time, error) {
	loc, err := Load(tzName)
	if err != nil {
		return time.Time{}, err
	}
	return CreateLocalDateTimeIn(d, t, loc), nil
}

// CreateLocalDateTimeIn is CreateLocalDateTime for an already resolved zone.
// Wall times inside a spring-forward gap are normalized by time.Date.
func CreateLocalDateTimeIn(d civil.Date, t civil.Time, loc *time.Location) time.Time {
	return civil.DateTime{Date: d, Time: t}.In(loc)
}

// ConvertToUTC interprets the local date and time in tzName and returns the
// matching UTC instant.
func ConvertToUTC(d civil.Date, t civil.Time, tzName string) (time.Time, error) {
	local, err := CreateLocalDateTime(d, t, tzName)
	if err != nil {
		return time.Time{}, err
	}
	return local.UTC(), nil
}

// ConvertToUTCIn is ConvertToUTC for an already resolved zone.
func ConvertToUTCIn(d civil.Date, t civil.Time, loc *time.Location) time.Time {
	return CreateLocalDateTimeIn(d, t, loc).UTC()
}

// ToLocal converts an instant into tzName.
func ToLocal(instant time.Time, tzName string) (time.Time, error) {
	loc, err := Load(tzName)
	if err != nil {
		return time.Time{}, err
	}
	return instant.In(loc), nil
}

// LocalDate returns the calendar date the instant falls on in loc.
func LocalDate(instant time.Time, loc *time.Location) civil.Date {
	return civil.DateOf(instant.In(loc))
}

// StartOfDay returns the first instant of d in loc. In zones that skip
// midnight (America/Santiago in September) that is the transition instant,
// whose wall clock reads 01:00.
func StartOfDay(d civil.Date, loc *time.Location) time.Time {
	t := CreateLocalDateTimeIn(d, civil.Time{}, loc)
	if LocalDate(t, loc) == d {
		return t
	}
	// time.Date resolved the missing midnight with the post-transition
	// offset, landing on the previous day. The pre-transition offset gives
	// the transition itself.
	_, offset := t.Zone()
	wall := civil.DateTime{Date: d}.In(time.UTC)
	return wall.Add(-time.Duration(offset) * time.Second).In(loc)
}
