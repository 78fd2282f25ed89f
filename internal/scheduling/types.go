// Package scheduling computes bookable appointment slots for a vet on a
// practice-local calendar date and checks candidate appointments for
// double-booking.
//
// Availability is stored under UTC calendar dates, so a single local day can
// be spread over two (rarely three) UTC dates. The slot service probes every
// UTC date the local day can touch, then keeps only the records whose start
// instant, seen in the practice zone, lands on the requested local date.
// Records that survive are cut into fixed-length slots.
package scheduling

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"

	"github.com/wolfman30/vetcare-scheduling/internal/timezone"
)

var (
	// ErrNotFound marks a missing vet or practice.
	ErrNotFound = errors.New("scheduling: not found")
	// ErrInvalidDuration is returned for non-positive slot or appointment lengths.
	ErrInvalidDuration = errors.New("scheduling: duration must be positive")
	// ErrSlotTaken is returned when an insert would overlap a committed appointment.
	ErrSlotTaken = errors.New("scheduling: slot already booked")
	// ErrInvalidBlock is returned for availability blocks that end before they start.
	ErrInvalidBlock = errors.New("scheduling: availability block must end after it starts")
)

// AvailabilityType classifies an availability record.
type AvailabilityType string

const (
	AvailabilityAvailable     AvailabilityType = "AVAILABLE"
	AvailabilitySurgeryBlock  AvailabilityType = "SURGERY_BLOCK"
	AvailabilityUnavailable   AvailabilityType = "UNAVAILABLE"
	AvailabilityEmergencyOnly AvailabilityType = "EMERGENCY_ONLY"
)

// Bookable reports whether routine appointments may be placed in the record.
func (t AvailabilityType) Bookable() bool {
	return t == AvailabilityAvailable || t == AvailabilityEmergencyOnly
}

// ParseAvailabilityType accepts the stored form case-insensitively.
func ParseAvailabilityType(raw string) (AvailabilityType, error) {
	switch t := AvailabilityType(strings.ToUpper(strings.TrimSpace(raw))); t {
	case AvailabilityAvailable, AvailabilitySurgeryBlock, AvailabilityUnavailable, AvailabilityEmergencyOnly:
		return t, nil
	case "":
		return AvailabilityAvailable, nil
	default:
		return "", fmt.Errorf("scheduling: unknown availability type %q", raw)
	}
}

// AvailabilityRecord is one stored availability window. The UTC date is the
// key the row is filed under, which is not necessarily the local date the
// window belongs to.
//
// UTCEndTime <= UTCStartTime means the window runs to the next UTC midnight.
// Interval resolves that convention; nothing else should read the raw
// times.
type AvailabilityRecord struct {
	ID           uuid.UUID        `json:"id"`
	VetID        uuid.UUID        `json:"vet_id"`
	PracticeID   uuid.UUID        `json:"practice_id"`
	UTCDate      civil.Date       `json:"utc_date"`
	UTCStartTime civil.Time       `json:"utc_start_time"`
	UTCEndTime   civil.Time       `json:"utc_end_time"`
	Type         AvailabilityType `json:"availability_type"`
	IsActive     bool             `json:"is_active"`
}

// Interval returns the record as explicit UTC instants.
func (r AvailabilityRecord) Interval() (start, end time.Time) {
	start = civil.DateTime{Date: r.UTCDate, Time: r.UTCStartTime}.In(time.UTC)
	if secondsOfDay(r.UTCEndTime) <= secondsOfDay(r.UTCStartTime) {
		end = civil.DateTime{Date: r.UTCDate.AddDays(1)}.In(time.UTC)
		return start, end
	}
	end = civil.DateTime{Date: r.UTCDate, Time: r.UTCEndTime}.In(time.UTC)
	return start, end
}

// Duration is the length of Interval.
func (r AvailabilityRecord) Duration() time.Duration {
	start, end := r.Interval()
	return end.Sub(start)
}

func secondsOfDay(t civil.Time) int {
	return t.Hour*3600 + t.Minute*60 + t.Second
}

// OperatingHours is the practice's open window for one local date. A Close
// at or before Open means open until local midnight.
type OperatingHours struct {
	Open  civil.Time `json:"open"`
	Close civil.Time `json:"close"`
}

// Bounds returns the open window of d in loc as instants.
func (h OperatingHours) Bounds(d civil.Date, loc *time.Location) (open, close time.Time) {
	if secondsOfDay(h.Open) == 0 {
		open = timezone.StartOfDay(d, loc)
	} else {
		open = timezone.CreateLocalDateTimeIn(d, h.Open, loc)
	}
	if secondsOfDay(h.Close) <= secondsOfDay(h.Open) {
		return open, timezone.StartOfDay(d.AddDays(1), loc)
	}
	return open, timezone.CreateLocalDateTimeIn(d, h.Close, loc)
}

// TimePreference narrows slots to a part of the local day.
type TimePreference string

const (
	PreferenceAny       TimePreference = "any"
	PreferenceMorning   TimePreference = "morning"
	PreferenceAfternoon TimePreference = "afternoon"
	PreferenceEvening   TimePreference = "evening"
)

// Window returns the local clock range [from, to) for the preference; ok is
// false for PreferenceAny and unknown values.
func (p TimePreference) Window() (from, to civil.Time, ok bool) {
	switch p {
	case PreferenceMorning:
		return civil.Time{Hour: 6}, civil.Time{Hour: 12}, true
	case PreferenceAfternoon:
		return civil.Time{Hour: 12}, civil.Time{Hour: 17}, true
	case PreferenceEvening:
		return civil.Time{Hour: 17}, civil.Time{Hour: 21}, true
	default:
		return civil.Time{}, civil.Time{}, false
	}
}

// Matches reports whether a local start time falls in the preference window.
func (p TimePreference) Matches(localStart time.Time) bool {
	from, to, ok := p.Window()
	if !ok {
		return true
	}
	s := secondsOfDay(civil.TimeOf(localStart))
	return s >= secondsOfDay(from) && s < secondsOfDay(to)
}

// Slot is a fixed-length bookable window derived from an availability record.
type Slot struct {
	StartUTC        time.Time `json:"start_utc"`
	EndUTC          time.Time `json:"end_utc"`
	LocalStart      time.Time `json:"local_start"`
	LocalTime       string    `json:"local_time"`
	DurationMinutes int       `json:"duration_minutes"`
	Available       bool      `json:"available"`
	AvailabilityID  uuid.UUID `json:"availability_id"`
}

// AppointmentStatus is the lifecycle state of a committed appointment.
type AppointmentStatus string

const (
	StatusScheduled AppointmentStatus = "scheduled"
	StatusConfirmed AppointmentStatus = "confirmed"
	StatusCompleted AppointmentStatus = "completed"
	StatusCancelled AppointmentStatus = "cancelled"
	StatusNoShow    AppointmentStatus = "no_show"
)

// DefaultExcludedStatuses never block a slot.
var DefaultExcludedStatuses = []AppointmentStatus{StatusCancelled, StatusNoShow}

// ExistingAppointment is a committed appointment as read by the conflict check.
type ExistingAppointment struct {
	ID              uuid.UUID         `json:"id"`
	VetID           uuid.UUID         `json:"vet_id"`
	PracticeID      uuid.UUID         `json:"practice_id"`
	StartUTC        time.Time         `json:"start_utc"`
	DurationMinutes int               `json:"duration_minutes"`
	Status          AppointmentStatus `json:"status"`
}

// End returns the exclusive end instant.
func (a ExistingAppointment) End() time.Time {
	return a.StartUTC.Add(time.Duration(a.DurationMinutes) * time.Minute)
}

// AppointmentCandidate is a proposed appointment awaiting the overlap check.
type AppointmentCandidate struct {
	VetID           uuid.UUID `json:"vet_id"`
	PracticeID      uuid.UUID `json:"practice_id"`
	StartUTC        time.Time `json:"start_utc"`
	DurationMinutes int       `json:"duration_minutes"`
}

// End returns the exclusive end instant.
func (c AppointmentCandidate) End() time.Time {
	return c.StartUTC.Add(time.Duration(c.DurationMinutes) * time.Minute)
}

// OutboxEvent is committed in the same transaction as the appointment.
type OutboxEvent struct {
	Type    string
	Payload any
}

// NewAppointment is an appointment about to be committed. ID is generated
// when unset; Events are written only by stores with an outbox.
type NewAppointment struct {
	ID              uuid.UUID `json:"id,omitempty"`
	VetID           uuid.UUID `json:"vet_id"`
	PracticeID      uuid.UUID `json:"practice_id"`
	StartUTC        time.Time `json:"start_utc"`
	DurationMinutes int       `json:"duration_minutes"`
	ClientName      string    `json:"client_name,omitempty"`
	ClientPhone     string    `json:"client_phone,omitempty"`
	PetName         string    `json:"pet_name,omitempty"`
	Reason          string    `json:"reason,omitempty"`
	CallID          string    `json:"call_id,omitempty"`

	Events []OutboxEvent `json:"-"`
}

// End returns the exclusive end instant.
func (a NewAppointment) End() time.Time {
	return a.StartUTC.Add(time.Duration(a.DurationMinutes) * time.Minute)
}

// Overlaps reports whether half-open intervals [aStart, aEnd) and
// [bStart, bEnd) share any instant. Touching endpoints do not overlap.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && bStart.Before(aEnd)
}
