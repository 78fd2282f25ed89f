// Package events carries booking events from the scheduling core to
// downstream consumers through a Postgres outbox.
package events

import "time"

const (
	TypeAppointmentBooked   = "appointment.booked.v1"
	TypeAvailabilityChanged = "availability.changed.v1"
)

type AppointmentBookedV1 struct {
	EventID         string    `json:"event_id"`
	AppointmentID   string    `json:"appointment_id"`
	PracticeID      string    `json:"practice_id"`
	VetID           string    `json:"vet_id"`
	StartUTC        time.Time `json:"start_utc"`
	DurationMinutes int       `json:"duration_minutes"`
	Timezone        string    `json:"timezone"`
	LocalTime       string    `json:"local_time"`
	ClientName      string    `json:"client_name,omitempty"`
	ClientPhone     string    `json:"client_phone,omitempty"`
	PetName         string    `json:"pet_name,omitempty"`
	CallID          string    `json:"call_id,omitempty"`
	BookedAt        time.Time `json:"booked_at"`
}

type AvailabilityChangedV1 struct {
	EventID    string    `json:"event_id"`
	PracticeID string    `json:"practice_id"`
	VetID      string    `json:"vet_id"`
	Action     string    `json:"action"`
	RecordIDs  []string  `json:"record_ids"`
	OccurredAt time.Time `json:"occurred_at"`
}
