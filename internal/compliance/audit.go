// Package compliance keeps an append-only audit trail of scheduling
// decisions made on behalf of callers.
package compliance

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AuditEventType represents the type of audit event.
type AuditEventType string

const (
	// EventDateDefaulted is logged when a spoken date could not be parsed
	// and tomorrow was assumed.
	EventDateDefaulted AuditEventType = "scheduling.date_defaulted"
	// EventBookingConflict is logged when a requested slot overlaps a
	// committed appointment.
	EventBookingConflict AuditEventType = "scheduling.booking_conflict"
	// EventAppointmentBooked is logged when an appointment is committed.
	EventAppointmentBooked AuditEventType = "scheduling.appointment_booked"
	// EventAvailabilityChanged is logged when staff add or remove availability.
	EventAvailabilityChanged AuditEventType = "scheduling.availability_changed"
	// EventTimezoneRejected is logged when a request names an unknown zone.
	EventTimezoneRejected AuditEventType = "scheduling.timezone_rejected"
)

// AuditEvent represents an immutable audit record.
type AuditEvent struct {
	ID            string          `json:"id"`
	EventType     AuditEventType  `json:"event_type"`
	PracticeID    string          `json:"practice_id"`
	VetID         string          `json:"vet_id,omitempty"`
	CallID        string          `json:"call_id,omitempty"`
	AppointmentID string          `json:"appointment_id,omitempty"`
	Details       json.RawMessage `json:"details,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// AuditDetails contains event-specific details.
type AuditDetails struct {
	// For date defaulted
	SpokenDate   string `json:"spoken_date,omitempty"`
	ResolvedDate string `json:"resolved_date,omitempty"`

	// For conflicts and bookings
	StartUTC        string `json:"start_utc,omitempty"`
	DurationMinutes int    `json:"duration_minutes,omitempty"`
	LocalTime       string `json:"local_time,omitempty"`
	ConflictCount   int    `json:"conflict_count,omitempty"`

	// For availability changes
	Action    string   `json:"action,omitempty"`
	RecordIDs []string `json:"record_ids,omitempty"`

	Timezone string `json:"timezone,omitempty"`
}

// AuditService handles audit logging.
type AuditService struct {
	db *sql.DB
}

// NewAuditService creates a new audit service.
func NewAuditService(db *sql.DB) *AuditService {
	return &AuditService{db: db}
}

// LogEvent records an audit event.
func (s *AuditService) LogEvent(ctx context.Context, event AuditEvent) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO scheduling_audit_events (
			id, event_type, practice_id, vet_id, call_id,
			appointment_id, details, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := s.db.ExecContext(ctx, query,
		event.ID,
		event.EventType,
		event.PracticeID,
		nullString(event.VetID),
		nullString(event.CallID),
		nullString(event.AppointmentID),
		[]byte(event.Details),
		event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("compliance: failed to log audit event: %w", err)
	}

	return nil
}

func (s *AuditService) logWithDetails(ctx context.Context, event AuditEvent, details AuditDetails) error {
	detailsJSON, _ := json.Marshal(details)
	event.Details = detailsJSON
	return s.LogEvent(ctx, event)
}

// LogDateDefaulted logs that a caller's date was guessed.
func (s *AuditService) LogDateDefaulted(ctx context.Context, practiceID, callID, spoken, resolved, tz string) error {
	return s.logWithDetails(ctx, AuditEvent{
		EventType:  EventDateDefaulted,
		PracticeID: practiceID,
		CallID:     callID,
	}, AuditDetails{
		SpokenDate:   spoken,
		ResolvedDate: resolved,
		Timezone:     tz,
	})
}

// LogBookingConflict logs a rejected booking attempt.
func (s *AuditService) LogBookingConflict(ctx context.Context, practiceID, vetID, callID string, startUTC time.Time, durationMinutes, conflicts int) error {
	return s.logWithDetails(ctx, AuditEvent{
		EventType:  EventBookingConflict,
		PracticeID: practiceID,
		VetID:      vetID,
		CallID:     callID,
	}, AuditDetails{
		StartUTC:        startUTC.UTC().Format(time.RFC3339),
		DurationMinutes: durationMinutes,
		ConflictCount:   conflicts,
	})
}

// LogAppointmentBooked logs a committed appointment.
func (s *AuditService) LogAppointmentBooked(ctx context.Context, practiceID, vetID, callID, appointmentID string, startUTC time.Time, durationMinutes int, localTime, tz string) error {
	return s.logWithDetails(ctx, AuditEvent{
		EventType:     EventAppointmentBooked,
		PracticeID:    practiceID,
		VetID:         vetID,
		CallID:        callID,
		AppointmentID: appointmentID,
	}, AuditDetails{
		StartUTC:        startUTC.UTC().Format(time.RFC3339),
		DurationMinutes: durationMinutes,
		LocalTime:       localTime,
		Timezone:        tz,
	})
}

// LogAvailabilityChanged logs staff edits to availability.
func (s *AuditService) LogAvailabilityChanged(ctx context.Context, practiceID, vetID, action string, recordIDs []string) error {
	return s.logWithDetails(ctx, AuditEvent{
		EventType:  EventAvailabilityChanged,
		PracticeID: practiceID,
		VetID:      vetID,
	}, AuditDetails{
		Action:    action,
		RecordIDs: recordIDs,
	})
}

// LogTimezoneRejected logs a request carrying an unknown zone name.
func (s *AuditService) LogTimezoneRejected(ctx context.Context, practiceID, callID, tz string) error {
	return s.logWithDetails(ctx, AuditEvent{
		EventType:  EventTimezoneRejected,
		PracticeID: practiceID,
		CallID:     callID,
	}, AuditDetails{Timezone: tz})
}

// QueryEvents retrieves audit events with filters.
func (s *AuditService) QueryEvents(ctx context.Context, filter AuditFilter) ([]AuditEvent, error) {
	query := `
		SELECT id, event_type, practice_id, vet_id, call_id,
			   appointment_id, details, created_at
		FROM scheduling_audit_events
		WHERE practice_id = $1
	`
	args := []interface{}{filter.PracticeID}
	argIdx := 2

	if filter.VetID != "" {
		query += fmt.Sprintf(" AND vet_id = $%d", argIdx)
		args = append(args, filter.VetID)
		argIdx++
	}
	if filter.CallID != "" {
		query += fmt.Sprintf(" AND call_id = $%d", argIdx)
		args = append(args, filter.CallID)
		argIdx++
	}
	if filter.EventType != "" {
		query += fmt.Sprintf(" AND event_type = $%d", argIdx)
		args = append(args, filter.EventType)
		argIdx++
	}
	if !filter.StartTime.IsZero() {
		query += fmt.Sprintf(" AND created_at >= $%d", argIdx)
		args = append(args, filter.StartTime)
		argIdx++
	}
	if !filter.EndTime.IsZero() {
		query += fmt.Sprintf(" AND created_at <= $%d", argIdx)
		args = append(args, filter.EndTime)
		argIdx++
	}

	query += " ORDER BY created_at DESC"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("compliance: failed to query audit events: %w", err)
	}
	defer rows.Close()

	var events []AuditEvent
	for rows.Next() {
		var e AuditEvent
		var vetID, callID, apptID sql.NullString
		var details []byte
		err := rows.Scan(
			&e.ID, &e.EventType, &e.PracticeID, &vetID, &callID,
			&apptID, &details, &e.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("compliance: failed to scan audit event: %w", err)
		}
		e.VetID = vetID.String
		e.CallID = callID.String
		e.AppointmentID = apptID.String
		if len(details) > 0 {
			e.Details = json.RawMessage(details)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("compliance: failed to iterate audit events: %w", err)
	}

	return events, nil
}

// AuditFilter specifies criteria for querying audit events.
type AuditFilter struct {
	PracticeID string
	VetID      string
	CallID     string
	EventType  AuditEventType
	StartTime  time.Time
	EndTime    time.Time
	Limit      int
	Offset     int
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
