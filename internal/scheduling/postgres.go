package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// pgxQuerier is the subset of *pgxpool.Pool the repositories need.
type pgxQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// outboxTxWriter writes an event row on the caller's transaction.
type outboxTxWriter interface {
	InsertTx(ctx context.Context, tx pgx.Tx, practiceID, eventType string, payload any) (uuid.UUID, error)
}

type rowsQuerier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// AvailabilityRepository stores vet availability in postgres.
type AvailabilityRepository struct {
	db pgxQuerier
}

// NewAvailabilityRepository accepts a *pgxpool.Pool (or a mock).
func NewAvailabilityRepository(db pgxQuerier) *AvailabilityRepository {
	if db == nil {
		panic("scheduling: pgx pool required")
	}
	return &AvailabilityRepository{db: db}
}

const candidateRecordsQuery = `
	SELECT id, vet_id, practice_id, utc_date::text, utc_start_time::text, utc_end_time::text, availability_type, is_active
	FROM vet_availability
	WHERE vet_id = $1
	  AND practice_id = $2
	  AND utc_date = ANY($3)
	  AND is_active
	  AND availability_type <> 'UNAVAILABLE'
	ORDER BY utc_date, utc_start_time
`

func (r *AvailabilityRepository) CandidateRecords(ctx context.Context, vetID, practiceID uuid.UUID, utcDates []civil.Date) ([]AvailabilityRecord, error) {
	if len(utcDates) == 0 {
		return nil, nil
	}
	dates := make([]time.Time, len(utcDates))
	for i, d := range utcDates {
		dates[i] = d.In(time.UTC)
	}
	rows, err := r.db.Query(ctx, candidateRecordsQuery, vetID, practiceID, dates)
	if err != nil {
		return nil, fmt.Errorf("scheduling: query availability: %w", err)
	}
	defer rows.Close()

	var out []AvailabilityRecord
	for rows.Next() {
		var rec AvailabilityRecord
		var rawDate, rawStart, rawEnd, rawType string
		if err := rows.Scan(&rec.ID, &rec.VetID, &rec.PracticeID, &rawDate, &rawStart, &rawEnd, &rawType, &rec.IsActive); err != nil {
			return nil, fmt.Errorf("scheduling: scan availability: %w", err)
		}
		if rec.UTCDate, err = civil.ParseDate(rawDate); err != nil {
			return nil, fmt.Errorf("scheduling: parse utc_date %q: %w", rawDate, err)
		}
		if rec.UTCStartTime, err = civil.ParseTime(rawStart); err != nil {
			return nil, fmt.Errorf("scheduling: parse utc_start_time %q: %w", rawStart, err)
		}
		if rec.UTCEndTime, err = civil.ParseTime(rawEnd); err != nil {
			return nil, fmt.Errorf("scheduling: parse utc_end_time %q: %w", rawEnd, err)
		}
		if rec.Type, err = ParseAvailabilityType(rawType); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("scheduling: iterate availability: %w", err)
	}
	return out, nil
}

func (r *AvailabilityRepository) VetExists(ctx context.Context, vetID, practiceID uuid.UUID) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM vets WHERE id = $1 AND practice_id = $2 AND is_active)`, vetID, practiceID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("scheduling: check vet: %w", err)
	}
	return exists, nil
}

const insertAvailabilityQuery = `
	INSERT INTO vet_availability (id, vet_id, practice_id, utc_date, utc_start_time, utc_end_time, availability_type, is_active)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
`

// InsertRecords writes every segment of a block in one transaction.
func (r *AvailabilityRepository) InsertRecords(ctx context.Context, records []AvailabilityRecord) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("scheduling: begin insert: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, rec := range records {
		if _, err := tx.Exec(ctx, insertAvailabilityQuery,
			rec.ID, rec.VetID, rec.PracticeID,
			rec.UTCDate.String(), rec.UTCStartTime.String(), rec.UTCEndTime.String(),
			string(rec.Type), rec.IsActive,
		); err != nil {
			return fmt.Errorf("scheduling: insert availability: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("scheduling: commit availability: %w", err)
	}
	return nil
}

func (r *AvailabilityRepository) DeactivateRecord(ctx context.Context, practiceID, recordID uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE vet_availability
		SET is_active = false, updated_at = now()
		WHERE id = $1 AND practice_id = $2 AND is_active
	`, recordID, practiceID)
	if err != nil {
		return fmt.Errorf("scheduling: deactivate availability: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// AppointmentRepository reads and commits appointments in postgres.
type AppointmentRepository struct {
	db     pgxQuerier
	outbox outboxTxWriter
}

func NewAppointmentRepository(db pgxQuerier) *AppointmentRepository {
	if db == nil {
		panic("scheduling: pgx pool required")
	}
	return &AppointmentRepository{db: db}
}

// WithOutbox makes CreateIfFree write NewAppointment.Events in the booking
// transaction. Without it events are dropped.
func (r *AppointmentRepository) WithOutbox(w outboxTxWriter) *AppointmentRepository {
	r.outbox = w
	return r
}

const appointmentsInWindowQuery = `
	SELECT id, vet_id, practice_id, start_utc, duration_minutes, status
	FROM appointments
	WHERE vet_id = $1
	  AND start_utc < $3
	  AND end_utc > $2
	  AND NOT (status = ANY($4))
	  AND ($5::uuid IS NULL OR id <> $5)
	ORDER BY start_utc
`

func (r *AppointmentRepository) AppointmentsInWindow(ctx context.Context, vetID uuid.UUID, from, to time.Time, excludeStatuses []AppointmentStatus, excludeID *uuid.UUID) ([]ExistingAppointment, error) {
	return queryAppointments(ctx, r.db, vetID, from, to, excludeStatuses, excludeID)
}

func queryAppointments(ctx context.Context, q rowsQuerier, vetID uuid.UUID, from, to time.Time, excludeStatuses []AppointmentStatus, excludeID *uuid.UUID) ([]ExistingAppointment, error) {
	statuses := make([]string, len(excludeStatuses))
	for i, s := range excludeStatuses {
		statuses[i] = string(s)
	}
	rows, err := q.Query(ctx, appointmentsInWindowQuery, vetID, from.UTC(), to.UTC(), statuses, excludeID)
	if err != nil {
		return nil, fmt.Errorf("scheduling: query appointments: %w", err)
	}
	defer rows.Close()

	var out []ExistingAppointment
	for rows.Next() {
		var (
			appt   ExistingAppointment
			status string
		)
		if err := rows.Scan(&appt.ID, &appt.VetID, &appt.PracticeID, &appt.StartUTC, &appt.DurationMinutes, &status); err != nil {
			return nil, fmt.Errorf("scheduling: scan appointment: %w", err)
		}
		appt.StartUTC = appt.StartUTC.UTC()
		appt.Status = AppointmentStatus(status)
		out = append(out, appt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("scheduling: iterate appointments: %w", err)
	}
	return out, nil
}

const insertAppointmentQuery = `
	INSERT INTO appointments (id, vet_id, practice_id, start_utc, end_utc, duration_minutes, status, client_name, client_phone, pet_name, reason, call_id)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
`

// CreateIfFree serializes bookings per vet with a transaction-scoped advisory
// lock, re-runs the overlap query and inserts only when nothing overlaps.
func (r *AppointmentRepository) CreateIfFree(ctx context.Context, appt NewAppointment) (ExistingAppointment, error) {
	if appt.DurationMinutes <= 0 {
		return ExistingAppointment{}, ErrInvalidDuration
	}
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return ExistingAppointment{}, fmt.Errorf("scheduling: begin booking: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, appt.VetID.String()); err != nil {
		return ExistingAppointment{}, fmt.Errorf("scheduling: lock vet: %w", err)
	}
	start := appt.StartUTC.UTC()
	overlaps, err := queryAppointments(ctx, tx, appt.VetID, start, appt.End(), DefaultExcludedStatuses, nil)
	if err != nil {
		return ExistingAppointment{}, err
	}
	if len(overlaps) > 0 {
		return ExistingAppointment{}, ErrSlotTaken
	}

	committed := ExistingAppointment{
		ID:              appt.ID,
		VetID:           appt.VetID,
		PracticeID:      appt.PracticeID,
		StartUTC:        start,
		DurationMinutes: appt.DurationMinutes,
		Status:          StatusScheduled,
	}
	if committed.ID == uuid.Nil {
		committed.ID = uuid.New()
	}
	if _, err := tx.Exec(ctx, insertAppointmentQuery,
		committed.ID, committed.VetID, committed.PracticeID, committed.StartUTC, committed.End(), committed.DurationMinutes,
		string(committed.Status), appt.ClientName, appt.ClientPhone, appt.PetName, appt.Reason, appt.CallID,
	); err != nil {
		// 23P01 is the appointments_no_overlap exclusion constraint.
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23P01" {
			return ExistingAppointment{}, ErrSlotTaken
		}
		return ExistingAppointment{}, fmt.Errorf("scheduling: insert appointment: %w", err)
	}
	if r.outbox != nil {
		for _, ev := range appt.Events {
			if _, err := r.outbox.InsertTx(ctx, tx, committed.PracticeID.String(), ev.Type, ev.Payload); err != nil {
				return ExistingAppointment{}, fmt.Errorf("scheduling: record %s: %w", ev.Type, err)
			}
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return ExistingAppointment{}, fmt.Errorf("scheduling: commit appointment: %w", err)
	}
	return committed, nil
}
