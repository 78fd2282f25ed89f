package scheduling

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/vetcare-scheduling/pkg/logging"
)

// ConflictChecker detects overlaps between a candidate appointment and the
// vet's committed appointments. Results are advisory: the booking insert
// re-checks under a lock.
type ConflictChecker struct {
	appointments AppointmentReader
	logger       *logging.Logger
}

// NewConflictChecker wires a checker to an appointment source.
func NewConflictChecker(appointments AppointmentReader, logger *logging.Logger) *ConflictChecker {
	if appointments == nil {
		panic("scheduling: appointment reader required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &ConflictChecker{appointments: appointments, logger: logger}
}

type overlapQuery struct {
	excludeStatuses []AppointmentStatus
	excludeID       *uuid.UUID
}

// OverlapOption adjusts which appointments count as conflicts.
type OverlapOption func(*overlapQuery)

// ExcludeStatuses replaces the default excluded statuses (cancelled, no_show).
func ExcludeStatuses(statuses ...AppointmentStatus) OverlapOption {
	return func(q *overlapQuery) {
		q.excludeStatuses = append([]AppointmentStatus(nil), statuses...)
	}
}

// ExcludeAppointment ignores one appointment, typically the one being moved.
func ExcludeAppointment(id uuid.UUID) OverlapOption {
	return func(q *overlapQuery) {
		q.excludeID = &id
	}
}

func buildOverlapQuery(opts []OverlapOption) overlapQuery {
	q := overlapQuery{excludeStatuses: DefaultExcludedStatuses}
	for _, opt := range opts {
		if opt != nil {
			opt(&q)
		}
	}
	return q
}

// FindOverlaps returns the committed appointments whose half-open interval
// intersects [startUTC, startUTC+duration). Adjacent appointments do not
// conflict.
func (c *ConflictChecker) FindOverlaps(ctx context.Context, vetID uuid.UUID, startUTC time.Time, durationMinutes int, opts ...OverlapOption) ([]ExistingAppointment, error) {
	if durationMinutes <= 0 {
		return nil, ErrInvalidDuration
	}
	q := buildOverlapQuery(opts)
	start := startUTC.UTC()
	end := start.Add(time.Duration(durationMinutes) * time.Minute)

	existing, err := c.appointments.AppointmentsInWindow(ctx, vetID, start, end, q.excludeStatuses, q.excludeID)
	if err != nil {
		return nil, fmt.Errorf("scheduling: find overlaps: %w", err)
	}
	// Re-filter so a loose reader cannot report neighbours as conflicts.
	var out []ExistingAppointment
	for _, appt := range existing {
		if q.excludeID != nil && appt.ID == *q.excludeID {
			continue
		}
		if statusIn(appt.Status, q.excludeStatuses) {
			continue
		}
		if Overlaps(start, end, appt.StartUTC, appt.End()) {
			out = append(out, appt)
		}
	}
	if len(out) > 0 {
		c.logger.Info("appointment conflict detected",
			"vet_id", vetID.String(),
			"start_utc", start.Format(time.RFC3339),
			"duration_minutes", durationMinutes,
			"conflicts", len(out),
		)
	}
	return out, nil
}

// HasConflict is FindOverlaps reduced to a yes/no.
func (c *ConflictChecker) HasConflict(ctx context.Context, candidate AppointmentCandidate, opts ...OverlapOption) (bool, error) {
	overlaps, err := c.FindOverlaps(ctx, candidate.VetID, candidate.StartUTC, candidate.DurationMinutes, opts...)
	if err != nil {
		return false, err
	}
	return len(overlaps) > 0, nil
}

// markBooked sets Available on each slot with one window read covering all
// of them.
func (c *ConflictChecker) markBooked(ctx context.Context, vetID uuid.UUID, slots []Slot) error {
	if len(slots) == 0 {
		return nil
	}
	from, to := slots[0].StartUTC, slots[0].EndUTC
	for _, s := range slots[1:] {
		if s.StartUTC.Before(from) {
			from = s.StartUTC
		}
		if s.EndUTC.After(to) {
			to = s.EndUTC
		}
	}
	existing, err := c.appointments.AppointmentsInWindow(ctx, vetID, from, to, DefaultExcludedStatuses, nil)
	if err != nil {
		return fmt.Errorf("scheduling: load appointments: %w", err)
	}
	for i := range slots {
		slots[i].Available = true
		for _, appt := range existing {
			if statusIn(appt.Status, DefaultExcludedStatuses) {
				continue
			}
			if Overlaps(slots[i].StartUTC, slots[i].EndUTC, appt.StartUTC, appt.End()) {
				slots[i].Available = false
				break
			}
		}
	}
	return nil
}
