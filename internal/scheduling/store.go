package scheduling

import (
	"context"
	"sort"
	"sync"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
)

// RecordSource reads stored availability.
type RecordSource interface {
	// CandidateRecords returns active, non-UNAVAILABLE records for the vet
	// whose UTC date is one of utcDates. Callers must still apply the local
	// date filter; implementations are free to over-fetch.
	CandidateRecords(ctx context.Context, vetID, practiceID uuid.UUID, utcDates []civil.Date) ([]AvailabilityRecord, error)
	// VetExists reports whether the vet belongs to the practice.
	VetExists(ctx context.Context, vetID, practiceID uuid.UUID) (bool, error)
}

// HoursSource resolves a practice's operating hours for a local date.
type HoursSource interface {
	// EffectiveHours returns nil hours when the practice is closed on the
	// date, and an error wrapping ErrNotFound for an unknown practice.
	EffectiveHours(ctx context.Context, practiceID uuid.UUID, localDate civil.Date) (*OperatingHours, error)
}

// AvailabilityStore is everything the slot service reads.
type AvailabilityStore interface {
	RecordSource
	HoursSource
}

type compositeStore struct {
	RecordSource
	HoursSource
}

// NewAvailabilityStore joins a record source (postgres) with an hours source
// (practice config).
func NewAvailabilityStore(records RecordSource, hours HoursSource) AvailabilityStore {
	if records == nil || hours == nil {
		panic("scheduling: record and hours sources required")
	}
	return compositeStore{RecordSource: records, HoursSource: hours}
}

// AppointmentReader lists committed appointments for a vet.
type AppointmentReader interface {
	// AppointmentsInWindow returns appointments whose interval intersects
	// [from, to), excluding the given statuses and, if set, one appointment id.
	AppointmentsInWindow(ctx context.Context, vetID uuid.UUID, from, to time.Time, excludeStatuses []AppointmentStatus, excludeID *uuid.UUID) ([]ExistingAppointment, error)
}

// AppointmentWriter commits appointments. CreateIfFree re-checks overlaps
// atomically with the insert and returns ErrSlotTaken on conflict.
type AppointmentWriter interface {
	CreateIfFree(ctx context.Context, appt NewAppointment) (ExistingAppointment, error)
}

// MemoryStore is an in-process AvailabilityStore and AppointmentReader used
// by local development and tests.
type MemoryStore struct {
	mu           sync.RWMutex
	vets         map[uuid.UUID]uuid.UUID
	records      []AvailabilityRecord
	hours        map[uuid.UUID]func(civil.Date) *OperatingHours
	appointments []ExistingAppointment
	events       []OutboxEvent
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		vets:  make(map[uuid.UUID]uuid.UUID),
		hours: make(map[uuid.UUID]func(civil.Date) *OperatingHours),
	}
}

// AddVet registers a vet under a practice.
func (m *MemoryStore) AddVet(vetID, practiceID uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vets[vetID] = practiceID
}

// AddRecord stores an availability record, assigning an id when missing.
func (m *MemoryStore) AddRecord(rec AvailabilityRecord) AvailabilityRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	m.records = append(m.records, rec)
	return rec
}

// SetHours installs an hours resolver for a practice. A nil return means closed.
func (m *MemoryStore) SetHours(practiceID uuid.UUID, fn func(civil.Date) *OperatingHours) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hours[practiceID] = fn
}

// AddAppointment stores a committed appointment.
func (m *MemoryStore) AddAppointment(appt ExistingAppointment) ExistingAppointment {
	m.mu.Lock()
	defer m.mu.Unlock()
	if appt.ID == uuid.Nil {
		appt.ID = uuid.New()
	}
	m.appointments = append(m.appointments, appt)
	return appt
}

func (m *MemoryStore) CandidateRecords(_ context.Context, vetID, practiceID uuid.UUID, utcDates []civil.Date) ([]AvailabilityRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	wanted := make(map[civil.Date]struct{}, len(utcDates))
	for _, d := range utcDates {
		wanted[d] = struct{}{}
	}
	var out []AvailabilityRecord
	for _, rec := range m.records {
		if rec.VetID != vetID || rec.PracticeID != practiceID {
			continue
		}
		if !rec.IsActive || rec.Type == AvailabilityUnavailable {
			continue
		}
		if _, ok := wanted[rec.UTCDate]; !ok {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

func (m *MemoryStore) VetExists(_ context.Context, vetID, practiceID uuid.UUID) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.vets[vetID]
	return ok && p == practiceID, nil
}

func (m *MemoryStore) EffectiveHours(_ context.Context, practiceID uuid.UUID, localDate civil.Date) (*OperatingHours, error) {
	m.mu.RLock()
	fn, ok := m.hours[practiceID]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return fn(localDate), nil
}

func (m *MemoryStore) AppointmentsInWindow(_ context.Context, vetID uuid.UUID, from, to time.Time, excludeStatuses []AppointmentStatus, excludeID *uuid.UUID) ([]ExistingAppointment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []ExistingAppointment
	for _, appt := range m.appointments {
		if appt.VetID != vetID || statusIn(appt.Status, excludeStatuses) {
			continue
		}
		if excludeID != nil && appt.ID == *excludeID {
			continue
		}
		if Overlaps(appt.StartUTC, appt.End(), from, to) {
			out = append(out, appt)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartUTC.Before(out[j].StartUTC) })
	return out, nil
}

// AllDay is an hours resolver that keeps the practice open around the clock.
func AllDay(civil.Date) *OperatingHours {
	return &OperatingHours{}
}

func statusIn(s AppointmentStatus, set []AppointmentStatus) bool {
	for _, x := range set {
		if x == s {
			return true
		}
	}
	return false
}

func (m *MemoryStore) InsertRecords(_ context.Context, records []AvailabilityRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range records {
		if rec.ID == uuid.Nil {
			rec.ID = uuid.New()
		}
		m.records = append(m.records, rec)
	}
	return nil
}

func (m *MemoryStore) DeactivateRecord(_ context.Context, practiceID, recordID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.records {
		if m.records[i].ID == recordID && m.records[i].PracticeID == practiceID && m.records[i].IsActive {
			m.records[i].IsActive = false
			return nil
		}
	}
	return ErrNotFound
}

func (m *MemoryStore) CreateIfFree(_ context.Context, appt NewAppointment) (ExistingAppointment, error) {
	if appt.DurationMinutes <= 0 {
		return ExistingAppointment{}, ErrInvalidDuration
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.appointments {
		if existing.VetID != appt.VetID || statusIn(existing.Status, DefaultExcludedStatuses) {
			continue
		}
		if Overlaps(appt.StartUTC, appt.End(), existing.StartUTC, existing.End()) {
			return ExistingAppointment{}, ErrSlotTaken
		}
	}
	committed := ExistingAppointment{
		ID:              appt.ID,
		VetID:           appt.VetID,
		PracticeID:      appt.PracticeID,
		StartUTC:        appt.StartUTC.UTC(),
		DurationMinutes: appt.DurationMinutes,
		Status:          StatusScheduled,
	}
	if committed.ID == uuid.Nil {
		committed.ID = uuid.New()
	}
	m.appointments = append(m.appointments, committed)
	m.events = append(m.events, appt.Events...)
	return committed, nil
}

// Events returns the events committed alongside appointments, oldest first.
func (m *MemoryStore) Events() []OutboxEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]OutboxEvent(nil), m.events...)
}
