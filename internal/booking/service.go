// Package booking runs the voice booking flow: spoken date and time in,
// offered slots or a committed appointment out.
package booking

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/wolfman30/vetcare-scheduling/internal/events"
	"github.com/wolfman30/vetcare-scheduling/internal/observability/metrics"
	"github.com/wolfman30/vetcare-scheduling/internal/phoneparse"
	"github.com/wolfman30/vetcare-scheduling/internal/practice"
	"github.com/wolfman30/vetcare-scheduling/internal/scheduling"
	"github.com/wolfman30/vetcare-scheduling/internal/timezone"
	"github.com/wolfman30/vetcare-scheduling/pkg/logging"
)

var bookingTracer = otel.Tracer("vetcare.internal.booking")

var (
	// ErrDateAmbiguous means the spoken date was not understood. Booking
	// never commits to a guessed day.
	ErrDateAmbiguous = errors.New("booking: date not understood")
	// ErrTimeUnclear wraps phoneparse.ErrTimeParseFailed.
	ErrTimeUnclear = errors.New("booking: time not understood")
	// ErrSlotUnavailable means the requested start is not an open slot.
	ErrSlotUnavailable = errors.New("booking: slot unavailable")
)

// Booking attempt outcomes recorded in metrics.
const (
	outcomeBooked        = "booked"
	outcomeConflict      = "conflict"
	outcomeNotOffered    = "not_offered"
	outcomeDateAmbiguous = "date_ambiguous"
	outcomeTimeUnclear   = "time_unclear"
	outcomeError         = "error"
)

// ConfigSource supplies per-practice settings. *practice.Store satisfies it.
type ConfigSource interface {
	Get(ctx context.Context, practiceID uuid.UUID) (*practice.Config, error)
}

// Auditor records scheduling decisions. *compliance.AuditService satisfies it.
type Auditor interface {
	LogDateDefaulted(ctx context.Context, practiceID, callID, spoken, resolved, tz string) error
	LogBookingConflict(ctx context.Context, practiceID, vetID, callID string, startUTC time.Time, durationMinutes, conflicts int) error
	LogAppointmentBooked(ctx context.Context, practiceID, vetID, callID, appointmentID string, startUTC time.Time, durationMinutes int, localTime, tz string) error
	LogTimezoneRejected(ctx context.Context, practiceID, callID, tz string) error
}

// Defaults apply when neither the request nor the practice config sets a value.
type Defaults struct {
	Timezone            string
	SlotDurationMinutes int
	MaxSlotsPresented   int
}

// Deps groups the collaborators of a Service. Practices, Audit and Metrics
// are optional. Booking events travel with the appointment write, so the
// AppointmentWriter decides whether they are recorded.
type Deps struct {
	Slots        *scheduling.SlotService
	Appointments scheduling.AppointmentWriter
	Practices    ConfigSource
	Audit        Auditor
	Metrics      *metrics.SchedulingMetrics
	Logger       *logging.Logger
	Now          func() time.Time
}

// Service answers availability questions and books appointments for callers.
type Service struct {
	slots        *scheduling.SlotService
	appointments scheduling.AppointmentWriter
	practices    ConfigSource
	audit        Auditor
	metrics      *metrics.SchedulingMetrics
	logger       *logging.Logger
	now          func() time.Time
	defaults     Defaults
}

func NewService(deps Deps, defaults Defaults) *Service {
	if deps.Slots == nil || deps.Appointments == nil {
		panic("booking: slot service and appointment writer required")
	}
	if deps.Logger == nil {
		deps.Logger = logging.Default()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if defaults.SlotDurationMinutes <= 0 {
		defaults.SlotDurationMinutes = 45
	}
	if defaults.MaxSlotsPresented <= 0 {
		defaults.MaxSlotsPresented = scheduling.DefaultSlotLimit
	}
	return &Service{
		slots:        deps.Slots,
		appointments: deps.Appointments,
		practices:    deps.Practices,
		audit:        deps.Audit,
		metrics:      deps.Metrics,
		logger:       deps.Logger,
		now:          deps.Now,
		defaults:     defaults,
	}
}

// AvailabilityRequest is what a caller asked for, as transcribed.
type AvailabilityRequest struct {
	PracticeID      uuid.UUID
	VetID           uuid.UUID
	Date            string
	Preference      string
	Timezone        string
	DurationMinutes int
	// Limit overrides the configured number of slots; negative lists all.
	Limit  int
	CallID string
}

// AvailabilityResponse carries the slot result plus how the date was read.
type AvailabilityResponse struct {
	*scheduling.SlotResult
	Date     phoneparse.DateResult
	Spoken   string
	Timezone string
}

// BookRequest asks for one appointment at a spoken date and time.
type BookRequest struct {
	PracticeID      uuid.UUID
	VetID           uuid.UUID
	Date            string
	Time            string
	Timezone        string
	DurationMinutes int
	ClientName      string
	ClientPhone     string
	PetName         string
	Reason          string
	CallID          string
}

// BookResult is returned for every attempt; Message is always speakable.
// Alternatives is set when the requested slot is not open.
type BookResult struct {
	Appointment  *scheduling.ExistingAppointment
	LocalTime    string
	Message      string
	Alternatives []scheduling.Slot
	Timezone     string
}

type resolved struct {
	loc      *time.Location
	tz       string
	duration int
}

// resolve picks the timezone (request, then practice config, then default)
// and the slot duration (request, then practice config, then default).
func (s *Service) resolve(ctx context.Context, practiceID uuid.UUID, reqTZ string, reqDuration int, callID string) (resolved, error) {
	var cfg *practice.Config
	if s.practices != nil {
		c, err := s.practices.Get(ctx, practiceID)
		switch {
		case err == nil:
			cfg = c
		case errors.Is(err, practice.ErrNotFound):
		default:
			return resolved{}, fmt.Errorf("booking: load practice config: %w", err)
		}
	}

	tz := strings.TrimSpace(reqTZ)
	if tz == "" && cfg != nil {
		tz = cfg.Timezone
	}
	if tz == "" {
		tz = s.defaults.Timezone
	}
	loc, err := timezone.Load(tz)
	if err != nil {
		if s.audit != nil {
			if aerr := s.audit.LogTimezoneRejected(ctx, practiceID.String(), callID, tz); aerr != nil {
				s.logger.Error("audit write failed", "error", aerr, "practice_id", practiceID.String())
			}
		}
		return resolved{}, fmt.Errorf("booking: %w", err)
	}

	duration := reqDuration
	if duration <= 0 && cfg != nil {
		duration = cfg.SlotDurationMinutes
	}
	if duration <= 0 {
		duration = s.defaults.SlotDurationMinutes
	}
	return resolved{loc: loc, tz: loc.String(), duration: duration}, nil
}

func (s *Service) parser(loc *time.Location) *phoneparse.Parser {
	return phoneparse.New(loc, s.logger, phoneparse.WithClock(s.now), phoneparse.WithMetrics(s.metrics))
}

// CheckAvailability reads the spoken date and preference and lists open slots.
func (s *Service) CheckAvailability(ctx context.Context, req AvailabilityRequest) (*AvailabilityResponse, error) {
	ctx, span := bookingTracer.Start(ctx, "booking.check_availability")
	defer span.End()
	span.SetAttributes(
		attribute.String("practice_id", req.PracticeID.String()),
		attribute.String("vet_id", req.VetID.String()),
	)

	r, err := s.resolve(ctx, req.PracticeID, req.Timezone, req.DurationMinutes, req.CallID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "resolve failed")
		return nil, err
	}
	p := s.parser(r.loc)
	date := p.ParseDate(req.Date)
	if date.Defaulted {
		s.auditDefault(ctx, req.PracticeID, req.CallID, req.Date, date, r.tz)
	}
	pref := phoneparse.ClassifyTimePreference(strings.TrimSpace(req.Date + " " + req.Preference))

	q := scheduling.SlotQuery{
		VetID:               req.VetID,
		PracticeID:          req.PracticeID,
		LocalDate:           date.Date,
		Timezone:            r.tz,
		SlotDurationMinutes: r.duration,
		Preference:          pref,
		Limit:               s.defaults.MaxSlotsPresented,
	}
	if req.Limit != 0 {
		q.Limit = req.Limit
	}
	if date.Date == p.Today() {
		q.NotBefore = s.now()
	}
	res, err := s.slots.ComputeSlots(ctx, q)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "compute slots failed")
		return nil, fmt.Errorf("booking: check availability: %w", err)
	}
	span.SetAttributes(attribute.String("outcome", string(res.Outcome)))

	spoken := res.Message
	if date.Defaulted && strings.TrimSpace(req.Date) != "" {
		spoken = "I wasn't sure which day you meant, so I checked " + scheduling.FormatSpokenDate(date.Date) + ". " + spoken
	}
	return &AvailabilityResponse{SlotResult: res, Date: date, Spoken: spoken, Timezone: r.tz}, nil
}

// Book commits an appointment when the requested start is an open slot.
// Domain refusals return a non-nil result alongside the error so the caller
// can be told why.
func (s *Service) Book(ctx context.Context, req BookRequest) (*BookResult, error) {
	ctx, span := bookingTracer.Start(ctx, "booking.book")
	defer span.End()
	span.SetAttributes(
		attribute.String("practice_id", req.PracticeID.String()),
		attribute.String("vet_id", req.VetID.String()),
	)

	r, err := s.resolve(ctx, req.PracticeID, req.Timezone, req.DurationMinutes, req.CallID)
	if err != nil {
		s.metrics.ObserveBooking(outcomeError)
		span.RecordError(err)
		span.SetStatus(codes.Error, "resolve failed")
		return nil, err
	}
	p := s.parser(r.loc)

	date := p.ParseDate(req.Date)
	if date.Defaulted {
		s.auditDefault(ctx, req.PracticeID, req.CallID, req.Date, date, r.tz)
		s.metrics.ObserveBooking(outcomeDateAmbiguous)
		return &BookResult{
			Message:  "I'm sorry, which day would you like to come in?",
			Timezone: r.tz,
		}, ErrDateAmbiguous
	}
	clock, err := phoneparse.ParseTime(req.Time)
	if err != nil {
		s.metrics.ObserveBooking(outcomeTimeUnclear)
		return &BookResult{
			Message:  fmt.Sprintf("What time on %s works for you?", scheduling.FormatSpokenDate(date.Date)),
			Timezone: r.tz,
		}, fmt.Errorf("%w: %w", ErrTimeUnclear, err)
	}
	start := timezone.ConvertToUTCIn(date.Date, clock, r.loc)
	span.SetAttributes(attribute.String("start_utc", start.Format(time.RFC3339)))

	q := scheduling.SlotQuery{
		VetID:               req.VetID,
		PracticeID:          req.PracticeID,
		LocalDate:           date.Date,
		Timezone:            r.tz,
		SlotDurationMinutes: r.duration,
		Limit:               -1,
		IncludeBooked:       true,
	}
	if date.Date == p.Today() {
		q.NotBefore = s.now()
	}
	res, err := s.slots.ComputeSlots(ctx, q)
	if err != nil {
		s.metrics.ObserveBooking(outcomeError)
		span.RecordError(err)
		span.SetStatus(codes.Error, "compute slots failed")
		return nil, fmt.Errorf("booking: book: %w", err)
	}
	if res.Outcome == scheduling.OutcomeNotFound {
		s.metrics.ObserveBooking(outcomeError)
		return &BookResult{Message: res.Message, Timezone: r.tz}, fmt.Errorf("booking: book: vet %w", scheduling.ErrNotFound)
	}

	requested, found := findSlot(res.Slots, start)
	alternatives := s.alternatives(res.Slots, start)
	if !found || !requested.Available {
		outcome := outcomeNotOffered
		if found {
			outcome = outcomeConflict
			s.auditConflict(ctx, req, start, r.duration, 1)
		}
		s.metrics.ObserveBooking(outcome)
		return s.unavailable(date.Date, start, r, alternatives, res), ErrSlotUnavailable
	}

	local := start.In(r.loc)
	localTime := scheduling.FormatLocalTime(local)
	apptID := uuid.New()
	appt, err := s.appointments.CreateIfFree(ctx, scheduling.NewAppointment{
		ID:              apptID,
		VetID:           req.VetID,
		PracticeID:      req.PracticeID,
		StartUTC:        start,
		DurationMinutes: r.duration,
		ClientName:      req.ClientName,
		ClientPhone:     req.ClientPhone,
		PetName:         req.PetName,
		Reason:          req.Reason,
		CallID:          req.CallID,
		Events: []scheduling.OutboxEvent{{
			Type:    events.TypeAppointmentBooked,
			Payload: s.bookedEvent(apptID, start, req, r, localTime),
		}},
	})
	if errors.Is(err, scheduling.ErrSlotTaken) {
		s.auditConflict(ctx, req, start, r.duration, 1)
		s.metrics.ObserveBooking(outcomeConflict)
		s.logger.Info("slot taken during booking",
			"practice_id", req.PracticeID.String(),
			"vet_id", req.VetID.String(),
			"start_utc", start.Format(time.RFC3339),
		)
		return s.unavailable(date.Date, start, r, alternatives, res), ErrSlotUnavailable
	}
	if err != nil {
		s.metrics.ObserveBooking(outcomeError)
		span.RecordError(err)
		span.SetStatus(codes.Error, "insert failed")
		return nil, fmt.Errorf("booking: book: %w", err)
	}

	s.metrics.ObserveBooking(outcomeBooked)
	s.afterBooked(ctx, appt, req, localTime, r.tz)

	return &BookResult{
		Appointment: &appt,
		LocalTime:   localTime,
		Message:     confirmation(req.PetName, localTime, date.Date),
		Timezone:    r.tz,
	}, nil
}

func (s *Service) bookedEvent(apptID uuid.UUID, start time.Time, req BookRequest, r resolved, localTime string) events.AppointmentBookedV1 {
	return events.AppointmentBookedV1{
		EventID:         uuid.NewString(),
		AppointmentID:   apptID.String(),
		PracticeID:      req.PracticeID.String(),
		VetID:           req.VetID.String(),
		StartUTC:        start.UTC(),
		DurationMinutes: r.duration,
		Timezone:        r.tz,
		LocalTime:       localTime,
		ClientName:      req.ClientName,
		ClientPhone:     req.ClientPhone,
		PetName:         req.PetName,
		CallID:          req.CallID,
		BookedAt:        s.now().UTC(),
	}
}

func (s *Service) afterBooked(ctx context.Context, appt scheduling.ExistingAppointment, req BookRequest, localTime, tz string) {
	if s.audit != nil {
		if err := s.audit.LogAppointmentBooked(ctx, appt.PracticeID.String(), appt.VetID.String(), req.CallID,
			appt.ID.String(), appt.StartUTC, appt.DurationMinutes, localTime, tz); err != nil {
			s.logger.Error("audit write failed", "error", err, "appointment_id", appt.ID.String())
		}
	}
	s.logger.Info("appointment booked",
		"practice_id", appt.PracticeID.String(),
		"vet_id", appt.VetID.String(),
		"appointment_id", appt.ID.String(),
		"local_time", localTime,
		"tz", tz,
	)
}

func (s *Service) auditDefault(ctx context.Context, practiceID uuid.UUID, callID, spoken string, date phoneparse.DateResult, tz string) {
	if s.audit == nil {
		return
	}
	if err := s.audit.LogDateDefaulted(ctx, practiceID.String(), callID, spoken, date.Date.String(), tz); err != nil {
		s.logger.Error("audit write failed", "error", err, "practice_id", practiceID.String())
	}
}

func (s *Service) auditConflict(ctx context.Context, req BookRequest, start time.Time, duration, conflicts int) {
	if s.audit == nil {
		return
	}
	if err := s.audit.LogBookingConflict(ctx, req.PracticeID.String(), req.VetID.String(), req.CallID, start, duration, conflicts); err != nil {
		s.logger.Error("audit write failed", "error", err, "practice_id", req.PracticeID.String())
	}
}

func (s *Service) unavailable(d civil.Date, start time.Time, r resolved, alternatives []scheduling.Slot, res *scheduling.SlotResult) *BookResult {
	requested := scheduling.FormatLocalTime(start.In(r.loc))
	out := &BookResult{Alternatives: alternatives, Timezone: r.tz}
	if len(alternatives) == 0 {
		if res.Outcome == scheduling.OutcomeOK {
			out.Message = fmt.Sprintf("I'm sorry, %s isn't available and we're fully booked on %s.", requested, scheduling.FormatSpokenDate(d))
		} else {
			out.Message = "I'm sorry, " + requested + " isn't available. " + res.Message
		}
		return out
	}
	times := make([]string, 0, len(alternatives))
	for _, slot := range alternatives {
		times = append(times, slot.LocalTime)
	}
	out.Message = fmt.Sprintf("I'm sorry, %s isn't available. I do have %s on %s.",
		requested, scheduling.JoinSpoken(times), scheduling.FormatSpokenDate(d))
	return out
}

// alternatives returns the open slots nearest to want, in time order.
func (s *Service) alternatives(slots []scheduling.Slot, want time.Time) []scheduling.Slot {
	open := make([]scheduling.Slot, 0, len(slots))
	for _, slot := range slots {
		if slot.Available && !slot.StartUTC.Equal(want) {
			open = append(open, slot)
		}
	}
	sort.SliceStable(open, func(i, j int) bool {
		return distance(open[i].StartUTC, want) < distance(open[j].StartUTC, want)
	})
	if len(open) > s.defaults.MaxSlotsPresented {
		open = open[:s.defaults.MaxSlotsPresented]
	}
	sort.Slice(open, func(i, j int) bool { return open[i].StartUTC.Before(open[j].StartUTC) })
	return open
}

func findSlot(slots []scheduling.Slot, start time.Time) (scheduling.Slot, bool) {
	for _, slot := range slots {
		if slot.StartUTC.Equal(start) {
			return slot, true
		}
	}
	return scheduling.Slot{}, false
}

func distance(a, b time.Time) time.Duration {
	d := a.Sub(b)
	if d < 0 {
		return -d
	}
	return d
}

func confirmation(petName, localTime string, d civil.Date) string {
	day := scheduling.FormatSpokenDate(d)
	if strings.TrimSpace(petName) == "" {
		return fmt.Sprintf("You're all set for %s on %s.", localTime, day)
	}
	return fmt.Sprintf("You're all set. %s is booked for %s on %s.", strings.TrimSpace(petName), localTime, day)
}
