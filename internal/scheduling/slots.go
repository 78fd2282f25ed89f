package scheduling

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

	"github.com/wolfman30/vetcare-scheduling/internal/observability/metrics"
	"github.com/wolfman30/vetcare-scheduling/internal/timezone"
	"github.com/wolfman30/vetcare-scheduling/pkg/logging"
)

var slotTracer = otel.Tracer("vetcare.internal.scheduling.slots")

// DefaultSlotLimit is how many options a caller hears when no limit is given.
const DefaultSlotLimit = 3

// Outcome explains a slot result; an empty slot list is never ambiguous.
type Outcome string

const (
	OutcomeOK             Outcome = "ok"
	OutcomeNotFound       Outcome = "not_found"
	OutcomePracticeClosed Outcome = "practice_closed"
	OutcomeNoAvailability Outcome = "no_availability"
	OutcomeFullyBooked    Outcome = "fully_booked"
)

// SlotQuery describes one slot computation.
type SlotQuery struct {
	VetID               uuid.UUID
	PracticeID          uuid.UUID
	LocalDate           civil.Date
	Timezone            string
	SlotDurationMinutes int
	Preference          TimePreference
	// Limit caps returned slots; zero means DefaultSlotLimit and a negative
	// value returns every slot.
	Limit int
	// NotBefore drops slots starting earlier, used for same-day queries.
	NotBefore time.Time
	// IncludeBooked keeps slots that overlap committed appointments, marked
	// Available=false.
	IncludeBooked bool
}

// SlotResult is the answer to a SlotQuery.
type SlotResult struct {
	Outcome           Outcome    `json:"outcome"`
	Slots             []Slot     `json:"slots"`
	Message           string     `json:"message"`
	LocalDate         civil.Date `json:"local_date"`
	Timezone          string     `json:"timezone"`
	CandidatesFetched int        `json:"candidates_fetched"`
	PhantomsDiscarded int        `json:"phantoms_discarded"`
	PreferenceRelaxed bool       `json:"preference_relaxed"`
}

// SlotService turns stored availability into bookable local slots.
type SlotService struct {
	store     AvailabilityStore
	conflicts *ConflictChecker
	metrics   *metrics.SchedulingMetrics
	logger    *logging.Logger
	now       func() time.Time
}

// NewSlotService wires the slot computation. conflicts and m may be nil; with
// no conflict checker every slot is reported available.
func NewSlotService(store AvailabilityStore, conflicts *ConflictChecker, m *metrics.SchedulingMetrics, logger *logging.Logger) *SlotService {
	if store == nil {
		panic("scheduling: availability store required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &SlotService{
		store:     store,
		conflicts: conflicts,
		metrics:   m,
		logger:    logger,
		now:       time.Now,
	}
}

// ComputeSlots returns the bookable slots that start on q.LocalDate in
// q.Timezone. An unknown zone is an error wrapping
// timezone.ErrInvalidTimezone; a missing vet or practice is OutcomeNotFound.
func (s *SlotService) ComputeSlots(ctx context.Context, q SlotQuery) (*SlotResult, error) {
	ctx, span := slotTracer.Start(ctx, "scheduling.compute_slots")
	defer span.End()
	span.SetAttributes(
		attribute.String("vetcare.practice_id", q.PracticeID.String()),
		attribute.String("vetcare.vet_id", q.VetID.String()),
		attribute.String("scheduling.local_date", q.LocalDate.String()),
		attribute.String("scheduling.timezone", q.Timezone),
	)
	started := s.now()

	res, err := s.compute(ctx, q)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(
		attribute.String("scheduling.outcome", string(res.Outcome)),
		attribute.Int("scheduling.slots", len(res.Slots)),
		attribute.Int("scheduling.phantoms_discarded", res.PhantomsDiscarded),
	)
	s.metrics.ObserveSlotComputation(string(res.Outcome), s.now().Sub(started).Seconds())
	s.metrics.AddPhantomDiscarded(res.PhantomsDiscarded)
	return res, nil
}

func (s *SlotService) compute(ctx context.Context, q SlotQuery) (*SlotResult, error) {
	if q.SlotDurationMinutes <= 0 {
		return nil, ErrInvalidDuration
	}
	loc, err := timezone.Load(q.Timezone)
	if err != nil {
		return nil, fmt.Errorf("scheduling: compute slots: %w", err)
	}
	res := &SlotResult{LocalDate: q.LocalDate, Timezone: loc.String(), Slots: []Slot{}}
	log := s.logger.With(
		"practice_id", q.PracticeID.String(),
		"vet_id", q.VetID.String(),
		"local_date", q.LocalDate.String(),
		"tz", loc.String(),
	)

	exists, err := s.store.VetExists(ctx, q.VetID, q.PracticeID)
	if err != nil {
		return nil, fmt.Errorf("scheduling: lookup vet: %w", err)
	}
	if !exists {
		return finish(res, OutcomeNotFound), nil
	}
	hours, err := s.store.EffectiveHours(ctx, q.PracticeID, q.LocalDate)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return finish(res, OutcomeNotFound), nil
		}
		return nil, fmt.Errorf("scheduling: load hours: %w", err)
	}
	if hours == nil {
		return finish(res, OutcomePracticeClosed), nil
	}

	utcDates := candidateUTCDates(q.LocalDate, loc)
	records, err := s.store.CandidateRecords(ctx, q.VetID, q.PracticeID, utcDates)
	if err != nil {
		return nil, fmt.Errorf("scheduling: load availability: %w", err)
	}
	res.CandidatesFetched = len(records)

	kept := make([]AvailabilityRecord, 0, len(records))
	for _, rec := range records {
		if !rec.IsActive || !rec.Type.Bookable() {
			continue
		}
		start, _ := rec.Interval()
		if timezone.LocalDate(start, loc) != q.LocalDate {
			res.PhantomsDiscarded++
			continue
		}
		kept = append(kept, rec)
	}
	if res.PhantomsDiscarded > 0 {
		log.Debug("discarded availability from adjacent local dates", "count", res.PhantomsDiscarded)
	}

	dayEnd := timezone.StartOfDay(q.LocalDate.AddDays(1), loc)
	step := time.Duration(q.SlotDurationMinutes) * time.Minute
	generated := generateSlots(kept, step, dayEnd, loc)
	if len(generated) == 0 {
		return finish(res, OutcomeNoAvailability), nil
	}

	opensAt, closesAt := hours.Bounds(q.LocalDate, loc)
	inHours := generated[:0]
	for _, slot := range generated {
		if slot.StartUTC.Before(opensAt) || slot.EndUTC.After(closesAt) {
			continue
		}
		inHours = append(inHours, slot)
	}
	if len(inHours) == 0 {
		return finish(res, OutcomePracticeClosed), nil
	}

	candidates := inHours
	if !q.NotBefore.IsZero() {
		candidates = candidates[:0]
		for _, slot := range inHours {
			if !slot.StartUTC.Before(q.NotBefore) {
				candidates = append(candidates, slot)
			}
		}
		if len(candidates) == 0 {
			return finish(res, OutcomeNoAvailability), nil
		}
	}

	if s.conflicts != nil {
		if err := s.conflicts.markBooked(ctx, q.VetID, candidates); err != nil {
			return nil, err
		}
	}
	free := candidates
	if !q.IncludeBooked {
		free = make([]Slot, 0, len(candidates))
		for _, slot := range candidates {
			if slot.Available {
				free = append(free, slot)
			}
		}
		if len(free) == 0 {
			return finish(res, OutcomeFullyBooked), nil
		}
	}

	preferred := filterPreference(free, q.Preference)
	if len(preferred) == 0 {
		preferred = free
		res.PreferenceRelaxed = true
	}

	limit := q.Limit
	if limit == 0 {
		limit = DefaultSlotLimit
	}
	if limit > 0 && len(preferred) > limit {
		preferred = preferred[:limit]
	}
	res.Slots = append(res.Slots, preferred...)
	return finish(res, OutcomeOK), nil
}

// span is a run of availability with no gap, built from one or more records.
type span struct {
	start, end time.Time
	records    []AvailabilityRecord
}

// recordAt returns the id of the first record in the span covering t.
func (sp span) recordAt(t time.Time) uuid.UUID {
	for _, rec := range sp.records {
		start, end := rec.Interval()
		if !t.Before(start) && t.Before(end) {
			return rec.ID
		}
	}
	return sp.records[0].ID
}

// mergeSpans joins records that touch or overlap, so a block stored as two
// UTC-dated segments yields one continuous grid.
func mergeSpans(records []AvailabilityRecord) []span {
	sorted := append([]AvailabilityRecord(nil), records...)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, _ := sorted[i].Interval()
		b, _ := sorted[j].Interval()
		return a.Before(b)
	})
	var spans []span
	for _, rec := range sorted {
		start, end := rec.Interval()
		if n := len(spans); n > 0 && !start.After(spans[n-1].end) {
			last := &spans[n-1]
			if end.After(last.end) {
				last.end = end
			}
			last.records = append(last.records, rec)
			continue
		}
		spans = append(spans, span{start: start, end: end, records: []AvailabilityRecord{rec}})
	}
	return spans
}

// generateSlots cuts each merged span into step-long slots from the span
// start, stepping in absolute time. Slots never overlap and never cross the
// span end or the end of the local day.
func generateSlots(records []AvailabilityRecord, step time.Duration, dayEnd time.Time, loc *time.Location) []Slot {
	var out []Slot
	minutes := int(step / time.Minute)
	for _, sp := range mergeSpans(records) {
		end := sp.end
		if dayEnd.Before(end) {
			end = dayEnd
		}
		for t := sp.start; !t.Add(step).After(end); t = t.Add(step) {
			local := t.In(loc)
			out = append(out, Slot{
				StartUTC:        t.UTC(),
				EndUTC:          t.Add(step).UTC(),
				LocalStart:      local,
				LocalTime:       FormatLocalTime(local),
				DurationMinutes: minutes,
				Available:       true,
				AvailabilityID:  sp.recordAt(t),
			})
		}
	}
	return out
}

func filterPreference(slots []Slot, pref TimePreference) []Slot {
	if _, _, ok := pref.Window(); !ok {
		return slots
	}
	out := make([]Slot, 0, len(slots))
	for _, slot := range slots {
		if pref.Matches(slot.LocalStart) {
			out = append(out, slot)
		}
	}
	return out
}

func finish(res *SlotResult, outcome Outcome) *SlotResult {
	res.Outcome = outcome
	res.Message = DescribeResult(res)
	return res
}

// FormatLocalTime renders a caller-friendly 12-hour clock, e.g. "2:30 PM".
func FormatLocalTime(t time.Time) string {
	return t.Format("3:04 PM")
}

// FormatSpokenDate renders a date the way a receptionist would say it.
func FormatSpokenDate(d civil.Date) string {
	return d.In(time.UTC).Format("Monday, January 2")
}

// DescribeResult builds the sentence read back to a caller.
func DescribeResult(res *SlotResult) string {
	day := FormatSpokenDate(res.LocalDate)
	switch res.Outcome {
	case OutcomeOK:
		times := make([]string, 0, len(res.Slots))
		for _, s := range res.Slots {
			times = append(times, s.LocalTime)
		}
		return fmt.Sprintf("I have %s available on %s.", JoinSpoken(times), day)
	case OutcomeNotFound:
		return "I couldn't find that veterinarian at this practice."
	case OutcomePracticeClosed:
		return fmt.Sprintf("The practice is closed on %s.", day)
	case OutcomeFullyBooked:
		return fmt.Sprintf("We're fully booked on %s.", day)
	default:
		return fmt.Sprintf("I don't have any openings on %s.", day)
	}
}

// JoinSpoken lists items the way they are read aloud: "a, b, or c".
func JoinSpoken(items []string) string {
	switch len(items) {
	case 0:
		return ""
	case 1:
		return items[0]
	case 2:
		return items[0] + " or " + items[1]
	default:
		return strings.Join(items[:len(items)-1], ", ") + ", or " + items[len(items)-1]
	}
}
