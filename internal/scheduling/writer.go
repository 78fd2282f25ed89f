package scheduling

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"

	"github.com/wolfman30/vetcare-scheduling/internal/timezone"
	"github.com/wolfman30/vetcare-scheduling/pkg/logging"
)

// RecordWriter persists availability on behalf of staff tooling.
type RecordWriter interface {
	// InsertRecords stores all records or none.
	InsertRecords(ctx context.Context, records []AvailabilityRecord) error
	// DeactivateRecord soft-deletes a record; ErrNotFound when no active
	// record matches.
	DeactivateRecord(ctx context.Context, practiceID, recordID uuid.UUID) error
}

// BlockRequest is a block of vet time expressed in practice-local terms. An
// End of 00:00 means the end of the local day.
type BlockRequest struct {
	VetID      uuid.UUID        `json:"vet_id"`
	PracticeID uuid.UUID        `json:"practice_id"`
	LocalDate  civil.Date       `json:"local_date"`
	Start      civil.Time       `json:"start"`
	End        civil.Time       `json:"end"`
	Timezone   string           `json:"timezone"`
	Type       AvailabilityType `json:"availability_type"`
}

// SplitLocalBlock converts a local block into UTC-keyed segments, cutting at
// each UTC midnight. A segment that runs to UTC midnight is stored with end
// 00:00, which AvailabilityRecord.Interval reads as the next midnight.
func SplitLocalBlock(d civil.Date, start, end civil.Time, loc *time.Location) ([]AvailabilityRecord, error) {
	var from, to time.Time
	if secondsOfDay(start) == 0 {
		from = timezone.StartOfDay(d, loc)
	} else {
		from = timezone.CreateLocalDateTimeIn(d, start, loc)
	}
	if secondsOfDay(end) == 0 {
		to = timezone.StartOfDay(d.AddDays(1), loc)
	} else {
		to = timezone.CreateLocalDateTimeIn(d, end, loc)
	}
	if !to.After(from) {
		return nil, ErrInvalidBlock
	}

	var out []AvailabilityRecord
	for cur := from.UTC(); cur.Before(to); {
		utcDate := civil.DateOf(cur)
		midnight := civil.DateTime{Date: utcDate.AddDays(1)}.In(time.UTC)
		segEnd := to.UTC()
		endClock := civil.TimeOf(segEnd)
		if !segEnd.Before(midnight) {
			segEnd = midnight
			endClock = civil.Time{}
		}
		out = append(out, AvailabilityRecord{
			UTCDate:      utcDate,
			UTCStartTime: civil.TimeOf(cur),
			UTCEndTime:   endClock,
			IsActive:     true,
		})
		cur = segEnd
	}
	return out, nil
}

// AvailabilityWriter records staff-entered availability blocks.
type AvailabilityWriter struct {
	records RecordWriter
	logger  *logging.Logger
}

func NewAvailabilityWriter(records RecordWriter, logger *logging.Logger) *AvailabilityWriter {
	if records == nil {
		panic("scheduling: record writer required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &AvailabilityWriter{records: records, logger: logger}
}

// CreateBlock splits the block at UTC midnight and stores every segment.
func (w *AvailabilityWriter) CreateBlock(ctx context.Context, req BlockRequest) ([]AvailabilityRecord, error) {
	if req.VetID == uuid.Nil || req.PracticeID == uuid.Nil {
		return nil, fmt.Errorf("scheduling: create block: vet and practice ids required")
	}
	loc, err := timezone.Load(req.Timezone)
	if err != nil {
		return nil, fmt.Errorf("scheduling: create block: %w", err)
	}
	typ := req.Type
	if typ == "" {
		typ = AvailabilityAvailable
	}
	if _, err := ParseAvailabilityType(string(typ)); err != nil {
		return nil, err
	}
	segments, err := SplitLocalBlock(req.LocalDate, req.Start, req.End, loc)
	if err != nil {
		return nil, fmt.Errorf("scheduling: create block: %w", err)
	}
	for i := range segments {
		segments[i].ID = uuid.New()
		segments[i].VetID = req.VetID
		segments[i].PracticeID = req.PracticeID
		segments[i].Type = typ
	}
	if err := w.records.InsertRecords(ctx, segments); err != nil {
		return nil, fmt.Errorf("scheduling: create block: %w", err)
	}
	w.logger.Info("availability block stored",
		"practice_id", req.PracticeID.String(),
		"vet_id", req.VetID.String(),
		"local_date", req.LocalDate.String(),
		"tz", loc.String(),
		"segments", len(segments),
	)
	return segments, nil
}

// Deactivate soft-deletes one stored record.
func (w *AvailabilityWriter) Deactivate(ctx context.Context, practiceID, recordID uuid.UUID) error {
	if err := w.records.DeactivateRecord(ctx, practiceID, recordID); err != nil {
		return fmt.Errorf("scheduling: deactivate: %w", err)
	}
	return nil
}
