package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/wolfman30/vetcare-scheduling/internal/events"
	"github.com/wolfman30/vetcare-scheduling/internal/practice"
	"github.com/wolfman30/vetcare-scheduling/internal/scheduling"
	"github.com/wolfman30/vetcare-scheduling/pkg/logging"
)

type blockWriter interface {
	CreateBlock(ctx context.Context, req scheduling.BlockRequest) ([]scheduling.AvailabilityRecord, error)
	Deactivate(ctx context.Context, practiceID, recordID uuid.UUID) error
}

type timezoneSource interface {
	Timezone(ctx context.Context, practiceID uuid.UUID) (string, error)
}

type availabilityAuditor interface {
	LogAvailabilityChanged(ctx context.Context, practiceID, vetID, action string, recordIDs []string) error
}

// AvailabilityHandlerConfig configures the AvailabilityHandler. Timezones,
// Audit and Publisher are optional.
type AvailabilityHandlerConfig struct {
	Writer          blockWriter
	Timezones       timezoneSource
	DefaultTimezone string
	Audit           availabilityAuditor
	Publisher       events.Publisher
	Logger          *logging.Logger
}

// AvailabilityHandler lets staff add and remove vet availability.
type AvailabilityHandler struct {
	writer          blockWriter
	timezones       timezoneSource
	defaultTimezone string
	audit           availabilityAuditor
	publisher       events.Publisher
	logger          *logging.Logger
}

func NewAvailabilityHandler(cfg AvailabilityHandlerConfig) *AvailabilityHandler {
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	if cfg.Publisher == nil {
		cfg.Publisher = events.NopPublisher{}
	}
	return &AvailabilityHandler{
		writer:          cfg.Writer,
		timezones:       cfg.Timezones,
		defaultTimezone: cfg.DefaultTimezone,
		audit:           cfg.Audit,
		publisher:       cfg.Publisher,
		logger:          cfg.Logger,
	}
}

// CreateBlockRequest is a block of vet time in practice-local terms.
type CreateBlockRequest struct {
	VetID            string `json:"vet_id"`
	LocalDate        string `json:"local_date"`
	Start            string `json:"start"`
	End              string `json:"end"`
	Timezone         string `json:"timezone,omitempty"`
	AvailabilityType string `json:"availability_type,omitempty"`
}

// RecordView is the wire form of a stored availability record.
type RecordView struct {
	ID               string `json:"id"`
	UTCDate          string `json:"utc_date"`
	UTCStartTime     string `json:"utc_start_time"`
	UTCEndTime       string `json:"utc_end_time"`
	AvailabilityType string `json:"availability_type"`
}

// CreateBlock serves POST /admin/practices/{practiceID}/availability.
func (h *AvailabilityHandler) CreateBlock(w http.ResponseWriter, r *http.Request) {
	practiceID, err := uuid.Parse(chi.URLParam(r, "practiceID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid practice id")
		return
	}
	var body CreateBlockRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON payload")
		return
	}
	vetID, err := uuid.Parse(strings.TrimSpace(body.VetID))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid vet_id")
		return
	}
	date, err := civil.ParseDate(strings.TrimSpace(body.LocalDate))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "local_date must be YYYY-MM-DD")
		return
	}
	start, err := parseClock(body.Start)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "start must be HH:MM")
		return
	}
	end, err := parseClock(body.End)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "end must be HH:MM")
		return
	}
	typ, err := scheduling.ParseAvailabilityType(body.AvailabilityType)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	tz := h.resolveTimezone(r.Context(), practiceID, body.Timezone)
	records, err := h.writer.CreateBlock(r.Context(), scheduling.BlockRequest{
		VetID:      vetID,
		PracticeID: practiceID,
		LocalDate:  date,
		Start:      start,
		End:        end,
		Timezone:   tz,
		Type:       typ,
	})
	switch {
	case err == nil:
	case writeConfigError(w, err):
		return
	case errors.Is(err, scheduling.ErrInvalidBlock):
		writeError(w, http.StatusUnprocessableEntity, "invalid_block", "end must be after start")
		return
	default:
		h.logger.Error("availability: create failed", "error", err, "practice_id", practiceID.String())
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to store availability")
		return
	}

	ids := make([]string, 0, len(records))
	views := make([]RecordView, 0, len(records))
	for _, rec := range records {
		ids = append(ids, rec.ID.String())
		views = append(views, RecordView{
			ID:               rec.ID.String(),
			UTCDate:          rec.UTCDate.String(),
			UTCStartTime:     rec.UTCStartTime.String(),
			UTCEndTime:       rec.UTCEndTime.String(),
			AvailabilityType: string(rec.Type),
		})
	}
	h.recordChange(r.Context(), practiceID, vetID.String(), "created", ids)
	writeJSON(w, http.StatusCreated, map[string]any{"timezone": tz, "records": views})
}

// DeactivateRecord serves DELETE /admin/practices/{practiceID}/availability/{recordID}.
func (h *AvailabilityHandler) DeactivateRecord(w http.ResponseWriter, r *http.Request) {
	practiceID, err := uuid.Parse(chi.URLParam(r, "practiceID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid practice id")
		return
	}
	recordID, err := uuid.Parse(chi.URLParam(r, "recordID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid record id")
		return
	}
	if err := h.writer.Deactivate(r.Context(), practiceID, recordID); err != nil {
		if errors.Is(err, scheduling.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "availability record not found")
			return
		}
		h.logger.Error("availability: deactivate failed", "error", err, "record_id", recordID.String())
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to deactivate availability")
		return
	}
	h.recordChange(r.Context(), practiceID, "", "deactivated", []string{recordID.String()})
	w.WriteHeader(http.StatusNoContent)
}

func (h *AvailabilityHandler) resolveTimezone(ctx context.Context, practiceID uuid.UUID, requested string) string {
	if tz := strings.TrimSpace(requested); tz != "" {
		return tz
	}
	if h.timezones != nil {
		tz, err := h.timezones.Timezone(ctx, practiceID)
		if err == nil && tz != "" {
			return tz
		}
		if err != nil && !errors.Is(err, practice.ErrNotFound) {
			h.logger.Warn("availability: practice timezone lookup failed", "error", err, "practice_id", practiceID.String())
		}
	}
	return h.defaultTimezone
}

func (h *AvailabilityHandler) recordChange(ctx context.Context, practiceID uuid.UUID, vetID, action string, ids []string) {
	if h.audit != nil {
		if err := h.audit.LogAvailabilityChanged(ctx, practiceID.String(), vetID, action, ids); err != nil {
			h.logger.Error("audit write failed", "error", err, "practice_id", practiceID.String())
		}
	}
	payload := events.AvailabilityChangedV1{
		EventID:    uuid.NewString(),
		PracticeID: practiceID.String(),
		VetID:      vetID,
		Action:     action,
		RecordIDs:  ids,
		OccurredAt: time.Now().UTC(),
	}
	if err := h.publisher.Publish(ctx, practiceID.String(), events.TypeAvailabilityChanged, payload); err != nil {
		h.logger.Error("publish availability changed failed", "error", err, "practice_id", practiceID.String())
	}
}

// parseClock accepts HH:MM or HH:MM:SS.
func parseClock(raw string) (civil.Time, error) {
	raw = strings.TrimSpace(raw)
	if strings.Count(raw, ":") == 1 {
		raw += ":00"
	}
	return civil.ParseTime(raw)
}
