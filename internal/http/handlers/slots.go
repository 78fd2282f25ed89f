package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"cloud.google.com/go/civil"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/wolfman30/vetcare-scheduling/internal/booking"
	"github.com/wolfman30/vetcare-scheduling/internal/scheduling"
	"github.com/wolfman30/vetcare-scheduling/pkg/logging"
)

type availabilityChecker interface {
	CheckAvailability(ctx context.Context, req booking.AvailabilityRequest) (*booking.AvailabilityResponse, error)
}

// SlotsResponse is the body of GET .../slots.
type SlotsResponse struct {
	Outcome           string     `json:"outcome"`
	Message           string     `json:"message"`
	Date              string     `json:"date"`
	Timezone          string     `json:"timezone"`
	Slots             []SlotView `json:"slots"`
	PreferenceRelaxed bool       `json:"preference_relaxed,omitempty"`
}

// SlotsHandler serves the public availability API.
type SlotsHandler struct {
	checker availabilityChecker
	logger  *logging.Logger
}

func NewSlotsHandler(checker availabilityChecker, logger *logging.Logger) *SlotsHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &SlotsHandler{checker: checker, logger: logger}
}

// GetSlots serves GET /api/practices/{practiceID}/vets/{vetID}/slots.
// date is required (YYYY-MM-DD); tz, duration, preference and limit are
// optional.
func (h *SlotsHandler) GetSlots(w http.ResponseWriter, r *http.Request) {
	practiceID, err := uuid.Parse(chi.URLParam(r, "practiceID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid practice id")
		return
	}
	vetID, err := uuid.Parse(chi.URLParam(r, "vetID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid vet id")
		return
	}
	q := r.URL.Query()
	date, err := civil.ParseDate(strings.TrimSpace(q.Get("date")))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "date must be YYYY-MM-DD")
		return
	}
	req := booking.AvailabilityRequest{
		PracticeID: practiceID,
		VetID:      vetID,
		Date:       date.String(),
		Preference: q.Get("preference"),
		Timezone:   q.Get("tz"),
		Limit:      -1,
	}
	if raw := q.Get("duration"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "bad_request", "duration must be a positive number of minutes")
			return
		}
		req.DurationMinutes = n
	}
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "bad_request", "limit must be positive")
			return
		}
		req.Limit = n
	}

	resp, err := h.checker.CheckAvailability(r.Context(), req)
	if err != nil {
		if writeConfigError(w, err) {
			return
		}
		h.logger.Error("slots: compute failed", "error", err, "practice_id", practiceID.String(), "vet_id", vetID.String())
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to compute slots")
		return
	}
	status := http.StatusOK
	if resp.Outcome == scheduling.OutcomeNotFound {
		status = http.StatusNotFound
	}
	writeJSON(w, status, SlotsResponse{
		Outcome:           string(resp.Outcome),
		Message:           resp.Message,
		Date:              resp.LocalDate.String(),
		Timezone:          resp.Timezone,
		Slots:             slotViews(resp.Slots),
		PreferenceRelaxed: resp.PreferenceRelaxed,
	})
}
