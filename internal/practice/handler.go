package practice

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/wolfman30/vetcare-scheduling/pkg/logging"
)

type configStore interface {
	Get(ctx context.Context, practiceID uuid.UUID) (*Config, error)
	Set(ctx context.Context, cfg *Config) error
}

// Handler provides HTTP endpoints for practice configuration management.
type Handler struct {
	store           configStore
	defaultTimezone string
	logger          *logging.Logger
}

// NewHandler creates a practice config handler. defaultTimezone seeds
// configs created through PUT without a timezone.
func NewHandler(store configStore, defaultTimezone string, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{store: store, defaultTimezone: defaultTimezone, logger: logger}
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// GetConfig returns the practice configuration.
// GET /admin/practices/{practiceID}/config
func (h *Handler) GetConfig(w http.ResponseWriter, r *http.Request) {
	practiceID, err := uuid.Parse(chi.URLParam(r, "practiceID"))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid practice id")
		return
	}

	cfg, err := h.store.Get(r.Context(), practiceID)
	if errors.Is(err, ErrNotFound) {
		writeJSONError(w, http.StatusNotFound, "practice not configured")
		return
	}
	if err != nil {
		h.logger.Error("failed to get practice config", "practice_id", practiceID.String(), "error", err)
		writeJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(cfg); err != nil {
		h.logger.Error("failed to encode practice config", "practice_id", practiceID.String(), "error", err)
	}
}

// UpdateConfigRequest is a partial update; omitted fields keep their value.
type UpdateConfigRequest struct {
	Name                string              `json:"name,omitempty"`
	Timezone            string              `json:"timezone,omitempty"`
	BusinessHours       *BusinessHours      `json:"business_hours,omitempty"`
	Closures            []string            `json:"closures,omitempty"`
	HoursOverrides      map[string]DayHours `json:"hours_overrides,omitempty"`
	SlotDurationMinutes *int                `json:"slot_duration_minutes,omitempty"`
}

// UpdateConfig creates or updates the practice configuration.
// PUT /admin/practices/{practiceID}/config
func (h *Handler) UpdateConfig(w http.ResponseWriter, r *http.Request) {
	practiceID, err := uuid.Parse(chi.URLParam(r, "practiceID"))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid practice id")
		return
	}

	var req UpdateConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	cfg, err := h.store.Get(r.Context(), practiceID)
	switch {
	case errors.Is(err, ErrNotFound):
		cfg = DefaultConfig(practiceID, h.defaultTimezone)
	case err != nil:
		h.logger.Error("failed to get practice config", "practice_id", practiceID.String(), "error", err)
		writeJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	if req.Name != "" {
		cfg.Name = req.Name
	}
	if req.Timezone != "" {
		cfg.Timezone = req.Timezone
	}
	if req.BusinessHours != nil {
		cfg.BusinessHours = *req.BusinessHours
	}
	if req.Closures != nil {
		cfg.Closures = req.Closures
	}
	if req.HoursOverrides != nil {
		cfg.HoursOverrides = req.HoursOverrides
	}
	if req.SlotDurationMinutes != nil {
		cfg.SlotDurationMinutes = *req.SlotDurationMinutes
	}

	if err := h.store.Set(r.Context(), cfg); err != nil {
		if errors.Is(err, ErrInvalidConfig) {
			writeJSONError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		h.logger.Error("failed to save practice config", "practice_id", practiceID.String(), "error", err)
		writeJSONError(w, http.StatusInternalServerError, "failed to save config")
		return
	}

	h.logger.Info("practice config updated", "practice_id", practiceID.String(), "tz", cfg.Timezone)

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(cfg); err != nil {
		h.logger.Error("failed to encode practice config", "practice_id", practiceID.String(), "error", err)
	}
}
