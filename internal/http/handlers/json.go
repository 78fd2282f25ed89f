// Package handlers exposes the scheduling core over HTTP: Retell voice
// function calls, the public slot API, and staff availability edits.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/wolfman30/vetcare-scheduling/internal/scheduling"
	"github.com/wolfman30/vetcare-scheduling/internal/timezone"
)

const maxBodyBytes = 1 << 20

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorResponse{Error: code, Message: msg})
}

// writeConfigError reports a timezone the IANA database does not know.
// It returns false when err is something else.
func writeConfigError(w http.ResponseWriter, err error) bool {
	if !errors.Is(err, timezone.ErrInvalidTimezone) {
		return false
	}
	writeError(w, http.StatusUnprocessableEntity, "configuration_error", err.Error())
	return true
}

// SlotView is the wire form of a slot.
type SlotView struct {
	StartUTC        time.Time `json:"start_utc"`
	EndUTC          time.Time `json:"end_utc"`
	LocalStart      string    `json:"local_start"`
	LocalTime       string    `json:"local_time"`
	DurationMinutes int       `json:"duration_minutes"`
	Available       bool      `json:"available"`
}

func slotViews(slots []scheduling.Slot) []SlotView {
	out := make([]SlotView, 0, len(slots))
	for _, s := range slots {
		out = append(out, SlotView{
			StartUTC:        s.StartUTC,
			EndUTC:          s.EndUTC,
			LocalStart:      s.LocalStart.Format(time.RFC3339),
			LocalTime:       s.LocalTime,
			DurationMinutes: s.DurationMinutes,
			Available:       s.Available,
		})
	}
	return out
}
