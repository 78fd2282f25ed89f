package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/vetcare-scheduling/internal/booking"
	"github.com/wolfman30/vetcare-scheduling/internal/observability/metrics"
	"github.com/wolfman30/vetcare-scheduling/internal/scheduling"
	"github.com/wolfman30/vetcare-scheduling/pkg/logging"
)

// voiceBooking is satisfied by *booking.Service.
type voiceBooking interface {
	CheckAvailability(ctx context.Context, req booking.AvailabilityRequest) (*booking.AvailabilityResponse, error)
	Book(ctx context.Context, req booking.BookRequest) (*booking.BookResult, error)
}

// RetellFunctionCall is the body Retell posts when its agent invokes a
// custom function.
type RetellFunctionCall struct {
	Name string         `json:"name"`
	Args retellArgs     `json:"args"`
	Call RetellCallInfo `json:"call"`
}

// RetellCallInfo is the subset of call metadata the handlers read.
type RetellCallInfo struct {
	CallID           string            `json:"call_id"`
	FromNumber       string            `json:"from_number,omitempty"`
	ToNumber         string            `json:"to_number,omitempty"`
	Metadata         map[string]any    `json:"metadata,omitempty"`
	DynamicVariables map[string]string `json:"retell_llm_dynamic_variables,omitempty"`
}

// retellArgs tolerates numbers, strings and nulls since the agent's LLM
// fills them in.
type retellArgs map[string]any

func (a retellArgs) str(keys ...string) string {
	for _, k := range keys {
		switch v := a[k].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		case bool:
			return strconv.FormatBool(v)
		}
	}
	return ""
}

func (a retellArgs) integer(keys ...string) int {
	for _, k := range keys {
		switch v := a[k].(type) {
		case float64:
			return int(v)
		case string:
			if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
				return n
			}
		}
	}
	return 0
}

// RetellResponse is spoken back to the caller; Result is what the agent says.
type RetellResponse struct {
	Result        string     `json:"result"`
	Outcome       string     `json:"outcome,omitempty"`
	Date          string     `json:"date,omitempty"`
	DateDefaulted bool       `json:"date_defaulted,omitempty"`
	Timezone      string     `json:"timezone,omitempty"`
	Slots         []SlotView `json:"slots,omitempty"`
	AppointmentID string     `json:"appointment_id,omitempty"`
	Alternatives  []SlotView `json:"alternatives,omitempty"`
}

const retryPrompt = "I'm sorry, I'm having trouble reaching the schedule right now. Could we try that again in a moment?"

// RetellHandler serves Retell custom-function webhooks.
type RetellHandler struct {
	booking voiceBooking
	metrics *metrics.SchedulingMetrics
	logger  *logging.Logger
}

func NewRetellHandler(svc voiceBooking, m *metrics.SchedulingMetrics, logger *logging.Logger) *RetellHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &RetellHandler{booking: svc, metrics: m, logger: logger}
}

func (h *RetellHandler) decode(w http.ResponseWriter, r *http.Request) (*RetellFunctionCall, uuid.UUID, uuid.UUID, bool) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "failed to read body")
		return nil, uuid.Nil, uuid.Nil, false
	}
	var call RetellFunctionCall
	if err := json.Unmarshal(body, &call); err != nil {
		h.logger.Warn("retell: invalid payload", "error", err)
		writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON payload")
		return nil, uuid.Nil, uuid.Nil, false
	}
	practiceID, err := uuid.Parse(call.lookup("practice_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "practice_id is required")
		return nil, uuid.Nil, uuid.Nil, false
	}
	vetID, err := uuid.Parse(call.lookup("vet_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "vet_id is required")
		return nil, uuid.Nil, uuid.Nil, false
	}
	return &call, practiceID, vetID, true
}

// lookup reads key from args, then call metadata, then dynamic variables.
func (c *RetellFunctionCall) lookup(key string) string {
	if v := c.Args.str(key); v != "" {
		return v
	}
	if v := retellArgs(c.Call.Metadata).str(key); v != "" {
		return v
	}
	return strings.TrimSpace(c.Call.DynamicVariables[key])
}

// HandleCheckAvailability serves POST /webhooks/retell/check-availability.
func (h *RetellHandler) HandleCheckAvailability(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	defer func() { h.metrics.ObserveWebhookLatency("check_availability", time.Since(start).Seconds()) }()

	call, practiceID, vetID, ok := h.decode(w, r)
	if !ok {
		return
	}
	resp, err := h.booking.CheckAvailability(r.Context(), booking.AvailabilityRequest{
		PracticeID:      practiceID,
		VetID:           vetID,
		Date:            call.Args.str("date", "requested_date", "day"),
		Preference:      call.Args.str("time_preference", "preference", "time"),
		Timezone:        call.lookup("timezone"),
		DurationMinutes: call.Args.integer("duration_minutes", "duration"),
		CallID:          call.Call.CallID,
	})
	if err != nil {
		if writeConfigError(w, err) {
			return
		}
		h.logger.Error("retell: check availability failed", "error", err,
			"practice_id", practiceID.String(), "call_id", call.Call.CallID)
		writeJSON(w, http.StatusInternalServerError, RetellResponse{Result: retryPrompt})
		return
	}

	writeJSON(w, http.StatusOK, RetellResponse{
		Result:        resp.Spoken,
		Outcome:       string(resp.Outcome),
		Date:          resp.Date.Date.String(),
		DateDefaulted: resp.Date.Defaulted,
		Timezone:      resp.Timezone,
		Slots:         slotViews(resp.Slots),
	})
}

// HandleBookAppointment serves POST /webhooks/retell/book-appointment.
func (h *RetellHandler) HandleBookAppointment(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	defer func() { h.metrics.ObserveWebhookLatency("book_appointment", time.Since(start).Seconds()) }()

	call, practiceID, vetID, ok := h.decode(w, r)
	if !ok {
		return
	}
	res, err := h.booking.Book(r.Context(), booking.BookRequest{
		PracticeID:      practiceID,
		VetID:           vetID,
		Date:            call.Args.str("date", "requested_date", "day"),
		Time:            call.Args.str("time", "requested_time"),
		Timezone:        call.lookup("timezone"),
		DurationMinutes: call.Args.integer("duration_minutes", "duration"),
		ClientName:      call.Args.str("client_name", "owner_name", "name"),
		ClientPhone:     firstNonEmpty(call.Args.str("client_phone", "phone"), call.Call.FromNumber),
		PetName:         call.Args.str("pet_name"),
		Reason:          call.Args.str("reason", "visit_reason"),
		CallID:          call.Call.CallID,
	})
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, RetellResponse{
			Result:        res.Message,
			Outcome:       "booked",
			Timezone:      res.Timezone,
			AppointmentID: res.Appointment.ID.String(),
		})
	case writeConfigError(w, err):
	case res != nil && isSpokenRefusal(err):
		writeJSON(w, http.StatusOK, RetellResponse{
			Result:       res.Message,
			Outcome:      refusalOutcome(err),
			Timezone:     res.Timezone,
			Alternatives: slotViews(res.Alternatives),
		})
	default:
		h.logger.Error("retell: booking failed", "error", err,
			"practice_id", practiceID.String(), "call_id", call.Call.CallID)
		writeJSON(w, http.StatusInternalServerError, RetellResponse{Result: retryPrompt})
	}
}

func isSpokenRefusal(err error) bool {
	return errors.Is(err, booking.ErrDateAmbiguous) ||
		errors.Is(err, booking.ErrTimeUnclear) ||
		errors.Is(err, booking.ErrSlotUnavailable) ||
		errors.Is(err, scheduling.ErrNotFound)
}

func refusalOutcome(err error) string {
	switch {
	case errors.Is(err, booking.ErrDateAmbiguous):
		return "date_unclear"
	case errors.Is(err, booking.ErrTimeUnclear):
		return "time_unclear"
	case errors.Is(err, booking.ErrSlotUnavailable):
		return "slot_unavailable"
	default:
		return string(scheduling.OutcomeNotFound)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
