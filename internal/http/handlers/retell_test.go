package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/vetcare-scheduling/internal/booking"
	"github.com/wolfman30/vetcare-scheduling/internal/phoneparse"
	"github.com/wolfman30/vetcare-scheduling/internal/scheduling"
	"github.com/wolfman30/vetcare-scheduling/internal/timezone"
)

type stubBooking struct {
	availReq  booking.AvailabilityRequest
	bookReq   booking.BookRequest
	availResp *booking.AvailabilityResponse
	bookResp  *booking.BookResult
	err       error
}

func (s *stubBooking) CheckAvailability(_ context.Context, req booking.AvailabilityRequest) (*booking.AvailabilityResponse, error) {
	s.availReq = req
	return s.availResp, s.err
}

func (s *stubBooking) Book(_ context.Context, req booking.BookRequest) (*booking.BookResult, error) {
	s.bookReq = req
	return s.bookResp, s.err
}

var (
	testPracticeID = uuid.MustParse("0b0a5d1e-4c4e-4a57-9a51-4f4b50a1c001")
	testVetID      = uuid.MustParse("0b0a5d1e-4c4e-4a57-9a51-4f4b50a1c002")
)

func postRetell(t *testing.T, handler http.HandlerFunc, body string) (*httptest.ResponseRecorder, RetellResponse) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/retell/x", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler(rec, req)
	var resp RetellResponse
	if rec.Header().Get("Content-Type") == "application/json" {
		_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	}
	return rec, resp
}

func TestRetellCheckAvailabilityFlexibleArgs(t *testing.T) {
	friday := civil.Date{Year: 2025, Month: time.October, Day: 3}
	stub := &stubBooking{availResp: &booking.AvailabilityResponse{
		SlotResult: &scheduling.SlotResult{
			Outcome: scheduling.OutcomeOK,
			Slots: []scheduling.Slot{{
				StartUTC:        time.Date(2025, 10, 3, 16, 0, 0, 0, time.UTC),
				EndUTC:          time.Date(2025, 10, 3, 16, 45, 0, 0, time.UTC),
				LocalTime:       "9:00 AM",
				DurationMinutes: 45,
				Available:       true,
			}},
			LocalDate: friday,
		},
		Date:     phoneparse.DateResult{Date: friday},
		Spoken:   "I have 9:00 AM available on Friday, October 3.",
		Timezone: "America/Los_Angeles",
	}}
	h := NewRetellHandler(stub, nil, nil)

	// practice_id arrives through call metadata, duration as a number.
	body := fmt.Sprintf(`{
		"name": "check_availability",
		"args": {"vet_id": %q, "date": "friday", "time_preference": "morning", "duration_minutes": 45},
		"call": {"call_id": "call-1", "metadata": {"practice_id": %q}}
	}`, testVetID, testPracticeID)
	rec, resp := postRetell(t, h.HandleCheckAvailability, body)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "I have 9:00 AM available on Friday, October 3.", resp.Result)
	assert.Equal(t, "ok", resp.Outcome)
	assert.Equal(t, "2025-10-03", resp.Date)
	require.Len(t, resp.Slots, 1)
	assert.Equal(t, "9:00 AM", resp.Slots[0].LocalTime)

	assert.Equal(t, testPracticeID, stub.availReq.PracticeID)
	assert.Equal(t, testVetID, stub.availReq.VetID)
	assert.Equal(t, "friday", stub.availReq.Date)
	assert.Equal(t, "morning", stub.availReq.Preference)
	assert.Equal(t, 45, stub.availReq.DurationMinutes)
	assert.Equal(t, "call-1", stub.availReq.CallID)
}

func TestRetellIDsFromDynamicVariables(t *testing.T) {
	stub := &stubBooking{availResp: &booking.AvailabilityResponse{
		SlotResult: &scheduling.SlotResult{Outcome: scheduling.OutcomeNoAvailability},
		Spoken:     "I don't have any openings on Friday, October 3.",
	}}
	h := NewRetellHandler(stub, nil, nil)
	body := fmt.Sprintf(`{"args": {"date": "friday"}, "call": {"retell_llm_dynamic_variables": {"practice_id": %q, "vet_id": %q, "timezone": "America/Denver"}}}`,
		testPracticeID, testVetID)

	rec, _ := postRetell(t, h.HandleCheckAvailability, body)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "America/Denver", stub.availReq.Timezone)
}

func TestRetellBadRequests(t *testing.T) {
	h := NewRetellHandler(&stubBooking{}, nil, nil)
	tests := []struct {
		name string
		body string
	}{
		{"invalid json", `{`},
		{"missing practice", fmt.Sprintf(`{"args": {"vet_id": %q}}`, testVetID)},
		{"missing vet", fmt.Sprintf(`{"args": {"practice_id": %q}}`, testPracticeID)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, _ := postRetell(t, h.HandleCheckAvailability, tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestRetellInvalidTimezoneIsConfigurationError(t *testing.T) {
	stub := &stubBooking{err: fmt.Errorf("booking: %w", fmt.Errorf("%w: %q", timezone.ErrInvalidTimezone, "Nowhere/Land"))}
	h := NewRetellHandler(stub, nil, nil)
	body := fmt.Sprintf(`{"args": {"practice_id": %q, "vet_id": %q, "timezone": "Nowhere/Land"}}`, testPracticeID, testVetID)

	rec, _ := postRetell(t, h.HandleCheckAvailability, body)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	var errResp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &errResp))
	assert.Equal(t, "configuration_error", errResp.Error)
}

func TestRetellStoreFailureSpeaksRetry(t *testing.T) {
	stub := &stubBooking{err: errors.New("connection refused")}
	h := NewRetellHandler(stub, nil, nil)
	body := fmt.Sprintf(`{"args": {"practice_id": %q, "vet_id": %q}}`, testPracticeID, testVetID)

	rec, resp := postRetell(t, h.HandleCheckAvailability, body)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, retryPrompt, resp.Result)
}

func TestRetellBookAppointment(t *testing.T) {
	apptID := uuid.New()
	stub := &stubBooking{bookResp: &booking.BookResult{
		Appointment: &scheduling.ExistingAppointment{ID: apptID},
		LocalTime:   "9:45 AM",
		Message:     "You're all set. Bella is booked for 9:45 AM on Friday, October 3.",
		Timezone:    "America/Los_Angeles",
	}}
	h := NewRetellHandler(stub, nil, nil)
	body := fmt.Sprintf(`{
		"args": {"practice_id": %q, "vet_id": %q, "date": "friday", "time": "9:45 am", "pet_name": "Bella", "client_name": "Dana"},
		"call": {"call_id": "call-2", "from_number": "+15555550123"}
	}`, testPracticeID, testVetID)

	rec, resp := postRetell(t, h.HandleBookAppointment, body)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "booked", resp.Outcome)
	assert.Equal(t, apptID.String(), resp.AppointmentID)
	assert.Equal(t, "+15555550123", stub.bookReq.ClientPhone, "caller id fills a missing phone")
	assert.Equal(t, "9:45 am", stub.bookReq.Time)
	assert.Equal(t, "Bella", stub.bookReq.PetName)
}

func TestRetellBookRefusalsAreSpoken(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		outcome string
	}{
		{"date unclear", booking.ErrDateAmbiguous, "date_unclear"},
		{"time unclear", fmt.Errorf("%w: %w", booking.ErrTimeUnclear, phoneparse.ErrTimeParseFailed), "time_unclear"},
		{"slot taken", booking.ErrSlotUnavailable, "slot_unavailable"},
		{"unknown vet", fmt.Errorf("booking: book: vet %w", scheduling.ErrNotFound), "not_found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stub := &stubBooking{
				err: tt.err,
				bookResp: &booking.BookResult{
					Message: "spoken refusal",
					Alternatives: []scheduling.Slot{{
						StartUTC:  time.Date(2025, 10, 3, 16, 0, 0, 0, time.UTC),
						LocalTime: "9:00 AM",
						Available: true,
					}},
				},
			}
			h := NewRetellHandler(stub, nil, nil)
			body := fmt.Sprintf(`{"args": {"practice_id": %q, "vet_id": %q, "date": "friday", "time": "9"}}`, testPracticeID, testVetID)

			rec, resp := postRetell(t, h.HandleBookAppointment, body)
			require.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, "spoken refusal", resp.Result)
			assert.Equal(t, tt.outcome, resp.Outcome)
			assert.Len(t, resp.Alternatives, 1)
		})
	}
}

func TestRetellArgsCoercion(t *testing.T) {
	args := retellArgs{"a": 30.0, "b": " 45 ", "c": nil, "d": true}
	assert.Equal(t, 30, args.integer("a"))
	assert.Equal(t, 45, args.integer("c", "b"))
	assert.Equal(t, "30", args.str("a"))
	assert.Equal(t, "true", args.str("d"))
	assert.Equal(t, "", args.str("c", "missing"))
}
