package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/md-rashed-zaman/clinicslots/libs/httpx"
	"github.com/md-rashed-zaman/clinicslots/services/scheduling-service/internal/agenda"
	"github.com/md-rashed-zaman/clinicslots/services/scheduling-service/internal/availability"
	"github.com/md-rashed-zaman/clinicslots/services/scheduling-service/internal/booking"
	"github.com/md-rashed-zaman/clinicslots/services/scheduling-service/internal/model"
)

type appointmentResponse struct {
	AppointmentID  string   `json:"appointment_id"`
	ClinicID       string   `json:"clinic_id"`
	ClientID       string   `json:"client_id"`
	ProfessionalID string   `json:"professional_id"`
	ServiceIDs     []string `json:"service_ids"`
	RoomID         string   `json:"room_id,omitempty"`
	StartTime      string   `json:"start_time"`
	EndTime        string   `json:"end_time"`
	Status         string   `json:"status"`
	Origin         string   `json:"origin"`
	Notes          string   `json:"notes,omitempty"`
}

func toAppointmentResponse(a model.Appointment) appointmentResponse {
	return appointmentResponse{
		AppointmentID:  a.ID,
		ClinicID:       a.ClinicID,
		ClientID:       a.ClientID,
		ProfessionalID: a.ProfessionalID,
		ServiceIDs:     a.ServiceIDs,
		RoomID:         a.RoomID,
		StartTime:      a.StartTime.Format(time.RFC3339),
		EndTime:        a.EndTime.Format(time.RFC3339),
		Status:         string(a.Status),
		Origin:         a.Origin,
		Notes:          a.Notes,
	}
}

type slotItem struct {
	Time          string `json:"time"`
	Occupied      bool   `json:"occupied"`
	Selectable    bool   `json:"selectable"`
	AppointmentID string `json:"appointment_id,omitempty"`
}

type invalidRuleItem struct {
	RuleID string `json:"rule_id"`
	Reason string `json:"reason"`
}

type dayResponse struct {
	Date         string            `json:"date"`
	State        string            `json:"state"`
	Ambiguous    bool              `json:"ambiguous,omitempty"`
	Slots        []slotItem        `json:"slots"`
	InvalidRules []invalidRuleItem `json:"invalid_rules"`
}

func toDayResponse(day availability.Day) dayResponse {
	resp := dayResponse{
		Date:         day.Date.String(),
		State:        day.State.String(),
		Ambiguous:    day.Ambiguous,
		Slots:        make([]slotItem, 0, len(day.Slots)),
		InvalidRules: make([]invalidRuleItem, 0, len(day.Invalid)),
	}
	for _, s := range day.Slots {
		item := slotItem{Time: s.Time.String(), Occupied: s.Occupied, Selectable: s.Selectable}
		if s.Appointment != nil {
			item.AppointmentID = s.Appointment.ID
		}
		resp.Slots = append(resp.Slots, item)
	}
	for _, ie := range day.Invalid {
		resp.InvalidRules = append(resp.InvalidRules, invalidRuleItem{RuleID: ie.RuleID, Reason: ie.Reason})
	}
	return resp
}

// statusFor maps domain errors to HTTP statuses and a metrics result label.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, booking.ErrInvalidBookingRequest),
		errors.Is(err, availability.ErrInvalidRuleDefinition),
		errors.Is(err, availability.ErrInvalidSlotConfig),
		errors.Is(err, agenda.ErrInvalidRange):
		return http.StatusBadRequest, "invalid"
	case errors.Is(err, booking.ErrSlotUnavailable):
		return http.StatusUnprocessableEntity, "unavailable"
	case errors.Is(err, model.ErrConflict), errors.Is(err, booking.ErrNotReschedulable):
		return http.StatusConflict, "conflict"
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound, "not_found"
	}
	return http.StatusInternalServerError, "error"
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, logger *slog.Logger, err error) string {
	status, result := statusFor(err)
	if status == http.StatusInternalServerError {
		logger.Error("request failed", "err", err)
		httpx.WriteJSON(w, status, errorResponse{Error: "internal error"})
		return result
	}
	httpx.WriteJSON(w, status, errorResponse{Error: err.Error()})
	return result
}
