package outbox

import (
	"encoding/json"
	"time"

	"github.com/md-rashed-zaman/clinicslots/services/scheduling-service/internal/model"
)

// Event types double as Kafka topic names.
const (
	TypeAppointmentRequested   = "scheduling.appointment.requested.v1"
	TypeAppointmentConfirmed   = "scheduling.appointment.confirmed.v1"
	TypeAppointmentRescheduled = "scheduling.appointment.rescheduled.v1"
	TypeWindowsChanged         = "scheduling.windows.changed.v1"
	TypeConfigChanged          = "scheduling.config.changed.v1"
)

// Topics lists every topic this service publishes.
func Topics() []string {
	return []string{
		TypeAppointmentRequested,
		TypeAppointmentConfirmed,
		TypeAppointmentRescheduled,
		TypeWindowsChanged,
		TypeConfigChanged,
	}
}

// Event is the envelope written to the outbox table in the same transaction
// as the change it describes.
type Event struct {
	ClinicID      string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

type appointmentPayload struct {
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
}

// AppointmentEvent describes a created or moved appointment.
func AppointmentEvent(eventType string, a model.Appointment) (Event, error) {
	payload, err := json.Marshal(appointmentPayload{
		AppointmentID:  a.ID,
		ClinicID:       a.ClinicID,
		ClientID:       a.ClientID,
		ProfessionalID: a.ProfessionalID,
		ServiceIDs:     a.ServiceIDs,
		RoomID:         a.RoomID,
		StartTime:      a.StartTime.UTC().Format(time.RFC3339),
		EndTime:        a.EndTime.UTC().Format(time.RFC3339),
		Status:         string(a.Status),
		Origin:         a.Origin,
	})
	if err != nil {
		return Event{}, err
	}
	return Event{
		ClinicID:      a.ClinicID,
		AggregateType: "appointment",
		AggregateID:   a.ID,
		EventType:     eventType,
		Payload:       payload,
	}, nil
}

// ScheduleChange is the payload of window and config change events.
type ScheduleChange struct {
	ClinicID string `json:"clinic_id"`
	RuleID   string `json:"rule_id,omitempty"`
	Action   string `json:"action"`
}

func ScheduleEvent(eventType string, change ScheduleChange) (Event, error) {
	payload, err := json.Marshal(change)
	if err != nil {
		return Event{}, err
	}
	aggregateID := change.RuleID
	if aggregateID == "" {
		aggregateID = change.ClinicID
	}
	return Event{
		ClinicID:      change.ClinicID,
		AggregateType: "schedule",
		AggregateID:   aggregateID,
		EventType:     eventType,
		Payload:       payload,
	}, nil
}
