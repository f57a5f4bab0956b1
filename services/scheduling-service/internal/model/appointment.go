package model

import (
	"errors"
	"time"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrConflict means the write collides with existing data, such as an
	// occupied slot or a reused idempotency key.
	ErrConflict = errors.New("conflict")
)

type Status string

const (
	StatusRequested Status = "requested"
	StatusConfirmed Status = "confirmed"
	StatusAttended  Status = "attended"
	StatusNoShow    Status = "no-show"
	StatusCancelled Status = "cancelled"
)

func (s Status) Valid() bool {
	switch s {
	case StatusRequested, StatusConfirmed, StatusAttended, StatusNoShow, StatusCancelled:
		return true
	}
	return false
}

// Active reports whether the appointment still holds its slot.
func (s Status) Active() bool {
	return s == StatusRequested || s == StatusConfirmed
}

// Role is the kind of actor creating or changing an appointment.
type Role string

const (
	RoleAdmin        Role = "admin"
	RoleProfessional Role = "professional"
	RoleFrontDesk    Role = "front_desk"
	RoleOnline       Role = "online"
)

// Staff reports whether the role books on behalf of the clinic.
func (r Role) Staff() bool {
	return r == RoleAdmin || r == RoleProfessional || r == RoleFrontDesk
}

// InitialStatus is the status a new appointment starts in. Staff bookings are
// pre-confirmed; anything else, including self-service, awaits confirmation.
func InitialStatus(r Role) Status {
	if r.Staff() {
		return StatusConfirmed
	}
	return StatusRequested
}

// Origin is the channel an appointment came in through.
func Origin(r Role) string {
	if r.Staff() {
		return string(r)
	}
	return string(RoleOnline)
}

type Appointment struct {
	ID             string
	ClinicID       string
	ClientID       string
	ProfessionalID string
	ServiceIDs     []string
	RoomID         string
	StartTime      time.Time
	EndTime        time.Time
	Status         Status
	Origin         string
	Notes          string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (a Appointment) Duration() time.Duration {
	return a.EndTime.Sub(a.StartTime)
}
