package booking

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/md-rashed-zaman/clinicslots/services/scheduling-service/internal/availability"
	"github.com/md-rashed-zaman/clinicslots/services/scheduling-service/internal/model"
)

var (
	// ErrSlotUnavailable means the requested time is not a selectable slot.
	ErrSlotUnavailable = errors.New("requested time is not available")
	// ErrNotReschedulable means the appointment is no longer active.
	ErrNotReschedulable = errors.New("appointment cannot be rescheduled")
)

// Schedule answers bookability questions for a clinic.
type Schedule interface {
	TimeBookable(ctx context.Context, clinicID string, date availability.Date, at availability.Clock) (bool, error)
	SlotConfig(ctx context.Context, clinicID string) (availability.SlotConfig, error)
}

// ServiceCatalog resolves service ids to durations in minutes. Unknown or
// inactive services are absent from the result.
type ServiceCatalog interface {
	Durations(ctx context.Context, clinicID string, serviceIDs []string) (map[string]int, error)
}

// WriteOptions tune how the store persists a booking.
type WriteOptions struct {
	IdempotencyKey string
	// ExclusiveSlot asks the store to refuse the write if another active
	// appointment already starts at the same instant.
	ExclusiveSlot bool
}

type AppointmentStore interface {
	Create(ctx context.Context, appt model.Appointment, opts WriteOptions) (model.Appointment, error)
	Get(ctx context.Context, clinicID, appointmentID string) (model.Appointment, error)
	Reschedule(ctx context.Context, appt model.Appointment, opts WriteOptions) (model.Appointment, error)
}

// Request is a booking for one client with one professional.
type Request struct {
	ClinicID       string
	ClientID       string
	ProfessionalID string
	ServiceIDs     []string
	RoomID         string
	Date           string
	Time           string
	Notes          string
	Role           model.Role
	IdempotencyKey string
}

type Coordinator struct {
	schedule Schedule
	catalog  ServiceCatalog
	store    AppointmentStore
	loc      *time.Location
	logger   *slog.Logger
}

func NewCoordinator(schedule Schedule, catalog ServiceCatalog, store AppointmentStore, loc *time.Location, logger *slog.Logger) *Coordinator {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Coordinator{schedule: schedule, catalog: catalog, store: store, loc: loc, logger: logger}
}

// Book validates req against the clinic schedule and hands the appointment to
// the store. The slot check is advisory; concurrent bookings are settled by
// the store.
func (c *Coordinator) Book(ctx context.Context, req Request) (model.Appointment, error) {
	if err := req.validate(); err != nil {
		return model.Appointment{}, err
	}

	durations, err := c.durations(ctx, req.ClinicID, req.ServiceIDs)
	if err != nil {
		return model.Appointment{}, err
	}
	span, err := ComputeAppointmentSpan(req.Date, req.Time, durations, c.loc)
	if err != nil {
		return model.Appointment{}, err
	}
	cfg, err := c.checkSlot(ctx, req.ClinicID, span.Start)
	if err != nil {
		return model.Appointment{}, err
	}

	appt := model.Appointment{
		ID:             uuid.NewString(),
		ClinicID:       req.ClinicID,
		ClientID:       req.ClientID,
		ProfessionalID: req.ProfessionalID,
		ServiceIDs:     req.ServiceIDs,
		RoomID:         req.RoomID,
		StartTime:      span.Start,
		EndTime:        span.End,
		Status:         model.InitialStatus(req.Role),
		Origin:         model.Origin(req.Role),
		Notes:          strings.TrimSpace(req.Notes),
	}
	created, err := c.store.Create(ctx, appt, WriteOptions{
		IdempotencyKey: req.IdempotencyKey,
		ExclusiveSlot:  !cfg.AllowOverbooking,
	})
	if err != nil {
		return model.Appointment{}, err
	}
	c.logger.Info("appointment booked",
		"clinic_id", created.ClinicID,
		"appointment_id", created.ID,
		"status", string(created.Status),
		"start_time", created.StartTime.Format(time.RFC3339),
	)
	return created, nil
}

// Reschedule moves an active appointment to date and clock, keeping the
// duration it was created with.
func (c *Coordinator) Reschedule(ctx context.Context, clinicID, appointmentID, date, clock string) (model.Appointment, error) {
	if strings.TrimSpace(clinicID) == "" || strings.TrimSpace(appointmentID) == "" {
		return model.Appointment{}, fmt.Errorf("%w: clinic and appointment are required", ErrInvalidBookingRequest)
	}
	d, err := availability.ParseDate(date)
	if err != nil {
		return model.Appointment{}, fmt.Errorf("%w: %v", ErrInvalidBookingRequest, err)
	}
	at, err := availability.ParseClock(clock)
	if err != nil {
		return model.Appointment{}, fmt.Errorf("%w: %v", ErrInvalidBookingRequest, err)
	}

	current, err := c.store.Get(ctx, clinicID, appointmentID)
	if err != nil {
		return model.Appointment{}, err
	}
	if !current.Status.Active() {
		return model.Appointment{}, fmt.Errorf("%w: status is %s", ErrNotReschedulable, current.Status)
	}

	start := d.At(at, c.loc)
	if start.Equal(current.StartTime) {
		return current, nil
	}
	cfg, err := c.checkSlot(ctx, clinicID, start)
	if err != nil {
		return model.Appointment{}, err
	}

	moved := current
	moved.StartTime = start
	moved.EndTime = start.Add(current.Duration())
	updated, err := c.store.Reschedule(ctx, moved, WriteOptions{ExclusiveSlot: !cfg.AllowOverbooking})
	if err != nil {
		return model.Appointment{}, err
	}
	c.logger.Info("appointment rescheduled",
		"clinic_id", clinicID,
		"appointment_id", appointmentID,
		"from", current.StartTime.Format(time.RFC3339),
		"to", updated.StartTime.Format(time.RFC3339),
	)
	return updated, nil
}

func (c *Coordinator) checkSlot(ctx context.Context, clinicID string, start time.Time) (availability.SlotConfig, error) {
	cfg, err := c.schedule.SlotConfig(ctx, clinicID)
	if err != nil {
		return availability.SlotConfig{}, err
	}
	ok, err := c.schedule.TimeBookable(ctx, clinicID, availability.DateOf(start, c.loc), availability.ClockOf(start.In(c.loc)))
	if err != nil {
		return availability.SlotConfig{}, err
	}
	if !ok {
		return availability.SlotConfig{}, ErrSlotUnavailable
	}
	return cfg, nil
}

func (c *Coordinator) durations(ctx context.Context, clinicID string, serviceIDs []string) ([]int, error) {
	known, err := c.catalog.Durations(ctx, clinicID, serviceIDs)
	if err != nil {
		return nil, err
	}
	out := make([]int, 0, len(serviceIDs))
	for _, id := range serviceIDs {
		d, ok := known[id]
		if !ok {
			return nil, fmt.Errorf("%w: unknown service %s", ErrInvalidBookingRequest, id)
		}
		out = append(out, d)
	}
	return out, nil
}

func (r *Request) validate() error {
	r.ClinicID = strings.TrimSpace(r.ClinicID)
	r.ClientID = strings.TrimSpace(r.ClientID)
	r.ProfessionalID = strings.TrimSpace(r.ProfessionalID)
	if r.ClinicID == "" || r.ClientID == "" || r.ProfessionalID == "" {
		return fmt.Errorf("%w: clinic, client and professional are required", ErrInvalidBookingRequest)
	}
	if len(r.ServiceIDs) == 0 {
		return fmt.Errorf("%w: no services selected", ErrInvalidBookingRequest)
	}
	if _, err := availability.ParseDate(r.Date); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidBookingRequest, err)
	}
	if _, err := availability.ParseClock(r.Time); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidBookingRequest, err)
	}
	return nil
}
