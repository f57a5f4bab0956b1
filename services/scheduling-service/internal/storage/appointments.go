package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/clinicslots/libs/db"
	"github.com/md-rashed-zaman/clinicslots/services/scheduling-service/internal/booking"
	"github.com/md-rashed-zaman/clinicslots/services/scheduling-service/internal/model"
	"github.com/md-rashed-zaman/clinicslots/services/scheduling-service/internal/outbox"
)

type AppointmentRepository struct {
	db     db.Querier
	outbox *outbox.Repository
}

func NewAppointmentRepository(q db.Querier, outboxRepo *outbox.Repository) *AppointmentRepository {
	return &AppointmentRepository{db: q, outbox: outboxRepo}
}

const appointmentColumns = `id::text, clinic_id, client_id, professional_id, service_ids, COALESCE(room_id, ''),
	start_time, end_time, status, origin, notes, created_at, updated_at`

// Create inserts appt and its creation event. A repeated idempotency key
// returns the appointment created the first time.
func (r *AppointmentRepository) Create(ctx context.Context, appt model.Appointment, opts booking.WriteOptions) (model.Appointment, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return model.Appointment{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if opts.IdempotencyKey != "" {
		var existingID string
		err := tx.QueryRow(ctx, `
			SELECT appointment_id::text
			FROM booking_idempotency_keys
			WHERE clinic_id = $1 AND idempotency_key = $2
		`, appt.ClinicID, opts.IdempotencyKey).Scan(&existingID)
		if err == nil {
			return r.get(ctx, tx, appt.ClinicID, existingID)
		}
		if !db.IsNoRows(err) {
			return model.Appointment{}, err
		}
	}

	if opts.ExclusiveSlot {
		if err := lockSlot(ctx, tx, appt.ClinicID, appt.StartTime, ""); err != nil {
			return model.Appointment{}, err
		}
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO appointments
			(id, clinic_id, client_id, professional_id, service_ids, room_id, start_time, end_time, status, origin, notes)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, $8, $9, $10, $11)
		RETURNING created_at, updated_at
	`, appt.ID, appt.ClinicID, appt.ClientID, appt.ProfessionalID, appt.ServiceIDs, appt.RoomID,
		appt.StartTime, appt.EndTime, string(appt.Status), appt.Origin, appt.Notes).Scan(&appt.CreatedAt, &appt.UpdatedAt)
	if err != nil {
		return model.Appointment{}, wrapConflict(err)
	}

	if opts.IdempotencyKey != "" {
		if _, err := tx.Exec(ctx, `
			INSERT INTO booking_idempotency_keys (clinic_id, idempotency_key, appointment_id)
			VALUES ($1, $2, $3)
		`, appt.ClinicID, opts.IdempotencyKey, appt.ID); err != nil {
			return model.Appointment{}, wrapConflict(err)
		}
	}

	eventType := outbox.TypeAppointmentRequested
	if appt.Status == model.StatusConfirmed {
		eventType = outbox.TypeAppointmentConfirmed
	}
	if err := r.queueEvent(ctx, tx, eventType, appt); err != nil {
		return model.Appointment{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return model.Appointment{}, err
	}
	return appt, nil
}

func (r *AppointmentRepository) Get(ctx context.Context, clinicID, appointmentID string) (model.Appointment, error) {
	return r.get(ctx, r.db, clinicID, appointmentID)
}

// Reschedule moves an active appointment to appt's start and end.
func (r *AppointmentRepository) Reschedule(ctx context.Context, appt model.Appointment, opts booking.WriteOptions) (model.Appointment, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return model.Appointment{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if opts.ExclusiveSlot {
		if err := lockSlot(ctx, tx, appt.ClinicID, appt.StartTime, appt.ID); err != nil {
			return model.Appointment{}, err
		}
	}

	err = tx.QueryRow(ctx, `
		UPDATE appointments
		SET start_time = $3, end_time = $4, updated_at = now()
		WHERE clinic_id = $1 AND id::text = $2 AND status IN ('requested', 'confirmed')
		RETURNING updated_at
	`, appt.ClinicID, appt.ID, appt.StartTime, appt.EndTime).Scan(&appt.UpdatedAt)
	if err != nil {
		if db.IsNoRows(err) {
			return model.Appointment{}, fmt.Errorf("active appointment %s: %w", appt.ID, model.ErrNotFound)
		}
		return model.Appointment{}, err
	}

	if err := r.queueEvent(ctx, tx, outbox.TypeAppointmentRescheduled, appt); err != nil {
		return model.Appointment{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return model.Appointment{}, err
	}
	return appt, nil
}

// ListActiveBetween returns appointments starting in [from, to) that still
// hold their slot, ordered by start then creation.
func (r *AppointmentRepository) ListActiveBetween(ctx context.Context, clinicID string, from, to time.Time) ([]model.Appointment, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE clinic_id = $1
			AND status <> 'cancelled'
			AND start_time >= $2
			AND start_time < $3
		ORDER BY start_time ASC, created_at ASC
	`, clinicID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var appts []model.Appointment
	for rows.Next() {
		appt, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		appts = append(appts, appt)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return appts, nil
}

type queryRower interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (r *AppointmentRepository) get(ctx context.Context, q queryRower, clinicID, appointmentID string) (model.Appointment, error) {
	appt, err := scanAppointment(q.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE clinic_id = $1 AND id::text = $2
	`, clinicID, appointmentID))
	if err != nil {
		if db.IsNoRows(err) {
			return model.Appointment{}, fmt.Errorf("appointment %s: %w", appointmentID, model.ErrNotFound)
		}
		return model.Appointment{}, err
	}
	return appt, nil
}

func (r *AppointmentRepository) queueEvent(ctx context.Context, tx pgx.Tx, eventType string, appt model.Appointment) error {
	evt, err := outbox.AppointmentEvent(eventType, appt)
	if err != nil {
		return err
	}
	return r.outbox.Insert(ctx, tx, evt)
}

func scanAppointment(row pgx.Row) (model.Appointment, error) {
	var appt model.Appointment
	var status string
	err := row.Scan(
		&appt.ID,
		&appt.ClinicID,
		&appt.ClientID,
		&appt.ProfessionalID,
		&appt.ServiceIDs,
		&appt.RoomID,
		&appt.StartTime,
		&appt.EndTime,
		&status,
		&appt.Origin,
		&appt.Notes,
		&appt.CreatedAt,
		&appt.UpdatedAt,
	)
	appt.Status = model.Status(status)
	return appt, err
}

// lockSlot serializes writers for one clinic instant and fails if another
// active appointment already starts then.
func lockSlot(ctx context.Context, tx pgx.Tx, clinicID string, start time.Time, excludeID string) error {
	key := clinicID + "|" + start.UTC().Format(time.RFC3339)
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, key); err != nil {
		return err
	}
	var taken bool
	err := tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM appointments
			WHERE clinic_id = $1
				AND start_time = $2
				AND status IN ('requested', 'confirmed')
				AND id::text <> $3
		)
	`, clinicID, start, excludeID).Scan(&taken)
	if err != nil {
		return err
	}
	if taken {
		return fmt.Errorf("slot %s: %w", start.Format(time.RFC3339), model.ErrConflict)
	}
	return nil
}

func wrapConflict(err error) error {
	if db.IsConflict(err) {
		return fmt.Errorf("%w: %v", model.ErrConflict, err)
	}
	return err
}
