package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/clinicslots/libs/db"
	"github.com/md-rashed-zaman/clinicslots/services/scheduling-service/internal/availability"
	"github.com/md-rashed-zaman/clinicslots/services/scheduling-service/internal/model"
	"github.com/md-rashed-zaman/clinicslots/services/scheduling-service/internal/outbox"
)

// ScheduleRepository stores window rules and slot configuration per clinic.
// Every write also queues a change event.
type ScheduleRepository struct {
	db     db.Querier
	outbox *outbox.Repository
}

func NewScheduleRepository(q db.Querier, outboxRepo *outbox.Repository) *ScheduleRepository {
	return &ScheduleRepository{db: q, outbox: outboxRepo}
}

// ListRules returns the clinic's rules as stored. Malformed rows are returned
// unchanged; the engine reports and skips them.
func (r *ScheduleRepository) ListRules(ctx context.Context, clinicID string) ([]availability.RuleRecord, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id::text, weekday, to_char(specific_date, 'YYYY-MM-DD'), start_time, end_time, is_blocked, notes
		FROM window_rules
		WHERE clinic_id = $1
		ORDER BY created_at, id
	`, clinicID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := []availability.RuleRecord{}
	for rows.Next() {
		var rec availability.RuleRecord
		if err := rows.Scan(&rec.ID, &rec.Weekday, &rec.SpecificDate, &rec.StartTime, &rec.EndTime, &rec.IsBlocked, &rec.Notes); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return records, nil
}

// CreateRule inserts a validated rule and returns it with its new id.
func (r *ScheduleRepository) CreateRule(ctx context.Context, clinicID string, rule availability.WindowRule) (availability.RuleRecord, error) {
	rec := rule.Record()

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return availability.RuleRecord{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	err = tx.QueryRow(ctx, `
		INSERT INTO window_rules (clinic_id, weekday, specific_date, start_time, end_time, is_blocked, notes)
		VALUES ($1, $2, $3::date, $4, $5, $6, $7)
		RETURNING id::text
	`, clinicID, rec.Weekday, rec.SpecificDate, rec.StartTime, rec.EndTime, rec.IsBlocked, rec.Notes).Scan(&rec.ID)
	if err != nil {
		return availability.RuleRecord{}, err
	}

	if err := r.queueChange(ctx, tx, outbox.TypeWindowsChanged, outbox.ScheduleChange{ClinicID: clinicID, RuleID: rec.ID, Action: "created"}); err != nil {
		return availability.RuleRecord{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return availability.RuleRecord{}, err
	}
	return rec, nil
}

func (r *ScheduleRepository) DeleteRule(ctx context.Context, clinicID, ruleID string) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `
		DELETE FROM window_rules
		WHERE clinic_id = $1 AND id::text = $2
	`, clinicID, ruleID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("window rule %s: %w", ruleID, model.ErrNotFound)
	}

	if err := r.queueChange(ctx, tx, outbox.TypeWindowsChanged, outbox.ScheduleChange{ClinicID: clinicID, RuleID: ruleID, Action: "deleted"}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// SlotConfig returns the stored config and whether one exists.
func (r *ScheduleRepository) SlotConfig(ctx context.Context, clinicID string) (availability.SlotConfig, bool, error) {
	var cfg availability.SlotConfig
	err := r.db.QueryRow(ctx, `
		SELECT interval_minutes, allow_overbooking
		FROM slot_configs
		WHERE clinic_id = $1
	`, clinicID).Scan(&cfg.IntervalMinutes, &cfg.AllowOverbooking)
	if err != nil {
		if db.IsNoRows(err) {
			return availability.SlotConfig{}, false, nil
		}
		return availability.SlotConfig{}, false, err
	}
	return cfg, true, nil
}

func (r *ScheduleRepository) PutSlotConfig(ctx context.Context, clinicID string, cfg availability.SlotConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO slot_configs (clinic_id, interval_minutes, allow_overbooking)
		VALUES ($1, $2, $3)
		ON CONFLICT (clinic_id) DO UPDATE
		SET interval_minutes = EXCLUDED.interval_minutes,
			allow_overbooking = EXCLUDED.allow_overbooking,
			updated_at = now()
	`, clinicID, cfg.IntervalMinutes, cfg.AllowOverbooking)
	if err != nil {
		return err
	}

	if err := r.queueChange(ctx, tx, outbox.TypeConfigChanged, outbox.ScheduleChange{ClinicID: clinicID, Action: "updated"}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *ScheduleRepository) queueChange(ctx context.Context, tx pgx.Tx, eventType string, change outbox.ScheduleChange) error {
	evt, err := outbox.ScheduleEvent(eventType, change)
	if err != nil {
		return err
	}
	return r.outbox.Insert(ctx, tx, evt)
}
