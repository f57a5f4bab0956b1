package agenda

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/md-rashed-zaman/clinicslots/services/scheduling-service/internal/availability"
	"github.com/md-rashed-zaman/clinicslots/services/scheduling-service/internal/cache"
	"github.com/md-rashed-zaman/clinicslots/services/scheduling-service/internal/metrics"
	"github.com/md-rashed-zaman/clinicslots/services/scheduling-service/internal/model"
)

// MaxRangeDays bounds calendar queries, inclusive of both ends.
const MaxRangeDays = 62

var ErrInvalidRange = errors.New("invalid date range")

type RuleStore interface {
	ListRules(ctx context.Context, clinicID string) ([]availability.RuleRecord, error)
	SlotConfig(ctx context.Context, clinicID string) (availability.SlotConfig, bool, error)
}

type AppointmentLister interface {
	ListActiveBetween(ctx context.Context, clinicID string, from, to time.Time) ([]model.Appointment, error)
}

type ScheduleCache interface {
	Get(ctx context.Context, clinicID string) (cache.Snapshot, bool, error)
	Set(ctx context.Context, clinicID string, snap cache.Snapshot) error
	Invalidate(ctx context.Context, clinicID string) error
}

// DayStatus is one entry of a calendar range.
type DayStatus struct {
	Date  availability.Date     `json:"date"`
	State availability.DayState `json:"state"`
}

// Service loads a clinic's rules, config and appointments and runs the
// availability engine over them. Nothing derived from them is kept between
// calls; only the raw rules and config may be cached.
type Service struct {
	engine   *availability.Engine
	rules    RuleStore
	appts    AppointmentLister
	cache    ScheduleCache
	defaults availability.SlotConfig
	metrics  *metrics.SchedulingMetrics
	logger   *slog.Logger
	tracer   trace.Tracer
}

type Options struct {
	// Cache may be nil.
	Cache    ScheduleCache
	Defaults availability.SlotConfig
	Metrics  *metrics.SchedulingMetrics
	Logger   *slog.Logger
}

func NewService(engine *availability.Engine, rules RuleStore, appts AppointmentLister, opts Options) *Service {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.Defaults.Validate() != nil {
		opts.Defaults = availability.DefaultSlotConfig()
	}
	return &Service{
		engine:   engine,
		rules:    rules,
		appts:    appts,
		cache:    opts.Cache,
		defaults: opts.Defaults,
		metrics:  opts.Metrics,
		logger:   opts.Logger,
		tracer:   otel.Tracer("clinicslots/agenda"),
	}
}

func (s *Service) Location() *time.Location {
	return s.engine.Location()
}

// Snapshot returns the clinic's rules and config, from the cache when
// possible. Cache failures fall through to the store.
func (s *Service) Snapshot(ctx context.Context, clinicID string) (cache.Snapshot, error) {
	if s.cache != nil {
		snap, ok, err := s.cache.Get(ctx, clinicID)
		if err != nil {
			s.logger.Warn("schedule cache read failed", "clinic_id", clinicID, "err", err)
		} else {
			s.metrics.ObserveCache(ok)
			if ok {
				return snap, nil
			}
		}
	}

	rules, err := s.rules.ListRules(ctx, clinicID)
	if err != nil {
		return cache.Snapshot{}, fmt.Errorf("list rules: %w", err)
	}
	cfg, ok, err := s.rules.SlotConfig(ctx, clinicID)
	if err != nil {
		return cache.Snapshot{}, fmt.Errorf("slot config: %w", err)
	}
	snap := cache.Snapshot{Rules: rules, Config: cfg, HasConfig: ok}

	if s.cache != nil {
		if err := s.cache.Set(ctx, clinicID, snap); err != nil {
			s.logger.Warn("schedule cache write failed", "clinic_id", clinicID, "err", err)
		}
	}
	return snap, nil
}

// SlotConfig returns the clinic's stored config or the service default.
func (s *Service) SlotConfig(ctx context.Context, clinicID string) (availability.SlotConfig, error) {
	snap, err := s.Snapshot(ctx, clinicID)
	if err != nil {
		return availability.SlotConfig{}, err
	}
	return s.config(snap), nil
}

func (s *Service) config(snap cache.Snapshot) availability.SlotConfig {
	if snap.HasConfig {
		return snap.Config
	}
	return s.defaults
}

// Day resolves date for the clinic and annotates its slots with the
// appointments starting that day.
func (s *Service) Day(ctx context.Context, clinicID string, date availability.Date) (availability.Day, error) {
	ctx, span := s.tracer.Start(ctx, "agenda.day", trace.WithAttributes(
		attribute.String("clinic_id", clinicID),
		attribute.String("date", date.String()),
	))
	defer span.End()

	started := time.Now()
	snap, err := s.Snapshot(ctx, clinicID)
	if err != nil {
		span.RecordError(err)
		return availability.Day{}, err
	}
	appts, err := s.appointmentsOn(ctx, clinicID, date)
	if err != nil {
		span.RecordError(err)
		return availability.Day{}, err
	}

	day := s.engine.Day(date, snap.Rules, appts, s.config(snap))
	span.SetAttributes(attribute.String("state", day.State.String()), attribute.Int("slots", len(day.Slots)))
	s.metrics.ObserveDay(day.State.String(), len(day.Invalid), day.Ambiguous, time.Since(started).Seconds())
	return day, nil
}

// DateBookable reports whether date has any open window. Appointments are
// not consulted.
func (s *Service) DateBookable(ctx context.Context, clinicID string, date availability.Date) (bool, error) {
	snap, err := s.Snapshot(ctx, clinicID)
	if err != nil {
		return false, err
	}
	return s.engine.IsDateBookable(date, snap.Rules), nil
}

// TimeBookable reports whether at is a selectable slot on date.
func (s *Service) TimeBookable(ctx context.Context, clinicID string, date availability.Date, at availability.Clock) (bool, error) {
	day, err := s.Day(ctx, clinicID, date)
	if err != nil {
		return false, err
	}
	for _, slot := range day.Slots {
		if slot.Time == at {
			return slot.Selectable, nil
		}
	}
	return false, nil
}

// Range returns the day state of every date from from to to inclusive.
func (s *Service) Range(ctx context.Context, clinicID string, from, to availability.Date) ([]DayStatus, error) {
	if to.Before(from) {
		return nil, fmt.Errorf("%w: %s is after %s", ErrInvalidRange, from, to)
	}
	days := from.DaysUntil(to) + 1
	if days > MaxRangeDays {
		return nil, fmt.Errorf("%w: %d days exceeds %d", ErrInvalidRange, days, MaxRangeDays)
	}

	snap, err := s.Snapshot(ctx, clinicID)
	if err != nil {
		return nil, err
	}
	rules, invalid := availability.CompileRules(snap.Rules)
	if len(invalid) > 0 {
		s.logger.Warn("calendar skipped invalid window rules", "clinic_id", clinicID, "count", len(invalid))
	}
	out := make([]DayStatus, 0, days)
	ambiguous := 0
	for i := 0; i < days; i++ {
		d := from.AddDays(i)
		res := s.engine.ResolveCompiled(d, rules)
		if res.Ambiguous {
			ambiguous++
		}
		out = append(out, DayStatus{Date: d, State: res.State})
	}
	s.metrics.ObserveAmbiguous(ambiguous)
	return out, nil
}

// Invalidate drops the cached snapshot for the clinic.
func (s *Service) Invalidate(ctx context.Context, clinicID string) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.Invalidate(ctx, clinicID)
}

func (s *Service) appointmentsOn(ctx context.Context, clinicID string, date availability.Date) ([]model.Appointment, error) {
	loc := s.engine.Location()
	from := date.At(0, loc)
	to := date.AddDays(1).At(0, loc)
	appts, err := s.appts.ListActiveBetween(ctx, clinicID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	return appts, nil
}
