package agenda

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/md-rashed-zaman/clinicslots/services/scheduling-service/internal/availability"
	"github.com/md-rashed-zaman/clinicslots/services/scheduling-service/internal/cache"
	"github.com/md-rashed-zaman/clinicslots/services/scheduling-service/internal/metrics"
	"github.com/md-rashed-zaman/clinicslots/services/scheduling-service/internal/model"
)

type fakeRules struct {
	records  []availability.RuleRecord
	cfg      availability.SlotConfig
	hasCfg   bool
	err      error
	listings int
}

func (f *fakeRules) ListRules(context.Context, string) ([]availability.RuleRecord, error) {
	f.listings++
	return f.records, f.err
}

func (f *fakeRules) SlotConfig(context.Context, string) (availability.SlotConfig, bool, error) {
	return f.cfg, f.hasCfg, nil
}

type fakeAppointments struct {
	appts    []model.Appointment
	from, to time.Time
}

func (f *fakeAppointments) ListActiveBetween(_ context.Context, _ string, from, to time.Time) ([]model.Appointment, error) {
	f.from, f.to = from, to
	return f.appts, nil
}

func mustDate(t *testing.T, s string) availability.Date {
	t.Helper()
	d, err := availability.ParseDate(s)
	require.NoError(t, err)
	return d
}

func mustClock(t *testing.T, s string) availability.Clock {
	t.Helper()
	c, err := availability.ParseClock(s)
	require.NoError(t, err)
	return c
}

// 2025-01-06 is a Monday.
func mondayRules() *fakeRules {
	return &fakeRules{records: []availability.RuleRecord{
		availability.WeekdayRecord("r-1", time.Monday, "09:00", "11:00"),
	}}
}

func TestDayUsesDefaultsAndAppointments(t *testing.T) {
	loc, err := time.LoadLocation("America/Sao_Paulo")
	require.NoError(t, err)
	appts := &fakeAppointments{appts: []model.Appointment{
		{ID: "a-1", StartTime: time.Date(2025, 1, 6, 12, 30, 0, 0, time.UTC), Status: model.StatusConfirmed},
	}}
	svc := NewService(availability.NewEngine(loc, nil), mondayRules(), appts, Options{})

	day, err := svc.Day(context.Background(), "clinic-1", mustDate(t, "2025-01-06"))
	require.NoError(t, err)
	assert.Equal(t, availability.DayOpen, day.State)
	require.Len(t, day.Slots, 4)
	assert.True(t, day.Slots[1].Occupied)
	assert.False(t, day.Slots[1].Selectable)
	assert.Equal(t, "a-1", day.Slots[1].Appointment.ID)

	assert.Equal(t, time.Date(2025, 1, 6, 0, 0, 0, 0, loc), appts.from)
	assert.Equal(t, time.Date(2025, 1, 7, 0, 0, 0, 0, loc), appts.to)
}

func TestStoredConfigWins(t *testing.T) {
	rules := mondayRules()
	rules.cfg = availability.SlotConfig{IntervalMinutes: 15, AllowOverbooking: true}
	rules.hasCfg = true
	svc := NewService(availability.NewEngine(time.UTC, nil), rules, &fakeAppointments{}, Options{})

	day, err := svc.Day(context.Background(), "clinic-1", mustDate(t, "2025-01-06"))
	require.NoError(t, err)
	assert.Len(t, day.Slots, 8)

	cfg, err := svc.SlotConfig(context.Background(), "clinic-1")
	require.NoError(t, err)
	assert.True(t, cfg.AllowOverbooking)
}

func TestInvalidDefaultsFallBack(t *testing.T) {
	svc := NewService(availability.NewEngine(time.UTC, nil), &fakeRules{}, &fakeAppointments{}, Options{
		Defaults: availability.SlotConfig{IntervalMinutes: -5},
	})
	cfg, err := svc.SlotConfig(context.Background(), "clinic-1")
	require.NoError(t, err)
	assert.Equal(t, availability.DefaultSlotConfig(), cfg)
}

func TestBookability(t *testing.T) {
	appts := &fakeAppointments{appts: []model.Appointment{
		{ID: "a-1", StartTime: time.Date(2025, 1, 6, 9, 0, 0, 0, time.UTC)},
	}}
	svc := NewService(availability.NewEngine(time.UTC, nil), mondayRules(), appts, Options{})
	ctx := context.Background()
	monday := mustDate(t, "2025-01-06")

	ok, err := svc.DateBookable(ctx, "clinic-1", monday)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = svc.DateBookable(ctx, "clinic-1", mustDate(t, "2025-01-07"))
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = svc.TimeBookable(ctx, "clinic-1", monday, mustClock(t, "09:00"))
	require.NoError(t, err)
	assert.False(t, ok, "occupied slot")

	ok, err = svc.TimeBookable(ctx, "clinic-1", monday, mustClock(t, "09:30"))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = svc.TimeBookable(ctx, "clinic-1", monday, mustClock(t, "09:15"))
	require.NoError(t, err)
	assert.False(t, ok, "off-grid time")
}

func TestRange(t *testing.T) {
	rules := mondayRules()
	rules.records = append(rules.records, availability.DateRecord("r-2", "2025-01-13", "00:00", "23:59", true))
	svc := NewService(availability.NewEngine(time.UTC, nil), rules, &fakeAppointments{}, Options{})
	ctx := context.Background()

	days, err := svc.Range(ctx, "clinic-1", mustDate(t, "2025-01-06"), mustDate(t, "2025-01-13"))
	require.NoError(t, err)
	require.Len(t, days, 8)
	assert.Equal(t, availability.DayOpen, days[0].State)
	assert.Equal(t, availability.DayUnconfigured, days[1].State)
	assert.Equal(t, availability.DayBlocked, days[7].State)

	_, err = svc.Range(ctx, "clinic-1", mustDate(t, "2025-01-13"), mustDate(t, "2025-01-06"))
	require.ErrorIs(t, err, ErrInvalidRange)

	_, err = svc.Range(ctx, "clinic-1", mustDate(t, "2025-01-01"), mustDate(t, "2025-03-04"))
	require.ErrorIs(t, err, ErrInvalidRange)

	days, err = svc.Range(ctx, "clinic-1", mustDate(t, "2025-01-01"), mustDate(t, "2025-03-03"))
	require.NoError(t, err)
	assert.Len(t, days, MaxRangeDays)
}

func TestRangeReportsAmbiguousDates(t *testing.T) {
	rules := mondayRules()
	rules.records = append(rules.records,
		availability.DateRecord("closed", "2025-01-08", "00:00", "23:59", true),
		availability.DateRecord("extra", "2025-01-08", "13:00", "15:00", false),
	)
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	reg := prometheus.NewRegistry()
	svc := NewService(availability.NewEngine(time.UTC, logger), rules, &fakeAppointments{}, Options{
		Metrics: metrics.NewSchedulingMetrics(reg),
	})

	days, err := svc.Range(context.Background(), "clinic-1", mustDate(t, "2025-01-06"), mustDate(t, "2025-01-10"))
	require.NoError(t, err)
	require.Len(t, days, 5)
	assert.Equal(t, availability.DayBlocked, days[2].State)
	assert.Contains(t, buf.String(), "ambiguous window state")
	assert.Contains(t, buf.String(), `"date":"2025-01-08"`)

	families, err := reg.Gather()
	require.NoError(t, err)
	var ambiguous float64
	for _, mf := range families {
		if mf.GetName() == "clinicslots_availability_ambiguous_days_total" {
			ambiguous = mf.GetMetric()[0].GetCounter().GetValue()
		}
	}
	assert.Equal(t, 1.0, ambiguous)
}

func TestStoreErrorPropagates(t *testing.T) {
	svc := NewService(availability.NewEngine(time.UTC, nil), &fakeRules{err: errors.New("db down")}, &fakeAppointments{}, Options{})
	_, err := svc.Day(context.Background(), "clinic-1", mustDate(t, "2025-01-06"))
	require.Error(t, err)
}

func TestSnapshotIsCachedUntilInvalidated(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	reg := prometheus.NewRegistry()
	m := metrics.NewSchedulingMetrics(reg)
	rules := mondayRules()
	svc := NewService(availability.NewEngine(time.UTC, nil), rules, &fakeAppointments{}, Options{
		Cache:   cache.NewScheduleCache(rdb, time.Minute),
		Metrics: m,
	})
	ctx := context.Background()
	monday := mustDate(t, "2025-01-06")

	_, err := svc.Day(ctx, "clinic-1", monday)
	require.NoError(t, err)
	_, err = svc.Day(ctx, "clinic-1", monday)
	require.NoError(t, err)
	assert.Equal(t, 1, rules.listings)

	require.NoError(t, svc.Invalidate(ctx, "clinic-1"))
	_, err = svc.Day(ctx, "clinic-1", monday)
	require.NoError(t, err)
	assert.Equal(t, 2, rules.listings)

	n, err := testutil.GatherAndCount(reg, "clinicslots_cache_schedule_lookups_total")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestCacheOutageFallsBackToStore(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	mr.Close()

	rules := mondayRules()
	svc := NewService(availability.NewEngine(time.UTC, nil), rules, &fakeAppointments{}, Options{
		Cache: cache.NewScheduleCache(rdb, time.Minute),
	})
	day, err := svc.Day(context.Background(), "clinic-1", mustDate(t, "2025-01-06"))
	require.NoError(t, err)
	assert.Equal(t, availability.DayOpen, day.State)
}
