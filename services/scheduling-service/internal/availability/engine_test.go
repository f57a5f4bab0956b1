package availability

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/md-rashed-zaman/clinicslots/services/scheduling-service/internal/model"
)

func appointmentAt(id string, date Date, hh, mm int, loc *time.Location) model.Appointment {
	start := time.Date(date.Year, date.Month, date.Day, hh, mm, 0, 0, loc)
	return model.Appointment{ID: id, StartTime: start, EndTime: start.Add(30 * time.Minute), Status: model.StatusConfirmed}
}

func mondayRules() []RuleRecord {
	return []RuleRecord{WeekdayRecord("mon", time.Monday, "09:00", "12:00")}
}

func TestOpenWeekdayNoAppointments(t *testing.T) {
	e := NewEngine(time.UTC, nil)
	monday := mustDate(t, "2025-01-06")
	slots := e.DaySlots(monday, mondayRules(), nil, SlotConfig{IntervalMinutes: 30})
	if got := slotTimes(slots); got != "09:00,09:30,10:00,10:30,11:00,11:30" {
		t.Fatalf("slots = %s", got)
	}
	for _, s := range slots {
		if s.Occupied || !s.Selectable || s.Appointment != nil {
			t.Fatalf("slot %s should be free: %+v", s.Time, s)
		}
	}
}

func TestOccupiedSlotNotSelectable(t *testing.T) {
	e := NewEngine(time.UTC, nil)
	monday := mustDate(t, "2025-01-06")
	appts := []model.Appointment{appointmentAt("a-1", monday, 10, 0, time.UTC)}

	slots := e.DaySlots(monday, mondayRules(), appts, SlotConfig{IntervalMinutes: 30})
	for _, s := range slots {
		if s.Time.String() == "10:00" {
			if !s.Occupied || s.Selectable || s.Appointment == nil || s.Appointment.ID != "a-1" {
				t.Fatalf("10:00 should be occupied by a-1: %+v", s)
			}
			continue
		}
		if s.Occupied || !s.Selectable {
			t.Fatalf("slot %s should be free: %+v", s.Time, s)
		}
	}
	if e.IsTimeBookable(monday, Clock(10*60), mondayRules(), appts, SlotConfig{IntervalMinutes: 30}) {
		t.Fatal("10:00 should not be bookable")
	}
	if !e.IsTimeBookable(monday, Clock(10*60+30), mondayRules(), appts, SlotConfig{IntervalMinutes: 30}) {
		t.Fatal("10:30 should be bookable")
	}
}

func TestSpecificDateBlockClosesDay(t *testing.T) {
	e := NewEngine(time.UTC, nil)
	xmas := mustDate(t, "2025-12-25")
	records := []RuleRecord{
		WeekdayRecord("thu", time.Thursday, "09:00", "18:00"),
		DateRecord("closed", "2025-12-25", "00:00", "23:59", true),
	}
	if e.IsDateBookable(xmas, records) {
		t.Fatal("2025-12-25 should not be bookable")
	}
	day := e.Day(xmas, records, nil, DefaultSlotConfig())
	if day.State != DayBlocked || len(day.Slots) != 0 || day.Slots == nil {
		t.Fatalf("expected blocked day with empty slots, got %+v", day)
	}
}

func TestOverbookingKeepsOccupiedSelectable(t *testing.T) {
	e := NewEngine(time.UTC, nil)
	monday := mustDate(t, "2025-01-06")
	appts := []model.Appointment{
		appointmentAt("a-1", monday, 9, 0, time.UTC),
		appointmentAt("a-2", monday, 9, 0, time.UTC),
		appointmentAt("a-3", monday, 11, 30, time.UTC),
	}
	cfg := SlotConfig{IntervalMinutes: 30, AllowOverbooking: true}
	slots := e.DaySlots(monday, mondayRules(), appts, cfg)
	for _, s := range slots {
		if !s.Selectable {
			t.Fatalf("slot %s should be selectable with overbooking", s.Time)
		}
	}
	if slots[0].Appointment == nil || slots[0].Appointment.ID != "a-1" {
		t.Fatalf("expected first matching appointment bound, got %+v", slots[0].Appointment)
	}
	if !e.IsTimeBookable(monday, Clock(9*60), mondayRules(), appts, cfg) {
		t.Fatal("09:00 should be bookable with overbooking")
	}
}

func TestOccupancyMatchesMinuteOnSameDateOnly(t *testing.T) {
	e := NewEngine(time.UTC, nil)
	monday := mustDate(t, "2025-01-06")
	withSeconds := appointmentAt("secs", monday, 9, 30, time.UTC)
	withSeconds.StartTime = withSeconds.StartTime.Add(42 * time.Second)
	appts := []model.Appointment{
		withSeconds,
		appointmentAt("off-grid", monday, 10, 15, time.UTC),
		appointmentAt("next-week", monday.AddDays(7), 11, 0, time.UTC),
	}
	slots := e.DaySlots(monday, mondayRules(), appts, SlotConfig{IntervalMinutes: 30})
	occupied := []string{}
	for _, s := range slots {
		if s.Occupied {
			occupied = append(occupied, s.Time.String())
		}
	}
	if strings.Join(occupied, ",") != "09:30" {
		t.Fatalf("occupied = %v", occupied)
	}
}

func TestOccupancyUsesClinicLocation(t *testing.T) {
	loc, err := time.LoadLocation("America/Sao_Paulo")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	e := NewEngine(loc, nil)
	monday := mustDate(t, "2025-01-06")
	// 13:00 UTC is 10:00 in Sao Paulo.
	appts := []model.Appointment{{ID: "utc", StartTime: time.Date(2025, 1, 6, 13, 0, 0, 0, time.UTC)}}
	slots := e.DaySlots(monday, mondayRules(), appts, SlotConfig{IntervalMinutes: 30})
	for _, s := range slots {
		if s.Occupied && s.Time.String() != "10:00" {
			t.Fatalf("unexpected occupied slot %s", s.Time)
		}
		if s.Time.String() == "10:00" && !s.Occupied {
			t.Fatal("10:00 local should be occupied")
		}
	}
}

func TestTimeNotOnGridIsNotBookable(t *testing.T) {
	e := NewEngine(time.UTC, nil)
	monday := mustDate(t, "2025-01-06")
	if e.IsTimeBookable(monday, Clock(9*60+10), mondayRules(), nil, DefaultSlotConfig()) {
		t.Fatal("09:10 is not a generated slot")
	}
	if e.IsTimeBookable(monday.AddDays(1), Clock(9*60), mondayRules(), nil, DefaultSlotConfig()) {
		t.Fatal("tuesday is unconfigured")
	}
}

func TestInvalidRulesAreSkippedAndReported(t *testing.T) {
	var buf bytes.Buffer
	e := NewEngine(time.UTC, slog.New(slog.NewJSONHandler(&buf, nil)))
	monday := mustDate(t, "2025-01-06")
	records := []RuleRecord{
		WeekdayRecord("bad-order", time.Monday, "17:00", "08:00"),
		WeekdayRecord("bad-time", time.Monday, "nine", "12:00"),
		WeekdayRecord("mon", time.Monday, "09:00", "10:00"),
	}
	day := e.Day(monday, records, nil, DefaultSlotConfig())
	if day.State != DayOpen || slotTimes(day.Slots) != "09:00,09:30" {
		t.Fatalf("unexpected day %+v", day)
	}
	if len(day.Invalid) != 2 {
		t.Fatalf("expected 2 invalid rules, got %v", day.Invalid)
	}
	if !strings.Contains(buf.String(), "bad-order") {
		t.Fatalf("expected invalid rule to be logged, got %s", buf.String())
	}
}

func TestAmbiguousStateIsLogged(t *testing.T) {
	var buf bytes.Buffer
	e := NewEngine(time.UTC, slog.New(slog.NewJSONHandler(&buf, nil)))
	records := []RuleRecord{
		DateRecord("open", "2025-12-25", "09:00", "12:00", false),
		DateRecord("block", "2025-12-25", "09:00", "12:00", true),
	}
	day := e.Day(mustDate(t, "2025-12-25"), records, nil, DefaultSlotConfig())
	if day.State != DayBlocked || !day.Ambiguous {
		t.Fatalf("unexpected day %+v", day)
	}
	if !strings.Contains(buf.String(), "ambiguous window state") {
		t.Fatalf("expected ambiguous warning, got %s", buf.String())
	}
}

func TestDaySlotsIsIdempotent(t *testing.T) {
	e := NewEngine(time.UTC, nil)
	monday := mustDate(t, "2025-01-06")
	records := []RuleRecord{
		WeekdayRecord("pm", time.Monday, "14:00", "16:00"),
		WeekdayRecord("am", time.Monday, "09:00", "11:00"),
	}
	appts := []model.Appointment{appointmentAt("a", monday, 14, 30, time.UTC)}
	first := e.DaySlots(monday, records, appts, DefaultSlotConfig())
	second := e.DaySlots(monday, records, appts, DefaultSlotConfig())
	if slotTimes(first) != slotTimes(second) || len(first) != len(second) {
		t.Fatal("slot output differs between calls")
	}
	for i := range first {
		if first[i].Occupied != second[i].Occupied || first[i].Selectable != second[i].Selectable {
			t.Fatalf("slot %d differs between calls", i)
		}
	}
	if records[0].ID != "pm" || *records[0].Weekday != 1 {
		t.Fatal("input records were mutated")
	}
}

func TestZeroIntervalFallsBackToDefault(t *testing.T) {
	e := NewEngine(time.UTC, nil)
	slots := e.DaySlots(mustDate(t, "2025-01-06"), mondayRules(), nil, SlotConfig{})
	if len(slots) != 6 {
		t.Fatalf("expected default 30 minute interval, got %d slots", len(slots))
	}
}

func TestSlotConfigValidate(t *testing.T) {
	if err := DefaultSlotConfig().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	for _, n := range []int{0, -5, 24*60 + 1} {
		if err := (SlotConfig{IntervalMinutes: n}).Validate(); err == nil {
			t.Fatalf("interval %d should be rejected", n)
		}
	}
}
