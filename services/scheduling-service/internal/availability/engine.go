package availability

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/clinicslots/services/scheduling-service/internal/model"
)

const DefaultIntervalMinutes = 30

// SlotConfig controls slot granularity and overbooking for a clinic.
type SlotConfig struct {
	IntervalMinutes  int  `json:"interval_minutes"`
	AllowOverbooking bool `json:"allow_overbooking"`
}

func DefaultSlotConfig() SlotConfig {
	return SlotConfig{IntervalMinutes: DefaultIntervalMinutes}
}

func (c SlotConfig) Validate() error {
	if c.IntervalMinutes <= 0 || c.IntervalMinutes > minutesPerDay {
		return fmt.Errorf("%w: interval_minutes must be between 1 and %d (got %d)", ErrInvalidSlotConfig, minutesPerDay, c.IntervalMinutes)
	}
	return nil
}

func (c SlotConfig) interval() int {
	if c.IntervalMinutes <= 0 {
		return DefaultIntervalMinutes
	}
	return c.IntervalMinutes
}

// Day is the resolved slot list for one date.
type Day struct {
	Date      Date
	State     DayState
	Slots     []Slot
	Invalid   []*RuleError
	Ambiguous bool
}

// Engine answers slot and bookability questions over supplied rules and
// appointments. It performs no I/O and keeps no state between calls, so it is
// safe for concurrent use. Callers re-run it whenever rules or appointments
// change.
type Engine struct {
	loc    *time.Location
	logger *slog.Logger
}

// NewEngine returns an engine that reads appointment instants in loc.
func NewEngine(loc *time.Location, logger *slog.Logger) *Engine {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Engine{loc: loc, logger: logger}
}

func (e *Engine) Location() *time.Location {
	return e.loc
}

// Resolve compiles records and resolves the windows for date. Invalid records
// are skipped and returned.
func (e *Engine) Resolve(date Date, records []RuleRecord) (Resolution, []*RuleError) {
	rules, invalid := CompileRules(records)
	for _, ie := range invalid {
		e.logger.Warn("skipping invalid window rule", "rule_id", ie.RuleID, "reason", ie.Reason)
	}
	return e.ResolveCompiled(date, rules), invalid
}

// ResolveCompiled resolves date over already compiled rules and warns when the
// date is ambiguous.
func (e *Engine) ResolveCompiled(date Date, rules []WindowRule) Resolution {
	res := ResolveWindows(date, rules)
	if res.Ambiguous {
		e.logger.Warn("ambiguous window state: date has both a block and an open window",
			"date", date.String(),
		)
	}
	return res
}

// Day produces the annotated slot list for date. Slots are empty unless the
// day is open.
func (e *Engine) Day(date Date, records []RuleRecord, appointments []model.Appointment, cfg SlotConfig) Day {
	res, invalid := e.Resolve(date, records)
	day := Day{Date: date, State: res.State, Invalid: invalid, Ambiguous: res.Ambiguous, Slots: []Slot{}}
	if !res.Open() {
		return day
	}

	slots := GenerateSlots(res.Windows, cfg.interval())
	starts := e.startsOn(date, appointments)
	for i := range slots {
		if idx, ok := starts[slots[i].Time]; ok {
			slots[i].Occupied = true
			slots[i].Appointment = &appointments[idx]
		}
		slots[i].Selectable = !slots[i].Occupied || cfg.AllowOverbooking
	}
	day.Slots = slots
	return day
}

func (e *Engine) DaySlots(date Date, records []RuleRecord, appointments []model.Appointment, cfg SlotConfig) []Slot {
	return e.Day(date, records, appointments, cfg).Slots
}

func (e *Engine) IsDateBookable(date Date, records []RuleRecord) bool {
	res, _ := e.Resolve(date, records)
	return res.Open()
}

// IsTimeBookable reports whether at is a selectable slot on date.
func (e *Engine) IsTimeBookable(date Date, at Clock, records []RuleRecord, appointments []model.Appointment, cfg SlotConfig) bool {
	for _, s := range e.DaySlots(date, records, appointments, cfg) {
		if s.Time == at {
			return s.Selectable
		}
	}
	return false
}

// startsOn maps each minute of date to the index of the first appointment
// starting then.
func (e *Engine) startsOn(date Date, appointments []model.Appointment) map[Clock]int {
	starts := make(map[Clock]int)
	for i, a := range appointments {
		local := a.StartTime.In(e.loc)
		if DateOf(local, nil) != date {
			continue
		}
		c := ClockOf(local)
		if _, ok := starts[c]; !ok {
			starts[c] = i
		}
	}
	return starts
}
