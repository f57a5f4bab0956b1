package availability

import (
	"fmt"
	"time"
)

// Scope says which days a rule applies to. The only implementations are
// WeekdayScope and DateScope, so a rule is recurring or date-specific but
// never both.
type Scope interface {
	appliesTo(d Date) bool
	scope()
}

// WeekdayScope applies to every date falling on Weekday.
type WeekdayScope struct {
	Weekday time.Weekday
}

func (s WeekdayScope) appliesTo(d Date) bool { return d.Weekday() == s.Weekday }

func (WeekdayScope) scope() {}

// DateScope applies to exactly one calendar date.
type DateScope struct {
	Date Date
}

func (s DateScope) appliesTo(d Date) bool { return d == s.Date }

func (DateScope) scope() {}

// WindowRule is a validated schedule window. Start is strictly before End and
// neither wraps past midnight.
type WindowRule struct {
	ID      string
	Scope   Scope
	Start   Clock
	End     Clock
	Blocked bool
	Notes   string
}

func (r WindowRule) dateSpecific() bool {
	_, ok := r.Scope.(DateScope)
	return ok
}

func (r WindowRule) Record() RuleRecord {
	rec := RuleRecord{
		ID:        r.ID,
		StartTime: r.Start.String(),
		EndTime:   r.End.String(),
		IsBlocked: r.Blocked,
		Notes:     r.Notes,
	}
	switch s := r.Scope.(type) {
	case WeekdayScope:
		wd := int(s.Weekday)
		rec.Weekday = &wd
	case DateScope:
		ds := s.Date.String()
		rec.SpecificDate = &ds
	}
	return rec
}

// RuleRecord is the stored and wire form of a window rule.
type RuleRecord struct {
	ID           string  `json:"id"`
	Weekday      *int    `json:"weekday,omitempty"`
	SpecificDate *string `json:"specific_date,omitempty"`
	StartTime    string  `json:"start_time"`
	EndTime      string  `json:"end_time"`
	IsBlocked    bool    `json:"is_blocked"`
	Notes        string  `json:"notes,omitempty"`
}

// Compile validates rec. Failures are *RuleError values wrapping
// ErrInvalidRuleDefinition.
func (rec RuleRecord) Compile() (WindowRule, error) {
	invalid := func(format string, args ...any) (WindowRule, error) {
		return WindowRule{}, &RuleError{RuleID: rec.ID, Reason: fmt.Sprintf(format, args...)}
	}

	var scope Scope
	switch {
	case rec.Weekday != nil && rec.SpecificDate != nil:
		return invalid("both weekday and specific_date are set")
	case rec.Weekday != nil:
		if *rec.Weekday < 0 || *rec.Weekday > 6 {
			return invalid("weekday %d out of range 0..6", *rec.Weekday)
		}
		scope = WeekdayScope{Weekday: time.Weekday(*rec.Weekday)}
	case rec.SpecificDate != nil:
		d, err := ParseDate(*rec.SpecificDate)
		if err != nil {
			return invalid("%v", err)
		}
		scope = DateScope{Date: d}
	default:
		return invalid("neither weekday nor specific_date is set")
	}

	start, err := ParseClock(rec.StartTime)
	if err != nil {
		return invalid("start_time: %v", err)
	}
	end, err := ParseClock(rec.EndTime)
	if err != nil {
		return invalid("end_time: %v", err)
	}
	if start >= end {
		return invalid("start_time %s is not before end_time %s", start, end)
	}

	return WindowRule{
		ID:      rec.ID,
		Scope:   scope,
		Start:   start,
		End:     end,
		Blocked: rec.IsBlocked,
		Notes:   rec.Notes,
	}, nil
}

// CompileRules validates every record, keeping the valid rules in input order
// and reporting the rest.
func CompileRules(records []RuleRecord) ([]WindowRule, []*RuleError) {
	rules := make([]WindowRule, 0, len(records))
	var invalid []*RuleError
	for _, rec := range records {
		rule, err := rec.Compile()
		if err != nil {
			invalid = append(invalid, err.(*RuleError))
			continue
		}
		rules = append(rules, rule)
	}
	return rules, invalid
}

func WeekdayRecord(id string, wd time.Weekday, start, end string) RuleRecord {
	n := int(wd)
	return RuleRecord{ID: id, Weekday: &n, StartTime: start, EndTime: end}
}

func DateRecord(id, date, start, end string, blocked bool) RuleRecord {
	return RuleRecord{ID: id, SpecificDate: &date, StartTime: start, EndTime: end, IsBlocked: blocked}
}
