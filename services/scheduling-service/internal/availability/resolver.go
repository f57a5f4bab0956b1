package availability

import "encoding/json"

// DayState is the outcome of window resolution for one date.
type DayState int

const (
	// DayUnconfigured means no rule opens or blocks the date.
	DayUnconfigured DayState = iota
	DayOpen
	// DayBlocked means a date-specific block closes the whole day.
	DayBlocked
)

func (s DayState) String() string {
	switch s {
	case DayOpen:
		return "open"
	case DayBlocked:
		return "blocked"
	default:
		return "unconfigured"
	}
}

func (s DayState) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// Resolution lists the windows governing a date.
type Resolution struct {
	Date      Date
	State     DayState
	Windows   []WindowRule
	DecidedBy string
	// Ambiguous is set when the date carries both a date-specific block and a
	// date-specific open window. The block still wins.
	Ambiguous bool
}

func (r Resolution) Open() bool {
	return r.State == DayOpen
}

// precedenceStep yields a resolution when it decides the date.
type precedenceStep struct {
	name    string
	resolve func(d Date, rules []WindowRule) (Resolution, bool)
}

// precedence is evaluated top to bottom; the first step that decides wins.
var precedence = []precedenceStep{
	{name: "specific-date-block", resolve: resolveDateBlock},
	{name: "specific-date-open", resolve: resolveDateOpen},
	{name: "weekday-open", resolve: resolveWeekdayOpen},
}

// Precedence returns the names of the resolution steps in evaluation order.
func Precedence() []string {
	names := make([]string, len(precedence))
	for i, step := range precedence {
		names[i] = step.name
	}
	return names
}

// ResolveWindows picks the rules that apply to d.
func ResolveWindows(d Date, rules []WindowRule) Resolution {
	for _, step := range precedence {
		if res, ok := step.resolve(d, rules); ok {
			res.Date = d
			res.DecidedBy = step.name
			return res
		}
	}
	return Resolution{Date: d, State: DayUnconfigured}
}

func resolveDateBlock(d Date, rules []WindowRule) (Resolution, bool) {
	blocked, open := false, false
	for _, r := range rules {
		if !r.dateSpecific() || !r.Scope.appliesTo(d) {
			continue
		}
		if r.Blocked {
			blocked = true
		} else {
			open = true
		}
	}
	if !blocked {
		return Resolution{}, false
	}
	return Resolution{State: DayBlocked, Ambiguous: open}, true
}

func resolveDateOpen(d Date, rules []WindowRule) (Resolution, bool) {
	return openWindows(rules, func(r WindowRule) bool {
		return r.dateSpecific() && r.Scope.appliesTo(d)
	})
}

// Blocked weekday rules contribute nothing here.
func resolveWeekdayOpen(d Date, rules []WindowRule) (Resolution, bool) {
	return openWindows(rules, func(r WindowRule) bool {
		return !r.dateSpecific() && r.Scope.appliesTo(d)
	})
}

func openWindows(rules []WindowRule, match func(WindowRule) bool) (Resolution, bool) {
	var windows []WindowRule
	for _, r := range rules {
		if !r.Blocked && match(r) {
			windows = append(windows, r)
		}
	}
	if len(windows) == 0 {
		return Resolution{}, false
	}
	return Resolution{State: DayOpen, Windows: windows}, true
}
