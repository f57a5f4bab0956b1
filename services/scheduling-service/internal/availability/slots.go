package availability

import (
	"slices"

	"github.com/md-rashed-zaman/clinicslots/services/scheduling-service/internal/model"
)

// Slot is a candidate booking time on a resolved date.
type Slot struct {
	Time       Clock
	Occupied   bool
	Selectable bool
	// Appointment is the first appointment starting at Time, if any. It points
	// into the caller's appointment slice and must not be modified.
	Appointment *model.Appointment
}

// GenerateSlots emits a slot every interval minutes from each window's start
// while the time is before the window's end, so the last slot may run past the
// end. Times shared by overlapping windows appear once and the result is
// sorted ascending. Returned slots are unoccupied and selectable.
func GenerateSlots(windows []WindowRule, intervalMinutes int) []Slot {
	if intervalMinutes <= 0 {
		return nil
	}
	step := Clock(intervalMinutes)
	seen := make(map[Clock]struct{})
	var times []Clock
	for _, w := range windows {
		for t := w.Start; t < w.End; t += step {
			if _, dup := seen[t]; dup {
				continue
			}
			seen[t] = struct{}{}
			times = append(times, t)
		}
	}
	slices.Sort(times)

	slots := make([]Slot, len(times))
	for i, t := range times {
		slots[i] = Slot{Time: t, Selectable: true}
	}
	return slots
}
