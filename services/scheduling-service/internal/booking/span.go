package booking

import (
	"errors"
	"fmt"
	"time"

	"github.com/md-rashed-zaman/clinicslots/services/scheduling-service/internal/availability"
)

var ErrInvalidBookingRequest = errors.New("invalid booking request")

// Span is the contiguous block an appointment occupies.
type Span struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func (s Span) Duration() time.Duration {
	return s.End.Sub(s.Start)
}

// ComputeAppointmentSpan places date and clock ("YYYY-MM-DD", "HH:MM") in loc
// and extends the block by the sum of the service durations in minutes.
func ComputeAppointmentSpan(date, clock string, durationsMinutes []int, loc *time.Location) (Span, error) {
	d, err := availability.ParseDate(date)
	if err != nil {
		return Span{}, fmt.Errorf("%w: %v", ErrInvalidBookingRequest, err)
	}
	c, err := availability.ParseClock(clock)
	if err != nil {
		return Span{}, fmt.Errorf("%w: %v", ErrInvalidBookingRequest, err)
	}
	total, err := totalMinutes(durationsMinutes)
	if err != nil {
		return Span{}, err
	}
	start := d.At(c, loc)
	return Span{Start: start, End: start.Add(time.Duration(total) * time.Minute)}, nil
}

func totalMinutes(durations []int) (int, error) {
	if len(durations) == 0 {
		return 0, fmt.Errorf("%w: no services selected", ErrInvalidBookingRequest)
	}
	total := 0
	for _, d := range durations {
		if d <= 0 {
			return 0, fmt.Errorf("%w: service duration must be positive (got %d)", ErrInvalidBookingRequest, d)
		}
		total += d
	}
	return total, nil
}
