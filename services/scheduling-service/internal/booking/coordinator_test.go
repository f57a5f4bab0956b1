package booking

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/md-rashed-zaman/clinicslots/services/scheduling-service/internal/availability"
	"github.com/md-rashed-zaman/clinicslots/services/scheduling-service/internal/model"
)

type fakeSchedule struct {
	cfg      availability.SlotConfig
	bookable map[string]bool
	asked    []string
}

func (f *fakeSchedule) TimeBookable(_ context.Context, _ string, date availability.Date, at availability.Clock) (bool, error) {
	key := date.String() + " " + at.String()
	f.asked = append(f.asked, key)
	return f.bookable[key], nil
}

func (f *fakeSchedule) SlotConfig(context.Context, string) (availability.SlotConfig, error) {
	return f.cfg, nil
}

type fakeCatalog map[string]int

func (f fakeCatalog) Durations(_ context.Context, _ string, ids []string) (map[string]int, error) {
	out := map[string]int{}
	for _, id := range ids {
		if d, ok := f[id]; ok {
			out[id] = d
		}
	}
	return out, nil
}

type fakeStore struct {
	created     []model.Appointment
	createOpts  []WriteOptions
	rescheduled []model.Appointment
	existing    map[string]model.Appointment
}

func (f *fakeStore) Create(_ context.Context, appt model.Appointment, opts WriteOptions) (model.Appointment, error) {
	f.created = append(f.created, appt)
	f.createOpts = append(f.createOpts, opts)
	return appt, nil
}

func (f *fakeStore) Get(_ context.Context, _ string, id string) (model.Appointment, error) {
	a, ok := f.existing[id]
	if !ok {
		return model.Appointment{}, model.ErrNotFound
	}
	return a, nil
}

func (f *fakeStore) Reschedule(_ context.Context, appt model.Appointment, _ WriteOptions) (model.Appointment, error) {
	f.rescheduled = append(f.rescheduled, appt)
	return appt, nil
}

func newCoordinator(sched *fakeSchedule, store *fakeStore) *Coordinator {
	catalog := fakeCatalog{"consult": 30, "cleaning": 45}
	return NewCoordinator(sched, catalog, store, time.UTC, nil)
}

func baseRequest(role model.Role) Request {
	return Request{
		ClinicID:       "clinic-1",
		ClientID:       "client-1",
		ProfessionalID: "pro-1",
		ServiceIDs:     []string{"consult", "cleaning"},
		Date:           "2025-01-10",
		Time:           "14:00",
		Role:           role,
	}
}

func TestBookFrontDeskConfirmsWithSummedDuration(t *testing.T) {
	sched := &fakeSchedule{cfg: availability.DefaultSlotConfig(), bookable: map[string]bool{"2025-01-10 14:00": true}}
	store := &fakeStore{}
	appt, err := newCoordinator(sched, store).Book(context.Background(), baseRequest(model.RoleFrontDesk))
	if err != nil {
		t.Fatalf("Book failed: %v", err)
	}
	if appt.Status != model.StatusConfirmed || appt.Origin != "front_desk" {
		t.Fatalf("unexpected status/origin %s/%s", appt.Status, appt.Origin)
	}
	if got := appt.EndTime.Format(time.RFC3339); got != "2025-01-10T15:15:00Z" {
		t.Fatalf("end = %s", got)
	}
	if appt.ID == "" {
		t.Fatal("expected generated id")
	}
	if len(store.createOpts) != 1 || !store.createOpts[0].ExclusiveSlot {
		t.Fatalf("expected exclusive write without overbooking, got %+v", store.createOpts)
	}
}

func TestBookOnlineIsRequested(t *testing.T) {
	sched := &fakeSchedule{cfg: availability.SlotConfig{IntervalMinutes: 30, AllowOverbooking: true}, bookable: map[string]bool{"2025-01-10 14:00": true}}
	store := &fakeStore{}
	req := baseRequest(model.RoleOnline)
	req.IdempotencyKey = "idem-1"
	appt, err := newCoordinator(sched, store).Book(context.Background(), req)
	if err != nil {
		t.Fatalf("Book failed: %v", err)
	}
	if appt.Status != model.StatusRequested || appt.Origin != "online" {
		t.Fatalf("unexpected status/origin %s/%s", appt.Status, appt.Origin)
	}
	if opts := store.createOpts[0]; opts.ExclusiveSlot || opts.IdempotencyKey != "idem-1" {
		t.Fatalf("unexpected write options %+v", opts)
	}
}

func TestBookRejectsUnavailableSlot(t *testing.T) {
	sched := &fakeSchedule{cfg: availability.DefaultSlotConfig(), bookable: map[string]bool{}}
	store := &fakeStore{}
	_, err := newCoordinator(sched, store).Book(context.Background(), baseRequest(model.RoleAdmin))
	if !errors.Is(err, ErrSlotUnavailable) {
		t.Fatalf("expected ErrSlotUnavailable, got %v", err)
	}
	if len(store.created) != 0 {
		t.Fatal("no appointment should be created")
	}
}

func TestBookInvalidRequests(t *testing.T) {
	sched := &fakeSchedule{cfg: availability.DefaultSlotConfig(), bookable: map[string]bool{"2025-01-10 14:00": true}}
	mutations := map[string]func(*Request){
		"no services":     func(r *Request) { r.ServiceIDs = nil },
		"unknown service": func(r *Request) { r.ServiceIDs = []string{"consult", "surgery"} },
		"no client":       func(r *Request) { r.ClientID = " " },
		"bad date":        func(r *Request) { r.Date = "2025/01/10" },
		"bad time":        func(r *Request) { r.Time = "14h" },
	}
	for name, mutate := range mutations {
		store := &fakeStore{}
		req := baseRequest(model.RoleFrontDesk)
		mutate(&req)
		if _, err := newCoordinator(sched, store).Book(context.Background(), req); !errors.Is(err, ErrInvalidBookingRequest) {
			t.Fatalf("%s: expected ErrInvalidBookingRequest, got %v", name, err)
		}
		if len(store.created) != 0 {
			t.Fatalf("%s: no appointment should be created", name)
		}
	}
}

func TestRescheduleKeepsDuration(t *testing.T) {
	start := time.Date(2025, 1, 10, 14, 0, 0, 0, time.UTC)
	store := &fakeStore{existing: map[string]model.Appointment{
		"appt-1": {ID: "appt-1", ClinicID: "clinic-1", StartTime: start, EndTime: start.Add(75 * time.Minute), Status: model.StatusConfirmed},
	}}
	sched := &fakeSchedule{cfg: availability.DefaultSlotConfig(), bookable: map[string]bool{"2025-01-13 09:30": true}}

	moved, err := newCoordinator(sched, store).Reschedule(context.Background(), "clinic-1", "appt-1", "2025-01-13", "09:30")
	if err != nil {
		t.Fatalf("Reschedule failed: %v", err)
	}
	if got := moved.EndTime.Format(time.RFC3339); got != "2025-01-13T10:45:00Z" {
		t.Fatalf("end = %s", got)
	}
	if len(store.rescheduled) != 1 {
		t.Fatalf("expected one reschedule write, got %d", len(store.rescheduled))
	}
}

func TestRescheduleSameTimeIsNoop(t *testing.T) {
	start := time.Date(2025, 1, 10, 14, 0, 0, 0, time.UTC)
	store := &fakeStore{existing: map[string]model.Appointment{
		"appt-1": {ID: "appt-1", StartTime: start, EndTime: start.Add(30 * time.Minute), Status: model.StatusRequested},
	}}
	sched := &fakeSchedule{cfg: availability.DefaultSlotConfig()}
	if _, err := newCoordinator(sched, store).Reschedule(context.Background(), "clinic-1", "appt-1", "2025-01-10", "14:00"); err != nil {
		t.Fatalf("Reschedule failed: %v", err)
	}
	if len(store.rescheduled) != 0 || len(sched.asked) != 0 {
		t.Fatal("same-time reschedule should not write or check availability")
	}
}

func TestRescheduleRejectsInactiveAndMissing(t *testing.T) {
	start := time.Date(2025, 1, 10, 14, 0, 0, 0, time.UTC)
	store := &fakeStore{existing: map[string]model.Appointment{
		"gone": {ID: "gone", StartTime: start, EndTime: start.Add(30 * time.Minute), Status: model.StatusCancelled},
	}}
	c := newCoordinator(&fakeSchedule{bookable: map[string]bool{"2025-01-11 10:00": true}}, store)

	if _, err := c.Reschedule(context.Background(), "clinic-1", "gone", "2025-01-11", "10:00"); !errors.Is(err, ErrNotReschedulable) {
		t.Fatalf("expected ErrNotReschedulable, got %v", err)
	}
	if _, err := c.Reschedule(context.Background(), "clinic-1", "missing", "2025-01-11", "10:00"); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := c.Reschedule(context.Background(), "clinic-1", "gone", "tomorrow", "10:00"); !errors.Is(err, ErrInvalidBookingRequest) {
		t.Fatalf("expected ErrInvalidBookingRequest, got %v", err)
	}
}
