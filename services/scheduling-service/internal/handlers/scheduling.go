package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/md-rashed-zaman/clinicslots/libs/httpx"
	"github.com/md-rashed-zaman/clinicslots/services/scheduling-service/internal/agenda"
	"github.com/md-rashed-zaman/clinicslots/services/scheduling-service/internal/availability"
	"github.com/md-rashed-zaman/clinicslots/services/scheduling-service/internal/booking"
	"github.com/md-rashed-zaman/clinicslots/services/scheduling-service/internal/metrics"
	"github.com/md-rashed-zaman/clinicslots/services/scheduling-service/internal/model"
)

type Agenda interface {
	Day(ctx context.Context, clinicID string, date availability.Date) (availability.Day, error)
	DateBookable(ctx context.Context, clinicID string, date availability.Date) (bool, error)
	TimeBookable(ctx context.Context, clinicID string, date availability.Date, at availability.Clock) (bool, error)
	Range(ctx context.Context, clinicID string, from, to availability.Date) ([]agenda.DayStatus, error)
	SlotConfig(ctx context.Context, clinicID string) (availability.SlotConfig, error)
	Invalidate(ctx context.Context, clinicID string) error
}

type Booker interface {
	Book(ctx context.Context, req booking.Request) (model.Appointment, error)
	Reschedule(ctx context.Context, clinicID, appointmentID, date, clock string) (model.Appointment, error)
}

type ScheduleStore interface {
	ListRules(ctx context.Context, clinicID string) ([]availability.RuleRecord, error)
	CreateRule(ctx context.Context, clinicID string, rule availability.WindowRule) (availability.RuleRecord, error)
	DeleteRule(ctx context.Context, clinicID, ruleID string) error
	PutSlotConfig(ctx context.Context, clinicID string, cfg availability.SlotConfig) error
}

type SchedulingHandler struct {
	agenda   Agenda
	booker   Booker
	schedule ScheduleStore
	logger   *slog.Logger
	metrics  *metrics.SchedulingMetrics
}

func NewSchedulingHandler(agendaSvc Agenda, booker Booker, schedule ScheduleStore, logger *slog.Logger, m *metrics.SchedulingMetrics) *SchedulingHandler {
	return &SchedulingHandler{
		agenda:   agendaSvc,
		booker:   booker,
		schedule: schedule,
		logger:   logger,
		metrics:  m,
	}
}

// Register mounts every route. Staff and admin routes require a bearer token.
func (h *SchedulingHandler) Register(mux *http.ServeMux, verifier TokenVerifier) {
	mux.HandleFunc("/api/v1/public/slots", h.Slots)
	mux.HandleFunc("/api/v1/public/availability", h.Availability)
	mux.HandleFunc("/api/v1/public/calendar", h.Calendar)
	mux.HandleFunc("/api/v1/public/book", h.PublicBook)

	staff := []string{string(model.RoleAdmin), string(model.RoleProfessional), string(model.RoleFrontDesk)}
	mux.Handle("/api/v1/appointments", RequireAuth(RequireRole(http.HandlerFunc(h.CreateAppointment), staff...), verifier))
	mux.Handle("/api/v1/appointments/reschedule", RequireAuth(RequireRole(http.HandlerFunc(h.Reschedule), staff...), verifier))

	admin := string(model.RoleAdmin)
	mux.Handle("/api/v1/schedule/windows", RequireAuth(RequireRole(http.HandlerFunc(h.Windows), admin), verifier))
	mux.Handle("/api/v1/schedule/config", RequireAuth(RequireRole(http.HandlerFunc(h.Config), admin), verifier))
}

func (h *SchedulingHandler) Slots(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	clinicID, date, ok := clinicAndDate(w, r)
	if !ok {
		return
	}

	day, err := h.agenda.Day(r.Context(), clinicID, date)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toDayResponse(day))
}

type availabilityResponse struct {
	Date         string `json:"date"`
	DateBookable bool   `json:"date_bookable"`
	Time         string `json:"time,omitempty"`
	TimeBookable *bool  `json:"time_bookable,omitempty"`
}

func (h *SchedulingHandler) Availability(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	clinicID, date, ok := clinicAndDate(w, r)
	if !ok {
		return
	}

	resp := availabilityResponse{Date: date.String()}
	var err error
	resp.DateBookable, err = h.agenda.DateBookable(r.Context(), clinicID, date)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	if raw := strings.TrimSpace(r.URL.Query().Get("time")); raw != "" {
		at, err := availability.ParseClock(raw)
		if err != nil {
			http.Error(w, "invalid time", http.StatusBadRequest)
			return
		}
		bookable, err := h.agenda.TimeBookable(r.Context(), clinicID, date, at)
		if err != nil {
			writeError(w, h.logger, err)
			return
		}
		resp.Time = at.String()
		resp.TimeBookable = &bookable
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

type calendarResponse struct {
	ClinicID string             `json:"clinic_id"`
	Days     []agenda.DayStatus `json:"days"`
}

func (h *SchedulingHandler) Calendar(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	q := r.URL.Query()
	clinicID := strings.TrimSpace(q.Get("clinic_id"))
	if clinicID == "" {
		http.Error(w, "clinic_id is required", http.StatusBadRequest)
		return
	}
	from, err := availability.ParseDate(q.Get("from"))
	if err != nil {
		http.Error(w, "invalid from", http.StatusBadRequest)
		return
	}
	to, err := availability.ParseDate(q.Get("to"))
	if err != nil {
		http.Error(w, "invalid to", http.StatusBadRequest)
		return
	}

	days, err := h.agenda.Range(r.Context(), clinicID, from, to)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, calendarResponse{ClinicID: clinicID, Days: days})
}

type bookRequest struct {
	ClinicID       string   `json:"clinic_id"`
	ClientID       string   `json:"client_id"`
	ProfessionalID string   `json:"professional_id"`
	ServiceIDs     []string `json:"service_ids"`
	RoomID         string   `json:"room_id"`
	Date           string   `json:"date"`
	Time           string   `json:"time"`
	Notes          string   `json:"notes"`
}

func (b bookRequest) toRequest(role model.Role, idempotencyKey string) booking.Request {
	return booking.Request{
		ClinicID:       b.ClinicID,
		ClientID:       b.ClientID,
		ProfessionalID: b.ProfessionalID,
		ServiceIDs:     b.ServiceIDs,
		RoomID:         strings.TrimSpace(b.RoomID),
		Date:           b.Date,
		Time:           b.Time,
		Notes:          b.Notes,
		Role:           role,
		IdempotencyKey: idempotencyKey,
	}
}

// PublicBook takes self-service bookings, which start as requested.
func (h *SchedulingHandler) PublicBook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req bookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	h.book(w, r, req.toRequest(model.RoleOnline, idempotencyKey(r)))
}

// CreateAppointment books on behalf of the clinic in the caller's token.
func (h *SchedulingHandler) CreateAppointment(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	claims, _ := ClaimsFrom(r.Context())
	var req bookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	if !sameClinic(w, req.ClinicID, claims.ClinicID) {
		return
	}
	req.ClinicID = claims.ClinicID
	h.book(w, r, req.toRequest(model.Role(claims.Role), idempotencyKey(r)))
}

func (h *SchedulingHandler) book(w http.ResponseWriter, r *http.Request, req booking.Request) {
	appt, err := h.booker.Book(r.Context(), req)
	if err != nil {
		h.metrics.ObserveBooking("book", writeError(w, h.logger, err))
		return
	}
	h.metrics.ObserveBooking("book", "ok")
	httpx.WriteJSON(w, http.StatusCreated, toAppointmentResponse(appt))
}

type rescheduleRequest struct {
	AppointmentID string `json:"appointment_id"`
	Date          string `json:"date"`
	Time          string `json:"time"`
}

func (h *SchedulingHandler) Reschedule(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	claims, _ := ClaimsFrom(r.Context())
	var req rescheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}

	appt, err := h.booker.Reschedule(r.Context(), claims.ClinicID, strings.TrimSpace(req.AppointmentID), req.Date, req.Time)
	if err != nil {
		h.metrics.ObserveBooking("reschedule", writeError(w, h.logger, err))
		return
	}
	h.metrics.ObserveBooking("reschedule", "ok")
	httpx.WriteJSON(w, http.StatusOK, toAppointmentResponse(appt))
}

type rulesResponse struct {
	ClinicID string                    `json:"clinic_id"`
	Rules    []availability.RuleRecord `json:"rules"`
}

// Windows lists, creates and deletes window rules for the caller's clinic.
func (h *SchedulingHandler) Windows(w http.ResponseWriter, r *http.Request) {
	claims, _ := ClaimsFrom(r.Context())
	clinicID := claims.ClinicID
	ctx := r.Context()

	switch r.Method {
	case http.MethodGet:
		rules, err := h.schedule.ListRules(ctx, clinicID)
		if err != nil {
			writeError(w, h.logger, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, rulesResponse{ClinicID: clinicID, Rules: rules})

	case http.MethodPost:
		var rec availability.RuleRecord
		if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
			http.Error(w, "invalid json body", http.StatusBadRequest)
			return
		}
		rec.ID = ""
		rule, err := rec.Compile()
		if err != nil {
			writeError(w, h.logger, err)
			return
		}
		created, err := h.schedule.CreateRule(ctx, clinicID, rule)
		if err != nil {
			writeError(w, h.logger, err)
			return
		}
		h.invalidate(ctx, clinicID)
		httpx.WriteJSON(w, http.StatusCreated, created)

	case http.MethodDelete:
		ruleID := strings.TrimSpace(r.URL.Query().Get("id"))
		if ruleID == "" {
			http.Error(w, "id is required", http.StatusBadRequest)
			return
		}
		if err := h.schedule.DeleteRule(ctx, clinicID, ruleID); err != nil {
			writeError(w, h.logger, err)
			return
		}
		h.invalidate(ctx, clinicID)
		w.WriteHeader(http.StatusNoContent)

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// Config reads or replaces the caller's clinic slot config.
func (h *SchedulingHandler) Config(w http.ResponseWriter, r *http.Request) {
	claims, _ := ClaimsFrom(r.Context())
	clinicID := claims.ClinicID
	ctx := r.Context()

	switch r.Method {
	case http.MethodGet:
		cfg, err := h.agenda.SlotConfig(ctx, clinicID)
		if err != nil {
			writeError(w, h.logger, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, cfg)

	case http.MethodPut:
		var cfg availability.SlotConfig
		if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
			http.Error(w, "invalid json body", http.StatusBadRequest)
			return
		}
		if err := h.schedule.PutSlotConfig(ctx, clinicID, cfg); err != nil {
			writeError(w, h.logger, err)
			return
		}
		h.invalidate(ctx, clinicID)
		httpx.WriteJSON(w, http.StatusOK, cfg)

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// invalidate drops this instance's view right away; other instances follow
// when the change event reaches them.
func (h *SchedulingHandler) invalidate(ctx context.Context, clinicID string) {
	if err := h.agenda.Invalidate(ctx, clinicID); err != nil {
		h.logger.Warn("schedule cache invalidation failed", "clinic_id", clinicID, "err", err)
	}
}

func clinicAndDate(w http.ResponseWriter, r *http.Request) (string, availability.Date, bool) {
	q := r.URL.Query()
	clinicID := strings.TrimSpace(q.Get("clinic_id"))
	if clinicID == "" {
		http.Error(w, "clinic_id is required", http.StatusBadRequest)
		return "", availability.Date{}, false
	}
	date, err := availability.ParseDate(q.Get("date"))
	if err != nil {
		http.Error(w, "invalid date", http.StatusBadRequest)
		return "", availability.Date{}, false
	}
	return clinicID, date, true
}

func sameClinic(w http.ResponseWriter, requested, token string) bool {
	requested = strings.TrimSpace(requested)
	if requested != "" && requested != token {
		http.Error(w, "clinic does not match token", http.StatusForbidden)
		return false
	}
	return true
}

func idempotencyKey(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get("Idempotency-Key"))
}
