package handlers

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/md-rashed-zaman/apptslots/libs/auth"
	"github.com/md-rashed-zaman/apptslots/services/availability-service/internal/apperr"
	"github.com/md-rashed-zaman/apptslots/services/availability-service/internal/availability"
	"github.com/md-rashed-zaman/apptslots/services/availability-service/internal/model"
)

type AvailabilityHandler struct {
	days   *availability.Service
	logger *slog.Logger
}

func NewAvailabilityHandler(days *availability.Service, logger *slog.Logger) *AvailabilityHandler {
	return &AvailabilityHandler{days: days, logger: logger}
}

type workingHourItem struct {
	DayOfWeek int    `json:"day_of_week"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	IsWorking bool   `json:"is_working"`
}

type workingHoursBody struct {
	WorkingHours []workingHourItem `json:"working_hours"`
}

type settingsBody struct {
	SlotDurationMinutes  int `json:"slot_duration_minutes"`
	BreakDurationMinutes int `json:"break_duration_minutes"`
	AdvanceBookingDays   int `json:"advance_booking_days"`
}

type windowItem struct {
	StartTime   string `json:"start_time"`
	EndTime     string `json:"end_time"`
	IsAvailable *bool  `json:"is_available"`
}

type dayOverrideRequest struct {
	IsAvailable *bool        `json:"is_available"`
	Reason      string       `json:"reason"`
	Windows     []windowItem `json:"windows"`
}

// Day serves the owner view to the owner and the public view to everyone else.
// A token without owner_id means "my own day".
func (h *AvailabilityHandler) Day(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	date := strings.TrimSpace(q.Get("date"))
	ownerID := strings.TrimSpace(q.Get("owner_id"))
	caller := auth.CallerID(r.Context())

	if ownerID == "" {
		if caller == "" {
			writeError(w, r, h.logger, apperr.Unauthorized("owner_id or a bearer token is required"))
			return
		}
		ownerID = caller
	}
	if date == "" {
		writeError(w, r, h.logger, apperr.Validation("date is required"))
		return
	}

	view, err := h.days.Day(r.Context(), ownerID, date, caller == ownerID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *AvailabilityHandler) GetWorkingHours(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.requireOwner(w, r)
	if !ok {
		return
	}
	rules, err := h.days.WorkingHours(r.Context(), owner)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toWorkingHoursBody(rules))
}

func (h *AvailabilityHandler) PutWorkingHours(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.requireOwner(w, r)
	if !ok {
		return
	}
	var req workingHoursBody
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	rules := make([]model.WorkingHourRule, 0, len(req.WorkingHours))
	for _, it := range req.WorkingHours {
		rules = append(rules, model.WorkingHourRule{
			DayOfWeek: it.DayOfWeek,
			StartTime: strings.TrimSpace(it.StartTime),
			EndTime:   strings.TrimSpace(it.EndTime),
			IsWorking: it.IsWorking,
		})
	}
	saved, err := h.days.ReplaceWorkingHours(r.Context(), owner, rules)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toWorkingHoursBody(saved))
}

func (h *AvailabilityHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.requireOwner(w, r)
	if !ok {
		return
	}
	s, err := h.days.Settings(r.Context(), owner)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toSettingsBody(s))
}

func (h *AvailabilityHandler) PutSettings(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.requireOwner(w, r)
	if !ok {
		return
	}
	var req settingsBody
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	saved, err := h.days.UpdateSettings(r.Context(), model.AvailabilitySettings{
		OwnerID:              owner,
		SlotDurationMinutes:  req.SlotDurationMinutes,
		BreakDurationMinutes: req.BreakDurationMinutes,
		AdvanceBookingDays:   req.AdvanceBookingDays,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toSettingsBody(saved))
}

func (h *AvailabilityHandler) PutDay(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.requireOwner(w, r)
	if !ok {
		return
	}
	var req dayOverrideRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	o := availability.DayOverride{IsAvailable: req.IsAvailable, Reason: strings.TrimSpace(req.Reason)}
	if req.Windows != nil {
		o.Windows = make([]availability.WindowSpec, 0, len(req.Windows))
		for _, it := range req.Windows {
			open := it.IsAvailable == nil || *it.IsAvailable
			o.Windows = append(o.Windows, availability.WindowSpec{
				StartTime:   strings.TrimSpace(it.StartTime),
				EndTime:     strings.TrimSpace(it.EndTime),
				IsAvailable: open,
			})
		}
	}
	view, err := h.days.SetDay(r.Context(), owner, r.PathValue("date"), o)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *AvailabilityHandler) DeleteDay(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.requireOwner(w, r)
	if !ok {
		return
	}
	view, err := h.days.ResetDay(r.Context(), owner, r.PathValue("date"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *AvailabilityHandler) requireOwner(w http.ResponseWriter, r *http.Request) (string, bool) {
	owner := auth.CallerID(r.Context())
	if owner == "" {
		writeError(w, r, h.logger, apperr.Unauthorized("authentication required"))
		return "", false
	}
	return owner, true
}

func toWorkingHoursBody(rules []model.WorkingHourRule) workingHoursBody {
	out := workingHoursBody{WorkingHours: make([]workingHourItem, 0, len(rules))}
	for _, r := range rules {
		out.WorkingHours = append(out.WorkingHours, workingHourItem{
			DayOfWeek: r.DayOfWeek,
			StartTime: r.StartTime,
			EndTime:   r.EndTime,
			IsWorking: r.IsWorking,
		})
	}
	return out
}

func toSettingsBody(s model.AvailabilitySettings) settingsBody {
	return settingsBody{
		SlotDurationMinutes:  s.SlotDurationMinutes,
		BreakDurationMinutes: s.BreakDurationMinutes,
		AdvanceBookingDays:   s.AdvanceBookingDays,
	}
}
