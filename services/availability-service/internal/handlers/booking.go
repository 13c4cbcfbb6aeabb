package handlers

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/md-rashed-zaman/apptslots/libs/auth"
	"github.com/md-rashed-zaman/apptslots/services/availability-service/internal/apperr"
	"github.com/md-rashed-zaman/apptslots/services/availability-service/internal/booking"
	"github.com/md-rashed-zaman/apptslots/services/availability-service/internal/model"
	"github.com/md-rashed-zaman/apptslots/services/availability-service/internal/storage"
)

type BookingHandler struct {
	bookings *booking.Service
	logger   *slog.Logger
}

func NewBookingHandler(bookings *booking.Service, logger *slog.Logger) *BookingHandler {
	return &BookingHandler{bookings: bookings, logger: logger}
}

type createBookingRequest struct {
	OwnerID     string `json:"owner_id"`
	TimeSlotID  string `json:"time_slot_id"`
	Date        string `json:"date"`
	StartTime   string `json:"start_time"`
	EndTime     string `json:"end_time"`
	ClientName  string `json:"client_name"`
	ClientEmail string `json:"client_email"`
	ClientPhone string `json:"client_phone"`
	Notes       string `json:"notes"`
}

type updateBookingRequest struct {
	BookingID string `json:"booking_id"`
	Status    string `json:"status"`
}

type rescheduleRequest struct {
	BookingID  string `json:"booking_id"`
	TimeSlotID string `json:"time_slot_id"`
	Date       string `json:"date"`
	StartTime  string `json:"start_time"`
	EndTime    string `json:"end_time"`
}

// bookingResponse carries client contact fields only for the owner.
type bookingResponse struct {
	ID          string `json:"id"`
	OwnerID     string `json:"owner_id"`
	Date        string `json:"date"`
	StartTime   string `json:"start_time"`
	EndTime     string `json:"end_time"`
	ClientName  string `json:"client_name,omitempty"`
	ClientEmail string `json:"client_email,omitempty"`
	ClientPhone string `json:"client_phone,omitempty"`
	Notes       string `json:"notes,omitempty"`
	Status      string `json:"status"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

type listBookingsResponse struct {
	Bookings []bookingResponse `json:"bookings"`
}

func toBookingResponse(b model.Booking, withClient bool) bookingResponse {
	out := bookingResponse{
		ID:        b.ID,
		OwnerID:   b.OwnerID,
		Date:      b.Date,
		StartTime: b.StartTime,
		EndTime:   b.EndTime,
		Status:    string(b.Status),
		CreatedAt: formatTime(b.CreatedAt),
		UpdatedAt: formatTime(b.UpdatedAt),
	}
	if withClient {
		out.ClientName = b.ClientName
		out.ClientEmail = b.ClientEmail
		out.ClientPhone = b.ClientPhone
		out.Notes = b.Notes
	}
	return out
}

// Create is open to anonymous clients. The caller, if any, is only used to
// default owner_id.
func (h *BookingHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createBookingRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	caller := auth.CallerID(r.Context())
	b, err := h.bookings.Create(r.Context(), booking.CreateInput{
		CallerID:    caller,
		OwnerID:     req.OwnerID,
		TimeSlotID:  req.TimeSlotID,
		Date:        req.Date,
		StartTime:   req.StartTime,
		EndTime:     req.EndTime,
		ClientName:  req.ClientName,
		ClientEmail: req.ClientEmail,
		ClientPhone: req.ClientPhone,
		Notes:       req.Notes,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toBookingResponse(b, caller != "" && caller == b.OwnerID))
}

func (h *BookingHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req updateBookingRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	b, err := h.bookings.Transition(r.Context(), booking.TransitionInput{
		CallerID:  auth.CallerID(r.Context()),
		BookingID: req.BookingID,
		Status:    req.Status,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toBookingResponse(b, true))
}

func (h *BookingHandler) Delete(w http.ResponseWriter, r *http.Request) {
	b, err := h.bookings.Delete(r.Context(), auth.CallerID(r.Context()), r.URL.Query().Get("booking_id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toBookingResponse(b, true))
}

func (h *BookingHandler) Reschedule(w http.ResponseWriter, r *http.Request) {
	var req rescheduleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	b, err := h.bookings.Reschedule(r.Context(), booking.RescheduleInput{
		CallerID:   auth.CallerID(r.Context()),
		BookingID:  req.BookingID,
		TimeSlotID: req.TimeSlotID,
		Date:       req.Date,
		StartTime:  req.StartTime,
		EndTime:    req.EndTime,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toBookingResponse(b, true))
}

func (h *BookingHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := storage.BookingFilter{
		From: strings.TrimSpace(q.Get("from")),
		To:   strings.TrimSpace(q.Get("to")),
	}
	if raw := strings.TrimSpace(q.Get("status")); raw != "" {
		st, err := model.ParseStatus(raw)
		if err != nil {
			writeError(w, r, h.logger, apperr.Validation("unknown status %q", raw))
			return
		}
		f.Status = st
	}
	if raw := strings.TrimSpace(q.Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, r, h.logger, apperr.Validation("limit must be a positive integer"))
			return
		}
		f.Limit = n
	}

	list, err := h.bookings.List(r.Context(), auth.CallerID(r.Context()), f)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	resp := listBookingsResponse{Bookings: make([]bookingResponse, 0, len(list))}
	for _, b := range list {
		resp.Bookings = append(resp.Bookings, toBookingResponse(b, true))
	}
	writeJSON(w, http.StatusOK, resp)
}
