package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/md-rashed-zaman/apptslots/libs/auth"
	"github.com/md-rashed-zaman/apptslots/services/availability-service/internal/availability"
	"github.com/md-rashed-zaman/apptslots/services/availability-service/internal/booking"
	"github.com/md-rashed-zaman/apptslots/services/availability-service/internal/cache"
	"github.com/md-rashed-zaman/apptslots/services/availability-service/internal/model"
	"github.com/md-rashed-zaman/apptslots/services/availability-service/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	secret = "test-secret"
	owner  = "owner-1"
	monday = "2026-10-19"
)

var now = time.Date(2026, 10, 19, 7, 0, 0, 0, time.UTC)

func newServer(t *testing.T) http.Handler {
	t.Helper()
	store, err := storage.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clock := func() time.Time { return now }
	days := availability.NewService(store, cache.Noop{}, logger, availability.Config{Now: clock})
	bookings := booking.NewService(store, days, logger, booking.Config{Now: clock})

	mux := http.NewServeMux()
	Register(mux, NewAvailabilityHandler(days, logger), NewBookingHandler(bookings, logger))
	return auth.Authenticate(secret, clock)(mux)
}

func token(t *testing.T, sub string) string {
	t.Helper()
	tok, err := auth.SignHS256(auth.Claims{Sub: sub, Role: "owner", Exp: now.Add(time.Hour).Unix()}, secret)
	require.NoError(t, err)
	return tok
}

func do(t *testing.T, h http.Handler, method, path, tok string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		rd = bytes.NewBufferString(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		rd = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rd)
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	rw := httptest.NewRecorder()
	h.ServeHTTP(rw, req)
	return rw
}

func decode[T any](t *testing.T, rw *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rw.Body.Bytes(), &v))
	return v
}

func createBody(start, end string) map[string]any {
	return map[string]any{
		"owner_id":     owner,
		"date":         monday,
		"start_time":   start,
		"end_time":     end,
		"client_name":  "Ada",
		"client_email": "ada@example.com",
		"notes":        "hello",
	}
}

func TestDayViewAuthRules(t *testing.T) {
	h := newServer(t)

	rw := do(t, h, http.MethodGet, "/api/v1/availability/day?date="+monday, "", nil)
	assert.Equal(t, http.StatusUnauthorized, rw.Code)
	assert.Equal(t, "unauthorized", decode[errorResponse](t, rw).Code)

	rw = do(t, h, http.MethodPost, "/api/v1/bookings", "", createBody("09:00", "10:00"))
	require.Equal(t, http.StatusOK, rw.Code, rw.Body.String())
	created := decode[bookingResponse](t, rw)
	assert.Equal(t, "pending", created.Status)
	assert.Empty(t, created.ClientEmail)

	rw = do(t, h, http.MethodGet, "/api/v1/availability/day?date="+monday+"&owner_id="+owner, "", nil)
	require.Equal(t, http.StatusOK, rw.Code)
	assert.NotContains(t, rw.Body.String(), "ada@example.com")
	assert.NotContains(t, rw.Body.String(), "booking_details")
	public := decode[model.DayView](t, rw)
	assert.True(t, public.IsWorkingDay)
	assert.True(t, public.TimeSlots[0].IsBooked)

	rw = do(t, h, http.MethodGet, "/api/v1/availability/day?date="+monday, token(t, owner), nil)
	require.Equal(t, http.StatusOK, rw.Code)
	own := decode[model.DayView](t, rw)
	require.NotNil(t, own.TimeSlots[0].BookingDetails)
	assert.Equal(t, "ada@example.com", own.TimeSlots[0].BookingDetails.ClientEmail)

	rw = do(t, h, http.MethodGet, "/api/v1/availability/day?date="+monday+"&owner_id="+owner, token(t, "owner-2"), nil)
	require.Equal(t, http.StatusOK, rw.Code)
	assert.NotContains(t, rw.Body.String(), "ada@example.com")
}

func TestCreateBookingErrors(t *testing.T) {
	h := newServer(t)

	rw := do(t, h, http.MethodPost, "/api/v1/bookings", "", `{"owner_id":"owner-1","bogus":1}`)
	assert.Equal(t, http.StatusBadRequest, rw.Code)
	assert.Equal(t, "validation", decode[errorResponse](t, rw).Code)

	body := createBody("09:00", "10:00")
	body["client_email"] = "nope"
	rw = do(t, h, http.MethodPost, "/api/v1/bookings", "", body)
	assert.Equal(t, http.StatusBadRequest, rw.Code)

	rw = do(t, h, http.MethodPost, "/api/v1/bookings", "", createBody("09:30", "10:30"))
	assert.Equal(t, http.StatusNotFound, rw.Code)

	rw = do(t, h, http.MethodPost, "/api/v1/bookings", "", createBody("09:00", "10:00"))
	require.Equal(t, http.StatusOK, rw.Code)
	rw = do(t, h, http.MethodPost, "/api/v1/bookings", "", createBody("09:00", "10:00"))
	assert.Equal(t, http.StatusConflict, rw.Code)
	assert.Equal(t, "conflict", decode[errorResponse](t, rw).Code)
}

func TestBookingLifecycle(t *testing.T) {
	h := newServer(t)
	tok := token(t, owner)

	rw := do(t, h, http.MethodPost, "/api/v1/bookings", tok, createBody("11:00", "12:00"))
	require.Equal(t, http.StatusOK, rw.Code)
	b := decode[bookingResponse](t, rw)
	assert.Equal(t, "ada@example.com", b.ClientEmail)

	patch := map[string]string{"booking_id": b.ID, "status": "confirmed"}
	rw = do(t, h, http.MethodPatch, "/api/v1/bookings", "", patch)
	assert.Equal(t, http.StatusUnauthorized, rw.Code)
	rw = do(t, h, http.MethodPatch, "/api/v1/bookings", token(t, "owner-2"), patch)
	assert.Equal(t, http.StatusForbidden, rw.Code)
	rw = do(t, h, http.MethodPatch, "/api/v1/bookings", tok, map[string]string{"booking_id": "missing", "status": "confirmed"})
	assert.Equal(t, http.StatusNotFound, rw.Code)

	rw = do(t, h, http.MethodPatch, "/api/v1/bookings", tok, patch)
	require.Equal(t, http.StatusOK, rw.Code)
	assert.Equal(t, "confirmed", decode[bookingResponse](t, rw).Status)

	rw = do(t, h, http.MethodPatch, "/api/v1/bookings", tok, map[string]string{"booking_id": b.ID, "status": "no-show"})
	assert.Equal(t, http.StatusBadRequest, rw.Code)
	assert.Equal(t, "guard_violation", decode[errorResponse](t, rw).Code)

	rw = do(t, h, http.MethodGet, "/api/v1/bookings?from="+monday+"&to="+monday+"&status=confirmed", tok, nil)
	require.Equal(t, http.StatusOK, rw.Code)
	list := decode[listBookingsResponse](t, rw)
	require.Len(t, list.Bookings, 1)
	assert.Equal(t, b.ID, list.Bookings[0].ID)

	rw = do(t, h, http.MethodPost, "/api/v1/bookings/reschedule", tok, map[string]string{
		"booking_id": b.ID, "date": monday, "start_time": "14:00", "end_time": "15:00",
	})
	require.Equal(t, http.StatusOK, rw.Code, rw.Body.String())
	moved := decode[bookingResponse](t, rw)
	assert.Equal(t, "14:00", moved.StartTime)

	rw = do(t, h, http.MethodDelete, "/api/v1/bookings?booking_id="+moved.ID, token(t, "owner-2"), nil)
	assert.Equal(t, http.StatusForbidden, rw.Code)
	rw = do(t, h, http.MethodDelete, "/api/v1/bookings?booking_id="+moved.ID, tok, nil)
	require.Equal(t, http.StatusOK, rw.Code)
	rw = do(t, h, http.MethodDelete, "/api/v1/bookings?booking_id="+moved.ID, tok, nil)
	assert.Equal(t, http.StatusNotFound, rw.Code)
}

func TestOwnerSettingsEndpoints(t *testing.T) {
	h := newServer(t)
	tok := token(t, owner)

	rw := do(t, h, http.MethodGet, "/api/v1/owner/settings", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rw.Code)

	rw = do(t, h, http.MethodGet, "/api/v1/owner/settings", tok, nil)
	require.Equal(t, http.StatusOK, rw.Code)
	assert.Equal(t, settingsBody{SlotDurationMinutes: 60, AdvanceBookingDays: 30}, decode[settingsBody](t, rw))

	rw = do(t, h, http.MethodPut, "/api/v1/owner/settings", tok, settingsBody{SlotDurationMinutes: 30, BreakDurationMinutes: 15, AdvanceBookingDays: 7})
	require.Equal(t, http.StatusOK, rw.Code)

	rw = do(t, h, http.MethodGet, "/api/v1/owner/working-hours", tok, nil)
	require.Equal(t, http.StatusOK, rw.Code)
	assert.Len(t, decode[workingHoursBody](t, rw).WorkingHours, 7)

	rw = do(t, h, http.MethodPut, "/api/v1/owner/working-hours", tok, workingHoursBody{WorkingHours: []workingHourItem{
		{DayOfWeek: 1, StartTime: "09:00", EndTime: "10:30", IsWorking: true},
	}})
	require.Equal(t, http.StatusOK, rw.Code)

	rw = do(t, h, http.MethodGet, "/api/v1/availability/day?date="+monday, tok, nil)
	require.Equal(t, http.StatusOK, rw.Code)
	view := decode[model.DayView](t, rw)
	require.Len(t, view.TimeSlots, 2)
	assert.Equal(t, "09:00", view.TimeSlots[0].StartTime)
	assert.Equal(t, "09:30", view.TimeSlots[0].EndTime)
	assert.Equal(t, "09:45", view.TimeSlots[1].StartTime)

	rw = do(t, h, http.MethodPut, "/api/v1/owner/days/"+monday, tok, map[string]any{"is_available": false, "reason": "holiday"})
	require.Equal(t, http.StatusOK, rw.Code)
	assert.False(t, decode[model.DayView](t, rw).IsWorkingDay)

	rw = do(t, h, http.MethodDelete, "/api/v1/owner/days/"+monday, tok, nil)
	require.Equal(t, http.StatusOK, rw.Code)
	assert.True(t, decode[model.DayView](t, rw).IsWorkingDay)

	rw = do(t, h, http.MethodPut, "/api/v1/owner/days/not-a-date", tok, map[string]any{"is_available": true})
	assert.Equal(t, http.StatusBadRequest, rw.Code)
}
