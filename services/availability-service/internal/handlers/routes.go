package handlers

import "net/http"

// Register mounts every API route on mux. Authentication middleware is applied
// by the caller; handlers only read the resolved caller.
func Register(mux *http.ServeMux, days *AvailabilityHandler, bookings *BookingHandler) {
	mux.HandleFunc("GET /api/v1/availability/day", days.Day)

	mux.HandleFunc("POST /api/v1/bookings", bookings.Create)
	mux.HandleFunc("PATCH /api/v1/bookings", bookings.UpdateStatus)
	mux.HandleFunc("DELETE /api/v1/bookings", bookings.Delete)
	mux.HandleFunc("GET /api/v1/bookings", bookings.List)
	mux.HandleFunc("POST /api/v1/bookings/reschedule", bookings.Reschedule)

	mux.HandleFunc("GET /api/v1/owner/working-hours", days.GetWorkingHours)
	mux.HandleFunc("PUT /api/v1/owner/working-hours", days.PutWorkingHours)
	mux.HandleFunc("GET /api/v1/owner/settings", days.GetSettings)
	mux.HandleFunc("PUT /api/v1/owner/settings", days.PutSettings)
	mux.HandleFunc("PUT /api/v1/owner/days/{date}", days.PutDay)
	mux.HandleFunc("DELETE /api/v1/owner/days/{date}", days.DeleteDay)
}
