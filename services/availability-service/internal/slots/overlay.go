package slots

import (
	"sort"

	"github.com/md-rashed-zaman/apptslots/services/availability-service/internal/model"
)

// ApplyExceptions layers persisted window rows and the whole-day exception
// onto the baseline. A row matching a baseline window by exact start and end
// overwrites its flags; any other row is appended as an ad-hoc window. Rows make
// the day a working day even when the weekly rule does not. An unavailable
// exception empties the day only when there are no rows.
//
// The input slice is not modified and applying the same rows twice gives the
// same result as applying them once.
func ApplyExceptions(date string, base []model.ComputedWindow, working bool, rows []model.PersistedWindow, exc *model.DateException) ([]model.ComputedWindow, bool) {
	if len(rows) == 0 {
		if exc != nil && !exc.IsAvailable {
			return nil, false
		}
		out := clone(base)
		return out, working || len(out) > 0 || (exc != nil && exc.IsAvailable)
	}

	out := clone(base)
	index := make(map[[2]string]int, len(out))
	for i, w := range out {
		index[[2]string{w.StartTime, w.EndTime}] = i
	}
	for _, row := range rows {
		k := [2]string{row.StartTime, row.EndTime}
		if i, ok := index[k]; ok {
			out[i].ID = row.ID
			out[i].IsAvailable = row.IsAvailable
			out[i].IsBooked = row.IsBooked
			continue
		}
		index[k] = len(out)
		out = append(out, model.ComputedWindow{
			ID:          row.ID,
			StartTime:   row.StartTime,
			EndTime:     row.EndTime,
			IsAvailable: row.IsAvailable,
			IsBooked:    row.IsBooked,
		})
	}
	sortWindows(out)
	return out, true
}

// ApplyBookings marks windows that carry an active booking as booked and
// unavailable. Booking details are attached only when withDetails is set.
// Inactive bookings are ignored.
func ApplyBookings(windows []model.ComputedWindow, bookings []model.Booking, withDetails bool) []model.ComputedWindow {
	out := clone(windows)
	if len(bookings) == 0 {
		return out
	}
	byTime := make(map[[2]string]model.Booking, len(bookings))
	for _, b := range bookings {
		if b.Status.Active() {
			byTime[[2]string{b.StartTime, b.EndTime}] = b
		}
	}
	for i := range out {
		b, ok := byTime[[2]string{out[i].StartTime, out[i].EndTime}]
		if !ok {
			continue
		}
		out[i].IsAvailable = false
		out[i].IsBooked = true
		if withDetails {
			out[i].BookingDetails = &model.BookingDetails{
				BookingID:   b.ID,
				ClientName:  b.ClientName,
				ClientEmail: b.ClientEmail,
				Notes:       b.Notes,
				Status:      b.Status,
			}
		}
	}
	return out
}

// StripDetails removes client data for the public view.
func StripDetails(windows []model.ComputedWindow) []model.ComputedWindow {
	out := clone(windows)
	for i := range out {
		out[i].BookingDetails = nil
	}
	return out
}

// Find returns the window with the given start and end.
func Find(windows []model.ComputedWindow, start, end string) (model.ComputedWindow, bool) {
	for _, w := range windows {
		if w.StartTime == start && w.EndTime == end {
			return w, true
		}
	}
	return model.ComputedWindow{}, false
}

func clone(in []model.ComputedWindow) []model.ComputedWindow {
	if in == nil {
		return nil
	}
	out := make([]model.ComputedWindow, len(in))
	for i, w := range in {
		if w.BookingDetails != nil {
			d := *w.BookingDetails
			w.BookingDetails = &d
		}
		out[i] = w
	}
	return out
}

func sortWindows(ws []model.ComputedWindow) {
	sort.SliceStable(ws, func(i, j int) bool {
		if ws[i].StartTime != ws[j].StartTime {
			return ws[i].StartTime < ws[j].StartTime
		}
		return ws[i].EndTime < ws[j].EndTime
	})
}
