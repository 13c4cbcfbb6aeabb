package model

import "time"

// WorkingHourRule is the recurring schedule for one weekday (0 = Sunday).
type WorkingHourRule struct {
	OwnerID   string
	DayOfWeek int
	StartTime string
	EndTime   string
	IsWorking bool
}

type AvailabilitySettings struct {
	OwnerID              string
	SlotDurationMinutes  int
	BreakDurationMinutes int
	AdvanceBookingDays   int
}

// DateException overrides a whole date. It carries no windows of its own.
type DateException struct {
	OwnerID     string
	Date        string
	IsAvailable bool
	Reason      string
}

// PersistedWindow is an explicit window row for one date. (OwnerID, Date,
// StartTime, EndTime) is unique.
type PersistedWindow struct {
	ID          string
	OwnerID     string
	Date        string
	StartTime   string
	EndTime     string
	IsAvailable bool
	IsBooked    bool
}

func (w PersistedWindow) Key() WindowKey {
	return WindowKey{OwnerID: w.OwnerID, Date: w.Date, StartTime: w.StartTime, EndTime: w.EndTime}
}

// WindowKey is the natural key shared by windows and the bookings placed on them.
type WindowKey struct {
	OwnerID   string
	Date      string
	StartTime string
	EndTime   string
}

type Booking struct {
	ID          string
	OwnerID     string
	Date        string
	StartTime   string
	EndTime     string
	ClientName  string
	ClientEmail string
	ClientPhone string
	Notes       string
	Status      Status
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (b Booking) Window() WindowKey {
	return WindowKey{OwnerID: b.OwnerID, Date: b.Date, StartTime: b.StartTime, EndTime: b.EndTime}
}

// BookingDetails is attached to a booked window in the owner's view only.
type BookingDetails struct {
	BookingID   string `json:"booking_id"`
	ClientName  string `json:"client_name"`
	ClientEmail string `json:"client_email"`
	Notes       string `json:"notes,omitempty"`
	Status      Status `json:"status"`
}

// ComputedWindow is one entry of a day view. It is built per request and never stored.
type ComputedWindow struct {
	ID             string          `json:"id"`
	StartTime      string          `json:"start_time"`
	EndTime        string          `json:"end_time"`
	IsAvailable    bool            `json:"is_available"`
	IsBooked       bool            `json:"is_booked"`
	BookingDetails *BookingDetails `json:"booking_details,omitempty"`
}

type DayView struct {
	Date         string           `json:"date"`
	IsWorkingDay bool             `json:"is_working_day"`
	TimeSlots    []ComputedWindow `json:"time_slots"`
}
