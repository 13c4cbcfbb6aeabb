// Package storage persists owner schedules, windows, bookings and outbox
// events. Postgres and SQLite share the same SQL; only connection handling and
// error translation differ.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/md-rashed-zaman/apptslots/services/availability-service/internal/model"
)

var (
	ErrNotFound = errors.New("storage: not found")
	ErrConflict = errors.New("storage: conflict")
)

// Reader is the read side shared by Store and Tx.
type Reader interface {
	// Settings and WorkingHours create the owner's defaults on first read.
	Settings(ctx context.Context, ownerID string, now time.Time) (model.AvailabilitySettings, error)
	WorkingHours(ctx context.Context, ownerID string, now time.Time) ([]model.WorkingHourRule, error)
	DateException(ctx context.Context, ownerID, date string) (*model.DateException, error)
	Windows(ctx context.Context, ownerID, date string) ([]model.PersistedWindow, error)
	Window(ctx context.Context, id string) (model.PersistedWindow, error)
	ActiveBookings(ctx context.Context, ownerID, date string) ([]model.Booking, error)
	Booking(ctx context.Context, id string) (model.Booking, error)
	ListBookings(ctx context.Context, f BookingFilter) ([]model.Booking, error)
}

// Tx is one store transaction. Every check-then-mutate sequence runs inside one.
type Tx interface {
	Reader

	// EnsureWindow inserts the window as open unless a row with the same key exists.
	EnsureWindow(ctx context.Context, w model.PersistedWindow, now time.Time) error
	// ClaimWindow marks the window booked only if it is open and unbooked, and
	// reports whether this call did so.
	ClaimWindow(ctx context.Context, key model.WindowKey, now time.Time) (bool, error)
	MarkWindowBooked(ctx context.Context, key model.WindowKey, now time.Time) error
	ReleaseWindow(ctx context.Context, key model.WindowKey, now time.Time) error

	InsertBooking(ctx context.Context, b model.Booking) error
	// UpdateBookingStatus changes the status only if it is still from, and
	// reports whether a row changed.
	UpdateBookingStatus(ctx context.Context, id string, from, to model.Status, now time.Time) (bool, error)
	DeleteBooking(ctx context.Context, id string) error

	ReplaceWorkingHours(ctx context.Context, ownerID string, rules []model.WorkingHourRule, now time.Time) error
	SaveSettings(ctx context.Context, s model.AvailabilitySettings, now time.Time) error
	SaveDateException(ctx context.Context, e model.DateException, now time.Time) error
	DeleteDateException(ctx context.Context, ownerID, date string) error
	// ReplaceOpenWindows swaps the unbooked windows of a date for ws. Booked
	// rows are left alone.
	ReplaceOpenWindows(ctx context.Context, ownerID, date string, ws []model.PersistedWindow, now time.Time) error
	DeleteOpenWindows(ctx context.Context, ownerID, date string) error

	InsertOutbox(ctx context.Context, evt OutboxEvent, now time.Time) error
	FetchUnpublished(ctx context.Context, limit int) ([]OutboxRecord, error)
	MarkPublished(ctx context.Context, ids []int64, now time.Time) error
}

type Store interface {
	Reader
	// InTx commits when fn returns nil and rolls back otherwise.
	InTx(ctx context.Context, fn func(Tx) error) error
	Ping(ctx context.Context) error
	Close() error
}

type BookingFilter struct {
	OwnerID string
	From    string
	To      string
	Status  model.Status
	Limit   int
}

// OutboxEvent is written in the same transaction as the change it describes.
// The Kafka topic equals EventType.
type OutboxEvent struct {
	EventID       string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

type OutboxRecord struct {
	ID            int64
	EventID       string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
	Traceparent   string
	Tracestate    string
	CreatedAt     time.Time
}
