// Package booking owns the booking write path: conflict-safe creation, status
// transitions with time guards, deletion and rescheduling.
package booking

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/apptslots/services/availability-service/internal/apperr"
	"github.com/md-rashed-zaman/apptslots/services/availability-service/internal/metrics"
	"github.com/md-rashed-zaman/apptslots/services/availability-service/internal/model"
	"github.com/md-rashed-zaman/apptslots/services/availability-service/internal/storage"
	"github.com/md-rashed-zaman/apptslots/services/availability-service/internal/timeutil"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// DefaultNoShowGrace is how long after the start a booking must wait before it
// can be marked no-show.
const DefaultNoShowGrace = 15 * time.Minute

// DayInvalidator drops cached day views. availability.Service implements it.
type DayInvalidator interface {
	Invalidate(ctx context.Context, ownerID, date string)
}

type Config struct {
	Location     *time.Location
	StoreTimeout time.Duration
	NoShowGrace  time.Duration
	Now          func() time.Time
}

type Service struct {
	store   storage.Store
	days    DayInvalidator
	logger  *slog.Logger
	loc     *time.Location
	timeout time.Duration
	grace   time.Duration
	now     func() time.Time
	tracer  trace.Tracer
}

func NewService(store storage.Store, days DayInvalidator, logger *slog.Logger, cfg Config) *Service {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = 5 * time.Second
	}
	if cfg.NoShowGrace <= 0 {
		cfg.NoShowGrace = DefaultNoShowGrace
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Service{
		store:   store,
		days:    days,
		logger:  logger,
		loc:     cfg.Location,
		timeout: cfg.StoreTimeout,
		grace:   cfg.NoShowGrace,
		now:     cfg.Now,
		tracer:  otel.Tracer("availability-service/booking"),
	}
}

// List returns the caller's bookings in a date range.
func (s *Service) List(ctx context.Context, callerID string, f storage.BookingFilter) ([]model.Booking, error) {
	if callerID == "" {
		return nil, apperr.Unauthorized("authentication required")
	}
	if f.From != "" && !timeutil.ValidDate(f.From) {
		return nil, apperr.Validation("from must be YYYY-MM-DD")
	}
	if f.To != "" && !timeutil.ValidDate(f.To) {
		return nil, apperr.Validation("to must be YYYY-MM-DD")
	}
	f.OwnerID = callerID

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	out, err := s.store.ListBookings(ctx, f)
	if err != nil {
		s.logger.Error("list bookings failed", "owner_id", callerID, "err", err)
		return nil, apperr.Internal("list bookings", err)
	}
	return out, nil
}

// Get returns one booking owned by the caller.
func (s *Service) Get(ctx context.Context, callerID, bookingID string) (model.Booking, error) {
	if callerID == "" {
		return model.Booking{}, apperr.Unauthorized("authentication required")
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	b, err := s.store.Booking(ctx, bookingID)
	if err != nil {
		return model.Booking{}, loadErr(err)
	}
	if b.OwnerID != callerID {
		return model.Booking{}, apperr.Forbidden("booking belongs to another owner")
	}
	return b, nil
}

func (s *Service) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func (s *Service) stamp() (time.Time, string) {
	now := s.now().UTC()
	return now, now.Format(time.RFC3339)
}

func loadErr(err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return apperr.NotFound("booking not found")
	}
	return apperr.Internal("load booking", err)
}

// txErr passes classified errors through and wraps everything else as Internal.
func txErr(op string, err error) error {
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return err
	}
	if errors.Is(err, storage.ErrConflict) {
		return apperr.Conflict("time slot is already booked")
	}
	return apperr.Internal(op, err)
}

func outcome(err error) string {
	switch apperr.KindOf(err) {
	case "":
		return "ok"
	case apperr.KindConflict:
		return "conflict"
	case apperr.KindInternal:
		return "error"
	default:
		return "rejected"
	}
}

func (s *Service) recordCreate(err error) {
	metrics.IncBookingCreate(outcome(err))
}
